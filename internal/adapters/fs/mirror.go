package fs

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// Mirror writes a best-effort copy of every buffer to removable storage,
// typically a USB stick mounted at a fixed path. A missing mount point is
// normal and silently skipped; any other failure is logged once per buffer
// and disables the copy for that buffer. The primary write is never affected.
type Mirror struct {
	dir    string
	logger ports.Logger
}

// NewMirror returns a mirror writing to <dir>/<sensor>. It returns nil when
// dir is empty.
func NewMirror(dir, sensor string, logger ports.Logger) *Mirror {
	if dir == "" {
		return nil
	}
	return &Mirror{dir: filepath.Join(dir, sanitizeSensor(sensor)), logger: logger}
}

// open creates the mirror copy for a new buffer. It returns nil if the
// removable storage is unavailable.
func (m *Mirror) open(name string) *mirrorFile {
	root := filepath.Dir(m.dir)
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.logger.Debug("mirror target absent", ports.String("path", root))
		} else {
			m.report(&domain.MirrorError{Path: root, Err: err})
		}
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		m.report(&domain.MirrorError{Path: m.dir, Err: err})
		return nil
	}
	path := filepath.Join(m.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		m.report(&domain.MirrorError{Path: path, Err: err})
		return nil
	}
	return &mirrorFile{file: f, path: path, owner: m}
}

func (m *Mirror) report(err error) {
	m.logger.Warn("mirror write failed", ports.Err(err))
}

type mirrorFile struct {
	file  *os.File
	path  string
	owner *Mirror
}

// write appends line to the copy. Safe to call on a nil receiver.
func (f *mirrorFile) write(line []byte) {
	if f == nil || f.file == nil {
		return
	}
	if _, err := f.file.Write(line); err != nil {
		f.owner.report(&domain.MirrorError{Path: f.path, Err: err})
		_ = f.file.Close()
		f.file = nil
	}
}

func (f *mirrorFile) close() {
	if f == nil || f.file == nil {
		return
	}
	if err := f.file.Close(); err != nil {
		f.owner.report(&domain.MirrorError{Path: f.path, Err: err})
	}
	f.file = nil
}
