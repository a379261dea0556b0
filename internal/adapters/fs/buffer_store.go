package fs

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

const (
	// PendingDir holds active and sealed buffers.
	PendingDir = "pending"
	// UploadedDir holds delivered buffers.
	UploadedDir = "uploaded"

	sealedExt = ".csv"
	activeExt = ".csv.active"

	nameTimeLayout = "20060102_150405.000"
)

// BufferStore implements ports.BufferStore on a local directory.
type BufferStore struct {
	root   string
	sensor string
	mirror *Mirror
	logger ports.Logger

	mu       sync.Mutex
	lastName time.Time
}

// NewBufferStore creates a store rooted at dir for the given sensor name.
// mirror may be nil.
func NewBufferStore(dir, sensor string, mirror *Mirror, logger ports.Logger) *BufferStore {
	return &BufferStore{
		root:   dir,
		sensor: sanitizeSensor(sensor),
		mirror: mirror,
		logger: logger,
	}
}

// Init creates the pending and uploaded directories if absent.
func (s *BufferStore) Init() error {
	for _, d := range []string{s.PendingPath(), s.UploadedPath()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return &domain.StorageError{Op: "mkdir", Path: d, Err: err}
		}
	}
	return nil
}

// PendingPath returns the pending directory.
func (s *BufferStore) PendingPath() string { return filepath.Join(s.root, PendingDir) }

// UploadedPath returns the uploaded directory.
func (s *BufferStore) UploadedPath() string { return filepath.Join(s.root, UploadedDir) }

// Create opens a new ACTIVE buffer named after now and writes the header.
func (s *BufferStore) Create(header []string, now time.Time) (ports.ActiveBuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now.UTC().Truncate(time.Millisecond)
	if !ts.After(s.lastName) {
		ts = s.lastName.Add(time.Millisecond)
	}

	for {
		name := ts.Format(nameTimeLayout) + "_" + s.sensor + sealedExt
		if s.taken(name) {
			ts = ts.Add(time.Millisecond)
			continue
		}
		active := filepath.Join(s.PendingPath(), strings.TrimSuffix(name, sealedExt)+activeExt)
		f, err := os.OpenFile(active, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0o644)
		if errors.Is(err, os.ErrExist) {
			ts = ts.Add(time.Millisecond)
			continue
		}
		if err != nil {
			return nil, &domain.StorageError{Op: "create", Path: active, Err: err}
		}
		s.lastName = ts

		b := &BufferFile{
			name:       name,
			activePath: active,
			sealedPath: filepath.Join(s.PendingPath(), name),
			dir:        s.PendingPath(),
			file:       f,
			createdAt:  now,
		}
		if s.mirror != nil {
			b.mirror = s.mirror.open(name)
		}
		if err := b.writeHeader(domain.HeaderRow(header)); err != nil {
			_ = f.Close()
			_ = os.Remove(active)
			return nil, err
		}
		return b, nil
	}
}

func (s *BufferStore) taken(name string) bool {
	base := strings.TrimSuffix(name, sealedExt)
	for _, p := range []string{
		filepath.Join(s.PendingPath(), name),
		filepath.Join(s.PendingPath(), base+activeExt),
		filepath.Join(s.UploadedPath(), name),
	} {
		if _, err := os.Lstat(p); err == nil {
			return true
		}
	}
	return false
}

// Sealed lists sealed buffers in the pending directory, oldest first.
func (s *BufferStore) Sealed() ([]string, error) {
	return listDir(s.PendingPath(), func(n string) bool {
		return strings.HasSuffix(n, sealedExt)
	})
}

// ActiveFiles lists ACTIVE buffer file names in the pending directory.
func (s *BufferStore) ActiveFiles() ([]string, error) {
	return listDir(s.PendingPath(), func(n string) bool {
		return strings.HasSuffix(n, activeExt)
	})
}

// Uploaded lists delivered buffers, oldest first.
func (s *BufferStore) Uploaded() ([]string, error) {
	return listDir(s.UploadedPath(), func(n string) bool {
		return strings.HasSuffix(n, sealedExt)
	})
}

// Load reads a sealed buffer.
func (s *BufferStore) Load(name string) (domain.UploadJob, error) {
	path := filepath.Join(s.PendingPath(), name)
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.UploadJob{}, &domain.StorageError{Op: "read", Path: path, Err: err}
	}
	job := domain.UploadJob{Name: name, Path: path, Contents: data}
	if fi, err := os.Stat(path); err == nil {
		job.SealedAt = fi.ModTime()
	}
	return job, nil
}

// MarkUploaded moves pending/name to uploaded/name.
//
// When uploaded/name already exists the call is idempotent: a missing or
// identical pending copy is resolved without error, and a differing pending
// copy is archived next to it as name.dup-N rather than overwriting.
func (s *BufferStore) MarkUploaded(name string) error {
	src := filepath.Join(s.PendingPath(), name)
	dst := filepath.Join(s.UploadedPath(), name)

	_, srcErr := os.Stat(src)
	_, dstErr := os.Stat(dst)

	switch {
	case srcErr == nil && errors.Is(dstErr, os.ErrNotExist):
		if err := os.Rename(src, dst); err != nil {
			return &domain.StorageError{Op: "archive", Path: src, Err: err}
		}
		syncDir(s.PendingPath())
		syncDir(s.UploadedPath())
		s.transitioned(name, domain.BufferSealed, domain.BufferUploaded)
		return nil

	case errors.Is(srcErr, os.ErrNotExist) && dstErr == nil:
		return nil

	case srcErr == nil && dstErr == nil:
		return s.resolveDuplicate(src, dst)

	case srcErr != nil && !errors.Is(srcErr, os.ErrNotExist):
		return &domain.StorageError{Op: "archive", Path: src, Err: srcErr}
	case dstErr != nil && !errors.Is(dstErr, os.ErrNotExist):
		return &domain.StorageError{Op: "archive", Path: dst, Err: dstErr}
	default:
		return &domain.StorageError{Op: "archive", Path: src, Err: os.ErrNotExist}
	}
}

func (s *BufferStore) resolveDuplicate(src, dst string) error {
	a, err := os.ReadFile(src)
	if err != nil {
		return &domain.StorageError{Op: "archive", Path: src, Err: err}
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		return &domain.StorageError{Op: "archive", Path: dst, Err: err}
	}
	if bytes.Equal(a, b) {
		if err := os.Remove(src); err != nil {
			return &domain.StorageError{Op: "archive", Path: src, Err: err}
		}
		return nil
	}
	for i := 1; ; i++ {
		alt := fmt.Sprintf("%s.dup-%d", dst, i)
		if _, err := os.Lstat(alt); err == nil {
			continue
		}
		if err := os.Rename(src, alt); err != nil {
			return &domain.StorageError{Op: "archive", Path: src, Err: err}
		}
		s.logger.Warn("uploaded buffer already archived with different content",
			ports.String("buffer", filepath.Base(dst)),
			ports.String("kept_as", filepath.Base(alt)),
		)
		return nil
	}
}

// RecoverActive seals ACTIVE buffers left behind by a previous process.
// It must run before the sampler starts. Every record was synced when it
// was appended, so a partial buffer is valid and uploadable.
func (s *BufferStore) RecoverActive() ([]string, error) {
	names, err := s.ActiveFiles()
	if err != nil {
		return nil, err
	}
	var recovered []string
	for _, n := range names {
		sealed := strings.TrimSuffix(n, activeExt) + sealedExt
		src := filepath.Join(s.PendingPath(), n)
		dst := filepath.Join(s.PendingPath(), sealed)
		if _, err := os.Lstat(dst); err == nil {
			s.logger.Warn("not recovering active buffer, sealed copy exists",
				ports.String("buffer", n),
			)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return recovered, &domain.StorageError{Op: "recover", Path: src, Err: err}
		}
		recovered = append(recovered, sealed)
		s.transitioned(sealed, domain.BufferActive, domain.BufferSealed)
	}
	if len(recovered) > 0 {
		syncDir(s.PendingPath())
	}
	return recovered, nil
}

func (s *BufferStore) transitioned(name string, from, to domain.BufferState) {
	s.logger.Debug("buffer state changed",
		ports.String("buffer", name),
		ports.String("from", from.String()),
		ports.String("to", to.String()),
	)
}

func listDir(dir string, keep func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &domain.StorageError{Op: "list", Path: dir, Err: err}
	}
	// os.ReadDir returns entries sorted by filename.
	var out []string
	for _, e := range entries {
		n := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(n, ".") || !keep(n) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// syncDir flushes a directory entry change. Errors are ignored; not every
// filesystem supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func sanitizeSensor(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "sensor"
	}
	return b.String()
}

var _ ports.BufferStore = (*BufferStore)(nil)
