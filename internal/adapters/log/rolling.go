package log

import (
	"fmt"
	"os"
	"sync"
)

// rollingFile is a log file that is rolled over to .1 (and .1 to .2, up to
// Backups) whenever the next write would take it past maxBytes.
type rollingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	file     *os.File
	size     int64
}

func openRollingFile(path string, maxBytes int64) (*rollingFile, error) {
	r := &rollingFile{path: path, maxBytes: maxBytes}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// Write writes p to the current file. A single write is never split across
// files, so an entry larger than maxBytes goes to a file of its own.
func (r *rollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.roll(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *rollingFile) roll() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("roll log: %w", err)
	}
	r.file = nil
	if err := rollBackups(r.path); err != nil {
		return err
	}
	return r.open()
}

func (r *rollingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("open log: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// rollBackups shifts path.1 to path.2 and so on, dropping the oldest, and
// moves path to path.1.
func rollBackups(path string) error {
	for i := Backups - 1; i >= 1; i-- {
		_ = os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1))
	}
	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("roll log: %w", err)
	}
	return nil
}
