package fs

import (
	"os"
	"time"

	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// BufferFile is one buffer on disk. While ACTIVE it is owned by the sampler
// and must not be used from more than one goroutine.
type BufferFile struct {
	name       string
	activePath string
	sealedPath string
	dir        string

	file      *os.File
	mirror    *mirrorFile
	createdAt time.Time
	size      int64
	records   int
	closed    bool
	sealed    bool
}

// Name returns the sealed file name.
func (b *BufferFile) Name() string { return b.name }

// CreatedAt returns the creation time used for age-based rollover.
func (b *BufferFile) CreatedAt() time.Time { return b.createdAt }

// Size returns the bytes written so far, header included.
func (b *BufferFile) Size() int64 { return b.size }

// Records returns the number of measurements appended.
func (b *BufferFile) Records() int { return b.records }

func (b *BufferFile) writeHeader(header []string) error {
	line := domain.EncodeRecord(header)
	if err := b.write(line); err != nil {
		return err
	}
	b.mirror.write(line)
	return nil
}

// Append writes one record and syncs it to disk.
func (b *BufferFile) Append(m domain.Measurement) error {
	if b.sealed || b.closed {
		return domain.ErrBufferSealed
	}
	line := domain.EncodeRecord(m.Record())
	if err := b.write(line); err != nil {
		return err
	}
	b.records++
	b.mirror.write(line)
	return nil
}

func (b *BufferFile) write(line []byte) error {
	n, err := b.file.Write(line)
	b.size += int64(n)
	if err != nil {
		return &domain.StorageError{Op: "append", Path: b.activePath, Err: err}
	}
	if err := b.file.Sync(); err != nil {
		return &domain.StorageError{Op: "sync", Path: b.activePath, Err: err}
	}
	return nil
}

// Seal closes the file and renames it to its sealed name. Sealing twice is a
// no-op. If the rename fails the buffer stays ACTIVE on disk and Seal may be
// retried; start-up recovery seals it otherwise.
func (b *BufferFile) Seal() error {
	if b.sealed {
		return nil
	}
	if !b.closed {
		_ = b.file.Sync()
		if err := b.file.Close(); err != nil {
			return &domain.StorageError{Op: "close", Path: b.activePath, Err: err}
		}
		b.closed = true
		b.mirror.close()
	}
	if err := os.Rename(b.activePath, b.sealedPath); err != nil {
		return &domain.StorageError{Op: "seal", Path: b.activePath, Err: err}
	}
	syncDir(b.dir)
	b.sealed = true
	return nil
}

var _ ports.ActiveBuffer = (*BufferFile)(nil)
