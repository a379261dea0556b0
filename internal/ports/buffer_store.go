package ports

import (
	"time"

	"github.com/bicycledata/sensorship/internal/domain"
)

// BufferStore owns the pending and uploaded areas on disk.
//
// The sampler only calls Create and the methods of the returned ActiveBuffer;
// the upload worker only calls Sealed, Load and MarkUploaded. Each state
// transition is a single atomic rename, so the two never need a lock.
type BufferStore interface {
	// Init creates the pending and uploaded areas if they are missing.
	Init() error

	// RecoverActive seals buffers left active by a previous process and
	// returns their names. It must run before the sampler starts.
	RecoverActive() ([]string, error)

	// Create opens a new ACTIVE buffer and writes its header row.
	Create(header []string, now time.Time) (ActiveBuffer, error)

	// Sealed lists SEALED buffer names, oldest first.
	Sealed() ([]string, error)

	// Load reads a sealed buffer into an upload job.
	Load(name string) (domain.UploadJob, error)

	// MarkUploaded moves a sealed buffer to the uploaded area.
	// It is a no-op for a buffer that is already there.
	MarkUploaded(name string) error
}

// ActiveBuffer is the single buffer currently receiving appends.
type ActiveBuffer interface {
	Name() string
	CreatedAt() time.Time
	Size() int64
	Records() int

	// Append writes and syncs one record.
	Append(m domain.Measurement) error

	// Seal closes the buffer and makes it visible to the upload worker.
	Seal() error
}
