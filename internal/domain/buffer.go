package domain

import "time"

// BufferState is the lifecycle state of a buffer file.
type BufferState int

const (
	// BufferActive is receiving appends in the pending area.
	BufferActive BufferState = iota
	// BufferSealed is closed for writes and awaiting upload in the pending area.
	BufferSealed
	// BufferUploaded has been delivered and moved to the uploaded area.
	BufferUploaded
)

// String returns a human-readable representation of the state.
func (s BufferState) String() string {
	switch s {
	case BufferActive:
		return "Active"
	case BufferSealed:
		return "Sealed"
	case BufferUploaded:
		return "Uploaded"
	default:
		return "Unknown"
	}
}

// UploadJob is one attempt to transmit a sealed buffer. It is built by the
// upload worker's scan and discarded once the attempt completes.
type UploadJob struct {
	// Name is the sealed buffer's file name, e.g. "20240501_101500.000_lidar.csv".
	Name string

	// Path is the absolute path of the sealed file.
	Path string

	// Contents is the full file content, header included.
	Contents []byte

	// SealedAt is the modification time of the sealed file.
	SealedAt time.Time
}

// Size returns the number of content bytes.
func (j UploadJob) Size() int { return len(j.Contents) }
