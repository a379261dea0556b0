package ports

import (
	"context"

	"github.com/bicycledata/sensorship/internal/domain"
)

// Transport delivers sealed buffers to the collection server.
type Transport interface {
	// Upload sends the full contents of one sealed buffer together with the
	// device identity. It returns nil only when the server acknowledged
	// receipt; any other outcome is a failure and the buffer is retried later.
	Upload(ctx context.Context, identity domain.DeviceIdentity, job domain.UploadJob) error
}
