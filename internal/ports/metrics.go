package ports

import "time"

// Metrics records capture and upload activity. The zero-cost NopMetrics is
// used when no metrics endpoint is configured.
type Metrics interface {
	MeasurementRecorded()
	SensorFailed(fatal bool)
	BufferSealed(records int, bytes int64)
	UploadSucceeded(bytes int, duration time.Duration)
	UploadFailed()
	PendingBuffers(n int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) MeasurementRecorded()               {}
func (NopMetrics) SensorFailed(bool)                  {}
func (NopMetrics) BufferSealed(int, int64)            {}
func (NopMetrics) UploadSucceeded(int, time.Duration) {}
func (NopMetrics) UploadFailed()                      {}
func (NopMetrics) PendingBuffers(int)                 {}
