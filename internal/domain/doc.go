// Package domain contains the core entities and value objects for sensorship.
//
// This package is the innermost layer of the agent. It has no dependencies on
// infrastructure concerns (HTTP, file system, logging) and holds only the
// vocabulary shared by the sampler, the upload worker and their adapters.
//
// # Entities
//
//   - [Measurement]: one timestamped sensor reading, immutable once produced
//   - [DeviceIdentity]: device hash and sensor name attached to every upload
//   - [BufferState]: lifecycle state of one buffer file (active, sealed, uploaded)
//   - [UploadJob]: one attempt to deliver a sealed buffer, never persisted
//
// # Errors
//
// Failures are classified so the coordinator can decide between draining the
// process ([ErrSensorFatal], [StorageError]) and retrying later ([UploadError]).
// Mirror failures ([MirrorError]) are reported but never propagate.
package domain
