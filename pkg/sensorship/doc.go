// Package sensorship provides an embeddable sensor capture agent.
//
// The agent samples a [Sensor] at a fixed frequency, appends every reading to
// a CSV buffer on local disk and uploads sealed buffers to a collection
// server. Readings are synced as they are written, so neither a network
// outage nor a crash loses data: unsent buffers are picked up again on the
// next start.
//
// # Basic Usage
//
//	cfg := sensorship.DefaultConfig()
//	cfg.Hash = "device-hash"
//	cfg.Name = "lidar"
//	cfg.DataDir = "/var/lib/sensorship"
//
//	agent, err := sensorship.New(cfg, sensorship.WithSensor(myLidar))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Run blocks until ctx is canceled, then seals the current buffer and
//	// makes a final upload attempt.
//	if err := agent.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Sensors
//
// A sensor implements [Sensor]. Built-in software sensors are selected with
// [Config.Sensor] ("template", "session"); hardware drivers are supplied with
// [WithSensor]. A sensor returns [ErrNoReading] when it has nothing to record
// for a tick and an error wrapping [ErrSensorFatal] when it is gone for good.
//
// # On-disk Layout
//
// Buffers live under DataDir:
//
//	pending/<name>.csv.active   receiving readings
//	pending/<name>.csv          sealed, waiting for upload
//	uploaded/<name>.csv         acknowledged by the server
//
// Names start with the UTC creation time, so they sort in creation order and
// are uploaded oldest first.
//
// # Lifecycle States
//
// An agent moves through [StateStopped], [StateStarting], [StateRunning] and
// [StateDraining]. Use [WithEventHandler] to observe transitions.
package sensorship
