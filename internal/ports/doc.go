// Package ports defines the interfaces that connect the application layer to
// infrastructure adapters.
//
// # Port Interfaces
//
//   - [Sensor]: produces one measurement per sampling tick
//   - [Transport]: delivers one sealed buffer to the collection server
//   - [Logger]: structured logging abstraction
//   - [Metrics]: counters and gauges for the capture and upload paths
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them with zerolog, net/http,
// Prometheus and fsnotify.
package ports
