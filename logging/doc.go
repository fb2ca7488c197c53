// Package logging provides a minimal logging interface and adapters for lingua.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the engine, registry and remote clients use for
// observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - A colorized console handler for local development
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orch, err := lingua.New(p, func(o *lingua.Options) {
//		o.Logger = logger
//	})
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
