// Package logging provides structured logging for Crossing Core.
//
// It wraps log/slog with:
//   - JSON or text output selected by configuration
//   - Level-based filtering (debug, info, warn, error)
//   - Default service/version attributes on every record
//   - A Default() logger for use before configuration is loaded
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("signal changed", "signal", "light-a", "phase", "green")
package logging
