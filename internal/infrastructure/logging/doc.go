// Package logging provides structured logging for the IoT core.
//
// It wraps log/slog so every record carries the service name and build
// version. Components derive child loggers with Component:
//
//	logger := logging.New(cfg.Logging, version)
//	engineLog := logger.Component("action")
//	engineLog.Info("device action executed", "device_id", id)
//
// Never log secrets such as the JWT secret or broker password.
package logging
