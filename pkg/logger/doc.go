// Package logger provides the structured logging interface used across talksync.
//
// It wraps zerolog and adds:
//   - a colored console format for interactive runs
//   - an append-only daily file "<dir>/<yyyyMMdd>_<tag>log.log" receiving every event
//   - an append-only "<dir>/<tag>Error.log" receiving error-level events only
//   - a TestLogger that captures messages for assertions
//
// Basic Usage:
//
//	cfg := &config.LoggingConfig{Level: "info", Dir: "log", Tag: "talksync"}
//	if err := logger.Initialize(cfg); err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.GetLogger().WithField("run_id", logger.NewRunID())
//	log.WithField("group", "nogi").Info("Access token acquired")
package logger
