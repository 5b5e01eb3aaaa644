// Package logging provides structured logging for the index engine and its
// tools.
//
// # Overview
//
// Logger is a small key-value interface backed by zap's SugaredLogger:
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stderr",
//	})
//	logger.Info("tree loaded", "root", rid, "size", n)
//
// Use NewNop in tests that do not inspect output, and NewWithCore with a
// zaptest observer core in tests that do.
//
// # Log Levels
//
//   - debug: node loads, evictions, optimization passes, commits
//   - info:  lifecycle events (open, close, configuration reload)
//   - warn:  low-memory retries, recoverable iterator resyncs
//   - error: failed commits and corruption reports
package logging
