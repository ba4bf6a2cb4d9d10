// Package logger provides structured logging for the publisher.
//
// It wraps the zerolog library behind a small Logger interface with
// field chaining (WithField/WithFields/WithError), level methods, and a
// global instance initialized from config. A TestLogger implementation
// captures messages for assertions in tests.
package logger
