// Package log provides the structured logging facade used across ordernotify.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. It is backed by log/slog through a
// bridge handler that keeps our formatter/outputs pipeline, key redaction and
// sampling in one place.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("push"), log.Tenant("acme"))
//	l.Info("dispatch finished", log.Int("succeeded", 2), log.Int("failed", 1))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (text or json format,
// console/null/file outputs, redacted keys, sampling).
//
// # Interop
//
// RedirectStdLog routes the standard library logger through a Logger so that
// third-party packages writing to log.Printf end up in the same stream.
package log
