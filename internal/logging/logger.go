// Package logging defines the minimal structured-logging interface injected
// throughout the engine. Implementations wrap slog; nothing in the project
// logs through a package-level logger.
package logging

import "context"

// Logger is a context-aware, structured logger. The variadic args are
// key-value pairs:
//
//	log.Info(ctx, "window sync complete", "kind", kind, "created", n)
type Logger interface {
	// Debug logs fine-grained diagnostics (per-page, per-record detail).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}
