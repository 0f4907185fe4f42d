package logging

import "log/slog"

// Field names shared across the codebase so run logs stay greppable.
const (
	FieldRunID     = "run_id"
	FieldIteration = "iteration"
	FieldPostKey   = "post_key"
	FieldActorID   = "actor_id"
	FieldStatus    = "status"
	FieldError     = "error"
)

// Error wraps an error value in the conventional attribute.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// String mirrors slog.String, kept for call-site symmetry with Error.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int mirrors slog.Int.
func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}
