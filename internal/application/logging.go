package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/camp-logistics/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// logOutcome writes the final log line of an operation. Business rule
// rejections are expected during normal use and log at warn level.
func logOutcome(ctx context.Context, logger *slog.Logger, err error, failure, success string) {
	if err == nil {
		logger.InfoContext(ctx, success)
		return
	}
	kind := ErrorKind(err)
	switch kind {
	case "persistence", "unexpected":
		logger.ErrorContext(ctx, failure, "error", err, "error_kind", kind)
	default:
		logger.WarnContext(ctx, failure, "error", err, "error_kind", kind)
	}
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRoomFull):
		return "capacity_exceeded"
	case errors.Is(err, ErrGenderMismatch):
		return "policy_violation"
	case errors.Is(err, ErrIndexOutOfRange):
		return "index_out_of_range"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
