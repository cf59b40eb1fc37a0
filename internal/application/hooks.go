package application

import (
	"context"
	"log/slog"
	"time"
)

// Change describes a document written by a service.
type Change struct {
	Collection string
	DocumentID string
	Operation  string
}

// ChangeNotifier is told about committed writes so other consoles can
// refresh their snapshots.
type ChangeNotifier interface {
	NotifyChange(ctx context.Context, change Change) error
}

// MetricsRecorder observes the outcome of service operations. Outcome is
// "success" or an ErrorKind label.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation, outcome string, duration time.Duration)
}

// Hooks bundles the optional collaborators shared by the services.
type Hooks struct {
	Notifier ChangeNotifier
	Metrics  MetricsRecorder
}

func (h Hooks) observe(ctx context.Context, operation string, started time.Time, err error) {
	if h.Metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = ErrorKind(err)
	}
	h.Metrics.Observe(ctx, operation, outcome, time.Since(started))
}

// notify publishes changes after a commit. A failed notification does not
// undo the write; it is logged and the other consoles catch up on their next
// refresh.
func (h Hooks) notify(ctx context.Context, logger *slog.Logger, changes ...Change) {
	if h.Notifier == nil {
		return
	}
	for _, change := range changes {
		if err := h.Notifier.NotifyChange(ctx, change); err != nil {
			logger.WarnContext(ctx, "change notification failed",
				"collection", change.Collection,
				"document_id", change.DocumentID,
				"error", err,
			)
		}
	}
}
