package live

import (
	"context"
	"log/slog"
	"time"
)

// ChangeClock reports the time of the most recent committed write.
type ChangeClock interface {
	LastChange(ctx context.Context) (time.Time, error)
}

// Poller is the fallback for consoles without Redis: it watches the store's
// change clock and fires the handler when it advances.
type Poller struct {
	clock    ChangeClock
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller constructs a poller. Intervals below one second are raised to one second.
func NewPoller(clock ChangeClock, interval time.Duration, logger *slog.Logger) *Poller {
	if interval < time.Second {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{clock: clock, interval: interval, logger: logger}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context, handle Handler) error {
	last, err := p.clock.LastChange(ctx)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			last = p.poll(ctx, last, handle)
		}
	}
}

func (p *Poller) poll(ctx context.Context, last time.Time, handle Handler) time.Time {
	current, err := p.clock.LastChange(ctx)
	if err != nil {
		p.logger.WarnContext(ctx, "failed to read change clock", "error", err)
		return last
	}
	if !current.After(last) {
		return last
	}
	if err := handle(ctx, Change{Collection: "*", At: current}); err != nil {
		p.logger.ErrorContext(ctx, "change handler failed", "error", err)
	}
	return current
}
