// Package live propagates committed writes between console instances over
// Redis pub/sub so every console can refresh its attendee snapshot.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/example/camp-logistics/internal/application"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "camp:changes"

// Change is the wire form of a committed write.
type Change struct {
	ID         string    `json:"id"`
	Collection string    `json:"collection"`
	DocID      string    `json:"docId"`
	Operation  string    `json:"operation,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	At         time.Time `json:"at"`
}

// NewClient opens a Redis client for the given address.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
}

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher implements application.ChangeNotifier on a Redis channel.
type Publisher struct {
	client  publishClient
	channel string
	origin  string
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) PublisherOption {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator overrides the change id source.
func WithIDGenerator(gen func() string) PublisherOption {
	return func(p *Publisher) {
		if gen != nil {
			p.newID = gen
		}
	}
}

// WithOrigin tags published changes with the publishing console's name.
func WithOrigin(origin string) PublisherOption {
	return func(p *Publisher) {
		p.origin = strings.TrimSpace(origin)
	}
}

// NewPublisher constructs a publisher on the channel.
func NewPublisher(client publishClient, channel string, logger *slog.Logger, opts ...PublisherOption) *Publisher {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		client:  client,
		channel: channel,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NotifyChange publishes the change as JSON.
func (p *Publisher) NotifyChange(ctx context.Context, change application.Change) error {
	if p == nil || p.client == nil {
		return errors.New("live: publisher not configured")
	}
	payload, err := json.Marshal(Change{
		ID:         p.newID(),
		Collection: change.Collection,
		DocID:      change.DocumentID,
		Operation:  change.Operation,
		Origin:     p.origin,
		At:         p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("live: encode change: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("live: publish: %w", err)
	}
	p.logger.DebugContext(ctx, "change published",
		"channel", p.channel,
		"collection", change.Collection,
		"document_id", change.DocumentID,
		"receivers", receivers,
	)
	return nil
}

// Handler reacts to a change received from another console.
type Handler func(ctx context.Context, change Change) error

// Subscriber listens for changes on a Redis channel.
type Subscriber struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewSubscriber constructs a subscriber on the channel.
func NewSubscriber(client *redis.Client, channel string, logger *slog.Logger) *Subscriber {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{client: client, channel: channel, logger: logger}
}

// Run subscribes and calls handle for every change until ctx is done.
func (s *Subscriber) Run(ctx context.Context, handle Handler) error {
	if s == nil || s.client == nil {
		return errors.New("live: subscriber not configured")
	}
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.logger.WarnContext(ctx, "failed to close subscription", "error", err)
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("live: subscribe %s: %w", s.channel, err)
	}
	s.logger.InfoContext(ctx, "subscribed to changes", "channel", s.channel)

	return consume(ctx, pubsub.Channel(), handle, s.logger)
}

// consume drains messages in arrival order. Malformed payloads and handler
// failures are logged and skipped.
func consume(ctx context.Context, messages <-chan *redis.Message, handle Handler, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				logger.WarnContext(ctx, "discarding malformed change", "channel", msg.Channel, "error", err)
				continue
			}
			if err := handle(ctx, change); err != nil {
				logger.ErrorContext(ctx, "change handler failed",
					"collection", change.Collection,
					"document_id", change.DocID,
					"error", err,
				)
			}
		}
	}
}

// RefreshOnChange returns a handler that reloads the whole attendee snapshot
// whenever another console writes anything.
func RefreshOnChange(directory *application.Directory) Handler {
	return func(ctx context.Context, change Change) error {
		return directory.Refresh(ctx)
	}
}
