package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/models"
)

// Broker fans job-change notifications out to stream subscribers.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[chan struct{}]struct{}
	logger zerolog.Logger
}

func NewBroker(logger zerolog.Logger) *Broker {
	return &Broker{
		subs:   make(map[string]map[chan struct{}]struct{}),
		logger: logger.With().Str("component", "progress-broker").Logger(),
	}
}

func (b *Broker) Subscribe(jobID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	set, ok := b.subs[jobID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.subs[jobID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[jobID], ch)
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
		})
	}
}

// Publish wakes every subscriber of jobID without blocking.
func (b *Broker) Publish(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[jobID] {
		signal(ch)
	}
}

// PublishAll wakes every subscriber, used after missed notifications.
func (b *Broker) PublishAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, set := range b.subs {
		for ch := range set {
			signal(ch)
		}
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Listen relays Postgres NOTIFY messages on the job progress channel into the
// broker until ctx is done.
func (b *Broker) Listen(ctx context.Context, dsn string) error {
	listener := pq.NewListener(dsn, 200*time.Millisecond, 10*time.Second, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			b.logger.Warn().Err(err).Int("event", int(ev)).Msg("listener event")
		}
	})
	defer listener.Close()

	if err := listener.Listen(models.JobProgressChannel); err != nil {
		return fmt.Errorf("listen %s: %w", models.JobProgressChannel, err)
	}
	b.logger.Info().Str("channel", models.JobProgressChannel).Msg("listening for job progress")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; anything may have changed meanwhile.
			if n == nil {
				b.PublishAll()
				continue
			}
			b.Publish(n.Extra)
		case <-time.After(90 * time.Second):
			go func() { _ = listener.Ping() }()
		}
	}
}
