// Package dispatch hands ticket events to the workflow layer after ingestion
// commits. Delivery is asynchronous over a bounded queue so a slow workflow
// never blocks a webhook response.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flowforge-ai/flowforge/internal/provider"
)

// Event is one committed ticket change handed to the workflow layer.
type Event struct {
	ID         string
	ProjectID  string
	TicketID   int64
	ReceivedAt time.Time
	Webhook    provider.TicketWebhookEvent
}

// Handler processes a dispatched event.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher accepts committed events for asynchronous processing.
type Dispatcher interface {
	Dispatch(ev Event) error
}

// Queue is a bounded worker-pool dispatcher.
type Queue struct {
	queue   chan Event
	workers int
	handler Handler
	logger  zerolog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

// Config holds queue sizing.
type Config struct {
	Workers   int
	QueueSize int
}

// NewQueue creates a dispatcher with the given handler.
func NewQueue(cfg Config, handler Handler, logger zerolog.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Queue{
		queue:   make(chan Event, cfg.QueueSize),
		workers: cfg.Workers,
		handler: handler,
		logger:  logger.With().Str("component", "dispatch").Logger(),
	}
}

// Start launches worker goroutines.
func (q *Queue) Start(ctx context.Context) {
	if q.running.Swap(true) {
		return // already running
	}
	ctx, q.cancel = context.WithCancel(ctx)

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.logger.Info().Int("workers", q.workers).Msg("dispatch queue started")
}

// Stop cancels workers and waits for in-flight events to finish.
func (q *Queue) Stop() {
	if !q.running.Swap(false) {
		return
	}
	q.cancel()
	q.wg.Wait()
	q.logger.Info().Msg("dispatch queue stopped")
}

// Dispatch enqueues an event. A full queue is an error the caller reports;
// the committed ticket state is unaffected either way.
func (q *Queue) Dispatch(ev Event) error {
	if !q.running.Load() {
		return fmt.Errorf("dispatcher is not running")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	select {
	case q.queue <- ev:
		return nil
	default:
		return fmt.Errorf("dispatch queue is full (%d pending)", len(q.queue))
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.queue:
			q.process(ctx, ev)
		}
	}
}

func (q *Queue) process(ctx context.Context, ev Event) {
	start := time.Now()
	err := q.handler(ctx, ev)
	log := q.logger.With().
		Str("event_id", ev.ID).
		Str("project", ev.ProjectID).
		Str("external_key", ev.Webhook.ExternalKey).
		Dur("elapsed", time.Since(start)).
		Logger()
	if err != nil {
		log.Error().Err(err).Msg("event handler failed")
		return
	}
	log.Debug().Msg("event handled")
}

// Noop discards all events. Used when no workflow layer is attached.
type Noop struct{}

// Dispatch implements Dispatcher.
func (Noop) Dispatch(Event) error { return nil }
