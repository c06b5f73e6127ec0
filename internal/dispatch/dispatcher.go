// Package dispatch runs chat events on a fixed pool of workers.
// Events of one chat always land on the same worker, so they are handled
// in arrival order; different chats proceed concurrently.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/finance-bot/internal/bot"
	"github.com/dvloznov/finance-bot/internal/logger"
	"github.com/google/uuid"
)

// ErrClosed is returned by Submit after Stop.
var ErrClosed = errors.New("dispatcher is closed")

// Default pool sizes.
const (
	DefaultWorkers = 8
	DefaultBuffer  = 64
)

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev bot.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev bot.Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev bot.Event) error { return f(ctx, ev) }

type delivery struct {
	id       string
	event    bot.Event
	queuedAt time.Time
}

// Stats counts handled events.
type Stats struct {
	Handled int
	Failed  int
	Dropped int
}

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	shards    []chan delivery
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	handler   Handler
	closed    bool
	started   bool

	statsMu sync.Mutex
	stats   Stats
}

// NewDispatcher creates a dispatcher with workers shards, each buffering up
// to buffer events before Submit blocks. Non-positive sizes use the defaults.
func NewDispatcher(workers, buffer int, handler Handler) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	shards := make([]chan delivery, workers)
	for i := range shards {
		shards[i] = make(chan delivery, buffer)
	}
	return &Dispatcher{
		shards:    shards,
		closeChan: make(chan struct{}),
		handler:   handler,
	}
}

// Workers returns the number of shards.
func (d *Dispatcher) Workers() int { return len(d.shards) }

func (d *Dispatcher) shardFor(chatID int64) int {
	n := int64(len(d.shards))
	idx := chatID % n
	if idx < 0 {
		idx += n
	}
	return int(idx)
}

// Submit queues ev on its chat's shard. It blocks while the shard is full
// and fails when ctx is done or the dispatcher is stopped. Stop waits for
// in-flight calls, so an accepted event is always seen by the drain.
func (d *Dispatcher) Submit(ctx context.Context, ev bot.Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	del := delivery{id: uuid.New().String(), event: ev, queuedAt: time.Now()}
	select {
	case d.shards[d.shardFor(ev.ChatID)] <- del:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitExpire queues an expiry check for chatID. It matches the submit
// callback of conversation.RunExpirySweeper.
func (d *Dispatcher) SubmitExpire(ctx context.Context, chatID int64) error {
	return d.Submit(ctx, bot.Event{ChatID: chatID, Expire: true})
}

// Start launches one worker per shard. Workers exit when ctx is done or
// the dispatcher is stopped.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.started {
		return fmt.Errorf("Start: dispatcher already started")
	}
	d.started = true

	for i, shard := range d.shards {
		d.wg.Add(1)
		go d.worker(ctx, i, shard)
	}
	log := logger.FromContext(ctx)
	log.Info().Int("workers", len(d.shards)).Msg("dispatcher started")
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, idx int, shard chan delivery) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.closeChan:
			d.drain(ctx, idx, shard)
			return
		case del := <-shard:
			d.process(ctx, idx, del)
		}
	}
}

// drain handles whatever was queued before Stop.
func (d *Dispatcher) drain(ctx context.Context, idx int, shard chan delivery) {
	for {
		select {
		case del := <-shard:
			if ctx.Err() != nil {
				d.count(func(s *Stats) { s.Dropped++ })
				continue
			}
			d.process(ctx, idx, del)
		default:
			return
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, idx int, del delivery) {
	log := logger.ForChat(ctx, del.event.ChatID).With().
		Str("delivery_id", del.id).
		Int("worker", idx).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("panic while handling event")
			d.count(func(s *Stats) { s.Failed++ })
		}
	}()

	start := time.Now()
	err := d.handler.Handle(logger.WithContext(ctx, log), del.event)
	if err != nil {
		log.Error().Err(err).Dur("duration", time.Since(start)).Msg("event handling failed")
		d.count(func(s *Stats) { s.Failed++ })
		return
	}
	log.Debug().
		Dur("queued", start.Sub(del.queuedAt)).
		Dur("duration", time.Since(start)).
		Msg("event handled")
	d.count(func(s *Stats) { s.Handled++ })
}

func (d *Dispatcher) count(update func(*Stats)) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	update(&d.stats)
}

// Stats returns a snapshot of the counters.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

// Stop rejects new events, lets the workers finish what is queued and waits
// for them or for ctx.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.closeChan)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the dispatcher without a deadline.
func (d *Dispatcher) Close() error {
	return d.Stop(context.Background())
}
