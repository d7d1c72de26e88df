package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultPoolSize = 1000
	defaultTimeout  = 30 * time.Second
)

type Event interface {
	Name() string
}

type Handler func(ctx context.Context, e Event) error

// subscription pairs a handler with its own dispatch pool, so a slow handler
// only blocks itself.
type subscription struct {
	handler Handler
	pool    chan struct{}
}

// Bus is an in-memory event bus. Handlers run asynchronously with panic
// recovery; each subscription has an isolated bounded pool.
type Bus struct {
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	handlers map[string][]*subscription
}

// NewBus creates a new event bus. Caller should call Stop for graceful shutdown of the bus.
func NewBus() *Bus {
	return &Bus{
		wg:       new(sync.WaitGroup),
		handlers: make(map[string][]*subscription),
	}
}

// Subscribe to an event by name.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[name] = append(b.handlers[name], &subscription{
		handler: h,
		pool:    make(chan struct{}, defaultPoolSize),
	})
}

// Publish an event to all subscribers.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.handlers[e.Name()] {
		b.dispatch(ctx, sub, e)
	}
}

func (b *Bus) dispatch(ctx context.Context, sub *subscription, e Event) {
	b.wg.Add(1)

	sub.pool <- struct{}{}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "event: handler panic",
					"event", e.Name(),
					"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
				)
			}

			cancel()
			<-sub.pool
			b.wg.Done()
		}()

		if err := sub.handler(ctx, e); err != nil {
			slog.ErrorContext(ctx, "event: handle event failed",
				"event", e.Name(),
				"error", err,
			)
		}
	}()
}

// Stop waits for all in-flight handlers to finish.
func (b *Bus) Stop() {
	b.wg.Wait()
}
