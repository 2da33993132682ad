package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	// QueueSize is the number of pending messages kept before new ones are dropped
	QueueSize int
	// SendTimeout bounds a single delivery
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Dispatcher queues messages and delivers them on a background goroutine.
// Emit never blocks and never fails.
type Dispatcher struct {
	sink    Sink
	queue   chan string
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher delivering to sink
func NewDispatcher(sink Sink, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		sink:    sink,
		queue:   make(chan string, cfg.QueueSize),
		timeout: cfg.SendTimeout,
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Emit queues text for delivery, dropping it when the queue is full or closed
func (d *Dispatcher) Emit(text string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return
	}
	select {
	case d.queue <- text:
	default:
		d.logger.Warn("notification queue full, dropping message")
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for text := range d.queue {
		d.deliver(text)
	}
}

func (d *Dispatcher) deliver(text string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sink panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Send(ctx, text); err != nil {
		d.logger.Warn("notification failed", "error", err)
	}
}

// Close stops accepting messages and waits for queued ones until ctx is done
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
