// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sendTimeout bounds a single delivery attempt.
const sendTimeout = 30 * time.Second

// Dispatcher delivers messages in the background through a buffered queue.
// Delivery failures are logged and never retried.
type Dispatcher struct {
	sender  Sender
	queue   chan Message
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker count and queue size.
func NewDispatcher(sender Sender, workers, buffer int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Message, buffer),
		workers: workers,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	for range d.workers {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.sender.Send(ctx, msg); err != nil {
			slog.Error("email_send_failed", "to", msg.To, "subject", msg.Subject, "error", err)
		}
		cancel()
	}
}

// Enqueue hands a message to the workers without blocking. It reports false
// when the queue is full or the dispatcher is closed; the message is dropped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		slog.Warn("email_dropped", "to", msg.To, "reason", "dispatcher_closed")
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		slog.Warn("email_dropped", "to", msg.To, "reason", "queue_full")
		return false
	}
}

// Close stops accepting messages and waits until the queued ones are delivered
// or ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
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
