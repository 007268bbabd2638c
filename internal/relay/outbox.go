package relay

import (
	"sync"

	"github.com/eapache/queue"
)

// Outbox is the outbound mailbox of one relay connection. Messages are
// delivered in insertion order by the connection's writer goroutine.
// Once closed, Send reports false and pending messages are discarded.
type Outbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	closed bool

	signal chan struct{}
	done   chan struct{}
}

// NewOutbox creates an open, empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{
		q:      queue.New(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Send queues msg. It never blocks and returns false if the outbox is closed.
func (o *Outbox) Send(msg []byte) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.q.Add(msg)
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
	return true
}

// Next blocks until a message is available or the outbox is closed. The
// second result is false once the outbox is closed.
func (o *Outbox) Next() ([]byte, bool) {
	for {
		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return nil, false
		}
		if o.q.Length() > 0 {
			msg := o.q.Remove().([]byte)
			o.mu.Unlock()
			return msg, true
		}
		o.mu.Unlock()

		select {
		case <-o.signal:
		case <-o.done:
		}
	}
}

// Len returns the number of queued messages.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.q.Length()
}

// Close marks the outbox closed and wakes the writer. It is idempotent.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for o.q.Length() > 0 {
		o.q.Remove()
	}
	close(o.done)
}

// Done is closed when the outbox is closed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Closed reports whether Close has been called.
func (o *Outbox) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
