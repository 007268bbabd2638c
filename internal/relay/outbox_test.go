package relay

import (
	"testing"
	"time"
)

// nextWithin waits up to d for the next outbox message.
func nextWithin(t *testing.T, o *Outbox, d time.Duration) ([]byte, bool) {
	t.Helper()
	type result struct {
		msg []byte
		ok  bool
	}
	ch := make(chan result, 1)
	go func() {
		msg, ok := o.Next()
		ch <- result{msg, ok}
	}()
	select {
	case r := <-ch:
		return r.msg, r.ok
	case <-time.After(d):
		t.Fatalf("no message within %v", d)
		return nil, false
	}
}

func TestOutboxFIFO(t *testing.T) {
	o := NewOutbox()
	for _, m := range []string{"a", "b", "c"} {
		if !o.Send([]byte(m)) {
			t.Fatalf("Send(%q) = false", m)
		}
	}
	if o.Len() != 3 {
		t.Errorf("Len() = %d, want 3", o.Len())
	}

	for _, want := range []string{"a", "b", "c"} {
		msg, ok := nextWithin(t, o, time.Second)
		if !ok || string(msg) != want {
			t.Errorf("Next() = %q, %v; want %q", msg, ok, want)
		}
	}
}

func TestOutboxNextWaitsForSend(t *testing.T) {
	o := NewOutbox()
	go func() {
		time.Sleep(20 * time.Millisecond)
		o.Send([]byte("late"))
	}()

	msg, ok := nextWithin(t, o, time.Second)
	if !ok || string(msg) != "late" {
		t.Errorf("Next() = %q, %v; want late", msg, ok)
	}
}

func TestOutboxClose(t *testing.T) {
	o := NewOutbox()
	o.Send([]byte("pending"))

	done := make(chan struct{})
	go func() {
		o.Close()
		o.Close()
		close(done)
	}()
	<-done

	if !o.Closed() {
		t.Error("Closed() = false after Close")
	}
	if o.Send([]byte("x")) {
		t.Error("Send() after Close should return false")
	}
	if _, ok := nextWithin(t, o, time.Second); ok {
		t.Error("Next() after Close should report closed")
	}
	select {
	case <-o.Done():
	default:
		t.Error("Done() should be closed")
	}
}

func TestOutboxCloseWakesWriter(t *testing.T) {
	o := NewOutbox()
	go func() {
		time.Sleep(20 * time.Millisecond)
		o.Close()
	}()
	if _, ok := nextWithin(t, o, time.Second); ok {
		t.Error("Next() should return false when closed while waiting")
	}
}
