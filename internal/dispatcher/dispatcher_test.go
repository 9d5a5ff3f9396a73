package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	called := false
	d.Register(":TEST:", func(e Event) error {
		called = true
		return nil
	})

	err := d.Dispatch(Event{Name: ":TEST:", Payload: 42})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
}

func TestDispatcher_UnknownEvent(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Dispatch(Event{Name: ":NOPE:"})
	if err == nil {
		t.Error("expected error for unknown event")
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register(":TEST:", func(e Event) error { return nil })

	if !d.HasHandler(":TEST:") {
		t.Error("expected handler to be registered")
	}
	if d.HasHandler(":OTHER:") {
		t.Error("did not expect handler for :OTHER:")
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int64
	d.Register(":BUF:", func(e Event) error {
		processed.Add(1)
		return nil
	}, Buffered(100))

	for i := 0; i < 50; i++ {
		if err := d.Dispatch(Event{Name: ":BUF:", Payload: i}); err != nil {
			t.Fatalf("dispatch %d failed: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for processed.Load() < 50 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if processed.Load() != 50 {
		t.Errorf("expected 50 processed events, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedHandler_DropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	d.Register(":SLOW:", func(e Event) error {
		<-block
		return nil
	}, Buffered(1))

	// first fills the worker, second fills the buffer; later sends may drop
	var dropErr error
	for i := 0; i < 10; i++ {
		if err := d.Dispatch(Event{Name: ":SLOW:"}); err != nil {
			dropErr = err
			break
		}
	}
	close(block)

	if dropErr == nil {
		t.Error("expected a queue full error")
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":LOG:", func(e Event) error {
		return errors.New("boom")
	}, Logged())

	_ = d.Dispatch(Event{Name: ":LOG:"})

	if logger.count() == 0 {
		t.Error("expected log output from logged handler")
	}
}
