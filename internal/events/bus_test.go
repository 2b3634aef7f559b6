package events

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func meta(run string) Meta {
	return Meta{RunID: run, At: time.Now()}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewWithLogger(testLogger())
	var got []Event

	bus.Subscribe(func(e Event) { got = append(got, e) })

	bus.Publish(Started{Meta: meta("r1"), Argv: []string{"ffmpeg"}})
	bus.Publish(Completed{Meta: meta("r1")})

	if len(got) != 2 {
		t.Fatalf("expected 2 events delivered before Publish returned, got %d", len(got))
	}
	if got[0].Type() != TypeStarted || got[1].Type() != TypeCompleted {
		t.Errorf("unexpected order: %T, %T", got[0], got[1])
	}
	if got[0].Run() != "r1" {
		t.Errorf("Run() = %q, want r1", got[0].Run())
	}
}

func TestBus_OrderAcrossSubscribers(t *testing.T) {
	bus := NewWithLogger(testLogger())
	var trace []string

	bus.Subscribe(func(e Event) { trace = append(trace, "a:"+e.(DiagnosticLine).Text) })
	bus.Subscribe(func(e Event) { trace = append(trace, "b:"+e.(DiagnosticLine).Text) })

	bus.Publish(DiagnosticLine{Text: "1"})
	bus.Publish(DiagnosticLine{Text: "2"})

	want := []string{"a:1", "b:1", "a:2", "b:2"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, trace[i], want[i])
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewWithLogger(testLogger())
	count := 0

	id := bus.Subscribe(func(Event) { count++ })
	bus.Publish(Completed{})

	if !bus.Unsubscribe(id) {
		t.Fatal("Unsubscribe returned false for a registered handler")
	}
	if bus.Unsubscribe(id) {
		t.Error("second Unsubscribe returned true")
	}

	bus.Publish(Completed{})
	if count != 1 {
		t.Errorf("handler called %d times, want 1", count)
	}
	if bus.Len() != 0 {
		t.Errorf("Len() = %d, want 0", bus.Len())
	}
}

func TestBus_PanicIsolated(t *testing.T) {
	bus := NewWithLogger(testLogger())
	received := 0

	bus.Subscribe(func(Event) { panic("observer bug") })
	bus.Subscribe(func(Event) { received++ })

	bus.Publish(Terminated{})
	bus.Publish(Terminated{})

	if received != 2 {
		t.Errorf("second observer received %d events, want 2", received)
	}
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	bus := NewWithLogger(testLogger())
	var late []Event
	added := false

	bus.Subscribe(func(Event) {
		if !added {
			added = true
			bus.Subscribe(func(e Event) { late = append(late, e) })
		}
	})

	bus.Publish(DiagnosticLine{Text: "first"})
	if len(late) != 0 {
		t.Fatalf("handler added during publish received the in-flight event")
	}

	bus.Publish(DiagnosticLine{Text: "second"})
	if len(late) != 1 || late[0].(DiagnosticLine).Text != "second" {
		t.Errorf("late subscriber got %v, want the second event", late)
	}
}

func TestBus_ConcurrentSubscribe(t *testing.T) {
	bus := NewWithLogger(testLogger())
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				bus.Publish(DiagnosticLine{Text: "x"})
			}
		}
	}()

	for i := 0; i < 100; i++ {
		id := bus.Subscribe(func(Event) {})
		bus.Unsubscribe(id)
	}
	close(stop)
	wg.Wait()

	if bus.Len() != 0 {
		t.Errorf("Len() = %d, want 0", bus.Len())
	}
}

func TestOn_FiltersByType(t *testing.T) {
	bus := NewWithLogger(testLogger())
	var progress []Progress

	On(bus, func(e Progress) { progress = append(progress, e) })

	bus.Publish(DiagnosticLine{Text: "frame=1"})
	bus.Publish(Progress{Meta: meta("r")})
	bus.Publish(Completed{})

	if len(progress) != 1 {
		t.Errorf("typed handler received %d events, want 1", len(progress))
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		ev   Event
		want bool
	}{
		{Started{}, false},
		{DiagnosticLine{}, false},
		{Progress{}, false},
		{Failed{}, true},
		{Completed{}, true},
		{Terminated{}, true},
	}
	for _, tt := range tests {
		if got := IsTerminal(tt.ev); got != tt.want {
			t.Errorf("IsTerminal(%T) = %v, want %v", tt.ev, got, tt.want)
		}
	}
}

func TestFailedReason(t *testing.T) {
	if got := (Failed{ExitCode: 1}).Reason(); got != "exit code 1" {
		t.Errorf("Reason() = %q", got)
	}
	if got := (Failed{ExitCode: 1, Detail: "Conversion failed!"}).Reason(); got != "exit code 1: Conversion failed!" {
		t.Errorf("Reason() = %q", got)
	}
	if got := (Failed{Err: io.ErrUnexpectedEOF}).Reason(); got != "spawn error: unexpected EOF" {
		t.Errorf("Reason() = %q", got)
	}
}
