package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDisabledDispatcherIsNilAndSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatal("nil dispatcher must report zero counters")
	}
}

func TestCloseDrainsBufferedEvents(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "session_transition", Version: uint64(i)})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
	if d.Delivered() != 50 {
		t.Fatalf("expected delivered counter 50, got %d", d.Delivered())
	}

	d.Emit(context.Background(), Event{})
	if got := sink.count.Load(); got != 50 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDropIfFullCountsDrops(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event blocks in the sink, one fills the buffer, the rest drop.
	for i := 1; i <= 10; i++ {
		d.Emit(context.Background(), Event{InstanceID: "a", Version: uint64(i)})
	}
	close(sink.gate)
	d.Close()

	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a blocked sink")
	}
	if d.Dropped()+d.Delivered() != 10 {
		t.Fatalf("dropped %d + delivered %d != 10", d.Dropped(), d.Delivered())
	}
}

func TestDispatcherDiscardsStaleVersions(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	d.Emit(context.Background(), Event{InstanceID: "a", Version: 3})
	d.Emit(context.Background(), Event{InstanceID: "a", Version: 2})
	d.Emit(context.Background(), Event{InstanceID: "a", Version: 3})
	d.Emit(context.Background(), Event{InstanceID: "b", Version: 1})
	d.Emit(context.Background(), Event{InstanceID: "a", Version: 4})
	d.Close()

	var got []string
	for _, ev := range sink.all() {
		got = append(got, ev.InstanceID+":"+strconv.FormatUint(ev.Version, 10))
	}
	if strings.Join(got, ",") != "a:3,b:1,a:4" {
		t.Fatalf("unexpected delivery order %v", got)
	}
	if d.Stale() != 2 || d.Delivered() != 3 {
		t.Fatalf("expected 2 stale and 3 delivered, got %d and %d", d.Stale(), d.Delivered())
	}
}

func TestDispatcherMarksVersionGaps(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	d.Emit(context.Background(), Event{InstanceID: "a", Version: 1})
	d.Emit(context.Background(), Event{InstanceID: "a", Version: 2, Metadata: map[string]string{"k": "v"}})
	d.Emit(context.Background(), Event{InstanceID: "a", Version: 5, Metadata: map[string]string{"k": "v"}})
	d.Close()

	events := sink.all()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if _, ok := events[1].Metadata[MetaMissedVersions]; ok {
		t.Fatal("consecutive versions must not be marked")
	}
	if got := events[2].Metadata[MetaMissedVersions]; got != "2" {
		t.Fatalf("expected 2 missed versions, got %q", got)
	}
	if events[2].Metadata["k"] != "v" {
		t.Fatal("existing metadata must be kept")
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "session_transition", From: "anonymous", To: "authenticating"})
	sink.Emit(context.Background(), Event{EventType: "session_transition", From: "authenticating", To: "authenticated"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.To != "authenticated" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
