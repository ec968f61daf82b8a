package audit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// MetaMissedVersions is set on an event that follows a gap in its instance's
// version sequence, usually because the events in between were dropped.
const MetaMissedVersions = "missed_versions"

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher forwards transition events to a sink on its own goroutine, in
// version order per store instance. Events at or below the last version
// delivered for their instance are discarded as stale.
type Dispatcher struct {
	cfg  Config
	sink Sink

	// mu guards closing queue against concurrent sends.
	mu     sync.RWMutex
	queue  chan Event
	closed bool
	wg     sync.WaitGroup

	last map[string]uint64

	dropped   atomic.Uint64
	stale     atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher starts a dispatcher goroutine. It returns nil when cfg is
// disabled; a nil *Dispatcher is safe to use and discards everything.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, max(cfg.BufferSize, 1)),
		last:  make(map[string]uint64),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for event := range d.queue {
			d.deliver(event)
		}
	}()
	return d
}

func (d *Dispatcher) deliver(event Event) {
	last, seen := d.last[event.InstanceID]
	if seen && event.Version <= last {
		d.stale.Add(1)
		return
	}
	if seen && event.Version > last+1 {
		meta := make(map[string]string, len(event.Metadata)+1)
		for k, v := range event.Metadata {
			meta[k] = v
		}
		meta[MetaMissedVersions] = strconv.FormatUint(event.Version-last-1, 10)
		event.Metadata = meta
	}
	d.last[event.InstanceID] = event.Version

	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull a full buffer drops the event and bumps
// the dropped counter; otherwise Emit waits for room or for ctx to end.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops accepting events, delivers what is buffered and waits for the
// dispatcher goroutine to exit.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Dropped returns the number of events lost to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stale returns the number of events discarded for arriving behind a newer
// version of the same instance.
func (d *Dispatcher) Stale() uint64 {
	if d == nil {
		return 0
	}
	return d.stale.Load()
}

// Delivered returns the number of events handed to the sink.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
