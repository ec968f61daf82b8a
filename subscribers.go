package authguard

import (
	"bytes"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

type subscription struct {
	fn     func(Transition)
	active atomic.Bool
}

// subscribers delivers transitions in the order they were produced.
//
// entries is copy-on-write: a notification iterates the slice it read at the
// start, so listeners added meanwhile wait for the next transition. When a
// listener causes another transition, it is queued and delivered by the loop
// that is already running, after every listener saw the current one. Any
// other goroutine that finds the loop busy waits until its transitions were
// delivered.
type subscribers struct {
	logger *slog.Logger

	mu          sync.Mutex
	delivered   *sync.Cond
	entries     []*subscription
	queue       []Transition
	enqueued    uint64
	done        uint64
	dispatching bool
	owner       uint64
}

func (b *subscribers) add(fn func(Transition)) func() {
	sub := &subscription{fn: fn}
	sub.active.Store(true)

	b.mu.Lock()
	next := make([]*subscription, len(b.entries), len(b.entries)+1)
	copy(next, b.entries)
	b.entries = append(next, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.active.Store(false)

			b.mu.Lock()
			defer b.mu.Unlock()
			next := make([]*subscription, 0, len(b.entries))
			for _, e := range b.entries {
				if e != sub {
					next = append(next, e)
				}
			}
			b.entries = next
		})
	}
}

func (b *subscribers) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

func (b *subscribers) enqueue(t Transition) {
	b.mu.Lock()
	b.queue = append(b.queue, t)
	b.enqueued++
	b.mu.Unlock()
}

// drain delivers every transition queued so far before it returns. Called
// from a listener, it returns at once and the running loop delivers the new
// entries after the current one.
func (b *subscribers) drain() {
	gid := goroutineID()

	b.mu.Lock()
	if b.dispatching {
		if b.owner == gid {
			b.mu.Unlock()
			return
		}
		target := b.enqueued
		if b.delivered == nil {
			b.delivered = sync.NewCond(&b.mu)
		}
		for b.dispatching && b.done < target {
			b.delivered.Wait()
		}
		if b.done >= target {
			b.mu.Unlock()
			return
		}
	}
	b.dispatching = true
	b.owner = gid

	for len(b.queue) > 0 {
		t := b.queue[0]
		b.queue[0] = Transition{}
		b.queue = b.queue[1:]
		entries := b.entries
		b.mu.Unlock()

		for _, sub := range entries {
			if sub.active.Load() {
				b.invoke(sub, t)
			}
		}

		b.mu.Lock()
		b.done++
		if b.delivered != nil {
			b.delivered.Broadcast()
		}
	}

	b.queue = nil
	b.dispatching = false
	b.owner = 0
	if b.delivered != nil {
		b.delivered.Broadcast()
	}
	b.mu.Unlock()
}

// goroutineID reads the running goroutine's id from its stack header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i > 0 {
		field = field[:i]
	}
	id, _ := strconv.ParseUint(string(field), 10, 64)
	return id
}

func (b *subscribers) invoke(sub *subscription, t Transition) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("authguard: session listener panicked",
				slog.Any("panic", r),
				slog.String("to", t.To.Status.String()),
			)
		}
	}()
	sub.fn(t)
}

func (b *subscribers) reset() {
	b.mu.Lock()
	for _, e := range b.entries {
		e.active.Store(false)
	}
	b.entries = nil
	b.mu.Unlock()
}
