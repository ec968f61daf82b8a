package session

import (
	"context"
	"errors"
	"sync"
)

// ErrPersistenceUnavailable wraps backend failures (I/O, network).
var ErrPersistenceUnavailable = errors.New("session persistence unavailable")

// Persistence stores at most one [Record] for the running process.
//
// Load returns (nil, nil) when nothing is stored. Clear on an empty backend is
// not an error.
type Persistence interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}

// MemoryPersistence keeps the encoded record in memory. It is useful for tests
// and for hosts that must not write credentials to disk.
type MemoryPersistence struct {
	mu   sync.Mutex
	blob []byte
}

// NewMemoryPersistence returns an empty in-memory backend.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{}
}

func (m *MemoryPersistence) Load(context.Context) (*Record, error) {
	m.mu.Lock()
	blob := m.blob
	m.mu.Unlock()

	if blob == nil {
		return nil, nil
	}
	return Decode(blob)
}

func (m *MemoryPersistence) Save(_ context.Context, rec Record) error {
	blob, err := Encode(rec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.blob = blob
	m.mu.Unlock()
	return nil
}

func (m *MemoryPersistence) Clear(context.Context) error {
	m.mu.Lock()
	m.blob = nil
	m.mu.Unlock()
	return nil
}

// NopPersistence never stores anything. Hydration always resolves anonymous.
type NopPersistence struct{}

func (NopPersistence) Load(context.Context) (*Record, error) { return nil, nil }
func (NopPersistence) Save(context.Context, Record) error    { return nil }
func (NopPersistence) Clear(context.Context) error           { return nil }
