package pending

import (
	"context"
	"sync"
)

// Persister loads and stores the complete record set of one slot.
// SaveAll always receives the full set; implementations replace the slot
// wholesale.
type Persister interface {
	Load(ctx context.Context) ([]Record, error)
	SaveAll(ctx context.Context, records []Record) error
}

// MemoryPersister keeps the last saved set in memory.
type MemoryPersister struct {
	mu      sync.Mutex
	records []Record
	saves   int
	err     error
}

// NewMemoryPersister returns a MemoryPersister seeded with records.
func NewMemoryPersister(records ...Record) *MemoryPersister {
	return &MemoryPersister{records: append([]Record(nil), records...)}
}

// Load implements Persister.
func (m *MemoryPersister) Load(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]Record(nil), m.records...), nil
}

// SaveAll implements Persister.
func (m *MemoryPersister) SaveAll(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append([]Record(nil), records...)
	m.saves++
	return nil
}

// SetErr sets the error returned by subsequent calls.
func (m *MemoryPersister) SetErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Saves returns the number of successful SaveAll calls.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
