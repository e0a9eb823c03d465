package auditlog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLog is an in-process Log. Entries do not survive a restart.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []*Entry
	now     func() time.Time
}

// NewMemoryLog returns a MemoryLog holding only the genesis entry.
func NewMemoryLog() *MemoryLog {
	l := &MemoryLog{now: func() time.Time { return time.Now().UTC() }}
	l.entries = []*Entry{genesis(l.now())}
	return l
}

func (l *MemoryLog) Append(_ context.Context, subject, action, actor string, payload any) (*Entry, error) {
	hash, err := dataHash(payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	tip := l.entries[len(l.entries)-1]
	e := &Entry{
		Index:     tip.Index + 1,
		Timestamp: l.now(),
		Subject:   subject,
		Action:    action,
		Actor:     actor,
		DataHash:  hash,
		PrevHash:  tip.Hash,
	}
	e.Hash = hashEntry(e)
	l.entries = append(l.entries, e)
	return e, nil
}

func (l *MemoryLog) Get(_ context.Context, index int) (*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return nil, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	e := *l.entries[index]
	return &e, nil
}

func (l *MemoryLog) Range(_ context.Context, from, limit int) ([]*Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if from < 0 {
		from = 0
	}
	out := []*Entry{}
	for i := from; i < len(l.entries) && len(out) < limit; i++ {
		e := *l.entries[i]
		out = append(out, &e)
	}
	return out, nil
}

func (l *MemoryLog) Len(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}

func (l *MemoryLog) Verify(context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var prev *Entry
	for _, curr := range l.entries {
		if err := link(prev, curr); err != nil {
			return err
		}
		prev = curr
	}
	return nil
}

func (l *MemoryLog) Root(context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[len(l.entries)-1].Hash, nil
}
