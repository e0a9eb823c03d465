package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store is the owned, concurrency-safe pending record set.
// Construct one per process with NewStore and share it by reference.
type Store struct {
	mu       sync.Mutex
	records  []Record
	inflight map[string]struct{}

	persister Persister
	logger    *zap.Logger
	now       func() time.Time
	recover   bool
	observer  func([]Record)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRecoverProcessing controls whether records left in the processing
// state by a previous process are reset to pending on load. Enabled by default.
func WithRecoverProcessing(enabled bool) Option {
	return func(s *Store) { s.recover = enabled }
}

// WithObserver registers fn to receive a snapshot after every mutation.
// fn runs with the store lock held and must not call back into the Store.
func WithObserver(fn func([]Record)) Option {
	return func(s *Store) { s.observer = fn }
}

// NewStore loads the slot once through p and returns the owning Store.
// A load failure is logged and yields an empty store.
func NewStore(ctx context.Context, p Persister, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		inflight:  make(map[string]struct{}),
		persister: p,
		logger:    logger,
		now:       time.Now,
		recover:   true,
	}
	for _, opt := range opts {
		opt(s)
	}

	records, err := p.Load(ctx)
	if err != nil {
		logger.Error("load pending certificates", zap.Error(err))
		records = nil
	}
	s.records = records

	if s.recover {
		var reverted int
		for i := range s.records {
			if s.records[i].Status == StatusProcessing {
				s.records[i].Status = StatusPending
				reverted++
			}
		}
		if reverted > 0 {
			logger.Warn("reverted interrupted approvals to pending", zap.Int("count", reverted))
			s.persistLocked(ctx)
		}
	}
	s.notifyLocked()
	return s
}

// List returns a snapshot of all records in insertion order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of queued records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record with the given content address.
func (s *Store) Get(cid string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.ContentAddress == cid {
			return r, true
		}
	}
	return Record{}, false
}

// FindByIC returns the record queued for the given IC.
func (s *Store) FindByIC(ic string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.IC == ic {
			return r, true
		}
	}
	return Record{}, false
}

// Add appends a pending record stamped with the current time.
// It returns ErrDuplicate when the content address or the IC is already queued.
func (s *Store) Add(ctx context.Context, ic, cid, submitter string) (Record, error) {
	if ic == "" || cid == "" {
		return Record{}, fmt.Errorf("add pending certificate: ic and cid are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.records {
		if r.ContentAddress == cid {
			return Record{}, fmt.Errorf("%w: cid %s", ErrDuplicate, cid)
		}
		if r.IC == ic {
			return Record{}, fmt.Errorf("%w: ic %s", ErrDuplicate, ic)
		}
	}

	rec := Record{
		IC:               ic,
		ContentAddress:   cid,
		SubmitterAddress: submitter,
		CreatedAt:        s.now().UnixMilli(),
		Status:           StatusPending,
	}
	s.records = append(s.records, rec)
	s.persistLocked(ctx)
	s.notifyLocked()
	return rec, nil
}

// Remove deletes every record with the given content address and returns
// how many were removed. Removing an absent address is a no-op.
func (s *Store) Remove(ctx context.Context, cid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, r := range s.records {
		if r.ContentAddress != cid {
			kept = append(kept, r)
		}
	}
	removed := len(s.records) - len(kept)
	// zero the tail so dropped records do not linger in the backing array
	for i := len(kept); i < len(s.records); i++ {
		s.records[i] = Record{}
	}
	s.records = kept

	if removed > 0 {
		s.persistLocked(ctx)
		s.notifyLocked()
	}
	return removed
}

// UpdateStatus sets the status of the record with the given content address.
// It returns ErrNotFound, leaving the set unchanged, when no record matches.
func (s *Store) UpdateStatus(ctx context.Context, cid string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ContentAddress == cid {
			s.records[i].Status = status
			s.persistLocked(ctx)
			s.notifyLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, cid)
}

// Acquire takes the in-flight lease for cid. The returned release func is
// safe to call more than once. ErrInFlight means another approval holds it.
func (s *Store) Acquire(cid string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[cid]; busy {
		return nil, fmt.Errorf("%w: %s", ErrInFlight, cid)
	}
	s.inflight[cid] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.inflight, cid)
			s.mu.Unlock()
		})
	}, nil
}

// InFlight reports whether an approval currently holds the lease for cid.
func (s *Store) InFlight(cid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.inflight[cid]
	return busy
}

func (s *Store) snapshotLocked() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// persistLocked writes the full set. Failures are logged only; the caller's
// cancellation does not abort the write.
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.persister.SaveAll(context.WithoutCancel(ctx), s.snapshotLocked()); err != nil {
		s.logger.Error("persist pending certificates",
			zap.Int("records", len(s.records)),
			zap.Error(err),
		)
	}
}

func (s *Store) notifyLocked() {
	if s.observer != nil {
		s.observer(s.snapshotLocked())
	}
}
