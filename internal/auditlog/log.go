package auditlog

import "context"

// Log is the append-only audit chain. MemoryLog and PostgresLog implement it.
type Log interface {
	// Append chains a new entry. payload is JSON encoded and only its hash is kept.
	Append(ctx context.Context, subject, action, actor string, payload any) (*Entry, error)

	// Get returns the entry at index.
	Get(ctx context.Context, index int) (*Entry, error)

	// Range returns up to limit entries starting at index from.
	Range(ctx context.Context, from, limit int) ([]*Entry, error)

	// Len counts entries, genesis included.
	Len(ctx context.Context) (int, error)

	// Verify walks the chain and returns a *BrokenChainError at the first bad link.
	Verify(ctx context.Context) error

	// Root returns the hash of the chain tip.
	Root(ctx context.Context) (string, error)
}
