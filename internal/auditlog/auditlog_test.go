package auditlog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/deathcert/registry/internal/auditlog"
)

var ctx = context.Background()

func TestNewMemoryLog_genesisOnly(t *testing.T) {
	l := auditlog.NewMemoryLog()

	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
	e, err := l.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if e.Action != auditlog.ActionGenesis || e.Hash != auditlog.GenesisHash {
		t.Errorf("genesis = %+v", e)
	}
	root, _ := l.Root(ctx)
	if root != auditlog.GenesisHash {
		t.Errorf("Root() = %q, want GenesisHash", root)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify() on genesis-only chain: %v", err)
	}
}

func TestAppend_chains(t *testing.T) {
	l := auditlog.NewMemoryLog()

	e1, err := l.Append(ctx, "QmA", auditlog.ActionSubmitted, "0xabc", map[string]string{"ic": "900101145678"})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := l.Append(ctx, "QmA", auditlog.ActionApproved, "0xdef", map[string]string{"tx": "0x01"})
	if err != nil {
		t.Fatal(err)
	}

	if e1.Index != 1 || e2.Index != 2 {
		t.Errorf("indexes = %d, %d", e1.Index, e2.Index)
	}
	if e2.PrevHash != e1.Hash {
		t.Errorf("e2.PrevHash = %q, want %q", e2.PrevHash, e1.Hash)
	}
	if len(e1.Hash) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(e1.Hash))
	}
	root, _ := l.Root(ctx)
	if root != e2.Hash {
		t.Errorf("Root() = %q, want tip hash", root)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify(): %v", err)
	}
}

func TestAppend_samePayloadDifferentDataHashPerEntry(t *testing.T) {
	l := auditlog.NewMemoryLog()
	a, _ := l.Append(ctx, "QmA", auditlog.ActionDeleted, auditlog.SystemActor, nil)
	b, _ := l.Append(ctx, "QmA", auditlog.ActionDeleted, auditlog.SystemActor, nil)
	if a.DataHash != b.DataHash {
		t.Errorf("identical payloads hashed differently")
	}
	if a.Hash == b.Hash {
		t.Errorf("distinct entries share a hash")
	}
}

func TestGet_outOfRange(t *testing.T) {
	l := auditlog.NewMemoryLog()
	if _, err := l.Get(ctx, 5); !errors.Is(err, auditlog.ErrOutOfRange) {
		t.Errorf("Get(5) err = %v, want ErrOutOfRange", err)
	}
	if _, err := l.Get(ctx, -1); !errors.Is(err, auditlog.ErrOutOfRange) {
		t.Errorf("Get(-1) err = %v, want ErrOutOfRange", err)
	}
}

func TestGet_returnsCopy(t *testing.T) {
	l := auditlog.NewMemoryLog()
	_, _ = l.Append(ctx, "QmA", auditlog.ActionSubmitted, "0xabc", nil)

	e, _ := l.Get(ctx, 1)
	e.Subject = "tampered"

	if err := l.Verify(ctx); err != nil {
		t.Errorf("mutating a returned entry affected the log: %v", err)
	}
}

func TestRange(t *testing.T) {
	l := auditlog.NewMemoryLog()
	for i := 0; i < 4; i++ {
		_, _ = l.Append(ctx, "QmA", auditlog.ActionSubmitted, "0xabc", i)
	}

	got, err := l.Range(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Index != 1 || got[1].Index != 2 {
		t.Errorf("Range(1, 2) = %+v", got)
	}

	got, _ = l.Range(ctx, 3, 10)
	if len(got) != 2 {
		t.Errorf("Range(3, 10) returned %d entries, want 2", len(got))
	}

	got, _ = l.Range(ctx, 50, 10)
	if got == nil || len(got) != 0 {
		t.Errorf("Range past tip = %v, want empty slice", got)
	}
}
