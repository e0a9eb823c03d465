package pending_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/deathcert/registry/internal/pending"
)

func TestFilePersister_MissingFileIsEmpty(t *testing.T) {
	p := pending.NewFilePersister(filepath.Join(t.TempDir(), "nope.json"))
	records, err := p.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want none", records)
	}
}

func TestFilePersister_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots", "pending.json")
	p := pending.NewFilePersister(path)
	ctx := context.Background()

	in := []pending.Record{
		{IC: "900101145678", ContentAddress: "QmA", SubmitterAddress: "0xabc", CreatedAt: 1700000000123, Status: pending.StatusPending},
		{IC: "900101145679", ContentAddress: "QmB", CreatedAt: 1700000000456, Status: pending.StatusProcessing},
	}
	if err := p.SaveAll(ctx, in); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}
	out, err := p.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("loaded %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("record %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestFilePersister_EmptySetWritesArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	p := pending.NewFilePersister(path)
	if err := p.SaveAll(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("slot = %q, want []", data)
	}
}

func TestFilePersister_LoadsBrowserExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	// shape written by the browser client, including a record without status
	export := `[{"ic":"900101145678","cid":"QmA","timestamp":1700000000123,"submitterAddress":"0xabc","status":"pending"},
	            {"ic":"900101145679","cid":"QmB","timestamp":1700000000456}]`
	if err := os.WriteFile(path, []byte(export), 0o600); err != nil {
		t.Fatal(err)
	}

	records, err := pending.NewFilePersister(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("loaded %d records, want 2", len(records))
	}
	if records[0].SubmitterAddress != "0xabc" || records[0].CreatedAt != 1700000000123 {
		t.Errorf("record 0 = %+v", records[0])
	}
	if records[1].Status != pending.StatusPending {
		t.Errorf("record without status loaded as %q, want pending", records[1].Status)
	}
}

func TestFilePersister_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := pending.NewFilePersister(path).Load(context.Background()); err == nil {
		t.Error("expected error for corrupt slot")
	}
}
