//go:build integration

package registry_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/auth"
	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/registry/handler"
	"github.com/deathcert/registry/internal/registry/service"
	"github.com/deathcert/registry/internal/wallet"
	"github.com/deathcert/registry/internal/webhooks"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const authority = "0x1111111111111111111111111111111111111111"

// ── Stubs ──────────────────────────────────────────────────────────────────

type memLedger struct {
	mu    sync.Mutex
	certs map[string]*chain.CertificateMetadata
}

func (l *memLedger) GenerateCertificateID(_ context.Context, ic string) (string, error) {
	return "0xid" + ic, nil
}

func (l *memLedger) GetCertificateMetadata(_ context.Context, id string) (*chain.CertificateMetadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.certs[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, chain.ErrCertificateNotFound
}

func (l *memLedger) CreateCertificate(_ context.Context, ic, cid, submitter string) (chain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.certs["0xid"+ic] = &chain.CertificateMetadata{
		ID: "0xid" + ic, ContentAddress: cid, IsValid: true,
		SubmitterAddress: submitter, Timestamp: time.Now().UTC(),
	}
	return tx{}, nil
}

func (l *memLedger) CheckRoles(_ context.Context, address string) (*chain.Roles, error) {
	return &chain.Roles{IsAuthority: address == authority}, nil
}

func (l *memLedger) ManageRole(context.Context, chain.RoleAction, string) (chain.Transaction, error) {
	return tx{}, nil
}

type tx struct{}

func (tx) Hash() string { return "0xfeed" }

func (tx) Wait(context.Context) (*chain.Receipt, error) {
	return &chain.Receipt{TxHash: "0xfeed", BlockNumber: 1, Success: true}, nil
}

type fixedWallet struct{}

func (fixedWallet) RequestAccounts(context.Context) ([]string, error) {
	return []string{authority}, nil
}
func (fixedWallet) Signer(context.Context) (wallet.Signer, error) {
	return nil, wallet.ErrProviderAbsent
}
func (fixedWallet) Subscribe(func(string)) func() { return func() {} }

type pinner struct{}

func (pinner) PinJSON(_ context.Context, name string, _ any) (string, error) {
	return "Qm" + strings.TrimPrefix(name, "death-certificate-"), nil
}
func (pinner) PinFile(_ context.Context, name string, _ []byte) (string, error) {
	return "QmFile" + name, nil
}
func (pinner) GatewayURL(cid string) string { return "https://ipfs.io/ipfs/" + cid }

// ── Setup ──────────────────────────────────────────────────────────────────

func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect to postgres: %v", err)
	}
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	t.Cleanup(db.Close)

	applyMigrations(t, db)

	// Keep genesis, drop everything else for deterministic tests.
	if _, err := db.Exec(ctx, "DELETE FROM audit_log WHERE idx > 0"); err != nil {
		t.Fatalf("reset audit_log: %v", err)
	}
	if _, err := db.Exec(ctx, "DELETE FROM webhook_deliveries"); err != nil {
		t.Fatalf("reset webhook_deliveries: %v", err)
	}
	return db
}

func applyMigrations(t *testing.T, db *pgxpool.Pool) {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("..", "..", "migrations", "*.up.sql"))
	if err != nil || len(files) == 0 {
		t.Fatalf("find migrations: %v (found %d)", err, len(files))
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(context.Background(), string(sql)); err != nil {
			t.Fatalf("apply %s: %v", filepath.Base(f), err)
		}
	}
}

func newServer(t *testing.T, db *pgxpool.Pool, slot string) (*httptest.Server, *pending.Store) {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	store := pending.NewStore(ctx, pending.NewPostgresPersister(db, slot), logger,
		pending.WithRecoverProcessing(true))
	audit := auditlog.NewPostgresLog(db, logger)
	ledger := &memLedger{certs: map[string]*chain.CertificateMetadata{}}
	w := fixedWallet{}

	lookup := service.NewLookupService(ledger, store, pinner{}, time.Minute, logger)
	submissions := service.NewSubmissionService(store, lookup, pinner{}, w, logger)
	submissions.SetAuditLog(audit)
	approvals := service.NewApprovalService(store, ledger, w, lookup, logger)
	approvals.SetAuditLog(audit)
	approvals.SetGateway(pinner{}.GatewayURL)

	authn, _ := auth.NewAuthenticator("")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	v1 := router.Group("/api/v1")
	handler.NewCertificateHandler(submissions, lookup, logger).Register(v1)
	handler.NewPendingHandler(approvals, nil, logger).Register(v1)
	handler.NewOperatorHandler(authn, nil, logger).Register(v1)
	handler.NewAuditHandler(audit, logger).Register(v1)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

// ── Tests ──────────────────────────────────────────────────────────────────

func TestIntegration_CertificateLifecycle(t *testing.T) {
	db := connect(t)
	slot := "it-" + uuid.NewString()
	srv, _ := newServer(t, db, slot)

	record := `{"record":{
		"fullName":"Siti binti Omar","ic":"850505-10-1234","age":39,"gender":"Female",
		"dateTimeOfDeath":"2024-02-10T14:00","race":"Malay",
		"lastAddress":"3 Jalan Kenanga","placeOfDeath":"Hospital Selayang","causeOfDeath":"Stroke"}}`

	code, resp := call(t, srv, http.MethodPost, "/api/v1/certificates", record)
	if code != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %v", code, resp)
	}

	code, resp = call(t, srv, http.MethodPost, "/api/v1/certificates", record)
	if code != http.StatusConflict {
		t.Fatalf("resubmit: expected 409, got %d: %v", code, resp)
	}

	// A second store over the same slot sees the persisted record.
	_, reopened := newServer(t, db, slot)
	if _, ok := reopened.FindByIC("850505101234"); !ok {
		t.Fatal("pending record not persisted to storage_slots")
	}

	code, resp = call(t, srv, http.MethodPost, "/api/v1/pending/Qm850505101234/approve", "")
	if code != http.StatusOK || resp["status"] != "approved" {
		t.Fatalf("approve: expected approved, got %d: %v", code, resp)
	}

	code, resp = call(t, srv, http.MethodGet, "/api/v1/certificates/850505101234", "")
	if code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d: %v", code, resp)
	}
	cert, _ := resp["certificate"].(map[string]any)
	if cert["cid"] != "Qm850505101234" {
		t.Errorf("lookup cid = %v", cert["cid"])
	}

	code, resp = call(t, srv, http.MethodGet, "/api/v1/audit/verify", "")
	if code != http.StatusOK || resp["valid"] != true {
		t.Fatalf("audit verify: got %d: %v", code, resp)
	}

	code, resp = call(t, srv, http.MethodGet, "/api/v1/audit", "")
	if code != http.StatusOK {
		t.Fatalf("audit overview: got %d: %v", code, resp)
	}
	// genesis + submitted + approved
	if n, _ := resp["count"].(float64); n != 3 {
		t.Errorf("audit count = %v, want 3", resp["count"])
	}
}

func TestIntegration_ProcessingRecoveredOnLoad(t *testing.T) {
	db := connect(t)
	ctx := context.Background()
	slot := "it-" + uuid.NewString()

	p := pending.NewPostgresPersister(db, slot)
	if err := p.SaveAll(ctx, []pending.Record{{
		IC: "700101015555", ContentAddress: "QmStuck",
		CreatedAt: time.Now().UnixMilli(), Status: pending.StatusProcessing,
	}}); err != nil {
		t.Fatalf("seed slot: %v", err)
	}

	_, store := newServer(t, db, slot)
	rec, ok := store.Get("QmStuck")
	if !ok {
		t.Fatal("seeded record not loaded")
	}
	if rec.Status != pending.StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
}

func TestIntegration_WebhookDeliveries(t *testing.T) {
	db := connect(t)
	ctx := context.Background()
	repo := webhooks.NewRepository(db)

	d := &webhooks.Delivery{
		ID:             uuid.New(),
		SubscriptionID: uuid.New(),
		EventID:        uuid.New(),
		EventType:      "certificate.approved",
		StatusCode:     200,
		Attempt:        1,
		Success:        true,
		DeliveredAt:    time.Now().UTC(),
	}
	if err := repo.RecordDelivery(ctx, d); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}

	got, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != d.ID || !got[0].Success {
		t.Errorf("Recent = %+v", got)
	}
}
