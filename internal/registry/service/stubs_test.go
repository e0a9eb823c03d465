package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/wallet"
	"go.uber.org/zap"
)

const (
	authority = "0x1111111111111111111111111111111111111111"
	admin     = "0x2222222222222222222222222222222222222222"
	submitter = "0x3333333333333333333333333333333333333333"
	testIC    = "900101145678"
)

// ── Ledger stub ────────────────────────────────────────────────────────────

type stubLedger struct {
	mu        sync.Mutex
	certs     map[string]*chain.CertificateMetadata // by certificate ID
	roles     map[string]*chain.Roles               // by address
	genErr    error
	metaErr   error
	rolesErr  error
	createErr error
	manageErr error
	tx        *stubTx
	metaCalls int
	created   [][3]string
	managed   []string
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		certs: make(map[string]*chain.CertificateMetadata),
		roles: map[string]*chain.Roles{
			authority: {IsAuthority: true},
			admin:     {IsAdmin: true, IsAuthority: true},
		},
		tx: &stubTx{hash: "0xabc"},
	}
}

func certID(ic string) string { return "0xid" + ic }

func (l *stubLedger) register(ic, cid string, valid bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.certs[certID(ic)] = &chain.CertificateMetadata{
		ID:               certID(ic),
		ContentAddress:   cid,
		IsValid:          valid,
		SubmitterAddress: submitter,
	}
}

func (l *stubLedger) GenerateCertificateID(_ context.Context, ic string) (string, error) {
	if l.genErr != nil {
		return "", l.genErr
	}
	return certID(ic), nil
}

func (l *stubLedger) GetCertificateMetadata(_ context.Context, id string) (*chain.CertificateMetadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metaCalls++
	if l.metaErr != nil {
		return nil, l.metaErr
	}
	meta, ok := l.certs[id]
	if !ok {
		return nil, chain.ErrCertificateNotFound
	}
	cp := *meta
	return &cp, nil
}

func (l *stubLedger) CreateCertificate(_ context.Context, ic, cid, sub string) (chain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return nil, l.createErr
	}
	l.created = append(l.created, [3]string{ic, cid, sub})
	return l.tx, nil
}

func (l *stubLedger) CheckRoles(_ context.Context, address string) (*chain.Roles, error) {
	if l.rolesErr != nil {
		return nil, l.rolesErr
	}
	if r, ok := l.roles[strings.ToLower(address)]; ok {
		cp := *r
		return &cp, nil
	}
	return &chain.Roles{}, nil
}

func (l *stubLedger) ManageRole(_ context.Context, action chain.RoleAction, target string) (chain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.manageErr != nil {
		return nil, l.manageErr
	}
	l.managed = append(l.managed, string(action)+":"+target)
	return l.tx, nil
}

func (l *stubLedger) createdCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.created)
}

// stubTx is a broadcast transaction. When block is set, Wait returns only
// after it is closed or ctx ends.
type stubTx struct {
	hash  string
	err   error
	block chan struct{}
}

func (t *stubTx) Hash() string { return t.hash }

func (t *stubTx) Wait(ctx context.Context) (*chain.Receipt, error) {
	if t.block != nil {
		select {
		case <-t.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.err != nil {
		return &chain.Receipt{TxHash: t.hash}, t.err
	}
	return &chain.Receipt{TxHash: t.hash, BlockNumber: 7, Success: true}, nil
}

// ── Wallet stub ────────────────────────────────────────────────────────────

type stubWallet struct {
	mu       sync.Mutex
	accounts []string
	subs     []func(string)
}

func connected(accounts ...string) *stubWallet { return &stubWallet{accounts: accounts} }

func (w *stubWallet) RequestAccounts(context.Context) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.accounts...), nil
}

func (w *stubWallet) Signer(context.Context) (wallet.Signer, error) {
	return nil, wallet.ErrProviderAbsent
}

func (w *stubWallet) Subscribe(fn func(string)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
	return func() {}
}

func (w *stubWallet) switchTo(account string) {
	w.mu.Lock()
	w.accounts = []string{account}
	subs := append([]func(string){}, w.subs...)
	w.mu.Unlock()
	for _, fn := range subs {
		fn(account)
	}
}

// ── Pinner stub ────────────────────────────────────────────────────────────

type stubPinner struct {
	mu    sync.Mutex
	err   error
	names []string
	docs  []any
	files [][]byte
}

func (p *stubPinner) PinJSON(_ context.Context, name string, v any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.names = append(p.names, name)
	p.docs = append(p.docs, v)
	return "QmJSON" + name[len(name)-4:], nil
}

func (p *stubPinner) PinFile(_ context.Context, name string, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.names = append(p.names, name)
	p.files = append(p.files, data)
	return "QmFile", nil
}

func (p *stubPinner) GatewayURL(cid string) string { return "https://ipfs.io/ipfs/" + cid }

func (p *stubPinner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}

// ── Dispatcher stub ────────────────────────────────────────────────────────

type event struct {
	Type    string
	Payload map[string]string
}

type stubDispatcher struct {
	mu     sync.Mutex
	events []event
}

func (d *stubDispatcher) Dispatch(_ context.Context, eventType string, payload map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event{Type: eventType, Payload: payload})
}

func (d *stubDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

// ── Helpers ────────────────────────────────────────────────────────────────

func newStore(t *testing.T, records ...pending.Record) *pending.Store {
	t.Helper()
	return pending.NewStore(context.Background(), pending.NewMemoryPersister(records...), zap.NewNop())
}

func lastAction(t *testing.T, l auditlog.Log) *auditlog.Entry {
	t.Helper()
	ctx := context.Background()
	n, err := l.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	e, err := l.Get(ctx, n-1)
	if err != nil {
		t.Fatal(err)
	}
	return e
}
