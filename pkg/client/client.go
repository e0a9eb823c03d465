package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sentinel errors matched by *APIError through errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("invalid request")
)

// APIError is a non-2xx answer from the registry.
type APIError struct {
	StatusCode int
	Kind       string `json:"kind"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("registry: %s (%s, HTTP %d)", e.Message, e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("registry: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Is matches the sentinel for the error's kind.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == "not_found" || (e.Kind == "" && e.StatusCode == http.StatusNotFound)
	case ErrConflict:
		return e.Kind == "conflict"
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.Kind == "unauthorized"
	case ErrValidation:
		return e.Kind == "validation"
	}
	return false
}

// Client is the registry SDK entry point.
type Client struct {
	http  *resty.Client
	cache *lookupCache

	mu    sync.Mutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout. The default is 2 minutes, which
// leaves room for an approval to be confirmed.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithBearerToken attaches a pre-obtained operator token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.setToken(token) }
}

// WithCacheTTL enables in-memory caching of successful lookups.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) { c.cache = newLookupCache(ttl) }
}

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		base := c.http.BaseURL
		timeout := c.http.GetClient().Timeout
		c.http = resty.NewWithClient(hc).SetBaseURL(base).SetTimeout(timeout).SetHeader("Accept", "application/json")
	}
}

// New returns a Client for the registry at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")+"/api/v1").
			SetTimeout(2*time.Minute).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx).SetError(&APIError{})
	c.mu.Lock()
	if c.token != "" {
		req.SetAuthToken(c.token)
	}
	c.mu.Unlock()
	return req
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("registry request: %w", err)
	}
	if !resp.IsError() {
		return nil
	}
	apiErr, _ := resp.Error().(*APIError)
	if apiErr == nil || apiErr.Message == "" {
		apiErr = &APIError{Message: strings.TrimSpace(resp.String())}
	}
	apiErr.StatusCode = resp.StatusCode()
	return apiErr
}

// Login exchanges the operator secret for a token and uses it from then on.
func (c *Client) Login(ctx context.Context, operator, secret string) error {
	var out struct {
		Token string `json:"token"`
	}
	resp, err := c.request(ctx).
		SetBody(map[string]string{"operator": operator, "secret": secret}).
		SetResult(&out).
		Post("/auth/token")
	if err := check(resp, err); err != nil {
		return err
	}
	c.setToken(out.Token)
	return nil
}

// Token returns the token in use, if any.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Submit sends a death record for pinning and approval. submitter may be empty.
func (c *Client) Submit(ctx context.Context, rec DeathRecord, submitter string) (*Submission, error) {
	var out Submission
	resp, err := c.request(ctx).
		SetBody(map[string]any{"record": rec, "submitter_address": submitter}).
		SetResult(&out).
		Post("/certificates")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitDocument uploads a certificate document file for ic.
func (c *Client) SubmitDocument(ctx context.Context, ic, filename string, data []byte, submitter string) (*Submission, error) {
	form := map[string]string{"ic": ic}
	if submitter != "" {
		form["submitter_address"] = submitter
	}
	var out Submission
	resp, err := c.request(ctx).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetFormData(form).
		SetResult(&out).
		Post("/certificates/documents")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lookup returns the ledger certificate for ic. It returns an error
// matching ErrNotFound when none exists.
func (c *Client) Lookup(ctx context.Context, ic string) (*Certificate, error) {
	if c.cache != nil {
		if cert, ok := c.cache.get(ic); ok {
			return cert, nil
		}
	}
	var out struct {
		Certificate Certificate `json:"certificate"`
	}
	resp, err := c.request(ctx).
		SetPathParam("ic", ic).
		SetResult(&out).
		Get("/certificates/{ic}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.set(ic, &out.Certificate)
	}
	return &out.Certificate, nil
}

// ListPending returns the approval queue.
func (c *Client) ListPending(ctx context.Context) ([]PendingView, error) {
	var out struct {
		Pending []PendingView `json:"pending"`
	}
	resp, err := c.request(ctx).SetResult(&out).Get("/pending")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return out.Pending, nil
}

// Approve records the pending certificate cid on the ledger. A declined
// signature is not an error; check ApprovalResult.Status.
func (c *Client) Approve(ctx context.Context, cid string) (*ApprovalResult, error) {
	var out ApprovalResult
	resp, err := c.request(ctx).
		SetPathParam("cid", cid).
		SetResult(&out).
		Post("/pending/{cid}/approve")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePending drops the pending record cid from the queue.
func (c *Client) DeletePending(ctx context.Context, cid string) error {
	resp, err := c.request(ctx).
		SetPathParam("cid", cid).
		SetQueryParam("confirm", "true").
		Delete("/pending/{cid}")
	return check(resp, err)
}

// CheckRoles returns the roles held by address.
func (c *Client) CheckRoles(ctx context.Context, address string) (*Roles, error) {
	var out struct {
		Roles Roles `json:"roles"`
	}
	resp, err := c.request(ctx).
		SetPathParam("address", address).
		SetResult(&out).
		Get("/roles/{address}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out.Roles, nil
}

// ManageRole grants or revokes a role. action is one of grantAuthority,
// revokeAuthority, grantFamily or revokeFamily.
func (c *Client) ManageRole(ctx context.Context, action, target string) (*RoleUpdate, error) {
	var out RoleUpdate
	resp, err := c.request(ctx).
		SetPathParam("action", action).
		SetBody(map[string]string{"target": target}).
		SetResult(&out).
		Post("/roles/{action}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wallet returns the registry wallet's accounts.
func (c *Client) Wallet(ctx context.Context) (*Wallet, error) {
	var out Wallet
	resp, err := c.request(ctx).SetResult(&out).Get("/wallet")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// Audit returns the audit log overview with up to limit entries from index from.
func (c *Client) Audit(ctx context.Context, from, limit int) (*AuditPage, error) {
	var out AuditPage
	resp, err := c.request(ctx).
		SetQueryParam("from", fmt.Sprint(from)).
		SetQueryParam("limit", fmt.Sprint(limit)).
		SetResult(&out).
		Get("/audit")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyAudit asks the registry to walk the audit chain.
func (c *Client) VerifyAudit(ctx context.Context) (*AuditVerification, error) {
	var out AuditVerification
	resp, err := c.request(ctx).SetResult(&out).Get("/audit/verify")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditEntry returns one audit entry.
func (c *Client) AuditEntry(ctx context.Context, index int) (*AuditEntry, error) {
	var out AuditEntry
	resp, err := c.request(ctx).
		SetPathParam("idx", fmt.Sprint(index)).
		SetResult(&out).
		Get("/audit/entries/{idx}")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &out, nil
}

type cacheEntry struct {
	cert      *Certificate
	expiresAt time.Time
}

type lookupCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
}

func newLookupCache(ttl time.Duration) *lookupCache {
	return &lookupCache{entries: make(map[string]*cacheEntry), ttl: ttl}
}

func (lc *lookupCache) get(key string) (*Certificate, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	e, ok := lc.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.cert, true
}

func (lc *lookupCache) set(key string, cert *Certificate) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.entries[key] = &cacheEntry{cert: cert, expiresAt: time.Now().Add(lc.ttl)}
}
