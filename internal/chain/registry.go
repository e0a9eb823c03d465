package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// CertificateMetadata is the on-chain record of a certificate.
type CertificateMetadata struct {
	ID               string    `json:"id"`
	ContentAddress   string    `json:"content_address"`
	IsValid          bool      `json:"is_valid"`
	SubmitterAddress string    `json:"submitter_address"`
	Timestamp        time.Time `json:"timestamp"`
}

// Roles are the contract roles held by an account.
type Roles struct {
	IsAdmin     bool `json:"is_admin"`
	IsAuthority bool `json:"is_authority"`
	IsFamily    bool `json:"is_family"`
}

// RoleAction is a role grant or revocation.
type RoleAction string

const (
	GrantAuthority  RoleAction = "grantAuthority"
	RevokeAuthority RoleAction = "revokeAuthority"
	GrantFamily     RoleAction = "grantFamily"
	RevokeFamily    RoleAction = "revokeFamily"
)

// Valid reports whether a is a known action.
func (a RoleAction) Valid() bool {
	switch a {
	case GrantAuthority, RevokeAuthority, GrantFamily, RevokeFamily:
		return true
	}
	return false
}

// RequiresAdmin reports whether a manages the authority tier, which only
// admins may change. Family actions require the authority role instead.
func (a RoleAction) RequiresAdmin() bool {
	return a == GrantAuthority || a == RevokeAuthority
}

func (a RoleAction) function() string {
	return string(a) + "Role"
}

// NormalizeAddress validates an account address and returns it in 0x lower-case form.
func NormalizeAddress(address string) (string, error) {
	addr, err := ethtypes.NewAddress(strings.TrimSpace(address))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return addr.String(), nil
}

// GenerateCertificateID returns the contract's certificate ID for an IC.
func (c *Client) GenerateCertificateID(ctx context.Context, ic string) (string, error) {
	var out struct {
		CertificateID string `json:"certificateId"`
	}
	if err := c.call(ctx, "generateCertificateId", map[string]any{"ic": ic}, &out); err != nil {
		return "", err
	}
	return out.CertificateID, nil
}

// GetCertificateMetadata returns the metadata for a certificate ID.
// ErrCertificateNotFound is returned when the contract holds no such record.
func (c *Client) GetCertificateMetadata(ctx context.Context, id string) (*CertificateMetadata, error) {
	var out struct {
		Metadata struct {
			ID               string `json:"id"`
			IPFSCID          string `json:"ipfsCID"`
			IsValid          bool   `json:"isValid"`
			SubmitterAddress string `json:"submitterAddress"`
			Timestamp        string `json:"timestamp"`
		} `json:"metadata"`
	}
	if err := c.call(ctx, "getCertificateMetadata", map[string]any{"certificateId": id}, &out); err != nil {
		return nil, err
	}

	m := out.Metadata
	// contracts returning an empty struct instead of reverting
	if m.IPFSCID == "" {
		return nil, fmt.Errorf("%w: %s", ErrCertificateNotFound, id)
	}
	secs, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode certificate timestamp %q: %w", m.Timestamp, err)
	}
	return &CertificateMetadata{
		ID:               m.ID,
		ContentAddress:   m.IPFSCID,
		IsValid:          m.IsValid,
		SubmitterAddress: m.SubmitterAddress,
		Timestamp:        time.Unix(secs, 0).UTC(),
	}, nil
}

// CreateCertificate submits the certificate for ic anchored to the document
// at cid. An empty submitter is recorded as the zero address.
func (c *Client) CreateCertificate(ctx context.Context, ic, cid, submitter string) (Transaction, error) {
	if submitter == "" {
		submitter = zeroAddress
	}
	submitter, err := NormalizeAddress(submitter)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, "createCertificate", map[string]any{
		"ic":               ic,
		"ipfsCID":          cid,
		"submitterAddress": submitter,
	})
}

// CheckRoles returns the roles held by address.
func (c *Client) CheckRoles(ctx context.Context, address string) (*Roles, error) {
	address, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	var tiers struct {
		IsAuthority bool `json:"isAuthority"`
		IsFamily    bool `json:"isFamily"`
	}
	if err := c.call(ctx, "checkRoles", map[string]any{"account": address}, &tiers); err != nil {
		return nil, err
	}

	adminRole, err := c.adminRole(ctx)
	if err != nil {
		return nil, err
	}
	var admin struct {
		Granted bool `json:"granted"`
	}
	if err := c.call(ctx, "hasRole", map[string]any{"role": adminRole, "account": address}, &admin); err != nil {
		return nil, err
	}

	return &Roles{
		IsAdmin:     admin.Granted,
		IsAuthority: tiers.IsAuthority,
		IsFamily:    tiers.IsFamily,
	}, nil
}

// ManageRole grants or revokes a role tier for target.
func (c *Client) ManageRole(ctx context.Context, action RoleAction, target string) (Transaction, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown role action %q", action)
	}
	target, err := NormalizeAddress(target)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, action.function(), map[string]any{"account": target})
}

// roleCache holds the DEFAULT_ADMIN_ROLE constant once read.
type roleCache struct {
	mu    sync.Mutex
	admin string
}

func (c *Client) adminRole(ctx context.Context) (string, error) {
	c.roles.mu.Lock()
	defer c.roles.mu.Unlock()
	if c.roles.admin != "" {
		return c.roles.admin, nil
	}
	var out struct {
		Role string `json:"role"`
	}
	if err := c.call(ctx, "DEFAULT_ADMIN_ROLE", map[string]any{}, &out); err != nil {
		return "", err
	}
	c.roles.admin = out.Role
	return out.Role, nil
}
