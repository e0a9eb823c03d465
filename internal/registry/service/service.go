// Package service holds the certificate registry's business logic: submission,
// lookup, approval and role management. Every remote failure is returned as a
// wrapped sentinel so callers can Classify it.
package service

import (
	"context"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/chain"
	"go.uber.org/zap"
)

// Ledger is the certificate registry contract. *chain.Client satisfies it.
type Ledger interface {
	GenerateCertificateID(ctx context.Context, ic string) (string, error)
	GetCertificateMetadata(ctx context.Context, id string) (*chain.CertificateMetadata, error)
	CreateCertificate(ctx context.Context, ic, cid, submitter string) (chain.Transaction, error)
	CheckRoles(ctx context.Context, address string) (*chain.Roles, error)
	ManageRole(ctx context.Context, action chain.RoleAction, target string) (chain.Transaction, error)
}

// Pinner stores documents and returns their content address.
// *pinning.Client satisfies it.
type Pinner interface {
	PinJSON(ctx context.Context, name string, v any) (string, error)
	PinFile(ctx context.Context, name string, data []byte) (string, error)
	GatewayURL(cid string) string
}

// EventDispatcher fans lifecycle events out to subscribers. Dispatch is
// called on the request path and must return without waiting for delivery.
// *webhooks.Dispatcher and *email.Notifier satisfy it.
type EventDispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]string)
}

// recorder writes audit entries and dispatches events for a service.
// Both are best effort.
type recorder struct {
	audit       auditlog.Log
	dispatchers []EventDispatcher
	logger      *zap.Logger
}

// SetAuditLog configures the audit log. nil disables audit writes.
func (r *recorder) SetAuditLog(l auditlog.Log) { r.audit = l }

// AddDispatcher registers an event dispatcher.
func (r *recorder) AddDispatcher(d EventDispatcher) {
	if d != nil {
		r.dispatchers = append(r.dispatchers, d)
	}
}

func (r *recorder) record(ctx context.Context, subject, action, actor string, payload map[string]string) {
	ctx = context.WithoutCancel(ctx)
	if actor == "" {
		actor = auditlog.SystemActor
	}
	if r.audit != nil {
		if _, err := r.audit.Append(ctx, subject, action, actor, payload); err != nil {
			r.logger.Error("audit append failed (non-fatal)",
				zap.String("action", action),
				zap.String("subject", subject),
				zap.Error(err),
			)
		}
	}
	for _, d := range r.dispatchers {
		d.Dispatch(ctx, action, payload)
	}
}
