package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/wallet"
	"go.uber.org/zap"
)

// LookupService maps an IC to its on-chain certificate.
type LookupService struct {
	ledger  Ledger
	store   *pending.Store
	gateway func(cid string) string
	cache   *lookupCache
	logger  *zap.Logger
}

// NewLookupService creates a LookupService. cacheTTL of zero disables caching.
func NewLookupService(ledger Ledger, store *pending.Store, pinner Pinner, cacheTTL time.Duration, logger *zap.Logger) *LookupService {
	s := &LookupService{
		ledger: ledger,
		store:  store,
		cache:  newLookupCache(cacheTTL),
		logger: logger,
	}
	if pinner != nil {
		s.gateway = pinner.GatewayURL
	}
	return s
}

// WatchAccounts clears the cache whenever the wallet's primary account
// changes, since what the contract lets us read depends on the caller.
// The returned func stops watching.
func (s *LookupService) WatchAccounts(w wallet.Wallet) func() {
	return w.Subscribe(func(account string) {
		s.cache.clear()
		s.logger.Info("account changed, lookup cache cleared", zap.String("account", account))
	})
}

// Lookup returns the certificate registered for ic. An unregistered ic
// yields ErrNoCertificate.
func (s *LookupService) Lookup(ctx context.Context, ic string) (*model.Certificate, error) {
	if ic == "" {
		return nil, &model.ErrValidation{Msg: "Please enter an IC number"}
	}
	ic, err := model.NormalizeIC(ic)
	if err != nil {
		return nil, err
	}

	if cert, ok := s.cache.get(ic); ok {
		return &cert, nil
	}

	id, err := s.ledger.GenerateCertificateID(ctx, ic)
	if err != nil {
		return nil, fmt.Errorf("generate certificate id: %w", err)
	}

	meta, err := s.ledger.GetCertificateMetadata(ctx, id)
	switch {
	case errors.Is(err, chain.ErrCertificateNotFound):
		return nil, fmt.Errorf("%w: %s", ErrNoCertificate, ic)
	case errors.Is(err, chain.ErrUnauthorized):
		return nil, fmt.Errorf("%w: %w", ErrViewForbidden, err)
	case err != nil:
		return nil, fmt.Errorf("get certificate metadata: %w", err)
	}

	cert := model.Certificate{
		IC:               ic,
		ID:               meta.ID,
		ContentAddress:   meta.ContentAddress,
		IsValid:          meta.IsValid,
		SubmitterAddress: meta.SubmitterAddress,
		Timestamp:        meta.Timestamp,
	}
	if s.gateway != nil {
		cert.GatewayURL = s.gateway(meta.ContentAddress)
	}
	s.cache.set(ic, cert)
	return &cert, nil
}

// CheckSubmittable rejects an IC that is already pending or already holds a
// valid certificate. A ledger that cannot answer does not block submission;
// the contract rejects true duplicates at approval time.
func (s *LookupService) CheckSubmittable(ctx context.Context, ic string) error {
	if rec, ok := s.store.FindByIC(ic); ok {
		return fmt.Errorf("%w: cid %s", ErrAlreadyPending, rec.ContentAddress)
	}

	cert, err := s.Lookup(ctx, ic)
	switch {
	case err == nil && cert.IsValid:
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, cert.ID)
	case err == nil, errors.Is(err, ErrNoCertificate):
		return nil
	case Classify(err) == KindValidation:
		return err
	}
	s.logger.Warn("duplicate check against ledger skipped",
		zap.String("ic", ic),
		zap.String("kind", string(Classify(err))),
		zap.Error(err),
	)
	return nil
}

// Invalidate drops the cached lookup for ic.
func (s *LookupService) Invalidate(ic string) {
	s.cache.invalidate(ic)
}

// EvictExpired drops expired cache entries and returns how many were removed.
func (s *LookupService) EvictExpired() int {
	return s.cache.evict()
}
