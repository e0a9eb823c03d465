package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/wallet"
	"go.uber.org/zap"
)

// SubmissionService pins certificate documents and queues them for approval.
type SubmissionService struct {
	recorder
	store  *pending.Store
	lookup *LookupService
	pinner Pinner
	wallet wallet.Wallet
	now    func() time.Time
}

// NewSubmissionService creates a SubmissionService.
func NewSubmissionService(store *pending.Store, lookup *LookupService, pinner Pinner, w wallet.Wallet, logger *zap.Logger) *SubmissionService {
	return &SubmissionService{
		recorder: recorder{logger: logger},
		store:    store,
		lookup:   lookup,
		pinner:   pinner,
		wallet:   w,
		now:      time.Now,
	}
}

// SetLocation sets the zone that death times without an offset are read in.
// The default is the server's local zone.
func (s *SubmissionService) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.now = func() time.Time { return time.Now().In(loc) }
}

// Submit validates rec, pins it as a JSON document and queues it.
func (s *SubmissionService) Submit(ctx context.Context, rec *model.DeathRecord, submitter string) (*model.Submission, error) {
	doc, err := rec.Document(s.now())
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, doc.IC, submitter, func(ctx context.Context) (string, error) {
		return s.pinner.PinJSON(ctx, model.DocumentName(doc.IC), doc)
	})
}

// SubmitDocument queues an already rendered document, such as a PDF.
func (s *SubmissionService) SubmitDocument(ctx context.Context, ic, filename string, data []byte, submitter string) (*model.Submission, error) {
	ic, err := model.NormalizeIC(ic)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &model.ErrValidation{Msg: "document is empty"}
	}
	name := model.DocumentName(ic) + strings.ToLower(filepath.Ext(filename))
	return s.submit(ctx, ic, submitter, func(ctx context.Context) (string, error) {
		return s.pinner.PinFile(ctx, name, data)
	})
}

func (s *SubmissionService) submit(ctx context.Context, ic, submitter string, pin func(context.Context) (string, error)) (*model.Submission, error) {
	submitter, err := s.submitter(ctx, submitter)
	if err != nil {
		return nil, err
	}
	if err := s.lookup.CheckSubmittable(ctx, ic); err != nil {
		return nil, err
	}

	cid, err := pin(ctx)
	if err != nil {
		return nil, &ActionError{Action: "uploading document", Err: fmt.Errorf("pin document: %w", err)}
	}

	rec, err := s.store.Add(ctx, ic, cid, submitter)
	if err != nil {
		s.logger.Warn("document pinned but not queued",
			zap.String("ic", ic),
			zap.String("cid", cid),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("certificate submitted",
		zap.String("ic", ic),
		zap.String("cid", cid),
		zap.String("submitter", submitter),
	)
	s.record(ctx, cid, auditlog.ActionSubmitted, submitter, map[string]string{
		"ic":        ic,
		"cid":       cid,
		"submitter": submitter,
	})

	return &model.Submission{
		Pending:    rec,
		GatewayURL: s.pinner.GatewayURL(cid),
		Message:    fmt.Sprintf("Certificate submitted for approval. CID: %s", cid),
	}, nil
}

// submitter resolves the submitting account: the explicit address if given,
// else the wallet's primary account, else none.
func (s *SubmissionService) submitter(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		addr, err := chain.NormalizeAddress(explicit)
		if err != nil {
			return "", err
		}
		return addr, nil
	}
	if s.wallet == nil {
		return "", nil
	}
	if account, err := wallet.PrimaryAccount(ctx, s.wallet); err == nil {
		return account, nil
	}
	return "", nil
}
