package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/wallet"
	"go.uber.org/zap"
)

// ApprovalService commits pending records to the ledger.
type ApprovalService struct {
	recorder
	store  *pending.Store
	ledger Ledger
	wallet wallet.Wallet
	lookup *LookupService
	// gateway builds document links for List. nil leaves them empty.
	gateway func(cid string) string
}

// NewApprovalService creates an ApprovalService. lookup may be nil.
func NewApprovalService(store *pending.Store, ledger Ledger, w wallet.Wallet, lookup *LookupService, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{
		recorder: recorder{logger: logger},
		store:    store,
		ledger:   ledger,
		wallet:   w,
		lookup:   lookup,
	}
}

// Approve attempts to create the certificate for the pending record cid.
//
// Only one attempt per cid runs at a time; a second caller gets
// pending.ErrInFlight. The record is marked processing before the
// transaction is sent. On success it is removed; on any failure it returns
// to pending so the operator can retry. A declined signing request is not
// an error: it yields an OutcomeDeclined result. Once the transaction has
// been broadcast, cancelling ctx no longer abandons the wait.
func (s *ApprovalService) Approve(ctx context.Context, cid string) (*model.ApprovalResult, error) {
	release, err := s.store.Acquire(cid)
	if err != nil {
		return nil, err
	}
	defer release()

	rec, ok := s.store.Get(cid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", pending.ErrNotFound, cid)
	}

	account, err := wallet.PrimaryAccount(ctx, s.wallet)
	if err != nil {
		return nil, err
	}
	roles, err := s.ledger.CheckRoles(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("check roles: %w", err)
	}
	if !roles.IsAuthority {
		return nil, &PermissionError{Required: ErrNotAuthority, Account: account, Action: "create certificates"}
	}

	if err := s.store.UpdateStatus(ctx, cid, pending.StatusProcessing); err != nil {
		return nil, err
	}
	s.logger.Info("approval started",
		zap.String("cid", cid),
		zap.String("ic", rec.IC),
		zap.String("authority", account),
	)

	tx, err := s.ledger.CreateCertificate(ctx, rec.IC, cid, rec.SubmitterAddress)
	if err != nil {
		return s.fail(ctx, rec, account, "", err)
	}

	receipt, err := tx.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return s.fail(ctx, rec, account, tx.Hash(), err)
	}

	s.store.Remove(ctx, cid)
	if s.lookup != nil {
		s.lookup.Invalidate(rec.IC)
	}

	s.logger.Info("certificate approved",
		zap.String("cid", cid),
		zap.String("ic", rec.IC),
		zap.String("tx_hash", receipt.TxHash),
		zap.Uint64("block", receipt.BlockNumber),
	)
	s.record(ctx, cid, auditlog.ActionApproved, account, map[string]string{
		"ic":      rec.IC,
		"cid":     cid,
		"tx_hash": receipt.TxHash,
	})

	return &model.ApprovalResult{
		ContentAddress: cid,
		IC:             rec.IC,
		Outcome:        model.OutcomeApproved,
		TxHash:         receipt.TxHash,
		BlockNumber:    receipt.BlockNumber,
		Message:        fmt.Sprintf("Certificate created successfully! Transaction hash: %s", receipt.TxHash),
	}, nil
}

// fail returns the record to pending and reports cause.
func (s *ApprovalService) fail(ctx context.Context, rec pending.Record, account, txHash string, cause error) (*model.ApprovalResult, error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.UpdateStatus(ctx, rec.ContentAddress, pending.StatusPending); err != nil {
		s.logger.Warn("could not revert record to pending",
			zap.String("cid", rec.ContentAddress),
			zap.Error(err),
		)
	}

	cause = &ActionError{Action: "creating certificate", Err: cause}
	kind := Classify(cause)
	s.logger.Warn("approval failed",
		zap.String("cid", rec.ContentAddress),
		zap.String("ic", rec.IC),
		zap.String("tx_hash", txHash),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)
	s.record(ctx, rec.ContentAddress, auditlog.ActionApprovalFailed, account, map[string]string{
		"ic":      rec.IC,
		"cid":     rec.ContentAddress,
		"tx_hash": txHash,
		"kind":    string(kind),
		"reason":  UserMessage(cause),
	})

	if errors.Is(cause, ethrpc.ErrUserDeclined) {
		return &model.ApprovalResult{
			ContentAddress: rec.ContentAddress,
			IC:             rec.IC,
			Outcome:        model.OutcomeDeclined,
			Message:        UserMessage(cause),
		}, nil
	}
	return nil, fmt.Errorf("approve %s: %w", rec.ContentAddress, cause)
}

// Delete removes the pending record cid locally. It does not touch the
// ledger and succeeds whether or not the record exists.
func (s *ApprovalService) Delete(ctx context.Context, cid, actor string) int {
	rec, found := s.store.Get(cid)
	n := s.store.Remove(ctx, cid)
	if n == 0 {
		return 0
	}
	s.logger.Info("pending certificate deleted",
		zap.String("cid", cid),
		zap.String("ic", rec.IC),
		zap.Bool("in_flight", s.store.InFlight(cid)),
	)
	payload := map[string]string{"cid": cid}
	if found {
		payload["ic"] = rec.IC
	}
	s.record(ctx, cid, auditlog.ActionDeleted, actor, payload)
	return n
}

// SetGateway configures how List links documents. *pinning.Client's
// GatewayURL method fits.
func (s *ApprovalService) SetGateway(fn func(cid string) string) {
	s.gateway = fn
}

// List returns the pending records in submission order.
func (s *ApprovalService) List() []model.PendingView {
	recs := s.store.List()
	out := make([]model.PendingView, 0, len(recs))
	for _, r := range recs {
		v := model.PendingView{
			IC:               r.IC,
			ContentAddress:   r.ContentAddress,
			SubmitterAddress: r.SubmitterAddress,
			CreatedAt:        r.Created(),
			Status:           r.Status,
			InFlight:         s.store.InFlight(r.ContentAddress),
		}
		if s.gateway != nil {
			v.GatewayURL = s.gateway(r.ContentAddress)
		}
		out = append(out, v)
	}
	return out
}
