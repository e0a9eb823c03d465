package service

import (
	"context"
	"fmt"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/wallet"
	"go.uber.org/zap"
)

// RoleService reads and changes contract roles.
type RoleService struct {
	recorder
	ledger Ledger
	wallet wallet.Wallet
}

// NewRoleService creates a RoleService.
func NewRoleService(ledger Ledger, w wallet.Wallet, logger *zap.Logger) *RoleService {
	return &RoleService{
		recorder: recorder{logger: logger},
		ledger:   ledger,
		wallet:   w,
	}
}

// Check returns the roles held by address.
func (s *RoleService) Check(ctx context.Context, address string) (*chain.Roles, error) {
	roles, err := s.ledger.CheckRoles(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("check roles of %s: %w", address, err)
	}
	return roles, nil
}

// Manage grants or revokes a role for target and waits for the transaction
// to be mined. Authority changes need the admin role; family changes need
// the authority role.
func (s *RoleService) Manage(ctx context.Context, action chain.RoleAction, target string) (*model.RoleUpdateResult, error) {
	if !action.Valid() {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown role action %q", action)}
	}
	target, err := chain.NormalizeAddress(target)
	if err != nil {
		return nil, err
	}

	account, err := wallet.PrimaryAccount(ctx, s.wallet)
	if err != nil {
		return nil, err
	}
	roles, err := s.ledger.CheckRoles(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("check roles: %w", err)
	}
	if action.RequiresAdmin() && !roles.IsAdmin {
		return nil, &PermissionError{Required: ErrNotAdmin, Account: account, Action: string(action)}
	}
	if !action.RequiresAdmin() && !roles.IsAuthority {
		return nil, &PermissionError{Required: ErrNotAuthority, Account: account, Action: string(action)}
	}

	tx, err := s.ledger.ManageRole(ctx, action, target)
	if err != nil {
		return nil, &ActionError{Action: "updating roles", Err: fmt.Errorf("%s: %w", action, err)}
	}
	receipt, err := tx.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", action, tx.Hash(), err)
	}

	s.logger.Info("role changed",
		zap.String("action", string(action)),
		zap.String("target", target),
		zap.String("by", account),
		zap.String("tx_hash", receipt.TxHash),
	)
	s.record(ctx, target, auditlog.ActionRoleChanged, account, map[string]string{
		"action":  string(action),
		"target":  target,
		"tx_hash": receipt.TxHash,
	})

	return &model.RoleUpdateResult{
		Action:  string(action),
		Target:  target,
		TxHash:  receipt.TxHash,
		Message: fmt.Sprintf("%s completed successfully! Transaction hash: %s", action, receipt.TxHash),
	}, nil
}
