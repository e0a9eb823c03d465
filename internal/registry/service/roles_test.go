package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/deathcert/registry/internal/auditlog"
	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/registry/service"
	"go.uber.org/zap"
)

const family = "0x4444444444444444444444444444444444444444"

func newRoleService(ledger *stubLedger, account string) (*service.RoleService, *auditlog.MemoryLog) {
	svc := service.NewRoleService(ledger, connected(account), zap.NewNop())
	audit := auditlog.NewMemoryLog()
	svc.SetAuditLog(audit)
	return svc, audit
}

func TestRoles_Check(t *testing.T) {
	svc, _ := newRoleService(newStubLedger(), authority)

	roles, err := svc.Check(context.Background(), admin)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !roles.IsAdmin || !roles.IsAuthority || roles.IsFamily {
		t.Errorf("roles = %+v", roles)
	}
}

func TestRoles_AuthorityGrantsFamily(t *testing.T) {
	ledger := newStubLedger()
	svc, audit := newRoleService(ledger, authority)

	res, err := svc.Manage(context.Background(), chain.GrantFamily, "0x4444444444444444444444444444444444444444")
	if err != nil {
		t.Fatalf("Manage: %v", err)
	}
	if res.TxHash != "0xabc" || res.Target != family {
		t.Errorf("result = %+v", res)
	}
	if res.Message != "grantFamily completed successfully! Transaction hash: 0xabc" {
		t.Errorf("message = %q", res.Message)
	}
	if len(ledger.managed) != 1 || ledger.managed[0] != "grantFamily:"+family {
		t.Errorf("managed = %v", ledger.managed)
	}
	if e := lastAction(t, audit); e.Action != auditlog.ActionRoleChanged || e.Subject != family {
		t.Errorf("last audit entry = %+v", e)
	}
}

func TestRoles_AuthorityTierNeedsAdmin(t *testing.T) {
	ledger := newStubLedger()
	svc, _ := newRoleService(ledger, authority)

	_, err := svc.Manage(context.Background(), chain.GrantAuthority, family)
	if !errors.Is(err, service.ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}
	if got := service.UserMessage(err); got != "You must have Admin role to grantAuthority" {
		t.Errorf("message = %q", got)
	}
	if len(ledger.managed) != 0 {
		t.Error("role transaction sent without admin")
	}

	adminSvc, _ := newRoleService(ledger, admin)
	if _, err := adminSvc.Manage(context.Background(), chain.RevokeAuthority, authority); err != nil {
		t.Errorf("admin revokeAuthority: %v", err)
	}
}

func TestRoles_FamilyTierNeedsAuthority(t *testing.T) {
	svc, _ := newRoleService(newStubLedger(), submitter)

	_, err := svc.Manage(context.Background(), chain.RevokeFamily, family)
	if !errors.Is(err, service.ErrNotAuthority) {
		t.Fatalf("err = %v, want ErrNotAuthority", err)
	}
	if service.Classify(err) != service.KindUnauthorized {
		t.Errorf("kind = %s", service.Classify(err))
	}
}

func TestRoles_InvalidInput(t *testing.T) {
	svc, _ := newRoleService(newStubLedger(), admin)

	_, err := svc.Manage(context.Background(), chain.GrantFamily, "0x123")
	if got := service.UserMessage(err); got != "Please enter a valid Ethereum address" {
		t.Errorf("bad target message = %q", got)
	}
	_, err = svc.Manage(context.Background(), chain.RoleAction("promote"), family)
	if service.Classify(err) != service.KindValidation {
		t.Errorf("bad action kind = %s", service.Classify(err))
	}
}

func TestRoles_RevertedTransaction(t *testing.T) {
	ledger := newStubLedger()
	ledger.tx.err = chain.ErrReverted
	svc, _ := newRoleService(ledger, admin)

	_, err := svc.Manage(context.Background(), chain.GrantAuthority, family)
	if !errors.Is(err, chain.ErrReverted) {
		t.Fatalf("err = %v, want ErrReverted", err)
	}
	if got := service.UserMessage(err); got != "Transaction failed. Please try again." {
		t.Errorf("message = %q", got)
	}
}
