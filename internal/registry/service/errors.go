package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/deathcert/registry/internal/chain"
	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/deathcert/registry/internal/pending"
	"github.com/deathcert/registry/internal/pinning"
	"github.com/deathcert/registry/internal/registry/model"
	"github.com/deathcert/registry/internal/wallet"
)

var (
	// ErrNoCertificate is the normal outcome of looking up an unregistered IC.
	ErrNoCertificate = errors.New("no certificate for this identifier")
	// ErrViewForbidden is returned when the connected account may not read a certificate.
	ErrViewForbidden = errors.New("not authorized to view this certificate")
	// ErrAlreadyPending is returned when a submission for the IC awaits approval.
	ErrAlreadyPending = errors.New("a certificate for this IC is already pending approval")
	// ErrAlreadyRegistered is returned when the ledger holds a valid certificate for the IC.
	ErrAlreadyRegistered = errors.New("a valid certificate for this IC is already registered")
	// ErrNotAuthority is returned when the connected account lacks the authority role.
	ErrNotAuthority = errors.New("authority role required")
	// ErrNotAdmin is returned when the connected account lacks the admin role.
	ErrNotAdmin = errors.New("admin role required")
)

// PermissionError is a role check failure for a named action.
type PermissionError struct {
	Required error // ErrNotAuthority or ErrNotAdmin
	Account  string
	Action   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: %v to %s", e.Account, e.Required, e.Action)
}

func (e *PermissionError) Unwrap() error { return e.Required }

// ActionError names the user action a failure interrupted. UserMessage uses
// it to prefix remote failure detail.
type ActionError struct {
	Action string // e.g. "creating certificate"
	Err    error
}

func (e *ActionError) Error() string { return e.Action + ": " + e.Err.Error() }

func (e *ActionError) Unwrap() error { return e.Err }

// Kind is the failure class of an error as seen by a caller.
type Kind string

const (
	KindProviderAbsent Kind = "provider_absent"
	KindUnauthorized   Kind = "unauthorized"
	KindTransport      Kind = "transport"
	KindDeclined       Kind = "declined"
	KindNotFound       Kind = "not_found"
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "internal"
)

// Classify returns the Kind of err. A nil error has no kind.
func Classify(err error) Kind {
	var (
		verr   *model.ErrValidation
		revert *ethrpc.RevertError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr), errors.Is(err, chain.ErrInvalidAddress):
		return KindValidation
	case errors.Is(err, wallet.ErrProviderAbsent), errors.Is(err, wallet.ErrNoAccounts):
		return KindProviderAbsent
	case errors.Is(err, ethrpc.ErrUserDeclined):
		return KindDeclined
	case errors.Is(err, ErrNoCertificate),
		errors.Is(err, chain.ErrCertificateNotFound),
		errors.Is(err, pending.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrViewForbidden),
		errors.Is(err, ErrNotAuthority),
		errors.Is(err, ErrNotAdmin),
		errors.Is(err, chain.ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, pending.ErrDuplicate),
		errors.Is(err, pending.ErrInFlight),
		errors.Is(err, ErrAlreadyPending),
		errors.Is(err, ErrAlreadyRegistered):
		return KindConflict
	case errors.As(err, &revert),
		errors.Is(err, chain.ErrReverted),
		errors.Is(err, ethrpc.ErrTransport),
		errors.Is(err, ethrpc.ErrMethodNotFound),
		errors.Is(err, pinning.ErrTransport),
		errors.Is(err, pinning.ErrRejected),
		errors.Is(err, pinning.ErrNotConfigured),
		errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	}
	return KindInternal
}

// UserMessage turns err into the message shown to the person who triggered
// the action. Internal errors never leak their text.
func UserMessage(err error) string {
	var (
		verr   *model.ErrValidation
		perm   *PermissionError
		revert *ethrpc.RevertError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Msg
	case errors.Is(err, chain.ErrInvalidAddress):
		return "Please enter a valid Ethereum address"
	case errors.Is(err, wallet.ErrProviderAbsent):
		return "No wallet provider is configured"
	case errors.Is(err, wallet.ErrNoAccounts):
		return "No wallet account is connected"
	case errors.Is(err, ethrpc.ErrUserDeclined):
		return "Transaction was rejected in the wallet"
	case errors.Is(err, ErrNoCertificate), errors.Is(err, chain.ErrCertificateNotFound):
		return "No certificate found for this IC number"
	case errors.Is(err, pending.ErrNotFound):
		return "Pending certificate not found"
	case errors.Is(err, ErrViewForbidden):
		return "You are not authorized to view this certificate"
	case errors.As(err, &perm):
		role := "Authority"
		if errors.Is(perm.Required, ErrNotAdmin) {
			role = "Admin"
		}
		return fmt.Sprintf("You must have %s role to %s", role, perm.Action)
	case errors.Is(err, chain.ErrUnauthorized):
		return "You don't have permission to perform this action"
	case errors.Is(err, ErrAlreadyPending), errors.Is(err, pending.ErrDuplicate):
		return "A certificate for this IC number is already pending approval"
	case errors.Is(err, ErrAlreadyRegistered):
		return "A valid certificate for this IC number already exists"
	case errors.Is(err, pending.ErrInFlight):
		return "An approval for this certificate is already in progress"
	case errors.As(err, &revert) && revert.Reason != "":
		return revert.Reason
	case errors.Is(err, chain.ErrReverted), errors.As(err, &revert):
		return "Transaction failed. Please try again."
	case errors.Is(err, pinning.ErrNotConfigured):
		return "Document storage is not configured"
	case errors.Is(err, ethrpc.ErrTransport),
		errors.Is(err, ethrpc.ErrMethodNotFound),
		errors.Is(err, pinning.ErrTransport),
		errors.Is(err, pinning.ErrRejected):
		return transportMessage(err)
	case errors.Is(err, context.DeadlineExceeded):
		return "The request timed out. Please try again."
	}
	return "An unexpected error occurred. Please try again."
}

// remoteSentinels are the errors whose wrapped text comes from a remote
// service and may be shown to users.
var remoteSentinels = []error{
	ethrpc.ErrTransport,
	ethrpc.ErrMethodNotFound,
	pinning.ErrTransport,
	pinning.ErrRejected,
}

const maxDetailLen = 200

func transportMessage(err error) string {
	prefix := "Error contacting a remote service"
	var action *ActionError
	if errors.As(err, &action) {
		prefix = "Error " + action.Action
	}
	if detail := remoteDetail(err); detail != "" {
		return prefix + ": " + detail
	}
	return prefix + ". Please try again."
}

// remoteDetail returns the last clause of the text wrapped after a remote
// sentinel. Leading clauses carry URLs and addresses and are dropped.
func remoteDetail(err error) string {
	msg := err.Error()
	for _, sentinel := range remoteSentinels {
		marker := sentinel.Error() + ": "
		i := strings.LastIndex(msg, marker)
		if i < 0 {
			continue
		}
		detail := msg[i+len(marker):]
		if j := strings.LastIndex(detail, ": "); j >= 0 {
			detail = detail[j+2:]
		}
		detail = strings.TrimSpace(detail)
		if len(detail) > maxDetailLen {
			cut := maxDetailLen
			for cut > 0 && !utf8.RuneStart(detail[cut]) {
				cut--
			}
			detail = detail[:cut] + "..."
		}
		return detail
	}
	return ""
}
