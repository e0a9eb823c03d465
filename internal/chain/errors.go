package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deathcert/registry/internal/ethrpc"
)

var (
	// ErrCertificateNotFound is returned when the contract has no certificate for an ID.
	ErrCertificateNotFound = errors.New("certificate does not exist")
	// ErrUnauthorized is returned when the contract rejects the caller's role.
	ErrUnauthorized = errors.New("caller is not authorized")
	// ErrReverted is returned when a mined transaction failed without a reason.
	ErrReverted = errors.New("transaction reverted")
	// ErrInvalidAddress is returned for malformed account addresses.
	ErrInvalidAddress = errors.New("invalid ethereum address")
)

// mapError lifts contract revert reasons onto the package sentinels.
// The original error stays in the chain for errors.As.
func mapError(err error) error {
	var revert *ethrpc.RevertError
	if !errors.As(err, &revert) {
		return err
	}
	switch reason := revert.Reason; {
	case strings.Contains(reason, "Certificate does not exist"):
		return fmt.Errorf("%w: %w", ErrCertificateNotFound, err)
	case strings.Contains(reason, "Unauthorized"),
		strings.Contains(reason, "AccessControl"),
		strings.Contains(reason, "missing role"):
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return err
}
