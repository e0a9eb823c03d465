// Package ethrpc wraps the JSON-RPC backend used to reach the Ethereum node
// and turns node errors into errors callers can test with errors.Is / errors.As.
package ethrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
)

const (
	// codeUserRejected is the EIP-1193 "user rejected request" code.
	codeUserRejected = 4001
	// codeMethodNotFound is the JSON-RPC 2.0 "method not found" code.
	codeMethodNotFound = -32601
	// codeExecutionReverted is returned by geth-compatible nodes for reverts.
	codeExecutionReverted = 3
)

var (
	// ErrUserDeclined is returned when the signer refused the request.
	ErrUserDeclined = errors.New("user declined the signing request")
	// ErrTransport covers node, network and protocol failures.
	ErrTransport = errors.New("ethereum rpc failure")
	// ErrMethodNotFound is returned when the node does not implement a method.
	ErrMethodNotFound = errors.New("rpc method not supported")
)

// RevertError is a contract execution revert. Reason is the decoded revert
// string when the node supplied one.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// NewBackend returns a JSON-RPC backend posting to url.
func NewBackend(url string, timeout time.Duration) rpcbackend.Backend {
	client := resty.New().
		SetBaseURL(url).
		SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return rpcbackend.NewRPCClient(client)
}

// Call invokes method and classifies any failure.
func Call(ctx context.Context, b rpcbackend.Backend, result any, method string, params ...any) error {
	if rpcErr := b.CallRPC(ctx, result, method, params...); rpcErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", method, ctxErr)
		}
		return fmt.Errorf("%s: %w", method, Classify(rpcErr.Code, rpcErr.Message))
	}
	return nil
}

// Classify maps a JSON-RPC error code and message onto ErrUserDeclined,
// *RevertError, ErrMethodNotFound or ErrTransport.
func Classify(code int64, message string) error {
	lower := strings.ToLower(message)
	switch {
	case code == codeUserRejected,
		strings.Contains(lower, "user rejected"),
		strings.Contains(lower, "user denied"):
		return fmt.Errorf("%w: %s", ErrUserDeclined, message)
	case code == codeExecutionReverted, strings.Contains(lower, "execution reverted"), strings.Contains(lower, "revert"):
		return &RevertError{Reason: RevertReason(message)}
	case code == codeMethodNotFound:
		return fmt.Errorf("%w: %s", ErrMethodNotFound, message)
	default:
		return fmt.Errorf("%w: %s", ErrTransport, message)
	}
}

// RevertReason extracts the reason from node revert messages such as
// `execution reverted: Certificate does not exist` or
// `... reverted with reason="Unauthorized access"`.
func RevertReason(message string) string {
	if i := strings.Index(message, `reason="`); i >= 0 {
		rest := message[i+len(`reason="`):]
		if j := strings.Index(rest, `"`); j >= 0 {
			return rest[:j]
		}
	}
	if i := strings.Index(message, "reverted:"); i >= 0 {
		return strings.TrimSpace(message[i+len("reverted:"):])
	}
	return ""
}
