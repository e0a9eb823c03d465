package ethrpc_test

import (
	"errors"
	"testing"

	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		code    int64
		message string
		want    error
	}{
		{"eip1193 rejected", 4001, "User rejected the request.", ethrpc.ErrUserDeclined},
		{"denied text", -32000, "MetaMask Tx Signature: User denied transaction signature.", ethrpc.ErrUserDeclined},
		{"method not found", -32601, "the method eth_requestAccounts does not exist", ethrpc.ErrMethodNotFound},
		{"connection refused", -32603, "dial tcp 127.0.0.1:8545: connect: connection refused", ethrpc.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ethrpc.Classify(tt.code, tt.message), tt.want)
		})
	}
}

func TestClassify_Revert(t *testing.T) {
	err := ethrpc.Classify(3, "execution reverted: Certificate does not exist")
	var revert *ethrpc.RevertError
	if assert.True(t, errors.As(err, &revert)) {
		assert.Equal(t, "Certificate does not exist", revert.Reason)
	}
}

func TestRevertReason(t *testing.T) {
	assert.Equal(t, "Unauthorized access",
		ethrpc.RevertReason(`execution reverted (action="call", reason="Unauthorized access", code=CALL_EXCEPTION)`))
	assert.Equal(t, "boom", ethrpc.RevertReason("execution reverted: boom"))
	assert.Equal(t, "", ethrpc.RevertReason("execution reverted"))
}
