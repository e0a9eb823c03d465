package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"go.uber.org/zap"
)

// Transaction is a broadcast contract transaction.
type Transaction interface {
	Hash() string
	// Wait blocks until the transaction is mined or ctx ends. A mined but
	// failed transaction returns its receipt together with an error.
	Wait(ctx context.Context) (*Receipt, error)
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	Success     bool   `json:"success"`
}

type receiptJSON struct {
	TransactionHash ethtypes.HexBytes0xPrefix  `json:"transactionHash"`
	BlockNumber     *ethtypes.HexInteger       `json:"blockNumber"`
	GasUsed         *ethtypes.HexInteger       `json:"gasUsed"`
	Status          *ethtypes.HexInteger       `json:"status"`
	RevertReason    *ethtypes.HexBytes0xPrefix `json:"revertReason,omitempty"`
}

// solidityError is the ABI of revert("reason").
var solidityError = &abi.Entry{
	Type:   abi.Error,
	Name:   "Error",
	Inputs: abi.ParameterArray{{Type: "string"}},
}

type pendingTx struct {
	client   *Client
	hash     string
	function string
}

func (t *pendingTx) Hash() string { return t.hash }

func (t *pendingTx) Wait(ctx context.Context) (*Receipt, error) {
	if timeout := t.client.cfg.ConfirmTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(t.client.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		var raw *receiptJSON
		err := ethrpc.Call(ctx, t.client.rpc, &raw, "eth_getTransactionReceipt", t.hash)
		switch {
		case err == nil && raw != nil:
			return t.receipt(ctx, raw)
		case err != nil && ctx.Err() == nil:
			// the transaction may still be mined; keep polling
			t.client.logger.Warn("poll transaction receipt",
				zap.String("tx_hash", t.hash),
				zap.Error(err),
			)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for %s (%s): %w", t.function, t.hash, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (t *pendingTx) receipt(ctx context.Context, raw *receiptJSON) (*Receipt, error) {
	r := &Receipt{TxHash: t.hash}
	if raw.BlockNumber != nil {
		r.BlockNumber = raw.BlockNumber.BigInt().Uint64()
	}
	if raw.GasUsed != nil {
		r.GasUsed = raw.GasUsed.BigInt().Uint64()
	}
	r.Success = raw.Status != nil && raw.Status.BigInt().Sign() > 0
	if r.Success {
		return r, nil
	}

	if reason := decodeRevertReason(ctx, raw.RevertReason); reason != "" {
		return r, mapError(&ethrpc.RevertError{Reason: reason})
	}
	return r, fmt.Errorf("%w: %s", ErrReverted, t.hash)
}

func decodeRevertReason(ctx context.Context, data *ethtypes.HexBytes0xPrefix) string {
	if data == nil || len(*data) <= 4 {
		return ""
	}
	if !bytes.Equal((*data)[:4], solidityError.FunctionSelectorBytes()) {
		return ""
	}
	cv, err := solidityError.DecodeCallDataCtx(ctx, *data)
	if err != nil || len(cv.Children) == 0 {
		return ""
	}
	reason, _ := cv.Children[0].Value.(string)
	return reason
}

// IsRevert reports whether err is a contract revert of any kind.
func IsRevert(err error) bool {
	var revert *ethrpc.RevertError
	return errors.As(err, &revert) || errors.Is(err, ErrReverted)
}
