// Package chain is the client for the certificate registry contract.
//
// Calls are ABI-encoded locally and sent over Ethereum JSON-RPC: views via
// eth_call from the wallet's primary account, writes through the wallet's
// signer. Contract reverts are mapped onto ErrCertificateNotFound and
// ErrUnauthorized where the revert reason identifies them.
package chain

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/deathcert/registry/internal/wallet"
	"github.com/hyperledger/firefly-signer/pkg/abi"
	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"go.uber.org/zap"
)

//go:embed certificate_registry.abi.json
var registryABI []byte

// Config holds contract client settings.
type Config struct {
	ContractAddress string
	// ReceiptPollInterval is how often Wait polls for a receipt.
	ReceiptPollInterval time.Duration
	// ConfirmTimeout bounds Wait. Zero waits until the context ends.
	ConfirmTimeout time.Duration
}

// Client calls the certificate registry contract.
type Client struct {
	rpc       rpcbackend.Backend
	wallet    wallet.Wallet
	contract  *ethtypes.Address0xHex
	functions map[string]*function
	cfg       Config
	logger    *zap.Logger
	roles     roleCache
}

type function struct {
	signature string
	selector  []byte
	inputs    abi.TypeComponent
	outputs   abi.TypeComponent
}

var serializer = abi.NewSerializer().
	SetFormattingMode(abi.FormatAsObjects).
	SetIntSerializer(abi.Base10StringIntSerializer).
	SetFloatSerializer(abi.Base10StringFloatSerializer).
	SetByteSerializer(abi.HexByteSerializer0xPrefix)

// NewClient returns a Client for the contract at cfg.ContractAddress.
func NewClient(ctx context.Context, rpc rpcbackend.Backend, w wallet.Wallet, cfg Config, logger *zap.Logger) (*Client, error) {
	contract, err := ethtypes.NewAddress(cfg.ContractAddress)
	if err != nil {
		return nil, fmt.Errorf("contract address %q: %w", cfg.ContractAddress, ErrInvalidAddress)
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}

	functions, err := loadFunctions(ctx, registryABI)
	if err != nil {
		return nil, err
	}
	return &Client{
		rpc:       rpc,
		wallet:    w,
		contract:  contract,
		functions: functions,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

func loadFunctions(ctx context.Context, abiJSON []byte) (map[string]*function, error) {
	var a abi.ABI
	if err := json.Unmarshal(abiJSON, &a); err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	functions := make(map[string]*function)
	for _, e := range a {
		if !e.IsFunction() {
			continue
		}
		f := &function{}
		var err error
		if f.signature, err = e.SignatureCtx(ctx); err == nil {
			if f.selector, err = e.GenerateFunctionSelectorCtx(ctx); err == nil {
				if f.inputs, err = e.Inputs.TypeComponentTreeCtx(ctx); err == nil {
					f.outputs, err = e.Outputs.TypeComponentTreeCtx(ctx)
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("prepare %s: %w", e.Name, err)
		}
		functions[e.Name] = f
	}
	return functions, nil
}

func (c *Client) fn(name string) *function {
	f, ok := c.functions[name]
	if !ok {
		// the ABI is embedded, so a missing function is a programming error
		panic("chain: function not in contract abi: " + name)
	}
	return f
}

func (f *function) encode(ctx context.Context, input map[string]any) (ethtypes.HexBytes0xPrefix, error) {
	cv, err := f.inputs.ParseExternalCtx(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.signature, err)
	}
	args, err := cv.EncodeABIDataCtx(ctx)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", f.signature, err)
	}
	data := make([]byte, 0, len(f.selector)+len(args))
	data = append(data, f.selector...)
	return append(data, args...), nil
}

// call runs a view function and decodes its outputs into out.
func (c *Client) call(ctx context.Context, name string, input map[string]any, out any) error {
	f := c.fn(name)
	data, err := f.encode(ctx, input)
	if err != nil {
		return err
	}

	tx := &ethsigner.Transaction{To: c.contract, Data: data}
	// the contract gates some reads on the caller's role
	if account, err := wallet.PrimaryAccount(ctx, c.wallet); err == nil {
		tx.From, _ = json.Marshal(account)
	} else if !errors.Is(err, wallet.ErrProviderAbsent) {
		c.logger.Debug("call without sender", zap.String("function", name), zap.Error(err))
	}

	var result ethtypes.HexBytes0xPrefix
	if err := ethrpc.Call(ctx, c.rpc, &result, "eth_call", tx, "latest"); err != nil {
		return mapError(err)
	}
	if len(result) == 0 {
		return fmt.Errorf("%w: %s returned no data (is %s the registry contract?)", ethrpc.ErrTransport, name, c.contract)
	}

	cv, err := f.outputs.DecodeABIDataCtx(ctx, result, 0)
	if err != nil {
		return fmt.Errorf("decode %s result: %w", name, err)
	}
	jsonData, err := serializer.SerializeJSONCtx(ctx, cv)
	if err != nil {
		return fmt.Errorf("serialize %s result: %w", name, err)
	}
	return json.Unmarshal(jsonData, out)
}

// send submits a state-changing call through the wallet's signer.
func (c *Client) send(ctx context.Context, name string, input map[string]any) (Transaction, error) {
	f := c.fn(name)
	data, err := f.encode(ctx, input)
	if err != nil {
		return nil, err
	}
	signer, err := c.wallet.Signer(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := signer.SendTransaction(ctx, &ethsigner.Transaction{To: c.contract, Data: data})
	if err != nil {
		return nil, mapError(err)
	}
	c.logger.Info("contract transaction submitted",
		zap.String("function", name),
		zap.String("from", signer.Address()),
		zap.String("tx_hash", hash),
	)
	return &pendingTx{client: c, hash: hash, function: name}, nil
}
