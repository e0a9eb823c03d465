package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/keystorev3"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"github.com/hyperledger/firefly-signer/pkg/secp256k1"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// TxVersion selects the transaction envelope a KeyWallet signs.
type TxVersion string

const (
	TxEIP1559 TxVersion = "eip1559"
	TxLegacy  TxVersion = "legacy"
)

// KeyConfig tunes how a KeyWallet fills transactions.
type KeyConfig struct {
	TxVersion         TxVersion
	GasEstimateFactor float64
}

// KeyWallet signs with a local secp256k1 key and broadcasts raw transactions.
type KeyWallet struct {
	kp      *secp256k1.KeyPair
	address string
	rpc     rpcbackend.Backend
	chainID int64
	cfg     KeyConfig
	logger  *zap.Logger
	subs    subscribers
}

// LoadKeyPair reads a keystore v3 file unlocked with the password in
// passwordFile, or parses hexKey when no keystore file is given.
func LoadKeyPair(keystoreFile, passwordFile, hexKey string) (*secp256k1.KeyPair, error) {
	if keystoreFile != "" {
		keyData, err := os.ReadFile(keystoreFile)
		if err != nil {
			return nil, fmt.Errorf("read keystore file: %w", err)
		}
		var password []byte
		if passwordFile != "" {
			if password, err = os.ReadFile(passwordFile); err != nil {
				return nil, fmt.Errorf("read keystore password file: %w", err)
			}
		}
		wf, err := keystorev3.ReadWalletFile(keyData, []byte(strings.TrimSpace(string(password))))
		if err != nil {
			return nil, fmt.Errorf("unlock keystore: %w", err)
		}
		return secp256k1.KeyPairFromBytes(wf.PrivateKey()), nil
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil || len(raw) != 32 {
		return nil, fmt.Errorf("private key must be 32 hex-encoded bytes")
	}
	return secp256k1.KeyPairFromBytes(raw), nil
}

// NewKeyWallet returns a KeyWallet for kp, reading the chain ID from the node.
func NewKeyWallet(ctx context.Context, rpc rpcbackend.Backend, kp *secp256k1.KeyPair, cfg KeyConfig, logger *zap.Logger) (*KeyWallet, error) {
	if cfg.TxVersion == "" {
		cfg.TxVersion = TxEIP1559
	}
	if cfg.TxVersion != TxEIP1559 && cfg.TxVersion != TxLegacy {
		return nil, fmt.Errorf("unsupported tx version %q", cfg.TxVersion)
	}
	if cfg.GasEstimateFactor < 1.0 {
		cfg.GasEstimateFactor = 1.5
	}

	var chainID ethtypes.HexUint64
	if err := ethrpc.Call(ctx, rpc, &chainID, "eth_chainId"); err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	w := &KeyWallet{
		kp:      kp,
		address: ethtypes.Address0xHex(kp.Address).String(),
		rpc:     rpc,
		chainID: int64(chainID.Uint64()),
		cfg:     cfg,
		logger:  logger,
	}
	logger.Info("local signing key loaded",
		zap.String("address", w.address),
		zap.Int64("chain_id", w.chainID),
		zap.String("tx_version", string(cfg.TxVersion)),
	)
	return w, nil
}

// RequestAccounts implements Wallet.
func (w *KeyWallet) RequestAccounts(context.Context) ([]string, error) {
	return []string{w.address}, nil
}

// Signer implements Wallet.
func (w *KeyWallet) Signer(context.Context) (Signer, error) { return w, nil }

// Subscribe implements Wallet. A local key never changes account.
func (w *KeyWallet) Subscribe(fn func(string)) func() { return w.subs.add(fn) }

// Address implements Signer.
func (w *KeyWallet) Address() string { return w.address }

// ChainID returns the chain the wallet signs for.
func (w *KeyWallet) ChainID() int64 { return w.chainID }

// SendTransaction implements Signer. Nonce, gas limit and fees are filled
// from the node when unset.
func (w *KeyWallet) SendTransaction(ctx context.Context, tx *ethsigner.Transaction) (string, error) {
	from, _ := json.Marshal(w.address)
	tx.From = from

	if tx.Nonce == nil {
		var nonce ethtypes.HexUint64
		if err := ethrpc.Call(ctx, w.rpc, &nonce, "eth_getTransactionCount", w.address, "pending"); err != nil {
			return "", err
		}
		tx.Nonce = ethtypes.NewHexInteger(new(big.Int).SetUint64(nonce.Uint64()))
	}

	if tx.GasLimit == nil {
		var estimate ethtypes.HexInteger
		if err := ethrpc.Call(ctx, w.rpc, &estimate, "eth_estimateGas", tx); err != nil {
			return "", err
		}
		factored := new(big.Float).SetInt(estimate.BigInt())
		factored.Mul(factored, big.NewFloat(w.cfg.GasEstimateFactor))
		gasLimit, _ := factored.Int(nil)
		tx.GasLimit = ethtypes.NewHexInteger(gasLimit)
	}

	if err := w.fillFees(ctx, tx); err != nil {
		return "", err
	}

	raw, err := w.sign(tx)
	if err != nil {
		return "", err
	}

	var txHash ethtypes.HexBytes0xPrefix
	if err := ethrpc.Call(ctx, w.rpc, &txHash, "eth_sendRawTransaction", ethtypes.HexBytes0xPrefix(raw)); err != nil {
		return "", err
	}
	w.logger.Debug("transaction broadcast",
		zap.String("from", w.address),
		zap.String("tx_hash", txHash.String()),
	)
	return txHash.String(), nil
}

func (w *KeyWallet) fillFees(ctx context.Context, tx *ethsigner.Transaction) error {
	if tx.GasPrice != nil || tx.MaxFeePerGas != nil {
		return nil
	}
	var gasPrice ethtypes.HexInteger
	if err := ethrpc.Call(ctx, w.rpc, &gasPrice, "eth_gasPrice"); err != nil {
		return err
	}
	if w.cfg.TxVersion == TxLegacy {
		tx.GasPrice = &gasPrice
		return nil
	}

	tip := new(ethtypes.HexInteger)
	if err := ethrpc.Call(ctx, w.rpc, tip, "eth_maxPriorityFeePerGas"); err != nil {
		// nodes without the 1559 fee API get the legacy price as the tip
		tip = ethtypes.NewHexInteger(new(big.Int).Set(gasPrice.BigInt()))
	}
	maxFee := new(big.Int).Mul(gasPrice.BigInt(), big.NewInt(2))
	if maxFee.Cmp(tip.BigInt()) < 0 {
		maxFee.Set(tip.BigInt())
	}
	tx.MaxPriorityFeePerGas = tip
	tx.MaxFeePerGas = ethtypes.NewHexInteger(maxFee)
	return nil
}

func (w *KeyWallet) sign(tx *ethsigner.Transaction) ([]byte, error) {
	var sigPayload *ethsigner.TransactionSignaturePayload
	if w.cfg.TxVersion == TxLegacy {
		sigPayload = tx.SignaturePayloadLegacyEIP155(w.chainID)
	} else {
		sigPayload = tx.SignaturePayloadEIP1559(w.chainID)
	}

	hash := sha3.NewLegacyKeccak256()
	_, _ = hash.Write(sigPayload.Bytes())
	sig, err := w.kp.SignDirect(hash.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	var raw []byte
	if w.cfg.TxVersion == TxLegacy {
		raw, err = tx.FinalizeLegacyEIP155WithSignature(sigPayload, sig, w.chainID)
	} else {
		raw, err = tx.FinalizeEIP1559WithSignature(sigPayload, sig)
	}
	if err != nil {
		return nil, fmt.Errorf("finalize transaction: %w", err)
	}
	return raw, nil
}
