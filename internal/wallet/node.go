package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/go-co-op/gocron/v2"
	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/hyperledger/firefly-signer/pkg/rpcbackend"
	"go.uber.org/zap"
)

// NodeWallet uses the accounts managed by the connected node. The node signs
// via eth_sendTransaction and may refuse, which surfaces as ErrUserDeclined.
type NodeWallet struct {
	rpc    rpcbackend.Backend
	logger *zap.Logger

	mu        sync.Mutex
	primary   string
	seen      bool
	subs      subscribers
	scheduler gocron.Scheduler
}

// NewNodeWallet returns a NodeWallet on rpc. Call Watch to receive account changes.
func NewNodeWallet(rpc rpcbackend.Backend, logger *zap.Logger) *NodeWallet {
	return &NodeWallet{rpc: rpc, logger: logger}
}

// RequestAccounts implements Wallet. It asks the node to expose its accounts
// and falls back to eth_accounts on nodes without eth_requestAccounts.
func (w *NodeWallet) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	err := ethrpc.Call(ctx, w.rpc, &accounts, "eth_requestAccounts")
	if errors.Is(err, ethrpc.ErrMethodNotFound) {
		err = ethrpc.Call(ctx, w.rpc, &accounts, "eth_accounts")
	}
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	for i := range accounts {
		accounts[i] = strings.ToLower(accounts[i])
	}
	w.observe(accounts[0])
	return accounts, nil
}

// Signer implements Wallet.
func (w *NodeWallet) Signer(ctx context.Context) (Signer, error) {
	account, err := PrimaryAccount(ctx, w)
	if err != nil {
		return nil, err
	}
	return &nodeSigner{rpc: w.rpc, address: account}, nil
}

// Subscribe implements Wallet.
func (w *NodeWallet) Subscribe(fn func(string)) func() { return w.subs.add(fn) }

// Watch polls the node's accounts every interval and notifies subscribers
// when the primary account changes. Stop ends the polling.
func (w *NodeWallet) Watch(interval time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create account watcher: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(w.poll),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule account watcher: %w", err)
	}

	w.mu.Lock()
	w.scheduler = s
	w.mu.Unlock()

	w.logger.Info("watching wallet accounts", zap.Duration("interval", interval))
	s.Start()
	return nil
}

// Stop halts the account watcher.
func (w *NodeWallet) Stop() {
	w.mu.Lock()
	s := w.scheduler
	w.scheduler = nil
	w.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.Shutdown(); err != nil {
		w.logger.Warn("stop account watcher", zap.Error(err))
	}
}

func (w *NodeWallet) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var accounts []string
	if err := ethrpc.Call(ctx, w.rpc, &accounts, "eth_accounts"); err != nil {
		w.logger.Warn("poll wallet accounts", zap.Error(err))
		return
	}
	primary := ""
	if len(accounts) > 0 {
		primary = strings.ToLower(accounts[0])
	}
	w.observe(primary)
}

// observe records the current primary account and notifies on change.
// The first observation only establishes the baseline.
func (w *NodeWallet) observe(primary string) {
	w.mu.Lock()
	prev, seen := w.primary, w.seen
	w.primary, w.seen = primary, true
	w.mu.Unlock()

	if !seen || prev == primary {
		return
	}
	w.logger.Info("wallet account changed", zap.String("from", prev), zap.String("to", primary))
	w.subs.notify(primary)
}

type nodeSigner struct {
	rpc     rpcbackend.Backend
	address string
}

func (s *nodeSigner) Address() string { return s.address }

func (s *nodeSigner) SendTransaction(ctx context.Context, tx *ethsigner.Transaction) (string, error) {
	from, _ := json.Marshal(s.address)
	tx.From = from

	var txHash ethtypes.HexBytes0xPrefix
	if err := ethrpc.Call(ctx, s.rpc, &txHash, "eth_sendTransaction", tx); err != nil {
		return "", err
	}
	return txHash.String(), nil
}
