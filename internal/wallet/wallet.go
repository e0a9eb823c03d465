// Package wallet provides the account and signing provider used for
// certificate contract transactions.
//
// Three providers exist: Absent (no wallet configured), KeyWallet (a local
// secp256k1 key that signs raw transactions) and NodeWallet (accounts managed
// by the connected node, which signs via eth_sendTransaction).
package wallet

import (
	"context"
	"errors"
	"sync"

	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
)

var (
	// ErrProviderAbsent is returned by every operation when no wallet is configured.
	ErrProviderAbsent = errors.New("no wallet provider is configured")
	// ErrNoAccounts is returned when the provider exposes no accounts.
	ErrNoAccounts = errors.New("wallet has no accounts")
)

// Wallet is the account and signing provider.
type Wallet interface {
	// RequestAccounts returns the provider's accounts, primary first.
	RequestAccounts(ctx context.Context) ([]string, error)
	// Signer returns the signer for the primary account.
	Signer(ctx context.Context) (Signer, error)
	// Subscribe registers fn to be called with the new primary account
	// whenever it changes. The returned func cancels the subscription.
	Subscribe(fn func(account string)) (cancel func())
}

// Signer submits transactions from one account.
type Signer interface {
	Address() string
	// SendTransaction fills, signs and broadcasts tx and returns its hash.
	SendTransaction(ctx context.Context, tx *ethsigner.Transaction) (string, error)
}

// PrimaryAccount returns the first account of w.
func PrimaryAccount(ctx context.Context, w Wallet) (string, error) {
	accounts, err := w.RequestAccounts(ctx)
	if err != nil {
		return "", err
	}
	if len(accounts) == 0 {
		return "", ErrNoAccounts
	}
	return accounts[0], nil
}

// Absent is the Wallet used when no provider is configured.
type Absent struct{}

// RequestAccounts implements Wallet.
func (Absent) RequestAccounts(context.Context) ([]string, error) { return nil, ErrProviderAbsent }

// Signer implements Wallet.
func (Absent) Signer(context.Context) (Signer, error) { return nil, ErrProviderAbsent }

// Subscribe implements Wallet.
func (Absent) Subscribe(func(string)) func() { return func() {} }

// subscribers is the account-change fan-out shared by providers.
type subscribers struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(string)
}

func (s *subscribers) add(fn func(string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fns == nil {
		s.fns = make(map[int]func(string))
	}
	id := s.next
	s.next++
	s.fns[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.fns, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) notify(account string) {
	s.mu.Lock()
	fns := make([]func(string), 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(account)
	}
}
