package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/deathcert/registry/internal/ethrpc"
	"github.com/deathcert/registry/internal/ethrpc/rpctest"
	"github.com/deathcert/registry/internal/wallet"
	"github.com/hyperledger/firefly-signer/pkg/ethsigner"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testContract = "0xc27bf1edbca24ef9b7af5e9ef8199a2801ee869b"
	testAccount  = "0x00000000000000000000000000000000000000aa"
	testCertID   = "0x1111111111111111111111111111111111111111111111111111111111111111"
	testTxHash   = "0x5c3c1f4a0e6e9c2b6d3f8a1b7e4d2c9f0a8b7c6d5e4f3a2b1c0d9e8f7a6b5c4d"
)

// contractNode answers eth_call by function selector.
type contractNode struct {
	*rpctest.Node
	t         *testing.T
	functions map[string]*function
	views     map[string]func(args map[string]any) (map[string]any, *rpctest.Error)
	lastFrom  string
}

func newContractNode(t *testing.T) *contractNode {
	t.Helper()
	functions, err := loadFunctions(context.Background(), registryABI)
	require.NoError(t, err)
	n := &contractNode{
		Node:      rpctest.NewNode(t),
		t:         t,
		functions: functions,
		views:     map[string]func(map[string]any) (map[string]any, *rpctest.Error){},
	}
	n.Handle("eth_call", n.ethCall)
	return n
}

func (n *contractNode) view(name string, fn func(args map[string]any) (map[string]any, *rpctest.Error)) {
	n.views[name] = fn
}

func (n *contractNode) ethCall(params []json.RawMessage) (any, *rpctest.Error) {
	ctx := context.Background()
	var tx ethsigner.Transaction
	require.NoError(n.t, json.Unmarshal(params[0], &tx))
	if len(tx.From) > 0 {
		_ = json.Unmarshal(tx.From, &n.lastFrom)
	}

	for name, f := range n.functions {
		if !bytes.Equal(tx.Data[:4], f.selector) {
			continue
		}
		fn, ok := n.views[name]
		if !ok {
			return nil, &rpctest.Error{Code: -32000, Message: "unexpected call " + name}
		}
		cv, err := f.inputs.DecodeABIDataCtx(ctx, tx.Data[4:], 0)
		require.NoError(n.t, err)
		argsJSON, err := serializer.SerializeJSONCtx(ctx, cv)
		require.NoError(n.t, err)
		var args map[string]any
		require.NoError(n.t, json.Unmarshal(argsJSON, &args))

		out, rpcErr := fn(args)
		if rpcErr != nil {
			return nil, rpcErr
		}
		ocv, err := f.outputs.ParseExternalCtx(ctx, out)
		require.NoError(n.t, err)
		encoded, err := ocv.EncodeABIDataCtx(ctx)
		require.NoError(n.t, err)
		return ethtypes.HexBytes0xPrefix(encoded).String(), nil
	}
	return nil, &rpctest.Error{Code: -32000, Message: "unknown selector"}
}

// fakeWallet signs nothing; it records what would be sent.
type fakeWallet struct {
	account string
	sent    []*ethsigner.Transaction
	sendErr error
}

func (w *fakeWallet) RequestAccounts(context.Context) ([]string, error) {
	if w.account == "" {
		return nil, wallet.ErrProviderAbsent
	}
	return []string{w.account}, nil
}

func (w *fakeWallet) Signer(context.Context) (wallet.Signer, error) {
	if w.account == "" {
		return nil, wallet.ErrProviderAbsent
	}
	return w, nil
}

func (w *fakeWallet) Subscribe(func(string)) func() { return func() {} }
func (w *fakeWallet) Address() string               { return w.account }

func (w *fakeWallet) SendTransaction(_ context.Context, tx *ethsigner.Transaction) (string, error) {
	if w.sendErr != nil {
		return "", w.sendErr
	}
	w.sent = append(w.sent, tx)
	return testTxHash, nil
}

func newTestClient(t *testing.T, node *rpctest.Node, w wallet.Wallet) *Client {
	t.Helper()
	c, err := NewClient(context.Background(), ethrpc.NewBackend(node.URL, 0), w, Config{
		ContractAddress:     testContract,
		ReceiptPollInterval: 5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClient_RejectsBadAddress(t *testing.T) {
	_, err := NewClient(context.Background(), nil, wallet.Absent{}, Config{ContractAddress: "nope"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestGenerateCertificateID(t *testing.T) {
	node := newContractNode(t)
	node.view("generateCertificateId", func(args map[string]any) (map[string]any, *rpctest.Error) {
		assert.Equal(t, "900101145678", args["ic"])
		return map[string]any{"certificateId": testCertID}, nil
	})

	c := newTestClient(t, node.Node, &fakeWallet{account: testAccount})
	id, err := c.GenerateCertificateID(context.Background(), "900101145678")
	require.NoError(t, err)
	assert.Equal(t, testCertID, id)
	assert.Equal(t, testAccount, node.lastFrom)
}

func TestGetCertificateMetadata(t *testing.T) {
	node := newContractNode(t)
	node.view("getCertificateMetadata", func(args map[string]any) (map[string]any, *rpctest.Error) {
		assert.Equal(t, testCertID, args["certificateId"])
		return map[string]any{"metadata": map[string]any{
			"id":               testCertID,
			"ipfsCID":          "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG",
			"isValid":          true,
			"submitterAddress": testAccount,
			"timestamp":        "1700000000",
		}}, nil
	})

	c := newTestClient(t, node.Node, wallet.Absent{})
	m, err := c.GetCertificateMetadata(context.Background(), testCertID)
	require.NoError(t, err)
	assert.Equal(t, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", m.ContentAddress)
	assert.True(t, m.IsValid)
	assert.Equal(t, testAccount, m.SubmitterAddress)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), m.Timestamp)
	assert.Empty(t, node.lastFrom)
}

func TestGetCertificateMetadata_NotFound(t *testing.T) {
	node := newContractNode(t)
	node.view("getCertificateMetadata", func(map[string]any) (map[string]any, *rpctest.Error) {
		return nil, &rpctest.Error{Code: 3, Message: "execution reverted: Certificate does not exist"}
	})

	c := newTestClient(t, node.Node, &fakeWallet{account: testAccount})
	_, err := c.GetCertificateMetadata(context.Background(), testCertID)
	assert.ErrorIs(t, err, ErrCertificateNotFound)
}

func TestGetCertificateMetadata_Unauthorized(t *testing.T) {
	node := newContractNode(t)
	node.view("getCertificateMetadata", func(map[string]any) (map[string]any, *rpctest.Error) {
		return nil, &rpctest.Error{Code: 3, Message: "execution reverted: Unauthorized access"}
	})

	c := newTestClient(t, node.Node, &fakeWallet{account: testAccount})
	_, err := c.GetCertificateMetadata(context.Background(), testCertID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	var revert *ethrpc.RevertError
	assert.ErrorAs(t, err, &revert)
}

func TestGetCertificateMetadata_TransportFailure(t *testing.T) {
	node := rpctest.NewNode(t)
	node.Fail("eth_call", -32603, "upstream unavailable")

	c := newTestClient(t, node, wallet.Absent{})
	_, err := c.GetCertificateMetadata(context.Background(), testCertID)
	assert.ErrorIs(t, err, ethrpc.ErrTransport)
	assert.NotErrorIs(t, err, ErrCertificateNotFound)
}

func TestCheckRoles(t *testing.T) {
	adminRole := "0x0000000000000000000000000000000000000000000000000000000000000000"
	node := newContractNode(t)
	node.view("checkRoles", func(args map[string]any) (map[string]any, *rpctest.Error) {
		assert.Equal(t, testAccount, args["account"])
		return map[string]any{"isAuthority": true, "isFamily": false}, nil
	})
	node.view("DEFAULT_ADMIN_ROLE", func(map[string]any) (map[string]any, *rpctest.Error) {
		return map[string]any{"role": adminRole}, nil
	})
	node.view("hasRole", func(args map[string]any) (map[string]any, *rpctest.Error) {
		assert.Equal(t, adminRole, args["role"])
		return map[string]any{"granted": true}, nil
	})

	c := newTestClient(t, node.Node, wallet.Absent{})
	roles, err := c.CheckRoles(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	assert.Equal(t, &Roles{IsAdmin: true, IsAuthority: true}, roles)

	_, err = c.CheckRoles(context.Background(), "0x00000000000000000000000000000000000000AA")
	require.NoError(t, err)
	// admin role constant is read once: 3 calls, then 2
	assert.Equal(t, 5, node.Calls("eth_call"))
}

func TestCreateCertificate_WaitSuccess(t *testing.T) {
	node := rpctest.NewNode(t)
	polls := 0
	node.Handle("eth_getTransactionReceipt", func([]json.RawMessage) (any, *rpctest.Error) {
		polls++
		if polls < 3 {
			return nil, nil
		}
		return map[string]any{
			"transactionHash": testTxHash,
			"blockNumber":     "0x10",
			"gasUsed":         "0x5208",
			"status":          "0x1",
		}, nil
	})

	w := &fakeWallet{account: testAccount}
	c := newTestClient(t, node, w)
	tx, err := c.CreateCertificate(context.Background(), "900101145678", "QmCID", "")
	require.NoError(t, err)
	assert.Equal(t, testTxHash, tx.Hash())

	require.Len(t, w.sent, 1)
	assert.Equal(t, testContract, w.sent[0].To.String())
	assert.Equal(t, []byte(c.fn("createCertificate").selector), []byte(w.sent[0].Data[:4]))

	receipt, err := tx.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, uint64(16), receipt.BlockNumber)
}

func TestCreateCertificate_WaitReverted(t *testing.T) {
	node := rpctest.NewNode(t)
	ctx := context.Background()
	tc, err := solidityError.Inputs.TypeComponentTreeCtx(ctx)
	require.NoError(t, err)
	cv, err := tc.ParseExternalCtx(ctx, []any{"Unauthorized access"})
	require.NoError(t, err)
	reason, err := solidityError.EncodeCallDataCtx(ctx, cv)
	require.NoError(t, err)
	node.Result("eth_getTransactionReceipt", map[string]any{
		"transactionHash": testTxHash,
		"blockNumber":     "0x10",
		"status":          "0x0",
		"revertReason":    ethtypes.HexBytes0xPrefix(reason).String(),
	})

	c := newTestClient(t, node, &fakeWallet{account: testAccount})
	tx, err := c.CreateCertificate(context.Background(), "900101145678", "QmCID", testAccount)
	require.NoError(t, err)

	receipt, err := tx.Wait(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsRevert(err))
	require.NotNil(t, receipt)
	assert.False(t, receipt.Success)
}

func TestCreateCertificate_WaitHonoursContext(t *testing.T) {
	node := rpctest.NewNode(t)
	node.Result("eth_getTransactionReceipt", nil)

	c := newTestClient(t, node, &fakeWallet{account: testAccount})
	tx, err := c.CreateCertificate(context.Background(), "900101145678", "QmCID", "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = tx.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateCertificate_ProviderAbsent(t *testing.T) {
	node := rpctest.NewNode(t)
	c := newTestClient(t, node, wallet.Absent{})
	_, err := c.CreateCertificate(context.Background(), "900101145678", "QmCID", "")
	assert.ErrorIs(t, err, wallet.ErrProviderAbsent)
}

func TestCreateCertificate_UserDeclined(t *testing.T) {
	node := rpctest.NewNode(t)
	w := &fakeWallet{account: testAccount, sendErr: ethrpc.Classify(4001, "User rejected the request.")}
	c := newTestClient(t, node, w)
	_, err := c.CreateCertificate(context.Background(), "900101145678", "QmCID", "")
	assert.ErrorIs(t, err, ethrpc.ErrUserDeclined)
}

func TestManageRole(t *testing.T) {
	node := rpctest.NewNode(t)
	w := &fakeWallet{account: testAccount}
	c := newTestClient(t, node, w)

	_, err := c.ManageRole(context.Background(), GrantFamily, "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = c.ManageRole(context.Background(), RoleAction("promote"), testAccount)
	assert.Error(t, err)

	_, err = c.ManageRole(context.Background(), RevokeAuthority, testAccount)
	require.NoError(t, err)
	require.Len(t, w.sent, 1)
	assert.Equal(t, []byte(c.fn("revokeAuthorityRole").selector), []byte(w.sent[0].Data[:4]))
}

func TestRoleAction(t *testing.T) {
	assert.True(t, GrantAuthority.RequiresAdmin())
	assert.True(t, RevokeAuthority.RequiresAdmin())
	assert.False(t, GrantFamily.RequiresAdmin())
	assert.False(t, RoleAction("x").Valid())
}
