package main

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/disperse/internal/config"
	"github.com/ligun0805/disperse/internal/disperse"
	"github.com/ligun0805/disperse/internal/wallet"
)

// stubWallet is already on the configured chain and mines every
// transaction in block 7 with the given receipt status.
type stubWallet struct {
	mu      sync.Mutex
	status  uint64
	pending bool
	sent    int
}

func (w *stubWallet) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{common.HexToAddress("0x00000000000000000000000000000000000000aa")}, nil
}

func (w *stubWallet) ChainID(context.Context) (string, error) { return "0x61", nil }

func (w *stubWallet) SwitchChain(context.Context, string) error { return nil }

func (w *stubWallet) AddChain(context.Context, wallet.Network) error { return nil }

func (w *stubWallet) SendTransaction(context.Context, wallet.TxRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent++
	return common.BigToHash(big.NewInt(0xabc)), nil
}

func (w *stubWallet) Call(context.Context, ethereum.CallMsg) ([]byte, error) {
	return make([]byte, 32), nil
}

func (w *stubWallet) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: w.status, TxHash: hash, BlockNumber: big.NewInt(7), Logs: []*types.Log{}}, nil
}

func testApp(t *testing.T, p wallet.Provider) (*app, *disperse.Orchestrator, *bytes.Buffer) {
	t.Helper()
	testEnv(t)
	st, err := config.Load()
	require.NoError(t, err)
	st.ConfirmPoll = time.Millisecond

	logger, _ := test.NewNullLogger()
	var out bytes.Buffer
	a := &app{st: st, log: logger, out: &out, errOut: &out}
	o := disperse.New(disperse.Options{
		Config: disperse.Config{
			Network:        st.Network(),
			Disperse:       st.Disperse(),
			Token:          st.Token(),
			TokenDecimals:  st.TokenDecimals,
			NativeDecimals: st.NativeDecimals,
			NativeMethod:   st.NativeMethod,
			ConfirmPoll:    st.ConfirmPoll,
			ConfirmTimeout: time.Second,
		},
		Dial:   func(context.Context) (wallet.Provider, error) { return p, nil },
		Logger: logger,
	})
	t.Cleanup(o.Close)
	return a, o, &out
}

func sendNative(t *testing.T, ctx context.Context, o *disperse.Orchestrator) *disperse.TxHandle {
	t.Helper()
	require.NoError(t, o.Connect(ctx))
	require.NoError(t, o.SelectMode(ctx, disperse.ModeNative))
	_, err := o.UpdateInput(ctx, recipientA+", 1")
	require.NoError(t, err)
	h, err := o.Send(ctx)
	require.NoError(t, err)
	return h
}

func TestWaitTx_Reverted(t *testing.T) {
	ctx := context.Background()
	a, o, out := testApp(t, &stubWallet{status: types.ReceiptStatusFailed})
	h := sendNative(t, ctx, o)

	err := waitTx(ctx, a, h)
	require.ErrorIs(t, err, disperse.ErrTransactionFailed)
	assert.NotContains(t, err.Error(), "stopped waiting")
	assert.Contains(t, out.String(), "Tx:       native failed "+h.Hash.Hex())
	assert.Contains(t, out.String(), "reverted in block 7")
}

func TestWaitTx_Confirmed(t *testing.T) {
	ctx := context.Background()
	a, o, out := testApp(t, &stubWallet{status: types.ReceiptStatusSuccessful})
	h := sendNative(t, ctx, o)

	require.NoError(t, waitTx(ctx, a, h))
	assert.Contains(t, out.String(), "Tx:       native confirmed "+h.Hash.Hex())
	assert.Contains(t, out.String(), "/tx/"+h.Hash.Hex())
}

func TestWaitTx_CallerGivesUp(t *testing.T) {
	a, o, _ := testApp(t, &stubWallet{pending: true})
	h := sendNative(t, context.Background(), o)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitTx(ctx, a, h)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "stopped waiting")
	assert.Equal(t, disperse.TxSubmitted, h.Status())
}
