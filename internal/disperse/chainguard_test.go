package disperse

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ligun0805/disperse/internal/wallet"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	args := m.Called(ctx)
	accs, _ := args.Get(0).([]common.Address)
	return accs, args.Error(1)
}

func (m *mockProvider) ChainID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) SwitchChain(ctx context.Context, chainID string) error {
	return m.Called(ctx, chainID).Error(0)
}

func (m *mockProvider) AddChain(ctx context.Context, n wallet.Network) error {
	return m.Called(ctx, n).Error(0)
}

func (m *mockProvider) SendTransaction(ctx context.Context, tx wallet.TxRequest) (common.Hash, error) {
	args := m.Called(ctx, tx)
	h, _ := args.Get(0).(common.Hash)
	return h, args.Error(1)
}

func (m *mockProvider) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	args := m.Called(ctx, msg)
	out, _ := args.Get(0).([]byte)
	return out, args.Error(1)
}

func (m *mockProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, hash)
	r, _ := args.Get(0).(*types.Receipt)
	return r, args.Error(1)
}

var bscMainnet = wallet.Network{
	ChainID:           "0x38",
	ChainName:         "BNB Smart Chain",
	NativeCurrency:    wallet.NativeCurrency{Name: "BNB", Symbol: "BNB", Decimals: 18},
	RPCURLs:           []string{"https://bsc-dataseed.binance.org/"},
	BlockExplorerURLs: []string{"https://bscscan.com"},
}

func newGuard(p wallet.Provider) *ChainGuard {
	logger, _ := test.NewNullLogger()
	return NewChainGuard(p, bscMainnet, nil, logger)
}

func TestChainGuard_AlreadyOnChain(t *testing.T) {
	p := new(mockProvider)
	p.On("ChainID", mock.Anything).Return("0x38", nil).Once()

	require.NoError(t, newGuard(p).Ensure(context.Background()))
	p.AssertExpectations(t)
	p.AssertNotCalled(t, "SwitchChain", mock.Anything, mock.Anything)
}

func TestChainGuard_DecimalAndCaseInsensitive(t *testing.T) {
	p := new(mockProvider)
	p.On("ChainID", mock.Anything).Return("56", nil).Once()

	require.NoError(t, newGuard(p).Ensure(context.Background()))
	p.AssertNotCalled(t, "SwitchChain", mock.Anything, mock.Anything)
}

func TestChainGuard_SwitchesOnce(t *testing.T) {
	p := new(mockProvider)
	p.On("ChainID", mock.Anything).Return("0x1", nil).Once()
	p.On("SwitchChain", mock.Anything, "0x38").Return(nil).Once()
	p.On("ChainID", mock.Anything).Return("0x38", nil).Once()

	require.NoError(t, newGuard(p).Ensure(context.Background()))
	p.AssertExpectations(t)
	p.AssertNumberOfCalls(t, "SwitchChain", 1)
	p.AssertNotCalled(t, "AddChain", mock.Anything, mock.Anything)
}

func TestChainGuard_AddsUnknownChainOnce(t *testing.T) {
	p := new(mockProvider)
	p.On("ChainID", mock.Anything).Return("0x1", nil).Once()
	p.On("SwitchChain", mock.Anything, "0x38").
		Return(fmt.Errorf("%w: code 4902", wallet.ErrUnrecognizedChain)).Once()
	p.On("AddChain", mock.Anything, bscMainnet).Return(nil).Once()
	p.On("ChainID", mock.Anything).Return("0x38", nil).Once()

	require.NoError(t, newGuard(p).Ensure(context.Background()))
	p.AssertExpectations(t)
	p.AssertNumberOfCalls(t, "SwitchChain", 1)
	p.AssertNumberOfCalls(t, "AddChain", 1)
}

func TestChainGuard_RejectedSwitchIsNotRetried(t *testing.T) {
	p := new(mockProvider)
	p.On("ChainID", mock.Anything).Return("0x1", nil).Once()
	p.On("SwitchChain", mock.Anything, "0x38").Return(wallet.ErrUserRejected).Once()

	err := newGuard(p).Ensure(context.Background())
	require.ErrorIs(t, err, ErrChainMismatch)
	require.ErrorIs(t, err, ErrUserRejected)
	assert.Contains(t, err.Error(), "manually")
	p.AssertNumberOfCalls(t, "SwitchChain", 1)
	p.AssertNumberOfCalls(t, "ChainID", 1)
	p.AssertNotCalled(t, "AddChain", mock.Anything, mock.Anything)
}

func TestChainGuard_RejectedAdd(t *testing.T) {
	p := new(mockProvider)
	p.On("ChainID", mock.Anything).Return("0x1", nil).Once()
	p.On("SwitchChain", mock.Anything, "0x38").Return(wallet.ErrUnrecognizedChain).Once()
	p.On("AddChain", mock.Anything, bscMainnet).Return(wallet.ErrUserRejected).Once()

	err := newGuard(p).Ensure(context.Background())
	require.ErrorIs(t, err, ErrChainMismatch)
	require.ErrorIs(t, err, ErrUserRejected)
	p.AssertExpectations(t)
}

func TestChainGuard_StillWrongAfterSwitch(t *testing.T) {
	p := new(mockProvider)
	p.On("ChainID", mock.Anything).Return("0x1", nil).Once()
	p.On("SwitchChain", mock.Anything, "0x38").Return(nil).Once()
	p.On("ChainID", mock.Anything).Return("0x1", nil).Once()

	err := newGuard(p).Ensure(context.Background())
	require.ErrorIs(t, err, ErrChainMismatch)
	p.AssertExpectations(t)
}
