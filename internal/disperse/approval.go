package disperse

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ligun0805/disperse/internal/contracts"
	"github.com/ligun0805/disperse/internal/wallet"
)

type ApprovalState int

const (
	ApprovalUnknown ApprovalState = iota
	ApprovalInsufficient
	ApprovalSufficient
)

func (s ApprovalState) String() string {
	switch s {
	case ApprovalInsufficient:
		return "insufficient"
	case ApprovalSufficient:
		return "sufficient"
	default:
		return "unknown"
	}
}

// Evaluate derives the approval state from an on-chain allowance. The
// allowance must be positive and cover the required total.
func Evaluate(allowance, required *big.Int) ApprovalState {
	if allowance == nil || allowance.Sign() <= 0 {
		return ApprovalInsufficient
	}
	if required != nil && allowance.Cmp(required) < 0 {
		return ApprovalInsufficient
	}
	return ApprovalSufficient
}

// Approvals reads and changes the token allowance granted to the disperse
// contract.
type Approvals struct {
	provider  wallet.Provider
	token     common.Address
	spender   common.Address
	unlimited bool
}

func NewApprovals(p wallet.Provider, token, spender common.Address, unlimited bool) *Approvals {
	return &Approvals{provider: p, token: token, spender: spender, unlimited: unlimited}
}

// Allowance reads allowance(owner, spender).
func (a *Approvals) Allowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := contracts.PackAllowance(owner, a.spender)
	if err != nil {
		return nil, err
	}
	ret, err := a.provider.Call(ctx, ethereum.CallMsg{From: owner, To: &a.token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	return contracts.UnpackUint256("allowance", ret)
}

// Check reads the allowance and evaluates it against required. It has no
// side effects and may be repeated.
func (a *Approvals) Check(ctx context.Context, owner common.Address, required *big.Int) (ApprovalState, *big.Int, error) {
	allowance, err := a.Allowance(ctx, owner)
	if err != nil {
		return ApprovalUnknown, nil, err
	}
	return Evaluate(allowance, required), allowance, nil
}

// Amount is what Approve will request for a batch total.
func (a *Approvals) Amount(total *big.Int) *big.Int {
	if a.unlimited {
		return new(big.Int).Set(contracts.MaxUint256)
	}
	if total == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(total)
}

// Approve submits approve(spender, amount). The state does not change until
// the transaction is confirmed.
func (a *Approvals) Approve(ctx context.Context, from common.Address, amount *big.Int) (common.Hash, error) {
	return a.submit(ctx, from, amount)
}

// Revoke submits approve(spender, 0).
func (a *Approvals) Revoke(ctx context.Context, from common.Address) (common.Hash, error) {
	return a.submit(ctx, from, new(big.Int))
}

func (a *Approvals) submit(ctx context.Context, from common.Address, amount *big.Int) (common.Hash, error) {
	data, err := contracts.PackApprove(a.spender, amount)
	if err != nil {
		return common.Hash{}, err
	}
	h, err := a.provider.SendTransaction(ctx, wallet.TxRequest{From: from, To: a.token, Data: data})
	if err != nil {
		return common.Hash{}, signingError(err)
	}
	return h, nil
}

// TokenInfo reads symbol, decimals and the owner's balance.
type TokenInfo struct {
	Symbol   string
	Decimals uint8
	Balance  *big.Int
}

func (a *Approvals) TokenInfo(ctx context.Context, owner common.Address) (TokenInfo, error) {
	var info TokenInfo
	read := func(method string, pack func() ([]byte, error)) ([]byte, error) {
		data, err := pack()
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		ret, err := a.provider.Call(ctx, ethereum.CallMsg{From: owner, To: &a.token, Data: data})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method, err)
		}
		return ret, nil
	}

	ret, err := read("symbol", contracts.PackSymbol)
	if err != nil {
		return info, err
	}
	if info.Symbol, err = contracts.UnpackSymbol(ret); err != nil {
		return info, err
	}

	if ret, err = read("decimals", contracts.PackDecimals); err != nil {
		return info, err
	}
	if info.Decimals, err = contracts.UnpackDecimals(ret); err != nil {
		return info, err
	}

	ret, err = read("balanceOf", func() ([]byte, error) { return contracts.PackBalanceOf(owner) })
	if err != nil {
		return info, err
	}
	if info.Balance, err = contracts.UnpackUint256("balanceOf", ret); err != nil {
		return info, err
	}
	return info, nil
}
