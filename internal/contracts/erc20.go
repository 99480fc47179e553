package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	if !FitsUint256(amount) {
		return nil, ErrAmountTooBig
	}
	return erc20ABI.Pack("approve", spender, amount)
}

func PackAllowance(owner, spender common.Address) ([]byte, error) {
	return erc20ABI.Pack("allowance", owner, spender)
}

func PackBalanceOf(owner common.Address) ([]byte, error) {
	return erc20ABI.Pack("balanceOf", owner)
}

func PackDecimals() ([]byte, error) { return erc20ABI.Pack("decimals") }

func PackSymbol() ([]byte, error) { return erc20ABI.Pack("symbol") }

// UnpackUint256 decodes the single uint256 returned by allowance/balanceOf.
func UnpackUint256(method string, ret []byte) (*big.Int, error) {
	if len(ret) == 0 {
		return nil, fmt.Errorf("%s: empty return data", method)
	}
	out, err := erc20ABI.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected return type %T", method, out[0])
	}
	return v, nil
}

func UnpackDecimals(ret []byte) (uint8, error) {
	if len(ret) == 0 {
		return 0, fmt.Errorf("decimals: empty return data")
	}
	out, err := erc20ABI.Unpack("decimals", ret)
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected return type %T", out[0])
	}
	return d, nil
}

// UnpackSymbol supports both string and bytes32 symbol() returns.
func UnpackSymbol(ret []byte) (string, error) {
	if len(ret) == 0 {
		return "", fmt.Errorf("symbol: empty return data")
	}
	if out, err := erc20ABI.Unpack("symbol", ret); err == nil {
		if s, ok := out[0].(string); ok {
			return s, nil
		}
	}
	if len(ret) == 32 {
		return string(common.TrimRightZeroes(ret)), nil
	}
	return "", fmt.Errorf("symbol: undecodable return (%d bytes)", len(ret))
}
