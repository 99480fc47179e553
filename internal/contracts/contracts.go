// Package contracts holds the ABI bindings for the on-chain disperse
// contract and the ERC20 token it distributes.
package contracts

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const disperseJSON = `[
  {"type":"function","stateMutability":"payable","name":"disperseBNB",
   "inputs":[{"name":"recipients","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[]},
  {"type":"function","stateMutability":"payable","name":"disperseEther",
   "inputs":[{"name":"recipients","type":"address[]"},{"name":"values","type":"uint256[]"}],"outputs":[]},
  {"type":"function","stateMutability":"nonpayable","name":"disperseToken",
   "inputs":[{"name":"token","type":"address"},{"name":"recipients","type":"address[]"},{"name":"amounts","type":"uint256[]"}],"outputs":[]}
]`

const erc20JSON = `[
  {"type":"function","stateMutability":"nonpayable","name":"approve",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","stateMutability":"view","name":"allowance",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"balanceOf",
   "inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","stateMutability":"view","name":"decimals","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","stateMutability":"view","name":"symbol","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

var (
	disperseABI abi.ABI
	erc20ABI    abi.ABI
)

func init() {
	disperseABI = mustParse(disperseJSON)
	erc20ABI = mustParse(erc20JSON)
}

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("contracts: bad ABI: %v", err))
	}
	return parsed
}

var (
	ErrMisaligned    = errors.New("recipients and amounts differ in length")
	ErrAmountTooBig  = errors.New("amount does not fit in uint256")
	ErrUnknownMethod = errors.New("unknown native disperse method")
)

// MaxUint256 is the unlimited approval sentinel.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// FitsUint256 reports whether v is a valid uint256 ABI value.
func FitsUint256(v *big.Int) bool {
	if v == nil || v.Sign() < 0 {
		return false
	}
	_, overflow := uint256.FromBig(v)
	return !overflow
}

func checkArrays(recipients []common.Address, amounts []*big.Int) error {
	if len(recipients) != len(amounts) {
		return fmt.Errorf("%w: %d recipients, %d amounts", ErrMisaligned, len(recipients), len(amounts))
	}
	for i, a := range amounts {
		if !FitsUint256(a) {
			return fmt.Errorf("%w: index %d", ErrAmountTooBig, i)
		}
	}
	return nil
}

// PackDisperseNative encodes the native-currency distribution call.
// method is "disperseBNB" or "disperseEther" depending on the deployment.
func PackDisperseNative(method string, recipients []common.Address, amounts []*big.Int) ([]byte, error) {
	if method != "disperseBNB" && method != "disperseEther" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	if err := checkArrays(recipients, amounts); err != nil {
		return nil, err
	}
	return disperseABI.Pack(method, recipients, amounts)
}

// PackDisperseToken encodes disperseToken(token, recipients, amounts).
func PackDisperseToken(token common.Address, recipients []common.Address, amounts []*big.Int) ([]byte, error) {
	if err := checkArrays(recipients, amounts); err != nil {
		return nil, err
	}
	return disperseABI.Pack("disperseToken", token, recipients, amounts)
}
