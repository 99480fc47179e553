// Package wallet is the boundary to the account holder's wallet: account
// access, network selection, signing and broadcasting, read-only calls.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 / EIP-3085 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
)

var (
	ErrNoProvider        = errors.New("no wallet provider")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrUnrecognizedChain = errors.New("unrecognized chain")
)

// Provider is what the disperse flow needs from a wallet.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the current chain as lower-case 0x-hex.
	ChainID(ctx context.Context) (string, error)
	SwitchChain(ctx context.Context, chainID string) error
	AddChain(ctx context.Context, n Network) error
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	// TransactionReceipt returns ethereum.NotFound while the tx is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxRequest is an unsigned transaction the wallet completes (nonce, gas,
// fees), signs and broadcasts.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// NativeCurrency follows the EIP-3085 nativeCurrency object.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Network is the EIP-3085 wallet_addEthereumChain parameter.
type Network struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// TxURL links a transaction on the network's explorer.
func (n Network) TxURL(hash common.Hash) string {
	if len(n.BlockExplorerURLs) == 0 {
		return ""
	}
	return strings.TrimRight(n.BlockExplorerURLs[0], "/") + "/tx/" + hash.Hex()
}

// ParseChainID accepts "0x"-hex or decimal chain ids.
func ParseChainID(s string) (*big.Int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "0x") {
		if len(s) == 2 {
			return nil, false
		}
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}

// FormatChainID renders a chain id as wallets report it ("0x61").
func FormatChainID(id *big.Int) string {
	if id == nil {
		return ""
	}
	return "0x" + id.Text(16)
}

// SameChain compares chain ids numerically, so "0x38", "0X38" and "56" match.
func SameChain(a, b string) bool {
	x, ok1 := ParseChainID(a)
	y, ok2 := ParseChainID(b)
	return ok1 && ok2 && x.Cmp(y) == 0
}

// Classify maps provider error codes onto the package sentinels, keeping
// the underlying error in the chain.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserRejected) || errors.Is(err, ErrUnrecognizedChain) {
		return err
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case CodeUserRejected, CodeUnauthorized:
			return fmt.Errorf("%w: %w", ErrUserRejected, err)
		case CodeUnrecognizedChain:
			return fmt.Errorf("%w: %w", ErrUnrecognizedChain, err)
		}
	}
	// Some mobile wallets wrap 4902 in an internal error.
	if strings.Contains(strings.ToLower(err.Error()), "unrecognized chain") {
		return fmt.Errorf("%w: %w", ErrUnrecognizedChain, err)
	}
	return err
}
