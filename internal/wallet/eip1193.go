package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// EIP1193 drives an external wallet that exposes the EIP-1193 request
// surface over JSON-RPC (HTTP or websocket), e.g. Frame on :1248. The
// wallet owns the keys and shows its own prompts.
type EIP1193 struct {
	rpc *rpc.Client
}

// DialEIP1193 connects to a wallet endpoint.
func DialEIP1193(ctx context.Context, url string) (*EIP1193, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, err)
	}
	return NewEIP1193(c), nil
}

func NewEIP1193(c *rpc.Client) *EIP1193 {
	return &EIP1193{rpc: c}
}

func (w *EIP1193) Close() { w.rpc.Close() }

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data,omitempty"`
}

type callArgs struct {
	From *common.Address `json:"from,omitempty"`
	To   *common.Address `json:"to"`
	Data hexutil.Bytes   `json:"data,omitempty"`
}

func (w *EIP1193) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := w.rpc.CallContext(ctx, &accounts, "eth_requestAccounts")
	if err != nil {
		var rpcErr rpc.Error
		if !errors.As(err, &rpcErr) {
			// Transport failure: nothing is listening.
			return nil, fmt.Errorf("%w: %w", ErrNoProvider, err)
		}
		return nil, Classify(err)
	}
	return accounts, nil
}

func (w *EIP1193) ChainID(ctx context.Context) (string, error) {
	var id hexutil.Big
	if err := w.rpc.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return "", Classify(err)
	}
	return FormatChainID((*big.Int)(&id)), nil
}

func (w *EIP1193) SwitchChain(ctx context.Context, chainID string) error {
	return Classify(w.rpc.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: chainID}))
}

func (w *EIP1193) AddChain(ctx context.Context, n Network) error {
	return Classify(w.rpc.CallContext(ctx, nil, "wallet_addEthereumChain", n))
}

func (w *EIP1193) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	args := sendTxArgs{From: tx.From, To: tx.To, Data: tx.Data}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	var hash common.Hash
	if err := w.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, Classify(err)
	}
	return hash, nil
}

func (w *EIP1193) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	args := callArgs{To: msg.To, Data: msg.Data}
	if msg.From != (common.Address{}) {
		from := msg.From
		args.From = &from
	}
	return withRetry(ctx, func() ([]byte, error) {
		var out hexutil.Bytes
		err := w.rpc.CallContext(ctx, &out, "eth_call", args, "latest")
		return out, err
	})
}

func (w *EIP1193) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var r *types.Receipt
	if err := w.rpc.CallContext(ctx, &r, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ethereum.NotFound
	}
	return r, nil
}
