package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// Backend is the node API the keyed wallet signs against. *ethclient.Client
// satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Dialer opens a Backend for an RPC endpoint.
type Dialer func(ctx context.Context, url string) (Backend, error)

// DialBackend dials with keep-alives and a request timeout.
func DialBackend(ctx context.Context, url string) (Backend, error) {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		httpClient := &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{MaxIdleConns: 100, IdleConnTimeout: 90 * time.Second},
		}
		rc, err := rpc.DialHTTPWithClient(url, httpClient)
		if err != nil {
			return nil, err
		}
		return ethclient.NewClient(rc), nil
	}
	return ethclient.DialContext(ctx, url)
}

// KeyedOptions tunes the headless wallet.
type KeyedOptions struct {
	Dial Dialer
	// GasBufferPct is added on top of eth_estimateGas.
	GasBufferPct int64
	// Tip overrides eth_maxPriorityFeePerGas when set.
	Tip *big.Int
	// Confirm is asked before every signature; false rejects the request.
	Confirm func(ctx context.Context, tx TxRequest) bool
	Logger  logrus.FieldLogger
}

// Keyed is a headless wallet holding one private key. The networks it knows
// are RPC endpoints; it starts with the one it was opened on and learns
// more through AddChain, the way a browser wallet does.
type Keyed struct {
	mu       sync.Mutex
	key      *ecdsa.PrivateKey
	addr     common.Address
	opts     KeyedOptions
	networks map[string]string
	backend  Backend
	chainID  *big.Int
	log      logrus.FieldLogger
}

// OpenKeyed parses the key and connects to the initial RPC endpoint.
func OpenKeyed(ctx context.Context, pkHex, rpcURL string, opts KeyedOptions) (*Keyed, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(pkHex), "0x"))
	if h == "" {
		return nil, fmt.Errorf("%w: empty private key", ErrNoProvider)
	}
	key, err := gethcrypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("%w: bad private key: %w", ErrNoProvider, err)
	}
	if opts.Dial == nil {
		opts.Dial = DialBackend
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	k := &Keyed{
		key:      key,
		addr:     gethcrypto.PubkeyToAddress(key.PublicKey),
		opts:     opts,
		networks: make(map[string]string),
		log:      opts.Logger.WithField("wallet", "keyed"),
	}
	b, id, err := k.open(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, err)
	}
	k.backend, k.chainID = b, id
	k.networks[FormatChainID(id)] = rpcURL
	return k, nil
}

func (k *Keyed) open(ctx context.Context, url string) (Backend, *big.Int, error) {
	b, err := k.opts.Dial(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", url, err)
	}
	id, err := b.ChainID(ctx)
	if err != nil {
		b.Close()
		return nil, nil, fmt.Errorf("chain id from %s: %w", url, err)
	}
	return b, id, nil
}

func (k *Keyed) Address() common.Address { return k.addr }

func (k *Keyed) Close() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.backend != nil {
		k.backend.Close()
	}
}

func (k *Keyed) current() (Backend, *big.Int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.backend, k.chainID
}

func (k *Keyed) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{k.addr}, nil
}

func (k *Keyed) ChainID(ctx context.Context) (string, error) {
	_, id := k.current()
	return FormatChainID(id), nil
}

func (k *Keyed) SwitchChain(ctx context.Context, chainID string) error {
	want, ok := ParseChainID(chainID)
	if !ok {
		return fmt.Errorf("bad chain id %q", chainID)
	}
	_, id := k.current()
	if id.Cmp(want) == 0 {
		return nil
	}
	k.mu.Lock()
	url, known := k.networks[FormatChainID(want)]
	k.mu.Unlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnrecognizedChain, FormatChainID(want))
	}
	return k.activate(ctx, url, want)
}

func (k *Keyed) AddChain(ctx context.Context, n Network) error {
	want, ok := ParseChainID(n.ChainID)
	if !ok {
		return fmt.Errorf("bad chain id %q", n.ChainID)
	}
	if len(n.RPCURLs) == 0 {
		return errors.New("network has no rpc url")
	}
	if err := k.activate(ctx, n.RPCURLs[0], want); err != nil {
		return err
	}
	k.mu.Lock()
	k.networks[FormatChainID(want)] = n.RPCURLs[0]
	k.mu.Unlock()
	k.log.WithFields(logrus.Fields{"chain": n.ChainID, "name": n.ChainName}).Info("network added")
	return nil
}

// activate dials url, checks it serves want and makes it current.
func (k *Keyed) activate(ctx context.Context, url string, want *big.Int) error {
	b, id, err := k.open(ctx, url)
	if err != nil {
		return err
	}
	if id.Cmp(want) != 0 {
		b.Close()
		return fmt.Errorf("%s serves chain %s, want %s", url, FormatChainID(id), FormatChainID(want))
	}
	k.mu.Lock()
	old := k.backend
	k.backend, k.chainID = b, id
	k.mu.Unlock()
	if old != nil {
		old.Close()
	}
	k.log.WithField("chain", FormatChainID(id)).Debug("switched network")
	return nil
}

func (k *Keyed) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	if req.From != k.addr {
		return common.Hash{}, fmt.Errorf("%w: account %s is not managed by this wallet", ErrUserRejected, req.From.Hex())
	}
	if k.opts.Confirm != nil && !k.opts.Confirm(ctx, req) {
		return common.Hash{}, ErrUserRejected
	}
	b, chainID := k.current()
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := b.PendingNonceAt(ctx, k.addr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	to := req.To
	est, err := withRetry(ctx, func() (uint64, error) {
		return b.EstimateGas(ctx, ethereum.CallMsg{From: k.addr, To: &to, Value: value, Data: req.Data})
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit := est + est*uint64(k.opts.GasBufferPct)/100

	head, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("head: %w", err)
	}
	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := k.tip(ctx, b)
		if err != nil {
			return common.Hash{}, err
		}
		feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		tx = buildDynamicTx(chainID, nonce, &to, value, gasLimit, tip, feeCap, req.Data)
	} else {
		price, err := b.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{Nonce: nonce, GasPrice: price, Gas: gasLimit, To: &to, Value: new(big.Int).Set(value), Data: req.Data})
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), k.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast: %w", err)
	}
	k.log.WithFields(logrus.Fields{
		"hash":  signed.Hash().Hex(),
		"nonce": nonce,
		"gas":   gasLimit,
		"to":    to.Hex(),
	}).Debug("transaction broadcast")
	return signed.Hash(), nil
}

func (k *Keyed) tip(ctx context.Context, b Backend) (*big.Int, error) {
	if k.opts.Tip != nil && k.opts.Tip.Sign() > 0 {
		return new(big.Int).Set(k.opts.Tip), nil
	}
	tip, err := b.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("tip: %w", err)
	}
	return tip, nil
}

func buildDynamicTx(chain *big.Int, nonce uint64, to *common.Address, value *big.Int, gasLimit uint64, tip, feeCap *big.Int, data []byte) *types.Transaction {
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   chain,
		Nonce:     nonce,
		Gas:       gasLimit,
		GasTipCap: new(big.Int).Set(tip),
		GasFeeCap: new(big.Int).Set(feeCap),
		To:        to,
		Value:     new(big.Int).Set(value),
		Data:      data,
	})
}

func (k *Keyed) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	b, _ := k.current()
	return withRetry(ctx, func() ([]byte, error) {
		return b.CallContract(ctx, msg, nil)
	})
}

func (k *Keyed) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b, _ := k.current()
	return b.TransactionReceipt(ctx, hash)
}
