package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"

	"github.com/ligun0805/disperse/internal/wallet"
)

const (
	WalletKeyed   = "keyed"
	WalletEIP1193 = "eip1193"

	ApprovalExact     = "exact"
	ApprovalUnlimited = "unlimited"
)

// Settings keeps all deployment options. Values are fixed for the lifetime
// of a process; nothing here is editable from a session.
type Settings struct {
	// Network descriptor
	ChainID        string `envconfig:"CHAIN_ID" default:"0x61"`
	ChainName      string `envconfig:"CHAIN_NAME" default:"BSC Testnet"`
	RPCURL         string `envconfig:"RPC_URL" default:"https://data-seed-prebsc-1-s1.binance.org:8545/"`
	ExplorerURL    string `envconfig:"EXPLORER_URL" default:"https://testnet.bscscan.com"`
	NativeName     string `envconfig:"NATIVE_NAME" default:"BNB"`
	NativeSymbol   string `envconfig:"NATIVE_SYMBOL" default:"tBNB"`
	NativeDecimals int    `envconfig:"NATIVE_DECIMALS" default:"18"`

	// Contracts
	DisperseAddress string `envconfig:"DISPERSE_ADDRESS" default:"0x1836cAcae9047D65FAe66480CEAd837de7594F49"`
	NativeMethod    string `envconfig:"NATIVE_METHOD" default:"disperseBNB"`
	TokenAddress    string `envconfig:"TOKEN_ADDRESS" default:"0x48a7468F60fA55De3D3131daA618F8610C788020"`
	TokenSymbol     string `envconfig:"TOKEN_SYMBOL" default:"AVG"`
	TokenDecimals   int    `envconfig:"TOKEN_DECIMALS" default:"18"`
	ApprovalAmount  string `envconfig:"APPROVAL_AMOUNT" default:"exact"`

	// Wallet
	Wallet           string        `envconfig:"WALLET" default:"keyed"`
	WalletURL        string        `envconfig:"WALLET_URL" default:"http://127.0.0.1:1248"`
	WalletRPCURL     string        `envconfig:"WALLET_RPC_URL"`
	SenderPrivateKey string        `envconfig:"SENDER_PRIVATE_KEY"`
	GasBufferPct     int64         `envconfig:"GAS_BUFFER_PCT" default:"20"`
	TipGwei          int64         `envconfig:"TIP_GWEI" default:"0"`
	ConfirmPoll      time.Duration `envconfig:"CONFIRM_POLL" default:"2s"`
	ConfirmTimeout   time.Duration `envconfig:"CONFIRM_TIMEOUT" default:"5m"`

	// Ambient
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`
}

// Load reads settings from the environment and validates them.
func Load() (Settings, error) {
	var st Settings
	if err := envconfig.Process("", &st); err != nil {
		return Settings{}, fmt.Errorf("failed to process env var: %w", err)
	}
	if id, ok := wallet.ParseChainID(st.ChainID); ok {
		st.ChainID = wallet.FormatChainID(id)
	}
	st.Wallet = strings.ToLower(strings.TrimSpace(st.Wallet))
	st.ApprovalAmount = strings.ToLower(strings.TrimSpace(st.ApprovalAmount))
	if st.WalletRPCURL == "" {
		st.WalletRPCURL = st.RPCURL
	}
	if err := st.Validate(); err != nil {
		return Settings{}, err
	}
	return st, nil
}

// Validate reports every invalid field at once.
func (st Settings) Validate() error {
	var errs []error
	if _, ok := wallet.ParseChainID(st.ChainID); !ok {
		errs = append(errs, fmt.Errorf("CHAIN_ID %q is not a hex chain id", st.ChainID))
	}
	if !common.IsHexAddress(st.DisperseAddress) {
		errs = append(errs, fmt.Errorf("DISPERSE_ADDRESS %q is not an address", st.DisperseAddress))
	}
	if !common.IsHexAddress(st.TokenAddress) {
		errs = append(errs, fmt.Errorf("TOKEN_ADDRESS %q is not an address", st.TokenAddress))
	}
	if st.TokenDecimals < 0 || st.TokenDecimals > 77 {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS %d out of range", st.TokenDecimals))
	}
	if st.NativeDecimals < 0 || st.NativeDecimals > 77 {
		errs = append(errs, fmt.Errorf("NATIVE_DECIMALS %d out of range", st.NativeDecimals))
	}
	switch st.NativeMethod {
	case "disperseBNB", "disperseEther":
	default:
		errs = append(errs, fmt.Errorf("NATIVE_METHOD %q must be disperseBNB or disperseEther", st.NativeMethod))
	}
	switch st.ApprovalAmount {
	case ApprovalExact, ApprovalUnlimited:
	default:
		errs = append(errs, fmt.Errorf("APPROVAL_AMOUNT %q must be exact or unlimited", st.ApprovalAmount))
	}
	switch st.Wallet {
	case WalletKeyed, WalletEIP1193:
	default:
		errs = append(errs, fmt.Errorf("WALLET %q must be keyed or eip1193", st.Wallet))
	}
	if st.ConfirmPoll <= 0 {
		errs = append(errs, errors.New("CONFIRM_POLL must be positive"))
	}
	if st.GasBufferPct < 0 {
		errs = append(errs, errors.New("GAS_BUFFER_PCT must not be negative"))
	}
	return errors.Join(errs...)
}

// Network returns the fixed descriptor used for wallet_addEthereumChain.
func (st Settings) Network() wallet.Network {
	return wallet.Network{
		ChainID:   st.ChainID,
		ChainName: st.ChainName,
		NativeCurrency: wallet.NativeCurrency{
			Name:     st.NativeName,
			Symbol:   st.NativeSymbol,
			Decimals: st.NativeDecimals,
		},
		RPCURLs:           []string{st.RPCURL},
		BlockExplorerURLs: []string{st.ExplorerURL},
	}
}

func (st Settings) Disperse() common.Address { return common.HexToAddress(st.DisperseAddress) }

func (st Settings) Token() common.Address { return common.HexToAddress(st.TokenAddress) }

// MaskHex hides the middle of a secret for display.
func MaskHex(h string) string {
	h = strings.TrimSpace(h)
	if len(h) <= 10 {
		return "***"
	}
	return h[:6] + "…" + h[len(h)-4:]
}
