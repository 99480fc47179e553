package disperse

import (
	"errors"
	"fmt"

	"github.com/ligun0805/disperse/internal/wallet"
)

// Error kinds surfaced to the user. Wallet-level kinds alias the wallet
// package sentinels so errors.Is matches either name.
var (
	ErrNoWalletProvider  = wallet.ErrNoProvider
	ErrUserRejected      = wallet.ErrUserRejected
	ErrUnrecognizedChain = wallet.ErrUnrecognizedChain

	ErrChainMismatch        = errors.New("wallet is on the wrong network")
	ErrEmptyBatch           = errors.New("no valid recipients")
	ErrInsufficientApproval = errors.New("token allowance is not sufficient")
	ErrTransactionFailed    = errors.New("transaction failed")
	ErrTransactionRejected  = errors.New("transaction rejected")

	ErrNotConnected    = errors.New("wallet not connected")
	ErrNoMode          = errors.New("no mode selected")
	ErrBusy            = errors.New("operation already in progress")
	ErrMisalignedBatch = errors.New("recipients and amounts are not aligned")
)

// signingError maps a wallet rejection of a signature request onto
// ErrTransactionRejected, keeping the wallet cause.
func signingError(err error) error {
	if errors.Is(err, wallet.ErrUserRejected) {
		return fmt.Errorf("%w: %w", ErrTransactionRejected, err)
	}
	return err
}
