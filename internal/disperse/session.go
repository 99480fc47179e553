package disperse

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Mode string

const (
	ModeNone   Mode = ""
	ModeNative Mode = "native"
	ModeToken  Mode = "token"
)

// ParseMode accepts "native"/"bnb"/"eth" and "token"/"erc20".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "native", "bnb", "eth":
		return ModeNative, true
	case "token", "erc20":
		return ModeToken, true
	}
	return ModeNone, false
}

type TxKind string

const (
	TxApprove TxKind = "approve"
	TxRevoke  TxKind = "revoke"
	TxNative  TxKind = "native"
	TxToken   TxKind = "token"
)

type TxStatus int

const (
	TxSubmitted TxStatus = iota
	TxConfirmed
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxConfirmed:
		return "confirmed"
	case TxFailed:
		return "failed"
	default:
		return "submitted"
	}
}

// TxHandle follows one broadcast transaction to a terminal status.
// Handles are never reused.
type TxHandle struct {
	Kind        TxKind
	Hash        common.Hash
	URL         string
	SubmittedAt time.Time

	mu      sync.Mutex
	status  TxStatus
	err     error
	receipt *types.Receipt
	done    chan struct{}
}

func newTxHandle(kind TxKind, hash common.Hash, url string) *TxHandle {
	return &TxHandle{
		Kind:        kind,
		Hash:        hash,
		URL:         url,
		SubmittedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

func (h *TxHandle) finish(status TxStatus, r *types.Receipt, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status != TxSubmitted {
		return
	}
	h.status, h.receipt, h.err = status, r, err
	close(h.done)
}

func (h *TxHandle) Status() TxStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Err is the failure reason once the status is TxFailed.
func (h *TxHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *TxHandle) Receipt() *types.Receipt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.receipt
}

// Done is closed when the handle reaches a terminal status.
func (h *TxHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the transaction is terminal or ctx ends. The error is
// only ever ctx's; a failed transaction reports its reason through Err.
// Returning early does not affect the transaction.
func (h *TxHandle) Wait(ctx context.Context) (TxStatus, error) {
	select {
	case <-h.done:
		return h.Status(), nil
	case <-ctx.Done():
		return TxSubmitted, ctx.Err()
	}
}

// TxInfo is a copy of a handle's state for rendering.
type TxInfo struct {
	Kind   TxKind
	Hash   common.Hash
	URL    string
	Status TxStatus
	Err    error
}

func (h *TxHandle) Info() TxInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return TxInfo{Kind: h.Kind, Hash: h.Hash, URL: h.URL, Status: h.status, Err: h.err}
}

// session is owned by the Orchestrator and only touched under its lock.
type session struct {
	id        string
	epoch     uint64
	connected bool
	account   common.Address
	chainID   string
	mode      Mode
	batch     Batch
	approval  ApprovalState
	allowance *big.Int
	pendingTx *TxHandle

	sending   bool
	approving bool
	checked   checkKey
}

// checkKey is the input of the last allowance read.
type checkKey struct {
	account common.Address
	total   string
}

// Snapshot is what the rendering layer sees.
type Snapshot struct {
	SessionID string
	Connected bool
	Account   common.Address
	ChainID   string
	Mode      Mode
	Batch     Batch
	Approval  ApprovalState
	Allowance *big.Int
	Tx        *TxInfo
	Sending   bool
	Approving bool
}

func (s *session) snapshot() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Connected: s.connected,
		Account:   s.account,
		ChainID:   s.chainID,
		Mode:      s.mode,
		Batch:     s.batch.clone(),
		Approval:  s.approval,
		Sending:   s.sending,
		Approving: s.approving,
	}
	if s.allowance != nil {
		snap.Allowance = new(big.Int).Set(s.allowance)
	}
	if s.pendingTx != nil {
		info := s.pendingTx.Info()
		snap.Tx = &info
	}
	return snap
}

// ShortAccount renders 0x1234...abcd.
func ShortAccount(a common.Address) string {
	h := a.Hex()
	return h[:6] + "..." + h[len(h)-4:]
}
