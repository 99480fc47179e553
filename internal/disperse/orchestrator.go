// Package disperse batches a native coin or one ERC20 token to many
// recipients through the disperse contract. The Orchestrator owns the
// session and sequences parsing, approval, network checks and sends; it
// has no UI dependency and is driven by discrete intents.
package disperse

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ligun0805/disperse/internal/contracts"
	"github.com/ligun0805/disperse/internal/metrics"
	"github.com/ligun0805/disperse/internal/wallet"
)

// Config is fixed per deployment.
type Config struct {
	Network           wallet.Network
	Disperse          common.Address
	Token             common.Address
	TokenDecimals     int
	NativeDecimals    int
	NativeMethod      string
	UnlimitedApproval bool
	ConfirmPoll       time.Duration
	ConfirmTimeout    time.Duration
}

type Options struct {
	Config
	// Dial opens the wallet on the first Connect.
	Dial    func(ctx context.Context) (wallet.Provider, error)
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger
	// OnUpdate receives a snapshot after every session change. It is called
	// without the session lock held.
	OnUpdate func(Snapshot)
}

type Orchestrator struct {
	opts Options
	log  logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	s          session
	connecting bool
	provider   wallet.Provider
	guard      *ChainGuard
	approvals  *Approvals
}

func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 5 * time.Minute
	}
	if opts.NativeMethod == "" {
		opts.NativeMethod = "disperseBNB"
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	o.s = o.fresh(0)
	return o
}

// Close stops confirmation tracking and releases the wallet.
func (o *Orchestrator) Close() {
	o.cancel()
	o.wg.Wait()
	o.mu.Lock()
	p := o.provider
	o.provider = nil
	o.mu.Unlock()
	if c, ok := p.(interface{ Close() }); ok {
		c.Close()
	}
}

func (o *Orchestrator) fresh(prevEpoch uint64) session {
	return session{
		id:    uuid.NewString(),
		epoch: prevEpoch + 1,
		batch: emptyBatch(o.opts.NativeDecimals),
	}
}

func emptyBatch(decimals int) Batch {
	return Batch{Summary: Aggregate(nil, decimals)}
}

func (o *Orchestrator) decimals(m Mode) int {
	if m == ModeToken {
		return o.opts.TokenDecimals
	}
	return o.opts.NativeDecimals
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.s.snapshot()
}

func (o *Orchestrator) notify() {
	if o.opts.OnUpdate != nil {
		o.opts.OnUpdate(o.Snapshot())
	}
}

// update applies fn if the session is still at epoch. Work started in an
// abandoned session never touches the current one.
func (o *Orchestrator) update(epoch uint64, fn func(*session)) bool {
	o.mu.Lock()
	ok := o.s.epoch == epoch
	if ok && fn != nil {
		fn(&o.s)
	}
	o.mu.Unlock()
	if ok {
		o.notify()
	}
	return ok
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, wallet.ErrUserRejected):
		return "rejected"
	default:
		return "error"
	}
}

// Connect asks the wallet for account access. The session is unchanged
// when it fails.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.connecting {
		o.mu.Unlock()
		return ErrBusy
	}
	o.connecting = true
	p := o.provider
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.connecting = false
		o.mu.Unlock()
	}()

	dialed := false
	if p == nil {
		if o.opts.Dial == nil {
			return ErrNoWalletProvider
		}
		var err error
		if p, err = o.opts.Dial(ctx); err != nil {
			if errors.Is(err, ErrNoWalletProvider) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrNoWalletProvider, err)
		}
		dialed = true
	}
	discard := func() {
		if c, ok := p.(interface{ Close() }); ok && dialed {
			c.Close()
		}
	}

	accounts, err := p.RequestAccounts(ctx)
	o.opts.Metrics.RecordWalletCall("eth_requestAccounts", callStatus(err))
	if err != nil {
		discard()
		return err
	}
	if len(accounts) == 0 {
		discard()
		return fmt.Errorf("%w: wallet shared no accounts", ErrUserRejected)
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		discard()
		return fmt.Errorf("read chain id: %w", err)
	}

	o.mu.Lock()
	if dialed {
		o.provider = p
		o.guard = NewChainGuard(p, o.opts.Network, o.opts.Metrics, o.log)
		o.approvals = NewApprovals(p, o.opts.Token, o.opts.Disperse, o.opts.UnlimitedApproval)
	}
	changed := !o.s.connected || o.s.account != accounts[0]
	if changed && o.s.connected {
		// Another account: keep what the user typed, drop everything
		// derived from the previous account.
		mode, batch := o.s.mode, o.s.batch
		o.s = o.fresh(o.s.epoch)
		o.s.mode, o.s.batch = mode, batch
	}
	o.s.connected = true
	o.s.account = accounts[0]
	o.s.chainID = chainID
	recheck := changed && o.s.mode == ModeToken
	log := o.log.WithFields(logrus.Fields{"session": o.s.id, "account": accounts[0].Hex(), "chain": chainID})
	o.mu.Unlock()

	log.Info("wallet connected")
	o.notify()
	if recheck {
		if _, err := o.CheckApproval(ctx); err != nil {
			log.WithError(err).Warn("allowance check after connect failed")
		}
	}
	return nil
}

// Disconnect resets the session. Transactions already sent keep being
// tracked on their handles.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	o.s = o.fresh(o.s.epoch)
	o.mu.Unlock()
	o.log.Info("wallet disconnected")
	o.notify()
}

// SelectMode switches between native and token distribution. The batch,
// approval and pending transaction are cleared since amounts are
// denominated differently per mode.
func (o *Orchestrator) SelectMode(ctx context.Context, m Mode) error {
	switch m {
	case ModeNone, ModeNative, ModeToken:
	default:
		return fmt.Errorf("unknown mode %q", m)
	}
	o.mu.Lock()
	connected, account, chainID := o.s.connected, o.s.account, o.s.chainID
	o.s = o.fresh(o.s.epoch)
	o.s.connected, o.s.account, o.s.chainID = connected, account, chainID
	o.s.mode = m
	o.s.batch = emptyBatch(o.decimals(m))
	o.mu.Unlock()

	o.notify()
	if m == ModeToken && connected {
		_, err := o.CheckApproval(ctx)
		return err
	}
	return nil
}

// UpdateInput re-parses the recipient text. In token mode a changed
// (account, total) pair triggers an allowance re-check; the new batch is
// kept even if that check fails.
func (o *Orchestrator) UpdateInput(ctx context.Context, raw string) (Batch, error) {
	o.mu.Lock()
	if o.s.mode == ModeNone {
		o.mu.Unlock()
		return Batch{}, ErrNoMode
	}
	batch := NewBatch(raw, o.decimals(o.s.mode))
	o.s.batch = batch
	recheck := false
	if o.s.mode == ModeToken && o.s.connected {
		key := checkKey{account: o.s.account, total: batch.Total().String()}
		if key != o.s.checked {
			o.s.approval = ApprovalUnknown
			recheck = true
		}
	}
	o.mu.Unlock()

	o.opts.Metrics.RecordParse(len(batch.Transfers), batch.Dropped)
	o.notify()
	if recheck {
		if _, err := o.CheckApproval(ctx); err != nil {
			return batch.clone(), err
		}
	}
	return batch.clone(), nil
}

// CheckApproval reads the allowance for the current account and batch.
func (o *Orchestrator) CheckApproval(ctx context.Context) (ApprovalState, error) {
	o.mu.Lock()
	if err := o.requireLocked(ModeToken); err != nil {
		o.mu.Unlock()
		return ApprovalUnknown, err
	}
	epoch, account, approvals := o.s.epoch, o.s.account, o.approvals
	total := o.s.batch.Total()
	o.mu.Unlock()

	state, allowance, err := approvals.Check(ctx, account, total)
	if err != nil {
		o.opts.Metrics.RecordAllowanceCheck("error")
		return ApprovalUnknown, err
	}
	o.opts.Metrics.RecordAllowanceCheck(state.String())
	o.update(epoch, func(s *session) {
		if s.account != account || s.batch.Total().Cmp(total) != 0 {
			return
		}
		s.approval = state
		s.allowance = allowance
		s.checked = checkKey{account: account, total: total.String()}
	})
	return state, nil
}

func (o *Orchestrator) requireLocked(m Mode) error {
	if !o.s.connected {
		return ErrNotConnected
	}
	if o.s.mode != m {
		return fmt.Errorf("%w: requires %s mode", ErrNoMode, m)
	}
	return nil
}

// TokenInfo reads the configured token's symbol, decimals and the
// connected account's balance.
func (o *Orchestrator) TokenInfo(ctx context.Context) (TokenInfo, error) {
	o.mu.Lock()
	if !o.s.connected {
		o.mu.Unlock()
		return TokenInfo{}, ErrNotConnected
	}
	account, approvals := o.s.account, o.approvals
	o.mu.Unlock()
	return approvals.TokenInfo(ctx, account)
}

// Approve grants the disperse contract an allowance for the batch total, or
// the unlimited amount when so configured.
func (o *Orchestrator) Approve(ctx context.Context) (*TxHandle, error) {
	o.mu.Lock()
	if err := o.requireLocked(ModeToken); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if o.s.approving {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	amount := o.approvals.Amount(o.s.batch.Total())
	if amount.Sign() == 0 {
		o.mu.Unlock()
		return nil, ErrEmptyBatch
	}
	o.s.approving = true
	w := o.writeLocked(TxApprove)
	o.mu.Unlock()
	o.notify()

	approvals := w.approvals
	w.send = func(ctx context.Context) (common.Hash, error) {
		return approvals.Approve(ctx, w.account, amount)
	}
	w.release = func(s *session) { s.approving = false }
	w.confirmed = func(s *session) {
		total := s.batch.Total()
		s.allowance = new(big.Int).Set(amount)
		s.approval = Evaluate(amount, total)
		s.checked = checkKey{account: w.account, total: total.String()}
	}
	return o.submit(ctx, w)
}

// Revoke sets the allowance back to zero.
func (o *Orchestrator) Revoke(ctx context.Context) (*TxHandle, error) {
	o.mu.Lock()
	if err := o.requireLocked(ModeToken); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	if o.s.approving {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.s.approving = true
	w := o.writeLocked(TxRevoke)
	o.mu.Unlock()
	o.notify()

	approvals := w.approvals
	w.send = func(ctx context.Context) (common.Hash, error) {
		return approvals.Revoke(ctx, w.account)
	}
	w.release = func(s *session) { s.approving = false }
	w.confirmed = func(s *session) {
		s.allowance = new(big.Int)
		s.approval = ApprovalInsufficient
		s.checked = checkKey{account: w.account, total: s.batch.Total().String()}
	}
	return o.submit(ctx, w)
}

// Send distributes the current batch. All preconditions are checked
// locally before the wallet is contacted.
func (o *Orchestrator) Send(ctx context.Context) (*TxHandle, error) {
	o.mu.Lock()
	req, err := o.prepareSendLocked()
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.s.sending = true
	w := o.writeLocked(req.kind)
	o.mu.Unlock()
	o.notify()

	o.opts.Metrics.RecordBatch(req.count)
	w.send = func(ctx context.Context) (common.Hash, error) {
		h, err := w.provider.SendTransaction(ctx, wallet.TxRequest{
			From:  w.account,
			To:    o.opts.Disperse,
			Value: req.value,
			Data:  req.data,
		})
		return h, signingError(err)
	}
	w.release = func(s *session) { s.sending = false }
	return o.submit(ctx, w)
}

type sendRequest struct {
	kind  TxKind
	data  []byte
	value *big.Int
	count int
}

func (o *Orchestrator) prepareSendLocked() (sendRequest, error) {
	if o.s.sending {
		return sendRequest{}, ErrBusy
	}
	if o.s.approving {
		return sendRequest{}, fmt.Errorf("%w: an approval is still pending", ErrBusy)
	}
	if !o.s.connected {
		return sendRequest{}, ErrNotConnected
	}
	if o.s.mode == ModeNone {
		return sendRequest{}, ErrNoMode
	}
	if o.s.batch.Empty() {
		return sendRequest{}, ErrEmptyBatch
	}
	if o.s.mode == ModeToken && o.s.approval != ApprovalSufficient {
		return sendRequest{}, fmt.Errorf("%w: approval is %s", ErrInsufficientApproval, o.s.approval)
	}

	recipients, amounts := o.s.batch.Arrays()
	total := o.s.batch.Total()
	if err := checkAligned(recipients, amounts, total); err != nil {
		return sendRequest{}, err
	}

	req := sendRequest{count: len(recipients)}
	var err error
	if o.s.mode == ModeNative {
		req.kind = TxNative
		req.value = total
		req.data, err = contracts.PackDisperseNative(o.opts.NativeMethod, recipients, amounts)
	} else {
		req.kind = TxToken
		req.data, err = contracts.PackDisperseToken(o.opts.Token, recipients, amounts)
	}
	if err != nil {
		return sendRequest{}, fmt.Errorf("%w: %w", ErrMisalignedBatch, err)
	}
	return req, nil
}

// checkAligned re-verifies the pairing at the contract boundary.
func checkAligned(recipients []common.Address, amounts []*big.Int, total *big.Int) error {
	if len(recipients) != len(amounts) {
		return fmt.Errorf("%w: %d recipients, %d amounts", ErrMisalignedBatch, len(recipients), len(amounts))
	}
	sum := new(big.Int)
	for _, a := range amounts {
		if a == nil {
			return fmt.Errorf("%w: missing amount", ErrMisalignedBatch)
		}
		sum.Add(sum, a)
	}
	if sum.Cmp(total) != 0 {
		return fmt.Errorf("%w: amounts sum to %s, total is %s", ErrMisalignedBatch, sum, total)
	}
	return nil
}

// write is one state-mutating wallet request.
type write struct {
	kind      TxKind
	epoch     uint64
	sessionID string
	account   common.Address
	provider  wallet.Provider
	guard     *ChainGuard
	approvals *Approvals

	send      func(ctx context.Context) (common.Hash, error)
	release   func(*session)
	confirmed func(*session)
}

func (o *Orchestrator) writeLocked(kind TxKind) write {
	return write{
		kind:      kind,
		epoch:     o.s.epoch,
		sessionID: o.s.id,
		account:   o.s.account,
		provider:  o.provider,
		guard:     o.guard,
		approvals: o.approvals,
	}
}

func (o *Orchestrator) submit(ctx context.Context, w write) (*TxHandle, error) {
	log := o.log.WithFields(logrus.Fields{"session": w.sessionID, "kind": w.kind})
	fail := func(err error) (*TxHandle, error) {
		o.update(w.epoch, w.release)
		log.WithError(err).Warn("request not submitted")
		return nil, err
	}

	if err := w.guard.Ensure(ctx); err != nil {
		return fail(err)
	}
	hash, err := w.send(ctx)
	o.opts.Metrics.RecordWalletCall("eth_sendTransaction", callStatus(err))
	if err != nil {
		if errors.Is(err, ErrTransactionRejected) {
			o.opts.Metrics.RecordTx(string(w.kind), "rejected", 0)
		}
		return fail(err)
	}

	h := newTxHandle(w.kind, hash, o.opts.Network.TxURL(hash))
	if !o.update(w.epoch, func(s *session) { s.pendingTx = h }) {
		log.Info("session changed while signing; tracking transaction on its handle only")
	}
	log.WithField("hash", hash.Hex()).Info("transaction submitted")

	o.wg.Add(1)
	go o.track(w, h, log)
	return h, nil
}

func (o *Orchestrator) track(w write, h *TxHandle, log logrus.FieldLogger) {
	defer o.wg.Done()
	ctx, cancel := context.WithTimeout(o.ctx, o.opts.ConfirmTimeout)
	defer cancel()

	r, err := wallet.WaitMined(ctx, w.provider, h.Hash, o.opts.ConfirmPoll)
	status, reason := TxConfirmed, error(nil)
	switch {
	case err != nil:
		status, reason = TxFailed, fmt.Errorf("%w: %s was not mined: %w", ErrTransactionFailed, h.Hash.Hex(), err)
	case r.Status != types.ReceiptStatusSuccessful:
		status, reason = TxFailed, fmt.Errorf("%w: %s reverted in block %v", ErrTransactionFailed, h.Hash.Hex(), r.BlockNumber)
	}

	var elapsed float64
	if r != nil {
		elapsed = time.Since(h.SubmittedAt).Seconds()
	}
	o.opts.Metrics.RecordTx(string(w.kind), status.String(), elapsed)
	if status == TxConfirmed {
		log.WithField("hash", h.Hash.Hex()).Info("transaction confirmed")
	} else {
		log.WithField("hash", h.Hash.Hex()).WithError(reason).Warn("transaction failed")
	}

	// The handle is finished under the session lock so that a caller woken
	// by Wait already sees the session transition.
	applied := o.update(w.epoch, func(s *session) {
		h.finish(status, r, reason)
		w.release(s)
		if status == TxConfirmed && w.confirmed != nil {
			w.confirmed(s)
		}
	})
	if !applied {
		h.finish(status, r, reason)
	}
}
