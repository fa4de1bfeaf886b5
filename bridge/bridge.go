// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge implements the deposit/notarize/withdraw state machine
// that moves tokenized value between chains. Deposits burn (or hand to
// an adapter) on the source chain and emit a canonical payload;
// withdrawals mint on the destination chain once the payload has been
// confirmed by the origin's configured trust model. Every payload is
// applied at most once and every transfer is bounded by a per-chain
// decaying flow limit.
package bridge

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/luxfi/crypto/hash"
	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	safemath "github.com/luxfi/math"
	"github.com/luxfi/metric"
	"github.com/luxfi/timer/mockable"

	"github.com/luxfi/teleport/consortium"
	"github.com/luxfi/teleport/flowlimit"
	"github.com/luxfi/teleport/ledger"
	"github.com/luxfi/teleport/payload"
)

// feeDenominator is the basis-point scale for relative commissions.
const feeDenominator = 10_000

var (
	ErrAlreadyInitialized       = errors.New("bridge already initialized")
	ErrNotInitialized           = errors.New("bridge not initialized")
	ErrReentrantCall            = errors.New("reentrant call")
	ErrNotOwner                 = errors.New("caller is not the owner")
	ErrZeroAmount               = errors.New("amount is zero")
	ErrZeroAddress              = errors.New("address is zero")
	ErrUnknownDestination       = errors.New("unknown destination")
	ErrDestinationExists        = errors.New("destination already configured")
	ErrAmountLessThanCommission = errors.New("amount does not cover commission")
	ErrCommissionTooHigh        = errors.New("commission exceeds maximum")
	ErrUnknownAdapter           = errors.New("caller is not the configured adapter")
	ErrUnknownOriginContract    = errors.New("payload origin contract is not the configured remote")
	ErrWrongDestination         = errors.New("payload is not destined for this bridge")
	ErrPayloadAlreadyUsed       = errors.New("payload already used")
	ErrAdapterNotConfirmed      = errors.New("adapter has not confirmed the payload")
	ErrConsortiumNotConfirmed   = errors.New("consortium has not notarized the payload")
)

// reentrancyGuard is a non-blocking, non-reentrant lock. Entering while
// entered fails instead of deadlocking, so an adapter or ledger hook
// that calls back into the bridge mid-operation gets a hard error
// rather than interleaved state.
type reentrancyGuard struct {
	lock    sync.Mutex
	entered bool
}

func (g *reentrancyGuard) enter() error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

func (g *reentrancyGuard) exit() {
	g.lock.Lock()
	defer g.lock.Unlock()

	g.entered = false
}

// Bridge orchestrates cross-chain transfers for one chain. Construct
// with New, then call Initialize exactly once before use.
type Bridge struct {
	chainID    ids.ID
	contractID ids.ID
	escrow     ids.ShortID

	log     log.Logger
	metrics *metrics
	clk     *mockable.Clock

	assets  ledger.Ledger
	limiter *flowlimit.Limiter

	guard reentrancyGuard

	// The fields below are only mutated while the guard is held.
	initialized  bool
	owner        ids.ShortID
	treasury     ids.ShortID
	maxAbsFee    uint64
	verifier     consortium.Verifier
	destinations map[ids.ID]*Destination
	state        *state
}

// New constructs an uninitialized Bridge identified by
// [chainID]/[contractID], persisting replay state in [db].
func New(
	chainID ids.ID,
	contractID ids.ID,
	db database.Database,
	assets ledger.Ledger,
	verifier consortium.Verifier,
	logger log.Logger,
	registerer metric.Registerer,
) (*Bridge, error) {
	m, err := newMetrics(registerer)
	if err != nil {
		return nil, err
	}
	s, err := newState(db)
	if err != nil {
		return nil, err
	}

	clk := &mockable.Clock{}
	return &Bridge{
		chainID:      chainID,
		contractID:   contractID,
		escrow:       escrowAddress(contractID),
		log:          logger,
		metrics:      m,
		clk:          clk,
		assets:       assets,
		limiter:      flowlimit.New(clk),
		verifier:     verifier,
		destinations: make(map[ids.ID]*Destination),
		state:        s,
	}, nil
}

// Initialize applies the one-time configuration. A second call fails
// with ErrAlreadyInitialized.
func (b *Bridge) Initialize(cfg Config) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()

	if b.initialized {
		return ErrAlreadyInitialized
	}
	if cfg.Owner == ids.ShortEmpty || cfg.Treasury == ids.ShortEmpty {
		return fmt.Errorf("%w: owner and treasury must be set", ErrZeroAddress)
	}

	b.owner = cfg.Owner
	b.treasury = cfg.Treasury
	b.maxAbsFee = cfg.MaxAbsoluteFee
	for _, rl := range cfg.RateLimits {
		b.limiter.SetLimit(rl.Chain, rl.Direction, rl.Limit, rl.Window)
	}
	b.initialized = true

	b.log.Info("bridge initialized",
		log.Stringer("chainID", b.chainID),
		log.Stringer("contractID", b.contractID),
		log.Stringer("owner", b.owner),
		log.Int("rateLimits", len(cfg.RateLimits)),
	)
	return nil
}

// Clock returns the clock used for flow-limit decay.
func (b *Bridge) Clock() *mockable.Clock {
	return b.clk
}

// Escrow returns the account that holds net amounts handed off to
// adapters. Funds moved here are no longer spendable by the depositor;
// the destination chain mints against them.
func (b *Bridge) Escrow() ids.ShortID {
	return b.escrow
}

// escrowAddress derives the escrow account from the bridge contract
// identity, so every bridge over the same contract escrows to the same
// account.
func escrowAddress(contractID ids.ID) ids.ShortID {
	addr, _ := ids.ToShortID(hash.ComputeHash256(contractID[:])[:20])
	return addr
}

// commission returns the fee owed on [amount] for [dest]:
// ceil(amount * relativeFeeBps / 10000) + absoluteFee.
func commission(amount uint64, dest *Destination) (uint64, error) {
	hi, lo := bits.Mul64(amount, dest.RelativeFeeBps)
	relative, rem := bits.Div64(hi, lo, feeDenominator)
	if rem > 0 {
		relative++
	}
	return safemath.Add64(relative, dest.AbsoluteFee)
}

// QuoteFee estimates the total cost of depositing [amount] toward
// [recipient] on [destChain]: the bridge commission plus whatever the
// destination's adapter charges for delivery.
func (b *Bridge) QuoteFee(destChain ids.ID, recipient ids.ShortID, amount uint64) (uint64, error) {
	if err := b.guard.enter(); err != nil {
		return 0, err
	}
	defer b.guard.exit()

	if !b.initialized {
		return 0, ErrNotInitialized
	}
	dest, ok := b.destinations[destChain]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDestination, destChain)
	}

	fee, err := commission(amount, dest)
	if err != nil {
		return 0, err
	}
	if dest.Adapter == nil {
		return fee, nil
	}
	adapterFee, err := dest.Adapter.GetFee(destChain, dest.RemoteContract, recipient, amount, nil)
	if err != nil {
		return 0, err
	}
	return safemath.Add64(fee, adapterFee)
}

// Deposit moves [amount] from [from] toward [recipient] on [destChain].
// The commission is transferred to the treasury; the net amount is
// either handed to the destination's adapter or burned from circulating
// supply. Returns the net amount and the emitted payload bytes. On any
// error no state is changed.
func (b *Bridge) Deposit(
	from ids.ShortID,
	destChain ids.ID,
	recipient ids.ShortID,
	amount uint64,
) (uint64, []byte, error) {
	if err := b.guard.enter(); err != nil {
		return 0, nil, err
	}
	defer b.guard.exit()
	defer b.state.Abort()

	if !b.initialized {
		return 0, nil, ErrNotInitialized
	}
	if amount == 0 {
		return 0, nil, ErrZeroAmount
	}
	if recipient == ids.ShortEmpty {
		return 0, nil, fmt.Errorf("%w: recipient", ErrZeroAddress)
	}
	dest, ok := b.destinations[destChain]
	if !ok {
		return 0, nil, fmt.Errorf("%w: %s", ErrUnknownDestination, destChain)
	}

	fee, err := commission(amount, dest)
	if err != nil {
		return 0, nil, err
	}
	if fee >= amount {
		return 0, nil, fmt.Errorf("%w: commission %d on amount %d", ErrAmountLessThanCommission, fee, amount)
	}
	net := amount - fee

	if balance := b.assets.Balance(from); balance < amount {
		return 0, nil, fmt.Errorf("%w: %s has %d, needs %d", ledger.ErrInsufficientFunds, from, balance, amount)
	}

	// Probe outbound capacity before any side effect. The matching
	// Consume below cannot fail: decay only frees capacity and no
	// other operation can interleave while the guard is held.
	if available := b.limiter.Available(destChain, flowlimit.Outbound); net > available {
		return 0, nil, fmt.Errorf("%w: %s outbound: %d > %d available",
			flowlimit.ErrRateLimitExceeded, destChain, net, available)
	}

	transfer := &payload.Transfer{
		SourceChain:    b.chainID,
		SourceContract: b.contractID,
		DestChain:      destChain,
		DestContract:   dest.RemoteContract,
		Recipient:      recipient,
		Amount:         net,
		Seq:            b.state.nonce,
	}
	payloadBytes := transfer.Bytes()

	if dest.Adapter != nil {
		// The external handoff runs before any local mutation.
		if err := dest.Adapter.Deposit(from, destChain, dest.RemoteContract, recipient, net, payloadBytes); err != nil {
			return 0, nil, fmt.Errorf("adapter rejected deposit: %w", err)
		}
		// The net amount leaves the depositor's reach: it sits in
		// escrow while the destination chain mints against it.
		if err := b.assets.Transfer(from, b.escrow, net); err != nil {
			return 0, nil, err
		}
	} else {
		// Burn is the one ledger call that can be refused (paused
		// ledger), so it runs before the fee moves or the nonce is
		// consumed; its failure leaves all state untouched.
		if err := b.assets.Burn(from, net); err != nil {
			return 0, nil, err
		}
	}
	if fee > 0 {
		if err := b.assets.Transfer(from, b.treasury, fee); err != nil {
			return 0, nil, err
		}
	}
	if _, err := b.state.NextNonce(); err != nil {
		return 0, nil, err
	}
	if err := b.state.Commit(); err != nil {
		return 0, nil, err
	}
	if err := b.limiter.Consume(destChain, flowlimit.Outbound, net); err != nil {
		return 0, nil, err
	}

	b.metrics.deposits.Inc()
	b.log.Info("deposit accepted",
		log.Stringer("from", from),
		log.Stringer("destChain", destChain),
		log.Stringer("recipient", recipient),
		log.Uint64("amount", amount),
		log.Uint64("fee", fee),
		log.Uint64("nonce", transfer.Seq),
		log.Stringer("payloadHash", payload.Hash(payloadBytes)),
	)
	return net, payloadBytes, nil
}

// ReceivePayload records an adapter's delivery confirmation for a
// payload originating on [origin]. Only the adapter configured for
// [origin] may call it; [from] must be that adapter. This is a pure
// confirmation signal, not a mint.
func (b *Bridge) ReceivePayload(origin ids.ID, payloadBytes []byte, from Adapter) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()
	defer b.state.Abort()

	if !b.initialized {
		return ErrNotInitialized
	}
	dest, ok := b.destinations[origin]
	if !ok || dest.Adapter == nil || dest.Adapter != from {
		return fmt.Errorf("%w: origin %s", ErrUnknownAdapter, origin)
	}

	transfer, err := payload.ParseTransfer(payloadBytes)
	if err != nil {
		return err
	}
	if transfer.SourceChain != origin || transfer.SourceContract != dest.RemoteContract {
		return fmt.Errorf("%w: %s on %s", ErrUnknownOriginContract, transfer.SourceContract, transfer.SourceChain)
	}

	payloadHash := payload.Hash(payloadBytes)
	rec, err := b.state.GetDeposit(payloadHash, payloadBytes)
	if err != nil {
		return err
	}
	if rec.Withdrawn {
		return fmt.Errorf("%w: %s", ErrPayloadAlreadyUsed, payloadHash)
	}
	rec.AdapterConfirmed = true
	if err := b.state.PutDeposit(payloadHash, rec); err != nil {
		return err
	}
	if err := b.state.Commit(); err != nil {
		return err
	}

	b.metrics.payloadsReceived.Inc()
	b.log.Info("payload received",
		log.Stringer("origin", origin),
		log.Stringer("payloadHash", payloadHash),
	)
	return nil
}

// AuthNotary records a consortium notarization: [proof] must pass the
// configured verifier against the payload hash. Independent of
// ReceivePayload; either, both, or neither may precede a withdrawal
// depending on the destination's trust model.
func (b *Bridge) AuthNotary(payloadBytes []byte, proof []byte) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()
	defer b.state.Abort()

	if !b.initialized {
		return ErrNotInitialized
	}
	if _, err := payload.ParseTransfer(payloadBytes); err != nil {
		return err
	}

	payloadHash := payload.Hash(payloadBytes)
	if err := b.verifier.Verify(payloadHash[:], proof); err != nil {
		return err
	}

	rec, err := b.state.GetDeposit(payloadHash, payloadBytes)
	if err != nil {
		return err
	}
	if rec.Withdrawn {
		return fmt.Errorf("%w: %s", ErrPayloadAlreadyUsed, payloadHash)
	}
	rec.Notarized = true
	if err := b.state.PutDeposit(payloadHash, rec); err != nil {
		return err
	}
	if err := b.state.Commit(); err != nil {
		return err
	}

	b.metrics.notarizations.Inc()
	b.log.Info("payload notarized",
		log.Stringer("payloadHash", payloadHash),
	)
	return nil
}

// Withdraw applies a confirmed payload: it mints the net amount to the
// embedded recipient and permanently marks the payload used. This is
// the only path by which a payload may cause a mint, and it succeeds at
// most once per payload.
func (b *Bridge) Withdraw(payloadBytes []byte) error {
	if err := b.guard.enter(); err != nil {
		return err
	}
	defer b.guard.exit()
	defer b.state.Abort()

	if !b.initialized {
		return ErrNotInitialized
	}
	transfer, err := payload.ParseTransfer(payloadBytes)
	if err != nil {
		return err
	}
	if transfer.DestChain != b.chainID || transfer.DestContract != b.contractID {
		return fmt.Errorf("%w: destined for %s on %s", ErrWrongDestination, transfer.DestContract, transfer.DestChain)
	}
	origin, ok := b.destinations[transfer.SourceChain]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDestination, transfer.SourceChain)
	}
	if transfer.SourceContract != origin.RemoteContract {
		return fmt.Errorf("%w: %s", ErrUnknownOriginContract, transfer.SourceContract)
	}

	payloadHash := payload.Hash(payloadBytes)
	rec, err := b.state.GetDeposit(payloadHash, payloadBytes)
	if err != nil {
		return err
	}
	switch {
	case rec.Withdrawn:
		return fmt.Errorf("%w: %s", ErrPayloadAlreadyUsed, payloadHash)
	case origin.Adapter != nil && !rec.AdapterConfirmed:
		return fmt.Errorf("%w: %s", ErrAdapterNotConfirmed, payloadHash)
	case origin.RequireConsortium && !rec.Notarized:
		return fmt.Errorf("%w: %s", ErrConsortiumNotConfirmed, payloadHash)
	}

	// Probe inbound capacity first; the Consume below cannot fail for
	// the same reason as in Deposit.
	if available := b.limiter.Available(transfer.SourceChain, flowlimit.Inbound); transfer.Amount > available {
		return fmt.Errorf("%w: %s inbound: %d > %d available",
			flowlimit.ErrRateLimitExceeded, transfer.SourceChain, transfer.Amount, available)
	}

	// The terminal flag is staged before the mint and only committed
	// after it: a refused mint (e.g. paused ledger) aborts the staged
	// record and leaves the payload withdrawable, while the commit
	// lands the flag as one atomic batch.
	rec.Withdrawn = true
	if err := b.state.PutDeposit(payloadHash, rec); err != nil {
		return err
	}
	if err := b.assets.Mint(transfer.Recipient, transfer.Amount); err != nil {
		return err
	}
	if err := b.state.Commit(); err != nil {
		return err
	}
	if err := b.limiter.Consume(transfer.SourceChain, flowlimit.Inbound, transfer.Amount); err != nil {
		return err
	}

	b.metrics.withdrawals.Inc()
	b.log.Info("withdraw completed",
		log.Stringer("origin", transfer.SourceChain),
		log.Stringer("recipient", transfer.Recipient),
		log.Uint64("amount", transfer.Amount),
		log.Stringer("payloadHash", payloadHash),
	)
	return nil
}

// Status returns the confirmation state of [payloadHash].
func (b *Bridge) Status(payloadHash ids.ID) (DepositStatus, error) {
	if err := b.guard.enter(); err != nil {
		return DepositStatus{}, err
	}
	defer b.guard.exit()

	rec, err := b.state.GetDeposit(payloadHash, nil)
	if err != nil {
		return DepositStatus{}, err
	}
	return DepositStatus{
		AdapterConfirmed: rec.AdapterConfirmed,
		Notarized:        rec.Notarized,
		Withdrawn:        rec.Withdrawn,
	}, nil
}
