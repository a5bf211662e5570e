package sale

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"curvesale/core/events"
	"curvesale/core/types"
)

// liquidityDeadlineSeconds bounds how long the venue may take to execute the
// hand-off. The deadline is enforced venue-side, not locally.
const liquidityDeadlineSeconds = 300

// TokenLedger is the capped, mintable token collaborator. The engine address
// must hold the minter role on the backing ledger.
type TokenLedger interface {
	Mint(minter types.Address, to types.Address, amount *big.Int) error
	Transfer(from types.Address, to types.Address, amount *big.Int) error
	Approve(owner types.Address, spender types.Address, amount *big.Int) error
	BalanceOf(addr types.Address) *big.Int
	TotalSupply() *big.Int
}

// PaymentLedger is the stable payment-asset collaborator.
type PaymentLedger interface {
	TransferFrom(spender types.Address, from types.Address, to types.Address, amount *big.Int) error
	Transfer(from types.Address, to types.Address, amount *big.Int) error
	Approve(owner types.Address, spender types.Address, amount *big.Int) error
	BalanceOf(addr types.Address) *big.Int
}

// LiquidityVenue is the external AMM collaborator. AddLiquidity may consume
// less than the offered amounts; the returned used amounts are authoritative.
type LiquidityVenue interface {
	AddLiquidity(caller types.Address, tokenA, tokenB types.Address,
		amountADesired, amountBDesired, amountAMin, amountBMin *big.Int,
		to types.Address, deadline int64) (usedA, usedB, liquidity *big.Int, err error)
	PairFor(tokenA, tokenB types.Address) (types.Address, error)
	Address() types.Address
}

// Engine owns the sale ledger and drives purchases and finalization against
// the token, payment, and liquidity collaborators.
//
// Mutating entry points serialize on opMu and fail fast when contended; the
// committed state behind stateMu is only written while opMu is held, so
// readers always observe a fully committed snapshot.
type Engine struct {
	token   TokenLedger
	payment PaymentLedger
	venue   LiquidityVenue

	tokenAddr types.Address
	assetAddr types.Address
	self      types.Address
	owner     types.Address
	creator   types.Address
	platform  types.Address

	reserveRatio *big.Int

	emitter events.Emitter
	nowFn   func() int64

	opMu    sync.Mutex
	stateMu sync.RWMutex
	state   *State
	dist    *Distribution
}

// NewEngine validates the sale parameters and constructs the engine with all
// ledger fields zeroed. Parameters cannot be changed afterwards.
func NewEngine(params Params) (*Engine, error) {
	if params.Token == nil || params.Payment == nil || params.Venue == nil {
		return nil, fmt.Errorf("%w: collaborator handles required", ErrInvalidConfig)
	}
	for _, addr := range []types.Address{
		params.TokenAddress, params.AssetAddress, params.Engine,
		params.Owner, params.Creator, params.Platform,
	} {
		if addr.IsZero() {
			return nil, fmt.Errorf("%w: zero address", ErrInvalidConfig)
		}
	}
	if params.ReserveRatio == 0 || params.ReserveRatio > 1_000_000 {
		return nil, fmt.Errorf("%w: reserve ratio %d outside (0, 1000000]", ErrInvalidConfig, params.ReserveRatio)
	}
	return &Engine{
		token:        params.Token,
		payment:      params.Payment,
		venue:        params.Venue,
		tokenAddr:    params.TokenAddress,
		assetAddr:    params.AssetAddress,
		self:         params.Engine,
		owner:        params.Owner,
		creator:      params.Creator,
		platform:     params.Platform,
		reserveRatio: new(big.Int).SetUint64(params.ReserveRatio),
		emitter:      events.NoopEmitter{},
		nowFn:        func() int64 { return time.Now().Unix() },
		state:        newState(),
		dist:         &Distribution{},
	}, nil
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Owner returns the address allowed to finalize before the cap is reached.
func (e *Engine) Owner() types.Address { return e.owner }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Snapshot returns a consistent copy of the sale state.
func (e *Engine) Snapshot() *State {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.state.Clone()
}

// DistributionState returns a copy of the staged distribution record.
func (e *Engine) DistributionState() *Distribution {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.dist.Clone()
}

// TokensSold returns the cumulative tokens minted through purchases.
func (e *Engine) TokensSold() *big.Int { return e.Snapshot().TokensSold }

// AssetRaised returns the cumulative payment received.
func (e *Engine) AssetRaised() *big.Int { return e.Snapshot().AssetRaised }

// Finalized reports whether the sale has closed.
func (e *Engine) Finalized() bool { return e.Snapshot().Finalized }

// CurrentPrice returns the price of one token in asset units, fixed-point
// base 10^6. Pure read; never fails for valid state.
func (e *Engine) CurrentPrice() *big.Int {
	st := e.Snapshot()
	return priceFor(st.TokensSold, st.AssetRaised, e.reserveRatio)
}

// Quote returns the deterministic pre-trade token estimate for assetAmount,
// clamped to the remaining sale allocation. Returns zero once exhausted.
func (e *Engine) Quote(assetAmount *big.Int) *big.Int {
	if assetAmount == nil || assetAmount.Sign() <= 0 {
		return big.NewInt(0)
	}
	st := e.Snapshot()
	price := priceFor(st.TokensSold, st.AssetRaised, e.reserveRatio)
	tokens, _ := quoteAt(assetAmount, st.TokensSold, price)
	return tokens
}

// Purchase pulls assetAmount from the buyer, mints the quoted tokens, and
// advances the ledger. When the purchase is clamped to the remaining
// allocation the buyer is charged only for the tokens actually received.
// Reaching the cap triggers finalization synchronously within the same call.
// If that cap-triggered distribution fails, the committed purchase receipt
// is returned together with the distribution error; the purchase itself is
// final and the owner completes the payout via RetryDistribution.
func (e *Engine) Purchase(buyer types.Address, assetAmount *big.Int) (*Receipt, error) {
	if !e.opMu.TryLock() {
		return nil, ErrBusy
	}
	defer e.opMu.Unlock()

	st := e.Snapshot()
	if st.Finalized {
		return nil, ErrSaleFinalized
	}
	if assetAmount == nil || assetAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if st.TokensSold.Cmp(SaleAllocation) >= 0 {
		return nil, ErrSaleExhausted
	}

	price := priceFor(st.TokensSold, st.AssetRaised, e.reserveRatio)
	tokens, clamped := quoteAt(assetAmount, st.TokensSold, price)
	if tokens.Sign() == 0 {
		return nil, ErrAmountTooSmall
	}
	charged := new(big.Int).Set(assetAmount)
	if clamped {
		charged = assetCost(tokens, price)
		if charged.Sign() == 0 {
			return nil, ErrAmountTooSmall
		}
	}

	if err := e.payment.TransferFrom(e.self, buyer, e.self, charged); err != nil {
		return nil, fmt.Errorf("%w: pull payment: %w", ErrCollaborator, err)
	}
	if err := e.token.Mint(e.self, buyer, tokens); err != nil {
		if refundErr := e.payment.Transfer(e.self, buyer, charged); refundErr != nil {
			return nil, fmt.Errorf("%w: mint: %w (refund also failed: %v)", ErrCollaborator, err, refundErr)
		}
		return nil, fmt.Errorf("%w: mint: %w", ErrCollaborator, err)
	}

	e.stateMu.Lock()
	e.state.TokensSold.Add(e.state.TokensSold, tokens)
	e.state.AssetRaised.Add(e.state.AssetRaised, charged)
	sold := new(big.Int).Set(e.state.TokensSold)
	raised := new(big.Int).Set(e.state.AssetRaised)
	e.stateMu.Unlock()

	newPrice := priceFor(sold, raised, e.reserveRatio)
	e.emit(PurchaseEvent(buyer.Hex(), charged.String(), tokens.String(), newPrice.String()))

	receipt := &Receipt{
		Buyer:       buyer,
		AssetAmount: charged,
		TokenAmount: tokens,
		Price:       newPrice,
		PurchasedAt: e.now(),
	}
	if sold.Cmp(SaleAllocation) >= 0 {
		// Fully subscribed: no window may exist between the final purchase
		// and finalization.
		if err := e.finalizeLocked(buyer); err != nil {
			return receipt, err
		}
	}
	return receipt, nil
}

// Finalize closes the sale and runs the distribution. Only the owner may
// finalize before the sale allocation is fully subscribed. A second call
// always fails with ErrSaleFinalized.
func (e *Engine) Finalize(caller types.Address) error {
	if !e.opMu.TryLock() {
		return ErrBusy
	}
	defer e.opMu.Unlock()
	return e.finalizeLocked(caller)
}

// finalizeLocked requires opMu to be held.
func (e *Engine) finalizeLocked(caller types.Address) error {
	st := e.Snapshot()
	if st.Finalized {
		return ErrSaleFinalized
	}
	if caller != e.owner && st.TokensSold.Cmp(SaleAllocation) < 0 {
		return ErrUnauthorized
	}

	// The flag commits first and never rolls back: purchases are blocked
	// from this point even if a distribution stage fails below.
	e.stateMu.Lock()
	e.state.Finalized = true
	e.stateMu.Unlock()

	return e.distribute(st.TokensSold, st.AssetRaised)
}

// RetryDistribution resumes an incomplete distribution after a collaborator
// failure during finalize. Owner-only; mints and transfers that already
// committed are never repeated.
func (e *Engine) RetryDistribution(caller types.Address) error {
	if !e.opMu.TryLock() {
		return ErrBusy
	}
	defer e.opMu.Unlock()
	if caller != e.owner {
		return ErrUnauthorized
	}
	st := e.Snapshot()
	if !st.Finalized {
		return ErrNoPendingDistribution
	}
	e.stateMu.RLock()
	done := e.dist.Complete()
	e.stateMu.RUnlock()
	if done {
		return ErrNoPendingDistribution
	}
	return e.distribute(st.TokensSold, st.AssetRaised)
}

// distribute runs the payout: fixed allocations, proceeds split, the
// liquidity hand-off, then returning any unused remainders to the creator.
// Progress commits after every external call, so a retry picks up exactly
// where the failed call left off and never repeats a mint or transfer that
// already landed. Requires opMu held.
func (e *Engine) distribute(totalSold, totalRaised *big.Int) error {
	dist := e.DistributionState()
	if dist == nil {
		dist = &Distribution{}
	}

	mints := []struct {
		done   *bool
		to     types.Address
		amount *big.Int
		label  string
	}{
		{&dist.CreatorMinted, e.creator, CreatorAllocation, "creator"},
		{&dist.PlatformMinted, e.platform, PlatformFeeAllocation, "platform"},
		{&dist.LiquidityMinted, e.self, LiquidityAllocation, "liquidity"},
	}
	for _, m := range mints {
		if *m.done {
			continue
		}
		if err := e.token.Mint(e.self, m.to, m.amount); err != nil {
			return fmt.Errorf("%w: mint %s allocation: %w", ErrCollaborator, m.label, err)
		}
		*m.done = true
		e.commitDistribution(dist)
	}

	if !dist.ProceedsSplit {
		creatorShare := new(big.Int).Quo(totalRaised, big.NewInt(2))
		retained := new(big.Int).Sub(totalRaised, creatorShare)
		if creatorShare.Sign() > 0 {
			if err := e.payment.Transfer(e.self, e.creator, creatorShare); err != nil {
				return fmt.Errorf("%w: transfer creator proceeds: %w", ErrCollaborator, err)
			}
		}
		dist.ProceedsSplit = true
		dist.RetainedAsset = retained
		e.commitDistribution(dist)
	}

	if !dist.LiquidityAdded {
		if dist.RetainedAsset == nil || dist.RetainedAsset.Sign() == 0 {
			// Nothing to pool on a zero-raised sale. The staged tokens reach
			// the creator through the remainder path below instead of a
			// hand-off the venue would reject.
			dist.UnusedToken = new(big.Int).Set(LiquidityAllocation)
			dist.UnusedAsset = big.NewInt(0)
		} else {
			usedToken, usedAsset, err := e.provideLiquidity(LiquidityAllocation, dist.RetainedAsset)
			if err != nil {
				return err
			}
			dist.UnusedToken = new(big.Int).Sub(LiquidityAllocation, usedToken)
			dist.UnusedAsset = new(big.Int).Sub(dist.RetainedAsset, usedAsset)
		}
		dist.LiquidityAdded = true
		e.commitDistribution(dist)
	}

	if dist.UnusedToken != nil && dist.UnusedToken.Sign() > 0 {
		if err := e.token.Transfer(e.self, e.creator, dist.UnusedToken); err != nil {
			return fmt.Errorf("%w: return token remainder: %w", ErrCollaborator, err)
		}
		dist.UnusedToken = big.NewInt(0)
		e.commitDistribution(dist)
	}
	if dist.UnusedAsset != nil && dist.UnusedAsset.Sign() > 0 {
		if err := e.payment.Transfer(e.self, e.creator, dist.UnusedAsset); err != nil {
			return fmt.Errorf("%w: return asset remainder: %w", ErrCollaborator, err)
		}
		dist.UnusedAsset = big.NewInt(0)
		e.commitDistribution(dist)
	}

	e.emit(FinalizedEvent(totalSold.String(), totalRaised.String()))
	return nil
}

// provideLiquidity authorizes the venue and adds liquidity with no
// minimum-out guards. The approvals overwrite rather than accumulate, so
// repeating them on a retry is harmless. Returns the amounts the venue
// actually consumed; the caller settles any remainder.
func (e *Engine) provideLiquidity(tokenAmount, assetAmount *big.Int) (*big.Int, *big.Int, error) {
	venueAddr := e.venue.Address()
	if err := e.token.Approve(e.self, venueAddr, tokenAmount); err != nil {
		return nil, nil, fmt.Errorf("%w: approve token: %w", ErrCollaborator, err)
	}
	if err := e.payment.Approve(e.self, venueAddr, assetAmount); err != nil {
		return nil, nil, fmt.Errorf("%w: approve asset: %w", ErrCollaborator, err)
	}

	deadline := e.now() + liquidityDeadlineSeconds
	usedToken, usedAsset, liquidity, err := e.venue.AddLiquidity(
		e.self, e.tokenAddr, e.assetAddr,
		tokenAmount, assetAmount,
		big.NewInt(0), big.NewInt(0),
		e.creator, deadline,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: add liquidity: %w", ErrCollaborator, err)
	}

	pair, err := e.venue.PairFor(e.tokenAddr, e.assetAddr)
	if err != nil {
		pair = types.Address{}
	}
	e.emit(LiquidityAddedEvent(pair.Hex(), usedToken.String(), usedAsset.String(), liquidity.String()))
	return usedToken, usedAsset, nil
}

func (e *Engine) commitDistribution(dist *Distribution) {
	e.stateMu.Lock()
	e.dist = dist.Clone()
	e.stateMu.Unlock()
}
