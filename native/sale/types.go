package sale

import (
	"math/big"

	"curvesale/core/types"
)

// Supply partition for the sale token. The four allocations together equal
// the token's maximum supply; nothing is minted before the sale opens.
var (
	// TotalSupplyCap is the hard cap enforced by the token ledger.
	TotalSupplyCap = tokenUnits(1_000_000_000)
	// SaleAllocation is the pool sold along the curve during the active sale.
	SaleAllocation = tokenUnits(500_000_000)
	// CreatorAllocation is minted to the fund creator at finalization.
	CreatorAllocation = tokenUnits(200_000_000)
	// LiquidityAllocation is staged for the AMM hand-off at finalization.
	LiquidityAllocation = tokenUnits(250_000_000)
	// PlatformFeeAllocation is minted to the platform at finalization.
	PlatformFeeAllocation = tokenUnits(50_000_000)
)

// Params fixes the sale configuration at construction time. All handles and
// addresses are required; ReserveRatio is expressed in parts-per-million and
// must fall in (0, 1_000_000].
type Params struct {
	Token        TokenLedger
	Payment      PaymentLedger
	Venue        LiquidityVenue
	TokenAddress types.Address
	AssetAddress types.Address
	Engine       types.Address
	Owner        types.Address
	Creator      types.Address
	Platform     types.Address
	ReserveRatio uint64
}

// State is the mutable sale ledger. TokensSold is token-denominated
// (18 decimals), AssetRaised is asset-denominated (6 decimals). Finalized
// transitions false to true exactly once.
type State struct {
	TokensSold  *big.Int `json:"tokensSold"`
	AssetRaised *big.Int `json:"assetRaised"`
	Finalized   bool     `json:"finalized"`
}

// Clone returns a deep copy of the sale state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	clone := *s
	if s.TokensSold != nil {
		clone.TokensSold = new(big.Int).Set(s.TokensSold)
	}
	if s.AssetRaised != nil {
		clone.AssetRaised = new(big.Int).Set(s.AssetRaised)
	}
	return &clone
}

func newState() *State {
	return &State{TokensSold: big.NewInt(0), AssetRaised: big.NewInt(0)}
}

// Distribution tracks the post-finalization payout. Progress commits after
// every external call, so a retry never repeats a mint or transfer that
// already landed. UnusedToken and UnusedAsset hold the remainders still owed
// to the creator; they zero out as each return transfer commits.
type Distribution struct {
	CreatorMinted   bool `json:"creatorMinted"`
	PlatformMinted  bool `json:"platformMinted"`
	LiquidityMinted bool `json:"liquidityMinted"`
	ProceedsSplit   bool `json:"proceedsSplit"`
	LiquidityAdded  bool `json:"liquidityAdded"`

	RetainedAsset *big.Int `json:"retainedAsset"`
	UnusedToken   *big.Int `json:"unusedToken"`
	UnusedAsset   *big.Int `json:"unusedAsset"`
}

// Complete reports whether every distribution step has committed and no
// remainder is still owed.
func (d *Distribution) Complete() bool {
	if d == nil {
		return false
	}
	return d.CreatorMinted && d.PlatformMinted && d.LiquidityMinted &&
		d.ProceedsSplit && d.LiquidityAdded &&
		(d.UnusedToken == nil || d.UnusedToken.Sign() == 0) &&
		(d.UnusedAsset == nil || d.UnusedAsset.Sign() == 0)
}

// Clone returns a deep copy of the distribution record.
func (d *Distribution) Clone() *Distribution {
	if d == nil {
		return nil
	}
	clone := *d
	if d.RetainedAsset != nil {
		clone.RetainedAsset = new(big.Int).Set(d.RetainedAsset)
	}
	if d.UnusedToken != nil {
		clone.UnusedToken = new(big.Int).Set(d.UnusedToken)
	}
	if d.UnusedAsset != nil {
		clone.UnusedAsset = new(big.Int).Set(d.UnusedAsset)
	}
	return &clone
}

// Receipt records the outcome of a single purchase.
type Receipt struct {
	Buyer       types.Address `json:"buyer"`
	AssetAmount *big.Int      `json:"assetAmount"`
	TokenAmount *big.Int      `json:"tokenAmount"`
	Price       *big.Int      `json:"price"`
	PurchasedAt int64         `json:"purchasedAt"`
}
