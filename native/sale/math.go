package sale

import "math/big"

// Fixed-point bases. The token carries 18 decimal places, the payment asset
// carries 6, and every rescaling between the two funnels through this file.
var (
	// TokenUnit is one whole token in base units (10^18).
	TokenUnit = exp10(18)
	// AssetUnit is one whole payment-asset unit in base units (10^6).
	AssetUnit = exp10(6)
	// precisionGap bridges the 18-decimal token and the 6-decimal asset.
	precisionGap = exp10(12)
	// priceScale is the shared fixed-point base for prices and the
	// parts-per-million reserve ratio.
	priceScale = big.NewInt(1_000_000)

	// initialPrice is 0.10 asset units per token before any sale activity.
	initialPrice = big.NewInt(100_000)
)

func exp10(n int64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(n), nil)
}

func tokenUnits(whole int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(whole), TokenUnit)
}

// priceFor returns the price of one token in asset units, fixed-point base
// priceScale. The curve is the linear approximation
// assetRaised / (adjustedSupply * reserveRatio): monotonically increasing in
// assetRaised for a fixed supply. It is not the integral Bancor formula; the
// drift between quote and execution grows with single-purchase size.
func priceFor(tokensSold, assetRaised, reserveRatio *big.Int) *big.Int {
	if tokensSold == nil || tokensSold.Sign() == 0 {
		return new(big.Int).Set(initialPrice)
	}
	adjusted := new(big.Int).Quo(tokensSold, precisionGap)
	if adjusted.Sign() == 0 {
		// Sold supply below the rescaling granularity.
		return new(big.Int).Set(initialPrice)
	}
	price := new(big.Int).Mul(assetRaised, priceScale)
	price.Mul(price, priceScale)
	price.Quo(price, new(big.Int).Mul(adjusted, reserveRatio))
	if price.Sign() == 0 {
		return new(big.Int).Set(initialPrice)
	}
	return price
}

// quoteAt converts an asset amount into tokens at the supplied pre-trade
// price, clamped to the remaining sale allocation. Returns the token amount
// and whether clamping occurred.
func quoteAt(assetAmount, tokensSold, price *big.Int) (*big.Int, bool) {
	remaining := new(big.Int).Sub(SaleAllocation, tokensSold)
	if remaining.Sign() <= 0 {
		return big.NewInt(0), false
	}
	tokens := new(big.Int).Mul(assetAmount, precisionGap)
	tokens.Mul(tokens, priceScale)
	tokens.Quo(tokens, price)
	if tokens.Cmp(remaining) > 0 {
		return remaining, true
	}
	return tokens, false
}

// assetCost converts a token amount back into asset units at the supplied
// price, rounding down. Used to charge only for clamped purchases.
func assetCost(tokenAmount, price *big.Int) *big.Int {
	cost := new(big.Int).Mul(tokenAmount, price)
	return cost.Quo(cost, TokenUnit)
}
