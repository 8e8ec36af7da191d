package market

import "math/big"

// BpsDenominator is the basis-point scale: 10000 = 100%.
const BpsDenominator = 10000

// Pricing holds the conversion and escalation parameters. All methods are
// pure and truncate division toward zero; callers must treat a zero result
// as "insufficient input", never as a free transaction.
type Pricing struct {
	// TokenScale is 10^decimals of the sale token.
	TokenScale *big.Int

	// Next price = prev * GrowthNum / GrowthDen + Increment.
	GrowthNum *big.Int
	GrowthDen *big.Int
	Increment *big.Int
}

func NewPricing(decimals uint8, growthNum, growthDen int64, increment *big.Int) Pricing {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return Pricing{
		TokenScale: scale,
		GrowthNum:  big.NewInt(growthNum),
		GrowthDen:  big.NewInt(growthDen),
		Increment:  new(big.Int).Set(increment),
	}
}

// TokensFor converts a native payment into a token amount at the given
// price per token: floor(payment * tokenScale / price).
func (p Pricing) TokensFor(payment, pricePerToken *big.Int) *big.Int {
	if pricePerToken.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(payment, p.TokenScale)
	return out.Quo(out, pricePerToken)
}

// CostFor converts a token amount into its native cost at the given price
// per token: floor(amount * price / tokenScale).
func (p Pricing) CostFor(tokenAmount, pricePerToken *big.Int) *big.Int {
	out := new(big.Int).Mul(tokenAmount, pricePerToken)
	return out.Quo(out, p.TokenScale)
}

// NextPrice escalates the sale price for the round after prev:
// floor(prev * growthNum / growthDen) + increment.
func (p Pricing) NextPrice(prev *big.Int) *big.Int {
	out := new(big.Int).Mul(prev, p.GrowthNum)
	out.Quo(out, p.GrowthDen)
	return out.Add(out, p.Increment)
}
