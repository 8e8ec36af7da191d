package market

import (
	"math/big"
	"time"
)

// Phase is the kind of the currently active round.
type Phase uint8

const (
	PhaseSale Phase = iota + 1
	PhaseTrade
)

func (p Phase) String() string {
	switch p {
	case PhaseSale:
		return "sale"
	case PhaseTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Round is the engine's single active-round record. Exactly one instance
// exists; phases alternate strictly Sale↔Trade. Expiry is not a stored
// state: it is a function of the caller-supplied current time.
type Round struct {
	Phase   Phase     `json:"phase"`
	EndTime time.Time `json:"endTime"`

	// Sale-phase inventory and price.
	SaleTokensLeft *big.Int `json:"saleTokensLeft"`
	SalePrice      *big.Int `json:"salePrice"`

	// Native value realized by redeemed orders during the trade phase;
	// input to the next sale round's mint amount.
	TradeVolume *big.Int `json:"tradeVolume"`

	// SaleCount is the number of sale rounds started so far. Zero means
	// the seed price has not been consumed yet.
	SaleCount uint64 `json:"saleCount"`
}

// NewSeededRound is the state at construction: a trade round that is
// already expired with a seeded trade volume, so the first sale round has
// a real pricing input and can start immediately.
func NewSeededRound(now time.Time, seedVolume *big.Int) *Round {
	return &Round{
		Phase:          PhaseTrade,
		EndTime:        now,
		SaleTokensLeft: new(big.Int),
		SalePrice:      new(big.Int),
		TradeVolume:    new(big.Int).Set(seedVolume),
	}
}

func (r *Round) Expired(now time.Time) bool {
	return !now.Before(r.EndTime)
}

// SaleActive reports whether sale entry points may run.
func (r *Round) SaleActive(now time.Time) bool {
	return r.Phase == PhaseSale && !r.Expired(now)
}

// TradeActive reports whether trade entry points may run.
func (r *Round) TradeActive(now time.Time) bool {
	return r.Phase == PhaseTrade && !r.Expired(now)
}

// CanStartSale: the prior trade round must be fully time-expired. There is
// no early exit for trade rounds; volume, not time, determines outcome.
func (r *Round) CanStartSale(now time.Time) bool {
	return r.Phase != PhaseSale && r.Expired(now)
}

// CanStartTrade: the sale round must have expired or sold out. Selling out
// early must not force traders to wait out a dead clock.
func (r *Round) CanStartTrade(now time.Time) bool {
	if r.Phase == PhaseTrade {
		return false
	}
	return r.Expired(now) || r.SaleTokensLeft.Sign() == 0
}
