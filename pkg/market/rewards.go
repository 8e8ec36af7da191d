package market

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Payment is one outbound native-currency transfer.
type Payment struct {
	To     common.Address
	Amount *big.Int
}

// RewardRates are the four mutable referral rates, in basis points.
type RewardRates struct {
	SaleL1  int64 `json:"saleL1"`
	SaleL2  int64 `json:"saleL2"`
	TradeL1 int64 `json:"tradeL1"`
	TradeL2 int64 `json:"tradeL2"`
}

// RewardSplit is the outcome of dividing a trade's value: the net amount
// retained by the payee side plus the referral payouts. The identity
// Net + L1Amount + L2Amount == base holds on every path.
type RewardSplit struct {
	Net      *big.Int
	L1Amount *big.Int
	L2Amount *big.Int
	Payouts  []Payment
}

// RewardRouter resolves a principal's sponsor chain and splits a base
// amount into net proceeds and two referral shares. When the principal has
// no sponsor chain, the full reward portion is redirected to the fallback
// sink; it is carved out of the base either way, so net proceeds do not
// depend on the principal's registration state.
type RewardRouter struct {
	registry *ReferralRegistry
	sink     common.Address

	// rootSelfReward pays the L2 share to the root when the chain
	// terminates at the self-sponsored root; false diverts it to the sink.
	rootSelfReward bool
}

func NewRewardRouter(registry *ReferralRegistry, sink common.Address, rootSelfReward bool) *RewardRouter {
	return &RewardRouter{registry: registry, sink: sink, rootSelfReward: rootSelfReward}
}

func (rr *RewardRouter) SetSink(sink common.Address) { rr.sink = sink }

// Split divides base by the given rates using principal's sponsor chain.
// Zero-amount payouts are elided from the payment list but still counted
// in the split amounts, keeping the identity exact.
func (rr *RewardRouter) Split(principal common.Address, base *big.Int, l1Bps, l2Bps int64) RewardSplit {
	l1Amount := bpsShare(base, l1Bps)
	l2Amount := bpsShare(base, l2Bps)

	net := new(big.Int).Sub(base, l1Amount)
	net.Sub(net, l2Amount)

	split := RewardSplit{Net: net, L1Amount: l1Amount, L2Amount: l2Amount}

	l1, l2, ok := rr.registry.Uplines(principal)
	if !ok {
		// No sponsor chain: the whole reward portion goes to the sink.
		split.Payouts = appendPayout(split.Payouts, rr.sink, new(big.Int).Add(l1Amount, l2Amount))
		return split
	}

	split.Payouts = appendPayout(split.Payouts, l1, l1Amount)

	l2To := l2
	if l2 == rr.registry.Root() && l1 == rr.registry.Root() && !rr.rootSelfReward {
		l2To = rr.sink
	}
	split.Payouts = appendPayout(split.Payouts, l2To, l2Amount)

	return split
}

func appendPayout(ps []Payment, to common.Address, amount *big.Int) []Payment {
	if amount.Sign() <= 0 {
		return ps
	}
	return append(ps, Payment{To: to, Amount: amount})
}

func bpsShare(base *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(base, big.NewInt(bps))
	return out.Quo(out, big.NewInt(BpsDenominator))
}
