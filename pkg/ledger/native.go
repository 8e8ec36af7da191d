package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VolhaShupr/acdm-platform/pkg/market"
)

// Native is the native-currency balance ledger. Deposits are the bridge in
// from whatever funds participants: tests and the node faucet credit
// balances directly.
type Native struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

func NewNative() *Native {
	return &Native{balances: make(map[common.Address]*big.Int)}
}

func (n *Native) Deposit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.credit(addr, amount)
	return nil
}

func (n *Native) BalanceOf(addr common.Address) *big.Int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if b, ok := n.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (n *Native) credit(addr common.Address, amount *big.Int) {
	b, ok := n.balances[addr]
	if !ok {
		b = new(big.Int)
		n.balances[addr] = b
	}
	b.Add(b, amount)
}

// Gateway binds the native ledger to one custody address and implements
// market.PaymentGateway with all-or-nothing settlement: the whole batch is
// checked before any balance moves.
type Gateway struct {
	ledger  *Native
	custody common.Address
}

func NewGateway(ledger *Native, custody common.Address) *Gateway {
	return &Gateway{ledger: ledger, custody: custody}
}

// Settle collects amount from payer into custody and disburses payouts
// from custody. A nil/zero amount or zero payer skips the collection leg.
// Nothing is applied unless every leg can be.
func (g *Gateway) Settle(payer common.Address, amount *big.Int, payouts []market.Payment) error {
	g.ledger.mu.Lock()
	defer g.ledger.mu.Unlock()

	collecting := payer != (common.Address{}) && amount != nil && amount.Sign() > 0

	// Check both legs first.
	if collecting {
		b, ok := g.ledger.balances[payer]
		if !ok || b.Cmp(amount) < 0 {
			return fmt.Errorf("insufficient funds: payer %s", payer.Hex())
		}
	}

	total := new(big.Int)
	for _, p := range payouts {
		if p.Amount == nil || p.Amount.Sign() < 0 {
			return fmt.Errorf("invalid payout amount")
		}
		if p.To == (common.Address{}) {
			return fmt.Errorf("payout to the zero address")
		}
		total.Add(total, p.Amount)
	}

	available := new(big.Int)
	if b, ok := g.ledger.balances[g.custody]; ok {
		available.Set(b)
	}
	if collecting {
		available.Add(available, amount)
	}
	if available.Cmp(total) < 0 {
		return fmt.Errorf("insufficient custody funds: have %s, need %s", available, total)
	}

	// Apply.
	if collecting {
		g.ledger.balances[payer].Sub(g.ledger.balances[payer], amount)
		g.ledger.credit(g.custody, amount)
	}
	for _, p := range payouts {
		if p.Amount.Sign() == 0 {
			continue
		}
		g.ledger.balances[g.custody].Sub(g.ledger.balances[g.custody], p.Amount)
		g.ledger.credit(p.To, p.Amount)
	}

	return nil
}

func (g *Gateway) Balance() *big.Int {
	return g.ledger.BalanceOf(g.custody)
}
