// Package ledger provides the in-memory token and native-currency
// collaborators the market engine trades against.
package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a mintable, burnable fungible-token ledger. It implements
// market.TokenLedger.
type Token struct {
	mu sync.RWMutex

	name     string
	symbol   string
	decimals uint8

	balances    map[common.Address]*big.Int
	totalSupply *big.Int
}

func NewToken(name, symbol string, decimals uint8) *Token {
	return &Token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		balances:    make(map[common.Address]*big.Int),
		totalSupply: new(big.Int),
	}
}

func (t *Token) Name() string    { return t.name }
func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

func (t *Token) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("mint amount must be non-negative")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.credit(to, amount)
	t.totalSupply.Add(t.totalSupply, amount)
	return nil
}

func (t *Token) Burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("burn amount must be non-negative")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.totalSupply.Sub(t.totalSupply, amount)
	return nil
}

func (t *Token) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("transfer amount must be non-negative")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.debit(from, amount); err != nil {
		return err
	}
	t.credit(to, amount)
	return nil
}

func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

// credit and debit assume the lock is held.
func (t *Token) credit(addr common.Address, amount *big.Int) {
	b, ok := t.balances[addr]
	if !ok {
		b = new(big.Int)
		t.balances[addr] = b
	}
	b.Add(b, amount)
}

func (t *Token) debit(addr common.Address, amount *big.Int) error {
	b, ok := t.balances[addr]
	if !ok || b.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient token balance: %s has %s, need %s", addr.Hex(), t.balanceLocked(addr), amount)
	}
	b.Sub(b, amount)
	return nil
}

func (t *Token) balanceLocked(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return b
	}
	return new(big.Int)
}
