package market

import (
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a resting sell order. Remaining only ever decreases (via
// redemption) until zero or the record is deleted by removal.
type Order struct {
	ID        uint64         `json:"id"`
	Owner     common.Address `json:"owner"`
	Price     *big.Int       `json:"price"`     // native units per whole token
	Remaining *big.Int       `json:"remaining"` // token units still for sale
	CreatedAt time.Time      `json:"createdAt"`
}

// orderTable holds live orders keyed by a monotonically increasing id.
// Ids are never reused, even after deletion: a stale id behaves exactly
// like one that never existed.
type orderTable struct {
	orders map[uint64]*Order
	nextID uint64
}

func newOrderTable() *orderTable {
	return &orderTable{orders: make(map[uint64]*Order), nextID: 1}
}

func (t *orderTable) insert(owner common.Address, amount, price *big.Int, now time.Time) *Order {
	o := &Order{
		ID:        t.nextID,
		Owner:     owner,
		Price:     new(big.Int).Set(price),
		Remaining: new(big.Int).Set(amount),
		CreatedAt: now,
	}
	t.nextID++
	t.orders[o.ID] = o
	return o
}

// lookup returns the order and whether it exists; no zero-owner sentinel.
func (t *orderTable) lookup(id uint64) (*Order, bool) {
	o, ok := t.orders[id]
	return o, ok
}

func (t *orderTable) remove(id uint64) {
	delete(t.orders, id)
}

// list returns live orders sorted by id.
func (t *orderTable) list() []*Order {
	out := make([]*Order, 0, len(t.orders))
	for _, o := range t.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
