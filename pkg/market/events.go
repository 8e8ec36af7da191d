package market

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Event is emitted by the engine after an entry point commits. The Type
// discriminator is stable and doubles as the websocket channel name.
type Event interface {
	Type() string
}

type RoundStarted struct {
	Phase  Phase     `json:"phase"`
	Price  *big.Int  `json:"price,omitempty"`  // sale rounds only
	Amount *big.Int  `json:"amount,omitempty"` // sale rounds only
	EndsAt time.Time `json:"endsAt"`
}

func (RoundStarted) Type() string { return "round_started" }

type SaleTokenBought struct {
	Buyer  common.Address `json:"buyer"`
	Amount *big.Int       `json:"amount"`
	Cost   *big.Int       `json:"cost"`
}

func (SaleTokenBought) Type() string { return "sale_token_bought" }

type OrderAdded struct {
	ID     uint64         `json:"id"`
	Owner  common.Address `json:"owner"`
	Amount *big.Int       `json:"amount"`
	Price  *big.Int       `json:"price"`
}

func (OrderAdded) Type() string { return "order_added" }

type OrderRemoved struct {
	ID       uint64   `json:"id"`
	Returned *big.Int `json:"returned"`
}

func (OrderRemoved) Type() string { return "order_removed" }

type OrderRedeemed struct {
	ID     uint64         `json:"id"`
	Buyer  common.Address `json:"buyer"`
	Amount *big.Int       `json:"amount"`
	Price  *big.Int       `json:"price"`
	Cost   *big.Int       `json:"cost"`
}

func (OrderRedeemed) Type() string { return "order_redeemed" }

type UserRegistered struct {
	User    common.Address `json:"user"`
	Sponsor common.Address `json:"sponsor"`
}

func (UserRegistered) Type() string { return "user_registered" }

type RewardRatesUpdated struct {
	Rates RewardRates `json:"rates"`
}

func (RewardRatesUpdated) Type() string { return "reward_rates_updated" }

type RoundDurationUpdated struct {
	Duration time.Duration `json:"duration"`
}

func (RoundDurationUpdated) Type() string { return "round_duration_updated" }

type FallbackSinkUpdated struct {
	Sink common.Address `json:"sink"`
}

func (FallbackSinkUpdated) Type() string { return "fallback_sink_updated" }

type FundsWithdrawn struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

func (FundsWithdrawn) Type() string { return "funds_withdrawn" }
