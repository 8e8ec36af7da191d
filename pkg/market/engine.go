package market

import (
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/VolhaShupr/acdm-platform/pkg/util"
)

// TokenLedger is the fungible-token collaborator. The engine holds minted
// and escrowed tokens under its own custody address.
type TokenLedger interface {
	Mint(to common.Address, amount *big.Int) error
	Burn(from common.Address, amount *big.Int) error
	Transfer(from, to common.Address, amount *big.Int) error
	BalanceOf(addr common.Address) *big.Int
	Decimals() uint8
}

// PaymentGateway moves native currency. Settle is all-or-nothing: it
// collects amount from payer into engine custody and disburses payouts
// from custody, or applies nothing and returns an error. A nil or zero
// amount (or zero payer) skips the collection leg.
type PaymentGateway interface {
	Settle(payer common.Address, amount *big.Int, payouts []Payment) error
	Balance() *big.Int
}

// AdminState is the mutable engine configuration persisted alongside the
// round record.
type AdminState struct {
	Rates         RewardRates    `json:"rates"`
	RoundDuration time.Duration  `json:"roundDuration"`
	Sink          common.Address `json:"sink"`
	NextOrderID   uint64         `json:"nextOrderId"`
}

// Snapshot is the durable engine state loaded at construction.
type Snapshot struct {
	Round  *Round
	Orders []*Order
	Edges  map[common.Address]common.Address
	Admin  *AdminState
}

// Store persists engine state. All methods are called with the engine lock
// held, after the in-memory mutation has committed.
type Store interface {
	SaveRound(r *Round) error
	SaveOrder(o *Order) error
	DeleteOrder(id uint64) error
	SaveEdge(referee, sponsor common.Address) error
	SaveAdmin(a AdminState) error
	Load() (*Snapshot, error)
}

// EngineConfig carries the construction-time parameters of the market.
type EngineConfig struct {
	EngineAddress common.Address // custody identity on both ledgers
	Owner         common.Address
	Root          common.Address
	FallbackSink  common.Address

	RootSelfReward bool

	RoundDuration time.Duration
	SeedPrice     *big.Int
	SeedVolume    *big.Int
	GrowthNum     int64
	GrowthDen     int64
	Increment     *big.Int

	Rates RewardRates
}

// Engine owns the round state machine, the order table, the referral graph
// and the reward routing. Every exported entry point runs as one atomic
// unit: it either commits all of its effects or returns an error having
// touched nothing observable.
type Engine struct {
	mu sync.Mutex

	// busy is the call-scoped in-progress flag: set for the whole of any
	// entry point, released on every exit path. It is atomic, not guarded
	// by mu, so a payment recipient calling back in during settlement can
	// observe it without blocking on the non-reentrant mutex.
	busy atomic.Bool

	cfg   EngineConfig
	clock util.Clock
	log   *zap.SugaredLogger

	pricing  Pricing
	registry *ReferralRegistry
	router   *RewardRouter

	token   TokenLedger
	gateway PaymentGateway
	store   Store // nil for an ephemeral engine

	rates         RewardRates
	roundDuration time.Duration

	round  *Round
	orders *orderTable

	events chan Event
}

// NewEngine builds an engine, restoring durable state from store when one
// is supplied and a snapshot exists, otherwise seeding the initial
// already-expired trade round.
func NewEngine(cfg EngineConfig, token TokenLedger, gateway PaymentGateway, store Store, clock util.Clock, log *zap.SugaredLogger) (*Engine, error) {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	registry := NewReferralRegistry(cfg.Root)
	e := &Engine{
		cfg:           cfg,
		clock:         clock,
		log:           log,
		pricing:       NewPricing(token.Decimals(), cfg.GrowthNum, cfg.GrowthDen, cfg.Increment),
		registry:      registry,
		router:        NewRewardRouter(registry, cfg.FallbackSink, cfg.RootSelfReward),
		token:         token,
		gateway:       gateway,
		store:         store,
		rates:         cfg.Rates,
		roundDuration: cfg.RoundDuration,
		round:         NewSeededRound(clock.Now(), cfg.SeedVolume),
		orders:        newOrderTable(),
		events:        make(chan Event, 256),
	}

	if store != nil {
		snap, err := store.Load()
		if err != nil {
			return nil, err
		}
		e.restore(snap)
	}

	return e, nil
}

func (e *Engine) restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	if snap.Round != nil {
		e.round = snap.Round
	}
	for _, o := range snap.Orders {
		e.orders.orders[o.ID] = o
	}
	if snap.Edges != nil {
		e.registry.Restore(snap.Edges)
	}
	if snap.Admin != nil {
		e.rates = snap.Admin.Rates
		e.roundDuration = snap.Admin.RoundDuration
		e.router.SetSink(snap.Admin.Sink)
		if snap.Admin.NextOrderID > e.orders.nextID {
			e.orders.nextID = snap.Admin.NextOrderID
		}
	}
}

// Events exposes the emitted event stream. The channel is buffered; slow
// consumers drop events rather than block entry points.
func (e *Engine) Events() <-chan Event { return e.events }

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		e.log.Debugw("event_dropped", "type", ev.Type())
	}
}

// begin marks the engine as mid-call, then takes the state lock. The flag
// is claimed before the lock: a nested call from inside a settlement runs
// on the goroutine that already holds the mutex, so checking the flag
// afterwards could never fire. The returned func must be deferred.
func (e *Engine) begin() (func(), error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, guardErr("reentrant call")
	}
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		e.busy.Store(false)
	}, nil
}

// StartSaleRound flips the engine into a sale round. The prior trade round
// must be fully time-expired. The sale price is the seed price on the
// first call and the escalated previous price afterwards; the mint amount
// is the accumulated trade volume converted at that price.
func (e *Engine) StartSaleRound() (RoundStarted, error) {
	done, err := e.begin()
	if err != nil {
		return RoundStarted{}, err
	}
	defer done()

	now := e.clock.Now()
	if !e.round.CanStartSale(now) {
		return RoundStarted{}, guardErr("inappropriate round")
	}

	var price *big.Int
	if e.round.SaleCount == 0 {
		price = new(big.Int).Set(e.cfg.SeedPrice)
	} else {
		price = e.pricing.NextPrice(e.round.SalePrice)
	}
	amount := e.pricing.TokensFor(e.round.TradeVolume, price)

	if amount.Sign() > 0 {
		if err := e.token.Mint(e.cfg.EngineAddress, amount); err != nil {
			return RoundStarted{}, transferErr("mint sale inventory", err)
		}
	}

	e.round.Phase = PhaseSale
	e.round.SalePrice = price
	e.round.SaleTokensLeft = amount
	e.round.TradeVolume = new(big.Int)
	e.round.EndTime = now.Add(e.roundDuration)
	e.round.SaleCount++
	e.persistRound()

	ev := RoundStarted{
		Phase:  PhaseSale,
		Price:  new(big.Int).Set(price),
		Amount: new(big.Int).Set(amount),
		EndsAt: e.round.EndTime,
	}
	e.log.Infow("sale_round_started", "price", price.String(), "amount", amount.String(), "ends_at", ev.EndsAt)
	e.emit(ev)
	return ev, nil
}

// BuySaleTokens sells inventory to buyer at the current sale price. The
// grant clamps to remaining inventory; any overpayment is refunded in the
// same call. Referral rewards route along the buyer's sponsor chain and
// are carved out of the cost.
func (e *Engine) BuySaleTokens(buyer common.Address, payment *big.Int) (SaleTokenBought, error) {
	done, err := e.begin()
	if err != nil {
		return SaleTokenBought{}, err
	}
	defer done()

	// The phase precondition outranks argument validation.
	now := e.clock.Now()
	if !e.round.SaleActive(now) {
		return SaleTokenBought{}, guardErr("sale round is not active")
	}

	if buyer == (common.Address{}) {
		return SaleTokenBought{}, validationErr("buyer is the zero address")
	}
	if payment == nil || payment.Sign() <= 0 {
		return SaleTokenBought{}, validationErr("payment must be positive")
	}
	if e.round.SaleTokensLeft.Sign() == 0 {
		return SaleTokenBought{}, validationErr("no tokens left")
	}

	want := e.pricing.TokensFor(payment, e.round.SalePrice)
	if want.Sign() == 0 {
		return SaleTokenBought{}, validationErr("not enough ether to buy a token")
	}

	granted := new(big.Int).Set(minBig(want, e.round.SaleTokensLeft))
	cost := e.pricing.CostFor(granted, e.round.SalePrice)

	split := e.router.Split(buyer, cost, e.rates.SaleL1, e.rates.SaleL2)
	payouts := split.Payouts
	if refund := new(big.Int).Sub(payment, cost); refund.Sign() > 0 {
		payouts = append(payouts, Payment{To: buyer, Amount: refund})
	}

	// The gateway leg is the only fallible external effect; it runs before
	// any state mutation so a failed send leaves the call unobserved.
	if err := e.gateway.Settle(buyer, payment, payouts); err != nil {
		return SaleTokenBought{}, transferErr("settle sale payment", err)
	}
	// Custody always holds at least SaleTokensLeft (minted at round start,
	// only debited here), so delivery cannot fail after the settle.
	if err := e.token.Transfer(e.cfg.EngineAddress, buyer, granted); err != nil {
		return SaleTokenBought{}, transferErr("deliver sale tokens", err)
	}

	e.round.SaleTokensLeft.Sub(e.round.SaleTokensLeft, granted)
	e.persistRound()

	ev := SaleTokenBought{Buyer: buyer, Amount: granted, Cost: cost}
	e.log.Infow("sale_tokens_bought", "buyer", buyer.Hex(), "amount", granted.String(), "cost", cost.String())
	e.emit(ev)
	return ev, nil
}

// StartTradeRound flips the engine into a trade round. The sale round must
// have expired or sold out; unsold inventory is burned.
func (e *Engine) StartTradeRound() (RoundStarted, error) {
	done, err := e.begin()
	if err != nil {
		return RoundStarted{}, err
	}
	defer done()

	now := e.clock.Now()
	if !e.round.CanStartTrade(now) {
		return RoundStarted{}, guardErr("inappropriate round")
	}

	if e.round.SaleTokensLeft.Sign() > 0 {
		if err := e.token.Burn(e.cfg.EngineAddress, e.round.SaleTokensLeft); err != nil {
			return RoundStarted{}, transferErr("burn unsold inventory", err)
		}
		e.round.SaleTokensLeft = new(big.Int)
	}

	e.round.Phase = PhaseTrade
	e.round.EndTime = now.Add(e.roundDuration)
	e.persistRound()

	ev := RoundStarted{Phase: PhaseTrade, EndsAt: e.round.EndTime}
	e.log.Infow("trade_round_started", "ends_at", ev.EndsAt)
	e.emit(ev)
	return ev, nil
}

// AddOrder escrows amount tokens from owner and posts a sell order at the
// given price per whole token.
func (e *Engine) AddOrder(owner common.Address, amount, price *big.Int) (OrderAdded, error) {
	done, err := e.begin()
	if err != nil {
		return OrderAdded{}, err
	}
	defer done()

	now := e.clock.Now()
	if !e.round.TradeActive(now) {
		return OrderAdded{}, guardErr("trade round is not active")
	}
	if owner == (common.Address{}) {
		return OrderAdded{}, validationErr("owner is the zero address")
	}
	if price == nil || price.Sign() <= 0 {
		return OrderAdded{}, validationErr("price must be positive")
	}
	if amount == nil || amount.Sign() <= 0 {
		return OrderAdded{}, validationErr("amount must be positive")
	}
	if e.token.BalanceOf(owner).Cmp(amount) < 0 {
		return OrderAdded{}, validationErr("not enough tokens")
	}

	if err := e.token.Transfer(owner, e.cfg.EngineAddress, amount); err != nil {
		return OrderAdded{}, transferErr("escrow order tokens", err)
	}

	o := e.orders.insert(owner, amount, price, now)
	e.persistOrder(o)
	e.persistAdmin()

	ev := OrderAdded{ID: o.ID, Owner: owner, Amount: new(big.Int).Set(amount), Price: new(big.Int).Set(price)}
	e.log.Infow("order_added", "id", o.ID, "owner", owner.Hex(), "amount", amount.String(), "price", price.String())
	e.emit(ev)
	return ev, nil
}

// RemoveOrder returns the unfilled remainder to the owner and deletes the
// record. A stale or foreign id fails identically: the caller is not the
// stored owner of any such order.
func (e *Engine) RemoveOrder(caller common.Address, id uint64) (OrderRemoved, error) {
	done, err := e.begin()
	if err != nil {
		return OrderRemoved{}, err
	}
	defer done()

	o, ok := e.orders.lookup(id)
	if !ok || o.Owner != caller {
		return OrderRemoved{}, notFoundErr("not valid order id")
	}

	returned := new(big.Int).Set(o.Remaining)
	if returned.Sign() > 0 {
		if err := e.token.Transfer(e.cfg.EngineAddress, o.Owner, returned); err != nil {
			return OrderRemoved{}, transferErr("return escrowed tokens", err)
		}
	}

	e.orders.remove(id)
	if e.store != nil {
		if err := e.store.DeleteOrder(id); err != nil {
			e.log.Errorw("order_delete_persist_failed", "id", id, "err", err)
		}
	}

	ev := OrderRemoved{ID: id, Returned: returned}
	e.log.Infow("order_removed", "id", id, "returned", returned.String())
	e.emit(ev)
	return ev, nil
}

// RedeemOrder fills (part of) an order for buyer. The cost splits along
// the order owner's sponsor chain, so referral credit flows from the
// seller side. The net share goes to the owner and any overpayment is
// refunded to the buyer. The realized cost accumulates into the trade
// volume that prices the next sale round.
func (e *Engine) RedeemOrder(buyer common.Address, id uint64, payment *big.Int) (OrderRedeemed, error) {
	done, err := e.begin()
	if err != nil {
		return OrderRedeemed{}, err
	}
	defer done()

	now := e.clock.Now()
	if !e.round.TradeActive(now) {
		return OrderRedeemed{}, guardErr("trade round is not active")
	}

	if buyer == (common.Address{}) {
		return OrderRedeemed{}, validationErr("buyer is the zero address")
	}
	if payment == nil || payment.Sign() <= 0 {
		return OrderRedeemed{}, validationErr("payment must be positive")
	}

	o, ok := e.orders.lookup(id)
	if !ok || o.Remaining.Sign() == 0 {
		return OrderRedeemed{}, notFoundErr("order doesn't exist or filled")
	}

	want := e.pricing.TokensFor(payment, o.Price)
	if want.Sign() == 0 {
		return OrderRedeemed{}, validationErr("not enough ether to buy a token")
	}

	granted := new(big.Int).Set(minBig(want, o.Remaining))
	cost := e.pricing.CostFor(granted, o.Price)

	split := e.router.Split(o.Owner, cost, e.rates.TradeL1, e.rates.TradeL2)
	var payouts []Payment
	if split.Net.Sign() > 0 {
		payouts = append(payouts, Payment{To: o.Owner, Amount: split.Net})
	}
	payouts = append(payouts, split.Payouts...)
	if refund := new(big.Int).Sub(payment, cost); refund.Sign() > 0 {
		payouts = append(payouts, Payment{To: buyer, Amount: refund})
	}

	if err := e.gateway.Settle(buyer, payment, payouts); err != nil {
		return OrderRedeemed{}, transferErr("settle order payment", err)
	}
	// Custody always holds the escrow of every live order (granted is
	// capped by Remaining), so delivery cannot fail after the settle.
	if err := e.token.Transfer(e.cfg.EngineAddress, buyer, granted); err != nil {
		return OrderRedeemed{}, transferErr("deliver order tokens", err)
	}

	o.Remaining.Sub(o.Remaining, granted)
	e.round.TradeVolume.Add(e.round.TradeVolume, cost)
	e.persistOrder(o)
	e.persistRound()

	ev := OrderRedeemed{ID: id, Buyer: buyer, Amount: granted, Price: new(big.Int).Set(o.Price), Cost: cost}
	e.log.Infow("order_redeemed", "id", id, "buyer", buyer.Hex(), "amount", granted.String(), "cost", cost.String())
	e.emit(ev)
	return ev, nil
}

// Register records caller → sponsor in the referral graph, permanently.
func (e *Engine) Register(caller, sponsor common.Address) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if caller == (common.Address{}) {
		return validationErr("caller is the zero address")
	}
	if err := e.registry.Register(caller, sponsor); err != nil {
		return err
	}
	if e.store != nil {
		if err := e.store.SaveEdge(caller, sponsor); err != nil {
			e.log.Errorw("edge_persist_failed", "referee", caller.Hex(), "err", err)
		}
	}

	e.log.Infow("user_registered", "user", caller.Hex(), "sponsor", sponsor.Hex())
	e.emit(UserRegistered{User: caller, Sponsor: sponsor})
	return nil
}

// -------- admin --------

func (e *Engine) requireOwner(caller common.Address) error {
	if caller != e.cfg.Owner {
		return validationErr("caller is not the owner")
	}
	return nil
}

// WithdrawFunds pays amount from engine custody to the given address.
func (e *Engine) WithdrawFunds(caller, to common.Address, amount *big.Int) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return validationErr("recipient is the zero address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return validationErr("amount must be positive")
	}
	if e.gateway.Balance().Cmp(amount) < 0 {
		return validationErr("insufficient funds")
	}

	if err := e.gateway.Settle(common.Address{}, nil, []Payment{{To: to, Amount: amount}}); err != nil {
		return transferErr("withdraw funds", err)
	}

	e.log.Infow("funds_withdrawn", "to", to.Hex(), "amount", amount.String())
	e.emit(FundsWithdrawn{To: to, Amount: new(big.Int).Set(amount)})
	return nil
}

// UpdateReferralRates replaces both rates of one phase.
func (e *Engine) UpdateReferralRates(caller common.Address, phase Phase, l1, l2 int64) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if l1 < 0 || l1 > BpsDenominator || l2 < 0 || l2 > BpsDenominator {
		return validationErr("rate out of range [0, %d]", BpsDenominator)
	}
	if l1+l2 > BpsDenominator {
		return validationErr("combined rates exceed %d", BpsDenominator)
	}

	switch phase {
	case PhaseSale:
		e.rates.SaleL1, e.rates.SaleL2 = l1, l2
	case PhaseTrade:
		e.rates.TradeL1, e.rates.TradeL2 = l1, l2
	default:
		return validationErr("unknown phase")
	}
	e.persistAdmin()

	e.log.Infow("reward_rates_updated", "phase", phase.String(), "l1_bps", l1, "l2_bps", l2)
	e.emit(RewardRatesUpdated{Rates: e.rates})
	return nil
}

// UpdateRoundDuration changes the duration applied to rounds started from
// now on; the active round's end time is untouched.
func (e *Engine) UpdateRoundDuration(caller common.Address, d time.Duration) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if d <= 0 {
		return validationErr("duration must be positive")
	}

	e.roundDuration = d
	e.persistAdmin()

	e.log.Infow("round_duration_updated", "duration", d)
	e.emit(RoundDurationUpdated{Duration: d})
	return nil
}

// UpdateFallbackSink changes where chain-less referral rewards are sent.
func (e *Engine) UpdateFallbackSink(caller, sink common.Address) error {
	done, err := e.begin()
	if err != nil {
		return err
	}
	defer done()

	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if sink == (common.Address{}) {
		return validationErr("sink is the zero address")
	}

	e.router.SetSink(sink)
	e.persistAdmin()

	e.log.Infow("fallback_sink_updated", "sink", sink.Hex())
	e.emit(FallbackSinkUpdated{Sink: sink})
	return nil
}

// -------- queries --------

// RoundInfo is a copy of the active round plus its lazily evaluated
// expiry.
type RoundInfo struct {
	Phase          Phase
	EndTime        time.Time
	Expired        bool
	SaleTokensLeft *big.Int
	SalePrice      *big.Int
	TradeVolume    *big.Int
	SaleCount      uint64
}

func (e *Engine) RoundInfo() RoundInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RoundInfo{
		Phase:          e.round.Phase,
		EndTime:        e.round.EndTime,
		Expired:        e.round.Expired(e.clock.Now()),
		SaleTokensLeft: new(big.Int).Set(e.round.SaleTokensLeft),
		SalePrice:      new(big.Int).Set(e.round.SalePrice),
		TradeVolume:    new(big.Int).Set(e.round.TradeVolume),
		SaleCount:      e.round.SaleCount,
	}
}

// Order returns a copy of the live order with the given id.
func (e *Engine) Order(id uint64) (Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders.lookup(id)
	if !ok {
		return Order{}, false
	}
	return copyOrder(o), true
}

// Orders returns copies of all live orders sorted by id.
func (e *Engine) Orders() []Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := e.orders.list()
	out := make([]Order, len(live))
	for i, o := range live {
		out[i] = copyOrder(o)
	}
	return out
}

func (e *Engine) SponsorOf(addr common.Address) (common.Address, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.SponsorOf(addr)
}

func (e *Engine) Rates() RewardRates {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rates
}

func (e *Engine) RoundDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roundDuration
}

func (e *Engine) Owner() common.Address { return e.cfg.Owner }

// -------- persistence helpers --------

func (e *Engine) persistRound() {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRound(e.round); err != nil {
		e.log.Errorw("round_persist_failed", "err", err)
	}
}

func (e *Engine) persistOrder(o *Order) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveOrder(o); err != nil {
		e.log.Errorw("order_persist_failed", "id", o.ID, "err", err)
	}
}

func (e *Engine) persistAdmin() {
	if e.store == nil {
		return
	}
	a := AdminState{
		Rates:         e.rates,
		RoundDuration: e.roundDuration,
		Sink:          e.router.sink,
		NextOrderID:   e.orders.nextID,
	}
	if err := e.store.SaveAdmin(a); err != nil {
		e.log.Errorw("admin_persist_failed", "err", err)
	}
}

func copyOrder(o *Order) Order {
	return Order{
		ID:        o.ID,
		Owner:     o.Owner,
		Price:     new(big.Int).Set(o.Price),
		Remaining: new(big.Int).Set(o.Remaining),
		CreatedAt: o.CreatedAt,
	}
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}
