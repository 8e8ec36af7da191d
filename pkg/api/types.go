package api

// REST request/response types. Monetary values travel as decimal strings:
// wei for native amounts, token units for token amounts.

type RoundResponse struct {
	Phase          string `json:"phase"`
	EndTime        int64  `json:"endTime"` // Unix seconds
	Expired        bool   `json:"expired"`
	SaleTokensLeft string `json:"saleTokensLeft"`
	SalePrice      string `json:"salePrice"`
	TradeVolume    string `json:"tradeVolume"`
	SaleCount      uint64 `json:"saleCount"`
}

type OrderResponse struct {
	ID        uint64 `json:"id"`
	Owner     string `json:"owner"`
	Price     string `json:"price"`
	Remaining string `json:"remaining"`
	CreatedAt int64  `json:"createdAt"` // Unix seconds
}

type AccountResponse struct {
	Address       string `json:"address"`
	TokenBalance  string `json:"tokenBalance"`
	NativeBalance string `json:"nativeBalance"`
	Sponsor       string `json:"sponsor,omitempty"`
}

type StartRoundResponse struct {
	Phase  string `json:"phase"`
	Price  string `json:"price,omitempty"`
	Amount string `json:"amount,omitempty"`
	EndsAt int64  `json:"endsAt"`
}

type BuyRequest struct {
	Buyer   string `json:"buyer"`
	Payment string `json:"payment"` // wei
}

type BuyResponse struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
	Cost   string `json:"cost"`
}

type AddOrderRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"` // token units
	Price  string `json:"price"`  // wei per whole token
}

type AddOrderResponse struct {
	ID     uint64 `json:"id"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

type CancelOrderRequest struct {
	Owner string `json:"owner"`
}

type CancelOrderResponse struct {
	ID       uint64 `json:"id"`
	Returned string `json:"returned"`
}

type RedeemOrderRequest struct {
	Buyer   string `json:"buyer"`
	Payment string `json:"payment"` // wei
}

type RedeemOrderResponse struct {
	ID     uint64 `json:"id"`
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
	Cost   string `json:"cost"`
}

type RegisterRequest struct {
	User    string `json:"user"`
	Sponsor string `json:"sponsor"`
}

type FaucetRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"` // wei
}

type WithdrawRequest struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"` // wei
}

type RatesRequest struct {
	Caller string `json:"caller"`
	Phase  string `json:"phase"` // "sale" or "trade"
	L1Bps  int64  `json:"l1Bps"`
	L2Bps  int64  `json:"l2Bps"`
}

type DurationRequest struct {
	Caller  string `json:"caller"`
	Seconds int64  `json:"seconds"`
}

type SinkRequest struct {
	Caller string `json:"caller"`
	Sink   string `json:"sink"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WSMessage wraps every broadcast engine event; Type doubles as the
// subscription channel name.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WSSubscribeRequest is sent by clients to narrow their event feed.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
