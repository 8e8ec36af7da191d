// Package api exposes the market engine over REST plus a WebSocket event
// feed.
package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/VolhaShupr/acdm-platform/pkg/ledger"
	"github.com/VolhaShupr/acdm-platform/pkg/market"
)

type Server struct {
	engine *market.Engine
	token  *ledger.Token
	native *ledger.Native
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(engine *market.Engine, token *ledger.Token, native *ledger.Native, log *zap.SugaredLogger) *Server {
	s := &Server{
		engine: engine,
		token:  token,
		native: native,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/round", s.handleGetRound).Methods("GET")
	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")

	api.HandleFunc("/rounds/sale", s.handleStartSale).Methods("POST")
	api.HandleFunc("/rounds/trade", s.handleStartTrade).Methods("POST")
	api.HandleFunc("/sale/buy", s.handleBuy).Methods("POST")

	api.HandleFunc("/orders", s.handleAddOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/redeem", s.handleRedeemOrder).Methods("POST")

	api.HandleFunc("/referrals", s.handleRegister).Methods("POST")

	// Dev faucet: credits native balance so flows can be exercised without
	// an external bridge.
	api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")

	api.HandleFunc("/admin/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/admin/rates", s.handleUpdateRates).Methods("POST")
	api.HandleFunc("/admin/duration", s.handleUpdateDuration).Methods("POST")
	api.HandleFunc("/admin/sink", s.handleUpdateSink).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the WebSocket hub, the event pump and the HTTP listener.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.pumpEvents()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
	})

	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// pumpEvents forwards every engine event to the WebSocket hub.
func (s *Server) pumpEvents() {
	for ev := range s.engine.Events() {
		s.hub.Broadcast(WSMessage{Type: ev.Type(), Data: ev})
	}
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleGetRound(w http.ResponseWriter, r *http.Request) {
	info := s.engine.RoundInfo()
	respondJSON(w, http.StatusOK, RoundResponse{
		Phase:          info.Phase.String(),
		EndTime:        info.EndTime.Unix(),
		Expired:        info.Expired,
		SaleTokensLeft: info.SaleTokensLeft.String(),
		SalePrice:      info.SalePrice.String(),
		TradeVolume:    info.TradeVolume.String(),
		SaleCount:      info.SaleCount,
	})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.engine.Orders()
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = orderResponse(o)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, found := s.engine.Order(id)
	if !found {
		respondError(w, http.StatusNotFound, "not_found", "order does not exist")
		return
	}
	respondJSON(w, http.StatusOK, orderResponse(o))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}

	resp := AccountResponse{
		Address:       addr.Hex(),
		TokenBalance:  s.token.BalanceOf(addr).String(),
		NativeBalance: s.native.BalanceOf(addr).String(),
	}
	if sponsor, registered := s.engine.SponsorOf(addr); registered {
		resp.Sponsor = sponsor.Hex()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartSale(w http.ResponseWriter, r *http.Request) {
	ev, err := s.engine.StartSaleRound()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StartRoundResponse{
		Phase:  ev.Phase.String(),
		Price:  ev.Price.String(),
		Amount: ev.Amount.String(),
		EndsAt: ev.EndsAt.Unix(),
	})
}

func (s *Server) handleStartTrade(w http.ResponseWriter, r *http.Request) {
	ev, err := s.engine.StartTradeRound()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StartRoundResponse{
		Phase:  ev.Phase.String(),
		EndsAt: ev.EndsAt.Unix(),
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	var req BuyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	buyer, ok := parseAddress(w, req.Buyer, "buyer")
	if !ok {
		return
	}
	payment, ok := parseAmount(w, req.Payment, "payment")
	if !ok {
		return
	}

	ev, err := s.engine.BuySaleTokens(buyer, payment)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, BuyResponse{
		Buyer:  ev.Buyer.Hex(),
		Amount: ev.Amount.String(),
		Cost:   ev.Cost.String(),
	})
}

func (s *Server) handleAddOrder(w http.ResponseWriter, r *http.Request) {
	var req AddOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, ok := parseAddress(w, req.Owner, "owner")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}
	price, ok := parseAmount(w, req.Price, "price")
	if !ok {
		return
	}

	ev, err := s.engine.AddOrder(owner, amount, price)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, AddOrderResponse{
		ID:     ev.ID,
		Owner:  ev.Owner.Hex(),
		Amount: ev.Amount.String(),
		Price:  ev.Price.String(),
	})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req CancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	owner, ok := parseAddress(w, req.Owner, "owner")
	if !ok {
		return
	}

	ev, err := s.engine.RemoveOrder(owner, id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, CancelOrderResponse{
		ID:       ev.ID,
		Returned: ev.Returned.String(),
	})
}

func (s *Server) handleRedeemOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RedeemOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	buyer, ok := parseAddress(w, req.Buyer, "buyer")
	if !ok {
		return
	}
	payment, ok := parseAmount(w, req.Payment, "payment")
	if !ok {
		return
	}

	ev, err := s.engine.RedeemOrder(buyer, id, payment)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, RedeemOrderResponse{
		ID:     ev.ID,
		Buyer:  ev.Buyer.Hex(),
		Amount: ev.Amount.String(),
		Cost:   ev.Cost.String(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, ok := parseAddress(w, req.User, "user")
	if !ok {
		return
	}
	sponsor, ok := parseAddress(w, req.Sponsor, "sponsor")
	if !ok {
		return
	}

	if err := s.engine.Register(user, sponsor); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "registered"})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if !decodeBody(w, r, &req) {
		return
	}
	addr, ok := parseAddress(w, req.Address, "address")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	if err := s.native.Deposit(addr, amount); err != nil {
		respondError(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "funded"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	to, ok := parseAddress(w, req.To, "to")
	if !ok {
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	if err := s.engine.WithdrawFunds(caller, to, amount); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "withdrawn"})
}

func (s *Server) handleUpdateRates(w http.ResponseWriter, r *http.Request) {
	var req RatesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	var phase market.Phase
	switch req.Phase {
	case "sale":
		phase = market.PhaseSale
	case "trade":
		phase = market.PhaseTrade
	default:
		respondError(w, http.StatusBadRequest, "validation", "phase must be \"sale\" or \"trade\"")
		return
	}

	if err := s.engine.UpdateReferralRates(caller, phase, req.L1Bps, req.L2Bps); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

func (s *Server) handleUpdateDuration(w http.ResponseWriter, r *http.Request) {
	var req DurationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}

	if err := s.engine.UpdateRoundDuration(caller, time.Duration(req.Seconds)*time.Second); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

func (s *Server) handleUpdateSink(w http.ResponseWriter, r *http.Request) {
	var req SinkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller, "caller")
	if !ok {
		return
	}
	sink, ok := parseAddress(w, req.Sink, "sink")
	if !ok {
		return
	}

	if err := s.engine.UpdateFallbackSink(caller, sink); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{Status: "updated"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// ==============================
// Helpers
// ==============================

func orderResponse(o market.Order) OrderResponse {
	return OrderResponse{
		ID:        o.ID,
		Owner:     o.Owner.Hex(),
		Price:     o.Price.String(),
		Remaining: o.Remaining.String(),
		CreatedAt: o.CreatedAt.Unix(),
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid order id")
		return 0, false
	}
	return id, true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := mux.Vars(r)["address"]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "validation", "invalid address: "+raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAddress(w http.ResponseWriter, raw, field string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "validation", "invalid "+field+" address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseAmount(w http.ResponseWriter, raw, field string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		respondError(w, http.StatusBadRequest, "validation", field+" must be a non-negative decimal string")
		return nil, false
	}
	return n, true
}

func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	switch market.KindOf(err) {
	case market.KindGuard:
		status, kind = http.StatusConflict, "guard_violation"
	case market.KindValidation:
		status, kind = http.StatusBadRequest, "validation"
	case market.KindNotFound:
		status, kind = http.StatusNotFound, "not_found"
	case market.KindTransfer:
		status, kind = http.StatusBadGateway, "transfer_failure"
	}

	respondError(w, status, kind, err.Error())
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
