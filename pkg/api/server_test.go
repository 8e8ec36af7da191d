package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/VolhaShupr/acdm-platform/pkg/ledger"
	"github.com/VolhaShupr/acdm-platform/pkg/market"
)

var (
	testOwner = common.HexToAddress("0x0E00000000000000000000000000000000000001")
	testRoot  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	testSink  = common.HexToAddress("0x5100000000000000000000000000000000000001")
	testUser  = common.HexToAddress("0xA11CE00000000000000000000000000000000001")
)

func newTestServer(t *testing.T) (*Server, *ledger.Native) {
	t.Helper()

	engineAddr := common.HexToAddress("0x00000000000000000000000000000000000ACD1")
	token := ledger.NewToken("ACADEM Coin", "ACDM", 6)
	native := ledger.NewNative()
	gateway := ledger.NewGateway(native, engineAddr)

	cfg := market.EngineConfig{
		EngineAddress:  engineAddr,
		Owner:          testOwner,
		Root:           testRoot,
		FallbackSink:   testSink,
		RootSelfReward: true,
		RoundDuration:  72 * time.Hour,
		SeedPrice:      big.NewInt(10_000_000_000_000),
		SeedVolume:     new(big.Int).Mul(big.NewInt(1_000_000_000), big.NewInt(1_000_000_000)),
		GrowthNum:      103,
		GrowthDen:      100,
		Increment:      big.NewInt(4_000_000_000_000),
		Rates:          market.RewardRates{SaleL1: 500, SaleL2: 300, TradeL1: 250, TradeL2: 250},
	}
	engine, err := market.NewEngine(cfg, token, gateway, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return NewServer(engine, token, native, zap.NewNop().Sugar()), native
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[StatusResponse](t, rec); got.Status != "ok" {
		t.Errorf("status = %q, want ok", got.Status)
	}
}

func TestGetRound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "GET", "/api/v1/round", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	round := decode[RoundResponse](t, rec)
	if round.Phase != "trade" {
		t.Errorf("phase = %q, want trade", round.Phase)
	}
	if !round.Expired {
		t.Error("initial round should be expired")
	}
}

func TestSaleFlowOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/api/v1/rounds/sale", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start sale: status = %d, body %s", rec.Code, rec.Body)
	}
	started := decode[StartRoundResponse](t, rec)
	if started.Price != "10000000000000" {
		t.Errorf("price = %s, want 10000000000000", started.Price)
	}

	// Guard violations map to 409.
	rec = do(t, s, "POST", "/api/v1/rounds/sale", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start: status = %d, want 409", rec.Code)
	}

	rec = do(t, s, "POST", "/api/v1/faucet", FaucetRequest{
		Address: testUser.Hex(),
		Amount:  "1000000000000000000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("faucet: status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, s, "POST", "/api/v1/sale/buy", BuyRequest{
		Buyer:   testUser.Hex(),
		Payment: "500000000000000000",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: status = %d, body %s", rec.Code, rec.Body)
	}
	bought := decode[BuyResponse](t, rec)
	if bought.Amount != "50000000000" {
		t.Errorf("amount = %s, want 50000000000", bought.Amount)
	}

	rec = do(t, s, "GET", "/api/v1/accounts/"+testUser.Hex(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("account: status = %d", rec.Code)
	}
	acct := decode[AccountResponse](t, rec)
	if acct.TokenBalance != "50000000000" {
		t.Errorf("token balance = %s, want 50000000000", acct.TokenBalance)
	}
	if acct.NativeBalance != "500000000000000000" {
		t.Errorf("native balance = %s, want 500000000000000000", acct.NativeBalance)
	}
}

func TestErrorMapping(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"guard to 409", "POST", "/api/v1/rounds/trade", nil, http.StatusConflict},
		{"missing order to 404", "GET", "/api/v1/orders/99", nil, http.StatusNotFound},
		{"bad address to 400", "POST", "/api/v1/sale/buy", BuyRequest{Buyer: "nope", Payment: "1"}, http.StatusBadRequest},
		{"bad amount to 400", "POST", "/api/v1/sale/buy", BuyRequest{Buyer: testUser.Hex(), Payment: "-5"}, http.StatusBadRequest},
		{"unknown phase to 400", "POST", "/api/v1/admin/rates", RatesRequest{Caller: testOwner.Hex(), Phase: "bonus"}, http.StatusBadRequest},
		{"non-owner admin to 400", "POST", "/api/v1/admin/duration", DurationRequest{Caller: testUser.Hex(), Seconds: 60}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
			var e ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil || e.Error == "" {
				t.Errorf("expected error body, got %s", rec.Body)
			}
		})
	}
}

func TestRegisterOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/api/v1/referrals", RegisterRequest{
		User:    testUser.Hex(),
		Sponsor: testRoot.Hex(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register: status = %d, body %s", rec.Code, rec.Body)
	}

	rec = do(t, s, "GET", "/api/v1/accounts/"+testUser.Hex(), nil)
	acct := decode[AccountResponse](t, rec)
	if acct.Sponsor != testRoot.Hex() {
		t.Errorf("sponsor = %s, want %s", acct.Sponsor, testRoot.Hex())
	}

	// Re-registering the same user is a validation failure.
	rec = do(t, s, "POST", "/api/v1/referrals", RegisterRequest{
		User:    testUser.Hex(),
		Sponsor: testRoot.Hex(),
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate register: status = %d, want 400", rec.Code)
	}
}
