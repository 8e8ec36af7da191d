package storage_test

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VolhaShupr/acdm-platform/pkg/market"
	"github.com/VolhaShupr/acdm-platform/pkg/storage"
)

func openStore(t *testing.T) (*storage.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market")
	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		// Safety net only: tolerate tests that already closed the store
		// themselves (pebble panics on double close).
		defer func() { recover() }()
		s.Close()
	})
	return s, path
}

func TestLoadEmpty(t *testing.T) {
	s, _ := openStore(t)

	snap, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Round != nil {
		t.Error("fresh db should have no round")
	}
	if snap.Admin != nil {
		t.Error("fresh db should have no admin state")
	}
	if len(snap.Orders) != 0 || len(snap.Edges) != 0 {
		t.Errorf("fresh db has %d orders, %d edges", len(snap.Orders), len(snap.Edges))
	}
}

func TestRoundTrip(t *testing.T) {
	s, path := openStore(t)

	round := &market.Round{
		Phase:          market.PhaseSale,
		EndTime:        time.Unix(1_700_000_000, 0).UTC(),
		SaleTokensLeft: big.NewInt(42_000_000),
		SalePrice:      big.NewInt(10_000_000_000_000),
		TradeVolume:    big.NewInt(0),
		SaleCount:      3,
	}
	if err := s.SaveRound(round); err != nil {
		t.Fatalf("SaveRound: %v", err)
	}

	orders := []*market.Order{
		{ID: 1, Owner: common.HexToAddress("0xA1"), Price: big.NewInt(10), Remaining: big.NewInt(100), CreatedAt: round.EndTime},
		{ID: 7, Owner: common.HexToAddress("0xA2"), Price: big.NewInt(20), Remaining: big.NewInt(0), CreatedAt: round.EndTime},
	}
	for _, o := range orders {
		if err := s.SaveOrder(o); err != nil {
			t.Fatalf("SaveOrder %d: %v", o.ID, err)
		}
	}

	referee := common.HexToAddress("0xB1")
	sponsor := common.HexToAddress("0xB2")
	if err := s.SaveEdge(referee, sponsor); err != nil {
		t.Fatalf("SaveEdge: %v", err)
	}

	admin := market.AdminState{
		Rates:         market.RewardRates{SaleL1: 500, SaleL2: 300, TradeL1: 250, TradeL2: 250},
		RoundDuration: 72 * time.Hour,
		Sink:          common.HexToAddress("0xC1"),
		NextOrderID:   8,
	}
	if err := s.SaveAdmin(admin); err != nil {
		t.Fatalf("SaveAdmin: %v", err)
	}

	// Reopen from disk to prove the writes were durable.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s2, err := storage.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	snap, err := s2.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if snap.Round == nil {
		t.Fatal("round missing after reload")
	}
	if snap.Round.Phase != market.PhaseSale || snap.Round.SaleCount != 3 {
		t.Errorf("round = %+v", snap.Round)
	}
	if snap.Round.SaleTokensLeft.Cmp(round.SaleTokensLeft) != 0 {
		t.Errorf("inventory = %s, want %s", snap.Round.SaleTokensLeft, round.SaleTokensLeft)
	}
	if !snap.Round.EndTime.Equal(round.EndTime) {
		t.Errorf("end time = %v, want %v", snap.Round.EndTime, round.EndTime)
	}

	if len(snap.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(snap.Orders))
	}
	byID := map[uint64]*market.Order{}
	for _, o := range snap.Orders {
		byID[o.ID] = o
	}
	if o := byID[1]; o == nil || o.Remaining.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("order 1 = %+v", o)
	}
	if o := byID[7]; o == nil || o.Remaining.Sign() != 0 {
		t.Errorf("order 7 = %+v", o)
	}

	if got := snap.Edges[referee]; got != sponsor {
		t.Errorf("edge = %s, want %s", got.Hex(), sponsor.Hex())
	}

	if snap.Admin == nil {
		t.Fatal("admin state missing after reload")
	}
	if snap.Admin.NextOrderID != 8 || snap.Admin.RoundDuration != 72*time.Hour {
		t.Errorf("admin = %+v", snap.Admin)
	}
	if snap.Admin.Rates != admin.Rates {
		t.Errorf("rates = %+v, want %+v", snap.Admin.Rates, admin.Rates)
	}
}

func TestDeleteOrder(t *testing.T) {
	s, _ := openStore(t)

	o := &market.Order{ID: 3, Owner: common.HexToAddress("0xA1"), Price: big.NewInt(10), Remaining: big.NewInt(5), CreatedAt: time.Now()}
	if err := s.SaveOrder(o); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteOrder(3); err != nil {
		t.Fatalf("DeleteOrder: %v", err)
	}
	// Deleting an absent id is a no-op.
	if err := s.DeleteOrder(3); err != nil {
		t.Fatalf("second DeleteOrder: %v", err)
	}

	snap, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Orders) != 0 {
		t.Errorf("orders = %d, want 0", len(snap.Orders))
	}
}
