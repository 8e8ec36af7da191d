package ledger_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VolhaShupr/acdm-platform/pkg/ledger"
	"github.com/VolhaShupr/acdm-platform/pkg/market"
)

var custody = common.HexToAddress("0xC000000000000000000000000000000000000003")

func TestSettleCollectAndDisburse(t *testing.T) {
	native := ledger.NewNative()
	gw := ledger.NewGateway(native, custody)

	if err := native.Deposit(addrA, amt(1000)); err != nil {
		t.Fatal(err)
	}

	err := gw.Settle(addrA, amt(1000), []market.Payment{
		{To: addrB, Amount: amt(80)},
		{To: addrA, Amount: amt(120)}, // refund leg
	})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if got := native.BalanceOf(addrA); got.Cmp(amt(120)) != 0 {
		t.Errorf("payer = %s, want 120", got)
	}
	if got := native.BalanceOf(addrB); got.Cmp(amt(80)) != 0 {
		t.Errorf("payee = %s, want 80", got)
	}
	if got := gw.Balance(); got.Cmp(amt(800)) != 0 {
		t.Errorf("custody = %s, want 800", got)
	}
}

func TestSettlePayoutOnly(t *testing.T) {
	native := ledger.NewNative()
	gw := ledger.NewGateway(native, custody)
	if err := native.Deposit(custody, amt(500)); err != nil {
		t.Fatal(err)
	}

	// Zero payer and nil amount skip the collection leg entirely.
	if err := gw.Settle(common.Address{}, nil, []market.Payment{{To: addrB, Amount: amt(200)}}); err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if got := gw.Balance(); got.Cmp(amt(300)) != 0 {
		t.Errorf("custody = %s, want 300", got)
	}
}

// TestSettleAtomicity: when any leg cannot be covered, no balance moves.
func TestSettleAtomicity(t *testing.T) {
	tests := []struct {
		name    string
		payer   common.Address
		amount  *big.Int
		payouts []market.Payment
	}{
		{
			name:    "payer underfunded",
			payer:   addrA,
			amount:  amt(2000),
			payouts: []market.Payment{{To: addrB, Amount: amt(10)}},
		},
		{
			name:    "payouts exceed collected plus custody",
			payer:   addrA,
			amount:  amt(500),
			payouts: []market.Payment{{To: addrB, Amount: amt(600)}},
		},
		{
			name:    "zero payout address",
			payer:   addrA,
			amount:  amt(100),
			payouts: []market.Payment{{To: common.Address{}, Amount: amt(10)}},
		},
		{
			name:    "nil payout amount",
			payer:   addrA,
			amount:  amt(100),
			payouts: []market.Payment{{To: addrB}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			native := ledger.NewNative()
			gw := ledger.NewGateway(native, custody)
			if err := native.Deposit(addrA, amt(1000)); err != nil {
				t.Fatal(err)
			}

			if err := gw.Settle(tt.payer, tt.amount, tt.payouts); err == nil {
				t.Fatal("expected settle to fail")
			}
			if got := native.BalanceOf(addrA); got.Cmp(amt(1000)) != 0 {
				t.Errorf("payer = %s, want untouched 1000", got)
			}
			if got := native.BalanceOf(addrB); got.Sign() != 0 {
				t.Errorf("payee = %s, want 0", got)
			}
			if got := gw.Balance(); got.Sign() != 0 {
				t.Errorf("custody = %s, want 0", got)
			}
		})
	}
}

func TestDepositValidation(t *testing.T) {
	native := ledger.NewNative()
	if err := native.Deposit(addrA, amt(0)); err == nil {
		t.Error("zero deposit should fail")
	}
	if err := native.Deposit(addrA, nil); err == nil {
		t.Error("nil deposit should fail")
	}
}
