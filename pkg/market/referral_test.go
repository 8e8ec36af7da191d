package market_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VolhaShupr/acdm-platform/pkg/market"
)

var (
	root  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	userB = common.HexToAddress("0xB000000000000000000000000000000000000001")
	userC = common.HexToAddress("0xC000000000000000000000000000000000000001")
	userD = common.HexToAddress("0xD000000000000000000000000000000000000001")
)

func TestRegistrySeedsRoot(t *testing.T) {
	r := market.NewReferralRegistry(root)

	sponsor, ok := r.SponsorOf(root)
	if !ok {
		t.Fatal("root should be pre-registered")
	}
	if sponsor != root {
		t.Errorf("root sponsor = %s, want itself", sponsor.Hex())
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *market.ReferralRegistry)
		referee common.Address
		sponsor common.Address
		wantErr bool
	}{
		{
			name:    "valid registration under root",
			referee: userB,
			sponsor: root,
		},
		{
			name:    "zero sponsor",
			referee: userB,
			sponsor: common.Address{},
			wantErr: true,
		},
		{
			name:    "self reference",
			referee: userB,
			sponsor: userB,
			wantErr: true,
		},
		{
			name:    "unregistered sponsor",
			referee: userB,
			sponsor: userC,
			wantErr: true,
		},
		{
			name: "double registration",
			setup: func(r *market.ReferralRegistry) {
				if err := r.Register(userB, root); err != nil {
					t.Fatal(err)
				}
			},
			referee: userB,
			sponsor: root,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := market.NewReferralRegistry(root)
			if tt.setup != nil {
				tt.setup(r)
			}
			err := r.Register(tt.referee, tt.sponsor)
			if (err != nil) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && market.KindOf(err) != market.KindValidation {
				t.Errorf("error kind = %v, want validation", market.KindOf(err))
			}
		})
	}
}

func TestUplines(t *testing.T) {
	r := market.NewReferralRegistry(root)
	if err := r.Register(userB, root); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(userC, userB); err != nil {
		t.Fatal(err)
	}

	// Two full hops.
	l1, l2, ok := r.Uplines(userC)
	if !ok || l1 != userB || l2 != root {
		t.Errorf("Uplines(C) = %s, %s, %v; want B, root, true", l1.Hex(), l2.Hex(), ok)
	}

	// Chain terminates at the root self-edge.
	l1, l2, ok = r.Uplines(userB)
	if !ok || l1 != root || l2 != root {
		t.Errorf("Uplines(B) = %s, %s, %v; want root, root, true", l1.Hex(), l2.Hex(), ok)
	}

	// Unregistered principal.
	if _, _, ok := r.Uplines(userD); ok {
		t.Error("Uplines(D) should report no chain")
	}
}
