package market

import "github.com/ethereum/go-ethereum/common"

// ReferralRegistry records one-time directional referee→sponsor edges.
// Edges form a rooted forest: the root account is pre-seeded as its own
// sponsor at construction, so every valid chain terminates there.
type ReferralRegistry struct {
	root  common.Address
	edges map[common.Address]common.Address
}

func NewReferralRegistry(root common.Address) *ReferralRegistry {
	r := &ReferralRegistry{
		root:  root,
		edges: make(map[common.Address]common.Address),
	}
	r.edges[root] = root
	return r
}

func (r *ReferralRegistry) Root() common.Address { return r.root }

// Register records referee → sponsor. The edge is permanent: a second
// registration for the same referee fails regardless of sponsor.
func (r *ReferralRegistry) Register(referee, sponsor common.Address) error {
	if sponsor == (common.Address{}) {
		return validationErr("referrer is the zero address")
	}
	if sponsor == referee {
		return validationErr("self reference is not allowed")
	}
	if _, ok := r.edges[sponsor]; !ok {
		return validationErr("referrer should be registered")
	}
	if _, ok := r.edges[referee]; ok {
		return validationErr("reference already exists")
	}
	r.edges[referee] = sponsor
	return nil
}

// SponsorOf returns the direct sponsor of addr, if one is recorded.
func (r *ReferralRegistry) SponsorOf(addr common.Address) (common.Address, bool) {
	s, ok := r.edges[addr]
	return s, ok
}

// Uplines returns the two-hop sponsor chain above addr. ok is false when
// addr has no sponsor at all. l2 is the root's self-edge when the chain
// terminates after one hop.
func (r *ReferralRegistry) Uplines(addr common.Address) (l1, l2 common.Address, ok bool) {
	l1, ok = r.edges[addr]
	if !ok {
		return common.Address{}, common.Address{}, false
	}
	l2 = r.edges[l1] // sponsors always hold an edge, by Register's precondition
	return l1, l2, true
}

// Registered reports whether addr holds an upstream edge.
func (r *ReferralRegistry) Registered(addr common.Address) bool {
	_, ok := r.edges[addr]
	return ok
}

// Edges returns a copy of the edge map, for persistence and queries.
func (r *ReferralRegistry) Edges() map[common.Address]common.Address {
	out := make(map[common.Address]common.Address, len(r.edges))
	for k, v := range r.edges {
		out[k] = v
	}
	return out
}

// Restore reinstates a persisted edge map. The root self-edge is re-seeded
// if the snapshot predates it.
func (r *ReferralRegistry) Restore(edges map[common.Address]common.Address) {
	for k, v := range edges {
		r.edges[k] = v
	}
	r.edges[r.root] = r.root
}
