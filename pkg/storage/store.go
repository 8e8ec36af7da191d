// Package storage persists the market engine's durable state in Pebble.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/VolhaShupr/acdm-platform/pkg/market"
)

// Store implements market.Store over a Pebble database. Values are JSON;
// all writes are synced, matching the durability the engine promises for
// its state fields.
type Store struct {
	db *pebble.DB
}

func Open(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveRound(r *market.Round) error {
	return s.setJSON(keyRound, r)
}

func (s *Store) SaveOrder(o *market.Order) error {
	return s.setJSON(orderKey(o.ID), o)
}

func (s *Store) DeleteOrder(id uint64) error {
	if err := s.db.Delete(orderKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	return nil
}

func (s *Store) SaveEdge(referee, sponsor common.Address) error {
	return s.setJSON(edgeKey(referee), sponsor)
}

func (s *Store) SaveAdmin(a market.AdminState) error {
	return s.setJSON(keyAdmin, a)
}

// Load reads the whole persisted snapshot. A fresh database yields a
// snapshot with nil Round and Admin, which the engine treats as "seed the
// initial state".
func (s *Store) Load() (*market.Snapshot, error) {
	snap := &market.Snapshot{Edges: make(map[common.Address]common.Address)}

	var round market.Round
	found, err := s.getJSON(keyRound, &round)
	if err != nil {
		return nil, err
	}
	if found {
		snap.Round = &round
	}

	var admin market.AdminState
	found, err = s.getJSON(keyAdmin, &admin)
	if err != nil {
		return nil, err
	}
	if found {
		snap.Admin = &admin
	}

	if err := s.iterate(orderPrefix, func(key, value []byte) error {
		var o market.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("failed to unmarshal order: %w", err)
		}
		snap.Orders = append(snap.Orders, &o)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.iterate(edgePrefix, func(key, value []byte) error {
		referee := common.BytesToAddress(key[len(edgePrefix):])
		var sponsor common.Address
		if err := json.Unmarshal(value, &sponsor); err != nil {
			return fmt.Errorf("failed to unmarshal edge: %w", err)
		}
		snap.Edges[referee] = sponsor
		return nil
	}); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *Store) setJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// getJSON reads key into v; the bool reports whether the key existed.
func (s *Store) getJSON(key []byte, v any) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
