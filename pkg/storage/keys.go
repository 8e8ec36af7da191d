package storage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key layout:
//
//	round                    -> Round record (JSON)
//	admin                    -> AdminState (JSON)
//	order/<id, 8B big-endian> -> Order (JSON)
//	edge/<20B address>       -> sponsor address (JSON)
var (
	keyRound    = []byte("round")
	keyAdmin    = []byte("admin")
	orderPrefix = []byte("order/")
	edgePrefix  = []byte("edge/")
)

func orderKey(id uint64) []byte {
	key := make([]byte, len(orderPrefix)+8)
	copy(key, orderPrefix)
	binary.BigEndian.PutUint64(key[len(orderPrefix):], id)
	return key
}

func edgeKey(addr common.Address) []byte {
	key := make([]byte, len(edgePrefix)+common.AddressLength)
	copy(key, edgePrefix)
	copy(key[len(edgePrefix):], addr.Bytes())
	return key
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix, for pebble range iteration.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
