package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Key prefixes for the pebble backend
const (
	prefixMeta      = "/meta/"
	prefixContracts = "/data/contracts/"
	prefixAddr      = "/index/addr/"
	prefixID        = "/index/id/"
)

// Metadata keys
const (
	keySequence = prefixMeta + "seq"
	keyMaxID    = prefixMeta + "maxid"
)

// SequenceKey returns the key holding the last assigned insertion sequence
func SequenceKey() []byte {
	return []byte(keySequence)
}

// MaxIDKey returns the key holding the largest contract id stored
func MaxIDKey() []byte {
	return []byte(keyMaxID)
}

// ContractKey returns the key for the contract with insertion sequence seq.
// Format: /data/contracts/{seq} zero-padded so keys sort in insertion order
func ContractKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixContracts, seq))
}

// ContractKeyPrefix returns the prefix shared by all contract keys
func ContractKeyPrefix() []byte {
	return []byte(prefixContracts)
}

// AddressIndexKey returns the key mapping an address to its sequence.
// Format: /index/addr/{lowercase address}
func AddressIndexKey(address string) []byte {
	return []byte(prefixAddr + strings.ToLower(address))
}

// IDIndexKey returns the key marking a contract id as taken.
// Format: /index/id/{id}
func IDIndexKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixID, id))
}

// EncodeUint64 encodes a counter as decimal text
func EncodeUint64(v uint64) []byte {
	return []byte(strconv.FormatUint(v, 10))
}

// DecodeUint64 decodes a counter written by EncodeUint64
func DecodeUint64(data []byte) (uint64, error) {
	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return v, nil
}

// prefixUpperBound returns the smallest key greater than every key with prefix
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
