package interfaces

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RegistryKey is a validator signing key as stored by the last sync pass.
type RegistryKey struct {
	// Index is the position of the key within its operator's key list.
	Index            uint64        `json:"index"`
	OperatorIndex    uint64        `json:"operatorIndex"`
	Key              hexutil.Bytes `json:"key"`
	DepositSignature hexutil.Bytes `json:"depositSignature"`
	Used             bool          `json:"used"`
}

// RegistryOperator is a node operator as stored by the last sync pass.
type RegistryOperator struct {
	Index             uint64         `json:"index"`
	Active            bool           `json:"active"`
	Name              string         `json:"name"`
	RewardAddress     common.Address `json:"rewardAddress"`
	StakingLimit      uint64         `json:"stakingLimit"`
	StoppedValidators uint64         `json:"stoppedValidators"`
	TotalSigningKeys  uint64         `json:"totalSigningKeys"`
	UsedSigningKeys   uint64         `json:"usedSigningKeys"`
}

// SyncMeta marks the block a sync pass reflects. A nil *SyncMeta means no sync
// pass has ever completed.
type SyncMeta struct {
	// KeysOpIndex is bumped by the registry contract on every key or operator change.
	KeysOpIndex uint64      `json:"keysOpIndex"`
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
}

// Snapshot is the full output of one sync pass.
type Snapshot struct {
	Meta      *SyncMeta          `json:"meta"`
	Keys      []RegistryKey      `json:"keys"`
	Operators []RegistryOperator `json:"operators"`
}

// KeyFilter narrows a key query. Zero value matches every key.
type KeyFilter struct {
	Used          *bool
	OperatorIndex *uint64

	// Pubkeys restricts the result to the given keys. Nil disables the filter,
	// a non-nil empty slice matches nothing.
	Pubkeys [][]byte
}

// Match reports whether the key passes the filter.
func (f KeyFilter) Match(key RegistryKey) bool {
	if f.Used != nil && key.Used != *f.Used {
		return false
	}
	if f.OperatorIndex != nil && key.OperatorIndex != *f.OperatorIndex {
		return false
	}
	if f.Pubkeys != nil {
		for _, pk := range f.Pubkeys {
			if bytes.Equal(pk, key.Key) {
				return true
			}
		}
		return false
	}
	return true
}

// ParsePubkey decodes a hex encoded public key, with or without the 0x prefix.
func ParsePubkey(s string) ([]byte, error) {
	clean := strings.TrimSpace(s)
	if !strings.HasPrefix(clean, "0x") && !strings.HasPrefix(clean, "0X") {
		clean = "0x" + clean
	}
	pk, err := hexutil.Decode(strings.ToLower(clean))
	if err != nil {
		return nil, fmt.Errorf("%w: pubkey %q: %v", ErrInvalidQuery, s, err)
	}
	if len(pk) == 0 {
		return nil, fmt.Errorf("%w: empty pubkey", ErrInvalidQuery)
	}
	return pk, nil
}
