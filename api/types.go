package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/keys-api/interfaces"
)

// ELBlockSnapshot identifies the execution-layer block a response was read at.
type ELBlockSnapshot struct {
	BlockNumber uint64      `json:"blockNumber"`
	BlockHash   common.Hash `json:"blockHash"`
	KeysOpIndex uint64      `json:"keysOpIndex"`
}

// Meta is the envelope meta. Responses carry a nil *Meta until the first sync
// pass completes.
type Meta struct {
	ELBlockSnapshot ELBlockSnapshot `json:"elBlockSnapshot"`
}

// NewMeta returns nil for a nil SyncMeta.
func NewMeta(meta *interfaces.SyncMeta) *Meta {
	if meta == nil {
		return nil
	}
	return &Meta{ELBlockSnapshot: ELBlockSnapshot{
		BlockNumber: meta.BlockNumber,
		BlockHash:   meta.BlockHash,
		KeysOpIndex: meta.KeysOpIndex,
	}}
}

// Key is the common part of every key representation.
type Key struct {
	Key              hexutil.Bytes `json:"key"`
	DepositSignature hexutil.Bytes `json:"depositSignature"`
	OperatorIndex    uint64        `json:"operatorIndex"`
	Used             bool          `json:"used"`
}

// KeyWithModuleAddress is a key as returned by the module-agnostic /keys views.
type KeyWithModuleAddress struct {
	Key
	ModuleAddress common.Address `json:"moduleAddress"`
}

// CuratedKey is a key of the curated module, with its index in the operator's list.
type CuratedKey struct {
	Key
	Index uint64 `json:"index"`
}

type CuratedOperator struct {
	Index             uint64         `json:"index"`
	Active            bool           `json:"active"`
	Name              string         `json:"name"`
	RewardAddress     common.Address `json:"rewardAddress"`
	StakingLimit      uint64         `json:"stakingLimit"`
	StoppedValidators uint64         `json:"stoppedValidators"`
	TotalSigningKeys  uint64         `json:"totalSigningKeys"`
	UsedSigningKeys   uint64         `json:"usedSigningKeys"`
}

// SRModule is a staking router module descriptor together with the nonce
// (keysOpIndex) of the sync pass it is reported under.
type SRModule struct {
	Nonce                uint64                `json:"nonce"`
	Type                 interfaces.ModuleType `json:"type"`
	ID                   uint64                `json:"id"`
	StakingModuleAddress common.Address        `json:"stakingModuleAddress"`
	ModuleFee            uint64                `json:"moduleFee"`
	TreasuryFee          uint64                `json:"treasuryFee"`
	TargetShare          uint64                `json:"targetShare"`
	Status               uint64                `json:"status"`
	Name                 string                `json:"name"`
}

func newKey(key interfaces.RegistryKey) Key {
	return Key{
		Key:              key.Key,
		DepositSignature: key.DepositSignature,
		OperatorIndex:    key.OperatorIndex,
		Used:             key.Used,
	}
}

func NewKeyWithModuleAddress(key interfaces.RegistryKey, moduleAddress common.Address) KeyWithModuleAddress {
	return KeyWithModuleAddress{Key: newKey(key), ModuleAddress: moduleAddress}
}

func NewCuratedKey(key interfaces.RegistryKey) CuratedKey {
	return CuratedKey{Key: newKey(key), Index: key.Index}
}

func NewCuratedOperator(op interfaces.RegistryOperator) CuratedOperator {
	return CuratedOperator{
		Index:             op.Index,
		Active:            op.Active,
		Name:              op.Name,
		RewardAddress:     op.RewardAddress,
		StakingLimit:      op.StakingLimit,
		StoppedValidators: op.StoppedValidators,
		TotalSigningKeys:  op.TotalSigningKeys,
		UsedSigningKeys:   op.UsedSigningKeys,
	}
}

func NewSRModule(keysOpIndex uint64, module interfaces.ModuleDescriptor) SRModule {
	return SRModule{
		Nonce:                keysOpIndex,
		Type:                 module.Type,
		ID:                   module.ID,
		StakingModuleAddress: module.StakingModuleAddress,
		ModuleFee:            module.ModuleFee,
		TreasuryFee:          module.TreasuryFee,
		TargetShare:          module.TargetShare,
		Status:               module.Status,
		Name:                 module.Name,
	}
}

// KeyListResponse: data is [] when meta is null.
type KeyListResponse struct {
	Data []KeyWithModuleAddress `json:"data"`
	Meta *Meta                  `json:"meta"`
}

type SRModuleOperatorsKeys struct {
	Keys      []CuratedKey      `json:"keys"`
	Operators []CuratedOperator `json:"operators"`
	Module    SRModule          `json:"module"`
}

// SRModuleOperatorsKeysResponse: data is null when meta is null.
type SRModuleOperatorsKeysResponse struct {
	Data *SRModuleOperatorsKeys `json:"data"`
	Meta *Meta                  `json:"meta"`
}

type SRModuleOperators struct {
	Operators []CuratedOperator `json:"operators"`
	Module    SRModule          `json:"module"`
}

// GroupedByModuleOperatorListResponse: data is [] when meta is null.
type GroupedByModuleOperatorListResponse struct {
	Data []SRModuleOperators `json:"data"`
	Meta *Meta               `json:"meta"`
}

// SRModuleOperatorListResponse: data is null when meta is null.
type SRModuleOperatorListResponse struct {
	Data *SRModuleOperators `json:"data"`
	Meta *Meta              `json:"meta"`
}

type SRModuleOperator struct {
	Operator CuratedOperator `json:"operator"`
	Module   SRModule        `json:"module"`
}

// SRModuleOperatorResponse: data is null when meta is null.
type SRModuleOperatorResponse struct {
	Data *SRModuleOperator `json:"data"`
	Meta *Meta             `json:"meta"`
}

// SRModuleListResponse: data is [] when meta is null.
type SRModuleListResponse struct {
	Data []SRModule `json:"data"`
	Meta *Meta      `json:"meta"`
}

// SRModuleResponse: data is null when meta is null.
type SRModuleResponse struct {
	Data *SRModule `json:"data"`
	Meta *Meta     `json:"meta"`
}

type StatusResponse struct {
	AppVersion      string           `json:"appVersion"`
	ChainID         uint64           `json:"chainId"`
	ELBlockSnapshot *ELBlockSnapshot `json:"elBlockSnapshot"`
}

// FindKeysRequest is the body of POST /v1/keys/find.
type FindKeysRequest struct {
	Pubkeys []string `json:"pubkeys"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}
