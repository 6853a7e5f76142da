package interfaces

import (
	"github.com/ethereum/go-ethereum/common"
)

// ModuleType tags the kind of staking module a contract implements.
type ModuleType string

const (
	// CuratedOnchainV1Type is the curated node operators registry.
	CuratedOnchainV1Type ModuleType = "grouped-onchain-v1"
)

// ModuleDescriptor describes a staking module deployment on one chain.
type ModuleDescriptor struct {
	ID                   uint64         `json:"id"`
	Type                 ModuleType     `json:"type"`
	ChainID              uint64         `json:"chainId"`
	StakingModuleAddress common.Address `json:"stakingModuleAddress"`
	Name                 string         `json:"name"`
	ModuleFee            uint64         `json:"moduleFee"`
	TreasuryFee          uint64         `json:"treasuryFee"`
	TargetShare          uint64         `json:"targetShare"`
	Status               uint64         `json:"status"`
}

// ModuleDirectory resolves module descriptors from static configuration.
type ModuleDirectory interface {
	// Resolve looks a module up by decimal id or contract address.
	Resolve(moduleID string, chainID uint64) (ModuleDescriptor, bool)

	// ResolveByType returns the first module of the given type on the chain.
	ResolveByType(moduleType ModuleType, chainID uint64) (ModuleDescriptor, bool)

	// List returns every module configured for the chain, ordered by id.
	List(chainID uint64) []ModuleDescriptor
}
