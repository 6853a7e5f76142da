// Package modules implements the static staking module directory. Entries are
// keyed by chain id because the same logical module is deployed at a different
// address on every network.
package modules

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/keys-api/interfaces"
	"gopkg.in/yaml.v3"
)

// Chain ids with built-in module tables.
const (
	MainnetChainID uint64 = 1
	GoerliChainID  uint64 = 5
	HoleskyChainID uint64 = 17000
)

// Config lists every known module deployment.
type Config struct {
	Modules []interfaces.ModuleDescriptor
}

func curatedModule(chainID uint64, address string) interfaces.ModuleDescriptor {
	return interfaces.ModuleDescriptor{
		ID:                   1,
		Type:                 interfaces.CuratedOnchainV1Type,
		ChainID:              chainID,
		StakingModuleAddress: common.HexToAddress(address),
		Name:                 "curated-onchain-v1",
		ModuleFee:            500,
		TreasuryFee:          500,
		TargetShare:          10000,
		Status:               0,
	}
}

// DefaultConfig returns the curated module deployments of the public networks.
func DefaultConfig() Config {
	return Config{
		Modules: []interfaces.ModuleDescriptor{
			curatedModule(MainnetChainID, "0x55032650b14df07b85bF18A3a3eC8E0Af2e028d5"),
			curatedModule(GoerliChainID, "0x9D4AF1Ee19Dad8857db3a45B0374c81c8A1C6320"),
			curatedModule(HoleskyChainID, "0x595F64Ddc3856a3b5Ff4f4CC1d1fb4B46cFd2bAC"),
		},
	}
}

type yamlModule struct {
	ID                   uint64 `yaml:"id"`
	Type                 string `yaml:"type"`
	ChainID              uint64 `yaml:"chainId"`
	StakingModuleAddress string `yaml:"stakingModuleAddress"`
	Name                 string `yaml:"name"`
	ModuleFee            uint64 `yaml:"moduleFee"`
	TreasuryFee          uint64 `yaml:"treasuryFee"`
	TargetShare          uint64 `yaml:"targetShare"`
	Status               uint64 `yaml:"status"`
}

type yamlConfig struct {
	Modules []yamlModule `yaml:"modules"`
}

// LoadConfig reads a module table from YAML:
//
//	modules:
//	  - id: 1
//	    type: grouped-onchain-v1
//	    chainId: 1
//	    stakingModuleAddress: "0x55032650b14df07b85bF18A3a3eC8E0Af2e028d5"
//	    name: curated-onchain-v1
func LoadConfig(r io.Reader) (Config, error) {
	var raw yamlConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return Config{}, fmt.Errorf("could not decode module table: %w", err)
	}

	cfg := Config{Modules: make([]interfaces.ModuleDescriptor, 0, len(raw.Modules))}
	for i, m := range raw.Modules {
		if !common.IsHexAddress(m.StakingModuleAddress) {
			return Config{}, fmt.Errorf("module %d: invalid staking module address %q", i, m.StakingModuleAddress)
		}
		if m.Type == "" {
			return Config{}, fmt.Errorf("module %d: missing type", i)
		}
		cfg.Modules = append(cfg.Modules, interfaces.ModuleDescriptor{
			ID:                   m.ID,
			Type:                 interfaces.ModuleType(m.Type),
			ChainID:              m.ChainID,
			StakingModuleAddress: common.HexToAddress(m.StakingModuleAddress),
			Name:                 m.Name,
			ModuleFee:            m.ModuleFee,
			TreasuryFee:          m.TreasuryFee,
			TargetShare:          m.TargetShare,
			Status:               m.Status,
		})
	}
	return cfg, nil
}

// Directory is an immutable, chain scoped module table.
type Directory struct {
	byChain map[uint64][]interfaces.ModuleDescriptor
}

// NewDirectory indexes the configured modules. Two entries sharing a chain and
// id, or a chain and address, are rejected.
func NewDirectory(cfg Config) (*Directory, error) {
	byChain := make(map[uint64][]interfaces.ModuleDescriptor)
	for _, m := range cfg.Modules {
		for _, other := range byChain[m.ChainID] {
			if other.ID == m.ID {
				return nil, fmt.Errorf("duplicate module id %d on chain %d", m.ID, m.ChainID)
			}
			if other.StakingModuleAddress == m.StakingModuleAddress {
				return nil, fmt.Errorf("duplicate module address %s on chain %d", m.StakingModuleAddress.Hex(), m.ChainID)
			}
		}
		byChain[m.ChainID] = append(byChain[m.ChainID], m)
	}

	for chainID := range byChain {
		sort.Slice(byChain[chainID], func(i, j int) bool {
			return byChain[chainID][i].ID < byChain[chainID][j].ID
		})
	}

	return &Directory{byChain: byChain}, nil
}

// Resolve accepts either the decimal module id or its contract address.
func (d *Directory) Resolve(moduleID string, chainID uint64) (interfaces.ModuleDescriptor, bool) {
	moduleID = strings.TrimSpace(moduleID)

	if common.IsHexAddress(moduleID) {
		addr := common.HexToAddress(moduleID)
		for _, m := range d.byChain[chainID] {
			if m.StakingModuleAddress == addr {
				return m, true
			}
		}
		return interfaces.ModuleDescriptor{}, false
	}

	id, err := strconv.ParseUint(moduleID, 10, 64)
	if err != nil {
		return interfaces.ModuleDescriptor{}, false
	}
	for _, m := range d.byChain[chainID] {
		if m.ID == id {
			return m, true
		}
	}
	return interfaces.ModuleDescriptor{}, false
}

func (d *Directory) ResolveByType(moduleType interfaces.ModuleType, chainID uint64) (interfaces.ModuleDescriptor, bool) {
	for _, m := range d.byChain[chainID] {
		if m.Type == moduleType {
			return m, true
		}
	}
	return interfaces.ModuleDescriptor{}, false
}

func (d *Directory) List(chainID uint64) []interfaces.ModuleDescriptor {
	res := make([]interfaces.ModuleDescriptor, len(d.byChain[chainID]))
	copy(res, d.byChain[chainID])
	return res
}
