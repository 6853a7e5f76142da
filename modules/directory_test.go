package modules

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/keys-api/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_Resolve(t *testing.T) {
	dir, err := NewDirectory(DefaultConfig())
	require.NoError(t, err)

	mainnetAddr := "0x55032650b14df07b85bF18A3a3eC8E0Af2e028d5"

	tests := []struct {
		name     string
		moduleID string
		chainID  uint64
		found    bool
	}{
		{name: "by id", moduleID: "1", chainID: MainnetChainID, found: true},
		{name: "by checksummed address", moduleID: mainnetAddr, chainID: MainnetChainID, found: true},
		{name: "by lowercase address", moduleID: strings.ToLower(mainnetAddr), chainID: MainnetChainID, found: true},
		{name: "address of another chain", moduleID: mainnetAddr, chainID: GoerliChainID, found: false},
		{name: "unknown id", moduleID: "2", chainID: MainnetChainID, found: false},
		{name: "unknown chain", moduleID: "1", chainID: 31337, found: false},
		{name: "garbage", moduleID: "curated", chainID: MainnetChainID, found: false},
		{name: "negative", moduleID: "-1", chainID: MainnetChainID, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := dir.Resolve(tt.moduleID, tt.chainID)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, uint64(1), m.ID)
				assert.Equal(t, tt.chainID, m.ChainID)
				assert.Equal(t, interfaces.CuratedOnchainV1Type, m.Type)
			}
		})
	}
}

func TestDirectory_ResolveByType(t *testing.T) {
	dir, err := NewDirectory(DefaultConfig())
	require.NoError(t, err)

	m, ok := dir.ResolveByType(interfaces.CuratedOnchainV1Type, GoerliChainID)
	require.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x9D4AF1Ee19Dad8857db3a45B0374c81c8A1C6320"), m.StakingModuleAddress)

	_, ok = dir.ResolveByType("simple-dvt-onchain-v1", GoerliChainID)
	assert.False(t, ok)

	_, ok = dir.ResolveByType(interfaces.CuratedOnchainV1Type, 31337)
	assert.False(t, ok)
}

func TestDirectory_DuplicateEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Modules = append(cfg.Modules, cfg.Modules[0])
	_, err := NewDirectory(cfg)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	raw := `
modules:
  - id: 2
    type: simple-dvt-onchain-v1
    chainId: 31337
    stakingModuleAddress: "0x00000000000000000000000000000000000000b2"
    name: simple-dvt
  - id: 1
    type: grouped-onchain-v1
    chainId: 31337
    stakingModuleAddress: "0x00000000000000000000000000000000000000a1"
    name: curated-onchain-v1
    moduleFee: 500
    treasuryFee: 500
    targetShare: 10000
`
	cfg, err := LoadConfig(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, cfg.Modules, 2)

	dir, err := NewDirectory(cfg)
	require.NoError(t, err)

	list := dir.List(31337)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(1), list[0].ID, "list is ordered by id")
	assert.Equal(t, uint64(500), list[0].ModuleFee)
	assert.Equal(t, interfaces.ModuleType("simple-dvt-onchain-v1"), list[1].Type)

	m, ok := dir.Resolve("0x00000000000000000000000000000000000000B2", 31337)
	require.True(t, ok)
	assert.Equal(t, uint64(2), m.ID)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad address":   "modules:\n  - id: 1\n    type: grouped-onchain-v1\n    stakingModuleAddress: nope\n",
		"missing type":  "modules:\n  - id: 1\n    stakingModuleAddress: \"0x00000000000000000000000000000000000000a1\"\n",
		"unknown field": "modules:\n  - id: 1\n    kind: x\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(strings.NewReader(raw))
			assert.Error(t, err)
		})
	}
}
