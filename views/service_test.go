package views

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/modules"
	"github.com/ruteri/keys-api/snapshot"
	"github.com/ruteri/keys-api/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChainID       = modules.MainnetChainID
	curatedAddress    = "0x55032650b14df07b85bF18A3a3eC8E0Af2e028d5"
	unsupportedModule = "2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDirectory(t *testing.T) *modules.Directory {
	cfg := modules.DefaultConfig()
	cfg.Modules = append(cfg.Modules, interfaces.ModuleDescriptor{
		ID:                   2,
		Type:                 "community-onchain-v1",
		ChainID:              testChainID,
		StakingModuleAddress: common.HexToAddress("0x0000000000000000000000000000000000000c0c"),
		Name:                 "community",
	})
	dir, err := modules.NewDirectory(cfg)
	require.NoError(t, err)
	return dir
}

func scenarioSnapshot() *interfaces.Snapshot {
	return &interfaces.Snapshot{
		Meta: &interfaces.SyncMeta{KeysOpIndex: 7, BlockNumber: 100, BlockHash: common.HexToHash("0xabc")},
		Operators: []interfaces.RegistryOperator{
			{Index: 0, Active: true, Name: "op-0", RewardAddress: common.HexToAddress("0x01"), TotalSigningKeys: 2, UsedSigningKeys: 1},
		},
		Keys: []interfaces.RegistryKey{
			{OperatorIndex: 0, Index: 0, Key: []byte{0x01}, DepositSignature: []byte{0x11}, Used: true},
			{OperatorIndex: 0, Index: 1, Key: []byte{0x02}, DepositSignature: []byte{0x12}, Used: false},
		},
	}
}

func newTestService(t *testing.T, snap *interfaces.Snapshot) (*Service, *storage.MemoryStore) {
	store := storage.NewMemoryStore(nil, testLogger())
	if snap != nil {
		require.NoError(t, store.ReplaceSnapshot(context.Background(), snap))
	}
	reader := snapshot.NewReader(store, snapshot.DefaultConfig(), nil, testLogger())
	return NewService(Config{ChainID: testChainID, AppVersion: "test"}, testDirectory(t), reader, testLogger()), store
}

func toJSON(t *testing.T, v any) string {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func TestService_Scenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, scenarioSnapshot())

	keys, err := svc.Keys(ctx, interfaces.KeyFilter{})
	require.NoError(t, err)
	require.Len(t, keys.Data, 2)
	require.NotNil(t, keys.Meta)
	assert.Equal(t, uint64(100), keys.Meta.ELBlockSnapshot.BlockNumber)
	assert.Equal(t, common.HexToHash("0xabc"), keys.Meta.ELBlockSnapshot.BlockHash)
	assert.Equal(t, uint64(7), keys.Meta.ELBlockSnapshot.KeysOpIndex)
	assert.Equal(t, common.HexToAddress(curatedAddress), keys.Data[0].ModuleAddress)
	assert.Equal(t, []byte{0x01}, []byte(keys.Data[0].Key.Key))

	_, err = svc.ModuleOperator(ctx, "1", 5)
	assert.ErrorIs(t, err, interfaces.ErrOperatorNotFound)

	_, err = svc.ModuleOperatorsKeys(ctx, "99", interfaces.KeyFilter{})
	assert.ErrorIs(t, err, interfaces.ErrModuleNotFound)
}

func TestService_NotReady(t *testing.T) {
	ctx := context.Background()

	// A store holding rows but no meta must answer exactly like an empty one.
	for name, snap := range map[string]*interfaces.Snapshot{
		"empty":             nil,
		"rows without meta": {Keys: scenarioSnapshot().Keys, Operators: scenarioSnapshot().Operators},
	} {
		t.Run(name, func(t *testing.T) {
			svc, _ := newTestService(t, snap)

			keys, err := svc.Keys(ctx, interfaces.KeyFilter{})
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":[],"meta":null}`, toJSON(t, keys))

			byPubkey, err := svc.KeyByPubkey(ctx, []byte{0x01})
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":[],"meta":null}`, toJSON(t, byPubkey))

			operatorsKeys, err := svc.ModuleOperatorsKeys(ctx, "1", interfaces.KeyFilter{})
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":null,"meta":null}`, toJSON(t, operatorsKeys))

			operators, err := svc.Operators(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":[],"meta":null}`, toJSON(t, operators))

			moduleOperators, err := svc.ModuleOperators(ctx, "1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":null,"meta":null}`, toJSON(t, moduleOperators))

			// Not-ready wins over a missing operator.
			operator, err := svc.ModuleOperator(ctx, "1", 5)
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":null,"meta":null}`, toJSON(t, operator))

			mods, err := svc.Modules(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":[],"meta":null}`, toJSON(t, mods))

			module, err := svc.Module(ctx, "1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"data":null,"meta":null}`, toJSON(t, module))

			status, err := svc.Status(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `{"appVersion":"test","chainId":1,"elBlockSnapshot":null}`, toJSON(t, status))
		})
	}
}

func TestService_UnknownModuleBeforeSync(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.ModuleOperators(context.Background(), "42")
	assert.ErrorIs(t, err, interfaces.ErrModuleNotFound)
}

func TestService_EmptySnapshotIsNotNotReady(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &interfaces.Snapshot{Meta: &interfaces.SyncMeta{KeysOpIndex: 1, BlockNumber: 9}})

	keys, err := svc.Keys(ctx, interfaces.KeyFilter{})
	require.NoError(t, err)
	assert.Empty(t, keys.Data)
	require.NotNil(t, keys.Meta)

	res, err := svc.ModuleOperatorsKeys(ctx, "1", interfaces.KeyFilter{})
	require.NoError(t, err)
	require.NotNil(t, res.Data)
	assert.Empty(t, res.Data.Keys)
	assert.Empty(t, res.Data.Operators)
	assert.Contains(t, toJSON(t, res), `"keys":[]`)
}

func TestService_ModuleResolution(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, scenarioSnapshot())

	for _, moduleID := range []string{"1", curatedAddress, "0x55032650b14df07b85bf18a3a3ec8e0af2e028d5"} {
		res, err := svc.ModuleOperators(ctx, moduleID)
		require.NoError(t, err, moduleID)
		require.NotNil(t, res.Data)
		assert.Equal(t, uint64(1), res.Data.Module.ID)
	}

	_, err := svc.ModuleOperators(ctx, unsupportedModule)
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedModuleType)

	_, err = svc.Module(ctx, unsupportedModule)
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedModuleType)

	_, err = svc.ModuleOperatorsKeys(ctx, "not-a-module", interfaces.KeyFilter{})
	assert.ErrorIs(t, err, interfaces.ErrModuleNotFound)
}

func TestService_ModuleOperatorsKeys(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, scenarioSnapshot())

	used := false
	res, err := svc.ModuleOperatorsKeys(ctx, "1", interfaces.KeyFilter{Used: &used})
	require.NoError(t, err)
	require.NotNil(t, res.Data)
	require.Len(t, res.Data.Keys, 1)
	assert.Equal(t, uint64(1), res.Data.Keys[0].Index)
	assert.False(t, res.Data.Keys[0].Used)
	assert.Len(t, res.Data.Operators, 1)
	assert.Equal(t, uint64(7), res.Data.Module.Nonce)
	assert.Equal(t, res.Meta.ELBlockSnapshot.KeysOpIndex, res.Data.Module.Nonce)
}

func TestService_OperatorsAndModules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, scenarioSnapshot())

	grouped, err := svc.Operators(ctx)
	require.NoError(t, err)
	require.Len(t, grouped.Data, 1)
	assert.Equal(t, "op-0", grouped.Data[0].Operators[0].Name)
	assert.Equal(t, uint64(7), grouped.Data[0].Module.Nonce)

	op, err := svc.ModuleOperator(ctx, curatedAddress, 0)
	require.NoError(t, err)
	require.NotNil(t, op.Data)
	assert.Equal(t, uint64(2), op.Data.Operator.TotalSigningKeys)

	mods, err := svc.Modules(ctx)
	require.NoError(t, err)
	require.Len(t, mods.Data, 1, "unsupported module types are not listed")
	assert.Equal(t, uint64(7), mods.Data[0].Nonce)

	module, err := svc.Module(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, module.Data)
	assert.Equal(t, interfaces.CuratedOnchainV1Type, module.Data.Type)

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status.ELBlockSnapshot)
	assert.Equal(t, uint64(100), status.ELBlockSnapshot.BlockNumber)
}

func TestService_KeysByPubkeys(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, scenarioSnapshot())

	res, err := svc.KeysByPubkeys(ctx, [][]byte{{0x02}, {0xff}})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, []byte{0x02}, []byte(res.Data[0].Key.Key))

	empty, err := svc.KeysByPubkeys(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Data)
	assert.NotNil(t, empty.Meta)
}

// passSnapshot builds a pass whose key count equals its keysOpIndex, so a
// response mixing two passes is detectable.
func passSnapshot(pass uint64) *interfaces.Snapshot {
	snap := &interfaces.Snapshot{
		Meta:      &interfaces.SyncMeta{KeysOpIndex: pass, BlockNumber: 1000 + pass},
		Operators: []interfaces.RegistryOperator{{Index: 0, Name: "op", TotalSigningKeys: pass}},
	}
	for i := uint64(0); i < pass; i++ {
		snap.Keys = append(snap.Keys, interfaces.RegistryKey{OperatorIndex: 0, Index: i, Key: []byte{byte(i)}})
	}
	return snap
}

func TestService_ResponsesNeverMixPasses(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, passSnapshot(1))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for pass := uint64(2); pass < 200; pass++ {
			assert.NoError(t, store.ReplaceSnapshot(ctx, passSnapshot(pass)))
		}
		close(stop)
	}()

	for done := false; !done; {
		select {
		case <-stop:
			done = true
		default:
		}

		res, err := svc.ModuleOperatorsKeys(ctx, "1", interfaces.KeyFilter{})
		require.NoError(t, err)
		require.NotNil(t, res.Data)
		pass := res.Meta.ELBlockSnapshot.KeysOpIndex
		assert.Equal(t, pass, res.Data.Module.Nonce)
		assert.Equal(t, int(pass), len(res.Data.Keys))
		assert.Equal(t, pass, res.Data.Operators[0].TotalSigningKeys)
		assert.Equal(t, 1000+pass, res.Meta.ELBlockSnapshot.BlockNumber)
	}
	wg.Wait()
}

func TestService_StatusWithoutCuratedModule(t *testing.T) {
	store := storage.NewMemoryStore(nil, testLogger())
	require.NoError(t, store.ReplaceSnapshot(context.Background(), scenarioSnapshot()))
	reader := snapshot.NewReader(store, snapshot.DefaultConfig(), nil, testLogger())
	svc := NewService(Config{ChainID: 4242, AppVersion: "test"}, testDirectory(t), reader, testLogger())

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), status.ChainID)
	assert.Equal(t, "test", status.AppVersion)
	require.NotNil(t, status.ELBlockSnapshot)
	assert.Equal(t, uint64(7), status.ELBlockSnapshot.KeysOpIndex)

	_, err = svc.Keys(context.Background(), interfaces.KeyFilter{})
	assert.ErrorIs(t, err, interfaces.ErrModuleNotFound)
}

func TestService_RepeatedQueriesAreIdentical(t *testing.T) {
	ctx := context.Background()

	sqliteStore, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "registry.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	stores := map[string]interface {
		interfaces.RegistryStore
		interfaces.SnapshotWriter
	}{
		"memory": storage.NewMemoryStore(nil, testLogger()),
		"sqlite": sqliteStore,
	}

	used := false
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.ReplaceSnapshot(ctx, scenarioSnapshot()))
			reader := snapshot.NewReader(store, snapshot.DefaultConfig(), nil, testLogger())
			svc := NewService(Config{ChainID: testChainID, AppVersion: "test"}, testDirectory(t), reader, testLogger())

			queries := map[string]func() (any, error){
				"keys": func() (any, error) { return svc.Keys(ctx, interfaces.KeyFilter{}) },
				"unused keys": func() (any, error) {
					return svc.Keys(ctx, interfaces.KeyFilter{Used: &used})
				},
				"module operators keys": func() (any, error) {
					return svc.ModuleOperatorsKeys(ctx, "1", interfaces.KeyFilter{})
				},
				"module operators": func() (any, error) { return svc.ModuleOperators(ctx, "1") },
			}
			for qname, query := range queries {
				first, err := query()
				require.NoError(t, err, qname)
				second, err := query()
				require.NoError(t, err, qname)
				assert.Equal(t, toJSON(t, first), toJSON(t, second), qname)
			}
		})
	}
}
