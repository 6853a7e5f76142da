package clients

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/keys-api/api/handlers"
	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/modules"
	"github.com/ruteri/keys-api/snapshot"
	"github.com/ruteri/keys-api/storage"
	"github.com/ruteri/keys-api/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) (*httptest.Server, *storage.MemoryStore) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := storage.NewMemoryStore(nil, logger)
	dir, err := modules.NewDirectory(modules.DefaultConfig())
	require.NoError(t, err)

	reader := snapshot.NewReader(store, snapshot.DefaultConfig(), nil, logger)
	service := views.NewService(views.Config{ChainID: modules.HoleskyChainID, AppVersion: "test"}, dir, reader, logger)

	mux := chi.NewRouter()
	handlers.NewHandler(service, logger).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestKeysClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, store := setupServer(t)
	client := NewKeysClient(srv.URL)

	// Before the first sync pass.
	keys, err := client.Keys(ctx, KeyQuery{})
	require.NoError(t, err)
	assert.Nil(t, keys.Meta)
	assert.Empty(t, keys.Data)

	moduleKeys, err := client.ModuleOperatorsKeys(ctx, "1", KeyQuery{})
	require.NoError(t, err)
	assert.Nil(t, moduleKeys.Data)
	assert.Nil(t, moduleKeys.Meta)

	require.NoError(t, store.ReplaceSnapshot(ctx, &interfaces.Snapshot{
		Meta: &interfaces.SyncMeta{KeysOpIndex: 3, BlockNumber: 42, BlockHash: common.HexToHash("0x42")},
		Operators: []interfaces.RegistryOperator{
			{Index: 0, Name: "op-0", Active: true},
			{Index: 1, Name: "op-1"},
		},
		Keys: []interfaces.RegistryKey{
			{OperatorIndex: 0, Index: 0, Key: []byte{0x01}, Used: true},
			{OperatorIndex: 1, Index: 0, Key: []byte{0x02}},
		},
	}))

	operatorIndex := uint64(1)
	keys, err = client.Keys(ctx, KeyQuery{OperatorIndex: &operatorIndex})
	require.NoError(t, err)
	require.Len(t, keys.Data, 1)
	assert.Equal(t, []byte{0x02}, []byte(keys.Data[0].Key.Key))
	assert.Equal(t, common.HexToAddress("0x595F64Ddc3856a3b5Ff4f4CC1d1fb4B46cFd2bAC"), keys.Data[0].ModuleAddress)
	require.NotNil(t, keys.Meta)
	assert.Equal(t, uint64(42), keys.Meta.ELBlockSnapshot.BlockNumber)

	byPubkey, err := client.KeyByPubkey(ctx, []byte{0x01})
	require.NoError(t, err)
	assert.Len(t, byPubkey.Data, 1)

	found, err := client.FindKeys(ctx, [][]byte{{0x01}, {0x02}, {0x03}})
	require.NoError(t, err)
	assert.Len(t, found.Data, 2)

	used := true
	moduleKeys, err = client.ModuleOperatorsKeys(ctx, "0x595F64Ddc3856a3b5Ff4f4CC1d1fb4B46cFd2bAC", KeyQuery{Used: &used})
	require.NoError(t, err)
	require.NotNil(t, moduleKeys.Data)
	assert.Len(t, moduleKeys.Data.Keys, 1)
	assert.Len(t, moduleKeys.Data.Operators, 2)
	assert.Equal(t, uint64(3), moduleKeys.Data.Module.Nonce)

	operators, err := client.Operators(ctx)
	require.NoError(t, err)
	require.Len(t, operators.Data, 1)
	assert.Len(t, operators.Data[0].Operators, 2)

	operator, err := client.ModuleOperator(ctx, "1", 1)
	require.NoError(t, err)
	require.NotNil(t, operator.Data)
	assert.Equal(t, "op-1", operator.Data.Operator.Name)

	moduleOperators, err := client.ModuleOperators(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, moduleOperators.Data)
	assert.Len(t, moduleOperators.Data.Operators, 2)

	mods, err := client.Modules(ctx)
	require.NoError(t, err)
	assert.Len(t, mods.Data, 1)

	module, err := client.Module(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, module.Data)
	assert.Equal(t, uint64(1), module.Data.ID)

	status, err := client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, modules.HoleskyChainID, status.ChainID)
}

func TestKeysClient_Errors(t *testing.T) {
	ctx := context.Background()
	srv, _ := setupServer(t)
	client := NewKeysClient(srv.URL)

	_, err := client.ModuleOperators(ctx, "7")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "module")

	operatorIndex := uint64(0)
	_, err = client.Keys(ctx, KeyQuery{OperatorIndex: &operatorIndex})
	require.NoError(t, err)

	_, err = client.KeyByPubkey(ctx, nil)
	assert.ErrorIs(t, err, interfaces.ErrInvalidQuery)
}
