package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/metrics"
	"github.com/ruteri/keys-api/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnapshot(meta *interfaces.SyncMeta) *interfaces.Snapshot {
	return &interfaces.Snapshot{
		Meta: meta,
		Operators: []interfaces.RegistryOperator{
			{Index: 0, Active: true, Name: "op-0", RewardAddress: common.HexToAddress("0x01")},
			{Index: 1, Active: true, Name: "op-1", RewardAddress: common.HexToAddress("0x02")},
		},
		Keys: []interfaces.RegistryKey{
			{OperatorIndex: 0, Index: 0, Key: []byte{0xaa}, Used: true},
			{OperatorIndex: 0, Index: 1, Key: []byte{0xbb}, Used: false},
			{OperatorIndex: 1, Index: 0, Key: []byte{0xcc}, Used: true},
		},
	}
}

func newTestReader(t *testing.T, snap *interfaces.Snapshot) *Reader {
	store := storage.NewMemoryStore(nil, testLogger())
	if snap != nil {
		require.NoError(t, store.ReplaceSnapshot(context.Background(), snap))
	}
	return NewReader(store, DefaultConfig(), nil, testLogger())
}

func TestReader_NullMetaWins(t *testing.T) {
	ctx := context.Background()

	for name, snap := range map[string]*interfaces.Snapshot{
		"empty store":            nil,
		"rows without meta":      testSnapshot(nil),
		"operators without meta": {Operators: testSnapshot(nil).Operators},
	} {
		t.Run(name, func(t *testing.T) {
			r := newTestReader(t, snap)

			keys, err := r.Keys(ctx, interfaces.KeyFilter{})
			require.NoError(t, err)
			assert.Nil(t, keys.Meta)
			assert.NotNil(t, keys.Rows)
			assert.Empty(t, keys.Rows)

			byKey, err := r.KeyByPubkey(ctx, []byte{0xaa})
			require.NoError(t, err)
			assert.Nil(t, byKey.Meta)
			assert.Empty(t, byKey.Rows)

			ops, err := r.Operators(ctx)
			require.NoError(t, err)
			assert.Nil(t, ops.Meta)
			assert.Empty(t, ops.Rows)

			op, err := r.OperatorByIndex(ctx, 0)
			require.NoError(t, err)
			assert.Nil(t, op.Meta)
			assert.Nil(t, op.Operator)

			data, err := r.KeysAndOperators(ctx, interfaces.KeyFilter{})
			require.NoError(t, err)
			assert.Nil(t, data.Meta)
			assert.Empty(t, data.Keys)
			assert.Empty(t, data.Operators)

			meta, err := r.Meta(ctx)
			require.NoError(t, err)
			assert.Nil(t, meta)
		})
	}
}

func TestReader_Reads(t *testing.T) {
	ctx := context.Background()
	meta := &interfaces.SyncMeta{KeysOpIndex: 7, BlockNumber: 1000, BlockHash: common.HexToHash("0x01")}
	r := newTestReader(t, testSnapshot(meta))

	keys, err := r.Keys(ctx, interfaces.KeyFilter{})
	require.NoError(t, err)
	assert.Equal(t, meta, keys.Meta)
	assert.Len(t, keys.Rows, 3)

	used := true
	usedKeys, err := r.Keys(ctx, interfaces.KeyFilter{Used: &used})
	require.NoError(t, err)
	assert.Len(t, usedKeys.Rows, 2)

	found, err := r.KeysByPubkeys(ctx, [][]byte{{0xbb}, {0xcc}, {0xff}})
	require.NoError(t, err)
	require.Len(t, found.Rows, 2)
	assert.Equal(t, []byte{0xbb}, []byte(found.Rows[0].Key))
	assert.Equal(t, []byte{0xcc}, []byte(found.Rows[1].Key))

	single, err := r.KeyByPubkey(ctx, []byte{0xff})
	require.NoError(t, err)
	assert.Equal(t, meta, single.Meta)
	assert.Empty(t, single.Rows)

	op, err := r.OperatorByIndex(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, op.Operator)
	assert.Equal(t, "op-1", op.Operator.Name)

	missing, err := r.OperatorByIndex(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, meta, missing.Meta)
	assert.Nil(t, missing.Operator)

	data, err := r.KeysAndOperators(ctx, interfaces.KeyFilter{})
	require.NoError(t, err)
	assert.Equal(t, meta, data.Meta)
	assert.Len(t, data.Keys, 3)
	assert.Len(t, data.Operators, 2)
}

func TestReader_EmptyPubkeySet(t *testing.T) {
	meta := &interfaces.SyncMeta{KeysOpIndex: 1, BlockNumber: 5}
	r := newTestReader(t, testSnapshot(meta))

	for name, pubkeys := range map[string][][]byte{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			res, err := r.KeysByPubkeys(context.Background(), pubkeys)
			require.NoError(t, err)
			assert.Empty(t, res.Rows)
			assert.Equal(t, meta, res.Meta)
		})
	}
}

func TestReader_ExistingButEmptySnapshot(t *testing.T) {
	meta := &interfaces.SyncMeta{KeysOpIndex: 3, BlockNumber: 10}
	r := newTestReader(t, &interfaces.Snapshot{Meta: meta})

	keys, err := r.Keys(context.Background(), interfaces.KeyFilter{})
	require.NoError(t, err)
	assert.Equal(t, meta, keys.Meta)
	assert.NotNil(t, keys.Rows)
	assert.Empty(t, keys.Rows)
}

// faultyStore fails or stalls every view.
type faultyStore struct {
	err   error
	stall bool
}

func (s *faultyStore) View(ctx context.Context, fn func(interfaces.RegistryView) error) error {
	if s.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *faultyStore) Name() string { return "faulty" }
func (s *faultyStore) Close() error { return nil }

func TestReader_StoreFaults(t *testing.T) {
	diskErr := errors.New("disk I/O error")
	r := NewReader(&faultyStore{err: diskErr}, DefaultConfig(), nil, testLogger())

	_, err := r.Keys(context.Background(), interfaces.KeyFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)
	assert.ErrorIs(t, err, diskErr)

	_, err = r.OperatorByIndex(context.Background(), 0)
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)
}

func TestReader_FetchTimeout(t *testing.T) {
	r := NewReader(&faultyStore{stall: true}, Config{FetchTimeout: 20 * time.Millisecond}, nil, testLogger())

	start := time.Now()
	_, err := r.Operators(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReader_CanceledIsNotStoreFault(t *testing.T) {
	r := NewReader(&faultyStore{stall: true}, DefaultConfig(), nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Keys(ctx, interfaces.KeyFilter{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, interfaces.ErrStoreUnavailable)
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestReader_ObservesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collectors := metrics.NewCollectors("test", reg)

	store := storage.NewMemoryStore(nil, testLogger())
	r := NewReader(store, DefaultConfig(), collectors, testLogger())

	_, err := r.Meta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(0), gaugeValue(t, reg, "test_snapshot_ready"))

	meta := &interfaces.SyncMeta{KeysOpIndex: 11, BlockNumber: 1234}
	require.NoError(t, store.ReplaceSnapshot(context.Background(), testSnapshot(meta)))

	_, err = r.Keys(context.Background(), interfaces.KeyFilter{})
	require.NoError(t, err)
	assert.Equal(t, float64(1), gaugeValue(t, reg, "test_snapshot_ready"))
	assert.Equal(t, float64(1234), gaugeValue(t, reg, "test_snapshot_block_number"))
	assert.Equal(t, float64(11), gaugeValue(t, reg, "test_snapshot_keys_op_index"))
}
