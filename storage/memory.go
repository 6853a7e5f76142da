package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ruteri/keys-api/interfaces"
	"go.uber.org/atomic"
)

// loadedSnapshot is an immutable, indexed copy of a sync pass.
type loadedSnapshot struct {
	meta      *interfaces.SyncMeta
	keys      []interfaces.RegistryKey
	operators []interfaces.RegistryOperator
	opByIndex map[uint64]int
}

func newLoadedSnapshot(snapshot *interfaces.Snapshot) *loadedSnapshot {
	ls := &loadedSnapshot{
		keys:      make([]interfaces.RegistryKey, len(snapshot.Keys)),
		operators: make([]interfaces.RegistryOperator, len(snapshot.Operators)),
		opByIndex: make(map[uint64]int, len(snapshot.Operators)),
	}
	if snapshot.Meta != nil {
		meta := *snapshot.Meta
		ls.meta = &meta
	}

	copy(ls.keys, snapshot.Keys)
	sort.SliceStable(ls.keys, func(i, j int) bool {
		if ls.keys[i].OperatorIndex != ls.keys[j].OperatorIndex {
			return ls.keys[i].OperatorIndex < ls.keys[j].OperatorIndex
		}
		return ls.keys[i].Index < ls.keys[j].Index
	})

	copy(ls.operators, snapshot.Operators)
	sort.SliceStable(ls.operators, func(i, j int) bool {
		return ls.operators[i].Index < ls.operators[j].Index
	})
	for i, op := range ls.operators {
		ls.opByIndex[op.Index] = i
	}
	return ls
}

// MemoryStore serves a sync pass held in memory. Replacing the snapshot swaps
// a single pointer, so concurrent views never observe a partial pass.
type MemoryStore struct {
	current atomic.Pointer[loadedSnapshot]
	source  interfaces.SnapshotSource
	log     *slog.Logger
}

// NewMemoryStore creates an empty store. When source is not nil, Reload pulls
// snapshots from it.
func NewMemoryStore(source interfaces.SnapshotSource, log *slog.Logger) *MemoryStore {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryStore{
		source: source,
		log:    log,
	}
}

func (s *MemoryStore) View(ctx context.Context, fn func(interfaces.RegistryView) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&memoryView{snap: s.current.Load()})
}

// ReplaceSnapshot installs a new sync pass.
func (s *MemoryStore) ReplaceSnapshot(ctx context.Context, snapshot *interfaces.Snapshot) error {
	if snapshot == nil {
		return errors.New("nil snapshot")
	}
	s.current.Store(newLoadedSnapshot(snapshot))
	return nil
}

// Reload fetches the latest snapshot from the configured source. A source
// without a snapshot leaves the current one in place.
func (s *MemoryStore) Reload(ctx context.Context) error {
	if s.source == nil {
		return nil
	}

	start := time.Now()
	snapshot, err := s.source.Load(ctx)
	if errors.Is(err, interfaces.ErrSnapshotNotFound) {
		s.log.Warn("No snapshot exported yet", slog.String("source", s.source.Name()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not load snapshot from %s: %w", s.source.Name(), err)
	}

	if err := s.ReplaceSnapshot(ctx, snapshot); err != nil {
		return err
	}

	attrs := []any{
		slog.String("source", s.source.Name()),
		slog.Int("keys", len(snapshot.Keys)),
		slog.Int("operators", len(snapshot.Operators)),
		slog.Duration("duration", time.Since(start)),
	}
	if snapshot.Meta != nil {
		attrs = append(attrs,
			slog.Uint64("blockNumber", snapshot.Meta.BlockNumber),
			slog.Uint64("keysOpIndex", snapshot.Meta.KeysOpIndex))
	}
	s.log.Info("Snapshot reloaded", attrs...)
	return nil
}

func (s *MemoryStore) Name() string {
	if s.source == nil {
		return "memory"
	}
	return "memory-" + s.source.Name()
}

func (s *MemoryStore) Close() error {
	return nil
}

type memoryView struct {
	snap *loadedSnapshot
}

func (v *memoryView) Meta(ctx context.Context) (*interfaces.SyncMeta, error) {
	if v.snap == nil || v.snap.meta == nil {
		return nil, nil
	}
	meta := *v.snap.meta
	return &meta, nil
}

func (v *memoryView) Keys(ctx context.Context, filter interfaces.KeyFilter) ([]interfaces.RegistryKey, error) {
	res := []interfaces.RegistryKey{}
	if v.snap == nil {
		return res, nil
	}
	for _, key := range v.snap.keys {
		if filter.Match(key) {
			res = append(res, key)
		}
	}
	return res, nil
}

func (v *memoryView) Operators(ctx context.Context) ([]interfaces.RegistryOperator, error) {
	if v.snap == nil {
		return []interfaces.RegistryOperator{}, nil
	}
	res := make([]interfaces.RegistryOperator, len(v.snap.operators))
	copy(res, v.snap.operators)
	return res, nil
}

func (v *memoryView) Operator(ctx context.Context, index uint64) (*interfaces.RegistryOperator, error) {
	if v.snap == nil {
		return nil, nil
	}
	i, ok := v.snap.opByIndex[index]
	if !ok {
		return nil, nil
	}
	op := v.snap.operators[i]
	return &op, nil
}
