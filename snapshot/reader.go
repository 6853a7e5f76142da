// Package snapshot implements the read side of the registry: every query returns
// its rows together with the SyncMeta they were read under.
//
// Two rules hold for every operation:
//
//   - Null meta wins. When no sync pass has completed the rows are empty, whatever
//     the store holds, because rows without a snapshot marker are not safe to serve.
//   - One view per call. Meta and all collections of a call are read inside a single
//     RegistryStore.View, so a sync pass completing mid-request cannot mix two passes
//     into one result. Two separate calls may still observe different passes; clients
//     detect that through keysOpIndex.
//
// Store faults and deadline overruns are reported as interfaces.ErrStoreUnavailable
// and are never turned into the not-ready state.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/metrics"
)

// Config bounds store reads.
type Config struct {
	// FetchTimeout caps a single read; zero leaves only the caller's deadline.
	FetchTimeout time.Duration
}

// DefaultConfig returns a 10 second fetch timeout.
func DefaultConfig() Config {
	return Config{FetchTimeout: 10 * time.Second}
}

// Result is a collection read under Meta. Rows is empty, never nil.
type Result[T any] struct {
	Rows []T
	Meta *interfaces.SyncMeta
}

// OperatorResult is a single operator lookup. Operator is nil when Meta is nil
// or when no operator has the requested index.
type OperatorResult struct {
	Operator *interfaces.RegistryOperator
	Meta     *interfaces.SyncMeta
}

// DataResult carries keys and operators read from the same sync pass.
type DataResult struct {
	Keys      []interfaces.RegistryKey
	Operators []interfaces.RegistryOperator
	Meta      *interfaces.SyncMeta
}

// Reader answers registry reads from a RegistryStore. Every call runs in a
// single store view bounded by Config.FetchTimeout.
type Reader struct {
	store   interfaces.RegistryStore
	cfg     Config
	metrics *metrics.Collectors
	log     *slog.Logger
}

// NewReader creates a reader over store. collectors may be nil.
func NewReader(store interfaces.RegistryStore, cfg Config, collectors *metrics.Collectors, log *slog.Logger) *Reader {
	return &Reader{
		store:   store,
		cfg:     cfg,
		metrics: collectors,
		log:     log,
	}
}

// read opens one view, loads meta and, only when meta exists, runs fn.
func (r *Reader) read(ctx context.Context, operation string, fn func(ctx context.Context, view interfaces.RegistryView) error) (*interfaces.SyncMeta, error) {
	if r.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	var meta *interfaces.SyncMeta
	err := r.store.View(ctx, func(view interfaces.RegistryView) error {
		m, err := view.Meta(ctx)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}
		if err := fn(ctx, view); err != nil {
			return err
		}
		meta = m
		return nil
	})
	if err == nil {
		// A view may finish after its deadline without reporting it.
		err = ctx.Err()
	}

	if err != nil && errors.Is(err, context.Canceled) {
		r.metrics.ObserveFetch(operation, "canceled", time.Since(start))
		r.log.Debug("Registry store read canceled",
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)))
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if err != nil {
		r.metrics.ObserveFetch(operation, "error", time.Since(start))
		r.log.Error("Registry store read failed",
			slog.String("operation", operation),
			slog.String("store", r.store.Name()),
			slog.Duration("duration", time.Since(start)),
			"err", err)
		return nil, fmt.Errorf("%w: %s: %w", interfaces.ErrStoreUnavailable, operation, err)
	}

	outcome := "ready"
	if meta == nil {
		outcome = "not_ready"
		r.metrics.ObserveSnapshot(false, 0, 0)
	} else {
		r.metrics.ObserveSnapshot(true, meta.BlockNumber, meta.KeysOpIndex)
	}
	r.metrics.ObserveFetch(operation, outcome, time.Since(start))
	return meta, nil
}

// Meta returns the current sync pass marker, nil when not ready.
func (r *Reader) Meta(ctx context.Context) (*interfaces.SyncMeta, error) {
	return r.read(ctx, "meta", func(ctx context.Context, view interfaces.RegistryView) error {
		return nil
	})
}

// Keys returns keys matching filter.
func (r *Reader) Keys(ctx context.Context, filter interfaces.KeyFilter) (Result[interfaces.RegistryKey], error) {
	var keys []interfaces.RegistryKey
	meta, err := r.read(ctx, "keys", func(ctx context.Context, view interfaces.RegistryView) error {
		var err error
		keys, err = view.Keys(ctx, filter)
		return err
	})
	if err != nil {
		return Result[interfaces.RegistryKey]{}, err
	}
	return newResult(keys, meta), nil
}

// KeyByPubkey is KeysByPubkeys with a single key.
func (r *Reader) KeyByPubkey(ctx context.Context, pubkey []byte) (Result[interfaces.RegistryKey], error) {
	return r.KeysByPubkeys(ctx, [][]byte{pubkey})
}

// KeysByPubkeys returns the stored keys among pubkeys. An empty set yields no
// rows but still reports the current meta.
func (r *Reader) KeysByPubkeys(ctx context.Context, pubkeys [][]byte) (Result[interfaces.RegistryKey], error) {
	if pubkeys == nil {
		pubkeys = [][]byte{}
	}
	return r.Keys(ctx, interfaces.KeyFilter{Pubkeys: pubkeys})
}

// Operators returns all operators.
func (r *Reader) Operators(ctx context.Context) (Result[interfaces.RegistryOperator], error) {
	var operators []interfaces.RegistryOperator
	meta, err := r.read(ctx, "operators", func(ctx context.Context, view interfaces.RegistryView) error {
		var err error
		operators, err = view.Operators(ctx)
		return err
	})
	if err != nil {
		return Result[interfaces.RegistryOperator]{}, err
	}
	return newResult(operators, meta), nil
}

// OperatorByIndex looks a single operator up.
func (r *Reader) OperatorByIndex(ctx context.Context, index uint64) (OperatorResult, error) {
	var operator *interfaces.RegistryOperator
	meta, err := r.read(ctx, "operator", func(ctx context.Context, view interfaces.RegistryView) error {
		var err error
		operator, err = view.Operator(ctx, index)
		return err
	})
	if err != nil {
		return OperatorResult{}, err
	}
	if meta == nil {
		return OperatorResult{}, nil
	}
	return OperatorResult{Operator: operator, Meta: meta}, nil
}

// KeysAndOperators reads keys matching filter and all operators in one view.
func (r *Reader) KeysAndOperators(ctx context.Context, filter interfaces.KeyFilter) (DataResult, error) {
	var (
		keys      []interfaces.RegistryKey
		operators []interfaces.RegistryOperator
	)
	meta, err := r.read(ctx, "keys_operators", func(ctx context.Context, view interfaces.RegistryView) error {
		var err error
		if keys, err = view.Keys(ctx, filter); err != nil {
			return err
		}
		operators, err = view.Operators(ctx)
		return err
	})
	if err != nil {
		return DataResult{}, err
	}

	keysRes := newResult(keys, meta)
	operatorsRes := newResult(operators, meta)
	return DataResult{Keys: keysRes.Rows, Operators: operatorsRes.Rows, Meta: meta}, nil
}

func newResult[T any](rows []T, meta *interfaces.SyncMeta) Result[T] {
	if meta == nil || rows == nil {
		return Result[T]{Rows: []T{}, Meta: meta}
	}
	return Result[T]{Rows: rows, Meta: meta}
}
