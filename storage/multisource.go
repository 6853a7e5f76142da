package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/keys-api/interfaces"
)

// MultiSource loads the snapshot from the first source that has one.
type MultiSource struct {
	sources []interfaces.SnapshotSource
	log     *slog.Logger
}

// NewMultiSource creates a source falling back through sources in order.
func NewMultiSource(sources []interfaces.SnapshotSource, logger *slog.Logger) *MultiSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSource{
		sources: sources,
		log:     logger,
	}
}

// Load returns ErrSnapshotNotFound only when every source reported it.
func (m *MultiSource) Load(ctx context.Context) (*interfaces.Snapshot, error) {
	if len(m.sources) == 0 {
		return nil, errors.New("no snapshot sources configured")
	}

	start := time.Now()
	var errs []error
	notFound := 0

	for _, source := range m.sources {
		snapshot, err := source.Load(ctx)
		if err == nil {
			m.log.Debug("Loaded snapshot",
				slog.String("source", source.Name()),
				slog.Duration("duration", time.Since(start)))
			return snapshot, nil
		}

		if errors.Is(err, interfaces.ErrSnapshotNotFound) {
			notFound++
		}
		errs = append(errs, fmt.Errorf("%s: %w", source.Name(), err))
		m.log.Debug("Failed to load from source",
			slog.String("source", source.Name()),
			"err", err)
	}

	if notFound == len(m.sources) {
		return nil, interfaces.ErrSnapshotNotFound
	}

	m.log.Error("All sources failed to load snapshot",
		slog.Int("failed_sources", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return nil, fmt.Errorf("all sources failed to load snapshot: %w", errors.Join(errs...))
}

func (m *MultiSource) Name() string {
	names := make([]string, 0, len(m.sources))
	for _, source := range m.sources {
		names = append(names, source.Name())
	}
	return "multi:[" + strings.Join(names, ",") + "]"
}
