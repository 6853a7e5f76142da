package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/ruteri/keys-api/interfaces"
)

// Reloader periodically refreshes a Reloadable store until its context is cancelled.
type Reloader struct {
	store    interfaces.Reloadable
	interval time.Duration
	log      *slog.Logger

	// OnReload, when set, runs after every successful reload.
	OnReload func(ctx context.Context)
}

func NewReloader(store interfaces.Reloadable, interval time.Duration, log *slog.Logger) *Reloader {
	return &Reloader{
		store:    store,
		interval: interval,
		log:      log,
	}
}

// ReloadOnce performs a single refresh.
func (r *Reloader) ReloadOnce(ctx context.Context) error {
	if err := r.store.Reload(ctx); err != nil {
		return err
	}
	if r.OnReload != nil {
		r.OnReload(ctx)
	}
	return nil
}

// Run blocks, reloading every interval. Failed reloads keep the previous snapshot.
func (r *Reloader) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReloadOnce(ctx); err != nil {
				r.log.Error("Snapshot reload failed, serving previous snapshot", "err", err)
			}
		}
	}
}
