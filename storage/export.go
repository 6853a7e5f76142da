package storage

import (
	"context"

	"github.com/ruteri/keys-api/interfaces"
)

// ExportSnapshot reads the whole sync pass held by store in a single view.
// Rows are exported even when meta is absent, so a partial import can be inspected.
func ExportSnapshot(ctx context.Context, store interfaces.RegistryStore) (*interfaces.Snapshot, error) {
	snapshot := &interfaces.Snapshot{}
	err := store.View(ctx, func(view interfaces.RegistryView) error {
		var err error
		if snapshot.Meta, err = view.Meta(ctx); err != nil {
			return err
		}
		if snapshot.Keys, err = view.Keys(ctx, interfaces.KeyFilter{}); err != nil {
			return err
		}
		snapshot.Operators, err = view.Operators(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
