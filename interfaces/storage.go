package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrModuleNotFound is returned when no module matches the requested id or type on the configured chain.
	ErrModuleNotFound = errors.New("module not found")

	// ErrOperatorNotFound is returned when a snapshot exists but has no operator with the requested index.
	ErrOperatorNotFound = errors.New("operator not found")

	// ErrUnsupportedModuleType is returned when a module resolves but its type has no handler.
	ErrUnsupportedModuleType = errors.New("unsupported module type")

	// ErrInvalidQuery is returned for malformed request parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrStoreUnavailable is returned when the registry store could not be read.
	// It is never used to signal the not-ready state.
	ErrStoreUnavailable = errors.New("registry store unavailable")

	// ErrSnapshotNotFound is returned by a SnapshotSource when the updater has not exported a snapshot yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrInvalidLocationURI is returned when a store location URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid store location URI")
)

// RegistryView reads one consistent sync pass. Views are only valid inside the
// callback passed to RegistryStore.View.
type RegistryView interface {
	// Meta returns nil, nil when no sync pass has completed.
	Meta(ctx context.Context) (*SyncMeta, error)

	// Keys returns keys matching the filter ordered by operator index and key index.
	Keys(ctx context.Context, filter KeyFilter) ([]RegistryKey, error)

	// Operators returns all operators ordered by index.
	Operators(ctx context.Context) ([]RegistryOperator, error)

	// Operator returns nil, nil when no operator has the index.
	Operator(ctx context.Context, index uint64) (*RegistryOperator, error)
}

// RegistryStore provides read access to the synchronized registry.
type RegistryStore interface {
	// View runs fn against a single sync pass.
	View(ctx context.Context, fn func(RegistryView) error) error

	// Name returns identifier for logging.
	Name() string

	Close() error
}

// SnapshotWriter replaces the stored sync pass. Owned by the updater.
type SnapshotWriter interface {
	ReplaceSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// SnapshotSource loads a whole sync pass from an external location.
type SnapshotSource interface {
	Load(ctx context.Context) (*Snapshot, error)

	// Name returns identifier for logging.
	Name() string
}

// Reloadable is implemented by stores that refresh themselves from a SnapshotSource.
type Reloadable interface {
	Reload(ctx context.Context) error
}
