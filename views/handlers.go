package views

import (
	"context"

	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/snapshot"
)

// moduleHandler reads registry data for one module type. Every method returns
// rows and the meta they were read under.
type moduleHandler interface {
	keys(ctx context.Context, filter interfaces.KeyFilter) (snapshot.Result[interfaces.RegistryKey], error)
	keysAndOperators(ctx context.Context, filter interfaces.KeyFilter) (snapshot.DataResult, error)
	operators(ctx context.Context) (snapshot.Result[interfaces.RegistryOperator], error)
	operator(ctx context.Context, index uint64) (snapshot.OperatorResult, error)
	meta(ctx context.Context) (*interfaces.SyncMeta, error)
}

// curatedHandler serves the curated module out of the synced registry.
type curatedHandler struct {
	reader *snapshot.Reader
}

func (h *curatedHandler) keys(ctx context.Context, filter interfaces.KeyFilter) (snapshot.Result[interfaces.RegistryKey], error) {
	return h.reader.Keys(ctx, filter)
}

func (h *curatedHandler) keysAndOperators(ctx context.Context, filter interfaces.KeyFilter) (snapshot.DataResult, error) {
	return h.reader.KeysAndOperators(ctx, filter)
}

func (h *curatedHandler) operators(ctx context.Context) (snapshot.Result[interfaces.RegistryOperator], error) {
	return h.reader.Operators(ctx)
}

func (h *curatedHandler) operator(ctx context.Context, index uint64) (snapshot.OperatorResult, error) {
	return h.reader.OperatorByIndex(ctx, index)
}

func (h *curatedHandler) meta(ctx context.Context) (*interfaces.SyncMeta, error) {
	return h.reader.Meta(ctx)
}

// newHandlerTable lists every supported module type. Types missing here are
// reported as unsupported.
func newHandlerTable(reader *snapshot.Reader) map[interfaces.ModuleType]moduleHandler {
	return map[interfaces.ModuleType]moduleHandler{
		interfaces.CuratedOnchainV1Type: &curatedHandler{reader: reader},
	}
}
