// Package views assembles API responses from registry reads.
//
// Collection views answer {data: [], meta: null} before the first sync pass,
// single-object views {data: null, meta: null}. Module metadata in a response
// always carries the keysOpIndex of the same meta as its nonce.
package views

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/keys-api/api"
	"github.com/ruteri/keys-api/interfaces"
	"github.com/ruteri/keys-api/snapshot"
)

// Config selects the chain whose modules are served.
type Config struct {
	ChainID    uint64
	AppVersion string
}

// Service builds the keys, operators and modules responses for one chain.
type Service struct {
	cfg       Config
	directory interfaces.ModuleDirectory
	reader    *snapshot.Reader
	handlers  map[interfaces.ModuleType]moduleHandler
	log       *slog.Logger
}

func NewService(cfg Config, directory interfaces.ModuleDirectory, reader *snapshot.Reader, log *slog.Logger) *Service {
	return &Service{
		cfg:       cfg,
		directory: directory,
		reader:    reader,
		handlers:  newHandlerTable(reader),
		log:       log,
	}
}

// resolve finds a module by id or address and its handler.
func (s *Service) resolve(moduleID string) (interfaces.ModuleDescriptor, moduleHandler, error) {
	module, ok := s.directory.Resolve(moduleID, s.cfg.ChainID)
	if !ok {
		return interfaces.ModuleDescriptor{}, nil, fmt.Errorf("%w: module with moduleId %s is not supported", interfaces.ErrModuleNotFound, moduleID)
	}
	return s.handlerFor(module)
}

func (s *Service) resolveCurated() (interfaces.ModuleDescriptor, moduleHandler, error) {
	module, ok := s.directory.ResolveByType(interfaces.CuratedOnchainV1Type, s.cfg.ChainID)
	if !ok {
		return interfaces.ModuleDescriptor{}, nil, fmt.Errorf("%w: module with type %s not found", interfaces.ErrModuleNotFound, interfaces.CuratedOnchainV1Type)
	}
	return s.handlerFor(module)
}

func (s *Service) handlerFor(module interfaces.ModuleDescriptor) (interfaces.ModuleDescriptor, moduleHandler, error) {
	handler, ok := s.handlers[module.Type]
	if !ok {
		return interfaces.ModuleDescriptor{}, nil, fmt.Errorf("%w: module %d has type %s", interfaces.ErrUnsupportedModuleType, module.ID, module.Type)
	}
	return module, handler, nil
}

// Keys lists keys of all modules matching filter.
func (s *Service) Keys(ctx context.Context, filter interfaces.KeyFilter) (api.KeyListResponse, error) {
	module, handler, err := s.resolveCurated()
	if err != nil {
		return api.KeyListResponse{}, err
	}

	res, err := handler.keys(ctx, filter)
	if err != nil {
		return api.KeyListResponse{}, err
	}
	return keyListResponse(module, res), nil
}

// KeyByPubkey returns every stored key equal to pubkey. Unknown keys give an
// empty list, not an error.
func (s *Service) KeyByPubkey(ctx context.Context, pubkey []byte) (api.KeyListResponse, error) {
	return s.KeysByPubkeys(ctx, [][]byte{pubkey})
}

func (s *Service) KeysByPubkeys(ctx context.Context, pubkeys [][]byte) (api.KeyListResponse, error) {
	if pubkeys == nil {
		pubkeys = [][]byte{}
	}
	return s.Keys(ctx, interfaces.KeyFilter{Pubkeys: pubkeys})
}

func keyListResponse(module interfaces.ModuleDescriptor, res snapshot.Result[interfaces.RegistryKey]) api.KeyListResponse {
	if res.Meta == nil {
		return api.KeyListResponse{Data: []api.KeyWithModuleAddress{}, Meta: nil}
	}

	keys := make([]api.KeyWithModuleAddress, 0, len(res.Rows))
	for _, key := range res.Rows {
		keys = append(keys, api.NewKeyWithModuleAddress(key, module.StakingModuleAddress))
	}
	return api.KeyListResponse{Data: keys, Meta: api.NewMeta(res.Meta)}
}

// ModuleOperatorsKeys returns keys, operators and module metadata of one module
// from a single sync pass.
func (s *Service) ModuleOperatorsKeys(ctx context.Context, moduleID string, filter interfaces.KeyFilter) (api.SRModuleOperatorsKeysResponse, error) {
	module, handler, err := s.resolve(moduleID)
	if err != nil {
		return api.SRModuleOperatorsKeysResponse{}, err
	}

	res, err := handler.keysAndOperators(ctx, filter)
	if err != nil {
		return api.SRModuleOperatorsKeysResponse{}, err
	}
	if res.Meta == nil {
		return api.SRModuleOperatorsKeysResponse{}, nil
	}

	keys := make([]api.CuratedKey, 0, len(res.Keys))
	for _, key := range res.Keys {
		keys = append(keys, api.NewCuratedKey(key))
	}

	return api.SRModuleOperatorsKeysResponse{
		Data: &api.SRModuleOperatorsKeys{
			Keys:      keys,
			Operators: curatedOperators(res.Operators),
			Module:    api.NewSRModule(res.Meta.KeysOpIndex, module),
		},
		Meta: api.NewMeta(res.Meta),
	}, nil
}

// Operators lists operators grouped by module.
func (s *Service) Operators(ctx context.Context) (api.GroupedByModuleOperatorListResponse, error) {
	module, handler, err := s.resolveCurated()
	if err != nil {
		return api.GroupedByModuleOperatorListResponse{}, err
	}

	res, err := handler.operators(ctx)
	if err != nil {
		return api.GroupedByModuleOperatorListResponse{}, err
	}
	if res.Meta == nil {
		return api.GroupedByModuleOperatorListResponse{Data: []api.SRModuleOperators{}}, nil
	}

	return api.GroupedByModuleOperatorListResponse{
		Data: []api.SRModuleOperators{{
			Operators: curatedOperators(res.Rows),
			Module:    api.NewSRModule(res.Meta.KeysOpIndex, module),
		}},
		Meta: api.NewMeta(res.Meta),
	}, nil
}

func (s *Service) ModuleOperators(ctx context.Context, moduleID string) (api.SRModuleOperatorListResponse, error) {
	module, handler, err := s.resolve(moduleID)
	if err != nil {
		return api.SRModuleOperatorListResponse{}, err
	}

	res, err := handler.operators(ctx)
	if err != nil {
		return api.SRModuleOperatorListResponse{}, err
	}
	if res.Meta == nil {
		return api.SRModuleOperatorListResponse{}, nil
	}

	return api.SRModuleOperatorListResponse{
		Data: &api.SRModuleOperators{
			Operators: curatedOperators(res.Rows),
			Module:    api.NewSRModule(res.Meta.KeysOpIndex, module),
		},
		Meta: api.NewMeta(res.Meta),
	}, nil
}

// ModuleOperator returns one operator of a module. A missing operator is only
// an error once a sync pass exists.
func (s *Service) ModuleOperator(ctx context.Context, moduleID string, operatorIndex uint64) (api.SRModuleOperatorResponse, error) {
	module, handler, err := s.resolve(moduleID)
	if err != nil {
		return api.SRModuleOperatorResponse{}, err
	}

	res, err := handler.operator(ctx, operatorIndex)
	if err != nil {
		return api.SRModuleOperatorResponse{}, err
	}
	if res.Meta == nil {
		return api.SRModuleOperatorResponse{}, nil
	}
	if res.Operator == nil {
		return api.SRModuleOperatorResponse{}, fmt.Errorf("%w: operator with index %d is not found for module with moduleId %s",
			interfaces.ErrOperatorNotFound, operatorIndex, moduleID)
	}

	return api.SRModuleOperatorResponse{
		Data: &api.SRModuleOperator{
			Operator: api.NewCuratedOperator(*res.Operator),
			Module:   api.NewSRModule(res.Meta.KeysOpIndex, module),
		},
		Meta: api.NewMeta(res.Meta),
	}, nil
}

// Modules lists the supported modules of the configured chain.
func (s *Service) Modules(ctx context.Context) (api.SRModuleListResponse, error) {
	var supported []interfaces.ModuleDescriptor
	for _, module := range s.directory.List(s.cfg.ChainID) {
		if _, ok := s.handlers[module.Type]; !ok {
			s.log.Debug("Skipping module of unsupported type", "moduleId", module.ID, "type", module.Type)
			continue
		}
		supported = append(supported, module)
	}
	if len(supported) == 0 {
		return api.SRModuleListResponse{Data: []api.SRModule{}}, nil
	}

	// All supported modules are served from the same registry sync.
	meta, err := s.handlers[supported[0].Type].meta(ctx)
	if err != nil {
		return api.SRModuleListResponse{}, err
	}
	if meta == nil {
		return api.SRModuleListResponse{Data: []api.SRModule{}}, nil
	}

	modules := make([]api.SRModule, 0, len(supported))
	for _, module := range supported {
		modules = append(modules, api.NewSRModule(meta.KeysOpIndex, module))
	}
	return api.SRModuleListResponse{Data: modules, Meta: api.NewMeta(meta)}, nil
}

func (s *Service) Module(ctx context.Context, moduleID string) (api.SRModuleResponse, error) {
	module, handler, err := s.resolve(moduleID)
	if err != nil {
		return api.SRModuleResponse{}, err
	}

	meta, err := handler.meta(ctx)
	if err != nil {
		return api.SRModuleResponse{}, err
	}
	if meta == nil {
		return api.SRModuleResponse{}, nil
	}

	srModule := api.NewSRModule(meta.KeysOpIndex, module)
	return api.SRModuleResponse{Data: &srModule, Meta: api.NewMeta(meta)}, nil
}

// Status reports the application version, chain and last sync pass.
func (s *Service) Status(ctx context.Context) (api.StatusResponse, error) {
	status := api.StatusResponse{
		AppVersion: s.cfg.AppVersion,
		ChainID:    s.cfg.ChainID,
	}

	// Not tied to a module: a chain without a curated module still reports status.
	meta, err := s.reader.Meta(ctx)
	if err != nil {
		return api.StatusResponse{}, err
	}
	if m := api.NewMeta(meta); m != nil {
		status.ELBlockSnapshot = &m.ELBlockSnapshot
	}
	return status, nil
}

func curatedOperators(operators []interfaces.RegistryOperator) []api.CuratedOperator {
	res := make([]api.CuratedOperator, 0, len(operators))
	for _, op := range operators {
		res = append(res, api.NewCuratedOperator(op))
	}
	return res
}
