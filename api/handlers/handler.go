package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/keys-api/api"
	"github.com/ruteri/keys-api/interfaces"
)

// maxFindBodySize bounds POST /v1/keys/find bodies.
const maxFindBodySize = 8 << 20

// Service is the read side the handlers serve. *views.Service implements it.
type Service interface {
	Keys(ctx context.Context, filter interfaces.KeyFilter) (api.KeyListResponse, error)
	KeyByPubkey(ctx context.Context, pubkey []byte) (api.KeyListResponse, error)
	KeysByPubkeys(ctx context.Context, pubkeys [][]byte) (api.KeyListResponse, error)
	ModuleOperatorsKeys(ctx context.Context, moduleID string, filter interfaces.KeyFilter) (api.SRModuleOperatorsKeysResponse, error)
	Operators(ctx context.Context) (api.GroupedByModuleOperatorListResponse, error)
	ModuleOperators(ctx context.Context, moduleID string) (api.SRModuleOperatorListResponse, error)
	ModuleOperator(ctx context.Context, moduleID string, operatorIndex uint64) (api.SRModuleOperatorResponse, error)
	Modules(ctx context.Context) (api.SRModuleListResponse, error)
	Module(ctx context.Context, moduleID string) (api.SRModuleResponse, error)
	Status(ctx context.Context) (api.StatusResponse, error)
}

// Handler serves the keys API routes.
type Handler struct {
	service Service
	log     *slog.Logger
}

func NewHandler(service Service, log *slog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/keys", h.HandleKeys)
		r.Post("/keys/find", h.HandleFindKeys)
		r.Get("/keys/{pubkey}", h.HandleKeyByPubkey)

		r.Get("/operators", h.HandleOperators)

		r.Get("/modules", h.HandleModules)
		r.Get("/modules/{module_id}", h.HandleModule)
		r.Get("/modules/{module_id}/operators", h.HandleModuleOperators)
		r.Get("/modules/{module_id}/operators/keys", h.HandleModuleOperatorsKeys)
		r.Get("/modules/{module_id}/operators/{operator_id}", h.HandleModuleOperator)

		r.Get("/status", h.HandleStatus)
	})
}

// HandleKeys serves GET /v1/keys.
func (h *Handler) HandleKeys(w http.ResponseWriter, r *http.Request) {
	filter, err := parseKeyFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.service.Keys(r.Context(), filter)
	h.respond(w, r, resp, err)
}

// HandleKeyByPubkey serves GET /v1/keys/{pubkey}.
func (h *Handler) HandleKeyByPubkey(w http.ResponseWriter, r *http.Request) {
	pubkey, err := interfaces.ParsePubkey(chi.URLParam(r, "pubkey"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.service.KeyByPubkey(r.Context(), pubkey)
	h.respond(w, r, resp, err)
}

// HandleFindKeys serves POST /v1/keys/find with an api.FindKeysRequest body.
func (h *Handler) HandleFindKeys(w http.ResponseWriter, r *http.Request) {
	var req api.FindKeysRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxFindBodySize)).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: could not decode request body: %v", interfaces.ErrInvalidQuery, err))
		return
	}

	pubkeys := make([][]byte, 0, len(req.Pubkeys))
	for _, s := range req.Pubkeys {
		pubkey, err := interfaces.ParsePubkey(s)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		pubkeys = append(pubkeys, pubkey)
	}

	resp, err := h.service.KeysByPubkeys(r.Context(), pubkeys)
	h.respond(w, r, resp, err)
}

// HandleOperators serves GET /v1/operators.
func (h *Handler) HandleOperators(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Operators(r.Context())
	h.respond(w, r, resp, err)
}

// HandleModules serves GET /v1/modules.
func (h *Handler) HandleModules(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Modules(r.Context())
	h.respond(w, r, resp, err)
}

// HandleModule serves GET /v1/modules/{module_id}.
func (h *Handler) HandleModule(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Module(r.Context(), chi.URLParam(r, "module_id"))
	h.respond(w, r, resp, err)
}

// HandleModuleOperators serves GET /v1/modules/{module_id}/operators.
func (h *Handler) HandleModuleOperators(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ModuleOperators(r.Context(), chi.URLParam(r, "module_id"))
	h.respond(w, r, resp, err)
}

// HandleModuleOperator serves GET /v1/modules/{module_id}/operators/{operator_id}.
func (h *Handler) HandleModuleOperator(w http.ResponseWriter, r *http.Request) {
	operatorIndex, err := parseUint("operator_id", chi.URLParam(r, "operator_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.service.ModuleOperator(r.Context(), chi.URLParam(r, "module_id"), operatorIndex)
	h.respond(w, r, resp, err)
}

// HandleModuleOperatorsKeys serves GET /v1/modules/{module_id}/operators/keys.
func (h *Handler) HandleModuleOperatorsKeys(w http.ResponseWriter, r *http.Request) {
	filter, err := parseKeyFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.service.ModuleOperatorsKeys(r.Context(), chi.URLParam(r, "module_id"), filter)
	h.respond(w, r, resp, err)
}

// HandleStatus serves GET /v1/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Status(r.Context())
	h.respond(w, r, resp, err)
}

func parseKeyFilter(r *http.Request) (interfaces.KeyFilter, error) {
	var filter interfaces.KeyFilter
	query := r.URL.Query()

	if s := query.Get("used"); s != "" {
		used, err := strconv.ParseBool(s)
		if err != nil {
			return filter, fmt.Errorf("%w: used must be a boolean, got %q", interfaces.ErrInvalidQuery, s)
		}
		filter.Used = &used
	}

	if s := query.Get("operatorIndex"); s != "" {
		index, err := parseUint("operatorIndex", s)
		if err != nil {
			return filter, err
		}
		filter.OperatorIndex = &index
	}

	return filter, nil
}

func parseUint(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %q", interfaces.ErrInvalidQuery, name, s)
	}
	return v, nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, resp any, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusClientClosedRequest is the nginx convention for a client that went away
// before the response was ready.
const statusClientClosedRequest = 499

func statusText(code int) string {
	if code == statusClientClosedRequest {
		return "Client Closed Request"
	}
	return http.StatusText(code)
}

// StatusCode maps a domain error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrModuleNotFound), errors.Is(err, interfaces.ErrOperatorNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrUnsupportedModuleType):
		return http.StatusNotImplemented
	case errors.Is(err, interfaces.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, "path", r.URL.Path)
		message = "Internal server error"
	} else {
		h.log.Debug("Request rejected", "err", err, "path", r.URL.Path, "status", code)
	}

	writeJSON(w, code, api.ErrorResponse{
		StatusCode: code,
		Error:      statusText(code),
		Message:    message,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// The status line is already out, a failed encode can only be dropped.
	_ = json.NewEncoder(w).Encode(v)
}
