package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/keys-api/api"
	"github.com/ruteri/keys-api/interfaces"
)

// APIError is a non-2xx response of the keys API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keys api returned %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match the sentinel an unambiguous status code stands for.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return target == interfaces.ErrInvalidQuery
	case http.StatusNotImplemented:
		return target == interfaces.ErrUnsupportedModuleType
	case http.StatusServiceUnavailable:
		return target == interfaces.ErrStoreUnavailable
	}
	return false
}

// KeyQuery holds the optional key filters of /keys style routes.
type KeyQuery struct {
	Used          *bool
	OperatorIndex *uint64
}

func (q KeyQuery) encode() string {
	values := url.Values{}
	if q.Used != nil {
		values.Set("used", strconv.FormatBool(*q.Used))
	}
	if q.OperatorIndex != nil {
		values.Set("operatorIndex", strconv.FormatUint(*q.OperatorIndex, 10))
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// KeysClient talks to a keys API server.
type KeysClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewKeysClient creates a client for the server at baseURL (e.g. "http://localhost:8080").
// The optional timeout defaults to 30 seconds.
func NewKeysClient(baseURL string, timeout ...time.Duration) *KeysClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &KeysClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

func (c *KeysClient) Keys(ctx context.Context, query KeyQuery) (*api.KeyListResponse, error) {
	var resp api.KeyListResponse
	err := c.do(ctx, http.MethodGet, "/v1/keys"+query.encode(), nil, &resp)
	return &resp, err
}

func (c *KeysClient) KeyByPubkey(ctx context.Context, pubkey []byte) (*api.KeyListResponse, error) {
	var resp api.KeyListResponse
	err := c.do(ctx, http.MethodGet, "/v1/keys/"+hexutil.Encode(pubkey), nil, &resp)
	return &resp, err
}

func (c *KeysClient) FindKeys(ctx context.Context, pubkeys [][]byte) (*api.KeyListResponse, error) {
	req := api.FindKeysRequest{Pubkeys: make([]string, 0, len(pubkeys))}
	for _, pk := range pubkeys {
		req.Pubkeys = append(req.Pubkeys, hexutil.Encode(pk))
	}

	var resp api.KeyListResponse
	err := c.do(ctx, http.MethodPost, "/v1/keys/find", req, &resp)
	return &resp, err
}

func (c *KeysClient) Operators(ctx context.Context) (*api.GroupedByModuleOperatorListResponse, error) {
	var resp api.GroupedByModuleOperatorListResponse
	err := c.do(ctx, http.MethodGet, "/v1/operators", nil, &resp)
	return &resp, err
}

func (c *KeysClient) Modules(ctx context.Context) (*api.SRModuleListResponse, error) {
	var resp api.SRModuleListResponse
	err := c.do(ctx, http.MethodGet, "/v1/modules", nil, &resp)
	return &resp, err
}

func (c *KeysClient) Module(ctx context.Context, moduleID string) (*api.SRModuleResponse, error) {
	var resp api.SRModuleResponse
	err := c.do(ctx, http.MethodGet, "/v1/modules/"+url.PathEscape(moduleID), nil, &resp)
	return &resp, err
}

func (c *KeysClient) ModuleOperators(ctx context.Context, moduleID string) (*api.SRModuleOperatorListResponse, error) {
	var resp api.SRModuleOperatorListResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/modules/%s/operators", url.PathEscape(moduleID)), nil, &resp)
	return &resp, err
}

func (c *KeysClient) ModuleOperator(ctx context.Context, moduleID string, operatorIndex uint64) (*api.SRModuleOperatorResponse, error) {
	var resp api.SRModuleOperatorResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/modules/%s/operators/%d", url.PathEscape(moduleID), operatorIndex), nil, &resp)
	return &resp, err
}

func (c *KeysClient) ModuleOperatorsKeys(ctx context.Context, moduleID string, query KeyQuery) (*api.SRModuleOperatorsKeysResponse, error) {
	var resp api.SRModuleOperatorsKeysResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/modules/%s/operators/keys%s", url.PathEscape(moduleID), query.encode()), nil, &resp)
	return &resp, err
}

func (c *KeysClient) Status(ctx context.Context) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/status", nil, &resp)
	return &resp, err
}

func (c *KeysClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
		var errResp api.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}
