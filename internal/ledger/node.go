package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// NodeClient implements Client against a GOSH node's HTTP API.
type NodeClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Compile-time check that NodeClient implements Client.
var _ Client = (*NodeClient)(nil)

// NewNodeClient creates a ledger client for the given node endpoint.
func NewNodeClient(baseURL string, logger *slog.Logger) *NodeClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// QueryState fetches account state. A 404 means the address does not exist
// yet and is reported as (nil, nil), not an error.
func (c *NodeClient) QueryState(ctx context.Context, address string) (*State, error) {
	url := fmt.Sprintf("%s/accounts/%s", c.baseURL, address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build state request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query state %s: %w", address, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("query state %s: node returned %d: %s", address, resp.StatusCode, bytes.TrimSpace(body))
	}

	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", address, err)
	}
	if state.Address == "" {
		state.Address = address
	}
	return &state, nil
}

type submitRequest struct {
	Kind   OpKind            `json:"kind"`
	Params map[string]string `json:"params"`
	Signer string            `json:"signer_pubkey"`
}

// SubmitOperation posts an operation to the node. A 2xx response means the
// node accepted it for asynchronous processing, nothing more.
func (c *NodeClient) SubmitOperation(ctx context.Context, kind OpKind, params map[string]string, creds Credentials) error {
	payload, err := json.Marshal(submitRequest{Kind: kind, Params: params, Signer: creds.Pubkey})
	if err != nil {
		return fmt.Errorf("encode operation: %w", err)
	}

	url := c.baseURL + "/operations"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("submit %s: node returned %d: %s", kind, resp.StatusCode, bytes.TrimSpace(body))
	}

	c.logger.Debug("operation submitted", "kind", kind)
	return nil
}
