package localai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StoreClient talks to the LocalAI vector stores API
type StoreClient struct {
	BaseURL    string
	APIKey     string
	Store      string
	HTTPClient *http.Client
}

type SetRequest struct {
	Store  string      `json:"store,omitempty"`
	Keys   [][]float32 `json:"keys"`
	Values []string    `json:"values"`
}

type DeleteRequest struct {
	Store string      `json:"store,omitempty"`
	Keys  [][]float32 `json:"keys"`
}

type FindRequest struct {
	Store string    `json:"store,omitempty"`
	TopK  int       `json:"topk"`
	Key   []float32 `json:"key"`
}

type FindResponse struct {
	Keys         [][]float32 `json:"keys"`
	Values       []string    `json:"values"`
	Similarities []float32   `json:"similarities"`
}

func NewStoreClient(baseURL, apiKey string) *StoreClient {
	return &StoreClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		HTTPClient: &http.Client{},
	}
}

func (c *StoreClient) Set(ctx context.Context, req SetRequest) error {
	req.Store = c.Store
	return c.do(ctx, "/stores/set", req, nil)
}

func (c *StoreClient) Delete(ctx context.Context, req DeleteRequest) error {
	req.Store = c.Store
	return c.do(ctx, "/stores/delete", req, nil)
}

func (c *StoreClient) Find(ctx context.Context, req FindRequest) (*FindResponse, error) {
	req.Store = c.Store
	resp := &FindResponse{}
	if err := c.do(ctx, "/stores/find", req, resp); err != nil {
		return nil, err
	}
	if len(resp.Values) != len(resp.Similarities) {
		return nil, fmt.Errorf("malformed find response: %d values, %d similarities", len(resp.Values), len(resp.Similarities))
	}
	return resp, nil
}

func (c *StoreClient) do(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
