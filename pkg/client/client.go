package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/mudler/hybridrecall/rag/types"
)

// Client is a client for the hybrid search API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// SearchRequest holds the parameters of a hybrid search. Nil fields take the server defaults.
type SearchRequest struct {
	Query             string   `json:"query"`
	Limit             *int     `json:"limit,omitempty"`
	OverrequestFactor *float64 `json:"overrequest_factor,omitempty"`
	VectorPriority    *float64 `json:"vector_priority,omitempty"`
	TextPriority      *float64 `json:"text_priority,omitempty"`
}

// APIError is returned when the server answers with an unexpected status
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{},
	}
}

func (c *Client) collectionURL(collection string, parts ...string) string {
	u := fmt.Sprintf("%s/api/collections/%s", c.BaseURL, url.PathEscape(collection))
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) do(method, endpoint string, body any, expectedStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var msg map[string]string
		if json.NewDecoder(resp.Body).Decode(&msg) == nil {
			apiErr.Message = msg["error"]
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateCollection creates a new collection
func (c *Client) CreateCollection(name string) error {
	type request struct {
		Name string `json:"name"`
	}

	return c.do(http.MethodPost, fmt.Sprintf("%s/api/collections", c.BaseURL), request{Name: name}, http.StatusCreated, nil)
}

// ListCollections lists all collections
func (c *Client) ListCollections() ([]string, error) {
	var collections []string
	err := c.do(http.MethodGet, fmt.Sprintf("%s/api/collections", c.BaseURL), nil, http.StatusOK, &collections)
	return collections, err
}

// Store adds documents to a collection and returns them with their IDs
func (c *Client) Store(collection string, docs ...types.DocumentRef) ([]types.DocumentRef, error) {
	var stored []types.DocumentRef
	err := c.do(http.MethodPost, c.collectionURL(collection, "documents"), docs, http.StatusOK, &stored)
	return stored, err
}

// ListDocuments lists the documents of a collection
func (c *Client) ListDocuments(collection string) ([]types.DocumentRef, error) {
	var docs []types.DocumentRef
	err := c.do(http.MethodGet, c.collectionURL(collection, "documents"), nil, http.StatusOK, &docs)
	return docs, err
}

// GetDocument returns a single document of a collection
func (c *Client) GetDocument(collection, id string) (types.DocumentRef, error) {
	var doc types.DocumentRef
	err := c.do(http.MethodGet, c.collectionURL(collection, "documents", id), nil, http.StatusOK, &doc)
	return doc, err
}

// DeleteDocument removes a document from a collection
func (c *Client) DeleteDocument(collection, id string) error {
	return c.do(http.MethodDelete, c.collectionURL(collection, "documents", id), nil, http.StatusOK, nil)
}

// Search runs a hybrid search on a collection
func (c *Client) Search(collection string, req SearchRequest) ([]types.FusedResult, error) {
	var results []types.FusedResult
	err := c.do(http.MethodPost, c.collectionURL(collection, "search"), req, http.StatusOK, &results)
	return results, err
}

// Reset removes every document from a collection
func (c *Client) Reset(collection string) error {
	return c.do(http.MethodPost, c.collectionURL(collection, "reset"), nil, http.StatusOK, nil)
}
