// Package client implements the record store interfaces over the store
// server's HTTP and WebSocket surface, so the core components stay
// transport-agnostic.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
)

type wireRecord struct {
	ID        string         `json:"id"`
	Partition string         `json:"partition"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (r wireRecord) toRecord() store.Record {
	return store.Record{
		ID:        r.ID,
		Partition: r.Partition,
		Fields:    r.Fields,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type recordsEnvelope struct {
	Records []wireRecord `json:"records"`
}

type mutationPayload struct {
	Fields map[string]any `json:"fields"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for queries and mutations.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// Client talks to a record store server. It implements store.Store.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client against the server's base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get runs a point query.
func (c *Client) Get(ctx context.Context, q store.Query) ([]store.Record, error) {
	var envelope recordsEnvelope
	if err := c.do(ctx, http.MethodPost, "/v1/query", q, &envelope); err != nil {
		return nil, err
	}
	records := make([]store.Record, len(envelope.Records))
	for i, rec := range envelope.Records {
		records[i] = rec.toRecord()
	}
	return records, nil
}

// Create inserts a record into the partition.
func (c *Client) Create(ctx context.Context, partition string, fields map[string]any) (store.Record, error) {
	var rec wireRecord
	path := fmt.Sprintf("/v1/partitions/%s/records", partition)
	if err := c.do(ctx, http.MethodPost, path, mutationPayload{Fields: fields}, &rec); err != nil {
		return store.Record{}, err
	}
	return rec.toRecord(), nil
}

// Update merges the supplied fields into an existing record.
func (c *Client) Update(ctx context.Context, partition, recordID string, fields map[string]any) (store.Record, error) {
	var rec wireRecord
	path := fmt.Sprintf("/v1/partitions/%s/records/%s", partition, recordID)
	if err := c.do(ctx, http.MethodPatch, path, mutationPayload{Fields: fields}, &rec); err != nil {
		return store.Record{}, err
	}
	return rec.toRecord(), nil
}

// Delete removes a record from the partition.
func (c *Client) Delete(ctx context.Context, partition, recordID string) error {
	path := fmt.Sprintf("/v1/partitions/%s/records/%s", partition, recordID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeStoreUnavailable, "encode request", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "call record store", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeStoreUnavailable, "decode response", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var envelope errorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
		return apperrors.New(apperrors.CodeStoreUnavailable, fmt.Sprintf("record store status %d", resp.StatusCode))
	}
	return apperrors.New(apperrors.Code(envelope.Error.Code), envelope.Error.Message)
}
