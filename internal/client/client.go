// Package client is a thin Go client for the vexd HTTP API, used by the CLI
// subcommands and the interactive TUI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client talks to one vexd server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL (e.g. "http://127.0.0.1:8080").
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Upload enqueues content for batched indexing.
func (c *Client) Upload(ctx context.Context, content string) error {
	var ack struct {
		Message string `json:"message"`
	}
	return c.post(ctx, "/upload", map[string]string{"content": content}, http.StatusAccepted, &ack)
}

// UploadSync embeds and inserts content synchronously, returning the
// assigned id.
func (c *Client) UploadSync(ctx context.Context, content string) (uint32, error) {
	var resp struct {
		ID uint32 `json:"id"`
	}
	if err := c.post(ctx, "/upload_old", map[string]string{"content": content}, http.StatusOK, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// Search returns up to topK document contents, best match first. A server
// 404 (empty index or no matches) yields an empty slice, not an error.
func (c *Client) Search(ctx context.Context, query string, topK uint) ([]string, error) {
	body, err := json.Marshal(struct {
		Query string `json:"query"`
		TopK  uint   `json:"top_k"`
	}{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("search", resp)
	}

	// The response maps result_1..result_k to contents; recover the order
	// from the key suffix.
	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}
	type ranked struct {
		rank    int
		content string
	}
	hits := make([]ranked, 0, len(raw))
	for key, content := range raw {
		n, err := strconv.Atoi(strings.TrimPrefix(key, "result_"))
		if err != nil {
			continue
		}
		hits = append(hits, ranked{rank: n, content: content})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].rank < hits[j].rank })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.content
	}
	return out, nil
}

// Stats mirrors the server's /stats body.
type Stats struct {
	Documents    int    `json:"documents"`
	NextID       uint32 `json:"next_id"`
	Dim          int    `json:"dim"`
	LayerNodes   []int  `json:"layer_nodes"`
	QueueDepth   int    `json:"queue_depth"`
	Batches      int    `json:"batches"`
	Inserted     int    `json:"inserted"`
	DroppedBatch int    `json:"dropped_batches"`
}

// Stats fetches index and ingest counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("stats", resp)
	}
	var st Stats
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("stats: decode: %w", err)
	}
	return &st, nil
}

// post sends v as JSON and decodes the response into out when the status
// matches want.
func (c *Client) post(ctx context.Context, path string, v interface{}, want int, out interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(path, resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode: %w", path, err)
		}
	}
	return nil
}

// statusError builds an error from a non-success response, including any
// server-side error message.
func statusError(what string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(msg, &body) == nil && body.Error != "" {
		return fmt.Errorf("%s: %s (status %d)", what, body.Error, resp.StatusCode)
	}
	return fmt.Errorf("%s: unexpected status %d", what, resp.StatusCode)
}
