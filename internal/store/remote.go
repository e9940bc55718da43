package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"sketchpad/internal/log"
	"sketchpad/internal/sample"
)

// HTTPRemote talks to the shared training-data service over its JSON API.
type HTTPRemote struct {
	baseURL string
	client  *http.Client
}

// NewHTTPRemote returns a client for the service at baseURL. Deadlines come
// from the request contexts, so the client itself has no timeout.
func NewHTTPRemote(baseURL string, client *http.Client) *HTTPRemote {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPRemote{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type listResponse struct {
	Success bool              `json:"success"`
	Data    []json.RawMessage `json:"data"`
	Error   string            `json:"error,omitempty"`
}

type mutationResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FetchAll returns every sample the service holds. Entries that do not
// decode are skipped with a warning rather than failing the whole fetch.
func (r *HTTPRemote) FetchAll(ctx context.Context) ([]sample.TrainingSample, error) {
	var resp listResponse
	if err := r.do(ctx, http.MethodGet, "/api/data", nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("remote: fetch failed: %s", resp.Error)
	}
	out := make([]sample.TrainingSample, 0, len(resp.Data))
	for i, raw := range resp.Data {
		var ts sample.TrainingSample
		if err := json.Unmarshal(raw, &ts); err != nil {
			log.Warnf("Remote: Skipping undecodable sample %d: %v", i, err)
			continue
		}
		out = append(out, ts)
	}
	return out, nil
}

// Append posts one sample.
func (r *HTTPRemote) Append(ctx context.Context, s sample.TrainingSample) error {
	body, err := json.Marshal(s)
	if err != nil {
		return err
	}
	var resp mutationResponse
	if err := r.do(ctx, http.MethodPost, "/api/data", body, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("remote: append rejected: %s", resp.Error)
	}
	log.Debugf("Remote: Appended sample, service now holds %d", resp.Count)
	return nil
}

// Clear deletes every sample on the service.
func (r *HTTPRemote) Clear(ctx context.Context) error {
	var resp mutationResponse
	if err := r.do(ctx, http.MethodDelete, "/api/data", nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("remote: clear rejected: %s", resp.Error)
	}
	return nil
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("remote: %s %s: status %d: %s", method, path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: %s %s: decoding response: %w", method, path, err)
	}
	return nil
}
