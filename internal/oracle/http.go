package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/banshee-data/ilut/internal/httputil"
	"github.com/banshee-data/ilut/internal/lut"
)

// HTTP evaluates requests by POSTing them as JSON to a radiative-transfer
// service that answers in the same format as Command.
type HTTP struct {
	URL    string
	Client httputil.HTTPClient
}

// NewHTTP returns an HTTP oracle for url using client, or the default
// client when nil.
func NewHTTP(url string, client httputil.HTTPClient) *HTTP {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &HTTP{URL: url, Client: client}
}

// Evaluate sends one request.
func (h *HTTP) Evaluate(ctx context.Context, req Request) (lut.Outputs, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return lut.Outputs{}, fmt.Errorf("encode oracle request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return lut.Outputs{}, fmt.Errorf("build oracle request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(httpReq)
	if err != nil {
		return lut.Outputs{}, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, httputil.MaxRequestBody))
	if err != nil {
		return lut.Outputs{}, fmt.Errorf("read oracle response: %w", err)
	}
	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return lut.Outputs{}, fmt.Errorf("oracle returned %s", resp.Status)
		}
		return lut.Outputs{}, fmt.Errorf("decode oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != "" {
			return lut.Outputs{}, fmt.Errorf("oracle returned %d: %s", resp.StatusCode, out.Error)
		}
		return lut.Outputs{}, fmt.Errorf("oracle returned %d", resp.StatusCode)
	}
	return out.result()
}
