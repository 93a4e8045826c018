package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const providerHTTPTimeout = 60 * time.Second

// HTTPProvider calls the hosted enrichment/skip-trace/AI functions over
// HTTP. Each endpoint takes the lead id and the submission input and returns
// the opaque result payload, or a non-2xx status on failure.
type HTTPProvider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider client for the given base URL.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: providerHTTPTimeout},
	}
}

type providerRequest struct {
	LeadID string          `json:"leadId"`
	Input  json.RawMessage `json:"input,omitempty"`
}

func (p *HTTPProvider) call(ctx context.Context, path string, leadID uuid.UUID, input json.RawMessage) (json.RawMessage, error) {
	body, err := json.Marshal(providerRequest{LeadID: leadID.String(), Input: input})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider %s returned status %d: %s", path, resp.StatusCode, truncate(string(payload), 200))
	}

	return payload, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Enrich implements EnrichmentProvider.
func (p *HTTPProvider) Enrich(ctx context.Context, leadID uuid.UUID, input json.RawMessage) (json.RawMessage, error) {
	return p.call(ctx, "/enrich", leadID, input)
}

// Trace implements SkipTraceProvider.
func (p *HTTPProvider) Trace(ctx context.Context, leadID uuid.UUID, input json.RawMessage) (json.RawMessage, error) {
	return p.call(ctx, "/skip-trace", leadID, input)
}

// RunTask implements AITaskProvider.
func (p *HTTPProvider) RunTask(ctx context.Context, leadID uuid.UUID, input json.RawMessage) (json.RawMessage, error) {
	return p.call(ctx, "/ai-task", leadID, input)
}

var (
	_ EnrichmentProvider = (*HTTPProvider)(nil)
	_ SkipTraceProvider  = (*HTTPProvider)(nil)
	_ AITaskProvider     = (*HTTPProvider)(nil)
)
