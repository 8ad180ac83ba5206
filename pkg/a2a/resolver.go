package a2a

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// CardResolver fetches an agent card from an agent's base URL.
type CardResolver struct {
	httpClient *http.Client
	baseURL    string
	cardPath   string
}

// NewCardResolver creates a resolver for the agent at baseURL.
func NewCardResolver(baseURL string, httpClient *http.Client) *CardResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &CardResolver{
		httpClient: httpClient,
		baseURL:    baseURL,
		cardPath:   AgentCardPath,
	}
}

// GetAgentCard fetches the card published at /.well-known/agent.json.
func (r *CardResolver) GetAgentCard(ctx context.Context) (*AgentCard, error) {
	fullURL, err := url.JoinPath(r.baseURL, r.cardPath)
	if err != nil {
		return nil, &AgentCardResolutionError{URL: r.baseURL, Err: err}
	}
	fail := func(err error) (*AgentCard, error) {
		return nil, &AgentCardResolutionError{URL: fullURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fail(fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body)))
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return fail(fmt.Errorf("failed to decode agent card: %w", err))
	}
	if card.Name == "" {
		return fail(fmt.Errorf("agent card has no name"))
	}
	return &card, nil
}
