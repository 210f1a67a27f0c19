// Package search provides the web-search tool collaborator backed by the
// Tavily API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.tavily.com/search"

// maxRateLimitRetries bounds 429 retries per search. Beyond this the request
// fails, which reaches the model as an ordinary tool error.
const maxRateLimitRetries = 3

// TavilyClient calls the Tavily search API. Requests ask for a single result
// with an answer summary, matching the assistant's one-shot lookup pattern.
type TavilyClient struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	backoffBase time.Duration
}

// NewTavilyClient constructs a Tavily client with a 10 second timeout.
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		backoffBase: time.Second,
	}
}

// NewTavilyClientWithHTTP constructs a Tavily client using the supplied HTTP
// client and base URL. Used by tests and for overriding the default timeout.
func NewTavilyClientWithHTTP(apiKey string, client *http.Client, baseURL string) *TavilyClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &TavilyClient{apiKey: apiKey, baseURL: baseURL, client: client, backoffBase: time.Second}
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearchAnswer posts a query to Tavily and returns a short text result: the
// API's answer summary when present, otherwise the top result's content.
func (t *TavilyClient) SearchAnswer(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return "", errors.New("tavily: API key is missing")
	}

	body := map[string]any{
		"query":          query,
		"api_key":        t.apiKey,
		"max_results":    1,
		"include_answer": true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	var resp *http.Response
	delay := t.backoffBase
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(payload))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			return "", err
		}

		if resp.StatusCode != http.StatusTooManyRequests || attempt >= maxRateLimitRetries {
			break
		}
		resp.Body.Close()

		// Rate limited. Retry with a doubling delay.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var response tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", err
	}

	if answer := strings.TrimSpace(response.Answer); answer != "" {
		return answer, nil
	}
	if len(response.Results) > 0 {
		r := response.Results[0]
		return fmt.Sprintf("%s (%s): %s", r.Title, r.URL, r.Content), nil
	}
	return "", fmt.Errorf("tavily: no results for %q", query)
}
