// Package directory implements the Directory Client (spec §4.4): entity
// similarity lookup and atomic transactional inserts against the
// external directory/store service. Like pkg/llmclient, it is a plain
// net/http JSON client grounded on the teacher's pkg/runbook.GitHubClient
// — the teacher's own directory-adjacent service calls went through
// generated gRPC stubs that were not retrieved with this pack (see
// DESIGN.md).
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/newsgraph/extractor/pkg/httpretry"
)

// Typed failures (spec §4.4).
var (
	ErrUnavailable     = errors.New("directory: service unavailable")
	ErrValidation      = errors.New("directory: validation rejected the payload")
)

const (
	// SimilarityThreshold is the default similarity cutoff for
	// find_similar_entity (spec §4.4, §4.8).
	SimilarityThreshold = 0.8
	// MaxCandidates bounds how many similarity matches are returned.
	MaxCandidates = 5
)

// Candidate is one similarity match for find_similar_entity.
type Candidate struct {
	ID            string  `json:"id"`
	CanonicalName string  `json:"canonical_name"`
	Score         float64 `json:"score"`
	URI           string  `json:"uri,omitempty"`
}

// InsertResult is the response shape for atomic_insert_article and
// atomic_insert_fragment.
type InsertResult struct {
	Status      string         `json:"status"`
	InsertedIDs map[string]any `json:"inserted_ids"`
	Counts      map[string]int `json:"counts"`
}

// Client is a singleton connection to the directory/store service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	policy     httpretry.Policy
	logger     *slog.Logger
}

// New creates a Client for the directory service at baseURL.
func New(baseURL, apiKey string, policy httpretry.Policy, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		apiKey:     apiKey,
		policy:     policy,
		logger:     logger,
	}
}

// Ping checks whether the directory service is reachable, for the
// health endpoint's upstream check. Any HTTP response counts as
// reachable; only transport-level failures are reported as unreachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("directory: building ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	return nil
}

// FindSimilarEntity returns up to MaxCandidates matches for name/type at
// or above threshold, sorted by descending score (spec §4.4, §4.8).
func (c *Client) FindSimilarEntity(ctx context.Context, name, entityType string, threshold float64) ([]Candidate, error) {
	reqBody := map[string]any{
		"name":      name,
		"type":      entityType,
		"threshold": threshold,
	}
	var candidates []Candidate
	err := c.doJSON(ctx, http.MethodPost, "/find_similar_entity", reqBody, &candidates)
	if err != nil {
		return nil, err
	}

	filtered := candidates[:0]
	for _, cand := range candidates {
		if cand.Score >= threshold {
			filtered = append(filtered, cand)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	if len(filtered) > MaxCandidates {
		filtered = filtered[:MaxCandidates]
	}
	return filtered, nil
}

// AtomicInsertArticle submits a fully assembled article payload for
// transactional insert.
func (c *Client) AtomicInsertArticle(ctx context.Context, payload json.RawMessage) (*InsertResult, error) {
	return c.atomicInsert(ctx, "/atomic_insert_article", payload)
}

// AtomicInsertFragment submits a fully assembled fragment payload for
// transactional insert.
func (c *Client) AtomicInsertFragment(ctx context.Context, payload json.RawMessage) (*InsertResult, error) {
	return c.atomicInsert(ctx, "/atomic_insert_fragment", payload)
}

func (c *Client) atomicInsert(ctx context.Context, path string, payload json.RawMessage) (*InsertResult, error) {
	var result InsertResult
	if err := c.doJSON(ctx, http.MethodPost, path, payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// doJSON executes an HTTP call with bounded retry on transport/transient
// failures and no retry on validation (4xx other than 429) errors (spec
// §4.4: "never retry on validation errors").
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("directory: encoding request: %w", err)
	}

	var respData []byte
	err = httpretry.Do(ctx, c.policy, func(ctx context.Context) (httpretry.Action, error) {
		data, action, err := c.callOnce(ctx, method, path, payload)
		if err != nil {
			return action, err
		}
		respData = data
		return httpretry.NoRetry, nil
	})
	if err != nil {
		return err
	}

	if respBody != nil && len(respData) > 0 {
		if err := json.Unmarshal(respData, respBody); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
	}
	return nil
}

func (c *Client) callOnce(ctx context.Context, method, path string, payload []byte) ([]byte, httpretry.Action, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, httpretry.NoRetry, fmt.Errorf("directory: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, httpretry.ClassifyError(err), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpretry.Retry, fmt.Errorf("directory: reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, httpretry.Retry, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, httpretry.NoRetry, fmt.Errorf("%w: status %d: %s", ErrValidation, resp.StatusCode, string(data))
	}
	return data, httpretry.NoRetry, nil
}
