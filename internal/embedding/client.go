// Package embedding wraps the hosted inference endpoint that maps text to
// fixed-length vectors.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"notebook-rag/internal/config"
)

var (
	// ErrUnavailable is returned once every attempt against the provider has
	// been exhausted. A missing vector is fatal for the unit of work; callers
	// must not treat it as an empty vector.
	ErrUnavailable = errors.New("embedding service unavailable")

	// ErrBadResponse marks a provider response outside the recognized shapes.
	ErrBadResponse = errors.New("unrecognized embedding response")
)

// Client is a stateless embedding client, safe for concurrent use. Transient
// failures are retried on a fixed-delay schedule up to the configured number
// of attempts.
type Client struct {
	url        string
	token      string
	retries    int
	retryDelay time.Duration
	dimension  int
	httpClient *http.Client
}

func NewClient(cfg config.EmbeddingConfig) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryDelayMS <= 0 {
		cfg.RetryDelayMS = 2000
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		// One attempt never outlives its slot in the retry budget.
		timeout = time.Duration(cfg.RetryDelayMS)*time.Millisecond + 10*time.Second
	}
	return &Client{
		url:        cfg.URL,
		token:      cfg.Token,
		retries:    cfg.Retries,
		retryDelay: time.Duration(cfg.RetryDelayMS) * time.Millisecond,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Embed maps text to a flat vector of the provider's dimensionality.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	op := func() error {
		vec, err := c.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		vector = vec
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), uint64(c.retries-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, ErrBadResponse) {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, c.retries, err)
	}
	return vector, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		log.Warn().Dur("delay", c.retryDelay).Msg("embedding service temporarily unavailable, retrying")
		return nil, fmt.Errorf("embedding service busy: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	vec, err := decodeVector(data)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	if c.dimension > 0 && len(vec) != c.dimension {
		return nil, backoff.Permanent(fmt.Errorf("%w: got %d dimensions, want %d",
			ErrBadResponse, len(vec), c.dimension))
	}
	return vec, nil
}

// decodeVector normalizes the provider's three documented response shapes
// into a flat vector: the vector itself, a single vector wrapped in an outer
// array, or a keyed object {"embeddings": [...]}. Anything else is rejected
// rather than guessed at.
func decodeVector(data []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(data, &flat); err == nil {
		if len(flat) == 0 {
			return nil, fmt.Errorf("%w: empty vector", ErrBadResponse)
		}
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(data, &nested); err == nil {
		if len(nested) == 0 || len(nested[0]) == 0 {
			return nil, fmt.Errorf("%w: empty nested vector", ErrBadResponse)
		}
		return nested[0], nil
	}

	var keyed struct {
		Embeddings []float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(data, &keyed); err == nil && len(keyed.Embeddings) > 0 {
		return keyed.Embeddings, nil
	}

	return nil, ErrBadResponse
}
