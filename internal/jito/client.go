// Package jito implements the block-engine JSON-RPC client used for bundle
// simulation and submission, including the 30-minute tip-account cache.
package jito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/rawblock/snipe-engine/internal/engine"
)

const (
	maxAttempts    = 3
	baseRetryDelay = 400 * time.Millisecond
	retryJitterMs  = 200

	// TipCacheTTL bounds how long a tip-account fetch is reused before one
	// refresh is attempted. Stale entries serve on refresh failure.
	TipCacheTTL = 30 * time.Minute
)

type tipCacheEntry struct {
	accounts  []string
	fetchedAt time.Time
}

// Client talks JSON-RPC 2.0 to a block-engine endpoint per cluster. Only 429
// responses are retried; every other failure surfaces immediately.
type Client struct {
	urls map[engine.Cluster]string
	http *http.Client

	mu       sync.Mutex
	tipCache map[engine.Cluster]tipCacheEntry

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewClient(urls map[engine.Cluster]string) *Client {
	return &Client{
		urls:     urls,
		http:     &http.Client{Timeout: 30 * time.Second},
		tipCache: make(map[engine.Cluster]tipCacheEntry),
		nowFn:    time.Now,
		sleepFn:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, cluster engine.Cluster, method string, params []interface{}) (json.RawMessage, error) {
	url := c.urls[cluster]
	if url == "" {
		return nil, fmt.Errorf("%s: no block-engine endpoint for cluster %s", method, cluster)
	}
	reqBody, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %v", method, err)
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("%s: create request: %v", method, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%s: http request: %v", method, err)
		}
		body, readErr := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		if readErr != nil {
			return nil, fmt.Errorf("%s: read body: %v", method, readErr)
		}

		if httpResp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			delay := baseRetryDelay<<(attempt-1) + time.Duration(rand.Intn(retryJitterMs))*time.Millisecond
			log.Printf("[Jito] %s rate-limited, retrying in %v (attempt %d/%d)", method, delay, attempt, maxAttempts)
			if err := c.sleepFn(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}
		if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
			return nil, fmt.Errorf("%s: http %d: %s", method, httpResp.StatusCode, decodeErrorMessage(body))
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return nil, fmt.Errorf("%s: unmarshal response: %v", method, err)
		}
		if rpcResp.Error != nil {
			return nil, fmt.Errorf("%s: rpc %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
		}
		return rpcResp.Result, nil
	}
	return nil, fmt.Errorf("%s: rate-limited after %d attempts", method, maxAttempts)
}

func decodeErrorMessage(body []byte) string {
	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err == nil && rpcResp.Error != nil {
		return rpcResp.Error.Message
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

// GetTipAccounts returns the validator tip accounts, cached for TipCacheTTL.
// Within the TTL no network I/O happens; after it, exactly one refresh is
// attempted and the stale list serves when that refresh fails.
func (c *Client) GetTipAccounts(ctx context.Context, cluster engine.Cluster) ([]string, error) {
	now := c.nowFn()

	c.mu.Lock()
	cached, ok := c.tipCache[cluster]
	c.mu.Unlock()
	if ok && now.Sub(cached.fetchedAt) < TipCacheTTL {
		return cached.accounts, nil
	}

	result, err := c.call(ctx, cluster, "getTipAccounts", []interface{}{})
	if err != nil {
		if ok {
			log.Printf("[Jito] tip account refresh failed, serving stale cache: %v", err)
			return cached.accounts, nil
		}
		return nil, err
	}
	var accounts []string
	if err := json.Unmarshal(result, &accounts); err != nil {
		return nil, fmt.Errorf("getTipAccounts: unmarshal result: %v", err)
	}

	c.mu.Lock()
	c.tipCache[cluster] = tipCacheEntry{accounts: accounts, fetchedAt: now}
	c.mu.Unlock()
	return accounts, nil
}

// SimulateBundle dry-runs an ordered base58 transaction sequence.
func (c *Client) SimulateBundle(ctx context.Context, cluster engine.Cluster, txsBase58 []string) (json.RawMessage, error) {
	return c.call(ctx, cluster, "simulateBundle", []interface{}{txsBase58})
}

// SendBundle submits an ordered base58 transaction sequence atomically.
func (c *Client) SendBundle(ctx context.Context, cluster engine.Cluster, txsBase58 []string) (json.RawMessage, error) {
	return c.call(ctx, cluster, "sendBundle", []interface{}{txsBase58})
}

// GetBundleStatuses polls the status of previously submitted bundles.
func (c *Client) GetBundleStatuses(ctx context.Context, cluster engine.Cluster, ids []string) (json.RawMessage, error) {
	return c.call(ctx, cluster, "getBundleStatuses", []interface{}{ids})
}
