// Package venues holds the concrete volume-route adapters: the Jupiter
// aggregator (primary) and the PumpPortal trade-local builder (fallbacks).
package venues

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rawblock/snipe-engine/internal/engine"
)

// JupiterClient implements engine.DexAggregatorAdapter against the v6
// quote/swap HTTP API.
type JupiterClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewJupiterClient(baseURL string) *JupiterClient {
	return &JupiterClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type jupiterQuoteResponse struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
}

// Quote fetches a route quote. The raw response is retained verbatim and
// passed back on swap build so Jupiter applies its own routing payload.
func (c *JupiterClient) Quote(ctx context.Context, p engine.QuoteParams) (*engine.AggQuote, error) {
	q := url.Values{}
	q.Set("inputMint", p.InputMint)
	q.Set("outputMint", p.OutputMint)
	q.Set("amount", strconv.FormatUint(p.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(p.SlippageBps))

	req, err := http.NewRequestWithContext(ctx, "GET", c.BaseURL+"/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("quote: create request: %v", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("quote: %v", err)
	}

	var parsed jupiterQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("quote: unmarshal: %v", err)
	}
	inAmount, _ := strconv.ParseUint(parsed.InAmount, 10, 64)
	outAmount, err := strconv.ParseUint(parsed.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("quote: parse outAmount %q: %v", parsed.OutAmount, err)
	}
	return &engine.AggQuote{
		InputMint:  parsed.InputMint,
		OutputMint: parsed.OutputMint,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		Raw:        json.RawMessage(body),
	}, nil
}

// SwapTxBase64 builds the unsigned swap transaction for a previously fetched
// quote.
func (c *JupiterClient) SwapTxBase64(ctx context.Context, quote *engine.AggQuote, userPublicKey string, wrapAndUnwrapSol bool) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"quoteResponse":    quote.Raw,
		"userPublicKey":    userPublicKey,
		"wrapAndUnwrapSol": wrapAndUnwrapSol,
	})
	if err != nil {
		return "", fmt.Errorf("swap: marshal request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/swap", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("swap: create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("swap: %v", err)
	}
	var parsed struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("swap: unmarshal: %v", err)
	}
	if parsed.SwapTransaction == "" {
		return "", fmt.Errorf("swap: empty swapTransaction in response")
	}
	return parsed.SwapTransaction, nil
}

func (c *JupiterClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
