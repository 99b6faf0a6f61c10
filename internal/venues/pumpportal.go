package venues

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"

	"github.com/rawblock/snipe-engine/internal/engine"
)

// PumpPortalClient implements engine.TradeLocalAdapter against a
// trade-local endpoint. The upstream returns serialized unsigned
// transactions in whichever encoding it pleases; this adapter normalizes
// everything to base64.
type PumpPortalClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewPumpPortalClient(baseURL string) *PumpPortalClient {
	return &PumpPortalClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// TradeTxBase64 requests an unsigned trade transaction for the given pool.
func (c *PumpPortalClient) TradeTxBase64(ctx context.Context, p engine.TradeLocalParams) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"publicKey":        p.Owner,
		"action":           p.Action,
		"mint":             p.Mint,
		"amount":           p.Amount,
		"denominatedInSol": fmt.Sprintf("%v", p.DenominatedInSol),
		"slippage":         p.SlippagePercent,
		"priorityFee":      p.PriorityFeeSol,
		"pool":             p.Pool,
	})
	if err != nil {
		return "", fmt.Errorf("trade-local: marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/trade-local", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("trade-local: create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("trade-local: http request: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("trade-local: read body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > 200 {
			body = body[:200]
		}
		return "", fmt.Errorf("trade-local: http %d: %s", resp.StatusCode, body)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("trade-local: empty response")
	}
	return normalizeTxEncoding(body), nil
}

// normalizeTxEncoding maps a response body that may be base64 text, base58
// text, or raw transaction bytes onto base64.
func normalizeTxEncoding(body []byte) string {
	text := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(body)), `"`))
	if _, err := base64.StdEncoding.DecodeString(text); err == nil && text != "" {
		return text
	}
	if decoded := base58.Decode(text); len(decoded) > 0 {
		return base64.StdEncoding.EncodeToString(decoded)
	}
	return base64.StdEncoding.EncodeToString(body)
}
