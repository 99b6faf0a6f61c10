package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Client is a thin JSON-RPC 2.0 client for a Solana node. Every method maps
// to exactly one RPC call; retry policy lives with the callers, which know
// whether a miss is an error or a policy decision.
type Client struct {
	URL  string
	HTTP *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		URL:  url,
		HTTP: &http.Client{Timeout: 30 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	reqBody, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%s: marshal request: %v", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("%s: create request: %v", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: http request: %v", method, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %v", method, err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return fmt.Errorf("%s: http %d: %s", method, httpResp.StatusCode, truncate(body, 200))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("%s: unmarshal rpc response: %v", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: rpc %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return fmt.Errorf("%s: unmarshal result: %v", method, err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// GetLatestBlockhash returns the current blockhash at the given commitment.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment string) (string, error) {
	var res struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []interface{}{map[string]string{"commitment": commitment}}
	if err := c.call(ctx, "getLatestBlockhash", params, &res); err != nil {
		return "", err
	}
	if res.Value.Blockhash == "" {
		return "", fmt.Errorf("getLatestBlockhash: empty blockhash")
	}
	return res.Value.Blockhash, nil
}

// GetTransaction fetches a confirmed transaction with json encoding. A nil
// result with nil error means the node does not (yet) know the signature.
func (c *Client) GetTransaction(ctx context.Context, signature, commitment string) (*TransactionResult, error) {
	var res *TransactionResult
	params := []interface{}{
		signature,
		map[string]interface{}{
			"commitment":                     commitment,
			"encoding":                       "json",
			"maxSupportedTransactionVersion": 0,
		},
	}
	if err := c.call(ctx, "getTransaction", params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

type rawAccount struct {
	Owner    string   `json:"owner"`
	Lamports uint64   `json:"lamports"`
	Data     []string `json:"data"` // [base64, "base64"]
}

func (r *rawAccount) decode() (*AccountInfo, error) {
	if r == nil {
		return nil, nil
	}
	var data []byte
	if len(r.Data) > 0 && r.Data[0] != "" {
		decoded, err := base64.StdEncoding.DecodeString(r.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %v", err)
		}
		data = decoded
	}
	return &AccountInfo{Owner: r.Owner, Data: data, Lamports: r.Lamports}, nil
}

// GetAccountInfo returns the account at pubkey, or nil if it does not exist.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey, commitment string) (*AccountInfo, error) {
	var res struct {
		Value *rawAccount `json:"value"`
	}
	params := []interface{}{
		pubkey,
		map[string]string{"commitment": commitment, "encoding": "base64"},
	}
	if err := c.call(ctx, "getAccountInfo", params, &res); err != nil {
		return nil, err
	}
	return res.Value.decode()
}

// GetMultipleAccounts returns accounts in the same order as pubkeys, with nil
// entries for missing accounts.
func (c *Client) GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error) {
	var res struct {
		Value []*rawAccount `json:"value"`
	}
	params := []interface{}{
		pubkeys,
		map[string]string{"encoding": "base64"},
	}
	if err := c.call(ctx, "getMultipleAccounts", params, &res); err != nil {
		return nil, err
	}
	out := make([]*AccountInfo, len(res.Value))
	for i, raw := range res.Value {
		info, err := raw.decode()
		if err != nil {
			return nil, err
		}
		out[i] = info
	}
	return out, nil
}

// GetTokenSupply returns the raw integer supply of a mint.
func (c *Client) GetTokenSupply(ctx context.Context, mint string) (uint64, int, error) {
	var res struct {
		Value TokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []interface{}{mint}, &res); err != nil {
		return 0, 0, err
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("getTokenSupply: parse amount %q: %v", res.Value.Amount, err)
	}
	return amount, res.Value.Decimals, nil
}

// GetTokenLargestAccounts returns up to 20 largest holders of a mint.
func (c *Client) GetTokenLargestAccounts(ctx context.Context, mint string) ([]LargestAccount, error) {
	var res struct {
		Value []LargestAccount `json:"value"`
	}
	if err := c.call(ctx, "getTokenLargestAccounts", []interface{}{mint}, &res); err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetSignaturesForAddress returns recent signatures mentioning pubkey.
func (c *Client) GetSignaturesForAddress(ctx context.Context, pubkey string, limit int, commitment string) ([]SignatureInfo, error) {
	var res []SignatureInfo
	params := []interface{}{
		pubkey,
		map[string]interface{}{"limit": limit, "commitment": commitment},
	}
	if err := c.call(ctx, "getSignaturesForAddress", params, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// SendRawTransaction submits base64-encoded signed transaction bytes and
// returns the signature. Used by the edge only; bundles go to the block engine.
func (c *Client) SendRawTransaction(ctx context.Context, txBase64 string, skipPreflight bool) (string, error) {
	var sig string
	params := []interface{}{
		txBase64,
		map[string]interface{}{"encoding": "base64", "skipPreflight": skipPreflight},
	}
	if err := c.call(ctx, "sendTransaction", params, &sig); err != nil {
		return "", err
	}
	return sig, nil
}
