package chainclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solcron/keeper/internal/keeperr"
)

// HTTPClient is a ChainClient backed by a JSON-RPC 2.0 endpoint at
// "confirmed" commitment (spec.md §6.3). There is no Solana SDK in the
// retrieved corpus to depend on, so this is a hand-rolled minimal
// client: just enough method coverage for the RPC Manager's facade
// (spec.md §4.1) to exercise over net/http.
type HTTPClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewHTTPClient builds a client against url with the given request
// timeout.
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return keeperr.Wrap(keeperr.KindSerialization, "encode rpc request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return keeperr.Wrap(keeperr.KindRPC, "build rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return keeperr.Wrap(keeperr.KindRPC, fmt.Sprintf("call %s", method), err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return keeperr.Wrap(keeperr.KindRPC, fmt.Sprintf("decode %s response", method), err)
	}
	if rpcResp.Error != nil {
		return keeperr.New(keeperr.KindRPC, fmt.Sprintf("%s: %s", method, rpcResp.Error.Message))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return keeperr.Wrap(keeperr.KindSerialization, fmt.Sprintf("unmarshal %s result", method), err)
	}
	return nil
}

func (c *HTTPClient) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", []any{map[string]string{"commitment": "confirmed"}}, &result); err != nil {
		return [32]byte{}, err
	}
	return decodeBase58Array32(result.Value.Blockhash)
}

func (c *HTTPClient) SendAndConfirm(ctx context.Context, tx *Transaction) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(serializeMessage(tx.Message))
	var signature string
	if err := c.call(ctx, "sendTransaction", []any{encoded, map[string]string{"encoding": "base64", "preflightCommitment": "confirmed"}}, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

func (c *HTTPClient) Simulate(ctx context.Context, tx *Transaction) (*SimulationResult, error) {
	encoded := base64.StdEncoding.EncodeToString(serializeMessage(tx.Message))
	var result struct {
		Value struct {
			Err  any      `json:"err"`
			Logs []string `json:"logs"`
		} `json:"value"`
	}
	if err := c.call(ctx, "simulateTransaction", []any{encoded, map[string]string{"encoding": "base64", "commitment": "confirmed"}}, &result); err != nil {
		return nil, err
	}
	sim := &SimulationResult{Logs: result.Value.Logs}
	if result.Value.Err != nil {
		sim.Err = fmt.Errorf("%v", result.Value.Err)
	}
	return sim, nil
}

func (c *HTTPClient) GetAccount(ctx context.Context, pubkey [32]byte) (*Account, error) {
	var result struct {
		Value *struct {
			Owner    string `json:"owner"`
			Lamports uint64 `json:"lamports"`
			Data     []any  `json:"data"`
		} `json:"value"`
	}
	addr := base58.Encode(pubkey[:])
	if err := c.call(ctx, "getAccountInfo", []any{addr, map[string]string{"encoding": "base64", "commitment": "confirmed"}}, &result); err != nil {
		return nil, err
	}
	// An "account not found" response is a successful nil Value, not an
	// error — spec.md §4.1 requires this maps to a successful None.
	if result.Value == nil {
		return nil, nil
	}

	owner, err := decodeBase58Array32(result.Value.Owner)
	if err != nil {
		return nil, err
	}

	var data []byte
	if len(result.Value.Data) > 0 {
		if encoded, ok := result.Value.Data[0].(string); ok {
			data, _ = base64Decode(encoded)
		}
	}

	return &Account{Owner: owner, Lamports: result.Value.Lamports, Data: data}, nil
}

func (c *HTTPClient) GetMultipleAccounts(ctx context.Context, pubkeys [][32]byte) ([]*Account, error) {
	accounts := make([]*Account, len(pubkeys))
	for i, pk := range pubkeys {
		acc, err := c.GetAccount(ctx, pk)
		if err != nil {
			return nil, err
		}
		accounts[i] = acc
	}
	return accounts, nil
}

func (c *HTTPClient) GetBalance(ctx context.Context, pubkey [32]byte) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	addr := base58.Encode(pubkey[:])
	if err := c.call(ctx, "getBalance", []any{addr, map[string]string{"commitment": "confirmed"}}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

func (c *HTTPClient) GetTransactionCount(ctx context.Context) (uint64, error) {
	var result uint64
	if err := c.call(ctx, "getTransactionCount", []any{map[string]string{"commitment": "confirmed"}}, &result); err != nil {
		return 0, err
	}
	return result, nil
}

func decodeBase58Array32(s string) ([32]byte, error) {
	var out [32]byte
	decoded, err := base58.Decode(s)
	if err != nil {
		return out, keeperr.Wrap(keeperr.KindSerialization, "decode base58", err)
	}
	if len(decoded) != 32 {
		return out, keeperr.New(keeperr.KindSerialization, fmt.Sprintf("expected 32 bytes, got %d", len(decoded)))
	}
	copy(out[:], decoded)
	return out, nil
}

func base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
