package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrNodeUnavailable means the call was refused locally and never reached the node.
	ErrNodeUnavailable = errors.New("wallet node unavailable")
	// ErrPaymentUnknown means a send may or may not have executed on the node.
	ErrPaymentUnknown = errors.New("payment status unknown")
)

// Client is the faucet's view of the wallet node. Neither call is retried.
type Client interface {
	Balance(ctx context.Context) (int64, error)
	SendToAddress(ctx context.Context, address string, amount int64) (string, error)
}

// RPCError is an error object returned by the node itself.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type RPCConfig struct {
	URL            string
	User           string
	Password       string
	MinConf        int
	BalanceTimeout time.Duration
	SendTimeout    time.Duration
	FailThreshold  int
	OpenForMs      int
}

// RPCClient talks bitcoind-style JSON-RPC 1.0 over HTTP.
type RPCClient struct {
	url            string
	user           string
	password       string
	minConf        int
	balanceTimeout time.Duration
	sendTimeout    time.Duration
	client         *http.Client
	br             *Breaker
	seq            atomic.Uint64
}

var _ Client = (*RPCClient)(nil)

func NewRPCClient(cfg RPCConfig) *RPCClient {
	if cfg.BalanceTimeout <= 0 {
		cfg.BalanceTimeout = 5 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.MinConf < 0 {
		cfg.MinConf = 0
	}

	return &RPCClient{
		url:            strings.TrimRight(cfg.URL, "/"),
		user:           cfg.User,
		password:       cfg.Password,
		minConf:        cfg.MinConf,
		balanceTimeout: cfg.BalanceTimeout,
		sendTimeout:    cfg.SendTimeout,
		client:         &http.Client{},
		br:             NewBreaker(cfg.FailThreshold, time.Duration(cfg.OpenForMs)*time.Millisecond),
	}
}

// Balance returns the confirmed wallet balance in minor units.
func (c *RPCClient) Balance(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.balanceTimeout)
	defer cancel()

	raw, err := c.call(ctx, "getbalance", "*", c.minConf)
	if err != nil {
		return 0, fmt.Errorf("getbalance: %w", err)
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return 0, fmt.Errorf("getbalance: decode result: %w", err)
	}
	return ParseAmount(num.String())
}

// SendToAddress pays amount minor units to address and returns the txid.
// Every failure other than ErrNodeUnavailable must be treated as ambiguous:
// the node may have broadcast the transaction.
func (c *RPCClient) SendToAddress(ctx context.Context, address string, amount int64) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("sendtoaddress: non-positive amount %d", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	raw, err := c.call(ctx, "sendtoaddress", address, json.Number(FormatAmount(amount)))
	if err != nil {
		var rpcErr *RPCError
		if errors.Is(err, ErrNodeUnavailable) || errors.As(err, &rpcErr) {
			return "", fmt.Errorf("sendtoaddress: %w", err)
		}
		return "", fmt.Errorf("sendtoaddress: %w: %v", ErrPaymentUnknown, err)
	}

	var txid string
	if err := json.Unmarshal(raw, &txid); err != nil || txid == "" {
		return "", fmt.Errorf("sendtoaddress: %w: unexpected result %s", ErrPaymentUnknown, string(raw))
	}
	return txid, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *RPCClient) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if !c.br.TryAcquire() {
		return nil, ErrNodeUnavailable
	}

	raw, err := c.post(ctx, method, params)
	var rpcErr *RPCError
	switch {
	case err == nil, errors.As(err, &rpcErr):
		// the node answered
		c.br.OnSuccess()
	default:
		c.br.OnFailure()
	}
	return raw, err
}

func (c *RPCClient) post(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	b, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: c.seq.Add(1), Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" || c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	// bitcoind answers RPC errors with HTTP 500 and a JSON body
	var out rpcResponse
	if jerr := json.Unmarshal(body, &out); jerr != nil {
		return nil, fmt.Errorf("method=%s status=%d: %w", method, res.StatusCode, jerr)
	}
	if out.Error != nil {
		return nil, out.Error
	}
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("method=%s status=%d", method, res.StatusCode)
	}
	return out.Result, nil
}
