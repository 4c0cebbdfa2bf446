package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeNode struct {
	t      *testing.T
	handle func(method string, params []json.RawMessage) (any, *RPCError)

	mu      sync.Mutex
	calls   int
	lastReq rpcRequestIn
}

func (n *fakeNode) snapshot() (int, rpcRequestIn) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls, n.lastReq
}

type rpcRequestIn struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	user, pass, ok := r.BasicAuth()
	if !ok || user != "rpcuser" || pass != "rpcpass" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var req rpcRequestIn
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		n.t.Errorf("decode request: %v", err)
		return
	}
	n.lastReq = req
	result, rpcErr := n.handle(req.Method, req.Params)
	w.Header().Set("Content-Type", "application/json")
	if rpcErr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": nil, "error": rpcErr, "id": 1})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "error": nil, "id": 1})
}

func newTestClient(t *testing.T, node *fakeNode) *RPCClient {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return NewRPCClient(RPCConfig{
		URL:            srv.URL,
		User:           "rpcuser",
		Password:       "rpcpass",
		MinConf:        1,
		BalanceTimeout: time.Second,
		SendTimeout:    200 * time.Millisecond,
		FailThreshold:  2,
		OpenForMs:      60000,
	})
}

func TestBalanceConvertsToMinorUnits(t *testing.T) {
	node := &fakeNode{t: t, handle: func(method string, params []json.RawMessage) (any, *RPCError) {
		if method != "getbalance" {
			t.Errorf("unexpected method %s", method)
		}
		return json.Number("1.23456789"), nil
	}}
	c := newTestClient(t, node)

	bal, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 123456789 {
		t.Fatalf("balance = %d", bal)
	}
	_, req := node.snapshot()
	if len(req.Params) != 2 || string(req.Params[1]) != "1" {
		t.Fatalf("unexpected params %s", req.Params)
	}
}

func TestSendToAddressSendsCoinAmount(t *testing.T) {
	node := &fakeNode{t: t, handle: func(method string, params []json.RawMessage) (any, *RPCError) {
		return "deadbeef", nil
	}}
	c := newTestClient(t, node)

	txid, err := c.SendToAddress(context.Background(), "mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef", 150000)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if txid != "deadbeef" {
		t.Fatalf("txid = %q", txid)
	}
	_, req := node.snapshot()
	if req.Method != "sendtoaddress" {
		t.Fatalf("method = %s", req.Method)
	}
	if got := string(req.Params[1]); got != "0.00150000" {
		t.Fatalf("amount param = %s", got)
	}
}

func TestSendToAddressRPCErrorIsSurfaced(t *testing.T) {
	node := &fakeNode{t: t, handle: func(string, []json.RawMessage) (any, *RPCError) {
		return nil, &RPCError{Code: -5, Message: "Invalid address"}
	}}
	c := newTestClient(t, node)

	_, err := c.SendToAddress(context.Background(), "bad", 1000)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -5 {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if errors.Is(err, ErrPaymentUnknown) {
		t.Fatalf("node rejection should not be reported as unknown")
	}
}

func TestSendToAddressTimeoutIsUnknown(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewRPCClient(RPCConfig{URL: srv.URL, SendTimeout: 20 * time.Millisecond})
	_, err := c.SendToAddress(context.Background(), "addr", 1000)
	if !errors.Is(err, ErrPaymentUnknown) {
		t.Fatalf("expected ErrPaymentUnknown, got %v", err)
	}
}

func TestBreakerOpensAfterTransportFailures(t *testing.T) {
	node := &fakeNode{t: t}
	c := newTestClient(t, node)
	c.user = "wrong" // 401 with empty body counts as a transport failure

	for i := 0; i < 2; i++ {
		if _, err := c.Balance(context.Background()); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}
	_, err := c.SendToAddress(context.Background(), "addr", 1000)
	if !errors.Is(err, ErrNodeUnavailable) {
		t.Fatalf("expected ErrNodeUnavailable, got %v", err)
	}
	if calls, _ := node.snapshot(); calls != 2 {
		t.Fatalf("breaker should have blocked the third call, node saw %d", calls)
	}
}

func TestSendRejectsNonPositiveAmount(t *testing.T) {
	node := &fakeNode{t: t}
	c := newTestClient(t, node)
	if _, err := c.SendToAddress(context.Background(), "addr", 0); err == nil {
		t.Fatalf("expected error")
	}
	if calls, _ := node.snapshot(); calls != 0 {
		t.Fatalf("no request should be made")
	}
}
