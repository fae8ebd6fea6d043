package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"billfactor/config"
	"billfactor/core"
	"billfactor/crypto"
	"billfactor/storage"
)

const (
	testToken       = "s3cret"
	testNow   int64 = 1_700_000_000
)

func testAddr(fill byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = fill
	}
	return out
}

func bech(addr [20]byte) string { return crypto.FromBytes20(addr).String() }

var (
	ownerAddr  = testAddr(0x01)
	adminAddr  = testAddr(0x02)
	debtorAddr = testAddr(0x0A)
	lenderAddr = testAddr(0x0B)
	otherAddr  = testAddr(0x0C)
)

func newTestNode(t *testing.T) *core.Node {
	t.Helper()
	cfg := config.Default()
	cfg.Owner = bech(ownerAddr)
	cfg.Admins = []string{bech(adminAddr)}
	cfg.Genesis.Allocations = []config.Allocation{
		{Address: bech(debtorAddr), Token: "USDC", Amount: "5000"},
		{Address: bech(lenderAddr), Token: "USDC", Amount: "5000"},
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	node, err := core.NewNode(storage.NewMemDB(), cfg, logger)
	require.NoError(t, err)
	node.SetNowFunc(func() int64 { return testNow })
	return node
}

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *core.Node) {
	t.Helper()
	node := newTestNode(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewServer(node, cfg, logger), node
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{AuthToken: testToken}
}

type rpcResult struct {
	status   int
	header   http.Header
	response RPCResponse
}

func call(t *testing.T, h http.Handler, token, method string, params interface{}) rpcResult {
	t.Helper()
	req := RPCRequest{JSONRPC: jsonRPCVersion, Method: method, ID: 1}
	if params != nil {
		raw, err := json.Marshal(params)
		require.NoError(t, err)
		req.Params = []json.RawMessage{raw}
	}
	body, err := json.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	httpReq.RemoteAddr = "10.0.0.9:5555"
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httpReq)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rpcResult{status: rec.Code, header: rec.Header(), response: resp}
}

// decode re-marshals the generic result into out.
func (r rpcResult) decode(t *testing.T, out interface{}) {
	t.Helper()
	require.Nil(t, r.response.Error, "unexpected rpc error: %+v", r.response.Error)
	raw, err := json.Marshal(r.response.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (r rpcResult) code() int {
	if r.response.Error == nil {
		return 0
	}
	return r.response.Error.Code
}
