package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"billfactor/crypto"
)

type recordedCall struct {
	method      string
	params      map[string]interface{}
	requireAuth bool
}

func stubRPC(t *testing.T, result string, rpcErr *rpcError) *[]recordedCall {
	t.Helper()
	calls := &[]recordedCall{}
	original := cliRPCCall
	cliRPCCall = func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
		p, _ := params.(map[string]interface{})
		*calls = append(*calls, recordedCall{method: method, params: p, requireAuth: requireAuth})
		return json.RawMessage(result), rpcErr, nil
	}
	originalNow := cliNow
	cliNow = func() time.Time { return time.Unix(1_700_000_000, 0) }
	t.Cleanup(func() {
		cliRPCCall = original
		cliNow = originalNow
	})
	return calls
}

func testAddress(fill byte) string {
	var raw [20]byte
	for i := range raw {
		raw[i] = fill
	}
	return crypto.FromBytes20(raw).String()
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRequestCreateBuildsParams(t *testing.T) {
	calls := stubRPC(t, `{"id":1}`, nil)
	debtor := testAddress(0x0A)

	code, stdout, stderr := runCLI("request", "create", "--caller", debtor, "--amount", "1_000", "--due", "+24h")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, `"id": 1`)
	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "factoring_createBillRequest", call.method)
	require.True(t, call.requireAuth)
	require.Equal(t, debtor, call.params["caller"])
	require.Equal(t, "1000", call.params["totalAmount"])
	require.Equal(t, uint64(1_700_000_000+86_400), call.params["dueDate"])
}

func TestOfferCreateNestsConditions(t *testing.T) {
	calls := stubRPC(t, `{}`, nil)
	code, _, stderr := runCLI("offer", "create", "--caller", testAddress(0x0B), "--request", "3",
		"--currency", "usdc", "--fee-bps", "300", "--upfront-bps", "8500", "--owner-bps", "1200")
	require.Equal(t, 0, code, stderr)
	call := (*calls)[0]
	require.Equal(t, uint64(3), call.params["requestId"])
	require.Equal(t, "usdc", call.params["currency"])
	require.Equal(t, map[string]interface{}{
		"feeBps":     uint64(300),
		"upfrontBps": uint64(8500),
		"ownerBps":   uint64(1200),
	}, call.params["conditions"])
}

func TestOfferCreateWithoutConditionsOmitsThem(t *testing.T) {
	calls := stubRPC(t, `{}`, nil)
	code, _, _ := runCLI("offer", "create", "--caller", testAddress(0x0B), "--request", "3", "--currency", "USDC")
	require.Equal(t, 0, code)
	_, present := (*calls)[0].params["conditions"]
	require.False(t, present)
}

func TestReadCommandsDoNotRequireAuth(t *testing.T) {
	calls := stubRPC(t, `true`, nil)
	code, stdout, _ := runCLI("token", "is-approved-all", "--owner", testAddress(0x0A), "--operator", testAddress(0x0C))
	require.Equal(t, 0, code)
	require.Equal(t, "true\n", stdout)
	require.False(t, (*calls)[0].requireAuth)
	require.Equal(t, "factoring_isApprovedForAll", (*calls)[0].method)
}

func TestApproveAllDefaultsToGrant(t *testing.T) {
	calls := stubRPC(t, `null`, nil)
	code, _, _ := runCLI("token", "approve-all", "--caller", testAddress(0x0A), "--operator", testAddress(0x0C))
	require.Equal(t, 0, code)
	require.Equal(t, true, (*calls)[0].params["approved"])

	code, _, _ = runCLI("token", "approve-all", "--caller", testAddress(0x0A), "--operator", testAddress(0x0C), "--approved=false")
	require.Equal(t, 0, code)
	require.Equal(t, false, (*calls)[1].params["approved"])
}

func TestArgumentValidation(t *testing.T) {
	calls := stubRPC(t, `{}`, nil)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage:"},
		{"unknown command", []string{"mint"}, "Unknown command: mint"},
		{"group usage", []string{"bill"}, "bill-cli bill <command>"},
		{"unknown subcommand", []string{"offer", "burn"}, "Unknown offer subcommand: burn"},
		{"missing caller", []string{"request", "create", "--amount", "10", "--due", "+1h"}, "--caller is required"},
		{"non numeric id", []string{"bill", "owner", "--id", "x"}, "--id must be a positive integer"},
		{"zero id", []string{"bill", "get", "--id", "0"}, "--id must be a positive integer"},
		{"negative amount", []string{"pool", "withdraw", "--caller", testAddress(1), "--currency", "USDC", "--amount", "-5"}, "--amount must be positive"},
		{"bps overflow", []string{"admin", "set-conditions", "--caller", testAddress(1), "--fee-bps", "10001", "--upfront-bps", "1", "--owner-bps", "1"}, "--fee-bps must be between 0 and 10000"},
		{"past due", []string{"request", "create", "--caller", testAddress(1), "--amount", "10", "--due", "2001-01-01T00:00:00Z"}, "--due must be in the future"},
		{"wrong prefix", []string{"balance", "--address", "nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq9uq0", "--token", "USDC"}, "--address must be a bill address"},
		{"positional", []string{"status", "extra"}, "unexpected positional arguments"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, stderr := runCLI(tc.args...)
			require.Equal(t, 1, code)
			require.Contains(t, stderr, tc.want)
		})
	}
	require.Empty(t, *calls)
}

func TestRPCErrorsAreReported(t *testing.T) {
	stubRPC(t, ``, &rpcError{Code: -32045, Message: "factoring: module paused"})
	code, _, stderr := runCLI("admin", "pause", "--caller", testAddress(0x02))
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "RPC error -32045: factoring: module paused")

	original := cliRPCCall
	cliRPCCall = func(string, interface{}, bool) (json.RawMessage, *rpcError, error) {
		return nil, nil, errors.New("connection refused")
	}
	defer func() { cliRPCCall = original }()
	code, _, stderr = runCLI("status")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "RPC call failed: connection refused")
}

func TestGlobalFlags(t *testing.T) {
	originalEndpoint, originalToken := rpcEndpoint, rpcAuthToken
	defer func() { rpcEndpoint, rpcAuthToken = originalEndpoint, originalToken }()

	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:9000", "status", "--token=abc"})
	require.NoError(t, err)
	require.Equal(t, []string{"status"}, rest)
	require.Equal(t, "http://node:9000", rpcEndpoint)
	require.Equal(t, "abc", rpcAuthToken)

	_, err = applyGlobalFlags([]string{"--token"})
	require.Error(t, err)
}

type fixedPassphrase string

func (p fixedPassphrase) Get() (string, error) { return string(p), nil }

func TestKeygenAndAddress(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "wallet.key")

	code, stdout, stderr := runCLI("keygen", "--out", keyPath)
	require.Equal(t, 0, code, stderr)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 2)
	generated := strings.TrimPrefix(lines[1], "Address: ")
	_, err := crypto.ParseAddress(generated)
	require.NoError(t, err)

	code, stdout, _ = runCLI("address", "--key", keyPath)
	require.Equal(t, 0, code)
	require.Equal(t, generated, strings.TrimSpace(stdout))

	code, _, stderr = runCLI("keygen", "--out", keyPath)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "refusing to overwrite")
}

func TestKeygenKeystore(t *testing.T) {
	original := newPassphraseSource
	newPassphraseSource = func() passphraseSource { return fixedPassphrase("correct horse") }
	defer func() { newPassphraseSource = original }()

	path := filepath.Join(t.TempDir(), "keys", "party.json")
	code, stdout, stderr := runCLI("keygen", "--keystore", path)
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, path)

	code, addrOut, _ := runCLI("address", "--keystore", path)
	require.Equal(t, 0, code)
	require.Contains(t, stdout, strings.TrimSpace(addrOut))

	newPassphraseSource = func() passphraseSource { return fixedPassphrase("wrong") }
	code, _, _ = runCLI("address", "--keystore", path)
	require.Equal(t, 1, code)
}
