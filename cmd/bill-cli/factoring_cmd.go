package main

import (
	"flag"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"billfactor/crypto"
)

type flagKind int

const (
	kindString flagKind = iota
	kindAddress
	kindID
	kindAmount
	kindBps
	kindDue
	kindBool
)

// paramFlag binds a command-line flag to a JSON-RPC param key. Keys containing
// a dot are nested, so "conditions.feeBps" becomes {"conditions":{"feeBps":..}}.
type paramFlag struct {
	name     string
	key      string
	kind     flagKind
	usage    string
	required bool
	def      bool
}

type command struct {
	name     string
	method   string
	summary  string
	mutating bool
	flags    []paramFlag
}

func callerFlag() paramFlag {
	return paramFlag{name: "caller", key: "caller", kind: kindAddress, usage: "calling party bech32 address", required: true}
}

func idFlag(name, key, usage string) paramFlag {
	return paramFlag{name: name, key: key, kind: kindID, usage: usage, required: true}
}

func conditionFlags(prefix string, required bool) []paramFlag {
	return []paramFlag{
		{name: "fee-bps", key: prefix + "feeBps", kind: kindBps, usage: "platform fee in basis points", required: required},
		{name: "upfront-bps", key: prefix + "upfrontBps", kind: kindBps, usage: "upfront payment in basis points", required: required},
		{name: "owner-bps", key: prefix + "ownerBps", kind: kindBps, usage: "holder share in basis points", required: required},
	}
}

var statusCommand = command{name: "status", method: "factoring_status", summary: "Show module status"}

var balanceCommand = command{name: "balance", method: "bank_getBalance", summary: "Show a token balance", flags: []paramFlag{
	{name: "address", key: "address", kind: kindAddress, usage: "account bech32 address", required: true},
	{name: "token", key: "token", kind: kindString, usage: "settlement currency symbol", required: true},
}}

var commandGroups = map[string][]command{
	"request": {
		{name: "create", method: "factoring_createBillRequest", summary: "Open a bill request", mutating: true, flags: []paramFlag{
			callerFlag(),
			{name: "amount", key: "totalAmount", kind: kindAmount, usage: "bill total in base units", required: true},
			{name: "due", key: "dueDate", kind: kindDue, usage: "due date as +duration, RFC3339 or unix seconds", required: true},
		}},
		{name: "cancel", method: "factoring_cancelBillRequest", summary: "Cancel an open request", mutating: true, flags: []paramFlag{
			callerFlag(), idFlag("id", "requestId", "bill request id"),
		}},
		{name: "get", method: "factoring_getBillRequest", summary: "Fetch a bill request", flags: []paramFlag{
			idFlag("id", "requestId", "bill request id"),
		}},
		{name: "offers", method: "factoring_getOffersForBillRequest", summary: "List offers on a request", flags: []paramFlag{
			idFlag("id", "requestId", "bill request id"),
		}},
	},
	"offer": {
		{name: "create", method: "factoring_createOffer", summary: "Deposit the upfront amount against a request", mutating: true, flags: append([]paramFlag{
			callerFlag(),
			idFlag("request", "requestId", "bill request id"),
			{name: "currency", key: "currency", kind: kindString, usage: "settlement currency symbol", required: true},
		}, conditionFlags("conditions.", false)...)},
		{name: "withdraw", method: "factoring_withdrawOffer", summary: "Withdraw an active offer", mutating: true, flags: []paramFlag{
			callerFlag(), idFlag("id", "offerId", "offer id"),
		}},
		{name: "accept", method: "factoring_acceptOffer", summary: "Accept an offer and create the bill", mutating: true, flags: []paramFlag{
			callerFlag(), idFlag("id", "offerId", "offer id"),
		}},
		{name: "get", method: "factoring_getOffer", summary: "Fetch an offer", flags: []paramFlag{
			idFlag("id", "offerId", "offer id"),
		}},
	},
	"bill": {
		{name: "complete", method: "factoring_completeBill", summary: "Pay the bill total and settle", mutating: true, flags: []paramFlag{
			callerFlag(), idFlag("id", "billId", "bill id"),
		}},
		{name: "default", method: "factoring_markBillDefaulted", summary: "Mark an overdue bill defaulted", mutating: true, flags: []paramFlag{
			callerFlag(), idFlag("id", "billId", "bill id"),
		}},
		{name: "get", method: "factoring_getBillWithOwner", summary: "Fetch a bill and its holder", flags: []paramFlag{
			idFlag("id", "billId", "bill id"),
		}},
		{name: "owner", method: "factoring_ownerOf", summary: "Show the current holder", flags: []paramFlag{
			idFlag("id", "billId", "bill id"),
		}},
		{name: "history", method: "factoring_getBillsByOwner", summary: "List bills ever held by an address", flags: []paramFlag{
			{name: "owner", key: "owner", kind: kindAddress, usage: "holder bech32 address", required: true},
		}},
		{name: "holdings", method: "factoring_getHoldings", summary: "List bills currently held by an address", flags: []paramFlag{
			{name: "owner", key: "owner", kind: kindAddress, usage: "holder bech32 address", required: true},
		}},
	},
	"token": {
		{name: "transfer", method: "factoring_transferBill", summary: "Transfer a bill token", mutating: true, flags: []paramFlag{
			callerFlag(),
			{name: "from", key: "from", kind: kindAddress, usage: "current holder", required: true},
			{name: "to", key: "to", kind: kindAddress, usage: "recipient", required: true},
			idFlag("id", "billId", "bill id"),
		}},
		{name: "approve", method: "factoring_approve", summary: "Approve a spender for one bill (omit --spender to clear)", mutating: true, flags: []paramFlag{
			callerFlag(),
			idFlag("id", "billId", "bill id"),
			{name: "spender", key: "spender", kind: kindAddress, usage: "approved spender"},
		}},
		{name: "approve-all", method: "factoring_setApprovalForAll", summary: "Grant or revoke an operator for all bills", mutating: true, flags: []paramFlag{
			callerFlag(),
			{name: "operator", key: "operator", kind: kindAddress, usage: "operator address", required: true},
			{name: "approved", key: "approved", kind: kindBool, usage: "grant (true) or revoke (false)", def: true},
		}},
		{name: "approved", method: "factoring_getApproved", summary: "Show the approved spender of a bill", flags: []paramFlag{
			idFlag("id", "billId", "bill id"),
		}},
		{name: "is-approved-all", method: "factoring_isApprovedForAll", summary: "Check operator approval", flags: []paramFlag{
			{name: "owner", key: "owner", kind: kindAddress, usage: "holder address", required: true},
			{name: "operator", key: "operator", kind: kindAddress, usage: "operator address", required: true},
		}},
	},
	"pool": {
		{name: "balance", method: "factoring_getPoolBalance", summary: "Show accrued fees", flags: []paramFlag{
			{name: "currency", key: "currency", kind: kindString, usage: "settlement currency symbol", required: true},
		}},
		{name: "withdraw", method: "factoring_withdrawFromPool", summary: "Withdraw accrued fees to the calling admin", mutating: true, flags: []paramFlag{
			callerFlag(),
			{name: "currency", key: "currency", kind: kindString, usage: "settlement currency symbol", required: true},
			{name: "amount", key: "amount", kind: kindAmount, usage: "amount in base units", required: true},
		}},
	},
	"admin": {
		{name: "conditions", method: "factoring_getDefaultConditions", summary: "Show default offer conditions"},
		{name: "set-conditions", method: "factoring_setDefaultConditions", summary: "Replace default offer conditions", mutating: true, flags: append([]paramFlag{
			callerFlag(),
		}, conditionFlags("", true)...)},
		{name: "pause", method: "factoring_pause", summary: "Pause the module", mutating: true, flags: []paramFlag{callerFlag()}},
		{name: "unpause", method: "factoring_unpause", summary: "Resume the module", mutating: true, flags: []paramFlag{callerFlag()}},
		{name: "grant", method: "factoring_grantRole", summary: "Grant admin or operator", mutating: true, flags: roleFlags(true)},
		{name: "revoke", method: "factoring_revokeRole", summary: "Revoke admin or operator", mutating: true, flags: roleFlags(true)},
		{name: "has-role", method: "factoring_hasRole", summary: "Check a role", flags: roleFlags(false)},
	},
}

func roleFlags(withCaller bool) []paramFlag {
	flags := []paramFlag{
		{name: "role", key: "role", kind: kindString, usage: "admin or operator", required: true},
		{name: "address", key: "address", kind: kindAddress, usage: "member address", required: true},
	}
	if withCaller {
		return append([]paramFlag{callerFlag()}, flags...)
	}
	return flags
}

func runGroup(group string, cmds []command, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, groupUsage(group, cmds))
		return 1
	}
	for _, cmd := range cmds {
		if cmd.name == args[0] {
			return runCommand(group, cmd, args[1:], stdout, stderr)
		}
	}
	fmt.Fprintf(stderr, "Unknown %s subcommand: %s\n", group, args[0])
	fmt.Fprintln(stderr, groupUsage(group, cmds))
	return 1
}

func runCommand(group string, cmd command, args []string, stdout, stderr io.Writer) int {
	name := strings.TrimSpace(group + " " + cmd.name)
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	strs := make(map[string]*string, len(cmd.flags))
	bools := make(map[string]*bool)
	for _, f := range cmd.flags {
		if f.kind == kindBool {
			bools[f.name] = fs.Bool(f.name, f.def, f.usage)
			continue
		}
		strs[f.name] = fs.String(f.name, "", f.usage)
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}

	params := map[string]interface{}{}
	for _, f := range cmd.flags {
		if f.kind == kindBool {
			setParam(params, f.key, *bools[f.name])
			continue
		}
		raw := strings.TrimSpace(*strs[f.name])
		if raw == "" {
			if f.required {
				return printError(stderr, fmt.Sprintf("--%s is required", f.name))
			}
			continue
		}
		value, err := convertFlag(f.kind, raw)
		if err != nil {
			return printError(stderr, fmt.Sprintf("--%s %v", f.name, err))
		}
		setParam(params, f.key, value)
	}

	result, rpcErr, err := cliRPCCall(cmd.method, params, cmd.mutating)
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func setParam(params map[string]interface{}, key string, value interface{}) {
	parent, child, nested := strings.Cut(key, ".")
	if !nested {
		params[key] = value
		return
	}
	inner, ok := params[parent].(map[string]interface{})
	if !ok {
		inner = map[string]interface{}{}
		params[parent] = inner
	}
	inner[child] = value
}

func convertFlag(kind flagKind, raw string) (interface{}, error) {
	switch kind {
	case kindAddress:
		if _, err := crypto.ParseAddress(raw); err != nil {
			return nil, fmt.Errorf("must be a bill address: %v", err)
		}
		return raw, nil
	case kindID:
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("must be a positive integer")
		}
		return id, nil
	case kindAmount:
		return normalizeAmount(raw)
	case kindBps:
		bps, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || bps > 10_000 {
			return nil, fmt.Errorf("must be between 0 and 10000")
		}
		return bps, nil
	case kindDue:
		return parseDueDate(raw, cliNow())
	default:
		return raw, nil
	}
}

// normalizeAmount accepts base-unit integers with optional _ separators and
// returns the canonical decimal string.
func normalizeAmount(value string) (string, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return "", fmt.Errorf("must be an integer amount")
	}
	if amount.Sign() <= 0 {
		return "", fmt.Errorf("must be positive")
	}
	return amount.String(), nil
}

func parseDueDate(value string, now time.Time) (uint64, error) {
	if strings.HasPrefix(value, "+") {
		d, err := time.ParseDuration(strings.TrimPrefix(value, "+"))
		if err != nil || d <= 0 {
			return 0, fmt.Errorf("must be a positive duration")
		}
		return uint64(now.Add(d).Unix()), nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		if !ts.After(now) {
			return 0, fmt.Errorf("must be in the future")
		}
		return uint64(ts.Unix()), nil
	}
	unix, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be +duration, RFC3339 or unix seconds")
	}
	return unix, nil
}

func groupUsage(group string, cmds []command) string {
	sorted := append([]command(nil), cmds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	var b strings.Builder
	fmt.Fprintf(&b, "Usage:\n  bill-cli %s <command> [flags]\n\nCommands:\n", group)
	for _, cmd := range sorted {
		fmt.Fprintf(&b, "  %-16s %s\n", cmd.name, cmd.summary)
	}
	return strings.TrimRight(b.String(), "\n")
}
