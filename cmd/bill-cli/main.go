package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"billfactor/config"
)

var (
	rpcEndpoint  = defaultRPCEndpoint()
	rpcAuthToken = strings.TrimSpace(os.Getenv(config.RPCTokenEnv))
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "status":
		return runCommand("", statusCommand, args[1:], stdout, stderr)
	case "balance":
		return runCommand("", balanceCommand, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	}
	if group, ok := commandGroups[args[0]]; ok {
		return runGroup(args[0], group, args[1:], stdout, stderr)
	}
	fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
	fmt.Fprintln(stderr, usage())
	return 1
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("BILLFACTOR_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

// applyGlobalFlags strips --rpc and --token from args wherever they appear.
func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			setGlobal(arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--rpc="):
			setGlobal("--rpc", strings.TrimPrefix(arg, "--rpc="))
		case strings.HasPrefix(arg, "--token="):
			setGlobal("--token", strings.TrimPrefix(arg, "--token="))
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func setGlobal(name, value string) {
	if name == "--rpc" {
		rpcEndpoint = strings.TrimSpace(value)
		return
	}
	rpcAuthToken = strings.TrimSpace(value)
}

func usage() string {
	return strings.TrimSpace(`Usage:
  bill-cli [--rpc URL] [--token TOKEN] <command> [flags]

Commands:
  keygen   Generate a party key (raw file or encrypted keystore)
  address  Print the address controlled by a key file
  status   Show pause state, currencies, vault and owner
  balance  Show a settlement token balance
  request  Create, cancel and inspect bill requests
  offer    Create, withdraw, accept and inspect offers
  bill     Complete, default and inspect bills
  token    Transfer bills and manage approvals
  pool     Inspect and withdraw accrued fees
  admin    Default conditions, pause switch and roles

The auth token defaults to $` + config.RPCTokenEnv + `.`)
}
