package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"billfactor/cmd/internal/passphrase"
	"billfactor/crypto"
)

const keystorePassEnv = "BILLFACTOR_KEYSTORE_PASS"

type passphraseSource interface {
	Get() (string, error)
}

var newPassphraseSource = func() passphraseSource {
	return passphrase.NewSource(keystorePassEnv)
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "wallet.key", "raw key file to write")
	keystorePath := fs.String("keystore", "", "write an encrypted keystore instead of a raw key file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}

	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, fmt.Sprintf("generate key: %v", err))
	}
	target := strings.TrimSpace(*out)
	addr := key.PubKey().Address()
	if path := strings.TrimSpace(*keystorePath); path != "" {
		pass, err := newPassphraseSource().Get()
		if err != nil {
			return printError(stderr, err.Error())
		}
		addr, err = crypto.SaveToKeystore(path, key, pass)
		if err != nil {
			return printError(stderr, fmt.Sprintf("write keystore %s: %v", path, err))
		}
		target = path
	} else {
		if target == "" {
			return printError(stderr, "--out is required")
		}
		if _, err := os.Stat(target); err == nil {
			return printError(stderr, fmt.Sprintf("%s already exists; refusing to overwrite", target))
		}
		encoded := hex.EncodeToString(key.Bytes())
		if err := os.WriteFile(target, []byte(encoded+"\n"), 0o600); err != nil {
			return printError(stderr, fmt.Sprintf("write %s: %v", target, err))
		}
	}

	fmt.Fprintf(stdout, "Generated new key and saved to %s\n", target)
	fmt.Fprintf(stdout, "Address: %s\n", addr.String())
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("address", flag.ContinueOnError)
	fs.SetOutput(stderr)
	keyFile := fs.String("key", "", "raw key file")
	keystorePath := fs.String("keystore", "", "encrypted keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	var (
		key *crypto.PrivateKey
		err error
	)
	switch {
	case strings.TrimSpace(*keystorePath) != "":
		var pass string
		pass, err = newPassphraseSource().Get()
		if err == nil {
			key, err = crypto.LoadFromKeystore(strings.TrimSpace(*keystorePath), pass)
		}
	case strings.TrimSpace(*keyFile) != "":
		key, err = loadPrivateKey(strings.TrimSpace(*keyFile))
	default:
		return printError(stderr, "--key or --keystore is required")
	}
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func loadPrivateKey(path string) (*crypto.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key file %s not found; run bill-cli keygen first", path)
		}
		return nil, fmt.Errorf("read key file %s: %w", path, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("key file %s is empty", path)
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(string(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("key file %s is not hex encoded: %w", path, err)
	}
	key, err := crypto.PrivateKeyFromBytes(decoded)
	if err != nil {
		return nil, fmt.Errorf("parse key in %s: %w", path, err)
	}
	return key, nil
}
