package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// SaveToKeystore seals key under passphrase as a v3 keystore file and returns
// the party address it controls. The file is written beside path and renamed
// into place so a crash never leaves a truncated keystore behind.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) (Address, error) {
	if key == nil || key.PrivateKey == nil {
		return Address{}, errors.New("crypto: nil private key")
	}
	if path == "" {
		return Address{}, errors.New("crypto: empty keystore path")
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Address{}, fmt.Errorf("crypto: keystore id: %w", err)
	}
	sealed, err := keystore.EncryptKey(&keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: key.PrivateKey,
	}, passphrase, keystore.StandardScryptN, keystore.StandardScryptP)
	if err != nil {
		return Address{}, err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Address{}, err
	}
	tmp, err := os.CreateTemp(dir, ".keystore-*")
	if err != nil {
		return Address{}, err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return Address{}, err
	}
	if err := tmp.Close(); err != nil {
		return Address{}, err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return Address{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Address{}, err
	}
	return key.PubKey().Address(), nil
}

// LoadFromKeystore opens the keystore file at path. A file whose recorded
// address does not match the decrypted key is rejected.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	sealed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(sealed, &header); err != nil {
		return nil, fmt.Errorf("crypto: parse keystore %s: %w", filepath.Base(path), err)
	}
	opened, err := keystore.DecryptKey(sealed, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: open keystore %s: %w", filepath.Base(path), err)
	}
	recorded := strings.TrimPrefix(strings.ToLower(header.Address), "0x")
	if recorded != "" && recorded != hex.EncodeToString(opened.Address.Bytes()) {
		return nil, fmt.Errorf("crypto: keystore %s records a different address", filepath.Base(path))
	}
	return &PrivateKey{PrivateKey: opened.PrivateKey}, nil
}
