package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrUnknownToken        = errors.New("bank: unknown token")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrInvalidAmount       = errors.New("bank: amount must be non-negative")
)

type balanceStore interface {
	TokenExists(symbol string) bool
	Balance(addr []byte, symbol string) (*big.Int, error)
	SetBalance(addr []byte, symbol string, amount *big.Int) error
}

// Ledger moves settlement-currency balances held in node state. Every method
// validates before writing, so a failed call leaves balances untouched.
type Ledger struct {
	store balanceStore
}

// NewLedger returns a ledger backed by the provided state.
func NewLedger(store balanceStore) *Ledger {
	return &Ledger{store: store}
}

func normalizeToken(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (l *Ledger) checkToken(symbol string) (string, error) {
	if l == nil || l.store == nil {
		return "", fmt.Errorf("bank: state manager required")
	}
	normalized := normalizeToken(symbol)
	if !l.store.TokenExists(normalized) {
		return "", fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
	}
	return normalized, nil
}

// Balance returns addr's balance of token.
func (l *Ledger) Balance(token string, addr [20]byte) (*big.Int, error) {
	normalized, err := l.checkToken(token)
	if err != nil {
		return nil, err
	}
	return l.store.Balance(addr[:], normalized)
}

// Transfer moves amount of token from one account to another.
func (l *Ledger) Transfer(token string, from, to [20]byte, amount *big.Int) error {
	normalized, err := l.checkToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBal, err := l.store.Balance(from[:], normalized)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %x holds %s %s, needs %s", ErrInsufficientBalance, from, fromBal, normalized, amount)
	}
	toBal, err := l.store.Balance(to[:], normalized)
	if err != nil {
		return err
	}
	if err := l.store.SetBalance(from[:], normalized, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return l.store.SetBalance(to[:], normalized, new(big.Int).Add(toBal, amount))
}

// Credit mints amount of token to addr. It is used for genesis allocations.
func (l *Ledger) Credit(token string, addr [20]byte, amount *big.Int) error {
	normalized, err := l.checkToken(token)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	current, err := l.store.Balance(addr[:], normalized)
	if err != nil {
		return err
	}
	return l.store.SetBalance(addr[:], normalized, new(big.Int).Add(current, amount))
}
