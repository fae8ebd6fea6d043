package config

import (
	"fmt"
	"math/big"
	"net/netip"
	"strings"

	"billfactor/crypto"
)

// Validate checks the invariants the node relies on at startup. Party
// addresses are optional; when present they must be bill-prefixed bech32.
func (c *Config) Validate() error {
	if len(c.Currencies) != 2 {
		return fmt.Errorf("config: exactly two settlement currencies required, got %d", len(c.Currencies))
	}
	if c.Currencies[0] == "" || c.Currencies[1] == "" {
		return fmt.Errorf("config: currency symbols must not be empty")
	}
	if c.Currencies[0] == c.Currencies[1] {
		return fmt.Errorf("config: settlement currencies must be distinct")
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limits must be non-negative")
	}
	for _, proxy := range c.TrustedProxies {
		if _, err := ParseProxy(proxy); err != nil {
			return fmt.Errorf("config: TrustedProxies: %w", err)
		}
	}
	if c.LogMaxBackups < 0 {
		return fmt.Errorf("config: LogMaxBackups must be non-negative")
	}
	d := c.DefaultConditions
	if d.FeeBps == 0 || d.UpfrontBps == 0 || d.OwnerBps == 0 {
		return fmt.Errorf("config: default conditions must all be positive")
	}
	if uint64(d.FeeBps)+uint64(d.UpfrontBps)+uint64(d.OwnerBps) > 10_000 {
		return fmt.Errorf("config: default conditions exceed 10000 bps")
	}

	single := map[string]string{"VaultAddress": c.VaultAddress, "Owner": c.Owner}
	for field, value := range single {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := crypto.ParseAddress(value); err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
	}
	for field, list := range map[string][]string{"Admins": c.Admins, "Operators": c.Operators} {
		for _, value := range list {
			if _, err := crypto.ParseAddress(value); err != nil {
				return fmt.Errorf("config: %s: %w", field, err)
			}
		}
	}
	for i, alloc := range c.Genesis.Allocations {
		if _, err := crypto.ParseAddress(alloc.Address); err != nil {
			return fmt.Errorf("config: genesis allocation %d: %w", i, err)
		}
		if !c.SupportsCurrency(alloc.Token) {
			return fmt.Errorf("config: genesis allocation %d: unsupported token %q", i, alloc.Token)
		}
		if _, err := ParseAmount(alloc.Amount); err != nil {
			return fmt.Errorf("config: genesis allocation %d: %w", i, err)
		}
	}
	return nil
}

// SupportsCurrency reports whether symbol is one of the configured currencies.
func (c *Config) SupportsCurrency(symbol string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	for _, currency := range c.Currencies {
		if currency == normalized {
			return true
		}
	}
	return false
}

// ParseAmount parses a non-negative base-10 integer amount.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must be non-negative")
	}
	return amount, nil
}

// ParseProxy accepts a single IP or a CIDR range.
func ParseProxy(value string) (netip.Prefix, error) {
	trimmed := strings.TrimSpace(value)
	if strings.Contains(trimmed, "/") {
		prefix, err := netip.ParsePrefix(trimmed)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid proxy range %q", value)
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(trimmed)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid proxy address %q", value)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
