package genesis

import (
	"fmt"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"billfactor/config"
	"billfactor/core/state"
	"billfactor/crypto"
	"billfactor/native/factoring"
)

// TokenDecimals is recorded for every settlement currency registered at
// genesis.
const TokenDecimals uint8 = 6

var appliedKey = []byte("genesis/applied")

// Params are the engine settings derived from the configuration. They are
// recomputed on every start; only the state written by Apply is persisted.
type Params struct {
	Owner      [20]byte
	Vault      [20]byte
	Currencies []string
}

// ModuleVault returns the address holding escrowed deposits and pool fees when
// no vault is configured.
func ModuleVault() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("billfactor/factoring/vault"))[12:])
	return out
}

// ResolveParams parses the party addresses named in cfg.
func ResolveParams(cfg *config.Config) (*Params, error) {
	if cfg == nil {
		return nil, fmt.Errorf("genesis: config required")
	}
	params := &Params{Vault: ModuleVault()}
	if strings.TrimSpace(cfg.VaultAddress) != "" {
		vault, err := crypto.ParseAddress(cfg.VaultAddress)
		if err != nil {
			return nil, fmt.Errorf("genesis: vault: %w", err)
		}
		params.Vault = vault
	}
	if strings.TrimSpace(cfg.Owner) != "" {
		owner, err := crypto.ParseAddress(cfg.Owner)
		if err != nil {
			return nil, fmt.Errorf("genesis: owner: %w", err)
		}
		params.Owner = owner
		if owner == params.Vault {
			return nil, fmt.Errorf("genesis: owner must differ from the vault")
		}
	}
	params.Currencies = make([]string, 0, len(cfg.Currencies))
	for _, symbol := range cfg.Currencies {
		params.Currencies = append(params.Currencies, factoring.NormalizeCurrency(symbol))
	}
	sort.Strings(params.Currencies)
	return params, nil
}

// Applied reports whether genesis has already been written to st.
func Applied(st *state.Manager) (bool, error) {
	var done bool
	ok, err := st.KVGet(appliedKey, &done)
	if err != nil {
		return false, err
	}
	return ok && done, nil
}

// Apply writes the genesis section of cfg into an empty state: settlement
// currencies, initial balances, roles, default conditions and the pause
// flag. Changes are staged on st; the caller commits them. Apply is a no-op
// once genesis has been committed.
func Apply(st *state.Manager, cfg *config.Config) error {
	if st == nil {
		return fmt.Errorf("genesis: state required")
	}
	if cfg == nil {
		return fmt.Errorf("genesis: config required")
	}
	done, err := Applied(st)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	params, err := ResolveParams(cfg)
	if err != nil {
		return err
	}
	for _, symbol := range params.Currencies {
		if err := st.RegisterToken(symbol, symbol, TokenDecimals); err != nil {
			return fmt.Errorf("genesis: register %s: %w", symbol, err)
		}
	}

	for i, alloc := range cfg.Genesis.Allocations {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		if addr == params.Vault {
			return fmt.Errorf("genesis: allocation %d credits the vault", i)
		}
		amount, err := config.ParseAmount(alloc.Amount)
		if err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		token := factoring.NormalizeCurrency(alloc.Token)
		current, err := st.Balance(addr[:], token)
		if err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
		if err := st.SetBalance(addr[:], token, current.Add(current, amount)); err != nil {
			return fmt.Errorf("genesis: allocation %d: %w", i, err)
		}
	}

	roles := map[string][]string{
		factoring.RoleAdmin:    cfg.Admins,
		factoring.RoleOperator: cfg.Operators,
	}
	for role, members := range roles {
		for _, member := range members {
			addr, err := crypto.ParseAddress(member)
			if err != nil {
				return fmt.Errorf("genesis: %s: %w", role, err)
			}
			if addr == params.Vault {
				return fmt.Errorf("genesis: %s must differ from the vault", role)
			}
			if err := st.SetRole(role, addr[:]); err != nil {
				return err
			}
		}
	}

	defaults := factoring.Conditions{
		FeeBps:     cfg.DefaultConditions.FeeBps,
		UpfrontBps: cfg.DefaultConditions.UpfrontBps,
		OwnerBps:   cfg.DefaultConditions.OwnerBps,
	}
	if err := defaults.Validate(); err != nil {
		return fmt.Errorf("genesis: default conditions: %w", err)
	}
	if err := st.FactoringSetDefaultConditions(defaults); err != nil {
		return err
	}
	if cfg.Pauses.Factoring {
		if err := st.SetPaused(factoring.ModuleName, true); err != nil {
			return err
		}
	}
	return st.KVPut(appliedKey, true)
}
