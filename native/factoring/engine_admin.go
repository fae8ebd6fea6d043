package factoring

import (
	"fmt"
	"math/big"
	"strings"
)

// WithdrawFromPool pays amount of accrued fees in currency to the calling
// admin.
func (e *Engine) WithdrawFromPool(caller [20]byte, amount *big.Int, currency string) (*big.Int, error) {
	release, err := e.enter(caller, false)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.requireAdmin(caller); err != nil {
		return nil, err
	}
	normalized, err := e.normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: withdraw %v", ErrInvalidAmount, amount)
	}
	pool, err := e.state.FactoringPoolBalance(normalized)
	if err != nil {
		return nil, err
	}
	if pool.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: requested %s %s, pool %s", ErrPoolBalanceTooLow, amount, normalized, pool)
	}
	remaining := new(big.Int).Sub(pool, amount)
	if err := e.state.FactoringSetPoolBalance(normalized, remaining); err != nil {
		return nil, err
	}
	if err := e.transfer(normalized, e.vault, caller, amount); err != nil {
		return nil, err
	}
	e.emit(NewPoolWithdrawnEvent(normalized, caller, amount, remaining))
	return remaining, nil
}

// SetDefaultConditions stores the module-wide default conditions.
func (e *Engine) SetDefaultConditions(caller [20]byte, cond Conditions) error {
	release, err := e.enter(caller, false)
	if err != nil {
		return err
	}
	defer release()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := cond.Validate(); err != nil {
		return err
	}
	if err := e.state.FactoringSetDefaultConditions(cond); err != nil {
		return err
	}
	e.emit(NewDefaultConditionsEvent(cond, caller))
	return nil
}

// Pause halts request creation, offers, acceptance, completion and token
// transfers. Withdrawals and cancellations remain available.
func (e *Engine) Pause(caller [20]byte) error {
	return e.setPaused(caller, true)
}

// Unpause resumes normal operation.
func (e *Engine) Unpause(caller [20]byte) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller [20]byte, paused bool) error {
	release, err := e.enter(caller, false)
	if err != nil {
		return err
	}
	defer release()

	if err := e.requireAdmin(caller); err != nil {
		return err
	}
	if err := e.state.SetPaused(ModuleName, paused); err != nil {
		return err
	}
	e.emit(NewPauseEvent(paused, caller))
	return nil
}

// Paused reports whether the module is paused.
func (e *Engine) Paused() bool {
	if e == nil || e.state == nil {
		return false
	}
	return e.state.IsPaused(ModuleName)
}

func normalizeRole(role string) (string, error) {
	switch normalized := strings.ToLower(strings.TrimSpace(role)); normalized {
	case RoleAdmin, RoleOperator:
		return normalized, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
}

// GrantRole assigns role to addr. Only the module owner may administer roles.
func (e *Engine) GrantRole(caller [20]byte, role string, addr [20]byte) error {
	return e.updateRole(caller, role, addr, true)
}

// RevokeRole removes role from addr.
func (e *Engine) RevokeRole(caller [20]byte, role string, addr [20]byte) error {
	return e.updateRole(caller, role, addr, false)
}

func (e *Engine) updateRole(caller [20]byte, role string, addr [20]byte, grant bool) error {
	release, err := e.enter(caller, false)
	if err != nil {
		return err
	}
	defer release()

	if !e.isOwner(caller) {
		return fmt.Errorf("%w: owner required", ErrNotAuthorized)
	}
	normalized, err := normalizeRole(role)
	if err != nil {
		return err
	}
	if addr == ([20]byte{}) {
		return fmt.Errorf("%w: role member", ErrInvalidAddress)
	}
	if err := e.checkParty("role member", addr); err != nil {
		return err
	}
	if grant {
		err = e.state.SetRole(normalized, addr[:])
	} else {
		err = e.state.RemoveRole(normalized, addr[:])
	}
	if err != nil {
		return err
	}
	e.emit(NewRoleEvent(normalized, addr, grant))
	return nil
}

// HasRole reports whether addr passes the capability check for role.
func (e *Engine) HasRole(role string, addr [20]byte) bool {
	if e == nil || e.state == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAdmin:
		return e.requireAdmin(addr) == nil
	case RoleOperator:
		return e.requireOperator(addr) == nil
	default:
		return false
	}
}

// GetPoolBalance returns the fees accrued in currency.
func (e *Engine) GetPoolBalance(currency string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	normalized, err := e.normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	return e.state.FactoringPoolBalance(normalized)
}

// GetDefaultConditions returns the module-wide default conditions. The
// boolean is false when none have been set.
func (e *Engine) GetDefaultConditions() (Conditions, bool, error) {
	if e == nil || e.state == nil {
		return Conditions{}, false, errNilState
	}
	return e.state.FactoringDefaultConditions()
}
