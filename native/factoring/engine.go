package factoring

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"billfactor/core/events"
	"billfactor/core/types"
	"billfactor/native/common"
)

// ModuleName is the pause key of the factoring module.
const ModuleName = "factoring"

// Roles understood by the engine's capability checks.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

var (
	errNilState      = errors.New("factoring engine: state not configured")
	errNilTransferer = errors.New("factoring engine: transfer capability not configured")
	errNilVault      = errors.New("factoring engine: vault address not configured")
)

type engineState interface {
	FactoringNextRequestID() (uint64, error)
	FactoringNextOfferID() (uint64, error)
	FactoringPutRequest(*BillRequest) error
	FactoringGetRequest(id uint64) (*BillRequest, bool, error)
	FactoringPutOffer(*Offer) error
	FactoringGetOffer(id uint64) (*Offer, bool, error)
	FactoringAppendRequestOffer(requestID, offerID uint64) error
	FactoringRequestOffers(requestID uint64) ([]uint64, error)
	FactoringPutBill(*Bill) error
	FactoringGetBill(id uint64) (*Bill, bool, error)

	FactoringOwner(id uint64) ([20]byte, bool, error)
	FactoringSetOwner(id uint64, holder [20]byte) error
	FactoringClearOwner(id uint64) error
	FactoringAddHolding(holder [20]byte, id uint64) error
	FactoringRemoveHolding(holder [20]byte, id uint64) error
	FactoringHoldings(holder [20]byte) ([]uint64, error)
	FactoringAppendHistory(holder [20]byte, id uint64) error
	FactoringHistory(holder [20]byte) ([]uint64, error)
	FactoringApproved(id uint64) ([20]byte, bool, error)
	FactoringSetApproved(id uint64, spender [20]byte) error
	FactoringClearApproved(id uint64) error
	FactoringOperatorApproved(holder, operator [20]byte) (bool, error)
	FactoringSetOperatorApproval(holder, operator [20]byte, approved bool) error

	FactoringPoolBalance(currency string) (*big.Int, error)
	FactoringSetPoolBalance(currency string, amount *big.Int) error
	FactoringDefaultConditions() (Conditions, bool, error)
	FactoringSetDefaultConditions(Conditions) error

	IsPaused(module string) bool
	SetPaused(module string, paused bool) error
	HasRole(role string, addr []byte) bool
	SetRole(role string, addr []byte) error
	RemoveRole(role string, addr []byte) error
}

// Transferer moves settlement currency between accounts. A failed Transfer
// must leave balances untouched.
type Transferer interface {
	Balance(currency string, addr [20]byte) (*big.Int, error)
	Transfer(currency string, from, to [20]byte, amount *big.Int) error
}

type factoringEvent struct {
	evt *types.Event
}

func (e factoringEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e factoringEvent) Event() *types.Event { return e.evt }

// Engine implements the bill factoring marketplace: the ownership registry,
// bill requests, competing offers, bill settlement and the fee pool. Every
// state-mutating entry point is guarded against reentrancy; atomicity across
// a call is provided by the host, which commits or discards the state journal
// after the engine returns.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	transferer Transferer
	vault      [20]byte
	owner      [20]byte
	currencies map[string]struct{}
	nowFn      func() int64
	guard      common.ReentrancyGuard
}

// NewEngine creates a factoring engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		currencies: make(map[string]struct{}),
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTransferer configures the settlement-currency transfer capability.
func (e *Engine) SetTransferer(t Transferer) { e.transferer = t }

// SetVault configures the account that holds escrowed deposits and pool fees.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetOwner configures the module owner, who passes every capability check and
// administers roles.
func (e *Engine) SetOwner(addr [20]byte) { e.owner = addr }

// SetCurrencies replaces the set of supported settlement currencies.
func (e *Engine) SetCurrencies(symbols []string) {
	e.currencies = make(map[string]struct{}, len(symbols))
	for _, symbol := range symbols {
		if normalized := NormalizeCurrency(symbol); normalized != "" {
			e.currencies[normalized] = struct{}{}
		}
	}
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(factoringEvent{evt: event})
}

func (e *Engine) now() uint64 {
	var ts int64
	if e == nil || e.nowFn == nil {
		ts = time.Now().Unix()
	} else {
		ts = e.nowFn()
	}
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// enter prepares a state-mutating call made by caller. The vault can never
// act as a party. When pausable is set the call is rejected while the module
// is paused. The returned release must be deferred.
func (e *Engine) enter(caller [20]byte, pausable bool) (func(), error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	if err := e.checkParty("caller", caller); err != nil {
		e.guard.Exit()
		return nil, err
	}
	if pausable {
		if err := common.Guard(e.state, ModuleName); err != nil {
			e.guard.Exit()
			return nil, err
		}
	}
	return e.guard.Exit, nil
}

// checkParty rejects the vault as a caller, holder, spender or operator. The
// vault only ever holds escrow and pool funds.
func (e *Engine) checkParty(name string, addr [20]byte) error {
	if e.vault != ([20]byte{}) && addr == e.vault {
		return fmt.Errorf("%w: %s is the module vault", ErrInvalidAddress, name)
	}
	return nil
}

// Currencies returns the supported settlement currencies.
func (e *Engine) Currencies() []string {
	out := make([]string, 0, len(e.currencies))
	for symbol := range e.currencies {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) normalizeCurrency(symbol string) (string, error) {
	normalized := NormalizeCurrency(symbol)
	if _, ok := e.currencies[normalized]; !ok || normalized == "" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, symbol)
	}
	return normalized, nil
}

func (e *Engine) isOwner(addr [20]byte) bool {
	return e.owner != ([20]byte{}) && addr == e.owner
}

func (e *Engine) requireAdmin(caller [20]byte) error {
	if e.isOwner(caller) || e.state.HasRole(RoleAdmin, caller[:]) {
		return nil
	}
	return fmt.Errorf("%w: %s required", ErrNotAuthorized, RoleAdmin)
}

func (e *Engine) requireOperator(caller [20]byte) error {
	if e.isOwner(caller) || e.state.HasRole(RoleOperator, caller[:]) || e.state.HasRole(RoleAdmin, caller[:]) {
		return nil
	}
	return fmt.Errorf("%w: %s required", ErrNotAuthorized, RoleOperator)
}

// requireFunds fails with ErrBalanceTooLow before any mutation when addr holds
// less than amount.
func (e *Engine) requireFunds(currency string, addr [20]byte, amount *big.Int) error {
	if e.transferer == nil {
		return errNilTransferer
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := e.transferer.Balance(currency, addr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: need %s %s, have %s", ErrBalanceTooLow, amount, currency, balance)
	}
	return nil
}

func (e *Engine) transfer(currency string, from, to [20]byte, amount *big.Int) error {
	if e.transferer == nil {
		return errNilTransferer
	}
	if e.vault == ([20]byte{}) {
		return errNilVault
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("%w: negative transfer %s", ErrInvalidAmount, amt)
	}
	if err := e.transferer.Transfer(currency, from, to, amt); err != nil {
		return fmt.Errorf("factoring: transfer %s %s: %w", amt, currency, err)
	}
	return nil
}

func (e *Engine) loadRequest(id uint64) (*BillRequest, error) {
	req, ok, err := e.state.FactoringGetRequest(id)
	if err != nil {
		return nil, err
	}
	if !ok || req == nil {
		return nil, fmt.Errorf("%w: request %d", ErrRequestNotFound, id)
	}
	return req, nil
}

func (e *Engine) loadOffer(id uint64) (*Offer, error) {
	offer, ok, err := e.state.FactoringGetOffer(id)
	if err != nil {
		return nil, err
	}
	if !ok || offer == nil {
		return nil, fmt.Errorf("%w: offer %d", ErrOfferNotFound, id)
	}
	return offer, nil
}

func (e *Engine) loadBill(id uint64) (*Bill, error) {
	bill, ok, err := e.state.FactoringGetBill(id)
	if err != nil {
		return nil, err
	}
	if !ok || bill == nil {
		return nil, fmt.Errorf("%w: bill %d", ErrBillNotFound, id)
	}
	return bill, nil
}
