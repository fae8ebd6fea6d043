package factoring

import (
	"bytes"
	"fmt"
	"math/big"
	"testing"

	"billfactor/core/events"
	"billfactor/core/types"
)

type operatorKey struct {
	holder   [20]byte
	operator [20]byte
}

type mockState struct {
	nextRequest   uint64
	nextOffer     uint64
	requests      map[uint64]*BillRequest
	offers        map[uint64]*Offer
	requestOffers map[uint64][]uint64
	bills         map[uint64]*Bill
	owners        map[uint64][20]byte
	holdings      map[[20]byte][]uint64
	history       map[[20]byte][]uint64
	approved      map[uint64][20]byte
	operators     map[operatorKey]bool
	pools         map[string]*big.Int
	defaults      *Conditions
	paused        map[string]bool
	roles         map[string]map[[20]byte]bool
}

func newMockState() *mockState {
	return &mockState{
		requests:      make(map[uint64]*BillRequest),
		offers:        make(map[uint64]*Offer),
		requestOffers: make(map[uint64][]uint64),
		bills:         make(map[uint64]*Bill),
		owners:        make(map[uint64][20]byte),
		holdings:      make(map[[20]byte][]uint64),
		history:       make(map[[20]byte][]uint64),
		approved:      make(map[uint64][20]byte),
		operators:     make(map[operatorKey]bool),
		pools:         make(map[string]*big.Int),
		paused:        make(map[string]bool),
		roles:         make(map[string]map[[20]byte]bool),
	}
}

func (m *mockState) FactoringNextRequestID() (uint64, error) {
	m.nextRequest++
	return m.nextRequest, nil
}

func (m *mockState) FactoringNextOfferID() (uint64, error) {
	m.nextOffer++
	return m.nextOffer, nil
}

func (m *mockState) FactoringPutRequest(r *BillRequest) error {
	sanitized, err := SanitizeRequest(r)
	if err != nil {
		return err
	}
	m.requests[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) FactoringGetRequest(id uint64) (*BillRequest, bool, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (m *mockState) FactoringPutOffer(o *Offer) error {
	sanitized, err := SanitizeOffer(o)
	if err != nil {
		return err
	}
	m.offers[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) FactoringGetOffer(id uint64) (*Offer, bool, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) FactoringAppendRequestOffer(requestID, offerID uint64) error {
	m.requestOffers[requestID] = append(m.requestOffers[requestID], offerID)
	return nil
}

func (m *mockState) FactoringRequestOffers(requestID uint64) ([]uint64, error) {
	return append([]uint64(nil), m.requestOffers[requestID]...), nil
}

func (m *mockState) FactoringPutBill(b *Bill) error {
	sanitized, err := SanitizeBill(b)
	if err != nil {
		return err
	}
	m.bills[sanitized.ID] = sanitized
	return nil
}

func (m *mockState) FactoringGetBill(id uint64) (*Bill, bool, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *mockState) FactoringOwner(id uint64) ([20]byte, bool, error) {
	owner, ok := m.owners[id]
	return owner, ok, nil
}

func (m *mockState) FactoringSetOwner(id uint64, holder [20]byte) error {
	m.owners[id] = holder
	return nil
}

func (m *mockState) FactoringClearOwner(id uint64) error {
	delete(m.owners, id)
	return nil
}

func (m *mockState) FactoringAddHolding(holder [20]byte, id uint64) error {
	for _, existing := range m.holdings[holder] {
		if existing == id {
			return nil
		}
	}
	m.holdings[holder] = append(m.holdings[holder], id)
	return nil
}

func (m *mockState) FactoringRemoveHolding(holder [20]byte, id uint64) error {
	kept := make([]uint64, 0, len(m.holdings[holder]))
	for _, existing := range m.holdings[holder] {
		if existing != id {
			kept = append(kept, existing)
		}
	}
	m.holdings[holder] = kept
	return nil
}

func (m *mockState) FactoringHoldings(holder [20]byte) ([]uint64, error) {
	return append([]uint64{}, m.holdings[holder]...), nil
}

func (m *mockState) FactoringAppendHistory(holder [20]byte, id uint64) error {
	m.history[holder] = append(m.history[holder], id)
	return nil
}

func (m *mockState) FactoringHistory(holder [20]byte) ([]uint64, error) {
	return append([]uint64{}, m.history[holder]...), nil
}

func (m *mockState) FactoringApproved(id uint64) ([20]byte, bool, error) {
	addr, ok := m.approved[id]
	return addr, ok, nil
}

func (m *mockState) FactoringSetApproved(id uint64, spender [20]byte) error {
	m.approved[id] = spender
	return nil
}

func (m *mockState) FactoringClearApproved(id uint64) error {
	delete(m.approved, id)
	return nil
}

func (m *mockState) FactoringOperatorApproved(holder, operator [20]byte) (bool, error) {
	return m.operators[operatorKey{holder, operator}], nil
}

func (m *mockState) FactoringSetOperatorApproval(holder, operator [20]byte, approved bool) error {
	if approved {
		m.operators[operatorKey{holder, operator}] = true
	} else {
		delete(m.operators, operatorKey{holder, operator})
	}
	return nil
}

func (m *mockState) FactoringPoolBalance(currency string) (*big.Int, error) {
	return cloneBigInt(m.pools[currency]), nil
}

func (m *mockState) FactoringSetPoolBalance(currency string, amount *big.Int) error {
	m.pools[currency] = cloneBigInt(amount)
	return nil
}

func (m *mockState) FactoringDefaultConditions() (Conditions, bool, error) {
	if m.defaults == nil {
		return Conditions{}, false, nil
	}
	return *m.defaults, true, nil
}

func (m *mockState) FactoringSetDefaultConditions(c Conditions) error {
	m.defaults = &c
	return nil
}

func (m *mockState) IsPaused(module string) bool { return m.paused[module] }

func (m *mockState) SetPaused(module string, paused bool) error {
	m.paused[module] = paused
	return nil
}

func (m *mockState) HasRole(role string, addr []byte) bool {
	var key [20]byte
	copy(key[:], addr)
	return m.roles[role][key]
}

func (m *mockState) SetRole(role string, addr []byte) error {
	var key [20]byte
	copy(key[:], addr)
	if m.roles[role] == nil {
		m.roles[role] = make(map[[20]byte]bool)
	}
	m.roles[role][key] = true
	return nil
}

func (m *mockState) RemoveRole(role string, addr []byte) error {
	var key [20]byte
	copy(key[:], addr)
	delete(m.roles[role], key)
	return nil
}

// mockBank is an in-memory settlement ledger. onTransfer, when set, runs before
// every transfer and aborts it on error.
type mockBank struct {
	balances   map[string]map[[20]byte]*big.Int
	onTransfer func(currency string, from, to [20]byte, amount *big.Int) error
	transfers  int
}

func newMockBank() *mockBank {
	return &mockBank{balances: make(map[string]map[[20]byte]*big.Int)}
}

func (b *mockBank) credit(currency string, addr [20]byte, amount int64) {
	if b.balances[currency] == nil {
		b.balances[currency] = make(map[[20]byte]*big.Int)
	}
	current := cloneBigInt(b.balances[currency][addr])
	b.balances[currency][addr] = current.Add(current, big.NewInt(amount))
}

func (b *mockBank) balance(currency string, addr [20]byte) *big.Int {
	return cloneBigInt(b.balances[currency][addr])
}

func (b *mockBank) Balance(currency string, addr [20]byte) (*big.Int, error) {
	return b.balance(currency, addr), nil
}

func (b *mockBank) Transfer(currency string, from, to [20]byte, amount *big.Int) error {
	if b.onTransfer != nil {
		if err := b.onTransfer(currency, from, to, amount); err != nil {
			return err
		}
	}
	if from == to {
		b.transfers++
		return nil
	}
	fromBal := b.balance(currency, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("mock bank: insufficient balance %s < %s", fromBal, amount)
	}
	if b.balances[currency] == nil {
		b.balances[currency] = make(map[[20]byte]*big.Int)
	}
	b.balances[currency][from] = new(big.Int).Sub(fromBal, amount)
	b.balances[currency][to] = new(big.Int).Add(b.balance(currency, to), amount)
	b.transfers++
	return nil
}

func (b *mockBank) total(currency string) *big.Int {
	sum := big.NewInt(0)
	for _, v := range b.balances[currency] {
		sum.Add(sum, v)
	}
	return sum
}

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func (c *capturingEmitter) typesEvents() []*types.Event {
	out := make([]*types.Event, 0, len(c.events))
	for _, evt := range c.events {
		if wrapper, ok := evt.(factoringEvent); ok && wrapper.evt != nil {
			out = append(out, wrapper.evt.Clone())
		}
	}
	return out
}

func (c *capturingEmitter) ofType(typ string) []*types.Event {
	var out []*types.Event
	for _, evt := range c.typesEvents() {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}

const testNow = 1_700_000_000

var (
	vaultAddr = newTestAddress(0xEE)
	ownerAddr = newTestAddress(0xF0)
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestEngine(state *mockState, bank *mockBank) *Engine {
	engine := NewEngine()
	engine.SetState(state)
	engine.SetTransferer(bank)
	engine.SetVault(vaultAddr)
	engine.SetOwner(ownerAddr)
	engine.SetCurrencies([]string{"USDC", "USDT"})
	engine.SetNowFunc(func() int64 { return testNow })
	return engine
}

func mustCreateRequest(t *testing.T, engine *Engine, debtor [20]byte, total int64) *BillRequest {
	t.Helper()
	req, err := engine.CreateBillRequest(debtor, big.NewInt(total), testNow+86_400)
	if err != nil {
		t.Fatalf("create bill request: %v", err)
	}
	return req
}

func mustCreateOffer(t *testing.T, engine *Engine, lender [20]byte, requestID uint64, cond Conditions) *Offer {
	t.Helper()
	offer, err := engine.CreateOffer(lender, requestID, "USDC", cond)
	if err != nil {
		t.Fatalf("create offer: %v", err)
	}
	return offer
}
