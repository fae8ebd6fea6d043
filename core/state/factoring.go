package state

import (
	"fmt"
	"math/big"

	"billfactor/native/factoring"
)

func (m *Manager) nextSequence(key []byte) (uint64, error) {
	var current uint64
	if _, err := m.KVGet(key, &current); err != nil {
		return 0, err
	}
	current++
	if err := m.KVPut(key, current); err != nil {
		return 0, err
	}
	return current, nil
}

// FactoringNextRequestID allocates the next bill request id. Ids start at 1.
func (m *Manager) FactoringNextRequestID() (uint64, error) {
	return m.nextSequence(FactoringRequestSeqKey())
}

// FactoringNextOfferID allocates the next offer id. Ids start at 1.
func (m *Manager) FactoringNextOfferID() (uint64, error) {
	return m.nextSequence(FactoringOfferSeqKey())
}

// FactoringPutRequest persists the provided bill request.
func (m *Manager) FactoringPutRequest(req *factoring.BillRequest) error {
	sanitized, err := factoring.SanitizeRequest(req)
	if err != nil {
		return err
	}
	return m.KVPut(FactoringRequestKey(sanitized.ID), sanitized)
}

// FactoringGetRequest loads a bill request. A missing record returns
// (nil, false, nil).
func (m *Manager) FactoringGetRequest(id uint64) (*factoring.BillRequest, bool, error) {
	var stored factoring.BillRequest
	ok, err := m.KVGet(FactoringRequestKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

func (m *Manager) FactoringPutOffer(offer *factoring.Offer) error {
	sanitized, err := factoring.SanitizeOffer(offer)
	if err != nil {
		return err
	}
	return m.KVPut(FactoringOfferKey(sanitized.ID), sanitized)
}

func (m *Manager) FactoringGetOffer(id uint64) (*factoring.Offer, bool, error) {
	var stored factoring.Offer
	ok, err := m.KVGet(FactoringOfferKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

func (m *Manager) FactoringAppendRequestOffer(requestID, offerID uint64) error {
	return m.KVAppend(FactoringRequestOffersKey(requestID), encodeID(offerID))
}

// FactoringRequestOffers returns the request's offer ids in creation order.
func (m *Manager) FactoringRequestOffers(requestID uint64) ([]uint64, error) {
	var raw [][]byte
	if err := m.KVGetList(FactoringRequestOffersKey(requestID), &raw); err != nil {
		return nil, err
	}
	return decodeIDs(raw)
}

func (m *Manager) FactoringPutBill(bill *factoring.Bill) error {
	sanitized, err := factoring.SanitizeBill(bill)
	if err != nil {
		return err
	}
	return m.KVPut(FactoringBillKey(sanitized.ID), sanitized)
}

func (m *Manager) FactoringGetBill(id uint64) (*factoring.Bill, bool, error) {
	var stored factoring.Bill
	ok, err := m.KVGet(FactoringBillKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &stored, true, nil
}

// FactoringOwner returns the current holder of the ownership token id.
func (m *Manager) FactoringOwner(id uint64) ([20]byte, bool, error) {
	var holder [20]byte
	ok, err := m.KVGet(FactoringOwnerKey(id), &holder)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return holder, true, nil
}

func (m *Manager) FactoringSetOwner(id uint64, holder [20]byte) error {
	if holder == ([20]byte{}) {
		return fmt.Errorf("factoring: owner address required")
	}
	return m.KVPut(FactoringOwnerKey(id), holder)
}

func (m *Manager) FactoringClearOwner(id uint64) error {
	return m.KVDelete(FactoringOwnerKey(id))
}

func (m *Manager) FactoringAddHolding(holder [20]byte, id uint64) error {
	return m.KVAppend(FactoringHoldingsKey(holder[:]), encodeID(id))
}

func (m *Manager) FactoringRemoveHolding(holder [20]byte, id uint64) error {
	return m.KVRemove(FactoringHoldingsKey(holder[:]), encodeID(id))
}

// FactoringHoldings returns the ids currently held by holder.
func (m *Manager) FactoringHoldings(holder [20]byte) ([]uint64, error) {
	var raw [][]byte
	if err := m.KVGetList(FactoringHoldingsKey(holder[:]), &raw); err != nil {
		return nil, err
	}
	return decodeIDs(raw)
}

// FactoringAppendHistory records that holder received id. Entries are never
// removed and repeated holds produce repeated entries.
func (m *Manager) FactoringAppendHistory(holder [20]byte, id uint64) error {
	var history []uint64
	if err := m.KVGetList(FactoringHistoryKey(holder[:]), &history); err != nil {
		return err
	}
	history = append(history, id)
	return m.KVPut(FactoringHistoryKey(holder[:]), history)
}

func (m *Manager) FactoringHistory(holder [20]byte) ([]uint64, error) {
	var history []uint64
	if err := m.KVGetList(FactoringHistoryKey(holder[:]), &history); err != nil {
		return nil, err
	}
	return history, nil
}

func (m *Manager) FactoringApproved(id uint64) ([20]byte, bool, error) {
	var spender [20]byte
	ok, err := m.KVGet(FactoringApprovalKey(id), &spender)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return spender, true, nil
}

func (m *Manager) FactoringSetApproved(id uint64, spender [20]byte) error {
	return m.KVPut(FactoringApprovalKey(id), spender)
}

func (m *Manager) FactoringClearApproved(id uint64) error {
	return m.KVDelete(FactoringApprovalKey(id))
}

func (m *Manager) FactoringOperatorApproved(holder, operator [20]byte) (bool, error) {
	var approved bool
	if _, err := m.KVGet(FactoringOperatorKey(holder[:], operator[:]), &approved); err != nil {
		return false, err
	}
	return approved, nil
}

func (m *Manager) FactoringSetOperatorApproval(holder, operator [20]byte, approved bool) error {
	key := FactoringOperatorKey(holder[:], operator[:])
	if !approved {
		return m.KVDelete(key)
	}
	return m.KVPut(key, true)
}

// FactoringPoolBalance returns the accrued platform fees for currency.
func (m *Manager) FactoringPoolBalance(currency string) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.KVGet(FactoringPoolKey(currency), amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) FactoringSetPoolBalance(currency string, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("factoring: negative pool balance")
	}
	return m.KVPut(FactoringPoolKey(currency), amount)
}

func (m *Manager) FactoringDefaultConditions() (factoring.Conditions, bool, error) {
	var cond factoring.Conditions
	ok, err := m.KVGet(FactoringDefaultConditionsKey(), &cond)
	if err != nil || !ok {
		return factoring.Conditions{}, false, err
	}
	return cond, true, nil
}

func (m *Manager) FactoringSetDefaultConditions(cond factoring.Conditions) error {
	return m.KVPut(FactoringDefaultConditionsKey(), cond)
}

// IsPaused reports whether module has been paused. Read errors are treated as
// unpaused.
func (m *Manager) IsPaused(module string) bool {
	var paused bool
	if _, err := m.KVGet(PauseKey(module), &paused); err != nil {
		return false
	}
	return paused
}

// SetPaused stores the paused flag of module.
func (m *Manager) SetPaused(module string, paused bool) error {
	if !paused {
		return m.KVDelete(PauseKey(module))
	}
	return m.KVPut(PauseKey(module), true)
}
