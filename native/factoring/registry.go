package factoring

import "fmt"

// The ownership registry tracks, per bill id, the account holding the right
// to the bill's payout. Each holder has an active working set of ids and an
// append-only history with one entry for every time an id was received.

func (e *Engine) mint(id uint64, to [20]byte) error {
	if to == ([20]byte{}) {
		return fmt.Errorf("%w: mint to zero address", ErrInvalidAddress)
	}
	if err := e.checkParty("recipient", to); err != nil {
		return err
	}
	if _, exists, err := e.state.FactoringOwner(id); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: token %d", ErrTokenExists, id)
	}
	if err := e.state.FactoringSetOwner(id, to); err != nil {
		return err
	}
	if err := e.state.FactoringAddHolding(to, id); err != nil {
		return err
	}
	if err := e.state.FactoringAppendHistory(to, id); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(id, [20]byte{}, to))
	return nil
}

// moveToken transfers id from from to to without consulting approvals.
func (e *Engine) moveToken(id uint64, from, to [20]byte) error {
	holder, exists, err := e.state.FactoringOwner(id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: token %d", ErrNonexistentToken, id)
	}
	if holder != from {
		return fmt.Errorf("%w: token %d", ErrNotCurrentHolder, id)
	}
	if to == ([20]byte{}) {
		return fmt.Errorf("%w: transfer to zero address", ErrInvalidAddress)
	}
	if err := e.checkParty("recipient", to); err != nil {
		return err
	}
	if err := e.state.FactoringClearApproved(id); err != nil {
		return err
	}
	if err := e.state.FactoringRemoveHolding(from, id); err != nil {
		return err
	}
	if err := e.state.FactoringSetOwner(id, to); err != nil {
		return err
	}
	if err := e.state.FactoringAddHolding(to, id); err != nil {
		return err
	}
	if err := e.state.FactoringAppendHistory(to, id); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(id, from, to))
	return nil
}

// burn retires id. History entries are kept.
func (e *Engine) burn(id uint64) error {
	holder, exists, err := e.state.FactoringOwner(id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: token %d", ErrNonexistentToken, id)
	}
	if err := e.state.FactoringClearApproved(id); err != nil {
		return err
	}
	if err := e.state.FactoringRemoveHolding(holder, id); err != nil {
		return err
	}
	if err := e.state.FactoringClearOwner(id); err != nil {
		return err
	}
	e.emit(NewOwnershipTransferredEvent(id, holder, [20]byte{}))
	return nil
}

// CurrentHolder returns the account holding id.
func (e *Engine) CurrentHolder(id uint64) ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	holder, exists, err := e.state.FactoringOwner(id)
	if err != nil {
		return [20]byte{}, err
	}
	if !exists {
		return [20]byte{}, fmt.Errorf("%w: token %d", ErrNonexistentToken, id)
	}
	return holder, nil
}

// HistoryOf returns every id ever received by holder, in order. An id appears
// once per hold.
func (e *Engine) HistoryOf(holder [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.FactoringHistory(holder)
}

// HoldingsOf returns the ids currently held by holder.
func (e *Engine) HoldingsOf(holder [20]byte) ([]uint64, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.FactoringHoldings(holder)
}

// GetApproved returns the account approved to transfer id, if any.
func (e *Engine) GetApproved(id uint64) ([20]byte, bool, error) {
	if _, err := e.CurrentHolder(id); err != nil {
		return [20]byte{}, false, err
	}
	return e.state.FactoringApproved(id)
}

// IsApprovedForAll reports whether operator may transfer every id of holder.
func (e *Engine) IsApprovedForAll(holder, operator [20]byte) (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.FactoringOperatorApproved(holder, operator)
}

func (e *Engine) canTransfer(caller, holder [20]byte, id uint64) (bool, error) {
	if caller == holder {
		return true, nil
	}
	approved, ok, err := e.state.FactoringApproved(id)
	if err != nil {
		return false, err
	}
	if ok && approved == caller {
		return true, nil
	}
	return e.state.FactoringOperatorApproved(holder, caller)
}

// Approve lets spender transfer id once. The caller must hold id or be an
// approved operator of its holder. A zero spender clears the approval.
func (e *Engine) Approve(caller [20]byte, id uint64, spender [20]byte) error {
	release, err := e.enter(caller, false)
	if err != nil {
		return err
	}
	defer release()

	holder, err := e.CurrentHolder(id)
	if err != nil {
		return err
	}
	if caller != holder {
		operator, err := e.state.FactoringOperatorApproved(holder, caller)
		if err != nil {
			return err
		}
		if !operator {
			return fmt.Errorf("%w: token %d", ErrNotCurrentHolder, id)
		}
	}
	if spender == holder {
		return fmt.Errorf("%w: approval to current holder", ErrInvalidAddress)
	}
	if err := e.checkParty("spender", spender); err != nil {
		return err
	}
	if spender == ([20]byte{}) {
		if err := e.state.FactoringClearApproved(id); err != nil {
			return err
		}
	} else if err := e.state.FactoringSetApproved(id, spender); err != nil {
		return err
	}
	e.emit(NewApprovalEvent(id, holder, spender))
	return nil
}

// SetApprovalForAll grants or revokes operator's right to transfer every id
// held by caller.
func (e *Engine) SetApprovalForAll(caller, operator [20]byte, approved bool) error {
	release, err := e.enter(caller, false)
	if err != nil {
		return err
	}
	defer release()

	if operator == ([20]byte{}) || operator == caller {
		return fmt.Errorf("%w: operator", ErrInvalidAddress)
	}
	if err := e.checkParty("operator", operator); err != nil {
		return err
	}
	if err := e.state.FactoringSetOperatorApproval(caller, operator, approved); err != nil {
		return err
	}
	e.emit(NewApprovalForAllEvent(caller, operator, approved))
	return nil
}

// TransferBill moves id from from to to on behalf of caller, who must be from,
// the approved account for id or an approved operator of from. Payment rights
// follow the token.
func (e *Engine) TransferBill(caller, from, to [20]byte, id uint64) error {
	release, err := e.enter(caller, true)
	if err != nil {
		return err
	}
	defer release()

	holder, err := e.CurrentHolder(id)
	if err != nil {
		return err
	}
	if holder != from {
		return fmt.Errorf("%w: token %d", ErrNotCurrentHolder, id)
	}
	allowed, err := e.canTransfer(caller, from, id)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: caller may not transfer token %d", ErrNotAuthorized, id)
	}
	return e.moveToken(id, from, to)
}
