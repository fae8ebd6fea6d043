package factoring

import (
	"fmt"
	"math/big"
)

// CompleteBill settles an active bill. The debtor pays the full total into
// the vault; the current token holder receives the owner share plus the
// upfront return, the fee share accrues to the pool and the remainder goes
// back to the debtor. The token is burned.
func (e *Engine) CompleteBill(caller [20]byte, billID uint64) (*Settlement, error) {
	release, err := e.enter(caller, true)
	if err != nil {
		return nil, err
	}
	defer release()

	bill, err := e.loadBill(billID)
	if err != nil {
		return nil, err
	}
	if bill.Status != BillActive {
		return nil, fmt.Errorf("%w: bill %d is %s", ErrBillNotActive, billID, bill.Status)
	}
	if bill.Debtor != caller {
		return nil, fmt.Errorf("%w: bill %d", ErrNotDebtor, billID)
	}
	holder, err := e.CurrentHolder(billID)
	if err != nil {
		return nil, err
	}
	settlement, err := ComputeSettlement(bill, holder)
	if err != nil {
		return nil, err
	}
	if err := e.requireFunds(bill.Currency, caller, bill.TotalAmount); err != nil {
		return nil, err
	}
	pool, err := e.state.FactoringPoolBalance(bill.Currency)
	if err != nil {
		return nil, err
	}

	if err := e.transfer(bill.Currency, caller, e.vault, bill.TotalAmount); err != nil {
		return nil, err
	}
	if err := e.transfer(bill.Currency, e.vault, holder, settlement.OwnerPayment); err != nil {
		return nil, err
	}
	if settlement.DebtorResidual.Sign() > 0 {
		if err := e.transfer(bill.Currency, e.vault, bill.Debtor, settlement.DebtorResidual); err != nil {
			return nil, err
		}
	}
	if err := e.state.FactoringSetPoolBalance(bill.Currency, new(big.Int).Add(pool, settlement.FeeShare)); err != nil {
		return nil, err
	}
	if err := e.burn(billID); err != nil {
		return nil, err
	}
	bill.Status = BillCompleted
	bill.RemainingAmount = big.NewInt(0)
	bill.ClosedAt = e.now()
	if err := e.state.FactoringPutBill(bill); err != nil {
		return nil, err
	}
	e.emit(NewBillCompletedEvent(bill, settlement))
	return settlement, nil
}

// MarkBillDefaulted flags an active bill whose due date has passed. No funds
// move and the token stays live.
func (e *Engine) MarkBillDefaulted(caller [20]byte, billID uint64) (*Bill, error) {
	release, err := e.enter(caller, false)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.requireOperator(caller); err != nil {
		return nil, err
	}
	bill, err := e.loadBill(billID)
	if err != nil {
		return nil, err
	}
	if bill.Status != BillActive {
		return nil, fmt.Errorf("%w: bill %d is %s", ErrBillNotActive, billID, bill.Status)
	}
	now := e.now()
	if now <= bill.DueDate {
		return nil, fmt.Errorf("%w: bill %d due %d, now %d", ErrBillNotOverdue, billID, bill.DueDate, now)
	}
	bill.Status = BillDefaulted
	bill.ClosedAt = now
	if err := e.state.FactoringPutBill(bill); err != nil {
		return nil, err
	}
	e.emit(NewBillDefaultedEvent(bill, caller))
	return bill.Clone(), nil
}

// GetBill returns the bill with the given id.
func (e *Engine) GetBill(id uint64) (*Bill, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bill, err := e.loadBill(id)
	if err != nil {
		return nil, err
	}
	return bill.Clone(), nil
}

// GetBillWithOwner returns the bill together with its current holder. The
// holder is zero once the bill has been completed and its token burned.
func (e *Engine) GetBillWithOwner(id uint64) (*Bill, [20]byte, error) {
	bill, err := e.GetBill(id)
	if err != nil {
		return nil, [20]byte{}, err
	}
	holder, _, err := e.state.FactoringOwner(id)
	if err != nil {
		return nil, [20]byte{}, err
	}
	return bill, holder, nil
}

// GetBillsByOwner returns the holder's ownership history.
func (e *Engine) GetBillsByOwner(holder [20]byte) ([]uint64, error) {
	return e.HistoryOf(holder)
}
