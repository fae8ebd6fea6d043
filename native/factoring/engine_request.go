package factoring

import (
	"fmt"
	"math/big"
)

// CreateBillRequest opens a request to factor total, due at dueDate (unix
// seconds), and mints its ownership token to caller.
func (e *Engine) CreateBillRequest(caller [20]byte, total *big.Int, dueDate uint64) (*BillRequest, error) {
	release, err := e.enter(caller, true)
	if err != nil {
		return nil, err
	}
	defer release()

	if caller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: debtor", ErrInvalidAddress)
	}
	if total == nil || total.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total %v", ErrInvalidAmount, total)
	}
	if _, err := toUint256(total); err != nil {
		return nil, err
	}
	now := e.now()
	if dueDate <= now {
		return nil, fmt.Errorf("%w: due %d, now %d", ErrInvalidDueDate, dueDate, now)
	}

	id, err := e.state.FactoringNextRequestID()
	if err != nil {
		return nil, err
	}
	req := &BillRequest{
		ID:          id,
		Debtor:      caller,
		TotalAmount: cloneBigInt(total),
		DueDate:     dueDate,
		CreatedAt:   now,
		Status:      RequestOpen,
	}
	if err := e.state.FactoringPutRequest(req); err != nil {
		return nil, err
	}
	if err := e.mint(id, caller); err != nil {
		return nil, err
	}
	e.emit(NewRequestCreatedEvent(req))
	return req.Clone(), nil
}

// CancelBillRequest cancels an open request held by caller and refunds every
// active offer in creation order. The ownership token stays with its holder.
func (e *Engine) CancelBillRequest(caller [20]byte, id uint64) (*BillRequest, error) {
	release, err := e.enter(caller, false)
	if err != nil {
		return nil, err
	}
	defer release()

	req, err := e.loadRequest(id)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestOpen {
		return nil, fmt.Errorf("%w: request %d is %s", ErrRequestNotOpen, id, req.Status)
	}
	holder, err := e.CurrentHolder(id)
	if err != nil {
		return nil, err
	}
	if holder != caller {
		return nil, fmt.Errorf("%w: request %d", ErrNotCurrentHolder, id)
	}

	req.Status = RequestCancelled
	if err := e.state.FactoringPutRequest(req); err != nil {
		return nil, err
	}
	if err := e.refundActiveOffers(id, 0); err != nil {
		return nil, err
	}
	e.emit(NewRequestCancelledEvent(req))
	return req.Clone(), nil
}

// refundActiveOffers walks the request's offers in insertion order and returns
// the deposit of every active offer other than keep, marking it expired.
func (e *Engine) refundActiveOffers(requestID, keep uint64) error {
	ids, err := e.state.FactoringRequestOffers(requestID)
	if err != nil {
		return err
	}
	for _, offerID := range ids {
		if offerID == keep {
			continue
		}
		offer, err := e.loadOffer(offerID)
		if err != nil {
			return err
		}
		if offer.Status != OfferActive {
			continue
		}
		if err := e.transfer(offer.Currency, e.vault, offer.Lender, offer.DepositedAmount); err != nil {
			return err
		}
		offer.Status = OfferExpired
		if err := e.state.FactoringPutOffer(offer); err != nil {
			return err
		}
		e.emit(NewOfferExpiredEvent(offer))
	}
	return nil
}

// GetBillRequest returns the request with the given id.
func (e *Engine) GetBillRequest(id uint64) (*BillRequest, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	req, err := e.loadRequest(id)
	if err != nil {
		return nil, err
	}
	return req.Clone(), nil
}
