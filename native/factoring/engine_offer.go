package factoring

import (
	"fmt"
	"math/big"
)

// CreateOffer records caller's offer on an open request. The upfront deposit
// floor(total * upfront / 10,000) is moved into the vault before the offer is
// stored.
func (e *Engine) CreateOffer(caller [20]byte, requestID uint64, currency string, cond Conditions) (*Offer, error) {
	release, err := e.enter(caller, true)
	if err != nil {
		return nil, err
	}
	defer release()

	if caller == ([20]byte{}) {
		return nil, fmt.Errorf("%w: lender", ErrInvalidAddress)
	}
	req, err := e.loadRequest(requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestOpen {
		return nil, fmt.Errorf("%w: request %d is %s", ErrRequestNotOpen, requestID, req.Status)
	}
	normalized, err := e.normalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	deposit, err := UpfrontAmount(req.TotalAmount, cond)
	if err != nil {
		return nil, err
	}
	if err := e.requireFunds(normalized, caller, deposit); err != nil {
		return nil, err
	}
	if err := e.transfer(normalized, caller, e.vault, deposit); err != nil {
		return nil, err
	}

	id, err := e.state.FactoringNextOfferID()
	if err != nil {
		return nil, err
	}
	offer := &Offer{
		ID:              id,
		BillRequestID:   requestID,
		Lender:          caller,
		Currency:        normalized,
		Conditions:      cond,
		DepositedAmount: deposit,
		CreatedAt:       e.now(),
		Status:          OfferActive,
	}
	if err := e.state.FactoringPutOffer(offer); err != nil {
		return nil, err
	}
	if err := e.state.FactoringAppendRequestOffer(requestID, id); err != nil {
		return nil, err
	}
	e.emit(NewOfferCreatedEvent(offer))
	return offer.Clone(), nil
}

// WithdrawOffer returns the full deposit of caller's active offer.
func (e *Engine) WithdrawOffer(caller [20]byte, offerID uint64) (*Offer, error) {
	release, err := e.enter(caller, false)
	if err != nil {
		return nil, err
	}
	defer release()

	offer, err := e.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer.Lender != caller {
		return nil, fmt.Errorf("%w: offer %d", ErrNotLender, offerID)
	}
	if offer.Status != OfferActive {
		return nil, fmt.Errorf("%w: offer %d is %s", ErrOfferNotActive, offerID, offer.Status)
	}
	if err := e.transfer(offer.Currency, e.vault, offer.Lender, offer.DepositedAmount); err != nil {
		return nil, err
	}
	offer.Status = OfferWithdrawn
	if err := e.state.FactoringPutOffer(offer); err != nil {
		return nil, err
	}
	e.emit(NewOfferWithdrawnEvent(offer))
	return offer.Clone(), nil
}

// AcceptOffer binds the request to offerID. The caller, who must hold the
// request's token, receives the deposit; the token moves to the lender; the
// bill is created and every other active offer is refunded.
func (e *Engine) AcceptOffer(caller [20]byte, offerID uint64) (*Bill, error) {
	release, err := e.enter(caller, true)
	if err != nil {
		return nil, err
	}
	defer release()

	offer, err := e.loadOffer(offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status != OfferActive {
		return nil, fmt.Errorf("%w: offer %d is %s", ErrOfferNotActive, offerID, offer.Status)
	}
	req, err := e.loadRequest(offer.BillRequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestOpen {
		return nil, fmt.Errorf("%w: request %d is %s", ErrRequestNotOpen, req.ID, req.Status)
	}
	holder, err := e.CurrentHolder(req.ID)
	if err != nil {
		return nil, err
	}
	if holder != caller {
		return nil, fmt.Errorf("%w: request %d", ErrNotCurrentHolder, req.ID)
	}

	if err := e.transfer(offer.Currency, e.vault, caller, offer.DepositedAmount); err != nil {
		return nil, err
	}
	if err := e.moveToken(req.ID, caller, offer.Lender); err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(req.TotalAmount, offer.DepositedAmount)
	bill := &Bill{
		ID:              req.ID,
		Debtor:          req.Debtor,
		Lender:          offer.Lender,
		Currency:        offer.Currency,
		TotalAmount:     cloneBigInt(req.TotalAmount),
		UpfrontPaid:     cloneBigInt(offer.DepositedAmount),
		RemainingAmount: remaining,
		DueDate:         req.DueDate,
		Status:          BillActive,
		Conditions:      offer.Conditions,
		AcceptedOfferID: offer.ID,
		CreatedAt:       e.now(),
	}
	if err := e.state.FactoringPutBill(bill); err != nil {
		return nil, err
	}
	offer.Status = OfferAccepted
	if err := e.state.FactoringPutOffer(offer); err != nil {
		return nil, err
	}
	req.Status = RequestAccepted
	if err := e.state.FactoringPutRequest(req); err != nil {
		return nil, err
	}
	e.emit(NewOfferAcceptedEvent(offer, caller))
	if err := e.refundActiveOffers(req.ID, offer.ID); err != nil {
		return nil, err
	}
	return bill.Clone(), nil
}

// GetOffer returns the offer with the given id.
func (e *Engine) GetOffer(id uint64) (*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	offer, err := e.loadOffer(id)
	if err != nil {
		return nil, err
	}
	return offer.Clone(), nil
}

// GetOffersForBillRequest returns the request's offers in creation order.
func (e *Engine) GetOffersForBillRequest(requestID uint64) ([]*Offer, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.loadRequest(requestID); err != nil {
		return nil, err
	}
	ids, err := e.state.FactoringRequestOffers(requestID)
	if err != nil {
		return nil, err
	}
	out := make([]*Offer, 0, len(ids))
	for _, id := range ids {
		offer, err := e.loadOffer(id)
		if err != nil {
			return nil, err
		}
		out = append(out, offer.Clone())
	}
	return out, nil
}
