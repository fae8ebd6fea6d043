package factoring

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"billfactor/core/types"
)

const (
	EventTypeRequestCreated       = "factoring.request.created"
	EventTypeRequestCancelled     = "factoring.request.cancelled"
	EventTypeOfferCreated         = "factoring.offer.created"
	EventTypeOfferWithdrawn       = "factoring.offer.withdrawn"
	EventTypeOfferExpired         = "factoring.offer.expired"
	EventTypeOfferAccepted        = "factoring.offer.accepted"
	EventTypeBillCompleted        = "factoring.bill.completed"
	EventTypeBillDefaulted        = "factoring.bill.defaulted"
	EventTypeOwnershipTransferred = "factoring.ownership.transferred"
	EventTypeApproval             = "factoring.ownership.approval"
	EventTypeApprovalForAll       = "factoring.ownership.approval_for_all"
	EventTypePoolWithdrawn        = "factoring.pool.withdrawn"
	EventTypeDefaultConditions    = "factoring.conditions.default_set"
	EventTypePaused               = "factoring.paused"
	EventTypeUnpaused             = "factoring.unpaused"
	EventTypeRoleGranted          = "factoring.role.granted"
	EventTypeRoleRevoked          = "factoring.role.revoked"
)

func hexAddr(addr [20]byte) string { return hex.EncodeToString(addr[:]) }

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func conditionAttrs(attrs map[string]string, c Conditions) {
	attrs["feeBps"] = strconv.FormatUint(uint64(c.FeeBps), 10)
	attrs["upfrontBps"] = strconv.FormatUint(uint64(c.UpfrontBps), 10)
	attrs["ownerBps"] = strconv.FormatUint(uint64(c.OwnerBps), 10)
}

func requestEvent(typ string, r *BillRequest) *types.Event {
	attrs := map[string]string{}
	if r != nil {
		attrs["requestId"] = formatID(r.ID)
		attrs["debtor"] = hexAddr(r.Debtor)
		attrs["totalAmount"] = formatAmount(r.TotalAmount)
		attrs["dueDate"] = strconv.FormatUint(r.DueDate, 10)
	}
	return &types.Event{Type: typ, Attributes: attrs}
}

// NewRequestCreatedEvent returns the payload emitted when a bill request is
// opened.
func NewRequestCreatedEvent(r *BillRequest) *types.Event {
	return requestEvent(EventTypeRequestCreated, r)
}

// NewRequestCancelledEvent returns the payload emitted when a bill request is
// cancelled.
func NewRequestCancelledEvent(r *BillRequest) *types.Event {
	return requestEvent(EventTypeRequestCancelled, r)
}

func offerEvent(typ string, o *Offer) *types.Event {
	attrs := map[string]string{}
	if o != nil {
		attrs["offerId"] = formatID(o.ID)
		attrs["requestId"] = formatID(o.BillRequestID)
		attrs["lender"] = hexAddr(o.Lender)
		attrs["currency"] = o.Currency
		attrs["deposit"] = formatAmount(o.DepositedAmount)
		conditionAttrs(attrs, o.Conditions)
	}
	return &types.Event{Type: typ, Attributes: attrs}
}

func NewOfferCreatedEvent(o *Offer) *types.Event { return offerEvent(EventTypeOfferCreated, o) }

func NewOfferWithdrawnEvent(o *Offer) *types.Event { return offerEvent(EventTypeOfferWithdrawn, o) }

// NewOfferExpiredEvent is emitted for each competing offer refunded when a
// request is accepted or cancelled.
func NewOfferExpiredEvent(o *Offer) *types.Event { return offerEvent(EventTypeOfferExpired, o) }

// NewOfferAcceptedEvent records the accepted offer and the holder who received
// the upfront payment.
func NewOfferAcceptedEvent(o *Offer, acceptedBy [20]byte) *types.Event {
	evt := offerEvent(EventTypeOfferAccepted, o)
	evt.Attributes["acceptedBy"] = hexAddr(acceptedBy)
	return evt
}

// NewBillCompletedEvent carries the settlement receipt of a completed bill.
func NewBillCompletedEvent(b *Bill, s *Settlement) *types.Event {
	attrs := map[string]string{}
	if b != nil {
		attrs["billId"] = formatID(b.ID)
		attrs["debtor"] = hexAddr(b.Debtor)
		attrs["currency"] = b.Currency
		attrs["totalAmount"] = formatAmount(b.TotalAmount)
	}
	if s != nil {
		attrs["holder"] = hexAddr(s.Holder)
		attrs["ownerShare"] = formatAmount(s.OwnerShare)
		attrs["feeShare"] = formatAmount(s.FeeShare)
		attrs["ownerPayment"] = formatAmount(s.OwnerPayment)
		attrs["debtorResidual"] = formatAmount(s.DebtorResidual)
	}
	return &types.Event{Type: EventTypeBillCompleted, Attributes: attrs}
}

func NewBillDefaultedEvent(b *Bill, by [20]byte) *types.Event {
	attrs := map[string]string{"markedBy": hexAddr(by)}
	if b != nil {
		attrs["billId"] = formatID(b.ID)
		attrs["debtor"] = hexAddr(b.Debtor)
		attrs["dueDate"] = strconv.FormatUint(b.DueDate, 10)
		attrs["remainingAmount"] = formatAmount(b.RemainingAmount)
	}
	return &types.Event{Type: EventTypeBillDefaulted, Attributes: attrs}
}

// NewOwnershipTransferredEvent uses the zero address for mints (from) and
// burns (to).
func NewOwnershipTransferredEvent(id uint64, from, to [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnershipTransferred, Attributes: map[string]string{
		"tokenId": formatID(id),
		"from":    hexAddr(from),
		"to":      hexAddr(to),
	}}
}

func NewApprovalEvent(id uint64, holder, spender [20]byte) *types.Event {
	return &types.Event{Type: EventTypeApproval, Attributes: map[string]string{
		"tokenId": formatID(id),
		"holder":  hexAddr(holder),
		"spender": hexAddr(spender),
	}}
}

func NewApprovalForAllEvent(holder, operator [20]byte, approved bool) *types.Event {
	return &types.Event{Type: EventTypeApprovalForAll, Attributes: map[string]string{
		"holder":   hexAddr(holder),
		"operator": hexAddr(operator),
		"approved": strconv.FormatBool(approved),
	}}
}

func NewPoolWithdrawnEvent(currency string, to [20]byte, amount, remaining *big.Int) *types.Event {
	return &types.Event{Type: EventTypePoolWithdrawn, Attributes: map[string]string{
		"currency":  currency,
		"to":        hexAddr(to),
		"amount":    formatAmount(amount),
		"remaining": formatAmount(remaining),
	}}
}

func NewDefaultConditionsEvent(c Conditions, by [20]byte) *types.Event {
	attrs := map[string]string{"setBy": hexAddr(by)}
	conditionAttrs(attrs, c)
	return &types.Event{Type: EventTypeDefaultConditions, Attributes: attrs}
}

func NewPauseEvent(paused bool, by [20]byte) *types.Event {
	typ := EventTypeUnpaused
	if paused {
		typ = EventTypePaused
	}
	return &types.Event{Type: typ, Attributes: map[string]string{"by": hexAddr(by)}}
}

func NewRoleEvent(role string, addr [20]byte, granted bool) *types.Event {
	typ := EventTypeRoleRevoked
	if granted {
		typ = EventTypeRoleGranted
	}
	return &types.Event{Type: typ, Attributes: map[string]string{
		"role":    role,
		"address": hexAddr(addr),
	}}
}
