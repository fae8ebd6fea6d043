package factoring

import (
	"fmt"
	"math/big"
	"strings"
)

// RequestStatus tracks the lifecycle of a bill request.
type RequestStatus uint8

const (
	RequestOpen RequestStatus = iota
	RequestAccepted
	RequestCancelled
)

// OfferStatus tracks the lifecycle of a lender offer.
type OfferStatus uint8

const (
	OfferActive OfferStatus = iota
	OfferAccepted
	OfferWithdrawn
	OfferExpired
)

// BillStatus tracks the lifecycle of an accepted bill.
type BillStatus uint8

const (
	BillActive BillStatus = iota
	BillCompleted
	BillDefaulted
)

func (s RequestStatus) String() string {
	switch s {
	case RequestOpen:
		return "open"
	case RequestAccepted:
		return "accepted"
	case RequestCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether the status value is within the supported range.
func (s RequestStatus) Valid() bool { return s <= RequestCancelled }

func (s OfferStatus) String() string {
	switch s {
	case OfferActive:
		return "active"
	case OfferAccepted:
		return "accepted"
	case OfferWithdrawn:
		return "withdrawn"
	case OfferExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s OfferStatus) Valid() bool { return s <= OfferExpired }

func (s BillStatus) String() string {
	switch s {
	case BillActive:
		return "active"
	case BillCompleted:
		return "completed"
	case BillDefaulted:
		return "defaulted"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

func (s BillStatus) Valid() bool { return s <= BillDefaulted }

// BillRequest is a debtor's request to factor a receivable. The request id is
// also the id of the ownership token minted for it and, once an offer is
// accepted, the id of the resulting bill.
type BillRequest struct {
	ID          uint64
	Debtor      [20]byte
	TotalAmount *big.Int
	DueDate     uint64
	CreatedAt   uint64
	Status      RequestStatus
}

// Clone returns a deep copy of the request.
func (r *BillRequest) Clone() *BillRequest {
	if r == nil {
		return nil
	}
	clone := *r
	clone.TotalAmount = cloneBigInt(r.TotalAmount)
	return &clone
}

// Offer is a lender's bid on a bill request. DepositedAmount is escrowed in the
// module vault for as long as the offer is active.
type Offer struct {
	ID              uint64
	BillRequestID   uint64
	Lender          [20]byte
	Currency        string
	Conditions      Conditions
	DepositedAmount *big.Int
	CreatedAt       uint64
	Status          OfferStatus
}

func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	clone.DepositedAmount = cloneBigInt(o.DepositedAmount)
	return &clone
}

// Bill is created when an offer is accepted and shares the id of its request.
type Bill struct {
	ID              uint64
	Debtor          [20]byte
	Lender          [20]byte
	Currency        string
	TotalAmount     *big.Int
	UpfrontPaid     *big.Int
	RemainingAmount *big.Int
	DueDate         uint64
	Status          BillStatus
	Conditions      Conditions
	AcceptedOfferID uint64
	CreatedAt       uint64
	ClosedAt        uint64
}

func (b *Bill) Clone() *Bill {
	if b == nil {
		return nil
	}
	clone := *b
	clone.TotalAmount = cloneBigInt(b.TotalAmount)
	clone.UpfrontPaid = cloneBigInt(b.UpfrontPaid)
	clone.RemainingAmount = cloneBigInt(b.RemainingAmount)
	return &clone
}

// Settlement is the receipt of a completed bill.
type Settlement struct {
	BillID         uint64
	Holder         [20]byte
	Debtor         [20]byte
	Currency       string
	OwnerShare     *big.Int
	FeeShare       *big.Int
	OwnerPayment   *big.Int
	DebtorResidual *big.Int
}

// SanitizeRequest validates a stored request and returns a normalised copy.
func SanitizeRequest(r *BillRequest) (*BillRequest, error) {
	if r == nil {
		return nil, fmt.Errorf("nil bill request")
	}
	clone := r.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("bill request id must be non-zero")
	}
	if clone.TotalAmount.Sign() <= 0 {
		return nil, fmt.Errorf("bill request %d: total amount must be positive", clone.ID)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid bill request status: %d", clone.Status)
	}
	return clone, nil
}

// SanitizeOffer validates a stored offer and returns a normalised copy.
func SanitizeOffer(o *Offer) (*Offer, error) {
	if o == nil {
		return nil, fmt.Errorf("nil offer")
	}
	clone := o.Clone()
	if clone.ID == 0 || clone.BillRequestID == 0 {
		return nil, fmt.Errorf("offer ids must be non-zero")
	}
	clone.Currency = NormalizeCurrency(clone.Currency)
	if clone.Currency == "" {
		return nil, fmt.Errorf("offer %d: currency required", clone.ID)
	}
	if clone.DepositedAmount.Sign() < 0 {
		return nil, fmt.Errorf("offer %d: deposit must be non-negative", clone.ID)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid offer status: %d", clone.Status)
	}
	return clone, nil
}

// SanitizeBill validates a stored bill and returns a normalised copy.
func SanitizeBill(b *Bill) (*Bill, error) {
	if b == nil {
		return nil, fmt.Errorf("nil bill")
	}
	clone := b.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("bill id must be non-zero")
	}
	clone.Currency = NormalizeCurrency(clone.Currency)
	if clone.Currency == "" {
		return nil, fmt.Errorf("bill %d: currency required", clone.ID)
	}
	if clone.TotalAmount.Sign() <= 0 {
		return nil, fmt.Errorf("bill %d: total amount must be positive", clone.ID)
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid bill status: %d", clone.Status)
	}
	return clone, nil
}

// NormalizeCurrency returns the canonical upper-case currency symbol.
func NormalizeCurrency(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
