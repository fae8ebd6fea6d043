package factoring

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every percentage in the module.
const BasisPoints = 10_000

// Conditions are the payout terms attached to an offer and copied to the bill
// it becomes. All values are basis points.
type Conditions struct {
	FeeBps     uint32
	UpfrontBps uint32
	OwnerBps   uint32
}

// Validate checks that every component is positive and that together they do
// not exceed 100%.
func (c Conditions) Validate() error {
	if c.FeeBps == 0 || c.UpfrontBps == 0 || c.OwnerBps == 0 {
		return fmt.Errorf("%w: every percentage must be positive (fee=%d upfront=%d owner=%d)",
			ErrInvalidConditions, c.FeeBps, c.UpfrontBps, c.OwnerBps)
	}
	sum := uint64(c.FeeBps) + uint64(c.UpfrontBps) + uint64(c.OwnerBps)
	if sum > BasisPoints {
		return fmt.Errorf("%w: percentages sum to %d bps", ErrInvalidConditions, sum)
	}
	return nil
}

// toUint256 converts a non-negative amount, rejecting values wider than 256
// bits.
func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	v, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrAmountOverflow, amount)
	}
	return v, nil
}

// bpsOf returns floor(amount * bps / 10,000).
func bpsOf(amount *big.Int, bps uint32) (*big.Int, error) {
	v, err := toUint256(amount)
	if err != nil {
		return nil, err
	}
	out, overflow := new(uint256.Int).MulDivOverflow(v, uint256.NewInt(uint64(bps)), uint256.NewInt(BasisPoints))
	if overflow {
		return nil, fmt.Errorf("%w: %s * %d bps", ErrAmountOverflow, amount, bps)
	}
	return out.ToBig(), nil
}

// UpfrontAmount is the deposit a lender escrows for an offer on total.
func UpfrontAmount(total *big.Int, c Conditions) (*big.Int, error) {
	return bpsOf(total, c.UpfrontBps)
}

// ComputeSettlement splits a bill's total between the current holder, the
// platform pool and the debtor. Flooring leaves any dust in the debtor
// residual.
func ComputeSettlement(bill *Bill, holder [20]byte) (*Settlement, error) {
	if bill == nil {
		return nil, ErrBillNotFound
	}
	ownerShare, err := bpsOf(bill.TotalAmount, bill.Conditions.OwnerBps)
	if err != nil {
		return nil, err
	}
	feeShare, err := bpsOf(bill.TotalAmount, bill.Conditions.FeeBps)
	if err != nil {
		return nil, err
	}
	ownerPayment := new(big.Int).Add(ownerShare, cloneBigInt(bill.UpfrontPaid))
	residual := new(big.Int).Sub(cloneBigInt(bill.TotalAmount), ownerPayment)
	residual.Sub(residual, feeShare)
	if residual.Sign() < 0 {
		return nil, fmt.Errorf("%w: bill %d payouts exceed total %s", ErrInvalidConditions, bill.ID, bill.TotalAmount)
	}
	return &Settlement{
		BillID:         bill.ID,
		Holder:         holder,
		Debtor:         bill.Debtor,
		Currency:       bill.Currency,
		OwnerShare:     ownerShare,
		FeeShare:       feeShare,
		OwnerPayment:   ownerPayment,
		DebtorResidual: residual,
	}, nil
}
