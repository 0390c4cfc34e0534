package loan

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Fund appends a contribution. Entries are never merged with earlier ones from
// the same account. When the running total reaches the requested amount the
// loan is filled in the same step and its deadline fixed at now+Duration; the
// caller forwards the whole TotalLentAmount, overshoot included, to the borrower.
func (l *Loan) Fund(account common.Address, amount *uint256.Int, now uint64) (filled bool, err error) {
	if l.Filled {
		return false, ErrAlreadyFilled
	}
	if amount == nil || amount.IsZero() {
		return false, ErrInvalidAmount
	}
	if uint32(len(l.Lenders)) >= l.MaxLenders {
		return false, ErrLenderCapReached
	}

	l.Lenders = append(l.Lenders, Lender{
		LoanID:  l.ID,
		Account: account,
		Amount:  new(uint256.Int).Set(amount),
	})
	l.TotalLentAmount = new(uint256.Int).Add(l.total(), amount)

	if l.TotalLentAmount.Cmp(l.LoanAmount) >= 0 {
		l.Filled = true
		l.EndTime = now + l.Duration
		return true, nil
	}
	return false, nil
}

// WithdrawBeforeFill removes the first entry owned by account and returns its
// amount for refund. Later entries from the same account stay in place.
func (l *Loan) WithdrawBeforeFill(account common.Address) (*uint256.Int, error) {
	if l.Filled {
		return nil, ErrAlreadyFilled
	}
	for i, e := range l.Lenders {
		if e.Account != account {
			continue
		}
		l.Lenders = append(l.Lenders[:i], l.Lenders[i+1:]...)
		l.TotalLentAmount = new(uint256.Int).Sub(l.total(), e.Amount)
		return e.Amount, nil
	}
	return nil, ErrNotLender
}

// SumLenders adds up the lender entries; it always equals TotalLentAmount.
func (l *Loan) SumLenders() *uint256.Int {
	sum := new(uint256.Int)
	for _, e := range l.Lenders {
		sum.Add(sum, e.Amount)
	}
	return sum
}

func (l *Loan) total() *uint256.Int {
	if l.TotalLentAmount == nil {
		return new(uint256.Int)
	}
	return l.TotalLentAmount
}
