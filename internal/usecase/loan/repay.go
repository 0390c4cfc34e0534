package loan

import (
	"context"

	"nftloan-backend/internal/domain/interest"
	"nftloan-backend/internal/domain/loan"
	"nftloan-backend/internal/domain/params"
	"nftloan-backend/internal/domain/uow"

	"github.com/holiman/uint256"
)

var hundred = uint256.NewInt(100)

// withInterest returns amount + floor(amount*rate/100).
func withInterest(amount *uint256.Int, rate uint64) *uint256.Int {
	out := new(uint256.Int).Mul(amount, uint256.NewInt(rate))
	out.Div(out, hundred)
	return out.Add(out, amount)
}

func checkRepayable(l *loan.Loan, now uint64) error {
	switch {
	case !l.Exists():
		return loan.ErrLoanGone
	case !l.Filled:
		return loan.ErrNotFilled
	case l.Repaid:
		return loan.ErrAlreadyRepaid
	case l.Seized:
		return loan.ErrAlreadySeized
	case now > l.EndTime:
		return loan.ErrDeadlinePassed
	}
	return nil
}

// totalDue prices the principal at the regular curve rate for now.
func totalDue(l *loan.Loan, p params.Params, now uint64) (uint64, *uint256.Int) {
	curve := interest.Curve{MinRate: p.MinRate, MaxRate: p.MaxRate}
	rate := curve.Rate(interest.Period{Now: now, EndTime: l.EndTime, Duration: l.Duration}, 0, false)
	return rate, withInterest(l.LoanAmount, rate)
}

// Repay takes exactly the amount due and pays every lender entry its amount
// plus interest, each floored on its own. Whatever the floors leave behind
// stays in escrow. Collateral goes back to the borrower.
func (u *Usecase) Repay(ctx context.Context, in RepayInput) (*RepayResult, error) {
	var out *RepayResult
	err := u.mutate(ctx, "repay", in.LoanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, p params.Params) error {
		if err := l.RequireBorrower(in.Caller); err != nil {
			return err
		}
		now := u.now()
		if err := checkRepayable(l, now); err != nil {
			return err
		}
		rate, due := totalDue(l, p, now)
		if in.Value == nil || !in.Value.Eq(due) {
			return loan.ErrWrongPayment
		}
		if err := r.Funds.Receive(ctx, l.ID, in.Caller, in.Value); err != nil {
			return loan.TransferError("repayment", err)
		}

		paid := new(uint256.Int)
		for _, e := range l.Lenders {
			payout := withInterest(e.Amount, rate)
			if err := r.Funds.Transfer(ctx, l.ID, e.Account, payout); err != nil {
				u.log.Warn("payout failed", "op", "repay", "loan_id", l.ID, "lender", e.Account.Hex(), "err", err)
				return loan.TransferError("payout", err)
			}
			paid.Add(paid, payout)
		}

		l.Repaid = true
		if err := u.returnCollateral(ctx, r.Assets, l); err != nil {
			return err
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out = &RepayResult{Rate: rate, TotalDue: due.Dec(), Paid: paid.Dec()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("loan repaid", "op", "repay", "loan_id", in.LoanID, "caller", in.Caller.Hex(),
		"rate", out.Rate, "total_due", out.TotalDue, "paid", out.Paid)
	return out, nil
}
