package loan

import (
	"context"

	"nftloan-backend/internal/domain/interest"
	"nftloan-backend/internal/domain/loan"
	"nftloan-backend/internal/domain/params"
	"nftloan-backend/internal/domain/uow"

	"github.com/holiman/uint256"
)

const oneYear = 365 * 24 * 60 * 60

// extendFee is baseFee + floor(floor(principal*maxRate/100) * additional / oneYear).
func extendFee(l *loan.Loan, p params.Params, additional uint64) *uint256.Int {
	maxInterest := new(uint256.Int).Mul(l.LoanAmount, uint256.NewInt(p.MaxRate))
	maxInterest.Div(maxInterest, hundred)
	fee := maxInterest.Mul(maxInterest, uint256.NewInt(additional))
	fee.Div(fee, uint256.NewInt(oneYear))
	return fee.Add(fee, p.BaseExtendFee)
}

// Extend pushes the deadline out by AdditionalTime. The steeper extension
// rate is reported to the caller only; repayment keeps the regular curve over
// the new duration.
func (u *Usecase) Extend(ctx context.Context, in ExtendInput) (*ExtendResult, error) {
	var out *ExtendResult
	err := u.mutate(ctx, "extend", in.LoanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, p params.Params) error {
		if err := l.RequireBorrower(in.Caller); err != nil {
			return err
		}
		now := u.now()
		if err := checkRepayable(l, now); err != nil {
			return err
		}
		if in.AdditionalTime == 0 {
			return loan.ErrInvalidExtension
		}
		limit := l.MaxExtension(p.MaxExtensionDuration)
		if l.Duration > limit || in.AdditionalTime > limit-l.Duration {
			return loan.ErrExtensionTooLong
		}
		fee := extendFee(l, p, in.AdditionalTime)
		if in.Value == nil || in.Value.Lt(fee) {
			return loan.ErrInsufficientFee
		}
		if err := r.Funds.Receive(ctx, l.ID, in.Caller, in.Value); err != nil {
			return loan.TransferError("extension fee", err)
		}

		period := interest.Period{Now: now, EndTime: l.EndTime, Duration: l.Duration}
		extended := u.curve(p).Rate(period, in.AdditionalTime, true)

		l.Duration += in.AdditionalTime
		l.EndTime += in.AdditionalTime
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out = &ExtendResult{Fee: fee.Dec(), Duration: l.Duration, EndTime: l.EndTime, ExtendedRate: extended}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("loan extended", "op", "extend", "loan_id", in.LoanID, "caller", in.Caller.Hex(),
		"additional_time", in.AdditionalTime, "end_time", out.EndTime, "extended_rate", out.ExtendedRate)
	return out, nil
}
