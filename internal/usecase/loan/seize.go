package loan

import (
	"context"
	"fmt"

	"nftloan-backend/internal/domain/liquidation"
	"nftloan-backend/internal/domain/loan"
	"nftloan-backend/internal/domain/params"
	"nftloan-backend/internal/domain/uow"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// rank orders the loan's collateral for seizure. Without an oracle the
// insertion order is kept.
func (u *Usecase) rank(ctx context.Context, items []loan.Collateral) ([]int, error) {
	if u.oracle == nil {
		return liquidation.InsertionOrder(len(items)), nil
	}
	cache := make(map[common.Address]*uint256.Int)
	values := make([]*uint256.Int, len(items))
	for i, c := range items {
		v, ok := cache[c.Collection]
		if !ok {
			var err error
			if v, err = u.oracle.LatestValue(ctx, c.Collection); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", loan.ErrUnpriced, c.Collection.Hex(), err)
			}
			cache[c.Collection] = v
		}
		values[i] = v
	}
	return liquidation.Rank(values), nil
}

// Seize hands expired, unrepaid collateral to the lenders in proportion to
// their entries. Items lost to rounding stay in escrow.
func (u *Usecase) Seize(ctx context.Context, caller common.Address, loanID uint64) (*SeizeResult, error) {
	var out *SeizeResult
	err := u.mutate(ctx, "seize", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, _ params.Params) error {
		switch {
		case !l.IsLender(caller):
			return loan.ErrNotLender
		case !l.Filled:
			return loan.ErrNotFilled
		case l.Repaid:
			return loan.ErrAlreadyRepaid
		case l.Seized:
			return loan.ErrAlreadySeized
		case u.now() <= l.EndTime:
			return loan.ErrDeadlineNotReached
		}

		ranked, err := u.rank(ctx, l.Collaterals)
		if err != nil {
			return err
		}
		amounts := make([]*uint256.Int, len(l.Lenders))
		for i, e := range l.Lenders {
			amounts[i] = e.Amount
		}
		assigned := liquidation.Allocate(ranked, amounts, l.TotalLentAmount)

		taken := make([]int, 0, len(assigned))
		for _, a := range assigned {
			c := l.Collaterals[a.Collateral]
			if err := r.Assets.Transfer(ctx, c.Collection, c.ItemID, u.escrow, l.Lenders[a.Lender].Account); err != nil {
				return loan.TransferError("collateral seizure", err)
			}
			taken = append(taken, a.Collateral)
		}
		seized := toSeized(l, assigned)

		l.RemoveCollaterals(taken)
		l.Seized = true
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out = &SeizeResult{Seized: seized, Remaining: len(l.Collaterals)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("collateral seized", "op", "seize", "loan_id", loanID, "caller", caller.Hex(),
		"seized", len(out.Seized), "remaining", out.Remaining)
	return out, nil
}
