package uow

import (
	"context"

	"nftloan-backend/internal/domain/custody"
	"nftloan-backend/internal/domain/loan"
)

// Repos are bound to one transaction; transfers made through Funds and Assets
// roll back with everything else.
type Repos struct {
	Loans  loan.Repository
	Funds  custody.Funds
	Assets custody.Assets
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock loan first, then pass it in
	WithinLoanTx(ctx context.Context, loanID uint64, fn func(r Repos, l *loan.Loan) error) error
}
