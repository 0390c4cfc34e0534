package mysql

import (
	"context"

	"nftloan-backend/internal/domain/loan"
	"nftloan-backend/internal/domain/uow"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
)

type GormUoW struct {
	db     *gorm.DB
	escrow common.Address
}

func NewGormUoW(db *gorm.DB, escrow common.Address) *GormUoW {
	return &GormUoW{db: db, escrow: escrow}
}

func (u *GormUoW) repos(tx *gorm.DB) uow.Repos {
	return uow.Repos{
		Loans:  &LoanRepository{db: tx},
		Funds:  &FundsLedger{db: tx, escrow: u.escrow},
		Assets: &AssetRegistry{db: tx},
	}
}

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(u.repos(tx))
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, loanID uint64, fn func(r uow.Repos, l *loan.Loan) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := u.repos(tx)
		// lock the loan row up-front to prevent races
		l, err := r.Loans.GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, l)
	})
}

// AutoMigrate creates every table the engine uses.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&loan.Loan{},
		&loan.Lender{},
		&loan.Collateral{},
		&accountBalance{},
		&assetOwner{},
	)
}
