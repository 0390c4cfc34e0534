package mysql

import (
	"context"
	"errors"

	loanDomain "nftloan-backend/internal/domain/loan"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct{ db *gorm.DB }

var _ loanDomain.Repository = (*LoanRepository)(nil)

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(l).Error; err != nil {
			return err
		}
		return replaceChildren(tx, l)
	})
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(l).Error; err != nil {
			return err
		}
		return replaceChildren(tx, l)
	})
}

func (r *LoanRepository) GetByID(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// GetByIDForUpdate takes a row lock on the loan; children are read after it.
func (r *LoanRepository) GetByIDForUpdate(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	res := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&out, id)
	if err := notFound(res.Error); err != nil {
		return nil, err
	}
	if err := loadChildren(r.db.WithContext(ctx), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetMaxExtension writes the per-loan extension cap. Zero clears it so the
// global parameter applies again.
func (r *LoanRepository) SetMaxExtension(ctx context.Context, id uint64, seconds uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var l loanDomain.Loan
		if err := notFound(tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&l, id).Error); err != nil {
			return err
		}
		if !l.Exists() {
			return loanDomain.ErrLoanGone
		}
		return tx.Model(&l).Update("max_extension_duration", seconds).Error
	})
}

func (r *LoanRepository) get(db *gorm.DB, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	if err := notFound(db.First(&out, id).Error); err != nil {
		return nil, err
	}
	if err := loadChildren(db, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func loadChildren(db *gorm.DB, l *loanDomain.Loan) error {
	l.Lenders = nil
	l.Collaterals = nil
	if err := db.Where("loan_id = ?", l.ID).Order("position ASC").Find(&l.Lenders).Error; err != nil {
		return err
	}
	return db.Where("loan_id = ?", l.ID).Order("position ASC").Find(&l.Collaterals).Error
}

// replaceChildren rewrites both ordered lists; positions follow slice order.
func replaceChildren(tx *gorm.DB, l *loanDomain.Loan) error {
	if err := tx.Where("loan_id = ?", l.ID).Delete(&loanDomain.Lender{}).Error; err != nil {
		return err
	}
	if err := tx.Where("loan_id = ?", l.ID).Delete(&loanDomain.Collateral{}).Error; err != nil {
		return err
	}
	for i := range l.Lenders {
		l.Lenders[i].ID = 0
		l.Lenders[i].LoanID = l.ID
		l.Lenders[i].Position = i
	}
	for i := range l.Collaterals {
		l.Collaterals[i].ID = 0
		l.Collaterals[i].LoanID = l.ID
		l.Collaterals[i].Position = i
	}
	if len(l.Lenders) > 0 {
		if err := tx.Create(&l.Lenders).Error; err != nil {
			return err
		}
	}
	if len(l.Collaterals) > 0 {
		if err := tx.Create(&l.Collaterals).Error; err != nil {
			return err
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return loanDomain.ErrNotFound
	}
	return err
}
