package loan

import "context"

type Repository interface {
	// Create assigns the next monotonic id.
	Create(ctx context.Context, l *Loan) error
	GetByID(ctx context.Context, id uint64) (*Loan, error)
	// GetByIDForUpdate locks the loan row for the rest of the transaction.
	GetByIDForUpdate(ctx context.Context, id uint64) (*Loan, error)
	// Save persists the record and replaces its lender and collateral lists.
	Save(ctx context.Context, l *Loan) error
}
