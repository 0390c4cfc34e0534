package loan

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type State string

const (
	StateOpen      State = "open"
	StateFilled    State = "filled"
	StateRepaid    State = "repaid"
	StateSeized    State = "seized"
	StateCancelled State = "cancelled"
)

// Loan is one borrow request. Times and durations are unix seconds.
// A cancelled loan keeps its row with every field zeroed so ids are never reused.
type Loan struct {
	ID                   uint64         `gorm:"primaryKey;column:id;autoIncrement" json:"id"`
	Borrower             common.Address `gorm:"column:borrower;size:20;index:idx_loans_borrower" json:"borrower"`
	LoanAmount           *uint256.Int   `gorm:"column:loan_amount;size:78" json:"loan_amount"`
	Duration             uint64         `gorm:"column:duration" json:"duration"`
	EndTime              uint64         `gorm:"column:end_time" json:"end_time"`
	MaxLenders           uint32         `gorm:"column:max_lenders" json:"max_lenders"`
	MaxExtensionDuration uint64         `gorm:"column:max_extension_duration" json:"max_extension_duration"`
	Filled               bool           `gorm:"column:filled" json:"filled"`
	Repaid               bool           `gorm:"column:repaid" json:"repaid"`
	Seized               bool           `gorm:"column:seized" json:"seized"`
	TotalLentAmount      *uint256.Int   `gorm:"column:total_lent_amount;size:78" json:"total_lent_amount"`
	Lenders              []Lender       `gorm:"foreignKey:LoanID" json:"lenders"`
	Collaterals          []Collateral   `gorm:"foreignKey:LoanID" json:"collaterals"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

// Lender is a single contribution. The same account may hold several entries.
type Lender struct {
	ID       uint64         `gorm:"primaryKey;column:id" json:"-"`
	LoanID   uint64         `gorm:"column:loan_id;index:idx_lenders_loan_pos,priority:1" json:"-"`
	Position int            `gorm:"column:position;index:idx_lenders_loan_pos,priority:2" json:"-"`
	Account  common.Address `gorm:"column:account;size:20" json:"account"`
	Amount   *uint256.Int   `gorm:"column:amount;size:78" json:"amount"`
}

func (Lender) TableName() string { return "loan_lenders" }

// Collateral is one non-fungible item held in escrow for the loan.
type Collateral struct {
	ID         uint64         `gorm:"primaryKey;column:id" json:"-"`
	LoanID     uint64         `gorm:"column:loan_id;index:idx_collaterals_loan_pos,priority:1" json:"-"`
	Position   int            `gorm:"column:position;index:idx_collaterals_loan_pos,priority:2" json:"-"`
	Collection common.Address `gorm:"column:collection;size:20" json:"collection"`
	ItemID     *uint256.Int   `gorm:"column:item_id;size:78" json:"item_id"`
}

func (Collateral) TableName() string { return "loan_collaterals" }

// New returns an Open loan with zeroed running totals.
func New(borrower common.Address, amount *uint256.Int, duration uint64, maxLenders uint32) *Loan {
	return &Loan{
		Borrower:        borrower,
		LoanAmount:      new(uint256.Int).Set(amount),
		Duration:        duration,
		MaxLenders:      maxLenders,
		TotalLentAmount: new(uint256.Int),
	}
}

func (l *Loan) State() State {
	switch {
	case l.Borrower == (common.Address{}):
		return StateCancelled
	case l.Repaid:
		return StateRepaid
	case l.Seized:
		return StateSeized
	case l.Filled:
		return StateFilled
	default:
		return StateOpen
	}
}

// Exists reports whether the record still has a borrower.
func (l *Loan) Exists() bool { return l.Borrower != (common.Address{}) }

// RequireBorrower fails unless caller is the loan's borrower.
func (l *Loan) RequireBorrower(caller common.Address) error {
	if !l.Exists() {
		return ErrLoanGone
	}
	if l.Borrower != caller {
		return ErrNotBorrower
	}
	return nil
}

// IsLender scans the lender list for any entry owned by account.
func (l *Loan) IsLender(account common.Address) bool {
	for _, e := range l.Lenders {
		if e.Account == account {
			return true
		}
	}
	return false
}

// MaxExtension returns the per-loan override, or def when none is set.
func (l *Loan) MaxExtension(def uint64) uint64 {
	if l.MaxExtensionDuration > 0 {
		return l.MaxExtensionDuration
	}
	return def
}

// AddCollateral attaches an item while the loan is still open.
func (l *Loan) AddCollateral(c Collateral, limit int) error {
	if l.Filled {
		return ErrAlreadyFilled
	}
	if c.ItemID == nil || c.Collection == (common.Address{}) {
		return ErrInvalidCollateral
	}
	if limit > 0 && len(l.Collaterals) >= limit {
		return ErrCollateralCap
	}
	c.LoanID = l.ID
	c.ItemID = new(uint256.Int).Set(c.ItemID)
	l.Collaterals = append(l.Collaterals, c)
	return nil
}

// RemoveCollaterals drops the items at the given indexes and keeps the order of the rest.
func (l *Loan) RemoveCollaterals(indexes []int) {
	if len(indexes) == 0 {
		return
	}
	drop := make(map[int]struct{}, len(indexes))
	for _, i := range indexes {
		drop[i] = struct{}{}
	}
	kept := l.Collaterals[:0]
	for i, c := range l.Collaterals {
		if _, ok := drop[i]; !ok {
			kept = append(kept, c)
		}
	}
	l.Collaterals = kept
}

// Erase zeroes the record in place. Only the id survives.
func (l *Loan) Erase() {
	*l = Loan{
		ID:              l.ID,
		CreatedAt:       l.CreatedAt,
		LoanAmount:      new(uint256.Int),
		TotalLentAmount: new(uint256.Int),
	}
}
