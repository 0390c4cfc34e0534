package loan

import (
	"time"

	"nftloan-backend/internal/domain/liquidation"
	"nftloan-backend/internal/domain/loan"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type CreateLoanInput struct {
	Caller     common.Address
	Amount     *uint256.Int
	MaxLenders uint32
	Value      *uint256.Int // attached payment, must equal the creation fee
}

type CollateralItem struct {
	Collection common.Address
	ItemID     *uint256.Int
}

type ProvideCollateralInput struct {
	Caller common.Address
	LoanID uint64
	Items  []CollateralItem
}

type FundInput struct {
	Caller common.Address
	LoanID uint64
	Value  *uint256.Int
}

type RepayInput struct {
	Caller common.Address
	LoanID uint64
	Value  *uint256.Int
}

type ExtendInput struct {
	Caller         common.Address
	LoanID         uint64
	AdditionalTime uint64
	Value          *uint256.Int
}

type LenderDTO struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type CollateralDTO struct {
	Collection string `json:"collection"`
	ItemID     string `json:"item_id"`
}

type LoanDTO struct {
	ID                   uint64          `json:"id"`
	Borrower             string          `json:"borrower"`
	LoanAmount           string          `json:"loan_amount"`
	Duration             uint64          `json:"duration"`
	EndTime              uint64          `json:"end_time"`
	MaxLenders           uint32          `json:"max_lenders"`
	MaxExtensionDuration uint64          `json:"max_extension_duration"`
	State                string          `json:"state"`
	TotalLentAmount      string          `json:"total_lent_amount"`
	Lenders              []LenderDTO     `json:"lenders"`
	Collaterals          []CollateralDTO `json:"collaterals"`
	CreatedAt            time.Time       `json:"created_at"`
}

type FundResult struct {
	Loan   *LoanDTO `json:"loan"`
	Filled bool     `json:"filled"`
}

type WithdrawResult struct {
	Refund string `json:"refund"`
}

// QuoteDTO is what repaying right now would cost.
type QuoteDTO struct {
	LoanID   uint64 `json:"loan_id"`
	Rate     uint64 `json:"rate"`
	TotalDue string `json:"total_due"`
	EndTime  uint64 `json:"end_time"`
}

type RepayResult struct {
	Rate     uint64 `json:"rate"`
	TotalDue string `json:"total_due"`
	Paid     string `json:"paid"` // sum of lender payouts, may trail TotalDue by rounding dust
}

type ExtendResult struct {
	Fee          string `json:"fee"`
	Duration     uint64 `json:"duration"`
	EndTime      uint64 `json:"end_time"`
	ExtendedRate uint64 `json:"extended_rate"` // informational, not bound into the loan
}

type SeizedItemDTO struct {
	Lender     string `json:"lender"`
	Collection string `json:"collection"`
	ItemID     string `json:"item_id"`
}

type SeizeResult struct {
	Seized    []SeizedItemDTO `json:"seized"`
	Remaining int             `json:"remaining"`
}

func toDTO(l *loan.Loan) *LoanDTO {
	out := &LoanDTO{
		ID:                   l.ID,
		Borrower:             l.Borrower.Hex(),
		LoanAmount:           dec(l.LoanAmount),
		Duration:             l.Duration,
		EndTime:              l.EndTime,
		MaxLenders:           l.MaxLenders,
		MaxExtensionDuration: l.MaxExtensionDuration,
		State:                string(l.State()),
		TotalLentAmount:      dec(l.TotalLentAmount),
		Lenders:              make([]LenderDTO, 0, len(l.Lenders)),
		Collaterals:          make([]CollateralDTO, 0, len(l.Collaterals)),
		CreatedAt:            l.CreatedAt,
	}
	for _, e := range l.Lenders {
		out.Lenders = append(out.Lenders, LenderDTO{Account: e.Account.Hex(), Amount: dec(e.Amount)})
	}
	for _, c := range l.Collaterals {
		out.Collaterals = append(out.Collaterals, CollateralDTO{Collection: c.Collection.Hex(), ItemID: dec(c.ItemID)})
	}
	return out
}

func toSeized(l *loan.Loan, assigned []liquidation.Assignment) []SeizedItemDTO {
	out := make([]SeizedItemDTO, 0, len(assigned))
	for _, a := range assigned {
		c := l.Collaterals[a.Collateral]
		out = append(out, SeizedItemDTO{
			Lender:     l.Lenders[a.Lender].Account.Hex(),
			Collection: c.Collection.Hex(),
			ItemID:     dec(c.ItemID),
		})
	}
	return out
}

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
