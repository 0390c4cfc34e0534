package loan

import (
	"context"
	"errors"
	"testing"
	"time"

	"nftloan-backend/internal/domain/loan"
	"nftloan-backend/internal/domain/params"
	"nftloan-backend/internal/domain/uow"
	"nftloan-backend/internal/infrastructure/lock"
	"nftloan-backend/internal/testutil/custodymock"
	"nftloan-backend/internal/testutil/loanmock"
	"nftloan-backend/internal/testutil/uowmock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type countingRecorder struct{ ops map[string]int }

func (c *countingRecorder) Observe(op string, err error, _ time.Duration) {
	if err != nil {
		op += ":err"
	}
	c.ops[op]++
}

func openLoan(id uint64) *loan.Loan {
	l := loan.New(borrower, amt(1000), thirtyDays, 3)
	l.ID = id
	return l
}

func filledLoan(id uint64) *loan.Loan {
	return seizableLoan(id, 600, 400)
}

func mockUsecase(t *testing.T, stored *loan.Loan, funds *custodymock.Funds, saved *int) (*Usecase, *countingRecorder) {
	t.Helper()
	loans := &loanmock.Repo{
		GetByIDForUpdateFn: func(_ context.Context, id uint64) (*loan.Loan, error) {
			if id != stored.ID {
				return nil, loan.ErrNotFound
			}
			return stored, nil
		},
		SaveFn: func(context.Context, *loan.Loan) error {
			*saved++
			return nil
		},
	}
	rec := &countingRecorder{ops: map[string]int{}}
	tx := uowmock.Passthrough(uow.Repos{Loans: loans, Funds: funds, Assets: &custodymock.Assets{}})
	uc := NewUsecase(loans, tx, params.NewStatic(testParams()), lock.NewLocalLocker(), Config{
		Escrow:  escrow,
		Metrics: rec,
		Clock:   func() time.Time { return start },
	})
	return uc, rec
}

func TestReentrantCallFromTransferIsRejected(t *testing.T) {
	var (
		uc        *Usecase
		reentered error
		saved     int
	)
	funds := &custodymock.Funds{
		TransferFn: func(ctx context.Context, _ uint64, to common.Address, amount *uint256.Int) error {
			// a receiver hook calling back into the engine, on another loan
			_, reentered = uc.Fund(ctx, FundInput{Caller: to, LoanID: 2, Value: amt(1)})
			return nil
		},
	}
	uc, _ = mockUsecase(t, openLoan(1), funds, &saved)
	uc.loans.(*loanmock.Repo).GetByIDForUpdateFn = func(_ context.Context, id uint64) (*loan.Loan, error) {
		return openLoan(id), nil
	}

	if _, err := uc.Fund(context.Background(), FundInput{Caller: alice, LoanID: 1, Value: amt(1000)}); err != nil {
		t.Fatalf("outer Fund: %v", err)
	}
	if !errors.Is(reentered, loan.ErrReentrant) || !errors.Is(reentered, loan.ErrState) {
		t.Fatalf("inner call: want ErrReentrant, got %v", reentered)
	}
	if saved != 1 {
		t.Fatalf("saves=%d, want only the outer one", saved)
	}

	// the guard was released on exit, so a fresh call on the same loan proceeds
	funds.TransferFn = nil
	if _, err := uc.Fund(context.Background(), FundInput{Caller: bob, LoanID: 1, Value: amt(10)}); err != nil {
		t.Fatalf("call after release: %v", err)
	}
}

func TestGuardReleasedOnFailure(t *testing.T) {
	var saved int
	uc, rec := mockUsecase(t, openLoan(1), &custodymock.Funds{}, &saved)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if _, err := uc.Fund(ctx, FundInput{Caller: alice, LoanID: 1, Value: amt(0)}); !errors.Is(err, loan.ErrInvalidAmount) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if rec.ops["fund:err"] != 3 {
		t.Fatalf("metrics=%v", rec.ops)
	}
	if saved != 0 {
		t.Fatalf("rejected contribution was saved")
	}
}

func TestRepay_PayoutFailureAbortsWithoutSaving(t *testing.T) {
	var saved int
	failing := errors.New("receiver rejected")
	funds := &custodymock.Funds{
		TransferFn: func(_ context.Context, _ uint64, to common.Address, _ *uint256.Int) error {
			if to == bob {
				return failing
			}
			return nil
		},
	}
	l := filledLoan(1)
	uc, _ := mockUsecase(t, l, funds, &saved)

	_, err := uc.Repay(context.Background(), RepayInput{Caller: borrower, LoanID: 1, Value: amt(1050)})
	if !errors.Is(err, loan.ErrTransfer) || !errors.Is(err, failing) {
		t.Fatalf("want transfer failure, got %v", err)
	}
	if saved != 0 {
		t.Fatalf("loan saved after failed payout")
	}
}

func seizableLoan(id uint64, amounts ...uint64) *loan.Loan {
	l := openLoan(id)
	_ = l.AddCollateral(loan.Collateral{Collection: collection, ItemID: amt(id)}, 0)
	lenders := []common.Address{alice, bob}
	for i, a := range amounts {
		_, _ = l.Fund(lenders[i], amt(a), uint64(start.Unix()))
	}
	return l
}

func TestSeize_AssetFailureAbortsWithoutSaving(t *testing.T) {
	stuck := &custodymock.Assets{
		TransferFn: func(context.Context, common.Address, *uint256.Int, common.Address, common.Address) error {
			return errors.New("stuck")
		},
	}
	expired := func() time.Time { return start.Add((thirtyDays + 1) * time.Second) }

	// shares are floor(600/1000) and floor(400/1000): nothing is assigned, nothing moves
	var saved int
	uc, _ := mockUsecase(t, seizableLoan(1, 600, 400), &custodymock.Funds{}, &saved)
	uc.clock = expired
	uc.uow = uowmock.Passthrough(uow.Repos{Loans: uc.loans, Funds: &custodymock.Funds{}, Assets: stuck})
	res, err := uc.Seize(context.Background(), alice, 1)
	if err != nil || len(res.Seized) != 0 || res.Remaining != 1 {
		t.Fatalf("dust-only seizure: %+v %v", res, err)
	}

	saved = 0
	uc, _ = mockUsecase(t, seizableLoan(2, 1000), &custodymock.Funds{}, &saved)
	uc.clock = expired
	uc.uow = uowmock.Passthrough(uow.Repos{Loans: uc.loans, Funds: &custodymock.Funds{}, Assets: stuck})
	if _, err := uc.Seize(context.Background(), alice, 2); !errors.Is(err, loan.ErrTransfer) {
		t.Fatalf("want ErrTransfer, got %v", err)
	}
	if saved != 0 {
		t.Fatalf("loan saved after failed seizure")
	}
}
