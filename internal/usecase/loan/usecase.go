package loan

import (
	"context"
	"log/slog"
	"time"

	"nftloan-backend/internal/domain/custody"
	"nftloan-backend/internal/domain/interest"
	"nftloan-backend/internal/domain/loan"
	"nftloan-backend/internal/domain/oracle"
	"nftloan-backend/internal/domain/params"
	"nftloan-backend/internal/domain/uow"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Recorder receives one observation per operation.
type Recorder interface {
	Observe(op string, err error, elapsed time.Duration)
}

type Config struct {
	Escrow  common.Address     // account holding fees, funds and collateral
	Oracle  oracle.ValueOracle // nil ranks seized collateral in insertion order
	Logger  *slog.Logger
	Metrics Recorder
	Clock   func() time.Time
}

type Usecase struct {
	loans   loan.Repository
	uow     uow.UnitOfWork
	params  params.Source
	locker  Locker
	escrow  common.Address
	oracle  oracle.ValueOracle
	log     *slog.Logger
	metrics Recorder
	clock   func() time.Time
}

func NewUsecase(loans loan.Repository, tx uow.UnitOfWork, src params.Source, locker Locker, cfg Config) *Usecase {
	u := &Usecase{
		loans:   loans,
		uow:     tx,
		params:  src,
		locker:  locker,
		escrow:  cfg.Escrow,
		oracle:  cfg.Oracle,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		clock:   cfg.Clock,
	}
	if u.log == nil {
		u.log = slog.Default()
	}
	if u.clock == nil {
		u.clock = time.Now
	}
	return u
}

func (u *Usecase) now() uint64 {
	ts := u.clock().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// exec runs a guarded operation against a fresh params snapshot and records it.
func (u *Usecase) exec(ctx context.Context, op, key string, fn func(ctx context.Context, p params.Params) error) error {
	start := time.Now()
	err := func() error {
		ctx, unlock, err := u.guard(ctx, key)
		if err != nil {
			return err
		}
		defer unlock()
		p, err := u.params.Snapshot(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, p)
	}()
	if u.metrics != nil {
		u.metrics.Observe(op, err, time.Since(start))
	}
	return err
}

// mutate is exec on one locked, existing loan record.
func (u *Usecase) mutate(ctx context.Context, op string, loanID uint64, fn func(ctx context.Context, r uow.Repos, l *loan.Loan, p params.Params) error) error {
	return u.exec(ctx, op, loanKey(loanID), func(ctx context.Context, p params.Params) error {
		return u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *loan.Loan) error {
			if !l.Exists() {
				return loan.ErrLoanGone
			}
			return fn(ctx, r, l, p)
		})
	})
}

func (u *Usecase) Create(ctx context.Context, in CreateLoanInput) (*LoanDTO, error) {
	var out *LoanDTO
	err := u.exec(ctx, "create", createKey(in.Caller), func(ctx context.Context, p params.Params) error {
		if in.Amount == nil || in.Amount.IsZero() {
			return loan.ErrInvalidAmount
		}
		if in.MaxLenders == 0 || in.MaxLenders > p.MaxLenders {
			return loan.ErrInvalidMaxLenders
		}
		if in.Value == nil || !in.Value.Eq(p.CreationFee) {
			return loan.ErrWrongPayment
		}
		return u.uow.WithinTx(ctx, func(r uow.Repos) error {
			l := loan.New(in.Caller, in.Amount, p.DefaultDuration, in.MaxLenders)
			if err := r.Loans.Create(ctx, l); err != nil {
				return err
			}
			if err := r.Funds.Receive(ctx, l.ID, in.Caller, in.Value); err != nil {
				return loan.TransferError("creation fee", err)
			}
			out = toDTO(l)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("loan created", "op", "create", "loan_id", out.ID, "caller", in.Caller.Hex(), "amount", out.LoanAmount)
	return out, nil
}

// Get returns the record as stored. A cancelled id reads as an empty record.
func (u *Usecase) Get(ctx context.Context, loanID uint64) (*LoanDTO, error) {
	l, err := u.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return toDTO(l), nil
}

func (u *Usecase) LenderCount(ctx context.Context, loanID uint64) (int, error) {
	l, err := u.loans.GetByID(ctx, loanID)
	if err != nil {
		return 0, err
	}
	return len(l.Lenders), nil
}

func (u *Usecase) CollateralCount(ctx context.Context, loanID uint64) (int, error) {
	l, err := u.loans.GetByID(ctx, loanID)
	if err != nil {
		return 0, err
	}
	return len(l.Collaterals), nil
}

// Quote prices a repayment made now, with the same rules Repay enforces.
func (u *Usecase) Quote(ctx context.Context, loanID uint64) (*QuoteDTO, error) {
	l, err := u.loans.GetByID(ctx, loanID)
	if err != nil {
		return nil, err
	}
	p, err := u.params.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := u.now()
	if err := checkRepayable(l, now); err != nil {
		return nil, err
	}
	rate, due := totalDue(l, p, now)
	return &QuoteDTO{LoanID: l.ID, Rate: rate, TotalDue: due.Dec(), EndTime: l.EndTime}, nil
}

// ProvideCollateral moves each item from the borrower into escrow.
func (u *Usecase) ProvideCollateral(ctx context.Context, in ProvideCollateralInput) (*LoanDTO, error) {
	var out *LoanDTO
	err := u.mutate(ctx, "provide_collateral", in.LoanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, p params.Params) error {
		if err := l.RequireBorrower(in.Caller); err != nil {
			return err
		}
		if len(in.Items) == 0 {
			return loan.ErrInvalidCollateral
		}
		for _, it := range in.Items {
			if err := l.AddCollateral(loan.Collateral{Collection: it.Collection, ItemID: it.ItemID}, p.MaxCollaterals); err != nil {
				return err
			}
			if err := r.Assets.Transfer(ctx, it.Collection, it.ItemID, in.Caller, u.escrow); err != nil {
				return loan.TransferError("collateral deposit", err)
			}
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out = toDTO(l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("collateral provided", "op", "provide_collateral", "loan_id", in.LoanID, "caller", in.Caller.Hex(), "items", len(in.Items))
	return out, nil
}

// Fund records a contribution. The contribution that fills the loan forwards
// the whole lent total, overshoot included, to the borrower.
func (u *Usecase) Fund(ctx context.Context, in FundInput) (*FundResult, error) {
	var out *FundResult
	err := u.mutate(ctx, "fund", in.LoanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, _ params.Params) error {
		filled, err := l.Fund(in.Caller, in.Value, u.now())
		if err != nil {
			return err
		}
		if err := r.Funds.Receive(ctx, l.ID, in.Caller, in.Value); err != nil {
			return loan.TransferError("contribution", err)
		}
		if filled {
			if err := r.Funds.Transfer(ctx, l.ID, l.Borrower, l.TotalLentAmount); err != nil {
				return loan.TransferError("disbursement", err)
			}
		}
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		out = &FundResult{Loan: toDTO(l), Filled: filled}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("loan funded", "op", "fund", "loan_id", in.LoanID, "caller", in.Caller.Hex(),
		"amount", in.Value.Dec(), "filled", out.Filled)
	return out, nil
}

func (u *Usecase) WithdrawBeforeFill(ctx context.Context, caller common.Address, loanID uint64) (*WithdrawResult, error) {
	var refund *uint256.Int
	err := u.mutate(ctx, "withdraw", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, _ params.Params) error {
		var err error
		if refund, err = l.WithdrawBeforeFill(caller); err != nil {
			return err
		}
		if err := r.Funds.Transfer(ctx, l.ID, caller, refund); err != nil {
			return loan.TransferError("refund", err)
		}
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		return nil, err
	}
	u.log.Info("contribution withdrawn", "op", "withdraw", "loan_id", loanID, "caller", caller.Hex(), "refund", refund.Dec())
	return &WithdrawResult{Refund: refund.Dec()}, nil
}

// Cancel returns every collateral item and refunds every lender entry, then
// zeroes the record. The id stays taken.
func (u *Usecase) Cancel(ctx context.Context, caller common.Address, loanID uint64) error {
	err := u.mutate(ctx, "cancel", loanID, func(ctx context.Context, r uow.Repos, l *loan.Loan, _ params.Params) error {
		if err := l.RequireBorrower(caller); err != nil {
			return err
		}
		if l.Filled {
			return loan.ErrAlreadyFilled
		}
		if err := u.returnCollateral(ctx, r.Assets, l); err != nil {
			return err
		}
		for _, e := range l.Lenders {
			if err := r.Funds.Transfer(ctx, l.ID, e.Account, e.Amount); err != nil {
				return loan.TransferError("refund", err)
			}
		}
		l.Erase()
		return r.Loans.Save(ctx, l)
	})
	if err != nil {
		return err
	}
	u.log.Info("loan cancelled", "op", "cancel", "loan_id", loanID, "caller", caller.Hex())
	return nil
}

func (u *Usecase) returnCollateral(ctx context.Context, assets custody.Assets, l *loan.Loan) error {
	for _, c := range l.Collaterals {
		if err := assets.Transfer(ctx, c.Collection, c.ItemID, u.escrow, l.Borrower); err != nil {
			return loan.TransferError("collateral return", err)
		}
	}
	l.Collaterals = nil
	return nil
}

func (u *Usecase) curve(p params.Params) interest.Curve {
	return interest.Curve{MinRate: p.MinRate, MaxRate: p.MaxRate}
}
