package loan

import (
	"context"
	"errors"
	"testing"
	"time"

	"nftloan-backend/internal/adapter/repository/mysql"
	"nftloan-backend/internal/domain/loan"
	"nftloan-backend/internal/domain/params"
	"nftloan-backend/internal/infrastructure/lock"
	"nftloan-backend/internal/testutil/testdb"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const thirtyDays = 2_592_000

var (
	escrow     = common.HexToAddress("0x00000000000000000000000000000000000000e5")
	borrower   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	alice      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob        = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	collection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	start      = time.Unix(1_700_000_000, 0).UTC()
)

func amt(n uint64) *uint256.Int { return uint256.NewInt(n) }

func testParams() params.Params {
	return params.Params{
		CreationFee:          amt(10),
		MinRate:              5,
		MaxRate:              20,
		DefaultDuration:      thirtyDays,
		BaseExtendFee:        amt(3),
		MaxExtensionDuration: 3 * thirtyDays,
		MaxLenders:           5,
		MaxCollaterals:       4,
	}
}

type env struct {
	uc     *Usecase
	loans  *mysql.LoanRepository
	funds  *mysql.FundsLedger
	assets *mysql.AssetRegistry
	now    time.Time
}

func (e *env) advance(d time.Duration) { e.now = e.now.Add(d) }

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	db := testdb.Open(t)
	e := &env{
		loans:  mysql.NewLoanRepository(db),
		funds:  mysql.NewFundsLedger(db, escrow),
		assets: mysql.NewAssetRegistry(db),
		now:    start,
	}
	cfg.Escrow = escrow
	cfg.Clock = func() time.Time { return e.now }
	e.uc = NewUsecase(e.loans, mysql.NewGormUoW(db, escrow), params.NewStatic(testParams()), lock.NewLocalLocker(), cfg)

	ctx := context.Background()
	for _, who := range []common.Address{borrower, alice, bob} {
		if err := e.funds.Credit(ctx, who, amt(10_000)); err != nil {
			t.Fatalf("credit: %v", err)
		}
	}
	for i := uint64(1); i <= 3; i++ {
		if err := e.assets.Mint(ctx, collection, amt(i), borrower); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}
	return e
}

func (e *env) balance(t *testing.T, who common.Address) uint64 {
	t.Helper()
	b, err := e.funds.BalanceOf(context.Background(), who)
	if err != nil {
		t.Fatalf("BalanceOf: %v", err)
	}
	return b.Uint64()
}

func (e *env) owner(t *testing.T, item uint64) common.Address {
	t.Helper()
	o, err := e.assets.OwnerOf(context.Background(), collection, amt(item))
	if err != nil {
		t.Fatalf("OwnerOf: %v", err)
	}
	return o
}

func (e *env) create(t *testing.T, amount uint64, maxLenders uint32) uint64 {
	t.Helper()
	dto, err := e.uc.Create(context.Background(), CreateLoanInput{Caller: borrower, Amount: amt(amount), MaxLenders: maxLenders, Value: amt(10)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return dto.ID
}

func (e *env) collateralize(t *testing.T, id uint64, items ...uint64) {
	t.Helper()
	in := ProvideCollateralInput{Caller: borrower, LoanID: id}
	for _, i := range items {
		in.Items = append(in.Items, CollateralItem{Collection: collection, ItemID: amt(i)})
	}
	if _, err := e.uc.ProvideCollateral(context.Background(), in); err != nil {
		t.Fatalf("ProvideCollateral: %v", err)
	}
}

func (e *env) fund(t *testing.T, id uint64, who common.Address, amount uint64) *FundResult {
	t.Helper()
	res, err := e.uc.Fund(context.Background(), FundInput{Caller: who, LoanID: id, Value: amt(amount)})
	if err != nil {
		t.Fatalf("Fund: %v", err)
	}
	return res
}

func TestCreate(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()

	dto, err := e.uc.Create(ctx, CreateLoanInput{Caller: borrower, Amount: amt(1000), MaxLenders: 2, Value: amt(10)})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if dto.ID == 0 || dto.State != string(loan.StateOpen) || dto.Duration != thirtyDays || dto.LoanAmount != "1000" {
		t.Fatalf("unexpected dto: %+v", dto)
	}
	if got := e.balance(t, escrow); got != 10 {
		t.Fatalf("escrow=%d, want creation fee 10", got)
	}

	cases := []struct {
		name string
		in   CreateLoanInput
		want error
	}{
		{"zero amount", CreateLoanInput{Caller: borrower, Amount: amt(0), MaxLenders: 1, Value: amt(10)}, loan.ErrInvalidAmount},
		{"no lenders", CreateLoanInput{Caller: borrower, Amount: amt(1), MaxLenders: 0, Value: amt(10)}, loan.ErrInvalidMaxLenders},
		{"lender cap", CreateLoanInput{Caller: borrower, Amount: amt(1), MaxLenders: 6, Value: amt(10)}, loan.ErrInvalidMaxLenders},
		{"fee too low", CreateLoanInput{Caller: borrower, Amount: amt(1), MaxLenders: 1, Value: amt(9)}, loan.ErrWrongPayment},
		{"fee too high", CreateLoanInput{Caller: borrower, Amount: amt(1), MaxLenders: 1, Value: amt(11)}, loan.ErrWrongPayment},
	}
	for _, tc := range cases {
		if _, err := e.uc.Create(ctx, tc.in); !errors.Is(err, tc.want) || !errors.Is(err, loan.ErrValidation) {
			t.Fatalf("%s: want %v, got %v", tc.name, tc.want, err)
		}
	}

	broke := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	if _, err := e.uc.Create(ctx, CreateLoanInput{Caller: broke, Amount: amt(1), MaxLenders: 1, Value: amt(10)}); !errors.Is(err, loan.ErrTransfer) {
		t.Fatalf("unfunded caller: want ErrTransfer, got %v", err)
	}
}

func TestFund_OvershootFillsAndForwardsEverything(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.create(t, 1000, 5)

	if res := e.fund(t, id, alice, 600); res.Filled {
		t.Fatalf("filled after 600 of 1000")
	}
	e.advance(10 * time.Second)
	res := e.fund(t, id, bob, 500)
	if !res.Filled || res.Loan.TotalLentAmount != "1100" || res.Loan.State != string(loan.StateFilled) {
		t.Fatalf("unexpected fund result: %+v", res.Loan)
	}
	if want := uint64(e.now.Unix()) + thirtyDays; res.Loan.EndTime != want {
		t.Fatalf("end time=%d, want %d", res.Loan.EndTime, want)
	}
	if got := e.balance(t, borrower); got != 10_000-10+1100 {
		t.Fatalf("borrower balance=%d", got)
	}
	if got := e.balance(t, escrow); got != 10 {
		t.Fatalf("escrow=%d, only the creation fee should remain", got)
	}

	if _, err := e.uc.Fund(context.Background(), FundInput{Caller: alice, LoanID: id, Value: amt(1)}); !errors.Is(err, loan.ErrAlreadyFilled) {
		t.Fatalf("fund after fill: %v", err)
	}
}

func TestFund_RejectsAndLeavesNoTrace(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 1)

	if _, err := e.uc.Fund(ctx, FundInput{Caller: alice, LoanID: id, Value: amt(0)}); !errors.Is(err, loan.ErrInvalidAmount) {
		t.Fatalf("zero: %v", err)
	}
	poor := common.HexToAddress("0x0000000000000000000000000000000000000bad")
	if _, err := e.uc.Fund(ctx, FundInput{Caller: poor, LoanID: id, Value: amt(5)}); !errors.Is(err, loan.ErrTransfer) {
		t.Fatalf("no balance: %v", err)
	}
	e.fund(t, id, alice, 100)
	if _, err := e.uc.Fund(ctx, FundInput{Caller: bob, LoanID: id, Value: amt(5)}); !errors.Is(err, loan.ErrLenderCapReached) {
		t.Fatalf("cap: %v", err)
	}
	if n, _ := e.uc.LenderCount(ctx, id); n != 1 {
		t.Fatalf("lenders=%d, want 1", n)
	}
	if _, err := e.uc.Fund(ctx, FundInput{Caller: alice, LoanID: 999, Value: amt(5)}); !errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("unknown id: %v", err)
	}
}

func TestWithdrawBeforeFill(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 5)
	e.fund(t, id, alice, 100)
	e.fund(t, id, bob, 200)
	e.fund(t, id, alice, 300)

	res, err := e.uc.WithdrawBeforeFill(ctx, alice, id)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Refund != "100" {
		t.Fatalf("refund=%s, want first entry 100", res.Refund)
	}
	if got := e.balance(t, alice); got != 10_000-300 {
		t.Fatalf("alice=%d", got)
	}
	dto, _ := e.uc.Get(ctx, id)
	if len(dto.Lenders) != 2 || dto.Lenders[0].Account != bob.Hex() || dto.TotalLentAmount != "500" {
		t.Fatalf("unexpected lenders after withdraw: %+v", dto)
	}

	if _, err := e.uc.WithdrawBeforeFill(ctx, stranger, id); !errors.Is(err, loan.ErrNotLender) {
		t.Fatalf("stranger: %v", err)
	}
	e.fund(t, id, bob, 500)
	if _, err := e.uc.WithdrawBeforeFill(ctx, bob, id); !errors.Is(err, loan.ErrAlreadyFilled) {
		t.Fatalf("after fill: %v", err)
	}
}

func TestProvideCollateral(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 2)

	one := []CollateralItem{{Collection: collection, ItemID: amt(1)}}
	if _, err := e.uc.ProvideCollateral(ctx, ProvideCollateralInput{Caller: stranger, LoanID: id, Items: one}); !errors.Is(err, loan.ErrNotBorrower) {
		t.Fatalf("stranger: %v", err)
	}
	e.collateralize(t, id, 1, 2)
	if got := e.owner(t, 1); got != escrow {
		t.Fatalf("item 1 owner=%s, want escrow", got.Hex())
	}
	if n, _ := e.uc.CollateralCount(ctx, id); n != 2 {
		t.Fatalf("collaterals=%d, want 2", n)
	}

	// item 1 is already in escrow, so the deposit fails and nothing is recorded
	if _, err := e.uc.ProvideCollateral(ctx, ProvideCollateralInput{Caller: borrower, LoanID: id, Items: one}); !errors.Is(err, loan.ErrTransfer) {
		t.Fatalf("deposit of held item: %v", err)
	}
	if n, _ := e.uc.CollateralCount(ctx, id); n != 2 {
		t.Fatalf("failed deposit recorded: %d", n)
	}

	e.fund(t, id, alice, 1000)
	three := []CollateralItem{{Collection: collection, ItemID: amt(3)}}
	if _, err := e.uc.ProvideCollateral(ctx, ProvideCollateralInput{Caller: borrower, LoanID: id, Items: three}); !errors.Is(err, loan.ErrAlreadyFilled) {
		t.Fatalf("after fill: %v", err)
	}
}

func TestRepay_AtStartAndAtDeadline(t *testing.T) {
	for _, tc := range []struct {
		name    string
		elapsed time.Duration
		rate    uint64
		due     uint64
	}{
		{"at fill", 0, 5, 1050},
		{"at deadline", thirtyDays * time.Second, 20, 1200},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, Config{})
			ctx := context.Background()
			id := e.create(t, 1000, 2)
			e.collateralize(t, id, 1, 2)
			e.fund(t, id, alice, 600)
			e.fund(t, id, bob, 400)
			e.advance(tc.elapsed)

			q, err := e.uc.Quote(ctx, id)
			if err != nil || q.Rate != tc.rate || q.TotalDue != uint256.NewInt(tc.due).Dec() {
				t.Fatalf("quote=%+v err=%v", q, err)
			}
			for _, wrong := range []uint64{tc.due - 1, tc.due + 1} {
				if _, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(wrong)}); !errors.Is(err, loan.ErrWrongPayment) {
					t.Fatalf("payment %d: %v", wrong, err)
				}
			}
			if _, err := e.uc.Repay(ctx, RepayInput{Caller: alice, LoanID: id, Value: amt(tc.due)}); !errors.Is(err, loan.ErrNotBorrower) {
				t.Fatalf("lender repaying: %v", err)
			}

			res, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(tc.due)})
			if err != nil {
				t.Fatalf("Repay: %v", err)
			}
			if res.Rate != tc.rate {
				t.Fatalf("rate=%d, want %d", res.Rate, tc.rate)
			}
			aliceWant := 10_000 - 600 + 600 + 600*tc.rate/100
			bobWant := 10_000 - 400 + 400 + 400*tc.rate/100
			if got := e.balance(t, alice); got != aliceWant {
				t.Fatalf("alice=%d, want %d", got, aliceWant)
			}
			if got := e.balance(t, bob); got != bobWant {
				t.Fatalf("bob=%d, want %d", got, bobWant)
			}
			if e.owner(t, 1) != borrower || e.owner(t, 2) != borrower {
				t.Fatalf("collateral not returned")
			}
			dto, _ := e.uc.Get(ctx, id)
			if dto.State != string(loan.StateRepaid) || len(dto.Collaterals) != 0 {
				t.Fatalf("unexpected loan after repay: %+v", dto)
			}
			if _, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(tc.due)}); !errors.Is(err, loan.ErrAlreadyRepaid) {
				t.Fatalf("second repay: %v", err)
			}
		})
	}
}

func TestRepay_KeepsRoundingDustInEscrow(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 3)
	e.fund(t, id, alice, 333)
	e.fund(t, id, bob, 333)
	e.fund(t, id, alice, 334)

	res, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(1050)})
	if err != nil {
		t.Fatalf("Repay: %v", err)
	}
	// 333*5/100 floors to 16 twice and 334*5/100 to 16: 1048 paid of 1050
	if res.Paid != "1048" || res.TotalDue != "1050" {
		t.Fatalf("paid=%s due=%s", res.Paid, res.TotalDue)
	}
	if got := e.balance(t, escrow); got != 10+2 {
		t.Fatalf("escrow=%d, want fee plus 2 dust", got)
	}
}

func TestEscrowIsHeldPerLoan(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	first := e.create(t, 1000, 2)
	second := e.create(t, 500, 2)
	e.fund(t, first, alice, 400)
	e.fund(t, second, alice, 200)

	// refunding from the second loan never draws on the first
	if _, err := e.uc.WithdrawBeforeFill(ctx, alice, second); err != nil {
		t.Fatalf("WithdrawBeforeFill: %v", err)
	}
	for _, tc := range []struct {
		id   uint64
		want uint64
	}{
		{first, 10 + 400},
		{second, 10},
	} {
		got, err := e.funds.EscrowOf(ctx, tc.id)
		if err != nil {
			t.Fatalf("EscrowOf: %v", err)
		}
		if got.Uint64() != tc.want {
			t.Fatalf("escrow of loan %d = %s, want %d", tc.id, got.Dec(), tc.want)
		}
	}
	if got := e.balance(t, alice); got != 10_000-400 {
		t.Fatalf("alice=%d", got)
	}
}

func TestRepay_StateErrors(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 2)

	if _, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(1050)}); !errors.Is(err, loan.ErrNotFilled) {
		t.Fatalf("unfilled: %v", err)
	}
	if _, err := e.uc.Quote(ctx, id); !errors.Is(err, loan.ErrNotFilled) {
		t.Fatalf("quote unfilled: %v", err)
	}
	e.fund(t, id, alice, 1000)
	e.advance((thirtyDays + 1) * time.Second)
	if _, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(1200)}); !errors.Is(err, loan.ErrDeadlinePassed) || !errors.Is(err, loan.ErrState) {
		t.Fatalf("after deadline: %v", err)
	}
}

func TestExtend(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 10_000, 1)
	filled := e.fund(t, id, alice, 10_000)

	// maxInterest = 2000; fee = 3 + 2000*2592000/31536000 = 3 + 164
	in := ExtendInput{Caller: borrower, LoanID: id, AdditionalTime: thirtyDays, Value: amt(166)}
	if _, err := e.uc.Extend(ctx, in); !errors.Is(err, loan.ErrInsufficientFee) {
		t.Fatalf("fee one short: %v", err)
	}
	in.Value = amt(167)
	res, err := e.uc.Extend(ctx, in)
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if res.Fee != "167" || res.Duration != 2*thirtyDays || res.EndTime != filled.Loan.EndTime+thirtyDays {
		t.Fatalf("unexpected extension: %+v", res)
	}
	if got := e.balance(t, escrow); got != 10+167 {
		t.Fatalf("escrow=%d, want fees 177", got)
	}

	in.AdditionalTime = thirtyDays + 1
	if _, err := e.uc.Extend(ctx, in); !errors.Is(err, loan.ErrExtensionTooLong) {
		t.Fatalf("beyond max extension: %v", err)
	}
	in.AdditionalTime = 0
	if _, err := e.uc.Extend(ctx, in); !errors.Is(err, loan.ErrInvalidExtension) {
		t.Fatalf("zero time: %v", err)
	}
	in.AdditionalTime, in.Caller = 60, alice
	if _, err := e.uc.Extend(ctx, in); !errors.Is(err, loan.ErrNotBorrower) {
		t.Fatalf("lender extending: %v", err)
	}
}

func TestExtend_ReportsSteeperRateButRepayUsesRegularCurve(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 1)
	e.fund(t, id, alice, 1000)
	e.advance(thirtyDays * time.Second)

	// nine tenths of the extended window have passed
	res, err := e.uc.Extend(ctx, ExtendInput{Caller: borrower, LoanID: id, AdditionalTime: thirtyDays / 9, Value: amt(100)})
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if res.ExtendedRate != 18 {
		t.Fatalf("extended rate=%d, want 18", res.ExtendedRate)
	}
	q, err := e.uc.Quote(ctx, id)
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.Rate != 17 || q.TotalDue != "1170" {
		t.Fatalf("quote after extension: %+v", q)
	}
	if _, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(1170)}); err != nil {
		t.Fatalf("Repay at regular rate: %v", err)
	}
}

func TestExtend_PerLoanCapOverridesGlobal(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 1)
	e.fund(t, id, alice, 1000)
	if err := e.loans.SetMaxExtension(ctx, id, thirtyDays+60); err != nil {
		t.Fatalf("SetMaxExtension: %v", err)
	}

	in := ExtendInput{Caller: borrower, LoanID: id, AdditionalTime: 61, Value: amt(100)}
	if _, err := e.uc.Extend(ctx, in); !errors.Is(err, loan.ErrExtensionTooLong) {
		t.Fatalf("beyond per-loan cap: %v", err)
	}
	in.AdditionalTime = 60
	res, err := e.uc.Extend(ctx, in)
	if err != nil {
		t.Fatalf("Extend within cap: %v", err)
	}
	if res.Duration != thirtyDays+60 {
		t.Fatalf("duration=%d", res.Duration)
	}

	// clearing the override restores the global cap
	if err := e.loans.SetMaxExtension(ctx, id, 0); err != nil {
		t.Fatalf("clear override: %v", err)
	}
	in.AdditionalTime = thirtyDays
	if _, err := e.uc.Extend(ctx, in); err != nil {
		t.Fatalf("Extend under global cap: %v", err)
	}
}

func TestExtend_DeadlinePassed(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.create(t, 1000, 1)
	e.fund(t, id, alice, 1000)
	e.advance((thirtyDays + 1) * time.Second)
	_, err := e.uc.Extend(context.Background(), ExtendInput{Caller: borrower, LoanID: id, AdditionalTime: 60, Value: amt(100)})
	if !errors.Is(err, loan.ErrDeadlinePassed) {
		t.Fatalf("want ErrDeadlinePassed, got %v", err)
	}
}

func TestSeize_ProportionalWithDust(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 400, 2)
	e.collateralize(t, id, 1, 2, 3)
	e.fund(t, id, alice, 300)
	e.fund(t, id, bob, 100)

	if _, err := e.uc.Seize(ctx, alice, id); !errors.Is(err, loan.ErrDeadlineNotReached) {
		t.Fatalf("before deadline: %v", err)
	}
	e.advance(thirtyDays * time.Second)
	if _, err := e.uc.Seize(ctx, alice, id); !errors.Is(err, loan.ErrDeadlineNotReached) || !errors.Is(err, loan.ErrState) {
		t.Fatalf("at the deadline: %v", err)
	}
	e.advance(time.Second)
	if _, err := e.uc.Seize(ctx, stranger, id); !errors.Is(err, loan.ErrNotLender) || !errors.Is(err, loan.ErrAuthorization) {
		t.Fatalf("stranger: %v", err)
	}

	res, err := e.uc.Seize(ctx, bob, id)
	if err != nil {
		t.Fatalf("Seize: %v", err)
	}
	if len(res.Seized) != 2 || res.Remaining != 1 {
		t.Fatalf("unexpected seizure: %+v", res)
	}
	if e.owner(t, 1) != alice || e.owner(t, 2) != alice || e.owner(t, 3) != escrow {
		t.Fatalf("owners: %s %s %s", e.owner(t, 1).Hex(), e.owner(t, 2).Hex(), e.owner(t, 3).Hex())
	}
	dto, _ := e.uc.Get(ctx, id)
	if dto.State != string(loan.StateSeized) || len(dto.Collaterals) != 1 || dto.Collaterals[0].ItemID != "3" {
		t.Fatalf("unexpected loan after seizure: %+v", dto)
	}
	if _, err := e.uc.Seize(ctx, alice, id); !errors.Is(err, loan.ErrAlreadySeized) {
		t.Fatalf("second seizure: %v", err)
	}
	if _, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(480)}); !errors.Is(err, loan.ErrState) {
		t.Fatalf("repay after seizure: %v", err)
	}
}

type valueTable map[common.Address]*uint256.Int

func (v valueTable) LatestValue(_ context.Context, c common.Address) (*uint256.Int, error) {
	if x, ok := v[c]; ok {
		return x, nil
	}
	return nil, errors.New("no feed")
}

func TestSeize_RanksByOracleValue(t *testing.T) {
	cheap := collection
	dear := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	e := newEnv(t, Config{Oracle: valueTable{cheap: amt(1), dear: amt(50)}})
	ctx := context.Background()
	if err := e.assets.Mint(ctx, dear, amt(9), borrower); err != nil {
		t.Fatal(err)
	}

	id := e.create(t, 200, 2)
	e.collateralize(t, id, 1)
	if _, err := e.uc.ProvideCollateral(ctx, ProvideCollateralInput{Caller: borrower, LoanID: id,
		Items: []CollateralItem{{Collection: dear, ItemID: amt(9)}}}); err != nil {
		t.Fatalf("ProvideCollateral: %v", err)
	}
	e.fund(t, id, alice, 100)
	e.fund(t, id, bob, 100)
	e.advance((thirtyDays + 1) * time.Second)

	res, err := e.uc.Seize(ctx, alice, id)
	if err != nil {
		t.Fatalf("Seize: %v", err)
	}
	if res.Seized[0].Lender != alice.Hex() || res.Seized[0].Collection != dear.Hex() {
		t.Fatalf("first lender should take the most valuable item: %+v", res.Seized)
	}
	if e.owner(t, 1) != bob {
		t.Fatalf("second lender should take the cheaper item")
	}
}

func TestSeize_OracleFailureAborts(t *testing.T) {
	e := newEnv(t, Config{Oracle: valueTable{}})
	ctx := context.Background()
	id := e.create(t, 100, 1)
	e.collateralize(t, id, 1)
	e.fund(t, id, alice, 100)
	e.advance((thirtyDays + 1) * time.Second)

	if _, err := e.uc.Seize(ctx, alice, id); !errors.Is(err, loan.ErrUnpriced) {
		t.Fatalf("want ErrUnpriced, got %v", err)
	}
	if e.owner(t, 1) != escrow {
		t.Fatalf("collateral moved despite failure")
	}
	dto, _ := e.uc.Get(ctx, id)
	if dto.State != string(loan.StateFilled) {
		t.Fatalf("state=%s, want filled", dto.State)
	}
}

func TestCancel_RefundsEverythingAndTombstones(t *testing.T) {
	e := newEnv(t, Config{})
	ctx := context.Background()
	id := e.create(t, 1000, 3)
	e.collateralize(t, id, 1, 2)
	e.fund(t, id, alice, 100)
	e.fund(t, id, bob, 200)

	if err := e.uc.Cancel(ctx, alice, id); !errors.Is(err, loan.ErrNotBorrower) {
		t.Fatalf("lender cancelling: %v", err)
	}
	if err := e.uc.Cancel(ctx, borrower, id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if e.balance(t, alice) != 10_000 || e.balance(t, bob) != 10_000 {
		t.Fatalf("lenders not refunded: %d %d", e.balance(t, alice), e.balance(t, bob))
	}
	if e.owner(t, 1) != borrower || e.owner(t, 2) != borrower {
		t.Fatalf("collateral not returned")
	}

	dto, err := e.uc.Get(ctx, id)
	if err != nil || dto.State != string(loan.StateCancelled) || dto.LoanAmount != "0" {
		t.Fatalf("tombstone: %+v %v", dto, err)
	}
	for name, op := range map[string]func() error{
		"fund": func() error {
			_, err := e.uc.Fund(ctx, FundInput{Caller: alice, LoanID: id, Value: amt(1)})
			return err
		},
		"cancel": func() error { return e.uc.Cancel(ctx, borrower, id) },
		"repay": func() error {
			_, err := e.uc.Repay(ctx, RepayInput{Caller: borrower, LoanID: id, Value: amt(1)})
			return err
		},
		"collateral": func() error {
			_, err := e.uc.ProvideCollateral(ctx, ProvideCollateralInput{Caller: borrower, LoanID: id,
				Items: []CollateralItem{{Collection: collection, ItemID: amt(3)}}})
			return err
		},
		"seize": func() error {
			_, err := e.uc.Seize(ctx, alice, id)
			return err
		},
	} {
		if err := op(); !errors.Is(err, loan.ErrAuthorization) {
			t.Fatalf("%s on cancelled loan: want ErrAuthorization, got %v", name, err)
		}
	}

	if next := e.create(t, 10, 1); next == id {
		t.Fatalf("id %d reused", id)
	}
}

func TestCancel_FilledLoan(t *testing.T) {
	e := newEnv(t, Config{})
	id := e.create(t, 100, 1)
	e.fund(t, id, alice, 100)
	if err := e.uc.Cancel(context.Background(), borrower, id); !errors.Is(err, loan.ErrAlreadyFilled) {
		t.Fatalf("want ErrAlreadyFilled, got %v", err)
	}
}
