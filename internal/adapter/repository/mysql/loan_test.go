package mysql

import (
	"context"
	"errors"
	"testing"

	domain "nftloan-backend/internal/domain/loan"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	testBorrower   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	testLender     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testCollection = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	testEscrow     = common.HexToAddress("0x00000000000000000000000000000000000000e5")
)

// openTestDB creates an in-memory sqlite DB with the full schema. A single
// connection keeps every query on the same in-memory database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return db
}

func makeLoan() *domain.Loan {
	return domain.New(testBorrower, uint256.NewInt(1000), 2_592_000, 3)
}

func TestCreateAndGetByID(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	l := makeLoan()
	if err := l.AddCollateral(domain.Collateral{Collection: testCollection, ItemID: uint256.NewInt(7)}, 0); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if l.ID == 0 {
		t.Fatalf("Create did not set auto-increment ID")
	}

	got, err := repo.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Borrower != testBorrower || got.LoanAmount.Uint64() != 1000 || got.MaxLenders != 3 {
		t.Errorf("unexpected loan: %+v", got)
	}
	if len(got.Collaterals) != 1 || got.Collaterals[0].Collection != testCollection || got.Collaterals[0].ItemID.Uint64() != 7 {
		t.Errorf("unexpected collaterals: %+v", got.Collaterals)
	}
}

func TestIDsAreMonotonic(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	a, b := makeLoan(), makeLoan()
	if err := repo.Create(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(ctx, b); err != nil {
		t.Fatal(err)
	}
	if b.ID <= a.ID {
		t.Fatalf("ids not increasing: %d then %d", a.ID, b.ID)
	}
}

func TestSaveReplacesChildrenInOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	l := makeLoan()
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	second := common.HexToAddress("0x00000000000000000000000000000000000000a2")
	_, _ = l.Fund(testLender, uint256.NewInt(100), 1)
	_, _ = l.Fund(second, uint256.NewInt(200), 1)
	_, _ = l.Fund(testLender, uint256.NewInt(300), 1)
	if err := repo.Save(ctx, l); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := l.WithdrawBeforeFill(testLender); err != nil {
		t.Fatalf("WithdrawBeforeFill: %v", err)
	}
	if err := repo.Save(ctx, l); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if len(got.Lenders) != 2 || got.Lenders[0].Account != second || got.Lenders[1].Amount.Uint64() != 300 {
		t.Fatalf("unexpected lenders: %+v", got.Lenders)
	}
	if got.TotalLentAmount.Uint64() != 500 {
		t.Fatalf("total=%s, want 500", got.TotalLentAmount.Dec())
	}
	var rows int64
	db.Model(&domain.Lender{}).Where("loan_id = ?", l.ID).Count(&rows)
	if rows != 2 {
		t.Fatalf("stale lender rows: %d", rows)
	}
}

func TestSaveErasedKeepsTombstone(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	l := makeLoan()
	if err := repo.Create(ctx, l); err != nil {
		t.Fatal(err)
	}
	id := l.ID
	l.Erase()
	if err := repo.Save(ctx, l); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID tombstone: %v", err)
	}
	if got.Exists() || got.State() != domain.StateCancelled {
		t.Fatalf("tombstone still has a borrower: %+v", got)
	}

	next := makeLoan()
	if err := repo.Create(ctx, next); err != nil {
		t.Fatal(err)
	}
	if next.ID == id {
		t.Fatalf("id %d reused", id)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByIDForUpdate(ctx, 404); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for update, got %v", err)
	}
}

func TestSetMaxExtension(t *testing.T) {
	db := openTestDB(t)
	repo := NewLoanRepository(db)
	ctx := context.Background()

	l := makeLoan()
	if err := repo.Create(ctx, l); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.SetMaxExtension(ctx, l.ID, 3600); err != nil {
		t.Fatalf("SetMaxExtension: %v", err)
	}
	got, err := repo.GetByID(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.MaxExtensionDuration != 3600 || got.MaxExtension(10) != 3600 {
		t.Fatalf("override not stored: %d", got.MaxExtensionDuration)
	}

	if err := repo.SetMaxExtension(ctx, 404, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing loan: %v", err)
	}

	got.Erase()
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.SetMaxExtension(ctx, l.ID, 1); !errors.Is(err, domain.ErrLoanGone) {
		t.Fatalf("cancelled loan: %v", err)
	}
}
