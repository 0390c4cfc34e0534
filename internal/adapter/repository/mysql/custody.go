package mysql

import (
	"bytes"
	"context"
	"errors"
	"time"

	"nftloan-backend/internal/domain/custody"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Table: account_balances. Wallets use sub 0; escrow is split into one
// sub-account per loan id.
type accountBalance struct {
	ID        uint64         `gorm:"primaryKey;column:id"`
	Account   common.Address `gorm:"column:account;size:20;uniqueIndex:ux_balances_account,priority:1"`
	Sub       uint64         `gorm:"column:sub;not null;default:0;uniqueIndex:ux_balances_account,priority:2"`
	Amount    *uint256.Int   `gorm:"column:amount;size:78"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (accountBalance) TableName() string { return "account_balances" }

// Table: asset_owners. item_id is the decimal token id.
type assetOwner struct {
	ID         uint64         `gorm:"primaryKey;column:id"`
	Collection common.Address `gorm:"column:collection;size:20;uniqueIndex:ux_assets_item,priority:1"`
	ItemID     string         `gorm:"column:item_id;size:78;uniqueIndex:ux_assets_item,priority:2"`
	Owner      common.Address `gorm:"column:owner;size:20;index"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime"`
}

func (assetOwner) TableName() string { return "asset_owners" }

// balanceKey addresses one account_balances row.
type balanceKey struct {
	account common.Address
	sub     uint64
}

func wallet(account common.Address) balanceKey { return balanceKey{account: account} }

func (k balanceKey) less(o balanceKey) bool {
	if c := bytes.Compare(k.account[:], o.account[:]); c != 0 {
		return c < 0
	}
	return k.sub < o.sub
}

// lockOrder returns a and b in the order their rows must be locked.
func lockOrder(a, b balanceKey) (first, second balanceKey) {
	if b.less(a) {
		return b, a
	}
	return a, b
}

// FundsLedger keeps native balances. Value attached to loan operations sits
// in that loan's escrow sub-account until it is paid out.
type FundsLedger struct {
	db     *gorm.DB
	escrow common.Address
}

var _ custody.Funds = (*FundsLedger)(nil)

func NewFundsLedger(db *gorm.DB, escrow common.Address) *FundsLedger {
	return &FundsLedger{db: db, escrow: escrow}
}

func (f *FundsLedger) escrowOf(loanID uint64) balanceKey {
	return balanceKey{account: f.escrow, sub: loanID}
}

func (f *FundsLedger) Receive(ctx context.Context, loanID uint64, from common.Address, amount *uint256.Int) error {
	return f.move(ctx, wallet(from), f.escrowOf(loanID), amount)
}

func (f *FundsLedger) Transfer(ctx context.Context, loanID uint64, to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return custody.ErrReceiverRejected
	}
	return f.move(ctx, f.escrowOf(loanID), wallet(to), amount)
}

// Credit mints balance to a wallet.
func (f *FundsLedger) Credit(ctx context.Context, account common.Address, amount *uint256.Int) error {
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := lockBalance(tx, wallet(account))
		if err != nil {
			return err
		}
		row.Amount = new(uint256.Int).Add(row.Amount, amount)
		return tx.Save(row).Error
	})
}

// BalanceOf sums every sub-account of account. For the escrow address that is
// the value held across all loans.
func (f *FundsLedger) BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error) {
	var rows []accountBalance
	if err := f.db.WithContext(ctx).Where("account = ?", account).Find(&rows).Error; err != nil {
		return nil, err
	}
	sum := new(uint256.Int)
	for _, r := range rows {
		sum.Add(sum, r.Amount)
	}
	return sum, nil
}

// EscrowOf is the value held for one loan.
func (f *FundsLedger) EscrowOf(ctx context.Context, loanID uint64) (*uint256.Int, error) {
	var row accountBalance
	err := f.db.WithContext(ctx).Where("account = ? AND sub = ?", f.escrow, loanID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	return row.Amount, nil
}

func (f *FundsLedger) move(ctx context.Context, from, to balanceKey, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	return f.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		first, second := lockOrder(from, to)
		rows := make(map[balanceKey]*accountBalance, 2)
		for _, k := range []balanceKey{first, second} {
			if _, ok := rows[k]; ok {
				continue
			}
			row, err := lockBalance(tx, k)
			if err != nil {
				return err
			}
			rows[k] = row
		}
		src, dst := rows[from], rows[to]
		if src.Amount.Lt(amount) {
			return custody.ErrInsufficientBalance
		}
		src.Amount = new(uint256.Int).Sub(src.Amount, amount)
		dst.Amount = new(uint256.Int).Add(dst.Amount, amount)
		if err := tx.Save(src).Error; err != nil {
			return err
		}
		return tx.Save(dst).Error
	})
}

// lockBalance locks the row for k. A missing row is inserted first; the insert
// ignores a concurrent one so both callers end up locking the same row.
func lockBalance(tx *gorm.DB, k balanceKey) (*accountBalance, error) {
	seed := accountBalance{Account: k.account, Sub: k.sub, Amount: new(uint256.Int)}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, err
	}
	var row accountBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account = ? AND sub = ?", k.account, k.sub).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// AssetRegistry tracks who holds each non-fungible item.
type AssetRegistry struct{ db *gorm.DB }

var _ custody.Assets = (*AssetRegistry)(nil)

func NewAssetRegistry(db *gorm.DB) *AssetRegistry { return &AssetRegistry{db: db} }

func (a *AssetRegistry) Transfer(ctx context.Context, collection common.Address, itemID *uint256.Int, from, to common.Address) error {
	if to == (common.Address{}) {
		return custody.ErrReceiverRejected
	}
	var row assetOwner
	err := a.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("collection = ? AND item_id = ?", collection, itemID.Dec()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return custody.ErrNotOwner
	}
	if err != nil {
		return err
	}
	if row.Owner != from {
		return custody.ErrNotOwner
	}
	row.Owner = to
	return a.db.WithContext(ctx).Save(&row).Error
}

// Mint registers a new item with its first owner.
func (a *AssetRegistry) Mint(ctx context.Context, collection common.Address, itemID *uint256.Int, owner common.Address) error {
	return a.db.WithContext(ctx).Create(&assetOwner{Collection: collection, ItemID: itemID.Dec(), Owner: owner}).Error
}

func (a *AssetRegistry) OwnerOf(ctx context.Context, collection common.Address, itemID *uint256.Int) (common.Address, error) {
	var row assetOwner
	err := a.db.WithContext(ctx).Where("collection = ? AND item_id = ?", collection, itemID.Dec()).First(&row).Error
	if err != nil {
		return common.Address{}, err
	}
	return row.Owner, nil
}
