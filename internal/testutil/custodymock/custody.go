package custodymock

import (
	"context"

	"nftloan-backend/internal/domain/custody"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	_ custody.Funds  = (*Funds)(nil)
	_ custody.Assets = (*Assets)(nil)
)

// Funds is a function-backed custody.Funds; unset funcs succeed.
type Funds struct {
	ReceiveFn  func(ctx context.Context, loanID uint64, from common.Address, amount *uint256.Int) error
	TransferFn func(ctx context.Context, loanID uint64, to common.Address, amount *uint256.Int) error
}

func (m *Funds) Receive(ctx context.Context, loanID uint64, from common.Address, amount *uint256.Int) error {
	if m.ReceiveFn != nil {
		return m.ReceiveFn(ctx, loanID, from, amount)
	}
	return nil
}

func (m *Funds) Transfer(ctx context.Context, loanID uint64, to common.Address, amount *uint256.Int) error {
	if m.TransferFn != nil {
		return m.TransferFn(ctx, loanID, to, amount)
	}
	return nil
}

// Assets is a function-backed custody.Assets; unset funcs succeed.
type Assets struct {
	TransferFn func(ctx context.Context, collection common.Address, itemID *uint256.Int, from, to common.Address) error
}

func (m *Assets) Transfer(ctx context.Context, collection common.Address, itemID *uint256.Int, from, to common.Address) error {
	if m.TransferFn != nil {
		return m.TransferFn(ctx, collection, itemID, from, to)
	}
	return nil
}
