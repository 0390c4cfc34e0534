package custody

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance = errors.New("custody: insufficient balance")
	ErrNotOwner            = errors.New("custody: sender does not hold the item")
	ErrReceiverRejected    = errors.New("custody: receiver rejected the transfer")
)

// Funds moves the principal asset. Escrow is kept per loan: Receive captures
// value attached to a call into the loan's escrow and Transfer pays out of it.
type Funds interface {
	Receive(ctx context.Context, loanID uint64, from common.Address, amount *uint256.Int) error
	Transfer(ctx context.Context, loanID uint64, to common.Address, amount *uint256.Int) error
}

// Assets moves ownership of a single non-fungible item.
type Assets interface {
	Transfer(ctx context.Context, collection common.Address, itemID *uint256.Int, from, to common.Address) error
}
