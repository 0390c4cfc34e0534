package oracle

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrUnconfigured = errors.New("oracle: no feed configured for collection")
	ErrNonPositive  = errors.New("oracle: value must be positive")
)

// ValueOracle returns the latest value of a collection. Implementations fail on
// unconfigured collections and on zero or negative readings.
type ValueOracle interface {
	LatestValue(ctx context.Context, collection common.Address) (*uint256.Int, error)
}
