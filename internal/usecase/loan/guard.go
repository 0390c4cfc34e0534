package loan

import (
	"context"
	"fmt"

	"nftloan-backend/internal/domain/loan"
)

// Locker hands out exclusive per-key locks; see internal/infrastructure/lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type guardKey struct{}

// guard takes the lock for key and marks ctx as inside a guarded operation.
// A guarded ctx cannot enter another guarded operation, whatever the key, so
// a transfer callback re-entering the engine fails instead of deadlocking.
func (u *Usecase) guard(ctx context.Context, key string) (context.Context, func(), error) {
	if held, ok := ctx.Value(guardKey{}).(string); ok {
		return nil, nil, fmt.Errorf("%w: %s held while entering %s", loan.ErrReentrant, held, key)
	}
	unlock, err := u.locker.Lock(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return context.WithValue(ctx, guardKey{}, key), unlock, nil
}

func loanKey(id uint64) string { return fmt.Sprintf("loan:%d", id) }

func createKey(caller fmt.Stringer) string { return "create:" + caller.String() }
