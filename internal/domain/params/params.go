package params

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Params is the read-only administrative snapshot each operation starts from.
// Rates are percentage points, durations seconds, fees wei.
type Params struct {
	CreationFee          *uint256.Int
	MinRate              uint64
	MaxRate              uint64
	DefaultDuration      uint64
	BaseExtendFee        *uint256.Int
	MaxExtensionDuration uint64
	MaxLenders           uint32
	MaxCollaterals       int
	OracleFeeds          map[common.Address]string
}

func (p Params) Validate() error {
	if p.MinRate > p.MaxRate {
		return errors.New("params: min rate above max rate")
	}
	if p.DefaultDuration == 0 {
		return errors.New("params: default duration must be positive")
	}
	if p.MaxExtensionDuration < p.DefaultDuration {
		return errors.New("params: max extension duration below default duration")
	}
	if p.MaxLenders == 0 {
		return errors.New("params: max lenders must be positive")
	}
	if p.CreationFee == nil || p.BaseExtendFee == nil {
		return errors.New("params: fees must be set")
	}
	return nil
}

// Clone deep-copies the snapshot so callers cannot mutate the source.
func (p Params) Clone() Params {
	out := p
	if p.CreationFee != nil {
		out.CreationFee = new(uint256.Int).Set(p.CreationFee)
	}
	if p.BaseExtendFee != nil {
		out.BaseExtendFee = new(uint256.Int).Set(p.BaseExtendFee)
	}
	if p.OracleFeeds != nil {
		out.OracleFeeds = make(map[common.Address]string, len(p.OracleFeeds))
		for k, v := range p.OracleFeeds {
			out.OracleFeeds[k] = v
		}
	}
	return out
}

// Source hands out snapshots. Writes and their access control live elsewhere.
type Source interface {
	Snapshot(ctx context.Context) (Params, error)
}

type Static struct{ p Params }

func NewStatic(p Params) *Static { return &Static{p: p.Clone()} }

func (s *Static) Snapshot(context.Context) (Params, error) { return s.p.Clone(), nil }
