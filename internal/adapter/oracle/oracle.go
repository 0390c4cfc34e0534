package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "nftloan-backend/internal/domain/oracle"
	"nftloan-backend/internal/domain/params"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/redis/go-redis/v9"
)

var _ domain.ValueOracle = (*RedisOracle)(nil)
var _ domain.ValueOracle = (*Static)(nil)

// RedisOracle reads the value a price feeder last published under
// oracle:value:<feed>. The collection to feed binding comes from the params snapshot.
type RedisOracle struct {
	rdb    *redis.Client
	params params.Source
	prefix string
}

func NewRedisOracle(rdb *redis.Client, src params.Source) *RedisOracle {
	return &RedisOracle{rdb: rdb, params: src, prefix: "oracle:value:"}
}

func (o *RedisOracle) LatestValue(ctx context.Context, collection common.Address) (*uint256.Int, error) {
	p, err := o.params.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	feed, ok := p.OracleFeeds[collection]
	if !ok || feed == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnconfigured, collection.Hex())
	}
	raw, err := o.rdb.Get(ctx, o.prefix+feed).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: feed %s has no value", domain.ErrUnconfigured, feed)
	}
	if err != nil {
		return nil, err
	}
	return parseValue(feed, raw)
}

func parseValue(feed, raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "-") {
		return nil, fmt.Errorf("%w: feed %s reads %s", domain.ErrNonPositive, feed, raw)
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("oracle: feed %s: malformed value %q: %w", feed, raw, err)
	}
	if v.IsZero() {
		return nil, fmt.Errorf("%w: feed %s reads 0", domain.ErrNonPositive, feed)
	}
	return v, nil
}

// Static serves fixed values, e.g. from the params file.
type Static struct {
	values map[common.Address]*uint256.Int
}

func NewStatic(values map[common.Address]*uint256.Int) *Static {
	cp := make(map[common.Address]*uint256.Int, len(values))
	for k, v := range values {
		cp[k] = new(uint256.Int).Set(v)
	}
	return &Static{values: cp}
}

func (s *Static) LatestValue(_ context.Context, collection common.Address) (*uint256.Int, error) {
	v, ok := s.values[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnconfigured, collection.Hex())
	}
	if v.IsZero() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNonPositive, collection.Hex())
	}
	return new(uint256.Int).Set(v), nil
}
