package config

import (
	"fmt"
	"os"
	"strings"

	"nftloan-backend/internal/domain/params"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

// ParamsFile is the on-disk form of the admin parameter snapshot. Amounts are
// decimal strings so they survive values beyond 64 bits.
type ParamsFile struct {
	CreationFee          string       `yaml:"creation_fee"`
	MinRate              uint64       `yaml:"min_rate"`
	MaxRate              uint64       `yaml:"max_rate"`
	DefaultDuration      uint64       `yaml:"default_duration"`
	BaseExtendFee        string       `yaml:"base_extend_fee"`
	MaxExtensionDuration uint64       `yaml:"max_extension_duration"`
	MaxLenders           uint32       `yaml:"max_lenders"`
	MaxCollaterals       int          `yaml:"max_collaterals"`
	Oracle               OracleConfig `yaml:"oracle"`
}

// OracleConfig selects where collateral values come from.
type OracleConfig struct {
	Backend string            `yaml:"backend"` // redis | static | none
	Feeds   map[string]string `yaml:"feeds"`   // collection -> feed name
	Values  map[string]string `yaml:"values"`  // collection -> value, static backend
}

// Admin is the validated result of LoadParams.
type Admin struct {
	Params        params.Params
	OracleBackend string
	StaticValues  map[common.Address]*uint256.Int
}

// LoadParams reads the YAML params file and validates the result.
func LoadParams(path string) (Admin, error) {
	if path == "" {
		return Admin{}, fmt.Errorf("params path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return Admin{}, fmt.Errorf("open params: %w", err)
	}
	defer file.Close()

	var raw ParamsFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return Admin{}, fmt.Errorf("decode params: %w", err)
	}
	raw.normalize()
	return raw.build()
}

func (f *ParamsFile) normalize() {
	f.CreationFee = strings.TrimSpace(f.CreationFee)
	f.BaseExtendFee = strings.TrimSpace(f.BaseExtendFee)
	if f.CreationFee == "" {
		f.CreationFee = "0"
	}
	if f.BaseExtendFee == "" {
		f.BaseExtendFee = "0"
	}
	if f.MaxExtensionDuration == 0 {
		f.MaxExtensionDuration = f.DefaultDuration
	}
	f.Oracle.Backend = strings.ToLower(strings.TrimSpace(f.Oracle.Backend))
	if f.Oracle.Backend == "" {
		f.Oracle.Backend = "none"
	}
}

func (f ParamsFile) build() (Admin, error) {
	creation, err := uint256.FromDecimal(f.CreationFee)
	if err != nil {
		return Admin{}, fmt.Errorf("creation_fee: %w", err)
	}
	extend, err := uint256.FromDecimal(f.BaseExtendFee)
	if err != nil {
		return Admin{}, fmt.Errorf("base_extend_fee: %w", err)
	}
	if f.MaxCollaterals < 0 {
		return Admin{}, fmt.Errorf("max_collaterals must not be negative")
	}

	out := Admin{
		Params: params.Params{
			CreationFee:          creation,
			MinRate:              f.MinRate,
			MaxRate:              f.MaxRate,
			DefaultDuration:      f.DefaultDuration,
			BaseExtendFee:        extend,
			MaxExtensionDuration: f.MaxExtensionDuration,
			MaxLenders:           f.MaxLenders,
			MaxCollaterals:       f.MaxCollaterals,
			OracleFeeds:          map[common.Address]string{},
		},
		OracleBackend: f.Oracle.Backend,
		StaticValues:  map[common.Address]*uint256.Int{},
	}
	for coll, feed := range f.Oracle.Feeds {
		addr, err := parseAddress(coll)
		if err != nil {
			return Admin{}, fmt.Errorf("oracle.feeds: %w", err)
		}
		if feed = strings.TrimSpace(feed); feed == "" {
			return Admin{}, fmt.Errorf("oracle.feeds: empty feed for %s", coll)
		}
		out.Params.OracleFeeds[addr] = feed
	}
	for coll, raw := range f.Oracle.Values {
		addr, err := parseAddress(coll)
		if err != nil {
			return Admin{}, fmt.Errorf("oracle.values: %w", err)
		}
		v, err := uint256.FromDecimal(strings.TrimSpace(raw))
		if err != nil {
			return Admin{}, fmt.Errorf("oracle.values %s: %w", coll, err)
		}
		out.StaticValues[addr] = v
	}

	switch out.OracleBackend {
	case "none", "static", "redis":
	default:
		return Admin{}, fmt.Errorf("oracle.backend %q not supported", out.OracleBackend)
	}
	if err := out.Params.Validate(); err != nil {
		return Admin{}, err
	}
	return out, nil
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}
