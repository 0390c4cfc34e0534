package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

type Config struct {
	AppPort string
	AppEnv  string

	DBDriver  string // mysql | postgres
	MySQLHost string
	MySQLPort string
	MySQLDB   string
	MySQLUser string
	MySQLPass string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	IdempTTLSecs int

	JWTIssuer     string
	JWTAudience   string
	JWTSigningKey string

	RateLimitPerMinute int
	RateLimitBurst     int

	LogFile     string
	ParamsFile  string
	Escrow      string
	LockBackend string // redis | local
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getint(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func Load() *Config {
	return &Config{
		AppPort: getenv("APP_PORT", "8080"),
		AppEnv:  getenv("APP_ENV", "dev"),

		DBDriver:  getenv("DB_DRIVER", "mysql"),
		MySQLHost: getenv("MYSQL_HOST", "mysql"),
		MySQLPort: getenv("MYSQL_PORT", "3306"),
		MySQLDB:   getenv("MYSQL_DB", "nftloan"),
		MySQLUser: getenv("MYSQL_USER", "nftloan"),
		MySQLPass: getenv("MYSQL_PASS", "nftloan"),

		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		RedisAddr:     getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getint("REDIS_DB", 0),

		IdempTTLSecs: getint("IDEMPOTENCY_TTL_SECONDS", 300),

		JWTIssuer:     getenv("JWT_ISSUER", "nftloan"),
		JWTAudience:   getenv("JWT_AUDIENCE", "nftloan-api"),
		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),

		RateLimitPerMinute: getint("RATE_LIMIT_PER_MINUTE", 120),
		RateLimitBurst:     getint("RATE_LIMIT_BURST", 20),

		LogFile:     os.Getenv("LOG_FILE"),
		ParamsFile:  getenv("PARAMS_FILE", "params.yaml"),
		Escrow:      os.Getenv("ESCROW_ADDRESS"),
		LockBackend: getenv("LOCK_BACKEND", "redis"),
	}
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.MySQLHost == "" || c.MySQLPort == "" || c.MySQLDB == "" || c.MySQLUser == "" {
			return errors.New("missing MySQL config (MYSQL_HOST/PORT/DB/USER)")
		}
		// ensure port is valid
		if _, err := net.LookupPort("tcp", c.MySQLPort); err != nil {
			return fmt.Errorf("invalid MYSQL_PORT %q: %w", c.MySQLPort, err)
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("missing POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.AppPort == "" {
		return errors.New("missing APP_PORT")
	}
	if c.JWTSigningKey == "" {
		return errors.New("missing JWT_SIGNING_KEY")
	}
	if !common.IsHexAddress(c.Escrow) || c.EscrowAddress() == (common.Address{}) {
		return fmt.Errorf("invalid ESCROW_ADDRESS %q", c.Escrow)
	}
	if c.LockBackend != "redis" && c.LockBackend != "local" {
		return fmt.Errorf("unsupported LOCK_BACKEND %q", c.LockBackend)
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

func (c *Config) EscrowAddress() common.Address { return common.HexToAddress(c.Escrow) }

func (c *Config) mysqlAddr() string { return net.JoinHostPort(c.MySQLHost, c.MySQLPort) }

func (c *Config) MySQLDSN() string {
	// multiStatements=true is handy for migrations; parseTime needed for DATETIME
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?multiStatements=true&parseTime=true&charset=utf8mb4,utf8",
		c.MySQLUser, c.MySQLPass, c.mysqlAddr(), c.MySQLDB)
}

// DSN returns the connection string for the configured driver.
func (c *Config) DSN() string {
	if c.DBDriver == "postgres" {
		return c.PostgresDSN
	}
	return c.MySQLDSN()
}
