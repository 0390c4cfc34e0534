package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	httpadp "nftloan-backend/internal/adapter/http"
	"nftloan-backend/internal/adapter/middleware"
	oracleadp "nftloan-backend/internal/adapter/oracle"
	"nftloan-backend/internal/adapter/repository/mysql"
	"nftloan-backend/internal/auth"
	"nftloan-backend/internal/config"
	"nftloan-backend/internal/domain/oracle"
	"nftloan-backend/internal/domain/params"
	"nftloan-backend/internal/infrastructure/cache"
	"nftloan-backend/internal/infrastructure/db"
	"nftloan-backend/internal/infrastructure/lock"
	"nftloan-backend/internal/observability"
	loanuc "nftloan-backend/internal/usecase/loan"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.AppEnv, cfg.LogFile)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	admin, err := config.LoadParams(cfg.ParamsFile)
	if err != nil {
		return err
	}
	src := params.NewStatic(admin.Params)

	gdb, err := db.OpenGorm(cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	if err := mysql.AutoMigrate(gdb); err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	rdb, err := cache.OpenRedis(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	var locker loanuc.Locker = lock.NewLocalLocker()
	if cfg.LockBackend == "redis" {
		locker = lock.NewRedisLocker(rdb, 30*time.Second)
	}

	uc := loanuc.NewUsecase(
		mysql.NewLoanRepository(gdb),
		mysql.NewGormUoW(gdb, cfg.EscrowAddress()),
		src,
		locker,
		loanuc.Config{
			Escrow:  cfg.EscrowAddress(),
			Oracle:  valueOracle(admin, rdb, src),
			Logger:  log,
			Metrics: observability.Loans(),
		},
	)

	jwt := auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey)
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimitPerMinute),
		Burst:             cfg.RateLimitBurst,
	})

	e := echo.New()
	e.HideBanner = true
	e.Validator = httpadp.NewValidator()
	e.Use(echomw.Recover(), middleware.RequestID(log))

	h := httpadp.NewHandler(map[string]httpadp.Pinger{
		"db":    sqlDB,
		"redis": httpadp.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	})
	httpadp.Register(e, h, httpadp.NewLoanHandler(uc, log), httpadp.Middlewares{
		Loans: []echo.MiddlewareFunc{middleware.RequireCaller(jwt), limiter.Middleware()},
		Mutating: []echo.MiddlewareFunc{
			middleware.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second, log),
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.AppPort
		log.Info("listening", "addr", addr, "db", cfg.DBDriver, "lock", cfg.LockBackend, "oracle", admin.OracleBackend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// valueOracle picks the collateral valuation backend from the params file.
func valueOracle(admin config.Admin, rdb *redis.Client, src params.Source) oracle.ValueOracle {
	switch admin.OracleBackend {
	case "redis":
		return oracleadp.NewRedisOracle(rdb, src)
	case "static":
		return oracleadp.NewStatic(admin.StaticValues)
	default:
		return nil
	}
}
