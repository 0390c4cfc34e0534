// Command ledgerctl administers the custody ledger and per-loan overrides. It
// also issues caller tokens for local use.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"nftloan-backend/internal/adapter/repository/mysql"
	"nftloan-backend/internal/auth"
	"nftloan-backend/internal/config"
	"nftloan-backend/internal/infrastructure/db"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cfg := config.Load()

	var gdb *gorm.DB
	if os.Args[1] != "token" {
		var err error
		if gdb, err = db.OpenGorm(cfg.DBDriver, cfg.DSN()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := mysql.AutoMigrate(gdb); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if err := execute(context.Background(), gdb, cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ledgerctl <command> [flags]")
	fmt.Fprintln(w, "  credit  -account ADDR -amount WEI")
	fmt.Fprintln(w, "  balance -account ADDR")
	fmt.Fprintln(w, "  escrow  -loan ID")
	fmt.Fprintln(w, "  set-max-extension -loan ID -seconds N")
	fmt.Fprintln(w, "  mint    -collection ADDR -item ID -owner ADDR")
	fmt.Fprintln(w, "  owner   -collection ADDR -item ID")
	fmt.Fprintln(w, "  token   -caller ADDR [-ttl 1h]")
}

var errUsage = errors.New("unknown command")

func execute(ctx context.Context, gdb *gorm.DB, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	account := fs.String("account", "", "account address")
	amount := fs.String("amount", "0", "amount in wei, base 10")
	collection := fs.String("collection", "", "collection address")
	item := fs.String("item", "", "item id, base 10")
	owner := fs.String("owner", "", "owner address")
	caller := fs.String("caller", "", "caller address the token is issued for")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	loanID := fs.Uint64("loan", 0, "loan id")
	seconds := fs.Uint64("seconds", 0, "max total duration in seconds, 0 clears the override")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	funds := mysql.NewFundsLedger(gdb, cfg.EscrowAddress())
	assets := mysql.NewAssetRegistry(gdb)

	switch args[0] {
	case "credit":
		addr, err := address("account", *account)
		if err != nil {
			return err
		}
		v, err := uint256.FromDecimal(*amount)
		if err != nil {
			return fmt.Errorf("amount: %w", err)
		}
		if err := funds.Credit(ctx, addr, v); err != nil {
			return err
		}
		return printBalance(ctx, funds, addr, out)
	case "balance":
		addr, err := address("account", *account)
		if err != nil {
			return err
		}
		return printBalance(ctx, funds, addr, out)
	case "escrow":
		if *loanID == 0 {
			return errors.New("loan: id required")
		}
		bal, err := funds.EscrowOf(ctx, *loanID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "loan %d %s\n", *loanID, bal.Dec())
		return nil
	case "set-max-extension":
		if *loanID == 0 {
			return errors.New("loan: id required")
		}
		if err := mysql.NewLoanRepository(gdb).SetMaxExtension(ctx, *loanID, *seconds); err != nil {
			return err
		}
		fmt.Fprintf(out, "loan %d max_extension_duration=%d\n", *loanID, *seconds)
		return nil
	case "mint":
		coll, err := address("collection", *collection)
		if err != nil {
			return err
		}
		to, err := address("owner", *owner)
		if err != nil {
			return err
		}
		id, err := uint256.FromDecimal(*item)
		if err != nil {
			return fmt.Errorf("item: %w", err)
		}
		if err := assets.Mint(ctx, coll, id, to); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s/%s -> %s\n", coll.Hex(), id.Dec(), to.Hex())
		return nil
	case "owner":
		coll, err := address("collection", *collection)
		if err != nil {
			return err
		}
		id, err := uint256.FromDecimal(*item)
		if err != nil {
			return fmt.Errorf("item: %w", err)
		}
		who, err := assets.OwnerOf(ctx, coll, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, who.Hex())
		return nil
	case "token":
		addr, err := address("caller", *caller)
		if err != nil {
			return err
		}
		tok, err := auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey).Mint(addr, *ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, tok)
		return nil
	default:
		usage(out)
		return fmt.Errorf("%w %q", errUsage, args[0])
	}
}

func printBalance(ctx context.Context, funds *mysql.FundsLedger, addr common.Address, out io.Writer) error {
	bal, err := funds.BalanceOf(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", addr.Hex(), bal.Dec())
	return nil
}

func address(name, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}
