package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"nftloan-backend/internal/adapter/middleware"
	"nftloan-backend/internal/usecase/loan"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"
)

// LoanService is the slice of the loan usecase the handlers drive.
type LoanService interface {
	Create(ctx context.Context, in loan.CreateLoanInput) (*loan.LoanDTO, error)
	Get(ctx context.Context, loanID uint64) (*loan.LoanDTO, error)
	LenderCount(ctx context.Context, loanID uint64) (int, error)
	CollateralCount(ctx context.Context, loanID uint64) (int, error)
	Quote(ctx context.Context, loanID uint64) (*loan.QuoteDTO, error)
	ProvideCollateral(ctx context.Context, in loan.ProvideCollateralInput) (*loan.LoanDTO, error)
	Fund(ctx context.Context, in loan.FundInput) (*loan.FundResult, error)
	WithdrawBeforeFill(ctx context.Context, caller common.Address, loanID uint64) (*loan.WithdrawResult, error)
	Cancel(ctx context.Context, caller common.Address, loanID uint64) error
	Repay(ctx context.Context, in loan.RepayInput) (*loan.RepayResult, error)
	Extend(ctx context.Context, in loan.ExtendInput) (*loan.ExtendResult, error)
	Seize(ctx context.Context, caller common.Address, loanID uint64) (*loan.SeizeResult, error)
}

var _ LoanService = (*loan.Usecase)(nil)

type LoanHandler struct {
	uc  LoanService
	log *slog.Logger
}

func NewLoanHandler(uc LoanService, log *slog.Logger) *LoanHandler {
	if log == nil {
		log = slog.Default()
	}
	return &LoanHandler{uc: uc, log: log}
}

type createLoanReq struct {
	Amount     string `json:"amount" validate:"required,uint256"`
	MaxLenders uint32 `json:"max_lenders" validate:"required,gte=1"`
	Value      string `json:"value" validate:"required,uint256"`
}

type collateralItemReq struct {
	Collection string `json:"collection" validate:"required,eth_addr"`
	ItemID     string `json:"item_id" validate:"required,uint256"`
}

type provideCollateralReq struct {
	Items []collateralItemReq `json:"items" validate:"required,min=1,dive"`
}

// valueReq carries the payment attached to fund and repay.
type valueReq struct {
	Value string `json:"value" validate:"required,uint256"`
}

type extendReq struct {
	AdditionalTime uint64 `json:"additional_time" validate:"required,gt=0"`
	Value          string `json:"value" validate:"required,uint256"`
}

type countResp struct {
	LoanID uint64 `json:"loan_id"`
	Count  int    `json:"count"`
}

// bind decodes and validates the body into req.
func bind(c echo.Context, req any) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, badRequest(c, "invalid body")
	}
	if err := c.Validate(req); err != nil {
		return false, invalid(c, err)
	}
	return true, nil
}

func loanID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("loan_id"), 10, 64)
	return id, err == nil
}

// caller is set by middleware.RequireCaller on every /loans route.
func caller(c echo.Context) (common.Address, bool) { return middleware.Caller(c) }

// amount parses a string that already passed the uint256 tag.
func amount(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	who, ok := caller(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
	}
	var req createLoanReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	dto, err := h.uc.Create(c.Request().Context(), loan.CreateLoanInput{
		Caller:     who,
		Amount:     amount(req.Amount),
		MaxLenders: req.MaxLenders,
		Value:      amount(req.Value),
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	id, ok := loanID(c)
	if !ok {
		return badRequest(c, "invalid loan id")
	}
	dto, err := h.uc.Get(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) LenderCount(c echo.Context) error {
	return h.count(c, h.uc.LenderCount)
}

func (h *LoanHandler) CollateralCount(c echo.Context) error {
	return h.count(c, h.uc.CollateralCount)
}

func (h *LoanHandler) count(c echo.Context, fn func(context.Context, uint64) (int, error)) error {
	id, ok := loanID(c)
	if !ok {
		return badRequest(c, "invalid loan id")
	}
	n, err := fn(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, countResp{LoanID: id, Count: n})
}

func (h *LoanHandler) Quote(c echo.Context) error {
	id, ok := loanID(c)
	if !ok {
		return badRequest(c, "invalid loan id")
	}
	q, err := h.uc.Quote(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *LoanHandler) ProvideCollateral(c echo.Context) error {
	id, who, ok := h.target(c)
	if !ok {
		return nil
	}
	var req provideCollateralReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	in := loan.ProvideCollateralInput{Caller: who, LoanID: id, Items: make([]loan.CollateralItem, 0, len(req.Items))}
	for _, it := range req.Items {
		in.Items = append(in.Items, loan.CollateralItem{
			Collection: common.HexToAddress(it.Collection),
			ItemID:     amount(it.ItemID),
		})
	}
	dto, err := h.uc.ProvideCollateral(c.Request().Context(), in)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) Fund(c echo.Context) error {
	id, who, ok := h.target(c)
	if !ok {
		return nil
	}
	var req valueReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.uc.Fund(c.Request().Context(), loan.FundInput{Caller: who, LoanID: id, Value: amount(req.Value)})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) Withdraw(c echo.Context) error {
	id, who, ok := h.target(c)
	if !ok {
		return nil
	}
	res, err := h.uc.WithdrawBeforeFill(c.Request().Context(), who, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) Cancel(c echo.Context) error {
	id, who, ok := h.target(c)
	if !ok {
		return nil
	}
	if err := h.uc.Cancel(c.Request().Context(), who, id); err != nil {
		return h.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *LoanHandler) Repay(c echo.Context) error {
	id, who, ok := h.target(c)
	if !ok {
		return nil
	}
	var req valueReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.uc.Repay(c.Request().Context(), loan.RepayInput{Caller: who, LoanID: id, Value: amount(req.Value)})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) Extend(c echo.Context) error {
	id, who, ok := h.target(c)
	if !ok {
		return nil
	}
	var req extendReq
	if ok, err := bind(c, &req); !ok {
		return err
	}
	res, err := h.uc.Extend(c.Request().Context(), loan.ExtendInput{
		Caller:         who,
		LoanID:         id,
		AdditionalTime: req.AdditionalTime,
		Value:          amount(req.Value),
	})
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *LoanHandler) Seize(c echo.Context) error {
	id, who, ok := h.target(c)
	if !ok {
		return nil
	}
	res, err := h.uc.Seize(c.Request().Context(), who, id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// target resolves the loan id and caller of a mutating route. When it returns
// false the error response has already been written.
func (h *LoanHandler) target(c echo.Context) (uint64, common.Address, bool) {
	id, ok := loanID(c)
	if !ok {
		_ = badRequest(c, "invalid loan id")
		return 0, common.Address{}, false
	}
	who, ok := caller(c)
	if !ok {
		_ = c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return 0, common.Address{}, false
	}
	return id, who, true
}
