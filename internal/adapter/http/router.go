package http

import (
	"github.com/labstack/echo/v4"
)

// Middlewares groups the layers Register attaches. Loans wraps every /loans
// route; Mutating is added on top for state-changing routes.
type Middlewares struct {
	Loans    []echo.MiddlewareFunc
	Mutating []echo.MiddlewareFunc
}

func Register(e *echo.Echo, h *Handler, lh *LoanHandler, mw Middlewares) {
	e.GET("/health", h.Health)
	e.GET("/metrics", Metrics())

	g := e.Group("/loans", mw.Loans...)
	g.GET("/:loan_id", lh.GetLoan)
	g.GET("/:loan_id/lenders/count", lh.LenderCount)
	g.GET("/:loan_id/collaterals/count", lh.CollateralCount)
	g.GET("/:loan_id/quote", lh.Quote)

	m := mw.Mutating
	g.POST("", lh.CreateLoan, m...)
	g.POST("/:loan_id/collaterals", lh.ProvideCollateral, m...)
	g.POST("/:loan_id/fund", lh.Fund, m...)
	g.POST("/:loan_id/withdraw", lh.Withdraw, m...)
	g.POST("/:loan_id/cancel", lh.Cancel, m...)
	g.POST("/:loan_id/repay", lh.Repay, m...)
	g.POST("/:loan_id/extend", lh.Extend, m...)
	g.POST("/:loan_id/seize", lh.Seize, m...)
}
