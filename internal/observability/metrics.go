package observability

import (
	"errors"
	"sync"
	"time"

	"nftloan-backend/internal/domain/loan"

	"github.com/prometheus/client_golang/prometheus"
)

type LoanMetrics struct {
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

var (
	loanMetricsOnce sync.Once
	loanRegistry    *LoanMetrics
)

// Loans returns the lazily registered loan operation metrics.
func Loans() *LoanMetrics {
	loanMetricsOnce.Do(func() {
		loanRegistry = &LoanMetrics{
			ops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftloan",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Loan operations segmented by operation and outcome class.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftloan",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency of loan operations including lock wait.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
		}
		prometheus.MustRegister(loanRegistry.ops, loanRegistry.latency)
	})
	return loanRegistry
}

func (m *LoanMetrics) Observe(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, Outcome(err)).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Outcome names the error class of err for metric labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, loan.ErrValidation):
		return "validation"
	case errors.Is(err, loan.ErrAuthorization):
		return "authorization"
	case errors.Is(err, loan.ErrState):
		return "state"
	case errors.Is(err, loan.ErrTransfer):
		return "transfer"
	case errors.Is(err, loan.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
