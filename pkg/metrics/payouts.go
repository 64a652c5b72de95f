package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// PayoutMetrics records seller payout runs and the amounts they move.
type PayoutMetrics struct {
	runs   *prometheus.CounterVec
	amount *prometheus.CounterVec
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payouts",
		Name:      "runs_total",
		Help:      "Seller payout runs by outcome.",
	}, []string{"status"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payouts",
		Name:      "transferred_amount_total",
		Help:      "Amount transferred to sellers, in currency units.",
	}, []string{"currency"})
	reg.MustRegister(runs, amount)
	return &PayoutMetrics{runs: runs, amount: amount}
}

// ObserveRun counts a finished run under its status.
func (p *PayoutMetrics) ObserveRun(status string) {
	if p == nil || p.runs == nil {
		return
	}
	p.runs.WithLabelValues(normalizeLabel(status)).Inc()
}

// AddTransferred adds a successful transfer amount.
func (p *PayoutMetrics) AddTransferred(currency string, amount decimal.Decimal) {
	if p == nil || p.amount == nil || !amount.IsPositive() {
		return
	}
	p.amount.WithLabelValues(normalizeLabel(currency)).Add(amount.InexactFloat64())
}
