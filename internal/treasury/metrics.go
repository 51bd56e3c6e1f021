package treasury

import (
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for the engine. A nil *Metrics records nothing.
type Metrics struct {
	opDuration    *prometheus.HistogramVec
	opsTotal      *prometheus.CounterVec
	vaults        prometheus.Gauge
	totalWeight   prometheus.Gauge
	stableBalance prometheus.Gauge
}

// NewMetrics creates and registers the metrics for the engine.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "treasury_operation_duration_seconds",
			Help:    "Time taken by a treasury operation, including rollback.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		opsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treasury_operations_total",
			Help: "Total number of treasury operations, labeled by operation and result.",
		}, []string{"operation", "result"}),
		vaults: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_vaults",
			Help: "Number of registered vaults.",
		}),
		totalWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_total_weight",
			Help: "Sum of all vault allocation weights.",
		}),
		stableBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_stable_balance",
			Help: "Undistributed stable-coin balance in base units.",
		}),
	}
	reg.MustRegister(m.opDuration, m.opsTotal, m.vaults, m.totalWeight, m.stableBalance)
	return m
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.opsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) setState(vaults int, totalWeight, stableBalance *uint256.Int) {
	if m == nil {
		return
	}
	m.vaults.Set(float64(vaults))
	m.totalWeight.Set(toFloat(totalWeight))
	m.stableBalance.Set(toFloat(stableBalance))
}

func toFloat(x *uint256.Int) float64 {
	f, _ := new(big.Float).SetInt(x.ToBig()).Float64()
	return f
}
