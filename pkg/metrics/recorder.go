package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
)

const namespace = "creditrisk"

// Recorder handles metrics recording and exposure
type Recorder struct {
	// API metrics
	apiRequestCounter   *prometheus.CounterVec
	apiLatencyHistogram *prometheus.HistogramVec

	// Risk calculation metrics
	riskCalcCounter *prometheus.CounterVec
	riskCalcLatency *prometheus.HistogramVec

	// Portfolio metrics
	exposureGauge        *prometheus.GaugeVec
	expectedLossGauge    *prometheus.GaugeVec
	economicCapitalGauge *prometheus.GaugeVec
	nplRatioGauge        *prometheus.GaugeVec
	loanCountGauge       *prometheus.GaugeVec

	// System metrics
	memoryUsageGauge    prometheus.Gauge
	goroutineCountGauge prometheus.Gauge
}

// NewRecorder creates a recorder and registers its collectors with reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	portfolioLabels := []string{"portfolio_id"}

	return &Recorder{
		apiRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "The total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		apiLatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_latency_seconds",
				Help:      "API request latency distribution",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"method", "path"},
		),

		riskCalcCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_calculations_total",
				Help:      "The total number of risk calculations",
			},
			[]string{"type", "portfolio_id"},
		),
		riskCalcLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_calc_latency_seconds",
				Help:      "Risk calculation latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
			},
			[]string{"type"},
		),

		exposureGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_exposure",
				Help:      "Total outstanding exposure of a portfolio",
			},
			portfolioLabels,
		),
		expectedLossGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_expected_loss",
				Help:      "Expected loss of a portfolio",
			},
			portfolioLabels,
		),
		economicCapitalGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_economic_capital",
				Help:      "Economic capital of a portfolio",
			},
			portfolioLabels,
		),
		nplRatioGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_npl_ratio",
				Help:      "Share of exposure that is non-performing or defaulted",
			},
			portfolioLabels,
		),
		loanCountGauge: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_loans",
				Help:      "Number of loans in a portfolio",
			},
			portfolioLabels,
		),

		memoryUsageGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "memory_usage_bytes",
				Help:      "Heap memory in use by the application",
			},
		),
		goroutineCountGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "goroutine_count",
				Help:      "Number of goroutines",
			},
		),
	}
}

// RecordAPIRequest records metrics for an API request
func (r *Recorder) RecordAPIRequest(method, path string, status int, latency time.Duration) {
	r.apiRequestCounter.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.apiLatencyHistogram.WithLabelValues(method, path).Observe(latency.Seconds())
}

// RecordRiskCalculation records metrics for a risk calculation
func (r *Recorder) RecordRiskCalculation(portfolioID, calculationType string, latency time.Duration) {
	r.riskCalcCounter.WithLabelValues(calculationType, portfolioID).Inc()
	r.riskCalcLatency.WithLabelValues(calculationType).Observe(latency.Seconds())
}

// RecordPortfolioSummary sets the portfolio gauges
func (r *Recorder) RecordPortfolioSummary(portfolioID string, summary models.PortfolioSummary) {
	r.exposureGauge.WithLabelValues(portfolioID).Set(summary.TotalExposure)
	r.expectedLossGauge.WithLabelValues(portfolioID).Set(summary.ExpectedLoss)
	r.economicCapitalGauge.WithLabelValues(portfolioID).Set(summary.EconomicCapital)
	r.nplRatioGauge.WithLabelValues(portfolioID).Set(summary.NPLRatio)
	r.loanCountGauge.WithLabelValues(portfolioID).Set(float64(summary.LoanCount))
}

// ForgetPortfolio drops the gauges of a deleted portfolio
func (r *Recorder) ForgetPortfolio(portfolioID string) {
	for _, g := range []*prometheus.GaugeVec{r.exposureGauge, r.expectedLossGauge, r.economicCapitalGauge, r.nplRatioGauge, r.loanCountGauge} {
		g.DeleteLabelValues(portfolioID)
	}
}

// RecordSystem records memory and goroutine usage
func (r *Recorder) RecordSystem(bytesUsed uint64, goroutines int) {
	r.memoryUsageGauge.Set(float64(bytesUsed))
	r.goroutineCountGauge.Set(float64(goroutines))
}
