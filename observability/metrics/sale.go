package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics exposes the sale ledger's operational counters and gauges.
type SaleMetrics struct {
	purchases       prometheus.Counter
	tokensSold      prometheus.Gauge
	assetRaised     prometheus.Gauge
	currentPrice    prometheus.Gauge
	finalized       prometheus.Gauge
	collabFailures  *prometheus.CounterVec
	rejectedMutates *prometheus.CounterVec
}

var (
	saleOnce     sync.Once
	saleRegistry *SaleMetrics
)

// Sale returns the process-wide sale metrics registry.
func Sale() *SaleMetrics {
	saleOnce.Do(func() {
		saleRegistry = &SaleMetrics{
			purchases: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "sale_purchases_total",
				Help: "Count of committed purchases.",
			}),
			tokensSold: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_tokens_sold",
				Help: "Cumulative tokens sold, in whole tokens.",
			}),
			assetRaised: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_asset_raised",
				Help: "Cumulative payment asset raised, in whole units.",
			}),
			currentPrice: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_current_price",
				Help: "Current token price in payment-asset units.",
			}),
			finalized: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sale_finalized",
				Help: "1 once the sale has finalized, 0 before.",
			}),
			collabFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_collaborator_failures_total",
				Help: "Count of failed collaborator calls by operation.",
			}, []string{"operation"}),
			rejectedMutates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "sale_rejected_mutations_total",
				Help: "Count of rejected mutating calls by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			saleRegistry.purchases,
			saleRegistry.tokensSold,
			saleRegistry.assetRaised,
			saleRegistry.currentPrice,
			saleRegistry.finalized,
			saleRegistry.collabFailures,
			saleRegistry.rejectedMutates,
		)
	})
	return saleRegistry
}

// ObservePurchase records one committed purchase and the resulting totals.
func (m *SaleMetrics) ObservePurchase(tokensSold, assetRaised, price float64) {
	if m == nil {
		return
	}
	m.purchases.Inc()
	m.tokensSold.Set(tokensSold)
	m.assetRaised.Set(assetRaised)
	m.currentPrice.Set(price)
}

// ObserveFinalized marks the sale closed.
func (m *SaleMetrics) ObserveFinalized() {
	if m == nil {
		return
	}
	m.finalized.Set(1)
}

// ObserveCollaboratorFailure records a failed external call.
func (m *SaleMetrics) ObserveCollaboratorFailure(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.collabFailures.WithLabelValues(operation).Inc()
}

// ObserveRejectedMutation records a mutating call refused by the engine.
func (m *SaleMetrics) ObserveRejectedMutation(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejectedMutates.WithLabelValues(reason).Inc()
}
