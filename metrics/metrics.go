// Package metrics holds the Prometheus collectors exported by the venue.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks admin API latency by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "venue_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "path", "status"},
	)

	// OrdersTotal counts orders applied to the book by kind and side.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_orders_total",
			Help: "Total number of orders applied to the book",
		},
		[]string{"kind", "side"},
	)

	// TradesTotal counts executed transactions.
	TradesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venue_trades_total",
			Help: "Total number of executed trades",
		},
	)

	// TradedVolume sums the quantity of executed trades.
	TradedVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venue_traded_volume_total",
			Help: "Total quantity exchanged across all trades",
		},
	)

	// UnfilledTotal counts market orders that ran out of counterparty liquidity.
	UnfilledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venue_unfilled_market_orders_total",
			Help: "Market orders with an unfilled remainder",
		},
	)

	// RejectedCommands counts malformed client commands by reason.
	RejectedCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_rejected_commands_total",
			Help: "Client commands rejected before reaching the book",
		},
		[]string{"reason"},
	)

	// NotificationsDropped counts notifications addressed to closed clients.
	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "venue_notifications_dropped_total",
			Help: "Notifications dropped because the client was gone",
		},
	)

	// PricesDropped counts trade prices a sink failed to deliver.
	PricesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "venue_price_feed_dropped_total",
			Help: "Trade prices a feed sink failed to deliver",
		},
		[]string{"sink"},
	)

	// ActiveSessions tracks connected TCP clients.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "venue_active_sessions",
			Help: "Currently connected client sessions",
		},
	)

	// BookLevels tracks the number of price levels per side.
	BookLevels = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "venue_book_levels",
			Help: "Price levels currently resting per side",
		},
		[]string{"side"},
	)

	// InboxDepth tracks orders waiting for the matching goroutine.
	InboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "venue_inbox_depth",
			Help: "Orders queued for the matching engine",
		},
	)
)

// GinMiddleware records request metrics.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(c.Writer.Status()),
		).Observe(duration)
	}
}
