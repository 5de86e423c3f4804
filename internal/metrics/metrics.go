package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps a private Prometheus registry with the counters the exchange
// core reports. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	LedgerOpsTotal      *prometheus.CounterVec
	SettlementsTotal    *prometheus.CounterVec
	LiquidationsTotal   *prometheus.CounterVec
	RequestsTotal       *prometheus.CounterVec
}

// New builds the registry and registers runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: reg}
	m.HTTPRequestsTotal = m.newCounterVec("http_server_requests_total", "Total number of HTTP requests", "method", "path", "status")
	m.HTTPRequestDuration = m.newHistogramVec("http_server_request_duration_seconds", "HTTP request latency in seconds", "method", "path")
	m.LedgerOpsTotal = m.newCounterVec("ledger_operations_total", "Wallet mutations by operation and outcome", "op", "outcome")
	m.SettlementsTotal = m.newCounterVec("settlements_total", "Trade and position settlements by kind and outcome", "kind", "outcome")
	m.LiquidationsTotal = m.newCounterVec("liquidations_total", "Positions closed by the sweeper by reason", "reason")
	m.RequestsTotal = m.newCounterVec("funding_requests_total", "Deposit, withdraw and swap requests by action and outcome", "action", "outcome")
	return m
}

func (m *Metrics) newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	m.registry.MustRegister(cv)
	return cv
}

func (m *Metrics) newHistogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: prometheus.DefBuckets}, labels)
	m.registry.MustRegister(hv)
	return hv
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// LedgerOp counts one wallet mutation.
func (m *Metrics) LedgerOp(op string, err error) {
	if m == nil {
		return
	}
	m.LedgerOpsTotal.WithLabelValues(op, Outcome(err)).Inc()
}

// Settlement counts one trade or position settlement.
func (m *Metrics) Settlement(kind string, err error) {
	if m == nil {
		return
	}
	m.SettlementsTotal.WithLabelValues(kind, Outcome(err)).Inc()
}

// Liquidation counts one sweeper close.
func (m *Metrics) Liquidation(reason string) {
	if m == nil {
		return
	}
	m.LiquidationsTotal.WithLabelValues(reason).Inc()
}

// Request counts one funding action.
func (m *Metrics) Request(action string, err error) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(action, Outcome(err)).Inc()
}

// Middleware records request counts and latency per route.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if m == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		path := c.Route().Path
		m.HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())
		return err
	}
}
