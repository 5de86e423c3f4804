package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersByOutcome(t *testing.T) {
	m := New()
	m.LedgerOp("debit", nil)
	m.LedgerOp("debit", errors.New("boom"))
	m.LedgerOp("debit", nil)

	if got := testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("debit", "ok")); got != 2 {
		t.Fatalf("expected 2 ok debits, got %v", got)
	}
	if got := testutil.ToFloat64(m.LedgerOpsTotal.WithLabelValues("debit", "error")); got != 1 {
		t.Fatalf("expected 1 failed debit, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.LedgerOp("credit", nil)
	m.Settlement("spot", nil)
	m.Liquidation("expired")
	m.Request("swap", nil)
}

func TestMiddlewareRecordsRoute(t *testing.T) {
	m := New()
	app := fiber.New()
	app.Use(m.Middleware())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200")); got != 1 {
		t.Fatalf("expected one recorded request, got %v", got)
	}
}
