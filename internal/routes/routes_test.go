package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rovobit/exchange/internal/config"
	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/logging"
	"github.com/rovobit/exchange/internal/metrics"
	"github.com/rovobit/exchange/internal/middleware"
	"github.com/rovobit/exchange/internal/settlement"
)

const secret = "routes-secret"

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	deps := Deps{
		Cfg: config.Config{
			Env:            "test",
			JWTSecret:      secret,
			IdempotencyTTL: time.Hour,
			SweepInterval:  time.Minute,
			SweepWorkers:   1,
			CASMaxAttempts: 3,
		},
		Logger:  logging.Discard(),
		Metrics: metrics.New(),
	}
	services, err := NewServices(deps)
	require.NoError(t, err)
	app := fiber.New()
	require.NoError(t, Setup(app, deps, services))
	return app
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	claims := middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func call(t *testing.T, app *fiber.App, method, path, tok string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("Idempotency-Key", uuid.NewString())
	if tok != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+tok)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func TestHealthAndMetrics(t *testing.T) {
	app := newApp(t)

	status, body := call(t, app, fiber.MethodGet, "/healthz", "", nil)
	require.Equal(t, fiber.StatusOK, status, string(body))

	status, body = call(t, app, fiber.MethodGet, "/metrics", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Contains(t, string(body), "http_server_requests_total")
}

func TestSpotTradeFlow(t *testing.T) {
	app := newApp(t)
	user := token(t, "u1", middleware.RoleUser)
	admin := token(t, "ops", middleware.RoleAdmin)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/wallet", user, nil)
	require.Equal(t, fiber.StatusCreated, status, string(body))

	status, body = call(t, app, fiber.MethodPut, "/api/v1/admin/wallets/u1", user, map[string]any{"spotWallet": "1000"})
	require.Equal(t, fiber.StatusForbidden, status, string(body))

	status, body = call(t, app, fiber.MethodPut, "/api/v1/admin/wallets/u1", admin, map[string]any{"spotWallet": "1000"})
	require.Equal(t, fiber.StatusOK, status, string(body))

	status, body = call(t, app, fiber.MethodPost, "/api/v1/trades", user, map[string]any{
		"type": "buy", "asset": "BTC", "quantity": "0.01", "price": "50000",
	})
	require.Equal(t, fiber.StatusCreated, status, string(body))
	var trade settlement.Trade
	require.NoError(t, json.Unmarshal(body, &trade))

	status, body = call(t, app, fiber.MethodPost, "/api/v1/admin/orders/"+trade.ID+"/approve", admin, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))

	status, body = call(t, app, fiber.MethodPost, "/api/v1/admin/orders/"+trade.ID+"/approve", admin, nil)
	require.Equal(t, fiber.StatusConflict, status, string(body))

	status, body = call(t, app, fiber.MethodGet, "/api/v1/wallet", user, nil)
	require.Equal(t, fiber.StatusOK, status, string(body))
	var w ledger.Wallet
	require.NoError(t, json.Unmarshal(body, &w))
	require.True(t, w.SpotWallet.Equal(decimal.NewFromInt(500)), "spot: %s", w.SpotWallet)
	require.True(t, w.Holding("BTC").Equal(decimal.RequireFromString("0.01")))
}

func TestWithdrawRequiresFunds(t *testing.T) {
	app := newApp(t)
	user := token(t, "u2", middleware.RoleUser)

	status, _ := call(t, app, fiber.MethodPost, "/api/v1/wallet", user, nil)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/requests/withdraw", user, map[string]any{
		"amount": "10", "currency": "USDT", "network": "TRC20", "walletAddress": "T1",
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, status, string(body))

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/requests", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, status)
}
