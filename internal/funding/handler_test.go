package funding

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/rovobit/exchange/internal/middleware"
)

func handlerApp(f fixture) *fiber.App {
	h := NewHandler(f.svc)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		middleware.SetCaller(c, middleware.Caller{UserID: c.Get("X-Test-User"), Role: middleware.RoleUser})
		return c.Next()
	})
	app.Post("/swap", h.Swap)
	app.Post("/transfer", h.Transfer)
	return app
}

func send(t *testing.T, app *fiber.App, user, path, key, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Test-User", user)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestHandlerFallsBackToIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.openWallet(t, "a", spot("100"))
	f.openWallet(t, "b", spot("100"))
	app := handlerApp(f)

	swap := `{"fromAsset":"USDT","toAsset":"BTC","amount":"10","exchangeRate":"0.001"}`
	status, body := send(t, app, "a", "/swap", "idem-1", swap)
	require.Equal(t, fiber.StatusCreated, status, body)
	require.Equal(t, "idem-1", body["transactionId"])

	status, _ = send(t, app, "a", "/swap", "idem-1", swap)
	require.Equal(t, fiber.StatusConflict, status)

	status, body = send(t, app, "b", "/transfer", "idem-1", `{"fromWallet":"spot","toWallet":"futures","amount":"5"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	require.Equal(t, "idem-1", body["transactionId"])

	status, body = send(t, app, "a", "/swap", "idem-2", `{"fromAsset":"USDT","toAsset":"ETH","amount":"1","exchangeRate":"0.01","clientTxId":"body-id"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	require.Equal(t, "body-id", body["transactionId"])
}
