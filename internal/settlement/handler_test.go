package settlement

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/rovobit/exchange/internal/ledger"
	"github.com/rovobit/exchange/internal/middleware"
)

func handlerApp(f fixture) *fiber.App {
	h := NewHandler(f.svc)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		middleware.SetCaller(c, middleware.Caller{UserID: "u1", Role: middleware.RoleAdmin})
		return c.Next()
	})
	app.Post("/positions", h.OpenPosition)
	app.Post("/positions/:positionId/liquidate", h.Liquidate)
	app.Post("/users/:userId/profit-toggle", h.ToggleProfit)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestHandlerOpenAndLiquidate(t *testing.T) {
	f := newFixture(t)
	f.openWallet(t, "u1", ledger.Overrides{FuturesWallet: ptr("500")})
	app := handlerApp(f)

	status, body := post(t, app, "/positions",
		`{"category":"futures","asset":"BTC","side":"long","entryPrice":"100","assetsAmount":"2","leverage":"2"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	status, body = post(t, app, "/positions/"+id+"/liquidate", `{"marketPrice":"130","policy":"markToMarket"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	require.Equal(t, "60", body["profitLoss"])

	status, _ = post(t, app, "/positions/"+id+"/liquidate", `{"marketPrice":"130"}`)
	require.Equal(t, fiber.StatusConflict, status)

	w, err := f.wallets.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, w.FuturesWallet.Equal(d("560")), "futures: %s", w.FuturesWallet)
}

func TestHandlerRejectsUnknownPolicy(t *testing.T) {
	f := newFixture(t)
	app := handlerApp(f)
	status, _ := post(t, app, "/positions/p-1/liquidate", `{"marketPrice":"10","policy":"random"}`)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestHandlerToggleProfit(t *testing.T) {
	f := newFixture(t)
	app := handlerApp(f)

	status, body := post(t, app, "/users/u9/profit-toggle", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, body["isActive"])

	on, err := f.flags.Get(context.Background(), "u9")
	require.NoError(t, err)
	require.True(t, on)
}
