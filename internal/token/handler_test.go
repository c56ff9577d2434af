package token

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/dailycoin/ubi-ledger/internal/auth"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	f := newFixture(t, noBonus())
	h := NewHandler(f.svc, xdl)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if name := c.Get("X-Actor"); name != "" {
			c.SetUserContext(auth.WithActor(c.UserContext(), name))
		}
		return c.Next()
	})
	app.Get("/today", h.Today)
	app.Post("/tokens", h.Create)
	app.Get("/tokens/:symbol", h.Stats)
	app.Post("/tokens/:symbol/issue", h.Issue)
	app.Post("/tokens/:symbol/transfer", h.Transfer)
	app.Post("/claim", h.Claim)
	app.Get("/accounts/:owner/balances/:symbol", h.Balance)
	app.Put("/shares/:to", h.SetShare)
	app.Get("/accounts/:owner/shares", h.Shares)
	return app
}

func call(t *testing.T, app *fiber.App, method, path, actor, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestHandlerCurrencyLifecycle(t *testing.T) {
	app := newTestApp(t)

	status, body := call(t, app, fiber.MethodGet, "/today", "", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, float64(100), body["day"])
	require.Equal(t, "11-04-1970", body["date"])

	status, _ = call(t, app, fiber.MethodPost, "/tokens", "alice", `{"issuer":"issuer","maximum_supply":"1000000.0000 XDL"}`)
	require.Equal(t, fiber.StatusForbidden, status)

	status, body = call(t, app, fiber.MethodPost, "/tokens", authority, `{"issuer":"issuer","maximum_supply":"1000000.0000 XDL"}`)
	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, "4,XDL", body["symbol"])
	require.Equal(t, "0.0000 XDL", body["supply"])

	status, _ = call(t, app, fiber.MethodPost, "/tokens", authority, `{"issuer":"issuer","maximum_supply":"1.0000 XDL"}`)
	require.Equal(t, fiber.StatusConflict, status)

	status, _ = call(t, app, fiber.MethodPost, "/tokens/xdl/issue", "issuer", `{"to":"alice","quantity":"5.0000 ABC"}`)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, fiber.MethodPost, "/tokens/xdl/issue", "issuer", `{"to":"alice","quantity":"50.0000 XDL","memo":"hi"}`)
	require.Equal(t, fiber.StatusOK, status)

	status, body = call(t, app, fiber.MethodPost, "/tokens/xdl/transfer", "alice", `{"to":"bob","quantity":"10.0000 XDL"}`)
	require.Equal(t, fiber.StatusOK, status)
	to := body["to"].(map[string]any)
	require.Equal(t, "10.0000 XDL", to["balance"])
	require.Equal(t, "alice", to["payer"])

	status, _ = call(t, app, fiber.MethodPost, "/tokens/xdl/transfer", "alice", `{"to":"bob","quantity":"1000.0000 XDL"}`)
	require.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, fiber.MethodGet, "/accounts/zed/balances/xdl", "", "")
	require.Equal(t, fiber.StatusNotFound, status)
}

func TestHandlerClaim(t *testing.T) {
	app := newTestApp(t)
	status, _ := call(t, app, fiber.MethodPost, "/tokens", authority, `{"issuer":"issuer","maximum_supply":"1000000.0000 XDL"}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, body := call(t, app, fiber.MethodPost, "/claim", "carol", `{"strict":true}`)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, true, body["settled"])
	require.Equal(t, "1.0000 XDL", body["claimed"])
	require.Equal(t, float64(101), body["next_claim_day"])
	require.Equal(t, "12-04-1970", body["next_claim_date"])

	status, _ = call(t, app, fiber.MethodPost, "/claim", "carol", `{"strict":true}`)
	require.Equal(t, fiber.StatusConflict, status)

	status, body = call(t, app, fiber.MethodPost, "/claim", "carol", "")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, false, body["settled"])

	status, _ = call(t, app, fiber.MethodPost, "/claim", "", "")
	require.Equal(t, fiber.StatusForbidden, status)
}

func TestHandlerShares(t *testing.T) {
	app := newTestApp(t)

	status, _ := call(t, app, fiber.MethodPut, "/shares/bob", "alice", `{"percent":30}`)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = call(t, app, fiber.MethodPut, "/shares/carol", "alice", `{"percent":80}`)
	require.Equal(t, fiber.StatusBadRequest, status)

	req := httptest.NewRequest(fiber.MethodGet, "/accounts/alice/shares", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	var list []shareResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Equal(t, []shareResponse{{Beneficiary: "bob", Percent: 30}}, list)
}
