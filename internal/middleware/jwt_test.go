package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dailycoin/ubi-ledger/internal/auth"
)

type staticVerifier map[string]string

func (v staticVerifier) Verify(_ context.Context, token string) (string, error) {
	name, ok := v[token]
	if !ok {
		return "", errors.New("invalid token")
	}
	return name, nil
}

func TestJWTAuthSetsActor(t *testing.T) {
	app := fiber.New()
	app.Use(JWTAuth(staticVerifier{"good": "alice"}))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		actor, _ := auth.ActorFrom(c.UserContext())
		return c.SendString(actor + "/" + Account(c))
	})

	req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "alice/alice" {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}

	for _, header := range []string{"", "Bearer bad", "Basic good"} {
		req := httptest.NewRequest(fiber.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set(fiber.HeaderAuthorization, header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, resp.StatusCode)
		}
	}
}

func TestClaimRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(JWTAuth(staticVerifier{"a": "alice", "b": "bob"}))
	app.Post("/claims", ClaimRateLimit(cache, 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	do := func(token string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/claims", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	if do("a") != fiber.StatusOK || do("a") != fiber.StatusOK {
		t.Fatal("expected first two claims to pass")
	}
	if got := do("a"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := do("b"); got != fiber.StatusOK {
		t.Fatalf("expected other account to be unaffected, got %d", got)
	}
	if ttl := mr.TTL("rl:claim:alice"); ttl <= 0 {
		t.Fatalf("expected counter expiry, got %s", ttl)
	}
}

func TestRateLimitWithoutRedisIsNoop(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(nil, 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/login", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	}
}
