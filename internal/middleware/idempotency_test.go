package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/dailycoin/ubi-ledger/internal/logging"
)

type idemApp struct {
	app   *fiber.App
	calls int
	fail  bool
}

func setupTestApp(t *testing.T) *idemApp {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	ia := &idemApp{app: fiber.New()}
	ia.app.Use(JWTAuth(staticVerifier{"a": "alice", "b": "bob"}))
	ia.app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	ia.app.Post("/claims", func(c *fiber.Ctx) error {
		ia.calls++
		if ia.fail {
			return fiber.NewError(fiber.StatusConflict, "no pending income to claim")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"claim": ia.calls})
	})
	return ia
}

func (ia *idemApp) post(t *testing.T, token, key string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/claims", strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := ia.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, string(body), resp.Header.Get(replayedHeader)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	ia := setupTestApp(t)

	if status, _, _ := ia.post(t, "a", ""); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
	if status, _, _ := ia.post(t, "a", strings.Repeat("k", maxIdempotencyKeyLen+1)); status != fiber.StatusBadRequest {
		t.Fatalf("expected long key to be rejected, got %d", status)
	}
	if ia.calls != 0 {
		t.Fatalf("handler should not run, ran %d times", ia.calls)
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	ia := setupTestApp(t)

	status, first, replayed := ia.post(t, "a", "abc123")
	if status != fiber.StatusCreated || replayed != "" {
		t.Fatalf("unexpected first response %d %q", status, replayed)
	}

	status, second, replayed := ia.post(t, "a", "abc123")
	if status != fiber.StatusCreated || replayed != "true" {
		t.Fatalf("expected replay, got %d %q", status, replayed)
	}
	if second != first || ia.calls != 1 {
		t.Fatalf("expected cached payload %s got %s after %d calls", first, second, ia.calls)
	}
}

func TestIdempotencyKeysAreScopedToAccount(t *testing.T) {
	ia := setupTestApp(t)

	ia.post(t, "a", "same")
	_, body, replayed := ia.post(t, "b", "same")
	if replayed != "" || ia.calls != 2 || !strings.Contains(body, `"claim":2`) {
		t.Fatalf("bob must not see alice's response: %s %q", body, replayed)
	}
}

func TestIdempotencyReleasesKeyOnError(t *testing.T) {
	ia := setupTestApp(t)

	ia.fail = true
	if status, _, _ := ia.post(t, "a", "retry"); status != fiber.StatusConflict {
		t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
	}
	ia.fail = false
	status, _, replayed := ia.post(t, "a", "retry")
	if status != fiber.StatusCreated || replayed != "" || ia.calls != 2 {
		t.Fatalf("expected a fresh run, got %d %q after %d calls", status, replayed, ia.calls)
	}
}
