package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	idempotencyPrefix    = "ledger:idem:v1:"
	inProgressMarker     = "__in_progress__"
	maxIdempotencyKeyLen = 128
	cacheOpTimeout       = 2 * time.Second
)

type storedResponse struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
}

var errInProgress = errors.New("duplicate request currently processing")

// Idempotency replays the stored response of a mutating request sent again
// with the same Idempotency-Key. Keys are scoped to the authenticated account
// when JWTAuth ran first. Failed requests release their key so the caller can
// retry.
func Idempotency(cache *redis.Client, ttl time.Duration, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		key := strings.TrimSpace(c.Get(idempotencyKeyHeader))
		switch {
		case key == "":
			return fiber.NewError(http.StatusBadRequest, "missing Idempotency-Key header")
		case len(key) > maxIdempotencyKeyLen:
			return fiber.NewError(http.StatusBadRequest, "Idempotency-Key too long")
		}
		cacheKey := idempotencyPrefix + key
		if account := Account(c); account != "" {
			cacheKey = idempotencyPrefix + account + ":" + key
		}
		log := logger.With(slog.String("idempotency_key", key))

		stored, found, err := lookup(c.UserContext(), cache, cacheKey)
		switch {
		case errors.Is(err, errInProgress):
			return fiber.NewError(http.StatusConflict, err.Error())
		case err != nil:
			log.ErrorContext(c.UserContext(), "idempotency lookup failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, "idempotency store failure")
		case found:
			if stored.ContentType != "" {
				c.Set(fiber.HeaderContentType, stored.ContentType)
			}
			c.Set(replayedHeader, "true")
			return c.Status(stored.Status).SendString(stored.Body)
		}

		reserved, err := reserve(c.UserContext(), cache, cacheKey, ttl)
		if err != nil {
			log.ErrorContext(c.UserContext(), "idempotency reservation failed", slog.Any("error", err))
			return fiber.NewError(http.StatusInternalServerError, "idempotency reservation failure")
		}
		if !reserved {
			return fiber.NewError(http.StatusConflict, errInProgress.Error())
		}

		if err := c.Next(); err != nil {
			release(cache, cacheKey)
			return err
		}

		resp := storedResponse{
			Status:      c.Response().StatusCode(),
			Body:        string(c.Response().Body()),
			ContentType: string(c.Response().Header.ContentType()),
		}
		if err := persist(cache, cacheKey, resp, ttl); err != nil {
			log.ErrorContext(c.UserContext(), "failed to persist idempotent response", slog.Any("error", err))
			release(cache, cacheKey)
		}
		return nil
	}
}

func lookup(ctx context.Context, cache *redis.Client, key string) (storedResponse, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	raw, err := cache.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return storedResponse{}, false, nil
	case err != nil:
		return storedResponse{}, false, err
	case raw == inProgressMarker:
		return storedResponse{}, false, errInProgress
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return storedResponse{}, false, err
	}
	return stored, true, nil
}

func reserve(ctx context.Context, cache *redis.Client, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	return cache.SetNX(ctx, key, inProgressMarker, ttl).Result()
}

// persist and release run on a fresh context; the request may already be
// cancelled once the handler returned.
func persist(cache *redis.Client, key string, resp storedResponse, ttl time.Duration) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	return cache.Set(ctx, key, payload, ttl).Err()
}

func release(cache *redis.Client, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheOpTimeout)
	defer cancel()
	cache.Del(ctx, key)
}
