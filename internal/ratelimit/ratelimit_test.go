package ratelimit_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/ratelimit"
	"sitepulse/internal/testsupport"
)

func limitedApp(cfg ratelimit.Config) *fiber.App {
	app := fiber.New()
	app.Get("/", ratelimit.New(cfg), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

type response struct {
	Code   int
	Header http.Header
	Body   string
}

func get(t *testing.T, app *fiber.App, caller string) response {
	t.Helper()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Caller", caller)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{Code: resp.StatusCode, Header: resp.Header, Body: string(body)}
}

func byHeader(c *fiber.Ctx) string {
	return c.Get("X-Caller")
}

func TestLimiter(t *testing.T) {
	storage := testsupport.NewMemoryStorage()
	limited := 0
	app := limitedApp(ratelimit.PerMinute(ratelimit.Config{
		Action:    "track",
		Key:       byHeader,
		Storage:   storage,
		OnLimited: func(*fiber.Ctx) { limited++ },
	}, 2))

	t.Run("allows up to the limit", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := get(t, app, "1.2.3.4")
			require.Equal(t, fiber.StatusOK, rec.Code)
			assert.Equal(t, "2", rec.Header.Get("X-RateLimit-Limit"))
			assert.Equal(t, strconv.Itoa(1-i), rec.Header.Get("X-RateLimit-Remaining"))
			assert.NotEmpty(t, rec.Header.Get("X-RateLimit-Reset"))
		}
	})

	t.Run("denies with retry after", func(t *testing.T) {
		rec := get(t, app, "1.2.3.4")
		require.Equal(t, fiber.StatusTooManyRequests, rec.Code)

		retryAfter, err := strconv.Atoi(rec.Header.Get("Retry-After"))
		require.NoError(t, err)
		assert.True(t, retryAfter >= 1 && retryAfter <= 60, "retry after %d", retryAfter)
		assert.JSONEq(t,
			`{"error":"Too many requests","code":"RATE_LIMITED","retryAfter":`+strconv.Itoa(retryAfter)+`}`,
			rec.Body)
		assert.Equal(t, 1, limited)
	})

	t.Run("callers are independent", func(t *testing.T) {
		assert.Equal(t, fiber.StatusOK, get(t, app, "5.6.7.8").Code)
		assert.Equal(t, []string{"track:1.2.3.4", "track:5.6.7.8"}, storage.Keys())
	})

	t.Run("empty key is not limited", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			assert.Equal(t, fiber.StatusOK, get(t, app, "").Code)
		}
		assert.Len(t, storage.Keys(), 2)
	})
}

func TestLimitersShareStorage(t *testing.T) {
	storage := testsupport.NewMemoryStorage()
	track := limitedApp(ratelimit.PerMinute(ratelimit.Config{Action: "track", Key: byHeader, Storage: storage}, 1))
	query := limitedApp(ratelimit.PerMinute(ratelimit.Config{Action: "analytics", Key: byHeader, Storage: storage}, 1))

	assert.Equal(t, fiber.StatusOK, get(t, track, "7").Code)
	assert.Equal(t, fiber.StatusOK, get(t, query, "7").Code)
	assert.Equal(t, fiber.StatusTooManyRequests, get(t, query, "7").Code)
	assert.Equal(t, []string{"analytics:7", "track:7"}, storage.Keys())
}
