package http_test

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sitepulse/internal"
	"sitepulse/internal/analytics"
	"sitepulse/internal/auth"
	"sitepulse/internal/testsupport"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var now = time.Date(2026, 4, 14, 12, 0, 0, 0, time.UTC)

var signedIn = auth.VerifierFunc(func(ctx *cartridge.Context) (*auth.Principal, error) {
	return &auth.Principal{UserID: 7, Email: "owner@example.com"}, nil
})

var signedOut = auth.VerifierFunc(func(ctx *cartridge.Context) (*auth.Principal, error) {
	return nil, auth.ErrUnauthenticated
})

func analyticsApp(t *testing.T, db *gorm.DB, deps internal.Deps) *fiber.App {
	t.Helper()
	if deps.Verifier == nil {
		deps.Verifier = signedIn
	}
	if deps.Clock == nil {
		deps.Clock = fixedClock{now: now}
	}
	return testsupport.CreateTestApp(t, db, &deps)
}

func getAnalytics(t *testing.T, app *fiber.App, query string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/api/admin/analytics"+query, nil), -1)
	require.NoError(t, err)
	if out != nil {
		testsupport.DecodeJSON(t, resp, out)
	}
	return resp.StatusCode
}

func seedTraffic(t *testing.T, db *gorm.DB) {
	t.Helper()
	dbManager := testsupport.NewTestDBManager(db)
	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "A", PagePath: "/blog/post-1", Referrer: "https://google.com/search", At: now})
	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "B", PagePath: "/blog/post-1", At: now})
	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "A", PagePath: "/missing", StatusCode: 404, At: now})
	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "C", PagePath: "/about", Referrer: "https://google.com/", At: now.AddDate(0, 0, -20)})
}

func TestAnalyticsSummary(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seedTraffic(t, db)
	app := analyticsApp(t, db, internal.Deps{})

	var summary analytics.AnalyticsSummary
	require.Equal(t, fiber.StatusOK, getAnalytics(t, app, "?days=7", &summary))
	assert.Equal(t, "2026-04-08", summary.StartDate)
	assert.Equal(t, "2026-04-14", summary.EndDate)
	assert.Equal(t, int64(2), summary.TotalPageViews)
	assert.Equal(t, int64(1), summary.Total404s)

	t.Run("window falls back to 30 days", func(t *testing.T) {
		var wide analytics.AnalyticsSummary
		require.Equal(t, fiber.StatusOK, getAnalytics(t, app, "?days=12", &wide))
		assert.Equal(t, "2026-03-16", wide.StartDate)
		assert.Equal(t, int64(3), wide.TotalPageViews)
	})

	t.Run("explicit date range", func(t *testing.T) {
		var ranged analytics.AnalyticsSummary
		require.Equal(t, fiber.StatusOK, getAnalytics(t, app, "?startDate=2026-03-25&endDate=2026-03-25", &ranged))
		assert.Equal(t, int64(1), ranged.TotalPageViews)
		require.Len(t, ranged.TopPages, 1)
		assert.Equal(t, "/about", ranged.TopPages[0].Path)
	})

	t.Run("bad date is rejected", func(t *testing.T) {
		var body map[string]any
		assert.Equal(t, fiber.StatusBadRequest, getAnalytics(t, app, "?startDate=yesterday&endDate=2026-03-25", &body))
		assert.Equal(t, "INVALID_REQUEST", body["code"])
	})
}

func TestAnalyticsDrillDowns(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	seedTraffic(t, db)
	app := analyticsApp(t, db, internal.Deps{})

	t.Run("all pages", func(t *testing.T) {
		var body struct {
			Pages analytics.Paginated[analytics.PageMetric] `json:"pages"`
		}
		require.Equal(t, fiber.StatusOK, getAnalytics(t, app, "?action=all-pages&days=30&limit=1", &body))
		assert.Equal(t, int64(2), body.Pages.Total)
		assert.Equal(t, 2, body.Pages.TotalPages)
		require.Len(t, body.Pages.Data, 1)
		assert.Equal(t, "/blog/post-1", body.Pages.Data[0].Path)
	})

	t.Run("referrers for a page", func(t *testing.T) {
		var body struct {
			Referrers analytics.Paginated[analytics.ReferrerMetric] `json:"referrers"`
		}
		require.Equal(t, fiber.StatusOK, getAnalytics(t, app, "?action=page-referrers&pagePath=/blog/post-1", &body))
		require.Len(t, body.Referrers.Data, 1)
		assert.Equal(t, "google.com", body.Referrers.Data[0].Domain)
	})

	t.Run("pages from a referrer", func(t *testing.T) {
		var body struct {
			Pages analytics.Paginated[analytics.PageMetric] `json:"pages"`
		}
		require.Equal(t, fiber.StatusOK, getAnalytics(t, app, "?action=referrer-pages&domain=google.com&days=30", &body))
		assert.Equal(t, int64(2), body.Pages.Total)
	})

	t.Run("all 404s", func(t *testing.T) {
		var body struct {
			Errors analytics.Paginated[analytics.NotFoundMetric] `json:"errors"`
		}
		require.Equal(t, fiber.StatusOK, getAnalytics(t, app, "?action=all-404s", &body))
		require.Len(t, body.Errors.Data, 1)
		assert.Equal(t, "/missing", body.Errors.Data[0].Path)
	})

	t.Run("missing drill-down parameters", func(t *testing.T) {
		assert.Equal(t, fiber.StatusBadRequest, getAnalytics(t, app, "?action=page-referrers", nil))
		assert.Equal(t, fiber.StatusBadRequest, getAnalytics(t, app, "?action=referrer-pages", nil))
	})

	t.Run("blank drill-down parameters", func(t *testing.T) {
		var body map[string]any
		assert.Equal(t, fiber.StatusBadRequest, getAnalytics(t, app, "?action=page-referrers&pagePath=%20", &body))
		assert.Equal(t, "INVALID_REQUEST", body["code"])
		assert.Equal(t, fiber.StatusBadRequest, getAnalytics(t, app, "?action=referrer-pages&domain=%20%20", nil))
	})

	t.Run("unknown action", func(t *testing.T) {
		assert.Equal(t, fiber.StatusBadRequest, getAnalytics(t, app, "?action=export", nil))
	})
}

func TestAnalyticsRequiresAdmin(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	t.Run("no session", func(t *testing.T) {
		app := analyticsApp(t, db, internal.Deps{Verifier: signedOut})
		var body map[string]any
		assert.Equal(t, fiber.StatusUnauthorized, getAnalytics(t, app, "", &body))
		assert.Equal(t, "UNAUTHORIZED", body["code"])
	})

	t.Run("verifier failure", func(t *testing.T) {
		broken := auth.VerifierFunc(func(ctx *cartridge.Context) (*auth.Principal, error) {
			return nil, errors.New("database is locked")
		})
		app := analyticsApp(t, db, internal.Deps{Verifier: broken})
		assert.Equal(t, fiber.StatusInternalServerError, getAnalytics(t, app, "", nil))
	})
}

func TestAnalyticsRateLimitedPerAdmin(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	storage := testsupport.NewMemoryStorage()
	byHeader := auth.VerifierFunc(func(ctx *cartridge.Context) (*auth.Principal, error) {
		if ctx.Get("X-Admin") == "8" {
			return &auth.Principal{UserID: 8}, nil
		}
		return &auth.Principal{UserID: 7}, nil
	})
	app := analyticsApp(t, db, internal.Deps{Verifier: byHeader, AnalyticsRateLimit: 1, RateLimitStorage: storage})

	assert.Equal(t, fiber.StatusOK, getAnalytics(t, app, "", nil))

	resp, err := app.Test(httptest.NewRequest("GET", "/api/admin/analytics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	other := httptest.NewRequest("GET", "/api/admin/analytics", nil)
	other.Header.Set("X-Admin", "8")
	resp, err = app.Test(other, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"analytics:7", "analytics:8"}, storage.Keys())

	t.Run("anonymous requests are rejected before counting", func(t *testing.T) {
		app := analyticsApp(t, db, internal.Deps{Verifier: signedOut, AnalyticsRateLimit: 1, RateLimitStorage: storage})
		for i := 0; i < 3; i++ {
			assert.Equal(t, fiber.StatusUnauthorized, getAnalytics(t, app, "", nil))
		}
		assert.Len(t, storage.Keys(), 2)
	})
}
