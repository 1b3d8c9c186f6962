package v1_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
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
	"sitepulse/internal/events"
	"sitepulse/internal/settings"
	"sitepulse/internal/testsupport"
)

func postTrack(t *testing.T, app *fiber.App, payload any, headers map[string]string) *fiberResponse {
	t.Helper()

	req := testsupport.NewJSONRequest(t, "POST", "/api/v1/track", payload)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return &fiberResponse{Status: resp.StatusCode, Body: string(body), Header: resp.Header.Get}
}

type fiberResponse struct {
	Status int
	Body   string
	Header func(string) string
}

func storedEvents(t *testing.T, db *gorm.DB) []events.PageViewEvent {
	t.Helper()
	var rows []events.PageViewEvent
	require.NoError(t, db.Order("created_at").Find(&rows).Error)
	return rows
}

func TestTrackRecordsPageView(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	resp := postTrack(t, app, map[string]any{
		"sessionId":  "1767268800000-abc123",
		"pagePath":   "/blog/post-1?utm_source=x",
		"pageTitle":  "Post One",
		"referrer":   "https://google.com/search?q=post",
		"utmSource":  "newsletter",
		"statusCode": 200,
	}, map[string]string{"X-Forwarded-For": "203.0.113.10"})

	require.Equal(t, fiber.StatusAccepted, resp.Status, resp.Body)
	assert.JSONEq(t, `{"success": true}`, resp.Body)
	assert.NotEmpty(t, resp.Header("X-RateLimit-Limit"))

	rows := storedEvents(t, db)
	require.Len(t, rows, 1)
	event := rows[0]
	assert.Equal(t, "1767268800000-abc123", event.SessionID)
	assert.Equal(t, "/blog/post-1", event.PagePath)
	require.NotNil(t, event.ReferrerDomain)
	assert.Equal(t, "google.com", *event.ReferrerDomain)
	require.NotNil(t, event.UTMSource)
	assert.Equal(t, "newsletter", *event.UTMSource)
	require.NotNil(t, event.Browser)
	assert.Equal(t, "Chrome", *event.Browser)
	require.NotNil(t, event.DeviceType)
	assert.Equal(t, "desktop", *event.DeviceType)
	assert.False(t, event.IsBot)
	assert.Equal(t, 200, event.StatusCode)

	var stat analytics.ReferrerStat
	require.NoError(t, db.Where("referrer_domain = ?", "google.com").First(&stat).Error)
	assert.Equal(t, 1, stat.TotalVisits)

	var daily analytics.DailyStat
	require.NoError(t, db.Where("page_path = ?", "/blog/post-1").First(&daily).Error)
	assert.Equal(t, 1, daily.PageViews)
}

func TestTrackValidation(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	tests := []struct {
		name    string
		payload any
	}{
		{"missing session id", map[string]any{"pagePath": "/"}},
		{"missing page path", map[string]any{"sessionId": "s1"}},
		{"wrong types", map[string]any{"sessionId": 12, "pagePath": true}},
		{"array body", []string{"nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postTrack(t, app, tt.payload, nil)
			assert.Equal(t, fiber.StatusBadRequest, resp.Status)
			assert.Contains(t, resp.Body, `"INVALID_REQUEST"`)
		})
	}

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/track", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	assert.Empty(t, storedEvents(t, db))
}

func TestTrackStatusCodes(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	require.Equal(t, fiber.StatusAccepted, postTrack(t, app, map[string]any{
		"sessionId": "s1", "pagePath": "/missing", "statusCode": 404,
	}, nil).Status)
	require.Equal(t, fiber.StatusAccepted, postTrack(t, app, map[string]any{
		"sessionId": "s1", "pagePath": "/odd", "statusCode": 99.5,
	}, nil).Status)

	rows := storedEvents(t, db)
	require.Len(t, rows, 2)
	byPath := map[string]int{rows[0].PagePath: rows[0].StatusCode, rows[1].PagePath: rows[1].StatusCode}
	assert.Equal(t, 404, byPath["/missing"])
	assert.Equal(t, 200, byPath["/odd"], "invalid codes default to 200")
}

func TestTrackBotTraffic(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	resp := postTrack(t, app, map[string]any{
		"sessionId": "bot-1",
		"pagePath":  "/",
		"referrer":  "https://duckduckgo.com/",
	}, map[string]string{"User-Agent": "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"})
	require.Equal(t, fiber.StatusAccepted, resp.Status)

	rows := storedEvents(t, db)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsBot)

	var cells int64
	require.NoError(t, db.Model(&analytics.DailyStat{}).Count(&cells).Error)
	assert.Zero(t, cells)
	var referrers int64
	require.NoError(t, db.Model(&analytics.ReferrerStat{}).Count(&referrers).Error)
	assert.Zero(t, referrers)
}

func TestTrackSelfReferral(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	resp := postTrack(t, app, map[string]any{
		"sessionId": "s1",
		"pagePath":  "/about",
		"referrer":  "https://myblog.dev/",
	}, map[string]string{"Origin": "https://myblog.dev"})
	require.Equal(t, fiber.StatusAccepted, resp.Status)

	rows := storedEvents(t, db)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ReferrerDomain)
}

func TestTrackSkips(t *testing.T) {
	t.Run("admin visits", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		admin := auth.VerifierFunc(func(ctx *cartridge.Context) (*auth.Principal, error) {
			return &auth.Principal{UserID: 1, Email: "me@example.com"}, nil
		})
		app := testsupport.CreateTestApp(t, db, &internal.Deps{Verifier: admin})

		resp := postTrack(t, app, map[string]any{"sessionId": "s1", "pagePath": "/"}, nil)
		assert.Equal(t, fiber.StatusAccepted, resp.Status)
		assert.Empty(t, storedEvents(t, db))
	})

	t.Run("analytics disabled", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		disabled := settings.NewSiteSettingsCache(func(ctx context.Context) (settings.PublicSettings, error) {
			return settings.PublicSettings{AnalyticsEnabled: false}, nil
		}, time.Minute, nil)
		app := testsupport.CreateTestApp(t, db, &internal.Deps{SiteSettings: disabled})

		resp := postTrack(t, app, map[string]any{"sessionId": "s1", "pagePath": "/"}, nil)
		assert.Equal(t, fiber.StatusAccepted, resp.Status)
		assert.Empty(t, storedEvents(t, db))
	})

	t.Run("excluded ip", func(t *testing.T) {
		db := testsupport.SetupTestDB(t)
		require.NoError(t, settings.UpdateSetting(db, testsupport.GetLogger(), settings.KeyExcludedIPs, "203.0.113.9"))
		app := testsupport.CreateTestApp(t, db, nil)

		resp := postTrack(t, app, map[string]any{"sessionId": "s1", "pagePath": "/"},
			map[string]string{"X-Forwarded-For": "203.0.113.9"})
		assert.Equal(t, fiber.StatusAccepted, resp.Status)
		assert.Empty(t, storedEvents(t, db))

		resp = postTrack(t, app, map[string]any{"sessionId": "s1", "pagePath": "/"},
			map[string]string{"X-Forwarded-For": "203.0.113.10"})
		assert.Equal(t, fiber.StatusAccepted, resp.Status)
		assert.Len(t, storedEvents(t, db), 1)
	})
}

func TestTrackRateLimited(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	storage := testsupport.NewMemoryStorage()
	app := testsupport.CreateTestApp(t, db, &internal.Deps{TrackRateLimit: 1, RateLimitStorage: storage})
	visitor := map[string]string{"X-Forwarded-For": "203.0.113.10"}

	resp := postTrack(t, app, map[string]any{"sessionId": "s1", "pagePath": "/"}, visitor)
	require.Equal(t, fiber.StatusAccepted, resp.Status, resp.Body)
	assert.Equal(t, "1", resp.Header("X-RateLimit-Limit"))
	assert.Equal(t, "0", resp.Header("X-RateLimit-Remaining"))

	resp = postTrack(t, app, map[string]any{"sessionId": "s1", "pagePath": "/next"}, visitor)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.Status)
	assert.NotEmpty(t, resp.Header("Retry-After"))
	assert.Contains(t, resp.Body, `"RATE_LIMITED"`)
	assert.Len(t, storedEvents(t, db), 1)

	t.Run("other visitors are unaffected", func(t *testing.T) {
		resp := postTrack(t, app, map[string]any{"sessionId": "s2", "pagePath": "/"},
			map[string]string{"X-Forwarded-For": "198.51.100.7"})
		assert.Equal(t, fiber.StatusAccepted, resp.Status)
		assert.Equal(t, []string{"track:198.51.100.7", "track:203.0.113.10"}, storage.Keys())
	})
}
