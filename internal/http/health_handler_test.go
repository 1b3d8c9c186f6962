package http_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphttp "sitepulse/internal/http"
	"sitepulse/internal/testsupport"
)

func TestHealthIndexAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/_health", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var health apphttp.HealthStatus
	testsupport.DecodeJSON(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "ok", health.DBStatus)
	assert.Nil(t, health.LastEventAt)

	t.Run("reports the latest event", func(t *testing.T) {
		at := time.Date(2026, 4, 14, 8, 30, 0, 0, time.UTC)
		testsupport.RecordPageView(t, testsupport.NewTestDBManager(db), testsupport.PageView{SessionID: "s", PagePath: "/", At: at})

		resp, err := app.Test(httptest.NewRequest("GET", "/_health", nil), -1)
		require.NoError(t, err)

		var health apphttp.HealthStatus
		testsupport.DecodeJSON(t, resp, &health)
		require.NotNil(t, health.LastEventAt)
		assert.True(t, health.LastEventAt.Equal(at))
	})
}

func TestPublicSettingsAction(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/settings/public", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=60", resp.Header.Get("Cache-Control"))

	var body map[string]any
	testsupport.DecodeJSON(t, resp, &body)
	assert.Equal(t, "My Site", body["siteTitle"])
	assert.Equal(t, true, body["analyticsEnabled"])
}

func TestMetricsEndpoint(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
