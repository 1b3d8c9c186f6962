package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()

	app := fiber.New()
	app.Get("/metrics", c.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), 30000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector(t *testing.T) {
	c := New()

	c.EventsIngested.WithLabelValues(OutcomeRecorded).Inc()
	c.EventsIngested.WithLabelValues(OutcomeRecorded).Inc()
	c.EventsIngested.WithLabelValues(OutcomeBot).Inc()
	c.RollupFailures.Inc()
	c.RateLimitHits.WithLabelValues("track").Inc()
	c.ObserveQuery("summary", time.Now().Add(-10*time.Millisecond))

	body := scrape(t, c)
	assert.Contains(t, body, `sitepulse_events_ingested_total{outcome="recorded"} 2`)
	assert.Contains(t, body, `sitepulse_events_ingested_total{outcome="bot"} 1`)
	assert.Contains(t, body, `sitepulse_rollup_failures_total 1`)
	assert.Contains(t, body, `sitepulse_rate_limit_hits_total{action="track"} 1`)
	assert.Contains(t, body, `sitepulse_query_duration_seconds_count{action="summary"} 1`)

	t.Run("collectors are isolated", func(t *testing.T) {
		other := scrape(t, New())
		assert.Contains(t, other, `sitepulse_rollup_failures_total 0`)
		assert.NotContains(t, other, `outcome="recorded"`)
	})
}
