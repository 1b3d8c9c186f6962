package beacon_test

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/events"
	"sitepulse/internal/testsupport"
	"sitepulse/pkg/beacon"
)

func TestHTTPSender(t *testing.T) {
	var (
		got       beacon.Event
		userAgent string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/track" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		userAgent = r.UserAgent()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil || got.SessionID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sender := beacon.NewHTTPSender(srv.URL+"/", testsupport.TestUserAgent)
	err := sender.Send(context.Background(), beacon.Event{SessionID: "s1", PagePath: "/", StatusCode: 200})
	require.NoError(t, err)
	assert.Equal(t, "/", got.PagePath)
	assert.Equal(t, testsupport.TestUserAgent, userAgent)

	t.Run("rejected", func(t *testing.T) {
		err := sender.Send(context.Background(), beacon.Event{PagePath: "/"})
		assert.ErrorContains(t, err, "400")
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, sender.Send(ctx, beacon.Event{SessionID: "s1", PagePath: "/"}), context.Canceled)
	})
}

func TestTrackerAgainstServer(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	app := testsupport.CreateTestApp(t, db, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	tracker := beacon.New(beacon.NewHTTPSender("http://"+ln.Addr().String(), testsupport.TestUserAgent))
	require.True(t, tracker.Track(beacon.Page{
		URL:      "https://example.com/blog/hello?utm_source=newsletter",
		Title:    "Hello",
		Referrer: "https://news.ycombinator.com/",
	}))
	tracker.Wait()

	require.Eventually(t, func() bool {
		var count int64
		db.Model(&events.PageViewEvent{}).Count(&count)
		return count == 1
	}, 5*time.Second, 20*time.Millisecond)

	var stored events.PageViewEvent
	require.NoError(t, db.First(&stored).Error)
	assert.Equal(t, "/blog/hello", stored.PagePath)
	require.NotNil(t, stored.ReferrerDomain)
	assert.Equal(t, "news.ycombinator.com", *stored.ReferrerDomain)
	require.NotNil(t, stored.UTMSource)
	assert.Equal(t, "newsletter", *stored.UTMSource)
}
