package beacon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu      sync.Mutex
	events  []Event
	release chan struct{}
	err     error
}

func (s *recordingSender) Send(ctx context.Context, ev Event) error {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSender) sent() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type brokenStore struct{}

func (brokenStore) Get(string) (string, bool, error) { return "", false, errors.New("storage disabled") }
func (brokenStore) Set(string, string) error         { return errors.New("storage disabled") }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 4, 14, 9, 0, 0, 0, time.UTC)}
}

func TestTrackBuildsEvent(t *testing.T) {
	sender := &recordingSender{}
	tracker := New(sender, WithDelay(0), WithClock(newClock().Now))

	require.True(t, tracker.Track(Page{
		URL:      "https://myblog.dev/blog/post-1?utm_source=newsletter&utm_campaign=spring&ref=x",
		Title:    "Post 1",
		Referrer: "https://google.com/search?q=go",
	}))
	tracker.Wait()

	events := sender.sent()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Regexp(t, `^1776157200000-[0-9a-z]+$`, ev.SessionID)
	assert.Equal(t, "/blog/post-1", ev.PagePath)
	assert.Equal(t, "Post 1", ev.PageTitle)
	assert.Equal(t, "https://google.com/search?q=go", ev.Referrer)
	assert.Equal(t, 200, ev.StatusCode)
	assert.Equal(t, "newsletter", ev.UTMSource)
	assert.Equal(t, "spring", ev.UTMCampaign)
	assert.Empty(t, ev.UTMMedium)

	t.Run("session id is reused for the visit", func(t *testing.T) {
		require.True(t, tracker.Track(Page{URL: "https://myblog.dev/about", StatusCode: 404}))
		tracker.Wait()

		events := sender.sent()
		require.Len(t, events, 2)
		assert.Equal(t, ev.SessionID, events[1].SessionID)
		assert.Equal(t, 404, events[1].StatusCode)
	})
}

func TestTrackDropsSelfReferrer(t *testing.T) {
	sender := &recordingSender{}
	tracker := New(sender, WithDelay(0))

	require.True(t, tracker.Track(Page{URL: "https://myblog.dev/b", Referrer: "https://myblog.dev/a"}))
	tracker.Wait()
	assert.Empty(t, sender.sent()[0].Referrer)

	t.Run("host case is ignored", func(t *testing.T) {
		require.True(t, tracker.Track(Page{URL: "https://myblog.dev/c", Referrer: "https://MyBlog.dev/b"}))
		tracker.Wait()
		require.Len(t, sender.sent(), 2)
		assert.Empty(t, sender.sent()[1].Referrer)
	})
}

func TestTrackDebounce(t *testing.T) {
	c := newClock()
	sender := &recordingSender{}
	tracker := New(sender, WithDelay(0), WithClock(c.Now))

	page := Page{URL: "https://myblog.dev/blog?page=2"}
	require.True(t, tracker.Track(page))
	tracker.Wait()

	c.Advance(100 * time.Millisecond)
	assert.False(t, tracker.Track(page), "same path within the window")

	assert.True(t, tracker.Track(Page{URL: "https://myblog.dev/blog?page=3"}), "different query string")
	tracker.Wait()

	c.Advance(DefaultDebounce)
	assert.True(t, tracker.Track(Page{URL: "https://myblog.dev/blog?page=3"}), "window elapsed")
	tracker.Wait()

	assert.Len(t, sender.sent(), 3)
}

func TestTrackInFlightGuard(t *testing.T) {
	sender := &recordingSender{release: make(chan struct{})}
	tracker := New(sender, WithDelay(0))

	require.True(t, tracker.Track(Page{URL: "https://myblog.dev/a"}))
	assert.False(t, tracker.Track(Page{URL: "https://myblog.dev/b"}))

	close(sender.release)
	tracker.Wait()

	assert.True(t, tracker.Track(Page{URL: "https://myblog.dev/b"}))
	tracker.Wait()
	assert.Len(t, sender.sent(), 2)
}

func TestTrackSkipsAdmin(t *testing.T) {
	sender := &recordingSender{}
	tracker := New(sender, WithDelay(0), WithAdminCheck(func() bool { return true }))

	assert.False(t, tracker.Track(Page{URL: "https://myblog.dev/"}))
	tracker.Wait()
	assert.Empty(t, sender.sent())
}

func TestTrackSwallowsFailures(t *testing.T) {
	t.Run("storage", func(t *testing.T) {
		sender := &recordingSender{}
		tracker := New(sender, WithDelay(0), WithSessionStore(brokenStore{}))

		require.True(t, tracker.Track(Page{URL: "https://myblog.dev/"}))
		tracker.Wait()
		assert.NotEmpty(t, sender.sent()[0].SessionID)
	})

	t.Run("send", func(t *testing.T) {
		sender := &recordingSender{err: errors.New("connection refused")}
		tracker := New(sender, WithDelay(0))

		require.True(t, tracker.Track(Page{URL: "https://myblog.dev/"}))
		tracker.Wait()
		assert.True(t, tracker.Track(Page{URL: "https://myblog.dev/next"}))
		tracker.Wait()
	})

	t.Run("bad url", func(t *testing.T) {
		tracker := New(&recordingSender{}, WithDelay(0))
		assert.False(t, tracker.Track(Page{URL: "://nope"}))
	})
}

func TestMemoryStoreClearStartsNewVisit(t *testing.T) {
	store := NewMemoryStore()
	tracker := New(&recordingSender{}, WithSessionStore(store))

	first := tracker.SessionID()
	assert.Equal(t, first, tracker.SessionID())

	store.Clear()
	_, ok, err := store.Get(SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
