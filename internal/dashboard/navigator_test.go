package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigator(t *testing.T) {
	nav := NewNavigator(7)

	_, ok := nav.Request()
	assert.False(t, ok)
	assert.ErrorIs(t, nav.Drill(ViewPageReferrers, "/blog"), ErrNoView)

	nav.Open(ViewPages)
	nav.SetPage(3)
	q, ok := nav.Request()
	require.True(t, ok)
	assert.Equal(t, Query{Action: ViewPages, Days: 7, Page: 3, Limit: 25}, q)

	t.Run("drill into a page", func(t *testing.T) {
		require.NoError(t, nav.Drill(ViewPageReferrers, "/blog/post-1"))
		q, _ := nav.Request()
		assert.Equal(t, ViewPageReferrers, q.Action)
		assert.Equal(t, "/blog/post-1", q.PagePath)
		assert.Equal(t, 1, q.Page)
		assert.Len(t, nav.Crumbs(), 2)
		assert.Equal(t, "Referrers to /blog/post-1", nav.Crumbs()[1].Label)
	})

	t.Run("paging keeps crumbs", func(t *testing.T) {
		nav.SetPage(2)
		assert.Len(t, nav.Crumbs(), 2)
		assert.Equal(t, 2, nav.Page())
	})

	t.Run("back truncates and resets paging", func(t *testing.T) {
		require.NoError(t, nav.Drill(ViewReferrerPages, "google.com"))
		assert.Len(t, nav.Crumbs(), 3)

		nav.Back(0)
		q, _ := nav.Request()
		assert.Equal(t, ViewPages, q.Action)
		assert.Equal(t, 1, q.Page)
		assert.Empty(t, q.PagePath)
		assert.Len(t, nav.Crumbs(), 1)

		nav.Back(5)
		assert.Len(t, nav.Crumbs(), 1)
	})

	t.Run("only nested views can be drilled", func(t *testing.T) {
		assert.ErrorIs(t, nav.Drill(View404s, ""), ErrNotNested)
		assert.ErrorIs(t, nav.Drill(ViewReferrerPages, ""), ErrMissingFilter)
	})

	t.Run("open resets", func(t *testing.T) {
		require.NoError(t, nav.Drill(ViewReferrerPages, "news.ycombinator.com"))
		nav.Open(View404s)
		assert.Equal(t, []Crumb{{View: View404s, Label: "All 404s"}}, nav.Crumbs())
	})

	t.Run("unsupported window falls back", func(t *testing.T) {
		nav.SetWindow(12)
		q, _ := nav.Request()
		assert.Equal(t, 30, q.Days)
	})

	nav.Close()
	_, ok = nav.Request()
	assert.False(t, ok)
}

func TestQueryValues(t *testing.T) {
	q := Query{Action: ViewReferrerPages, Days: 90, Page: 2, Limit: 50, Domain: "google.com"}
	assert.Equal(t, "action=referrer-pages&days=90&domain=google.com&limit=50&page=2", q.Values().Encode())
}
