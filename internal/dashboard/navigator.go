// Package dashboard turns analytics summaries into the figures the admin
// dashboard draws, and tracks drill-down navigation between views.
package dashboard

import (
	"errors"
	"net/url"
	"strconv"

	"sitepulse/internal/analytics"
	"sitepulse/internal/timeframe"
)

// View is a drill-down listing. Its value is the analytics action that loads it.
type View string

const (
	ViewPages         View = "all-pages"
	ViewReferrers     View = "all-referrers"
	View404s          View = "all-404s"
	ViewPageReferrers View = "page-referrers"
	ViewReferrerPages View = "referrer-pages"
)

var (
	ErrNoView        = errors.New("no drill-down is open")
	ErrNotNested     = errors.New("view cannot be drilled into")
	ErrMissingFilter = errors.New("nested view needs a page path or domain")
)

// Crumb is one breadcrumb. Filter holds the page path or referrer domain of
// a nested view.
type Crumb struct {
	View   View
	Label  string
	Filter string
}

// Query is the request for the navigator's current state.
type Query struct {
	Action   View
	Days     int
	Page     int
	Limit    int
	PagePath string
	Domain   string
}

// Values encodes q as analytics endpoint parameters.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("action", string(q.Action))
	v.Set("days", strconv.Itoa(q.Days))
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.PagePath != "" {
		v.Set("pagePath", q.PagePath)
	}
	if q.Domain != "" {
		v.Set("domain", q.Domain)
	}
	return v
}

// Navigator is the breadcrumb stack of the drill-down modal.
type Navigator struct {
	days   int
	limit  int
	page   int
	crumbs []Crumb
}

// NewNavigator starts closed, querying the given window.
func NewNavigator(days int) *Navigator {
	return &Navigator{
		days:  timeframe.ParseWindow(strconv.Itoa(days)),
		limit: analytics.DefaultPageLimit,
		page:  1,
	}
}

// Open shows a top-level view, replacing any breadcrumbs.
func (n *Navigator) Open(view View) {
	n.crumbs = []Crumb{{View: view, Label: label(view, "")}}
	n.page = 1
}

// Drill pushes a nested view filtered by a page path (ViewPageReferrers) or a
// referrer domain (ViewReferrerPages).
func (n *Navigator) Drill(view View, filter string) error {
	if len(n.crumbs) == 0 {
		return ErrNoView
	}
	if view != ViewPageReferrers && view != ViewReferrerPages {
		return ErrNotNested
	}
	if filter == "" {
		return ErrMissingFilter
	}
	n.crumbs = append(n.crumbs, Crumb{View: view, Label: label(view, filter), Filter: filter})
	n.page = 1
	return nil
}

// Back returns to breadcrumb i and its first page. Out of range indexes are ignored.
func (n *Navigator) Back(i int) {
	if i < 0 || i >= len(n.crumbs) {
		return
	}
	n.crumbs = n.crumbs[:i+1]
	n.page = 1
}

// SetPage moves within the current view.
func (n *Navigator) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	n.page = page
}

// SetWindow changes the date window and refetches from page 1.
func (n *Navigator) SetWindow(days int) {
	n.days = timeframe.ParseWindow(strconv.Itoa(days))
	n.page = 1
}

// Close dismisses the modal.
func (n *Navigator) Close() {
	n.crumbs = nil
	n.page = 1
}

func (n *Navigator) Crumbs() []Crumb {
	out := make([]Crumb, len(n.crumbs))
	copy(out, n.crumbs)
	return out
}

func (n *Navigator) Page() int {
	return n.page
}

// Request builds the query for the current view. ok is false when nothing is open.
func (n *Navigator) Request() (q Query, ok bool) {
	if len(n.crumbs) == 0 {
		return Query{}, false
	}
	top := n.crumbs[len(n.crumbs)-1]
	q = Query{Action: top.View, Days: n.days, Page: n.page, Limit: n.limit}
	switch top.View {
	case ViewPageReferrers:
		q.PagePath = top.Filter
	case ViewReferrerPages:
		q.Domain = top.Filter
	}
	return q, true
}

func label(view View, filter string) string {
	switch view {
	case ViewPages:
		return "All Pages"
	case ViewReferrers:
		return "All Referrers"
	case View404s:
		return "All 404s"
	case ViewPageReferrers:
		return "Referrers to " + filter
	case ViewReferrerPages:
		return "Pages from " + filter
	}
	return string(view)
}
