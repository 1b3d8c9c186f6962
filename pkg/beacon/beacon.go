// Package beacon reports page views to a sitepulse server from Go programs.
// It follows the same contract as the browser tracker served at
// /api/v1/tracker.js: one event per distinct navigation, sent in the
// background, with every failure swallowed.
package beacon

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SessionKey is the storage slot holding the visit id.
const SessionKey = "sitepulse_session_id"

const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultDelay       = 100 * time.Millisecond
	DefaultSendTimeout = 10 * time.Second
)

// Page describes one navigation.
type Page struct {
	// URL is the full address of the page, query string included.
	URL        string
	Title      string
	Referrer   string
	StatusCode int
}

// Event is the JSON body posted to the track endpoint.
type Event struct {
	SessionID   string `json:"sessionId"`
	PagePath    string `json:"pagePath"`
	PageTitle   string `json:"pageTitle,omitempty"`
	Referrer    string `json:"referrer,omitempty"`
	StatusCode  int    `json:"statusCode"`
	UTMSource   string `json:"utmSource,omitempty"`
	UTMMedium   string `json:"utmMedium,omitempty"`
	UTMCampaign string `json:"utmCampaign,omitempty"`
	UTMTerm     string `json:"utmTerm,omitempty"`
	UTMContent  string `json:"utmContent,omitempty"`
}

// Sender delivers events.
type Sender interface {
	Send(ctx context.Context, ev Event) error
}

// SessionStore is the per-visit storage slot for the session id.
type SessionStore interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Tracker decides when a navigation is worth an event and sends it.
type Tracker struct {
	sender  Sender
	store   SessionStore
	isAdmin func() bool
	logger  *slog.Logger
	now     func() time.Time

	debounce time.Duration
	delay    time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	lastKey  string
	lastAt   time.Time
	inFlight bool
	wg       sync.WaitGroup
}

type Option func(*Tracker)

func WithSessionStore(store SessionStore) Option {
	return func(t *Tracker) { t.store = store }
}

// WithAdminCheck registers a predicate that reports whether the current
// visitor is the site owner. Owner visits are never sent.
func WithAdminCheck(isAdmin func() bool) Option {
	return func(t *Tracker) { t.isAdmin = isAdmin }
}

func WithDebounce(d time.Duration) Option {
	return func(t *Tracker) { t.debounce = d }
}

// WithDelay sets how long a send waits after Track returns.
func WithDelay(d time.Duration) Option {
	return func(t *Tracker) { t.delay = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// New creates a Tracker that delivers through sender.
func New(sender Sender, opts ...Option) *Tracker {
	t := &Tracker{
		sender:   sender,
		store:    NewMemoryStore(),
		isAdmin:  func() bool { return false },
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
		debounce: DefaultDebounce,
		delay:    DefaultDelay,
		timeout:  DefaultSendTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track schedules an event for page and reports whether one was scheduled.
// It never blocks on the network.
func (t *Tracker) Track(page Page) bool {
	u, err := url.Parse(page.URL)
	if err != nil {
		t.logger.Debug("Skipping page with unparseable URL", slog.String("url", page.URL), slog.Any("error", err))
		return false
	}

	if t.isAdmin() {
		return false
	}

	key := u.Path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}

	t.mu.Lock()
	now := t.now()
	if key == t.lastKey && now.Sub(t.lastAt) < t.debounce {
		t.mu.Unlock()
		return false
	}
	if t.inFlight {
		t.mu.Unlock()
		return false
	}
	t.lastKey, t.lastAt = key, now
	t.inFlight = true
	t.wg.Add(1)
	t.mu.Unlock()

	ev := t.buildEvent(u, page)
	go t.send(ev)
	return true
}

func (t *Tracker) buildEvent(u *url.URL, page Page) Event {
	status := page.StatusCode
	if status == 0 {
		status = 200
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	q := u.Query()
	return Event{
		PagePath:    path,
		PageTitle:   page.Title,
		Referrer:    externalReferrer(page.Referrer, u.Host),
		StatusCode:  status,
		UTMSource:   q.Get("utm_source"),
		UTMMedium:   q.Get("utm_medium"),
		UTMCampaign: q.Get("utm_campaign"),
		UTMTerm:     q.Get("utm_term"),
		UTMContent:  q.Get("utm_content"),
	}
}

func (t *Tracker) send(ev Event) {
	defer func() {
		t.mu.Lock()
		t.inFlight = false
		t.mu.Unlock()
		t.wg.Done()
	}()

	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	ev.SessionID = t.SessionID()

	// Not tied to any caller context so the send outlives the request that
	// triggered it.
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	if err := t.sender.Send(ctx, ev); err != nil {
		t.logger.Debug("Failed to send page view", slog.String("path", ev.PagePath), slog.Any("error", err))
	}
}

// SessionID returns the visit id, creating and storing one when the slot is
// empty. When storage fails the id is used for this event only.
func (t *Tracker) SessionID() string {
	id, ok, err := t.store.Get(SessionKey)
	if err == nil && ok && id != "" {
		return id
	}
	if err != nil {
		t.logger.Debug("Session storage unavailable", slog.Any("error", err))
	}

	id = newSessionID(t.now())
	if err := t.store.Set(SessionKey, id); err != nil {
		t.logger.Debug("Failed to store session id", slog.Any("error", err))
	}
	return id
}

// Wait blocks until every scheduled send has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func newSessionID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(rand.Uint64N(1<<45), 36)
}

// externalReferrer drops referrers that point at the page's own host.
func externalReferrer(referrer, host string) string {
	if referrer == "" {
		return ""
	}
	ref, err := url.Parse(referrer)
	if err == nil && ref.Host != "" && strings.EqualFold(ref.Host, host) {
		return ""
	}
	return referrer
}

// MemoryStore is a SessionStore for a single process.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Clear empties the store, starting a new visit.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}
