// Package testsupport holds database, fixture and HTTP helpers shared by tests.
package testsupport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sitepulse/internal"
	"sitepulse/internal/config"
	"sitepulse/internal/database"
	"sitepulse/internal/events"
	"sitepulse/internal/users"
)

// SessionCookieName is the expected cookie name for session cookies in tests.
// This should match the pattern used in routes.go: cfg.AppName + "_session"
const SessionCookieName = "sitepulse_session"

// TestUserAgent is a desktop browser; events sent with it are never bots.
const TestUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func init() {
	if os.Getenv("SITEPULSE_ENV") == "" {
		os.Setenv("SITEPULSE_ENV", config.Test)
	}
}

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager.
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a migrated in-memory database. Calls from the same
// root test (including its subtests) share one database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// cache=shared lets every pooled connection see the same memory database
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	if err := database.Migrate(db, GetLogger()); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()

	cfg := config.GetConfig()
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set SITEPULSE_ENV=test", cfg.Environment)
	}

	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// CleanAllTables clears every table, leaving the schema in place.
func CleanAllTables(db *gorm.DB) {
	var tables []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables)

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestUserForAuth creates a user with properly hashed password for auth testing
func CreateTestUserForAuth(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := &users.User{
		Email:             email,
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// PageView describes a page view fixture. Zero fields get browser defaults.
type PageView struct {
	SessionID  string
	PagePath   string
	Referrer   string
	StatusCode int
	UserAgent  string
	IsBot      bool
	Country    string
	At         time.Time
}

// RecordPageView stores pv through the real ingestion path, rollups included.
func RecordPageView(t *testing.T, dbManager cartridge.DBManager, pv PageView) *events.PageViewEvent {
	t.Helper()

	if pv.StatusCode == 0 {
		pv.StatusCode = events.StatusOK
	}
	if pv.At.IsZero() {
		pv.At = time.Now().UTC()
	}

	deviceType := "desktop"
	if pv.IsBot {
		deviceType = "bot"
	}

	result, err := events.RecordPageView(dbManager, GetLogger(), &events.RecordPageViewInput{
		SessionID:  pv.SessionID,
		PagePath:   pv.PagePath,
		Referrer:   pv.Referrer,
		StatusCode: pv.StatusCode,
		DeviceType: deviceType,
		Browser:    "Chrome",
		OS:         "Windows",
		Country:    pv.Country,
		IsBot:      pv.IsBot,
		SiteHosts:  []string{"example.com"},
		ReceivedAt: pv.At,
	})
	require.NoError(t, err)
	require.NoError(t, result.RollupErr)
	return result.Event
}

// CreateTestApp builds a Fiber app with every route mounted. deps may be nil.
func CreateTestApp(t *testing.T, db *gorm.DB, deps *internal.Deps) *fiber.App {
	t.Helper()

	appConfig := config.GetConfig()
	appConfig.Environment = config.Test

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutesWithDeps(srv, deps)
	return srv.App()
}

// NewJSONRequest encodes body as JSON into a test request sent by a browser.
func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", TestUserAgent)
	return req
}

// LoginTestUser logs in through the JSON endpoint and returns the session cookie value.
func LoginTestUser(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()

	req := NewJSONRequest(t, "POST", "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			require.NotEmpty(t, cookie.Value)
			return cookie.Value
		}
	}
	t.Fatalf("testsupport: login response had no %s cookie", SessionCookieName)
	return ""
}

// WithSession attaches the session cookie to req.
func WithSession(req *http.Request, session string) *http.Request {
	req.Header.Set("Cookie", fmt.Sprintf("%s=%s", SessionCookieName, session))
	return req
}

// DecodeJSON reads a response body into out.
func DecodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
