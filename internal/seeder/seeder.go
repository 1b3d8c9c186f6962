// Package seeder fills a database with plausible personal-site traffic for
// local development.
package seeder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"sitepulse/internal/events"
	"sitepulse/internal/pkg/useragent"
	"sitepulse/internal/users"
)

const (
	defaultAdminEmail    = "admin@example.com"
	defaultAdminPassword = "password"
)

// Seeder generates page views through the normal ingestion path so the
// rollups match what real traffic would produce.
type Seeder struct {
	DBManager  cartridge.DBManager
	Logger     *slog.Logger
	EventCount int
	Domain     string
	Days       int

	rng *rand.Rand
	now func() time.Time
}

// NewSeeder creates a new seeder instance
func NewSeeder(dbManager cartridge.DBManager, logger *slog.Logger, eventCount int) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		DBManager:  dbManager,
		Logger:     logger,
		EventCount: eventCount,
		Domain:     "example.com",
		Days:       30,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:        time.Now,
	}
}

// WithSeed makes the generated traffic deterministic.
func (s *Seeder) WithSeed(seed uint64) *Seeder {
	s.rng = rand.New(rand.NewPCG(seed, seed))
	return s
}

// Stats summarises one run.
type Stats struct {
	Sessions   int
	PageViews  int
	Bots       int
	NotFound   int
	RollupErrs int
}

// Run ensures the admin user exists and then generates traffic.
func (s *Seeder) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	s.Logger.Info("Starting database seeding...", slog.Int("eventCount", s.EventCount))

	if _, err := s.seedUser(); err != nil {
		return nil, fmt.Errorf("failed to seed user: %w", err)
	}

	stats, err := s.SeedTraffic(ctx)
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Seeding completed successfully",
		slog.Int("sessions", stats.Sessions),
		slog.Int("pageViews", stats.PageViews),
		slog.Duration("elapsed", time.Since(start)))
	return stats, nil
}

// seedUser ensures the default admin user exists
func (s *Seeder) seedUser() (*users.User, error) {
	db := s.DBManager.GetConnection()
	user, err := users.FindByEmail(db, defaultAdminEmail)
	if err == nil {
		s.Logger.Info("Admin user already exists", slog.String("email", user.Email))
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check for existing user: %w", err)
	}

	return users.CreateAdminUser(db, s.Logger, defaultAdminEmail, defaultAdminPassword)
}

// SeedTraffic records about EventCount page views spread over the last Days days.
func (s *Seeder) SeedTraffic(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	numSessions := max(s.EventCount/3, 1)

	for stats.PageViews < s.EventCount && stats.Sessions < numSessions*2 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Sessions++
		if err := s.seedSession(stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (s *Seeder) seedSession(stats *Stats) error {
	journey := journeyTemplates[s.rng.IntN(len(journeyTemplates))]
	ua := userAgents[s.rng.IntN(len(userAgents))]
	referrer := referrerURLs[s.rng.IntN(len(referrerURLs))]
	class := useragent.Classify(ua)
	sessionID := uuid.NewString()

	window := time.Duration(max(s.Days, 1)) * 24 * time.Hour
	at := s.now().UTC().Add(-time.Duration(s.rng.Int64N(int64(window))))

	for i, path := range journey {
		if stats.PageViews >= s.EventCount {
			return nil
		}
		if i > 0 {
			at = at.Add(time.Duration(s.rng.IntN(110)+10) * time.Second)
			referrer = ""
		}

		status := events.StatusOK
		if s.rng.IntN(20) == 0 {
			path = brokenPaths[s.rng.IntN(len(brokenPaths))]
			status = events.StatusNotFound
		}

		input := &events.RecordPageViewInput{
			SessionID:  sessionID,
			PagePath:   path,
			PageTitle:  titleFor(path),
			Referrer:   referrer,
			StatusCode: status,
			DeviceType: class.DeviceType,
			Browser:    class.Browser,
			OS:         class.OS,
			Country:    countries[s.rng.IntN(len(countries))],
			IsBot:      class.IsBot,
			SiteHosts:  []string{s.Domain},
			ReceivedAt: at,
		}
		if i == 0 && s.rng.IntN(4) == 0 {
			input.UTMSource = "newsletter"
			input.UTMMedium = "email"
			input.UTMCampaign = "monthly-digest"
		}

		result, err := events.RecordPageView(s.DBManager, s.Logger, input)
		if err != nil {
			return fmt.Errorf("failed to record seeded page view: %w", err)
		}

		stats.PageViews++
		if class.IsBot {
			stats.Bots++
		}
		if status == events.StatusNotFound {
			stats.NotFound++
		}
		if result.RollupErr != nil {
			stats.RollupErrs++
		}
	}
	return nil
}

func titleFor(path string) string {
	if title, ok := pageTitles[path]; ok {
		return title
	}
	return ""
}
