// main.go - Admin control tool for sitepulse
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gorm.io/gorm"

	"sitepulse/internal"
	"sitepulse/internal/analytics"
	"sitepulse/internal/config"
	"sitepulse/internal/events"
	"sitepulse/internal/jobs"
	"sitepulse/internal/seeder"
	"sitepulse/internal/timeframe"
	"sitepulse/internal/users"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	Name() string
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

var commands = []Command{
	&CreateAdminUserCommand{},
	&ChangeAdminPasswordCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&PruneCommand{},
	&RebuildRollupsCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	if _, ok := cmd.(*HelpCommand); ok {
		_ = cmd.Execute(ctx, nil, args)
		return
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

func connection(app *internal.Application) (*gorm.DB, error) {
	if app == nil {
		return nil, errors.New("app initialization failed, cannot connect to database")
	}
	return app.DBManager.GetConnection(), nil
}

// CreateAdminUserCommand creates the site owner's account
type CreateAdminUserCommand struct{}

func (c *CreateAdminUserCommand) Name() string        { return "create-admin-user" }
func (c *CreateAdminUserCommand) Description() string { return "Creates the admin user" }

func (c *CreateAdminUserCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email> [password]", c.Name())
	}
	email := args[0]

	db, err := connection(app)
	if err != nil {
		return err
	}

	password := ""
	if len(args) >= 2 {
		password = args[1]
	} else if password, err = promptNewPassword(); err != nil {
		return err
	}

	log.Printf("Setting up admin user with email: %s", email)
	if _, err := users.CreateAdminUser(db, slog.Default(), email, password); err != nil {
		if errors.Is(err, users.ErrUserExists) {
			log.Printf("User %s already exists", email)
			return nil
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// ChangeAdminPasswordCommand implements password update for existing admin user
type ChangeAdminPasswordCommand struct{}

func (c *ChangeAdminPasswordCommand) Name() string { return "change-admin-password" }
func (c *ChangeAdminPasswordCommand) Description() string {
	return "Changes the password of an existing admin user"
}

func (c *ChangeAdminPasswordCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	var email string
	if len(args) >= 1 {
		email = args[0]
	} else {
		fmt.Print("Enter admin email: ")
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		email = strings.TrimSpace(input)
	}
	if email == "" {
		return fmt.Errorf("email is required")
	}

	db, err := connection(app)
	if err != nil {
		return err
	}
	if _, err := users.FindByEmail(db, email); err != nil {
		return fmt.Errorf("user lookup failed: %w", err)
	}

	var newPassword string
	if len(args) >= 2 {
		newPassword = args[1]
	} else if newPassword, err = promptNewPassword(); err != nil {
		return err
	}

	if err := users.ChangePassword(db, slog.Default(), email, newPassword); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	fmt.Println("Password updated successfully")
	return nil
}

// promptNewPassword reads a password twice without echoing it.
func promptNewPassword() (string, error) {
	fmt.Print("Enter new password: ")
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	fmt.Print("Confirm new password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	if string(pass) != string(confirm) {
		return "", fmt.Errorf("passwords do not match")
	}
	if len(pass) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}
	return string(pass), nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with sample traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample traffic" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	eventCount := fs.Int("events", 10000, "number of page views to generate")
	domain := fs.String("domain", "example.com", "host the sample traffic belongs to")
	days := fs.Int("days", 30, "spread traffic over this many days")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	se := seeder.NewSeeder(app.DBManager, slog.Default(), *eventCount)
	se.Domain = *domain
	se.Days = *days
	if *seed != 0 {
		se = se.WithSeed(*seed)
	}

	stats, err := se.Run(ctx)
	if err != nil {
		return err
	}
	log.Printf("Seeded %d page views across %d sessions (%d bots, %d not found)",
		stats.PageViews, stats.Sessions, stats.Bots, stats.NotFound)
	return nil
}

// PruneCommand deletes raw events past the retention window
type PruneCommand struct{}

func (c *PruneCommand) Name() string { return "prune" }
func (c *PruneCommand) Description() string {
	return "Deletes page views and daily stats older than the retention window"
}

func (c *PruneCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	cfg := *config.GetConfig()

	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	days := fs.Int("days", cfg.EventRetentionDays, "retention in days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days <= 0 {
		return fmt.Errorf("retention must be positive, got %d", *days)
	}
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot prune")
	}

	cfg.EventRetentionDays = *days
	return jobs.NewCleanupJob(app.DBManager, slog.Default(), &cfg).Run()
}

// RebuildRollupsCommand recomputes daily and referrer stats from raw events
type RebuildRollupsCommand struct{}

func (c *RebuildRollupsCommand) Name() string { return "rebuild-rollups" }
func (c *RebuildRollupsCommand) Description() string {
	return "Recomputes daily and referrer stats from the raw event log"
}

func (c *RebuildRollupsCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("rebuild-rollups", flag.ContinueOnError)
	days := fs.Int("days", 2, "number of days to rebuild, ending today")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := connection(app)
	if err != nil {
		return err
	}

	r := timeframe.LastDays(timeframe.DefaultTimeProvider{}.Now(), *days)
	for day := r.Start; !day.After(r.End); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := analytics.RebuildDailyStats(db, slog.Default(), day); err != nil {
			return err
		}
	}

	_, err = analytics.RebuildReferrerStats(db, slog.Default())
	return err
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()

	userCount, err := users.Count(db)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	var eventCount, referrerCount, dailyCount int64
	if err := db.Model(&events.PageViewEvent{}).Count(&eventCount).Error; err != nil {
		return fmt.Errorf("failed to count events: %w", err)
	}
	if err := db.Model(&analytics.ReferrerStat{}).Count(&referrerCount).Error; err != nil {
		return fmt.Errorf("failed to count referrers: %w", err)
	}
	if err := db.Model(&analytics.DailyStat{}).Count(&dailyCount).Error; err != nil {
		return fmt.Errorf("failed to count daily stats: %w", err)
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Users: %d", userCount)
	log.Printf("- Page views: %d", eventCount)
	log.Printf("- Referrer domains: %d", referrerCount)
	log.Printf("- Daily stat cells: %d", dailyCount)
	log.Printf("- Scheduler running: %t", app.Scheduler.IsRunning())

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: sitepulsectl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
