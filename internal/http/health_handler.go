package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status      string     `json:"status"`
	Timestamp   time.Time  `json:"timestamp"`
	DBStatus    string     `json:"db_status"`
	LastEventAt *time.Time `json:"last_event_at"`
}

// HealthIndexAction handles the health check endpoint
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		DBStatus:  "ok",
	}

	db := ctx.DBManager.GetConnection()
	if db == nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else if sqlDB, err := db.DB(); err != nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database connection error", slog.Any("error", err))
	} else if err := sqlDB.Ping(); err != nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database ping failed", slog.Any("error", err))
	} else {
		var last string
		if err := db.Raw("SELECT COALESCE(MAX(created_at), '') FROM page_view_events").Scan(&last).Error; err != nil {
			ctx.Logger.Warn("Failed to read last event time", slog.Any("error", err))
		} else if t, ok := parseDBTime(last); ok {
			health.LastEventAt = &t
		}
	}

	if health.DBStatus != "ok" {
		health.Status = "degraded"
	}
	return ctx.JSON(health)
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func parseDBTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dbTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
