// Package geoip resolves client IPs to ISO country codes using a MaxMind
// GeoLite2 database. Country lookup is optional: without a database every
// lookup returns "".
package geoip

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

type countryReader interface {
	Country(ip net.IP) (*geoip2.Country, error)
	Close() error
}

// Resolver looks up countries. A zero Resolver or one without a database is
// usable and always returns "".
type Resolver struct {
	mu     sync.RWMutex
	path   string
	reader countryReader
	logger *slog.Logger
}

// Open loads the database at path. A missing file is not an error; the
// resolver simply stays disabled until Reload finds one.
func Open(path string, logger *slog.Logger) (*Resolver, error) {
	r := &Resolver{path: path, logger: logger}
	if err := r.Reload(); err != nil {
		return r, err
	}
	return r, nil
}

// Reload reopens the database file, swapping readers atomically.
func (r *Resolver) Reload() error {
	if r.path == "" {
		r.log().Debug("GeoIP database path not configured - country lookup disabled")
		return nil
	}

	if _, err := os.Stat(r.path); errors.Is(err, os.ErrNotExist) {
		r.log().Info("GeoLite2 database not found - country lookup disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		return err
	}

	db, err := geoip2.Open(r.path)
	if err != nil {
		r.log().Error("Failed to open GeoLite2 database", slog.String("path", r.path), slog.Any("error", err))
		return err
	}

	r.mu.Lock()
	old := r.reader
	r.reader = db
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}
	r.log().Info("GeoLite2 database loaded", slog.String("path", r.path))
	return nil
}

// Enabled reports whether a database is loaded.
func (r *Resolver) Enabled() bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reader != nil
}

// Country returns the upper-case ISO 3166-1 alpha-2 code for ip, or "" when
// unknown. Private and loopback addresses never resolve.
func (r *Resolver) Country(ip string) string {
	if r == nil {
		return ""
	}

	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.reader == nil {
		return ""
	}

	record, err := r.reader.Country(parsed)
	if err != nil {
		r.log().Debug("GeoIP lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return ""
	}
	return strings.ToUpper(record.Country.IsoCode)
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}

func (r *Resolver) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default()
	}
	return r.logger
}
