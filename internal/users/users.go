// Package users stores the site administrators who may read analytics.
package users

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/crypto"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

type User struct {
	ID                uint   `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex"`
	EncryptedPassword string
	LastLoginAt       *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

var (
	// ErrUserExists is returned when attempting to create a user that already exists.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ErrUserNotFound is returned when a user lookup fails.
var ErrUserNotFound = gorm.ErrRecordNotFound

// bcrypt hash of "dummy", compared against when the email is unknown so both
// failure paths take the same time.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail retrieves a user by email.
func FindByEmail(db *gorm.DB, email string) (*User, error) {
	var user User
	if err := db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID retrieves a user by ID.
func FindByID(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Count returns the number of administrators.
func Count(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&User{}).Count(&n).Error
	return n, err
}

// CreateAdminUser creates a new admin user. It returns ErrUserExists if the
// email is taken.
func CreateAdminUser(dbConn *gorm.DB, logger *slog.Logger, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("email cannot be empty")
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}

	if _, err := FindByEmail(dbConn, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{Email: email, EncryptedPassword: string(hashedPassword)}
	if err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Create(user).Error
	}); err != nil {
		return nil, err
	}
	logger.Info("Created admin user", slog.String("email", email))
	return user, nil
}

// ChangePassword updates a user's password given their email.
func ChangePassword(dbConn *gorm.DB, logger *slog.Logger, email, password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	user, err := FindByEmail(dbConn, email)
	if err != nil {
		return err
	}

	hashedPassword, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Model(user).Update("encrypted_password", string(hashedPassword)).Error
	})
}

// Authenticate checks an email and password pair and stamps the login time.
func Authenticate(dbConn *gorm.DB, logger *slog.Logger, email, password string) (*User, error) {
	user, err := FindByEmail(dbConn, email)
	if err != nil {
		crypto.VerifyPassword(dummyHash, password)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !crypto.VerifyPassword(user.EncryptedPassword, password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Model(user).Update("last_login_at", now).Error
	}); err != nil {
		logger.Warn("Failed to record login time", slog.Uint64("user_id", uint64(user.ID)), slog.Any("error", err))
	} else {
		user.LastLoginAt = &now
	}
	return user, nil
}
