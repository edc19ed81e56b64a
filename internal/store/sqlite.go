// sqlite.go -- gorm-backed token store on an embedded SQLite file.
// Same row shape as the Postgres provider_tokens table; schema via AutoMigrate.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/MGallo-Code/famfit/internal/oauth"
)

// providerToken is the gorm model for one stored token.
type providerToken struct {
	ID           string `gorm:"primaryKey"`
	Name         string `gorm:"uniqueIndex;not null"`
	Token        string `gorm:"not null"`
	RefreshToken string `gorm:"not null;default:''"`
	TokenType    string `gorm:"not null;default:''"`
	Scope        string `gorm:"not null;default:''"`
	ExpiresAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (providerToken) TableName() string { return "provider_tokens" }

// SQLiteStore persists token records through gorm.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates the schema.
// path may be ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}

	// One writer at a time; SQLite serializes writes anyway
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&providerToken{}); err != nil {
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CheckHealth pings the database.
func (s *SQLiteStore) CheckHealth(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SaveToken upserts the row for identity.
func (s *SQLiteStore) SaveToken(ctx context.Context, identity string, rec oauth.TokenRecord) error {
	if err := validateIdentity(identity); err != nil {
		return err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating token row id: %w", err)
	}

	row := providerToken{
		ID:           id.String(),
		Name:         identity,
		Token:        rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		Scope:        rec.Scope,
	}
	if !rec.Expiry.IsZero() {
		exp := rec.Expiry.UTC()
		row.ExpiresAt = &exp
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "refresh_token", "token_type", "scope", "expires_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("saving token for %s: %w", identity, err)
	}
	return nil
}

// GetToken loads the row for identity. Returns oauth.ErrTokenNotFound when missing.
func (s *SQLiteStore) GetToken(ctx context.Context, identity string) (*oauth.TokenRecord, error) {
	if err := validateIdentity(identity); err != nil {
		return nil, err
	}
	var row providerToken
	err := s.db.WithContext(ctx).Where("name = ?", identity).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oauth.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching token for %s: %w", identity, err)
	}

	rec := &oauth.TokenRecord{
		AccessToken:  row.Token,
		RefreshToken: row.RefreshToken,
		TokenType:    row.TokenType,
		Scope:        row.Scope,
		UserID:       row.Name,
	}
	if row.ExpiresAt != nil {
		rec.Expiry = *row.ExpiresAt
	}
	return rec, nil
}
