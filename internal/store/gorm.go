package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"retro-backend/internal/apperrors"
	"retro-backend/internal/models"
)

// GormStore keeps feedback in a relational table, either a sqlite file or postgres
type GormStore struct {
	db     *gorm.DB
	schema models.Schema
}

// IsSQLiteDSN reports whether dsn points at a sqlite database.
// SQLite DSNs typically start with "file:"
func IsSQLiteDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "file:")
}

// OpenGorm detects the driver from the DSN and opens the database
func OpenGorm(dsn string, schema models.Schema) (*GormStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	cfg := &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)}

	var db *gorm.DB
	var err error
	if IsSQLiteDSN(dsn) {
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	} else {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if IsSQLiteDSN(dsn) {
		// sqlite allows a single writer; let the pool queue concurrent inserts
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return NewGormStore(db, schema), nil
}

func NewGormStore(db *gorm.DB, schema models.Schema) *GormStore {
	return &GormStore{db: db, schema: schema}
}

// DB exposes the handle for migrations and health checks
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.Feedback{}); err != nil {
		return fmt.Errorf("migrating feedback table: %w", err)
	}
	return nil
}

func (s *GormStore) Insert(ctx context.Context, sub models.Submission) (string, error) {
	sub, err := s.schema.Normalize(sub)
	if err != nil {
		return "", err
	}

	record := sub.ToFeedback()
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", apperrors.NewStorageError("failed to save feedback", err)
	}

	return record.ID, nil
}

func (s *GormStore) ListAll(ctx context.Context) ([]models.Feedback, error) {
	records := []models.Feedback{}
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, apperrors.NewStorageError("failed to load feedback", err)
	}
	return records, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
