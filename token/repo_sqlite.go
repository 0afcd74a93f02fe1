package token

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jrsteele09/izikwen-client/internal/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// StoredValue is one persisted key of the credential store.
type StoredValue struct {
	Name      string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (StoredValue) TableName() string {
	return "secure_store"
}

// SQLiteRepo stores each key as a row in the secure_store table.
type SQLiteRepo struct {
	db     *gorm.DB
	closer func() error
}

var _ Repo = (*SQLiteRepo)(nil)

// OpenSQLite opens (creating if needed) a sqlite database file and migrates it.
func OpenSQLite(path string) (*SQLiteRepo, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm.Open %s: %w", path, err)
	}

	r, err := NewSQLiteRepo(db)
	if err != nil {
		return nil, err
	}
	r.closer = func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return r, nil
}

// NewSQLiteRepo uses an existing gorm handle. The caller owns its lifetime.
func NewSQLiteRepo(db *gorm.DB) (*SQLiteRepo, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite repo requires database handle: %w", errors.ErrInvalidInput)
	}
	if err := db.AutoMigrate(&StoredValue{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &SQLiteRepo{db: db}, nil
}

func (r *SQLiteRepo) Get(ctx context.Context, key string) (string, error) {
	var row StoredValue
	err := r.db.WithContext(ctx).Where("name = ?", key).First(&row).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", errors.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

func (r *SQLiteRepo) Set(ctx context.Context, key, value string) error {
	row := StoredValue{Name: key, Value: value, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

func (r *SQLiteRepo) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("name = ?", key).Delete(&StoredValue{}).Error
}

func (r *SQLiteRepo) Close(context.Context) error {
	if r.closer == nil {
		return nil
	}
	return r.closer()
}
