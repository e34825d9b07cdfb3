package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRecentEvents = 500

type Repository interface {
	SaveBatch(ctx context.Context, events []SubscriptionEvent) error
	Recent(ctx context.Context, limit int) ([]SubscriptionEvent, error)
	RecentByName(ctx context.Context, name string, limit int) ([]SubscriptionEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Open connects to PostgreSQL through the pgx driver and migrates the
// subscription_events table.
func Open(dsn string) (*gorm.DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&SubscriptionEvent{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate subscription_events: %w", err)
	}
	return db, nil
}

// SaveBatch inserts events in a single statement
func (r *gormRepository) SaveBatch(ctx context.Context, events []SubscriptionEvent) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(events, 100).Error
}

// Recent returns the newest events first
func (r *gormRepository) Recent(ctx context.Context, limit int) ([]SubscriptionEvent, error) {
	var events []SubscriptionEvent
	err := r.db.WithContext(ctx).
		Order("occurred_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&events).Error
	return events, err
}

func (r *gormRepository) RecentByName(ctx context.Context, name string, limit int) ([]SubscriptionEvent, error) {
	var events []SubscriptionEvent
	err := r.db.WithContext(ctx).
		Where("name = ?", name).
		Order("occurred_at DESC, id DESC").
		Limit(clampLimit(limit)).
		Find(&events).Error
	return events, err
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxRecentEvents {
		return maxRecentEvents
	}
	return limit
}
