package db

import (
	"Gin_postgres_redis_tool_crib/models"
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (r *Repo) LogActivity(ctx context.Context, actor, action string) (*models.ActivityLog, error) {
	log := &models.ActivityLog{
		ID:     uuid.NewString(),
		Actor:  actor,
		Action: action,
	}
	if err := r.DB.WithContext(ctx).Create(log).Error; err != nil {
		return nil, fmt.Errorf("insert activity log: %w", err)
	}
	return log, nil
}

// RecentActivity 最新的 limit 条，新的在前
func (r *Repo) RecentActivity(ctx context.Context, limit int) ([]models.ActivityLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var logs []models.ActivityLog
	err := r.DB.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
