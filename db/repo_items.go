// db/repo_items.go
package db

import (
	"context"
	"errors"

	"Gin_postgres_redis_tool_crib/models"

	"gorm.io/gorm"
)

// Items

func (r *Repo) ListItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	err := r.DB.WithContext(ctx).Order("created_at ASC, id ASC").Find(&items).Error
	return items, err
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	err := r.DB.WithContext(ctx).Create(it).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// UpdateItemFields 按列名更新；Quantity 列走 Valuer（Unlimited → -1）
func (r *Repo) UpdateItemFields(ctx context.Context, id string, fields map[string]any) error {
	return updateOne(r.DB.WithContext(ctx), &models.Item{}, id, fields)
}

// 硬删除，不留墓碑
func (r *Repo) DeleteItem(ctx context.Context, id string) error {
	res := r.DB.WithContext(ctx).Delete(&models.Item{ID: id})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
