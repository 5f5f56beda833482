// db/repo_transactions.go
package db

import (
	"context"

	"Gin_postgres_redis_tool_crib/models"
)

func (r *Repo) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	var ts []models.Transaction
	err := r.DB.WithContext(ctx).Order("seq ASC").Find(&ts).Error
	return ts, err
}

func (r *Repo) ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error) {
	var ts []models.Transaction
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("seq ASC").Find(&ts).Error
	return ts, err
}

// CreateTransaction 追加一条流水，Seq 由数据库分配
func (r *Repo) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *Repo) UpdateTransactionFields(ctx context.Context, id string, fields map[string]any) error {
	return updateOne(r.DB.WithContext(ctx), &models.Transaction{}, id, fields)
}
