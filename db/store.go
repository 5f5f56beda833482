package db

import (
	"Gin_postgres_redis_tool_crib/models"
	"context"
	"errors"
)

// ErrNotFound 所有按主键查询未命中时返回（屏蔽 gorm.ErrRecordNotFound）
var ErrNotFound = errors.New("record not found")

// ErrDuplicate 主键/唯一键冲突
var ErrDuplicate = errors.New("duplicate record")

// Store 是台账核心依赖的记录存储。
// 它只是个“哑表”：没有业务校验，并发安全由调用方的 gate 保证。
type Store interface {
	ListItems(ctx context.Context) ([]models.Item, error)
	FindItemByID(ctx context.Context, id string) (*models.Item, error)
	CreateItem(ctx context.Context, it *models.Item) error
	UpdateItemFields(ctx context.Context, id string, fields map[string]any) error
	DeleteItem(ctx context.Context, id string) error

	// ListTransactions 按创建顺序（seq 升序）返回全部流水
	ListTransactions(ctx context.Context) ([]models.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID string) ([]models.Transaction, error)
	CreateTransaction(ctx context.Context, t *models.Transaction) error
	UpdateTransactionFields(ctx context.Context, id string, fields map[string]any) error

	FindUserByID(ctx context.Context, id string) (*models.User, error)
	UpsertUserProfile(ctx context.Context, u *models.User) (*models.User, error)
	UpdateUserFields(ctx context.Context, id string, fields map[string]any) error

	// Atomic 在一个数据库事务里执行 fn，fn 返回错误则整体回滚
	Atomic(ctx context.Context, fn func(tx Store) error) error
}

var _ Store = (*Repo)(nil)
