// app/bootstrap.go
package app

import (
	"context"

	"Gin_postgres_redis_tool_crib/db"

	"go.uber.org/zap"
)

// BootstrapAdmins 把 ADMIN_USER_IDS 里已注册的账号提升为管理员。
// 还没注册的账号会在下次启动时处理。
func BootstrapAdmins(ctx context.Context, cfg Config, repo *db.Repo) {
	if len(cfg.AdminUserIDs) == 0 {
		return
	}
	n, err := repo.PromoteAdmins(ctx, cfg.AdminUserIDs)
	if err != nil {
		zap.S().Errorf("bootstrap admins: %v", err)
		return
	}
	if n > 0 {
		zap.S().Infof("[BOOTSTRAP] promoted %d account(s) to admin", n)
	}
}
