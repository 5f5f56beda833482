// app/seenmw.go
package app

import (
	"time"

	"Gin_postgres_redis_tool_crib/db"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TouchLastSeen 每个用户每 throttle 最多写一次 last_seen_at
func TouchLastSeen(repo *db.Repo, rdb *redis.Client, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString("userID")
		if uid == "" {
			c.Next()
			return
		}

		key := "crib:lastseen:" + uid
		if ok, _ := rdb.SetNX(c.Request.Context(), key, "1", throttle).Result(); ok {
			if err := repo.TouchUserSeen(c.Request.Context(), uid); err != nil {
				zap.L().Debug("touch last seen", zap.String("user", uid), zap.Error(err))
			}
		}
		c.Next()
	}
}
