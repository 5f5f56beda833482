package gate

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 只删除自己持有的锁：锁过期后被别人拿到时，不能误删
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis 是跨进程的 gate：SET key token NX PX ttl，轮询等待。
// ttl 兜底进程崩溃后锁能自动释放，要大于最长的临界区。
type Redis struct {
	rdb  *redis.Client
	key  string
	ttl  time.Duration
	poll time.Duration
}

func NewRedis(rdb *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = "crib:gate"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Redis{rdb: rdb, key: key, ttl: ttl, poll: 25 * time.Millisecond}
}

func (g *Redis) Acquire(ctx context.Context, wait time.Duration) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := g.rdb.SetNX(ctx, g.key, token, g.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(g.poll):
		}
	}

	var released bool
	return func() {
		if released {
			return
		}
		released = true
		// 请求 ctx 可能已取消，释放锁不能跟着失败
		rctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		n, err := releaseScript.Run(rctx, g.rdb, []string{g.key}, token).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			zap.L().Error("gate release failed", zap.String("key", g.key), zap.Error(err))
			return
		}
		if n == 0 {
			zap.L().Warn("gate lock expired before release", zap.String("key", g.key))
		}
	}, nil
}
