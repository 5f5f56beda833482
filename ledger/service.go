// Package ledger owns every rule about stock quantities and borrow/return
// transactions. All mutations of items and transactions go through Service
// while holding the gate.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/gate"
	"Gin_postgres_redis_tool_crib/metrics"
)

const (
	DefaultBatchWait  = 30 * time.Second
	DefaultSingleWait = 10 * time.Second
	// 没填预计归还时间时的默认借期
	DefaultLoanPeriod = 48 * time.Hour
)

type Options struct {
	BatchWait  time.Duration // 批量借还、盘点、逾期扫描
	SingleWait time.Duration // 旧的单件借还接口
	Now        func() time.Time
}

type Service struct {
	store db.Store
	gate  gate.Gate
	opts  Options
}

func New(store db.Store, g gate.Gate, opts Options) *Service {
	if opts.BatchWait <= 0 {
		opts.BatchWait = DefaultBatchWait
	}
	if opts.SingleWait <= 0 {
		opts.SingleWait = DefaultSingleWait
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, gate: g, opts: opts}
}

func (s *Service) now() time.Time { return s.opts.Now() }

// withGate 在临界区里执行 fn；拿锁超时返回 ErrLockTimeout，锁在所有路径上都会释放
func (s *Service) withGate(ctx context.Context, op string, wait time.Duration, fn func() error) error {
	start := time.Now()
	release, err := s.gate.Acquire(ctx, wait)
	if err != nil {
		metrics.GateWait.WithLabelValues(op, "timeout").Observe(time.Since(start).Seconds())
		if errors.Is(err, gate.ErrTimeout) {
			return fmt.Errorf("%s: %w", op, ErrLockTimeout)
		}
		return fmt.Errorf("%s: acquire gate: %w", op, err)
	}
	metrics.GateWait.WithLabelValues(op, "ok").Observe(time.Since(start).Seconds())
	defer release()
	return fn()
}
