package ledger

import (
	"context"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/metrics"
	"Gin_postgres_redis_tool_crib/models"

	"go.uber.org/zap"
)

// SweepOverdue 把已过预计归还时间、仍为 Borrowed 的记录改成 Overdue，返回改了多少条。
// 在 gate 内执行，和借还互斥；已归还的记录不会被碰。
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	var n int
	err := s.withGate(ctx, "sweep", s.opts.BatchWait, func() error {
		txns, err := s.store.ListTransactions(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		return s.store.Atomic(ctx, func(tx db.Store) error {
			for _, t := range txns {
				if t.Status != models.StatusBorrowed || t.ExpectedReturnAt == nil {
					continue
				}
				if !t.ExpectedReturnAt.Before(now) {
					continue
				}
				if err := tx.UpdateTransactionFields(ctx, t.ID, map[string]any{
					"status": string(models.StatusOverdue),
				}); err != nil {
					return err
				}
				n++
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.OverdueMarked.Add(float64(n))
		zap.L().Info("overdue sweep", zap.Int("marked", n))
	}
	return n, nil
}
