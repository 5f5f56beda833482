package ledger

import (
	"context"
	"errors"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/metrics"
	"Gin_postgres_redis_tool_crib/models"

	"go.uber.org/zap"
)

func loadItem(ctx context.Context, st db.Store, id string) (*models.Item, error) {
	it, err := st.FindItemByID(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	return it, err
}

// reserve 扣减可用库存；Unlimited 物品不扣减
func reserve(ctx context.Context, st db.Store, itemID string, q uint32) error {
	it, err := loadItem(ctx, st, itemID)
	if err != nil {
		return err
	}
	if it.IsUnlimited() {
		return nil
	}
	avail, _ := it.AvailableQuantity.Count()
	if avail < q {
		return ErrInsufficientStock
	}
	return st.UpdateItemFields(ctx, itemID, map[string]any{
		"available_quantity": models.Finite(avail - q),
	})
}

// released 描述一次归还对库存的实际影响
type released struct {
	Restored   uint32
	OverReturn uint32 // 超过 total 被截掉的数量
}

// release 归还库存，最多加到 totalQuantity，多出来的部分记为 OverReturn
func release(ctx context.Context, st db.Store, itemID string, q uint32) (released, error) {
	it, err := loadItem(ctx, st, itemID)
	if err != nil {
		return released{}, err
	}
	if it.IsUnlimited() {
		return released{}, nil
	}
	avail, _ := it.AvailableQuantity.Count()
	total, _ := it.TotalQuantity.Count()

	var out released
	next := uint64(avail) + uint64(q)
	switch {
	case avail >= total:
		// 已经满了：整笔都是多还的，可用量不动
		out.OverReturn = q
		next = uint64(avail)
	case next > uint64(total):
		out.OverReturn = uint32(next - uint64(total))
		next = uint64(total)
	}
	out.Restored = uint32(next - uint64(avail))
	if out.OverReturn > 0 {
		metrics.OverReturnUnits.Add(float64(out.OverReturn))
		zap.L().Warn("return exceeds total stock, clamped",
			zap.String("item", itemID),
			zap.Uint32("returned", q),
			zap.Uint32("overReturn", out.OverReturn),
		)
	}
	if out.Restored == 0 {
		return out, nil
	}
	err = st.UpdateItemFields(ctx, itemID, map[string]any{
		"available_quantity": models.Finite(uint32(next)),
	})
	return out, err
}
