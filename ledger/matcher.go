package ledger

import (
	"context"

	"Gin_postgres_redis_tool_crib/models"
)

// matchOpen 倒序扫描（最新的优先），返回第一条 item+user 一致且仍未归还的记录。
// skip 里的记录已被同一批次前面的行认领，跳过。
// 注意是 LIFO：同一人重复借同一物品时，先关掉最近的那笔。
func matchOpen(txns []models.Transaction, itemID, userID string, skip map[string]bool) *models.Transaction {
	for i := len(txns) - 1; i >= 0; i-- {
		t := &txns[i]
		if t.ItemID != itemID || t.UserID != userID || !t.Status.IsOpen() {
			continue
		}
		if skip[t.ID] {
			continue
		}
		return t
	}
	return nil
}

// FindOpenTransaction 查询 (item, user) 当前会被归还匹配到的借出记录；没有则返回 nil
func (s *Service) FindOpenTransaction(ctx context.Context, itemID, userID string) (*models.Transaction, error) {
	txns, err := s.store.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	t := matchOpen(txns, itemID, userID, nil)
	if t == nil {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}
