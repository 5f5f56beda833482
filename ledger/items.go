package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/models"

	"go.uber.org/zap"
)

// ItemView 物品列表行，附带派生的 status
type ItemView struct {
	models.Item
	Status string `json:"status"`
}

func (s *Service) ListItems(ctx context.Context) ([]ItemView, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ItemView, 0, len(items))
	for i := range items {
		out = append(out, ItemView{Item: items[i], Status: items[i].Status()})
	}
	return out, nil
}

type AddItemInput struct {
	ID       string          `json:"itemId" binding:"required"`
	Name     string          `json:"name" binding:"required"`
	Total    models.Quantity `json:"totalQuantity"`
	Unit     string          `json:"unit"`
	Location string          `json:"location"`
	ImageRef string          `json:"imageRef"`
}

// AddItem 新建物品，可用量初始化为总量
func (s *Service) AddItem(ctx context.Context, in AddItemInput) (*models.Item, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.Name == "" {
		return nil, invalid("itemId and name are required")
	}
	it := &models.Item{
		ID:                in.ID,
		Name:              in.Name,
		TotalQuantity:     in.Total,
		AvailableQuantity: in.Total,
		Unit:              in.Unit,
		Location:          in.Location,
		ImageRef:          in.ImageRef,
	}
	err := s.withGate(ctx, "add_item", s.opts.BatchWait, func() error {
		_, err := s.store.FindItemByID(ctx, in.ID)
		if err == nil {
			return ErrDuplicateItemID
		}
		if !errors.Is(err, db.ErrNotFound) {
			return err
		}
		if err := s.store.CreateItem(ctx, it); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return ErrDuplicateItemID
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("item added", zap.String("item", it.ID), zap.Stringer("total", it.TotalQuantity))
	return it, nil
}

// EditItemInput nil 字段保持不变
type EditItemInput struct {
	Name      *string          `json:"name"`
	Total     *models.Quantity `json:"totalQuantity"`
	Available *models.Quantity `json:"availableQuantity"`
	Unit      *string          `json:"unit"`
	Location  *string          `json:"location"`
	ImageRef  *string          `json:"imageRef"`
}

// EditItem 管理员直接覆盖字段，不和流水对账
func (s *Service) EditItem(ctx context.Context, id string, in EditItemInput) (*models.Item, error) {
	var out *models.Item
	err := s.withGate(ctx, "edit_item", s.opts.BatchWait, func() error {
		it, err := loadItem(ctx, s.store, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return invalid("name must not be empty")
			}
			it.Name = name
		}
		if in.Total != nil {
			it.TotalQuantity = *in.Total
		}
		if in.Available != nil {
			it.AvailableQuantity = *in.Available
		}
		if in.Unit != nil {
			it.Unit = *in.Unit
		}
		if in.Location != nil {
			it.Location = *in.Location
		}
		if in.ImageRef != nil {
			it.ImageRef = *in.ImageRef
		}
		normalizeQuantities(it)

		fields := map[string]any{
			"name":               it.Name,
			"total_quantity":     it.TotalQuantity,
			"available_quantity": it.AvailableQuantity,
			"unit":               it.Unit,
			"location":           it.Location,
			"image_ref":          it.ImageRef,
		}
		if err := s.store.UpdateItemFields(ctx, id, fields); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return ErrItemNotFound
			}
			return err
		}
		out = it
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// normalizeQuantities 总量不限则可用量也不限；总量有限时可用量不能是 Unlimited，也不能超过总量
func normalizeQuantities(it *models.Item) {
	if it.TotalQuantity.IsUnlimited() {
		it.AvailableQuantity = models.Unlimited
		return
	}
	if it.AvailableQuantity.IsUnlimited() {
		it.AvailableQuantity = it.TotalQuantity
		return
	}
	avail, _ := it.AvailableQuantity.Count()
	total, _ := it.TotalQuantity.Count()
	if avail > total {
		zap.L().Warn("item available exceeds total, clamped",
			zap.String("item", it.ID), zap.Uint32("available", avail), zap.Uint32("total", total))
		it.AvailableQuantity = it.TotalQuantity
	}
}

// RemoveItem 硬删除；历史流水保留
func (s *Service) RemoveItem(ctx context.Context, id string) error {
	return s.withGate(ctx, "remove_item", s.opts.BatchWait, func() error {
		err := s.store.DeleteItem(ctx, id)
		if errors.Is(err, db.ErrNotFound) {
			return ErrItemNotFound
		}
		return err
	})
}

// ActiveBorrow 用户手上未归还的记录
type ActiveBorrow struct {
	TransactionID    string          `json:"transactionId"`
	ItemID           string          `json:"itemId"`
	ItemName         string          `json:"itemName,omitempty"`
	Quantity         uint32          `json:"quantity"`
	Status           models.TxStatus `json:"status"`
	Reason           string          `json:"reason"`
	CreatedAt        time.Time       `json:"createdAt"`
	ExpectedReturnAt *time.Time      `json:"expectedReturnAt,omitempty"`
}

// ListActiveBorrows 最新的在前
func (s *Service) ListActiveBorrows(ctx context.Context, userID string) ([]ActiveBorrow, error) {
	txns, err := s.store.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names, err := s.itemNames(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveBorrow, 0)
	for i := len(txns) - 1; i >= 0; i-- {
		t := txns[i]
		if t.Action != models.ActionBorrow || !t.Status.IsOpen() {
			continue
		}
		out = append(out, ActiveBorrow{
			TransactionID:    t.ID,
			ItemID:           t.ItemID,
			ItemName:         names[t.ItemID],
			Quantity:         t.Quantity,
			Status:           t.Status,
			Reason:           t.Reason,
			CreatedAt:        t.CreatedAt,
			ExpectedReturnAt: t.ExpectedReturnAt,
		})
	}
	return out, nil
}

// ListTransactions 全部流水，最新的在前
func (s *Service) ListTransactions(ctx context.Context) ([]models.Transaction, error) {
	txns, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(txns)-1; i < j; i, j = i+1, j-1 {
		txns[i], txns[j] = txns[j], txns[i]
	}
	return txns, nil
}

func (s *Service) itemNames(ctx context.Context) (map[string]string, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(items))
	for _, it := range items {
		m[it.ID] = it.Name
	}
	return m, nil
}

// ---- 管理后台物品视图 ----

type AdminItemRow struct {
	ItemView
	OpenLoans   int      `json:"openLoans"`
	UnitsOut    uint64   `json:"unitsOut"`
	Overdue     bool     `json:"overdue"`
	BorrowerIDs []string `json:"borrowerIds"`
}

type AdminItemsQuery struct {
	Q      string // 模糊搜索：itemId/name
	Status string // "", "available", "borrowed", "overdue"
	Page   int
	Size   int
}

type PagedAdminItems struct {
	Total int            `json:"total"`
	Items []AdminItemRow `json:"items"`
}

// AdminItems 每件物品附带当前借出情况，按创建时间倒序分页
func (s *Service) AdminItems(ctx context.Context, q AdminItemsQuery) (*PagedAdminItems, error) {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Size <= 0 || q.Size > 200 {
		q.Size = 20
	}

	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactions(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	rows := make(map[string]*AdminItemRow, len(items))
	order := make([]*AdminItemRow, 0, len(items))
	for i := range items {
		r := &AdminItemRow{ItemView: ItemView{Item: items[i], Status: items[i].Status()}, BorrowerIDs: []string{}}
		rows[items[i].ID] = r
		order = append(order, r)
	}
	for _, t := range txns {
		r, ok := rows[t.ItemID]
		if !ok || t.Action != models.ActionBorrow || !t.Status.IsOpen() {
			continue
		}
		r.OpenLoans++
		r.UnitsOut += uint64(t.Quantity)
		if t.Status == models.StatusOverdue || (t.ExpectedReturnAt != nil && t.ExpectedReturnAt.Before(now)) {
			r.Overdue = true
		}
		if !contains(r.BorrowerIDs, t.UserID) {
			r.BorrowerIDs = append(r.BorrowerIDs, t.UserID)
		}
	}

	pat := strings.ToLower(strings.TrimSpace(q.Q))
	filtered := make([]AdminItemRow, 0, len(order))
	for _, r := range order {
		if pat != "" && !strings.Contains(strings.ToLower(r.ID), pat) && !strings.Contains(strings.ToLower(r.Name), pat) {
			continue
		}
		switch q.Status {
		case "available":
			if r.Status != models.ItemStatusAvailable {
				continue
			}
		case "borrowed":
			if r.OpenLoans == 0 {
				continue
			}
		case "overdue":
			if !r.Overdue {
				continue
			}
		}
		filtered = append(filtered, *r)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	res := &PagedAdminItems{Total: len(filtered), Items: []AdminItemRow{}}
	start := (q.Page - 1) * q.Size
	if start < len(filtered) {
		end := start + q.Size
		if end > len(filtered) {
			end = len(filtered)
		}
		res.Items = filtered[start:end]
	}
	return res, nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// ImportReport 批量导入结果
type ImportReport struct {
	Created []string `json:"created"`
	Skipped []string `json:"skipped"` // 已存在的 itemId，不覆盖
}

// ImportItems 导入旧表格的物品，保留表里的可用量；已存在的 id 跳过
func (s *Service) ImportItems(ctx context.Context, items []models.Item) (*ImportReport, error) {
	rep := &ImportReport{Created: []string{}, Skipped: []string{}}
	err := s.withGate(ctx, "import_items", s.opts.BatchWait, func() error {
		return s.store.Atomic(ctx, func(tx db.Store) error {
			for i := range items {
				it := items[i]
				_, err := tx.FindItemByID(ctx, it.ID)
				if err == nil {
					rep.Skipped = append(rep.Skipped, it.ID)
					continue
				}
				if !errors.Is(err, db.ErrNotFound) {
					return err
				}
				normalizeQuantities(&it)
				if err := tx.CreateItem(ctx, &it); err != nil {
					return fmt.Errorf("import %s: %w", it.ID, err)
				}
				rep.Created = append(rep.Created, it.ID)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	zap.L().Info("items imported", zap.Int("created", len(rep.Created)), zap.Int("skipped", len(rep.Skipped)))
	return rep, nil
}
