package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/metrics"
	"Gin_postgres_redis_tool_crib/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type BorrowLine struct {
	ItemID   string `json:"itemId"`
	Quantity uint32 `json:"quantity"`
	ProofRef string `json:"proofRef,omitempty"`
}

type BorrowRequest struct {
	UserID           string       `json:"userId"`
	Reason           string       `json:"reason"`
	ExpectedReturnAt time.Time    `json:"expectedReturnAt"`
	Lines            []BorrowLine `json:"lines"`
}

type BorrowResult struct {
	TransactionIDs []string `json:"transactionIds"`
}

type ReturnLine struct {
	ItemID    string `json:"itemId"`
	Condition string `json:"condition"`
	Notes     string `json:"notes"`
	ProofRef  string `json:"proofRef,omitempty"`
}

type ReturnRequest struct {
	UserID string       `json:"userId"`
	Lines  []ReturnLine `json:"lines"`
}

// ReturnOutcome 单行归还结果；Matched=false 表示记成了 ReturnUnmatched
type ReturnOutcome struct {
	ItemID        string `json:"itemId"`
	TransactionID string `json:"transactionId"`
	Matched       bool   `json:"matched"`
	Restored      uint32 `json:"restored"`
	OverReturn    uint32 `json:"overReturn,omitempty"`
	ItemMissing   bool   `json:"itemMissing,omitempty"`
}

type ReturnResult struct {
	Lines []ReturnOutcome `json:"lines"`
}

const forceReturnReason = "Force Return"

// Check 只做格式校验，不查库存；控制器上传凭证前先调用
func (r *BorrowRequest) Check() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.UserID == "" {
		return invalid("userId is required")
	}
	if r.Reason == "" {
		return invalid("reason is required")
	}
	if len(r.Lines) == 0 {
		return invalid("no items in request")
	}
	for i := range r.Lines {
		r.Lines[i].ItemID = strings.TrimSpace(r.Lines[i].ItemID)
		if r.Lines[i].ItemID == "" {
			return invalid("line %d: itemId is required", i+1)
		}
		if r.Lines[i].Quantity < 1 {
			return invalid("line %d: quantity must be at least 1", i+1)
		}
	}
	return nil
}

func (r *ReturnRequest) Check() error {
	r.UserID = strings.TrimSpace(r.UserID)
	if r.UserID == "" {
		return invalid("userId is required")
	}
	if len(r.Lines) == 0 {
		return invalid("no items in request")
	}
	for i := range r.Lines {
		r.Lines[i].ItemID = strings.TrimSpace(r.Lines[i].ItemID)
		if r.Lines[i].ItemID == "" {
			return invalid("line %d: itemId is required", i+1)
		}
	}
	return nil
}

// BorrowBatch 借出一组物品：先整体校验，全部通过才落库，不会部分借出
func (s *Service) BorrowBatch(ctx context.Context, req BorrowRequest) (*BorrowResult, error) {
	return s.borrow(ctx, req, s.opts.BatchWait, "borrow_batch")
}

// Borrow 旧的单件借出接口，等价于只有一行的批次
func (s *Service) Borrow(ctx context.Context, userID, reason string, expectedReturnAt time.Time, line BorrowLine) (*BorrowResult, error) {
	req := BorrowRequest{
		UserID:           userID,
		Reason:           reason,
		ExpectedReturnAt: expectedReturnAt,
		Lines:            []BorrowLine{line},
	}
	return s.borrow(ctx, req, s.opts.SingleWait, "borrow")
}

func (s *Service) borrow(ctx context.Context, req BorrowRequest, wait time.Duration, op string) (*BorrowResult, error) {
	if err := req.Check(); err != nil {
		metrics.RejectedBatches.WithLabelValues("borrow", "invalid").Inc()
		return nil, err
	}

	var res *BorrowResult
	err := s.withGate(ctx, op, wait, func() error {
		if err := s.validateBorrow(ctx, req); err != nil {
			metrics.RejectedBatches.WithLabelValues("borrow", rejectReason(err)).Inc()
			return err
		}
		var err error
		res, err = s.applyBorrow(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.BorrowedLines.Add(float64(len(req.Lines)))
	zap.L().Info("borrow applied",
		zap.String("op", op),
		zap.String("user", req.UserID),
		zap.Int("lines", len(req.Lines)),
	)
	return res, nil
}

// validateBorrow 同一批里同一物品的多行要累加后再和可用量比较
func (s *Service) validateBorrow(ctx context.Context, req BorrowRequest) error {
	items := make(map[string]*models.Item)
	pending := make(map[string]uint64)

	for i, line := range req.Lines {
		it, ok := items[line.ItemID]
		if !ok {
			var err error
			it, err = loadItem(ctx, s.store, line.ItemID)
			if errors.Is(err, ErrItemNotFound) {
				return &BatchError{Phase: PhaseValidating, Line: i, ItemID: line.ItemID, Err: ErrItemNotFound}
			}
			if err != nil {
				return err
			}
			items[line.ItemID] = it
		}
		if it.IsUnlimited() {
			continue
		}
		avail, _ := it.AvailableQuantity.Count()
		if pending[line.ItemID]+uint64(line.Quantity) > uint64(avail) {
			return &BatchError{Phase: PhaseValidating, Line: i, ItemID: line.ItemID, Err: ErrInsufficientStock}
		}
		pending[line.ItemID] += uint64(line.Quantity)
	}
	return nil
}

func (s *Service) applyBorrow(ctx context.Context, req BorrowRequest) (*BorrowResult, error) {
	now := s.now()
	due := req.ExpectedReturnAt
	if due.IsZero() {
		due = now.Add(DefaultLoanPeriod)
	}

	res := &BorrowResult{TransactionIDs: make([]string, 0, len(req.Lines))}
	err := s.store.Atomic(ctx, func(tx db.Store) error {
		for i, line := range req.Lines {
			if err := reserve(ctx, tx, line.ItemID, line.Quantity); err != nil {
				return &BatchError{Phase: PhaseApplying, Line: i, ItemID: line.ItemID, Err: err}
			}
			t := &models.Transaction{
				ID:               uuid.NewString(),
				ItemID:           line.ItemID,
				UserID:           req.UserID,
				Action:           models.ActionBorrow,
				Quantity:         line.Quantity,
				Reason:           req.Reason,
				ExpectedReturnAt: &due,
				Status:           models.StatusBorrowed,
				CreatedAt:        now,
				BorrowProofRef:   line.ProofRef,
			}
			if err := tx.CreateTransaction(ctx, t); err != nil {
				return &BatchError{Phase: PhaseApplying, Line: i, ItemID: line.ItemID, Err: err}
			}
			res.TransactionIDs = append(res.TransactionIDs, t.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ReturnBatch 归还一组物品。归还数量以匹配到的借出记录为准，请求里不带数量。
// 找不到借出记录的行不会让整批失败，而是记一条 ReturnUnmatched。
func (s *Service) ReturnBatch(ctx context.Context, req ReturnRequest) (*ReturnResult, error) {
	return s.giveBack(ctx, req, s.opts.BatchWait, "return_batch")
}

// Return 旧的单件归还接口
func (s *Service) Return(ctx context.Context, userID string, line ReturnLine) (*ReturnOutcome, error) {
	res, err := s.giveBack(ctx, ReturnRequest{UserID: userID, Lines: []ReturnLine{line}}, s.opts.SingleWait, "return")
	if err != nil {
		return nil, err
	}
	return &res.Lines[0], nil
}

func (s *Service) giveBack(ctx context.Context, req ReturnRequest, wait time.Duration, op string) (*ReturnResult, error) {
	if err := req.Check(); err != nil {
		metrics.RejectedBatches.WithLabelValues("return", "invalid").Inc()
		return nil, err
	}

	var res *ReturnResult
	err := s.withGate(ctx, op, wait, func() error {
		txns, err := s.store.ListTransactionsByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		// 先把每一行的匹配全部确定，再动库存
		claimed := make(map[string]bool)
		matches := make([]*models.Transaction, len(req.Lines))
		for i, line := range req.Lines {
			if t := matchOpen(txns, line.ItemID, req.UserID, claimed); t != nil {
				claimed[t.ID] = true
				matches[i] = t
			}
		}
		res, err = s.applyReturn(ctx, req, matches)
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, o := range res.Lines {
		if o.Matched {
			metrics.ReturnedLines.WithLabelValues("matched").Inc()
		} else {
			metrics.ReturnedLines.WithLabelValues("unmatched").Inc()
		}
	}
	zap.L().Info("return applied",
		zap.String("op", op),
		zap.String("user", req.UserID),
		zap.Int("lines", len(req.Lines)),
	)
	return res, nil
}

func (s *Service) applyReturn(ctx context.Context, req ReturnRequest, matches []*models.Transaction) (*ReturnResult, error) {
	now := s.now()
	res := &ReturnResult{Lines: make([]ReturnOutcome, 0, len(req.Lines))}

	err := s.store.Atomic(ctx, func(tx db.Store) error {
		for i, line := range req.Lines {
			t := matches[i]
			if t == nil {
				u, err := s.recordUnmatched(ctx, tx, req.UserID, line, now)
				if err != nil {
					return &BatchError{Phase: PhaseApplying, Line: i, ItemID: line.ItemID, Err: err}
				}
				res.Lines = append(res.Lines, ReturnOutcome{ItemID: line.ItemID, TransactionID: u.ID})
				continue
			}

			out := ReturnOutcome{ItemID: line.ItemID, TransactionID: t.ID, Matched: true}
			rel, err := release(ctx, tx, t.ItemID, t.Quantity)
			switch {
			case errors.Is(err, ErrItemNotFound):
				// 物品已被管理员删除：照样关闭借出记录，库存无处可加
				out.ItemMissing = true
				zap.L().Warn("returned item no longer exists",
					zap.String("item", t.ItemID),
					zap.String("transaction", t.ID),
				)
			case err != nil:
				return &BatchError{Phase: PhaseApplying, Line: i, ItemID: line.ItemID, Err: err}
			}
			out.Restored = rel.Restored
			out.OverReturn = rel.OverReturn

			err = tx.UpdateTransactionFields(ctx, t.ID, map[string]any{
				"status":           string(models.StatusReturned),
				"actual_return_at": now,
				"condition":        line.Condition,
				"notes":            line.Notes,
				"return_proof_ref": line.ProofRef,
			})
			if err != nil {
				return &BatchError{Phase: PhaseApplying, Line: i, ItemID: line.ItemID, Err: err}
			}
			res.Lines = append(res.Lines, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// recordUnmatched 没有可匹配的借出记录时仍然接收归还（比如丢失后找回），不动库存
func (s *Service) recordUnmatched(ctx context.Context, tx db.Store, userID string, line ReturnLine, now time.Time) (*models.Transaction, error) {
	reason := strings.TrimSpace(line.Notes)
	if reason == "" {
		reason = forceReturnReason
	}
	t := &models.Transaction{
		ID:             uuid.NewString(),
		ItemID:         line.ItemID,
		UserID:         userID,
		Action:         models.ActionReturnUnmatched,
		Quantity:       1,
		Reason:         reason,
		ActualReturnAt: &now,
		Status:         models.StatusReturned,
		CreatedAt:      now,
		Condition:      line.Condition,
		Notes:          line.Notes,
		ReturnProofRef: line.ProofRef,
	}
	if err := tx.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}
	zap.L().Warn("return without open borrow recorded",
		zap.String("item", line.ItemID),
		zap.String("user", userID),
	)
	return t, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "error"
	}
}
