package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Gin_postgres_redis_tool_crib/db"
	"Gin_postgres_redis_tool_crib/gate"
	"Gin_postgres_redis_tool_crib/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fixture struct {
	svc   *Service
	repo  *db.Repo
	gate  *gate.Local
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	f := &fixture{repo: db.NewRepo(conn), gate: gate.NewLocal(), clock: &clock{t: baseTime}}
	f.svc = New(f.repo, f.gate, Options{
		BatchWait:  5 * time.Second,
		SingleWait: 5 * time.Second,
		Now:        f.clock.Now,
	})
	return f
}

func (f *fixture) seed(t *testing.T, id string, total models.Quantity) {
	t.Helper()
	require.NoError(t, f.repo.CreateItem(context.Background(), &models.Item{
		ID: id, Name: "Tool " + id, TotalQuantity: total, AvailableQuantity: total,
	}))
}

func (f *fixture) available(t *testing.T, id string) models.Quantity {
	t.Helper()
	it, err := f.repo.FindItemByID(context.Background(), id)
	require.NoError(t, err)
	return it.AvailableQuantity
}

func (f *fixture) txn(t *testing.T, id string) models.Transaction {
	t.Helper()
	all, err := f.repo.ListTransactions(context.Background())
	require.NoError(t, err)
	for _, x := range all {
		if x.ID == id {
			return x
		}
	}
	t.Fatalf("transaction %s not found", id)
	return models.Transaction{}
}

func borrowOne(userID, itemID string, q uint32) BorrowRequest {
	return BorrowRequest{
		UserID:           userID,
		Reason:           "lab work",
		ExpectedReturnAt: baseTime.Add(24 * time.Hour),
		Lines:            []BorrowLine{{ItemID: itemID, Quantity: q}},
	}
}

func returnOne(userID, itemID string) ReturnRequest {
	return ReturnRequest{UserID: userID, Lines: []ReturnLine{{ItemID: itemID, Condition: "good"}}}
}

func TestBorrowReturnScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))

	first, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 3))
	require.NoError(t, err)
	require.Len(t, first.TransactionIDs, 1)
	assert.Equal(t, models.Finite(2), f.available(t, "A"))

	_, err = f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 3))
	require.ErrorIs(t, err, ErrInsufficientStock)
	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "A", be.ItemID)
	assert.Equal(t, PhaseValidating, be.Phase)
	assert.Equal(t, models.Finite(2), f.available(t, "A"))

	res, err := f.svc.ReturnBatch(ctx, returnOne("u1", "A"))
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.True(t, res.Lines[0].Matched)
	assert.Equal(t, first.TransactionIDs[0], res.Lines[0].TransactionID)
	assert.EqualValues(t, 3, res.Lines[0].Restored)
	assert.Equal(t, models.Finite(5), f.available(t, "A"))

	closed := f.txn(t, first.TransactionIDs[0])
	assert.Equal(t, models.StatusReturned, closed.Status)
	assert.Equal(t, "good", closed.Condition)
	require.NotNil(t, closed.ActualReturnAt)
}

func TestBorrowUnlimitedNeverMutates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "B", models.Unlimited)

	_, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "B", 100))
	require.NoError(t, err)
	assert.True(t, f.available(t, "B").IsUnlimited())

	items, err := f.svc.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ItemStatusAvailable, items[0].Status)

	res, err := f.svc.ReturnBatch(ctx, returnOne("u1", "B"))
	require.NoError(t, err)
	assert.True(t, res.Lines[0].Matched)
	assert.Zero(t, res.Lines[0].Restored)
	assert.True(t, f.available(t, "B").IsUnlimited())
}

func TestUnlimitedSurvivesStoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "B", models.Unlimited)

	var raw int64
	require.NoError(t, f.repo.DB.Raw("SELECT available_quantity FROM "+models.ItemTable+" WHERE id = ?", "B").Scan(&raw).Error)
	assert.EqualValues(t, -1, raw)

	it, err := f.repo.FindItemByID(ctx, "B")
	require.NoError(t, err)
	assert.True(t, it.IsUnlimited())
	assert.Equal(t, models.ItemStatusAvailable, it.Status())

	for i := 0; i < 3; i++ {
		_, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "B", 100))
		require.NoError(t, err)
	}
	it, err = f.repo.FindItemByID(ctx, "B")
	require.NoError(t, err)
	assert.True(t, it.TotalQuantity.IsUnlimited())
	assert.True(t, it.AvailableQuantity.IsUnlimited())
}

func TestBorrowBatchRejectedAsWhole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "C", models.Finite(4))
	f.seed(t, "D", models.Finite(0))

	_, err := f.svc.BorrowBatch(ctx, BorrowRequest{
		UserID: "u1", Reason: "x",
		Lines: []BorrowLine{{ItemID: "C", Quantity: 2}, {ItemID: "D", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "D", be.ItemID)
	assert.Equal(t, 1, be.Line)

	assert.Equal(t, models.Finite(4), f.available(t, "C"))
	all, err := f.repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestBorrowBatchUnknownItem(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "C", models.Finite(4))

	_, err := f.svc.BorrowBatch(context.Background(), BorrowRequest{
		UserID: "u1", Reason: "x",
		Lines: []BorrowLine{{ItemID: "C", Quantity: 1}, {ItemID: "nope", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrItemNotFound)
	assert.Equal(t, models.Finite(4), f.available(t, "C"))
}

func TestBorrowSameItemTwiceInBatch(t *testing.T) {
	cases := []struct {
		name   string
		q1, q2 uint32
		ok     bool
	}{
		{"fits exactly", 2, 3, true},
		{"one over", 3, 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.seed(t, "E", models.Finite(5))
			res, err := f.svc.BorrowBatch(context.Background(), BorrowRequest{
				UserID: "u1", Reason: "x",
				Lines: []BorrowLine{{ItemID: "E", Quantity: tc.q1}, {ItemID: "E", Quantity: tc.q2}},
			})
			if tc.ok {
				require.NoError(t, err)
				assert.Len(t, res.TransactionIDs, 2)
				assert.Equal(t, models.Finite(5-tc.q1-tc.q2), f.available(t, "E"))
				return
			}
			require.ErrorIs(t, err, ErrInsufficientStock)
			assert.Equal(t, models.Finite(5), f.available(t, "E"))
		})
	}
}

func TestBorrowRequestValidation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", models.Finite(5))
	ctx := context.Background()

	bad := []BorrowRequest{
		{Reason: "x", Lines: []BorrowLine{{ItemID: "A", Quantity: 1}}},
		{UserID: "u1", Lines: []BorrowLine{{ItemID: "A", Quantity: 1}}},
		{UserID: "u1", Reason: "x"},
		{UserID: "u1", Reason: "x", Lines: []BorrowLine{{ItemID: "A", Quantity: 0}}},
		{UserID: "u1", Reason: "x", Lines: []BorrowLine{{ItemID: " ", Quantity: 1}}},
	}
	for _, req := range bad {
		_, err := f.svc.BorrowBatch(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	assert.Equal(t, models.Finite(5), f.available(t, "A"))
}

func TestBorrowDefaultsDueDate(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", models.Finite(1))

	req := borrowOne("u1", "A", 1)
	req.ExpectedReturnAt = time.Time{}
	req.Lines[0].ProofRef = "https://img/1.jpg"
	res, err := f.svc.BorrowBatch(context.Background(), req)
	require.NoError(t, err)

	got := f.txn(t, res.TransactionIDs[0])
	require.NotNil(t, got.ExpectedReturnAt)
	assert.True(t, got.ExpectedReturnAt.After(baseTime.Add(DefaultLoanPeriod-time.Minute)))
	assert.Equal(t, "https://img/1.jpg", got.BorrowProofRef)
	assert.Equal(t, models.ActionBorrow, got.Action)
	assert.Equal(t, "lab work", got.Reason)
}

func TestReturnClosesMostRecentLoan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(10))

	older, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 1))
	require.NoError(t, err)
	newer, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 4))
	require.NoError(t, err)
	assert.Equal(t, models.Finite(5), f.available(t, "A"))

	open, err := f.svc.FindOpenTransaction(ctx, "A", "u1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, newer.TransactionIDs[0], open.ID)

	res, err := f.svc.ReturnBatch(ctx, returnOne("u1", "A"))
	require.NoError(t, err)
	assert.Equal(t, newer.TransactionIDs[0], res.Lines[0].TransactionID)
	assert.EqualValues(t, 4, res.Lines[0].Restored)
	assert.Equal(t, models.Finite(9), f.available(t, "A"))
	assert.Equal(t, models.StatusBorrowed, f.txn(t, older.TransactionIDs[0]).Status)
}

func TestReturnBatchSameItemTwiceClaimsDistinctLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(10))

	a, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 1))
	require.NoError(t, err)
	b, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 2))
	require.NoError(t, err)

	res, err := f.svc.ReturnBatch(ctx, ReturnRequest{
		UserID: "u1",
		Lines:  []ReturnLine{{ItemID: "A"}, {ItemID: "A"}},
	})
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, b.TransactionIDs[0], res.Lines[0].TransactionID)
	assert.Equal(t, a.TransactionIDs[0], res.Lines[1].TransactionID)
	assert.Equal(t, models.Finite(10), f.available(t, "A"))
}

func TestReturnUnmatchedIsRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(3))

	// 别人借的不算
	_, err := f.svc.BorrowBatch(ctx, borrowOne("u2", "A", 1))
	require.NoError(t, err)

	res, err := f.svc.ReturnBatch(ctx, ReturnRequest{
		UserID: "u1",
		Lines:  []ReturnLine{{ItemID: "A", Condition: "scratched"}},
	})
	require.NoError(t, err)
	out := res.Lines[0]
	assert.False(t, out.Matched)
	assert.Zero(t, out.Restored)
	assert.Equal(t, models.Finite(2), f.available(t, "A"))

	got := f.txn(t, out.TransactionID)
	assert.Equal(t, models.ActionReturnUnmatched, got.Action)
	assert.EqualValues(t, 1, got.Quantity)
	assert.Equal(t, models.StatusReturned, got.Status)
	assert.Equal(t, "Force Return", got.Reason)
	assert.Equal(t, "scratched", got.Condition)
}

func TestReturnClampsToTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))

	_, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 3))
	require.NoError(t, err)

	// 管理员手动把可用量改回 5
	five := models.Finite(5)
	_, err = f.svc.EditItem(ctx, "A", EditItemInput{Available: &five})
	require.NoError(t, err)

	res, err := f.svc.ReturnBatch(ctx, returnOne("u1", "A"))
	require.NoError(t, err)
	assert.Zero(t, res.Lines[0].Restored)
	assert.EqualValues(t, 3, res.Lines[0].OverReturn)
	assert.Equal(t, models.Finite(5), f.available(t, "A"))
}

func TestReturnWhenAvailableAlreadyAboveTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))

	_, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 3))
	require.NoError(t, err)
	// 旧数据里可能出现 available > total
	require.NoError(t, f.repo.UpdateItemFields(ctx, "A", map[string]any{"available_quantity": models.Finite(7)}))

	res, err := f.svc.ReturnBatch(ctx, returnOne("u1", "A"))
	require.NoError(t, err)
	assert.Zero(t, res.Lines[0].Restored)
	assert.EqualValues(t, 3, res.Lines[0].OverReturn)
	assert.Equal(t, models.Finite(7), f.available(t, "A"))
}

func TestReturnPartlyOverTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))

	_, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 3))
	require.NoError(t, err)
	four := models.Finite(4)
	_, err = f.svc.EditItem(ctx, "A", EditItemInput{Available: &four})
	require.NoError(t, err)

	res, err := f.svc.ReturnBatch(ctx, returnOne("u1", "A"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Lines[0].Restored)
	assert.EqualValues(t, 2, res.Lines[0].OverReturn)
	assert.Equal(t, models.Finite(5), f.available(t, "A"))
}

func TestReturnAfterItemRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(2))

	b, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 1))
	require.NoError(t, err)
	require.NoError(t, f.svc.RemoveItem(ctx, "A"))

	res, err := f.svc.ReturnBatch(ctx, returnOne("u1", "A"))
	require.NoError(t, err)
	assert.True(t, res.Lines[0].Matched)
	assert.True(t, res.Lines[0].ItemMissing)
	assert.Equal(t, models.StatusReturned, f.txn(t, b.TransactionIDs[0]).Status)
}

func TestLegacySingleItemCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(2))

	res, err := f.svc.Borrow(ctx, "u1", "repair", baseTime.Add(time.Hour), BorrowLine{ItemID: "A", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, models.Finite(0), f.available(t, "A"))

	_, err = f.svc.Borrow(ctx, "u1", "repair", baseTime.Add(time.Hour), BorrowLine{ItemID: "A", Quantity: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)

	out, err := f.svc.Return(ctx, "u1", ReturnLine{ItemID: "A", Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, res.TransactionIDs[0], out.TransactionID)
	assert.Equal(t, models.Finite(2), f.available(t, "A"))
}

func TestConcurrentBorrowNoOversell(t *testing.T) {
	f := newFixture(t)
	assertNoOversell(t, f)
}

// 生产默认走 Redis gate，同样的并发下也不能超借
func TestConcurrentBorrowNoOversellRedisGate(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	f.svc = New(f.repo, gate.NewRedis(rdb, "crib:gate:test", time.Minute), Options{
		BatchWait:  5 * time.Second,
		SingleWait: 5 * time.Second,
		Now:        f.clock.Now,
	})
	assertNoOversell(t, f)
	assert.False(t, mr.Exists("crib:gate:test"))
}

func assertNoOversell(t *testing.T, f *fixture) {
	t.Helper()
	f.seed(t, "LAST", models.Finite(1))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.BorrowBatch(context.Background(), borrowOne("u1", "LAST", 1))
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrInsufficientStock):
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, short)
	assert.Equal(t, models.Finite(0), f.available(t, "LAST"))
}

func TestLockTimeout(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "A", models.Finite(1))
	f.svc = New(f.repo, f.gate, Options{BatchWait: 50 * time.Millisecond, SingleWait: 20 * time.Millisecond})

	release, err := f.gate.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.Borrow(context.Background(), "u1", "x", time.Time{}, BorrowLine{ItemID: "A", Quantity: 1})
	require.ErrorIs(t, err, ErrLockTimeout)
	_, err = f.svc.SweepOverdue(context.Background())
	require.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, models.Finite(1), f.available(t, "A"))
}

func TestSweepOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))

	due := func(d time.Duration) BorrowRequest {
		r := borrowOne("u1", "A", 1)
		r.ExpectedReturnAt = baseTime.Add(d)
		return r
	}
	late, err := f.svc.BorrowBatch(ctx, due(time.Hour))
	require.NoError(t, err)
	returned, err := f.svc.BorrowBatch(ctx, due(2*time.Hour))
	require.NoError(t, err)
	onTime, err := f.svc.BorrowBatch(ctx, due(48*time.Hour))
	require.NoError(t, err)

	// 按 LIFO 归还会先关掉 onTime，这里直接改库模拟中间那笔已归还
	require.NoError(t, f.repo.UpdateTransactionFields(ctx, returned.TransactionIDs[0], map[string]any{
		"status": string(models.StatusReturned),
	}))

	f.clock.Set(baseTime.Add(3 * time.Hour))
	n, err := f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.StatusOverdue, f.txn(t, late.TransactionIDs[0]).Status)
	assert.Equal(t, models.StatusReturned, f.txn(t, returned.TransactionIDs[0]).Status)
	assert.Equal(t, models.StatusBorrowed, f.txn(t, onTime.TransactionIDs[0]).Status)

	// 逾期的也能被归还匹配
	active, err := f.svc.ListActiveBorrows(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, onTime.TransactionIDs[0], active[0].TransactionID)
	assert.Equal(t, models.StatusOverdue, active[1].Status)

	n, err = f.svc.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// failingStore 在第 failOn 次 CreateTransaction 时报错，用来验证落库阶段整体回滚
type failingStore struct {
	db.Store
	calls  *int
	failOn int
}

func (s *failingStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	*s.calls++
	if *s.calls == s.failOn {
		return errors.New("disk full")
	}
	return s.Store.CreateTransaction(ctx, t)
}

func (s *failingStore) Atomic(ctx context.Context, fn func(tx db.Store) error) error {
	return s.Store.Atomic(ctx, func(tx db.Store) error {
		return fn(&failingStore{Store: tx, calls: s.calls, failOn: s.failOn})
	})
}

func TestApplyFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))
	f.seed(t, "B", models.Finite(5))

	calls := 0
	svc := New(&failingStore{Store: f.repo, calls: &calls, failOn: 2}, f.gate, Options{})
	_, err := svc.BorrowBatch(ctx, BorrowRequest{
		UserID: "u1", Reason: "x",
		Lines: []BorrowLine{{ItemID: "A", Quantity: 2}, {ItemID: "B", Quantity: 2}},
	})
	require.Error(t, err)
	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, PhaseApplying, be.Phase)
	assert.Equal(t, "B", be.ItemID)

	assert.Equal(t, models.Finite(5), f.available(t, "A"))
	assert.Equal(t, models.Finite(5), f.available(t, "B"))
	all, err := f.repo.ListTransactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
