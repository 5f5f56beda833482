package ledger

import (
	"context"
	"testing"
	"time"

	"Gin_postgres_redis_tool_crib/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	it, err := f.svc.AddItem(ctx, AddItemInput{ID: "T001", Name: "Hammer", Total: models.Finite(4), Unit: "pcs"})
	require.NoError(t, err)
	assert.Equal(t, models.Finite(4), it.AvailableQuantity)
	assert.Equal(t, models.Finite(4), f.available(t, "T001"))

	_, err = f.svc.AddItem(ctx, AddItemInput{ID: "T001", Name: "Other"})
	require.ErrorIs(t, err, ErrDuplicateItemID)

	_, err = f.svc.AddItem(ctx, AddItemInput{ID: "", Name: "x"})
	require.ErrorIs(t, err, ErrInvalidRequest)

	un, err := f.svc.AddItem(ctx, AddItemInput{ID: "T002", Name: "Cable ties", Total: models.Unlimited})
	require.NoError(t, err)
	assert.True(t, un.AvailableQuantity.IsUnlimited())
	assert.True(t, f.available(t, "T002").IsUnlimited())
}

func TestEditItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))

	name := "Drill"
	total := models.Finite(8)
	it, err := f.svc.EditItem(ctx, "A", EditItemInput{Name: &name, Total: &total})
	require.NoError(t, err)
	assert.Equal(t, "Drill", it.Name)
	assert.Equal(t, models.Finite(8), it.TotalQuantity)
	assert.Equal(t, models.Finite(5), it.AvailableQuantity)

	unl := models.Unlimited
	_, err = f.svc.EditItem(ctx, "A", EditItemInput{Total: &unl})
	require.NoError(t, err)
	assert.True(t, f.available(t, "A").IsUnlimited())

	// 可用量超过总量时截到总量
	two, nine := models.Finite(2), models.Finite(9)
	f.seed(t, "C", models.Finite(3))
	it, err = f.svc.EditItem(ctx, "C", EditItemInput{Total: &two, Available: &nine})
	require.NoError(t, err)
	assert.Equal(t, models.Finite(2), it.AvailableQuantity)
	assert.Equal(t, models.Finite(2), f.available(t, "C"))

	_, err = f.svc.EditItem(ctx, "missing", EditItemInput{Name: &name})
	require.ErrorIs(t, err, ErrItemNotFound)

	empty := " "
	_, err = f.svc.EditItem(ctx, "A", EditItemInput{Name: &empty})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(1))

	require.NoError(t, f.svc.RemoveItem(ctx, "A"))
	require.ErrorIs(t, f.svc.RemoveItem(ctx, "A"), ErrItemNotFound)

	items, err := f.svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListItemsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(1))
	f.seed(t, "Z", models.Finite(0))

	_, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 1))
	require.NoError(t, err)

	items, err := f.svc.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, models.ItemStatusBorrowed, it.Status, it.ID)
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "A", models.Finite(5))

	a, err := f.svc.BorrowBatch(ctx, borrowOne("u1", "A", 1))
	require.NoError(t, err)
	b, err := f.svc.BorrowBatch(ctx, borrowOne("u2", "A", 1))
	require.NoError(t, err)

	all, err := f.svc.ListTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, b.TransactionIDs[0], all[0].ID)
	assert.Equal(t, a.TransactionIDs[0], all[1].ID)
}

func TestAdminItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "DRILL-1", models.Finite(3))
	f.seed(t, "SAW-1", models.Finite(2))
	f.seed(t, "TAPE", models.Unlimited)

	late := borrowOne("u1", "DRILL-1", 2)
	late.ExpectedReturnAt = baseTime.Add(-24 * time.Hour)
	_, err := f.svc.BorrowBatch(ctx, late)
	require.NoError(t, err)
	_, err = f.svc.BorrowBatch(ctx, borrowOne("u2", "DRILL-1", 1))
	require.NoError(t, err)

	res, err := f.svc.AdminItems(ctx, AdminItemsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)

	res, err = f.svc.AdminItems(ctx, AdminItemsQuery{Status: "borrowed"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	row := res.Items[0]
	assert.Equal(t, "DRILL-1", row.ID)
	assert.Equal(t, 2, row.OpenLoans)
	assert.EqualValues(t, 3, row.UnitsOut)
	assert.True(t, row.Overdue)
	assert.ElementsMatch(t, []string{"u1", "u2"}, row.BorrowerIDs)
	assert.Equal(t, models.ItemStatusBorrowed, row.Status)

	res, err = f.svc.AdminItems(ctx, AdminItemsQuery{Status: "overdue"})
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)

	res, err = f.svc.AdminItems(ctx, AdminItemsQuery{Q: "saw"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "SAW-1", res.Items[0].ID)

	res, err = f.svc.AdminItems(ctx, AdminItemsQuery{Status: "available", Page: 1, Size: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Items, 1)

	res, err = f.svc.AdminItems(ctx, AdminItemsQuery{Page: 9})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestUsersAndPin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FindUser(ctx, "65001")
	require.ErrorIs(t, err, ErrUserNotFound)

	u, err := f.svc.UpsertUser(ctx, ProfileInput{UserID: "65001", DisplayName: "Somchai", Department: "ME"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, u.Role)

	require.ErrorIs(t, f.svc.SetUserPin(ctx, "65001", "12"), ErrInvalidRequest)
	require.ErrorIs(t, f.svc.SetUserPin(ctx, "65001", "12ab"), ErrInvalidRequest)
	require.ErrorIs(t, f.svc.SetUserPin(ctx, "nobody", "1234"), ErrUserNotFound)
	require.NoError(t, f.svc.SetUserPin(ctx, "65001", "1234"))

	require.NoError(t, f.repo.UpdateUserFields(ctx, "65001", map[string]any{"role": models.RoleAdmin}))

	// 改资料不影响 role / pin
	u, err = f.svc.UpsertUser(ctx, ProfileInput{UserID: "65001", DisplayName: "Somchai K.", Cohort: "2024"})
	require.NoError(t, err)
	assert.Equal(t, "Somchai K.", u.DisplayName)

	got, err := f.svc.FindUser(ctx, "65001")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
	assert.True(t, got.HasPin())
	assert.NotEqual(t, "1234", got.PinHash)

	require.NoError(t, f.svc.VerifyPin(ctx, "65001", "1234"))
	require.ErrorIs(t, f.svc.VerifyPin(ctx, "65001", "9999"), ErrPinMismatch)

	_, err = f.svc.UpsertUser(ctx, ProfileInput{UserID: "65002"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestImportItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "T001", models.Finite(1))

	rep, err := f.svc.ImportItems(ctx, []models.Item{
		{ID: "T001", Name: "Drill", TotalQuantity: models.Finite(9), AvailableQuantity: models.Finite(9)},
		{ID: "T002", Name: "Meter", TotalQuantity: models.Finite(3), AvailableQuantity: models.Finite(1)},
		{ID: "T003", Name: "Ties", TotalQuantity: models.Unlimited, AvailableQuantity: models.Finite(0)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"T002", "T003"}, rep.Created)
	assert.Equal(t, []string{"T001"}, rep.Skipped)

	assert.Equal(t, models.Finite(1), f.available(t, "T001"))
	assert.Equal(t, models.Finite(1), f.available(t, "T002"))
	assert.True(t, f.available(t, "T003").IsUnlimited())
}
