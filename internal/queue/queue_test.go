package queue

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/tally/internal/localstore"
	"github.com/marcus/tally/internal/models"
)

func setupStorage(t *testing.T, opts ...localstore.Option) *localstore.Store {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	s, err := localstore.OpenConn(conn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertOp(tempID string) Operation {
	return Operation{
		Table:   models.TableTransactions,
		Action:  ActionInsert,
		TempID:  tempID,
		Payload: models.Row{"amount": "50", "category": "food"},
	}
}

func TestEnqueueAssignsIDAndPersists(t *testing.T) {
	storage := setupStorage(t)
	q := Load(storage)

	op, err := q.Enqueue(insertOp("temp_1_a"))
	require.NoError(t, err)
	assert.NotEmpty(t, op.ID)
	assert.False(t, op.CreatedAt.IsZero())
	assert.Equal(t, 1, q.PendingCount())

	reloaded := Load(storage)
	ops := reloaded.Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, op.ID, ops[0].ID)
	assert.Equal(t, "temp_1_a", ops[0].TempID)
	assert.Equal(t, "food", ops[0].Payload["category"])
}

func TestOwnerIsPersisted(t *testing.T) {
	storage := setupStorage(t)
	op := insertOp("temp_1_a")
	op.Owner = "user-1"
	_, err := Load(storage).Enqueue(op)
	require.NoError(t, err)

	ops := Load(storage).Operations()
	require.Len(t, ops, 1)
	assert.Equal(t, "user-1", ops[0].Owner)
}

func TestEnqueueRejectsMalformedOperations(t *testing.T) {
	q := Load(setupStorage(t))

	cases := []Operation{
		{Table: models.TableTransactions, Action: ActionInsert, Payload: models.Row{}},
		{Table: models.TableTransactions, Action: ActionUpdate, Payload: models.Row{}},
		{Table: models.TableTransactions, Action: ActionUpdate, EntityID: "x"},
		{Table: models.TableTransactions, Action: ActionDelete},
		{Table: models.TableTransactions, Action: ActionDelete, EntityID: "x", Payload: models.Row{}},
		{Table: "budgets", Action: ActionDelete, EntityID: "x"},
		{Table: models.TableTransactions, Action: "upsert", EntityID: "x"},
	}
	for i, op := range cases {
		_, err := q.Enqueue(op)
		assert.True(t, errors.Is(err, ErrInvalidOperation), "case %d: %v", i, err)
	}
	assert.Equal(t, 0, q.PendingCount())
}

func TestOrderIsPreserved(t *testing.T) {
	q := Load(setupStorage(t))
	first, _ := q.Enqueue(insertOp("temp_1_a"))
	second, _ := q.Enqueue(Operation{Table: models.TableTransactions, Action: ActionUpdate, EntityID: "temp_1_a", Payload: models.Row{"amount": "60"}})
	third, _ := q.Enqueue(Operation{Table: models.TableReminders, Action: ActionDelete, EntityID: "r1"})

	ops := q.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, []string{first.ID, second.ID, third.ID}, []string{ops[0].ID, ops[1].ID, ops[2].ID})
}

func TestResolveRemovesAppliedAndRewritesRest(t *testing.T) {
	storage := setupStorage(t)
	q := Load(storage)
	ins, _ := q.Enqueue(insertOp("temp_1_a"))
	upd, _ := q.Enqueue(Operation{Table: models.TableTransactions, Action: ActionUpdate, EntityID: "temp_1_a", Payload: models.Row{"amount": "60"}})
	link, _ := q.Enqueue(Operation{Table: models.TableInvestments, Action: ActionUpdate, EntityID: "inv1", Payload: models.Row{"transaction_id": "temp_1_a", "ja_investido": true}})

	q.Resolve([]string{ins.ID}, map[string]string{"temp_1_a": "42"})

	ops := Load(storage).Operations()
	require.Len(t, ops, 2)
	assert.Equal(t, upd.ID, ops[0].ID)
	assert.Equal(t, "42", ops[0].EntityID)
	assert.Equal(t, link.ID, ops[1].ID)
	assert.Equal(t, "42", ops[1].Payload["transaction_id"])
	assert.Equal(t, true, ops[1].Payload["ja_investido"])
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	op := Operation{Action: ActionUpdate, EntityID: "inv1", Payload: models.Row{"transaction_id": "temp_x"}}
	out := Rewrite(op, map[string]string{"temp_x": "7"})
	assert.Equal(t, "7", out.Payload["transaction_id"])
	assert.Equal(t, "temp_x", op.Payload["transaction_id"])
}

func TestClear(t *testing.T) {
	storage := setupStorage(t)
	q := Load(storage)
	q.Enqueue(insertOp("temp_1_a"))
	q.Clear()
	assert.Equal(t, 0, q.PendingCount())
	assert.Equal(t, 0, Load(storage).PendingCount())

	raw, ok, err := storage.Get(StorageKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[]", string(raw))
}

func TestCorruptPersistedQueueStartsEmpty(t *testing.T) {
	storage := setupStorage(t)
	require.NoError(t, storage.Set(StorageKey, []byte("{oops")))
	assert.Equal(t, 0, Load(storage).PendingCount())
}

func TestStorageFullRunsHook(t *testing.T) {
	storage := setupStorage(t, localstore.WithQuota(64))
	purged := 0
	q := Load(storage, WithStorageFullHook(func() { purged++ }))

	_, err := q.Enqueue(Operation{
		Table:   models.TableTransactions,
		Action:  ActionInsert,
		TempID:  "temp_1_a",
		Payload: models.Row{"description": "a description long enough to blow the tiny quota"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	assert.Equal(t, 1, q.PendingCount(), "in-memory queue still holds the operation")
	assert.Equal(t, 1, q.PersistFailures())
}

func TestInsertIsPlacedAheadOfDependents(t *testing.T) {
	q := Load(setupStorage(t))

	_, err := q.Enqueue(Operation{Table: models.TableTransactions, Action: ActionUpdate, EntityID: "perm-1", Payload: models.Row{"category": "x"}})
	require.NoError(t, err)
	_, err = q.Enqueue(Operation{Table: models.TableInvestments, Action: ActionUpdate, EntityID: "inv-1", Payload: models.Row{"transaction_id": "temp_9_z"}})
	require.NoError(t, err)
	_, err = q.Enqueue(insertOp("temp_9_z"))
	require.NoError(t, err)

	ops := q.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, "perm-1", ops[0].EntityID)
	assert.Equal(t, ActionInsert, ops[1].Action, "insert moves ahead of the update referencing it")
	assert.Equal(t, "inv-1", ops[2].EntityID)
}

func TestHasTargetAndDiscard(t *testing.T) {
	storage := setupStorage(t)
	q := Load(storage)
	stored, err := q.Enqueue(Operation{Table: models.TableReminders, Action: ActionDelete, EntityID: "r-1"})
	require.NoError(t, err)

	assert.True(t, q.HasTarget("r-1"))
	assert.False(t, q.HasTarget("r-2"))
	assert.False(t, q.HasTarget(""))

	_, ok := q.Discard("missing")
	assert.False(t, ok)
	op, ok := q.Discard(stored.ID)
	require.True(t, ok)
	assert.Equal(t, "r-1", op.EntityID)
	assert.False(t, q.HasTarget("r-1"))
	assert.Equal(t, 0, Load(storage).PendingCount())
}
