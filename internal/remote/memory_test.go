package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/tally/internal/models"
)

func TestMemoryCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	inserted, err := m.Insert(ctx, models.TableReminders, models.Row{"id": "temp_1_x", "user_id": "u1", "title": "rent"})
	require.NoError(t, err)
	assert.NotEqual(t, "temp_1_x", inserted.ID())
	assert.NotEmpty(t, inserted["created_at"])

	m.Seed(models.TableReminders, models.Row{"user_id": "u2", "title": "other"})

	rows, err := m.Select(ctx, models.TableReminders, "u1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "rent", rows[0]["title"])

	require.NoError(t, m.Update(ctx, models.TableReminders, inserted.ID(), models.Row{"is_paid": true}))
	assert.Equal(t, true, m.Rows(models.TableReminders)[0]["is_paid"])

	assert.ErrorIs(t, m.Update(ctx, models.TableReminders, "nope", models.Row{}), ErrNotFound)

	require.NoError(t, m.Delete(ctx, models.TableReminders, inserted.ID()))
	require.NoError(t, m.Delete(ctx, models.TableReminders, inserted.ID()))
	assert.Len(t, m.Rows(models.TableReminders), 1)
}

func TestMemoryFailureInjection(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	m.FailNext(MethodUpdate, boom)
	_, err := m.Insert(ctx, models.TableTransactions, models.Row{"user_id": "u"})
	require.NoError(t, err, "insert is not targeted by an update failure")

	assert.ErrorIs(t, m.Update(ctx, models.TableTransactions, "x", models.Row{}), boom)

	m.SetDown(true)
	_, err = m.Select(ctx, models.TableTransactions, "u")
	assert.ErrorIs(t, err, ErrUnavailable)
	m.SetDown(false)

	_, err = m.Select(ctx, models.TableTransactions, "u")
	require.NoError(t, err)

	assert.Len(t, m.CallsOf(MethodSelect), 2)
	assert.Len(t, m.Calls(), 4)
}

func TestMemoryHookCanBlock(t *testing.T) {
	m := NewMemory()
	release := make(chan struct{})
	entered := make(chan Call, 1)
	m.SetHook(func(ctx context.Context, c Call) error {
		entered <- c
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := m.Insert(context.Background(), models.TableInvestments, models.Row{"user_id": "u"})
		done <- err
	}()

	c := <-entered
	assert.Equal(t, MethodInsert, c.Method)
	assert.Empty(t, m.Rows(models.TableInvestments))
	close(release)
	require.NoError(t, <-done)
	assert.Len(t, m.Rows(models.TableInvestments), 1)
}
