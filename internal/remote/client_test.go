package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/tally/internal/api"
	"github.com/marcus/tally/internal/models"
	"github.com/marcus/tally/internal/serverdb"
)

func newTestServer(t *testing.T) (*httptest.Server, string, string) {
	t.Helper()
	store, err := serverdb.Open(":memory:")
	require.NoError(t, err)
	srv, err := api.NewServer(api.Config{}, store)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		store.Close()
	})

	u, err := store.CreateUser("client@test.com")
	require.NoError(t, err)
	key, _, err := store.GenerateAPIKey(u.ID, "client", nil)
	require.NoError(t, err)
	return ts, u.ID, key
}

func TestClientRoundTrip(t *testing.T) {
	ts, uid, key := newTestServer(t)
	c := New(ts.URL, key)
	ctx := context.Background()

	health, err := c.HealthCheck(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)

	inserted, err := c.Insert(ctx, models.TableTransactions, models.Row{
		"id":       "temp_1_abcdefghi",
		"user_id":  uid,
		"type":     "expense",
		"amount":   "42.10",
		"category": "food",
		"date":     "2026-03-02T00:00:00Z",
	})
	require.NoError(t, err)
	id := inserted.ID()
	assert.False(t, models.IsTempID(id))

	require.NoError(t, c.Update(ctx, models.TableTransactions, id, models.Row{"description": "lunch"}))

	rows, err := c.Select(ctx, models.TableTransactions, uid)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "lunch", rows[0]["description"])

	tx, err := models.FromRow[models.Transaction](rows[0])
	require.NoError(t, err)
	assert.Equal(t, "42.1", tx.Amount.String())

	require.NoError(t, c.Delete(ctx, models.TableTransactions, id))
	rows, err = c.Select(ctx, models.TableTransactions, uid)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClientCurrentUser(t *testing.T) {
	ts, uid, key := newTestServer(t)

	u, err := New(ts.URL, key).CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uid, u.ID)
	assert.Equal(t, "client@test.com", u.Email)

	_, err = New(ts.URL, "").CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClientErrorClasses(t *testing.T) {
	ts, _, key := newTestServer(t)
	ctx := context.Background()

	_, err := New(ts.URL, "tally_live_wrong").Select(ctx, models.TableReminders, "x")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrRejected)

	err = New(ts.URL, key).Update(ctx, models.TableReminders, "missing", models.Row{"is_paid": true})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = New(ts.URL, key).Insert(ctx, models.TableReminders, models.Row{"nope": 1})
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusBadRequest, rejected.Status)
	assert.ErrorIs(t, err, ErrRejected)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestClientUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(url, "k").Select(context.Background(), models.TableTransactions, "u")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestClientGatewayErrorsAreUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	err := New(ts.URL, "k").Delete(context.Background(), models.TableInvestments, "1")
	assert.ErrorIs(t, err, ErrUnavailable)
}
