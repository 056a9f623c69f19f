package cache

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcus/tally/internal/localstore"
)

type item struct {
	ID     string `json:"id"`
	Amount int    `json:"amount"`
}

func setupStorage(t *testing.T, opts ...localstore.Option) *localstore.Store {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	s, err := localstore.OpenConn(conn, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// clock is a settable time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestReadWriteRoundTrip(t *testing.T) {
	c := New(setupStorage(t))

	var got []item
	assert.False(t, c.Read("transactions", &got))

	c.Write("transactions", []item{{ID: "a", Amount: 5}})
	require.True(t, c.Read("transactions", &got))
	assert.Equal(t, []item{{ID: "a", Amount: 5}}, got)
}

func TestExpiry(t *testing.T) {
	storage := setupStorage(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{t: now.Add(-25 * time.Hour)}
	c := New(storage, WithClock(clk.now))

	c.Write("old", []item{{ID: "old"}})
	clk.t = now.Add(-1 * time.Hour)
	c.Write("fresh", []item{{ID: "fresh"}})
	clk.t = now

	var got []item
	assert.False(t, c.Read("old", &got), "25h old entry must be absent")
	_, present, err := storage.Get(KeyPrefix + "old")
	require.NoError(t, err)
	assert.False(t, present, "expired entry should be deleted on read")

	require.True(t, c.Read("fresh", &got), "1h old entry must be returned")
	assert.Equal(t, []item{{ID: "fresh"}}, got)

	age, ok := c.Age("fresh")
	require.True(t, ok)
	assert.Equal(t, time.Hour, age)
}

func TestCorruptEntryIsAbsent(t *testing.T) {
	storage := setupStorage(t)
	c := New(storage)
	require.NoError(t, storage.Set(KeyPrefix+"bad", []byte("{not json")))
	require.NoError(t, storage.Set(KeyPrefix+"shape", []byte(`{"data":"text","timestamp":`+
		"9999999999999"+`}`)))

	var got []item
	assert.False(t, c.Read("bad", &got))
	assert.False(t, c.Read("shape", &got))
}

func TestPurgeExpiredOnlyTouchesCacheNamespace(t *testing.T) {
	storage := setupStorage(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{t: now.Add(-48 * time.Hour)}
	c := New(storage, WithClock(clk.now))

	c.Write("a", 1)
	c.Write("b", 2)
	clk.t = now
	c.Write("c", 3)
	require.NoError(t, storage.Set("finance_offline_queue", []byte("[]")))

	assert.Equal(t, 2, c.PurgeExpired())

	keys, err := storage.Keys("")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{KeyPrefix + "c", "finance_offline_queue"}, keys)
}

func TestWriteWhenFullPurgesAndDrops(t *testing.T) {
	storage := setupStorage(t, localstore.WithQuota(200))
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := &clock{t: now.Add(-30 * time.Hour)}
	c := New(storage, WithClock(clk.now))

	c.Write("stale", make([]int, 40))
	clk.t = now

	c.Write("big", make([]int, 60))

	var got []int
	assert.False(t, c.Read("big", &got), "write that hit the quota is not retried")
	_, present, err := storage.Get(KeyPrefix + "stale")
	require.NoError(t, err)
	assert.False(t, present, "expired entries are purged when storage is full")

	c.Write("big", make([]int, 60))
	assert.True(t, c.Read("big", &got), "a later write succeeds once space was freed")
}
