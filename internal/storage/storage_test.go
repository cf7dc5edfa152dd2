package storage

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

func (m *memoryStore) Append(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, limit)
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func TestNewEntry(t *testing.T) {
	t.Parallel()

	e := events.New(events.CookiesMoved, events.CookiePositions{
		FirstCookiePosition: 2, LastCookiePosition: 1,
		FirstBurnedCookiePosition: -1, LastBurnedCookiePosition: -1,
	})

	entry, err := NewEntry(e)
	require.NoError(t, err)
	require.Equal(t, "COOKIES_MOVED", entry.Event)
	require.Equal(t, e.Timestamp, entry.RecordedAt)
	require.JSONEq(t, `{"firstCookiePosition":2,"lastCookiePosition":1,"firstBurnedCookiePosition":-1,"lastBurnedCookiePosition":-1}`, string(entry.Payload))

	_, err = NewEntry(events.New(events.Error, func() {}))
	require.Error(t, err)
}

func TestJournalRun(t *testing.T) {
	t.Parallel()

	store := &memoryStore{}
	j := NewJournal(store, zap.NewNop())

	b := events.NewBroadcaster(zap.NewNop())
	id, feed, _ := b.Subscribe()

	done := make(chan struct{})
	go func() {
		j.Run(context.Background(), feed)
		close(done)
	}()

	b.Publish(events.New(events.MachineOn, true))
	b.Publish(events.New(events.OvenTemperatureChange, 30.0))
	b.Publish(events.New(events.Warning, "cookies will burn"))

	require.Eventually(t, func() bool { return store.count() == 3 }, time.Second, time.Millisecond)

	recent, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, "WARNING", recent[0].Event)
	require.JSONEq(t, `"cookies will burn"`, string(recent[0].Payload))

	b.Unsubscribe(id)
	<-done

	require.NoError(t, j.Close())
	require.True(t, store.closed)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), &config.Config{})
	require.ErrorIs(t, err, ErrJournalDisabled)

	_, err = Open(context.Background(), &config.Config{Journal: config.JournalConfig{Driver: "mongo"}})
	require.Error(t, err)

	store, err := Open(context.Background(), &config.Config{Journal: config.JournalConfig{
		Driver:     config.JournalDriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "nested", "journal.db"),
	}})
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	store, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := events.New(events.CookieCooked, i+1)
		e.Timestamp = base.Add(time.Duration(i) * time.Second)
		entry, err := NewEntry(e)
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, entry))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "5", string(recent[0].Payload))
	require.Equal(t, "4", string(recent[1].Payload))
	require.True(t, recent[0].RecordedAt.Equal(base.Add(4*time.Second)))
	require.NoError(t, store.Close())

	// The journal survives a restart.
	reopened, err := NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, path, reopened.Path())
}

// TestPostgresStore needs a reachable server, e.g.
// BISCUIT_TEST_DATABASE_HOST=localhost BISCUIT_TEST_DATABASE_PORT=5432.
func TestPostgresStore(t *testing.T) {
	host := os.Getenv("BISCUIT_TEST_DATABASE_HOST")
	if host == "" {
		t.Skip("BISCUIT_TEST_DATABASE_HOST not set")
	}

	port, err := strconv.Atoi(os.Getenv("BISCUIT_TEST_DATABASE_PORT"))
	if err != nil {
		port = 5432
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, config.DatabaseConfig{
		Host:           host,
		Port:           port,
		Database:       "biscuit",
		User:           "biscuit",
		Password:       os.Getenv("BISCUIT_TEST_DATABASE_PASSWORD"),
		MaxConnections: 2,
	})
	require.NoError(t, err)
	defer store.Close()

	entry, err := NewEntry(events.New(events.OvenHeated, true))
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, entry))

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, entry.ID, recent[0].ID)
}
