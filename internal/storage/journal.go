package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Wideyedwonderer/buscuit-maker/internal/config"
	"github.com/Wideyedwonderer/buscuit-maker/internal/events"
	"go.uber.org/zap"
)

// ErrJournalDisabled is returned by Open when no driver is configured.
var ErrJournalDisabled = errors.New("event journal disabled")

const (
	appendTimeout = 5 * time.Second

	DefaultRecentLimit = 50
	MaxRecentLimit     = 1000
)

// Store is an append-only event log. Entries are never read back into the
// machine.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Open returns the store selected by cfg.Journal.Driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Journal.Driver {
	case "":
		return nil, ErrJournalDisabled
	case config.JournalDriverPostgres:
		return NewPostgresStore(ctx, cfg.Database)
	case config.JournalDriverSQLite:
		return NewSQLiteStore(ctx, cfg.Journal.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown journal driver: %q", cfg.Journal.Driver)
	}
}

// Journal writes every event from a broadcaster subscription into a Store.
type Journal struct {
	store  Store
	logger *zap.Logger
}

func NewJournal(store Store, logger *zap.Logger) *Journal {
	return &Journal{store: store, logger: logger}
}

// Run appends events from feed until it closes or ctx is done. Write
// failures are logged and skipped.
func (j *Journal) Run(ctx context.Context, feed <-chan events.Event) {
	j.logger.Info("Event journal started")
	defer j.logger.Info("Event journal stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-feed:
			if !ok {
				return
			}
			if err := j.append(ctx, e); err != nil {
				j.logger.Error("Failed to journal event",
					zap.String("event", string(e.Name)),
					zap.Error(err))
			}
		}
	}
}

func (j *Journal) append(ctx context.Context, e events.Event) error {
	entry, err := NewEntry(e)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	return j.store.Append(ctx, entry)
}

// Recent returns up to limit entries, newest first. The limit is clamped to
// [1, MaxRecentLimit].
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	return j.store.Recent(ctx, limit)
}

func (j *Journal) Close() error {
	return j.store.Close()
}
