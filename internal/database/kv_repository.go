package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/quizbox/internal/storage"
)

// DefaultPollInterval is how often watchers look for foreign writes
const DefaultPollInterval = 2 * time.Second

type kvRow struct {
	Key       string    `db:"store_key"`
	Value     string    `db:"value"`
	Version   int64     `db:"version"`
	Origin    string    `db:"origin"`
	UpdatedAt time.Time `db:"updated_at"`
}

// KVRepository stores key-value entries in the kv_store table.
// It implements storage.KV; watching is done by polling the version column.
type KVRepository struct {
	db           *sqlx.DB
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewKVRepository creates a new repository instance
func NewKVRepository(db *sqlx.DB, pollInterval time.Duration, logger *slog.Logger) *KVRepository {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KVRepository{db: db, pollInterval: pollInterval, logger: logger}
}

var _ storage.KV = (*KVRepository)(nil)

// Get returns the entry stored under key
func (r *KVRepository) Get(ctx context.Context, key string) (storage.Entry, error) {
	var row kvRow
	query := r.db.Rebind(`SELECT store_key, value, version, origin, updated_at FROM kv_store WHERE store_key = ?`)
	err := r.db.GetContext(ctx, &row, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Entry{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Entry{}, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return storage.Entry{
		Key:       row.Key,
		Value:     []byte(row.Value),
		Version:   row.Version,
		Origin:    row.Origin,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// Put writes value under key, checking expectVersion unless it is storage.AnyVersion
func (r *KVRepository) Put(ctx context.Context, key string, value []byte, expectVersion int64, origin string) (int64, error) {
	now := time.Now().UTC()

	switch {
	case expectVersion == storage.AnyVersion:
		return r.upsert(ctx, key, value, origin, now)

	case expectVersion == 0:
		query := r.db.Rebind(`
			INSERT INTO kv_store (store_key, value, version, origin, updated_at)
			VALUES (?, ?, 1, ?, ?)
			ON CONFLICT (store_key) DO NOTHING
		`)
		result, err := r.db.ExecContext(ctx, query, key, string(value), origin, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s: %w", key, err)
		}
		return 1, checkAffected(result)

	default:
		query := r.db.Rebind(`
			UPDATE kv_store SET
				value = ?,
				version = version + 1,
				origin = ?,
				updated_at = ?
			WHERE store_key = ? AND version = ?
		`)
		result, err := r.db.ExecContext(ctx, query, string(value), origin, now, key, expectVersion)
		if err != nil {
			return 0, fmt.Errorf("failed to update %s: %w", key, err)
		}
		return expectVersion + 1, checkAffected(result)
	}
}

func (r *KVRepository) upsert(ctx context.Context, key string, value []byte, origin string, now time.Time) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO kv_store (store_key, value, version, origin, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (store_key) DO UPDATE SET
			value = excluded.value,
			version = kv_store.version + 1,
			origin = excluded.origin,
			updated_at = excluded.updated_at
	`), key, string(value), origin, now)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert %s: %w", key, err)
	}

	var version int64
	if err := tx.GetContext(ctx, &version, tx.Rebind(`SELECT version FROM kv_store WHERE store_key = ?`), key); err != nil {
		return 0, fmt.Errorf("failed to read version of %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", key, err)
	}
	return version, nil
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

// Watch polls key and calls fn whenever its version moves forward
func (r *KVRepository) Watch(key string, fn func(storage.Entry)) func() {
	ctx, cancel := context.WithCancel(context.Background())

	var last int64
	if e, err := r.Get(ctx, key); err == nil {
		last = e.Version
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e, err := r.Get(ctx, key)
				if errors.Is(err, storage.ErrNotFound) || ctx.Err() != nil {
					continue
				}
				if err != nil {
					r.logger.Warn("kv watch poll failed", "key", key, "error", err)
					continue
				}
				if e.Version > last {
					last = e.Version
					fn(e)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}
