package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jask/flowbit/internal/database"
)

// StorageRepo is a persistent key/value area, the terminal counterpart of browser localStorage.
type StorageRepo struct {
	db *sql.DB
}

func NewStorageRepo(db *sql.DB) *StorageRepo { return &StorageRepo{db: db} }

// Get returns the value stored under key. ok is false when the key is absent.
func (r *StorageRepo) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	err = r.db.QueryRowContext(ctx, `SELECT value FROM local_storage WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *StorageRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO local_storage(key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
	 value=excluded.value,
	 updated_at=excluded.updated_at;
	`, key, value, database.Now())
	return err
}

// Remove deletes keys in one transaction. Absent keys are not an error.
func (r *StorageRepo) Remove(ctx context.Context, keys ...string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, `DELETE FROM local_storage WHERE key = ?`, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *StorageRepo) List(ctx context.Context) ([]StorageEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value, updated_at FROM local_storage ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StorageEntry
	for rows.Next() {
		var e StorageEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
