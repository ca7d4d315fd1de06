package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/julianstephens/planmate/internal/prefs"
)

func (s *Store) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	if s.db == nil {
		return "", false, prefs.ErrClosed
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM preferences WHERE namespace = $1 AND key = $2", namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s/%s: %w", namespace, key, err)
	}
	return value, true, nil
}

func (s *Store) All(ctx context.Context, namespace string) (map[string]string, error) {
	if s.db == nil {
		return nil, prefs.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM preferences WHERE namespace = $1", namespace)
	if err != nil {
		return nil, fmt.Errorf("reading namespace %s: %w", namespace, err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) Apply(ctx context.Context, ops []prefs.Op) error {
	if s.db == nil {
		return prefs.ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, op := range ops {
		switch op.Kind {
		case prefs.OpPut:
			_, err = tx.ExecContext(ctx, `INSERT INTO preferences (namespace, key, value, updated_at) VALUES ($1, $2, $3, now())
				ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
				op.Namespace, op.Key, op.Value)
		case prefs.OpRemove:
			_, err = tx.ExecContext(ctx, "DELETE FROM preferences WHERE namespace = $1 AND key = $2", op.Namespace, op.Key)
		case prefs.OpRemovePrefix:
			_, err = tx.ExecContext(ctx, "DELETE FROM preferences WHERE namespace = $1 AND left(key, char_length($2::text)) = $2::text",
				op.Namespace, op.Key)
		default:
			err = fmt.Errorf("unknown op kind %d", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("applying %s/%s: %w", op.Namespace, op.Key, err)
		}
	}
	return tx.Commit()
}
