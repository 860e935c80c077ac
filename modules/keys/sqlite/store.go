package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/livecap/livecap/internal/keys"
)

// timeLayout is how expiry and creation times are stored. SQLite has no
// native time type; ISO strings sort correctly and survive round trips.
const timeLayout = "2006-01-02T15:04:05Z07:00"

// keyStore implements keys.Store backed by SQLite.
type keyStore struct {
	db *sql.DB
}

func (s *keyStore) Validate(ctx context.Context, key string) (keys.Validation, error) {
	rec, err := s.Get(ctx, key)
	if errors.Is(err, keys.ErrNotFound) {
		return keys.Validation{Reason: keys.ReasonUnknown}, nil
	}
	if err != nil {
		return keys.Validation{}, err
	}

	if !rec.Active {
		return keys.Validation{Reason: keys.ReasonRevoked}, nil
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()) {
		return keys.Validation{Reason: keys.ReasonExpired}, nil
	}

	return keys.Validation{Valid: true, Owner: rec.Owner, ExpiresAt: rec.ExpiresAt}, nil
}

func (s *keyStore) List(ctx context.Context) ([]keys.Key, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, key, owner, created_at, expires_at, active FROM api_keys ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("keys.sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []keys.Key
	for rows.Next() {
		rec, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *keyStore) Get(ctx context.Context, key string) (keys.Key, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, key, owner, created_at, expires_at, active FROM api_keys WHERE key = ?", key)

	rec, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return keys.Key{}, keys.ErrNotFound
	}
	return rec, err
}

func (s *keyStore) Create(ctx context.Context, params keys.CreateParams) (keys.Key, error) {
	value := params.Key
	if value == "" {
		var err error
		if value, err = generateKey(); err != nil {
			return keys.Key{}, err
		}
	}

	var expires any
	if params.ExpiresAt != nil {
		expires = params.ExpiresAt.UTC().Format(timeLayout)
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO api_keys (key, owner, created_at, expires_at) VALUES (?, ?, ?, ?)",
		value, params.Owner, time.Now().UTC().Format(timeLayout), expires)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return keys.Key{}, keys.ErrDuplicate
		}
		return keys.Key{}, fmt.Errorf("keys.sqlite: create: %w", err)
	}

	return s.Get(ctx, value)
}

func (s *keyStore) Update(ctx context.Context, key string, params keys.UpdateParams) error {
	var parts []string
	var args []any

	if params.Owner != nil {
		parts = append(parts, "owner = ?")
		args = append(args, *params.Owner)
	}
	if params.ClearExpiry {
		parts = append(parts, "expires_at = NULL")
	} else if params.ExpiresAt != nil {
		parts = append(parts, "expires_at = ?")
		args = append(args, params.ExpiresAt.UTC().Format(timeLayout))
	}

	if len(parts) == 0 {
		// Nothing to change; still report absence.
		_, err := s.Get(ctx, key)
		return err
	}

	args = append(args, key)
	res, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET "+strings.Join(parts, ", ")+" WHERE key = ?", args...)
	if err != nil {
		return fmt.Errorf("keys.sqlite: update: %w", err)
	}
	return requireRow(res)
}

func (s *keyStore) Revoke(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE api_keys SET active = 0 WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("keys.sqlite: revoke: %w", err)
	}
	return requireRow(res)
}

func (s *keyStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("keys.sqlite: delete: %w", err)
	}
	return requireRow(res)
}

func (s *keyStore) PruneExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET active = 0 WHERE active = 1 AND expires_at IS NOT NULL AND expires_at < ?",
		time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("keys.sqlite: prune expired: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return keys.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (keys.Key, error) {
	var (
		rec       keys.Key
		createdAt string
		expiresAt sql.NullString
		active    int
	)
	if err := row.Scan(&rec.ID, &rec.Key, &rec.Owner, &createdAt, &expiresAt, &active); err != nil {
		return keys.Key{}, err
	}

	created, err := parseTime(createdAt)
	if err != nil {
		return keys.Key{}, fmt.Errorf("keys.sqlite: bad created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = created

	if expiresAt.Valid && expiresAt.String != "" {
		expires, err := parseTime(expiresAt.String)
		if err != nil {
			return keys.Key{}, fmt.Errorf("keys.sqlite: bad expires_at %q: %w", expiresAt.String, err)
		}
		rec.ExpiresAt = &expires
	}

	rec.Active = active != 0
	return rec, nil
}

// parseTime accepts both our storage layout and bare date strings written
// by hand into the table.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// generateKey returns a random 32-hex-char key.
func generateKey() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("keys.sqlite: generate key: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
