package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/fjod/storefront/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	keyToken = "token"
	keyUser  = "user"
)

// SQLiteStore persists the session in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.RunMigrations(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) RunMigrations() error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session_kv WHERE key IN (?, ?)`, keyToken, keyUser)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to query session: %w", err)
	}
	defer rows.Close()

	var out domain.Session
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return domain.Session{}, fmt.Errorf("failed to scan session: %w", err)
		}
		switch key {
		case keyToken:
			out.Token = value
		case keyUser:
			var u domain.User
			if err := json.Unmarshal([]byte(value), &u); err != nil {
				return domain.Session{}, fmt.Errorf("unmarshal user failed: %w", err)
			}
			out.User = &u
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Session{}, fmt.Errorf("row iteration error: %w", err)
	}

	if out.Token == "" {
		return domain.Session{}, ErrNoSession
	}
	return out, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session domain.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
		INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := tx.ExecContext(ctx, upsert, keyToken, session.Token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if session.User != nil {
		user, err := json.Marshal(session.User)
		if err != nil {
			return fmt.Errorf("marshal user failed: %w", err)
		}
		if _, err := tx.ExecContext(ctx, upsert, keyUser, string(user)); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
	} else if _, err := tx.ExecContext(ctx, `DELETE FROM session_kv WHERE key = ?`, keyUser); err != nil {
		return fmt.Errorf("failed to drop user: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session_kv WHERE key IN (?, ?)`, keyToken, keyUser); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
