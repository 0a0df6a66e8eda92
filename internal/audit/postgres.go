package audit

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// PostgresLog is the production Log implementation backed by PostgreSQL.
type PostgresLog struct {
	db *sql.DB
}

// OpenPostgres connects to PostgreSQL, verifies the connection, applies
// pending schema migrations, and returns a ready log.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: postgres connection failed: %w", err)
	}
	if err := migrateSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresLog{db: db}, nil
}

// migrateSchema applies the embedded migrations to the connected database.
func migrateSchema(db *sql.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("audit: load migrations: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("audit: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("audit: migrate setup: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("audit: migrate up: %w", err)
	}
	return nil
}

// Append inserts a record and returns the assigned ID. Failures are
// wrapped in ErrStorageUnavailable so callers can classify them without
// inspecting driver errors.
func (l *PostgresLog) Append(ctx context.Context, r *Record) (int64, error) {
	const query = `
		INSERT INTO removed_messages (chat_id, user_id, username, message, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := l.db.QueryRowContext(ctx, query,
		r.ChatID, r.UserID, r.Username, r.Message, r.Reason, r.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: insert: %v", ErrStorageUnavailable, err)
	}
	return id, nil
}

// QueryRecent returns the most recent removals for a chat, newest first.
func (l *PostgresLog) QueryRecent(ctx context.Context, chatID string, limit int) ([]Record, error) {
	const query = `
		SELECT id, chat_id, user_id, username, message, reason, created_at
		FROM removed_messages
		WHERE chat_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := l.db.QueryContext(ctx, query, chatID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.ChatID, &r.UserID, &r.Username, &r.Message, &r.Reason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: query recent: %w", err)
	}
	return records, nil
}

// Close releases the underlying database handle.
func (l *PostgresLog) Close() error {
	return l.db.Close()
}
