package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		email TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		password_hash TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS boards (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		columns TEXT NOT NULL DEFAULT '[]',
		groups_json TEXT NOT NULL DEFAULT '[]',
		access_rights TEXT NOT NULL DEFAULT '{}',
		gutter_width INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS boards_project ON boards(project_id)`,
	// Rows are owned by a board; seq keeps insertion order for ties on ord.
	`CREATE TABLE IF NOT EXISTS board_rows (
		board_id TEXT NOT NULL,
		id TEXT NOT NULL,
		group_id TEXT NOT NULL,
		ord INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		selected INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (board_id, id),
		FOREIGN KEY (board_id) REFERENCES boards(id)
	)`,
	`CREATE INDEX IF NOT EXISTS board_rows_order ON board_rows(board_id, group_id, ord, seq)`,
	`CREATE TABLE IF NOT EXISTS persons (
		project_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		photo_url TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (project_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		board_id TEXT NOT NULL,
		row_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS comments_row ON comments(board_id, row_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		comment_id TEXT NOT NULL,
		board_id TEXT NOT NULL,
		row_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		is_read INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (comment_id) REFERENCES comments(id)
	)`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient ON notifications(recipient, created_at)`,
}

// InitDB opens the sqlite database at path and applies the schema.
func InitDB(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// Each connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database initialized", "path", path)
	return db, nil
}

// Migrate creates missing tables and indexes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// qb is the statement builder shared by the repositories.
var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)
