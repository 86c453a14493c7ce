package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/solarboard/solarboard/board"
)

var boardColumns = []string{
	"id", "project_id", "name", "description", "icon",
	"columns", "groups_json", "access_rights", "gutter_width", "updated_at",
}

var rowColumns = []string{"board_id", "id", "group_id", "ord", "seq", "data", "selected"}

// rowBatchSize keeps multi-row inserts under sqlite's bound parameter limit.
const rowBatchSize = 500

// BoardService persists boards and their rows.
type BoardService struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewBoardService(db *sqlx.DB) *BoardService {
	return &BoardService{db: db, now: time.Now}
}

// CreateBoard inserts a new board. The board must carry an ID.
func (s *BoardService) CreateBoard(ctx context.Context, b *board.Board) error {
	if b.ID == "" {
		return board.Required("id")
	}
	if b.Name == "" {
		return board.Required("name")
	}
	b.UpdatedAt = s.now().UTC()
	rec, err := newBoardRecord(b)
	if err != nil {
		return err
	}
	query, args, err := qb.Insert("boards").Columns(boardColumns...).Values(boardValues(rec)...).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert board: %w", err)
	}
	return nil
}

// GetBoard returns the board without its rows.
func (s *BoardService) GetBoard(ctx context.Context, id string) (*board.Board, error) {
	query, args, err := qb.Select(boardColumns...).From("boards").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var rec boardRecord
	if err := s.db.GetContext(ctx, &rec, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", board.ErrBoardNotFound, id)
		}
		return nil, fmt.Errorf("failed to query board: %w", err)
	}
	return rec.toBoard()
}

// ListBoards returns the boards of a project ordered by name.
func (s *BoardService) ListBoards(ctx context.Context, projectID string) ([]*board.Board, error) {
	query, args, err := qb.Select(boardColumns...).From("boards").
		Where(sq.Eq{"project_id": projectID}).OrderBy("name", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var recs []boardRecord
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	out := make([]*board.Board, 0, len(recs))
	for _, rec := range recs {
		b, err := rec.toBoard()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// ListRows returns the rows of a board ordered by (group, order, insertion).
func (s *BoardService) ListRows(ctx context.Context, boardID string) ([]board.Row, error) {
	query, args, err := qb.Select(rowColumns...).From("board_rows").
		Where(sq.Eq{"board_id": boardID}).OrderBy("group_id", "ord", "seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var recs []rowRecord
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	rows := make([]board.Row, 0, len(recs))
	for _, rec := range recs {
		r, err := rec.toRow()
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// LoadBoard returns a board and all of its rows, orphans included.
func (s *BoardService) LoadBoard(ctx context.Context, id string) (*board.Board, []board.Row, error) {
	b, err := s.GetBoard(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.ListRows(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return b, rows, nil
}

// SaveBoard writes the board and replaces its rows in one transaction.
func (s *BoardService) SaveBoard(ctx context.Context, b *board.Board, rows []board.Row) error {
	rec, err := newBoardRecord(b)
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now().UTC()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, args, err := qb.Insert("boards").Columns(boardColumns...).Values(boardValues(rec)...).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			name = excluded.name,
			description = excluded.description,
			icon = excluded.icon,
			columns = excluded.columns,
			groups_json = excluded.groups_json,
			access_rights = excluded.access_rights,
			gutter_width = excluded.gutter_width,
			updated_at = excluded.updated_at`).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
		return fmt.Errorf("failed to upsert board: %w", err)
	}

	del, args, err := qb.Delete("board_rows").Where(sq.Eq{"board_id": b.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("failed to clear rows: %w", err)
	}

	for start := 0; start < len(rows); start += rowBatchSize {
		end := min(start+rowBatchSize, len(rows))
		ins := qb.Insert("board_rows").Columns(rowColumns...)
		for _, r := range rows[start:end] {
			data, err := json.Marshal(r.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal data of row %s: %w", r.ID, err)
			}
			ins = ins.Values(b.ID, r.ID, r.GroupID, r.Order, r.Seq(), string(data), r.Selected)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build row insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert rows: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func boardValues(r boardRecord) []any {
	return []any{
		r.ID, r.ProjectID, r.Name, r.Description, r.Icon,
		r.Columns, r.Groups, r.AccessRights, r.GutterWidth, r.UpdatedAt,
	}
}
