package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/solarboard/solarboard/board"
)

var ErrNotificationNotFound = fmt.Errorf("notification %w", board.ErrNotFound)

// CommentService stores row comments and the mention notifications they
// produce.
type CommentService struct {
	db *sqlx.DB
}

func NewCommentService(db *sqlx.DB) *CommentService {
	return &CommentService{db: db}
}

// CreateComment inserts c and its notifications atomically.
func (s *CommentService) CreateComment(ctx context.Context, c *Comment, notes []Notification) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := qb.Insert("comments").
		Columns("id", "board_id", "row_id", "user_id", "content", "created_at").
		Values(c.ID, c.BoardID, c.RowID, c.UserID, c.Content, c.CreatedAt).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}

	if len(notes) > 0 {
		ins := qb.Insert("notifications").
			Columns("id", "recipient", "comment_id", "board_id", "row_id", "created_at", "is_read")
		for _, n := range notes {
			ins = ins.Values(n.ID, n.Recipient, n.CommentID, n.BoardID, n.RowID, n.CreatedAt, n.Read)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert notifications: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListComments returns the comments of a row, oldest first. An empty
// rowID lists every comment of the board.
func (s *CommentService) ListComments(ctx context.Context, boardID, rowID string) ([]Comment, error) {
	where := sq.Eq{"board_id": boardID}
	if rowID != "" {
		where["row_id"] = rowID
	}
	query, args, err := qb.Select("id", "board_id", "row_id", "user_id", "content", "created_at").
		From("comments").Where(where).OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	comments := []Comment{}
	if err := s.db.SelectContext(ctx, &comments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	return comments, nil
}

// ListNotifications returns the notifications addressed to any of the
// given identifiers, newest first.
func (s *CommentService) ListNotifications(ctx context.Context, recipients []string, unreadOnly bool) ([]Notification, error) {
	notes := []Notification{}
	if len(recipients) == 0 {
		return notes, nil
	}
	where := sq.And{sq.Eq{"recipient": recipients}}
	if unreadOnly {
		where = append(where, sq.Eq{"is_read": false})
	}
	query, args, err := qb.Select("id", "recipient", "comment_id", "board_id", "row_id", "created_at", "is_read").
		From("notifications").Where(where).OrderBy("created_at DESC", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &notes, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	return notes, nil
}

// MarkRead flags a notification addressed to one of recipients as read.
func (s *CommentService) MarkRead(ctx context.Context, id string, recipients []string) error {
	if len(recipients) == 0 {
		return ErrNotificationNotFound
	}
	query, args, err := qb.Update("notifications").Set("is_read", true).
		Where(sq.Eq{"id": id, "recipient": recipients}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
