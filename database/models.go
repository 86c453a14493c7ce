package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/solarboard/solarboard/board"
)

// Roles are coarse permission flags carried by users.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

type User struct {
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

type Comment struct {
	ID        string    `db:"id" json:"id"`
	BoardID   string    `db:"board_id" json:"boardId"`
	RowID     string    `db:"row_id" json:"rowId"`
	UserID    string    `db:"user_id" json:"userId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Notification is emitted once per distinct mention in a comment.
type Notification struct {
	ID        string    `db:"id" json:"id"`
	Recipient string    `db:"recipient" json:"recipient"`
	CommentID string    `db:"comment_id" json:"commentId"`
	BoardID   string    `db:"board_id" json:"boardId"`
	RowID     string    `db:"row_id" json:"rowId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	Read      bool      `db:"is_read" json:"read"`
}

type boardRecord struct {
	ID           string    `db:"id"`
	ProjectID    string    `db:"project_id"`
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	Icon         string    `db:"icon"`
	Columns      string    `db:"columns"`
	Groups       string    `db:"groups_json"`
	AccessRights string    `db:"access_rights"`
	GutterWidth  int       `db:"gutter_width"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r boardRecord) toBoard() (*board.Board, error) {
	b := &board.Board{
		ID:          r.ID,
		ProjectID:   r.ProjectID,
		Name:        r.Name,
		Description: r.Description,
		Icon:        r.Icon,
		GutterWidth: r.GutterWidth,
		UpdatedAt:   r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Columns), &b.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns of board %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Groups), &b.Groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal groups of board %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.AccessRights), &b.AccessRights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access rights of board %s: %w", r.ID, err)
	}
	if b.Columns == nil {
		b.Columns = []board.Column{}
	}
	if b.Groups == nil {
		b.Groups = []board.Group{}
	}
	return b, nil
}

func newBoardRecord(b *board.Board) (boardRecord, error) {
	columns, err := json.Marshal(nonNil(b.Columns))
	if err != nil {
		return boardRecord{}, fmt.Errorf("failed to marshal columns: %w", err)
	}
	groups, err := json.Marshal(nonNil(b.Groups))
	if err != nil {
		return boardRecord{}, fmt.Errorf("failed to marshal groups: %w", err)
	}
	rights, err := json.Marshal(b.AccessRights)
	if err != nil {
		return boardRecord{}, fmt.Errorf("failed to marshal access rights: %w", err)
	}
	return boardRecord{
		ID:           b.ID,
		ProjectID:    b.ProjectID,
		Name:         b.Name,
		Description:  b.Description,
		Icon:         b.Icon,
		Columns:      string(columns),
		Groups:       string(groups),
		AccessRights: string(rights),
		GutterWidth:  b.GutterWidth,
		UpdatedAt:    b.UpdatedAt,
	}, nil
}

type rowRecord struct {
	BoardID  string `db:"board_id"`
	ID       string `db:"id"`
	GroupID  string `db:"group_id"`
	Order    int    `db:"ord"`
	Seq      int64  `db:"seq"`
	Data     string `db:"data"`
	Selected bool   `db:"selected"`
}

func (r rowRecord) toRow() (board.Row, error) {
	row := board.Row{
		ID:       r.ID,
		BoardID:  r.BoardID,
		GroupID:  r.GroupID,
		Order:    r.Order,
		Selected: r.Selected,
	}
	if err := json.Unmarshal([]byte(r.Data), &row.Data); err != nil {
		return board.Row{}, fmt.Errorf("failed to unmarshal data of row %s: %w", r.ID, err)
	}
	if row.Data == nil {
		row.Data = map[string]any{}
	}
	return row.WithSeq(r.Seq), nil
}

type personRecord struct {
	ProjectID string `db:"project_id"`
	Position  int    `db:"position"`
	Name      string `db:"name"`
	Color     string `db:"color"`
	PhotoURL  string `db:"photo_url"`
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
