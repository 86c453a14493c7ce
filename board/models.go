// Package board holds the board data model: typed columns, grouped rows,
// the in-memory row store and the person directory joined at read time.
package board

import "time"

// ColumnType is the value type of a column. The set is open: unknown
// types are legal and read as text.
type ColumnType string

const (
	ColumnText     ColumnType = "text"
	ColumnNumber   ColumnType = "number"
	ColumnUser     ColumnType = "user"
	ColumnStatus   ColumnType = "status"
	ColumnDate     ColumnType = "date"
	ColumnCheckbox ColumnType = "checkbox"
	ColumnLink     ColumnType = "link"
)

// Option is one legal value of a status column with its display color.
type Option struct {
	Value string `json:"value"`
	Color string `json:"color"`
}

type Column struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Type  ColumnType `json:"type"`
	Width int        `json:"width,omitempty"`
	// Options is only meaningful for status columns. User columns resolve
	// against the Directory instead.
	Options []Option `json:"options,omitempty"`
}

type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsCollapsed bool   `json:"isCollapsed"`
}

// AccessRights are coarse role flags. A non-empty Roles list limits the
// board to those roles; Public opens reads to everyone.
type AccessRights struct {
	Roles  []string `json:"roles,omitempty"`
	Public bool     `json:"public"`
}

// Allows reports whether role is admitted to the board. An empty role
// list admits every authenticated user.
func (a AccessRights) Allows(role string) bool {
	if len(a.Roles) == 0 {
		return true
	}
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type Board struct {
	ID           string       `json:"id"`
	ProjectID    string       `json:"projectId"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Icon         string       `json:"icon"`
	Columns      []Column     `json:"columns"`
	Groups       []Group      `json:"groups"`
	AccessRights AccessRights `json:"accessRights"`
	GutterWidth  int          `json:"gutterWidth"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// HasGroup reports whether groupID names one of the board's groups.
func (b *Board) HasGroup(groupID string) bool {
	for _, g := range b.Groups {
		if g.ID == groupID {
			return true
		}
	}
	return false
}

// Schema returns the column schema of the board.
func (b *Board) Schema() *Schema {
	return NewSchema(b.Columns)
}

// Visible drops orphan rows, i.e. rows whose group is not on the board.
// Order is preserved.
func (b *Board) Visible(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if b.HasGroup(r.GroupID) {
			out = append(out, r)
		}
	}
	return out
}

// BoardPatch is a partial update. Nil fields are left untouched.
type BoardPatch struct {
	Name         *string       `json:"name,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Icon         *string       `json:"icon,omitempty"`
	Groups       []Group       `json:"groups,omitempty"`
	Columns      []Column      `json:"columns,omitempty"`
	AccessRights *AccessRights `json:"accessRights,omitempty"`
	GutterWidth  *int          `json:"gutterWidth,omitempty"`
}

// Apply writes the provided fields of p onto b.
func (p BoardPatch) Apply(b *Board) {
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Icon != nil {
		b.Icon = *p.Icon
	}
	if p.Groups != nil {
		b.Groups = p.Groups
	}
	if p.Columns != nil {
		b.Columns = p.Columns
	}
	if p.AccessRights != nil {
		b.AccessRights = *p.AccessRights
	}
	if p.GutterWidth != nil {
		b.GutterWidth = *p.GutterWidth
	}
}

// Row is one record. Data maps column ids to raw scalars (string, float64
// or nil); it is typed at read time through the Schema.
type Row struct {
	ID       string         `json:"id"`
	BoardID  string         `json:"boardId"`
	GroupID  string         `json:"groupId"`
	Order    int            `json:"order"`
	Data     map[string]any `json:"data"`
	Selected bool           `json:"selected"`

	seq int64
}

// Seq is the insertion sequence used to break Order ties.
func (r Row) Seq() int64 {
	return r.seq
}

// WithSeq returns a copy of r carrying the given insertion sequence. Used
// by storage layers when rehydrating rows.
func (r Row) WithSeq(seq int64) Row {
	r.seq = seq
	return r
}

// RowPatch is a partial update of a row. Data replaces the whole map.
type RowPatch struct {
	GroupID  *string        `json:"groupId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Order    *int           `json:"order,omitempty"`
	Selected *bool          `json:"selected,omitempty"`
}

// Person is an entry of the Directory. Name is the join key.
type Person struct {
	Name     string `json:"name"`
	Color    string `json:"color"`
	PhotoURL string `json:"photoUrl,omitempty"`
}
