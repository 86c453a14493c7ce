package board

import (
	"maps"
	"sort"

	"github.com/google/uuid"
)

// RowStore is the CRUD surface over a board's rows.
type RowStore interface {
	Create(groupID string, data map[string]any, order *int) (Row, error)
	Update(rowID string, patch RowPatch) (Row, error)
	Delete(rowID string) error
	Get(rowID string) (Row, error)
	List() []Row
}

// MemoryStore keeps the rows of one board in memory.
// It is not safe for concurrent use; callers serialize access.
type MemoryStore struct {
	boardID string
	rows    map[string]*Row
	nextSeq int64
	newID   func() string
}

var _ RowStore = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with rows. Rows carrying an
// insertion sequence keep it; the others are sequenced in slice order.
func NewMemoryStore(boardID string, rows []Row) *MemoryStore {
	s := &MemoryStore{
		boardID: boardID,
		rows:    make(map[string]*Row, len(rows)),
		newID:   uuid.NewString,
	}
	for _, r := range rows {
		if r.seq > s.nextSeq {
			s.nextSeq = r.seq
		}
	}
	for _, r := range rows {
		r := cloneRow(r)
		r.BoardID = boardID
		if r.seq == 0 {
			s.nextSeq++
			r.seq = s.nextSeq
		}
		s.rows[r.ID] = &r
	}
	return s
}

// Create adds a row to groupID. Without an explicit order the row goes
// after the last row of the group.
func (s *MemoryStore) Create(groupID string, data map[string]any, order *int) (Row, error) {
	if groupID == "" {
		return Row{}, Required("groupId")
	}
	r := Row{
		ID:      s.newID(),
		BoardID: s.boardID,
		GroupID: groupID,
		Data:    maps.Clone(data),
	}
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	if order != nil {
		r.Order = *order
	} else {
		r.Order = s.nextOrder(groupID)
	}
	s.nextSeq++
	r.seq = s.nextSeq
	s.rows[r.ID] = &r
	return cloneRow(r), nil
}

// Update applies patch. Only the provided fields are written and Data is
// replaced wholesale.
func (s *MemoryStore) Update(rowID string, patch RowPatch) (Row, error) {
	r, ok := s.rows[rowID]
	if !ok {
		return Row{}, ErrRowNotFound
	}
	if patch.GroupID != nil && *patch.GroupID == "" {
		return Row{}, Required("groupId")
	}
	if patch.GroupID != nil {
		r.GroupID = *patch.GroupID
	}
	if patch.Data != nil {
		r.Data = maps.Clone(patch.Data)
	}
	if patch.Order != nil {
		r.Order = *patch.Order
	}
	if patch.Selected != nil {
		r.Selected = *patch.Selected
	}
	return cloneRow(*r), nil
}

// Delete removes a row. Deleting twice returns ErrRowNotFound.
func (s *MemoryStore) Delete(rowID string) error {
	if _, ok := s.rows[rowID]; !ok {
		return ErrRowNotFound
	}
	delete(s.rows, rowID)
	return nil
}

func (s *MemoryStore) Get(rowID string) (Row, error) {
	r, ok := s.rows[rowID]
	if !ok {
		return Row{}, ErrRowNotFound
	}
	return cloneRow(*r), nil
}

// List returns every row ordered by (GroupID, Order, insertion).
func (s *MemoryStore) List() []Row {
	out := make([]Row, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, cloneRow(*r))
	}
	SortRows(out)
	return out
}

func (s *MemoryStore) nextOrder(groupID string) int {
	next, seen := 0, false
	for _, r := range s.rows {
		if r.GroupID != groupID {
			continue
		}
		if !seen || r.Order+1 > next {
			next, seen = r.Order+1, true
		}
	}
	return next
}

// SortRows sorts in place by (GroupID, Order, insertion sequence).
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.GroupID != b.GroupID {
			return a.GroupID < b.GroupID
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.seq < b.seq
	})
}

func cloneRow(r Row) Row {
	r.Data = maps.Clone(r.Data)
	return r
}
