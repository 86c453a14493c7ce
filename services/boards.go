package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/solarboard/solarboard/aggregate"
	"github.com/solarboard/solarboard/board"
)

// Storage is the persistence port behind board sessions.
type Storage interface {
	LoadBoard(ctx context.Context, id string) (*board.Board, []board.Row, error)
	SaveBoard(ctx context.Context, b *board.Board, rows []board.Row) error
}

// Broadcaster pushes messages to connected clients. *Hub implements it.
type Broadcaster interface {
	Broadcast(message WebSocketMessage, excludeEmail string)
}

// Board event types sent over the websocket.
const (
	EventBoardUpdated = "board.updated"
	EventRowCreated   = "row.created"
	EventRowUpdated   = "row.updated"
	EventRowDeleted   = "row.deleted"
)

// BoardEvent is the payload of board websocket messages.
type BoardEvent struct {
	BoardID string       `json:"boardId"`
	Board   *board.Board `json:"board,omitempty"`
	Row     *board.Row   `json:"row,omitempty"`
	RowID   string       `json:"rowId,omitempty"`
}

// BoardService keeps one in-memory session per open board. Sessions are
// the source of truth for reads; storage catches up through a debounced
// save.
type BoardService struct {
	storage   Storage
	hub       Broadcaster
	saveDelay time.Duration

	mu       sync.Mutex
	sessions map[string]*BoardSession
}

func NewBoardService(storage Storage, hub Broadcaster, saveDelay time.Duration) *BoardService {
	return &BoardService{
		storage:   storage,
		hub:       hub,
		saveDelay: saveDelay,
		sessions:  make(map[string]*BoardSession),
	}
}

// Session returns the session of board id, loading it on first use.
func (s *BoardService) Session(ctx context.Context, id string) (*BoardSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}
	b, rows, err := s.storage.LoadBoard(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := &BoardSession{
		board:   b,
		rows:    board.NewMemoryStore(b.ID, rows),
		storage: s.storage,
		hub:     s.hub,
		saver:   NewDebouncer(s.saveDelay),
	}
	s.sessions[id] = sess
	slog.Debug("board session opened", "board", id, "rows", len(rows))
	return sess, nil
}

// Close flushes every pending save. Sessions stay usable.
func (s *BoardService) Close() {
	s.mu.Lock()
	sessions := make([]*BoardSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Flush()
	}
}

// BoardSession serializes edits to one board.
type BoardSession struct {
	mu    sync.Mutex
	board *board.Board
	rows  *board.MemoryStore

	storage Storage
	hub     Broadcaster
	saver   *Debouncer
}

// Snapshot returns a copy of the board and its visible rows ordered by
// (group, order).
func (s *BoardSession) Snapshot() (board.Board, []board.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBoard(s.board), s.board.Visible(s.rows.List())
}

// Board returns a copy of the board metadata.
func (s *BoardSession) Board() board.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneBoard(s.board)
}

// Row returns a visible row.
func (s *BoardSession) Row(rowID string) (board.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleRow(rowID)
}

// visibleRow looks up a row whose group is still on the board. s.mu is
// held.
func (s *BoardSession) visibleRow(rowID string) (board.Row, error) {
	r, err := s.rows.Get(rowID)
	if err != nil {
		return board.Row{}, err
	}
	if !s.board.HasGroup(r.GroupID) {
		return board.Row{}, board.ErrRowNotFound
	}
	return r, nil
}

// Update applies a partial board update.
func (s *BoardSession) Update(patch board.BoardPatch, actor string) (board.Board, error) {
	if err := validateBoardPatch(patch); err != nil {
		return board.Board{}, err
	}
	s.mu.Lock()
	patch.Apply(s.board)
	s.board.UpdatedAt = time.Now().UTC()
	out := cloneBoard(s.board)
	s.mu.Unlock()

	s.changed(EventBoardUpdated, BoardEvent{BoardID: out.ID, Board: &out}, actor)
	return out, nil
}

// CreateRow adds a row to a group of the board.
func (s *BoardSession) CreateRow(groupID string, data map[string]any, order *int, actor string) (board.Row, error) {
	s.mu.Lock()
	if groupID != "" && !s.board.HasGroup(groupID) {
		s.mu.Unlock()
		return board.Row{}, &board.ValidationError{Field: "groupId", Message: "unknown group " + groupID}
	}
	r, err := s.rows.Create(groupID, data, order)
	s.mu.Unlock()
	if err != nil {
		return board.Row{}, err
	}
	s.changed(EventRowCreated, BoardEvent{BoardID: r.BoardID, Row: &r}, actor)
	return r, nil
}

// UpdateRow patches a visible row.
func (s *BoardSession) UpdateRow(rowID string, patch board.RowPatch, actor string) (board.Row, error) {
	s.mu.Lock()
	if _, err := s.visibleRow(rowID); err != nil {
		s.mu.Unlock()
		return board.Row{}, err
	}
	if patch.GroupID != nil && *patch.GroupID != "" && !s.board.HasGroup(*patch.GroupID) {
		s.mu.Unlock()
		return board.Row{}, &board.ValidationError{Field: "groupId", Message: "unknown group " + *patch.GroupID}
	}
	r, err := s.rows.Update(rowID, patch)
	s.mu.Unlock()
	if err != nil {
		return board.Row{}, err
	}
	s.changed(EventRowUpdated, BoardEvent{BoardID: r.BoardID, Row: &r}, actor)
	return r, nil
}

// DeleteRow removes a visible row. A second delete of the same id, or a
// delete of a row hidden by a removed group, fails with
// board.ErrRowNotFound.
func (s *BoardSession) DeleteRow(rowID, actor string) error {
	s.mu.Lock()
	boardID := s.board.ID
	_, err := s.visibleRow(rowID)
	if err == nil {
		err = s.rows.Delete(rowID)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.changed(EventRowDeleted, BoardEvent{BoardID: boardID, RowID: rowID}, actor)
	return nil
}

// Chart projects the visible rows into a chart series.
func (s *BoardSession) Chart(q aggregate.ChartQuery) []aggregate.Point {
	b, rows := s.Snapshot()
	return aggregate.Chart(b.Schema(), rows, q)
}

// Markers projects the visible rows into map markers.
func (s *BoardSession) Markers(search string, dir *board.Directory) []aggregate.Marker {
	_, rows := s.Snapshot()
	return aggregate.Markers(rows, search, dir)
}

// Flush writes pending changes now.
func (s *BoardSession) Flush() {
	s.saver.Flush()
}

func (s *BoardSession) changed(kind string, ev BoardEvent, actor string) {
	s.saver.Trigger(s.save)
	if s.hub != nil {
		s.hub.Broadcast(WebSocketMessage{Type: kind, Data: ev}, actor)
	}
}

// save persists the current state. Failures are logged; the in-memory
// state stays authoritative and the next edit schedules another save.
func (s *BoardSession) save() {
	s.mu.Lock()
	b := cloneBoard(s.board)
	rows := s.rows.List()
	s.mu.Unlock()

	start := time.Now()
	if err := s.storage.SaveBoard(context.Background(), &b, rows); err != nil {
		slog.Error("failed to save board", "board", b.ID, "err", err)
		return
	}
	slog.Debug("board saved", "board", b.ID, "rows", len(rows), "dur", time.Since(start))
}

func validateBoardPatch(p board.BoardPatch) error {
	if p.Name != nil && *p.Name == "" {
		return board.Required("name")
	}
	if p.GutterWidth != nil && *p.GutterWidth < 0 {
		return &board.ValidationError{Field: "gutterWidth", Message: "must not be negative"}
	}
	seen := make(map[string]bool, len(p.Groups))
	for i, g := range p.Groups {
		if g.ID == "" {
			return board.Required(fmt.Sprintf("groups[%d].id", i))
		}
		if seen[g.ID] {
			return &board.ValidationError{Field: fmt.Sprintf("groups[%d].id", i), Message: "duplicate id " + g.ID}
		}
		seen[g.ID] = true
	}
	clear(seen)
	for i, c := range p.Columns {
		if c.ID == "" {
			return board.Required(fmt.Sprintf("columns[%d].id", i))
		}
		if seen[c.ID] {
			return &board.ValidationError{Field: fmt.Sprintf("columns[%d].id", i), Message: "duplicate id " + c.ID}
		}
		seen[c.ID] = true
	}
	return nil
}

func cloneBoard(b *board.Board) board.Board {
	out := *b
	out.Columns = slices.Clone(b.Columns)
	for i := range out.Columns {
		out.Columns[i].Options = slices.Clone(out.Columns[i].Options)
	}
	out.Groups = slices.Clone(b.Groups)
	out.AccessRights.Roles = slices.Clone(b.AccessRights.Roles)
	return out
}
