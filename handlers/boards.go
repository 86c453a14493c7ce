package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/solarboard/solarboard/aggregate"
	"github.com/solarboard/solarboard/board"
	"github.com/solarboard/solarboard/services"
)

// BoardCatalog lists and creates the boards of a project.
type BoardCatalog interface {
	ListBoards(ctx context.Context, projectID string) ([]*board.Board, error)
	CreateBoard(ctx context.Context, b *board.Board) error
}

// DirectoryProvider resolves the person directory of a project.
type DirectoryProvider interface {
	Directory(ctx context.Context, projectID string) (*board.Directory, error)
}

// BoardHandler serves boards, rows and their projections.
type BoardHandler struct {
	boards  *services.BoardService
	catalog BoardCatalog
	persons DirectoryProvider
}

func NewBoardHandler(boards *services.BoardService, catalog BoardCatalog, persons DirectoryProvider) *BoardHandler {
	return &BoardHandler{
		boards:  boards,
		catalog: catalog,
		persons: persons,
	}
}

type boardView struct {
	board.Board
	Rows []board.Row `json:"rows"`
}

type createRowRequest struct {
	GroupID string         `json:"groupId"`
	Data    map[string]any `json:"data"`
	Order   *int           `json:"order"`
}

type updateRowRequest struct {
	RowID string `json:"rowId"`
	board.RowPatch
}

type createBoardRequest struct {
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Icon         string              `json:"icon"`
	Columns      []board.Column      `json:"columns"`
	Groups       []board.Group       `json:"groups"`
	AccessRights *board.AccessRights `json:"accessRights"`
}

type markersResponse struct {
	Markers []aggregate.Marker `json:"markers"`
	Bounds  *aggregate.Bounds  `json:"bounds,omitempty"`
}

// session opens the board named by the route and checks the caller may
// read it, or write it when write is set.
func (h *BoardHandler) session(r *http.Request, write bool) (*services.BoardSession, *services.Claims, error) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		return nil, nil, err
	}
	sess, err := h.boards.Session(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, nil, err
	}
	b := sess.Board()
	if !canRead(claims.Role, b) || (write && !canWrite(claims.Role, b)) {
		return nil, nil, errForbidden
	}
	return sess, claims, nil
}

// GetBoard returns the board with its visible rows.
func (h *BoardHandler) GetBoard(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, rows := sess.Snapshot()
	writeJSON(w, http.StatusOK, boardView{Board: b, Rows: rows})
}

// UpdateBoard applies a partial update to the board metadata.
func (h *BoardHandler) UpdateBoard(w http.ResponseWriter, r *http.Request) {
	sess, claims, err := h.session(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch board.BoardPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := sess.Update(patch, claims.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BoardHandler) CreateRow(w http.ResponseWriter, r *http.Request) {
	sess, claims, err := h.session(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createRowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	row, err := sess.CreateRow(req.GroupID, req.Data, req.Order, claims.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (h *BoardHandler) UpdateRow(w http.ResponseWriter, r *http.Request) {
	sess, claims, err := h.session(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req updateRowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.RowID == "" {
		writeError(w, r, board.Required("rowId"))
		return
	}
	row, err := sess.UpdateRow(req.RowID, req.RowPatch, claims.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *BoardHandler) DeleteRow(w http.ResponseWriter, r *http.Request) {
	sess, claims, err := h.session(r, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rowID := r.URL.Query().Get("rowId")
	if rowID == "" {
		writeError(w, r, board.Required("rowId"))
		return
	}
	if err := sess.DeleteRow(rowID, claims.Email); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Chart aggregates the visible rows by a category column.
func (h *BoardHandler) Chart(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, sess.Chart(aggregate.ChartQuery{
		Type:           aggregate.ParseChartType(q.Get("type")),
		CategoryColumn: q.Get("category"),
		ValueColumn:    q.Get("value"),
	}))
}

// ChartAxes lists the columns a chart can sum on.
func (h *BoardHandler) ChartAxes(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b := sess.Board()
	writeJSON(w, http.StatusOK, aggregate.AxisChoices(b.Schema()))
}

// Markers projects the visible rows onto the map, coloured from the
// person directory of the board's project.
func (h *BoardHandler) Markers(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r, false)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dir, err := h.persons.Directory(r.Context(), sess.Board().ProjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := markersResponse{Markers: sess.Markers(r.URL.Query().Get("search"), dir)}
	if bounds, ok := aggregate.FitBounds(resp.Markers, aggregate.DefaultPadding); ok {
		resp.Bounds = &bounds
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListProjectBoards returns the boards of a project the caller can read.
func (h *BoardHandler) ListProjectBoards(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	boards, err := h.catalog.ListBoards(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	visible := make([]*board.Board, 0, len(boards))
	for _, b := range boards {
		if canRead(claims.Role, *b) {
			visible = append(visible, b)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

// CreateProjectBoard creates an empty board in a project.
func (h *BoardHandler) CreateProjectBoard(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createBoardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b := &board.Board{
		ID:          uuid.NewString(),
		ProjectID:   mux.Vars(r)["id"],
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Columns:     req.Columns,
		Groups:      req.Groups,
	}
	if req.AccessRights != nil {
		b.AccessRights = *req.AccessRights
	}
	if !canWrite(claims.Role, *b) {
		writeError(w, r, errForbidden)
		return
	}
	if err := h.catalog.CreateBoard(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}
