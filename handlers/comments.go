package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/solarboard/solarboard/database"
	"github.com/solarboard/solarboard/services"
)

// UserStore looks up account profiles.
type UserStore interface {
	GetUser(ctx context.Context, email string) (*database.User, error)
}

// NotificationStore reads and acknowledges mention notifications.
type NotificationStore interface {
	ListNotifications(ctx context.Context, recipients []string, unreadOnly bool) ([]database.Notification, error)
	MarkRead(ctx context.Context, id string, recipients []string) error
}

// CommentHandler serves row comments and the caller's notifications.
type CommentHandler struct {
	boards        *services.BoardService
	comments      *services.CommentService
	notifications NotificationStore
	users         UserStore
}

func NewCommentHandler(boards *services.BoardService, comments *services.CommentService, notifications NotificationStore, users UserStore) *CommentHandler {
	return &CommentHandler{
		boards:        boards,
		comments:      comments,
		notifications: notifications,
		users:         users,
	}
}

type createCommentRequest struct {
	RowID   string `json:"rowId"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// checkRead fails unless the caller may read the board of the route.
func (h *CommentHandler) checkRead(r *http.Request) (*services.Claims, error) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		return nil, err
	}
	sess, err := h.boards.Session(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		return nil, err
	}
	if !canRead(claims.Role, sess.Board()) {
		return nil, errForbidden
	}
	return claims, nil
}

// CreateComment stores a comment on a row. The author defaults to the
// caller.
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	claims, err := h.checkRead(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.UserID == "" {
		req.UserID = claims.Email
	}
	c, _, err := h.comments.Create(r.Context(), mux.Vars(r)["id"], req.RowID, req.UserID, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// ListComments returns the comments of a row, or of the board without a
// rowId.
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	if _, err := h.checkRead(r); err != nil {
		writeError(w, r, err)
		return
	}
	comments, err := h.comments.List(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("rowId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// recipients returns every handle the caller can be mentioned by.
func (h *CommentHandler) recipients(ctx context.Context, claims *services.Claims) ([]string, error) {
	var name string
	u, err := h.users.GetUser(ctx, claims.Email)
	switch {
	case err == nil:
		name = u.Name
	case !errors.Is(err, database.ErrUserNotFound):
		return nil, err
	}
	return services.Handles(claims.Email, name), nil
}

// ListNotifications returns the caller's notifications, newest first.
// With unread=true only unread ones are returned.
func (h *CommentHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	recipients, err := h.recipients(r.Context(), claims)
	if err != nil {
		writeError(w, r, err)
		return
	}
	notes, err := h.notifications.ListNotifications(r.Context(), recipients, r.URL.Query().Get("unread") == "true")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *CommentHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	recipients, err := h.recipients(r.Context(), claims)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.notifications.MarkRead(r.Context(), mux.Vars(r)["id"], recipients); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
