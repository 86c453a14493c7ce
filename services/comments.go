package services

import (
	"context"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solarboard/solarboard/board"
	"github.com/solarboard/solarboard/database"
)

// EventNotification is the websocket message type of a new mention.
const EventNotification = "notification"

// CommentStore is the comment storage used by CommentService.
type CommentStore interface {
	CreateComment(ctx context.Context, c *database.Comment, notes []database.Notification) error
	ListComments(ctx context.Context, boardID, rowID string) ([]database.Comment, error)
}

// A mention is "@" followed by an identifier that is not preceded by an
// identifier character, so email addresses do not count.
var mentionRe = regexp.MustCompile(`(^|[^\p{L}\p{N}_.@-])@([\p{L}\p{N}_](?:[\p{L}\p{N}_.-]*[\p{L}\p{N}_])?)`)

// ExtractMentions returns the distinct mentioned identifiers in first-seen
// order.
func ExtractMentions(content string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range mentionRe.FindAllStringSubmatch(content, -1) {
		id := m[2]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Handles returns the identifiers a user can be mentioned by: the email,
// its local part and the display name.
func Handles(email, name string) []string {
	var out []string
	add := func(h string) {
		if h != "" && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	add(email)
	if local, _, ok := strings.Cut(email, "@"); ok {
		add(local)
	}
	add(strings.TrimSpace(name))
	return out
}

// CommentService creates row comments and fans out mention
// notifications.
type CommentService struct {
	boards   *BoardService
	comments CommentStore
	hub      Broadcaster
	now      func() time.Time
}

func NewCommentService(boards *BoardService, comments CommentStore, hub Broadcaster) *CommentService {
	return &CommentService{
		boards:   boards,
		comments: comments,
		hub:      hub,
		now:      time.Now,
	}
}

// Create stores a comment on a row and one notification per distinct
// mention in its content.
func (s *CommentService) Create(ctx context.Context, boardID, rowID, userID, content string) (*database.Comment, []database.Notification, error) {
	switch {
	case rowID == "":
		return nil, nil, board.Required("rowId")
	case userID == "":
		return nil, nil, board.Required("userId")
	case strings.TrimSpace(content) == "":
		return nil, nil, board.Required("content")
	}
	sess, err := s.boards.Session(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := sess.Row(rowID); err != nil {
		return nil, nil, err
	}

	now := s.now().UTC()
	c := &database.Comment{
		ID:        uuid.NewString(),
		BoardID:   boardID,
		RowID:     rowID,
		UserID:    userID,
		Content:   content,
		CreatedAt: now,
	}
	mentions := ExtractMentions(content)
	notes := make([]database.Notification, 0, len(mentions))
	for _, m := range mentions {
		notes = append(notes, database.Notification{
			ID:        uuid.NewString(),
			Recipient: m,
			CommentID: c.ID,
			BoardID:   boardID,
			RowID:     rowID,
			CreatedAt: now,
		})
	}
	if err := s.comments.CreateComment(ctx, c, notes); err != nil {
		return nil, nil, err
	}
	if len(notes) > 0 {
		slog.Info("comment mentions", "board", boardID, "row", rowID, "count", len(notes))
	}
	if s.hub != nil {
		for _, n := range notes {
			s.hub.Broadcast(WebSocketMessage{Type: EventNotification, Data: n}, userID)
		}
	}
	return c, notes, nil
}

// List returns the comments of a row, or of the whole board when rowID
// is empty.
func (s *CommentService) List(ctx context.Context, boardID, rowID string) ([]database.Comment, error) {
	if _, err := s.boards.Session(ctx, boardID); err != nil {
		return nil, err
	}
	return s.comments.ListComments(ctx, boardID, rowID)
}
