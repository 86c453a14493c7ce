package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solarboard/solarboard/aggregate"
	"github.com/solarboard/solarboard/board"
	"github.com/solarboard/solarboard/database"
	"github.com/solarboard/solarboard/services"
)

type testEnv struct {
	router  http.Handler
	auth    *services.AuthService
	catalog *database.BoardService
}

func newTestEnv(t *testing.T, loginRate int) *testEnv {
	t.Helper()
	ctx := context.Background()
	db, err := database.InitDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	catalog := database.NewBoardService(db)
	users := database.NewUserService(db)
	persons := database.NewPersonService(db)
	comments := database.NewCommentService(db)

	hub := services.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	boards := services.NewBoardService(catalog, hub, time.Hour)
	t.Cleanup(boards.Close)
	auth := services.NewAuthService(users, "test-secret")

	require.NoError(t, catalog.CreateBoard(ctx, &board.Board{
		ID:        "b1",
		ProjectID: "p1",
		Name:      "CRM",
		Columns: []board.Column{
			{ID: "element", Title: "Element", Type: board.ColumnText},
			{ID: "status", Title: "Status", Type: board.ColumnStatus},
			{ID: "kwc", Title: "kWc", Type: board.ColumnNumber},
		},
		Groups: []board.Group{{ID: "g1", Name: "Prospects"}, {ID: "g2", Name: "Clients"}},
	}))
	require.NoError(t, catalog.CreateBoard(ctx, &board.Board{
		ID:           "admins",
		ProjectID:    "p1",
		Name:         "Direction",
		Groups:       []board.Group{{ID: "g1"}},
		AccessRights: board.AccessRights{Roles: []string{database.RoleAdmin}},
	}))

	d := Dependencies{
		Auth:          auth,
		Users:         users,
		Boards:        boards,
		Catalog:       catalog,
		Persons:       persons,
		Comments:      services.NewCommentService(boards, comments, hub),
		Notifications: comments,
		Hub:           hub,
	}
	if loginRate > 0 {
		d.LoginLimiter = NewRateLimiter(loginRate)
	}
	return &testEnv{router: NewRouter(d), auth: auth, catalog: catalog}
}

func (e *testEnv) token(t *testing.T, email, role string) string {
	t.Helper()
	token, err := e.auth.CreateJWT(&database.User{Email: email, Role: role})
	require.NoError(t, err)
	return token
}

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestAuthFlow(t *testing.T) {
	e := newTestEnv(t, 0)

	rec, env := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "yann@example.com", "password": "sunshine42", "name": "Yann",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	registered := decodeData[session](t, env)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "yann@example.com", registered.User.Email)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	rec, _ = e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "yann@example.com", "password": "sunshine42",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "lea@example.com", "password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password", env.Field)

	rec, env = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "yann@example.com", "password": "sunshine42",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	token := decodeData[session](t, env).Token

	rec, env = e.do(t, http.MethodGet, "/api/auth/verify", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "yann@example.com", decodeData[map[string]string](t, env)["email"])

	rec, env = e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "yann@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "error", env.Status)

	rec, _ = e.do(t, http.MethodGet, "/api/auth/verify", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimit(t *testing.T) {
	e := newTestEnv(t, 2)
	creds := map[string]string{"email": "nobody@example.com", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		rec, _ := e.do(t, http.MethodPost, "/api/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec, env := e.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, http.StatusTooManyRequests, env.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	e := newTestEnv(t, 0)

	rec, env := e.do(t, http.MethodGet, "/api/boards/b1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, env.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/boards/b1", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/boards/b1?token="+e.token(t, "yann@example.com", database.RoleMember), nil)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRowLifecycle(t *testing.T) {
	e := newTestEnv(t, 0)
	token := e.token(t, "yann@example.com", database.RoleMember)

	rec, env := e.do(t, http.MethodPost, "/api/boards/b1/rows", token, map[string]any{
		"groupId": "g1", "data": map[string]any{"element": "Toiture"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeData[board.Row](t, env)
	assert.Equal(t, 0, first.Order)

	rec, env = e.do(t, http.MethodPost, "/api/boards/b1/rows", token, map[string]any{"groupId": "g1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decodeData[board.Row](t, env)
	assert.Equal(t, 1, second.Order)

	rec, env = e.do(t, http.MethodPut, "/api/boards/b1/rows", token, map[string]any{
		"rowId": first.ID, "groupId": "g2", "data": map[string]any{"kwc": 36},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeData[board.Row](t, env)
	assert.Equal(t, "g2", updated.GroupID)
	assert.Equal(t, map[string]any{"kwc": float64(36)}, updated.Data)

	rec, env = e.do(t, http.MethodGet, "/api/boards/b1", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeData[boardView](t, env)
	assert.Equal(t, "CRM", view.Name)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, second.ID, view.Rows[0].ID)
	assert.Equal(t, first.ID, view.Rows[1].ID)

	rec, _ = e.do(t, http.MethodDelete, "/api/boards/b1/rows?rowId="+second.ID, token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec, env = e.do(t, http.MethodDelete, "/api/boards/b1/rows?rowId="+second.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, env.Code)

	rec, _ = e.do(t, http.MethodDelete, "/api/boards/b1/rows", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = e.do(t, http.MethodPost, "/api/boards/b1/rows", token, map[string]any{"groupId": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "groupId", env.Field)

	rec, _ = e.do(t, http.MethodPut, "/api/boards/b1/rows", token, map[string]any{"rowId": "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/boards/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateBoard(t *testing.T) {
	e := newTestEnv(t, 0)
	token := e.token(t, "yann@example.com", database.RoleMember)

	rec, env := e.do(t, http.MethodPut, "/api/boards/b1", token, map[string]any{"name": "CRM 2025", "gutterWidth": 8})
	require.Equal(t, http.StatusOK, rec.Code)
	b := decodeData[board.Board](t, env)
	assert.Equal(t, "CRM 2025", b.Name)
	assert.Equal(t, 8, b.GutterWidth)
	assert.Len(t, b.Groups, 2)

	rec, _ = e.do(t, http.MethodPut, "/api/boards/b1", token, map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPut, "/api/boards/b1", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRolesAreEnforced(t *testing.T) {
	e := newTestEnv(t, 0)
	viewer := e.token(t, "vic@example.com", database.RoleViewer)
	member := e.token(t, "yann@example.com", database.RoleMember)
	admin := e.token(t, "boss@example.com", database.RoleAdmin)

	rec, _ := e.do(t, http.MethodGet, "/api/boards/b1", viewer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, env := e.do(t, http.MethodPost, "/api/boards/b1/rows", viewer, map[string]any{"groupId": "g1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, http.StatusForbidden, env.Code)
	rec, _ = e.do(t, http.MethodPut, "/api/projects/p1/persons", viewer, []board.Person{{Name: "Yann"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = e.do(t, http.MethodGet, "/api/boards/admins", member, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = e.do(t, http.MethodGet, "/api/boards/admins", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/projects/p1/boards", member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	boards := decodeData[[]board.Board](t, env)
	require.Len(t, boards, 1)
	assert.Equal(t, "b1", boards[0].ID)
}

func TestChartEndpoint(t *testing.T) {
	e := newTestEnv(t, 0)
	token := e.token(t, "yann@example.com", database.RoleMember)
	for _, data := range []map[string]any{
		{"status": "A", "kwc": "10"},
		{"status": "A", "kwc": 1},
		{"status": "B", "kwc": 5},
	} {
		rec, _ := e.do(t, http.MethodPost, "/api/boards/b1/rows", token, map[string]any{"groupId": "g1", "data": data})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := e.do(t, http.MethodGet, "/api/boards/b1/chart?type=pie&category=status&value=kwc", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []aggregate.Point{{Name: "A", Value: 11}, {Name: "B", Value: 5}}, decodeData[[]aggregate.Point](t, env))

	rec, env = e.do(t, http.MethodGet, "/api/boards/b1/chart?category=status", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []aggregate.Point{{Name: "A", Value: 2}, {Name: "B", Value: 1}}, decodeData[[]aggregate.Point](t, env))

	rec, env = e.do(t, http.MethodGet, "/api/boards/b1/chart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]aggregate.Point](t, env))

	rec, env = e.do(t, http.MethodGet, "/api/boards/b1/chart/axes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	axes := decodeData[[]board.Column](t, env)
	require.Len(t, axes, 1)
	assert.Equal(t, "kwc", axes[0].ID)
}

func TestMarkersEndpoint(t *testing.T) {
	e := newTestEnv(t, 0)
	token := e.token(t, "yann@example.com", database.RoleMember)

	rec, _ := e.do(t, http.MethodPut, "/api/projects/p1/persons", token, []board.Person{{Name: "Yann", Color: "#2dd4bf"}})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, data := range []map[string]any{
		{"latitude": "48.85", "longitude": "2.35", "responsable": "Yann", "element": "Toiture Paris"},
		{"lat": 45.76, "lng": 4.83, "utilisateur": "Inconnu", "entreprise": "Lyon SA"},
		{"element": "Sans coordonnées"},
	} {
		rec, _ := e.do(t, http.MethodPost, "/api/boards/b1/rows", token, map[string]any{"groupId": "g1", "data": data})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, env := e.do(t, http.MethodGet, "/api/boards/b1/markers", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeData[markersResponse](t, env)
	require.Len(t, resp.Markers, 2)
	assert.Equal(t, "#2dd4bf", resp.Markers[0].Color)
	assert.Equal(t, "Toiture Paris", resp.Markers[0].Label)
	assert.Equal(t, aggregate.DefaultMarkerColor, resp.Markers[1].Color)
	assert.Equal(t, "Lyon SA", resp.Markers[1].Label)
	require.NotNil(t, resp.Bounds)
	assert.Less(t, resp.Bounds.South, 45.76)
	assert.Greater(t, resp.Bounds.North, 48.85)

	rec, env = e.do(t, http.MethodGet, "/api/boards/b1/markers?search=yann", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[markersResponse](t, env).Markers, 1)

	// Colors always come from the board's own project.
	rec, _ = e.do(t, http.MethodPut, "/api/projects/p2/persons", token, []board.Person{{Name: "Yann", Color: "#ef4444"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec, env = e.do(t, http.MethodGet, "/api/boards/b1/markers?project=p2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#2dd4bf", decodeData[markersResponse](t, env).Markers[0].Color)

	rec, env = e.do(t, http.MethodGet, "/api/boards/b1/markers?search=nothing-matches", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeData[markersResponse](t, env)
	assert.Empty(t, resp.Markers)
	assert.Nil(t, resp.Bounds)
}

func TestPersonsEndpoints(t *testing.T) {
	e := newTestEnv(t, 0)
	token := e.token(t, "yann@example.com", database.RoleMember)

	rec, env := e.do(t, http.MethodGet, "/api/projects/p1/persons", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]board.Person](t, env))

	rec, env = e.do(t, http.MethodPut, "/api/projects/p1/persons", token, []board.Person{
		{Name: "Yann", Color: "#2dd4bf"}, {Name: "Léa", Color: "#f472b6"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]board.Person](t, env), 2)

	rec, env = e.do(t, http.MethodGet, "/api/projects/p1/persons/L%C3%A9a", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#f472b6", decodeData[board.Person](t, env).Color)

	rec, _ = e.do(t, http.MethodGet, "/api/projects/p1/persons/Nobody", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = e.do(t, http.MethodPut, "/api/projects/p1/persons", token, []board.Person{{Color: "#000"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "persons[0].name", env.Field)
}

func TestCommentsAndNotifications(t *testing.T) {
	e := newTestEnv(t, 0)
	ctx := context.Background()
	_, err := e.auth.Register(ctx, "lea@example.com", "sunshine42", "Léa")
	require.NoError(t, err)

	yann := e.token(t, "yann@example.com", database.RoleMember)
	lea := e.token(t, "lea@example.com", database.RoleMember)
	marc := e.token(t, "marc@example.com", database.RoleMember)

	rec, env := e.do(t, http.MethodPost, "/api/boards/b1/rows", yann, map[string]any{"groupId": "g1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	row := decodeData[board.Row](t, env)

	rec, env = e.do(t, http.MethodPost, "/api/boards/b1/comments", yann, map[string]string{
		"rowId": row.ID, "content": "@lea can you call them? cc @Léa",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decodeData[database.Comment](t, env)
	assert.Equal(t, "yann@example.com", c.UserID)

	rec, _ = e.do(t, http.MethodPost, "/api/boards/b1/comments", yann, map[string]string{"rowId": "missing", "content": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = e.do(t, http.MethodPost, "/api/boards/b1/comments", yann, map[string]string{"rowId": row.ID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/boards/b1/comments?rowId="+row.ID, marc, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]database.Comment](t, env), 1)

	// Léa is reachable by her email local part and by her name.
	rec, env = e.do(t, http.MethodGet, "/api/notifications?unread=true", lea, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decodeData[[]database.Notification](t, env)
	require.Len(t, notes, 2)

	rec, env = e.do(t, http.MethodGet, "/api/notifications", marc, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeData[[]database.Notification](t, env))

	rec, _ = e.do(t, http.MethodPost, "/api/notifications/"+notes[0].ID+"/read", marc, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = e.do(t, http.MethodPost, "/api/notifications/"+notes[0].ID+"/read", lea, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = e.do(t, http.MethodGet, "/api/notifications?unread=true", lea, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeData[[]database.Notification](t, env), 1)
}

func TestCreateProjectBoard(t *testing.T) {
	e := newTestEnv(t, 0)
	member := e.token(t, "yann@example.com", database.RoleMember)

	rec, env := e.do(t, http.MethodPost, "/api/projects/p2/boards", member, map[string]any{
		"name":   "Suivi chantiers",
		"groups": []board.Group{{ID: "todo", Name: "À faire"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeData[board.Board](t, env)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "p2", created.ProjectID)

	rec, env = e.do(t, http.MethodGet, "/api/boards/"+created.ID, member, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Suivi chantiers", decodeData[boardView](t, env).Name)

	rec, _ = e.do(t, http.MethodPost, "/api/projects/p2/boards", member, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	viewer := e.token(t, "vic@example.com", database.RoleViewer)
	rec, _ = e.do(t, http.MethodPost, "/api/projects/p2/boards", viewer, map[string]any{"name": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionEditsReachStorage(t *testing.T) {
	e := newTestEnv(t, 0)
	token := e.token(t, "yann@example.com", database.RoleMember)

	rec, _ := e.do(t, http.MethodPost, "/api/boards/b1/rows", token, map[string]any{"groupId": "g2"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Nothing is written until the debounced save runs.
	rows, err := e.catalog.ListRows(context.Background(), "b1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
