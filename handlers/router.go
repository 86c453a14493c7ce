package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/solarboard/solarboard/services"
)

// Dependencies are the collaborators the HTTP API is built from.
type Dependencies struct {
	Auth          *services.AuthService
	Users         UserStore
	Boards        *services.BoardService
	Catalog       BoardCatalog
	Persons       PersonStore
	Comments      *services.CommentService
	Notifications NotificationStore
	Hub           *services.Hub

	// LoginLimiter throttles login and registration; nil disables it.
	LoginLimiter   *RateLimiter
	AllowedOrigins []string
}

// NewRouter mounts the API under /api.
func NewRouter(d Dependencies) *mux.Router {
	authHandler := NewAuthHandler(d.Auth)
	boardHandler := NewBoardHandler(d.Boards, d.Catalog, d.Persons)
	commentHandler := NewCommentHandler(d.Boards, d.Comments, d.Notifications, d.Users)
	personHandler := NewPersonHandler(d.Persons)
	wsHandler := NewWebSocketHandler(d.Hub, d.Users, d.AllowedOrigins)
	authMiddleware := NewAuthMiddleware(d.Auth)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	// Auth routes
	login := http.Handler(http.HandlerFunc(authHandler.Login))
	register := http.Handler(http.HandlerFunc(authHandler.Register))
	if d.LoginLimiter != nil {
		login = d.LoginLimiter.Limit(login)
		register = d.LoginLimiter.Limit(register)
	}
	api.Handle("/auth/login", login).Methods(http.MethodPost)
	api.Handle("/auth/register", register).Methods(http.MethodPost)
	api.HandleFunc("/auth/verify", authHandler.VerifyToken).Methods(http.MethodGet)

	// Protected routes
	p := api.NewRoute().Subrouter()
	p.Use(authMiddleware.Auth)

	p.HandleFunc("/projects/{id}/boards", boardHandler.ListProjectBoards).Methods(http.MethodGet)
	p.HandleFunc("/projects/{id}/boards", boardHandler.CreateProjectBoard).Methods(http.MethodPost)
	p.HandleFunc("/projects/{id}/persons", personHandler.ListPersons).Methods(http.MethodGet)
	p.HandleFunc("/projects/{id}/persons", personHandler.ReplacePersons).Methods(http.MethodPut)
	p.HandleFunc("/projects/{id}/persons/{name}", personHandler.GetPerson).Methods(http.MethodGet)

	p.HandleFunc("/boards/{id}", boardHandler.GetBoard).Methods(http.MethodGet)
	p.HandleFunc("/boards/{id}", boardHandler.UpdateBoard).Methods(http.MethodPut)
	p.HandleFunc("/boards/{id}/rows", boardHandler.CreateRow).Methods(http.MethodPost)
	p.HandleFunc("/boards/{id}/rows", boardHandler.UpdateRow).Methods(http.MethodPut)
	p.HandleFunc("/boards/{id}/rows", boardHandler.DeleteRow).Methods(http.MethodDelete)
	p.HandleFunc("/boards/{id}/chart", boardHandler.Chart).Methods(http.MethodGet)
	p.HandleFunc("/boards/{id}/chart/axes", boardHandler.ChartAxes).Methods(http.MethodGet)
	p.HandleFunc("/boards/{id}/markers", boardHandler.Markers).Methods(http.MethodGet)
	p.HandleFunc("/boards/{id}/comments", commentHandler.CreateComment).Methods(http.MethodPost)
	p.HandleFunc("/boards/{id}/comments", commentHandler.ListComments).Methods(http.MethodGet)

	p.HandleFunc("/notifications", commentHandler.ListNotifications).Methods(http.MethodGet)
	p.HandleFunc("/notifications/{id}/read", commentHandler.MarkNotificationRead).Methods(http.MethodPost)

	// WebSocket route for real-time updates
	p.HandleFunc("/ws", wsHandler.HandleWebSocket)

	return r
}
