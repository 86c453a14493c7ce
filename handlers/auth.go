package handlers

import (
	"log/slog"
	"net/http"

	"github.com/solarboard/solarboard/database"
	"github.com/solarboard/solarboard/services"
)

// AuthHandler handles authentication-related endpoints
type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type session struct {
	Token string         `json:"token"`
	User  *database.User `json:"user"`
}

// Register creates an account and signs the caller in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("user registered", "user", u.Email)
	h.respondWithToken(w, r, http.StatusCreated, u)
}

// Login exchanges an email and password for a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.respondWithToken(w, r, http.StatusOK, u)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, u *database.User) {
	token, err := h.authService.CreateJWT(u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, session{Token: token, User: u})
}

// VerifyToken checks if a JWT token is valid
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenString, err := tokenFromRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	claims, err := h.authService.VerifyJWT(tokenString)
	if err != nil {
		writeError(w, r, errUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"email":  claims.Email,
		"role":   claims.Role,
		"status": "valid",
	})
}
