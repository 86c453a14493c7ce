package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/solarboard/solarboard/board"
	"github.com/solarboard/solarboard/database"
)

// PersonStore keeps the person directory of each project.
type PersonStore interface {
	DirectoryProvider
	ListPersons(ctx context.Context, projectID string) ([]board.Person, error)
	ReplacePersons(ctx context.Context, projectID string, people []board.Person) error
}

type PersonHandler struct {
	persons PersonStore
}

func NewPersonHandler(persons PersonStore) *PersonHandler {
	return &PersonHandler{persons: persons}
}

func (h *PersonHandler) ListPersons(w http.ResponseWriter, r *http.Request) {
	if _, err := claimsFrom(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	people, err := h.persons.ListPersons(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, people)
}

// GetPerson resolves one directory entry by exact name.
func (h *PersonHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	if _, err := claimsFrom(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	dir, err := h.persons.Directory(r.Context(), vars["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, ok := dir.Lookup(vars["name"])
	if !ok {
		writeError(w, r, board.ErrPersonNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ReplacePersons overwrites the directory of a project.
func (h *PersonHandler) ReplacePersons(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFrom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if claims.Role == database.RoleViewer {
		writeError(w, r, errForbidden)
		return
	}
	var people []board.Person
	if err := decodeJSON(r, &people); err != nil {
		writeError(w, r, err)
		return
	}
	projectID := mux.Vars(r)["id"]
	if err := h.persons.ReplacePersons(r.Context(), projectID, people); err != nil {
		writeError(w, r, err)
		return
	}
	people, err = h.persons.ListPersons(r.Context(), projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, people)
}
