package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/solarboard/solarboard/board"
)

// PersonService stores the person directory of each project.
type PersonService struct {
	db *sqlx.DB
}

func NewPersonService(db *sqlx.DB) *PersonService {
	return &PersonService{db: db}
}

// ListPersons returns the directory of a project in stored order. An
// unknown project has an empty directory.
func (s *PersonService) ListPersons(ctx context.Context, projectID string) ([]board.Person, error) {
	query, args, err := qb.Select("project_id", "position", "name", "color", "photo_url").
		From("persons").Where(sq.Eq{"project_id": projectID}).OrderBy("position").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var recs []personRecord
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query persons: %w", err)
	}
	people := make([]board.Person, 0, len(recs))
	for _, r := range recs {
		people = append(people, board.Person{Name: r.Name, Color: r.Color, PhotoURL: r.PhotoURL})
	}
	return people, nil
}

// Directory loads the project directory ready for lookups.
func (s *PersonService) Directory(ctx context.Context, projectID string) (*board.Directory, error) {
	people, err := s.ListPersons(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return board.NewDirectory(people), nil
}

// ReplacePersons overwrites the directory of a project. Rows referencing
// a renamed person are left untouched.
func (s *PersonService) ReplacePersons(ctx context.Context, projectID string, people []board.Person) error {
	if projectID == "" {
		return board.Required("projectId")
	}
	for i, p := range people {
		if p.Name == "" {
			return board.Required(fmt.Sprintf("persons[%d].name", i))
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	del, args, err := qb.Delete("persons").Where(sq.Eq{"project_id": projectID}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return fmt.Errorf("failed to clear persons: %w", err)
	}
	if len(people) > 0 {
		ins := qb.Insert("persons").Columns("project_id", "position", "name", "color", "photo_url")
		for i, p := range people {
			ins = ins.Values(projectID, i, p.Name, p.Color, p.PhotoURL)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert persons: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
