package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/savelov/reshalka/internal/models"
)

type SolutionRepository struct {
	db *sql.DB
}

func NewSolutionRepository(db *sql.DB) *SolutionRepository {
	return &SolutionRepository{db: db}
}

func (r *SolutionRepository) Create(ctx context.Context, solution *models.Solution) error {
	const query = `INSERT INTO solutions (id, answer_text, created_at) VALUES (?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, solution.ID, solution.AnswerText, solution.CreatedAt.Unix()); err != nil {
		return fmt.Errorf("insert solution: %w", err)
	}
	return nil
}

func (r *SolutionRepository) FindByID(ctx context.Context, id string) (*models.Solution, error) {
	const query = `SELECT id, answer_text, created_at FROM solutions WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var (
		s         models.Solution
		createdAt int64
	)
	if err := row.Scan(&s.ID, &s.AnswerText, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan solution: %w", err)
	}
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}
