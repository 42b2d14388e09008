package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/savelov/reshalka/internal/metrics"
	"github.com/savelov/reshalka/internal/models"
	"github.com/savelov/reshalka/internal/repository"
)

var ErrSolutionNotFound = errors.New("solution not found")

// SolutionService persists generated answers as shareable pages. Ids are
// random uuids: pages carry no per-viewer authorization, so they must not be
// enumerable.
type SolutionService struct {
	solutions *repository.SolutionRepository
}

func NewSolutionService(solutions *repository.SolutionRepository) *SolutionService {
	return &SolutionService{solutions: solutions}
}

func (s *SolutionService) Create(ctx context.Context, answer string) (*models.Solution, error) {
	solution := &models.Solution{
		ID:         uuid.NewString(),
		AnswerText: strings.TrimSpace(answer),
		CreatedAt:  timeNow(),
	}
	if err := s.solutions.Create(ctx, solution); err != nil {
		return nil, fmt.Errorf("create solution: %w", err)
	}
	metrics.SolutionsCreatedTotal.Inc()
	return solution, nil
}

func (s *SolutionService) Get(ctx context.Context, id string) (*models.Solution, error) {
	solution, err := s.solutions.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find solution: %w", err)
	}
	if solution == nil {
		return nil, ErrSolutionNotFound
	}
	return solution, nil
}

// URL returns the public path the Mini App navigates to after generation.
func (s *SolutionService) URL(solution *models.Solution) string {
	return "/s/" + solution.ID
}

func timeNow() time.Time {
	return time.Now().UTC()
}
