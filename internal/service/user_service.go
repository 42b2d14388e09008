package service

import (
	"context"
	"fmt"

	"github.com/savelov/reshalka/internal/models"
	"github.com/savelov/reshalka/internal/quota"
	"github.com/savelov/reshalka/internal/repository"
)

type UserService struct {
	users  *repository.UserRepository
	ledger *quota.Ledger
}

func NewUserService(users *repository.UserRepository, ledger *quota.Ledger) *UserService {
	return &UserService{users: users, ledger: ledger}
}

// Profile is the /api/user view: the upserted user plus its current
// allowance, without consuming anything.
type Profile struct {
	User     *models.User
	Decision quota.Decision
}

func (s *UserService) Profile(ctx context.Context, telegramID int64, username, firstName string) (*Profile, error) {
	user, _, err := s.users.Ensure(ctx, telegramID, username, firstName)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	decision, err := s.ledger.Peek(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("peek quota: %w", err)
	}
	return &Profile{User: user, Decision: decision}, nil
}

func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (s *UserService) SetPro(ctx context.Context, telegramID int64, isPro bool) error {
	return s.users.SetPro(ctx, telegramID, isPro)
}

func (s *UserService) SetBanned(ctx context.Context, telegramID int64, isBanned bool) error {
	return s.users.SetBanned(ctx, telegramID, isBanned)
}

func (s *UserService) ResetRequests(ctx context.Context, telegramID int64) error {
	return s.users.ResetRequests(ctx, telegramID, timeNow())
}
