package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/savelov/reshalka/internal/repository"
)

// Reason explains a ledger decision, mirrored into API responses.
type Reason string

const (
	ReasonFree   Reason = "free"
	ReasonPro    Reason = "pro"
	ReasonLimit  Reason = "limit"
	ReasonBanned Reason = "banned"
)

// Decision is the outcome of a quota check. Remaining is meaningless when
// Unlimited is set.
type Decision struct {
	Allowed   bool
	Remaining int
	Unlimited bool
	Reason    Reason
}

// Ledger gates generation requests with a rolling free-tier window.
// Serialization between concurrent consumers of the same telegram id happens
// in the persistence layer: consuming a slot is a single conditional UPDATE.
type Ledger struct {
	users  *repository.UserRepository
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewLedger(users *repository.UserRepository, limit int, window time.Duration) *Ledger {
	return &Ledger{
		users:  users,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// CheckAndConsume takes one slot for telegramID, creating the user record if
// needed. Pro and banned users never mutate state. The window restarts lazily
// on the first call after expiry.
func (l *Ledger) CheckAndConsume(ctx context.Context, telegramID int64) (Decision, error) {
	user, _, err := l.users.Ensure(ctx, telegramID, "", "")
	if err != nil {
		return Decision{}, fmt.Errorf("ensure user: %w", err)
	}

	if user.IsBanned {
		return Decision{Reason: ReasonBanned}, nil
	}
	if user.IsPro {
		return Decision{Allowed: true, Unlimited: true, Reason: ReasonPro}, nil
	}

	now := l.now().UTC()
	if now.Sub(user.WindowStart) >= l.window {
		if err := l.users.ResetExpiredWindow(ctx, telegramID, now.Add(-l.window), now); err != nil {
			return Decision{}, err
		}
	}

	ok, err := l.users.ConsumeRequest(ctx, telegramID, l.limit)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{Reason: ReasonLimit}, nil
	}

	fresh, err := l.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return Decision{}, err
	}
	remaining := l.limit - fresh.RequestsUsed
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining, Reason: ReasonFree}, nil
}

// Peek reports the current allowance without consuming anything. Used for the
// profile endpoint, so an expired window counts as a full allowance even
// though the reset itself is deferred to the next CheckAndConsume.
func (l *Ledger) Peek(ctx context.Context, telegramID int64) (Decision, error) {
	user, _, err := l.users.Ensure(ctx, telegramID, "", "")
	if err != nil {
		return Decision{}, fmt.Errorf("ensure user: %w", err)
	}

	if user.IsBanned {
		return Decision{Reason: ReasonBanned}, nil
	}
	if user.IsPro {
		return Decision{Allowed: true, Unlimited: true, Reason: ReasonPro}, nil
	}

	used := user.RequestsUsed
	if l.now().UTC().Sub(user.WindowStart) >= l.window {
		used = 0
	}
	remaining := l.limit - used
	if remaining <= 0 {
		return Decision{Reason: ReasonLimit}, nil
	}
	return Decision{Allowed: true, Remaining: remaining, Reason: ReasonFree}, nil
}

// Limit returns the configured free-tier request limit.
func (l *Ledger) Limit() int {
	return l.limit
}
