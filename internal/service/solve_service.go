package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/savelov/reshalka/internal/mathtext"
	"github.com/savelov/reshalka/internal/metrics"
	"github.com/savelov/reshalka/internal/models"
	"github.com/savelov/reshalka/internal/provider"
	"github.com/savelov/reshalka/internal/quota"
)

var (
	ErrEmptyRequest  = errors.New("either text or image must be provided")
	ErrQuotaExceeded = errors.New("free request limit exhausted")
	ErrUserBanned    = errors.New("user is banned")
)

// ImageArchiver is the optional sink for submitted problem photos.
type ImageArchiver interface {
	ArchiveProblemImage(ctx context.Context, payload string) (string, error)
}

type SolveService struct {
	log      *slog.Logger
	ledger   *quota.Ledger
	provider *provider.Client
	archiver ImageArchiver
}

// NewSolveService builds the solve pipeline. archiver may be nil.
func NewSolveService(log *slog.Logger, ledger *quota.Ledger, client *provider.Client, archiver ImageArchiver) *SolveService {
	return &SolveService{
		log:      log,
		ledger:   ledger,
		provider: client,
		archiver: archiver,
	}
}

type SolveRequest struct {
	TelegramID  int64
	Text        string
	ImageBase64 string
	Detail      models.DetailLevel
}

// Solve consumes a quota slot and generates an answer. The quota is taken
// before the provider call and is not refunded on upstream failure; the
// failure is surfaced to the user instead.
func (s *SolveService) Solve(ctx context.Context, req SolveRequest) (string, error) {
	if strings.TrimSpace(req.Text) == "" && req.ImageBase64 == "" {
		return "", ErrEmptyRequest
	}
	if !req.Detail.Valid() {
		req.Detail = models.DetailShort
	}

	metrics.SolveRequestsTotal.Inc()

	decision, err := s.ledger.CheckAndConsume(ctx, req.TelegramID)
	if err != nil {
		return "", err
	}
	if !decision.Allowed {
		metrics.QuotaRejectedTotal.Inc()
		if decision.Reason == quota.ReasonBanned {
			return "", ErrUserBanned
		}
		return "", ErrQuotaExceeded
	}

	if s.archiver != nil && req.ImageBase64 != "" {
		go s.archiveImage(req.ImageBase64)
	}

	// The slot is consumed; a client disconnect must not abort the
	// generation it paid for.
	genCtx := context.WithoutCancel(ctx)

	start := time.Now()
	answer, err := s.provider.Generate(genCtx, provider.Request{
		Text:        req.Text,
		ImageBase64: req.ImageBase64,
		Detail:      req.Detail,
	})
	metrics.ProviderDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ProviderErrorsTotal.Inc()
		return "", err
	}

	return mathtext.PrepareForRender(strings.TrimSpace(answer)), nil
}

func (s *SolveService) archiveImage(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	key, err := s.archiver.ArchiveProblemImage(ctx, payload)
	if err != nil {
		s.log.Warn("problem image archive failed", "err", err)
		return
	}
	s.log.Debug("problem image archived", "key", key)
}
