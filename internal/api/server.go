package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/savelov/reshalka/internal/auth"
	"github.com/savelov/reshalka/internal/metrics"
	"github.com/savelov/reshalka/internal/models"
	"github.com/savelov/reshalka/internal/provider"
	"github.com/savelov/reshalka/internal/quota"
	"github.com/savelov/reshalka/internal/service"
)

const initDataHeader = "X-Telegram-Init-Data"

type Server struct {
	addr          string
	adminUsername string
	adminPassword string
	log           *slog.Logger
	auth          *auth.Authenticator
	users         *service.UserService
	solve         *service.SolveService
	solutions     *service.SolutionService
	limiter       Limiter
	router        *chi.Mux
}

// Limiter gates request bursts per telegram id.
type Limiter interface {
	Allow(userID int64) bool
}

func NewServer(addr, adminUsername, adminPassword string, log *slog.Logger, authenticator *auth.Authenticator, users *service.UserService, solve *service.SolveService, solutions *service.SolutionService, limiter Limiter) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	s := &Server{
		addr:          addr,
		adminUsername: adminUsername,
		adminPassword: adminPassword,
		log:           log,
		auth:          authenticator,
		users:         users,
		solve:         solve,
		solutions:     solutions,
		limiter:       limiter,
		router:        r,
	}

	r.Get("/api/user", s.handleUser)
	r.Post("/api/solve", s.handleSolve)
	r.Post("/api/solution", s.handleCreateSolution)
	r.Get("/s/{id}", s.handleSolutionPage)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/api/admin/users", s.handleAdminListUsers)
		protected.Post("/api/admin/pro", s.handleAdminSetPro)
		protected.Post("/api/admin/ban", s.handleAdminSetBan)
		protected.Post("/api/admin/reset", s.handleAdminReset)
	})

	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// authenticate validates the init-data header. required=false is the
// degraded path for the initial profile load, before Telegram populates the
// WebApp object; it is logged as lower trust.
func (s *Server) authenticate(r *http.Request, required bool) (*auth.TelegramUser, bool) {
	initData := r.Header.Get(initDataHeader)
	if initData == "" {
		if required {
			return nil, false
		}
		s.log.Warn("request without init data", "path", r.URL.Path, "remote", r.RemoteAddr)
		return nil, true
	}
	user, err := s.auth.Validate(initData)
	if err != nil {
		s.log.Warn("init data rejected", "path", r.URL.Path, "err", err)
		return nil, false
	}
	return user, true
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(r.URL.Query().Get("telegram_id"), 10, 64)
	if err != nil || telegramID == 0 {
		s.writeError(w, http.StatusBadRequest, "telegram_id required")
		return
	}

	tgUser, ok := s.authenticate(r, false)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Invalid Telegram authorization")
		return
	}
	if tgUser != nil && tgUser.ID != 0 && tgUser.ID != telegramID {
		s.writeError(w, http.StatusForbidden, "User ID mismatch")
		return
	}

	profile, err := s.users.Profile(r.Context(), telegramID, r.URL.Query().Get("username"), r.URL.Query().Get("first_name"))
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"telegram_id":   profile.User.TelegramID,
		"username":      profile.User.Username,
		"first_name":    profile.User.FirstName,
		"is_pro":        profile.User.IsPro,
		"is_banned":     profile.User.IsBanned,
		"requests_used": profile.User.RequestsUsed,
		"remaining":     remainingValue(profile.Decision),
		"allowed":       profile.Decision.Allowed,
		"reason":        string(profile.Decision.Reason),
	})
}

type solveRequest struct {
	Text        string             `json:"text"`
	Detail      models.DetailLevel `json:"detail"`
	ImageBase64 string             `json:"image_base64"`
	TelegramID  int64              `json:"telegram_id"`
}

type solveResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	tgUser, ok := s.authenticate(r, true)
	if !ok {
		s.writeError(w, http.StatusUnauthorized, "Invalid Telegram authorization")
		return
	}

	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if tgUser.ID != 0 && req.TelegramID != 0 && tgUser.ID != req.TelegramID {
		s.writeError(w, http.StatusForbidden, "User ID mismatch")
		return
	}
	if req.TelegramID == 0 {
		req.TelegramID = tgUser.ID
	}
	if req.TelegramID == 0 {
		s.writeError(w, http.StatusBadRequest, "telegram_id required")
		return
	}

	if s.limiter != nil && !s.limiter.Allow(req.TelegramID) {
		metrics.RateLimitDroppedTotal.Inc()
		s.writeError(w, http.StatusTooManyRequests, "Слишком много запросов, подождите минуту.")
		return
	}

	answer, err := s.solve.Solve(r.Context(), service.SolveRequest{
		TelegramID:  req.TelegramID,
		Text:        req.Text,
		ImageBase64: req.ImageBase64,
		Detail:      req.Detail,
	})
	if err != nil {
		s.writeSolveError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, solveResponse{Answer: answer})
}

func (s *Server) writeSolveError(w http.ResponseWriter, err error) {
	var apiErr *provider.APIError
	switch {
	case errors.Is(err, service.ErrEmptyRequest):
		s.writeError(w, http.StatusBadRequest, "Either text or image must be provided.")
	case errors.Is(err, service.ErrUserBanned):
		s.writeError(w, http.StatusForbidden, "Ваш аккаунт заблокирован.")
	case errors.Is(err, service.ErrQuotaExceeded):
		s.writeError(w, http.StatusTooManyRequests, "Лимит запросов исчерпан. Подождите 7 дней или оформите Pro-подписку.")
	case errors.Is(err, provider.ErrTimeout):
		s.writeError(w, http.StatusGatewayTimeout, "Сервис не успел ответить, попробуйте ещё раз.")
	case errors.As(err, &apiErr):
		s.writeError(w, http.StatusBadGateway, "Что-то пошло не так, попробуйте ещё раз.")
	default:
		s.internalError(w, err)
	}
}

type solutionCreateRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) handleCreateSolution(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r, true); !ok {
		s.writeError(w, http.StatusUnauthorized, "Invalid Telegram authorization")
		return
	}

	var req solutionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Answer) == "" {
		s.writeError(w, http.StatusBadRequest, "answer required")
		return
	}

	solution, err := s.solutions.Create(r.Context(), req.Answer)
	if err != nil {
		s.internalError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"url": s.solutions.URL(solution)})
}

func (s *Server) handleSolutionPage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	solution, err := s.solutions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrSolutionNotFound) {
			s.writeError(w, http.StatusNotFound, "Страница не существует")
			return
		}
		s.internalError(w, err)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		s.writeJSON(w, http.StatusOK, map[string]string{
			"id":     solution.ID,
			"answer": solution.AnswerText,
		})
		return
	}

	s.renderSolutionPage(w, solution)
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"telegram_id":   u.TelegramID,
			"username":      u.Username,
			"first_name":    u.FirstName,
			"is_pro":        u.IsPro,
			"is_banned":     u.IsBanned,
			"requests_used": u.RequestsUsed,
			"window_start":  u.WindowStart.Unix(),
			"created_at":    u.CreatedAt.Unix(),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAdminSetPro(w http.ResponseWriter, r *http.Request) {
	s.adminToggle(w, r, s.users.SetPro)
}

func (s *Server) handleAdminSetBan(w http.ResponseWriter, r *http.Request) {
	s.adminToggle(w, r, s.users.SetBanned)
}

func (s *Server) adminToggle(w http.ResponseWriter, r *http.Request, set func(context.Context, int64, bool) error) {
	telegramID, err := strconv.ParseInt(r.URL.Query().Get("telegram_id"), 10, 64)
	if err != nil || telegramID == 0 {
		s.writeError(w, http.StatusBadRequest, "telegram_id required")
		return
	}
	value := true
	if raw := r.URL.Query().Get("value"); raw != "" {
		value, err = strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid value")
			return
		}
	}
	if err := set(r.Context(), telegramID, value); err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	telegramID, err := strconv.ParseInt(r.URL.Query().Get("telegram_id"), 10, 64)
	if err != nil || telegramID == 0 {
		s.writeError(w, http.StatusBadRequest, "telegram_id required")
		return
	}
	if err := s.users.ResetRequests(r.Context(), telegramID); err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.adminUsername || pass != s.adminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="reshalka"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware mirrors the permissive policy the Mini App frontend needs:
// it is served from a Telegram-hosted origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+initDataHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// remainingValue renders the quota allowance the way the Mini App expects:
// an integer for the free tier, the literal string "unlimited" for Pro.
func remainingValue(d quota.Decision) any {
	if d.Unlimited {
		return "unlimited"
	}
	return d.Remaining
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("api handler error", "err", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
