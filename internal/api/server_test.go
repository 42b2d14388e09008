package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/savelov/reshalka/internal/auth"
	"github.com/savelov/reshalka/internal/database"
	"github.com/savelov/reshalka/internal/provider"
	"github.com/savelov/reshalka/internal/quota"
	"github.com/savelov/reshalka/internal/repository"
	"github.com/savelov/reshalka/internal/service"
)

const testBotToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

type testEnv struct {
	server *httptest.Server
	users  *repository.UserRepository
	db     *sql.DB
}

func newTestEnv(t *testing.T, providerHandler http.HandlerFunc) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	upstream := httptest.NewServer(providerHandler)
	t.Cleanup(upstream.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	solutions := repository.NewSolutionRepository(db)
	ledger := quota.NewLedger(users, 10, 7*24*time.Hour)
	client := provider.NewClient(provider.Settings{
		Name:    "test",
		BaseURL: upstream.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Style:   provider.StyleOpenAI,
	}, 5*time.Second, log)

	srv := NewServer("127.0.0.1:0", "admin", "secret", log,
		auth.New(testBotToken, 24*time.Hour),
		service.NewUserService(users, ledger),
		service.NewSolveService(log, ledger, client, nil),
		service.NewSolutionService(solutions),
		nil,
	)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, users: users, db: db}
}

func okProvider(answer string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"choices":[{"message":{"content":%q}}]}`, answer)
	}
}

func signInitData(t *testing.T, telegramID int64) string {
	t.Helper()

	values := url.Values{}
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))
	values.Set("user", fmt.Sprintf(`{"id":%d,"first_name":"Оля","username":"olya"}`, telegramID))

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+values.Get(key))
	}

	secretMAC := hmac.New(sha256.New, []byte("WebAppData"))
	secretMAC.Write([]byte(testBotToken))
	mac := hmac.New(sha256.New, secretMAC.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func postJSON(t *testing.T, env *testEnv, path, initData string, body any) *http.Response {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if initData != "" {
		req.Header.Set(initDataHeader, initData)
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestSolve(t *testing.T) {
	env := newTestEnv(t, okProvider("x = 5"))

	resp := postJSON(t, env, "/api/solve", signInitData(t, 42), map[string]any{
		"text": "2x = 10", "detail": "short", "telegram_id": 42,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("solve status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["answer"] != "x = 5" {
		t.Errorf("answer = %q", body["answer"])
	}

	u, err := env.users.FindByTelegramID(context.Background(), 42)
	if err != nil || u == nil {
		t.Fatalf("FindByTelegramID: user=%v err=%v", u, err)
	}
	if u.RequestsUsed != 1 {
		t.Errorf("requests_used = %d, want 1", u.RequestsUsed)
	}
}

func TestSolveWithoutAuth(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	resp := postJSON(t, env, "/api/solve", "", map[string]any{"text": "2x = 10", "telegram_id": 42})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestSolveUserIDMismatch(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	resp := postJSON(t, env, "/api/solve", signInitData(t, 42), map[string]any{"text": "2x = 10", "telegram_id": 99})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want 403", resp.StatusCode)
	}
}

func TestSolveQuotaExhausted(t *testing.T) {
	env := newTestEnv(t, okProvider("ответ"))
	initData := signInitData(t, 7)

	for i := 0; i < 10; i++ {
		resp := postJSON(t, env, "/api/solve", initData, map[string]any{"text": "задача", "telegram_id": 7})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, resp.StatusCode)
		}
	}

	resp := postJSON(t, env, "/api/solve", initData, map[string]any{"text": "задача", "telegram_id": 7})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("11th request status = %d, want 429", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if !strings.Contains(body["detail"].(string), "Лимит") {
		t.Errorf("detail = %q", body["detail"])
	}

	var count int
	if err := env.db.QueryRow("SELECT COUNT(*) FROM solutions").Scan(&count); err != nil {
		t.Fatalf("count solutions: %v", err)
	}
	if count != 0 {
		t.Errorf("solutions stored = %d, want 0", count)
	}
}

func TestSolveProviderError(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient credits"}`, http.StatusPaymentRequired)
	})

	resp := postJSON(t, env, "/api/solve", signInitData(t, 42), map[string]any{"text": "задача", "telegram_id": 42})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestSolveEmptyRequest(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	resp := postJSON(t, env, "/api/solve", signInitData(t, 42), map[string]any{"telegram_id": 42})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSolutionLifecycle(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))
	answer := "Ответ: \\(x = 5\\)"

	resp := postJSON(t, env, "/api/solution", signInitData(t, 42), map[string]string{"answer": answer})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	pageURL, _ := body["url"].(string)
	if !strings.HasPrefix(pageURL, "/s/") {
		t.Fatalf("url = %q", pageURL)
	}

	pageResp, err := env.server.Client().Get(env.server.URL + pageURL)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	defer pageResp.Body.Close()
	if pageResp.StatusCode != http.StatusOK {
		t.Fatalf("page status = %d", pageResp.StatusCode)
	}
	page, _ := io.ReadAll(pageResp.Body)
	if !strings.Contains(string(page), "x = 5") {
		t.Errorf("page does not contain the answer: %s", page)
	}
	if !strings.Contains(pageResp.Header.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", pageResp.Header.Get("Content-Type"))
	}
}

func TestSolutionPageNotFound(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	resp, err := env.server.Client().Get(env.server.URL + "/s/no-such-id")
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestUserProfile(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/user?telegram_id=42&username=olya&first_name=Оля", nil)
	req.Header.Set(initDataHeader, signInitData(t, 42))
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["telegram_id"].(float64) != 42 {
		t.Errorf("telegram_id = %v", body["telegram_id"])
	}
	if body["remaining"].(float64) != 10 {
		t.Errorf("remaining = %v", body["remaining"])
	}
	if body["allowed"] != true {
		t.Errorf("allowed = %v", body["allowed"])
	}
}

func TestUserProfileDegraded(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	resp, err := env.server.Client().Get(env.server.URL + "/api/user?telegram_id=42")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status without init data = %d, want 200", resp.StatusCode)
	}
}

func TestUserProfileBadInitData(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/user?telegram_id=42", nil)
	req.Header.Set(initDataHeader, "hash=deadbeef&auth_date=1")
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestProUserRemainingUnlimited(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))
	ctx := context.Background()

	if _, _, err := env.users.Ensure(ctx, 42, "olya", "Оля"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := env.users.SetPro(ctx, 42, true); err != nil {
		t.Fatalf("set pro: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/user?telegram_id=42", nil)
	req.Header.Set(initDataHeader, signInitData(t, 42))
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	defer resp.Body.Close()
	body := decodeBody(t, resp)
	if body["remaining"] != "unlimited" {
		t.Errorf("remaining = %v, want unlimited", body["remaining"])
	}
}

func TestAdminRoutesRequireBasicAuth(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))

	resp, err := env.server.Client().Get(env.server.URL + "/api/admin/users")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminSetProAndList(t *testing.T) {
	env := newTestEnv(t, okProvider("unused"))
	ctx := context.Background()

	if _, _, err := env.users.Ensure(ctx, 42, "olya", "Оля"); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, env.server.URL+"/api/admin/pro?telegram_id=42&value=true", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("set pro: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set pro status = %d", resp.StatusCode)
	}

	u, err := env.users.FindByTelegramID(ctx, 42)
	if err != nil || u == nil {
		t.Fatalf("find: user=%v err=%v", u, err)
	}
	if !u.IsPro {
		t.Error("user is not pro after admin toggle")
	}
}

type blockAllLimiter struct{}

func (blockAllLimiter) Allow(int64) bool { return false }

func TestRateLimited(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "rl.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	ledger := quota.NewLedger(users, 10, 7*24*time.Hour)
	client := provider.NewClient(provider.Settings{Name: "test", BaseURL: "http://127.0.0.1:1", Model: "m", Style: provider.StyleOpenAI}, time.Second, log)

	srv := NewServer("127.0.0.1:0", "admin", "secret", log,
		auth.New(testBotToken, 24*time.Hour),
		service.NewUserService(users, ledger),
		service.NewSolveService(log, ledger, client, nil),
		service.NewSolutionService(repository.NewSolutionRepository(db)),
		blockAllLimiter{},
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	raw, _ := json.Marshal(map[string]any{"text": "задача", "telegram_id": 42})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/solve", bytes.NewReader(raw))
	req.Header.Set(initDataHeader, signInitData(t, 42))
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
}
