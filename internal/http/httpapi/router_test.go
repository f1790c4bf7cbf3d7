package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidgen/internal/adapter/memory"
	"vidgen/internal/domain"
	"vidgen/internal/generation"
	"vidgen/internal/http/handlers"
	"vidgen/internal/infra"
	"vidgen/internal/middleware"
	"vidgen/internal/providers/video"
	"vidgen/internal/ratelimit"
	"vidgen/internal/webhook"
)

const (
	jwtSecret      = "jwt-secret"
	callbackSecret = "cb-secret"
)

type stubProvider struct {
	mu     sync.Mutex
	taskID string
	err    error
}

func (p *stubProvider) Submit(context.Context, video.SubmitRequest) (*video.Submission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &video.Submission{TaskID: p.taskID}, nil
}

func (p *stubProvider) Task(context.Context, string) (*video.TaskStatus, error) {
	return nil, video.ErrRejected
}

type testEnv struct {
	handler http.Handler
	store   *memory.Store
}

func newEnv(t *testing.T, provider video.Generator, callbackURL string) *testEnv {
	t.Helper()
	store := memory.NewStore()
	for _, u := range []string{"u1", "u2"} {
		store.AddUser(u)
	}
	_, err := store.Ledger().Grant(context.Background(), "u1", 30)
	require.NoError(t, err)

	svc, err := generation.NewService(generation.Options{
		Store:    store,
		Limiter:  ratelimit.New(ratelimit.NewMemoryStore(nil)),
		Provider: provider,
		Policy: infra.StaticPolicy(infra.Policy{
			GenerationCost: 10,
			Window:         time.Minute,
			Limits:         infra.TierLimits{Free: 3, Elevated: 10},
		}),
		Logger:          zerolog.Nop(),
		CallbackURL:     callbackURL,
		ProviderTimeout: time.Second,
		Retry:           generation.Backoff{Attempts: 2, Initial: time.Millisecond},
	})
	require.NoError(t, err)

	app := &handlers.App{Jobs: svc, Logger: zerolog.Nop(), CallbackSecret: []byte(callbackSecret)}
	return &testEnv{
		handler: NewRouter(app, RouterOptions{JWTSecret: jwtSecret, CORSOrigins: []string{"*"}, Logger: zerolog.Nop()}),
		store:   store,
	}
}

func token(t *testing.T, sub, plan, role string) string {
	t.Helper()
	tok, err := middleware.SignJWT(jwtSecret, middleware.TokenClaims{
		Plan:             plan,
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
	})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) callback(t *testing.T, body string, signed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/jobs/callback", strings.NewReader(body))
	if signed {
		req.Header.Set(webhook.SignatureHeader, webhook.Sign([]byte(callbackSecret), []byte(body)))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func jobBody() map[string]any {
	return map[string]any{
		"imageUrl":     "https://img.example.com/cat.png",
		"promptParams": map[string]any{"prompt": "a cat surfing"},
	}
}

func TestSubmitPollAndCallback(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "abc123"}, "https://api.example.com/jobs/callback")
	u1 := token(t, "u1", "free", "user")

	rec := env.do(t, http.MethodPost, "/jobs", u1, jobBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Remaining"))
	jobID := decodeBody(t, rec)["jobId"].(string)

	rec = env.do(t, http.MethodGet, "/jobs/"+jobID, u1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "PROCESSING", body["status"])
	assert.NotContains(t, body, "videoUrl")

	cb := `{"code":200,"msg":"ok","data":{"taskId":"abc123","state":"success","resultUrls":["https://cdn.example.com/v.mp4"]}}`
	rec = env.callback(t, cb, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody(t, rec)["outcome"])

	rec = env.callback(t, cb, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", decodeBody(t, rec)["outcome"])

	rec = env.do(t, http.MethodGet, "/jobs/"+jobID, u1, nil)
	body = decodeBody(t, rec)
	assert.Equal(t, "COMPLETED", body["status"])
	assert.Equal(t, "https://cdn.example.com/v.mp4", body["videoUrl"])
	assert.EqualValues(t, 100, body["progress"])

	rec = env.do(t, http.MethodGet, "/credits", u1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 20, decodeBody(t, rec)["balance"])
}

func TestStatusHiddenFromOtherUsers(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "abc123"}, "")
	rec := env.do(t, http.MethodPost, "/jobs", token(t, "u1", "", ""), jobBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeBody(t, rec)["jobId"].(string)

	rec = env.do(t, http.MethodGet, "/jobs/"+jobID, token(t, "u2", "", ""), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/jobs/"+jobID, token(t, "admin", "", "admin"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/jobs/"+jobID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitRateLimited(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "t"}, "")
	env.store.AddUser("rich")
	_, err := env.store.Ledger().Grant(context.Background(), "rich", 1000)
	require.NoError(t, err)
	rich := token(t, "rich", "free", "user")

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/jobs", rich, jobBody())
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := env.do(t, http.MethodPost, "/jobs", rich, jobBody())
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "rate_limited", body["error"])
	assert.EqualValues(t, 3, body["limit"])
	assert.EqualValues(t, 0, body["remaining"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestOnBehalfSubmissionsCountAgainstRequester(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "t"}, "")
	env.store.AddUser("rich")
	_, err := env.store.Ledger().Grant(context.Background(), "rich", 1000)
	require.NoError(t, err)
	admin := token(t, "root", "pro", "admin")
	body := jobBody()
	body["requesterId"] = "rich"

	for i := 0; i < 3; i++ {
		rec := env.do(t, http.MethodPost, "/jobs", admin, body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := env.do(t, http.MethodPost, "/jobs", admin, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(t, http.MethodPost, "/jobs", token(t, "rich", "free", "user"), jobBody())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// The admin's own budget is untouched.
	rec = env.do(t, http.MethodPost, "/jobs", admin, map[string]any{
		"imageUrl":     "https://img.example.com/cat.png",
		"promptParams": map[string]any{"prompt": "a cat surfing"},
		"requesterId":  "u1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	require.NoError(t, env.store.SetAccount("u1", domain.UserPlanPro, domain.UserRoleUser))
	rec = env.do(t, http.MethodPost, "/jobs", admin, map[string]any{
		"imageUrl":     "https://img.example.com/cat.png",
		"promptParams": map[string]any{"prompt": "a cat surfing"},
		"requesterId":  "u1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))

	body["requesterId"] = "nobody"
	rec = env.do(t, http.MethodPost, "/jobs", admin, body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitInsufficientCredits(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "t"}, "")
	rec := env.do(t, http.MethodPost, "/jobs", token(t, "u2", "", ""), jobBody())
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 10, body["required"])
	assert.EqualValues(t, 0, body["balance"])
	assert.Equal(t, 0, env.store.JobCount())
}

func TestSubmitValidationAndOwnership(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "t"}, "")
	u1 := token(t, "u1", "", "")

	rec := env.do(t, http.MethodPost, "/jobs", u1, map[string]any{"imageUrl": "nope", "promptParams": map[string]any{"prompt": "x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := jobBody()
	body["requesterId"] = "u2"
	rec = env.do(t, http.MethodPost, "/jobs", u1, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, env.store.JobCount())
}

func TestProviderFailureSurfacesThroughStatus(t *testing.T) {
	env := newEnv(t, &stubProvider{err: domain.ErrProviderUnavailable}, "")
	u1 := token(t, "u1", "", "")

	rec := env.do(t, http.MethodPost, "/jobs", u1, jobBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "FAILED", body["status"])

	rec = env.do(t, http.MethodGet, "/jobs/"+body["jobId"].(string), u1, nil)
	status := decodeBody(t, rec)
	assert.Equal(t, "FAILED", status["status"])
	assert.NotEmpty(t, status["errorMessage"])

	rec = env.do(t, http.MethodGet, "/credits", u1, nil)
	assert.EqualValues(t, 30, decodeBody(t, rec)["balance"])
}

func TestCallbackResponses(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "t"}, "")

	rec := env.callback(t, `{"taskId":"ghost","state":"success"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.callback(t, `{"taskId":"ghost","state":"success","resultUrls":["https://x/v.mp4"]}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "unknown_task", decodeBody(t, rec)["outcome"])

	rec = env.callback(t, `{"state":"success"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrantCreditsAdminOnly(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "t"}, "")
	grant := map[string]any{"userId": "u2", "amount": 25}

	rec := env.do(t, http.MethodPost, "/credits/grants", token(t, "u1", "", ""), grant)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/credits/grants", token(t, "root", "", "admin"), grant)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 25, decodeBody(t, rec)["balance"])

	rec = env.do(t, http.MethodPost, "/credits/grants", token(t, "root", "", "admin"), map[string]any{"userId": "nobody", "amount": 5})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyntheticProviderEndToEnd(t *testing.T) {
	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	synthetic := video.NewSynthetic(20*time.Millisecond, []byte(callbackSecret), zerolog.Nop())
	env := newEnv(t, synthetic, srv.URL+"/jobs/callback")
	handler = env.handler
	u1 := token(t, "u1", "", "")

	rec := env.do(t, http.MethodPost, "/jobs", u1, jobBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	jobID := decodeBody(t, rec)["jobId"].(string)

	require.Eventually(t, func() bool {
		rec := env.do(t, http.MethodGet, "/jobs/"+jobID, u1, nil)
		return decodeBody(t, rec)["status"] == "COMPLETED"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPublicDocumentationRoutes(t *testing.T) {
	env := newEnv(t, &stubProvider{taskID: "t"}, "")

	rec := env.do(t, http.MethodGet, "/openapi.json", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody(t, rec)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/jobs", "/jobs/{jobId}", "/jobs/callback", "/credits"} {
		assert.Contains(t, paths, p)
	}

	rec = env.do(t, http.MethodGet, "/docs", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/openapi.json")
}
