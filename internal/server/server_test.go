package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/cache"
	"github.com/ineyio/voicepool/internal/server"
	"github.com/ineyio/voicepool/provider/mock"
	"github.com/ineyio/voicepool/store"
)

const adminPassword = "correct horse battery staple"

type catalog []voicepool.Voice

func (c catalog) Voices() []voicepool.Voice { return c }

type harness struct {
	handler http.Handler
	pool    *voicepool.Pool
	store   *store.MemoryStore
	prov    *mock.Provider
}

func newHarness(t *testing.T, mutate func(*voicepool.ServerConfig)) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := voicepool.DefaultConfig()
	cfg.Server.AdminPassword = adminPassword
	if mutate != nil {
		mutate(&cfg.Server)
	}

	st := store.NewMemoryStore()
	prov := mock.New()
	pool, err := voicepool.NewPool(cfg, st, prov, voicepool.WithLogger(logger))
	require.NoError(t, err)

	srv := server.New(pool, cache.NewMemory(), cfg.Server,
		server.WithLogger(logger),
		server.WithLoginDelay(0),
		server.WithVoices(catalog{
			{ID: "v1", Name: "Helmut", Language: "de", PreviewText: "Guten Tag, ich bin Helmut."},
			{ID: "v2", Name: "Silent", Language: "de"},
		}),
		server.WithMetricsHandler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})),
	)
	return &harness{handler: srv.Handler(), pool: pool, store: st, prov: prov}
}

func (h *harness) addCredential(t *testing.T, label string, remaining int64) voicepool.Credential {
	t.Helper()
	secret := "sk_" + label + "_0123456789abcdef"
	c, err := h.store.Create(context.Background(), label, secret, remaining)
	require.NoError(t, err)
	h.prov.SetUsage(secret, 0, remaining)
	return c
}

func (h *harness) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/admin/login", server.LoginRequest{Password: adminPassword}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp server.LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Token, 64)
	return resp.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func text(n int) string {
	return strings.Repeat("a", n)
}

// Test 1: health and metrics endpoints.
func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[server.HealthResponse](t, rec).Status)

	rec = h.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics", rec.Body.String())
}

// Test 2: synthesis streams audio and records usage.
func TestSynthesize(t *testing.T) {
	h := newHarness(t, nil)
	c := h.addCredential(t, "main", 5000)

	rec := h.do(t, http.MethodPost, "/api/v1/tts", server.SynthesisRequest{Text: text(300), VoiceID: "v1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "main", rec.Header().Get("X-Voicepool-Credential"))
	assert.Equal(t, "1", rec.Header().Get("X-Voicepool-Attempts"))
	assert.Equal(t, text(300), rec.Body.String())

	got, err := h.store.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4700), got.RemainingQuota)
}

// Test 3: text length bounds.
func TestSynthesize_TextBounds(t *testing.T) {
	h := newHarness(t, nil)
	h.addCredential(t, "main", 20000)

	for _, n := range []int{0, 99, 10001} {
		rec := h.do(t, http.MethodPost, "/api/v1/tts", server.SynthesisRequest{Text: text(n)}, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "length %d", n)
	}
	assert.Equal(t, int64(0), h.prov.SynthCalls())
}

// Test 4: no credential maps to 503.
func TestSynthesize_NoCredential(t *testing.T) {
	h := newHarness(t, nil)
	h.addCredential(t, "small", 150)

	rec := h.do(t, http.MethodPost, "/api/v1/tts", server.SynthesisRequest{Text: text(500)}, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, decode[map[string]string](t, rec)["error"], "no credential available")
}

// Test 5: fixed window rate limit per client.
func TestRateLimit(t *testing.T) {
	h := newHarness(t, func(c *voicepool.ServerConfig) {
		c.RateLimit = voicepool.RateLimitConfig{Requests: 2, Window: time.Minute}
	})
	h.addCredential(t, "main", 10000)

	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodPost, "/api/v1/tts", server.SynthesisRequest{Text: text(100)}, "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := h.do(t, http.MethodPost, "/api/v1/tts", server.SynthesisRequest{Text: text(100)}, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Another client has its own window.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tts", strings.NewReader(`{"text":"`+text(100)+`"}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	other := httptest.NewRecorder()
	h.handler.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

// Test 6: split plan and shortfall.
func TestSplit(t *testing.T) {
	h := newHarness(t, nil)
	h.addCredential(t, "a", 5000)
	h.addCredential(t, "b", 3000)

	rec := h.do(t, http.MethodPost, "/api/v1/split", server.SplitRequest{Text: strings.Repeat("word ", 1000)}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[server.SplitResponse](t, rec)
	assert.Equal(t, int64(5000), resp.TotalChars)
	require.Len(t, resp.Chunks, 2)
	assert.Zero(t, resp.Uncovered)

	rec = h.do(t, http.MethodPost, "/api/v1/split", server.SplitRequest{Text: strings.Repeat("word ", 3000)}, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Positive(t, decode[server.SplitResponse](t, rec).Uncovered)

	rec = h.do(t, http.MethodPost, "/api/v1/split", server.SplitRequest{Text: "   "}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Test 7: public quota and voices.
func TestQuotaAndVoices(t *testing.T) {
	h := newHarness(t, nil)
	h.addCredential(t, "a", 5000)
	h.addCredential(t, "b", 3000)

	rec := h.do(t, http.MethodGet, "/api/v1/quota", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, server.QuotaResponse{MaxPerRequest: 5000, TotalAvailable: 8000, ActiveCount: 2}, decode[server.QuotaResponse](t, rec))

	rec = h.do(t, http.MethodGet, "/api/v1/voices", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	voices := decode[[]voicepool.Voice](t, rec)
	require.Len(t, voices, 2)
	assert.Equal(t, "Helmut", voices[0].Name)
	assert.Equal(t, "Guten Tag, ich bin Helmut.", voices[0].PreviewText)
}

// Test 8: admin login and session checks.
func TestAdminLogin(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/v1/admin/login", server.LoginRequest{Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/credentials", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/credentials", nil, "not-a-session")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := h.login(t)
	rec = h.do(t, http.MethodGet, "/api/v1/admin/credentials", nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/logout", nil, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodGet, "/api/v1/admin/credentials", nil, token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Test 9: admin is disabled without a password.
func TestAdminDisabled(t *testing.T) {
	h := newHarness(t, func(c *voicepool.ServerConfig) { c.AdminPassword = "" })
	rec := h.do(t, http.MethodPost, "/api/v1/admin/login", server.LoginRequest{Password: "anything"}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// Test 10: credential create, list, toggle and delete.
func TestAdminCredentials(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/v1/admin/credentials",
		server.CreateCredentialRequest{Label: "first", Secret: "sk_first_0123456789abcdef"}, token)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[voicepool.CredentialSummary](t, rec)
	assert.Equal(t, int64(10000), first.TotalQuota)
	assert.Equal(t, "sk_first...cdef", first.MaskedSecret)
	assert.NotContains(t, rec.Body.String(), "0123456789")

	rec = h.do(t, http.MethodPost, "/api/v1/admin/credentials",
		server.CreateCredentialRequest{Label: "dup", Secret: "sk_first_0123456789abcdef"}, token)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/credentials",
		server.CreateCredentialRequest{Label: "second", Secret: "sk_second_0123456789abcdef", TotalQuota: 500}, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/admin/credentials?page=1&limit=1", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[server.CredentialListResponse](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "second", list.Data[0].Label)
	assert.Equal(t, server.Pagination{Page: 1, Limit: 1, Total: 2, TotalPages: 2}, list.Pagination)

	off := false
	rec = h.do(t, http.MethodPatch, "/api/v1/admin/credentials/"+first.ID, server.UpdateCredentialRequest{Active: &off}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[voicepool.CredentialSummary](t, rec).Active)

	rec = h.do(t, http.MethodPatch, "/api/v1/admin/credentials/"+first.ID, map[string]any{}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/v1/admin/credentials/"+first.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(t, http.MethodDelete, "/api/v1/admin/credentials/"+first.ID, nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Test 11: admin sync endpoints.
func TestAdminSync(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	a := h.addCredential(t, "a", 5000)
	b := h.addCredential(t, "b", 3000)

	h.prov.SetUsage("sk_a_0123456789abcdef", 4000, 5000)
	rec := h.do(t, http.MethodPost, "/api/v1/admin/credentials/"+a.ID+"/sync", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1000), decode[voicepool.CredentialSummary](t, rec).RemainingQuota)

	h.prov.FailUsage("sk_b_0123456789abcdef", voicepool.ErrProviderUnavailable)
	rec = h.do(t, http.MethodPost, "/api/v1/admin/credentials/"+b.ID+"/sync", nil, token)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/sync", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[server.SyncAllResponse](t, rec)
	assert.Equal(t, 1, resp.Synced)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 2, resp.Quota.TotalCount)

	rec = h.do(t, http.MethodPost, "/api/v1/admin/credentials/missing/sync", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Test 12: voice previews skip the text bounds and use the pool.
func TestVoicePreview(t *testing.T) {
	h := newHarness(t, nil)
	a := h.addCredential(t, "a", 1000)

	rec := h.do(t, http.MethodPost, "/api/v1/voices/v1/preview", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "a", rec.Header().Get("X-Voicepool-Credential"))
	assert.NotEmpty(t, rec.Body.Bytes())

	log := h.prov.SynthLog()
	require.Len(t, log, 1)
	assert.Equal(t, "Guten Tag, ich bin Helmut.", log[0].Text)

	got, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000-26), got.RemainingQuota)

	rec = h.do(t, http.MethodPost, "/api/v1/voices/nope/preview", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/v1/voices/v2/preview", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Test 13: pages past the end are empty, however large the page number.
func TestAdminCredentialsPagePastEnd(t *testing.T) {
	h := newHarness(t, nil)
	token := h.login(t)
	h.addCredential(t, "a", 1000)
	h.addCredential(t, "b", 1000)

	for _, page := range []string{"3", "9223372036854775807", "4611686018427387904"} {
		rec := h.do(t, http.MethodGet, "/api/v1/admin/credentials?limit=100&page="+page, nil, token)
		require.Equal(t, http.StatusOK, rec.Code, "page %s", page)
		list := decode[server.CredentialListResponse](t, rec)
		assert.Empty(t, list.Data)
		assert.Equal(t, 2, list.Pagination.Total)
	}
}

// Test 14: active-only syncs go through a running sweeper.
func TestAdminSyncActiveOnlyUsesSweeper(t *testing.T) {
	h := newHarness(t, nil)
	a := h.addCredential(t, "a", 5000)
	off := h.addCredential(t, "off", 3000)
	require.NoError(t, h.pool.SetActive(context.Background(), off.ID, false))
	h.prov.SetUsage("sk_a_0123456789abcdef", 1000, 5000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sweeper := voicepool.NewSweeper(h.pool)
	go sweeper.Start(ctx)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := voicepool.DefaultConfig()
	cfg.Server.AdminPassword = adminPassword
	srv := server.New(h.pool, cache.NewMemory(), cfg.Server,
		server.WithLogger(logger),
		server.WithLoginDelay(0),
		server.WithSweeper(sweeper),
	)
	h.handler = srv.Handler()
	token := h.login(t)

	rec := h.do(t, http.MethodPost, "/api/v1/admin/sync?active_only=true", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[server.SyncAllResponse](t, rec)
	assert.Equal(t, 1, resp.Synced)
	assert.Equal(t, 0, resp.Failed)
	assert.Equal(t, 0, h.prov.UsageCallsFor("sk_off_0123456789abcdef"))

	got, err := h.store.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), got.RemainingQuota)
}
