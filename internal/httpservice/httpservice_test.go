package httpservice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelog "folio-core/internal/core/log"
	storageredis "folio-core/internal/core/storage/redis"
	"folio-core/internal/health"
	"folio-core/internal/ratelimit"
	"folio-core/internal/signing"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func newLimitedRouter(t *testing.T, gw *storageredis.Gateway) *mux.Router {
	t.Helper()
	limiter := ratelimit.New(gw,
		ratelimit.WithPresets(map[ratelimit.Preset]ratelimit.Limit{
			ratelimit.PresetStrict: {Window: time.Minute, MaxRequests: 2},
		}),
		ratelimit.WithLogger(corelog.NewTestLogger(t)),
	)
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(RateLimit(limiter, ratelimit.PresetStrict, "", corelog.NewTestLogger(t)))
	api.HandleFunc("/series/{id}", okHandler)
	return r
}

func TestRateLimit_DeniesOverLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	gw := storageredis.New(context.Background(), storageredis.Config{URL: "redis://" + mr.Addr()})
	defer gw.Close()
	router := newLimitedRouter(t, gw)

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	// 路径参数不同但路由模板相同，共享一个窗口
	assert.Equal(t, http.StatusOK, do("/api/series/1").Code)
	second := do("/api/series/2")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "0", second.Header().Get(ratelimit.HeaderRemaining))

	denied := do("/api/series/3")
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.NotEmpty(t, denied.Header().Get(ratelimit.HeaderRetryAfter))

	var body ResponseData
	require.NoError(t, json.Unmarshal(denied.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "too many requests", body.Error)
}

func TestRateLimit_FailsOpenWithoutStore(t *testing.T) {
	gw := storageredis.New(context.Background(), storageredis.Config{})
	router := newLimitedRouter(t, gw)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series/1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func newSignedRouter(t *testing.T, settings signing.Settings, expose bool, now func() time.Time) *mux.Router {
	t.Helper()
	provider := signing.NewSettingsProvider(nil, settings, signing.WithProviderClock(now))
	r := mux.NewRouter()
	media := r.PathPrefix("/media").Subrouter()
	media.Use(SignedURL(provider, SignedURLOptions{ExposeReasons: expose, Logger: corelog.NewTestLogger(t)}))
	media.HandleFunc("/{file}", okHandler)
	return r
}

func flipFirst(hm string) string {
	if hm[0] == '0' {
		return "1" + hm[1:]
	}
	return "0" + hm[1:]
}

func TestSignedURL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	settings := signing.Settings{Enabled: true, Secret: "topsecret", Expiry: "1h"}
	router := newSignedRouter(t, settings, true, clock)

	signer, err := signing.NewSigner(settings.Secret, settings.Expiry, signing.WithClock(clock))
	require.NoError(t, err)
	signed, err := signer.SignURL("http://cdn.example/media/cover.webp")
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/cover.webp", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(signing.ReasonMissingParams), rec.Header().Get(HeaderSignatureReason))

	q := u.Query()
	q.Set(signing.ParamSignature, flipFirst(q.Get(signing.ParamSignature)))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/cover.webp?"+q.Encode(), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(signing.ReasonInvalidSignature), rec.Header().Get(HeaderSignatureReason))
}

func TestSignedURL_HidesReasonByDefault(t *testing.T) {
	settings := signing.Settings{Enabled: true, Secret: "topsecret", Expiry: "1h"}
	router := newSignedRouter(t, settings, false, time.Now)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/a.webp?ex=1&is=0&hm=abc", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderSignatureReason))
	assert.Contains(t, rec.Body.String(), "invalid or expired link")
}

func TestSignedURL_DisabledPassesThrough(t *testing.T) {
	router := newSignedRouter(t, signing.Settings{Enabled: false}, false, time.Now)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/a.webp", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type staticChecker struct {
	status health.ComponentStatus
}

func (c staticChecker) Check(ctx context.Context) (*health.ComponentHealth, error) {
	return &health.ComponentHealth{Name: "redis", Status: c.status}, nil
}

func TestHealthRoutes(t *testing.T) {
	ctx := context.Background()
	checker := health.NewCompositeHealthChecker(time.Second)
	checker.RegisterChecker("redis", staticChecker{status: health.ComponentStatusDegraded})
	manager := health.NewHealthManager(ctx, "test", checker)
	router := NewRouter(manager, corelog.NewTestLogger(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var info health.HealthInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.True(t, info.Ready)
	assert.Equal(t, health.ComponentStatusDegraded, info.Overall)

	manager.MarkDraining()
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHTTPService_StartAndClose(t *testing.T) {
	svc := NewHTTPService(context.Background(), Config{Listen: "127.0.0.1:0"}, nil, corelog.NewTestLogger(t))
	require.NoError(t, svc.Start())

	resp, err := http.Get("http://" + svc.Addr() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, svc.Close())
}
