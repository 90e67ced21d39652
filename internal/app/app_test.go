package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio-core/internal/config/schema"
	"folio-core/internal/config/source"
	coreerrors "folio-core/internal/core/errors"
	corelog "folio-core/internal/core/log"
	"folio-core/internal/core/metrics"
	"folio-core/internal/queue"
	"folio-core/internal/signing"
	"folio-core/internal/views"
)

func testConfig(t *testing.T, redisURL string) *schema.Root {
	t.Helper()
	cfg := &schema.Root{}
	require.NoError(t, source.NewDefaultSource().LoadInto(cfg))
	cfg.Redis.URL = schema.Secret(redisURL)
	cfg.Queue.PollTimeout = time.Second
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.Media.Root = t.TempDir()
	cfg.Media.OutputDir = t.TempDir()
	return cfg
}

func build(t *testing.T, cfg *schema.Root) *App {
	t.Helper()
	a, err := NewBuilder(cfg).WithLogger(corelog.NewTestLogger(t)).WithDefaults("test").Build(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestBuild_WiresComponents(t *testing.T) {
	mr := miniredis.RunT(t)
	a := build(t, testConfig(t, "redis://"+mr.Addr()))
	d := a.Deps()

	assert.Nil(t, d.Postgres)
	assert.Nil(t, d.Scheduler, "no flush target without postgres")
	assert.Equal(t, 9, d.Subscribers.Len())
	assert.Equal(t, []string{queue.QueueImages, queue.QueueViews}, d.Worker.Queues())
	assert.NotNil(t, d.HTTP)
	assert.Equal(t, 6, d.Resources.Count())
}

func TestBuild_InvalidPostgresDSN(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Postgres.DSN = "postgres://u:p@localhost:5432/db?sslmode=bogus"

	_, err := NewBuilder(cfg).WithLogger(corelog.NewTestLogger(t)).WithDefaults("test").Build(context.Background())
	require.Error(t, err)
	var ce *ComponentError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "Postgres", ce.ComponentName)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConfigError))
}

func TestRun_ProcessesViewJobs(t *testing.T) {
	mr := miniredis.RunT(t)
	a := build(t, testConfig(t, "redis://"+mr.Addr()))
	d := a.Deps()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	_, err := views.Submit(ctx, d.Producer, queue.SubjectSeries, "42", views.Fingerprint("203.0.113.7", "ua", ""), time.Now())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		n, err := d.Views.Pending(ctx, queue.SubjectSeries, "42")
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, d.Health.IsDraining())
	assert.Equal(t, 1.0, d.Metrics.GetCounter(metrics.JobsTotal,
		map[string]string{"queue": queue.QueueViews, "outcome": "succeeded"}))
}

func TestMediaRoute_RequiresSignature(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, "redis://"+mr.Addr())
	cfg.Signing.Enabled = true
	cfg.Signing.Secret = "media-secret"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Media.OutputDir, "cover.webp"), []byte("webp"), 0o644))

	a := build(t, cfg)
	router := a.Deps().HTTP.Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/cover.webp", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	signer, err := signing.NewSigner(cfg.Signing.Secret.Value(), cfg.Signing.Expiry)
	require.NoError(t, err)
	signed, err := signer.SignURL("http://localhost/media/cover.webp")
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "webp", string(body))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ratelimit_decisions_total{result=allowed}":2`)
}

func TestBuild_DegradedWithoutStore(t *testing.T) {
	for name, redisURL := range map[string]string{
		"unset":       "",
		"unreachable": "redis://127.0.0.1:1",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, redisURL)
			cfg.Redis.DialTimeout = 200 * time.Millisecond
			cfg.Signing.Enabled = true
			cfg.Signing.Secret = "media-secret"
			require.NoError(t, os.WriteFile(filepath.Join(cfg.Media.OutputDir, "cover.webp"), []byte("webp"), 0o644))

			a := build(t, cfg)
			d := a.Deps()
			assert.Equal(t, 9, d.Subscribers.Len())
			assert.False(t, d.Bus.Attached())

			router := d.HTTP.Router()
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, http.StatusOK, rec.Code)

			signer, err := signing.NewSigner(cfg.Signing.Secret.Value(), cfg.Signing.Expiry)
			require.NoError(t, err)
			signed, err := signer.SignURL("http://localhost/media/cover.webp")
			require.NoError(t, err)
			u, err := url.Parse(signed)
			require.NoError(t, err)

			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, 1.0, d.Metrics.GetCounter(metrics.RateLimitTotal, map[string]string{"result": "degraded"}))

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()
			time.Sleep(100 * time.Millisecond)
			cancel()
			select {
			case err := <-done:
				assert.NoError(t, err)
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after cancel")
			}
		})
	}
}
