package subscribers

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio-core/internal/core/cache"
	coreerrors "folio-core/internal/core/errors"
	"folio-core/internal/core/events"
	corelog "folio-core/internal/core/log"
	storageredis "folio-core/internal/core/storage/redis"
	"folio-core/internal/queue"
)

type fixture struct {
	mr        *miniredis.Miniredis
	bus       *events.Bus
	cache     *cache.Store
	inspector *queue.Inspector
	remover   *recordingRemover
}

type recordingRemover struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingRemover) Remove(ctx context.Context, p string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, p)
	return nil
}

func (r *recordingRemover) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	gw := storageredis.New(ctx, storageredis.Config{URL: "redis://" + mr.Addr()})
	logger := corelog.NewTestLogger(t)
	bus := events.NewBus(ctx, gw, events.WithLogger(logger))
	store := cache.New(gw, cache.WithLogger(logger))
	remover := &recordingRemover{}

	set, err := Register(bus, Deps{
		Cache:     store,
		Producer:  queue.NewProducer(gw, queue.WithProducerLogger(logger)),
		Remover:   remover,
		OutputDir: "/media/out",
		Logger:    logger,
	})
	require.NoError(t, err)
	require.Equal(t, 9, set.Len())

	t.Cleanup(func() {
		_ = set.Close()
		_ = bus.Close()
		_ = gw.Close()
	})
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("settings.signing.changed")["settings.signing.changed"] > 0
	}, 2*time.Second, 10*time.Millisecond)

	return &fixture{mr: mr, bus: bus, cache: store, inspector: queue.NewInspector(gw, ""), remover: remover}
}

func (f *fixture) waitingImages(t *testing.T) int64 {
	counts, err := f.inspector.Counts(context.Background(), queue.QueueImages)
	require.NoError(t, err)
	return counts.Waiting
}

func TestSeriesUpdated_InvalidatesAndEnqueuesCover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.cache.Keys()
	cache.Set(ctx, f.cache, k.Series("s1"), "cached", time.Minute)
	cache.Set(ctx, f.cache, k.SeriesList("page", "1"), "cached", time.Minute)
	cache.Set(ctx, f.cache, k.Genres(), "cached", time.Minute)

	changed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, events.Publish(ctx, f.bus, events.SeriesUpdated, events.SeriesEvent{
		SeriesID: "s1", CoverSrc: "/uploads/s1.png", ChangedAt: changed,
	}))

	require.Eventually(t, func() bool { return f.waitingImages(t) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.cache.Exists(ctx, k.Series("s1")))
	assert.False(t, f.cache.Exists(ctx, k.SeriesList("page", "1")))
	assert.True(t, f.cache.Exists(ctx, k.Genres()))

	id := "image:cover:s1:" + strconv.FormatInt(changed.UnixMilli(), 10)
	rec, err := f.inspector.Get(ctx, queue.QueueImages, id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"cover","sourcePath":"/uploads/s1.png","outputPath":"/media/out/covers","filename":"s1.webp"}`, string(rec.Payload))
}

func TestChapterCreated_EnqueuesOneJobPerPage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	k := f.cache.Keys()
	cache.Set(ctx, f.cache, k.ChapterPages("c1"), []string{"p"}, time.Minute)

	require.NoError(t, events.Publish(ctx, f.bus, events.ChapterCreated, events.ChapterEvent{
		ChapterID: "c1", SeriesID: "s1", Number: 1,
		PageSrcs:  []string{"/u/1.png", "/u/2.png", "/u/3.png"},
		ChangedAt: time.Now(),
	}))

	require.Eventually(t, func() bool { return f.waitingImages(t) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, f.cache.Exists(ctx, k.ChapterPages("c1")))
}

func TestCoverCleanup_RemovesFiles(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, events.Publish(context.Background(), f.bus, events.CoverCleanup, events.CoverCleanupEvent{
		SeriesID: "s1", Paths: []string{"covers/old1.webp", "covers/old2.webp"},
	}))
	require.Eventually(t, func() bool { return len(f.remover.Paths()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"covers/old1.webp", "covers/old2.webp"}, f.remover.Paths())
}

func TestRegister_DegradedWithoutStore(t *testing.T) {
	gw := storageredis.New(context.Background(), storageredis.Config{})
	bus := events.NewBus(context.Background(), gw)
	defer bus.Close()

	set, err := Register(bus, Deps{Logger: corelog.NewTestLogger(t)})
	require.NoError(t, err)
	assert.Equal(t, 9, set.Len())
	assert.False(t, bus.Attached())
	assert.Equal(t, 1, bus.HandlerCount(events.CoverCleanup.Name))
	require.NoError(t, set.Close())
}

func TestRegister_FailsOnClosedBus(t *testing.T) {
	bus := events.NewBus(context.Background(), nil)
	require.NoError(t, bus.Close())

	_, err := Register(bus, Deps{Logger: corelog.NewTestLogger(t)})
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeServiceClosed))
}

func TestLocalRemover(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "covers"), 0o755))
	file := filepath.Join(root, "covers", "a.webp")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	r := LocalRemover{Root: root}
	require.NoError(t, r.Remove(context.Background(), "covers/a.webp"))
	_, err := os.Stat(file)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, r.Remove(context.Background(), "covers/a.webp"))
	assert.Error(t, r.Remove(context.Background(), "../etc/passwd"))
	assert.Error(t, r.Remove(context.Background(), ""))
	assert.Error(t, LocalRemover{}.Remove(context.Background(), "x"))
}
