package views

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corelog "folio-core/internal/core/log"
	storageredis "folio-core/internal/core/storage/redis"
	"folio-core/internal/queue"
)

type memWriter struct {
	mu    sync.Mutex
	fail  error
	added map[string]int64
}

func newMemWriter() *memWriter {
	return &memWriter{added: make(map[string]int64)}
}

func (w *memWriter) AddViews(ctx context.Context, subjectType, id string, delta int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.added[subjectType+":"+id] += delta
	return nil
}

func newAccumulator(t *testing.T) (*Accumulator, *miniredis.Miniredis, *time.Time) {
	t.Helper()
	mr := miniredis.RunT(t)
	gw := storageredis.New(context.Background(), storageredis.Config{URL: "redis://" + mr.Addr()})
	t.Cleanup(func() { _ = gw.Close() })

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := New(gw,
		WithRecentTTL(time.Hour),
		WithLogger(corelog.NewTestLogger(t)),
		WithClock(func() time.Time { return now }),
	)
	return a, mr, &now
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("1.2.3.4", "Mozilla", "")
	assert.Len(t, a, 32)
	assert.Equal(t, a, Fingerprint("1.2.3.4", "Mozilla", ""))
	assert.NotEqual(t, a, Fingerprint("1.2.3.5", "Mozilla", ""))

	u1 := Fingerprint("1.2.3.4", "Mozilla", "u1")
	assert.Equal(t, u1, Fingerprint("9.9.9.9", "curl", "u1"))
	assert.NotEqual(t, a, u1)
}

func TestRecord_DedupesWithinWindow(t *testing.T) {
	a, mr, now := newAccumulator(t)
	ctx := context.Background()

	counted, err := a.Record(ctx, queue.SubjectSeries, "s1", "fp1")
	require.NoError(t, err)
	assert.True(t, counted)

	counted, err = a.Record(ctx, queue.SubjectSeries, "s1", "fp1")
	require.NoError(t, err)
	assert.False(t, counted)

	counted, err = a.Record(ctx, queue.SubjectSeries, "s1", "fp2")
	require.NoError(t, err)
	assert.True(t, counted)

	n, err := a.Pending(ctx, queue.SubjectSeries, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("folio:views:pending-ids"))

	// 窗口过后同一访客重新计数
	*now = now.Add(time.Hour + time.Millisecond)
	counted, err = a.Record(ctx, queue.SubjectSeries, "s1", "fp1")
	require.NoError(t, err)
	assert.True(t, counted)
}

func TestRecord_Validation(t *testing.T) {
	a, _, _ := newAccumulator(t)
	_, err := a.Record(context.Background(), "book", "s1", "fp")
	assert.Error(t, err)
	_, err = a.Record(context.Background(), queue.SubjectChapter, "", "fp")
	assert.Error(t, err)
}

func TestFlush_WritesDeltasOnce(t *testing.T) {
	a, mr, _ := newAccumulator(t)
	ctx := context.Background()

	for _, fp := range []string{"a", "b", "c"} {
		_, err := a.Record(ctx, queue.SubjectSeries, "s1", fp)
		require.NoError(t, err)
	}
	_, err := a.Record(ctx, queue.SubjectChapter, "c9", "a")
	require.NoError(t, err)

	w := newMemWriter()
	res, err := a.Flush(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{Subjects: 2, Views: 4}, res)
	assert.Equal(t, map[string]int64{"series:s1": 3, "chapter:c9": 1}, w.added)
	assert.False(t, mr.Exists("folio:views:pending-ids"))

	res, err = a.Flush(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, FlushResult{}, res)
	assert.Equal(t, int64(3), w.added["series:s1"])
}

func TestFlush_CompensatesOnWriterFailure(t *testing.T) {
	a, _, _ := newAccumulator(t)
	ctx := context.Background()

	_, err := a.Record(ctx, queue.SubjectSeries, "s1", "a")
	require.NoError(t, err)
	_, err = a.Record(ctx, queue.SubjectSeries, "s1", "b")
	require.NoError(t, err)

	w := newMemWriter()
	w.fail = errors.New("db down")
	res, err := a.Flush(ctx, w)
	require.Error(t, err)
	assert.Equal(t, 1, res.Failed)

	n, err := a.Pending(ctx, queue.SubjectSeries, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	w.fail = nil
	res, err = a.Flush(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Views)
	assert.Equal(t, int64(2), w.added["series:s1"])
}

func TestFlush_DropsMalformedMembers(t *testing.T) {
	a, mr, _ := newAccumulator(t)
	_, err := mr.SetAdd("folio:views:pending-ids", "garbage")
	require.NoError(t, err)

	res, err := a.Flush(context.Background(), newMemWriter())
	require.NoError(t, err)
	assert.Equal(t, FlushResult{}, res)
	assert.False(t, mr.Exists("folio:views:pending-ids"))
}

func TestHandlers(t *testing.T) {
	a, _, now := newAccumulator(t)
	ctx := context.Background()
	w := newMemWriter()

	view := HandleViewJob(a)
	job := queue.Job[queue.ViewJob]{Payload: queue.ViewJob{
		Type: queue.SubjectChapter, ID: "c1", Fingerprint: "fp", Timestamp: now.UnixMilli(),
	}}
	require.NoError(t, view(ctx, job))
	require.NoError(t, view(ctx, job))

	require.NoError(t, HandleSyncJob(a, w)(ctx, queue.Job[queue.SyncJob]{}))
	assert.Equal(t, int64(1), w.added["chapter:c1"])
}

func TestRecord_StoreNotConfigured(t *testing.T) {
	gw := storageredis.New(context.Background(), storageredis.Config{})
	a := New(gw)
	_, err := a.Record(context.Background(), queue.SubjectSeries, "s1", "fp")
	assert.Error(t, err)
}

func TestRecord_ConcurrentSameFingerprintCountsOnce(t *testing.T) {
	a, _, _ := newAccumulator(t)
	ctx := context.Background()

	const callers = 40
	results := make(chan bool, callers*2)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		for _, fp := range []string{"same", "other"} {
			wg.Add(1)
			go func(fp string) {
				defer wg.Done()
				counted, err := a.Record(ctx, queue.SubjectChapter, "c9", fp)
				assert.NoError(t, err)
				results <- counted
			}(fp)
		}
	}
	wg.Wait()
	close(results)

	counted := 0
	for ok := range results {
		if ok {
			counted++
		}
	}
	assert.Equal(t, 2, counted, "one per distinct fingerprint")

	n, err := a.Pending(ctx, queue.SubjectChapter, "c9")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
