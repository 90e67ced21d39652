package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerrors "folio-core/internal/core/errors"
	storageredis "folio-core/internal/core/storage/redis"
	"folio-core/internal/queue"
)

type mockHealthChecker struct {
	health *ComponentHealth
	err    error
	delay  time.Duration
}

func (m *mockHealthChecker) Check(ctx context.Context) (*ComponentHealth, error) {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.delay):
		}
	}
	return m.health, m.err
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fixedCounts map[string]queue.Counts

func (f fixedCounts) Counts(ctx context.Context, q string) (queue.Counts, error) {
	c, ok := f[q]
	if !ok {
		return queue.Counts{}, errors.New("unknown queue")
	}
	return c, nil
}

func TestCompositeHealthChecker_CheckAll(t *testing.T) {
	c := NewCompositeHealthChecker(50 * time.Millisecond)
	c.RegisterChecker("a", &mockHealthChecker{health: &ComponentHealth{Name: "a", Status: ComponentStatusHealthy}})
	c.RegisterChecker("b", &mockHealthChecker{health: &ComponentHealth{Name: "b", Status: ComponentStatusDegraded}})
	c.RegisterChecker("slow", &mockHealthChecker{delay: time.Second})

	assert.Equal(t, []string{"a", "b", "slow"}, c.Names())
	results := c.CheckAll(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, ComponentStatusUnhealthy, results["slow"].Status)
	assert.Equal(t, ComponentStatusUnhealthy, Overall(results))
}

func TestOverall(t *testing.T) {
	assert.Equal(t, ComponentStatusHealthy, Overall(nil))
	assert.Equal(t, ComponentStatusDegraded, Overall(map[string]*ComponentHealth{
		"a": {Status: ComponentStatusHealthy},
		"b": {Status: ComponentStatusDegraded},
	}))
}

func TestStoreHealthChecker(t *testing.T) {
	ctx := context.Background()

	h, err := NewStoreHealthChecker("redis", pingFunc(func(context.Context) error { return nil }), false).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ComponentStatusHealthy, h.Status)

	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })
	h, _ = NewStoreHealthChecker("redis", down, false).Check(ctx)
	assert.Equal(t, ComponentStatusDegraded, h.Status)
	h, _ = NewStoreHealthChecker("postgres", down, true).Check(ctx)
	assert.Equal(t, ComponentStatusUnhealthy, h.Status)

	h, _ = NewStoreHealthChecker("postgres", nil, false).Check(ctx)
	assert.Equal(t, ComponentStatusDegraded, h.Status)
	assert.Equal(t, "not configured", h.Message)
}

func TestStoreHealthChecker_Gateway(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	gw := storageredis.New(ctx, storageredis.Config{URL: "redis://" + mr.Addr()})
	defer gw.Close()

	h, err := NewStoreHealthChecker("redis", gw, false).Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, ComponentStatusHealthy, h.Status)

	unset := storageredis.New(ctx, storageredis.Config{})
	assert.True(t, coreerrors.IsCode(unset.Ping(ctx), coreerrors.CodeNotConfigured))
	h, _ = NewStoreHealthChecker("redis", unset, false).Check(ctx)
	assert.Equal(t, ComponentStatusDegraded, h.Status)
	assert.Equal(t, "not configured", h.Message)
}

func TestQueueHealthChecker(t *testing.T) {
	ctx := context.Background()
	counts := fixedCounts{
		queue.QueueViews:  {Failed: 1},
		queue.QueueImages: {Failed: 50},
	}

	h, _ := NewQueueHealthChecker(counts, 10, queue.QueueViews).Check(ctx)
	assert.Equal(t, ComponentStatusHealthy, h.Status)

	h, _ = NewQueueHealthChecker(counts, 10, queue.QueueViews, queue.QueueImages).Check(ctx)
	assert.Equal(t, ComponentStatusDegraded, h.Status)
	assert.Contains(t, h.Message, "images")

	h, _ = NewQueueHealthChecker(counts, 0, "missing").Check(ctx)
	assert.Equal(t, ComponentStatusDegraded, h.Status)
}

func TestHealthManager_Readiness(t *testing.T) {
	ctx := context.Background()
	checker := NewCompositeHealthChecker(time.Second)
	checker.RegisterChecker("redis", &mockHealthChecker{health: &ComponentHealth{Name: "redis", Status: ComponentStatusDegraded}})
	m := NewHealthManager(ctx, "1.0.0", checker)

	info := m.GetHealthInfo(ctx)
	assert.True(t, info.Ready)
	assert.Equal(t, ComponentStatusDegraded, info.Overall)
	assert.Equal(t, "1.0.0", info.Version)

	m.MarkDraining()
	assert.True(t, m.IsDraining())
	assert.False(t, m.GetHealthInfo(ctx).Ready)

	m.MarkUnhealthy("boom")
	info = m.GetHealthInfo(ctx)
	assert.False(t, info.Ready)
	assert.Equal(t, "boom", info.Details["unhealthy_reason"])
}

func TestHealthManager_UnhealthyComponent(t *testing.T) {
	ctx := context.Background()
	checker := NewCompositeHealthChecker(time.Second)
	checker.RegisterChecker("postgres", &mockHealthChecker{err: errors.New("down")})
	m := NewHealthManager(ctx, "", checker)

	assert.True(t, m.IsHealthy())
	assert.False(t, m.GetHealthInfo(ctx).Ready)
}
