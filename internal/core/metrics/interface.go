// Package metrics 进程内计数器与 Gauge
package metrics

// Metrics 指标收集接口
type Metrics interface {
	IncrementCounter(name string, labels map[string]string)
	AddCounter(name string, value float64, labels map[string]string)
	GetCounter(name string, labels map[string]string) float64

	SetGauge(name string, value float64, labels map[string]string)
	GetGauge(name string, labels map[string]string) float64

	// Snapshot 当前全部指标，键为 name{k=v}...
	Snapshot() map[string]float64
}

// 指标名
const (
	JobsTotal          = "queue_jobs_total"          // queue, outcome
	RateLimitTotal     = "ratelimit_decisions_total" // result
	ViewsFlushedTotal  = "views_flushed_total"
	ViewsFlushFailures = "views_flush_failures_total"
)

// Nop 丢弃全部指标
type Nop struct{}

func (Nop) IncrementCounter(string, map[string]string)    {}
func (Nop) AddCounter(string, float64, map[string]string) {}
func (Nop) GetCounter(string, map[string]string) float64  { return 0 }
func (Nop) SetGauge(string, float64, map[string]string)   {}
func (Nop) GetGauge(string, map[string]string) float64    { return 0 }
func (Nop) Snapshot() map[string]float64                  { return map[string]float64{} }

// OrNop nil 时返回 Nop
func OrNop(m Metrics) Metrics {
	if m == nil {
		return Nop{}
	}
	return m
}
