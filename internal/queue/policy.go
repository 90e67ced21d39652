package queue

import "time"

// Policy 单个队列的默认策略
type Policy struct {
	Attempts      int
	Backoff       time.Duration
	KeepCompleted int
	KeepFailed    int
	Concurrency   int
}

func (p Policy) withDefaults() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = time.Second
	}
	if p.Concurrency < 1 {
		p.Concurrency = 1
	}
	if p.KeepCompleted < 0 {
		p.KeepCompleted = 0
	}
	if p.KeepFailed < 0 {
		p.KeepFailed = 0
	}
	return p
}

// Policies 队列名 -> 策略
type Policies map[string]Policy

// For 未登记的队列使用单次尝试、保留失败记录的保守策略
func (ps Policies) For(queue string) Policy {
	if p, ok := ps[queue]; ok {
		return p.withDefaults()
	}
	return Policy{Attempts: 1, KeepFailed: 100}.withDefaults()
}

// DefaultPolicies 三个内置队列的默认值
func DefaultPolicies() Policies {
	return Policies{
		QueueViews:    {Attempts: 3, Backoff: time.Second, KeepCompleted: 0, KeepFailed: 1000, Concurrency: 4},
		QueueViewSync: {Attempts: 5, Backoff: 2 * time.Second, KeepCompleted: 10, KeepFailed: 100, Concurrency: 1},
		QueueImages:   {Attempts: 3, Backoff: time.Second, KeepCompleted: 100, KeepFailed: 500, Concurrency: 2},
	}
}
