// Package queue 基于共享存储的持久化任务队列
//
// 至少一次投递：任务由生产者持久化，同一时刻只被一个 worker 认领，失败按指数退避重试，
// 超过次数上限后进入有界的 failed 列表供排查。
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// State 任务记录状态
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Record 存储中的任务记录
type Record struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Name         string          `json:"name"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`     // 次数上限
	AttemptsMade int             `json:"attemptsMade"` // 已执行次数
	BackoffMs    int64           `json:"backoffMs"`    // 基础退避
	State        State           `json:"state"`
	LastError    string          `json:"lastError,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	RunAt        time.Time       `json:"runAt,omitempty"`
}

// Backoff 基础退避时长
func (r Record) Backoff() time.Duration {
	return time.Duration(r.BackoffMs) * time.Millisecond
}

// Outcome 一次执行的结果
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeRetry
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRetry:
		return "retry-scheduled"
	case OutcomeFailed:
		return "permanently-failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Decision 状态机输出
type Decision struct {
	Outcome Outcome
	Delay   time.Duration // 仅 OutcomeRetry
	RunAt   time.Time     // 仅 OutcomeRetry
}

// Transition 根据第 AttemptsMade 次执行的结果决定下一步：
// 成功；未达上限时按 base*2^(attempt-1) 延迟重试；否则永久失败
func Transition(rec Record, handlerErr error, now time.Time) Decision {
	if handlerErr == nil {
		return Decision{Outcome: OutcomeSucceeded}
	}
	if IsPermanent(handlerErr) || rec.AttemptsMade >= rec.Attempts {
		return Decision{Outcome: OutcomeFailed}
	}
	delay := BackoffDelay(rec.Backoff(), rec.AttemptsMade)
	return Decision{Outcome: OutcomeRetry, Delay: delay, RunAt: now.Add(delay)}
}

// Apply 把决策写回记录
func (d Decision) Apply(rec *Record, handlerErr error, now time.Time) {
	rec.UpdatedAt = now
	if handlerErr != nil {
		rec.LastError = handlerErr.Error()
	}
	switch d.Outcome {
	case OutcomeSucceeded:
		rec.State = StateCompleted
		rec.LastError = ""
	case OutcomeRetry:
		rec.State = StateDelayed
		rec.RunAt = d.RunAt
	case OutcomeFailed:
		rec.State = StateFailed
	}
}

// maxBackoffShift 防止 2^n 溢出
const maxBackoffShift = 30

// BackoffDelay 第 attempt 次失败后的等待时间
func BackoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return base * time.Duration(1<<uint(shift))
}

// PermanentError 不再重试的错误
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent 标记错误为不可重试，例如载荷无法解码
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent 是否不可重试
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
