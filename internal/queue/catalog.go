package queue

import (
	"encoding/json"
	"strings"
	"time"

	coreerrors "folio-core/internal/core/errors"
)

// Payload 每类任务声明的载荷类型，入队与消费时都要校验
type Payload interface {
	Validate() error
}

// JobType 队列名 + 任务名 + 载荷类型
type JobType[T Payload] struct {
	Queue string
	Name  string
}

// NewJobType 声明任务类型
func NewJobType[T Payload](queue, name string) JobType[T] {
	return JobType[T]{Queue: queue, Name: name}
}

// Job 交给处理器的任务
type Job[T Payload] struct {
	ID          string
	Queue       string
	Name        string
	Attempt     int // 从 1 开始
	MaxAttempts int
	Payload     T
}

// 内置队列
const (
	QueueViews    = "views"
	QueueViewSync = "view-sync"
	QueueImages   = "images"
)

// 浏览对象类型
const (
	SubjectSeries  = "series"
	SubjectChapter = "chapter"
)

// 图片类型
const (
	ImageCover  = "cover"
	ImagePage   = "page"
	ImageAvatar = "avatar"
)

// DefaultImageQuality 未指定质量时使用
const DefaultImageQuality = 85

// 内置任务类型
var (
	ViewIncrement = NewJobType[ViewJob](QueueViews, "view.increment")
	ViewSync      = NewJobType[SyncJob](QueueViewSync, "view.sync")
	ImageConvert  = NewJobType[ImageJob](QueueImages, "image.convert")
)

// ViewJob 单次浏览
type ViewJob struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Fingerprint string `json:"fingerprint"`
	Timestamp   int64  `json:"timestampMillis"`
}

// UnmarshalJSON 兼容旧字段名 timestamp
func (j *ViewJob) UnmarshalJSON(data []byte) error {
	type plain ViewJob
	var aux struct {
		plain
		Legacy int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*j = ViewJob(aux.plain)
	if j.Timestamp == 0 {
		j.Timestamp = aux.Legacy
	}
	return nil
}

// Validate 实现 Payload
func (j ViewJob) Validate() error {
	if !ValidSubject(j.Type) {
		return coreerrors.Validationf("view job: unknown type %q", j.Type)
	}
	if strings.TrimSpace(j.ID) == "" {
		return coreerrors.Validationf("view job: id is required")
	}
	if j.Fingerprint == "" {
		return coreerrors.Validationf("view job: fingerprint is required")
	}
	if j.Timestamp <= 0 {
		return coreerrors.Validationf("view job: timestamp must be positive")
	}
	return nil
}

// ValidSubject series 或 chapter
func ValidSubject(t string) bool {
	return t == SubjectSeries || t == SubjectChapter
}

// SyncJob 周期性把累计浏览数写入数据库
type SyncJob struct {
	Bucket      int64     `json:"bucket"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// Validate 实现 Payload
func (j SyncJob) Validate() error {
	if j.Bucket < 0 {
		return coreerrors.Validationf("sync job: bucket must not be negative")
	}
	return nil
}

// ImageJob 图片转码
type ImageJob struct {
	Type       string `json:"type"`
	SourcePath string `json:"sourcePath"`
	OutputPath string `json:"outputPath"`
	Filename   string `json:"filename"`
	Quality    int    `json:"quality,omitempty"`
}

// Validate 实现 Payload；Quality 为 0 表示默认值
func (j ImageJob) Validate() error {
	switch j.Type {
	case ImageCover, ImagePage, ImageAvatar:
	default:
		return coreerrors.Validationf("image job: unknown type %q", j.Type)
	}
	if j.SourcePath == "" || j.OutputPath == "" || j.Filename == "" {
		return coreerrors.Validationf("image job: sourcePath, outputPath and filename are required")
	}
	if strings.ContainsAny(j.Filename, `/\`) {
		return coreerrors.Validationf("image job: filename must not contain a path separator")
	}
	if j.Quality != 0 && (j.Quality < 1 || j.Quality > 100) {
		return coreerrors.Validationf("image job: quality %d out of range 1..100", j.Quality)
	}
	return nil
}

// EffectiveQuality 实际使用的质量
func (j ImageJob) EffectiveQuality() int {
	if j.Quality == 0 {
		return DefaultImageQuality
	}
	return j.Quality
}
