package events

import (
	"time"

	coreerrors "folio-core/internal/core/errors"
)

// 频道目录：每个领域动作一个频道
var (
	UserCreated            = NewChannel[UserCreatedEvent]("user.created")
	SeriesCreated          = NewChannel[SeriesEvent]("catalog.series.created")
	SeriesUpdated          = NewChannel[SeriesEvent]("catalog.series.updated")
	SeriesDeleted          = NewChannel[SeriesEvent]("catalog.series.deleted")
	ChapterCreated         = NewChannel[ChapterEvent]("catalog.chapter.created")
	ChapterUpdated         = NewChannel[ChapterEvent]("catalog.chapter.updated")
	ChapterDeleted         = NewChannel[ChapterEvent]("catalog.chapter.deleted")
	CoverCleanup           = NewChannel[CoverCleanupEvent]("media.cover.cleanup")
	SigningSettingsChanged = NewChannel[SigningSettingsChangedEvent]("settings.signing.changed")
)

// UserCreatedEvent user.created
type UserCreatedEvent struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	AvatarSrc string    `json:"avatarSourcePath,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e UserCreatedEvent) Validate() error {
	if e.UserID == "" {
		return coreerrors.Validationf("userId is required")
	}
	if e.Username == "" {
		return coreerrors.Validationf("username is required")
	}
	return nil
}

// SeriesEvent catalog.series.*
type SeriesEvent struct {
	SeriesID  string    `json:"seriesId"`
	Slug      string    `json:"slug,omitempty"`
	CoverSrc  string    `json:"coverSourcePath,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e SeriesEvent) Validate() error {
	if e.SeriesID == "" {
		return coreerrors.Validationf("seriesId is required")
	}
	return nil
}

// ChapterEvent catalog.chapter.*
type ChapterEvent struct {
	ChapterID string    `json:"chapterId"`
	SeriesID  string    `json:"seriesId"`
	Number    float64   `json:"number"`
	PageSrcs  []string  `json:"pageSourcePaths,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e ChapterEvent) Validate() error {
	if e.ChapterID == "" {
		return coreerrors.Validationf("chapterId is required")
	}
	if e.SeriesID == "" {
		return coreerrors.Validationf("seriesId is required")
	}
	if e.Number < 0 {
		return coreerrors.Validationf("number must not be negative")
	}
	return nil
}

// CoverCleanupEvent media.cover.cleanup：替换或删除后不再引用的封面文件
type CoverCleanupEvent struct {
	SeriesID string   `json:"seriesId"`
	Paths    []string `json:"paths"`
}

func (e CoverCleanupEvent) Validate() error {
	if e.SeriesID == "" {
		return coreerrors.Validationf("seriesId is required")
	}
	if len(e.Paths) == 0 {
		return coreerrors.Validationf("paths must not be empty")
	}
	for _, p := range e.Paths {
		if p == "" {
			return coreerrors.Validationf("paths must not contain empty entries")
		}
	}
	return nil
}

// SigningSettingsChangedEvent settings.signing.changed
type SigningSettingsChangedEvent struct {
	Enabled   bool      `json:"enabled"`
	Expiry    string    `json:"expiry,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

func (e SigningSettingsChangedEvent) Validate() error {
	if e.ChangedAt.IsZero() {
		return coreerrors.Validationf("changedAt is required")
	}
	return nil
}
