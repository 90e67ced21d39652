package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio-core/internal/core/codec"
)

func TestBackoffDelay(t *testing.T) {
	base := time.Second
	assert.Equal(t, time.Second, BackoffDelay(base, 0))
	assert.Equal(t, time.Second, BackoffDelay(base, 1))
	assert.Equal(t, 2*time.Second, BackoffDelay(base, 2))
	assert.Equal(t, 4*time.Second, BackoffDelay(base, 3))
	assert.Equal(t, base*time.Duration(1<<maxBackoffShift), BackoffDelay(base, 500))
}

func TestTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	tests := []struct {
		name    string
		made    int
		err     error
		outcome Outcome
		delay   time.Duration
	}{
		{"success", 1, nil, OutcomeSucceeded, 0},
		{"first failure retries", 1, boom, OutcomeRetry, 2 * time.Second},
		{"second failure doubles", 2, boom, OutcomeRetry, 4 * time.Second},
		{"ceiling reached", 3, boom, OutcomeFailed, 0},
		{"permanent error", 1, Permanent(boom), OutcomeFailed, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Record{Attempts: 3, AttemptsMade: tt.made, BackoffMs: 2000}
			d := Transition(rec, tt.err, now)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.delay, d.Delay)
			if tt.outcome == OutcomeRetry {
				assert.True(t, d.RunAt.Equal(now.Add(tt.delay)))
			}
		})
	}
}

func TestDecisionApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	rec := Record{Attempts: 2, AttemptsMade: 1, BackoffMs: 1000}
	d := Transition(rec, boom, now)
	d.Apply(&rec, boom, now)
	assert.Equal(t, StateDelayed, rec.State)
	assert.Equal(t, "boom", rec.LastError)
	assert.True(t, rec.RunAt.Equal(now.Add(time.Second)))

	rec.AttemptsMade = 2
	d = Transition(rec, boom, now)
	d.Apply(&rec, boom, now)
	assert.Equal(t, StateFailed, rec.State)

	d = Transition(rec, nil, now)
	d.Apply(&rec, nil, now)
	assert.Equal(t, StateCompleted, rec.State)
	assert.Empty(t, rec.LastError)
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestCatalogValidate(t *testing.T) {
	assert.NoError(t, ViewJob{Type: SubjectSeries, ID: "s1", Fingerprint: "fp", Timestamp: 1}.Validate())
	assert.Error(t, ViewJob{Type: "book", ID: "s1", Fingerprint: "fp", Timestamp: 1}.Validate())
	assert.Error(t, ViewJob{Type: SubjectChapter, Fingerprint: "fp", Timestamp: 1}.Validate())
	assert.Error(t, ViewJob{Type: SubjectChapter, ID: "c1", Timestamp: 1}.Validate())

	img := ImageJob{Type: ImageCover, SourcePath: "/in/a.png", OutputPath: "/out", Filename: "a.webp"}
	assert.NoError(t, img.Validate())
	assert.Equal(t, DefaultImageQuality, img.EffectiveQuality())

	img.Quality = 101
	assert.Error(t, img.Validate())
	img.Quality = 40
	assert.NoError(t, img.Validate())
	assert.Equal(t, 40, img.EffectiveQuality())

	img.Filename = "../a.webp"
	assert.Error(t, img.Validate())
	assert.Error(t, ImageJob{Type: "banner", SourcePath: "a", OutputPath: "b", Filename: "c"}.Validate())
}

func TestViewJob_WireFormat(t *testing.T) {
	raw, err := json.Marshal(ViewJob{Type: SubjectSeries, ID: "s1", Fingerprint: "fp", Timestamp: 1700000000000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"series","id":"s1","fingerprint":"fp","timestampMillis":1700000000000}`, string(raw))

	job, err := codec.Decode[ViewJob](codec.Default,
		`{"type":"chapter","id":"c1","fingerprint":"fp","timestampMillis":42}`)
	require.NoError(t, err)
	assert.Equal(t, int64(42), job.Timestamp)
	assert.NoError(t, job.Validate())

	legacy, err := codec.Decode[ViewJob](codec.Default,
		`{"type":"chapter","id":"c1","fingerprint":"fp","timestamp":7}`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), legacy.Timestamp)
}
