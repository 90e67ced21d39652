package schema

import "time"

// QueueConfig contains job queue settings
type QueueConfig struct {
	Views    QueuePolicy `yaml:"views" json:"views"`
	ViewSync QueuePolicy `yaml:"view_sync" json:"view_sync"`
	Images   QueuePolicy `yaml:"images" json:"images"`

	PollTimeout time.Duration `yaml:"poll_timeout" json:"poll_timeout"`
	LeaseTTL    time.Duration `yaml:"lease_ttl" json:"lease_ttl"`
}

// QueuePolicy contains per-queue retry and retention defaults
type QueuePolicy struct {
	Attempts      int           `yaml:"attempts" json:"attempts"`
	Backoff       time.Duration `yaml:"backoff" json:"backoff"`
	KeepCompleted int           `yaml:"keep_completed" json:"keep_completed"`
	KeepFailed    int           `yaml:"keep_failed" json:"keep_failed"`
	Concurrency   int           `yaml:"concurrency" json:"concurrency"`
}
