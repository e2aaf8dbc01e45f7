package job

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

type Kind string

const (
	KindPublish       Kind = "publish"
	KindAIGenerate    Kind = "ai_generate"
	KindImageGenerate Kind = "image_generate"
)

// Job is one unit of scheduled work. Mutated only through Repo so every
// transition goes through a conditional update.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	TenantID string `gorm:"size:26;index;not null"`

	Kind Kind `gorm:"type:varchar(16);not null"`

	// Target platform, required when Kind is publish.
	Platform string `gorm:"type:varchar(32)"`

	// Opaque content blob; the executor hands it to the platform adapter or
	// the AI service untouched.
	Payload json.RawMessage `gorm:"type:text;not null"`

	Status Status `gorm:"type:varchar(16);index;not null"`

	ScheduledFor time.Time `gorm:"index;not null"`

	Attempts          int     `gorm:"not null;default:0"`
	MaxAttempts       int     `gorm:"not null;default:3"`
	BackoffMultiplier float64 `gorm:"not null;default:2"`

	// Set only when a failed attempt left the job pending again.
	NextRetryAt *time.Time `gorm:"index"`

	// Last failure message; survives retries for visibility.
	LastError *string `gorm:"type:text"`

	// JSON success payload, set only when completed.
	Result *string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "schedule_jobs" }

// DueAt is the time at which the job becomes eligible to run: the retry
// time once one is set, the original schedule otherwise.
func (j *Job) DueAt() time.Time {
	if j.NextRetryAt != nil {
		return *j.NextRetryAt
	}
	return j.ScheduledFor
}

// PublishResult is the success payload stored on completed publish jobs.
type PublishResult struct {
	RemoteID string `json:"remote_id"`
	URL      string `json:"url,omitempty"`
}
