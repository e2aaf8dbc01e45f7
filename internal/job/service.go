package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Mizroch-Management/ocma-sub004/internal/common"
)

const MaxAttemptsCeiling = 5

var (
	ErrScheduleInPast   = errors.New("scheduled_for must be in the future")
	ErrBadRetryConfig   = fmt.Errorf("max_attempts must be between 1 and %d and backoff_multiplier at least 1", MaxAttemptsCeiling)
	ErrPlatformRequired = errors.New("platform is required for publish jobs")
	ErrUnknownPlatform  = errors.New("unknown platform")
	ErrUnknownKind      = errors.New("unknown job kind")
	ErrEmptyPayload     = errors.New("payload is required")
)

// TriggerRegistrar arranges a future signal for a due job. Registration
// failure is non-fatal: the periodic sweep picks the job up regardless.
type TriggerRegistrar interface {
	ScheduleAt(ctx context.Context, jobID string, at time.Time) error
}

// Service is the scheduling entry point exposed to the API layer.
type Service struct {
	repo      *Repo
	trigger   TriggerRegistrar
	platforms map[string]bool
	now       func() time.Time
}

func NewService(repo *Repo, trigger TriggerRegistrar, platforms []string) *Service {
	known := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		known[p] = true
	}
	return &Service{repo: repo, trigger: trigger, platforms: known, now: time.Now}
}

// ScheduleRequest is what the API layer hands in; retry settings are
// optional and default to 3 attempts doubling the delay.
type ScheduleRequest struct {
	Kind              Kind
	Platform          string
	Payload           json.RawMessage
	ScheduledFor      time.Time
	MaxAttempts       int
	BackoffMultiplier float64
}

func (s *Service) Schedule(ctx context.Context, tenantID string, req ScheduleRequest) (*Job, error) {
	switch req.Kind {
	case KindPublish:
		if req.Platform == "" {
			return nil, ErrPlatformRequired
		}
		if !s.platforms[req.Platform] {
			return nil, ErrUnknownPlatform
		}
	case KindAIGenerate, KindImageGenerate:
	default:
		return nil, ErrUnknownKind
	}

	if len(req.Payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if !req.ScheduledFor.After(s.now()) {
		return nil, ErrScheduleInPast
	}

	if req.MaxAttempts == 0 {
		req.MaxAttempts = 3
	}
	if req.BackoffMultiplier == 0 {
		req.BackoffMultiplier = 2
	}
	if req.MaxAttempts < 1 || req.MaxAttempts > MaxAttemptsCeiling || req.BackoffMultiplier < 1 {
		return nil, ErrBadRetryConfig
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}

	j := &Job{
		ID:                id,
		TenantID:          tenantID,
		Kind:              req.Kind,
		Platform:          req.Platform,
		Payload:           req.Payload,
		Status:            StatusPending,
		ScheduledFor:      req.ScheduledFor.UTC(),
		MaxAttempts:       req.MaxAttempts,
		BackoffMultiplier: req.BackoffMultiplier,
	}
	if err := s.repo.Create(ctx, j); err != nil {
		return nil, err
	}

	if s.trigger != nil {
		if err := s.trigger.ScheduleAt(ctx, j.ID, j.ScheduledFor); err != nil {
			log.Printf("[scheduler] trigger registration failed job=%s, sweep will pick it up: %v", j.ID, err)
		}
	}
	return j, nil
}

// Get returns a tenant's job. Other tenants' jobs are reported as not found.
func (s *Service) Get(ctx context.Context, tenantID, jobID string) (*Job, error) {
	j, err := s.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *Service) Cancel(ctx context.Context, tenantID, jobID string) error {
	if _, err := s.Get(ctx, tenantID, jobID); err != nil {
		return err
	}
	return s.repo.Cancel(ctx, jobID)
}
