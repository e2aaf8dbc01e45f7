package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Mizroch-Management/ocma-sub004/internal/common"
	"github.com/Mizroch-Management/ocma-sub004/internal/job"
)

type createJobReq struct {
	Kind              string          `json:"kind" binding:"required"`
	Platform          string          `json:"platform"`
	Payload           json.RawMessage `json:"payload" binding:"required"`
	ScheduledFor      time.Time       `json:"scheduled_for" binding:"required"`
	MaxAttempts       int             `json:"max_attempts"`
	BackoffMultiplier float64         `json:"backoff_multiplier"`
}

func (h *Handler) CreateJob(c *gin.Context) {
	tenantID, okk := tenantIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	j, err := h.Jobs.Schedule(c.Request.Context(), tenantID, job.ScheduleRequest{
		Kind:              job.Kind(req.Kind),
		Platform:          req.Platform,
		Payload:           req.Payload,
		ScheduledFor:      req.ScheduledFor,
		MaxAttempts:       req.MaxAttempts,
		BackoffMultiplier: req.BackoffMultiplier,
	})
	if err != nil {
		switch {
		case errors.Is(err, job.ErrScheduleInPast),
			errors.Is(err, job.ErrBadRetryConfig),
			errors.Is(err, job.ErrPlatformRequired),
			errors.Is(err, job.ErrUnknownPlatform),
			errors.Is(err, job.ErrUnknownKind),
			errors.Is(err, job.ErrEmptyPayload):
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "failed to schedule job")
		}
		return
	}

	common.OK(c, gin.H{
		"job_id":        j.ID,
		"status":        j.Status,
		"scheduled_for": j.ScheduledFor,
	})
}

func (h *Handler) GetJob(c *gin.Context) {
	tenantID, okk := tenantIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	j, err := h.Jobs.Get(c.Request.Context(), tenantID, c.Param("job_id"))
	if err != nil {
		if errors.Is(err, job.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.OK(c, gin.H{"job": jobView(j)})
}

func (h *Handler) CancelJob(c *gin.Context) {
	tenantID, okk := tenantIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	err := h.Jobs.Cancel(c.Request.Context(), tenantID, c.Param("job_id"))
	if err != nil {
		switch {
		case errors.Is(err, job.ErrNotFound):
			common.Fail(c, http.StatusNotFound, 40401, "job not found")
		case errors.Is(err, job.ErrNotCancellable):
			common.Fail(c, http.StatusConflict, 40901, "only pending jobs can be cancelled")
		default:
			common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		}
		return
	}

	common.OK(c, gin.H{"job_id": c.Param("job_id"), "status": job.StatusCancelled})
}

// Sweep is the manual/administrative due-job run; the cron safety net
// calls the same executor entry point.
func (h *Handler) Sweep(c *gin.Context) {
	res, err := h.Exec.RunDue(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "sweep failed")
		return
	}
	common.OK(c, res)
}

// jobView is the read-only projection returned to the API layer. The
// stored result is already JSON, so it passes through undecoded.
func jobView(j *job.Job) gin.H {
	v := gin.H{
		"id":            j.ID,
		"kind":          j.Kind,
		"status":        j.Status,
		"scheduled_for": j.ScheduledFor,
		"attempts":      j.Attempts,
		"max_attempts":  j.MaxAttempts,
		"created_at":    j.CreatedAt,
		"updated_at":    j.UpdatedAt,
	}
	if j.Platform != "" {
		v["platform"] = j.Platform
	}
	if j.NextRetryAt != nil {
		v["next_retry_at"] = j.NextRetryAt
	}
	if j.LastError != nil {
		v["last_error"] = *j.LastError
	}
	if j.Result != nil {
		v["result"] = json.RawMessage(*j.Result)
	}
	return v
}
