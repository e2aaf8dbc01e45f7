package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/Mizroch-Management/ocma-sub004/internal/ai"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/job"
	"github.com/Mizroch-Management/ocma-sub004/internal/publisher"
)

const (
	// attemptTimeout bounds one full attempt including token refresh and
	// the publish call itself.
	attemptTimeout = 30 * time.Second

	backoffBase = time.Minute
	backoffCap  = time.Hour
)

// Outcome is one job's result inside a sweep or trigger delivery.
type Outcome struct {
	JobID   string     `json:"job_id"`
	Status  job.Status `json:"status"`
	Skipped bool       `json:"skipped,omitempty"`
	Error   string     `json:"error,omitempty"`
}

// SweepResult aggregates a batch of due jobs. One job failing never fails
// the batch; its failure lands in its own Outcome.
type SweepResult struct {
	Processed int       `json:"processed"`
	Results   []Outcome `json:"results"`
}

type Deps struct {
	Jobs        *job.Repo
	Credentials *credential.Store
	Refresher   *credential.Refresher
	Publishers  *publisher.Registry
	Generator   ai.Generator
	Locks       credential.Locker

	// Optional; retry triggers are registered through it when set, the
	// sweep covers retries either way.
	Trigger job.TriggerRegistrar

	SweepBatchSize int
}

// Executor claims due jobs and drives them through their state machine.
// It never propagates a job's failure past its own boundary: every outcome
// is recorded as a status transition plus last_error text.
type Executor struct {
	jobs       *job.Repo
	creds      *credential.Store
	refresher  *credential.Refresher
	publishers *publisher.Registry
	generator  ai.Generator
	locks      credential.Locker
	trigger    job.TriggerRegistrar
	batchSize  int
	now        func() time.Time
}

func New(d Deps) *Executor {
	if d.Locks == nil {
		d.Locks = credential.NewMutexLocker()
	}
	if d.SweepBatchSize <= 0 {
		d.SweepBatchSize = 50
	}
	return &Executor{
		jobs:       d.Jobs,
		creds:      d.Credentials,
		refresher:  d.Refresher,
		publishers: d.Publishers,
		generator:  d.Generator,
		locks:      d.Locks,
		trigger:    d.Trigger,
		batchSize:  d.SweepBatchSize,
		now:        time.Now,
	}
}

// RunDue sweeps the store for due pending jobs and executes each, bounded
// by the batch size. Used by the cron safety net and the manual sweep
// endpoint.
func (e *Executor) RunDue(ctx context.Context) (*SweepResult, error) {
	due, err := e.jobs.Due(ctx, e.now(), e.batchSize)
	if err != nil {
		return nil, err
	}
	res := &SweepResult{Results: make([]Outcome, 0, len(due))}
	for _, j := range due {
		out, err := e.Execute(ctx, j.ID)
		if err != nil {
			// store-level error; record it against the job and move on
			out = Outcome{JobID: j.ID, Status: j.Status, Error: err.Error()}
		}
		res.Processed++
		res.Results = append(res.Results, out)
	}
	return res, nil
}

// Execute runs one delivery of a job: claim, attempt, transition. A lost
// claim or a not-yet-due job is a no-op, which is what makes double
// delivery (trigger firing while a sweep runs) safe. The returned error is
// reserved for store failures; job-level failures land in the Outcome.
func (e *Executor) Execute(ctx context.Context, jobID string) (Outcome, error) {
	j, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return Outcome{JobID: jobID}, err
	}
	if j.Status != job.StatusPending || j.DueAt().After(e.now()) {
		return Outcome{JobID: j.ID, Status: j.Status, Skipped: true}, nil
	}

	claimed, err := e.jobs.Claim(ctx, j.ID, j.Attempts)
	if err != nil {
		return Outcome{JobID: j.ID, Status: j.Status}, err
	}
	if !claimed {
		// another worker won the race
		return Outcome{JobID: j.ID, Status: j.Status, Skipped: true}, nil
	}
	j.Attempts++

	actx, cancel := context.WithTimeout(ctx, attemptTimeout)
	result, attemptErr := e.attempt(actx, j)
	cancel()

	if attemptErr == nil {
		if err := e.jobs.MarkCompleted(ctx, j.ID, result); err != nil {
			return Outcome{JobID: j.ID, Status: job.StatusProcessing}, err
		}
		return Outcome{JobID: j.ID, Status: job.StatusCompleted}, nil
	}
	return e.settle(ctx, j, attemptErr)
}

func (e *Executor) attempt(ctx context.Context, j *job.Job) (string, error) {
	switch j.Kind {
	case job.KindPublish:
		res, err := e.attemptPublish(ctx, j)
		if err != nil {
			return "", err
		}
		b, err := json.Marshal(res)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case job.KindAIGenerate, job.KindImageGenerate:
		if e.generator == nil {
			return "", &permanentError{errors.New("ai generation is not configured")}
		}
		out, err := e.generator.Generate(ctx, string(j.Kind), j.Payload)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return "", &permanentError{fmt.Errorf("unknown job kind %q", j.Kind)}
	}
}

func (e *Executor) attemptPublish(ctx context.Context, j *job.Job) (*publisher.Result, error) {
	pub, err := e.publishers.Get(j.Platform)
	if err != nil {
		return nil, &permanentError{err}
	}

	var content publisher.Content
	if err := json.Unmarshal(j.Payload, &content); err != nil {
		return nil, &permanentError{fmt.Errorf("invalid payload: %w", err)}
	}

	cred, err := e.creds.Get(ctx, j.TenantID, j.Platform)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, &permanentError{fmt.Errorf("reconnect_required: no %s account connected", j.Platform)}
	}
	if err != nil {
		return nil, err
	}

	cred, refreshed, err := e.ensureCredential(ctx, cred, false)
	if err != nil {
		return nil, wrapRefreshErr(err)
	}

	res, err := pub.Publish(ctx, cred.AccessToken, content)
	var perr *publisher.Error
	if errors.As(err, &perr) && perr.Classify() == publisher.ClassAuth {
		if refreshed {
			// rejected even though we just refreshed; only the user
			// re-authorizing the connection can fix this
			return nil, &permanentError{fmt.Errorf("reconnect_required: %w", err)}
		}
		// the token looked valid to us but the platform disagrees;
		// refresh once and retry within this attempt
		cred, _, rerr := e.ensureCredential(ctx, cred, true)
		if rerr != nil {
			return nil, wrapRefreshErr(rerr)
		}
		res, err = pub.Publish(ctx, cred.AccessToken, content)
		if errors.As(err, &perr) && perr.Classify() == publisher.ClassAuth {
			return nil, &permanentError{fmt.Errorf("reconnect_required: %w", err)}
		}
	}
	return res, err
}

// ensureCredential refreshes the credential if needed (always, when force
// is set) and persists the new token before it is ever used, serialized
// per (tenant, platform) so two jobs for the same account cannot clobber
// each other's refresh.
func (e *Executor) ensureCredential(ctx context.Context, cred *credential.Credential, force bool) (*credential.Credential, bool, error) {
	release, err := e.locks.Acquire(ctx, cred.TenantID+":"+cred.Platform)
	if err != nil {
		return nil, false, err
	}
	defer release()

	next := cred
	if force {
		next, err = e.refresher.Refresh(ctx, cred)
	} else {
		next, err = e.refresher.EnsureValid(ctx, cred)
	}
	if err != nil {
		return nil, false, err
	}
	if next == cred {
		return cred, false, nil
	}
	if err := e.creds.Put(ctx, next); err != nil {
		return nil, false, err
	}
	return next, true, nil
}

func (e *Executor) settle(ctx context.Context, j *job.Job, attemptErr error) (Outcome, error) {
	msg := attemptErr.Error()

	if classify(attemptErr) == publisher.ClassPermanent || j.Attempts >= j.MaxAttempts {
		if err := e.jobs.MarkFailed(ctx, j.ID, msg); err != nil {
			return Outcome{JobID: j.ID, Status: job.StatusProcessing}, err
		}
		return Outcome{JobID: j.ID, Status: job.StatusFailed, Error: msg}, nil
	}

	next := e.now().Add(backoffDelay(j.BackoffMultiplier, j.Attempts))
	if err := e.jobs.MarkRetry(ctx, j.ID, msg, next); err != nil {
		return Outcome{JobID: j.ID, Status: job.StatusProcessing}, err
	}
	if e.trigger != nil {
		if err := e.trigger.ScheduleAt(ctx, j.ID, next); err != nil {
			log.Printf("[executor] retry trigger registration failed job=%s, sweep will pick it up: %v", j.ID, err)
		}
	}
	return Outcome{JobID: j.ID, Status: job.StatusPending, Error: msg}, nil
}

// backoffDelay is base * multiplier^(attempts-1), capped. attempts is the
// count including the attempt that just failed, so the first retry waits
// one base unit.
func backoffDelay(multiplier float64, attempts int) time.Duration {
	d := time.Duration(float64(backoffBase) * math.Pow(multiplier, float64(attempts-1)))
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}
