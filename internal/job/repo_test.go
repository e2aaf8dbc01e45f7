package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// one named in-memory db per test so parallel tests never share rows
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// sqlite takes one writer at a time; a single pooled connection keeps
	// concurrent claims queueing instead of erroring with SQLITE_BUSY
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func pendingJob(t *testing.T, repo *Repo, id string, due time.Time) *Job {
	t.Helper()
	j := &Job{
		ID:                id,
		TenantID:          "tenant-1",
		Kind:              KindPublish,
		Platform:          "twitter",
		Payload:           []byte(`{"text":"hello"}`),
		Status:            StatusPending,
		ScheduledFor:      due,
		MaxAttempts:       3,
		BackoffMultiplier: 2,
	}
	if err := repo.Create(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return j
}

func TestClaim_ExactlyOneWinner(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	j := pendingJob(t, repo, "01JOBCLAIMRACE000000000000", time.Now().Add(-time.Second))

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			ok, err := repo.Claim(context.Background(), j.ID, 0)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 winning claim, got %d", won)
	}

	got, err := repo.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusProcessing || got.Attempts != 1 {
		t.Fatalf("unexpected row after claim: status=%s attempts=%d", got.Status, got.Attempts)
	}
}

func TestClaim_StaleAttemptsLoses(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	j := pendingJob(t, repo, "01JOBCLAIMSTALE00000000000", time.Now().Add(-time.Second))

	if ok, err := repo.Claim(context.Background(), j.ID, 0); err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if err := repo.MarkRetry(context.Background(), j.ID, "transient", time.Now().Add(-time.Millisecond)); err != nil {
		t.Fatalf("mark retry: %v", err)
	}

	// a worker still holding the attempts=0 read must lose
	if ok, err := repo.Claim(context.Background(), j.ID, 0); err != nil || ok {
		t.Fatalf("stale claim should lose: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Claim(context.Background(), j.ID, 1); err != nil || !ok {
		t.Fatalf("fresh claim should win: ok=%v err=%v", ok, err)
	}
}

func TestDue_OrderLimitAndEligibility(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	now := time.Now()

	pendingJob(t, repo, "01JOBDUELATER0000000000000", now.Add(time.Hour))
	second := pendingJob(t, repo, "01JOBDUESECOND000000000000", now.Add(-time.Minute))
	first := pendingJob(t, repo, "01JOBDUEFIRST0000000000000", now.Add(-2*time.Minute))

	// a retried job is due by next_retry_at, not its original schedule
	retried := pendingJob(t, repo, "01JOBDUERETRIED00000000000", now.Add(-3*time.Minute))
	if ok, err := repo.Claim(context.Background(), retried.ID, 0); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := repo.MarkRetry(context.Background(), retried.ID, "transient", now.Add(time.Hour)); err != nil {
		t.Fatalf("mark retry: %v", err)
	}

	due, err := repo.Due(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due jobs, got %d", len(due))
	}
	if due[0].ID != first.ID || due[1].ID != second.ID {
		t.Fatalf("wrong order: got %s, %s", due[0].ID, due[1].ID)
	}

	limited, err := repo.Due(context.Background(), now, 1)
	if err != nil {
		t.Fatalf("due limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != first.ID {
		t.Fatalf("expected only the oldest due job, got %d rows", len(limited))
	}
}

func TestCancel_PendingOnly(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	j := pendingJob(t, repo, "01JOBCANCELPENDING00000000", time.Now().Add(time.Hour))
	if err := repo.Cancel(ctx, j.ID); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	got, err := repo.Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}

	// a cancelled job must never show up in a sweep
	due, err := repo.Due(ctx, time.Now().Add(2*time.Hour), 10)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("cancelled job returned by Due")
	}

	// processing jobs cannot be cancelled mid-flight
	p := pendingJob(t, repo, "01JOBCANCELPROC00000000000", time.Now().Add(-time.Second))
	if ok, err := repo.Claim(ctx, p.ID, 0); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := repo.Cancel(ctx, p.ID); !errors.Is(err, ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable, got %v", err)
	}

	if err := repo.Cancel(ctx, "01JOBMISSING00000000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransitions_RequireProcessing(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	j := pendingJob(t, repo, "01JOBTRANSITIONS0000000000", time.Now().Add(-time.Second))

	// completing a job nobody claimed must be a no-op
	if err := repo.MarkCompleted(ctx, j.ID, `{"remote_id":"x"}`); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, _ := repo.Get(ctx, j.ID)
	if got.Status != StatusPending {
		t.Fatalf("unclaimed job transitioned to %s", got.Status)
	}

	if ok, _ := repo.Claim(ctx, j.ID, 0); !ok {
		t.Fatalf("claim failed")
	}
	if err := repo.MarkCompleted(ctx, j.ID, `{"remote_id":"123"}`); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, _ = repo.Get(ctx, j.ID)
	if got.Status != StatusCompleted || got.Result == nil {
		t.Fatalf("expected completed with result, got status=%s", got.Status)
	}
}
