package trigger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Mizroch-Management/ocma-sub004/internal/executor"
)

// DueRunner is the slice of the executor the sweep needs.
type DueRunner interface {
	RunDue(ctx context.Context) (*executor.SweepResult, error)
}

// Sweeper is the periodic safety net behind the delay-queue trigger: every
// interval it executes whatever is due in the store, catching lost
// deliveries and failed trigger registrations. Double delivery against the
// trigger is harmless because claiming is conditional.
type Sweeper struct {
	cron *cron.Cron
}

func NewSweeper(runner DueRunner, every time.Duration) (*Sweeper, error) {
	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() {
		ctx, cancel := context.WithTimeout(context.Background(), every)
		defer cancel()

		res, err := runner.RunDue(ctx)
		if err != nil {
			log.Printf("[sweep] failed: %v", err)
			return
		}
		if res.Processed > 0 {
			log.Printf("[sweep] processed=%d", res.Processed)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Sweeper{cron: c}, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
