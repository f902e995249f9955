// Package sweepersvc runs the periodic maintenance jobs: flipping
// overdue commitments to their expired state and dispatching due
// reminder emails.
package sweepersvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/ahadi/core"
	"github.com/trezcool/ahadi/core/commitment"
	"github.com/trezcool/ahadi/core/reminder"
)

type Sweeper struct {
	commitments commitment.ServiceInterface
	reminders   reminder.ServiceInterface
	conf        *core.Config
	logger      core.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(
	conf *core.Config,
	logger core.Logger,
	commitments commitment.ServiceInterface,
	reminders reminder.ServiceInterface,
) *Sweeper {
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		commitments: commitments,
		reminders:   reminders,
		conf:        conf,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches both jobs. Each runs an immediate pass, then repeats
// on its ticker until Stop is called.
func (s *Sweeper) Start() {
	s.wg.Add(2)
	go s.run("expiration", s.conf.Sweep.ExpirationInterval, s.commitments.ExpireDue)
	go s.run("reminder dispatch", s.conf.Sweep.DispatchInterval, s.reminders.DispatchDue)
	s.logger.Info("sweeper started")
}

// Stop cancels both jobs and waits for in-flight passes to drain.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run(name string, interval time.Duration, job func(ctx context.Context) (int, error)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep(name, job)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep(name, job)
		}
	}
}

func (s *Sweeper) sweep(name string, job func(ctx context.Context) (int, error)) {
	n, err := job(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		s.logger.Error(fmt.Sprintf("%s sweep: %v", name, err), err)
		return
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("%s sweep: %d processed", name, n))
	}
}
