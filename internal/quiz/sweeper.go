package quiz

import (
	"context"
	"log"
	"time"
)

// Sweeper is the background reconciliation loop. Every tick it forces
// deadline-expired sessions through the same submit+grade path the
// interactive flow uses, so no submission is left ungraded just because the
// student never reconnected. It is owned by the process wiring: constructed,
// started and stopped explicitly, no package-level state.
type Sweeper struct {
	svc      *Service
	store    Store
	now      Clock
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

func NewSweeper(svc *Service, store Store, now Clock, interval time.Duration) *Sweeper {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		svc:      svc,
		store:    store,
		now:      now,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the tick loop. Ticks that overlap or arrive late do not
// compound: every sweep is idempotent, so re-processing a row is a no-op.
func (s *Sweeper) Start() {
	go func() {
		defer close(s.done)
		t := time.NewTicker(s.interval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				if err := s.RunOnce(context.Background()); err != nil {
					log.Printf("sweeper: tick failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

// RunOnce performs the three sweeps of a single tick. A failure on one
// submission is logged and skipped so one bad row cannot block convergence
// of the rest; only a failure to list candidates aborts the tick.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	now := s.now()

	overdue, err := s.store.ListOverdueInProgress(ctx, now)
	if err != nil {
		return err
	}
	for _, id := range overdue {
		if _, err := s.svc.EnforceDeadline(ctx, id); err != nil {
			log.Printf("sweeper: auto-submit %s: %v", id, err)
		}
	}

	expired, err := s.store.ListExpiredNotStarted(ctx, now)
	if err != nil {
		return err
	}
	for _, id := range expired {
		if err := s.svc.CloseUnstarted(ctx, id); err != nil {
			log.Printf("sweeper: close unstarted %s: %v", id, err)
		}
	}

	ungraded, err := s.store.ListUngraded(ctx)
	if err != nil {
		return err
	}
	for _, id := range ungraded {
		if err := s.svc.Regrade(ctx, id); err != nil {
			log.Printf("sweeper: regrade %s: %v", id, err)
		}
	}
	return nil
}
