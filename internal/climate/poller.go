package climate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

// pollJobKey names the refresh job in the scheduler
const pollJobKey = "intesis-poll"

// ErrPollerStopped is returned by Start after Stop
var ErrPollerStopped = errors.New("poller stopped")

// Poller runs a refresh function on a fixed interval
type Poller struct {
	interval time.Duration
	refresh  func(ctx context.Context) error
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler quartz.Scheduler
	cancel    context.CancelFunc
	stopped   bool
	runs      int
	failures  int
}

// NewPoller creates a poller; nothing runs until Start
func NewPoller(interval time.Duration, refresh func(ctx context.Context) error, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{interval: interval, refresh: refresh, logger: logger}
}

// Interval returns the poll interval
func (p *Poller) Interval() time.Duration { return p.interval }

// Start schedules the refresh job. The first run happens one interval from
// now. Polling lasts until Stop; it does not follow any caller context.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrPollerStopped
	}
	if p.scheduler != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	scheduler := quartz.NewStdScheduler()
	scheduler.Start(ctx)

	pollJob := job.NewFunctionJob(func(ctx context.Context) (bool, error) {
		return true, p.run(ctx)
	})
	detail := quartz.NewJobDetail(pollJob, quartz.NewJobKey(pollJobKey))
	if err := scheduler.ScheduleJob(detail, quartz.NewSimpleTrigger(p.interval)); err != nil {
		cancel()
		return fmt.Errorf("scheduling poll job: %w", err)
	}

	p.scheduler = scheduler
	p.cancel = cancel
	p.logger.Debug("polling started", zap.Duration("interval", p.interval))
	return nil
}

// Running reports whether the scheduler is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scheduler != nil && p.scheduler.IsStarted()
}

func (p *Poller) run(ctx context.Context) error {
	err := p.refresh(ctx)

	p.mu.Lock()
	p.runs++
	if err != nil {
		p.failures++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug("poll failed", zap.Error(err))
	}
	return err
}

// Runs returns how many polls ran and how many failed
func (p *Poller) Runs() (runs, failures int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs, p.failures
}

// Stop halts the scheduler and waits briefly for a running poll. A stopped
// poller cannot be started again.
func (p *Poller) Stop() {
	p.mu.Lock()
	scheduler, cancel := p.scheduler, p.cancel
	p.scheduler, p.cancel = nil, nil
	p.stopped = true
	p.mu.Unlock()

	if scheduler == nil {
		return
	}
	cancel()

	ctx, cancelWait := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelWait()
	scheduler.Wait(ctx)
	p.logger.Debug("polling stopped")
}
