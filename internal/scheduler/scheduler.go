package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/example/learnsync/internal/offline"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"
)

// Default intervals
const (
	DefaultQueuePollInterval = 2 * time.Second
	DefaultPreloadInterval   = 30 * time.Minute
	DefaultProbeInterval     = 30 * time.Second
)

// Syncer is the orchestrator surface the periodic jobs drive
type Syncer interface {
	Online() bool
	QueueLength(ctx context.Context) (int, error)
	PreloadActiveStudent(ctx context.Context) (offline.PreloadSummary, error)
}

// Prober re-checks connectivity
type Prober interface {
	Probe(ctx context.Context) bool
}

// Intervals configures how often each job runs. A zero ProbeInterval disables
// the connectivity re-probe.
type Intervals struct {
	QueuePoll time.Duration
	Preload   time.Duration
	Probe     time.Duration
}

// Scheduler manages the periodic background jobs
type Scheduler struct {
	scheduler *gocron.Scheduler
	syncer    Syncer
	prober    Prober
	intervals Intervals
	logger    logrus.FieldLogger

	// OnQueueLength, when set, is called whenever the observed queue length changes
	OnQueueLength func(n int)

	mu        sync.Mutex
	lastQueue int
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a new scheduler instance
func New(syncer Syncer, prober Prober, intervals Intervals, logger logrus.FieldLogger) *Scheduler {
	if intervals.QueuePoll <= 0 {
		intervals.QueuePoll = DefaultQueuePollInterval
	}
	if intervals.Preload <= 0 {
		intervals.Preload = DefaultPreloadInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		syncer:    syncer,
		prober:    prober,
		intervals: intervals,
		logger:    logger,
		lastQueue: -1,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start registers the jobs and runs them in the background
func (s *Scheduler) Start() error {
	s.scheduler.SingletonModeAll()

	if _, err := s.scheduler.Every(s.intervals.QueuePoll).Do(s.observeQueue); err != nil {
		return err
	}
	// the orchestrator already preloads on sign-in and reconnect
	if _, err := s.scheduler.Every(s.intervals.Preload).WaitForSchedule().Do(s.refreshPreload); err != nil {
		return err
	}
	if s.intervals.Probe > 0 && s.prober != nil {
		if _, err := s.scheduler.Every(s.intervals.Probe).WaitForSchedule().Do(s.reprobe); err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	s.logger.WithField("jobs", len(s.scheduler.Jobs())).Info("scheduler started")
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.cancel()
	s.scheduler.Stop()
}

// observeQueue reports the pending request count when it changes
func (s *Scheduler) observeQueue() {
	n, err := s.syncer.QueueLength(s.ctx)
	if err != nil {
		s.logger.WithError(err).Warn("could not read queue length")
		return
	}

	s.mu.Lock()
	changed := n != s.lastQueue
	s.lastQueue = n
	s.mu.Unlock()
	if !changed {
		return
	}

	s.logger.WithField("pending", n).Debug("queue length changed")
	if s.OnQueueLength != nil {
		s.OnQueueLength(n)
	}
}

// refreshPreload keeps the active student's offline set fresh while online
func (s *Scheduler) refreshPreload() {
	if !s.syncer.Online() {
		return
	}
	summary, err := s.syncer.PreloadActiveStudent(s.ctx)
	if err != nil {
		s.logger.WithError(err).Warn("scheduled preload failed")
		return
	}
	if !summary.Skipped {
		s.logger.WithFields(logrus.Fields{
			"student_id": summary.StudentID,
			"cached":     summary.Cached,
		}).Debug("scheduled preload finished")
	}
}

// reprobe catches connectivity changes the platform did not report
func (s *Scheduler) reprobe() {
	s.prober.Probe(s.ctx)
}
