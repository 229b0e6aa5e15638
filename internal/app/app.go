// Package app wires the sync engine components together.
package app

import (
	"context"
	"fmt"

	"github.com/example/learnsync/internal/api"
	"github.com/example/learnsync/internal/config"
	"github.com/example/learnsync/internal/database"
	"github.com/example/learnsync/internal/network"
	"github.com/example/learnsync/internal/offline"
	"github.com/example/learnsync/internal/queue"
	"github.com/example/learnsync/internal/scheduler"
	"github.com/example/learnsync/internal/store"
	"github.com/sirupsen/logrus"
)

// App holds every long-lived component
type App struct {
	Config       *config.Config
	Logger       logrus.FieldLogger
	DB           *database.DB
	Client       *api.Client
	Monitor      *network.Monitor
	Store        *store.LocalStore
	Queue        *queue.Queue
	Orchestrator *offline.Orchestrator
	Scheduler    *scheduler.Scheduler
}

// New opens storage and builds the components. When the durable database
// cannot be opened the app keeps working on an in-memory one.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	db, err := database.Open(cfg.Database)
	if err != nil {
		logger.WithError(err).Warn("durable storage unavailable, falling back to in-memory database")
		db, err = database.OpenInMemory()
		if err != nil {
			return nil, fmt.Errorf("failed to open fallback database: %w", err)
		}
	}

	client, err := api.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.Timeout, logger.WithField("component", "api"))
	if err != nil {
		db.Close()
		return nil, err
	}

	monitor := network.NewMonitor(cfg.Network.ProbeURL == "",
		network.WithProbeURL(cfg.Network.ProbeURL),
		network.WithProbeTimeout(cfg.Network.ProbeTimeout),
		network.WithMaxListeners(cfg.Network.MaxListeners),
		network.WithLogger(logger.WithField("component", "network")),
	)

	st := store.New(db,
		store.WithTTL(cfg.Cache.TTL),
		store.WithLogger(logger.WithField("component", "store")),
	)

	q, err := queue.New(ctx, db, client,
		queue.WithMaxRetries(cfg.Queue.MaxRetries),
		queue.WithDeliveryTimeout(cfg.Queue.DeliveryTimeout),
		queue.WithLogger(logger.WithField("component", "queue")),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	orch := offline.New(client, st, q, monitor,
		offline.WithLookAhead(cfg.Cache.LookAhead),
		offline.WithLogger(logger.WithField("component", "offline")),
	)

	sched := scheduler.New(orch, monitor, scheduler.Intervals{
		QueuePoll: cfg.Queue.PollInterval,
		Preload:   cfg.Preload.Interval,
		Probe:     cfg.Network.ProbeInterval,
	}, logger.WithField("component", "scheduler"))

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		Client:       client,
		Monitor:      monitor,
		Store:        st,
		Queue:        q,
		Orchestrator: orch,
		Scheduler:    sched,
	}, nil
}

// Start probes connectivity, attaches the orchestrator to the monitor and
// starts the periodic jobs. One-shot commands only need Monitor.Start.
func (a *App) Start(ctx context.Context) error {
	a.Monitor.Start(ctx)
	if err := a.Orchestrator.Start(ctx); err != nil {
		return err
	}
	return a.Scheduler.Start()
}

// Close stops background work and closes the database
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.Orchestrator.Stop()
	return a.DB.Close()
}
