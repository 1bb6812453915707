package persistence

import (
	"attendees/internal/persistence/interfaces"
	"attendees/internal/providers"
	"attendees/internal/structures"
	"sync"
	"time"

	"github.com/roylee0704/gron"
)

type Scheduler struct {
	config  *structures.Config
	logger  providers.Logger
	manager *SnapshotManager
	cron    *gron.Cron
	opsMu   sync.Mutex
}

func (s *Scheduler) interval() time.Duration {
	interval := s.config.Persistence.SaveInterval
	if interval < time.Second {
		interval *= time.Second
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}

func (s *Scheduler) Init() {
	s.cron = gron.New()

	s.cron.AddFunc(gron.Every(s.interval()), func() {
		s.opsMu.Lock()
		defer s.opsMu.Unlock()

		if err := s.manager.Save(); err != nil {
			s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
			return
		}
		s.logger.Debugf(providers.TypeApp, "Persisted data to %s", s.config.Persistence.FilePath)
	})

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Scheduler) Restore() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	return s.manager.Load()
}

func (s *Scheduler) Persist() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	s.logger.Infof(providers.TypeApp, "Persisting snapshot to %s...", s.config.Persistence.FilePath)
	if err := s.manager.Save(); err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while persisting data: %s", err)
		return err
	}
	return nil
}

func NewScheduler(config *structures.Config, logger providers.Logger, manager *SnapshotManager) interfaces.SchedulerInterface {
	return &Scheduler{
		config:  config,
		logger:  logger,
		manager: manager,
	}
}
