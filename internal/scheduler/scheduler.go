package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"roaming/internal/logging"

	"github.com/sirupsen/logrus"
)

// Job is one unit of periodic work for a tenant. Run must not return errors;
// failures are logged by the job itself.
type Job interface {
	Name() string
	Run(ctx context.Context, tenantID string)
}

type TenantLister interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// Scheduler runs its jobs for every tenant on a fixed interval. Tenants run
// in parallel; a tenant whose previous round is still going is skipped.
type Scheduler struct {
	interval time.Duration
	tenants  TenantLister
	jobs     []Job
	logger   logrus.FieldLogger

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func New(interval time.Duration, tenants TenantLister, logger logrus.FieldLogger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		interval: interval,
		tenants:  tenants,
		jobs:     jobs,
		logger:   logger,
		running:  make(map[string]bool),
	}
}

// Start blocks, running a round on every tick until ctx is done, then waits
// for in-flight tenant rounds.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.logger.WithField("interval", s.interval.String()).WithField("jobs", s.jobNames()).Info("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.dispatch(ctx)
		}
	}
}

// RunOnce runs a single round for every tenant and waits for it.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.dispatch(ctx)
	s.wg.Wait()
}

func (s *Scheduler) dispatch(ctx context.Context) {
	tenants, err := s.tenants.ListTenants(ctx)
	if err != nil {
		logging.LogError(s.logger, "scheduler", "dispatch", "list tenants", nil, err)
		return
	}
	for _, tenantID := range tenants {
		if !s.claim(tenantID) {
			s.logger.WithField("tenantId", tenantID).Debug("previous round still running, skipped")
			continue
		}
		s.wg.Add(1)
		go func(tenantID string) {
			defer s.wg.Done()
			defer s.done(tenantID)
			s.runTenant(ctx, tenantID)
		}(tenantID)
	}
}

func (s *Scheduler) runTenant(ctx context.Context, tenantID string) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		s.runJob(ctx, job, tenantID)
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job, tenantID string) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogError(s.logger, "scheduler", job.Name(), "panic",
				map[string]string{"tenantId": tenantID, "stack": string(debug.Stack())}, fmt.Errorf("panic: %v", r))
		}
	}()
	start := time.Now()
	job.Run(ctx, tenantID)
	s.logger.WithFields(logrus.Fields{
		"job":      job.Name(),
		"tenantId": tenantID,
		"took":     time.Since(start).String(),
	}).Debug("job finished")
}

func (s *Scheduler) claim(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[tenantID] {
		return false
	}
	s.running[tenantID] = true
	return true
}

func (s *Scheduler) done(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, tenantID)
}

func (s *Scheduler) jobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name())
	}
	return names
}
