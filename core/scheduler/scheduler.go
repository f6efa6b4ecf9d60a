package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fold-orchestrator/core/models"
	"fold-orchestrator/core/pipeline"
	"fold-orchestrator/storage"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Runner processes a single job directory
type Runner interface {
	Run(ctx context.Context, job *models.Job) (*pipeline.Outcome, error)
}

// Scheduler runs a batch of jobs with bounded concurrency. Jobs own
// disjoint output directories, so they never share checkpoint files.
type Scheduler struct {
	runner      Runner
	queue       *JobQueue
	concurrency int
	logger      *zap.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(runner Runner, concurrency int, logger *zap.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		runner:      runner,
		queue:       NewJobQueue(),
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run enqueues jobs by remaining work and drains the queue. A failing job
// does not stop the others; all failures are joined into the returned error.
func (s *Scheduler) Run(ctx context.Context, jobs []*models.Job) ([]*pipeline.Outcome, error) {
	for _, job := range jobs {
		s.queue.Enqueue(job, remainingSlots(job))
	}
	s.logger.Info("scheduling jobs", zap.Int("jobs", s.queue.Size()), zap.Int("concurrency", s.concurrency))

	var (
		mu       sync.Mutex
		outcomes []*pipeline.Outcome
		failures []error
	)

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for {
		job := s.queue.PopJob()
		if job == nil {
			break
		}
		if ctx.Err() != nil {
			mu.Lock()
			failures = append(failures, fmt.Errorf("job %s not started: %w", job.Name, ctx.Err()))
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			outcome, err := s.runner.Run(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			if outcome != nil {
				outcomes = append(outcomes, outcome)
			}
			if err != nil {
				s.logger.Error("job failed", zap.String("job", job.Name), zap.Error(err))
				failures = append(failures, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, errors.Join(failures...)
}

// remainingSlots estimates outstanding work from the job's checkpoint files
func remainingSlots(job *models.Job) int {
	cm := storage.NewCheckpointManager(storage.NewArtifactStore(job.OutputDir))
	_, done, err := cm.Progress()
	if err != nil {
		return job.SlotCount()
	}
	if done > job.SlotCount() {
		return 0
	}
	return job.SlotCount() - done
}
