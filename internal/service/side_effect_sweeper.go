package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/models"
	"github.com/noah-isme/capstone-api/pkg/jobs"
)

const sideEffectJobType = "proposal_side_effect"

type sideEffectRunner interface {
	PendingSideEffects(ctx context.Context, limit int) ([]models.Proposal, error)
	RetryPending(ctx context.Context, proposal *models.Proposal) (*models.OfficialProject, error)
}

type exportJanitor interface {
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// SweeperConfig controls the periodic retry of failed proposal side effects.
type SweeperConfig struct {
	Schedule        string
	BatchSize       int
	Workers         int
	MaxRetries      int
	RetryDelay      time.Duration
	ExportRetention time.Duration
}

// SideEffectSweeper periodically re-runs side effects that failed after a committed status change.
// Each flagged proposal becomes one job on the worker queue.
type SideEffectSweeper struct {
	runner  sideEffectRunner
	janitor exportJanitor
	queue   *jobs.Queue
	cron    *cron.Cron
	cfg     SweeperConfig
	logger  *zap.Logger
}

// NewSideEffectSweeper wires the sweeper. janitor may be nil when exports are not kept on local disk.
func NewSideEffectSweeper(runner sideEffectRunner, janitor exportJanitor, cfg SweeperConfig, logger *zap.Logger) *SideEffectSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 */5 * * * *"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.ExportRetention <= 0 {
		cfg.ExportRetention = 24 * time.Hour
	}
	s := &SideEffectSweeper{
		runner:  runner,
		janitor: janitor,
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
		logger:  logger,
	}
	s.queue = jobs.NewQueue("proposal-side-effects", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the worker queue and registers the cron entries.
func (s *SideEffectSweeper) Start(ctx context.Context) error {
	s.queue.Start(ctx)
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("side effect sweep failed", zap.Error(err))
		}
	}); err != nil {
		s.queue.Stop()
		return fmt.Errorf("register side effect sweep: %w", err)
	}
	if s.janitor != nil {
		if _, err := s.cron.AddFunc("0 0 * * * *", s.cleanupExports); err != nil {
			s.queue.Stop()
			return fmt.Errorf("register export cleanup: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("side effect sweeper started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop halts the schedule, waits for running entries and drains the workers.
func (s *SideEffectSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.queue.Stop()
}

// Sweep enqueues every flagged proposal that is not already being retried.
func (s *SideEffectSweeper) Sweep(ctx context.Context) (int, error) {
	proposals, err := s.runner.PendingSideEffects(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending side effects: %w", err)
	}
	queued := 0
	for _, proposal := range proposals {
		if proposal.PendingSideEffect == nil {
			continue
		}
		job := jobs.Job{
			ID:      "side-effect:" + proposal.ID,
			Type:    sideEffectJobType,
			Payload: proposal,
		}
		if err := s.queue.Enqueue(job); err != nil {
			if errors.Is(err, jobs.ErrAlreadyQueued) {
				continue
			}
			return queued, err
		}
		queued++
	}
	if queued > 0 {
		s.logger.Info("side effects queued for retry", zap.Int("count", queued))
	}
	return queued, nil
}

func (s *SideEffectSweeper) handle(ctx context.Context, job jobs.Job) error {
	proposal, ok := job.Payload.(models.Proposal)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	_, err := s.runner.RetryPending(ctx, &proposal)
	return err
}

func (s *SideEffectSweeper) cleanupExports() {
	removed, err := s.janitor.CleanupOlderThan(s.cfg.ExportRetention)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
}
