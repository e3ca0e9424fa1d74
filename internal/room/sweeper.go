package room

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SweeperConfig holds cron specs for the periodic jobs. An empty spec
// disables that job.
type SweeperConfig struct {
	ExpireSpec string
	PruneSpec  string
	Timeout    time.Duration
}

// DefaultSweeperConfig returns sensible defaults
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		ExpireSpec: "@every 10s",
		PruneSpec:  "@every 1h",
		Timeout:    30 * time.Second,
	}
}

// Sweeper ends overdue rounds and removes abandoned rooms on a schedule.
type Sweeper struct {
	svc    *Service
	cron   *cron.Cron
	cfg    SweeperConfig
	logger *zap.Logger
}

func NewSweeper(svc *Service, cfg SweeperConfig, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		svc:    svc,
		cron:   cron.New(),
		cfg:    cfg,
		logger: logger,
	}
	if cfg.ExpireSpec != "" {
		if _, err := s.cron.AddFunc(cfg.ExpireSpec, s.expire); err != nil {
			return nil, err
		}
	}
	if cfg.PruneSpec != "" {
		if _, err := s.cron.AddFunc(cfg.PruneSpec, s.prune); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("sweeper started",
		zap.String("expire", s.cfg.ExpireSpec),
		zap.String("prune", s.cfg.PruneSpec))
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) expire() {
	ctx, cancel := s.context()
	defer cancel()

	n, err := s.svc.ExpireRounds(ctx, s.svc.now())
	if err != nil {
		s.logger.Error("expire rounds failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired rounds", zap.Int("rounds", n))
	}
}

func (s *Sweeper) prune() {
	ctx, cancel := s.context()
	defer cancel()

	n, err := s.svc.PruneIdleRooms(ctx, s.svc.now())
	if err != nil {
		s.logger.Error("prune rooms failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("pruned idle rooms", zap.Int("rooms", n))
	}
}

func (s *Sweeper) context() (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), s.cfg.Timeout)
}
