package treasury

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domainregistry "github.com/domainledger/registry_layer/internal/app/domain/registry"
	"github.com/domainledger/registry_layer/internal/app/system"
	"github.com/domainledger/registry_layer/pkg/logger"
)

// ExpiryLister exposes the registry's expiring-domains query.
type ExpiryLister interface {
	ListExpiring(ctx context.Context, owners []string, within time.Duration) ([]domainregistry.Record, error)
}

// Sweeper periodically scans domains nearing expiration and renews each one
// whose treasury balance covers the cost. It is the autonomous half of the
// treasury-funded renewal protocol.
type Sweeper struct {
	treasury *Service
	expiring ExpiryLister
	schedule string
	window   time.Duration
	years    int
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper constructs a sweeper. schedule is a cron expression; window is
// how far ahead of expiration a domain becomes a renewal candidate.
func NewSweeper(treasury *Service, expiring ExpiryLister, schedule string, window time.Duration, years int, log *logger.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@every 1h"
	}
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	if years <= 0 {
		years = 1
	}
	if log == nil {
		log = logger.NewDefault("treasury-sweeper")
	}
	return &Sweeper{
		treasury: treasury,
		expiring: expiring,
		schedule: schedule,
		window:   window,
		years:    years,
		log:      log,
	}
}

func (s *Sweeper) Name() string { return "treasury-sweeper" }

// Start schedules the sweep.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	c.Start()

	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("treasury sweeper started")
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.running = false
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Sweep runs one pass: every domain expiring within the window whose
// balance covers a renewal is renewed on its owner's behalf. Failures are
// logged and do not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	records, err := s.expiring.ListExpiring(ctx, nil, s.window)
	if err != nil {
		s.log.WithError(err).Error("expiring-domains query failed")
		return
	}

	renewed := 0
	for _, rec := range records {
		ok, err := s.treasury.CanAutoRenew(ctx, rec.Name, rec.Suffix, s.years)
		if err != nil || !ok {
			continue
		}
		if err := s.treasury.AutoRenew(ctx, rec.Owner, rec.Name, rec.Suffix, s.years); err != nil {
			s.log.WithError(err).WithField("domain", rec.FullDomain()).Warn("auto-renewal failed")
			continue
		}
		renewed++
	}
	if renewed > 0 {
		s.log.WithField("renewed", renewed).Info("treasury sweep complete")
	}
}
