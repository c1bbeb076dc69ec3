package worker

// scheduler.go
// Periodic sweep for green stock running low and roasts left in progress
// for too long. Findings are logged and, when a QC contact is configured,
// mailed through QueueEmail.

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roastkit/internal/model"
	"roastkit/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

type AlertConfig struct {
	Varieties     repository.VarietyRepository
	Batches       repository.BatchRepository
	Dispatcher    *Dispatcher
	NotifyEmail   string
	LowStockGrams int
	StaleAfter    time.Duration
}

// AlertReport is the outcome of one sweep.
type AlertReport struct {
	LowStock []model.BeanVariety
	Stale    []model.RoastBatch
}

func (r AlertReport) Empty() bool { return len(r.LowStock) == 0 && len(r.Stale) == 0 }

// Body renders the report as plain text for email.
func (r AlertReport) Body() string {
	var b strings.Builder
	if len(r.LowStock) > 0 {
		b.WriteString("Green stock running low:\n")
		for _, v := range r.LowStock {
			fmt.Fprintf(&b, "  - %s: %d g\n", v.Name, v.StockGreen)
		}
	}
	if len(r.Stale) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Roasts still in progress:\n")
		for _, batch := range r.Stale {
			who := batch.RoasterID.String()
			if batch.Roaster != nil {
				who = batch.Roaster.FullName
			}
			fmt.Fprintf(&b, "  - batch #%d by %s, started %s\n", batch.BatchNumber, who, batch.CreatedAt.Format(time.RFC3339))
		}
	}
	return b.String()
}

type AlertScheduler struct {
	cron *cron.Cron
	cfg  AlertConfig
	now  func() time.Time
}

func NewAlertScheduler(cfg AlertConfig) *AlertScheduler {
	return &AlertScheduler{cron: cron.New(), cfg: cfg, now: time.Now}
}

// Start registers the sweep under the given cron expression and runs the
// scheduler until ctx is cancelled.
func (s *AlertScheduler) Start(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if _, err := s.Sweep(sweepCtx); err != nil {
			log.Error().Err(err).Msg("alerts: sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("alerts: invalid schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	log.Info().Str("schedule", schedule).Msg("alerts: scheduler started")

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		log.Info().Msg("alerts: scheduler stopped")
	}()
	return nil
}

// Sweep checks stock and running roasts once.
func (s *AlertScheduler) Sweep(ctx context.Context) (AlertReport, error) {
	var report AlertReport

	low, err := s.cfg.Varieties.ListLowStock(ctx, s.cfg.LowStockGrams)
	if err != nil {
		return report, err
	}
	report.LowStock = low
	for _, v := range low {
		log.Warn().Str("variety_id", v.ID.String()).Str("name", v.Name).Int("stock_green", v.StockGreen).
			Msg("alerts: green stock below threshold")
	}

	if s.cfg.StaleAfter > 0 {
		stale, err := s.cfg.Batches.ListStale(ctx, s.now().Add(-s.cfg.StaleAfter))
		if err != nil {
			return report, err
		}
		report.Stale = stale
		for _, b := range stale {
			log.Warn().Str("batch_id", b.ID.String()).Str("roaster_id", b.RoasterID.String()).
				Time("started_at", b.CreatedAt).Msg("alerts: roast still in progress")
		}
	}

	if report.Empty() || s.cfg.NotifyEmail == "" || s.cfg.Dispatcher == nil {
		return report, nil
	}
	err = s.cfg.Dispatcher.EnqueueEmail(ctx, EmailJobPayload{
		ToEmail: s.cfg.NotifyEmail,
		Subject: fmt.Sprintf("Roastery alerts: %d low stock, %d open roasts", len(report.LowStock), len(report.Stale)),
		Body:    report.Body(),
	})
	return report, err
}
