package scheduler

import (
	"context"

	"github.com/rs/zerolog"

	"nepse-journal/internal/portfolio"
)

// Recalculator reconciles every stored portfolio.
type Recalculator interface {
	RecalculateAll(ctx context.Context) (portfolio.RecalcReport, error)
}

// RepairJob recomputes every stored balance from its ledgers.
type RepairJob struct {
	recalc Recalculator
	log    zerolog.Logger
}

// NewRepairJob creates the balance repair job.
func NewRepairJob(recalc Recalculator, log zerolog.Logger) *RepairJob {
	return &RepairJob{recalc: recalc, log: log}
}

// Name returns the job name.
func (j *RepairJob) Name() string {
	return "balance_repair"
}

// Run reconciles all portfolios and logs what changed.
func (j *RepairJob) Run(ctx context.Context) error {
	report, err := j.recalc.RecalculateAll(ctx)
	if err != nil {
		return err
	}

	for _, c := range report.Changes {
		j.log.Warn().
			Str("user_id", c.UserID).
			Str("old_balance", c.OldBalance.String()).
			Str("new_balance", c.NewBalance.String()).
			Msg("Repaired stale balance")
	}
	j.log.Info().
		Int("total", report.Total).
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Msg("Balance repair finished")
	return nil
}
