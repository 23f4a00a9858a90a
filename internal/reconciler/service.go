// Package reconciler orchestrates one reconciliation run: the matching
// engine produces the match/suspense partition, the gap calculator derives
// the monetary decomposition, and the validation service audits the result.
// The caller gets a single assembled ReconciliationResult.
package reconciler

import (
	"context"
	"time"

	"github.com/khiari-mohamed/approchement-backend/internal/assist"
	"github.com/khiari-mohamed/approchement-backend/internal/engine"
	"github.com/khiari-mohamed/approchement-backend/internal/gap"
	"github.com/khiari-mohamed/approchement-backend/internal/models"
	"github.com/khiari-mohamed/approchement-backend/internal/validation"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// Config assembles a Service.
type Config struct {
	Rules *models.ReconciliationRules
	// Comparer and Categorizer are the external capabilities; nil means
	// deterministic-only operation.
	Comparer    assist.LabelComparer
	Categorizer assist.TransactionCategorizer
	Logger      logger.Logger
}

// Service runs complete reconciliations. Safe for concurrent use; every run
// carries its own state.
type Service struct {
	engine     *engine.Engine
	calculator *gap.Calculator
	validator  *validation.Service
	log        logger.Logger
	now        func() time.Time
}

// NewService wires the pipeline from the configuration. Nil rules get the
// production defaults.
func NewService(config Config) (*Service, error) {
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	eng, err := engine.New(config.Rules,
		engine.WithComparer(config.Comparer),
		engine.WithCategorizer(config.Categorizer),
		engine.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	return &Service{
		engine:     eng,
		calculator: gap.NewCalculator(log),
		validator:  validation.NewService(log),
		log:        log.WithComponent("reconciler"),
		now:        time.Now,
	}, nil
}

// Run reconciles the two transaction sets end to end. It either returns a
// fully assembled result, possibly carrying validation errors and alerts,
// or fails before any matching on malformed input. It never returns a
// partially populated result.
func (s *Service) Run(ctx context.Context, bank, accounting []*models.Transaction) (*models.ReconciliationResult, error) {
	started := s.now()
	s.log.WithFields(logger.Fields{
		"bank_count":       len(bank),
		"accounting_count": len(accounting),
	}).Info("reconciliation run started")

	outcome, err := s.engine.Reconcile(ctx, bank, accounting)
	if err != nil {
		return nil, err
	}

	snapshot := s.calculator.Calculate(bank, accounting, outcome.Matches, outcome.Suspense)
	report := s.validator.Validate(bank, accounting, outcome.Matches, outcome.Suspense, snapshot)

	result := &models.ReconciliationResult{
		Summary:    *snapshot,
		Matches:    outcome.Matches,
		Suspense:   outcome.Suspense,
		Validation: *report,
		Metrics: models.ProcessingMetrics{
			Duration:        s.now().Sub(started),
			TierMatches:     outcome.TierMatches,
			AssistCalls:     outcome.AssistCalls,
			AssistFallbacks: outcome.AssistFallbacks,
			MatchAccuracy:   meanScore(outcome.Matches),
		},
		ProcessedAt: s.now(),
	}

	s.log.WithFields(logger.Fields{
		"matches":      len(result.Matches),
		"suspense":     len(result.Suspense),
		"valid":        result.Validation.Valid,
		"residual_gap": result.Summary.ResidualGap,
		"duration":     result.Metrics.Duration,
	}).Info("reconciliation run complete")

	return result, nil
}

// meanScore averages the claimed match scores; zero when nothing matched.
func meanScore(matches []*models.Match) float64 {
	if len(matches) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range matches {
		total += m.Score
	}
	return total / float64(len(matches))
}
