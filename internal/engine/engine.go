// Package engine implements the tiered matching pipeline: five passes over
// the unclaimed remainder of both ledgers, in fixed order, each claiming
// pairs the previous passes left behind. Claims are irrevocable; a later
// tier never revisits an earlier tier's pairing.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/khiari-mohamed/approchement-backend/internal/assist"
	"github.com/khiari-mohamed/approchement-backend/internal/models"
	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// categorizationCutoff bounds external-call volume: when more bank-side
// transactions than this end in suspense, no categorization calls are made
// at all for the run.
const categorizationCutoff = 100

// Engine runs the matching pipeline. Safe for concurrent use: all run state
// lives in the per-call run struct, the engine itself only holds
// configuration and injected capabilities.
type Engine struct {
	rules       *models.ReconciliationRules
	comparer    assist.LabelComparer
	categorizer assist.TransactionCategorizer
	log         logger.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithComparer injects the label-similarity capability used by the
// ai_assisted tier. Without one the tier is skipped and the weak_fuzzy tier
// absorbs its candidates.
func WithComparer(c assist.LabelComparer) Option {
	return func(e *Engine) { e.comparer = c }
}

// WithCategorizer injects the capability that suggests categories for
// bank-side suspense items.
func WithCategorizer(c assist.TransactionCategorizer) Option {
	return func(e *Engine) { e.categorizer = c }
}

// WithLogger injects the run logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine. Nil rules get the production defaults.
func New(rules *models.ReconciliationRules, opts ...Option) (*Engine, error) {
	if rules == nil {
		rules = models.DefaultReconciliationRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		rules: rules.Clone(),
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithComponent("engine")
	return e, nil
}

// Outcome is what one reconciliation run produced: the claimed matches, the
// remainder in suspense, and the counters the pipeline accumulated.
type Outcome struct {
	Matches  []*models.Match
	Suspense []*models.SuspenseItem

	TierMatches     map[models.Tier]int
	AssistCalls     int
	AssistFallbacks int
}

// run holds the mutable state of one Reconcile call.
type run struct {
	engine *Engine

	bank       []*models.Transaction
	accounting []*models.Transaction
	acctIndex  *candidateIndex

	claimedBank map[string]bool
	claimedAcct map[string]bool

	matches         []*models.Match
	tierMatches     map[models.Tier]int
	assistCalls     int
	assistFallbacks int
	reconSeq        int
}

// Reconcile runs the five tiers over both transaction sets and partitions
// every transaction into exactly one match or one suspense item. Input
// slices are read-only to the engine; the sets are never mutated or
// reordered.
func (e *Engine) Reconcile(ctx context.Context, bank, accounting []*models.Transaction) (*Outcome, error) {
	if err := validateSet(bank); err != nil {
		return nil, err
	}
	if err := validateSet(accounting); err != nil {
		return nil, err
	}

	r := &run{
		engine:      e,
		bank:        bank,
		accounting:  accounting,
		acctIndex:   newCandidateIndex(accounting),
		claimedBank: make(map[string]bool, len(bank)),
		claimedAcct: make(map[string]bool, len(accounting)),
		tierMatches: make(map[models.Tier]int, len(models.Tiers())),
	}

	type tierPass struct {
		tier models.Tier
		scan func(context.Context) error
	}
	passes := []tierPass{
		{models.TierExact, r.scanExact},
		{models.TierAmountOnly, r.scanAmountOnly},
		{models.TierAIAssisted, r.scanAIAssisted},
		{models.TierWeakFuzzy, r.scanWeakFuzzy},
		{models.TierGroup, r.scanGroups},
	}
	for _, pass := range passes {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.ReconciliationError(apperrors.CodeProcessingError, string(pass.tier), err)
		}
		before := len(r.matches)
		if err := pass.scan(ctx); err != nil {
			return nil, err
		}
		e.log.WithFields(logger.Fields{
			"tier":    pass.tier,
			"matches": len(r.matches) - before,
		}).Debug("tier pass complete")
	}

	suspense := r.collectSuspense(ctx)

	e.log.WithFields(logger.Fields{
		"bank_count":       len(bank),
		"accounting_count": len(accounting),
		"matches":          len(r.matches),
		"suspense":         len(suspense),
	}).Info("reconciliation pipeline complete")

	return &Outcome{
		Matches:         r.matches,
		Suspense:        suspense,
		TierMatches:     r.tierMatches,
		AssistCalls:     r.assistCalls,
		AssistFallbacks: r.assistFallbacks,
	}, nil
}

// validateSet enforces the input contract for one side: every transaction
// carries an id and a date, and no id repeats.
func validateSet(set []*models.Transaction) error {
	seen := make(map[string]bool, len(set))
	for _, tx := range set {
		if err := tx.Validate(); err != nil {
			return err
		}
		if seen[tx.ID] {
			return apperrors.InputError(apperrors.CodeDuplicateID, "id", tx.ID)
		}
		seen[tx.ID] = true
	}
	return nil
}

// claim records an irrevocable single pairing.
func (r *run) claim(bank *models.Transaction, acct *models.Transaction, tier models.Tier, score float64, aiConfidence *float64) {
	r.claimedBank[bank.ID] = true
	r.claimedAcct[acct.ID] = true
	r.reconSeq++
	r.matches = append(r.matches, &models.Match{
		ID:           uuid.NewString(),
		Kind:         models.MatchSingle,
		BankID:       bank.ID,
		AccountingID: acct.ID,
		Tier:         tier,
		Score:        score,
		AIConfidence: aiConfidence,
		ReconNumber:  fmt.Sprintf("R%06d", r.reconSeq),
	})
	r.tierMatches[tier]++
}

// claimGroup records an irrevocable 1-to-N pairing. ids arrive in input
// order of the accounting set.
func (r *run) claimGroup(bank *models.Transaction, acctIDs []string, score float64) {
	r.claimedBank[bank.ID] = true
	for _, id := range acctIDs {
		r.claimedAcct[id] = true
	}
	r.reconSeq++
	r.matches = append(r.matches, &models.Match{
		ID:            uuid.NewString(),
		Kind:          models.MatchGroup,
		BankID:        bank.ID,
		AccountingIDs: acctIDs,
		Tier:          models.TierGroup,
		Score:         score,
		ReconNumber:   fmt.Sprintf("RG%06d", r.reconSeq),
	})
	r.tierMatches[models.TierGroup]++
}

// unclaimedBank returns the bank transactions no tier has claimed yet,
// excluding balance-statement lines, in input order.
func (r *run) unclaimedBank() []*models.Transaction {
	out := make([]*models.Transaction, 0, len(r.bank))
	for _, tx := range r.bank {
		if !r.claimedBank[tx.ID] && !tx.IsBalanceLine() {
			out = append(out, tx)
		}
	}
	return out
}

// collectSuspense turns every unclaimed transaction into a suspense item,
// preserving input order, bank side first. Balance-statement lines are never
// claimed by a tier, so they surface here and keep the partition invariant
// intact. Bank-side items get a suggested category when the run stays under
// the external-call cutoff.
func (r *run) collectSuspense(ctx context.Context) []*models.SuspenseItem {
	var items []*models.SuspenseItem
	bankSuspense := 0
	for _, tx := range r.bank {
		if !r.claimedBank[tx.ID] {
			items = append(items, &models.SuspenseItem{
				TransactionID: tx.ID,
				Side:          models.SideBank,
				Reason:        "no matching entry found on the other side",
			})
			bankSuspense++
		}
	}
	for _, tx := range r.accounting {
		if !r.claimedAcct[tx.ID] {
			items = append(items, &models.SuspenseItem{
				TransactionID: tx.ID,
				Side:          models.SideAccounting,
				Reason:        "no matching entry found on the other side",
			})
		}
	}

	if r.engine.categorizer == nil || !r.engine.rules.EnableAIAssistance {
		return items
	}
	if bankSuspense > categorizationCutoff {
		r.engine.log.WithField("bank_suspense", bankSuspense).
			Warn("skipping suspense categorization, bank-side count over cutoff")
		return items
	}

	descriptions := make(map[string]string, len(r.bank))
	for _, tx := range r.bank {
		descriptions[tx.ID] = tx.Description
	}
	for _, item := range items {
		if item.Side != models.SideBank {
			continue
		}
		cat, err := r.engine.categorizer.CategorizeTransaction(ctx, descriptions[item.TransactionID])
		r.assistCalls++
		if err != nil {
			r.assistFallbacks++
			cat = assist.CategorizeByKeywords(descriptions[item.TransactionID])
		} else if cat.Fallback {
			r.assistFallbacks++
		}
		confidence := cat.Confidence
		item.SuggestedCategory = cat.Category
		item.Confidence = &confidence
	}
	return items
}
