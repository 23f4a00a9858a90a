package engine

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/assist"
	"github.com/khiari-mohamed/approchement-backend/internal/models"
)

// Fixed per-tier parameters. Date windows come from the rules
// (date_tolerance_days for exact, fuzzy_date_tolerance_days for
// amount-only, weak_date_tolerance_days for the fuzzy tiers); only the
// group window and the scores are fixed.
const (
	groupDateWindowDays = 5

	exactScore      = 1.0
	amountOnlyScore = 0.9
	groupScore      = 0.8

	aiAcceptThreshold   = 0.65
	weakAcceptThreshold = 0.6
)

// orderedCandidates returns the unclaimed accounting transactions within
// maxDays of the bank transaction, stably sorted by ascending date
// difference then ascending id. The sort makes iteration order an explicit
// part of the contract: the same inputs produce the same claims regardless
// of how the caller happened to order the accounting set.
func (r *run) orderedCandidates(bank *models.Transaction, maxDays int) []*models.Transaction {
	candidates := make([]*models.Transaction, 0, 8)
	for _, tx := range r.acctIndex.window(bank.Date, maxDays) {
		if !r.claimedAcct[tx.ID] {
			candidates = append(candidates, tx)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di := models.DateDiffDays(bank.Date, candidates[i].Date)
		dj := models.DateDiffDays(bank.Date, candidates[j].Date)
		if di != dj {
			return di < dj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates
}

// amountsEqual reports whether two amounts agree within the tolerance.
func (r *run) amountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(r.engine.rules.AmountTolerance)
}

// amountScore is 1 at equality and decays with the relative difference,
// floored against small bank amounts so pennies against pennies still
// discriminate.
func amountScore(bank, acct decimal.Decimal) float64 {
	denom := bank.Abs()
	if denom.LessThan(decimal.NewFromInt(1)) {
		denom = decimal.NewFromInt(1)
	}
	score, _ := decimal.NewFromInt(1).Sub(bank.Sub(acct).Abs().Div(denom)).Float64()
	if score < 0 {
		return 0
	}
	return score
}

// dateScore is 1 for same-day and decays to 0 at a week apart.
func dateScore(days int) float64 {
	score := 1.0 - float64(days)/7.0
	if score < 0 {
		return 0
	}
	return score
}

// scanExact claims pairs whose amounts agree within tolerance and whose
// dates sit within the narrow window.
func (r *run) scanExact(context.Context) error {
	for _, bank := range r.unclaimedBank() {
		for _, acct := range r.orderedCandidates(bank, r.engine.rules.DateToleranceDays) {
			if r.amountsEqual(bank.Amount, acct.Amount) {
				r.claim(bank, acct, models.TierExact, exactScore, nil)
				break
			}
		}
	}
	return nil
}

// scanAmountOnly repeats the exact-amount filter over the widened window,
// ignoring labels entirely.
func (r *run) scanAmountOnly(context.Context) error {
	for _, bank := range r.unclaimedBank() {
		for _, acct := range r.orderedCandidates(bank, r.engine.rules.FuzzyDateToleranceDays) {
			if r.amountsEqual(bank.Amount, acct.Amount) {
				r.claim(bank, acct, models.TierAmountOnly, amountOnlyScore, nil)
				break
			}
		}
	}
	return nil
}

// scanAIAssisted scores near-amount candidates with the label-similarity
// capability and claims the best candidate above the acceptance threshold.
// A failed capability call degrades to the deterministic similarity for
// that candidate; the pass itself never fails. The whole pass is skipped
// when assistance is disabled or no comparer was injected, leaving its
// candidates for the weak_fuzzy pass.
func (r *run) scanAIAssisted(ctx context.Context) error {
	if !r.engine.rules.EnableAIAssistance || r.engine.comparer == nil {
		return nil
	}
	rules := r.engine.rules
	widened := rules.AmountTolerance.Mul(decimal.NewFromInt(2))

	for _, bank := range r.unclaimedBank() {
		var best *models.Transaction
		var bestScore, bestSimilarity float64

		for _, acct := range r.orderedCandidates(bank, rules.WeakDateToleranceDays) {
			if bank.Amount.Sub(acct.Amount).Abs().GreaterThan(widened) {
				continue
			}

			similarity := r.labelSimilarity(ctx, bank.Description, acct.Description)
			days := models.DateDiffDays(bank.Date, acct.Date)
			composite := 0.4*amountScore(bank.Amount, acct.Amount) + 0.1*dateScore(days) + 0.5*similarity
			if composite >= aiAcceptThreshold && composite > bestScore {
				best = acct
				bestScore = composite
				bestSimilarity = similarity
			}
		}

		if best != nil {
			confidence := bestSimilarity
			r.claim(bank, best, models.TierAIAssisted, bestScore, &confidence)
		}
	}
	return nil
}

// labelSimilarity queries the capability and falls back to the
// deterministic metric on error, keeping the call counters current.
func (r *run) labelSimilarity(ctx context.Context, a, b string) float64 {
	r.assistCalls++
	comparison, err := r.engine.comparer.CompareLabels(ctx, a, b)
	if err != nil {
		r.assistFallbacks++
		return assist.TokenSortRatio(a, b)
	}
	if comparison.Fallback {
		r.assistFallbacks++
	}
	return comparison.Score
}

// scanWeakFuzzy is the deterministic last single-pairing pass: token-sort
// label similarity with relaxed thresholds, no external capability.
func (r *run) scanWeakFuzzy(context.Context) error {
	rules := r.engine.rules

	for _, bank := range r.unclaimedBank() {
		for _, acct := range r.orderedCandidates(bank, rules.WeakDateToleranceDays) {
			label := assist.TokenSortRatio(bank.Description, acct.Description)
			if label < rules.WeakLabelThreshold {
				continue
			}
			days := models.DateDiffDays(bank.Date, acct.Date)
			composite := 0.5*amountScore(bank.Amount, acct.Amount) + 0.2*dateScore(days) + 0.3*label
			if composite >= weakAcceptThreshold {
				r.claim(bank, acct, models.TierWeakFuzzy, composite, nil)
				break
			}
		}
	}
	return nil
}

// scanGroups pairs one bank transaction with 2..max_group_size accounting
// transactions summing to its amount. A contiguous-window scan over the
// amount-sorted candidates finds the common split-payment shapes without
// an exhaustive subset search.
func (r *run) scanGroups(context.Context) error {
	if !r.engine.rules.EnableGroupMatching {
		return nil
	}
	maxSize := r.engine.rules.MaxGroupSize

	for _, bank := range r.unclaimedBank() {
		candidates := r.orderedCandidates(bank, groupDateWindowDays)
		if len(candidates) < 2 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Amount.LessThan(candidates[j].Amount)
		})

		group := r.findGroup(bank, candidates, maxSize)
		if group != nil {
			r.claimGroup(bank, r.inputOrderIDs(group), groupScore)
		}
	}
	return nil
}

// findGroup scans every contiguous window of 2..maxSize amount-sorted
// candidates and returns the first one summing to the bank amount within
// tolerance.
func (r *run) findGroup(bank *models.Transaction, sorted []*models.Transaction, maxSize int) []*models.Transaction {
	for size := 2; size <= maxSize && size <= len(sorted); size++ {
		for start := 0; start+size <= len(sorted); start++ {
			window := sorted[start : start+size]
			sum := decimal.Zero
			for _, tx := range window {
				sum = sum.Add(tx.Amount)
			}
			if r.amountsEqual(bank.Amount, sum) {
				return window
			}
		}
	}
	return nil
}

// inputOrderIDs returns the ids of the group members in the order they
// appear in the accounting input set.
func (r *run) inputOrderIDs(group []*models.Transaction) []string {
	member := make(map[string]bool, len(group))
	for _, tx := range group {
		member[tx.ID] = true
	}
	ids := make([]string, 0, len(group))
	for _, tx := range r.accounting {
		if member[tx.ID] {
			ids = append(ids, tx.ID)
		}
	}
	return ids
}
