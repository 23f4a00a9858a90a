// Package gap computes the reconciliation gap decomposition: how far apart
// the two ledgers' totals are, how much of that distance the suspense items
// explain, and what remains unexplained.
package gap

import (
	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// Monetary values carry 3 decimals (millimes); the derived ratios carry a
// little more so small coverage is still visible.
const (
	moneyPlaces      = 3
	percentagePlaces = 2
	ratioPlaces      = 4
)

// balancedTolerance is the residual below which the run counts as balanced.
var balancedTolerance = decimal.NewFromFloat(0.01)

// Calculator derives a GapSnapshot from a finished run. Stateless; the
// snapshot is recomputed from scratch each call.
type Calculator struct {
	log logger.Logger
}

// NewCalculator creates a Calculator. A nil logger silences it.
func NewCalculator(log logger.Logger) *Calculator {
	if log == nil {
		log = logger.Nop()
	}
	return &Calculator{log: log.WithComponent("gap")}
}

// Calculate computes the gap formulas over the final match/suspense
// partition. All intermediate arithmetic is unrounded; rounding happens
// once, when the snapshot fields are filled in.
func (c *Calculator) Calculate(
	bank, accounting []*models.Transaction,
	matches []*models.Match,
	suspense []*models.SuspenseItem,
) *models.GapSnapshot {
	bankTotal := bankSideTotal(bank)
	accountingTotal := accountingSideTotal(accounting)
	initialGap := bankTotal.Sub(accountingTotal)

	bankSuspense, acctSuspense := suspenseTotals(bank, accounting, suspense)
	explainedGap := bankSuspense.Sub(acctSuspense)
	residualGap := initialGap.Sub(explainedGap)

	matchedAmount := decimal.Zero
	bankByID := indexByID(bank)
	for _, m := range matches {
		if tx, ok := bankByID[m.BankID]; ok {
			matchedAmount = matchedAmount.Add(tx.Amount)
		}
	}

	snapshot := &models.GapSnapshot{
		BankTotal:       bankTotal.Round(moneyPlaces),
		AccountingTotal: accountingTotal.Round(moneyPlaces),

		InitialGap:   initialGap.Round(moneyPlaces),
		ExplainedGap: explainedGap.Round(moneyPlaces),
		ResidualGap:  residualGap.Round(moneyPlaces),

		BankSuspenseTotal:       bankSuspense.Round(moneyPlaces),
		AccountingSuspenseTotal: acctSuspense.Round(moneyPlaces),

		CoveragePercentage: coveragePercentage(initialGap, explainedGap, residualGap),
		CoverageRatio:      coverageRatio(len(matches), len(bank), len(accounting)),

		MatchedCount:  len(matches),
		SuspenseCount: len(suspense),
		MatchedAmount: matchedAmount.Round(moneyPlaces),

		IsBalanced:            residualGap.Abs().LessThan(balancedTolerance),
		RequiresInvestigation: residualGap.Abs().GreaterThan(bankTotal.Abs().Mul(balancedTolerance)),
	}

	c.log.WithFields(logger.Fields{
		"initial_gap":  snapshot.InitialGap,
		"residual_gap": snapshot.ResidualGap,
		"coverage_pct": snapshot.CoveragePercentage,
		"is_balanced":  snapshot.IsBalanced,
	}).Debug("gap snapshot computed")

	return snapshot
}

// bankSideTotal is the final bank balance: the most recent balance-statement
// line when the statement carries one, otherwise the sum of the movements.
func bankSideTotal(bank []*models.Transaction) decimal.Decimal {
	var latest *models.Transaction
	for _, tx := range bank {
		if !tx.IsBalanceLine() {
			continue
		}
		if latest == nil || tx.Date.After(latest.Date) {
			latest = tx
		}
	}
	if latest != nil {
		return latest.Amount
	}

	total := decimal.Zero
	for _, tx := range bank {
		total = total.Add(tx.Amount)
	}
	return total
}

// accountingSideTotal is the last progressive-balance value when the export
// carries the column, otherwise the sum of all accounting amounts.
func accountingSideTotal(accounting []*models.Transaction) decimal.Decimal {
	for i := len(accounting) - 1; i >= 0; i-- {
		if accounting[i].ProgressiveBalance != nil {
			return *accounting[i].ProgressiveBalance
		}
	}

	total := decimal.Zero
	for _, tx := range accounting {
		total = total.Add(tx.Amount)
	}
	return total
}

// suspenseTotals sums the unmatched movements per side. Balance-statement
// lines sit in suspense to keep the partition complete, but they are not
// movements, so they stay out of the explained-gap arithmetic.
func suspenseTotals(bank, accounting []*models.Transaction, suspense []*models.SuspenseItem) (decimal.Decimal, decimal.Decimal) {
	bankByID := indexByID(bank)
	acctByID := indexByID(accounting)

	bankTotal, acctTotal := decimal.Zero, decimal.Zero
	for _, item := range suspense {
		switch item.Side {
		case models.SideBank:
			if tx, ok := bankByID[item.TransactionID]; ok && !tx.IsBalanceLine() {
				bankTotal = bankTotal.Add(tx.Amount)
			}
		case models.SideAccounting:
			if tx, ok := acctByID[item.TransactionID]; ok && !tx.IsBalanceLine() {
				acctTotal = acctTotal.Add(tx.Amount)
			}
		}
	}
	return bankTotal, acctTotal
}

// coveragePercentage is the share of the initial gap the suspense analysis
// explains. With no meaningful gap to close, a near-zero residual counts as
// full coverage.
func coveragePercentage(initialGap, explainedGap, residualGap decimal.Decimal) float64 {
	if initialGap.Abs().GreaterThan(balancedTolerance) {
		pct := explainedGap.Abs().Div(initialGap.Abs()).Mul(decimal.NewFromInt(100))
		result, _ := pct.Round(percentagePlaces).Float64()
		if result > 100.0 {
			// Suspense can over-explain the gap (offsetting errors on the
			// two sides); the reported share is still capped at full.
			return 100.0
		}
		return result
	}
	if residualGap.Abs().LessThan(balancedTolerance) {
		return 100.0
	}
	return 0.0
}

// coverageRatio is the fraction of transactions matched, against the larger
// side.
func coverageRatio(matched, bankCount, accountingCount int) float64 {
	larger := bankCount
	if accountingCount > larger {
		larger = accountingCount
	}
	if larger == 0 {
		return 0.0
	}
	ratio := decimal.NewFromInt(int64(matched)).Div(decimal.NewFromInt(int64(larger)))
	result, _ := ratio.Round(ratioPlaces).Float64()
	return result
}

func indexByID(set []*models.Transaction) map[string]*models.Transaction {
	index := make(map[string]*models.Transaction, len(set))
	for _, tx := range set {
		index[tx.ID] = tx
	}
	return index
}
