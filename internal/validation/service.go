// Package validation runs the post-reconciliation integrity checks. The
// checks are independent of each other and never abort the run: violations
// surface as findings on the report and the caller still gets its result.
package validation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// Finding types.
const (
	TypeBalanceCoherence    = "balance_coherence"
	TypeDuplicateClaim      = "duplicate_claim"
	TypeDateSanity          = "date_sanity"
	TypeDebitCreditSymmetry = "debit_credit_symmetry"
	TypeCountConservation   = "count_conservation"

	AlertResidualGap   = "residual_gap"
	AlertSuspenseCount = "suspense_count"
	AlertLowCoverage   = "low_coverage"
)

// Thresholds for the informational alerts.
const (
	suspenseAlertCount    = 10
	coverageAlertFloor    = 0.70
	residualGapAlertShare = 0.01
)

var coherenceTolerance = decimal.NewFromFloat(0.01)

// Service runs the validation checks against a finished run.
type Service struct {
	log logger.Logger
	now func() time.Time
}

// NewService creates a Service. A nil logger silences it.
func NewService(log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		log: log.WithComponent("validation"),
		now: time.Now,
	}
}

// Validate runs every check and assembles the report. The snapshot supplies
// the derived figures the alert checks need; it may be nil when the caller
// only wants the structural checks.
func (s *Service) Validate(
	bank, accounting []*models.Transaction,
	matches []*models.Match,
	suspense []*models.SuspenseItem,
	snapshot *models.GapSnapshot,
) *models.ValidationReport {
	report := &models.ValidationReport{}

	s.checkBalanceCoherence(report, bank, accounting, matches, suspense)
	s.checkDuplicateClaims(report, matches)
	s.checkDateSanity(report, bank, accounting)
	s.checkDebitCreditSymmetry(report, bank, accounting, matches)
	s.checkCountConservation(report, bank, accounting, matches, suspense)
	if snapshot != nil {
		s.checkAlerts(report, snapshot)
	}

	report.Valid = len(report.Errors) == 0

	s.log.WithFields(logger.Fields{
		"valid":    report.Valid,
		"errors":   len(report.Errors),
		"warnings": len(report.Warnings),
		"alerts":   len(report.Alerts),
	}).Debug("validation complete")

	return report
}

// checkBalanceCoherence verifies conservation per side: the movements of a
// ledger must equal its matched movements plus its suspense movements.
// Balance-statement lines are excluded from every term (they are positions,
// not movements).
func (s *Service) checkBalanceCoherence(
	report *models.ValidationReport,
	bank, accounting []*models.Transaction,
	matches []*models.Match,
	suspense []*models.SuspenseItem,
) {
	sides := []struct {
		side models.Side
		set  []*models.Transaction
	}{
		{models.SideBank, bank},
		{models.SideAccounting, accounting},
	}
	for _, ledger := range sides {
		total := movementTotal(ledger.set)
		accounted := matchedTotal(ledger.side, ledger.set, matches).
			Add(suspenseTotal(ledger.side, ledger.set, suspense))

		if total.Sub(accounted).Abs().GreaterThan(coherenceTolerance) {
			report.Errors = append(report.Errors, models.Finding{
				Type:     TypeBalanceCoherence,
				Severity: models.SeverityCritical,
				Message: fmt.Sprintf("%s side incoherent: movements total %s but matched+suspense total %s",
					ledger.side, total, accounted),
			})
		}
	}
}

// checkDuplicateClaims verifies no transaction id appears in two matches.
// The engine's claim discipline makes this structurally impossible; the
// check stays as an invariant test over the output.
func (s *Service) checkDuplicateClaims(report *models.ValidationReport, matches []*models.Match) {
	bankSeen := map[string]bool{}
	acctSeen := map[string]bool{}
	for _, m := range matches {
		if bankSeen[m.BankID] {
			report.DuplicatesFound++
			report.Errors = append(report.Errors, models.Finding{
				Type:     TypeDuplicateClaim,
				Severity: models.SeverityHigh,
				Message:  fmt.Sprintf("bank transaction %s claimed by more than one match", m.BankID),
			})
		}
		bankSeen[m.BankID] = true

		for _, id := range m.CounterpartIDs() {
			if acctSeen[id] {
				report.DuplicatesFound++
				report.Errors = append(report.Errors, models.Finding{
					Type:     TypeDuplicateClaim,
					Severity: models.SeverityHigh,
					Message:  fmt.Sprintf("accounting transaction %s claimed by more than one match", id),
				})
			}
			acctSeen[id] = true
		}
	}
}

// checkDateSanity flags zero or future-dated transactions.
func (s *Service) checkDateSanity(report *models.ValidationReport, bank, accounting []*models.Transaction) {
	horizon := s.now().AddDate(0, 0, 1)
	for _, tx := range append(append([]*models.Transaction{}, bank...), accounting...) {
		switch {
		case tx.Date.IsZero():
			report.DateViolations++
			report.Warnings = append(report.Warnings, models.Finding{
				Type:     TypeDateSanity,
				Severity: models.SeverityMedium,
				Message:  fmt.Sprintf("transaction %s has no usable date", tx.ID),
			})
		case tx.Date.After(horizon):
			report.DateViolations++
			report.Warnings = append(report.Warnings, models.Finding{
				Type:     TypeDateSanity,
				Severity: models.SeverityMedium,
				Message:  fmt.Sprintf("transaction %s is dated in the future (%s)", tx.ID, tx.Date.Format("2006-01-02")),
			})
		}
	}
}

// checkDebitCreditSymmetry flags single matches whose two sides disagree on
// amount beyond the coherence tolerance.
func (s *Service) checkDebitCreditSymmetry(
	report *models.ValidationReport,
	bank, accounting []*models.Transaction,
	matches []*models.Match,
) {
	bankByID := indexByID(bank)
	acctByID := indexByID(accounting)

	for _, m := range matches {
		if m.Kind != models.MatchSingle {
			continue
		}
		bankTx, okB := bankByID[m.BankID]
		acctTx, okA := acctByID[m.AccountingID]
		if !okB || !okA {
			continue
		}
		if bankTx.Amount.Sub(acctTx.Amount).Abs().GreaterThan(coherenceTolerance) {
			report.DebitCreditImbalances++
			report.Warnings = append(report.Warnings, models.Finding{
				Type:     TypeDebitCreditSymmetry,
				Severity: models.SeverityMedium,
				Message: fmt.Sprintf("match %s/%s pairs %s against %s",
					m.BankID, m.AccountingID, bankTx.Amount, acctTx.Amount),
			})
		}
	}
}

// checkCountConservation verifies the partition: every transaction on each
// side sits in exactly one match or one suspense item.
func (s *Service) checkCountConservation(
	report *models.ValidationReport,
	bank, accounting []*models.Transaction,
	matches []*models.Match,
	suspense []*models.SuspenseItem,
) {
	matchedBank, matchedAcct := 0, 0
	for _, m := range matches {
		matchedBank++
		matchedAcct += len(m.CounterpartIDs())
	}
	suspenseBank, suspenseAcct := 0, 0
	for _, item := range suspense {
		if item.Side == models.SideBank {
			suspenseBank++
		} else {
			suspenseAcct++
		}
	}

	counts := []struct {
		side      models.Side
		total     int
		accounted int
	}{
		{models.SideBank, len(bank), matchedBank + suspenseBank},
		{models.SideAccounting, len(accounting), matchedAcct + suspenseAcct},
	}
	for _, c := range counts {
		if c.total != c.accounted {
			report.Errors = append(report.Errors, models.Finding{
				Type:     TypeCountConservation,
				Severity: models.SeverityCritical,
				Message: fmt.Sprintf("%s side: %d transactions but %d accounted for in matches and suspense",
					c.side, c.total, c.accounted),
			})
		}
	}
}

// checkAlerts emits the informational anomaly flags. Alerts never turn the
// report invalid.
func (s *Service) checkAlerts(report *models.ValidationReport, snapshot *models.GapSnapshot) {
	residualShare := snapshot.BankTotal.Abs().Mul(decimal.NewFromFloat(residualGapAlertShare))
	if snapshot.ResidualGap.Abs().GreaterThan(residualShare) {
		report.Alerts = append(report.Alerts, models.Alert{
			Type:           AlertResidualGap,
			Severity:       models.SeverityHigh,
			Message:        fmt.Sprintf("residual gap %s exceeds 1%% of the bank total", snapshot.ResidualGap),
			ActionRequired: "investigation required",
		})
	}
	if snapshot.SuspenseCount > suspenseAlertCount {
		report.Alerts = append(report.Alerts, models.Alert{
			Type:           AlertSuspenseCount,
			Severity:       models.SeverityMedium,
			Message:        fmt.Sprintf("%d transactions in suspense", snapshot.SuspenseCount),
			ActionRequired: "manual review recommended",
		})
	}
	if snapshot.CoverageRatio < coverageAlertFloor {
		report.Alerts = append(report.Alerts, models.Alert{
			Type:           AlertLowCoverage,
			Severity:       models.SeverityMedium,
			Message:        fmt.Sprintf("coverage ratio %.4f below %.2f", snapshot.CoverageRatio, coverageAlertFloor),
			ActionRequired: "check data quality",
		})
	}
}

func movementTotal(set []*models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range set {
		if !tx.IsBalanceLine() {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

func matchedTotal(side models.Side, set []*models.Transaction, matches []*models.Match) decimal.Decimal {
	byID := indexByID(set)
	total := decimal.Zero
	for _, m := range matches {
		var ids []string
		if side == models.SideBank {
			ids = []string{m.BankID}
		} else {
			ids = m.CounterpartIDs()
		}
		for _, id := range ids {
			if tx, ok := byID[id]; ok {
				total = total.Add(tx.Amount)
			}
		}
	}
	return total
}

func suspenseTotal(side models.Side, set []*models.Transaction, suspense []*models.SuspenseItem) decimal.Decimal {
	byID := indexByID(set)
	total := decimal.Zero
	for _, item := range suspense {
		if item.Side != side {
			continue
		}
		if tx, ok := byID[item.TransactionID]; ok && !tx.IsBalanceLine() {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

func indexByID(set []*models.Transaction) map[string]*models.Transaction {
	index := make(map[string]*models.Transaction, len(set))
	for _, tx := range set {
		index[tx.ID] = tx
	}
	return index
}
