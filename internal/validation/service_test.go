package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
)

var day = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func tx(id string, date time.Time, amount string, description string) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Description: description,
	}
}

func single(bankID, acctID string) *models.Match {
	return &models.Match{
		Kind:         models.MatchSingle,
		BankID:       bankID,
		AccountingID: acctID,
		Tier:         models.TierExact,
		Score:        1.0,
	}
}

func suspense(id string, side models.Side) *models.SuspenseItem {
	return &models.SuspenseItem{TransactionID: id, Side: side}
}

func findingTypes(findings []models.Finding) []string {
	types := make([]string, len(findings))
	for i, f := range findings {
		types[i] = f.Type
	}
	return types
}

func hasFinding(findings []models.Finding, wantType string) bool {
	for _, f := range findings {
		if f.Type == wantType {
			return true
		}
	}
	return false
}

func hasAlert(alerts []models.Alert, action string) bool {
	for _, a := range alerts {
		if a.ActionRequired == action {
			return true
		}
	}
	return false
}

func TestValidateCleanRun(t *testing.T) {
	bank := []*models.Transaction{tx("b1", day, "100.00", "VIR")}
	accounting := []*models.Transaction{tx("a1", day, "100.00", "VIR")}
	matches := []*models.Match{single("b1", "a1")}

	report := NewService(nil).Validate(bank, accounting, matches, nil, nil)

	if !report.Valid {
		t.Fatalf("Valid = false, errors: %v", findingTypes(report.Errors))
	}
	if len(report.Warnings) != 0 {
		t.Errorf("warnings: %v", findingTypes(report.Warnings))
	}
}

func TestValidateCountConservationViolation(t *testing.T) {
	// a1 vanished: neither matched nor in suspense.
	bank := []*models.Transaction{tx("b1", day, "100.00", "VIR")}
	accounting := []*models.Transaction{tx("a1", day, "100.00", "VIR")}
	items := []*models.SuspenseItem{suspense("b1", models.SideBank)}

	report := NewService(nil).Validate(bank, accounting, nil, items, nil)

	if report.Valid {
		t.Fatal("Valid = true, want false")
	}
	if !hasFinding(report.Errors, TypeCountConservation) {
		t.Errorf("missing count_conservation error, got %v", findingTypes(report.Errors))
	}
	// The dropped transaction also breaks per-side amount conservation.
	if !hasFinding(report.Errors, TypeBalanceCoherence) {
		t.Errorf("missing balance_coherence error, got %v", findingTypes(report.Errors))
	}
}

func TestValidateDuplicateClaim(t *testing.T) {
	bank := []*models.Transaction{
		tx("b1", day, "100.00", "VIR"),
		tx("b2", day, "100.00", "VIR"),
	}
	accounting := []*models.Transaction{tx("a1", day, "100.00", "VIR")}
	matches := []*models.Match{single("b1", "a1"), single("b2", "a1")}

	report := NewService(nil).Validate(bank, accounting, matches, nil, nil)

	if report.Valid {
		t.Fatal("Valid = true, want false")
	}
	if !hasFinding(report.Errors, TypeDuplicateClaim) {
		t.Errorf("missing duplicate_claim error, got %v", findingTypes(report.Errors))
	}
	if report.DuplicatesFound != 1 {
		t.Errorf("DuplicatesFound = %d, want 1", report.DuplicatesFound)
	}
}

func TestValidateDateSanity(t *testing.T) {
	future := time.Now().AddDate(0, 1, 0)
	bank := []*models.Transaction{tx("b1", future, "10.00", "VIR")}
	items := []*models.SuspenseItem{suspense("b1", models.SideBank)}

	report := NewService(nil).Validate(bank, nil, nil, items, nil)

	if !report.Valid {
		t.Fatalf("date warnings must not invalidate the run, errors: %v", findingTypes(report.Errors))
	}
	if !hasFinding(report.Warnings, TypeDateSanity) {
		t.Errorf("missing date_sanity warning, got %v", findingTypes(report.Warnings))
	}
	if report.DateViolations != 1 {
		t.Errorf("DateViolations = %d, want 1", report.DateViolations)
	}
}

func TestValidateDebitCreditImbalance(t *testing.T) {
	bank := []*models.Transaction{tx("b1", day, "100.00", "VIR")}
	accounting := []*models.Transaction{tx("a1", day, "100.05", "VIR")}
	matches := []*models.Match{single("b1", "a1")}

	report := NewService(nil).Validate(bank, accounting, matches, nil, nil)

	if !hasFinding(report.Warnings, TypeDebitCreditSymmetry) {
		t.Errorf("missing debit_credit_symmetry warning, got %v", findingTypes(report.Warnings))
	}
	if report.DebitCreditImbalances != 1 {
		t.Errorf("DebitCreditImbalances = %d, want 1", report.DebitCreditImbalances)
	}
	// Each side's own conservation still holds, so the warning stands alone.
	if !report.Valid {
		t.Errorf("Valid = false, errors: %v", findingTypes(report.Errors))
	}
}

func TestValidateBalanceLinesOutsideCoherence(t *testing.T) {
	bank := []*models.Transaction{
		tx("b1", day, "1250.000", "SOLDE AU 15/03"),
		tx("b2", day, "100.000", "VIREMENT"),
	}
	accounting := []*models.Transaction{tx("a1", day, "100.000", "VIREMENT")}
	matches := []*models.Match{single("b2", "a1")}
	items := []*models.SuspenseItem{suspense("b1", models.SideBank)}

	report := NewService(nil).Validate(bank, accounting, matches, items, nil)

	if hasFinding(report.Errors, TypeBalanceCoherence) {
		t.Errorf("balance line must not break coherence: %v", findingTypes(report.Errors))
	}
}

func TestValidateAlerts(t *testing.T) {
	tests := []struct {
		name     string
		snapshot *models.GapSnapshot
		action   string
	}{
		{
			name: "residual gap over one percent",
			snapshot: &models.GapSnapshot{
				BankTotal:   decimal.NewFromInt(1000),
				ResidualGap: decimal.NewFromInt(50),
				// Keep the other alert checks quiet.
				CoverageRatio: 1.0,
			},
			action: "investigation required",
		},
		{
			name: "suspense count over ten",
			snapshot: &models.GapSnapshot{
				SuspenseCount: 11,
				CoverageRatio: 1.0,
			},
			action: "manual review recommended",
		},
		{
			name: "low coverage ratio",
			snapshot: &models.GapSnapshot{
				CoverageRatio: 0.5,
			},
			action: "check data quality",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := NewService(nil).Validate(nil, nil, nil, nil, tt.snapshot)

			if !hasAlert(report.Alerts, tt.action) {
				t.Errorf("missing alert %q, got %+v", tt.action, report.Alerts)
			}
			if !report.Valid {
				t.Error("alerts must never invalidate the run")
			}
		})
	}
}

func TestValidateZeroOverlapAlert(t *testing.T) {
	// Identical totals but nothing matched: coverage ratio 0 must raise
	// the data-quality alert while conservation still holds.
	bank := []*models.Transaction{tx("b1", day, "500.00", "X")}
	accounting := []*models.Transaction{tx("a1", day, "500.00", "Y")}
	items := []*models.SuspenseItem{
		suspense("b1", models.SideBank),
		suspense("a1", models.SideAccounting),
	}
	snapshot := &models.GapSnapshot{CoverageRatio: 0.0}

	report := NewService(nil).Validate(bank, accounting, nil, items, snapshot)

	if !report.Valid {
		t.Fatalf("Valid = false, errors: %v", findingTypes(report.Errors))
	}
	if !hasAlert(report.Alerts, "check data quality") {
		t.Errorf("missing data-quality alert, got %+v", report.Alerts)
	}
}
