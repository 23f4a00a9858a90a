package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
)

func sampleResult() *models.ReconciliationResult {
	confidence := 0.6
	return &models.ReconciliationResult{
		Summary: models.GapSnapshot{
			BankTotal:          decimal.RequireFromString("1250.000"),
			AccountingTotal:    decimal.RequireFromString("1207.500"),
			InitialGap:         decimal.RequireFromString("42.500"),
			ExplainedGap:       decimal.RequireFromString("42.500"),
			ResidualGap:        decimal.Zero,
			BankSuspenseTotal:  decimal.RequireFromString("42.500"),
			CoveragePercentage: 100.0,
			CoverageRatio:      0.6667,
			MatchedCount:       2,
			SuspenseCount:      1,
			IsBalanced:         true,
		},
		Matches: []*models.Match{
			{
				ID: "m1", Kind: models.MatchSingle, BankID: "b1", AccountingID: "a1",
				Tier: models.TierExact, Score: 1.0, ReconNumber: "R000001",
			},
			{
				ID: "m2", Kind: models.MatchGroup, BankID: "b2", AccountingIDs: []string{"a2", "a3"},
				Tier: models.TierGroup, Score: 0.8, ReconNumber: "RG000002",
			},
		},
		Suspense: []*models.SuspenseItem{
			{
				TransactionID: "b3", Side: models.SideBank,
				Reason:            "no matching entry found on the other side",
				SuggestedCategory: "FRAIS_BANCAIRE", Confidence: &confidence,
			},
		},
		Validation: models.ValidationReport{
			Valid: true,
			Alerts: []models.Alert{
				{Type: "low_coverage", Severity: models.SeverityMedium,
					Message: "coverage ratio 0.6667 below 0.70", ActionRequired: "check data quality"},
			},
		},
		Metrics: models.ProcessingMetrics{
			Duration:    25 * time.Millisecond,
			TierMatches: map[models.Tier]int{models.TierExact: 1, models.TierGroup: 1},
		},
		ProcessedAt: time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC),
	}
}

func render(t *testing.T, config *ReportConfig) string {
	t.Helper()
	r, err := New(config)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	var buf bytes.Buffer
	if err := r.Write(&buf, sampleResult()); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	return buf.String()
}

func TestConsoleReport(t *testing.T) {
	out := render(t, nil)

	for _, want := range []string{
		"RECONCILIATION SUMMARY",
		"Initial gap",
		"42.5",
		"exact",
		"group",
		"[bank] b3 (FRAIS_BANCAIRE)",
		"check data quality",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("console report missing %q\n%s", want, out)
		}
	}
	// Match listing is off by default.
	if strings.Contains(out, "R000001") {
		t.Error("console report lists matches with IncludeMatches off")
	}
}

func TestConsoleReportWithMatches(t *testing.T) {
	config := DefaultReportConfig()
	config.IncludeMatches = true

	out := render(t, config)

	if !strings.Contains(out, "R000001") || !strings.Contains(out, "a2+a3") {
		t.Errorf("match listing incomplete:\n%s", out)
	}
}

func TestJSONReportRoundTrips(t *testing.T) {
	out := render(t, &ReportConfig{Format: FormatJSON})

	var decoded models.ReconciliationResult
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Summary.MatchedCount != 2 {
		t.Errorf("matched_count = %d, want 2", decoded.Summary.MatchedCount)
	}
	if len(decoded.Matches) != 2 || len(decoded.Suspense) != 1 {
		t.Errorf("matches/suspense = %d/%d, want 2/1", len(decoded.Matches), len(decoded.Suspense))
	}
}

func TestCSVReportListsSuspense(t *testing.T) {
	out := render(t, &ReportConfig{Format: FormatCSV, CSVDelimiter: ';'})

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row:\n%s", len(lines), out)
	}
	if lines[0] != "transaction_id;side;reason;suggested_category;confidence" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "b3;bank;") || !strings.Contains(lines[1], "FRAIS_BANCAIRE") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestInvalidFormatRejected(t *testing.T) {
	if _, err := New(&ReportConfig{Format: "xml"}); err == nil {
		t.Fatal("New() accepted unsupported format")
	}
}
