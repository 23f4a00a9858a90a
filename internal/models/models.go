// Package models defines the domain types shared by the matching engine, the
// gap calculator, and the validation service: transactions from both ledgers,
// match records, suspense items, rules, and the assembled run result.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
)

// Side identifies which ledger a transaction or suspense item belongs to.
type Side string

const (
	SideBank       Side = "bank"
	SideAccounting Side = "accounting"
)

// Tier identifies the matching pass that produced a match. Tiers run in the
// order listed here; each pass only sees what the previous ones left behind.
type Tier string

const (
	TierExact      Tier = "exact"
	TierAmountOnly Tier = "amount_only"
	TierAIAssisted Tier = "ai_assisted"
	TierWeakFuzzy  Tier = "weak_fuzzy"
	TierGroup      Tier = "group"
)

// Tiers returns all matching tiers in pipeline order.
func Tiers() []Tier {
	return []Tier{TierExact, TierAmountOnly, TierAIAssisted, TierWeakFuzzy, TierGroup}
}

// balanceKeywords mark statement lines that carry a running balance instead
// of a movement. Keyed on the conventions of Tunisian bank statements.
var balanceKeywords = []string{"SOLDE", "BALANCE"}

// Transaction is one row of either ledger, already parsed and normalized by
// the ingestion layer. Amounts follow the native sign convention of each
// side: credit positive / debit negative for bank, debit positive / credit
// negative for accounting. Instances are owned by the caller and treated as
// immutable by the core.
type Transaction struct {
	ID          string          `json:"id"`
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Currency    string          `json:"currency"`
	AccountCode string          `json:"account_code,omitempty"`

	// ProgressiveBalance is the running balance column found on accounting
	// ledger exports (solde progressif). Nil when the export lacks one.
	ProgressiveBalance *decimal.Decimal `json:"progressive_balance,omitempty"`
}

// Validate checks the input contract. A transaction with a missing id or
// date would silently corrupt gap arithmetic, so the engine rejects the
// whole run instead of substituting defaults.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return apperrors.InputError(apperrors.CodeMissingField, "id", t.ID)
	}
	if t.Date.IsZero() {
		return apperrors.InputError(apperrors.CodeMissingField, "date", t.ID)
	}
	return nil
}

// IsBalanceLine reports whether the description marks a balance-statement
// line (SOLDE, BALANCE) rather than a movement of money.
func (t *Transaction) IsBalanceLine() bool {
	desc := strings.ToUpper(t.Description)
	for _, kw := range balanceKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Amount: %s, Description: %q}",
		t.ID, t.Date.Format("2006-01-02"), t.Amount.String(), t.Description)
}

// DateDiffDays returns the absolute difference between two dates in whole
// days, ignoring the time-of-day component.
func DateDiffDays(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// MatchKind distinguishes the two shapes a match can take.
type MatchKind int

const (
	// MatchSingle pairs one bank transaction with one accounting transaction.
	MatchSingle MatchKind = iota
	// MatchGroup pairs one bank transaction with several accounting
	// transactions whose amounts sum to the bank amount.
	MatchGroup
)

func (k MatchKind) String() string {
	switch k {
	case MatchSingle:
		return "single"
	case MatchGroup:
		return "group"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON output.
func (k MatchKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MatchKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "single":
		*k = MatchSingle
	case "group":
		*k = MatchGroup
	default:
		return fmt.Errorf("unknown match kind %q", text)
	}
	return nil
}

// Match is one claimed pairing. Kind selects which accounting field is
// populated; consumers must branch on it rather than guessing from which
// slice happens to be non-empty.
type Match struct {
	ID   string    `json:"id"`
	Kind MatchKind `json:"kind"`

	BankID string `json:"bank_id"`

	// AccountingID is set for MatchSingle.
	AccountingID string `json:"accounting_id,omitempty"`
	// AccountingIDs is set for MatchGroup; non-empty, input order preserved.
	AccountingIDs []string `json:"accounting_ids,omitempty"`

	Tier         Tier     `json:"tier"`
	Score        float64  `json:"score"`
	AIConfidence *float64 `json:"ai_confidence,omitempty"`

	// ReconNumber is the human-facing sequential audit reference
	// (R000001, RG000002, ...).
	ReconNumber string `json:"recon_number"`
}

// CounterpartIDs returns the accounting-side ids regardless of kind.
func (m *Match) CounterpartIDs() []string {
	switch m.Kind {
	case MatchSingle:
		return []string{m.AccountingID}
	case MatchGroup:
		return m.AccountingIDs
	default:
		return nil
	}
}

// SuspenseItem is a transaction no tier claimed, pending manual or
// downstream resolution.
type SuspenseItem struct {
	TransactionID     string   `json:"transaction_id"`
	Side              Side     `json:"side"`
	Reason            string   `json:"reason"`
	SuggestedCategory string   `json:"suggested_category,omitempty"`
	Confidence        *float64 `json:"confidence,omitempty"`
}

// ReconciliationRules configures the matching pipeline. Zero configuration
// is valid: DefaultReconciliationRules returns a runnable set.
type ReconciliationRules struct {
	// AmountTolerance is the absolute difference, in currency units, within
	// which two amounts count as equal.
	AmountTolerance decimal.Decimal `json:"amount_tolerance"`

	// DateToleranceDays is the exact-tier date window; FuzzyDateToleranceDays
	// widens it for the amount-only tier; WeakDateToleranceDays is the wide
	// window shared by the assisted and weak fuzzy tiers.
	DateToleranceDays      int `json:"date_tolerance_days"`
	FuzzyDateToleranceDays int `json:"fuzzy_date_tolerance_days"`
	WeakDateToleranceDays  int `json:"weak_date_tolerance_days"`

	// WeakLabelThreshold is the minimum label similarity a weak fuzzy
	// candidate must reach before its composite score is considered.
	WeakLabelThreshold float64 `json:"weak_label_threshold"`

	EnableGroupMatching bool `json:"enable_group_matching"`
	MaxGroupSize        int  `json:"max_group_size"`
	EnableAIAssistance  bool `json:"enable_ai_assistance"`
}

// DefaultReconciliationRules returns the production defaults.
func DefaultReconciliationRules() *ReconciliationRules {
	return &ReconciliationRules{
		AmountTolerance:          decimal.NewFromFloat(0.01),
		DateToleranceDays:      3,
		FuzzyDateToleranceDays: 5,
		WeakDateToleranceDays:  7,
		WeakLabelThreshold:     0.60,
		EnableGroupMatching:    true,
		MaxGroupSize:           5,
		EnableAIAssistance:     true,
	}
}

// Validate checks rule bounds.
func (r *ReconciliationRules) Validate() error {
	if r.AmountTolerance.IsNegative() {
		return apperrors.ConfigurationError("amount_tolerance", r.AmountTolerance.String(), nil)
	}
	for name, days := range map[string]int{
		"date_tolerance_days":       r.DateToleranceDays,
		"fuzzy_date_tolerance_days": r.FuzzyDateToleranceDays,
		"weak_date_tolerance_days":  r.WeakDateToleranceDays,
	} {
		if days < 0 {
			return apperrors.ConfigurationError(name, days, nil)
		}
	}
	if r.WeakLabelThreshold < 0.0 || r.WeakLabelThreshold > 1.0 {
		return apperrors.ConfigurationError("weak_label_threshold", r.WeakLabelThreshold, nil)
	}
	if r.EnableGroupMatching && r.MaxGroupSize < 2 {
		return apperrors.ConfigurationError("max_group_size", r.MaxGroupSize, nil).
			WithSuggestion("group matching needs at least 2 counterpart transactions")
	}
	return nil
}

// Clone returns a deep copy.
func (r *ReconciliationRules) Clone() *ReconciliationRules {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// GapSnapshot holds the reconciliation gap formulas computed from a finished
// run. It is derived data: recomputed from scratch each run, never mutated
// incrementally. Monetary fields are rounded to 3 decimals (the minor-unit
// precision of the dinar) at construction; all intermediate arithmetic stays
// unrounded.
type GapSnapshot struct {
	BankTotal       decimal.Decimal `json:"bank_total"`
	AccountingTotal decimal.Decimal `json:"accounting_total"`

	InitialGap   decimal.Decimal `json:"initial_gap"`
	ExplainedGap decimal.Decimal `json:"explained_gap"`
	ResidualGap  decimal.Decimal `json:"residual_gap"`

	BankSuspenseTotal       decimal.Decimal `json:"bank_suspense_total"`
	AccountingSuspenseTotal decimal.Decimal `json:"accounting_suspense_total"`

	CoveragePercentage float64 `json:"coverage_percentage"`
	CoverageRatio      float64 `json:"coverage_ratio"`

	MatchedCount  int             `json:"matched_count"`
	SuspenseCount int             `json:"suspense_count"`
	MatchedAmount decimal.Decimal `json:"matched_amount"`

	IsBalanced            bool `json:"is_balanced"`
	RequiresInvestigation bool `json:"requires_investigation"`
}

// Severity levels for validation findings.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
)

// Finding is one validation error or warning.
type Finding struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Alert is an informational anomaly flag. Alerts never fail a run.
type Alert struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	Severity       string `json:"severity"`
	ActionRequired string `json:"action_required"`
}

// ValidationReport aggregates the validation service output. Valid is true
// exactly when Errors is empty; warnings and alerts never affect it.
type ValidationReport struct {
	Valid    bool      `json:"valid"`
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
	Alerts   []Alert   `json:"alerts"`

	DuplicatesFound       int `json:"duplicates_found"`
	DateViolations        int `json:"date_violations"`
	DebitCreditImbalances int `json:"debit_credit_imbalances"`
}

// ProcessingMetrics records observability counters for one run.
type ProcessingMetrics struct {
	Duration        time.Duration `json:"duration"`
	TierMatches     map[Tier]int  `json:"tier_matches"`
	AssistCalls     int           `json:"assist_calls"`
	AssistFallbacks int           `json:"assist_fallbacks"`
	MatchAccuracy   float64       `json:"match_accuracy"`
}

// ReconciliationResult is the complete output handed back to the caller.
// Downstream collaborators consume it read-only.
type ReconciliationResult struct {
	Summary     GapSnapshot       `json:"summary"`
	Matches     []*Match          `json:"matches"`
	Suspense    []*SuspenseItem   `json:"suspense"`
	Validation  ValidationReport  `json:"validation"`
	Metrics     ProcessingMetrics `json:"processing_metrics"`
	ProcessedAt time.Time         `json:"processed_at"`
}
