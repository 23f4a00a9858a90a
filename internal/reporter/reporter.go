// Package reporter renders a finished reconciliation run for its two
// audiences: operators reading a terminal and downstream tooling consuming
// structured output. The console report leads with the gap decomposition,
// since that is the number an operator acts on; the JSON report is the full
// result; the CSV report lists the suspense items for spreadsheet review.
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
)

// OutputFormat selects the report rendering.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid reports whether the format is one of the supported renderings.
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig controls what the report includes.
type ReportConfig struct {
	Format OutputFormat

	IncludeMatches    bool
	IncludeSuspense   bool
	IncludeValidation bool

	CSVDelimiter rune
}

// DefaultReportConfig returns the operator-facing defaults.
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:            FormatConsole,
		IncludeMatches:    false,
		IncludeSuspense:   true,
		IncludeValidation: true,
		CSVDelimiter:      ';',
	}
}

// Validate checks the configuration.
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return apperrors.ConfigurationError("format", string(c.Format), nil)
	}
	return nil
}

// Reporter renders ReconciliationResults.
type Reporter struct {
	config *ReportConfig
}

// New creates a Reporter. Nil config gets the defaults.
func New(config *ReportConfig) (*Reporter, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Reporter{config: config}, nil
}

// Write renders the result to w in the configured format.
func (r *Reporter) Write(w io.Writer, result *models.ReconciliationResult) error {
	switch r.config.Format {
	case FormatJSON:
		return r.writeJSON(w, result)
	case FormatCSV:
		return r.writeCSV(w, result)
	default:
		return r.writeConsole(w, result)
	}
}

func (r *Reporter) writeJSON(w io.Writer, result *models.ReconciliationResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// writeCSV emits the suspense listing, the part of the result operators
// work through row by row.
func (r *Reporter) writeCSV(w io.Writer, result *models.ReconciliationResult) error {
	writer := csv.NewWriter(w)
	writer.Comma = r.config.CSVDelimiter

	if err := writer.Write([]string{"transaction_id", "side", "reason", "suggested_category", "confidence"}); err != nil {
		return err
	}
	for _, item := range result.Suspense {
		confidence := ""
		if item.Confidence != nil {
			confidence = strconv.FormatFloat(*item.Confidence, 'f', 2, 64)
		}
		row := []string{item.TransactionID, string(item.Side), item.Reason, item.SuggestedCategory, confidence}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (r *Reporter) writeConsole(w io.Writer, result *models.ReconciliationResult) error {
	var b strings.Builder

	b.WriteString("RECONCILIATION SUMMARY\n")
	b.WriteString(strings.Repeat("=", 54) + "\n")
	s := result.Summary
	fmt.Fprintf(&b, "  Bank total:              %14s\n", s.BankTotal)
	fmt.Fprintf(&b, "  Accounting total:        %14s\n", s.AccountingTotal)
	fmt.Fprintf(&b, "  Initial gap:             %14s\n", s.InitialGap)
	fmt.Fprintf(&b, "  Explained by suspense:   %14s\n", s.ExplainedGap)
	fmt.Fprintf(&b, "  Residual gap:            %14s\n", s.ResidualGap)
	fmt.Fprintf(&b, "  Coverage:                %13.2f%% (ratio %.4f)\n", s.CoveragePercentage, s.CoverageRatio)
	fmt.Fprintf(&b, "  Matched / suspense:      %7d / %d\n", s.MatchedCount, s.SuspenseCount)
	fmt.Fprintf(&b, "  Balanced:                %14v\n", s.IsBalanced)
	if s.RequiresInvestigation {
		b.WriteString("  >> residual gap requires investigation\n")
	}

	if len(result.Metrics.TierMatches) > 0 {
		b.WriteString("\nMATCHES BY TIER\n")
		for _, tier := range models.Tiers() {
			if count := result.Metrics.TierMatches[tier]; count > 0 {
				fmt.Fprintf(&b, "  %-12s %6d\n", tier, count)
			}
		}
	}

	if r.config.IncludeMatches && len(result.Matches) > 0 {
		b.WriteString("\nMATCHES\n")
		for _, m := range result.Matches {
			fmt.Fprintf(&b, "  %-9s %-11s %s -> %s (score %.2f)\n",
				m.ReconNumber, m.Tier, m.BankID, strings.Join(m.CounterpartIDs(), "+"), m.Score)
		}
	}

	if r.config.IncludeSuspense && len(result.Suspense) > 0 {
		b.WriteString("\nSUSPENSE\n")
		for _, item := range result.Suspense {
			line := fmt.Sprintf("  [%s] %s", item.Side, item.TransactionID)
			if item.SuggestedCategory != "" {
				line += " (" + item.SuggestedCategory + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	if r.config.IncludeValidation {
		v := result.Validation
		if len(v.Errors) > 0 || len(v.Warnings) > 0 || len(v.Alerts) > 0 {
			b.WriteString("\nVALIDATION\n")
			for _, f := range v.Errors {
				fmt.Fprintf(&b, "  ERROR [%s] %s\n", f.Severity, f.Message)
			}
			for _, f := range v.Warnings {
				fmt.Fprintf(&b, "  WARN  [%s] %s\n", f.Severity, f.Message)
			}
			for _, a := range v.Alerts {
				fmt.Fprintf(&b, "  ALERT %s: %s\n", a.ActionRequired, a.Message)
			}
		}
	}

	fmt.Fprintf(&b, "\nProcessed in %s", result.Metrics.Duration)
	if result.Metrics.AssistCalls > 0 {
		fmt.Fprintf(&b, " (%d capability calls, %d fallbacks)",
			result.Metrics.AssistCalls, result.Metrics.AssistFallbacks)
	}
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}
