// Package config translates CLI flags and environment settings into the
// configurations the reconciliation pipeline consumes.
package config

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/assist"
	"github.com/khiari-mohamed/approchement-backend/internal/assist/ratelimit"
	"github.com/khiari-mohamed/approchement-backend/internal/models"
	"github.com/khiari-mohamed/approchement-backend/internal/parsers"
	"github.com/khiari-mohamed/approchement-backend/internal/reporter"
	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// MatchingOptions carries the rule overrides exposed on the command line.
type MatchingOptions struct {
	AmountTolerance   float64
	DateToleranceDays int
	FuzzyDateDays     int
	WeakDateDays      int
	MaxGroupSize      int
	DisableGroups     bool
	DisableAssistance bool
}

// BuildRules applies the CLI overrides on top of the production defaults.
func BuildRules(opts MatchingOptions) (*models.ReconciliationRules, error) {
	rules := models.DefaultReconciliationRules()
	if opts.AmountTolerance > 0 {
		rules.AmountTolerance = decimal.NewFromFloat(opts.AmountTolerance)
	}
	if opts.DateToleranceDays > 0 {
		rules.DateToleranceDays = opts.DateToleranceDays
	}
	if opts.FuzzyDateDays > 0 {
		rules.FuzzyDateToleranceDays = opts.FuzzyDateDays
	}
	if opts.WeakDateDays > 0 {
		rules.WeakDateToleranceDays = opts.WeakDateDays
	}
	if opts.MaxGroupSize > 0 {
		rules.MaxGroupSize = opts.MaxGroupSize
	}
	rules.EnableGroupMatching = !opts.DisableGroups
	rules.EnableAIAssistance = !opts.DisableAssistance

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// BuildParseConfig maps the CSV flags to a parser configuration.
func BuildParseConfig(delimiter string, noHeader bool) (*parsers.ParseConfig, error) {
	config := parsers.DefaultParseConfig()
	if delimiter != "" {
		runes := []rune(delimiter)
		if len(runes) != 1 {
			return nil, apperrors.ConfigurationError("delimiter", delimiter, nil).
				WithSuggestion("use a single character, e.g. ';' or ','")
		}
		config.Delimiter = runes[0]
	}
	config.HasHeader = !noHeader
	return config, nil
}

// BuildReportConfig maps the output flags to a reporter configuration.
func BuildReportConfig(format string, includeMatches bool) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	if format != "" {
		config.Format = reporter.OutputFormat(format)
	}
	config.IncludeMatches = includeMatches
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// AssistOptions carries the external-capability settings.
type AssistOptions struct {
	Endpoint       string
	APIKey         string
	CallTimeout    time.Duration
	MaxCallsPerMin int
}

// BuildAssistClient wires the capability client behind its rate limiter.
// Returns nil when assistance is disabled; the engine then runs
// deterministic-only.
func BuildAssistClient(opts AssistOptions, disabled bool, log logger.Logger) *assist.Client {
	if disabled {
		return nil
	}
	maxCalls := opts.MaxCallsPerMin
	if maxCalls <= 0 {
		maxCalls = ratelimit.DefaultMaxCalls
	}
	return assist.NewClient(assist.ClientConfig{
		BaseURL:     opts.Endpoint,
		APIKey:      opts.APIKey,
		CallTimeout: opts.CallTimeout,
		Limiter:     ratelimit.NewSlidingWindow(maxCalls, ratelimit.DefaultWindow),
		Logger:      log,
	})
}

// BuildLogger creates the process logger from the verbosity flags.
func BuildLogger(verbose bool, format string) (logger.Logger, error) {
	config := logger.DefaultConfig()
	if verbose {
		config.Level = logger.DebugLevel
	}
	if format != "" {
		config.Format = logger.Format(format)
	}
	return logger.New(config)
}
