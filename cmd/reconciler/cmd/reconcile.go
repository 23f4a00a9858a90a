package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/khiari-mohamed/approchement-backend/cmd/reconciler/config"
	"github.com/khiari-mohamed/approchement-backend/internal/assist"
	"github.com/khiari-mohamed/approchement-backend/internal/parsers"
	"github.com/khiari-mohamed/approchement-backend/internal/reconciler"
	"github.com/khiari-mohamed/approchement-backend/internal/reporter"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

type reconcileFlags struct {
	bankFile   string
	ledgerFile string

	outputFormat   string
	outputFile     string
	includeMatches bool

	delimiter string
	noHeader  bool

	amountTolerance float64
	dateTolerance   int
	fuzzyDateDays   int
	weakDateDays    int
	maxGroupSize    int
	disableGroups   bool
	disableAssist   bool

	assistEndpoint string
	assistAPIKey   string
	assistTimeout  time.Duration
	assistMaxCalls int
}

var reconcileOpts reconcileFlags

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a bank statement against an accounting ledger",
	Long: `Reconcile loads a bank statement CSV and an accounting ledger CSV,
runs the tiered matching pipeline, and reports the gap decomposition,
matches, suspense items, and validation findings.`,
	RunE: runReconcile,
}

func init() {
	flags := reconcileCmd.Flags()

	flags.StringVar(&reconcileOpts.bankFile, "bank-file", "", "bank statement CSV (required)")
	flags.StringVar(&reconcileOpts.ledgerFile, "ledger-file", "", "accounting ledger CSV (required)")
	reconcileCmd.MarkFlagRequired("bank-file")
	reconcileCmd.MarkFlagRequired("ledger-file")

	flags.StringVar(&reconcileOpts.outputFormat, "output-format", "console", "output format (console, json, csv)")
	flags.StringVar(&reconcileOpts.outputFile, "output-file", "", "write the report to a file instead of stdout")
	flags.BoolVar(&reconcileOpts.includeMatches, "include-matches", false, "list individual matches in the console report")

	flags.StringVar(&reconcileOpts.delimiter, "delimiter", ";", "CSV delimiter")
	flags.BoolVar(&reconcileOpts.noHeader, "no-header", false, "input files carry no header row")

	flags.Float64Var(&reconcileOpts.amountTolerance, "amount-tolerance", 0, "absolute amount tolerance in currency units")
	flags.IntVar(&reconcileOpts.dateTolerance, "date-tolerance", 0, "exact-tier date tolerance in days")
	flags.IntVar(&reconcileOpts.fuzzyDateDays, "fuzzy-date-tolerance", 0, "amount-only-tier date window in days")
	flags.IntVar(&reconcileOpts.weakDateDays, "weak-date-tolerance", 0, "fuzzy-tier date window in days")
	flags.IntVar(&reconcileOpts.maxGroupSize, "max-group-size", 0, "largest accounting group matched to one bank line")
	flags.BoolVar(&reconcileOpts.disableGroups, "disable-groups", false, "skip the group matching tier")
	flags.BoolVar(&reconcileOpts.disableAssist, "disable-assist", false, "run deterministic-only, no external capability")

	flags.StringVar(&reconcileOpts.assistEndpoint, "assist-url", "", "assistance service base URL")
	flags.StringVar(&reconcileOpts.assistAPIKey, "assist-api-key", "", "assistance service API key")
	flags.DurationVar(&reconcileOpts.assistTimeout, "assist-timeout", assist.DefaultCallTimeout, "per-call assistance timeout")
	flags.IntVar(&reconcileOpts.assistMaxCalls, "assist-max-calls", 0, "assistance calls allowed per minute")

	viper.BindPFlag("assist_url", flags.Lookup("assist-url"))
	viper.BindPFlag("assist_api_key", flags.Lookup("assist-api-key"))

	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	log, err := config.BuildLogger(viper.GetBool("verbose"), logFormat)
	if err != nil {
		return err
	}
	logger.SetGlobal(log)

	rules, err := config.BuildRules(config.MatchingOptions{
		AmountTolerance:   reconcileOpts.amountTolerance,
		DateToleranceDays: reconcileOpts.dateTolerance,
		FuzzyDateDays:     reconcileOpts.fuzzyDateDays,
		WeakDateDays:      reconcileOpts.weakDateDays,
		MaxGroupSize:      reconcileOpts.maxGroupSize,
		DisableGroups:     reconcileOpts.disableGroups,
		DisableAssistance: reconcileOpts.disableAssist,
	})
	if err != nil {
		return err
	}

	parseConfig, err := config.BuildParseConfig(reconcileOpts.delimiter, reconcileOpts.noHeader)
	if err != nil {
		return err
	}
	reportConfig, err := config.BuildReportConfig(reconcileOpts.outputFormat, reconcileOpts.includeMatches)
	if err != nil {
		return err
	}

	bank, bankStats, err := parsers.NewBankStatementParser(parseConfig, log).Parse(reconcileOpts.bankFile)
	if err != nil {
		return err
	}
	accounting, ledgerStats, err := parsers.NewLedgerParser(parseConfig, log).Parse(reconcileOpts.ledgerFile)
	if err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"bank_rows":   bankStats.ParsedRows,
		"ledger_rows": ledgerStats.ParsedRows,
	}).Info("input files loaded")

	endpoint := reconcileOpts.assistEndpoint
	if endpoint == "" {
		endpoint = viper.GetString("assist_url")
	}
	apiKey := reconcileOpts.assistAPIKey
	if apiKey == "" {
		apiKey = viper.GetString("assist_api_key")
	}
	client := config.BuildAssistClient(config.AssistOptions{
		Endpoint:       endpoint,
		APIKey:         apiKey,
		CallTimeout:    reconcileOpts.assistTimeout,
		MaxCallsPerMin: reconcileOpts.assistMaxCalls,
	}, reconcileOpts.disableAssist, log)

	serviceConfig := reconciler.Config{Rules: rules, Logger: log}
	if client != nil {
		serviceConfig.Comparer = client
		serviceConfig.Categorizer = client
	}
	service, err := reconciler.NewService(serviceConfig)
	if err != nil {
		return err
	}

	result, err := service.Run(cmd.Context(), bank, accounting)
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput(reconcileOpts.outputFile)
	if err != nil {
		return err
	}
	defer closeOut()

	rep, err := reporter.New(reportConfig)
	if err != nil {
		return err
	}
	if err := rep.Write(out, result); err != nil {
		return err
	}

	if !result.Validation.Valid {
		fmt.Fprintln(cmd.ErrOrStderr(), "reconciliation completed with validation errors")
	}
	return nil
}

func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { file.Close() }, nil
}
