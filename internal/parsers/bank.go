package parsers

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// BankColumnMapping names the columns of a bank statement export. Each
// field lists one header name; the parser also knows the common aliases.
type BankColumnMapping struct {
	ID          string
	Date        string
	Description string
	Amount      string
	Debit       string
	Credit      string
}

// DefaultBankColumnMapping matches the statement exports of the Tunisian
// banks this system ingests.
func DefaultBankColumnMapping() BankColumnMapping {
	return BankColumnMapping{
		ID:          "id",
		Date:        "date",
		Description: "libelle",
		Amount:      "montant",
		Debit:       "debit",
		Credit:      "credit",
	}
}

// BankStatementParser loads bank statement CSVs. Statements either carry a
// single signed amount column or split debit/credit columns; both map to
// the bank sign convention: credit positive, debit negative.
type BankStatementParser struct {
	config  *ParseConfig
	columns BankColumnMapping
	log     logger.Logger
}

// NewBankStatementParser creates a parser. Nil config gets the defaults.
func NewBankStatementParser(config *ParseConfig, log logger.Logger) *BankStatementParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BankStatementParser{
		config:  config,
		columns: DefaultBankColumnMapping(),
		log:     log.WithComponent("bank_parser"),
	}
}

// WithColumns overrides the column mapping.
func (p *BankStatementParser) WithColumns(columns BankColumnMapping) *BankStatementParser {
	p.columns = columns
	return p
}

// Parse loads the statement at path. Rows without an id column get a
// generated one; balance lines (SOLDE, BALANCE) pass through tagged by
// their description, exactly as the matching core expects.
func (p *BankStatementParser) Parse(path string) ([]*models.Transaction, *ParseStats, error) {
	header, rows, err := readRows(path, p.config)
	if err != nil {
		return nil, nil, err
	}

	idCol := columnIndex(header, p.columns.ID, "reference", "ref")
	dateCol := columnIndex(header, p.columns.Date, "date_operation", "date_valeur")
	descCol := columnIndex(header, p.columns.Description, "description", "designation")
	amountCol := columnIndex(header, p.columns.Amount, "amount")
	debitCol := columnIndex(header, p.columns.Debit)
	creditCol := columnIndex(header, p.columns.Credit)

	if dateCol < 0 {
		return nil, nil, apperrors.New(apperrors.CategoryParse, apperrors.CodeMissingColumn,
			"bank statement has no date column").
			WithContext("file", path).
			WithSuggestion(fmt.Sprintf("expected a %q header", p.columns.Date))
	}
	if amountCol < 0 && (debitCol < 0 || creditCol < 0) {
		return nil, nil, apperrors.New(apperrors.CategoryParse, apperrors.CodeMissingColumn,
			"bank statement has neither an amount column nor debit/credit columns").
			WithContext("file", path)
	}

	stats := &ParseStats{TotalRows: len(rows)}
	transactions := make([]*models.Transaction, 0, len(rows))
	for i, record := range rows {
		line := i + 2 // header is line 1

		date, err := parseDate(cellAt(record, dateCol))
		if err != nil {
			p.log.WithError(err).WithField("line", line).Warn("skipping bank row with bad date")
			stats.SkippedRows++
			continue
		}

		amount, err := p.rowAmount(record, amountCol, debitCol, creditCol)
		if err != nil {
			p.log.WithError(err).WithField("line", line).Warn("skipping bank row with bad amount")
			stats.SkippedRows++
			continue
		}

		id := cellAt(record, idCol)
		if id == "" {
			id = uuid.NewString()
		}

		transactions = append(transactions, &models.Transaction{
			ID:          id,
			Date:        date,
			Amount:      amount,
			Description: cellAt(record, descCol),
			Currency:    "TND",
		})
		stats.ParsedRows++
	}

	p.log.WithFields(logger.Fields{
		"file":    path,
		"parsed":  stats.ParsedRows,
		"skipped": stats.SkippedRows,
	}).Info("bank statement loaded")

	return transactions, stats, nil
}

// rowAmount reads the signed amount, preferring the single column and
// falling back to debit/credit. Bank convention: credit positive, debit
// negative.
func (p *BankStatementParser) rowAmount(record []string, amountCol, debitCol, creditCol int) (decimal.Decimal, error) {
	if amountCol >= 0 && cellAt(record, amountCol) != "" {
		return parseAmount(cellAt(record, amountCol))
	}
	if debit := cellAt(record, debitCol); debit != "" && debit != "0" {
		value, err := parseAmount(debit)
		if err != nil {
			return value, err
		}
		return value.Neg(), nil
	}
	return parseAmount(cellAt(record, creditCol))
}
