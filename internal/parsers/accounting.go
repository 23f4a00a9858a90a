package parsers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khiari-mohamed/approchement-backend/internal/models"
	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
	"github.com/khiari-mohamed/approchement-backend/pkg/logger"
)

// LedgerColumnMapping names the columns of an accounting ledger export.
type LedgerColumnMapping struct {
	ID                 string
	Date               string
	Description        string
	Debit              string
	Credit             string
	AccountCode        string
	ProgressiveBalance string
}

// DefaultLedgerColumnMapping matches the general-ledger exports this
// system ingests.
func DefaultLedgerColumnMapping() LedgerColumnMapping {
	return LedgerColumnMapping{
		ID:                 "id",
		Date:               "date",
		Description:        "libelle",
		Debit:              "debit",
		Credit:             "credit",
		AccountCode:        "compte",
		ProgressiveBalance: "solde_progressif",
	}
}

// LedgerParser loads accounting ledger CSVs. Ledger convention: debit
// positive, credit negative. The optional solde_progressif column carries
// the running balance the gap calculator prefers over summing rows.
type LedgerParser struct {
	config  *ParseConfig
	columns LedgerColumnMapping
	log     logger.Logger
}

// NewLedgerParser creates a parser. Nil config gets the defaults.
func NewLedgerParser(config *ParseConfig, log logger.Logger) *LedgerParser {
	if config == nil {
		config = DefaultParseConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LedgerParser{
		config:  config,
		columns: DefaultLedgerColumnMapping(),
		log:     log.WithComponent("ledger_parser"),
	}
}

// WithColumns overrides the column mapping.
func (p *LedgerParser) WithColumns(columns LedgerColumnMapping) *LedgerParser {
	p.columns = columns
	return p
}

// Parse loads the ledger at path.
func (p *LedgerParser) Parse(path string) ([]*models.Transaction, *ParseStats, error) {
	header, rows, err := readRows(path, p.config)
	if err != nil {
		return nil, nil, err
	}

	idCol := columnIndex(header, p.columns.ID, "piece", "reference")
	dateCol := columnIndex(header, p.columns.Date, "date_ecriture")
	descCol := columnIndex(header, p.columns.Description, "description")
	debitCol := columnIndex(header, p.columns.Debit)
	creditCol := columnIndex(header, p.columns.Credit)
	accountCol := columnIndex(header, p.columns.AccountCode, "compte_general")
	balanceCol := columnIndex(header, p.columns.ProgressiveBalance, "solde")

	if dateCol < 0 {
		return nil, nil, apperrors.New(apperrors.CategoryParse, apperrors.CodeMissingColumn,
			"ledger export has no date column").WithContext("file", path)
	}
	if debitCol < 0 && creditCol < 0 {
		return nil, nil, apperrors.New(apperrors.CategoryParse, apperrors.CodeMissingColumn,
			"ledger export has neither debit nor credit columns").WithContext("file", path)
	}

	stats := &ParseStats{TotalRows: len(rows)}
	transactions := make([]*models.Transaction, 0, len(rows))
	for i, record := range rows {
		line := i + 2

		date, err := parseDate(cellAt(record, dateCol))
		if err != nil {
			p.log.WithError(err).WithField("line", line).Warn("skipping ledger row with bad date")
			stats.SkippedRows++
			continue
		}

		amount, err := rowDebitCredit(record, debitCol, creditCol)
		if err != nil {
			p.log.WithError(err).WithField("line", line).Warn("skipping ledger row with bad amount")
			stats.SkippedRows++
			continue
		}

		id := cellAt(record, idCol)
		if id == "" {
			id = uuid.NewString()
		}

		tx := &models.Transaction{
			ID:          id,
			Date:        date,
			Amount:      amount,
			Description: cellAt(record, descCol),
			Currency:    "TND",
			AccountCode: cellAt(record, accountCol),
		}
		if raw := cellAt(record, balanceCol); raw != "" {
			balance, err := parseAmount(raw)
			if err != nil {
				p.log.WithError(err).WithField("line", line).Warn("ignoring unparseable progressive balance")
			} else {
				tx.ProgressiveBalance = &balance
			}
		}

		transactions = append(transactions, tx)
		stats.ParsedRows++
	}

	p.log.WithFields(logger.Fields{
		"file":    path,
		"parsed":  stats.ParsedRows,
		"skipped": stats.SkippedRows,
	}).Info("ledger export loaded")

	return transactions, stats, nil
}

// rowDebitCredit reads the signed amount under the ledger convention:
// debit positive, credit negative. A row carrying both uses their
// difference.
func rowDebitCredit(record []string, debitCol, creditCol int) (decimal.Decimal, error) {
	amount := decimal.Zero
	if raw := cellAt(record, debitCol); raw != "" && raw != "0" {
		debit, err := parseAmount(raw)
		if err != nil {
			return decimal.Zero, err
		}
		amount = amount.Add(debit)
	}
	if raw := cellAt(record, creditCol); raw != "" && raw != "0" {
		credit, err := parseAmount(raw)
		if err != nil {
			return decimal.Zero, err
		}
		amount = amount.Sub(credit)
	}
	return amount, nil
}
