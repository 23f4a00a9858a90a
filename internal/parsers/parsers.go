// Package parsers loads bank statements and accounting ledger exports from
// CSV into the normalized transaction model. It absorbs the format quirks
// of the source files so the matching core only ever sees clean data:
// day-first dates, decimal-comma amounts with thousands separators, split
// debit/credit columns, and rows without stable identifiers.
package parsers

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
)

// dateFormats are tried in order. Day-first formats come first: the source
// files are Tunisian exports and 03/04/2024 means April 3rd.
var dateFormats = []string{
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"2006-01-02",
	"02/01/06",
}

// ParseConfig holds the CSV-level settings shared by both parsers.
type ParseConfig struct {
	Delimiter     rune
	HasHeader     bool
	SkipEmptyRows bool
}

// DefaultParseConfig returns the settings matching the common exports:
// semicolon-delimited with a header row.
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:     ';',
		HasHeader:     true,
		SkipEmptyRows: true,
	}
}

// ParseStats summarizes one file load.
type ParseStats struct {
	TotalRows   int
	ParsedRows  int
	SkippedRows int
}

// parseDate tries the known day-first formats in order.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, format := range dateFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperrors.Newf(apperrors.CategoryParse, apperrors.CodeInvalidDate,
		"unparseable date %q", value)
}

// parseAmount normalizes the amount notations found in the exports:
// "1.234,567" and "1 234,567" (decimal comma, millimes), "1,234.57"
// (decimal point), bare "250" and "-42.500", with optional currency
// suffixes.
func parseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(value)
	for _, symbol := range []string{"TND", "DT", "€", "$"} {
		cleaned = strings.ReplaceAll(cleaned, symbol, "")
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return decimal.Zero, apperrors.New(apperrors.CategoryParse, apperrors.CodeInvalidAmount,
			"empty amount")
	}

	hasComma := strings.Contains(cleaned, ",")
	hasDot := strings.Contains(cleaned, ".")
	switch {
	case hasComma && hasDot:
		// The rightmost separator is the decimal mark; the other one
		// groups thousands.
		if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case hasComma:
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err, apperrors.CategoryParse, apperrors.CodeInvalidAmount,
			"unparseable amount "+value)
	}
	return amount, nil
}

// readRows loads and filters the raw CSV rows. The header row, when
// present, is returned separately with its cells lowercased and trimmed.
func readRows(path string, config *ParseConfig) (header []string, rows [][]string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CategoryParse, apperrors.CodeInvalidFormat,
			"cannot open "+path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = config.Delimiter
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// FieldPos is unusable here: quoting errors surface before any
			// field position is recorded. The ParseError carries the line.
			line := 0
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				line = csvErr.Line
			}
			return nil, nil, apperrors.ParseError(apperrors.CodeInvalidFormat, path, line,
				"malformed CSV row", err)
		}
		if first && config.HasHeader {
			header = make([]string, len(record))
			for i, cell := range record {
				header[i] = strings.ToLower(strings.TrimSpace(cell))
			}
			first = false
			continue
		}
		first = false
		if config.SkipEmptyRows && isEmptyRow(record) {
			continue
		}
		rows = append(rows, record)
	}
	return header, rows, nil
}

func isEmptyRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// columnIndex resolves the first matching header name, -1 when absent.
func columnIndex(header []string, names ...string) int {
	for _, name := range names {
		for i, cell := range header {
			if cell == name {
				return i
			}
		}
	}
	return -1
}

func cellAt(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}
