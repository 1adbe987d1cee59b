// Package statement reads bank statement exports (CSV or XLSX) into staged
// statement lines. The header row is detected by column names in English or
// Portuguese; amounts accept both 1,234.56 and 1.234,56 notations.
package statement

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"estatecore/pkg/domain"
)

// ErrUnsupportedFormat is returned for files that are neither .csv nor .xlsx.
var ErrUnsupportedFormat = errors.New("unsupported statement format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

type column int

const (
	colDate column = iota
	colDescription
	colAmount
	colCredit
	colDebit
	colReference
)

var aliases = map[string]column{
	"date":        colDate,
	"data":        colDate,
	"posted":      colDate,
	"description": colDescription,
	"descricao":   colDescription,
	"descrição":   colDescription,
	"historico":   colDescription,
	"histórico":   colDescription,
	"memo":        colDescription,
	"amount":      colAmount,
	"valor":       colAmount,
	"value":       colAmount,
	"credit":      colCredit,
	"credito":     colCredit,
	"crédito":     colCredit,
	"debit":       colDebit,
	"debito":      colDebit,
	"débito":      colDebit,
	"reference":   colReference,
	"ref":         colReference,
	"documento":   colReference,
	"document":    colReference,
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02/01/06",
	"02-01-2006",
	time.RFC3339,
}

// Parse dispatches on the file extension.
func Parse(fileName string, r io.Reader) ([]domain.StatementLine, error) {
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv", ".txt":
		return ParseCSV(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// ParseCSV reads a comma or semicolon separated export.
func ParseCSV(r io.Reader) ([]domain.StatementLine, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, byteOrderMark)
	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(raw)))
	reader.Comma = sniffDelimiter(raw)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(records)
}

// ParseXLSX reads the first sheet of a workbook.
func ParseXLSX(r io.Reader) ([]domain.StatementLine, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func sniffDelimiter(raw []byte) rune {
	line, _, _ := bytes.Cut(raw, []byte("\n"))
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

func normalizeHeader(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// detectHeader returns the first row naming a date, a description and an
// amount (or credit/debit) column, with its column mapping.
func detectHeader(rows [][]string) (int, map[column]int, bool) {
	for i, row := range rows {
		cols := make(map[column]int)
		for j, cell := range row {
			if c, ok := aliases[normalizeHeader(cell)]; ok {
				if _, seen := cols[c]; !seen {
					cols[c] = j
				}
			}
		}
		_, hasDate := cols[colDate]
		_, hasDesc := cols[colDescription]
		_, hasAmount := cols[colAmount]
		_, hasCredit := cols[colCredit]
		_, hasDebit := cols[colDebit]
		if hasDate && hasDesc && (hasAmount || hasCredit || hasDebit) {
			return i, cols, true
		}
	}
	return 0, nil, false
}

func cell(row []string, cols map[column]int, c column) string {
	idx, ok := cols[c]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func fromRows(rows [][]string) ([]domain.StatementLine, error) {
	header, cols, ok := detectHeader(rows)
	if !ok {
		return nil, errors.New("header row could not be detected")
	}
	var lines []domain.StatementLine
	for i := header + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		line, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, errors.New("statement has no lines")
	}
	return lines, nil
}

func parseRow(row []string, cols map[column]int) (domain.StatementLine, error) {
	date, err := ParseDate(cell(row, cols, colDate))
	if err != nil {
		return domain.StatementLine{}, err
	}
	var amount int64
	if _, ok := cols[colAmount]; ok {
		if amount, err = ParseAmount(cell(row, cols, colAmount)); err != nil {
			return domain.StatementLine{}, err
		}
	} else {
		credit, err := optionalAmount(cell(row, cols, colCredit))
		if err != nil {
			return domain.StatementLine{}, err
		}
		debit, err := optionalAmount(cell(row, cols, colDebit))
		if err != nil {
			return domain.StatementLine{}, err
		}
		if debit < 0 {
			debit = -debit
		}
		amount = credit - debit
	}
	return domain.StatementLine{
		Date:        date,
		Description: cell(row, cols, colDescription),
		AmountCents: amount,
		Reference:   cell(row, cols, colReference),
	}, nil
}

func optionalAmount(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return ParseAmount(v)
}

// ParseDate accepts ISO, day-first and Excel serial dates.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	if serial, err := strconv.ParseFloat(v, 64); err == nil && serial > 0 {
		return excelize.ExcelDateToTime(serial, false)
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

// ParseAmount converts a formatted money value to cents. Currency symbols,
// spaces, a leading or trailing minus and accounting parentheses are accepted.
func ParseAmount(v string) (int64, error) {
	s := strings.TrimSpace(v)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative, s = true, s[1:len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',', r == '-':
			return r
		default:
			return -1
		}
	}, s)
	if strings.HasPrefix(s, "-") {
		negative, s = !negative, s[1:]
	} else if strings.HasSuffix(s, "-") {
		negative, s = !negative, s[:len(s)-1]
	}
	if s == "" || strings.Contains(s, "-") {
		return 0, fmt.Errorf("unrecognised amount %q", v)
	}

	intPart, frac := s, ""
	if i := strings.LastIndexAny(s, ".,"); i >= 0 {
		tail := s[i+1:]
		mixed := strings.Contains(s, ".") && strings.Contains(s, ",")
		if len(tail) <= 2 || mixed || strings.Count(s, s[i:i+1]) == 1 && len(tail) != 3 {
			intPart, frac = s[:i], tail
		}
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("unrecognised amount %q", v)
	}
	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognised amount %q", v)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognised amount %q", v)
	}
	total := units*100 + cents
	if negative {
		total = -total
	}
	return total, nil
}
