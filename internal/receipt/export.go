package receipt

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{"ID", "Date", "Merchant", "Category", "Amount", "Notes"}

func exportRow(d *Draft) []string {
	e := d.Expense
	return []string{d.ID, e.Date.String(), safeCell(e.Merchant), safeCell(e.Category), e.Amount.StringFixed(2), safeCell(e.Notes)}
}

// safeCell keeps spreadsheets from evaluating receipt text as a formula
func safeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@\t\r", rune(v[0])) {
		return "'" + v
	}
	return v
}

// WriteExpensesCSV writes confirmed expenses as CSV with a header row.
// Drafts without an expense are skipped.
func WriteExpensesCSV(w io.Writer, drafts []*Draft) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, d := range drafts {
		if d.Expense == nil {
			continue
		}
		if err := cw.Write(exportRow(d)); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const expensesSheet = "Expenses"

// ExpensesXLSX returns confirmed expenses as an XLSX workbook. Amounts are
// written as numbers so spreadsheets can sum them.
func ExpensesXLSX(drafts []*Draft) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", expensesSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(expensesSheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	row := 2
	for _, d := range drafts {
		if d.Expense == nil {
			continue
		}
		values := exportRow(d)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			var value any = v
			if col == 4 {
				value = d.Expense.Amount.InexactFloat64()
			}
			if err := f.SetCellValue(expensesSheet, cell, value); err != nil {
				return nil, fmt.Errorf("writing cell %s: %w", cell, err)
			}
		}
		row++
	}

	_ = f.SetColWidth(expensesSheet, "A", "A", 38) // id
	_ = f.SetColWidth(expensesSheet, "B", "B", 12) // date
	_ = f.SetColWidth(expensesSheet, "C", "C", 30) // merchant
	_ = f.SetColWidth(expensesSheet, "D", "E", 14)
	_ = f.SetColWidth(expensesSheet, "F", "F", 40) // notes

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
