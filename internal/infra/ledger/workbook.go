// Package ledger keeps the payment/admission record in a local .xlsx
// workbook. Every operation opens the file, mutates it and saves it back;
// the workbook on disk is the record of truth for reporting.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/entry-gate/internal/domain/gate"
)

const (
	sheetName     = "Sheet1"
	timestampFmt  = "2006-01-02 15:04:05"
	colTimestamp  = 0
	colTxnID      = 3
	colAmount     = 4
	colStatus     = 6
	statusCellFmt = "G%d"
)

var header = []interface{}{
	"Timestamp", "Name", "Phone", "TransactionID", "Amount", "Duration", "Status", "PaymentMode", "Plan",
}

type Workbook struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Workbook {
	return &Workbook{path: path}
}

// open returns the workbook, creating it with a header row on first use.
func (w *Workbook) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("ledger: open workbook: %w", err)
	}

	f = excelize.NewFile()
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ledger: write header: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("ledger: create workbook: %w", err)
	}
	return f, nil
}

func (w *Workbook) Append(_ context.Context, row gate.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("ledger: read rows: %w", err)
	}

	values := []interface{}{
		row.Timestamp.Format(timestampFmt),
		row.Name,
		row.Phone,
		row.TransactionID,
		row.Amount,
		row.Duration,
		row.Status,
		row.PaymentMode,
		row.Plan,
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return fmt.Errorf("ledger: cell name: %w", err)
	}
	if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
		return fmt.Errorf("ledger: append row: %w", err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("ledger: save workbook: %w", err)
	}
	return nil
}

func (w *Workbook) FindStatus(_ context.Context, tid string) (string, bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return "", false, err
	}
	defer func() { _ = f.Close() }()

	_, row, err := findRow(f, tid)
	if err != nil || row == nil {
		return "", false, err
	}
	return cellAt(row, colStatus), true, nil
}

func (w *Workbook) SetStatus(_ context.Context, tid, status string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	idx, row, err := findRow(f, tid)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("ledger: transaction %s not found", tid)
	}
	if err := f.SetCellValue(sheetName, fmt.Sprintf(statusCellFmt, idx), status); err != nil {
		return fmt.Errorf("ledger: set status: %w", err)
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("ledger: save workbook: %w", err)
	}
	return nil
}

func (w *Workbook) Exists(ctx context.Context, tid string) (bool, error) {
	_, ok, err := w.FindStatus(ctx, tid)
	return ok, err
}

// AggregateDay counts entries and sums amounts for the calendar day of t.
func (w *Workbook) AggregateDay(_ context.Context, t time.Time) (int, int, error) {
	return w.aggregate(t.Format("2006-01-02"))
}

// AggregateAll counts entries and sums amounts over the whole workbook.
func (w *Workbook) AggregateAll(_ context.Context) (int, int, error) {
	return w.aggregate("")
}

func (w *Workbook) aggregate(dayPrefix string) (int, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open()
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: read rows: %w", err)
	}

	count := 0
	total := 0.0
	for _, row := range dataRows(rows) {
		if len(row) <= colAmount {
			continue
		}
		if dayPrefix != "" && !strings.HasPrefix(cellAt(row, colTimestamp), dayPrefix) {
			continue
		}
		count++
		amount := strings.ReplaceAll(cellAt(row, colAmount), ",", "")
		if v, err := strconv.ParseFloat(amount, 64); err == nil {
			total += v
		}
	}
	return count, int(total), nil
}

// findRow returns the 1-based row index and cells for a transaction id.
func findRow(f *excelize.File, tid string) (int, []string, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return 0, nil, fmt.Errorf("ledger: read rows: %w", err)
	}
	tid = strings.TrimSpace(tid)
	for i, row := range rows {
		if strings.TrimSpace(cellAt(row, colTxnID)) == tid {
			return i + 1, row, nil
		}
	}
	return 0, nil, nil
}

// dataRows skips the header row when one is present.
func dataRows(rows [][]string) [][]string {
	if len(rows) > 0 && cellAt(rows[0], colTimestamp) == "Timestamp" {
		return rows[1:]
	}
	return rows
}

func cellAt(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
