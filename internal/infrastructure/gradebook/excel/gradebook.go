package excel

import (
	"bytes"
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

const (
	sheetName = "Grades"
	fileCol   = 3
)

var header = []any{"Student", "Date", "File", "Synthèse", "Essai", "Traduction", "Final score", "Complete"}

// Gradebook keeps one row per graded file in an xlsx workbook.
type Gradebook struct{}

func New() *Gradebook {
	return &Gradebook{}
}

// Upsert replaces the row of row.File, or appends one, and returns the encoded workbook.
func (g *Gradebook) Upsert(existing []byte, row domain.GradeRow) ([]byte, error) {
	f, err := open(existing)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read gradebook rows: %w", err)
	}
	target := len(rows) + 1
	for i, r := range rows {
		if i == 0 {
			continue
		}
		if len(r) >= fileCol && r[fileCol-1] == row.File {
			target = i + 1
			break
		}
	}

	cell, err := excelize.CoordinatesToCellName(1, target)
	if err != nil {
		return nil, fmt.Errorf("gradebook cell: %w", err)
	}
	if err := f.SetSheetRow(sheetName, cell, &[]any{
		row.Student,
		row.Date,
		row.File,
		row.Scores[domain.SectionSynthese],
		row.Scores[domain.SectionEssai],
		row.Scores[domain.SectionTraduction],
		math.Round(row.FinalScore*100) / 100,
		completeLabel(row.Complete),
	}); err != nil {
		return nil, fmt.Errorf("write gradebook row: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode gradebook: %w", err)
	}
	return buf.Bytes(), nil
}

func open(existing []byte) (*excelize.File, error) {
	if len(existing) == 0 {
		return newWorkbook()
	}
	f, err := excelize.OpenReader(bytes.NewReader(existing))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open gradebook", err)
	}
	idx, err := f.GetSheetIndex(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lookup gradebook sheet: %w", err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheetName); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create gradebook sheet: %w", err)
		}
		if err := writeHeader(f); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func newWorkbook() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("name gradebook sheet: %w", err)
	}
	if err := writeHeader(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeHeader(f *excelize.File) error {
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write gradebook header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("gradebook header style: %w", err)
	}
	if err := f.SetRowStyle(sheetName, 1, 1, style); err != nil {
		return fmt.Errorf("apply gradebook header style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", "C", 28); err != nil {
		return fmt.Errorf("gradebook column width: %w", err)
	}
	return nil
}

func completeLabel(complete bool) string {
	if complete {
		return "yes"
	}
	return "no"
}
