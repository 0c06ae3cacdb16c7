package report

import (
	"fmt"
	"path/filepath"
	"time"

	"acuvalidator/internal/recon"

	"github.com/xuri/excelize/v2"
)

const (
	missingSheet = "Missing Fields"
	summarySheet = "Summary"
)

// WriteXLSX saves the missing fields of res and the run counters as a workbook.
func WriteXLSX(filename, archive string, res *recon.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", missingSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}

	headings := []string{"Owner", "Extension", "Field"}
	for i, h := range headings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(missingSheet, cell, h)
	}
	for i, m := range res.Report.Missing {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(missingSheet, "A"+row, m.OwnerClass)
		f.SetCellValue(missingSheet, "B"+row, m.ExtensionClass)
		f.SetCellValue(missingSheet, "C"+row, m.Name)
	}

	summary := [][2]interface{}{
		{"Package", filepath.Base(archive)},
		{"Generated", time.Now().Format(time.RFC3339)},
		{"Graphs", res.Graphs},
		{"Tables", res.Tables},
		{"Modules", res.Modules},
		{"Candidates", res.Candidates},
		{"Declared columns", res.Declared},
		{"Ignored names", res.Ignored},
		{"Missing fields", len(res.Report.Missing)},
	}
	for i, kv := range summary {
		row := fmt.Sprint(i + 1)
		f.SetCellValue(summarySheet, "A"+row, kv[0])
		f.SetCellValue(summarySheet, "B"+row, kv[1])
	}

	if err := f.SaveAs(filename); err != nil {
		return fmt.Errorf("failed to save %s: %w", filename, err)
	}
	return nil
}
