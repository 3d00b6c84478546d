// Package export writes extracted records to a spreadsheet.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/cv-intake/internal/extract"
)

// SheetName is the worksheet the records are written to
const SheetName = "Candidates"

var headers = []string{"First Name", "Surname", "Phone Number", "File Name", "Share Link"}

// RecordsXLSX returns an XLSX workbook with one row per record, in order.
// Phone numbers are written as text so the leading zero survives.
func RecordsXLSX(records []extract.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, r := range records {
		row := i + 2
		for col, value := range []string{r.GivenName, r.FamilyName, r.PhoneNumber, r.SourceFileName, r.ShareLink} {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellStr(SheetName, cell, value); err != nil {
				return nil, fmt.Errorf("writing %s: %w", cell, err)
			}
		}
	}

	_ = f.SetColWidth(SheetName, "A", "B", 18) // names
	_ = f.SetColWidth(SheetName, "C", "C", 16) // phone
	_ = f.SetColWidth(SheetName, "D", "D", 36) // file
	_ = f.SetColWidth(SheetName, "E", "E", 60) // link

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
