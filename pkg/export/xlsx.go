// Package export renders the document list as an XLSX workbook.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/feichai0017/pdf-processor/pkg/converters"
)

const (
	SheetName   = "Documents"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var headers = []string{
	"Document ID",
	"Title",
	"Status",
	"Upload Date",
	"File Size",
	"Page Count",
	"Task ID",
	"Task Status",
	"Error",
}

// DocumentsXLSX returns a workbook with one row per document.
func DocumentsXLSX(docs []converters.SummaryView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// rename the default sheet rather than adding a second one
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("xlsx sheet: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, fmt.Errorf("xlsx header: %w", err)
		}
	}

	for i, d := range docs {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		write(1, d.DocumentID)
		write(2, d.Title)
		write(3, d.ProcessingStatus)
		write(4, d.UploadDate.UTC().Format("2006-01-02 15:04:05"))
		write(5, d.FileSize)
		if d.PageCount != nil {
			write(6, *d.PageCount)
		}
		write(7, d.TaskID)
		write(8, d.TaskStatus)
		if d.ErrorMessage != nil {
			write(9, truncate(*d.ErrorMessage, 200))
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 38) // id
	_ = f.SetColWidth(SheetName, "B", "B", 32) // title
	_ = f.SetColWidth(SheetName, "C", "C", 12)
	_ = f.SetColWidth(SheetName, "D", "D", 20)
	_ = f.SetColWidth(SheetName, "E", "F", 12)
	_ = f.SetColWidth(SheetName, "G", "G", 38)
	_ = f.SetColWidth(SheetName, "H", "H", 12)
	_ = f.SetColWidth(SheetName, "I", "I", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
