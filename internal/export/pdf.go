package export

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// Report is a printable table with a header block.
type Report struct {
	Title       string
	GeneratedAt time.Time
	Rows        []Row
}

var columnWidths = []float64{60, 35, 30, 30, 30, 25}

// WritePDF renders r as an A4 landscape document: title, generation time and
// record count, then the table. The header row repeats on every page.
func WritePDF(w io.Writer, r Report) error {
	if len(r.Rows) == 0 {
		return ErrNoData
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(r.Title, true)
	pdf.SetCreator("campus-access", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(41, 128, 185)
		pdf.SetTextColor(255, 255, 255)
		for i, h := range Header {
			pdf.CellFormat(columnWidths[i], 8, h, "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetHeaderFuncMode(func() {
		if pdf.PageNo() > 1 {
			header()
		}
	}, true)

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(r.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Generated: "+r.GeneratedAt.Format("2006-01-02 15:04:05 MST"), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Records: %d", len(r.Rows)), "", 1, "L", false, 0, "")
	pdf.Ln(4)
	header()

	for i, row := range r.Rows {
		fill := i%2 == 1
		pdf.SetFillColor(240, 240, 240)
		for j, v := range row.fields() {
			pdf.CellFormat(columnWidths[j], 7, tr(v), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}
