package receipt

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"cinepos/internal/model"

	"github.com/go-pdf/fpdf"
)

// Page geometry: 80mm thermal roll. Height is generous; thermal printers
// cut at the end of content.
const (
	pageWidth  = 80.0
	pageMargin = 4.0
	lineHeight = 3.6
	fontSize   = 8.0
)

// RenderBill renders the overall bill to PDF bytes for printBase64.
func RenderBill(info TheaterInfo, o model.NormalizedOrder, generatedAt time.Time) ([]byte, error) {
	return renderLines(info, BillLines(info, o, generatedAt))
}

// RenderCategoryTicket renders one kitchen ticket to PDF bytes.
func RenderCategoryTicket(info TheaterInfo, o model.NormalizedOrder, group CategoryGroup, generatedAt time.Time) ([]byte, error) {
	return renderLines(info, CategoryTicketLines(info, o, group, generatedAt))
}

func renderLines(info TheaterInfo, lines []string) ([]byte, error) {
	height := float64(len(lines))*lineHeight + 2*pageMargin + 14
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: pageWidth, Ht: height},
	})
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	contentW := pageWidth - 2*pageMargin

	// Optional logo, drawn to the left of the header block.
	if info.LogoPath != "" {
		if _, err := os.Stat(info.LogoPath); err == nil {
			pdf.ImageOptions(info.LogoPath, pageMargin, pageMargin, 12, 12, false,
				fpdf.ImageOptions{ReadDpi: true}, 0, "")
		}
	}

	// Bold monospace keeps the 32-column layout aligned on thermal paper.
	pdf.SetFont("Courier", "B", fontSize)
	for _, line := range lines {
		pdf.CellFormat(contentW, lineHeight, line, "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("receipt: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
