package render

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/bryanwahyu/compliance-pulse/internal/domain/scans"
)

// maxOutput caps captured output printed per result.
const maxOutput = 300

// PDF renders an A4 report with fpdf's core fonts.
type PDF struct{}

func (PDF) Format() string      { return "pdf" }
func (PDF) ContentType() string { return "application/pdf" }

func (PDF) Render(doc scans.ReportDocument) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Compliance report "+doc.Report.Hostname, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(fmt.Sprintf("%s: %.2f%%", doc.Report.Hostname, doc.Report.Score)), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(0, 5, tr(fmt.Sprintf("Benchmark %s, status %s, severity %s.",
		doc.Report.BenchmarkID, doc.Report.Status, doc.Report.Severity)), "", "L", false)
	pdf.MultiCell(0, 5, tr(doc.Report.Summary), "", "L", false)
	pdf.Ln(3)

	section := func(title string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
	}

	if doc.Scan != nil && doc.Scan.AISummary.Advice != "" {
		section("Advice")
		pdf.MultiCell(0, 5, tr(doc.Scan.AISummary.Advice), "", "L", false)
		pdf.Ln(2)
	}

	section("Remediations")
	for _, r := range doc.Report.Remediations {
		pdf.MultiCell(0, 5, tr("- "+r), "", "L", false)
	}
	pdf.Ln(2)

	section("Results")
	for _, r := range doc.Results {
		if r.Passed {
			pdf.SetTextColor(30, 125, 50)
		} else {
			pdf.SetTextColor(179, 38, 30)
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("[%s] %s %s (%s)", strings.ToUpper(r.StatusLabel()), r.RuleID, r.RuleTitle, r.Severity)), "", "L", false)
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Courier", "", 8)
		out := strings.TrimSpace(r.Stdout + "\n" + r.Stderr)
		if len(out) > maxOutput {
			out = out[:maxOutput] + "..."
		}
		if out != "" {
			pdf.MultiCell(0, 4, tr(out), "", "L", false)
		}
		pdf.Ln(1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
