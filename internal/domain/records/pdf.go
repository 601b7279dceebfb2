package records

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

const pdfDateLayout = "02 Jan 2006 15:04"

// historyDocument lays out one section per record under a patient heading.
// Pages break automatically.
func historyDocument(patientName string, recs []*Record, now time.Time) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Health records: "+patientName, true)
	pdf.SetCreationDate(now)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "BU", 18)
	pdf.CellFormat(0, 10, tr("Patient: "+patientName), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 12)
	if len(recs) == 0 {
		pdf.MultiCell(0, 6, "No health records on file.", "", "L", false)
	}
	for _, r := range recs {
		prescription := r.Prescription
		if prescription == "" {
			prescription = "-"
		}
		pdf.MultiCell(0, 6, tr("Date: "+r.CreatedAt.Format(pdfDateLayout)), "", "L", false)
		pdf.MultiCell(0, 6, tr("Diagnosis: "+r.Diagnosis), "", "L", false)
		pdf.MultiCell(0, 6, tr("Prescription: "+prescription), "", "L", false)
		pdf.Ln(5)
	}
	return pdf
}

func renderHistory(patientName string, recs []*Record, now time.Time) ([]byte, error) {
	pdf := historyDocument(patientName, recs, now)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
