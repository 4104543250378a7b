package services

import (
	"bytes"
	"fmt"
	"time"

	"enrollment-crm/models"
	"enrollment-crm/utils"

	"github.com/jung-kurt/gofpdf"
)

// GenerateStatement renders a PDF with the lead's billing lines and the
// total still open.
func GenerateStatement(lead models.Lead, records []models.FinancialRecord, issued time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Extrato Financeiro - "+lead.Name), false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr("Extrato Financeiro"))
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, tr("Aluno: "+lead.Name))
	pdf.Ln(7)
	if lead.Email != "" {
		pdf.Cell(0, 7, tr("Email: "+lead.Email))
		pdf.Ln(7)
	}
	pdf.Cell(0, 7, tr("Emitido em: "+issued.Format("02/01/2006")))
	pdf.Ln(12)

	widths := []float64{70, 25, 30, 35, 25}
	headers := []string{"Descrição", "Parcela", "Vencimento", "Valor", "Status"}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	var open float64
	for _, rec := range records {
		cells := []string{
			rec.CourseName,
			rec.Installment,
			utils.BrazilianDate(rec.DueDate),
			utils.FormatBRL(rec.Amount),
			statusLabel(rec.Status),
		}
		for i, c := range cells {
			align := "L"
			if i > 0 {
				align = "C"
			}
			pdf.CellFormat(widths[i], 7, tr(c), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
		if rec.Status != models.RecordPaid {
			open += rec.Amount
		}
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, tr("Total em aberto: "+utils.FormatBRL(utils.RoundCents(open))))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("error generating statement PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func statusLabel(s models.RecordStatus) string {
	switch s {
	case models.RecordPaid:
		return "Pago"
	case models.RecordOverdue:
		return "Atrasado"
	default:
		return "Pendente"
	}
}
