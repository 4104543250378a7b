package services

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/utils"

	"github.com/xuri/excelize/v2"
)

// FinanceSheet is the sheet name of finance exports.
const FinanceSheet = "Financeiro"

// ImportRow is one parsed spreadsheet line.
type ImportRow struct {
	Line    int
	Lead    models.Lead
	Courses []string
}

// ParseLeadWorkbook reads the first sheet of an .xlsx workbook. Columns are
// located by header name so their order does not matter; rows without a
// name, email or phone are skipped.
func ParseLeadWorkbook(r io.Reader) ([]ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data in sheet")
	}

	cols := detectColumns(rows[0])
	if cols["name"] < 0 && cols["email"] < 0 && cols["phone"] < 0 {
		return nil, fmt.Errorf("header row has no Nome, Email or Telefone column")
	}
	logger.Debug("Lead import from sheet %s, columns %v", sheets[0], cols)

	var out []ImportRow
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		name := extractField(row, cols["name"])
		email := extractField(row, cols["email"])
		phone := extractField(row, cols["phone"])
		if name == "" && email == "" && phone == "" {
			continue
		}

		lead := models.Lead{
			Name:       name,
			Email:      email,
			Phone:      phone,
			City:       extractField(row, cols["city"]),
			Source:     extractField(row, cols["source"]),
			Modality:   models.CourseModality(extractField(row, cols["modality"])),
			Status:     models.LeadStatus(extractField(row, cols["status"])),
			AssignedTo: extractField(row, cols["assigned"]),
			Notes:      splitNotes(extractField(row, cols["notes"])),
		}
		if v := extractField(row, cols["total"]); v != "" {
			total, err := parseDecimal(v)
			if err != nil {
				logger.Warn("Row %d: ignoring unreadable total %q", i+1, v)
			} else {
				lead.TotalValue = total
			}
		}

		out = append(out, ImportRow{
			Line:    i + 1,
			Lead:    lead,
			Courses: utils.SplitCourseIDs(extractField(row, cols["courses"])),
		})
	}
	return out, nil
}

// detectColumns finds column indices by matching header names.
func detectColumns(headers []string) map[string]int {
	indices := map[string]int{
		"name": -1, "email": -1, "phone": -1, "city": -1, "source": -1, "courses": -1,
		"modality": -1, "status": -1, "assigned": -1, "total": -1, "notes": -1,
	}

	for i, header := range headers {
		switch strings.ToLower(strings.TrimSpace(header)) {
		case "nome", "name", "nome completo":
			indices["name"] = i
		case "email", "e-mail":
			indices["email"] = i
		case "telefone", "phone", "celular", "whatsapp":
			indices["phone"] = i
		case "cidade", "city":
			indices["city"] = i
		case "origem", "source", "fonte":
			indices["source"] = i
		case "cursos", "curso", "courses":
			indices["courses"] = i
		case "modalidade", "modality":
			indices["modality"] = i
		case "status", "etapa":
			indices["status"] = i
		case "responsável", "responsavel", "consultor":
			indices["assigned"] = i
		case "valor total", "valor", "total":
			indices["total"] = i
		case "observações", "observacoes", "notas", "notes":
			indices["notes"] = i
		}
	}
	return indices
}

// extractField safely extracts a field from a row.
func extractField(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

func splitNotes(s string) []string {
	notes := []string{}
	for _, line := range strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == ';' }) {
		if line = strings.TrimSpace(line); line != "" {
			notes = append(notes, line)
		}
	}
	return notes
}

// parseDecimal accepts "1234.56", "1.234,56" and "R$ 1.234,56".
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "R$"))
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

var financeHeaders = []string{"Aluno", "Curso", "Parcela", "Vencimento", "Valor", "Status", "Pago em"}

// BuildFinanceWorkbook writes records to an .xlsx document.
func BuildFinanceWorkbook(records []models.FinancialRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), FinanceSheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(FinanceSheet, "A1", &financeHeaders); err != nil {
		return nil, err
	}

	for i, rec := range records {
		paid := ""
		if rec.PaidAt != nil {
			paid = utils.BrazilianDate(utils.FormatDate(*rec.PaidAt))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{
			rec.StudentName,
			rec.CourseName,
			rec.Installment,
			utils.BrazilianDate(rec.DueDate),
			rec.Amount,
			string(rec.Status),
			paid,
		}
		if err := f.SetSheetRow(FinanceSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(FinanceSheet, "A", "B", 32); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
