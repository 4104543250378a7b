package services

import (
	"fmt"
	"html"
	"strings"

	"enrollment-crm/models"
	"enrollment-crm/utils"
)

// enrollmentEmail builds the confirmation sent to a lead after enrollment.
func enrollmentEmail(lead models.Lead, records []models.FinancialRecord, statement []byte) Email {
	var rows strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&rows, `<tr><td>%s</td><td>%s</td><td>%s</td><td style="text-align:right">%s</td></tr>`,
			html.EscapeString(rec.CourseName),
			html.EscapeString(rec.Installment),
			utils.BrazilianDate(rec.DueDate),
			utils.FormatBRL(rec.Amount))
	}

	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #4f46e5; color: white; padding: 20px; text-align: center; border-radius: 5px; }
        .content { background-color: #f9f9f9; padding: 20px; margin-top: 20px; border-radius: 5px; }
        table { width: 100%%; border-collapse: collapse; }
        td { padding: 6px; border-bottom: 1px solid #ddd; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h2>Matrícula Confirmada!</h2></div>
        <div class="content">
            <p>Olá <strong>%s</strong>,</p>
            <p>Sua matrícula foi confirmada. Seguem os primeiros lançamentos:</p>
            <table>%s</table>
            <p>O extrato completo segue em anexo.</p>
            <p>Atenciosamente,<br/>Equipe de Matrículas</p>
        </div>
    </div>
</body>
</html>
	`, html.EscapeString(lead.Name), rows.String())

	e := Email{
		To:      lead.Email,
		Subject: fmt.Sprintf("Matrícula confirmada - %s", lead.Name),
		HTML:    body,
	}
	if len(statement) > 0 {
		e.Attachments = []Attachment{{Name: "extrato.pdf", Data: statement}}
	}
	return e
}

// leadAssignedEmail notifies a consultant about a lead handed to them.
func leadAssignedEmail(user models.User, lead models.Lead) Email {
	body := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <p>Olá <strong>%s</strong>,</p>
    <p>Um novo lead foi atribuído a você:</p>
    <ul>
        <li><strong>Nome:</strong> %s</li>
        <li><strong>Email:</strong> %s</li>
        <li><strong>Telefone:</strong> %s</li>
        <li><strong>Origem:</strong> %s</li>
    </ul>
</body>
</html>
	`, html.EscapeString(user.Name), html.EscapeString(lead.Name), html.EscapeString(lead.Email),
		html.EscapeString(lead.Phone), html.EscapeString(lead.Source))

	return Email{
		To:      user.Email,
		Subject: fmt.Sprintf("Novo lead atribuído: %s", lead.Name),
		HTML:    body,
	}
}
