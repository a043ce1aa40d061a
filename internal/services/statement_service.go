package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/repositories"
	"shuttle/internal/utils"
)

// statementRows caps how many transactions one statement lists.
const statementRows = 200

// StatementService renders a user's credit history as a PDF.
type StatementService struct {
	Store     repositories.CreditStore
	RequestID string
	Now       func() time.Time
}

type statementData struct {
	UserID       int64
	Balance      int64
	Transactions []models.CreditTransaction
	Total        int
	GeneratedAt  time.Time
}

func (s StatementService) GenerateStatement(ctx context.Context, actor domain.RequestContext, userID int64) ([]byte, string, error) {
	if !actor.CanActFor(userID) {
		return nil, "", domain.ForbiddenError{}
	}
	bal, err := s.Store.GetBalance(ctx, userID)
	if err != nil {
		return nil, "", domain.InternalError{Err: err}
	}
	txs, total, err := s.Store.ListTransactions(ctx, userID, domain.Pagination{Page: 1, PageSize: statementRows})
	if err != nil {
		return nil, "", domain.InternalError{Err: err}
	}
	utils.LogEvent(s.RequestID, "statement", "generate", fmt.Sprintf("user_id=%d rows=%d", userID, len(txs)))
	return buildStatementPDF(statementData{
		UserID:       userID,
		Balance:      bal.Credits,
		Transactions: txs,
		Total:        total,
		GeneratedAt:  nowOr(s.Now),
	})
}

func buildStatementPDF(d statementData) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Credit Statement", false)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "CREDIT STATEMENT")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 7, fmt.Sprintf("User      : #%d", d.UserID))
	pdf.Ln(7)
	pdf.Cell(0, 7, "Generated : "+utils.FormatDateTime(d.GeneratedAt)+" UTC")
	pdf.Ln(7)
	pdf.Cell(0, 7, "Balance   : "+utils.FormatCredits(d.Balance))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "B", 10)
	widths := []float64{36, 34, 26, 26, 68}
	for i, h := range []string{"Date", "Type", "Amount", "Balance", "Description"} {
		pdf.CellFormat(widths[i], 7, h, "B", 0, "L", false, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 9)
	if len(d.Transactions) == 0 {
		pdf.Cell(0, 6, "No transactions yet.")
		pdf.Ln(6)
	}
	for _, t := range d.Transactions {
		amount := utils.FormatCredits(t.Amount)
		if t.Amount > 0 {
			amount = "+" + amount
		}
		cells := []string{
			utils.FormatDateTime(t.CreatedAt),
			string(t.Type),
			amount,
			utils.FormatCredits(t.BalanceAfter),
			utils.Truncate(pdfText(t.Description), 48),
		}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 6, c, "", 0, "L", false, 0, "")
		}
		pdf.Ln(6)
	}

	if d.Total > len(d.Transactions) {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 6, fmt.Sprintf("Showing the latest %d of %d transactions.", len(d.Transactions), d.Total), "", "", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("STATEMENT_%d_%s.pdf", d.UserID, d.GeneratedAt.UTC().Format("20060102"))
	return buf.Bytes(), filename, nil
}

// pdfText drops characters the core Helvetica font cannot draw.
func pdfText(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}, utils.NormalizeSpace(s))
}
