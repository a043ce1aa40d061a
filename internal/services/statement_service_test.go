package services

import (
	"bytes"
	"context"
	"testing"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
)

func TestGenerateStatement(t *testing.T) {
	store := newMemStore()
	store.fund(4, 1500)
	_, _ = LedgerService{Store: store, Now: fixedNow}.Credit(context.Background(), store, LedgerEntry{
		UserID:      4,
		Amount:      10,
		Type:        models.TxRefund,
		Description: "Refund for trip #2 → Ñuñoa",
	})
	svc := StatementService{Store: store, Now: fixedNow}

	if _, _, err := svc.GenerateStatement(context.Background(), rider(5), 4); !domain.IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	pdf, filename, err := svc.GenerateStatement(context.Background(), rider(4), 4)
	if err != nil {
		t.Fatalf("GenerateStatement returned error: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("output is not a PDF")
	}
	if filename != "STATEMENT_4_20260110.pdf" {
		t.Fatalf("filename = %q", filename)
	}
}

func TestBuildStatementPDFWithoutTransactions(t *testing.T) {
	pdf, _, err := buildStatementPDF(statementData{UserID: 9, GeneratedAt: testNow})
	if err != nil || len(pdf) == 0 {
		t.Fatalf("empty statement failed: len=%d err=%v", len(pdf), err)
	}
}
