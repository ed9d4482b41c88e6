package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
)

func TestCancelInvoiceMarksStatusCancelled(t *testing.T) {
	databaseURL := os.Getenv("OILMILL_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set OILMILL_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	invoiceID := fmt.Sprintf("inv-cancel-it-%d", stamp)
	invoiceNo := fmt.Sprintf("INV-RS-%06d-01-2099", stamp%1000000)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, invoiceID)
	})

	created, err := s.CreateInvoice(ctx, domain.Invoice{
		ID:             invoiceID,
		InvoiceNo:      invoiceNo,
		BillerUsername: "admin",
		Items: []domain.InvoiceItem{
			{Name: "Groundnut Oil 1L", Price: 195, Quantity: 2, MRP: 210, GSTRate: 5},
		},
		Subtotal:      390,
		GSTAmount:     19.5,
		Total:         409.5,
		PaymentMethod: domain.PaymentCash,
		Status:        domain.InvoiceStatusActive,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if created.Status != domain.InvoiceStatusActive {
		t.Fatalf("expected active status, got %s", created.Status)
	}

	cancelled, err := s.CancelInvoice(ctx, invoiceNo)
	if err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}
	if cancelled.Status != domain.InvoiceStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}
	if len(cancelled.Items) != 1 {
		t.Fatalf("expected 1 item on cancelled invoice, got %d", len(cancelled.Items))
	}

	if _, err := s.CancelInvoice(ctx, invoiceNo); !errors.Is(err, store.ErrInvoiceCancelled) {
		t.Fatalf("expected ErrInvoiceCancelled on second cancel, got %v", err)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `
		SELECT status
		FROM invoices
		WHERE id = $1
	`, invoiceID).Scan(&status); err != nil {
		t.Fatalf("query invoice status: %v", err)
	}
	if status != domain.InvoiceStatusCancelled {
		t.Fatalf("expected invoice status cancelled, got %s", status)
	}
}
