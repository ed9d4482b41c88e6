package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oilmill/backend/internal/cache"
	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
	"oilmill/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	return New(repo, cache.NoopMetricsCache{}, 5*time.Second, zerolog.Nop()), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func simpleInvoiceRequest() domain.InvoiceCreateRequest {
	return domain.InvoiceCreateRequest{
		Items: []domain.InvoiceItem{
			{Name: "Groundnut Oil 1L", VariantID: "var-gn-1l", Price: 195, Quantity: 2, MRP: 210, GSTRate: 5},
		},
		Subtotal:      390,
		GSTAmount:     19.5,
		Total:         409.5,
		PaymentMethod: domain.PaymentCash,
	}
}

func TestNextInvoiceNumberFormat(t *testing.T) {
	at := time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)
	got := nextInvoiceNumber("INV-RS-000006-03-2024", at)
	if got != "INV-RS-000007-03-2024" {
		t.Fatalf("expected INV-RS-000007-03-2024, got %s", got)
	}
}

func TestNextInvoiceNumberStartsAtOne(t *testing.T) {
	at := time.Date(2024, time.January, 2, 9, 0, 0, 0, time.UTC)
	got := nextInvoiceNumber("", at)
	if got != "INV-RS-000001-01-2024" {
		t.Fatalf("expected INV-RS-000001-01-2024, got %s", got)
	}
}

func TestNextInvoiceNumberMalformedFallsBackToOne(t *testing.T) {
	at := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	for _, previous := range []string{
		"NOT-A-VALID-FORMAT",
		"INV-RS-abcdef-06-2024",
		"INV-XX-000010-06-2024",
		"INV-RS-000010-06",
		"garbage",
	} {
		got := nextInvoiceNumber(previous, at)
		if got != "INV-RS-000001-06-2024" {
			t.Fatalf("previous %q: expected sequence reset to 1, got %s", previous, got)
		}
	}
}

func TestCreateInvoiceSequenceIsMonotonic(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	for i := 1; i <= 5; i++ {
		invoice, err := svc.CreateInvoice(ctx, simpleInvoiceRequest())
		if err != nil {
			t.Fatalf("create invoice %d: %v", i, err)
		}
		parts := strings.Split(invoice.InvoiceNo, "-")
		if len(parts) != 5 {
			t.Fatalf("invoice %d: unexpected number %s", i, invoice.InvoiceNo)
		}
		seq, err := strconv.Atoi(parts[2])
		if err != nil || seq != i {
			t.Fatalf("invoice %d: expected sequence %d, got %s", i, i, parts[2])
		}
		if invoice.Status != domain.InvoiceStatusActive {
			t.Fatalf("expected active status, got %s", invoice.Status)
		}
		if invoice.BillerUsername != "cashier" {
			t.Fatalf("expected biller cashier, got %s", invoice.BillerUsername)
		}
	}
}

func TestCreateInvoiceSequenceResetsAcrossYears(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	// An invoice from the previous year must not feed the current year's
	// sequence, no matter how high it got.
	lastYear := time.Now().UTC().AddDate(-1, 0, 0)
	_, err := repo.CreateInvoice(context.Background(), domain.Invoice{
		ID:             "inv-prev-year",
		InvoiceNo:      fmt.Sprintf("INV-RS-000042-%02d-%d", int(lastYear.Month()), lastYear.Year()),
		BillerUsername: "admin",
		Items:          []domain.InvoiceItem{{Name: "carryover", Price: 10, Quantity: 1}},
		Subtotal:       10,
		Total:          10,
		PaymentMethod:  domain.PaymentCash,
		Status:         domain.InvoiceStatusActive,
		CreatedAt:      lastYear,
	})
	if err != nil {
		t.Fatalf("seed previous-year invoice: %v", err)
	}

	invoice, err := svc.CreateInvoice(ctx, simpleInvoiceRequest())
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if !strings.HasPrefix(invoice.InvoiceNo, "INV-RS-000001-") {
		t.Fatalf("expected sequence 1 for new year, got %s", invoice.InvoiceNo)
	}
}

func TestCreateInvoiceNumberMatchesCreatedAt(t *testing.T) {
	svc, _ := newTestService()

	invoice, err := svc.CreateInvoice(cashierCtx(), simpleInvoiceRequest())
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	// The number's month and year must come from the same instant as the
	// stored timestamp, or a checkout straddling midnight on December 31st
	// files the invoice in the wrong year.
	parts := strings.Split(invoice.InvoiceNo, "-")
	if len(parts) != 5 {
		t.Fatalf("unexpected invoice number %s", invoice.InvoiceNo)
	}
	wantMonth := fmt.Sprintf("%02d", int(invoice.CreatedAt.Month()))
	wantYear := strconv.Itoa(invoice.CreatedAt.Year())
	if parts[3] != wantMonth || parts[4] != wantYear {
		t.Fatalf("invoice number %s disagrees with created_at %s", invoice.InvoiceNo, invoice.CreatedAt)
	}
}

func TestCreateInvoiceRecoversFromMalformedLatestNumber(t *testing.T) {
	svc, repo := newTestService()
	ctx := cashierCtx()

	_, err := repo.CreateInvoice(context.Background(), domain.Invoice{
		ID:             "inv-legacy",
		InvoiceNo:      "NOT-A-VALID-FORMAT",
		BillerUsername: "admin",
		Items:          []domain.InvoiceItem{{Name: "legacy", Price: 10, Quantity: 1}},
		Subtotal:       10,
		Total:          10,
		PaymentMethod:  domain.PaymentCash,
		Status:         domain.InvoiceStatusActive,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed legacy invoice: %v", err)
	}

	invoice, err := svc.CreateInvoice(ctx, simpleInvoiceRequest())
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if !strings.HasPrefix(invoice.InvoiceNo, "INV-RS-000001-") {
		t.Fatalf("expected sequence reset to 1 after malformed data, got %s", invoice.InvoiceNo)
	}
}

func TestCreateInvoiceRejectsBadPaymentMethod(t *testing.T) {
	svc, _ := newTestService()

	req := simpleInvoiceRequest()
	req.PaymentMethod = "cheque"
	if _, err := svc.CreateInvoice(cashierCtx(), req); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad payment method, got %v", err)
	}
}

func TestCreateInvoiceRejectsTotalDrift(t *testing.T) {
	svc, _ := newTestService()

	req := simpleInvoiceRequest()
	req.Total = 999
	if _, err := svc.CreateInvoice(cashierCtx(), req); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for drifted total, got %v", err)
	}

	req = simpleInvoiceRequest()
	req.Subtotal = 400
	if _, err := svc.CreateInvoice(cashierCtx(), req); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for drifted subtotal, got %v", err)
	}
}

func TestCreateInvoiceRequiresActor(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.CreateInvoice(context.Background(), simpleInvoiceRequest()); err == nil {
		t.Fatalf("expected anonymous invoice creation to fail")
	}
}

func TestCreateInvoiceDrawsDownBatchStock(t *testing.T) {
	svc, _ := newTestService()
	ctx := cashierCtx()

	before, err := svc.ListBatches(ctx, "var-gn-1l", 10)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	totalBefore := 0
	for _, b := range before {
		totalBefore += b.QtyRemaining
	}

	if _, err := svc.CreateInvoice(ctx, simpleInvoiceRequest()); err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	after, err := svc.ListBatches(ctx, "var-gn-1l", 10)
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	totalAfter := 0
	for _, b := range after {
		totalAfter += b.QtyRemaining
	}
	if totalAfter != totalBefore-2 {
		t.Fatalf("expected stock to drop by 2, before=%d after=%d", totalBefore, totalAfter)
	}
}

func TestCancelInvoiceRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	invoice, err := svc.CreateInvoice(cashierCtx(), simpleInvoiceRequest())
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}

	if _, err := svc.CancelInvoice(cashierCtx(), invoice.InvoiceNo); err == nil {
		t.Fatalf("expected cashier cancellation to be rejected")
	}

	cancelled, err := svc.CancelInvoice(adminCtx(), invoice.InvoiceNo)
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if cancelled.Status != domain.InvoiceStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	if _, err := svc.CancelInvoice(adminCtx(), invoice.InvoiceNo); !errors.Is(err, store.ErrInvoiceCancelled) {
		t.Fatalf("expected ErrInvoiceCancelled on second cancel, got %v", err)
	}
}

func TestListInvoicesFiltersByStatus(t *testing.T) {
	svc, _ := newTestService()

	first, err := svc.CreateInvoice(cashierCtx(), simpleInvoiceRequest())
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := svc.CreateInvoice(cashierCtx(), simpleInvoiceRequest()); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := svc.CancelInvoice(adminCtx(), first.InvoiceNo); err != nil {
		t.Fatalf("cancel invoice: %v", err)
	}

	active, err := svc.ListInvoices(cashierCtx(), time.Time{}, time.Time{}, domain.InvoiceStatusActive, 0)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active invoice, got %d", len(active))
	}

	if _, err := svc.ListInvoices(cashierCtx(), time.Time{}, time.Time{}, "bogus", 0); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bogus status, got %v", err)
	}
}
