package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
	"oilmill/backend/internal/xid"
)

// invoiceNoAttempts bounds the retry loop when two checkouts race on the same
// sequence number. The store's unique index on invoice_no is the arbiter.
const invoiceNoAttempts = 3

// totalTolerance absorbs client-side float formatting; anything beyond one
// paisa of drift between the submitted and recomputed totals is rejected.
var totalTolerance = decimal.NewFromFloat(0.01)

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (domain.Invoice, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Invoice{}, fmt.Errorf("authentication required")
	}

	if len(req.Items) == 0 {
		return domain.Invoice{}, store.ErrInvalidInput
	}
	switch req.PaymentMethod {
	case domain.PaymentCash, domain.PaymentUPI, domain.PaymentCard:
	default:
		return domain.Invoice{}, store.ErrInvalidInput
	}
	if req.Discount < 0 || req.PackingDiscount < 0 || req.GSTAmount < 0 || req.Total < 0 {
		return domain.Invoice{}, store.ErrInvalidInput
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" || item.Quantity < 1 || item.Price < 0 {
			return domain.Invoice{}, store.ErrInvalidInput
		}
	}
	if err := verifyInvoiceTotals(req); err != nil {
		return domain.Invoice{}, err
	}

	now := time.Now().UTC()
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)

	var created *domain.Invoice
	for attempt := 0; attempt < invoiceNoAttempts; attempt++ {
		previousNo := ""
		latest, err := s.repo.GetLatestInvoiceInRange(ctx, yearStart, yearEnd)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return domain.Invoice{}, err
		}
		if latest != nil {
			previousNo = latest.InvoiceNo
		}

		invoice := domain.Invoice{
			ID:              xid.New("inv"),
			InvoiceNo:       nextInvoiceNumber(previousNo, now),
			CustomerID:      req.CustomerID,
			BillerUsername:  actor.Username,
			Items:           req.Items,
			Subtotal:        req.Subtotal,
			Discount:        req.Discount,
			PackingDiscount: req.PackingDiscount,
			GSTAmount:       req.GSTAmount,
			Total:           req.Total,
			PaymentMethod:   req.PaymentMethod,
			Status:          domain.InvoiceStatusActive,
			CreatedAt:       now,
		}

		created, err = s.repo.CreateInvoice(ctx, invoice)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicate) {
			s.logger.Warn().Str("invoice_no", invoice.InvoiceNo).Int("attempt", attempt+1).
				Msg("invoice number collision, retrying")
			continue
		}
		return domain.Invoice{}, err
	}
	if created == nil {
		return domain.Invoice{}, fmt.Errorf("could not allocate invoice number after %d attempts", invoiceNoAttempts)
	}

	for _, item := range created.Items {
		if item.VariantID == "" {
			continue
		}
		if err := s.repo.ConsumeBatchStock(ctx, item.VariantID, item.Quantity); err != nil {
			s.logger.Warn().Err(err).Str("variant_id", item.VariantID).
				Str("invoice_no", created.InvoiceNo).Msg("failed to draw down batch stock")
		}
	}

	s.invalidateMetrics(ctx)
	s.logAudit(ctx, "invoice_create", "invoice", created.InvoiceNo,
		fmt.Sprintf("total=%.2f,payment=%s,items=%d", created.Total, created.PaymentMethod, len(created.Items)))
	return *created, nil
}

// invalidateMetrics drops cached financial snapshots after any write that
// changes what they summarize. Cache failures are logged, not surfaced; the
// TTL still bounds the staleness window.
func (s *Service) invalidateMetrics(ctx context.Context) {
	if err := s.metricsCache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("metrics cache invalidation failed")
	}
}

// verifyInvoiceTotals recomputes the bill from its line items with exact
// decimal arithmetic and rejects submitted figures that drift from it.
func verifyInvoiceTotals(req domain.InvoiceCreateRequest) error {
	subtotal := decimal.Zero
	for _, item := range req.Items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(line)
	}

	if subtotal.Sub(decimal.NewFromFloat(req.Subtotal)).Abs().GreaterThan(totalTolerance) {
		return fmt.Errorf("%w: subtotal does not match line items", store.ErrInvalidInput)
	}

	expectedTotal := subtotal.
		Sub(decimal.NewFromFloat(req.Discount)).
		Sub(decimal.NewFromFloat(req.PackingDiscount)).
		Add(decimal.NewFromFloat(req.GSTAmount))
	if expectedTotal.IsNegative() {
		return fmt.Errorf("%w: discounts exceed subtotal", store.ErrInvalidInput)
	}
	if expectedTotal.Sub(decimal.NewFromFloat(req.Total)).Abs().GreaterThan(totalTolerance) {
		return fmt.Errorf("%w: total does not match subtotal, discounts and GST", store.ErrInvalidInput)
	}
	return nil
}

// nextInvoiceNumber derives the next number in the INV-RS-######-MM-YYYY
// series from the latest number issued this calendar year. A previous number
// that does not parse restarts the sequence at 1; malformed legacy data must
// not block checkout.
func nextInvoiceNumber(previous string, at time.Time) string {
	sequence := 1
	if previous != "" {
		parts := strings.Split(previous, "-")
		if len(parts) == 5 && parts[0] == "INV" && parts[1] == "RS" {
			if n, err := strconv.Atoi(parts[2]); err == nil {
				sequence = n + 1
			}
		}
	}
	return fmt.Sprintf("INV-RS-%06d-%02d-%d", sequence, int(at.Month()), at.Year())
}

func (s *Service) GetInvoice(ctx context.Context, invoiceNo string) (domain.Invoice, error) {
	if invoiceNo == "" {
		return domain.Invoice{}, store.ErrInvalidInput
	}
	invoice, err := s.repo.GetInvoiceByNo(ctx, invoiceNo)
	if err != nil {
		return domain.Invoice{}, err
	}
	return *invoice, nil
}

func (s *Service) ListInvoices(ctx context.Context, from time.Time, to time.Time, status string, limit int) ([]domain.Invoice, error) {
	if status != "" && status != domain.InvoiceStatusActive && status != domain.InvoiceStatusCancelled {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListInvoices(ctx, store.InvoiceFilter{
		From:   from,
		To:     to,
		Status: status,
		Limit:  limit,
	})
}

func (s *Service) CancelInvoice(ctx context.Context, invoiceNo string) (domain.Invoice, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Invoice{}, err
	}
	if invoiceNo == "" {
		return domain.Invoice{}, store.ErrInvalidInput
	}

	cancelled, err := s.repo.CancelInvoice(ctx, invoiceNo)
	if err != nil {
		return domain.Invoice{}, err
	}

	s.invalidateMetrics(ctx)
	s.logAudit(ctx, "invoice_cancel", "invoice", cancelled.InvoiceNo, fmt.Sprintf("total=%.2f", cancelled.Total))
	return *cancelled, nil
}
