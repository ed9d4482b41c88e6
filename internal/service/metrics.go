package service

import (
	"context"
	"fmt"
	"time"

	"oilmill/backend/internal/cache"
	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
)

// lowStockThreshold flags batches nearly sold out on the dashboard.
const lowStockThreshold = 20

// FinancialMetrics folds profit and depositable-charge accumulators over all
// non-cancelled invoices in [from, to). Zero bounds mean all time.
//
// Profit is attributed per line item from the owning product's price spread
// scaled by the variant's raw-material draw, plus the variant's others2
// addend. The line's quantity scales only the deposit accumulators, not
// profit; that asymmetry is long-standing billing behavior the dashboard and
// the books are reconciled against, so it is kept as is.
func (s *Service) FinancialMetrics(ctx context.Context, from time.Time, to time.Time) (domain.FinancialMetrics, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return domain.FinancialMetrics{}, store.ErrInvalidInput
	}

	key := metricsCacheKey(from, to)
	if cached, ok, err := s.metricsCache.Get(ctx, key); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("metrics cache read failed")
	}

	invoices, err := s.repo.ListInvoices(ctx, store.InvoiceFilter{
		From:   from,
		To:     to,
		Status: domain.InvoiceStatusActive,
		Limit:  store.ListNoLimit,
	})
	if err != nil {
		return domain.FinancialMetrics{}, err
	}

	variantIDs := distinctVariantIDs(invoices)
	costings, err := s.repo.GetVariantCostings(ctx, variantIDs)
	if err != nil {
		return domain.FinancialMetrics{}, err
	}

	var metrics domain.FinancialMetrics
	for _, invoice := range invoices {
		for _, item := range invoice.Items {
			if item.VariantID == "" {
				continue
			}
			costing, ok := costings[item.VariantID]
			if !ok {
				// Variant or product deleted since the sale; the line no
				// longer attributes to profit or deposits.
				continue
			}

			priceDifference := costing.SellingPrice - costing.PurchasePrice
			quantityCalc := priceDifference * costing.UnitConsumed
			itemProfit := quantityCalc + costing.Others2
			metrics.TotalProfit += itemProfit

			qty := float64(item.Quantity)
			metrics.DepositableCharges.PackingCharges += costing.PackingCharge * qty
			metrics.DepositableCharges.LaborCharges += costing.LaborCharge * qty
			metrics.DepositableCharges.ElectricityCharges += costing.ElectricityCharge * qty
			metrics.DepositableCharges.OECCharges += costing.Others1 * qty
		}
	}
	metrics.TotalDeposits = metrics.DepositableCharges.PackingCharges +
		metrics.DepositableCharges.LaborCharges +
		metrics.DepositableCharges.ElectricityCharges +
		metrics.DepositableCharges.OECCharges

	if err := s.metricsCache.Set(ctx, key, &metrics, s.metricsCacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("metrics cache write failed")
	}
	return metrics, nil
}

func metricsCacheKey(from time.Time, to time.Time) string {
	return fmt.Sprintf("%s%d:%d", cache.KeyPrefix, from.Unix(), to.Unix())
}

func distinctVariantIDs(invoices []domain.Invoice) []string {
	set := make(map[string]struct{}, 32)
	ids := make([]string, 0, 32)
	for _, invoice := range invoices {
		for _, item := range invoice.Items {
			if item.VariantID == "" {
				continue
			}
			if _, seen := set[item.VariantID]; seen {
				continue
			}
			set[item.VariantID] = struct{}{}
			ids = append(ids, item.VariantID)
		}
	}
	return ids
}

func (s *Service) Dashboard(ctx context.Context, from time.Time, to time.Time) (domain.DashboardResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DashboardResponse{}, err
	}

	invoices, err := s.repo.ListInvoices(ctx, store.InvoiceFilter{From: from, To: to, Limit: store.ListNoLimit})
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	sales := domain.SalesSummary{ByPayment: make(map[string]float64, 3)}
	for _, invoice := range invoices {
		if invoice.Status == domain.InvoiceStatusCancelled {
			sales.CancelledCount++
			continue
		}
		sales.InvoiceCount++
		sales.GrossSales += invoice.Total
		sales.GSTCollected += invoice.GSTAmount
		sales.ByPayment[invoice.PaymentMethod] += invoice.Total
	}

	financial, err := s.FinancialMetrics(ctx, from, to)
	if err != nil {
		return domain.DashboardResponse{}, err
	}

	batches, err := s.repo.ListBatches(ctx, "", 500)
	if err != nil {
		return domain.DashboardResponse{}, err
	}
	lowStock := make([]domain.LowStockBatch, 0, 8)
	for _, b := range batches {
		if b.QtyRemaining > lowStockThreshold {
			continue
		}
		lowStock = append(lowStock, domain.LowStockBatch{
			BatchID:      b.ID,
			BatchNo:      b.BatchNo,
			VariantID:    b.VariantID,
			QtyRemaining: b.QtyRemaining,
		})
	}

	return domain.DashboardResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Sales:       sales,
		Financial:   financial,
		LowStock:    lowStock,
	}, nil
}
