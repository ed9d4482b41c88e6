package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
)

func TestCreateBrandRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.CreateBrand(cashierCtx(), domain.NamedCreateRequest{Name: "Kalpavruksha"}); err == nil {
		t.Fatalf("expected cashier brand creation to be rejected")
	}

	brand, err := svc.CreateBrand(adminCtx(), domain.NamedCreateRequest{Name: "Kalpavruksha"})
	if err != nil {
		t.Fatalf("create brand: %v", err)
	}
	if brand.ID == "" {
		t.Fatalf("expected generated brand id")
	}
}

func TestCreateBrandRejectsDuplicateName(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.CreateBrand(adminCtx(), domain.NamedCreateRequest{Name: "mill house"}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected case-insensitive duplicate rejection, got %v", err)
	}
}

func TestCreateTaxValidatesRate(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.CreateTax(adminCtx(), domain.TaxCreateRequest{Name: "GST 12%", RatePercent: -1}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected negative rate rejection, got %v", err)
	}

	tax, err := svc.CreateTax(adminCtx(), domain.TaxCreateRequest{Name: "GST 12%", RatePercent: 12})
	if err != nil {
		t.Fatalf("create tax: %v", err)
	}
	if tax.RatePercent != 12 {
		t.Fatalf("expected rate 12, got %v", tax.RatePercent)
	}
}

func TestProductLifecycle(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	product, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:          "Castor Oil",
		BrandID:       "brand-house",
		CategoryID:    "cat-edible-oil",
		TaxID:         "tax-gst-5",
		PurchasePrice: 90,
		SellingPrice:  130,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	newPrice := 140.0
	updated, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{SellingPrice: &newPrice})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.SellingPrice != 140 {
		t.Fatalf("expected selling price 140, got %v", updated.SellingPrice)
	}
	if updated.PurchasePrice != 90 {
		t.Fatalf("untouched field changed: purchase price %v", updated.PurchasePrice)
	}

	if err := svc.DeleteProduct(ctx, product.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if _, err := svc.GetProduct(ctx, product.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestCreateVariantRequiresExistingProduct(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateVariant(adminCtx(), "prod-missing", domain.VariantCreateRequest{
		Volume: 1, UnitID: "unit-l", Price: 100, UnitConsumed: 1,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing product, got %v", err)
	}

	variant, err := svc.CreateVariant(adminCtx(), "prod-groundnut", domain.VariantCreateRequest{
		Volume:            5,
		UnitID:            "unit-l",
		Price:             950,
		MRP:               1000,
		UnitConsumed:      5,
		PackingCharge:     12,
		LaborCharge:       6,
		ElectricityCharge: 4,
	})
	if err != nil {
		t.Fatalf("create variant: %v", err)
	}
	if variant.ProductID != "prod-groundnut" {
		t.Fatalf("expected variant bound to product, got %s", variant.ProductID)
	}
}

func TestUpdateVariantRejectsNegativeCharges(t *testing.T) {
	svc, _ := newTestService()
	ctx := adminCtx()

	negative := -1.0
	for _, req := range []domain.VariantUpdateRequest{
		{PackingCharge: &negative},
		{LaborCharge: &negative},
		{ElectricityCharge: &negative},
	} {
		if _, err := svc.UpdateVariant(ctx, "var-gn-1l", req); !errors.Is(err, store.ErrInvalidInput) {
			t.Fatalf("expected negative charge to be rejected, got %v", err)
		}
	}

	zero := 0.0
	updated, err := svc.UpdateVariant(ctx, "var-gn-1l", domain.VariantUpdateRequest{PackingCharge: &zero})
	if err != nil {
		t.Fatalf("update variant: %v", err)
	}
	if updated.PackingCharge != 0 {
		t.Fatalf("expected packing charge 0, got %v", updated.PackingCharge)
	}
}

func TestCreateBatchParsesManufactureDate(t *testing.T) {
	svc, _ := newTestService()

	batch, err := svc.CreateBatch(adminCtx(), domain.BatchCreateRequest{
		VariantID:      "var-gn-1l",
		BatchNo:        "GN-2026-08",
		QtyProduced:    240,
		ManufacturedAt: "2026-08-20",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if batch.QtyRemaining != 240 {
		t.Fatalf("expected fresh batch fully stocked, got %d", batch.QtyRemaining)
	}

	_, err = svc.CreateBatch(adminCtx(), domain.BatchCreateRequest{
		VariantID:      "var-gn-1l",
		BatchNo:        "GN-BAD",
		QtyProduced:    10,
		ManufacturedAt: "20/08/2026",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected bad date rejection, got %v", err)
	}
}

func TestCustomersVisibleToCashier(t *testing.T) {
	svc, _ := newTestService()

	customer, err := svc.CreateCustomer(cashierCtx(), domain.CustomerCreateRequest{Name: "Ravi Traders", Phone: "9876543210"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if customer.ID == "" {
		t.Fatalf("expected generated customer id")
	}

	customers, err := svc.ListCustomers(cashierCtx())
	if err != nil {
		t.Fatalf("list customers: %v", err)
	}
	found := false
	for _, c := range customers {
		if c.ID == customer.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new customer in listing")
	}
}

func TestMessagingBetweenUsers(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.SendMessage(adminCtx(), domain.MessageSendRequest{ToUsername: "admin", Body: "note to self"}); err == nil {
		t.Fatalf("expected self-send rejection")
	}

	sent, err := svc.SendMessage(adminCtx(), domain.MessageSendRequest{ToUsername: "cashier", Body: "Close the till at 9"})
	if err != nil {
		t.Fatalf("send message: %v", err)
	}

	inbox, err := svc.Inbox(cashierCtx(), 10)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].ID != sent.ID || inbox[0].Read {
		t.Fatalf("unexpected inbox contents: %+v", inbox)
	}

	// Only the recipient may mark a message read.
	if _, err := svc.MarkMessageRead(adminCtx(), sent.ID); err == nil {
		t.Fatalf("expected sender mark-read to be rejected")
	}

	read, err := svc.MarkMessageRead(cashierCtx(), sent.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !read.Read {
		t.Fatalf("expected message marked read")
	}
}

func TestAuditLogsRecordAdminActions(t *testing.T) {
	svc, _ := newTestService()

	if _, err := svc.CreateBrand(adminCtx(), domain.NamedCreateRequest{Name: "Grove Press"}); err != nil {
		t.Fatalf("create brand: %v", err)
	}

	if _, err := svc.ListAuditLogs(cashierCtx(), time.Time{}, time.Time{}, 50); err == nil {
		t.Fatalf("expected cashier audit access to be rejected")
	}

	logs, err := svc.ListAuditLogs(adminCtx(), time.Time{}, time.Time{}, 50)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	found := false
	for _, entry := range logs {
		if entry.Action == "brand_create" && entry.ActorUsername == "admin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected brand_create audit entry, got %+v", logs)
	}
}

func TestActorRoundTrip(t *testing.T) {
	ctx := WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor: %+v ok=%v", actor, ok)
	}

	if _, ok := ActorFromContext(context.Background()); ok {
		t.Fatalf("expected no actor on bare context")
	}
}
