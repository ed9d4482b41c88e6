package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
	"oilmill/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	brands          map[string]domain.Brand
	categories      map[string]domain.Category
	units           map[string]domain.Unit
	taxes           map[string]domain.Tax
	products        map[string]domain.Product
	variants        map[string]domain.Variant
	batches         map[string]domain.Batch
	customers       map[string]domain.Customer
	invoicesByNo    map[string]*domain.Invoice
	invoiceOrder    []string
	messagesByID    map[string]domain.Message
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, dev defaults are used with a warning. Never used in production
// (the backend requires PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
		email    string
	}{
		{"admin", adminPwd, domain.RoleAdmin, "admin@example.com"},
		{"cashier", cashierPwd, domain.RoleCashier, "cashier@example.com"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Email:     u.email,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	brand := domain.Brand{ID: "brand-house", Name: "Mill House", CreatedAt: now}
	category := domain.Category{ID: "cat-edible-oil", Name: "Edible Oil", CreatedAt: now}
	unitLitre := domain.Unit{ID: "unit-l", Name: "Litre", ShortCode: "L", CreatedAt: now}
	unitMl := domain.Unit{ID: "unit-ml", Name: "Millilitre", ShortCode: "ml", CreatedAt: now}
	tax := domain.Tax{ID: "tax-gst-5", Name: "GST 5%", RatePercent: 5, CreatedAt: now}

	products := []domain.Product{
		{ID: "prod-groundnut", Name: "Groundnut Oil", BrandID: brand.ID, CategoryID: category.ID, TaxID: tax.ID, PurchasePrice: 140, SellingPrice: 185, OECFee: 12, HSNCode: "1508", Active: true, CreatedAt: now},
		{ID: "prod-coconut", Name: "Coconut Oil", BrandID: brand.ID, CategoryID: category.ID, TaxID: tax.ID, PurchasePrice: 210, SellingPrice: 260, OECFee: 15, HSNCode: "1513", Active: true, CreatedAt: now},
		{ID: "prod-sesame", Name: "Sesame Oil", BrandID: brand.ID, CategoryID: category.ID, TaxID: tax.ID, PurchasePrice: 320, SellingPrice: 390, OECFee: 18, HSNCode: "1515", Active: true, CreatedAt: now},
	}

	variants := []domain.Variant{
		{ID: "var-gn-1l", ProductID: "prod-groundnut", Volume: 1, UnitID: unitLitre.ID, Color: "amber", Price: 195, MRP: 210, UnitConsumed: 1, PackingCharge: 6, LaborCharge: 3, ElectricityCharge: 2, Others1: 4, Others2: 5, CreatedAt: now},
		{ID: "var-gn-500", ProductID: "prod-groundnut", Volume: 500, UnitID: unitMl.ID, Color: "amber", Price: 102, MRP: 110, UnitConsumed: 0.5, PackingCharge: 4, LaborCharge: 2, ElectricityCharge: 1, Others1: 2, Others2: 3, CreatedAt: now},
		{ID: "var-co-1l", ProductID: "prod-coconut", Volume: 1, UnitID: unitLitre.ID, Color: "clear", Price: 275, MRP: 290, UnitConsumed: 1, PackingCharge: 6, LaborCharge: 3, ElectricityCharge: 2, Others1: 5, Others2: 6, CreatedAt: now},
		{ID: "var-se-500", ProductID: "prod-sesame", Volume: 500, UnitID: unitMl.ID, Color: "dark", Price: 205, MRP: 220, UnitConsumed: 0.5, PackingCharge: 4, LaborCharge: 2, ElectricityCharge: 1, Others1: 3, Others2: 4, CreatedAt: now},
	}

	batches := []domain.Batch{
		{ID: "batch-gn-1", VariantID: "var-gn-1l", BatchNo: "GN-2406-A", QtyProduced: 200, QtyRemaining: 180, ManufacturedAt: now.Add(-30 * 24 * time.Hour), CreatedAt: now},
		{ID: "batch-co-1", VariantID: "var-co-1l", BatchNo: "CO-2406-A", QtyProduced: 120, QtyRemaining: 96, ManufacturedAt: now.Add(-20 * 24 * time.Hour), CreatedAt: now},
		{ID: "batch-se-1", VariantID: "var-se-500", BatchNo: "SE-2406-A", QtyProduced: 150, QtyRemaining: 12, ManufacturedAt: now.Add(-45 * 24 * time.Hour), CreatedAt: now},
	}

	customers := []domain.Customer{
		{ID: "cust-walkin", Name: "Walk-in Customer", CreatedAt: now},
		{ID: "cust-hotel-annapurna", Name: "Hotel Annapurna", Phone: "9876500011", CreatedAt: now},
	}

	s := &Store{
		brands:          map[string]domain.Brand{brand.ID: brand},
		categories:      map[string]domain.Category{category.ID: category},
		units:           map[string]domain.Unit{unitLitre.ID: unitLitre, unitMl.ID: unitMl},
		taxes:           map[string]domain.Tax{tax.ID: tax},
		products:        make(map[string]domain.Product, len(products)),
		variants:        make(map[string]domain.Variant, len(variants)),
		batches:         make(map[string]domain.Batch, len(batches)),
		customers:       make(map[string]domain.Customer, len(customers)),
		invoicesByNo:    make(map[string]*domain.Invoice),
		invoiceOrder:    make([]string, 0, 64),
		messagesByID:    make(map[string]domain.Message),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: seedUsers(),
	}
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, v := range variants {
		s.variants[v.ID] = v
	}
	for _, b := range batches {
		s.batches[b.ID] = b
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}
	return s
}

func New() *Store {
	return &Store{
		brands:          make(map[string]domain.Brand),
		categories:      make(map[string]domain.Category),
		units:           make(map[string]domain.Unit),
		taxes:           make(map[string]domain.Tax),
		products:        make(map[string]domain.Product),
		variants:        make(map[string]domain.Variant),
		batches:         make(map[string]domain.Batch),
		customers:       make(map[string]domain.Customer),
		invoicesByNo:    make(map[string]*domain.Invoice),
		invoiceOrder:    make([]string, 0, 64),
		messagesByID:    make(map[string]domain.Message),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

func (s *Store) CreateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if brand.ID == "" || brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.brands {
		if strings.EqualFold(existing.Name, brand.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.brands[brand.ID] = brand
	created := brand
	return &created, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	brands := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		brands = append(brands, b)
	}
	slices.SortFunc(brands, func(a, b domain.Brand) int { return strings.Compare(a.Name, b.Name) })
	return brands, nil
}

func (s *Store) DeleteBrand(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.brands[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.brands, id)
	return nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int { return strings.Compare(a.Name, b.Name) })
	return categories, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CreateUnit(_ context.Context, unit domain.Unit) (*domain.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if unit.ID == "" || unit.Name == "" {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.units {
		if strings.EqualFold(existing.Name, unit.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.units[unit.ID] = unit
	created := unit
	return &created, nil
}

func (s *Store) ListUnits(_ context.Context) ([]domain.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]domain.Unit, 0, len(s.units))
	for _, u := range s.units {
		units = append(units, u)
	}
	slices.SortFunc(units, func(a, b domain.Unit) int { return strings.Compare(a.Name, b.Name) })
	return units, nil
}

func (s *Store) DeleteUnit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.units[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.units, id)
	return nil
}

func (s *Store) CreateTax(_ context.Context, tax domain.Tax) (*domain.Tax, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tax.ID == "" || tax.Name == "" || tax.RatePercent < 0 || tax.RatePercent > 100 {
		return nil, store.ErrInvalidInput
	}
	for _, existing := range s.taxes {
		if strings.EqualFold(existing.Name, tax.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.taxes[tax.ID] = tax
	created := tax
	return &created, nil
}

func (s *Store) ListTaxes(_ context.Context) ([]domain.Tax, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	taxes := make([]domain.Tax, 0, len(s.taxes))
	for _, t := range s.taxes {
		taxes = append(taxes, t)
	}
	slices.SortFunc(taxes, func(a, b domain.Tax) int { return strings.Compare(a.Name, b.Name) })
	return taxes, nil
}

func (s *Store) DeleteTax(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.taxes[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.taxes, id)
	return nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) CreateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if variant.ID == "" || variant.ProductID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.products[variant.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.variants[variant.ID]; exists {
		return nil, store.ErrDuplicate
	}
	s.variants[variant.ID] = variant
	created := variant
	return &created, nil
}

func (s *Store) GetVariantByID(_ context.Context, id string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variant, exists := s.variants[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := variant
	return &copied, nil
}

func (s *Store) ListVariantsByProduct(_ context.Context, productID string) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	variants := make([]domain.Variant, 0, 8)
	for _, v := range s.variants {
		if v.ProductID == productID {
			variants = append(variants, v)
		}
	}
	slices.SortFunc(variants, func(a, b domain.Variant) int {
		if a.Volume == b.Volume {
			return strings.Compare(a.ID, b.ID)
		}
		if a.Volume < b.Volume {
			return -1
		}
		return 1
	})
	return variants, nil
}

func (s *Store) UpdateVariant(_ context.Context, variant domain.Variant) (*domain.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if variant.ID == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.variants[variant.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.variants[variant.ID] = variant
	updated := variant
	return &updated, nil
}

func (s *Store) DeleteVariant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.variants[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.variants, id)
	return nil
}

func (s *Store) GetVariantCostings(_ context.Context, variantIDs []string) (map[string]domain.VariantCosting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.VariantCosting, len(variantIDs))
	for _, id := range variantIDs {
		variant, exists := s.variants[id]
		if !exists {
			continue
		}
		product, exists := s.products[variant.ProductID]
		if !exists {
			continue
		}
		result[id] = domain.VariantCosting{
			VariantID:         variant.ID,
			UnitConsumed:      variant.UnitConsumed,
			PackingCharge:     variant.PackingCharge,
			LaborCharge:       variant.LaborCharge,
			ElectricityCharge: variant.ElectricityCharge,
			Others1:           variant.Others1,
			Others2:           variant.Others2,
			PurchasePrice:     product.PurchasePrice,
			SellingPrice:      product.SellingPrice,
		}
	}
	return result, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if batch.ID == "" || batch.VariantID == "" || batch.BatchNo == "" || batch.QtyProduced < 1 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.variants[batch.VariantID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.batches {
		if existing.VariantID == batch.VariantID && existing.BatchNo == batch.BatchNo {
			return nil, store.ErrDuplicate
		}
	}
	s.batches[batch.ID] = batch
	created := batch
	return &created, nil
}

func (s *Store) ListBatches(_ context.Context, variantID string, limit int) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	batches := make([]domain.Batch, 0, 16)
	for _, b := range s.batches {
		if variantID != "" && b.VariantID != variantID {
			continue
		}
		batches = append(batches, b)
	}
	slices.SortFunc(batches, func(a, b domain.Batch) int {
		return b.ManufacturedAt.Compare(a.ManufacturedAt)
	})
	if len(batches) > limit {
		batches = batches[:limit]
	}
	return batches, nil
}

// ConsumeBatchStock draws qty from the variant's batches, oldest first.
func (s *Store) ConsumeBatchStock(_ context.Context, variantID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if variantID == "" || qty < 1 {
		return store.ErrInvalidInput
	}

	candidates := make([]domain.Batch, 0, 8)
	for _, b := range s.batches {
		if b.VariantID == variantID && b.QtyRemaining > 0 {
			candidates = append(candidates, b)
		}
	}
	slices.SortFunc(candidates, func(a, b domain.Batch) int {
		return a.ManufacturedAt.Compare(b.ManufacturedAt)
	})

	remaining := qty
	for _, b := range candidates {
		if remaining == 0 {
			break
		}
		take := b.QtyRemaining
		if take > remaining {
			take = remaining
		}
		b.QtyRemaining -= take
		remaining -= take
		s.batches[b.ID] = b
	}
	// Selling more than batch records cover is tolerated: batch tracking is
	// advisory, the sale itself must not be blocked.
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return strings.Compare(a.Name, b.Name) })
	return customers, nil
}

func (s *Store) CreateInvoice(_ context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if invoice.ID == "" || invoice.InvoiceNo == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.invoicesByNo[invoice.InvoiceNo]; exists {
		return nil, store.ErrDuplicate
	}

	stored := invoice
	stored.Items = slices.Clone(invoice.Items)
	s.invoicesByNo[invoice.InvoiceNo] = &stored
	s.invoiceOrder = append(s.invoiceOrder, invoice.InvoiceNo)
	created := stored
	created.Items = slices.Clone(stored.Items)
	return &created, nil
}

func (s *Store) GetInvoiceByNo(_ context.Context, invoiceNo string) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoice, exists := s.invoicesByNo[invoiceNo]
	if !exists {
		return nil, store.ErrNotFound
	}
	copied := *invoice
	copied.Items = slices.Clone(invoice.Items)
	return &copied, nil
}

func (s *Store) ListInvoices(_ context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit == 0 {
		limit = 500
	}

	invoices := make([]domain.Invoice, 0, 32)
	for _, no := range s.invoiceOrder {
		invoice := s.invoicesByNo[no]
		if !matchesFilter(invoice, filter) {
			continue
		}
		copied := *invoice
		copied.Items = slices.Clone(invoice.Items)
		invoices = append(invoices, copied)
	}
	slices.SortFunc(invoices, func(a, b domain.Invoice) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func matchesFilter(invoice *domain.Invoice, filter store.InvoiceFilter) bool {
	if filter.Status != "" && invoice.Status != filter.Status {
		return false
	}
	if !filter.From.IsZero() && invoice.CreatedAt.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && !invoice.CreatedAt.Before(filter.To) {
		return false
	}
	return true
}

func (s *Store) GetLatestInvoiceInRange(_ context.Context, from time.Time, to time.Time) (*domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Walk in insertion order so the most recently written invoice wins when
	// two share a timestamp.
	var latest *domain.Invoice
	for _, no := range s.invoiceOrder {
		invoice := s.invoicesByNo[no]
		if invoice.CreatedAt.Before(from) || !invoice.CreatedAt.Before(to) {
			continue
		}
		if latest == nil || !invoice.CreatedAt.Before(latest.CreatedAt) {
			latest = invoice
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	copied := *latest
	copied.Items = slices.Clone(latest.Items)
	return &copied, nil
}

func (s *Store) CancelInvoice(_ context.Context, invoiceNo string) (*domain.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invoice, exists := s.invoicesByNo[invoiceNo]
	if !exists {
		return nil, store.ErrNotFound
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, store.ErrInvoiceCancelled
	}
	invoice.Status = domain.InvoiceStatusCancelled
	copied := *invoice
	copied.Items = slices.Clone(invoice.Items)
	return &copied, nil
}

func (s *Store) CreateMessage(_ context.Context, message domain.Message) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.ID == "" || message.FromUsername == "" || message.ToUsername == "" || message.Body == "" {
		return nil, store.ErrInvalidInput
	}
	s.messagesByID[message.ID] = message
	created := message
	return &created, nil
}

func (s *Store) ListMessages(_ context.Context, username string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	messages := make([]domain.Message, 0, 16)
	for _, m := range s.messagesByID {
		if m.ToUsername == username || m.FromUsername == username {
			messages = append(messages, m)
		}
	}
	slices.SortFunc(messages, func(a, b domain.Message) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (s *Store) MarkMessageRead(_ context.Context, messageID string, username string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, exists := s.messagesByID[messageID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if message.ToUsername != username {
		return nil, store.ErrInvalidInput
	}
	message.Read = true
	s.messagesByID[messageID] = message
	copied := message
	return &copied, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	logs := make([]domain.AuditLog, 0, limit)
	for _, entry := range s.auditLogs {
		if !from.IsZero() && entry.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	slices.SortFunc(logs, func(a, b domain.AuditLog) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
