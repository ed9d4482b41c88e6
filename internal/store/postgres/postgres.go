package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
	"oilmill/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	if brand.ID == "" || brand.Name == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brands (id, name, created_at)
		VALUES ($1,$2,$3)
	`, brand.ID, brand.Name, brand.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := brand
	return &created, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM brands
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 32)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) DeleteBrand(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "brands", id)
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" || category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, created_at)
		VALUES ($1,$2,$3)
	`, category.ID, category.Name, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "categories", id)
}

func (s *Store) CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error) {
	if unit.ID == "" || unit.Name == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO units (id, name, short_code, created_at)
		VALUES ($1,$2,$3,$4)
	`, unit.ID, unit.Name, unit.ShortCode, unit.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := unit
	return &created, nil
}

func (s *Store) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, short_code, created_at
		FROM units
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make([]domain.Unit, 0, 16)
	for rows.Next() {
		var u domain.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.ShortCode, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *Store) DeleteUnit(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "units", id)
}

func (s *Store) CreateTax(ctx context.Context, tax domain.Tax) (*domain.Tax, error) {
	if tax.ID == "" || tax.Name == "" || tax.RatePercent < 0 || tax.RatePercent > 100 {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO taxes (id, name, rate_percent, created_at)
		VALUES ($1,$2,$3,$4)
	`, tax.ID, tax.Name, tax.RatePercent, tax.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := tax
	return &created, nil
}

func (s *Store) ListTaxes(ctx context.Context) ([]domain.Tax, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, rate_percent, created_at
		FROM taxes
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taxes := make([]domain.Tax, 0, 8)
	for rows.Next() {
		var t domain.Tax
		if err := rows.Scan(&t.ID, &t.Name, &t.RatePercent, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		taxes = append(taxes, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return taxes, nil
}

func (s *Store) DeleteTax(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "taxes", id)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, name, brand_id, category_id, tax_id, purchase_price, selling_price,
			oec_fee, hsn_code, active, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, product.ID, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.CategoryID),
		nullIfEmpty(product.TaxID), product.PurchasePrice, product.SellingPrice,
		product.OECFee, product.HSNCode, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := product
	return &created, nil
}

const productColumns = `id, COALESCE(brand_id,''), COALESCE(category_id,''), COALESCE(tax_id,''),
	name, purchase_price, selling_price, oec_fee, hsn_code, active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.BrandID, &p.CategoryID, &p.TaxID, &p.Name,
		&p.PurchasePrice, &p.SellingPrice, &p.OECFee, &p.HSNCode, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand_id = $3, category_id = $4, tax_id = $5,
			purchase_price = $6, selling_price = $7, oec_fee = $8, hsn_code = $9, active = $10
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.CategoryID),
		nullIfEmpty(product.TaxID), product.PurchasePrice, product.SellingPrice,
		product.OECFee, product.HSNCode, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "products", id)
}

const variantColumns = `id, product_id, volume, COALESCE(unit_id,''), color, price, mrp,
	unit_consumed, packing_charge, labor_charge, electricity_charge, others1, others2, created_at`

func scanVariant(row interface{ Scan(...any) error }) (*domain.Variant, error) {
	var v domain.Variant
	err := row.Scan(&v.ID, &v.ProductID, &v.Volume, &v.UnitID, &v.Color, &v.Price, &v.MRP,
		&v.UnitConsumed, &v.PackingCharge, &v.LaborCharge, &v.ElectricityCharge,
		&v.Others1, &v.Others2, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}

func (s *Store) CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" || variant.ProductID == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variants (
			id, product_id, volume, unit_id, color, price, mrp, unit_consumed,
			packing_charge, labor_charge, electricity_charge, others1, others2, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, variant.ID, variant.ProductID, variant.Volume, nullIfEmpty(variant.UnitID), variant.Color,
		variant.Price, variant.MRP, variant.UnitConsumed, variant.PackingCharge,
		variant.LaborCharge, variant.ElectricityCharge, variant.Others1, variant.Others2, variant.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := variant
	return &created, nil
}

func (s *Store) GetVariantByID(ctx context.Context, id string) (*domain.Variant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+variantColumns+`
		FROM variants
		WHERE id = $1
	`, id)
	variant, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return variant, nil
}

func (s *Store) ListVariantsByProduct(ctx context.Context, productID string) ([]domain.Variant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+variantColumns+`
		FROM variants
		WHERE product_id = $1
		ORDER BY volume, id
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	variants := make([]domain.Variant, 0, 8)
	for rows.Next() {
		variant, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		variants = append(variants, *variant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return variants, nil
}

func (s *Store) UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error) {
	if variant.ID == "" {
		return nil, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE variants
		SET volume = $2, unit_id = $3, color = $4, price = $5, mrp = $6, unit_consumed = $7,
			packing_charge = $8, labor_charge = $9, electricity_charge = $10, others1 = $11, others2 = $12
		WHERE id = $1
	`, variant.ID, variant.Volume, nullIfEmpty(variant.UnitID), variant.Color, variant.Price,
		variant.MRP, variant.UnitConsumed, variant.PackingCharge, variant.LaborCharge,
		variant.ElectricityCharge, variant.Others1, variant.Others2)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := variant
	return &updated, nil
}

func (s *Store) DeleteVariant(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "variants", id)
}

func (s *Store) GetVariantCostings(ctx context.Context, variantIDs []string) (map[string]domain.VariantCosting, error) {
	result := make(map[string]domain.VariantCosting, len(variantIDs))
	if len(variantIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.unit_consumed, v.packing_charge, v.labor_charge, v.electricity_charge,
			v.others1, v.others2, p.purchase_price, p.selling_price
		FROM variants v
		JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1)
	`, variantIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.VariantCosting
		if err := rows.Scan(&c.VariantID, &c.UnitConsumed, &c.PackingCharge, &c.LaborCharge,
			&c.ElectricityCharge, &c.Others1, &c.Others2, &c.PurchasePrice, &c.SellingPrice); err != nil {
			return nil, err
		}
		result[c.VariantID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.ID == "" || batch.VariantID == "" || batch.BatchNo == "" || batch.QtyProduced < 1 {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batches (id, variant_id, batch_no, qty_produced, qty_remaining, manufactured_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, batch.ID, batch.VariantID, batch.BatchNo, batch.QtyProduced, batch.QtyRemaining,
		batch.ManufacturedAt, batch.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := batch
	return &created, nil
}

func (s *Store) ListBatches(ctx context.Context, variantID string, limit int) ([]domain.Batch, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, variant_id, batch_no, qty_produced, qty_remaining, manufactured_at, created_at
		FROM batches
		WHERE ($1 = '' OR variant_id = $1)
		ORDER BY manufactured_at DESC
		LIMIT $2
	`, variantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, limit)
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.VariantID, &b.BatchNo, &b.QtyProduced, &b.QtyRemaining,
			&b.ManufacturedAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.ManufacturedAt = b.ManufacturedAt.UTC()
		b.CreatedAt = b.CreatedAt.UTC()
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

// ConsumeBatchStock draws qty from the variant's batches, oldest first. Batch
// records are advisory: selling past the recorded stock does not fail the sale.
func (s *Store) ConsumeBatchStock(ctx context.Context, variantID string, qty int) error {
	if variantID == "" || qty < 1 {
		return store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, qty_remaining
		FROM batches
		WHERE variant_id = $1 AND qty_remaining > 0
		ORDER BY manufactured_at ASC
		FOR UPDATE
	`, variantID)
	if err != nil {
		return err
	}
	type batchState struct {
		id        string
		remaining int
	}
	batches := make([]batchState, 0, 8)
	for rows.Next() {
		var b batchState
		if err := rows.Scan(&b.id, &b.remaining); err != nil {
			_ = rows.Close()
			return err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	remaining := qty
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := b.remaining
		if take > remaining {
			take = remaining
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE batches
			SET qty_remaining = qty_remaining - $1
			WHERE id = $2
		`, take, b.id)
		if err != nil {
			return err
		}
		remaining -= take
	}

	return tx.Commit()
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" || customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, created_at)
		VALUES ($1,$2,$3,$4)
	`, customer.ID, customer.Name, customer.Phone, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&customer.ID, &customer.Name, &customer.Phone, &customer.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	return &customer, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

const invoiceColumns = `id, invoice_no, COALESCE(customer_id,''), biller_username, subtotal,
	discount, packing_discount, gst_amount, total, payment_method, status, created_at`

func scanInvoice(row interface{ Scan(...any) error }) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(&inv.ID, &inv.InvoiceNo, &inv.CustomerID, &inv.BillerUsername,
		&inv.Subtotal, &inv.Discount, &inv.PackingDiscount, &inv.GSTAmount, &inv.Total,
		&inv.PaymentMethod, &inv.Status, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	return &inv, nil
}

func (s *Store) CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error) {
	if invoice.ID == "" || invoice.InvoiceNo == "" || len(invoice.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (
			id, invoice_no, customer_id, biller_username, subtotal, discount,
			packing_discount, gst_amount, total, payment_method, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, invoice.ID, invoice.InvoiceNo, nullIfEmpty(invoice.CustomerID), invoice.BillerUsername,
		invoice.Subtotal, invoice.Discount, invoice.PackingDiscount, invoice.GSTAmount,
		invoice.Total, invoice.PaymentMethod, invoice.Status, invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for _, item := range invoice.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, name, variant_id, price, quantity, mrp, gst_rate, hsn_code)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, invoice.ID, item.Name, nullIfEmpty(item.VariantID), item.Price, item.Quantity,
			item.MRP, item.GSTRate, item.HSNCode)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := invoice
	return &created, nil
}

func (s *Store) loadInvoiceItems(ctx context.Context, invoiceID string) ([]domain.InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, COALESCE(variant_id,''), price, quantity, mrp, gst_rate, hsn_code
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id ASC
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, 8)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.Name, &item.VariantID, &item.Price, &item.Quantity,
			&item.MRP, &item.GSTRate, &item.HSNCode); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetInvoiceByNo(ctx context.Context, invoiceNo string) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE invoice_no = $1
	`, invoiceNo)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items, err := s.loadInvoiceItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return invoice, nil
}

func (s *Store) ListInvoices(ctx context.Context, filter store.InvoiceFilter) ([]domain.Invoice, error) {
	limit := filter.Limit
	if limit == 0 {
		limit = 500
	}
	// LIMIT NULL means no cap; aggregations pass store.ListNoLimit.
	var limitArg any = limit
	if limit < 0 {
		limitArg = nil
	}

	from := filter.From
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	to := filter.To
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE created_at >= $1
			AND created_at < $2
			AND ($3 = '' OR status = $3)
		ORDER BY created_at DESC
		LIMIT $4
	`, from, to, filter.Status, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, 64)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range invoices {
		items, err := s.loadInvoiceItems(ctx, invoices[i].ID)
		if err != nil {
			return nil, err
		}
		invoices[i].Items = items
	}
	return invoices, nil
}

func (s *Store) GetLatestInvoiceInRange(ctx context.Context, from time.Time, to time.Time) (*domain.Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT 1
	`, from, to)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (s *Store) CancelInvoice(ctx context.Context, invoiceNo string) (*domain.Invoice, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE invoice_no = $1
		FOR UPDATE
	`, invoiceNo)
	invoice, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, store.ErrInvoiceCancelled
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE invoices
		SET status = $2
		WHERE invoice_no = $1
	`, invoiceNo, domain.InvoiceStatusCancelled)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	invoice.Status = domain.InvoiceStatusCancelled
	items, err := s.loadInvoiceItems(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return invoice, nil
}

func (s *Store) CreateMessage(ctx context.Context, message domain.Message) (*domain.Message, error) {
	if message.ID == "" || message.FromUsername == "" || message.ToUsername == "" || message.Body == "" {
		return nil, store.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, from_username, to_username, body, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, message.ID, message.FromUsername, message.ToUsername, message.Body, message.Read, message.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := message
	return &created, nil
}

func (s *Store) ListMessages(ctx context.Context, username string, limit int) ([]domain.Message, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_username, to_username, body, read, created_at
		FROM messages
		WHERE to_username = $1 OR from_username = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]domain.Message, 0, limit)
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.FromUsername, &m.ToUsername, &m.Body, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *Store) MarkMessageRead(ctx context.Context, messageID string, username string) (*domain.Message, error) {
	var m domain.Message
	err := s.db.QueryRowContext(ctx, `
		UPDATE messages
		SET read = true
		WHERE id = $1 AND to_username = $2
		RETURNING id, from_username, to_username, body, read, created_at
	`, messageID, username).Scan(&m.ID, &m.FromUsername, &m.ToUsername, &m.Body, &m.Read, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if from.IsZero() {
		from = time.Unix(0, 0).UTC()
	}
	if to.IsZero() {
		to = time.Now().UTC().Add(24 * time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, email, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.Username, user.Password, user.Role, user.Email, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, email, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Email, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password = $2
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, table string, id string) error {
	switch table {
	case "brands", "categories", "units", "taxes", "products", "variants":
	default:
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
