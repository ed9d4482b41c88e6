package store

import (
	"context"
	"errors"
	"time"

	"oilmill/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("duplicate record")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvoiceCancelled = errors.New("invoice already cancelled")
)

// ListNoLimit disables the row cap on invoice listings. Aggregations must see
// every qualifying invoice; only the HTTP list endpoints page.
const ListNoLimit = -1

// InvoiceFilter bounds invoice queries. Zero From/To mean unbounded on that
// side; empty Status means any status. A zero Limit applies the store default
// of 500; ListNoLimit returns every match.
type InvoiceFilter struct {
	From   time.Time
	To     time.Time
	Status string
	Limit  int
}

type Repository interface {
	CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	DeleteBrand(ctx context.Context, id string) error

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreateUnit(ctx context.Context, unit domain.Unit) (*domain.Unit, error)
	ListUnits(ctx context.Context) ([]domain.Unit, error)
	DeleteUnit(ctx context.Context, id string) error

	CreateTax(ctx context.Context, tax domain.Tax) (*domain.Tax, error)
	ListTaxes(ctx context.Context) ([]domain.Tax, error)
	DeleteTax(ctx context.Context, id string) error

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	CreateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	GetVariantByID(ctx context.Context, id string) (*domain.Variant, error)
	ListVariantsByProduct(ctx context.Context, productID string) ([]domain.Variant, error)
	UpdateVariant(ctx context.Context, variant domain.Variant) (*domain.Variant, error)
	DeleteVariant(ctx context.Context, id string) error
	// GetVariantCostings returns, for each requested variant id that still
	// resolves to a variant with an existing product, the charge fields
	// joined with the product price spread. Dangling ids are simply absent
	// from the result map.
	GetVariantCostings(ctx context.Context, variantIDs []string) (map[string]domain.VariantCosting, error)

	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	ListBatches(ctx context.Context, variantID string, limit int) ([]domain.Batch, error)
	ConsumeBatchStock(ctx context.Context, variantID string, qty int) error

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)

	CreateInvoice(ctx context.Context, invoice domain.Invoice) (*domain.Invoice, error)
	GetInvoiceByNo(ctx context.Context, invoiceNo string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]domain.Invoice, error)
	// GetLatestInvoiceInRange returns the most recently created invoice with
	// created_at in [from, to), regardless of status.
	GetLatestInvoiceInRange(ctx context.Context, from time.Time, to time.Time) (*domain.Invoice, error)
	CancelInvoice(ctx context.Context, invoiceNo string) (*domain.Invoice, error)

	CreateMessage(ctx context.Context, message domain.Message) (*domain.Message, error)
	ListMessages(ctx context.Context, username string, limit int) ([]domain.Message, error)
	MarkMessageRead(ctx context.Context, messageID string, username string) (*domain.Message, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
