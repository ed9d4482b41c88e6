package domain

import "time"

type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Unit struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ShortCode string    `json:"short_code"`
	CreatedAt time.Time `json:"created_at"`
}

type Tax struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	RatePercent float64   `json:"rate_percent"`
	CreatedAt   time.Time `json:"created_at"`
}

type NamedCreateRequest struct {
	Name      string `json:"name"`
	ShortCode string `json:"short_code,omitempty"`
}

type TaxCreateRequest struct {
	Name        string  `json:"name"`
	RatePercent float64 `json:"rate_percent"`
}

// Product is the raw good (an oil) from which sellable variants are derived.
// Profit attribution uses the product's purchase/selling price spread, not
// the variant's own retail price.
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	BrandID       string    `json:"brand_id"`
	CategoryID    string    `json:"category_id"`
	TaxID         string    `json:"tax_id"`
	PurchasePrice float64   `json:"purchase_price"`
	SellingPrice  float64   `json:"selling_price"`
	OECFee        float64   `json:"oec_fee"`
	HSNCode       string    `json:"hsn_code,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name          string  `json:"name"`
	BrandID       string  `json:"brand_id"`
	CategoryID    string  `json:"category_id"`
	TaxID         string  `json:"tax_id"`
	PurchasePrice float64 `json:"purchase_price"`
	SellingPrice  float64 `json:"selling_price"`
	OECFee        float64 `json:"oec_fee"`
	HSNCode       string  `json:"hsn_code,omitempty"`
}

type ProductUpdateRequest struct {
	Name          *string  `json:"name,omitempty"`
	BrandID       *string  `json:"brand_id,omitempty"`
	CategoryID    *string  `json:"category_id,omitempty"`
	TaxID         *string  `json:"tax_id,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	SellingPrice  *float64 `json:"selling_price,omitempty"`
	OECFee        *float64 `json:"oec_fee,omitempty"`
	HSNCode       *string  `json:"hsn_code,omitempty"`
	Active        *bool    `json:"active,omitempty"`
}

/// Variant is a sellable SKU of a product: a bottled volume/color with its own
// retail price and per-unit production charges. UnitConsumed is the quantity
// of raw product consumed to fill one unit of this variant. Others1 and
// Others2 are opaque charge inputs at the admin UI level; the financial
// aggregator treats others1 as the OEC deposit component and others2 as a
// flat profit addend.
type Variant struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id"`
	Volume            float64   `json:"volume"`
	UnitID            string    `json:"unit_id"`
	Color             string    `json:"color,omitempty"`
	Price             float64   `json:"price"`
	MRP               float64   `json:"mrp"`
	UnitConsumed      float64   `json:"unit_consumed"`
	PackingCharge     float64   `json:"packing_charge"`
	LaborCharge       float64   `json:"labor_charge"`
	ElectricityCharge float64   `json:"electricity_charge"`
	Others1           float64   `json:"others1"`
	Others2           float64   `json:"others2"`
	CreatedAt         time.Time `json:"created_at"`
}

type VariantCreateRequest struct {
	Volume            float64 `json:"volume"`
	UnitID            string  `json:"unit_id"`
	Color             string  `json:"color,omitempty"`
	Price             float64 `json:"price"`
	MRP               float64 `json:"mrp"`
	UnitConsumed      float64 `json:"unit_consumed"`
	PackingCharge     float64 `json:"packing_charge"`
	LaborCharge       float64 `json:"labor_charge"`
	ElectricityCharge float64 `json:"electricity_charge"`
	Others1           float64 `json:"others1"`
	Others2           float64 `json:"others2"`
}

type VariantUpdateRequest struct {
	Volume            *float64 `json:"volume,omitempty"`
	UnitID            *string  `json:"unit_id,omitempty"`
	Color             *string  `json:"color,omitempty"`
	Price             *float64 `json:"price,omitempty"`
	MRP               *float64 `json:"mrp,omitempty"`
	UnitConsumed      *float64 `json:"unit_consumed,omitempty"`
	PackingCharge     *float64 `json:"packing_charge,omitempty"`
	LaborCharge       *float64 `json:"labor_charge,omitempty"`
	ElectricityCharge *float64 `json:"electricity_charge,omitempty"`
	Others1           *float64 `json:"others1,omitempty"`
	Others2           *float64 `json:"others2,omitempty"`
}

// VariantCosting is the projection the financial aggregator folds over: a
// variant's charge fields joined with its owning product's price spread.
type VariantCosting struct {
	VariantID         string
	UnitConsumed      float64
	PackingCharge     float64
	LaborCharge       float64
	ElectricityCharge float64
	Others1           float64
	Others2           float64
	PurchasePrice     float64
	SellingPrice      float64
}

// Batch is one manufactured run of a variant (one pressing/bottling cycle).
type Batch struct {
	ID             string    `json:"id"`
	VariantID      string    `json:"variant_id"`
	BatchNo        string    `json:"batch_no"`
	QtyProduced    int       `json:"qty_produced"`
	QtyRemaining   int       `json:"qty_remaining"`
	ManufacturedAt time.Time `json:"manufactured_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type BatchCreateRequest struct {
	VariantID      string `json:"variant_id"`
	BatchNo        string `json:"batch_no"`
	QtyProduced    int    `json:"qty_produced"`
	ManufacturedAt string `json:"manufactured_at,omitempty"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// InvoiceItem is one invoice line. VariantID is empty for manually added
// charges such as oil-expelling fees; those lines never participate in the
// profit/deposit aggregation.
type InvoiceItem struct {
	Name      string  `json:"name"`
	VariantID string  `json:"variant_id,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	MRP       float64 `json:"mrp"`
	GSTRate   float64 `json:"gst_rate"`
	HSNCode   string  `json:"hsn_code,omitempty"`
}

type Invoice struct {
	ID              string        `json:"id"`
	InvoiceNo       string        `json:"invoice_no"`
	CustomerID      string        `json:"customer_id"`
	BillerUsername  string        `json:"biller_username"`
	Items           []InvoiceItem `json:"items"`
	Subtotal        float64       `json:"subtotal"`
	Discount        float64       `json:"discount"`
	PackingDiscount float64       `json:"packing_discount"`
	GSTAmount       float64       `json:"gst_amount"`
	Total           float64       `json:"total"`
	PaymentMethod   string        `json:"payment_method"`
	Status          string        `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
}

type InvoiceCreateRequest struct {
	CustomerID      string        `json:"customer_id"`
	Items           []InvoiceItem `json:"items"`
	Subtotal        float64       `json:"subtotal"`
	Discount        float64       `json:"discount"`
	PackingDiscount float64       `json:"packing_discount"`
	GSTAmount       float64       `json:"gst_amount"`
	Total           float64       `json:"total"`
	PaymentMethod   string        `json:"payment_method"`
}

type InvoiceResponse struct {
	Invoice Invoice `json:"invoice"`
}

type InvoiceListResponse struct {
	Invoices []Invoice `json:"invoices"`
}

// DepositableCharges are operational cost components accumulated per invoice
// line and reconciled separately from net profit.
type DepositableCharges struct {
	PackingCharges     float64 `json:"packingCharges"`
	LaborCharges       float64 `json:"laborCharges"`
	ElectricityCharges float64 `json:"electricityCharges"`
	OECCharges         float64 `json:"oecCharges"`
}

type FinancialMetrics struct {
	TotalProfit        float64            `json:"totalProfit"`
	TotalDeposits      float64            `json:"totalDeposits"`
	DepositableCharges DepositableCharges `json:"depositableCharges"`
}

type SalesSummary struct {
	InvoiceCount   int                `json:"invoice_count"`
	CancelledCount int                `json:"cancelled_count"`
	GrossSales     float64            `json:"gross_sales"`
	GSTCollected   float64            `json:"gst_collected"`
	ByPayment      map[string]float64 `json:"by_payment"`
}

type LowStockBatch struct {
	BatchID      string `json:"batch_id"`
	BatchNo      string `json:"batch_no"`
	VariantID    string `json:"variant_id"`
	QtyRemaining int    `json:"qty_remaining"`
}

type DashboardResponse struct {
	GeneratedAt string           `json:"generated_at"`
	Sales       SalesSummary     `json:"sales"`
	Financial   FinancialMetrics `json:"financial"`
	LowStock    []LowStockBatch  `json:"low_stock"`
}

type Message struct {
	ID           string    `json:"id"`
	FromUsername string    `json:"from_username"`
	ToUsername   string    `json:"to_username"`
	Body         string    `json:"body"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

type MessageSendRequest struct {
	ToUsername string `json:"to_username"`
	Body       string `json:"body"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Email     string
	Active    bool
	CreatedAt time.Time
}

type OTPRequest struct {
	Username string `json:"username"`
}

type OTPResetRequest struct {
	Username    string `json:"username"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	InvoiceStatusActive    = "active"
	InvoiceStatusCancelled = "cancelled"
)

const (
	PaymentCash = "cash"
	PaymentUPI  = "upi"
	PaymentCard = "card"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
