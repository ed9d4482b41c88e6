package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"oilmill/backend/internal/cache"
	"oilmill/backend/internal/domain"
	"oilmill/backend/internal/store"
	"oilmill/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo            store.Repository
	metricsCache    cache.MetricsCache
	metricsCacheTTL time.Duration
	logger          zerolog.Logger
}

func New(repo store.Repository, metricsCache cache.MetricsCache, metricsCacheTTL time.Duration, logger zerolog.Logger) *Service {
	if metricsCache == nil {
		metricsCache = cache.NoopMetricsCache{}
	}
	if metricsCacheTTL <= 0 {
		metricsCacheTTL = 60 * time.Second
	}

	return &Service{
		repo:            repo,
		metricsCache:    metricsCache,
		metricsCacheTTL: metricsCacheTTL,
		logger:          logger,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, fmt.Errorf("admin role required")
	}
	return actor, nil
}

func (s *Service) CreateBrand(ctx context.Context, req domain.NamedCreateRequest) (domain.Brand, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Brand{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Brand{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateBrand(ctx, domain.Brand{
		ID:        xid.New("brand"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Brand{}, err
	}

	s.logAudit(ctx, "brand_create", "brand", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) DeleteBrand(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteBrand(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "brand_delete", "brand", id, "")
	return nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.NamedCreateRequest) (domain.Category, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		ID:        xid.New("cat"),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", id, "")
	return nil
}

func (s *Service) CreateUnit(ctx context.Context, req domain.NamedCreateRequest) (domain.Unit, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Unit{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Unit{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateUnit(ctx, domain.Unit{
		ID:        xid.New("unit"),
		Name:      name,
		ShortCode: strings.TrimSpace(req.ShortCode),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Unit{}, err
	}

	s.logAudit(ctx, "unit_create", "unit", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListUnits(ctx context.Context) ([]domain.Unit, error) {
	return s.repo.ListUnits(ctx)
}

func (s *Service) DeleteUnit(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteUnit(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "unit_delete", "unit", id, "")
	return nil
}

func (s *Service) CreateTax(ctx context.Context, req domain.TaxCreateRequest) (domain.Tax, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Tax{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" || req.RatePercent < 0 || req.RatePercent > 100 {
		return domain.Tax{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateTax(ctx, domain.Tax{
		ID:          xid.New("tax"),
		Name:        name,
		RatePercent: req.RatePercent,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Tax{}, err
	}

	s.logAudit(ctx, "tax_create", "tax", created.ID, fmt.Sprintf("name=%s,rate=%.2f", created.Name, created.RatePercent))
	return *created, nil
}

func (s *Service) ListTaxes(ctx context.Context) ([]domain.Tax, error) {
	return s.repo.ListTaxes(ctx)
}

func (s *Service) DeleteTax(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteTax(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "tax_delete", "tax", id, "")
	return nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.PurchasePrice < 0 || req.SellingPrice < 0 || req.OECFee < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:            xid.New("prod"),
		Name:          req.Name,
		BrandID:       req.BrandID,
		CategoryID:    req.CategoryID,
		TaxID:         req.TaxID,
		PurchasePrice: req.PurchasePrice,
		SellingPrice:  req.SellingPrice,
		OECFee:        req.OECFee,
		HSNCode:       strings.TrimSpace(req.HSNCode),
		Active:        true,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%s,purchase=%.2f,selling=%.2f", created.Name, created.PurchasePrice, created.SellingPrice))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.BrandID != nil {
		updated.BrandID = *req.BrandID
	}
	if req.CategoryID != nil {
		updated.CategoryID = *req.CategoryID
	}
	if req.TaxID != nil {
		updated.TaxID = *req.TaxID
	}
	if req.PurchasePrice != nil {
		if *req.PurchasePrice < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.PurchasePrice = *req.PurchasePrice
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.OECFee != nil {
		if *req.OECFee < 0 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.OECFee = *req.OECFee
	}
	if req.HSNCode != nil {
		updated.HSNCode = strings.TrimSpace(*req.HSNCode)
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID,
		fmt.Sprintf("active=%t,purchase=%.2f,selling=%.2f", saved.Active, saved.PurchasePrice, saved.SellingPrice))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) CreateVariant(ctx context.Context, productID string, req domain.VariantCreateRequest) (domain.Variant, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	if productID == "" || req.Volume <= 0 || req.Price < 0 || req.UnitConsumed < 0 {
		return domain.Variant{}, store.ErrInvalidInput
	}
	if req.PackingCharge < 0 || req.LaborCharge < 0 || req.ElectricityCharge < 0 {
		return domain.Variant{}, store.ErrInvalidInput
	}

	if _, err := s.repo.GetProductByID(ctx, productID); err != nil {
		return domain.Variant{}, err
	}

	created, err := s.repo.CreateVariant(ctx, domain.Variant{
		ID:                xid.New("var"),
		ProductID:         productID,
		Volume:            req.Volume,
		UnitID:            req.UnitID,
		Color:             strings.TrimSpace(req.Color),
		Price:             req.Price,
		MRP:               req.MRP,
		UnitConsumed:      req.UnitConsumed,
		PackingCharge:     req.PackingCharge,
		LaborCharge:       req.LaborCharge,
		ElectricityCharge: req.ElectricityCharge,
		Others1:           req.Others1,
		Others2:           req.Others2,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return domain.Variant{}, err
	}

	s.logAudit(ctx, "variant_create", "variant", created.ID,
		fmt.Sprintf("product=%s,volume=%.2f,price=%.2f", created.ProductID, created.Volume, created.Price))
	return *created, nil
}

func (s *Service) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	if productID == "" {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListVariantsByProduct(ctx, productID)
}

func (s *Service) UpdateVariant(ctx context.Context, id string, req domain.VariantUpdateRequest) (domain.Variant, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Variant{}, err
	}

	existing, err := s.repo.GetVariantByID(ctx, id)
	if err != nil {
		return domain.Variant{}, err
	}

	updated := *existing
	if req.Volume != nil {
		if *req.Volume <= 0 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.Volume = *req.Volume
	}
	if req.UnitID != nil {
		updated.UnitID = *req.UnitID
	}
	if req.Color != nil {
		updated.Color = strings.TrimSpace(*req.Color)
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.Price = *req.Price
	}
	if req.MRP != nil {
		updated.MRP = *req.MRP
	}
	if req.UnitConsumed != nil {
		if *req.UnitConsumed < 0 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.UnitConsumed = *req.UnitConsumed
	}
	if req.PackingCharge != nil {
		if *req.PackingCharge < 0 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.PackingCharge = *req.PackingCharge
	}
	if req.LaborCharge != nil {
		if *req.LaborCharge < 0 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.LaborCharge = *req.LaborCharge
	}
	if req.ElectricityCharge != nil {
		if *req.ElectricityCharge < 0 {
			return domain.Variant{}, store.ErrInvalidInput
		}
		updated.ElectricityCharge = *req.ElectricityCharge
	}
	if req.Others1 != nil {
		updated.Others1 = *req.Others1
	}
	if req.Others2 != nil {
		updated.Others2 = *req.Others2
	}

	saved, err := s.repo.UpdateVariant(ctx, updated)
	if err != nil {
		return domain.Variant{}, err
	}

	s.logAudit(ctx, "variant_update", "variant", saved.ID,
		fmt.Sprintf("price=%.2f,unit_consumed=%.2f", saved.Price, saved.UnitConsumed))
	return *saved, nil
}

func (s *Service) DeleteVariant(ctx context.Context, id string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteVariant(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "variant_delete", "variant", id, "")
	return nil
}

func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.Batch, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Batch{}, err
	}

	req.BatchNo = strings.TrimSpace(req.BatchNo)
	if req.VariantID == "" || req.BatchNo == "" || req.QtyProduced < 1 {
		return domain.Batch{}, store.ErrInvalidInput
	}

	manufacturedAt := time.Now().UTC()
	if req.ManufacturedAt != "" {
		parsed, err := time.Parse("2006-01-02", req.ManufacturedAt)
		if err != nil {
			return domain.Batch{}, store.ErrInvalidInput
		}
		manufacturedAt = parsed.UTC()
	}

	created, err := s.repo.CreateBatch(ctx, domain.Batch{
		ID:             xid.New("batch"),
		VariantID:      req.VariantID,
		BatchNo:        req.BatchNo,
		QtyProduced:    req.QtyProduced,
		QtyRemaining:   req.QtyProduced,
		ManufacturedAt: manufacturedAt,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return domain.Batch{}, err
	}

	s.logAudit(ctx, "batch_create", "batch", created.ID,
		fmt.Sprintf("variant=%s,batch_no=%s,qty=%d", created.VariantID, created.BatchNo, created.QtyProduced))
	return *created, nil
}

func (s *Service) ListBatches(ctx context.Context, variantID string, limit int) ([]domain.Batch, error) {
	return s.repo.ListBatches(ctx, variantID, limit)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.Customer{}, fmt.Errorf("authentication required")
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Customer{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		ID:        xid.New("cust"),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) SendMessage(ctx context.Context, req domain.MessageSendRequest) (domain.Message, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Message{}, fmt.Errorf("authentication required")
	}

	to := strings.TrimSpace(req.ToUsername)
	body := strings.TrimSpace(req.Body)
	if to == "" || body == "" || to == actor.Username {
		return domain.Message{}, store.ErrInvalidInput
	}

	created, err := s.repo.CreateMessage(ctx, domain.Message{
		ID:           xid.New("msg"),
		FromUsername: actor.Username,
		ToUsername:   to,
		Body:         body,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.Message{}, err
	}
	return *created, nil
}

func (s *Service) Inbox(ctx context.Context, limit int) ([]domain.Message, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("authentication required")
	}
	return s.repo.ListMessages(ctx, actor.Username, limit)
}

func (s *Service) MarkMessageRead(ctx context.Context, messageID string) (domain.Message, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Message{}, fmt.Errorf("authentication required")
	}

	message, err := s.repo.MarkMessageRead(ctx, messageID, actor.Username)
	if err != nil {
		return domain.Message{}, err
	}
	return *message, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Str("entity_id", entityID).Msg("failed to write audit log")
	}
}
