package service

import (
	"context"
	"errors"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/config"
	"go-pos-sync/pkg/database"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/logger"
	"go-pos-sync/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const orderNumberIndex = "idx_sales_order_number"

// errDraftLost means the reserved draft row is gone, usually after a history reset.
var errDraftLost = errors.New("draft reservation no longer exists")

// SaleItemRequest is one cart line. Kind defaults to catalog when a product id is
// present and to manual otherwise.
type SaleItemRequest struct {
	Kind      model.ItemKind  `json:"kind" validate:"omitempty,oneof=catalog manual"`
	ProductID *uuid.UUID      `json:"product_id,omitempty"`
	Name      string          `json:"name" validate:"max=255"`
	Price     decimal.Decimal `json:"price" validate:"money"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
}

type CreateSaleRequest struct {
	Items         []SaleItemRequest   `json:"items" validate:"required,min=1,dive"`
	Total         decimal.Decimal     `json:"total" validate:"money"`
	PaymentMethod model.PaymentMethod `json:"payment_method" validate:"required,oneof=Cash UPI"`
	UserNotes     *string             `json:"user_notes,omitempty" validate:"omitempty,max=2000"`
	AdminNotes    *string             `json:"admin_notes,omitempty" validate:"omitempty,max=2000"`
	DraftID       *uuid.UUID          `json:"draft_id,omitempty"`
}

type SaleService interface {
	CreateSale(ctx context.Context, req *CreateSaleRequest, actor string) (*model.Sale, error)
	ReserveDraft(ctx context.Context, actor string) (*model.Sale, error)
	CompleteSale(ctx context.Context, id uuid.UUID, actor string) (*model.Sale, error)
	SetAdminNote(ctx context.Context, id uuid.UUID, note *string, actor string) (*model.Sale, error)
	ResetHistory(ctx context.Context, actor string) (int64, error)
	History(ctx context.Context) ([]model.Sale, error)
	PendingQueue(ctx context.Context) ([]model.Sale, error)
	GetSale(ctx context.Context, id uuid.UUID) (*model.Sale, error)
}

type saleService struct {
	db        *gorm.DB
	sales     repository.SaleRepository
	products  repository.ProductRepository
	allocator OrderNumberAllocator
	stock     StockService
	publisher ws.Publisher
	cfg       config.SalesConfig
	logg      *logger.Logger
	metrics   *metrics.SalesMetrics
}

type SaleServiceParams struct {
	DB        *gorm.DB
	Sales     repository.SaleRepository
	Products  repository.ProductRepository
	Allocator OrderNumberAllocator
	Stock     StockService
	Publisher ws.Publisher
	Config    config.SalesConfig
	Logger    *logger.Logger
	Metrics   *metrics.SalesMetrics
}

func NewSaleService(p SaleServiceParams) SaleService {
	if p.Allocator == nil {
		p.Allocator = NewOrderNumberAllocator(p.Sales)
	}
	if p.Publisher == nil {
		p.Publisher = ws.Discard{}
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Stock == nil {
		p.Stock = NewStockService(p.Products, p.Publisher, p.Config.LowStockThreshold, p.Logger, p.Metrics)
	}
	if p.Config.OrderNumberMaxRetries <= 0 {
		p.Config.OrderNumberMaxRetries = 1
	}
	return &saleService{
		db:        p.DB,
		sales:     p.Sales,
		products:  p.Products,
		allocator: p.Allocator,
		stock:     p.Stock,
		publisher: p.Publisher,
		cfg:       p.Config,
		logg:      p.Logger,
		metrics:   p.Metrics,
	}
}

func (s *saleService) CreateSale(ctx context.Context, req *CreateSaleRequest, actor string) (*model.Sale, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	items, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	expected := model.SumItems(items).Round(2)
	if !req.Total.Round(2).Equal(expected) {
		return nil, apperrors.New(apperrors.CodeValidation, "total does not match items").
			WithDetails(map[string]string{"expected": expected.StringFixed(2), "got": req.Total.StringFixed(2)})
	}

	status := model.SalePending
	if model.AllManual(items) {
		status = model.SaleCompleted
	}
	// Admin notes are an admin-only field; other roles cannot set them at checkout.
	adminNotes := req.AdminNotes
	if actor != string(model.RoleAdmin) {
		adminNotes = nil
	}

	var (
		sale    *model.Sale
		changes []StockChange
	)
	draftID := req.DraftID
	for attempt := 1; ; {
		sale = &model.Sale{
			Total:         expected,
			PaymentMethod: req.PaymentMethod,
			Status:        status,
			UserNotes:     req.UserNotes,
			AdminNotes:    adminNotes,
		}
		sale.CreatedBy = actor
		sale.UpdatedBy = actor

		changes, err = s.createUnit(ctx, sale, cloneItems(items), draftID, actor)
		if err == nil {
			break
		}
		if errors.Is(err, errDraftLost) {
			s.logg.Warn(s.logg.WithField(ctx, "draft_id", draftID.String()), "draft reservation lost, allocating a new order number")
			draftID = nil
			continue
		}
		if draftID != nil || !database.IsUniqueViolation(err, orderNumberIndex) {
			return nil, storeError(err, "sale not found", "failed to create sale")
		}
		if attempt >= s.cfg.OrderNumberMaxRetries {
			s.metrics.IncOrderNumberConflict()
			s.logg.Warn(s.logg.WithField(ctx, "attempts", attempt), "order number allocation exhausted retries")
			return nil, apperrors.Wrap(apperrors.CodeOrderNumberConflict, err, "order number was taken by another terminal")
		}
		s.metrics.IncOrderNumberRetry()
		s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt), "order number taken, retrying")
		attempt++
	}

	created, err := s.sales.FindByID(ctx, sale.ID)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to load sale")
	}

	s.metrics.IncCreated(string(created.Status), string(created.PaymentMethod))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"sale_id":      created.ID.String(),
		"order_number": created.OrderNumber,
		"status":       string(created.Status),
	}), "sale created")

	s.publisher.Publish(ctx, ws.NewChange(ws.TableSales, ws.ActionInsert, created.ID.String(), created))
	s.stock.Announce(ctx, changes)
	return created, nil
}

// createUnit persists the sale, its items and the stock changes. In atomic mode
// it all commits or nothing does.
func (s *saleService) createUnit(ctx context.Context, sale *model.Sale, items []model.SaleItem, draftID *uuid.UUID, actor string) ([]StockChange, error) {
	if !s.cfg.AtomicCreate {
		return s.createSequenced(ctx, sale, items, draftID, actor)
	}
	var changes []StockChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertSale(ctx, tx, sale, draftID); err != nil {
			return err
		}
		if err := s.sales.CreateItems(ctx, tx, attach(items, sale.ID)); err != nil {
			return err
		}
		var err error
		changes, err = s.stock.Reconcile(ctx, tx, items, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// createSequenced runs the same steps without a transaction. A failure after the
// sale row exists leaves it in place and is reported as a partial write.
func (s *saleService) createSequenced(ctx context.Context, sale *model.Sale, items []model.SaleItem, draftID *uuid.UUID, actor string) ([]StockChange, error) {
	if err := s.insertSale(ctx, nil, sale, draftID); err != nil {
		return nil, err
	}
	details := map[string]any{"sale_id": sale.ID, "order_number": sale.OrderNumber}
	if err := s.sales.CreateItems(ctx, nil, attach(items, sale.ID)); err != nil {
		details["stage"] = "items"
		s.logg.Error(s.logg.WithFields(ctx, details), "sale saved without items", err)
		s.publishPersisted(ctx, sale, []model.SaleItem{})
		return nil, apperrors.Wrap(apperrors.CodePartialWrite, err, "sale was saved without its items").WithDetails(details)
	}
	changes, err := s.stock.Reconcile(ctx, nil, items, actor)
	if err != nil {
		details["stage"] = "stock"
		s.logg.Error(s.logg.WithFields(ctx, details), "sale saved without stock reconciliation", err)
		s.publishPersisted(ctx, sale, items)
		s.stock.Announce(ctx, changes)
		return nil, apperrors.Wrap(apperrors.CodePartialWrite, err, "sale was saved but stock was not fully updated").WithDetails(details)
	}
	return changes, nil
}

// publishPersisted announces a sale row that outlived a failed create so every
// terminal sees it. The stored row is preferred; the in-memory copy stands in
// when it cannot be read back.
func (s *saleService) publishPersisted(ctx context.Context, sale *model.Sale, items []model.SaleItem) {
	record := sale
	if saved, err := s.sales.FindByID(ctx, sale.ID); err == nil {
		record = saved
	} else {
		record.Items = items
	}
	s.publisher.Publish(ctx, ws.NewChange(ws.TableSales, ws.ActionInsert, record.ID.String(), record))
}

func (s *saleService) insertSale(ctx context.Context, tx *gorm.DB, sale *model.Sale, draftID *uuid.UUID) error {
	if draftID != nil {
		sale.ID = *draftID
		ok, err := s.sales.PromoteDraft(ctx, tx, sale)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		exists, err := s.sales.Exists(ctx, tx, *draftID)
		if err != nil {
			return err
		}
		if !exists {
			return errDraftLost
		}
		return apperrors.New(apperrors.CodeStateConflict, "draft was already submitted").
			WithDetails(map[string]any{"draft_id": draftID})
	}
	next, err := s.allocator.Next(ctx, tx)
	if err != nil {
		return err
	}
	sale.OrderNumber = next
	return s.sales.Create(ctx, tx, sale)
}

// buildItems snapshots each cart line into a SaleItem. Catalog lines must point at
// an existing product; a blank name is filled from the catalog.
func (s *saleService) buildItems(ctx context.Context, lines []SaleItemRequest) ([]model.SaleItem, error) {
	var ids []uuid.UUID
	for i := range lines {
		if lines[i].Kind == "" {
			lines[i].Kind = model.ItemManual
			if lines[i].ProductID != nil {
				lines[i].Kind = model.ItemCatalog
			}
		}
		switch lines[i].Kind {
		case model.ItemCatalog:
			if lines[i].ProductID == nil || *lines[i].ProductID == uuid.Nil {
				return nil, apperrors.Newf(apperrors.CodeValidation, "item %d: catalog item needs a product_id", i)
			}
			ids = append(ids, *lines[i].ProductID)
		case model.ItemManual:
			if lines[i].Name == "" {
				return nil, apperrors.Newf(apperrors.CodeValidation, "item %d: manual item needs a description", i)
			}
		}
	}

	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to load products")
	}

	items := make([]model.SaleItem, 0, len(lines))
	for i, line := range lines {
		var item model.SaleItem
		if line.Kind == model.ItemManual {
			item = model.ManualItem(line.Name, line.Price)
			item.Quantity = line.Quantity
		} else {
			product, ok := catalog[*line.ProductID]
			if !ok {
				return nil, apperrors.Newf(apperrors.CodeNotFound, "product %s not found", line.ProductID)
			}
			name := line.Name
			if name == "" {
				name = product.Name
			}
			item = model.CatalogItem(product.ID, name, line.Price, line.Quantity)
		}
		item.Position = i
		items = append(items, item)
	}
	return items, nil
}

func cloneItems(items []model.SaleItem) []model.SaleItem {
	out := make([]model.SaleItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].ID = uuid.Nil
	}
	return out
}

func attach(items []model.SaleItem, saleID uuid.UUID) []model.SaleItem {
	for i := range items {
		items[i].SaleID = saleID
	}
	return items
}

// ReserveDraft claims the next order number for a cart that is still being built.
func (s *saleService) ReserveDraft(ctx context.Context, actor string) (*model.Sale, error) {
	var draft *model.Sale
	var err error
	for attempt := 1; ; attempt++ {
		draft = &model.Sale{Total: decimal.Zero, Status: model.SaleDraft}
		draft.CreatedBy = actor
		draft.UpdatedBy = actor
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			next, err := s.allocator.Next(ctx, tx)
			if err != nil {
				return err
			}
			draft.OrderNumber = next
			return s.sales.Create(ctx, tx, draft)
		})
		if err == nil {
			break
		}
		if !database.IsUniqueViolation(err, orderNumberIndex) {
			return nil, storeError(err, "sale not found", "failed to reserve order number")
		}
		if attempt >= s.cfg.OrderNumberMaxRetries {
			s.metrics.IncOrderNumberConflict()
			return nil, apperrors.Wrap(apperrors.CodeOrderNumberConflict, err, "order number was taken by another terminal")
		}
		s.metrics.IncOrderNumberRetry()
	}
	draft.Items = []model.SaleItem{}
	return draft, nil
}

// CompleteSale moves a Pending sale to Completed. Completing an already Completed
// sale succeeds without publishing anything.
func (s *saleService) CompleteSale(ctx context.Context, id uuid.UUID, actor string) (*model.Sale, error) {
	sale, err := s.sales.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to load sale")
	}
	switch sale.Status {
	case model.SaleCompleted:
		return sale, nil
	case model.SaleDraft:
		return nil, apperrors.New(apperrors.CodeStateConflict, "a draft cannot be completed").
			WithDetails(map[string]any{"status": sale.Status})
	}

	changed, err := s.sales.TransitionStatus(ctx, id, model.SalePending, model.SaleCompleted, actor)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to complete sale")
	}
	sale, err = s.sales.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to load sale")
	}
	if !changed {
		// Another terminal completed it first.
		return sale, nil
	}

	s.metrics.IncCompleted()
	s.publisher.Publish(ctx, ws.NewChange(ws.TableSales, ws.ActionUpdate, sale.ID.String(), sale))
	return sale, nil
}

func (s *saleService) SetAdminNote(ctx context.Context, id uuid.UUID, note *string, actor string) (*model.Sale, error) {
	if note != nil && len(*note) > 2000 {
		return nil, apperrors.New(apperrors.CodeValidation, "admin note is too long")
	}
	if err := s.sales.UpdateAdminNote(ctx, id, note, actor); err != nil {
		return nil, storeError(err, "sale not found", "failed to update admin note")
	}
	sale, err := s.sales.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to load sale")
	}
	if sale.Status.Visible() {
		s.publisher.Publish(ctx, ws.NewChange(ws.TableSales, ws.ActionUpdate, sale.ID.String(), sale))
	}
	return sale, nil
}

func (s *saleService) ResetHistory(ctx context.Context, actor string) (int64, error) {
	removed, err := s.sales.DeleteAll(ctx)
	if err != nil {
		return 0, storeError(err, "sale not found", "failed to reset history")
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"removed": removed, "actor": actor}), "sale history reset")
	s.publisher.Publish(ctx, ws.NewChange(ws.TableSales, ws.ActionReset, "", nil))
	return removed, nil
}

func (s *saleService) History(ctx context.Context) ([]model.Sale, error) {
	sales, err := s.sales.FindVisible(ctx)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to load sales")
	}
	return sales, nil
}

func (s *saleService) PendingQueue(ctx context.Context) ([]model.Sale, error) {
	sales, err := s.sales.FindPending(ctx)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to load pending sales")
	}
	return sales, nil
}

// GetSale hides drafts: they are not sales yet as far as clients are concerned.
func (s *saleService) GetSale(ctx context.Context, id uuid.UUID) (*model.Sale, error) {
	sale, err := s.sales.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "sale not found", "failed to load sale")
	}
	if !sale.Status.Visible() {
		return nil, apperrors.New(apperrors.CodeNotFound, "sale not found")
	}
	return sale, nil
}
