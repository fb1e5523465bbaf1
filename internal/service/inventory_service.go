package service

import (
	"context"
	"errors"

	"go-pos-sync/internal/model"
	"go-pos-sync/internal/repository"
	"go-pos-sync/internal/ws"
	"go-pos-sync/pkg/database"
	apperrors "go-pos-sync/pkg/errors"
	"go-pos-sync/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductRequest creates or edits a product. On update, Stock is applied only
// together with ExpectedStock (the value the editor last saw); without it stock is
// left to checkouts and Restock.
type ProductRequest struct {
	Name          string          `json:"name" validate:"required,max=255"`
	Price         decimal.Decimal `json:"price" validate:"money"`
	Stock         int             `json:"stock" validate:"gte=0"`
	ExpectedStock *int            `json:"expected_stock,omitempty" validate:"omitempty,gte=0"`
	CategoryID    *uuid.UUID      `json:"category_id"`
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type InventoryService interface {
	CreateProduct(ctx context.Context, req *ProductRequest, actor string) (*model.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, req *ProductRequest, actor string) (*model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	GetAllProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error)
	Restock(ctx context.Context, id uuid.UUID, qty int, actor string) (*model.Product, error)

	CreateCategory(ctx context.Context, req *CategoryRequest, actor string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error)
	GetAllCategories(ctx context.Context) ([]model.Category, error)
}

type inventoryService struct {
	productRepo  repository.ProductRepository
	categoryRepo repository.CategoryRepository
	stock        StockService
	publisher    ws.Publisher
	logg         *logger.Logger
}

func NewInventoryService(pRepo repository.ProductRepository, cRepo repository.CategoryRepository, stock StockService, publisher ws.Publisher, logg *logger.Logger) InventoryService {
	if publisher == nil {
		publisher = ws.Discard{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &inventoryService{
		productRepo:  pRepo,
		categoryRepo: cRepo,
		stock:        stock,
		publisher:    publisher,
		logg:         logg,
	}
}

func (s *inventoryService) CreateProduct(ctx context.Context, req *ProductRequest, actor string) (*model.Product, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}

	product := &model.Product{
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
	}
	product.CreatedBy = actor
	product.UpdatedBy = actor
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, storeError(err, "product not found", "failed to create product")
	}

	created, err := s.productRepo.FindByID(ctx, product.ID)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to load product")
	}
	s.publisher.Publish(ctx, ws.NewChange(ws.TableProducts, ws.ActionInsert, created.ID.String(), created))
	return created, nil
}

func (s *inventoryService) UpdateProduct(ctx context.Context, id uuid.UUID, req *ProductRequest, actor string) (*model.Product, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, req.CategoryID); err != nil {
		return nil, err
	}
	if _, err := s.productRepo.FindByID(ctx, id); err != nil {
		return nil, storeError(err, "product not found", "failed to load product")
	}

	product := &model.Product{
		Name:       req.Name,
		Price:      req.Price,
		Stock:      req.Stock,
		CategoryID: req.CategoryID,
	}
	product.ID = id
	product.UpdatedBy = actor
	err := s.productRepo.Update(ctx, product, req.ExpectedStock)
	if errors.Is(err, repository.ErrStockChanged) {
		return nil, apperrors.New(apperrors.CodeConflict, "stock changed since it was read; reload and retry").
			WithDetails(map[string]any{"product_id": id, "expected_stock": *req.ExpectedStock})
	}
	if err != nil {
		return nil, storeError(err, "product not found", "failed to update product")
	}

	updated, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to load product")
	}
	s.publisher.Publish(ctx, ws.NewChange(ws.TableProducts, ws.ActionUpdate, updated.ID.String(), updated))
	return updated, nil
}

// DeleteProduct removes a catalog entry. Past sale items keep their snapshot.
func (s *inventoryService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.productRepo.Delete(ctx, id); err != nil {
		return storeError(err, "product not found", "failed to delete product")
	}
	s.publisher.Publish(ctx, ws.NewChange(ws.TableProducts, ws.ActionDelete, id.String(), nil))
	return nil
}

func (s *inventoryService) GetAllProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.productRepo.FindAll(ctx)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to load products")
	}
	return products, nil
}

func (s *inventoryService) GetProduct(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "product not found", "failed to load product")
	}
	return product, nil
}

func (s *inventoryService) Restock(ctx context.Context, id uuid.UUID, qty int, actor string) (*model.Product, error) {
	return s.stock.Restock(ctx, id, qty, actor)
}

func (s *inventoryService) CreateCategory(ctx context.Context, req *CategoryRequest, actor string) (*model.Category, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	category := &model.Category{Name: req.Name}
	category.CreatedBy = actor
	category.UpdatedBy = actor
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, storeError(err, "category not found", "failed to create category")
	}
	s.publisher.Publish(ctx, ws.NewChange(ws.TableCategories, ws.ActionInsert, category.ID.String(), category))
	return category, nil
}

// DeleteCategory removes the category; its products stay, uncategorised.
func (s *inventoryService) DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error) {
	detached, err := s.categoryRepo.Delete(ctx, id)
	if err != nil {
		return 0, storeError(err, "category not found", "failed to delete category")
	}
	s.publisher.Publish(ctx, ws.NewChange(ws.TableCategories, ws.ActionDelete, id.String(), nil))
	if detached > 0 {
		s.publisher.Publish(ctx, ws.NewChange(ws.TableProducts, ws.ActionUpdate, "", nil))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"category_id": id.String(),
		"detached":    detached,
	}), "category deleted")
	return detached, nil
}

func (s *inventoryService) GetAllCategories(ctx context.Context) ([]model.Category, error) {
	categories, err := s.categoryRepo.FindAll(ctx)
	if err != nil {
		return nil, storeError(err, "category not found", "failed to load categories")
	}
	return categories, nil
}

func (s *inventoryService) checkCategory(ctx context.Context, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := s.categoryRepo.FindByID(ctx, *id); err != nil {
		if database.IsNotFound(err) {
			return apperrors.New(apperrors.CodeValidation, "category does not exist").
				WithDetails(map[string]any{"category_id": id})
		}
		return storeError(err, "category not found", "failed to load category")
	}
	return nil
}
