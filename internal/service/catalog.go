package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/internal/domain"
	"retailpos/internal/store"
)

const defaultLowStockThreshold = 10

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) (domain.Page[domain.Product], error) {
	filter.Limit, filter.Offset = pageParams(filter.Limit, filter.Offset)
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	return domain.Page[domain.Product]{Items: products, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, invalidf("barcode is required")
	}
	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.Validate(req); err != nil {
		return domain.Product{}, err
	}

	now := s.now()
	product := domain.Product{
		SKU:                strings.ToUpper(strings.TrimSpace(req.SKU)),
		Barcode:            strings.TrimSpace(req.Barcode),
		CategoryID:         strings.TrimSpace(req.CategoryID),
		Name:               strings.TrimSpace(req.Name),
		Brand:              strings.TrimSpace(req.Brand),
		Unit:               strings.TrimSpace(req.Unit),
		Price:              req.Price,
		CostPrice:          req.CostPrice,
		TaxRate:            req.TaxRate,
		StockQuantity:      req.StockQuantity,
		LowStockThreshold:  defaultLowStockThreshold,
		WholesalePrice:     req.WholesalePrice,
		WholesaleThreshold: req.WholesaleThreshold,
		Active:             true,
		ExpiryDate:         req.ExpiryDate,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if product.Unit == "" {
		product.Unit = "pcs"
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if err := checkProductPricing(product); err != nil {
		return domain.Product{}, err
	}
	if err := s.checkCategory(ctx, product.CategoryID); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product created",
		zap.String("product_id", created.ID),
		zap.String("sku", created.SKU),
		zap.String("actor", actor.Username),
	)
	return *created, nil
}

// UpdateProduct applies a partial update. Stock is never touched here.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.Validate(req); err != nil {
		return domain.Product{}, err
	}

	current, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	product := *current
	if req.Name != nil {
		product.Name = strings.TrimSpace(*req.Name)
	}
	if req.Barcode != nil {
		product.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.CategoryID != nil {
		product.CategoryID = strings.TrimSpace(*req.CategoryID)
		if product.CategoryID != current.CategoryID {
			if err := s.checkCategory(ctx, product.CategoryID); err != nil {
				return domain.Product{}, err
			}
		}
	}
	if req.Brand != nil {
		product.Brand = strings.TrimSpace(*req.Brand)
	}
	if req.Unit != nil {
		product.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.CostPrice != nil {
		product.CostPrice = *req.CostPrice
	}
	if req.TaxRate != nil {
		product.TaxRate = *req.TaxRate
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if req.ClearWholesale {
		if req.WholesalePrice != nil || req.WholesaleThreshold != nil {
			return domain.Product{}, invalidf("clear_wholesale cannot be combined with a new wholesale tier")
		}
		product.WholesalePrice, product.WholesaleThreshold = nil, nil
	}
	if req.WholesalePrice != nil {
		product.WholesalePrice = req.WholesalePrice
	}
	if req.WholesaleThreshold != nil {
		product.WholesaleThreshold = req.WholesaleThreshold
	}
	if req.Active != nil {
		product.Active = *req.Active
	}
	if req.ExpiryDate != nil {
		product.ExpiryDate = req.ExpiryDate
	}
	if product.Name == "" {
		return domain.Product{}, invalidf("name must not be empty")
	}
	if err := checkProductPricing(product); err != nil {
		return domain.Product{}, err
	}
	product.UpdatedAt = s.now()

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("product updated",
		zap.String("product_id", updated.ID),
		zap.String("actor", actor.Username),
	)
	return *updated, nil
}

func checkProductPricing(p domain.Product) error {
	if !p.Price.IsPositive() {
		return invalidf("price must be positive")
	}
	if p.CostPrice.IsNegative() {
		return invalidf("cost_price must not be negative")
	}
	if p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(hundred) {
		return invalidf("tax_rate must be between 0 and 100")
	}
	if (p.WholesalePrice == nil) != (p.WholesaleThreshold == nil) {
		return invalidf("wholesale_price and wholesale_threshold go together")
	}
	if p.WholesalePrice != nil && !p.WholesalePrice.IsPositive() {
		return invalidf("wholesale_price must be positive")
	}
	if err := checkScale("price", p.Price); err != nil {
		return err
	}
	if err := checkScale("cost_price", p.CostPrice); err != nil {
		return err
	}
	if err := checkScale("tax_rate", p.TaxRate); err != nil {
		return err
	}
	if p.WholesalePrice != nil {
		return checkScale("wholesale_price", *p.WholesalePrice)
	}
	return nil
}

// checkCategory accepts an empty id as uncategorised.
func (s *Service) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.repo.GetCategory(ctx, id); err != nil {
		return wrapLookup("category", id, err)
	}
	return nil
}

func (s *Service) ListInventoryLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.repo.ListInventoryLogs(ctx, productID, limit)
}

func (s *Service) ListCategories(ctx context.Context, limit int, offset int) (domain.Page[domain.Category], error) {
	limit, offset = pageParams(limit, offset)
	categories, total, err := s.repo.ListCategories(ctx, limit, offset)
	if err != nil {
		return domain.Page[domain.Category]{}, err
	}
	return domain.Page[domain.Category]{Items: categories, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return domain.Category{}, err
	}
	if err := s.Validate(req); err != nil {
		return domain.Category{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Category{}, invalidf("name must not be empty")
	}

	now := s.now()
	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return domain.Category{}, err
	}
	s.logger.Info("category created", zap.String("category_id", created.ID), zap.String("actor", actor.Username))
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager); err != nil {
		return domain.Category{}, err
	}
	if err := s.Validate(req); err != nil {
		return domain.Category{}, err
	}
	current, err := s.repo.GetCategory(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Category{}, err
	}

	category := *current
	if req.Name != nil {
		category.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		category.Description = strings.TrimSpace(*req.Description)
	}
	if category.Name == "" {
		return domain.Category{}, invalidf("name must not be empty")
	}
	category.UpdatedAt = s.now()

	updated, err := s.repo.UpdateCategory(ctx, category)
	if err != nil {
		return domain.Category{}, err
	}
	return *updated, nil
}

// DeleteCategory refuses while products still point at the category.
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("category %s still has products: %w", id, store.ErrConflict)
		}
		return err
	}
	s.logger.Info("category deleted", zap.String("category_id", id), zap.String("actor", actor.Username))
	return nil
}

func (s *Service) ListCustomers(ctx context.Context, filter domain.CustomerFilter) (domain.Page[domain.Customer], error) {
	filter.Limit, filter.Offset = pageParams(filter.Limit, filter.Offset)
	customers, total, err := s.repo.ListCustomers(ctx, filter)
	if err != nil {
		return domain.Page[domain.Customer]{}, err
	}
	return domain.Page[domain.Customer]{Items: customers, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if err := s.Validate(req); err != nil {
		return domain.Customer{}, err
	}
	if req.CreditLimit.IsNegative() {
		return domain.Customer{}, invalidf("credit_limit must not be negative")
	}
	if err := checkScale("credit_limit", req.CreditLimit); err != nil {
		return domain.Customer{}, err
	}

	now := s.now()
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:               strings.TrimSpace(req.Name),
		Phone:              strings.TrimSpace(req.Phone),
		Email:              strings.TrimSpace(req.Email),
		Address:            strings.TrimSpace(req.Address),
		GSTIN:              strings.ToUpper(strings.TrimSpace(req.GSTIN)),
		CreditLimit:        req.CreditLimit,
		OutstandingBalance: decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

// UpdateCustomer edits contact details and the credit limit. Points and
// balance only move through sales.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if err := s.Validate(req); err != nil {
		return domain.Customer{}, err
	}
	current, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}

	customer := *current
	if req.Name != nil {
		customer.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		customer.Email = strings.TrimSpace(*req.Email)
	}
	if req.Address != nil {
		customer.Address = strings.TrimSpace(*req.Address)
	}
	if req.GSTIN != nil {
		customer.GSTIN = strings.ToUpper(strings.TrimSpace(*req.GSTIN))
	}
	if req.CreditLimit != nil {
		if req.CreditLimit.IsNegative() {
			return domain.Customer{}, invalidf("credit_limit must not be negative")
		}
		if err := checkScale("credit_limit", *req.CreditLimit); err != nil {
			return domain.Customer{}, err
		}
		customer.CreditLimit = *req.CreditLimit
	}
	if customer.Name == "" || customer.Phone == "" {
		return domain.Customer{}, invalidf("name and phone are required")
	}
	customer.UpdatedAt = s.now()

	updated, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	return *updated, nil
}

// DeleteCustomer removes a customer with no outstanding balance and no
// sales on record.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleAdmin, domain.RoleManager)
	if err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("customer %s has a balance or sales history: %w", id, store.ErrConflict)
		}
		return err
	}
	s.logger.Info("customer deleted", zap.String("customer_id", id), zap.String("actor", actor.Username))
	return nil
}

func pageParams(limit int, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return limit, max(offset, 0)
}
