package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

type Store struct {
	mu sync.RWMutex

	products       map[string]domain.Product
	productBySKU   map[string]string
	productByCode  map[string]string
	categories     map[string]domain.Category
	categoryNames  map[string]string
	customers      map[string]domain.Customer
	customerPhones map[string]string
	inventoryLogs  []domain.InventoryLog
	salesByID      map[string]domain.Sale
	saleOrder      []string
	saleByIdem     map[string]string
	reports        map[string]domain.DailyReport
	invoiceSeq     int64

	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		productBySKU:    make(map[string]string),
		productByCode:   make(map[string]string),
		categories:      make(map[string]domain.Category),
		categoryNames:   make(map[string]string),
		customers:       make(map[string]domain.Customer),
		customerPhones:  make(map[string]string),
		inventoryLogs:   make([]domain.InventoryLog, 0, 128),
		salesByID:       make(map[string]domain.Sale),
		saleByIdem:      make(map[string]string),
		reports:         make(map[string]domain.DailyReport),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store with demo users, products and one customer.
// Credentials come from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD, with dev defaults when unset.
func NewSeeded(logger *zap.Logger) *Store {
	s := New()
	now := time.Now().UTC()

	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logger.Warn("memory store is using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"manager", envOr("SEED_MANAGER_PASSWORD", "manager123"), domain.RoleManager},
		{"cashier", envOr("SEED_CASHIER_PASSWORD", "cashier123"), domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logger.Fatal("hash seed password", zap.String("username", u.username), zap.Error(err))
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}

	for _, c := range []domain.Category{
		{ID: "cat-beverages", Name: "Beverages", Description: "Soft drinks, tea and coffee"},
		{ID: "cat-grocery", Name: "Grocery", Description: "Staples and dairy"},
		{ID: "cat-personal-care", Name: "Personal Care"},
	} {
		c.CreatedAt, c.UpdatedAt = now, now
		s.categories[c.ID] = c
		s.categoryNames[strings.ToLower(c.Name)] = c.ID
	}

	for _, p := range seedProducts(now) {
		s.products[p.ID] = p
		s.productBySKU[p.SKU] = p.ID
		if p.Barcode != "" {
			s.productByCode[p.Barcode] = p.ID
		}
	}

	customer := domain.Customer{
		ID:                 "cust-demo",
		Name:               "Asha Traders",
		Phone:              "9800000001",
		CreditLimit:        decimal.NewFromInt(5000),
		OutstandingBalance: decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.customers[customer.ID] = customer
	s.customerPhones[customer.Phone] = customer.ID

	return s
}

func seedProducts(now time.Time) []domain.Product {
	tier := func(price int64, threshold int) (*decimal.Decimal, *int) {
		p := decimal.NewFromInt(price)
		return &p, &threshold
	}
	cokePrice, cokeThreshold := tier(35, 12)
	ricePrice, riceThreshold := tier(58, 10)

	products := []domain.Product{
		{ID: "prod-coke500", SKU: "COKE500", Barcode: "8901764012273", CategoryID: "cat-beverages", Name: "Coca-Cola 500ml", Unit: "bottle",
			Price: decimal.NewFromInt(40), CostPrice: decimal.NewFromInt(30), TaxRate: decimal.NewFromInt(18),
			StockQuantity: 100, WholesalePrice: cokePrice, WholesaleThreshold: cokeThreshold},
		{ID: "prod-rice5kg", SKU: "RICE5KG", Barcode: "8906001050018", CategoryID: "cat-grocery", Name: "Basmati Rice 5kg", Unit: "bag",
			Price: decimal.NewFromInt(62), CostPrice: decimal.NewFromInt(50), TaxRate: decimal.NewFromInt(5),
			StockQuantity: 60, WholesalePrice: ricePrice, WholesaleThreshold: riceThreshold},
		{ID: "prod-soap100", SKU: "SOAP100", Barcode: "8901030865278", CategoryID: "cat-personal-care", Name: "Bath Soap 100g", Unit: "piece",
			Price: decimal.NewFromInt(45), CostPrice: decimal.NewFromInt(33), TaxRate: decimal.NewFromInt(18),
			StockQuantity: 80},
		{ID: "prod-milk1l", SKU: "MILK1L", Barcode: "8901262010016", CategoryID: "cat-grocery", Name: "Toned Milk 1L", Unit: "pack",
			Price: decimal.NewFromInt(54), CostPrice: decimal.NewFromInt(48), TaxRate: decimal.Zero,
			StockQuantity: 40},
		{ID: "prod-tea250", SKU: "TEA250", Barcode: "8901725181116", CategoryID: "cat-beverages", Name: "Assam Tea 250g", Unit: "pack",
			Price: decimal.NewFromInt(140), CostPrice: decimal.NewFromInt(112), TaxRate: decimal.NewFromInt(5),
			StockQuantity: 8},
	}
	for i := range products {
		products[i].Active = true
		products[i].LowStockThreshold = 10
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
	}
	return products
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.SKU == "" || strings.TrimSpace(product.Name) == "" || product.StockQuantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productBySKU[product.SKU]; exists {
		return nil, store.ErrConflict
	}
	if product.Barcode != "" {
		if _, exists := s.productByCode[product.Barcode]; exists {
			return nil, store.ErrConflict
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	s.products[product.ID] = product
	s.productBySKU[product.SKU] = product.ID
	if product.Barcode != "" {
		s.productByCode[product.Barcode] = product.ID
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if product.Barcode != current.Barcode && product.Barcode != "" {
		if owner, taken := s.productByCode[product.Barcode]; taken && owner != product.ID {
			return nil, store.ErrConflict
		}
	}
	// Stock and sale bookkeeping stay with the sale path.
	product.SKU = current.SKU
	product.StockQuantity = current.StockQuantity
	product.LastSoldAt = current.LastSoldAt
	product.CreatedAt = current.CreatedAt

	if current.Barcode != "" {
		delete(s.productByCode, current.Barcode)
	}
	if product.Barcode != "" {
		s.productByCode[product.Barcode] = product.ID
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.productByCode[barcode]
	if !exists {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	if !product.Active {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if filter.CategoryID != "" && p.CategoryID != filter.CategoryID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) &&
			!strings.Contains(p.Barcode, search) {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})

	start, end := pageBounds(len(products), filter.Limit, filter.Offset)
	return products[start:end], len(products), nil
}

func (s *Store) CountLowStock(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if p.Active && p.StockQuantity <= p.LowStockThreshold {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListInventoryLogs(_ context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	logs := make([]domain.InventoryLog, 0, limit)
	for i := len(s.inventoryLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		if s.inventoryLogs[i].ProductID == productID {
			logs = append(logs, s.inventoryLogs[i])
		}
	}
	return logs, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	key := strings.ToLower(category.Name)
	if _, exists := s.categoryNames[key]; exists {
		return nil, store.ErrConflict
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	s.categories[category.ID] = category
	s.categoryNames[key] = category.ID
	created := category
	return &created, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.categories[category.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	oldKey, newKey := strings.ToLower(current.Name), strings.ToLower(category.Name)
	if newKey != oldKey {
		if _, taken := s.categoryNames[newKey]; taken {
			return nil, store.ErrConflict
		}
		delete(s.categoryNames, oldKey)
		s.categoryNames[newKey] = category.ID
	}
	category.CreatedAt = current.CreatedAt
	s.categories[category.ID] = category
	updated := category
	return &updated, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, exists := s.categories[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &category, nil
}

func (s *Store) ListCategories(_ context.Context, limit int, offset int) ([]domain.Category, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})

	start, end := pageBounds(len(categories), limit, offset)
	return categories[start:end], len(categories), nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, exists := s.categories[id]
	if !exists {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return store.ErrConflict
		}
	}
	delete(s.categories, id)
	delete(s.categoryNames, strings.ToLower(category.Name))
	return nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Phone = strings.TrimSpace(customer.Phone)
	if strings.TrimSpace(customer.Name) == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.customerPhones[customer.Phone]; exists {
		return nil, store.ErrConflict
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	s.customers[customer.ID] = customer
	s.customerPhones[customer.Phone] = customer.ID
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.customers[customer.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if customer.Phone != current.Phone {
		if _, taken := s.customerPhones[customer.Phone]; taken {
			return nil, store.ErrConflict
		}
		delete(s.customerPhones, current.Phone)
		s.customerPhones[customer.Phone] = customer.ID
	}
	customer.LoyaltyPoints = current.LoyaltyPoints
	customer.OutstandingBalance = current.OutstandingBalance
	customer.LastVisitAt = current.LastVisitAt
	customer.CreatedAt = current.CreatedAt
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) ListCustomers(_ context.Context, filter domain.CustomerFilter) ([]domain.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(c.Phone, search) {
			continue
		}
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})

	start, end := pageBounds(len(customers), filter.Limit, filter.Offset)
	return customers[start:end], len(customers), nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, exists := s.customers[id]
	if !exists {
		return store.ErrNotFound
	}
	if !customer.OutstandingBalance.IsZero() {
		return store.ErrConflict
	}
	for _, sale := range s.salesByID {
		if sale.CustomerID() == id {
			return store.ErrConflict
		}
	}
	delete(s.customers, id)
	delete(s.customerPhones, customer.Phone)
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(sale)
	return &cloned, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.saleOrder))
	for i := len(s.saleOrder) - 1; i >= 0; i-- {
		sale := s.salesByID[s.saleOrder[i]]
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}

	start, end := pageBounds(len(sales), filter.Limit, filter.Offset)
	return sales[start:end], len(sales), nil
}

func (s *Store) GetDailyReport(_ context.Context, date time.Time) (*domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, exists := s.reports[dayKey(date)]
	if !exists {
		return nil, store.ErrNotFound
	}
	cloned := cloneReport(report)
	return &cloned, nil
}

func (s *Store) ListDailyReports(_ context.Context, from time.Time, to time.Time) ([]domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fromKey, toKey := dayKey(from), dayKey(to)
	reports := make([]domain.DailyReport, 0, 8)
	for key, report := range s.reports {
		if key < fromKey || key > toKey {
			continue
		}
		reports = append(reports, cloneReport(report))
	}
	slices.SortFunc(reports, func(a, b domain.DailyReport) int {
		return a.Date.Compare(b.Date)
	})
	return reports, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func pageBounds(total int, limit int, offset int) (int, int) {
	offset = min(max(offset, 0), total)
	if limit <= 0 {
		return offset, total
	}
	return offset, min(offset+limit, total)
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	return dst
}

func cloneReport(src domain.DailyReport) domain.DailyReport {
	dst := src
	dst.PaymentBreakdown = make(map[domain.PaymentMethod]decimal.Decimal, len(src.PaymentBreakdown))
	for method, amount := range src.PaymentBreakdown {
		dst.PaymentBreakdown[method] = amount
	}
	return dst
}
