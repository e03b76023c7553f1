package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/internal/domain"
	"retailpos/internal/store"
	"retailpos/internal/xid"
)

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const productColumns = `
	id, sku, barcode, category_id, name, brand, unit, price, cost_price, tax_rate,
	stock_quantity, low_stock_threshold, wholesale_price, wholesale_threshold,
	active, expiry_date, last_sold_at, created_at, updated_at`

func scanProduct(row rowScanner) (*domain.Product, error) {
	var (
		p                  domain.Product
		barcode            sql.NullString
		categoryID         sql.NullString
		wholesalePrice     decimal.NullDecimal
		wholesaleThreshold sql.NullInt64
		expiry             sql.NullTime
		lastSold           sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.SKU, &barcode, &categoryID, &p.Name, &p.Brand, &p.Unit, &p.Price, &p.CostPrice, &p.TaxRate,
		&p.StockQuantity, &p.LowStockThreshold, &wholesalePrice, &wholesaleThreshold,
		&p.Active, &expiry, &lastSold, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Barcode = barcode.String
	p.CategoryID = categoryID.String
	if wholesalePrice.Valid {
		price := wholesalePrice.Decimal
		p.WholesalePrice = &price
	}
	if wholesaleThreshold.Valid {
		threshold := int(wholesaleThreshold.Int64)
		p.WholesaleThreshold = &threshold
	}
	p.ExpiryDate = timePtr(expiry)
	p.LastSoldAt = timePtr(lastSold)
	return &p, nil
}

func getProduct(ctx context.Context, q queryer, where string, arg any) (*domain.Product, error) {
	product, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+where, arg))
	if err != nil {
		return nil, classify("get product", err)
	}
	return product, nil
}

func wholesaleArgs(p domain.Product) (any, any) {
	var price, threshold any
	if p.WholesalePrice != nil {
		price = *p.WholesalePrice
	}
	if p.WholesaleThreshold != nil {
		threshold = *p.WholesaleThreshold
	}
	return price, threshold
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.SKU == "" || strings.TrimSpace(product.Name) == "" || product.StockQuantity < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	wholesalePrice, wholesaleThreshold := wholesaleArgs(product)

	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (
			id, sku, barcode, category_id, name, brand, unit, price, cost_price, tax_rate,
			stock_quantity, low_stock_threshold, wholesale_price, wholesale_threshold,
			active, expiry_date, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING `+productColumns,
		product.ID, product.SKU, nullIfEmpty(product.Barcode), nullIfEmpty(product.CategoryID), product.Name, product.Brand,
		product.Unit, product.Price, product.CostPrice, product.TaxRate,
		product.StockQuantity, product.LowStockThreshold, wholesalePrice, wholesaleThreshold,
		product.Active, nullTime(product.ExpiryDate), product.CreatedAt, product.UpdatedAt,
	))
	if err != nil {
		return nil, classify("create product", err)
	}
	return created, nil
}

// UpdateProduct writes catalog fields only; stock and last_sold_at belong
// to the sale path.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	wholesalePrice, wholesaleThreshold := wholesaleArgs(product)

	updated, err := scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products SET
			barcode = $2, category_id = $3, name = $4, brand = $5, unit = $6,
			price = $7, cost_price = $8, tax_rate = $9, low_stock_threshold = $10,
			wholesale_price = $11, wholesale_threshold = $12, active = $13,
			expiry_date = $14, updated_at = $15
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, nullIfEmpty(product.Barcode), nullIfEmpty(product.CategoryID), product.Name, product.Brand, product.Unit,
		product.Price, product.CostPrice, product.TaxRate, product.LowStockThreshold,
		wholesalePrice, wholesaleThreshold, product.Active,
		nullTime(product.ExpiryDate), product.UpdatedAt,
	))
	if err != nil {
		return nil, classify("update product", err)
	}
	return updated, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `id = $1`, id)
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `barcode = $1 AND active = true`, barcode)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, int, error) {
	const where = `
		WHERE active = true
		  AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%' OR barcode = $1)
		  AND ($2 = '' OR category_id = $2)`
	search := strings.TrimSpace(filter.Search)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products`+where, search, filter.CategoryID).Scan(&total); err != nil {
		return nil, 0, classify("count products", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+where+`
		ORDER BY name ASC
		LIMIT $3 OFFSET $4
	`, search, filter.CategoryID, nullLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, 0, classify("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, classify("scan product", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("list products", err)
	}
	return products, total, nil
}

func (s *Store) CountLowStock(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM products
		WHERE active = true AND stock_quantity <= low_stock_threshold
	`).Scan(&count)
	if err != nil {
		return 0, classify("count low stock", err)
	}
	return count, nil
}

func (s *Store) ListInventoryLogs(ctx context.Context, productID string, limit int) ([]domain.InventoryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, type, quantity, previous_stock, new_stock, reference_id, user_id, note, created_at
		FROM inventory_logs
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, classify("list inventory logs", err)
	}
	defer rows.Close()

	logs := make([]domain.InventoryLog, 0, limit)
	for rows.Next() {
		var entry domain.InventoryLog
		if err := rows.Scan(
			&entry.ID, &entry.ProductID, &entry.Type, &entry.Quantity, &entry.PreviousStock, &entry.NewStock,
			&entry.ReferenceID, &entry.UserID, &entry.Note, &entry.Timestamp,
		); err != nil {
			return nil, classify("scan inventory log", err)
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list inventory logs", err)
	}
	return logs, nil
}

const categoryColumns = `id, name, description, created_at, updated_at`

func scanCategory(row rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	created, err := scanCategory(s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+categoryColumns,
		category.ID, category.Name, category.Description, category.CreatedAt, category.UpdatedAt,
	))
	if err != nil {
		return nil, classify("create category", err)
	}
	return created, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	updated, err := scanCategory(s.db.QueryRowContext(ctx, `
		UPDATE categories SET name = $2, description = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+categoryColumns,
		category.ID, category.Name, category.Description, category.UpdatedAt,
	))
	if err != nil {
		return nil, classify("update category", err)
	}
	return updated, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	category, err := scanCategory(s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if err != nil {
		return nil, classify("get category", err)
	}
	return category, nil
}

func (s *Store) ListCategories(ctx context.Context, limit int, offset int) ([]domain.Category, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM categories`).Scan(&total); err != nil {
		return nil, 0, classify("count categories", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM categories
		ORDER BY name ASC
		LIMIT $1 OFFSET $2
	`, nullLimit(limit), max(offset, 0))
	if err != nil {
		return nil, 0, classify("list categories", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, classify("scan category", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("list categories", err)
	}
	return categories, total, nil
}

// DeleteCategory relies on the products foreign key; a referenced
// category surfaces as ErrConflict.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return classify("delete category", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

const customerColumns = `
	id, name, phone, email, address, gstin, loyalty_points, credit_limit,
	outstanding_balance, last_visit_at, created_at, updated_at`

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var (
		c         domain.Customer
		lastVisit sql.NullTime
	)
	if err := row.Scan(
		&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.GSTIN, &c.LoyaltyPoints, &c.CreditLimit,
		&c.OutstandingBalance, &lastVisit, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.LastVisitAt = timePtr(lastVisit)
	return &c, nil
}

func getCustomer(ctx context.Context, q queryer, id string, lock bool) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	customer, err := scanCustomer(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify("get customer", err)
	}
	return customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	customer.Phone = strings.TrimSpace(customer.Phone)
	if strings.TrimSpace(customer.Name) == "" || customer.Phone == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}

	created, err := scanCustomer(s.db.QueryRowContext(ctx, `
		INSERT INTO customers (
			id, name, phone, email, address, gstin, loyalty_points, credit_limit,
			outstanding_balance, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, 0, $8, $9)
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Phone, customer.Email, customer.Address, customer.GSTIN,
		customer.CreditLimit, customer.CreatedAt, customer.UpdatedAt,
	))
	if err != nil {
		return nil, classify("create customer", err)
	}
	return created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	updated, err := scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers SET
			name = $2, phone = $3, email = $4, address = $5, gstin = $6, credit_limit = $7, updated_at = $8
		WHERE id = $1
		RETURNING `+customerColumns,
		customer.ID, customer.Name, customer.Phone, customer.Email, customer.Address, customer.GSTIN,
		customer.CreditLimit, customer.UpdatedAt,
	))
	if err != nil {
		return nil, classify("update customer", err)
	}
	return updated, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, id, false)
}

func (s *Store) ListCustomers(ctx context.Context, filter domain.CustomerFilter) ([]domain.Customer, int, error) {
	const where = ` WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone LIKE '%' || $1 || '%')`
	search := strings.TrimSpace(filter.Search)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM customers`+where, search).Scan(&total); err != nil {
		return nil, 0, classify("count customers", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers`+where+`
		ORDER BY name ASC
		LIMIT $2 OFFSET $3
	`, search, nullLimit(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, 0, classify("list customers", err)
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, classify("scan customer", err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classify("list customers", err)
	}
	return customers, total, nil
}

// DeleteCustomer only removes settled customers. Sales keep their foreign
// key, so a customer with history surfaces as ErrConflict.
func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1 AND outstanding_balance = 0`, id)
	if err != nil {
		return classify("delete customer", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("delete customer", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := getCustomer(ctx, s.db, id, false); err != nil {
		return err
	}
	return store.ErrConflict
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, true, $4)
	`, username, user.Password, user.Role, user.CreatedAt)
	return classify("create user", err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, classify("list users", err)
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return classify("update user password", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}
