package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/marketplace/internal/core/domain"
)

//go:embed schema.sql
var schema string

// MySQL error numbers that indicate a transient condition.
const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errTooManyConns    = 1040
	errDuplicateEntry  = 1062
)

const (
	itemColumns  = `id, seller_id, name, category, description, image_url, price, available_quantity, created_at, updated_at`
	orderColumns = `id, item_id, customer_id, seller_id, quantity, price, status, address, created_at, updated_at`
)

type MySQLAdapter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the tables if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return mysqlErr("migrate", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var (
		item domain.Item
		desc sql.NullString
	)
	err := row.Scan(&item.ID, &item.SellerID, &item.Name, &item.Category, &desc, &item.ImageURL,
		&item.Price, &item.AvailableQuantity, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.Description = desc.String
	return &item, nil
}

func scanOrder(row rowScanner, extra ...any) (*domain.Order, error) {
	var order domain.Order
	dest := []any{&order.ID, &order.ItemID, &order.CustomerID, &order.SellerID, &order.Quantity,
		&order.Price, &order.Status, &order.Address, &order.CreatedAt, &order.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &order, nil
}

func (m *MySQLAdapter) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SellerID, item.Name, item.Category, item.Description, item.ImageURL,
		item.Price, item.AvailableQuantity, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return mysqlErr("insert item", err)
	}
	return nil
}

func (m *MySQLAdapter) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	item, err := scanItem(m.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE id = ?`, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mysqlErr("query item", err)
	}
	return item, nil
}

func (m *MySQLAdapter) DeleteItem(ctx context.Context, itemID, sellerID string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND seller_id = ?`, itemID, sellerID)
	if err != nil {
		return mysqlErr("delete item", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	if _, err := m.GetItem(ctx, itemID); err != nil {
		return err
	}
	return domain.ErrForbidden
}

func (m *MySQLAdapter) ListItems(ctx context.Context, limit int) ([]domain.Item, error) {
	return m.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items ORDER BY created_at DESC, id LIMIT ?`, limit)
}

func (m *MySQLAdapter) ListItemsBySeller(ctx context.Context, sellerID string) ([]domain.Item, error) {
	return m.queryItems(ctx, `
		SELECT `+itemColumns+` FROM items WHERE seller_id = ? ORDER BY created_at DESC, id`, sellerID)
}

func (m *MySQLAdapter) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mysqlErr("query items", err)
	}
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, mysqlErr("scan item", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, mysqlErr("iterate items", err)
	}
	return items, nil
}

// Reserve is a single conditional UPDATE; the row lock makes check and decrement atomic.
func (m *MySQLAdapter) Reserve(ctx context.Context, itemID string, amount int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE items
		SET available_quantity = available_quantity - ?, updated_at = ?
		WHERE id = ? AND available_quantity >= ?`,
		amount, m.now(), itemID, amount,
	)
	if err != nil {
		return mysqlErr("reserve stock", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	if _, err := m.GetItem(ctx, itemID); err != nil {
		return err
	}
	return domain.ErrInsufficientStock
}

func (m *MySQLAdapter) Release(ctx context.Context, itemID string, amount int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE items
		SET available_quantity = available_quantity + ?, updated_at = ?
		WHERE id = ?`,
		amount, m.now(), itemID,
	)
	if err != nil {
		return mysqlErr("release stock", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) Available(ctx context.Context, itemID string) (int, error) {
	var stock int
	err := m.db.QueryRowContext(ctx, `SELECT available_quantity FROM items WHERE id = ?`, itemID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, mysqlErr("query stock", err)
	}
	return stock, nil
}

func (m *MySQLAdapter) Seed(ctx context.Context, itemID string, quantity int) error {
	_, err := m.db.ExecContext(ctx, `UPDATE items SET available_quantity = ? WHERE id = ?`, quantity, itemID)
	if err != nil {
		return mysqlErr("seed stock", err)
	}
	return nil
}

// Remove is a no-op: the stock column is dropped with the item row.
func (m *MySQLAdapter) Remove(ctx context.Context, itemID string) error {
	return nil
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.ItemID, order.CustomerID, order.SellerID, order.Quantity,
		order.Price, order.Status, order.Address, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return mysqlErr("insert order", err)
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := scanOrder(m.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mysqlErr("query order", err)
	}
	return order, nil
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, m.now(), orderID, from,
	)
	if err != nil {
		return mysqlErr("update order status", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrIllegalTransition
	}
	return nil
}

func (m *MySQLAdapter) DeleteOrder(ctx context.Context, orderID string, from domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ? AND status = ?`, orderID, from)
	if err != nil {
		return mysqlErr("delete order", err)
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrIllegalTransition
	}
	return nil
}

const orderViewQuery = `
	SELECT o.id, o.item_id, o.customer_id, o.seller_id, o.quantity, o.price, o.status, o.address,
		o.created_at, o.updated_at, COALESCE(i.name, ''), COALESCE(i.category, ''), COALESCE(i.image_url, '')
	FROM orders o
	LEFT JOIN items i ON i.id = o.item_id`

func (m *MySQLAdapter) CustomerOrders(ctx context.Context, customerID string) ([]domain.OrderView, error) {
	return m.queryOrderViews(ctx, orderViewQuery+` WHERE o.customer_id = ? ORDER BY o.created_at DESC, o.id`, customerID)
}

func (m *MySQLAdapter) SellerOrders(ctx context.Context, sellerID string) ([]domain.OrderView, error) {
	return m.queryOrderViews(ctx, orderViewQuery+` WHERE o.seller_id = ? ORDER BY o.created_at DESC, o.id`, sellerID)
}

func (m *MySQLAdapter) queryOrderViews(ctx context.Context, query string, args ...any) ([]domain.OrderView, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mysqlErr("query orders", err)
	}
	defer rows.Close()

	views := make([]domain.OrderView, 0)
	for rows.Next() {
		var view domain.OrderView
		order, err := scanOrder(rows, &view.ItemName, &view.ItemCategory, &view.ItemImageURL)
		if err != nil {
			return nil, mysqlErr("scan order", err)
		}
		view.Order = *order
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, mysqlErr("iterate orders", err)
	}
	return views, nil
}

func (m *MySQLAdapter) CreateAccount(ctx context.Context, account domain.Account) (*domain.Account, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT IGNORE INTO accounts (id, name, role, upgrade_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID, account.Name, account.Role, account.UpgradeStatus, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return nil, mysqlErr("insert account", err)
	}
	return m.GetAccount(ctx, account.ID)
}

func (m *MySQLAdapter) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var a domain.Account
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, role, upgrade_status, created_at, updated_at
		FROM accounts WHERE id = ?`, accountID,
	).Scan(&a.ID, &a.Name, &a.Role, &a.UpgradeStatus, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, mysqlErr("query account", err)
	}
	return &a, nil
}

func (m *MySQLAdapter) ListAccounts(ctx context.Context, excludeID string) ([]domain.Account, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, name, role, upgrade_status, created_at, updated_at
		FROM accounts WHERE id <> ? ORDER BY id`, excludeID)
	if err != nil {
		return nil, mysqlErr("query accounts", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.UpgradeStatus, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, mysqlErr("scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mysqlErr("iterate accounts", err)
	}
	return accounts, nil
}

func (m *MySQLAdapter) RequestUpgrade(ctx context.Context, accountID string) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE accounts SET upgrade_status = ?, updated_at = ?
		WHERE id = ? AND upgrade_status <> ?`,
		domain.UpgradeStatusRequested, m.now(), accountID, domain.UpgradeStatusRequested,
	)
	if err != nil {
		return mysqlErr("request upgrade", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	if _, err := m.GetAccount(ctx, accountID); err != nil {
		return err
	}
	return domain.ErrDuplicateRequest
}

func (m *MySQLAdapter) ResolveUpgrade(ctx context.Context, accountID string, role domain.Role) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE accounts SET role = ?, upgrade_status = ?, updated_at = ?
		WHERE id = ?`,
		role, domain.UpgradeStatusVerified, m.now(), accountID,
	)
	if err != nil {
		return mysqlErr("resolve upgrade", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}
	_, err = m.GetAccount(ctx, accountID)
	return err
}

// mysqlErr maps driver failures onto the domain taxonomy.
func mysqlErr(op string, err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDuplicateEntry:
			return fmt.Errorf("%s: %w", op, domain.ErrDuplicateRequest)
		case errLockWaitTimeout, errDeadlock, errTooManyConns:
			return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
