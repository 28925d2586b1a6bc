package order

import (
	"context"
	"database/sql"
	stdErrors "errors"

	core "orderdesk/data/db"
	"orderdesk/data/db/dialect"
	"orderdesk/domain/entity"
	"orderdesk/domain/repository"
)

// SQLSchema orders 与 order_items 表结构
const SQLSchema = `
CREATE TABLE IF NOT EXISTS orders (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT    NOT NULL UNIQUE,
	external_id TEXT    NOT NULL UNIQUE,
	client_id   TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_client_id ON orders (client_id);
CREATE TABLE IF NOT EXISTS order_items (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id    TEXT    NOT NULL,
	product_id  TEXT    NOT NULL,
	external_id TEXT    NOT NULL,
	price       REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items (order_id);
`

const (
	selectOrders = "SELECT id, external_id, client_id, created_at, updated_at FROM orders"
	selectItems  = "SELECT order_id, product_id, external_id, price FROM order_items"
)

type scanner interface {
	Scan(dest ...any) error
}

// SQLRepository 基于 core.IDatabase 的 Order 仓储
type SQLRepository struct {
	db      core.IDatabase
	dialect dialect.Dialect
	now     entity.Clock
}

// NewSQLRepository 创建 SQL 仓储
func NewSQLRepository(db core.IDatabase, clock entity.Clock) *SQLRepository {
	if clock == nil {
		clock = entity.SystemClock
	}
	return &SQLRepository{db: db, dialect: dialect.FromDatabase(db), now: clock}
}

// Create 在一个事务内写入订单与明细
func (r *SQLRepository) Create(ctx context.Context, externalID, clientID string, items []ItemInput) (*WithItems, error) {
	o := &Order{ExternalID: externalID, ClientID: clientID}
	o.Init(r.now())
	bound := bindItems(o.ID, items)

	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		_, err := tx.Exec(ctx,
			"INSERT INTO orders (id, external_id, client_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
			o.ID, o.ExternalID, o.ClientID, core.UnixNano(o.CreatedAt), core.UnixNano(o.UpdatedAt))
		if err != nil {
			if r.dialect.IsUniqueViolation(err) {
				return repository.AlreadyExists(externalID, err)
			}
			return err
		}
		return insertItems(ctx, tx, bound)
	})
	if err != nil {
		return nil, err
	}
	return withItems(o, bound), nil
}

func (r *SQLRepository) FindAll(ctx context.Context) ([]*Order, error) {
	return r.queryOrders(ctx, selectOrders+" ORDER BY seq")
}

func (r *SQLRepository) FindByClientID(ctx context.Context, clientID string) ([]*Order, error) {
	return r.queryOrders(ctx, selectOrders+" WHERE client_id = ? ORDER BY seq", clientID)
}

// FindAllWithItems 两次查询后在内存中按 order_id 归组
func (r *SQLRepository) FindAllWithItems(ctx context.Context) ([]*WithItems, error) {
	orders, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, selectItems+" ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grouped := make(map[string][]Item, len(orders))
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		grouped[it.OrderID] = append(grouped[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*WithItems, 0, len(orders))
	for _, o := range orders {
		out = append(out, withItems(o, grouped[o.ID]))
	}
	return out, nil
}

func (r *SQLRepository) queryOrders(ctx context.Context, query string, args ...any) ([]*Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *SQLRepository) FindByID(ctx context.Context, id string) (*Order, error) {
	return findOne(ctx, r.db, "id", id)
}

func (r *SQLRepository) FindByExternalID(ctx context.Context, externalID string) (*Order, error) {
	return findOne(ctx, r.db, "external_id", externalID)
}

func (r *SQLRepository) FindByIDWithItems(ctx context.Context, id string) (*WithItems, error) {
	o, err := findOne(ctx, r.db, "id", id)
	if err != nil {
		return nil, err
	}
	items, err := findItems(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return withItems(o, items), nil
}

func (r *SQLRepository) Update(ctx context.Context, id string, patch Patch) (*Order, error) {
	var updated *Order
	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		o, err := findOne(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		patch.apply(o)
		o.Touch(r.now())
		_, err = tx.Exec(ctx,
			"UPDATE orders SET external_id = ?, client_id = ?, updated_at = ? WHERE id = ?",
			o.ExternalID, o.ClientID, core.UnixNano(o.UpdatedAt), id)
		if err != nil {
			if r.dialect.IsUniqueViolation(err) {
				return repository.AlreadyExists(o.ExternalID, err)
			}
			return err
		}
		updated = o
		return nil
	})
	return updated, err
}

func (r *SQLRepository) ReplaceItems(ctx context.Context, orderID string, items []ItemInput) ([]Item, error) {
	bound := bindItems(orderID, items)
	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		o, err := findOne(ctx, tx, "id", orderID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM order_items WHERE order_id = ?", orderID); err != nil {
			return err
		}
		if err := insertItems(ctx, tx, bound); err != nil {
			return err
		}
		o.Touch(r.now())
		_, err = tx.Exec(ctx, "UPDATE orders SET updated_at = ? WHERE id = ?", core.UnixNano(o.UpdatedAt), orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bound, nil
}

// Reconcile 在一个事务内改写 clientId 并替换明细
func (r *SQLRepository) Reconcile(ctx context.Context, orderID, clientID string, items []ItemInput) (*WithItems, error) {
	bound := bindItems(orderID, items)
	var reconciled *Order
	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		o, err := findOne(ctx, tx, "id", orderID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM order_items WHERE order_id = ?", orderID); err != nil {
			return err
		}
		if err := insertItems(ctx, tx, bound); err != nil {
			return err
		}
		o.ClientID = clientID
		o.Touch(r.now())
		_, err = tx.Exec(ctx, "UPDATE orders SET client_id = ?, updated_at = ? WHERE id = ?",
			o.ClientID, core.UnixNano(o.UpdatedAt), orderID)
		reconciled = o
		return err
	})
	if err != nil {
		return nil, err
	}
	return withItems(reconciled, bound), nil
}

func (r *SQLRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		if _, err := tx.Exec(ctx, "DELETE FROM order_items WHERE order_id = ?", id); err != nil {
			return err
		}
		res, err := tx.Exec(ctx, "DELETE FROM orders WHERE id = ?", id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	return deleted, err
}

func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders").Scan(&n)
	return n, err
}

func findOne(ctx context.Context, q core.IDatabase, column, value string) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, selectOrders+" WHERE "+column+" = ?", value))
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound(value)
	}
	return o, err
}

func findItems(ctx context.Context, q core.IDatabase, orderID string) ([]Item, error) {
	rows, err := q.Query(ctx, selectItems+" WHERE order_id = ? ORDER BY seq", orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func insertItems(ctx context.Context, tx core.ITransaction, items []Item) error {
	for _, it := range items {
		if _, err := tx.Exec(ctx,
			"INSERT INTO order_items (order_id, product_id, external_id, price) VALUES (?, ?, ?, ?)",
			it.OrderID, it.ProductID, it.ExternalID, it.Price); err != nil {
			return err
		}
	}
	return nil
}

func scanOrder(s scanner) (*Order, error) {
	var (
		o                Order
		created, updated int64
	)
	if err := s.Scan(&o.ID, &o.ExternalID, &o.ClientID, &created, &updated); err != nil {
		return nil, err
	}
	o.CreatedAt = core.FromUnixNano(created)
	o.UpdatedAt = core.FromUnixNano(updated)
	return &o, nil
}

func scanItem(s scanner) (Item, error) {
	var it Item
	err := s.Scan(&it.OrderID, &it.ProductID, &it.ExternalID, &it.Price)
	return it, err
}
