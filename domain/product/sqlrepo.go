package product

import (
	"context"
	"database/sql"
	stdErrors "errors"

	core "orderdesk/data/db"
	"orderdesk/data/db/dialect"
	"orderdesk/domain/entity"
	"orderdesk/domain/repository"
)

// SQLSchema products 与 product_costs 表结构
//
// product_cost_id 不设外键：成本是弱引用，允许悬空。
const SQLSchema = `
CREATE TABLE IF NOT EXISTS product_costs (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	cost       REAL    NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS products (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT    NOT NULL UNIQUE,
	external_id     TEXT    NOT NULL UNIQUE,
	name            TEXT    NOT NULL,
	product_cost_id TEXT,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
`

const (
	selectProducts = "SELECT id, external_id, name, product_cost_id, created_at, updated_at FROM products"
	selectCosts    = "SELECT id, cost, created_at, updated_at FROM product_costs"
)

type scanner interface {
	Scan(dest ...any) error
}

// SQLRepository 基于 core.IDatabase 的 Product 仓储
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

func (r *SQLRepository) Create(ctx context.Context, p *Product) (*Product, error) {
	stored := p.clone()
	stored.Init(r.now())
	_, err := r.db.Exec(ctx,
		"INSERT INTO products (id, external_id, name, product_cost_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		stored.ID, stored.ExternalID, stored.Name, nullable(stored.ProductCostID),
		core.UnixNano(stored.CreatedAt), core.UnixNano(stored.UpdatedAt))
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return nil, repository.AlreadyExists(stored.ExternalID, err)
		}
		return nil, err
	}
	return stored, nil
}

func (r *SQLRepository) FindAll(ctx context.Context) ([]*Product, error) {
	rows, err := r.db.Query(ctx, selectProducts+" ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLRepository) FindByID(ctx context.Context, id string) (*Product, error) {
	return r.findOne(ctx, r.db, "id", id)
}

func (r *SQLRepository) FindByExternalID(ctx context.Context, externalID string) (*Product, error) {
	return r.findOne(ctx, r.db, "external_id", externalID)
}

func (r *SQLRepository) findOne(ctx context.Context, q core.IDatabase, column, value string) (*Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, selectProducts+" WHERE "+column+" = ?", value))
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound(value)
	}
	return p, err
}

func (r *SQLRepository) Update(ctx context.Context, id string, patch Patch) (*Product, error) {
	var updated *Product
	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		p, err := r.findOne(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		patch.apply(p)
		p.Touch(r.now())
		_, err = tx.Exec(ctx,
			"UPDATE products SET external_id = ?, name = ?, product_cost_id = ?, updated_at = ? WHERE id = ?",
			p.ExternalID, p.Name, nullable(p.ProductCostID), core.UnixNano(p.UpdatedAt), id)
		if err != nil {
			if r.dialect.IsUniqueViolation(err) {
				return repository.AlreadyExists(p.ExternalID, err)
			}
			return err
		}
		updated = p
		return nil
	})
	return updated, err
}

func (r *SQLRepository) Delete(ctx context.Context, id string) (bool, error) {
	return deleteByID(ctx, r.db, "products", id)
}

func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&n)
	return n, err
}

// SQLCostRepository 基于 core.IDatabase 的 ProductCost 仓储
type SQLCostRepository struct {
	db  core.IDatabase
	now entity.Clock
}

// NewSQLCostRepository 创建 SQL 成本仓储
func NewSQLCostRepository(db core.IDatabase, clock entity.Clock) *SQLCostRepository {
	if clock == nil {
		clock = entity.SystemClock
	}
	return &SQLCostRepository{db: db, now: clock}
}

func (r *SQLCostRepository) Create(ctx context.Context, c *ProductCost) (*ProductCost, error) {
	stored := c.clone()
	stored.Init(r.now())
	_, err := r.db.Exec(ctx,
		"INSERT INTO product_costs (id, cost, created_at, updated_at) VALUES (?, ?, ?, ?)",
		stored.ID, stored.Cost, core.UnixNano(stored.CreatedAt), core.UnixNano(stored.UpdatedAt))
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *SQLCostRepository) FindAll(ctx context.Context) ([]*ProductCost, error) {
	rows, err := r.db.Query(ctx, selectCosts+" ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*ProductCost, 0)
	for rows.Next() {
		c, err := scanCost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLCostRepository) FindByID(ctx context.Context, id string) (*ProductCost, error) {
	c, err := scanCost(r.db.QueryRow(ctx, selectCosts+" WHERE id = ?", id))
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound(id)
	}
	return c, err
}

func (r *SQLCostRepository) Update(ctx context.Context, id string, cost float64) (*ProductCost, error) {
	var updated *ProductCost
	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		c, err := scanCost(tx.QueryRow(ctx, selectCosts+" WHERE id = ?", id))
		if stdErrors.Is(err, sql.ErrNoRows) {
			return repository.NotFound(id)
		}
		if err != nil {
			return err
		}
		c.Cost = cost
		c.Touch(r.now())
		if _, err := tx.Exec(ctx, "UPDATE product_costs SET cost = ?, updated_at = ? WHERE id = ?",
			c.Cost, core.UnixNano(c.UpdatedAt), id); err != nil {
			return err
		}
		updated = c
		return nil
	})
	return updated, err
}

func (r *SQLCostRepository) Delete(ctx context.Context, id string) (bool, error) {
	return deleteByID(ctx, r.db, "product_costs", id)
}

func deleteByID(ctx context.Context, db core.IDatabase, table, id string) (bool, error) {
	res, err := db.Exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func scanProduct(s scanner) (*Product, error) {
	var (
		p                Product
		costID           sql.NullString
		created, updated int64
	)
	if err := s.Scan(&p.ID, &p.ExternalID, &p.Name, &costID, &created, &updated); err != nil {
		return nil, err
	}
	if costID.Valid {
		id := costID.String
		p.ProductCostID = &id
	}
	p.CreatedAt = core.FromUnixNano(created)
	p.UpdatedAt = core.FromUnixNano(updated)
	return &p, nil
}

func scanCost(s scanner) (*ProductCost, error) {
	var (
		c                ProductCost
		created, updated int64
	)
	if err := s.Scan(&c.ID, &c.Cost, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = core.FromUnixNano(created)
	c.UpdatedAt = core.FromUnixNano(updated)
	return &c, nil
}
