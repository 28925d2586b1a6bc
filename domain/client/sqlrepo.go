package client

import (
	"context"
	"database/sql"
	stdErrors "errors"

	core "orderdesk/data/db"
	"orderdesk/data/db/dialect"
	"orderdesk/domain/entity"
	"orderdesk/domain/repository"
)

// SQLSchema clients 表结构；seq 记录插入顺序
const SQLSchema = `
CREATE TABLE IF NOT EXISTS clients (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	name       TEXT    NOT NULL,
	email      TEXT    NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

const selectColumns = "SELECT id, name, email, created_at, updated_at FROM clients"

// SQLRepository 基于 core.IDatabase 的 Client 仓储
type SQLRepository struct {
	db      core.IDatabase
	dialect dialect.Dialect
	now     entity.Clock
}

// NewSQLRepository 创建 SQL 仓储，调用方负责先执行 SQLSchema
func NewSQLRepository(db core.IDatabase, clock entity.Clock) *SQLRepository {
	if clock == nil {
		clock = entity.SystemClock
	}
	return &SQLRepository{db: db, dialect: dialect.FromDatabase(db), now: clock}
}

func (r *SQLRepository) Create(ctx context.Context, c *Client) (*Client, error) {
	stored := c.clone()
	stored.Init(r.now())
	_, err := r.db.Exec(ctx,
		"INSERT INTO clients (id, name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		stored.ID, stored.Name, stored.Email, core.UnixNano(stored.CreatedAt), core.UnixNano(stored.UpdatedAt))
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return nil, repository.AlreadyExists(stored.Email, err)
		}
		return nil, err
	}
	return stored, nil
}

func (r *SQLRepository) FindAll(ctx context.Context) ([]*Client, error) {
	rows, err := r.db.Query(ctx, selectColumns+" ORDER BY seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLRepository) FindByID(ctx context.Context, id string) (*Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, selectColumns+" WHERE id = ?", id))
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound(id)
	}
	return c, err
}

func (r *SQLRepository) FindByEmail(ctx context.Context, email string) (*Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, selectColumns+" WHERE email = ?", email))
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, repository.NotFound(email)
	}
	return c, err
}

func (r *SQLRepository) Update(ctx context.Context, id string, patch Patch) (*Client, error) {
	var updated *Client
	err := core.InTx(ctx, r.db, func(tx core.ITransaction) error {
		c, err := scanClient(tx.QueryRow(ctx, selectColumns+" WHERE id = ?", id))
		if stdErrors.Is(err, sql.ErrNoRows) {
			return repository.NotFound(id)
		}
		if err != nil {
			return err
		}
		patch.apply(c)
		c.Touch(r.now())
		_, err = tx.Exec(ctx,
			"UPDATE clients SET name = ?, email = ?, updated_at = ? WHERE id = ?",
			c.Name, c.Email, core.UnixNano(c.UpdatedAt), id)
		if err != nil {
			if r.dialect.IsUniqueViolation(err) {
				return repository.AlreadyExists(c.Email, err)
			}
			return err
		}
		updated = c
		return nil
	})
	return updated, err
}

func (r *SQLRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.Exec(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM clients").Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanClient(s scanner) (*Client, error) {
	var (
		c                Client
		created, updated int64
	)
	if err := s.Scan(&c.ID, &c.Name, &c.Email, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = core.FromUnixNano(created)
	c.UpdatedAt = core.FromUnixNano(updated)
	return &c, nil
}
