package dialect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRebind_Postgres(t *testing.T) {
	d := New("postgres")
	got := d.Rebind("SELECT * FROM orders WHERE client_id = ? AND created_at >= ?")
	assert.Equal(t, "SELECT * FROM orders WHERE client_id = $1 AND created_at >= $2", got)
}

func TestRebind_NoChangeForSQLite(t *testing.T) {
	orig := "DELETE FROM order_items WHERE order_id = ?"
	assert.Equal(t, orig, New("sqlite3").Rebind(orig))
	assert.Equal(t, orig, New("unknown").Rebind(orig))
}

func TestIsUniqueViolation(t *testing.T) {
	sqlite := New("sqlite")
	assert.True(t, sqlite.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: clients.email (2067)")))
	assert.False(t, sqlite.IsUniqueViolation(errors.New("no such table: clients")))
	assert.False(t, sqlite.IsUniqueViolation(nil))

	pg := New("postgres")
	assert.True(t, pg.IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "orders_external_id_key"`)))
}
