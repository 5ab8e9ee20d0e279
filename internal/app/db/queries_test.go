package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comfycollab/internal/app/user"
)

// rowFunc adapts a closure to pgx.Row.
type rowFunc func(dest ...any) error

func (f rowFunc) Scan(dest ...any) error { return f(dest...) }

// stubDB records the last statement and answers QueryRow with row.
type stubDB struct {
	sql  string
	args []any
	row  pgx.Row
}

func (s *stubDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.sql, s.args = sql, args
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (s *stubDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.sql, s.args = sql, args
	return nil, errors.New("not supported")
}

func (s *stubDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s.sql, s.args = sql, args
	return s.row
}

func aliceRow(dest ...any) error {
	*dest[0].(*int64) = 7
	*dest[1].(*string) = "alice"
	*dest[2].(*string) = "hash"
	*dest[3].(*pgtype.Text) = pgtype.Text{String: "Alice", Valid: true}
	*dest[4].(*pgtype.Text) = pgtype.Text{}
	*dest[5].(*string) = "#ff0000"
	*dest[6].(*string) = user.RoleAdmin
	*dest[7].(*bool) = true
	return nil
}

func TestGetUserByUsername(t *testing.T) {
	stub := &stubDB{row: rowFunc(aliceRow)}
	q := New(stub)

	u, err := q.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, []any{"alice"}, stub.args)
	assert.Contains(t, stub.sql, "WHERE username = $1")
	assert.Equal(t, user.Identity{
		ID:          "7",
		Username:    "alice",
		DisplayName: "Alice",
		Color:       "#ff0000",
		Role:        user.RoleAdmin,
	}, u.Identity())
	assert.True(t, u.IsActive)
}

func TestGetUserByIDNotFound(t *testing.T) {
	stub := &stubDB{row: rowFunc(func(...any) error { return pgx.ErrNoRows })}

	_, err := New(stub).GetUserByID(context.Background(), 99)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsUniqueViolation(err))
}

func TestCreateUserPassesColumns(t *testing.T) {
	stub := &stubDB{row: rowFunc(aliceRow)}

	_, err := New(stub).CreateUser(context.Background(), CreateUserParams{
		Username:     "alice",
		PasswordHash: "hash",
	})
	require.NoError(t, err)
	assert.Contains(t, stub.sql, "INSERT INTO users")
	assert.Len(t, stub.args, 6)
}

func TestUpdateLastLogin(t *testing.T) {
	stub := &stubDB{}

	require.NoError(t, New(stub).UpdateLastLogin(context.Background(), 7))
	assert.Equal(t, []any{int64(7)}, stub.args)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := embedMigrations.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_users.sql", entries[0].Name())
}
