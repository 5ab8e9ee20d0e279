package db

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"comfycollab/internal/app/user"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Queries runs the user statements against a pool or a transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// User is one row of the users table.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  pgtype.Text
	Email        pgtype.Text
	Color        string
	Role         string
	IsActive     bool
	CreatedAt    pgtype.Timestamptz
	LastLoginAt  pgtype.Timestamptz
}

// Identity is the presence identity of the row.
func (u User) Identity() user.Identity {
	return user.Identity{
		ID:          strconv.FormatInt(u.ID, 10),
		Username:    u.Username,
		DisplayName: u.DisplayName.String,
		Color:       u.Color,
		Role:        u.Role,
	}
}

const userColumns = `id, username, password_hash, display_name, email, color, role, is_active, created_at, last_login_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Email,
		&u.Color,
		&u.Role,
		&u.IsActive,
		&u.CreatedAt,
		&u.LastLoginAt,
	)
	return u, err
}

const getUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE username = $1`

func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByUsername, username))
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByID, id))
}

const listUsers = `SELECT ` + userColumns + ` FROM users ORDER BY id`

func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	return items, rows.Err()
}

// CreateUserParams holds the columns a new account is created with.
// Color and Role fall back to the column defaults when empty.
type CreateUserParams struct {
	Username     string
	PasswordHash string
	DisplayName  pgtype.Text
	Email        pgtype.Text
	Color        string
	Role         string
}

const createUser = `INSERT INTO users (username, password_hash, display_name, email, color, role)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), '#3498db'), COALESCE(NULLIF($6, ''), 'user'))
RETURNING ` + userColumns

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	return scanUser(q.db.QueryRow(ctx, createUser,
		arg.Username,
		arg.PasswordHash,
		arg.DisplayName,
		arg.Email,
		arg.Color,
		arg.Role,
	))
}

const updateLastLogin = `UPDATE users SET last_login_at = NOW() WHERE id = $1`

func (q *Queries) UpdateLastLogin(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, updateLastLogin, id)
	return err
}
