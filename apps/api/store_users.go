package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

var (
	errUserNotFound = notFound("user_not_found", "User not found")
	errUserExists   = &apiError{Status: http.StatusConflict, Code: "user_exists", Message: "A user with this email already exists"}
)

type User struct {
	ID        int    `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type UserInput struct {
	Email    string
	Password string
	Role     string
}

type UserUpdate struct {
	Role     string
	IsActive bool
}

type PaginatedUsers struct {
	Users      []User `json:"users"`
	TotalCount int    `json:"total_count"`
}

const userColumns = `id, email, role, is_active, created_at, updated_at`

func scanUser(row rowScanner, extra ...any) (User, error) {
	var u User
	var createdAt, updatedAt time.Time
	dest := append([]any{&u.ID, &u.Email, &u.Role, &u.IsActive, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return User{}, err
	}
	u.CreatedAt = createdAt.UTC().Format(time.RFC3339)
	u.UpdatedAt = updatedAt.UTC().Format(time.RFC3339)
	return u, nil
}

func (a *App) storeListUsersPaginated(ctx context.Context, filters map[string]any, page, pageSize int) (*PaginatedUsers, error) {
	query, args := buildPaginatedUsersQuery(filters, page, pageSize)
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &PaginatedUsers{Users: []User{}}
	for rows.Next() {
		u, err := scanUser(rows, &result.TotalCount)
		if err != nil {
			return nil, err
		}
		result.Users = append(result.Users, u)
	}
	return result, rows.Err()
}

func buildPaginatedUsersQuery(filters map[string]any, page, pageSize int) (string, []any) {
	if page < 1 {
		page = 1
	}
	query := `SELECT ` + userColumns + `, COUNT(*) OVER() AS total_count FROM users`
	whereClause, args := buildUsersWhereClause(filters)
	if whereClause != "" {
		query += " WHERE " + whereClause
	}
	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, pageSize, (page-1)*pageSize)
	return query, args
}

func buildUsersWhereClause(filters map[string]any) (string, []any) {
	where := []string{}
	args := []any{}

	if q, ok := filters["q"].(string); ok && q != "" {
		where = append(where, fmt.Sprintf("email ILIKE $%d", len(args)+1))
		args = append(args, "%"+q+"%")
	}
	if status, ok := filters["status"].(string); ok && status != "" {
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, status == "active")
	}
	if role, ok := filters["role"].(string); ok && role != "" {
		where = append(where, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, role)
	}
	return strings.Join(where, " AND "), args
}

func (a *App) storeCreateUser(ctx context.Context, input UserInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	row := a.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		input.Email, string(hash), input.Role,
	)
	u, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, errUserExists
		}
		return nil, err
	}
	return &u, nil
}

func (a *App) storeUpdateUser(ctx context.Context, id int, update UserUpdate) (*User, error) {
	row := a.db.QueryRowContext(ctx, `
		UPDATE users
		SET role = $1, is_active = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING `+userColumns,
		update.Role, update.IsActive, id,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (a *App) storeDeleteUser(ctx context.Context, id int) error {
	result, err := a.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return errUserNotFound
	}
	return nil
}

func (a *App) storeBulkUpdateUserStatus(ctx context.Context, ids []int, isActive bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids)+1)
	args[0] = isActive
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args[i+1] = id
	}
	query := fmt.Sprintf("UPDATE users SET is_active = $1, updated_at = NOW() WHERE id IN (%s)", strings.Join(placeholders, ","))
	result, err := a.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (a *App) storeGetUser(ctx context.Context, id int) (*User, error) {
	u, err := scanUser(a.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
