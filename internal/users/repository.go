package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindUser fetches a user by id.
func (r *Repository) FindUser(ctx context.Context, id string) (User, error) {
	const query = `SELECT id::text, email, name, user_types, is_active,
	COALESCE(last_selected_department::text, ''), created_at, updated_at
	FROM users WHERE id = $1::uuid`
	var (
		user  User
		types []string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &user.Name, &types, &user.IsActive,
		&user.LastSelectedDepartment, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	user.UserTypes = make([]UserType, 0, len(types))
	for _, t := range types {
		user.UserTypes = append(user.UserTypes, UserType(t))
	}
	return user, nil
}

// SetLastSelectedDepartment records the department the user last switched to.
func (r *Repository) SetLastSelectedDepartment(ctx context.Context, userID, departmentID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET last_selected_department = $2::uuid, updated_at = NOW() WHERE id = $1::uuid`, userID, departmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
