package departments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/db"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

const departmentColumns = `id::text, name, COALESCE(parent_id::text, ''), is_visible, is_active, require_explicit_membership, is_system`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanDepartment(row pgx.Row) (Department, error) {
	var d Department
	err := row.Scan(&d.ID, &d.Name, &d.ParentID, &d.IsVisible, &d.IsActive, &d.RequireExplicitMembership, &d.IsSystem)
	return d, err
}

// FindDepartment fetches a department by id.
func (r *Repository) FindDepartment(ctx context.Context, id string) (Department, error) {
	d, err := scanDepartment(r.pool.QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Department{}, shared.ErrNotFound
		}
		return Department{}, err
	}
	return d, nil
}

// FindChildren lists the direct children of parentID.
func (r *Repository) FindChildren(ctx context.Context, parentID string) ([]Department, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+departmentColumns+` FROM departments WHERE parent_id = $1::uuid ORDER BY name`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Department
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// FindMembershipsForUser lists every membership row of the given type, active or not.
func (r *Repository) FindMembershipsForUser(ctx context.Context, userID string, userType users.UserType) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id::text, department_id::text, user_type, roles, is_primary, is_active, joined_at
	FROM department_memberships WHERE user_id = $1::uuid AND user_type = $2 ORDER BY is_primary DESC, joined_at`, userID, string(userType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var (
			m        Membership
			userType string
		)
		if err := rows.Scan(&m.UserID, &m.DepartmentID, &userType, &m.Roles, &m.IsPrimary, &m.IsActive, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.UserType = users.UserType(userType)
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertMembership creates or reactivates a membership and replaces its roles.
// A primary membership clears the primary flag on the user's other rows.
func (r *Repository) UpsertMembership(ctx context.Context, in GrantInput) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if in.IsPrimary {
			if _, err := tx.Exec(ctx, `UPDATE department_memberships SET is_primary = FALSE
			WHERE user_id = $1::uuid AND user_type = $2 AND department_id <> $3::uuid`, in.UserID, string(in.UserType), in.DepartmentID); err != nil {
				return fmt.Errorf("departments: clear primary: %w", err)
			}
		}
		_, err := tx.Exec(ctx, `INSERT INTO department_memberships (user_id, department_id, user_type, roles, is_primary, is_active, joined_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, TRUE, NOW())
		ON CONFLICT (user_id, department_id, user_type)
		DO UPDATE SET roles = EXCLUDED.roles, is_primary = EXCLUDED.is_primary, is_active = TRUE`,
			in.UserID, in.DepartmentID, string(in.UserType), in.Roles, in.IsPrimary)
		if err != nil {
			return fmt.Errorf("departments: upsert membership: %w", err)
		}
		return nil
	})
}

// DeactivateMembership clears the active flag of every membership row of the pair.
func (r *Repository) DeactivateMembership(ctx context.Context, userID, departmentID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE department_memberships SET is_active = FALSE
	WHERE user_id = $1::uuid AND department_id = $2::uuid AND is_active`, userID, departmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
