package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-lms/odyssey-lms/internal/shared"
	"github.com/odyssey-lms/odyssey-lms/internal/users"
)

const roleColumns = `name, description, access_rights, user_type, is_active, created_at, updated_at`

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanRole(row pgx.Row) (RoleDefinition, error) {
	var (
		d        RoleDefinition
		userType string
	)
	if err := row.Scan(&d.Name, &d.Description, &d.AccessRights, &userType, &d.IsActive, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return RoleDefinition{}, err
	}
	d.UserType = users.UserType(userType)
	return d, nil
}

func (r *Repository) queryRoles(ctx context.Context, sql string, args ...any) ([]RoleDefinition, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoleDefinition
	for rows.Next() {
		d, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListRoles returns every role ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]RoleDefinition, error) {
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM role_definitions ORDER BY name`)
}

// FindRoles returns the definitions of the given names; unknown names are omitted.
func (r *Repository) FindRoles(ctx context.Context, names []string) ([]RoleDefinition, error) {
	if len(names) == 0 {
		return nil, nil
	}
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM role_definitions WHERE name = ANY($1)`, names)
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, in CreateInput) (RoleDefinition, error) {
	d, err := scanRole(r.pool.QueryRow(ctx, `INSERT INTO role_definitions (name, description, access_rights, user_type, is_active, created_at, updated_at)
	VALUES ($1, $2, $3, $4, TRUE, NOW(), NOW()) RETURNING `+roleColumns,
		in.Name, in.Description, in.AccessRights, string(in.UserType)))
	if err != nil {
		if isUniqueViolation(err) {
			return RoleDefinition{}, ErrRoleExists
		}
		return RoleDefinition{}, err
	}
	return d, nil
}

// UpdateRights replaces the access rights of name.
func (r *Repository) UpdateRights(ctx context.Context, name string, rights []string) (RoleDefinition, error) {
	d, err := scanRole(r.pool.QueryRow(ctx, `UPDATE role_definitions SET access_rights = $2, updated_at = NOW()
	WHERE name = $1 RETURNING `+roleColumns, name, rights))
	if errors.Is(err, pgx.ErrNoRows) {
		return RoleDefinition{}, shared.ErrNotFound
	}
	return d, err
}

// Deactivate clears the active flag of name. Memberships keep the role name.
func (r *Repository) Deactivate(ctx context.Context, name string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE role_definitions SET is_active = FALSE, updated_at = NOW() WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
