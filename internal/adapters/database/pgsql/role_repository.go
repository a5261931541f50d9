package pgsql

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenledger-io/greenledger_backend/internal/core/domain"
	"github.com/greenledger-io/greenledger_backend/internal/core/ports/repositories"
)

type PgxRoleRepository struct {
	pool *pgxpool.Pool
}

// NewPgxRoleRepository creates a new repository for project role assignments.
func NewPgxRoleRepository(pool *pgxpool.Pool) repositories.RoleRepositoryFacade {
	return &PgxRoleRepository{pool: pool}
}

var _ repositories.RoleRepositoryFacade = (*PgxRoleRepository)(nil)

func (r *PgxRoleRepository) FindProjectRoles(ctx context.Context, userID, projectID string) ([]domain.ApproverRole, error) {
	query := `
		SELECT role
		FROM project_roles
		WHERE user_id = $1 AND project_id = $2
		ORDER BY role;
	`
	rows, err := r.pool.Query(ctx, query, userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles for user %s in project %s: %w", userID, projectID, err)
	}
	defer rows.Close()

	roles := []domain.ApproverRole{}
	for rows.Next() {
		var role domain.ApproverRole
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("failed to scan role row: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating role rows: %w", err)
	}
	return roles, nil
}
