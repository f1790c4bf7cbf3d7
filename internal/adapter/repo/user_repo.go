package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

// UserRepositoryPG manages the account rows the ledger hangs off.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// Upsert creates the user if missing and returns the stored row.
func (r *UserRepositoryPG) Upsert(ctx context.Context, id, email string) (*domain.User, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest)
	}
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QUpsertUser, id, email))
}

func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id))
}

func (r *UserRepositoryPG) SetPlan(ctx context.Context, id string, plan domain.UserPlan) error {
	if plan != domain.UserPlanFree && plan != domain.UserPlanPro {
		return fmt.Errorf("%w: unknown plan %q", domain.ErrInvalidRequest, plan)
	}
	return r.update(ctx, sqlinline.QUpdateUserPlan, id, string(plan))
}

func (r *UserRepositoryPG) SetRole(ctx context.Context, id string, role domain.UserRole) error {
	if role != domain.UserRoleUser && role != domain.UserRoleAdmin {
		return fmt.Errorf("%w: unknown role %q", domain.ErrInvalidRequest, role)
	}
	return r.update(ctx, sqlinline.QUpdateUserRole, id, string(role))
}

func (r *UserRepositoryPG) update(ctx context.Context, query, id, value string) error {
	var got string
	if err := r.sql.QueryRow(ctx, query, id, value).Scan(&got); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return err
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user       domain.User
		role, plan string
	)
	if err := row.Scan(&user.ID, &user.Email, &role, &plan, &user.Balance, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	user.Role = domain.UserRole(role)
	user.Plan = domain.UserPlan(plan)
	return &user, nil
}
