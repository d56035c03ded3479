package repositories

import (
	"context"
	"errors"

	"edusync/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// ListMembers enumerates a tenant's membership scoped by role.
	ListMembers(ctx context.Context, tenantID, orgID uuid.UUID, role string) ([]*models.Member, error)
}

type userRepo struct {
	db Database
}

func NewUserRepo(db Database) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, tenant_id, org_id, email, password_hash, first_name, last_name, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.TenantID, user.OrgID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role, user.Status)
	return err
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, tenant_id, org_id, email, password_hash, first_name, last_name, role, status, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&user.ID, &user.TenantID, &user.OrgID, &user.Email, &user.PasswordHash, &user.FirstName, &user.LastName, &user.Role, &user.Status, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *userRepo) ListMembers(ctx context.Context, tenantID, orgID uuid.UUID, role string) ([]*models.Member, error) {
	query := `
		SELECT id, role, tenant_id, org_id
		FROM users
		WHERE tenant_id = $1 AND org_id = $2 AND role = $3 AND status = 'active'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, tenantID, orgID, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member := &models.Member{}
		if err := rows.Scan(&member.UserID, &member.Role, &member.TenantID, &member.OrgID); err != nil {
			return nil, err
		}
		members = append(members, member)
	}
	return members, rows.Err()
}
