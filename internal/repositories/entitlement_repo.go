package repositories

import (
	"context"
	"errors"

	"edusync/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrEntitlementNotFound = errors.New("user entitlement not found")

type UserEntitlementRepository interface {
	Create(ctx context.Context, entitlement *models.UserEntitlement) error
	Update(ctx context.Context, entitlement *models.UserEntitlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserEntitlement, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserEntitlement, error)
	// ListActivePaidByUser returns every grant counting against the
	// one-active-paid-entitlement invariant. The invariant says there is at
	// most one, but callers must tolerate more.
	ListActivePaidByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserEntitlement, error)

	// Lookup chain steps used by reconciliation, in tie-break order. Each
	// returns (nil, nil) when no row matches.
	GetLinkedToTenant(ctx context.Context, userID, tenantID uuid.UUID) (*models.UserEntitlement, error)
	GetActiveByUser(ctx context.Context, userID uuid.UUID) (*models.UserEntitlement, error)
	GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.UserEntitlement, error)

	AppendTransaction(ctx context.Context, transaction *models.EntitlementTransaction) error
	ListTransactions(ctx context.Context, entitlementID uuid.UUID) ([]*models.EntitlementTransaction, error)
	// HasAssignmentTransaction checks the idempotency signature
	// (mode=system, assignment=true, plan_type) against the current log.
	HasAssignmentTransaction(ctx context.Context, entitlementID uuid.UUID, planType string) (bool, error)
}

type userEntitlementRepo struct {
	db Database
}

func NewUserEntitlementRepo(db Database) UserEntitlementRepository {
	return &userEntitlementRepo{db: db}
}

const entitlementColumns = `id, user_id, plan_type, plan_name, features, status, start_date, end_date, origin_tenant_id, origin_org_id, source, synced_at, reason, previous_plan_type, metadata, created_at, updated_at`

func (r *userEntitlementRepo) scanRow(row pgx.Row) (*models.UserEntitlement, error) {
	e := &models.UserEntitlement{}
	err := row.Scan(&e.ID, &e.UserID, &e.PlanType, &e.PlanName, &e.Features, &e.Status, &e.StartDate, &e.EndDate, &e.OriginTenantID, &e.OriginOrgID, &e.Source, &e.SyncedAt, &e.Reason, &e.PreviousPlanType, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *userEntitlementRepo) Create(ctx context.Context, entitlement *models.UserEntitlement) error {
	query := `
		INSERT INTO user_entitlements (id, user_id, plan_type, plan_name, features, status, start_date, end_date, origin_tenant_id, origin_org_id, source, synced_at, reason, previous_plan_type, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, entitlement.ID, entitlement.UserID, entitlement.PlanType, entitlement.PlanName, entitlement.Features, entitlement.Status, entitlement.StartDate, entitlement.EndDate, entitlement.OriginTenantID, entitlement.OriginOrgID, entitlement.Source, entitlement.SyncedAt, entitlement.Reason, entitlement.PreviousPlanType, entitlement.Metadata)
	return err
}

func (r *userEntitlementRepo) Update(ctx context.Context, entitlement *models.UserEntitlement) error {
	query := `
		UPDATE user_entitlements
		SET plan_type = $1, plan_name = $2, features = $3, status = $4, start_date = $5, end_date = $6, origin_tenant_id = $7, origin_org_id = $8, source = $9, synced_at = $10, reason = $11, previous_plan_type = $12, metadata = $13, updated_at = NOW()
		WHERE id = $14
	`
	_, err := r.db.Exec(ctx, query, entitlement.PlanType, entitlement.PlanName, entitlement.Features, entitlement.Status, entitlement.StartDate, entitlement.EndDate, entitlement.OriginTenantID, entitlement.OriginOrgID, entitlement.Source, entitlement.SyncedAt, entitlement.Reason, entitlement.PreviousPlanType, entitlement.Metadata, entitlement.ID)
	return err
}

func (r *userEntitlementRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.UserEntitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM user_entitlements
		WHERE id = $1
	`
	entitlement, err := r.scanRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntitlementNotFound
		}
		return nil, err
	}
	return entitlement, nil
}

func (r *userEntitlementRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserEntitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM user_entitlements
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

func (r *userEntitlementRepo) ListActivePaidByUser(ctx context.Context, userID uuid.UUID) ([]*models.UserEntitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM user_entitlements
		WHERE user_id = $1 AND status = 'active' AND plan_type <> 'free'
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, userID)
}

func (r *userEntitlementRepo) GetLinkedToTenant(ctx context.Context, userID, tenantID uuid.UUID) (*models.UserEntitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM user_entitlements
		WHERE user_id = $1 AND origin_tenant_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID, tenantID)
}

func (r *userEntitlementRepo) GetActiveByUser(ctx context.Context, userID uuid.UUID) (*models.UserEntitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM user_entitlements
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID)
}

func (r *userEntitlementRepo) GetLatestByUser(ctx context.Context, userID uuid.UUID) (*models.UserEntitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM user_entitlements
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, query, userID)
}

func (r *userEntitlementRepo) getOne(ctx context.Context, query string, args ...interface{}) (*models.UserEntitlement, error) {
	entitlement, err := r.scanRow(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entitlement, nil
}

func (r *userEntitlementRepo) list(ctx context.Context, query string, args ...interface{}) ([]*models.UserEntitlement, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entitlements []*models.UserEntitlement
	for rows.Next() {
		entitlement, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		entitlements = append(entitlements, entitlement)
	}
	return entitlements, rows.Err()
}

func (r *userEntitlementRepo) AppendTransaction(ctx context.Context, transaction *models.EntitlementTransaction) error {
	query := `
		INSERT INTO entitlement_transactions (id, entitlement_id, amount, status, mode, initiator_user_id, initiator_role, initiator_name, initiator_context, reason, plan_type, assignment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
	`
	_, err := r.db.Exec(ctx, query, transaction.ID, transaction.EntitlementID, transaction.Amount, transaction.Status, transaction.Mode, transaction.InitiatorUserID, transaction.InitiatorRole, transaction.InitiatorName, transaction.InitiatorContext, transaction.Reason, transaction.PlanType, transaction.Assignment)
	return err
}

func (r *userEntitlementRepo) ListTransactions(ctx context.Context, entitlementID uuid.UUID) ([]*models.EntitlementTransaction, error) {
	query := `
		SELECT id, entitlement_id, amount, status, mode, initiator_user_id, initiator_role, initiator_name, initiator_context, reason, plan_type, assignment, created_at
		FROM entitlement_transactions
		WHERE entitlement_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, entitlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*models.EntitlementTransaction
	for rows.Next() {
		t := &models.EntitlementTransaction{}
		if err := rows.Scan(&t.ID, &t.EntitlementID, &t.Amount, &t.Status, &t.Mode, &t.InitiatorUserID, &t.InitiatorRole, &t.InitiatorName, &t.InitiatorContext, &t.Reason, &t.PlanType, &t.Assignment, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

func (r *userEntitlementRepo) HasAssignmentTransaction(ctx context.Context, entitlementID uuid.UUID, planType string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM entitlement_transactions
			WHERE entitlement_id = $1 AND mode = 'system' AND assignment = TRUE AND plan_type = $2
		)
	`
	if err := r.db.QueryRow(ctx, query, entitlementID, planType).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
