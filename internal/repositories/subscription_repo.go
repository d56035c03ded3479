package repositories

import (
	"context"
	"errors"
	"time"

	"edusync/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrSubscriptionNotFound = errors.New("tenant subscription not found")

type TenantSubscriptionRepository interface {
	GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
	Upsert(ctx context.Context, subscription *models.TenantSubscription) error
	Update(ctx context.Context, subscription *models.TenantSubscription) error
	// ListDue returns subscriptions whose end date has passed and that a
	// sweep still has work for: pending/active ones that must be expired,
	// plus already-expired ones whose members may not have been fully
	// reconciled by a previous run.
	ListDue(ctx context.Context, now time.Time) ([]*models.TenantSubscription, error)
	// MarkExpiredIfDue flips the status to expired only if the end date is
	// still in the past at write time. Returns false when a concurrent
	// renewal invalidated the transition.
	MarkExpiredIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

type tenantSubscriptionRepo struct {
	db Database
}

func NewTenantSubscriptionRepo(db Database) TenantSubscriptionRepository {
	return &tenantSubscriptionRepo{db: db}
}

const subscriptionColumns = `id, tenant_id, org_id, plan_type, plan_name, plan_limits, status, start_date, end_date, auto_renew, renewal_count, created_at, updated_at`

func (r *tenantSubscriptionRepo) scanRow(row pgx.Row) (*models.TenantSubscription, error) {
	subscription := &models.TenantSubscription{}
	err := row.Scan(&subscription.ID, &subscription.TenantID, &subscription.OrgID, &subscription.PlanType, &subscription.PlanName, &subscription.PlanLimits, &subscription.Status, &subscription.StartDate, &subscription.EndDate, &subscription.AutoRenew, &subscription.RenewalCount, &subscription.CreatedAt, &subscription.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (r *tenantSubscriptionRepo) GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM tenant_subscriptions
		WHERE tenant_id = $1
	`
	subscription, err := r.scanRow(r.db.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return subscription, nil
}

// Upsert keeps one logical record per tenant; approvals and renewals
// rewrite it in place rather than appending rows.
func (r *tenantSubscriptionRepo) Upsert(ctx context.Context, subscription *models.TenantSubscription) error {
	query := `
		INSERT INTO tenant_subscriptions (id, tenant_id, org_id, plan_type, plan_name, plan_limits, status, start_date, end_date, auto_renew, renewal_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			plan_type = EXCLUDED.plan_type,
			plan_name = EXCLUDED.plan_name,
			plan_limits = EXCLUDED.plan_limits,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			auto_renew = EXCLUDED.auto_renew,
			renewal_count = EXCLUDED.renewal_count,
			updated_at = NOW()
	`
	_, err := r.db.Exec(ctx, query, subscription.ID, subscription.TenantID, subscription.OrgID, subscription.PlanType, subscription.PlanName, subscription.PlanLimits, subscription.Status, subscription.StartDate, subscription.EndDate, subscription.AutoRenew, subscription.RenewalCount)
	return err
}

func (r *tenantSubscriptionRepo) Update(ctx context.Context, subscription *models.TenantSubscription) error {
	query := `
		UPDATE tenant_subscriptions
		SET plan_type = $1, plan_name = $2, plan_limits = $3, status = $4, start_date = $5, end_date = $6, auto_renew = $7, renewal_count = $8, updated_at = NOW()
		WHERE tenant_id = $9 AND id = $10
	`
	_, err := r.db.Exec(ctx, query, subscription.PlanType, subscription.PlanName, subscription.PlanLimits, subscription.Status, subscription.StartDate, subscription.EndDate, subscription.AutoRenew, subscription.RenewalCount, subscription.TenantID, subscription.ID)
	return err
}

func (r *tenantSubscriptionRepo) ListDue(ctx context.Context, now time.Time) ([]*models.TenantSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM tenant_subscriptions
		WHERE end_date IS NOT NULL AND end_date <= $1
		  AND status IN ('pending', 'active', 'expired')
		ORDER BY end_date ASC
	`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subscriptions []*models.TenantSubscription
	for rows.Next() {
		subscription, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, subscription)
	}
	return subscriptions, rows.Err()
}

func (r *tenantSubscriptionRepo) MarkExpiredIfDue(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	query := `
		UPDATE tenant_subscriptions
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND end_date IS NOT NULL AND end_date <= $2
		  AND status IN ('pending', 'active')
	`
	tag, err := r.db.Exec(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
