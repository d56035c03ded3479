package services

import (
	"context"
	"fmt"
	"log"

	"edusync/internal/caching"
	"edusync/internal/models"
	"edusync/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SubscriptionService owns the tenant subscription lifecycle driven by
// approval and renewal events. Every state change it makes is followed by
// a tenant reconciliation so member entitlements track the subscription.
// Time-based expiry is not handled here; that belongs to the expiry
// sweeper alone.
type SubscriptionService interface {
	CreateOrActivate(ctx context.Context, tenantID, orgID uuid.UUID, planType string, durationDays int) (*models.TenantSubscription, error)
	Renew(ctx context.Context, tenantID uuid.UUID, durationDays int) (*models.TenantSubscription, error)
	Cancel(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
	GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
}

type subscriptionService struct {
	subscriptionRepo repositories.TenantSubscriptionRepository
	tenantRepo       repositories.TenantRepository
	syncSvc          SyncService
	cacheSvc         caching.CacheService
	plans            models.PlanTable
	clock            clockwork.Clock
}

func NewSubscriptionService(
	subscriptionRepo repositories.TenantSubscriptionRepository,
	tenantRepo repositories.TenantRepository,
	syncSvc SyncService,
	cacheSvc caching.CacheService,
	plans models.PlanTable,
	clock clockwork.Clock,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		tenantRepo:       tenantRepo,
		syncSvc:          syncSvc,
		cacheSvc:         cacheSvc,
		plans:            plans,
		clock:            clock,
	}
}

// CreateOrActivate is invoked when a tenant's registration is approved or
// re-approved. It upserts the single subscription record into the active
// state and reconciles every pre-existing member up to the paid plan.
func (s *subscriptionService) CreateOrActivate(ctx context.Context, tenantID, orgID uuid.UUID, planType string, durationDays int) (*models.TenantSubscription, error) {
	plan, ok := s.plans.Get(planType)
	if !ok {
		return nil, fmt.Errorf("invalid plan: %s", planType)
	}
	if durationDays <= 0 {
		return nil, fmt.Errorf("duration_days must be positive, got %d", durationDays)
	}

	if _, err := s.tenantRepo.GetByID(ctx, tenantID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	endDate := now.AddDate(0, 0, durationDays)

	subscription, err := s.subscriptionRepo.GetByTenantID(ctx, tenantID)
	switch {
	case err == nil:
		subscription.PlanType = plan.Type
		subscription.PlanName = plan.Name
		subscription.Status = models.SubscriptionStatusActive
		subscription.StartDate = now
		subscription.EndDate = &endDate
	case err == repositories.ErrSubscriptionNotFound:
		subscription = &models.TenantSubscription{
			ID:         uuid.New(),
			TenantID:   tenantID,
			OrgID:      orgID,
			PlanType:   plan.Type,
			PlanName:   plan.Name,
			PlanLimits: models.JSONB{},
			Status:     models.SubscriptionStatusActive,
			StartDate:  now,
			EndDate:    &endDate,
		}
	default:
		return nil, err
	}

	if err := s.subscriptionRepo.Upsert(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to upsert subscription for tenant %s: %w", tenantID, err)
	}
	s.invalidate(ctx, tenantID)

	if _, err := s.syncSvc.ReconcileTenant(ctx, tenantID, subscription.OrgID, true, subscription.EndDate); err != nil {
		return subscription, fmt.Errorf("subscription activated but reconciliation failed: %w", err)
	}
	return subscription, nil
}

// Renew extends the end date from the later of now and the current end
// date, increments the renewal counter, and reconciles members back up.
func (s *subscriptionService) Renew(ctx context.Context, tenantID uuid.UUID, durationDays int) (*models.TenantSubscription, error) {
	if durationDays <= 0 {
		return nil, fmt.Errorf("duration_days must be positive, got %d", durationDays)
	}

	subscription, err := s.subscriptionRepo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	base := now
	if subscription.EndDate != nil && subscription.EndDate.After(now) {
		base = *subscription.EndDate
	}
	endDate := base.AddDate(0, 0, durationDays)

	subscription.Status = models.SubscriptionStatusActive
	subscription.EndDate = &endDate
	subscription.RenewalCount++

	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to renew subscription for tenant %s: %w", tenantID, err)
	}
	s.invalidate(ctx, tenantID)

	if _, err := s.syncSvc.ReconcileTenant(ctx, tenantID, subscription.OrgID, true, subscription.EndDate); err != nil {
		return subscription, fmt.Errorf("subscription renewed but reconciliation failed: %w", err)
	}
	return subscription, nil
}

// Cancel is an explicit admin revocation. For reconciliation it is
// indistinguishable from expiry: members drop to the free plan.
func (s *subscriptionService) Cancel(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	subscription, err := s.subscriptionRepo.GetByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	subscription.Status = models.SubscriptionStatusCancelled
	subscription.EndDate = &now

	if err := s.subscriptionRepo.Update(ctx, subscription); err != nil {
		return nil, fmt.Errorf("failed to cancel subscription for tenant %s: %w", tenantID, err)
	}
	s.invalidate(ctx, tenantID)

	if _, err := s.syncSvc.ReconcileTenant(ctx, tenantID, subscription.OrgID, false, subscription.EndDate); err != nil {
		return subscription, fmt.Errorf("subscription cancelled but reconciliation failed: %w", err)
	}
	return subscription, nil
}

func (s *subscriptionService) GetByTenantID(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	return s.subscriptionRepo.GetByTenantID(ctx, tenantID)
}

func (s *subscriptionService) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.cacheSvc.DeleteTenantSubscription(ctx, tenantID); err != nil {
		log.Printf("Failed to invalidate subscription cache for tenant %s: %v", tenantID, err)
	}
}
