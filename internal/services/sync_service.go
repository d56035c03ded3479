package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"edusync/internal/caching"
	"edusync/internal/models"
	"edusync/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// ReconciliationResult summarizes one tenant reconciliation pass.
type ReconciliationResult struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	TargetPlanType string    `json:"target_plan_type"`
	Processed      int       `json:"processed"`
	Updated        int       `json:"updated"`
	Corrected      int       `json:"corrected"`
	Notified       int       `json:"notified"`
	Failed         int       `json:"failed"`
}

// SyncService brings every member of a tenant in line with the tenant's
// current subscription state.
type SyncService interface {
	ReconcileTenant(ctx context.Context, tenantID, orgID uuid.UUID, targetActive bool, endDate *time.Time) (*ReconciliationResult, error)
}

type syncService struct {
	userRepo        repositories.UserRepository
	entitlementRepo repositories.UserEntitlementRepository
	assignmentSvc   AssignmentService
	anomalySvc      AnomalyService
	notificationSvc NotificationService
	cacheSvc        caching.CacheService
	plans           models.PlanTable
	clock           clockwork.Clock
	concurrency     int

	// Serializes reconciliations per tenant within this process. Cross-
	// process staleness is self-healed by the next sweep, so no
	// distributed lock is taken.
	tenantLocks sync.Map
}

func NewSyncService(
	userRepo repositories.UserRepository,
	entitlementRepo repositories.UserEntitlementRepository,
	assignmentSvc AssignmentService,
	anomalySvc AnomalyService,
	notificationSvc NotificationService,
	cacheSvc caching.CacheService,
	plans models.PlanTable,
	clock clockwork.Clock,
	concurrency int,
) SyncService {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &syncService{
		userRepo:        userRepo,
		entitlementRepo: entitlementRepo,
		assignmentSvc:   assignmentSvc,
		anomalySvc:      anomalySvc,
		notificationSvc: notificationSvc,
		cacheSvc:        cacheSvc,
		plans:           plans,
		clock:           clock,
		concurrency:     concurrency,
	}
}

func (s *syncService) tenantLock(tenantID uuid.UUID) *sync.Mutex {
	mu, _ := s.tenantLocks.LoadOrStore(tenantID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ReconcileTenant enumerates student members and drives each one through
// the correct -> decide -> assign -> notify sequence. Teacher members get a
// live access notification only; their access is a gate evaluated per
// request against the tenant subscription, not a stored grant. A member
// failure is counted and logged but never aborts the pass; only member
// enumeration failure fails the call outright.
func (s *syncService) ReconcileTenant(ctx context.Context, tenantID, orgID uuid.UUID, targetActive bool, endDate *time.Time) (*ReconciliationResult, error) {
	mu := s.tenantLock(tenantID)
	mu.Lock()
	defer mu.Unlock()

	targetPlanType := models.PlanTypeFree
	if targetActive {
		targetPlanType = models.PlanTypePremium
	}
	plan, ok := s.plans.Get(targetPlanType)
	if !ok {
		return nil, fmt.Errorf("no plan configuration for %q", targetPlanType)
	}

	result := &ReconciliationResult{TenantID: tenantID, TargetPlanType: targetPlanType}

	students, err := s.userRepo.ListMembers(ctx, tenantID, orgID, models.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate members of tenant %s: %w", tenantID, err)
	}

	var resultMu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for _, student := range students {
		wg.Add(1)
		go func(member *models.Member) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			updated, corrected, notified, err := s.reconcileStudent(ctx, member, tenantID, orgID, targetActive, plan, endDate)

			resultMu.Lock()
			defer resultMu.Unlock()
			result.Processed++
			result.Corrected += corrected
			if notified {
				result.Notified++
			}
			if err != nil {
				result.Failed++
				log.Printf("Failed to reconcile user %s in tenant %s: %v", member.UserID, tenantID, err)
				return
			}
			if updated {
				result.Updated++
			}
		}(student)
	}
	wg.Wait()

	teachers, err := s.userRepo.ListMembers(ctx, tenantID, orgID, models.RoleTeacher)
	if err != nil {
		// Students are already reconciled; teacher access is re-evaluated
		// live anyway, so log and report what was done.
		log.Printf("Failed to enumerate teachers of tenant %s: %v", tenantID, err)
		return result, nil
	}
	for _, teacher := range teachers {
		payload := models.JSONB{
			"tenant_id": tenantID.String(),
			"enabled":   targetActive,
		}
		if err := s.notificationSvc.Notify(ctx, teacher.UserID, models.EventTeacherAccessChanged, payload); err != nil {
			log.Printf("Failed to notify teacher %s in tenant %s: %v", teacher.UserID, tenantID, err)
			continue
		}
		result.Notified++
	}

	log.Printf("Reconciled tenant %s: target=%s processed=%d updated=%d corrected=%d notified=%d failed=%d",
		tenantID, targetPlanType, result.Processed, result.Updated, result.Corrected, result.Notified, result.Failed)
	return result, nil
}

func (s *syncService) reconcileStudent(ctx context.Context, member *models.Member, tenantID, orgID uuid.UUID, targetActive bool, plan models.PlanConfig, endDate *time.Time) (updated bool, corrected int, notified bool, err error) {
	targetStatus := models.EntitlementStatusExpired
	reason := models.ReasonTenantSubscriptionExpired
	if targetActive {
		targetStatus = models.EntitlementStatusActive
		reason = models.ReasonTenantSubscriptionRenewed
	}
	targetFeatures := s.plans.FeaturesFor(plan.Type)

	current, err := s.lookupEntitlement(ctx, member.UserID, tenantID)
	if err != nil {
		return false, 0, false, err
	}

	// On a downgrade, neutralize every other active paid grant before the
	// canonical record is rewritten.
	if !targetActive {
		excludeID := uuid.Nil
		if current != nil {
			excludeID = current.ID
		}
		touched, correctErr := s.anomalySvc.CorrectDowngrade(ctx, member.UserID, excludeID)
		corrected = len(touched)
		if correctErr != nil {
			return false, corrected, false, correctErr
		}
	}

	if s.needsUpdate(current, plan.Type, targetStatus, targetFeatures, tenantID, orgID) {
		previousPlanType := ""
		if current != nil {
			previousPlanType = current.PlanType
		}
		assigned, assignErr := s.assignmentSvc.Assign(ctx, &AssignRequest{
			UserID:           member.UserID,
			PlanType:         plan.Type,
			PlanName:         plan.Name,
			Features:         targetFeatures,
			Amount:           plan.Amount,
			Status:           targetStatus,
			EndDate:          endDate,
			Source:           models.SourceTenantSync,
			OriginTenantID:   &tenantID,
			OriginOrgID:      &orgID,
			Reason:           reason,
			PreviousPlanType: previousPlanType,
			Initiator:        SystemInitiator("tenant reconciliation"),
		})
		if assignErr != nil {
			return false, corrected, false, assignErr
		}
		current = assigned
		updated = true

		if cacheErr := s.cacheSvc.DeleteUserEntitlement(ctx, member.UserID); cacheErr != nil {
			log.Printf("Failed to invalidate entitlement cache for user %s: %v", member.UserID, cacheErr)
		}
	}

	// The notification goes out even when the write was skipped, so
	// clients converge on the current snapshot either way. The audit
	// transaction is already persisted by the time this fires.
	payload := models.JSONB{
		"tenant_id": tenantID.String(),
		"plan_type": plan.Type,
		"status":    targetStatus,
		"features":  targetFeatures,
	}
	if current != nil {
		payload["entitlement_id"] = current.ID.String()
	}
	if notifyErr := s.notificationSvc.Notify(ctx, member.UserID, models.EventEntitlementUpdated, payload); notifyErr != nil {
		log.Printf("Failed to notify user %s in tenant %s: %v", member.UserID, tenantID, notifyErr)
	} else {
		notified = true
	}

	return updated, corrected, notified, nil
}

// lookupEntitlement resolves the member's canonical entitlement with an
// explicit tie-break chain: the one linked to this tenant, else any active
// one, else the most recently created one, else none.
func (s *syncService) lookupEntitlement(ctx context.Context, userID, tenantID uuid.UUID) (*models.UserEntitlement, error) {
	linked, err := s.entitlementRepo.GetLinkedToTenant(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("linked entitlement lookup failed: %w", err)
	}
	if linked != nil {
		return linked, nil
	}

	active, err := s.entitlementRepo.GetActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("active entitlement lookup failed: %w", err)
	}
	if active != nil {
		return active, nil
	}

	latest, err := s.entitlementRepo.GetLatestByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest entitlement lookup failed: %w", err)
	}
	return latest, nil
}

// needsUpdate decides whether the stored record diverges from the target
// state in plan, status, full-access flag, or tenant linkage.
func (s *syncService) needsUpdate(current *models.UserEntitlement, targetPlanType, targetStatus string, targetFeatures models.JSONB, tenantID, orgID uuid.UUID) bool {
	if current == nil {
		return true
	}
	if current.PlanType != targetPlanType || current.Status != targetStatus {
		return true
	}
	targetFullAccess, _ := targetFeatures[models.FeatureFullAccess].(bool)
	if current.FullAccess() != targetFullAccess {
		return true
	}
	return !current.LinkedTo(tenantID, orgID)
}
