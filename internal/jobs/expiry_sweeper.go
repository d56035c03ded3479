package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"edusync/internal/models"
	"edusync/internal/repositories"
	"edusync/internal/services"

	"github.com/jonboulle/clockwork"
)

// SweepResult aggregates one pass over all due tenant subscriptions.
type SweepResult struct {
	TenantsFound   int       `json:"tenants_found"`
	TenantsSynced  int       `json:"tenants_synced"`
	StudentsSynced int       `json:"students_synced"`
	Skipped        int       `json:"skipped"`
	Failures       int       `json:"failures"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// ExpirySweeper finds tenant subscriptions whose end date has passed and
// drives them through expiry plus member reconciliation. Each run is
// stateless: correctness is re-derived from stored timestamps, so an
// aborted run is simply finished by the next one.
type ExpirySweeper struct {
	subscriptionRepo repositories.TenantSubscriptionRepository
	syncSvc          services.SyncService
	archiveSvc       services.ArchiveService // optional
	clock            clockwork.Clock
	concurrency      int
}

func NewExpirySweeper(
	subscriptionRepo repositories.TenantSubscriptionRepository,
	syncSvc services.SyncService,
	archiveSvc services.ArchiveService,
	clock clockwork.Clock,
	concurrency int,
) *ExpirySweeper {
	if concurrency <= 0 {
		concurrency = 3
	}
	return &ExpirySweeper{
		subscriptionRepo: subscriptionRepo,
		syncSvc:          syncSvc,
		archiveSvc:       archiveSvc,
		clock:            clock,
		concurrency:      concurrency,
	}
}

// Sweep processes every due subscription. A failure on one tenant is
// counted and logged without stopping the others.
func (s *ExpirySweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	now := s.clock.Now().UTC()
	result := &SweepResult{StartedAt: now}

	due, err := s.subscriptionRepo.ListDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due subscriptions: %w", err)
	}
	result.TenantsFound = len(due)

	var resultMu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, s.concurrency)

	for _, subscription := range due {
		wg.Add(1)
		go func(stale *models.TenantSubscription) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			students, swept, err := s.sweepTenant(ctx, stale, now)

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				result.Failures++
				log.Printf("Failed to sweep tenant %s: %v", stale.TenantID, err)
				return
			}
			if !swept {
				result.Skipped++
				return
			}
			result.TenantsSynced++
			result.StudentsSynced += students
		}(subscription)
	}
	wg.Wait()

	result.FinishedAt = s.clock.Now().UTC()
	log.Printf("Expiry sweep completed: found=%d synced=%d students=%d skipped=%d failures=%d",
		result.TenantsFound, result.TenantsSynced, result.StudentsSynced, result.Skipped, result.Failures)

	s.archive(ctx, now, result)
	return result, nil
}

// sweepTenant re-verifies the expiry against a fresh read before acting: a
// renewal committed after the sweep's query must not get the tenant
// expired under it. The status flip itself is a conditional write, so even
// a renewal landing between the re-read and the update makes the
// transition a no-op and the tenant is skipped this run.
func (s *ExpirySweeper) sweepTenant(ctx context.Context, stale *models.TenantSubscription, now time.Time) (int, bool, error) {
	subscription, err := s.subscriptionRepo.GetByTenantID(ctx, stale.TenantID)
	if err != nil {
		return 0, false, err
	}

	if !subscription.DueAt(now) || subscription.Status == models.SubscriptionStatusCancelled {
		return 0, false, nil
	}

	if subscription.Status != models.SubscriptionStatusExpired {
		expired, err := s.subscriptionRepo.MarkExpiredIfDue(ctx, subscription.ID, now)
		if err != nil {
			return 0, false, err
		}
		if !expired {
			// Renewed between read and write.
			return 0, false, nil
		}
	}

	// Already-expired subscriptions still reconcile: a previous run may
	// have flipped the status and then died before finishing the members.
	reconciliation, err := s.syncSvc.ReconcileTenant(ctx, subscription.TenantID, subscription.OrgID, false, subscription.EndDate)
	if err != nil {
		return 0, false, err
	}
	return reconciliation.Updated, true, nil
}

func (s *ExpirySweeper) archive(ctx context.Context, startedAt time.Time, result *SweepResult) {
	if s.archiveSvc == nil {
		return
	}
	objectName := fmt.Sprintf("sweep-reports/%s.json", startedAt.Format("20060102T150405Z"))
	if err := s.archiveSvc.StoreSweepReport(ctx, objectName, result); err != nil {
		log.Printf("Failed to archive sweep report %s: %v", objectName, err)
	}
}
