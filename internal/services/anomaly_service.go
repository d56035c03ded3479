package services

import (
	"context"
	"fmt"
	"log"

	"edusync/internal/models"
	"edusync/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// AnomalyService enforces the at-most-one-active-paid-entitlement-per-user
// invariant. Two independent assignment paths can race and leave a user
// with duplicate active paid grants; this converges the set back.
type AnomalyService interface {
	// CorrectDowngrade expires every active paid entitlement of the user
	// except the excluded one (the record the reconciler is about to
	// canonically downgrade). Plan types are left untouched; only the
	// active-paid status is removed. Returns the entitlements it touched.
	CorrectDowngrade(ctx context.Context, userID, excludeEntitlementID uuid.UUID) ([]*models.UserEntitlement, error)
}

type anomalyService struct {
	entitlementRepo repositories.UserEntitlementRepository
	clock           clockwork.Clock
}

func NewAnomalyService(entitlementRepo repositories.UserEntitlementRepository, clock clockwork.Clock) AnomalyService {
	return &anomalyService{entitlementRepo: entitlementRepo, clock: clock}
}

func (s *anomalyService) CorrectDowngrade(ctx context.Context, userID, excludeEntitlementID uuid.UUID) ([]*models.UserEntitlement, error) {
	activePaid, err := s.entitlementRepo.ListActivePaidByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active paid entitlements for user %s: %w", userID, err)
	}

	now := s.clock.Now().UTC()
	var touched []*models.UserEntitlement
	for _, entitlement := range activePaid {
		if entitlement.ID == excludeEntitlementID {
			continue
		}

		entitlement.Status = models.EntitlementStatusExpired
		entitlement.EndDate = &now
		if err := s.entitlementRepo.Update(ctx, entitlement); err != nil {
			return touched, fmt.Errorf("failed to expire duplicate entitlement %s for user %s: %w", entitlement.ID, userID, err)
		}

		log.Printf("Corrected duplicate active paid entitlement %s (plan=%s) for user %s", entitlement.ID, entitlement.PlanType, userID)
		touched = append(touched, entitlement)
	}

	return touched, nil
}
