package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edusync/internal/models"
	"edusync/internal/repositories"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Initiator identifies who (or what) triggered an entitlement change.
type Initiator struct {
	UserID  *uuid.UUID `json:"user_id"`
	Role    string     `json:"role"`
	Name    string     `json:"name"`
	Context string     `json:"context"`
}

// SystemInitiator is used for writes driven by reconciliation rather than
// a human action.
func SystemInitiator(context string) Initiator {
	return Initiator{Role: "system", Name: "entitlement-sync", Context: context}
}

// AssignRequest carries everything needed to create or update one user's
// entitlement.
type AssignRequest struct {
	UserID           uuid.UUID
	PlanType         string
	PlanName         string
	Features         models.JSONB
	Amount           float64
	Status           string // defaults to active
	StartDate        time.Time
	EndDate          *time.Time
	Source           string
	OriginTenantID   *uuid.UUID
	OriginOrgID      *uuid.UUID
	Reason           string
	PreviousPlanType string
	Metadata         models.JSONB
	Mode             string // transaction mode, defaults to system
	Initiator        Initiator
}

// AssignmentService is the single write path for user entitlements. Both
// bulk reconciliation and direct admin provisioning go through Assign so
// the idempotency rules live in exactly one place.
type AssignmentService interface {
	Assign(ctx context.Context, req *AssignRequest) (*models.UserEntitlement, error)
}

type assignmentService struct {
	entitlementRepo repositories.UserEntitlementRepository
	userRepo        repositories.UserRepository
	clock           clockwork.Clock
}

func NewAssignmentService(entitlementRepo repositories.UserEntitlementRepository, userRepo repositories.UserRepository, clock clockwork.Clock) AssignmentService {
	return &assignmentService{
		entitlementRepo: entitlementRepo,
		userRepo:        userRepo,
		clock:           clock,
	}
}

// Assign updates the user's currently-active entitlement or creates a new
// one. Calling it twice with the same plan and reason produces one audit
// transaction, not two. Persistence errors are surfaced to the caller;
// retry policy belongs there.
func (s *assignmentService) Assign(ctx context.Context, req *AssignRequest) (*models.UserEntitlement, error) {
	if req.PlanType == "" {
		return nil, errors.New("plan_type is required")
	}
	if req.UserID == uuid.Nil {
		return nil, errors.New("user_id is required")
	}

	if _, err := s.userRepo.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	status := req.Status
	if status == "" {
		status = models.EntitlementStatusActive
	}
	mode := req.Mode
	if mode == "" {
		mode = models.TransactionModeSystem
	}

	entitlement, err := s.entitlementRepo.GetActiveByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up active entitlement: %w", err)
	}

	if entitlement != nil {
		if req.PreviousPlanType != "" {
			entitlement.PreviousPlanType = req.PreviousPlanType
		} else if entitlement.PlanType != req.PlanType {
			entitlement.PreviousPlanType = entitlement.PlanType
		}
		entitlement.PlanType = req.PlanType
		entitlement.PlanName = req.PlanName
		entitlement.Features = mergeFlags(entitlement.Features, req.Features)
		entitlement.Metadata = mergeFlags(entitlement.Metadata, req.Metadata)
		entitlement.Status = status
		entitlement.EndDate = req.EndDate
		if req.OriginTenantID != nil {
			entitlement.OriginTenantID = req.OriginTenantID
		}
		if req.OriginOrgID != nil {
			entitlement.OriginOrgID = req.OriginOrgID
		}
		if req.Source != "" {
			entitlement.Source = req.Source
		}
		if req.Reason != "" {
			entitlement.Reason = req.Reason
		}
		entitlement.SyncedAt = &now

		if err := s.entitlementRepo.Update(ctx, entitlement); err != nil {
			return nil, fmt.Errorf("failed to update entitlement for user %s: %w", req.UserID, err)
		}
	} else {
		startDate := req.StartDate
		if startDate.IsZero() {
			startDate = now
		}
		entitlement = &models.UserEntitlement{
			ID:               uuid.New(),
			UserID:           req.UserID,
			PlanType:         req.PlanType,
			PlanName:         req.PlanName,
			Features:         mergeFlags(nil, req.Features),
			Status:           status,
			StartDate:        startDate,
			EndDate:          req.EndDate,
			OriginTenantID:   req.OriginTenantID,
			OriginOrgID:      req.OriginOrgID,
			Source:           req.Source,
			SyncedAt:         &now,
			Reason:           req.Reason,
			PreviousPlanType: req.PreviousPlanType,
			Metadata:         mergeFlags(nil, req.Metadata),
		}
		if err := s.entitlementRepo.Create(ctx, entitlement); err != nil {
			return nil, fmt.Errorf("failed to create entitlement for user %s: %w", req.UserID, err)
		}
	}

	if err := s.appendTransaction(ctx, entitlement, req, mode); err != nil {
		return nil, err
	}

	return entitlement, nil
}

// appendTransaction writes the audit entry, suppressing duplicates for
// system assignments: a second system write for the same plan type leaves
// the log untouched.
func (s *assignmentService) appendTransaction(ctx context.Context, entitlement *models.UserEntitlement, req *AssignRequest, mode string) error {
	if mode == models.TransactionModeSystem {
		exists, err := s.entitlementRepo.HasAssignmentTransaction(ctx, entitlement.ID, req.PlanType)
		if err != nil {
			return fmt.Errorf("failed to check transaction log: %w", err)
		}
		if exists {
			return nil
		}
	}

	transaction := &models.EntitlementTransaction{
		ID:               uuid.New(),
		EntitlementID:    entitlement.ID,
		Amount:           req.Amount,
		Status:           "completed",
		Mode:             mode,
		InitiatorUserID:  req.Initiator.UserID,
		InitiatorRole:    req.Initiator.Role,
		InitiatorName:    req.Initiator.Name,
		InitiatorContext: req.Initiator.Context,
		Reason:           req.Reason,
		PlanType:         req.PlanType,
		Assignment:       true,
	}
	if err := s.entitlementRepo.AppendTransaction(ctx, transaction); err != nil {
		return fmt.Errorf("failed to append entitlement transaction: %w", err)
	}
	return nil
}

// mergeFlags overlays new keys on top of base without dropping base keys
// that the overlay doesn't mention.
func mergeFlags(base, overlay models.JSONB) models.JSONB {
	merged := make(models.JSONB, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
