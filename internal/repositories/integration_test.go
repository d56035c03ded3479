package repositories_test

import (
	"context"
	"os"
	"testing"
	"time"

	"edusync/internal/models"
	"edusync/internal/repositories"
	"edusync/testhelpers"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run against a real database and are skipped unless
// TEST_DATABASE_URL is set.
func setupIntegration(t *testing.T) *testhelpers.TestDB {
	t.Helper()
	if os.Getenv("TEST_DATABASE_URL") == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database integration tests")
	}
	db := testhelpers.SetupTestDB(t, "")
	t.Cleanup(func() { _ = db.Cleanup() })
	return db
}

func TestSubscriptionLifecycleAgainstDatabase(t *testing.T) {
	db := setupIntegration(t)
	ctx := context.Background()

	tenantID, orgID := testhelpers.SetupTestTenant(t, db)
	repo := repositories.NewTenantSubscriptionRepo(db.Pool)

	endDate := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	subscriptionID := testhelpers.SetupTestSubscription(t, db, tenantID, orgID, models.SubscriptionStatusActive, endDate)

	subscription, err := repo.GetByTenantID(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, subscriptionID, subscription.ID)
	assert.True(t, subscription.DueAt(time.Now().UTC()))

	due, err := repo.ListDue(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.NotEmpty(t, due)

	expired, err := repo.MarkExpiredIfDue(ctx, subscriptionID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, expired)

	// A second flip finds nothing in pending/active state.
	expired, err = repo.MarkExpiredIfDue(ctx, subscriptionID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, expired)
}

func TestEntitlementLookupChainAgainstDatabase(t *testing.T) {
	db := setupIntegration(t)
	ctx := context.Background()

	tenantID, orgID := testhelpers.SetupTestTenant(t, db)
	studentID := testhelpers.SetupTestStudent(t, db, tenantID, orgID)
	repo := repositories.NewUserEntitlementRepo(db.Pool)

	linked, err := repo.GetLinkedToTenant(ctx, studentID, tenantID)
	require.NoError(t, err)
	assert.Nil(t, linked)

	now := time.Now().UTC().Truncate(time.Microsecond)
	entitlement := &models.UserEntitlement{
		ID:             uuid.New(),
		UserID:         studentID,
		PlanType:       models.PlanTypePremium,
		PlanName:       "Premium Plan",
		Features:       models.JSONB{models.FeatureFullAccess: true},
		Status:         models.EntitlementStatusActive,
		StartDate:      now,
		OriginTenantID: &tenantID,
		OriginOrgID:    &orgID,
		Source:         models.SourceTenantSync,
		SyncedAt:       &now,
		Reason:         models.ReasonTenantSubscriptionRenewed,
		Metadata:       models.JSONB{},
	}
	require.NoError(t, repo.Create(ctx, entitlement))

	linked, err = repo.GetLinkedToTenant(ctx, studentID, tenantID)
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, entitlement.ID, linked.ID)
	assert.True(t, linked.LinkedTo(tenantID, orgID))

	active, err := repo.GetActiveByUser(ctx, studentID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, entitlement.ID, active.ID)
}

func TestTransactionIdempotencySignatureAgainstDatabase(t *testing.T) {
	db := setupIntegration(t)
	ctx := context.Background()

	tenantID, orgID := testhelpers.SetupTestTenant(t, db)
	studentID := testhelpers.SetupTestStudent(t, db, tenantID, orgID)
	repo := repositories.NewUserEntitlementRepo(db.Pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	entitlement := &models.UserEntitlement{
		ID:        uuid.New(),
		UserID:    studentID,
		PlanType:  models.PlanTypePremium,
		PlanName:  "Premium Plan",
		Features:  models.JSONB{models.FeatureFullAccess: true},
		Status:    models.EntitlementStatusActive,
		StartDate: now,
		Metadata:  models.JSONB{},
	}
	require.NoError(t, repo.Create(ctx, entitlement))

	exists, err := repo.HasAssignmentTransaction(ctx, entitlement.ID, models.PlanTypePremium)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, repo.AppendTransaction(ctx, &models.EntitlementTransaction{
		ID:            uuid.New(),
		EntitlementID: entitlement.ID,
		Amount:        4999.0,
		Status:        "completed",
		Mode:          models.TransactionModeSystem,
		InitiatorRole: "system",
		InitiatorName: "entitlement-sync",
		Reason:        models.ReasonTenantSubscriptionRenewed,
		PlanType:      models.PlanTypePremium,
		Assignment:    true,
	}))

	exists, err = repo.HasAssignmentTransaction(ctx, entitlement.ID, models.PlanTypePremium)
	require.NoError(t, err)
	assert.True(t, exists)

	// A different plan type is a different signature.
	exists, err = repo.HasAssignmentTransaction(ctx, entitlement.ID, models.PlanTypeFree)
	require.NoError(t, err)
	assert.False(t, exists)
}
