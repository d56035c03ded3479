package repositories

import (
	"context"
	"testing"
	"time"

	"edusync/internal/models"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type SubscriptionRepoTestSuite struct {
	suite.Suite
	mock     pgxmock.PgxPoolIface
	repo     TenantSubscriptionRepository
	tenantID uuid.UUID
	orgID    uuid.UUID
	context  context.Context
}

func (suite *SubscriptionRepoTestSuite) SetupTest() {
	mock, err := pgxmock.NewPool()
	assert.NoError(suite.T(), err)
	suite.mock = mock

	suite.repo = NewTenantSubscriptionRepo(mock)
	suite.tenantID = uuid.New()
	suite.orgID = uuid.New()
	suite.context = context.Background()
}

func (suite *SubscriptionRepoTestSuite) TearDownTest() {
	assert.NoError(suite.T(), suite.mock.ExpectationsWereMet())
	suite.mock.Close()
}

func TestSubscriptionRepoTestSuite(t *testing.T) {
	suite.Run(t, new(SubscriptionRepoTestSuite))
}

func (suite *SubscriptionRepoTestSuite) subscriptionRows(subscription *models.TenantSubscription) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "tenant_id", "org_id", "plan_type", "plan_name", "plan_limits", "status", "start_date", "end_date", "auto_renew", "renewal_count", "created_at", "updated_at"}).
		AddRow(subscription.ID, subscription.TenantID, subscription.OrgID, subscription.PlanType, subscription.PlanName, subscription.PlanLimits, subscription.Status, subscription.StartDate, subscription.EndDate, subscription.AutoRenew, subscription.RenewalCount, subscription.CreatedAt, subscription.UpdatedAt)
}

func (suite *SubscriptionRepoTestSuite) TestGetByTenantID_Success() {
	endDate := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	subscription := &models.TenantSubscription{
		ID:         uuid.New(),
		TenantID:   suite.tenantID,
		OrgID:      suite.orgID,
		PlanType:   models.PlanTypePremium,
		PlanName:   "Premium Plan",
		PlanLimits: models.JSONB{},
		Status:     models.SubscriptionStatusActive,
		StartDate:  endDate.AddDate(0, 0, -30),
		EndDate:    &endDate,
	}

	suite.mock.ExpectQuery(`SELECT (.+) FROM tenant_subscriptions\s+WHERE tenant_id = \$1`).
		WithArgs(suite.tenantID).
		WillReturnRows(suite.subscriptionRows(subscription))

	found, err := suite.repo.GetByTenantID(suite.context, suite.tenantID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), subscription.ID, found.ID)
	assert.Equal(suite.T(), models.SubscriptionStatusActive, found.Status)
	assert.Equal(suite.T(), endDate, *found.EndDate)
}

func (suite *SubscriptionRepoTestSuite) TestGetByTenantID_NotFound() {
	suite.mock.ExpectQuery(`SELECT (.+) FROM tenant_subscriptions\s+WHERE tenant_id = \$1`).
		WithArgs(suite.tenantID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	found, err := suite.repo.GetByTenantID(suite.context, suite.tenantID)
	assert.ErrorIs(suite.T(), err, ErrSubscriptionNotFound)
	assert.Nil(suite.T(), found)
}

func (suite *SubscriptionRepoTestSuite) TestUpsert_Success() {
	endDate := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	subscription := &models.TenantSubscription{
		ID:         uuid.New(),
		TenantID:   suite.tenantID,
		OrgID:      suite.orgID,
		PlanType:   models.PlanTypePremium,
		PlanName:   "Premium Plan",
		PlanLimits: models.JSONB{},
		Status:     models.SubscriptionStatusActive,
		StartDate:  endDate.AddDate(0, 0, -30),
		EndDate:    &endDate,
	}

	suite.mock.ExpectExec(`INSERT INTO tenant_subscriptions (.+) ON CONFLICT \(tenant_id\) DO UPDATE SET`).
		WithArgs(subscription.ID, subscription.TenantID, subscription.OrgID, subscription.PlanType, subscription.PlanName, subscription.PlanLimits, subscription.Status, subscription.StartDate, subscription.EndDate, subscription.AutoRenew, subscription.RenewalCount).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := suite.repo.Upsert(suite.context, subscription)
	assert.NoError(suite.T(), err)
}

func (suite *SubscriptionRepoTestSuite) TestListDue_ReturnsExpiredStatusesToo() {
	now := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)
	endDate := now.Add(-time.Hour)
	active := &models.TenantSubscription{
		ID:         uuid.New(),
		TenantID:   suite.tenantID,
		OrgID:      suite.orgID,
		PlanType:   models.PlanTypePremium,
		PlanLimits: models.JSONB{},
		Status:     models.SubscriptionStatusActive,
		EndDate:    &endDate,
	}
	expired := &models.TenantSubscription{
		ID:         uuid.New(),
		TenantID:   uuid.New(),
		OrgID:      suite.orgID,
		PlanType:   models.PlanTypePremium,
		PlanLimits: models.JSONB{},
		Status:     models.SubscriptionStatusExpired,
		EndDate:    &endDate,
	}

	rows := suite.subscriptionRows(active).
		AddRow(expired.ID, expired.TenantID, expired.OrgID, expired.PlanType, expired.PlanName, expired.PlanLimits, expired.Status, expired.StartDate, expired.EndDate, expired.AutoRenew, expired.RenewalCount, expired.CreatedAt, expired.UpdatedAt)

	suite.mock.ExpectQuery(`SELECT (.+) FROM tenant_subscriptions\s+WHERE end_date IS NOT NULL AND end_date <= \$1`).
		WithArgs(now).
		WillReturnRows(rows)

	due, err := suite.repo.ListDue(suite.context, now)
	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), due, 2)
	assert.Equal(suite.T(), models.SubscriptionStatusExpired, due[1].Status)
}

func (suite *SubscriptionRepoTestSuite) TestMarkExpiredIfDue_Flips() {
	id := uuid.New()
	now := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)

	suite.mock.ExpectExec(`UPDATE tenant_subscriptions\s+SET status = 'expired'`).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	expired, err := suite.repo.MarkExpiredIfDue(suite.context, id, now)
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), expired)
}

func (suite *SubscriptionRepoTestSuite) TestMarkExpiredIfDue_ConcurrentRenewalWins() {
	id := uuid.New()
	now := time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)

	suite.mock.ExpectExec(`UPDATE tenant_subscriptions\s+SET status = 'expired'`).
		WithArgs(id, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	expired, err := suite.repo.MarkExpiredIfDue(suite.context, id, now)
	assert.NoError(suite.T(), err)
	assert.False(suite.T(), expired)
}
