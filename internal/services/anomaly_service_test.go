package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"edusync/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type AnomalyServiceTestSuite struct {
	suite.Suite
	mockEntitlementRepo *MockUserEntitlementRepository
	clock               *clockwork.FakeClock
	service             AnomalyService
	userID              uuid.UUID
}

func (suite *AnomalyServiceTestSuite) SetupTest() {
	suite.mockEntitlementRepo = &MockUserEntitlementRepository{}
	suite.clock = clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	suite.service = NewAnomalyService(suite.mockEntitlementRepo, suite.clock)
	suite.userID = uuid.New()
}

func (suite *AnomalyServiceTestSuite) TearDownTest() {
	suite.mockEntitlementRepo.AssertExpectations(suite.T())
}

func TestAnomalyServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AnomalyServiceTestSuite))
}

func (suite *AnomalyServiceTestSuite) TestCorrectDowngrade_ExpiresExtrasExcludingLinked() {
	linked := &models.UserEntitlement{
		ID:       uuid.New(),
		UserID:   suite.userID,
		PlanType: models.PlanTypePremium,
		Status:   models.EntitlementStatusActive,
	}
	duplicate := &models.UserEntitlement{
		ID:       uuid.New(),
		UserID:   suite.userID,
		PlanType: models.PlanTypePremium,
		Status:   models.EntitlementStatusActive,
	}

	suite.mockEntitlementRepo.On("ListActivePaidByUser", mock.Anything, suite.userID).
		Return([]*models.UserEntitlement{linked, duplicate}, nil).Once()
	suite.mockEntitlementRepo.On("Update", mock.Anything, duplicate).Return(nil).Once()

	touched, err := suite.service.CorrectDowngrade(context.Background(), suite.userID, linked.ID)

	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), touched, 1)
	assert.Equal(suite.T(), duplicate.ID, touched[0].ID)
	assert.Equal(suite.T(), models.EntitlementStatusExpired, duplicate.Status)
	assert.NotNil(suite.T(), duplicate.EndDate)
	assert.Equal(suite.T(), suite.clock.Now().UTC(), *duplicate.EndDate)
	// The linked record is left for the canonical downgrade path.
	assert.Equal(suite.T(), models.EntitlementStatusActive, linked.Status)
}

func (suite *AnomalyServiceTestSuite) TestCorrectDowngrade_PlanTypeUntouched() {
	duplicate := &models.UserEntitlement{
		ID:       uuid.New(),
		UserID:   suite.userID,
		PlanType: models.PlanTypePremium,
		Status:   models.EntitlementStatusActive,
	}

	suite.mockEntitlementRepo.On("ListActivePaidByUser", mock.Anything, suite.userID).
		Return([]*models.UserEntitlement{duplicate}, nil).Once()
	suite.mockEntitlementRepo.On("Update", mock.Anything, duplicate).Return(nil).Once()

	touched, err := suite.service.CorrectDowngrade(context.Background(), suite.userID, uuid.Nil)

	assert.NoError(suite.T(), err)
	assert.Len(suite.T(), touched, 1)
	assert.Equal(suite.T(), models.PlanTypePremium, duplicate.PlanType)
	assert.Equal(suite.T(), models.EntitlementStatusExpired, duplicate.Status)
}

func (suite *AnomalyServiceTestSuite) TestCorrectDowngrade_NoActivePaidIsNoop() {
	suite.mockEntitlementRepo.On("ListActivePaidByUser", mock.Anything, suite.userID).
		Return([]*models.UserEntitlement{}, nil).Once()

	touched, err := suite.service.CorrectDowngrade(context.Background(), suite.userID, uuid.Nil)

	assert.NoError(suite.T(), err)
	assert.Empty(suite.T(), touched)
	suite.mockEntitlementRepo.AssertNotCalled(suite.T(), "Update", mock.Anything, mock.Anything)
}

func (suite *AnomalyServiceTestSuite) TestCorrectDowngrade_UpdateFailureReturnsPartialProgress() {
	first := &models.UserEntitlement{
		ID:       uuid.New(),
		UserID:   suite.userID,
		PlanType: models.PlanTypePremium,
		Status:   models.EntitlementStatusActive,
	}
	second := &models.UserEntitlement{
		ID:       uuid.New(),
		UserID:   suite.userID,
		PlanType: models.PlanTypePremium,
		Status:   models.EntitlementStatusActive,
	}

	suite.mockEntitlementRepo.On("ListActivePaidByUser", mock.Anything, suite.userID).
		Return([]*models.UserEntitlement{first, second}, nil).Once()
	suite.mockEntitlementRepo.On("Update", mock.Anything, first).Return(nil).Once()
	suite.mockEntitlementRepo.On("Update", mock.Anything, second).Return(errors.New("connection reset")).Once()

	touched, err := suite.service.CorrectDowngrade(context.Background(), suite.userID, uuid.Nil)

	assert.Error(suite.T(), err)
	assert.Len(suite.T(), touched, 1)
	assert.Equal(suite.T(), first.ID, touched[0].ID)
}
