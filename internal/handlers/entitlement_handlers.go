package handlers

import (
	"net/http"
	"time"

	"edusync/internal/common"
	"edusync/internal/models"
	"edusync/internal/repositories"
	"edusync/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// EntitlementHandlers exposes entitlement reads and manual admin
// assignment. Manual assignment goes through the same AssignmentService
// entry point as bulk reconciliation; there is no second write path.
type EntitlementHandlers struct {
	assignmentService services.AssignmentService
	entitlementRepo   repositories.UserEntitlementRepository
	plans             models.PlanTable
}

func NewEntitlementHandlers(assignmentService services.AssignmentService, entitlementRepo repositories.UserEntitlementRepository, plans models.PlanTable) *EntitlementHandlers {
	return &EntitlementHandlers{
		assignmentService: assignmentService,
		entitlementRepo:   entitlementRepo,
		plans:             plans,
	}
}

// ListUserEntitlements handles GET /users/:id/entitlements
func (h *EntitlementHandlers) ListUserEntitlements(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}

	entitlements, err := h.entitlementRepo.ListByUser(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_id":      userID,
		"entitlements": entitlements,
	})
}

// ListTransactions handles GET /entitlements/:id/transactions
func (h *EntitlementHandlers) ListTransactions(c echo.Context) error {
	ctx := c.Request().Context()

	entitlementID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid entitlement ID")
	}

	transactions, err := h.entitlementRepo.ListTransactions(ctx, entitlementID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"entitlement_id": entitlementID,
		"transactions":   transactions,
	})
}

// AssignEntitlement handles POST /entitlements/assign (admin manual edit).
func (h *EntitlementHandlers) AssignEntitlement(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		UserID       uuid.UUID `json:"user_id"`
		PlanType     string    `json:"plan_type"`
		DurationDays int       `json:"duration_days"`
		Reason       string    `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	plan, ok := h.plans.Get(req.PlanType)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid plan type")
	}

	var endDate *time.Time
	if req.DurationDays > 0 {
		d := time.Now().UTC().AddDate(0, 0, req.DurationDays)
		endDate = &d
	}

	initiator := services.Initiator{Role: models.RoleAdmin, Context: "manual assignment"}
	if adminID, ok := common.GetUserIDFromContext(ctx); ok {
		initiator.UserID = &adminID
	}

	entitlement, err := h.assignmentService.Assign(ctx, &services.AssignRequest{
		UserID:    req.UserID,
		PlanType:  plan.Type,
		PlanName:  plan.Name,
		Features:  plan.Features,
		Amount:    plan.Amount,
		EndDate:   endDate,
		Source:    models.SourceAdmin,
		Reason:    req.Reason,
		Mode:      models.TransactionModeManual,
		Initiator: initiator,
	})
	if err != nil {
		if err == repositories.ErrUserNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "User not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":     "Entitlement assigned",
		"entitlement": entitlement,
	})
}
