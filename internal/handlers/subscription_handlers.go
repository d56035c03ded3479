package handlers

import (
	"net/http"
	"time"

	"edusync/internal/caching"
	"edusync/internal/repositories"
	"edusync/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// SubscriptionHandlers exposes the approval/renewal workflow surface over
// the tenant subscription lifecycle.
type SubscriptionHandlers struct {
	subscriptionService services.SubscriptionService
	syncService         services.SyncService
	cacheService        caching.CacheService
}

func NewSubscriptionHandlers(subscriptionService services.SubscriptionService, syncService services.SyncService, cacheService caching.CacheService) *SubscriptionHandlers {
	return &SubscriptionHandlers{
		subscriptionService: subscriptionService,
		syncService:         syncService,
		cacheService:        cacheService,
	}
}

func parseTenantID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid tenant ID")
	}
	return id, nil
}

// ActivateSubscription handles POST /tenants/:id/subscription/activate
func (h *SubscriptionHandlers) ActivateSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := parseTenantID(c)
	if err != nil {
		return err
	}

	var req struct {
		OrgID        uuid.UUID `json:"org_id"`
		PlanType     string    `json:"plan_type"`
		DurationDays int       `json:"duration_days"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.PlanType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Plan type is required")
	}

	subscription, err := h.subscriptionService.CreateOrActivate(ctx, tenantID, req.OrgID, req.PlanType, req.DurationDays)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Subscription activated",
		"subscription": subscription,
	})
}

// RenewSubscription handles POST /tenants/:id/subscription/renew
func (h *SubscriptionHandlers) RenewSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := parseTenantID(c)
	if err != nil {
		return err
	}

	var req struct {
		DurationDays int `json:"duration_days"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	subscription, err := h.subscriptionService.Renew(ctx, tenantID, req.DurationDays)
	if err != nil {
		if err == repositories.ErrSubscriptionNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "Subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Subscription renewed",
		"subscription": subscription,
	})
}

// CancelSubscription handles POST /tenants/:id/subscription/cancel
func (h *SubscriptionHandlers) CancelSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := parseTenantID(c)
	if err != nil {
		return err
	}

	subscription, err := h.subscriptionService.Cancel(ctx, tenantID)
	if err != nil {
		if err == repositories.ErrSubscriptionNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "Subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Subscription cancelled",
		"subscription": subscription,
	})
}

// GetSubscription handles GET /tenants/:id/subscription with a read-through cache.
func (h *SubscriptionHandlers) GetSubscription(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := parseTenantID(c)
	if err != nil {
		return err
	}

	if cached, err := h.cacheService.GetTenantSubscription(ctx, tenantID); err == nil && cached != nil {
		return c.JSON(http.StatusOK, cached)
	}

	subscription, err := h.subscriptionService.GetByTenantID(ctx, tenantID)
	if err != nil {
		if err == repositories.ErrSubscriptionNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "Subscription not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	_ = h.cacheService.SetTenantSubscription(ctx, subscription, 5*time.Minute)
	return c.JSON(http.StatusOK, subscription)
}

// ReconcileTenant handles POST /tenants/:id/reconcile for manual replays.
func (h *SubscriptionHandlers) ReconcileTenant(c echo.Context) error {
	ctx := c.Request().Context()

	tenantID, err := parseTenantID(c)
	if err != nil {
		return err
	}

	var req struct {
		OrgID        uuid.UUID  `json:"org_id"`
		TargetActive bool       `json:"target_active"`
		EndDate      *time.Time `json:"end_date"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	result, err := h.syncService.ReconcileTenant(ctx, tenantID, req.OrgID, req.TargetActive, req.EndDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, result)
}
