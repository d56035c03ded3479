package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"edusync/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type CacheService interface {
	// Entitlement snapshot caching
	GetUserEntitlement(ctx context.Context, userID uuid.UUID) (*models.UserEntitlement, error)
	SetUserEntitlement(ctx context.Context, entitlement *models.UserEntitlement, ttl time.Duration) error
	DeleteUserEntitlement(ctx context.Context, userID uuid.UUID) error

	// Tenant subscription caching
	GetTenantSubscription(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error)
	SetTenantSubscription(ctx context.Context, subscription *models.TenantSubscription, ttl time.Duration) error
	DeleteTenantSubscription(ctx context.Context, tenantID uuid.UUID) error

	// Cache invalidation
	InvalidateTenantCache(ctx context.Context, tenantID uuid.UUID) error
}

type redisCacheService struct {
	client *redis.Client
}

func NewRedisCacheService(addr, password string, db int) CacheService {
	// Accept redis:// and rediss:// style addresses as well as plain host:port
	parsedAddr := addr
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		if hostPort := strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://"); hostPort != addr {
			parsedAddr = hostPort
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     parsedAddr,
		Password: password,
		DB:       db,
	})

	if pingErr := client.Ping(context.Background()).Err(); pingErr != nil {
		log.Printf("WARN: Redis ping failed on initialization: %v (address: %s)", pingErr, parsedAddr)
	}

	return &redisCacheService{client: client}
}

func entitlementKey(userID uuid.UUID) string {
	return fmt.Sprintf("entitlement:user:%s", userID)
}

func subscriptionKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("subscription:tenant:%s", tenantID)
}

func (s *redisCacheService) GetUserEntitlement(ctx context.Context, userID uuid.UUID) (*models.UserEntitlement, error) {
	data, err := s.client.Get(ctx, entitlementKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entitlement := &models.UserEntitlement{}
	if err := json.Unmarshal(data, entitlement); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached entitlement: %v", err)
	}
	return entitlement, nil
}

func (s *redisCacheService) SetUserEntitlement(ctx context.Context, entitlement *models.UserEntitlement, ttl time.Duration) error {
	data, err := json.Marshal(entitlement)
	if err != nil {
		return fmt.Errorf("failed to marshal entitlement: %v", err)
	}
	return s.client.Set(ctx, entitlementKey(entitlement.UserID), data, ttl).Err()
}

func (s *redisCacheService) DeleteUserEntitlement(ctx context.Context, userID uuid.UUID) error {
	return s.client.Del(ctx, entitlementKey(userID)).Err()
}

func (s *redisCacheService) GetTenantSubscription(ctx context.Context, tenantID uuid.UUID) (*models.TenantSubscription, error) {
	data, err := s.client.Get(ctx, subscriptionKey(tenantID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	subscription := &models.TenantSubscription{}
	if err := json.Unmarshal(data, subscription); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached subscription: %v", err)
	}
	return subscription, nil
}

func (s *redisCacheService) SetTenantSubscription(ctx context.Context, subscription *models.TenantSubscription, ttl time.Duration) error {
	data, err := json.Marshal(subscription)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %v", err)
	}
	return s.client.Set(ctx, subscriptionKey(subscription.TenantID), data, ttl).Err()
}

func (s *redisCacheService) DeleteTenantSubscription(ctx context.Context, tenantID uuid.UUID) error {
	return s.client.Del(ctx, subscriptionKey(tenantID)).Err()
}

func (s *redisCacheService) InvalidateTenantCache(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.DeleteTenantSubscription(ctx, tenantID); err != nil {
		return err
	}

	// Entitlement keys are per-user; scan for any left behind by members
	// of this tenant is not possible from the key alone, so reconciliation
	// invalidates per user as it writes. Nothing more to do here.
	return nil
}
