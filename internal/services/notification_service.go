package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"edusync/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NotificationService publishes per-user events. Delivery is
// fire-and-forget, at-most-once: a lost message is acceptable because
// clients re-derive their state from the stored entitlement, and the next
// reconciliation re-notifies anyway.
type NotificationService interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload models.JSONB) error
}

type redisNotificationService struct {
	client *redis.Client
}

// NewNotificationService creates a redis-backed notification publisher.
func NewNotificationService(redisAddr, redisPassword string, redisDB int) NotificationService {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	return &redisNotificationService{client: client}
}

func (s *redisNotificationService) Notify(ctx context.Context, userID uuid.UUID, event string, payload models.JSONB) error {
	message := models.NotificationMessage{
		UserID:  userID,
		Event:   event,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %v", err)
	}

	channel := fmt.Sprintf("notifications:user:%s", userID)
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		// At-most-once: log and move on, no retry and no delivery ack.
		log.Printf("Failed to publish %s notification for user %s: %v", event, userID, err)
	}
	return nil
}
