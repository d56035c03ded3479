package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"edusync/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TestDB holds the database connection for testing
type TestDB struct {
	Pool    *pgxpool.Pool
	Cleanup func() error
}

// SetupTestDB creates a pooled connection for testing
func SetupTestDB(t *testing.T, connString string) *TestDB {
	t.Helper()

	if connString == "" {
		connString = os.Getenv("TEST_DATABASE_URL")
		if connString == "" {
			connString = "host=localhost port=5432 user=postgres password=postgres dbname=edusync_test sslmode=disable"
		}
	}

	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	return &TestDB{
		Pool: pool,
		Cleanup: func() error {
			pool.Close()
			return nil
		},
	}
}

// SetupTestTenant creates a test tenant for testing
func SetupTestTenant(t *testing.T, db *TestDB) (uuid.UUID, uuid.UUID) {
	t.Helper()

	tenantID := uuid.New()
	orgID := uuid.New()
	query := `
		INSERT INTO tenants (id, org_id, name, subdomain, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (subdomain) DO NOTHING
	`
	_, err := db.Pool.Exec(context.Background(), query, tenantID, orgID, "Test School", "test-school", "active")
	if err != nil {
		t.Fatalf("Failed to create test tenant: %v", err)
	}

	return tenantID, orgID
}

// SetupTestStudent creates an active student member of the tenant
func SetupTestStudent(t *testing.T, db *TestDB, tenantID, orgID uuid.UUID) uuid.UUID {
	t.Helper()

	userID := uuid.New()
	query := `
		INSERT INTO users (id, tenant_id, org_id, email, password_hash, first_name, last_name, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`
	_, err := db.Pool.Exec(context.Background(), query, userID, tenantID, orgID,
		userID.String()+"@example.test", "x", "Test", "Student", models.RoleStudent, "active")
	if err != nil {
		t.Fatalf("Failed to create test student: %v", err)
	}

	return userID
}

// SetupTestSubscription creates an active subscription ending at endDate
func SetupTestSubscription(t *testing.T, db *TestDB, tenantID, orgID uuid.UUID, status string, endDate time.Time) uuid.UUID {
	t.Helper()

	subscriptionID := uuid.New()
	query := `
		INSERT INTO tenant_subscriptions (id, tenant_id, org_id, plan_type, plan_name, plan_limits, status, start_date, end_date, auto_renew, renewal_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`
	_, err := db.Pool.Exec(context.Background(), query, subscriptionID, tenantID, orgID,
		models.PlanTypePremium, "Premium Plan", models.JSONB{}, status, endDate.AddDate(0, -1, 0), endDate, false, 0)
	if err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return subscriptionID
}
