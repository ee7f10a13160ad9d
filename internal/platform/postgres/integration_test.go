package postgres

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts PostgreSQL in a container and applies the migrations.
// Skipped unless TRYON_INTEGRATION is set.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("TRYON_INTEGRATION") == "" {
		t.Skip("skipping integration test: TRYON_INTEGRATION not set")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		tcpostgres.WithDatabase("tryon_test"),
		tcpostgres.WithUsername("tryon"),
		tcpostgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, "up", nil))
	return db
}

func TestIntegration_TaskLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	devices := NewPostgresDeviceStore(db, nil)
	tasks := NewPostgresTaskStore(db, nil)

	device, err := domain.NewDevice("kiosk-int-1", "lobby")
	require.NoError(t, err)
	require.NoError(t, devices.Create(ctx, device))

	dup, err := domain.NewDevice("kiosk-int-1", "again")
	require.NoError(t, err)
	assert.ErrorIs(t, devices.Create(ctx, dup), store.ErrHardwareIDExists)

	task, err := domain.NewTask(device.ID, nil, "photos/a.jpg", []domain.Garment{
		{ImageRef: "https://shop.example.com/top.jpg", Category: domain.GarmentTop},
		{ImageRef: "https://shop.example.com/pants.jpg", Category: domain.GarmentBottom, PurchaseURL: "https://shop.example.com/p"},
	})
	require.NoError(t, err)
	require.NoError(t, tasks.Create(ctx, task))

	_, err = tasks.Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TransitionFields{ExternalJobID: strPtr("job-int-1")})
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = tasks.Transition(ctx, task.ID, domain.TaskStatusProcessing, domain.TaskStatusCompleted,
					domain.TransitionFields{ResultLocation: strPtr("https://cdn.example.com/r.png")})
			} else {
				_, err = tasks.Transition(ctx, task.ID, domain.TaskStatusProcessing, domain.TaskStatusCancelled,
					domain.TransitionFields{})
			}
			if err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, store.ErrStaleTransition)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	byJob, err := tasks.GetByExternalJobID(ctx, "job-int-1")
	require.NoError(t, err)
	assert.True(t, byJob.Status.IsTerminal())
	assert.Len(t, byJob.Garments, 2)
}

func TestIntegration_PairingAndIdentity(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	devices := NewPostgresDeviceStore(db, nil)
	pairings := NewPostgresPairingStore(db, nil)
	identities := NewPostgresIdentityStore(db, nil)

	device, err := domain.NewDevice("kiosk-int-2", "")
	require.NoError(t, err)
	require.NoError(t, devices.Create(ctx, device))

	now := time.Now().UTC().Truncate(time.Microsecond)
	first, err := domain.NewPairingToken("scene-int-a", device.ID, now, 5*time.Minute)
	require.NoError(t, err)
	_, err = pairings.Issue(ctx, first)
	require.NoError(t, err)

	second, err := domain.NewPairingToken("scene-int-b", device.ID, now, 5*time.Minute)
	require.NoError(t, err)
	n, err := pairings.Issue(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = pairings.Transition(ctx, "scene-int-a", domain.PairingStatusActive, domain.PairingStatusUsed,
		store.PairingFields{IdentityExternalID: "openid-x"}, now.Add(time.Second))
	assert.ErrorIs(t, err, store.ErrStaleTransition, "superseded token cannot be used")

	used, err := pairings.Transition(ctx, "scene-int-b", domain.PairingStatusActive, domain.PairingStatusUsed,
		store.PairingFields{IdentityExternalID: "openid-x"}, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "openid-x", *used.IdentityExternalID)

	identity, err := identities.Link(ctx, "openid-x", device.ID, *used.UsedAt)
	require.NoError(t, err)
	again, err := identities.Link(ctx, "openid-x", device.ID, *used.UsedAt)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, again.ID)

	latest, err := identities.LatestVerifiedForDevice(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, latest.ID)

	linked, err := identities.GetLink(ctx, identity.ExternalID, device.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, linked.ID)
	_, err = identities.GetLink(ctx, "never-linked", device.ID)
	assert.ErrorIs(t, err, store.ErrIdentityNotFound)

	third, err := domain.NewPairingToken("scene-int-c", device.ID, now.Add(-10*time.Minute), time.Minute)
	require.NoError(t, err)
	_, err = pairings.Issue(ctx, third)
	require.NoError(t, err)
	expired, err := pairings.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)
}
