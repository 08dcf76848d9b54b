package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netonboard/internal/domain"
	"netonboard/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	require.NoError(t, err, "failed to create test repository")

	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

func mustCreate(t *testing.T, s repository.Store, kind domain.EntityKind, fields domain.Fields) *domain.Entity {
	t.Helper()
	e, err := s.Create(context.Background(), kind, fields)
	require.NoError(t, err)
	return e
}

// ============================================================================
// CRUD
// ============================================================================

func TestCreateAndFindOne(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	site := mustCreate(t, repo, domain.KindSite, domain.Fields{"name": "HQ", "slug": "hq"})
	assert.NotEmpty(t, site.ID)

	got, err := repo.FindOne(ctx, domain.KindSite, domain.Filter{"name": "HQ"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, site.ID, got.ID)
	assert.Equal(t, "hq", got.Fields.String("slug"))

	missing, err := repo.FindOne(ctx, domain.KindSite, domain.Filter{"name": "B"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	// same name, different kind
	other, err := repo.FindOne(ctx, domain.KindPlatform, domain.Filter{"name": "HQ"})
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestFindFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	mustCreate(t, repo, domain.KindInterface, domain.Fields{"device_id": "d1", "name": "Gi0/0", "enabled": true})
	mustCreate(t, repo, domain.KindInterface, domain.Fields{"device_id": "d1", "name": "Gi0/1", "enabled": false})
	mustCreate(t, repo, domain.KindInterface, domain.Fields{"device_id": "d2", "name": "Gi0/0", "enabled": true})

	tests := []struct {
		name   string
		filter domain.Filter
		want   int
	}{
		{"all", nil, 3},
		{"by device", domain.Filter{"device_id": "d1"}, 2},
		{"by device and name", domain.Filter{"device_id": "d1", "name": "Gi0/0"}, 1},
		{"by bool", domain.Filter{"enabled": true}, 2},
		{"missing field", domain.Filter{"mac_address": nil}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindAll(ctx, domain.KindInterface, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	_, err := repo.FindAll(ctx, domain.KindInterface, domain.Filter{"name') OR 1=1 --": "x"})
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestCreateDuplicateIdentity(t *testing.T) {
	repo := newTestRepo(t)

	mustCreate(t, repo, domain.KindDevice, domain.Fields{"site_id": "s1", "name": "sw1"})

	_, err := repo.Create(context.Background(), domain.KindDevice, domain.Fields{"site_id": "s1", "name": "sw1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflictingEntity)

	// same name at another site is a distinct identity
	mustCreate(t, repo, domain.KindDevice, domain.Fields{"site_id": "s2", "name": "sw1"})
}

func TestCreateMissingIdentityField(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Create(context.Background(), domain.KindDeviceType, domain.Fields{"model": "ISR4451"})
	assert.Equal(t, domain.KindConfig, domain.KindOf(err))
}

func TestUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	dev := mustCreate(t, repo, domain.KindDevice, domain.Fields{
		"site_id": "s1", "name": "sw1", "serial": "OLD", "custom_fields": map[string]any{"owner": "net"},
	})

	updated, err := repo.Update(ctx, domain.KindDevice, dev.ID, domain.Fields{"serial": "NEW"})
	require.NoError(t, err)
	assert.Equal(t, "NEW", updated.Fields.String("serial"))

	got, err := repo.FindOne(ctx, domain.KindDevice, domain.Filter{"name": "sw1"})
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.Fields.String("serial"))
	assert.Equal(t, map[string]any{"owner": "net"}, got.Fields["custom_fields"])

	_, err = repo.Update(ctx, domain.KindDevice, "nope", domain.Fields{"serial": "X"})
	assert.ErrorIs(t, err, domain.ErrConflictingEntity)
}

// ============================================================================
// Transactions
// ============================================================================

func TestRunAtomicRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.RunAtomic(ctx, func(tx repository.Store) error {
		mustCreate(t, tx, domain.KindManufacturer, domain.Fields{"name": "Cisco"})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := repo.Count(ctx, domain.KindManufacturer)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunAtomicCommit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.RunAtomic(ctx, func(tx repository.Store) error {
		m := mustCreate(t, tx, domain.KindManufacturer, domain.Fields{"name": "Cisco"})

		// nested calls join the outer transaction
		return tx.RunAtomic(ctx, func(inner repository.Store) error {
			found, err := inner.FindOne(ctx, domain.KindManufacturer, domain.Filter{"name": "Cisco"})
			if err != nil {
				return err
			}
			assert.Equal(t, m.ID, found.ID)
			return nil
		})
	})
	require.NoError(t, err)

	n, err := repo.Count(ctx, domain.KindManufacturer)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileDatabaseReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")

	repo, err := New(path)
	require.NoError(t, err)
	mustCreate(t, repo, domain.KindSite, domain.Fields{"name": "HQ"})
	require.NoError(t, repo.Close())

	repo, err = New(path)
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.FindOne(context.Background(), domain.KindSite, domain.Filter{"name": "HQ"})
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	repo, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = repo.FindOne(context.Background(), domain.KindSite, domain.Filter{"name": "HQ"})
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestExpiredDeadlineIsUnavailable(t *testing.T) {
	repo := newTestRepo(t)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := repo.RunAtomic(ctx, func(tx repository.Store) error {
		_, err := tx.FindOne(ctx, domain.KindSite, domain.Filter{"name": "HQ"})
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, domain.IsRetryable(err))
}
