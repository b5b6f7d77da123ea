package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickshare/service/internal/apperr"
	"github.com/quickshare/service/internal/storage"
)

type failingRepo struct{ err error }

func (f failingRepo) Load(context.Context) (*Settings, error) { return nil, f.err }
func (f failingRepo) Save(context.Context, *Settings) error   { return f.err }

func newTestManager() (*Manager, *MemoryRepository) {
	repo := NewMemoryRepository()
	registry := storage.NewRegistry(&storage.MockAdapter{Name: storage.BackendLocal}, time.Second)
	return NewManager(repo, registry, clock.WallClock), repo
}

func TestManager_GetReturnsDefaultsWhenNeverSaved(t *testing.T) {
	m, _ := newTestManager()

	s, err := m.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, storage.BackendLocal, s.ActiveBackend)
	assert.Equal(t, 7, s.DefaultExpireDays)
	assert.Equal(t, 100, s.MaxFileSizeMB)
	assert.Equal(t, int64(100*1024*1024), s.MaxFileSize())
	assert.Equal(t, 10, s.UploadRateLimit)
	assert.Equal(t, 20, s.DownloadRateLimit)
	assert.NotNil(t, s.Backends)
}

func TestManager_Replace(t *testing.T) {
	cos := storage.Credentials{AccessKeyID: "ak", AccessKeySecret: "sk", Bucket: "b-125", Region: "ap-beijing"}

	tests := []struct {
		name     string
		mutate   func(s *Settings)
		wantKind apperr.Kind
		wantOK   bool
	}{
		{
			name: "should accept complete credentials for active backend",
			mutate: func(s *Settings) {
				s.ActiveBackend = storage.BackendCOS
				s.Backends[storage.BackendCOS] = cos
			},
			wantOK: true,
		},
		{
			name: "should accept incomplete credentials of inactive backend",
			mutate: func(s *Settings) {
				s.Backends[storage.BackendKodo] = storage.Credentials{AccessKeyID: "ak"}
			},
			wantOK: true,
		},
		{
			name: "should reject active backend with missing fields",
			mutate: func(s *Settings) {
				s.ActiveBackend = storage.BackendKodo
				s.Backends[storage.BackendKodo] = cos
			},
			wantKind: apperr.KindConfiguration,
		},
		{
			name:     "should reject unknown backend",
			mutate:   func(s *Settings) { s.ActiveBackend = "dropbox" },
			wantKind: apperr.KindConfiguration,
		},
		{
			name:     "should reject zero max file size",
			mutate:   func(s *Settings) { s.MaxFileSizeMB = 0 },
			wantKind: apperr.KindValidation,
		},
		{
			name:     "should reject negative expiry",
			mutate:   func(s *Settings) { s.DefaultExpireDays = -1 },
			wantKind: apperr.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, repo := newTestManager()
			s := Defaults()
			tt.mutate(s)

			saved, err := m.Replace(context.Background(), s)

			if !tt.wantOK {
				assert.Equal(t, tt.wantKind, apperr.KindOf(err))
				_, loadErr := repo.Load(context.Background())
				assert.ErrorIs(t, loadErr, ErrNotFound, "expected nothing to be saved")
				return
			}
			require.NoError(t, err)
			assert.False(t, saved.UpdatedAt.IsZero())

			got, err := m.Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, s.ActiveBackend, got.ActiveBackend)
			assert.Equal(t, s.Backends, got.Backends)
		})
	}
}

func TestManager_ReplaceIsVisibleImmediately(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	s := Defaults()
	s.MaxFileSizeMB = 5
	_, err := m.Replace(ctx, s)
	require.NoError(t, err)

	got, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.MaxFileSizeMB)

	s.MaxFileSizeMB = 6
	_, err = m.Replace(ctx, s)
	require.NoError(t, err)

	got, err = m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, got.MaxFileSizeMB)
}

func TestManager_ReplaceStampsUpdatedAtFromClock(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.FixedZone("CST", 8*3600))
	clk := testclock.NewClock(now)
	registry := storage.NewRegistry(&storage.MockAdapter{Name: storage.BackendLocal}, time.Second)
	m := NewManager(NewMemoryRepository(), registry, clk)

	saved, err := m.Replace(ctx, Defaults())
	require.NoError(t, err)
	assert.Equal(t, now.UTC(), saved.UpdatedAt)

	clk.Advance(time.Hour)
	_, err = m.Replace(ctx, Defaults())
	require.NoError(t, err)

	got, err := m.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).UTC(), got.UpdatedAt)
}

func TestManager_RepositoryFailureIsInternal(t *testing.T) {
	registry := storage.NewRegistry(&storage.MockAdapter{Name: storage.BackendLocal}, time.Second)
	m := NewManager(failingRepo{err: errors.New("connection refused")}, registry, clock.WallClock)

	_, err := m.Get(context.Background())
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	_, err = m.Replace(context.Background(), Defaults())
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	s := Defaults()
	require.NoError(t, repo.Save(ctx, s))
	s.Backends[storage.BackendS3] = storage.Credentials{Bucket: "mutated"}

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.NotContains(t, got.Backends, storage.BackendS3)
}
