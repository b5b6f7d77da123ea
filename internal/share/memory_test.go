package share

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickshare/service/internal/storage"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *MemoryStore, id, code string, expire time.Time) {
	t.Helper()
	f := &File{
		ID: id, OriginalName: id + ".pdf", Size: 10, MimeType: "application/pdf",
		StorageKey: "uploads/" + id + ".pdf", Backend: storage.BackendLocal,
		UploadTime: baseTime, ExpireTime: expire,
	}
	l := &Link{ShareCode: code, FileID: id, AccessCode: "ABC123", CreatedTime: baseTime}
	require.NoError(t, s.CreateShare(context.Background(), f, l))
}

func TestMemoryStore_CreateShare(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "f1", "c1", baseTime.Add(time.Hour))

	l, err := s.GetLink(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, l.Active)
	assert.Equal(t, "f1", l.FileID)

	err = s.CreateShare(context.Background(), &File{ID: "f2"}, &Link{ShareCode: "c1", FileID: "f2"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.GetFile(context.Background(), "f2")
	assert.ErrorIs(t, err, ErrNotFound, "expected conflicting create to store nothing")
}

func TestMemoryStore_RecordAccessConcurrent(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "f1", "c1", baseTime.Add(time.Hour))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.RecordAccess(context.Background(), AccessEntry{
				FileID: "f1", ShareCode: "c1", Time: baseTime.Add(time.Duration(i) * time.Second),
				ClientAddr: fmt.Sprintf("10.0.0.%d", i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	f, err := s.GetFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), f.DownloadCount)

	l, err := s.GetLink(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(n), l.AccessCount)
	assert.NotNil(t, l.LastAccessTime)

	stats, err := s.FileStats(context.Background(), "f1")
	require.NoError(t, err)
	assert.Len(t, stats.RecentAccess, n)
}

func TestMemoryStore_MarkExpired(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "past", "c1", baseTime.Add(-time.Second))
	seed(t, s, "now", "c2", baseTime)
	seed(t, s, "future", "c3", baseTime.Add(time.Hour))

	n, err := s.MarkExpired(context.Background(), baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.MarkExpired(context.Background(), baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "expected second pass to be a no-op")

	_, err = s.GetFile(context.Background(), "past")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetFile(context.Background(), "now")
	assert.NoError(t, err, "expected file expiring exactly now to stay live")
}

func TestMemoryStore_ListFilesPaginates(t *testing.T) {
	s := NewMemoryStore()
	for i := 0; i < 5; i++ {
		f := &File{ID: fmt.Sprintf("f%d", i), Size: 1, UploadTime: baseTime.Add(time.Duration(i) * time.Minute), ExpireTime: baseTime.Add(time.Hour)}
		require.NoError(t, s.CreateShare(context.Background(), f, &Link{ShareCode: fmt.Sprintf("c%d", i), FileID: f.ID}))
	}

	page, total, err := s.ListFiles(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "f3", page[0].ID, "expected newest first")
	assert.Equal(t, "f2", page[1].ID)

	page, _, err = s.ListFiles(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryStore_Reclaim(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "old", "c1", baseTime.Add(-time.Hour))
	seed(t, s, "live", "c2", baseTime.Add(time.Hour))

	_, err := s.MarkExpired(context.Background(), baseTime)
	require.NoError(t, err)

	files, err := s.ListUnreclaimed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "old", files[0].ID)

	require.NoError(t, s.MarkReclaimed(context.Background(), "old", baseTime))
	assert.ErrorIs(t, s.MarkReclaimed(context.Background(), "live", baseTime), ErrNotFound)

	files, err = s.ListUnreclaimed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMemoryStore_ListUnreclaimedPutsFailedAttemptsLast(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seed(t, s, "stuck", "c1", baseTime.Add(-3*time.Hour))
	seed(t, s, "older", "c2", baseTime.Add(-2*time.Hour))
	seed(t, s, "newer", "c3", baseTime.Add(-time.Hour))
	_, err := s.MarkExpired(ctx, baseTime)
	require.NoError(t, err)

	require.NoError(t, s.RecordReclaimFailure(ctx, "stuck", baseTime))
	require.NoError(t, s.RecordReclaimFailure(ctx, "older", baseTime.Add(time.Minute)))

	next, err := s.ListUnreclaimed(ctx, 1)
	require.NoError(t, err)
	require.Len(t, next, 1)
	assert.Equal(t, "newer", next[0].ID, "expected the untried file ahead of failed ones")

	all, err := s.ListUnreclaimed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"newer", "stuck", "older"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, 1, all[1].ReclaimAttempts)

	require.NoError(t, s.MarkReclaimed(ctx, "newer", baseTime))
	assert.ErrorIs(t, s.RecordReclaimFailure(ctx, "newer", baseTime), ErrNotFound)
}

func TestMemoryStore_Summary(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s, "a", "c1", baseTime.Add(-time.Minute))
	seed(t, s, "b", "c2", baseTime.Add(time.Hour))
	require.NoError(t, s.RecordAccess(context.Background(), AccessEntry{FileID: "b", ShareCode: "c2", Time: baseTime}))

	sum, err := s.Summary(context.Background(), baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.TotalFiles)
	assert.Equal(t, int64(20), sum.TotalSize)
	assert.Equal(t, int64(1), sum.TotalDownloads)
	assert.Equal(t, int64(1), sum.ExpiredPending)
}
