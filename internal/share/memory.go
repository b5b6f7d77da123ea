package share

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps share records in process memory. It is used when no
// database is configured and in tests; one mutex serializes every write.
type MemoryStore struct {
	mu     sync.RWMutex
	files  map[string]*File
	links  map[string]*Link
	access []AccessEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*File),
		links: make(map[string]*Link),
	}
}

func (s *MemoryStore) CreateShare(_ context.Context, f *File, l *Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[l.ShareCode]; ok {
		return ErrConflict
	}
	fc, lc := *f, *l
	lc.Active = true
	s.files[f.ID] = &fc
	s.links[l.ShareCode] = &lc
	return nil
}

func (s *MemoryStore) GetLink(_ context.Context, shareCode string) (*Link, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[shareCode]
	if !ok {
		return nil, ErrNotFound
	}
	lc := *l
	return &lc, nil
}

func (s *MemoryStore) GetFile(_ context.Context, fileID string) (*File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok || f.Deleted {
		return nil, ErrNotFound
	}
	fc := *f
	return &fc, nil
}

func (s *MemoryStore) RecordAccess(_ context.Context, e AccessEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.links[e.ShareCode]
	if !ok {
		return ErrNotFound
	}
	at := e.Time
	l.AccessCount++
	l.LastAccessTime = &at
	if f, ok := s.files[e.FileID]; ok {
		f.DownloadCount++
	}
	s.access = append(s.access, e)
	return nil
}

func (s *MemoryStore) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, f := range s.files {
		if !f.Deleted && f.ExpireTime.Before(now) {
			f.Deleted = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListFiles(_ context.Context, limit, offset int) ([]FileSummary, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := []FileSummary{}
	for _, l := range s.links {
		f, ok := s.files[l.FileID]
		if !ok || f.Deleted {
			continue
		}
		all = append(all, FileSummary{File: *f, ShareCode: l.ShareCode, AccessCount: l.AccessCount, LastAccessTime: l.LastAccessTime})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UploadTime.After(all[j].UploadTime) })

	total := int64(len(all))
	if offset >= len(all) {
		return []FileSummary{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) FileStats(_ context.Context, fileID string) (*FileStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[fileID]
	if !ok || f.Deleted {
		return nil, ErrNotFound
	}
	stats := &FileStats{File: *f, Links: []Link{}, RecentAccess: []AccessEntry{}}
	for _, l := range s.links {
		if l.FileID == fileID {
			stats.Links = append(stats.Links, *l)
		}
	}
	for i := len(s.access) - 1; i >= 0 && len(stats.RecentAccess) < RecentAccessLimit; i-- {
		if s.access[i].FileID == fileID {
			stats.RecentAccess = append(stats.RecentAccess, s.access[i])
		}
	}
	return stats, nil
}

func (s *MemoryStore) Summary(_ context.Context, now time.Time) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := &Summary{}
	for _, f := range s.files {
		if f.Deleted {
			continue
		}
		sum.TotalFiles++
		sum.TotalSize += f.Size
		sum.TotalDownloads += f.DownloadCount
		if f.ExpireTime.Before(now) {
			sum.ExpiredPending++
		}
	}
	return sum, nil
}

func (s *MemoryStore) ListUnreclaimed(_ context.Context, limit int) ([]File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []File
	for _, f := range s.files {
		if f.Deleted && f.ReclaimedAt == nil {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastReclaimAttempt, out[j].LastReclaimAttempt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].UploadTime.Before(out[j].UploadTime)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkReclaimed(_ context.Context, fileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	if !ok || !f.Deleted {
		return ErrNotFound
	}
	f.ReclaimedAt = &at
	return nil
}

func (s *MemoryStore) RecordReclaimFailure(_ context.Context, fileID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[fileID]
	if !ok || !f.Deleted || f.ReclaimedAt != nil {
		return ErrNotFound
	}
	f.ReclaimAttempts++
	f.LastReclaimAttempt = &at
	return nil
}
