// Package share persists uploaded files, their share links and the access log.
package share

import (
	"context"
	"errors"
	"time"

	"github.com/quickshare/service/internal/storage"
)

var (
	// ErrNotFound is returned when a file or share link does not exist or was deleted.
	ErrNotFound = errors.New("share: record not found")
	// ErrConflict is returned when a share code is already taken.
	ErrConflict = errors.New("share: share code already exists")
)

// File is the metadata of one uploaded file.
type File struct {
	ID                 string          `json:"fileId"`
	OriginalName       string          `json:"originalName"`
	Size               int64           `json:"fileSize"`
	MimeType           string          `json:"mimeType"`
	StorageKey         string          `json:"storageKey"`
	Backend            storage.Backend `json:"storageBackend"`
	UploadTime         time.Time       `json:"uploadTime"`
	ExpireTime         time.Time       `json:"expireTime"`
	DownloadCount      int64           `json:"downloadCount"`
	Deleted            bool            `json:"isDeleted"`
	ReclaimedAt        *time.Time      `json:"reclaimedAt,omitempty"`
	// ReclaimAttempts counts failed deletes of the stored bytes.
	ReclaimAttempts    int             `json:"reclaimAttempts,omitempty"`
	LastReclaimAttempt *time.Time      `json:"lastReclaimAttempt,omitempty"`
}

// Expired reports whether f is past its expiry at now. A file whose expiry
// equals now is still live.
func (f *File) Expired(now time.Time) bool {
	return now.After(f.ExpireTime)
}

// Link is a share link granting access to one file.
type Link struct {
	ShareCode      string     `json:"shareCode"`
	FileID         string     `json:"fileId"`
	AccessCode     string     `json:"-"`
	CreatedTime    time.Time  `json:"createdTime"`
	LastAccessTime *time.Time `json:"lastAccessTime,omitempty"`
	AccessCount    int64      `json:"accessCount"`
	Active         bool       `json:"isActive"`
}

// AccessEntry is one row of the append-only access log.
type AccessEntry struct {
	FileID     string    `json:"fileId"`
	ShareCode  string    `json:"shareCode"`
	Time       time.Time `json:"accessTime"`
	ClientAddr string    `json:"clientAddr"`
	UserAgent  string    `json:"userAgent"`
}

// FileSummary is a live file joined with its share link, as listed to admins.
type FileSummary struct {
	File
	ShareCode      string     `json:"shareCode"`
	AccessCount    int64      `json:"accessCount"`
	LastAccessTime *time.Time `json:"lastAccessTime,omitempty"`
}

// FileStats is the access history of one file.
type FileStats struct {
	File         File          `json:"file"`
	Links        []Link        `json:"links"`
	RecentAccess []AccessEntry `json:"recentAccess"`
}

// Summary aggregates all live files.
type Summary struct {
	TotalFiles     int64 `json:"totalFiles"`
	TotalSize      int64 `json:"totalSize"`
	TotalDownloads int64 `json:"totalDownloads"`
	ExpiredPending int64 `json:"expiredPending"`
}

// RecentAccessLimit bounds FileStats.RecentAccess.
const RecentAccessLimit = 50

// Store is the share record store. Implementations must make RecordAccess
// atomic with respect to concurrent calls for the same link.
type Store interface {
	// CreateShare stores f and l together; neither is visible without the other.
	CreateShare(ctx context.Context, f *File, l *Link) error
	GetLink(ctx context.Context, shareCode string) (*Link, error)
	// GetFile returns ErrNotFound for deleted files.
	GetFile(ctx context.Context, fileID string) (*File, error)
	// RecordAccess appends e and increments the download and access counters.
	RecordAccess(ctx context.Context, e AccessEntry) error
	// MarkExpired flags every live file whose expiry is before now as deleted.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	ListFiles(ctx context.Context, limit, offset int) ([]FileSummary, int64, error)
	FileStats(ctx context.Context, fileID string) (*FileStats, error)
	Summary(ctx context.Context, now time.Time) (*Summary, error)
	// ListUnreclaimed returns deleted files whose stored bytes were not yet
	// removed. Files never attempted come first, then those whose last failed
	// attempt is oldest, so a file that keeps failing cannot hold the batch.
	ListUnreclaimed(ctx context.Context, limit int) ([]File, error)
	MarkReclaimed(ctx context.Context, fileID string, at time.Time) error
	// RecordReclaimFailure counts a failed delete and stamps it with at.
	RecordReclaimFailure(ctx context.Context, fileID string, at time.Time) error
}
