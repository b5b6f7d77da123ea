// Package files implements the share-link lifecycle: upload through the
// active storage backend, access-code verification, download accounting,
// preview and the expiry sweep.
package files

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/quickshare/service/internal/apperr"
	"github.com/quickshare/service/internal/ident"
	"github.com/quickshare/service/internal/settings"
	"github.com/quickshare/service/internal/share"
	"github.com/quickshare/service/internal/storage"
)

// PreviewCountsAsAccess records whether a preview is logged and counted like a
// download. It is not: previews are rendered inline and repeat on every page view.
const PreviewCountsAsAccess = false

// MaxExpireDays bounds a caller-supplied expiry override.
const MaxExpireDays = 365

// shareCodeAttempts bounds retries after a share-code collision.
const shareCodeAttempts = 5

// allowedExtensions maps every uploadable extension to the content type the
// file is stored and served with.
var allowedExtensions = map[string]string{
	"jpg": "image/jpeg", "jpeg": "image/jpeg", "png": "image/png",
	"gif": "image/gif", "bmp": "image/bmp", "webp": "image/webp",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"txt":  "text/plain; charset=utf-8",
	"md":   "text/markdown; charset=utf-8",
	"csv":  "text/csv; charset=utf-8",
	"zip":  "application/zip",
	"rar":  "application/vnd.rar",
	"7z":   "application/x-7z-compressed",
	"tar":  "application/x-tar",
	"gz":   "application/gzip",
	"mp4":  "video/mp4",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"wmv":  "video/x-ms-wmv",
	"flv":  "video/x-flv",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"exe":  "application/vnd.microsoft.portable-executable",
	"msi":  "application/x-msdownload",
	"dmg":  "application/x-apple-diskimage",
	"deb":  "application/vnd.debian.binary-package",
	"rpm":  "application/x-rpm",
}

// previewExtensions are the raster formats served inline. SVG is not
// uploadable and must never be added here.
var previewExtensions = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "bmp": {}, "webp": {},
}

func extensionOf(name string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
}

// AllowedExtension reports whether name carries an extension on the upload allow-list.
func AllowedExtension(name string) bool {
	_, ok := allowedExtensions[extensionOf(name)]
	return ok
}

// Previewable reports whether name is a raster image that may be shown inline.
func Previewable(name string) bool {
	_, ok := previewExtensions[extensionOf(name)]
	return ok
}

// SettingsSource returns the current settings. *settings.Manager implements it.
type SettingsSource interface {
	Get(ctx context.Context) (*settings.Settings, error)
}

// Adapters resolves storage adapters. *storage.Registry implements it.
type Adapters interface {
	Open(b storage.Backend, creds storage.Credentials) (storage.Adapter, error)
	Local() storage.Adapter
}

// UploadInput describes a file already spooled to TempPath. The service owns
// TempPath from the moment Upload is called and always removes it.
type UploadInput struct {
	TempPath     string
	OriginalName string
	Size         int64
	MimeType     string
	// ExpireDays overrides the configured default when positive.
	ExpireDays int
}

// UploadResult is returned by a successful Upload.
type UploadResult struct {
	FileID       string
	ShareCode    string
	AccessCode   string
	OriginalName string
	Size         int64
	MimeType     string
	Backend      storage.Backend
	StorageKey   string
	UploadTime   time.Time
	ExpireTime   time.Time
	// FellBack is set when the active backend failed and the file went to local disk.
	FellBack bool
}

// Descriptor is what a verified caller needs to fetch a file's bytes.
type Descriptor struct {
	FileID        string          `json:"fileId"`
	ShareCode     string          `json:"shareCode"`
	OriginalName  string          `json:"fileName"`
	Size          int64           `json:"fileSize"`
	MimeType      string          `json:"mimeType"`
	Backend       storage.Backend `json:"storageBackend"`
	StorageKey    string          `json:"-"`
	UploadTime    time.Time       `json:"uploadTime"`
	ExpireTime    time.Time       `json:"expireTime"`
	DownloadCount int64           `json:"downloadCount"`
}

// IsImage reports whether the file can be previewed.
func (d *Descriptor) IsImage() bool {
	return Previewable(d.OriginalName)
}

// Client identifies who resolved a share link, for the access log.
type Client struct {
	Addr  string
	Agent string
}

// Service is the file lifecycle manager.
type Service struct {
	store    share.Store
	settings SettingsSource
	adapters Adapters
	clock    clock.Clock
}

// NewService creates a Service.
func NewService(store share.Store, cfg SettingsSource, adapters Adapters, clk clock.Clock) *Service {
	return &Service{store: store, settings: cfg, adapters: adapters, clock: clk}
}

// Upload validates the spooled file, writes it to the active backend (or to
// local disk when the active backend fails) and mints a share link.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	defer func() {
		if err := os.Remove(in.TempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", in.TempPath).Msg("failed to remove temp upload")
		}
	}()

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateUpload(in, cfg); err != nil {
		return nil, err
	}

	expireDays := cfg.DefaultExpireDays
	if in.ExpireDays > 0 {
		expireDays = in.ExpireDays
	}

	now := s.clock.Now().UTC()
	key := ident.StorageKey(in.OriginalName, now)

	receipt, fellBack, err := s.put(ctx, cfg, in.TempPath, key)
	if err != nil {
		return nil, err
	}

	f := &share.File{
		ID:           ident.FileID(),
		OriginalName: in.OriginalName,
		Size:         in.Size,
		MimeType:     detectMime(in.OriginalName, in.MimeType),
		StorageKey:   key,
		Backend:      receipt.Backend,
		UploadTime:   now,
		ExpireTime:   now.Add(time.Duration(expireDays) * 24 * time.Hour),
	}

	link, err := s.createShare(ctx, f, now)
	if err != nil {
		s.discard(receipt)
		return nil, apperr.Internal(err)
	}

	uploadsTotal.WithLabelValues(string(f.Backend)).Inc()
	uploadBytesTotal.Add(float64(f.Size))
	log.Info().
		Str("file_id", f.ID).
		Str("backend", string(f.Backend)).
		Int64("size", f.Size).
		Bool("fallback", fellBack).
		Msg("file uploaded")

	return &UploadResult{
		FileID:       f.ID,
		ShareCode:    link.ShareCode,
		AccessCode:   link.AccessCode,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		MimeType:     f.MimeType,
		Backend:      f.Backend,
		StorageKey:   f.StorageKey,
		UploadTime:   f.UploadTime,
		ExpireTime:   f.ExpireTime,
		FellBack:     fellBack,
	}, nil
}

func validateUpload(in UploadInput, cfg *settings.Settings) error {
	if strings.TrimSpace(in.OriginalName) == "" {
		return apperr.Validation("file name is required")
	}
	if !AllowedExtension(in.OriginalName) {
		return apperr.Validation("file type %q is not allowed", filepath.Ext(in.OriginalName))
	}
	if in.Size <= 0 {
		return apperr.Validation("file is empty")
	}
	if in.Size > cfg.MaxFileSize() {
		return apperr.TooLarge("file exceeds the %d MB limit", cfg.MaxFileSizeMB)
	}
	if in.ExpireDays < 0 || in.ExpireDays > MaxExpireDays {
		return apperr.Validation("expireDays must be between 1 and %d", MaxExpireDays)
	}
	return nil
}

// put writes to the active backend and falls back to local disk once when a
// remote backend cannot be built or rejects the write.
func (s *Service) put(ctx context.Context, cfg *settings.Settings, path, key string) (*storage.Receipt, bool, error) {
	local := s.adapters.Local()

	if cfg.ActiveBackend != storage.BackendLocal {
		adapter, err := s.adapters.Open(cfg.ActiveBackend, cfg.Credentials(cfg.ActiveBackend))
		if err == nil {
			var receipt *storage.Receipt
			if receipt, err = adapter.Put(ctx, path, key); err == nil {
				return receipt, false, nil
			}
		}
		log.Warn().Err(err).
			Str("backend", string(cfg.ActiveBackend)).
			Str("key", key).
			Msg("remote put failed, falling back to local storage")
		uploadFallbacksTotal.WithLabelValues(string(cfg.ActiveBackend)).Inc()

		receipt, err := local.Put(ctx, path, key)
		if err != nil {
			return nil, true, apperr.Storage(fmt.Errorf("local fallback put: %w", err))
		}
		return receipt, true, nil
	}

	receipt, err := local.Put(ctx, path, key)
	if err != nil {
		return nil, false, apperr.Storage(fmt.Errorf("local put: %w", err))
	}
	return receipt, false, nil
}

func (s *Service) createShare(ctx context.Context, f *share.File, now time.Time) (*share.Link, error) {
	accessCode, err := ident.AccessCode()
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		code, err := ident.ShareCode()
		if err != nil {
			return nil, err
		}
		link := &share.Link{
			ShareCode:   code,
			FileID:      f.ID,
			AccessCode:  accessCode,
			CreatedTime: now,
			Active:      true,
		}

		err = s.store.CreateShare(ctx, f, link)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, share.ErrConflict) || attempt == shareCodeAttempts {
			return nil, fmt.Errorf("create share: %w", err)
		}
		log.Warn().Str("share_code", code).Int("attempt", attempt).Msg("share code collision, retrying")
	}
}

// discard removes an object whose metadata could not be saved.
func (s *Service) discard(receipt *storage.Receipt) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	adapter := s.adapters.Local()
	if receipt.Backend != storage.BackendLocal {
		cfg, err := s.settings.Get(ctx)
		if err == nil {
			adapter, err = s.adapters.Open(receipt.Backend, cfg.Credentials(receipt.Backend))
		}
		if err != nil {
			log.Error().Err(err).Str("key", receipt.Key).Msg("cannot discard orphaned object")
			return
		}
	}
	if err := adapter.Delete(ctx, receipt.Key); err != nil {
		log.Error().Err(err).Str("backend", string(receipt.Backend)).Str("key", receipt.Key).Msg("failed to discard orphaned object")
	}
}

// Inspect verifies the codes and returns the file's metadata without
// recording an access.
func (s *Service) Inspect(ctx context.Context, shareCode, accessCode string) (*Descriptor, error) {
	_, f, err := s.verify(ctx, shareCode, accessCode)
	if err != nil {
		return nil, err
	}
	return describe(f, shareCode), nil
}

// ResolveForDownload verifies the codes and records one access.
func (s *Service) ResolveForDownload(ctx context.Context, shareCode, accessCode string, c Client) (*Descriptor, error) {
	link, f, err := s.verify(ctx, shareCode, accessCode)
	if err != nil {
		return nil, err
	}

	if err := s.store.RecordAccess(ctx, share.AccessEntry{
		FileID:     f.ID,
		ShareCode:  link.ShareCode,
		Time:       s.clock.Now().UTC(),
		ClientAddr: c.Addr,
		UserAgent:  c.Agent,
	}); err != nil {
		return nil, apperr.Internal(fmt.Errorf("record access: %w", err))
	}
	downloadsTotal.WithLabelValues("download").Inc()

	d := describe(f, shareCode)
	d.DownloadCount++
	return d, nil
}

// Preview verifies the codes and opens an image for inline display.
func (s *Service) Preview(ctx context.Context, shareCode, accessCode string) (*Descriptor, *storage.Object, error) {
	_, f, err := s.verify(ctx, shareCode, accessCode)
	if err != nil {
		return nil, nil, err
	}
	d := describe(f, shareCode)
	if !d.IsImage() {
		return nil, nil, apperr.UnsupportedPreview()
	}

	obj, err := s.Open(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	obj.ContentType = d.MimeType
	downloadsTotal.WithLabelValues("preview").Inc()
	return d, obj, nil
}

// verify runs the share-link checks in order: link, access code, file, expiry.
func (s *Service) verify(ctx context.Context, shareCode, accessCode string) (*share.Link, *share.File, error) {
	if shareCode == "" || accessCode == "" {
		return nil, nil, apperr.Validation("share code and access code are required")
	}

	link, err := s.store.GetLink(ctx, shareCode)
	if errors.Is(err, share.ErrNotFound) {
		return nil, nil, apperr.NotFound()
	}
	if err != nil {
		return nil, nil, apperr.Internal(fmt.Errorf("get link: %w", err))
	}
	if !link.Active {
		return nil, nil, apperr.NotFound()
	}

	if subtle.ConstantTimeCompare([]byte(link.AccessCode), []byte(accessCode)) != 1 {
		return nil, nil, apperr.AccessDenied()
	}

	f, err := s.store.GetFile(ctx, link.FileID)
	if errors.Is(err, share.ErrNotFound) {
		return nil, nil, apperr.NotFound()
	}
	if err != nil {
		return nil, nil, apperr.Internal(fmt.Errorf("get file: %w", err))
	}
	if f.Deleted {
		return nil, nil, apperr.NotFound()
	}

	if f.Expired(s.clock.Now()) {
		return nil, nil, apperr.Expired()
	}
	return link, f, nil
}

// Open streams a verified file from the backend that holds it, using that
// backend's current credentials.
func (s *Service) Open(ctx context.Context, d *Descriptor) (*storage.Object, error) {
	adapter, err := s.adapterFor(ctx, d.Backend)
	if err != nil {
		return nil, err
	}

	obj, err := adapter.GetStream(ctx, d.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		log.Error().Str("file_id", d.FileID).Str("key", d.StorageKey).Msg("stored object is missing")
		return nil, apperr.NotFound()
	}
	if err != nil {
		return nil, apperr.Storage(err)
	}
	if obj.ContentType == "" || obj.ContentType == "application/octet-stream" {
		obj.ContentType = d.MimeType
	}
	if obj.Size < 0 {
		obj.Size = d.Size
	}
	return obj, nil
}

// SignedURL returns a direct download URL, or an error of kind
// apperr.KindUnsupported when the backend can only be proxied.
func (s *Service) SignedURL(ctx context.Context, d *Descriptor, ttl time.Duration) (string, error) {
	adapter, err := s.adapterFor(ctx, d.Backend)
	if err != nil {
		return "", err
	}

	u, err := adapter.SignedURL(ctx, d.StorageKey, ttl)
	if errors.Is(err, storage.ErrUnsupported) {
		return "", apperr.Wrap(apperr.KindUnsupported, "signed urls are not supported", err)
	}
	if err != nil {
		return "", apperr.Storage(err)
	}
	return u, nil
}

func (s *Service) adapterFor(ctx context.Context, b storage.Backend) (storage.Adapter, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.Open(b, cfg.Credentials(b))
	if err != nil {
		return nil, apperr.Storage(fmt.Errorf("open %s adapter: %w", b, err))
	}
	return adapter, nil
}

// CleanExpired soft-deletes every live file whose expiry has passed.
func (s *Service) CleanExpired(ctx context.Context) (int64, error) {
	n, err := s.store.MarkExpired(ctx, s.clock.Now().UTC())
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("clean expired: %w", err))
	}
	sweepExpiredTotal.Add(float64(n))
	return n, nil
}

// List returns live files, newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]share.FileSummary, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	out, total, err := s.store.ListFiles(ctx, limit, offset)
	if err != nil {
		return nil, 0, apperr.Internal(err)
	}
	return out, total, nil
}

// Stats returns the access history of one live file.
func (s *Service) Stats(ctx context.Context, fileID string) (*share.FileStats, error) {
	stats, err := s.store.FileStats(ctx, fileID)
	if errors.Is(err, share.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "file not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return stats, nil
}

// Summary aggregates all live files.
func (s *Service) Summary(ctx context.Context) (*share.Summary, error) {
	sum, err := s.store.Summary(ctx, s.clock.Now().UTC())
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return sum, nil
}

func describe(f *share.File, shareCode string) *Descriptor {
	return &Descriptor{
		FileID:        f.ID,
		ShareCode:     shareCode,
		OriginalName:  f.OriginalName,
		Size:          f.Size,
		MimeType:      detectMime(f.OriginalName, f.MimeType),
		Backend:       f.Backend,
		StorageKey:    f.StorageKey,
		UploadTime:    f.UploadTime,
		ExpireTime:    f.ExpireTime,
		DownloadCount: f.DownloadCount,
	}
}

// detectMime returns the content type for name's extension. A declared type
// is kept only when it names the same media type.
func detectMime(name, declared string) string {
	want, ok := allowedExtensions[extensionOf(name)]
	if !ok {
		return "application/octet-stream"
	}
	if declared == "" {
		return want
	}
	got, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return want
	}
	base, _, _ := mime.ParseMediaType(want)
	if got == base {
		return declared
	}
	return want
}

// MaxFileSize returns the current upload limit in bytes.
func (s *Service) MaxFileSize(ctx context.Context) (int64, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.MaxFileSize(), nil
}
