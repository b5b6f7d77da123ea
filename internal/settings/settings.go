// Package settings holds the runtime-editable system settings: which storage
// backend receives new uploads, the credentials of every backend, and upload
// and download limits. Settings are read fresh on every operation so an
// administrator's change takes effect on the next request.
package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"

	"github.com/quickshare/service/internal/apperr"
	"github.com/quickshare/service/internal/storage"
)

// Defaults used until an administrator saves settings for the first time.
const (
	DefaultExpireDays        = 7
	DefaultMaxFileSizeMB     = 100
	DefaultUploadRateLimit   = 10
	DefaultDownloadRateLimit = 20
)

// Rate limit windows. UploadRateLimit counts uploads per UploadWindow from one
// client, DownloadRateLimit counts downloads per DownloadWindow.
const (
	UploadWindow   = 15 * time.Minute
	DownloadWindow = time.Minute
)

// ErrNotFound is returned by a Repository that has never been saved to.
var ErrNotFound = errors.New("settings not found")

// Settings is the singleton system configuration.
type Settings struct {
	ActiveBackend     storage.Backend                         `json:"activeBackend"`
	Backends          map[storage.Backend]storage.Credentials `json:"backends"`
	DefaultExpireDays int                                     `json:"defaultExpireDays"`
	MaxFileSizeMB     int                                     `json:"maxFileSizeMB"`
	UploadRateLimit   int                                     `json:"uploadRateLimit"`
	DownloadRateLimit int                                     `json:"downloadRateLimit"`
	UpdatedAt         time.Time                               `json:"updatedAt,omitzero"`
}

// Defaults returns the settings in effect before anything was saved.
func Defaults() *Settings {
	return &Settings{
		ActiveBackend:     storage.BackendLocal,
		Backends:          map[storage.Backend]storage.Credentials{},
		DefaultExpireDays: DefaultExpireDays,
		MaxFileSizeMB:     DefaultMaxFileSizeMB,
		UploadRateLimit:   DefaultUploadRateLimit,
		DownloadRateLimit: DefaultDownloadRateLimit,
	}
}

// Credentials returns the stored credentials for b, zero when none were saved.
func (s *Settings) Credentials(b storage.Backend) storage.Credentials {
	return s.Backends[b]
}

// MaxFileSize is the upload limit in bytes.
func (s *Settings) MaxFileSize() int64 {
	return int64(s.MaxFileSizeMB) << 20
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Backends = make(map[storage.Backend]storage.Credentials, len(s.Backends))
	for b, creds := range s.Backends {
		c.Backends[b] = creds
	}
	return &c
}

// Repository persists the singleton settings record.
type Repository interface {
	// Load returns ErrNotFound when nothing was saved yet.
	Load(ctx context.Context) (*Settings, error)
	// Save overwrites the singleton atomically.
	Save(ctx context.Context, s *Settings) error
}

// Validator checks backend credentials. *storage.Registry implements it.
type Validator interface {
	Validate(b storage.Backend, creds storage.Credentials) error
}

// Manager reads and replaces settings.
type Manager struct {
	repo      Repository
	validator Validator
	clock     clock.Clock
}

// NewManager creates a Manager. clk stamps UpdatedAt on every Replace.
func NewManager(repo Repository, validator Validator, clk clock.Clock) *Manager {
	return &Manager{repo: repo, validator: validator, clock: clk}
}

// Get returns the current settings, or Defaults when none were saved.
func (m *Manager) Get(ctx context.Context) (*Settings, error) {
	s, err := m.repo.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return Defaults(), nil
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("load settings: %w", err))
	}
	if s.Backends == nil {
		s.Backends = map[storage.Backend]storage.Credentials{}
	}
	return s, nil
}

// Replace validates s and overwrites the stored settings.
// Incomplete credentials for the active backend yield a configuration error,
// non-positive limits a validation error.
func (m *Manager) Replace(ctx context.Context, s *Settings) (*Settings, error) {
	if s == nil {
		return nil, apperr.Validation("settings are required")
	}
	if err := validateLimits(s); err != nil {
		return nil, err
	}
	if err := m.validator.Validate(s.ActiveBackend, s.Credentials(s.ActiveBackend)); err != nil {
		return nil, apperr.Configuration(err)
	}

	next := s.Clone()
	next.UpdatedAt = m.clock.Now().UTC()
	if err := m.repo.Save(ctx, next); err != nil {
		return nil, apperr.Internal(fmt.Errorf("save settings: %w", err))
	}
	return next, nil
}

func validateLimits(s *Settings) error {
	limits := []struct {
		name  string
		value int
	}{
		{"defaultExpireDays", s.DefaultExpireDays},
		{"maxFileSizeMB", s.MaxFileSizeMB},
		{"uploadRateLimit", s.UploadRateLimit},
		{"downloadRateLimit", s.DownloadRateLimit},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return apperr.Validation("%s must be a positive integer", l.name)
		}
	}
	return nil
}
