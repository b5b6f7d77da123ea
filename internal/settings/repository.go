package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quickshare/service/internal/storage"
)

// PgRepository stores settings in the single-row system_settings table.
type PgRepository struct {
	db *pgxpool.Pool
}

// NewPgRepository creates a PgRepository with the given connection pool.
func NewPgRepository(db *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: db}
}

func (r *PgRepository) Load(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	var raw []byte
	err := r.db.QueryRow(ctx,
		`SELECT active_backend, backend_configs, default_expire_days, max_file_size_mb,
		        upload_rate_limit, download_rate_limit, updated_at
		 FROM system_settings WHERE id = 1`,
	).Scan(&s.ActiveBackend, &raw, &s.DefaultExpireDays, &s.MaxFileSizeMB,
		&s.UploadRateLimit, &s.DownloadRateLimit, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	s.Backends = map[storage.Backend]storage.Credentials{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.Backends); err != nil {
			return nil, fmt.Errorf("decode backend configs: %w", err)
		}
	}
	return s, nil
}

// Save upserts row 1 so concurrent readers see either the old or the new record.
func (r *PgRepository) Save(ctx context.Context, s *Settings) error {
	raw, err := json.Marshal(s.Backends)
	if err != nil {
		return fmt.Errorf("encode backend configs: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO system_settings (id, active_backend, backend_configs, default_expire_days,
		     max_file_size_mb, upload_rate_limit, download_rate_limit, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		     active_backend = EXCLUDED.active_backend,
		     backend_configs = EXCLUDED.backend_configs,
		     default_expire_days = EXCLUDED.default_expire_days,
		     max_file_size_mb = EXCLUDED.max_file_size_mb,
		     upload_rate_limit = EXCLUDED.upload_rate_limit,
		     download_rate_limit = EXCLUDED.download_rate_limit,
		     updated_at = EXCLUDED.updated_at`,
		s.ActiveBackend, raw, s.DefaultExpireDays, s.MaxFileSizeMB,
		s.UploadRateLimit, s.DownloadRateLimit, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// MemoryRepository keeps settings in process memory.
type MemoryRepository struct {
	mu sync.RWMutex
	s  *Settings
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Load(context.Context) (*Settings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.s == nil {
		return nil, ErrNotFound
	}
	return r.s.Clone(), nil
}

func (r *MemoryRepository) Save(_ context.Context, s *Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s = s.Clone()
	return nil
}
