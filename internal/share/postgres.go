package share

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const fileColumns = `f.file_id, f.original_name, f.size, f.mime_type, f.storage_key, f.storage_backend,
	f.upload_time, f.expire_time, f.download_count, f.is_deleted, f.reclaimed_at,
	f.reclaim_attempts, f.last_reclaim_attempt`

// PgStore handles all share database operations.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore with the given connection pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) CreateShare(ctx context.Context, f *File, l *Link) error {
	return s.runInTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO files (file_id, original_name, size, mime_type, storage_key, storage_backend,
			     upload_time, expire_time)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			f.ID, f.OriginalName, f.Size, f.MimeType, f.StorageKey, f.Backend, f.UploadTime, f.ExpireTime,
		)
		if err != nil {
			return fmt.Errorf("insert file: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO share_links (share_code, file_id, access_code, created_time)
			 VALUES ($1, $2, $3, $4)`,
			l.ShareCode, l.FileID, l.AccessCode, l.CreatedTime,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert share link: %w", err)
		}
		return nil
	})
}

func (s *PgStore) GetLink(ctx context.Context, shareCode string) (*Link, error) {
	l := &Link{}
	err := s.pool.QueryRow(ctx,
		`SELECT share_code, file_id, access_code, created_time, last_access_time, access_count, is_active
		 FROM share_links WHERE share_code = $1`,
		shareCode,
	).Scan(&l.ShareCode, &l.FileID, &l.AccessCode, &l.CreatedTime, &l.LastAccessTime, &l.AccessCount, &l.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get share link: %w", err)
	}
	return l, nil
}

func (s *PgStore) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := scanFile(s.pool.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files f WHERE f.file_id = $1 AND f.is_deleted = FALSE`,
		fileID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

// RecordAccess increments with x = x + 1 so concurrent downloads never lose a count.
func (s *PgStore) RecordAccess(ctx context.Context, e AccessEntry) error {
	return s.runInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE share_links SET access_count = access_count + 1, last_access_time = $2
			 WHERE share_code = $1`,
			e.ShareCode, e.Time,
		)
		if err != nil {
			return fmt.Errorf("increment access count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx,
			`UPDATE files SET download_count = download_count + 1 WHERE file_id = $1`,
			e.FileID,
		); err != nil {
			return fmt.Errorf("increment download count: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO access_logs (file_id, share_code, access_time, client_addr, user_agent)
			 VALUES ($1, $2, $3, $4, $5)`,
			e.FileID, e.ShareCode, e.Time, e.ClientAddr, e.UserAgent,
		); err != nil {
			return fmt.Errorf("append access log: %w", err)
		}
		return nil
	})
}

func (s *PgStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET is_deleted = TRUE WHERE is_deleted = FALSE AND expire_time < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("mark expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PgStore) ListFiles(ctx context.Context, limit, offset int) ([]FileSummary, int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM files WHERE is_deleted = FALSE`,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+fileColumns+`, l.share_code, l.access_count, l.last_access_time
		 FROM files f JOIN share_links l ON l.file_id = f.file_id
		 WHERE f.is_deleted = FALSE
		 ORDER BY f.upload_time DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	out := []FileSummary{}
	for rows.Next() {
		var fs FileSummary
		f := &fs.File
		if err := rows.Scan(&f.ID, &f.OriginalName, &f.Size, &f.MimeType, &f.StorageKey, &f.Backend,
			&f.UploadTime, &f.ExpireTime, &f.DownloadCount, &f.Deleted, &f.ReclaimedAt,
			&f.ReclaimAttempts, &f.LastReclaimAttempt,
			&fs.ShareCode, &fs.AccessCount, &fs.LastAccessTime); err != nil {
			return nil, 0, fmt.Errorf("scan file summary: %w", err)
		}
		out = append(out, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate files: %w", err)
	}
	return out, total, nil
}

func (s *PgStore) FileStats(ctx context.Context, fileID string) (*FileStats, error) {
	f, err := s.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	stats := &FileStats{File: *f, Links: []Link{}, RecentAccess: []AccessEntry{}}

	rows, err := s.pool.Query(ctx,
		`SELECT share_code, file_id, access_code, created_time, last_access_time, access_count, is_active
		 FROM share_links WHERE file_id = $1 ORDER BY created_time`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ShareCode, &l.FileID, &l.AccessCode, &l.CreatedTime, &l.LastAccessTime, &l.AccessCount, &l.Active); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		stats.Links = append(stats.Links, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share links: %w", err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT file_id, share_code, access_time, client_addr, user_agent
		 FROM access_logs WHERE file_id = $1 ORDER BY access_time DESC LIMIT $2`,
		fileID, RecentAccessLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("list access log: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e AccessEntry
		if err := rows.Scan(&e.FileID, &e.ShareCode, &e.Time, &e.ClientAddr, &e.UserAgent); err != nil {
			return nil, fmt.Errorf("scan access entry: %w", err)
		}
		stats.RecentAccess = append(stats.RecentAccess, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log: %w", err)
	}
	return stats, nil
}

func (s *PgStore) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	sum := &Summary{}
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0), COALESCE(SUM(download_count), 0),
		        COUNT(*) FILTER (WHERE expire_time < $1)
		 FROM files WHERE is_deleted = FALSE`,
		now,
	).Scan(&sum.TotalFiles, &sum.TotalSize, &sum.TotalDownloads, &sum.ExpiredPending)
	if err != nil {
		return nil, fmt.Errorf("summarize files: %w", err)
	}
	return sum, nil
}

func (s *PgStore) ListUnreclaimed(ctx context.Context, limit int) ([]File, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+fileColumns+` FROM files f
		 WHERE f.is_deleted = TRUE AND f.reclaimed_at IS NULL
		 ORDER BY f.last_reclaim_attempt NULLS FIRST, f.upload_time
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list unreclaimed: %w", err)
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unreclaimed: %w", err)
	}
	return out, nil
}

func (s *PgStore) MarkReclaimed(ctx context.Context, fileID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET reclaimed_at = $2 WHERE file_id = $1 AND is_deleted = TRUE`,
		fileID, at,
	)
	if err != nil {
		return fmt.Errorf("mark reclaimed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) RecordReclaimFailure(ctx context.Context, fileID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE files SET reclaim_attempts = reclaim_attempts + 1, last_reclaim_attempt = $2
		 WHERE file_id = $1 AND is_deleted = TRUE AND reclaimed_at IS NULL`,
		fileID, at,
	)
	if err != nil {
		return fmt.Errorf("record reclaim failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) runInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanFile(row pgx.Row) (*File, error) {
	f := &File{}
	err := row.Scan(&f.ID, &f.OriginalName, &f.Size, &f.MimeType, &f.StorageKey, &f.Backend,
		&f.UploadTime, &f.ExpireTime, &f.DownloadCount, &f.Deleted, &f.ReclaimedAt,
		&f.ReclaimAttempts, &f.LastReclaimAttempt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
