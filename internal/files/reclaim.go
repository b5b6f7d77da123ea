package files

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/quickshare/service/internal/apperr"
	"github.com/quickshare/service/internal/share"
	"github.com/quickshare/service/internal/storage"
)

const (
	reclaimBatch       = 100
	reclaimParallelism = 4
)

// Reclaim deletes the stored bytes of soft-deleted files and marks them
// reclaimed. A file whose delete fails stays pending and moves behind files
// not yet attempted.
// It returns the number of files reclaimed.
func (s *Service) Reclaim(ctx context.Context) (int64, error) {
	pending, err := s.store.ListUnreclaimed(ctx, reclaimBatch)
	if err != nil {
		return 0, apperr.Internal(fmt.Errorf("list unreclaimed: %w", err))
	}
	if len(pending) == 0 {
		return 0, nil
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return 0, err
	}

	var reclaimed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reclaimParallelism)

	for _, f := range pending {
		f := f
		g.Go(func() error {
			if err := s.reclaimOne(gctx, f, cfg.Credentials(f.Backend)); err != nil {
				reclaimedTotal.WithLabelValues("error").Inc()
				log.Warn().Err(err).Str("file_id", f.ID).Str("backend", string(f.Backend)).
					Int("attempts", f.ReclaimAttempts+1).Msg("reclaim failed")
				if err := s.store.RecordReclaimFailure(gctx, f.ID, s.clock.Now().UTC()); err != nil {
					log.Error().Err(err).Str("file_id", f.ID).Msg("record reclaim failure")
				}
				return nil
			}
			reclaimedTotal.WithLabelValues("ok").Inc()
			reclaimed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return reclaimed.Load(), apperr.Internal(err)
	}

	log.Info().Int64("reclaimed", reclaimed.Load()).Int("pending", len(pending)).Msg("storage reclaim finished")
	return reclaimed.Load(), nil
}

func (s *Service) reclaimOne(ctx context.Context, f share.File, creds storage.Credentials) error {
	adapter, err := s.adapters.Open(f.Backend, creds)
	if err != nil {
		return fmt.Errorf("open adapter: %w", err)
	}
	if err := adapter.Delete(ctx, f.StorageKey); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := s.store.MarkReclaimed(ctx, f.ID, s.clock.Now().UTC()); err != nil {
		return fmt.Errorf("mark reclaimed: %w", err)
	}
	return nil
}
