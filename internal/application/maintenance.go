package application

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepIdempotency deletes expired idempotency keys.
func (s *Service) SweepIdempotency(ctx context.Context) {
	n, err := s.repo.DeleteExpiredIdempotency(ctx, s.now())
	if err != nil {
		s.log.Warn("idempotency sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("idempotency keys expired", zap.Int64("count", n))
	}
}

// RunIdempotencySweeper sweeps every interval until ctx is done.
func (s *Service) RunIdempotencySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdempotency(ctx)
		}
	}
}
