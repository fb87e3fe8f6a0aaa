// Package deduplication drops mesh packets the bridge has already seen.
// Meshtastic floods every packet through the mesh, so the attached node can
// hand the same packet over more than once.
package deduplication

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/tracing"
)

const cacheMetricsInterval = 30 * time.Second

type Service struct {
	repo    Repository
	ttl     time.Duration
	onError string
	logger  logger.Logger
	cancel  context.CancelFunc
}

func NewService(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = constants.DefaultDedupTTLSecond * time.Second
	}
	onError := cfg.OnError
	if onError == "" {
		onError = constants.FallbackAllow
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:    repo,
		ttl:     ttl,
		onError: onError,
		logger:  log,
		cancel:  cancel,
	}
	go s.updateCacheSizeMetrics(ctx)
	return s
}

// IsUnique records the packet and reports whether it is the first sighting
// within the TTL. Packets without an ID cannot be matched and are always
// unique. A storage error yields true under on_error=allow and an error
// under deny.
func (s *Service) IsUnique(ctx context.Context, from, packetID uint32) (bool, error) {
	if packetID == 0 {
		metrics.IncDedupPacket("skipped")
		return true, nil
	}

	ctx, span := tracing.StartSpan(ctx, "deduplication.check",
		attribute.Int64("mesh.from", int64(from)),
		attribute.Int64("mesh.packet_id", int64(packetID)),
	)
	defer span.End()

	key := constants.CacheKeyPrefixDedup + PacketHash(from, packetID)
	unique, err := s.repo.SetNX(ctx, key, time.Now().Unix(), s.ttl)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.IncDedupPacket("error")
		return s.handleRepoError(ctx, err, packetID)
	}

	if unique {
		metrics.IncDedupPacket("unique")
	} else {
		metrics.IncDedupPacket("duplicate")
	}
	return unique, nil
}

func (s *Service) handleRepoError(ctx context.Context, err error, packetID uint32) (bool, error) {
	if s.onError == constants.FallbackAllow {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error", "repository_error").Inc()
		s.logger.WarnwCtx(ctx, "Dedup check failed, allowing packet (fallback: allow)",
			"packet_id", packetID,
			"error", err,
		)
		return true, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error", "repository_error").Inc()
	return false, fmt.Errorf("dedup check for packet %d failed: %w", packetID, err)
}

func (s *Service) updateCacheSizeMetrics(ctx context.Context) {
	ticker := time.NewTicker(cacheMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			size, err := s.repo.GetCacheSize(ctx, constants.CacheKeyPrefixDedup)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Debugw("Failed to get dedup cache size", "error", err)
				continue
			}
			metrics.SetDedupCacheSize(size)
		}
	}
}

// Close stops the background cache-size updater.
func (s *Service) Close() {
	s.cancel()
}
