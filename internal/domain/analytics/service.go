package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodbank/bloodbank/internal/domain/shelflife"
	"github.com/bloodbank/bloodbank/internal/platform/cache"
	"github.com/bloodbank/bloodbank/internal/platform/scope"
	"github.com/bloodbank/bloodbank/pkg/apperrors"
)

type Service struct {
	repo   Repository
	cache  *cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, c *cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: c, ttl: ttl, logger: logger, now: time.Now}
}

func cacheKey(hospitalID string) string {
	return "dashboard:" + hospitalID
}

// Dashboard returns the cached snapshot unless refresh is set or the cache
// misses. Cache errors are logged and otherwise ignored.
func (s *Service) Dashboard(ctx context.Context, sc scope.Scope, refresh bool) (*Dashboard, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	key := cacheKey(sc.HospitalID)

	if !refresh {
		var d Dashboard
		err := s.cache.GetJSON(ctx, key, &d)
		if err == nil {
			d.Cached = true
			return &d, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn().Err(err).Str("hospital_id", sc.HospitalID).Msg("dashboard cache read failed")
		}
	}

	now := s.now().UTC()
	windows := make([]ExpiryWindow, 0, len(shelflife.ComponentKinds()))
	for _, k := range shelflife.ComponentKinds() {
		windows = append(windows, ExpiryWindow{Type: string(k), Until: now.Add(shelflife.WarningWindow(k))})
	}
	d := &Dashboard{HospitalID: sc.HospitalID, GeneratedAt: now}
	if err := s.repo.Collect(ctx, d, now, windows, now.Add(shelflife.WarningWindow(shelflife.WholeBlood))); err != nil {
		return nil, apperrors.Internal("failed to build dashboard", err)
	}

	if err := s.cache.SetJSON(ctx, key, d, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("hospital_id", sc.HospitalID).Msg("dashboard cache write failed")
	}
	return d, nil
}

// Invalidate drops the cached snapshot for a hospital. Failures only log:
// the snapshot still expires with its TTL.
func (s *Service) Invalidate(ctx context.Context, hospitalID string) {
	if err := s.cache.Delete(ctx, cacheKey(hospitalID)); err != nil {
		s.logger.Warn().Err(err).Str("hospital_id", hospitalID).Msg("dashboard cache invalidation failed")
	}
}

// InvalidateAll drops every hospital's snapshot, used after sweeps that span
// hospitals.
func (s *Service) InvalidateAll(ctx context.Context) {
	n, err := s.cache.DeletePattern(ctx, cacheKey("*"))
	if err != nil {
		s.logger.Warn().Err(err).Msg("dashboard cache invalidation failed")
		return
	}
	s.logger.Debug().Int("keys", n).Msg("dashboard cache cleared")
}
