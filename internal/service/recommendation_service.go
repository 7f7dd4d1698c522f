package service

import (
	"context"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/capstone-api/internal/dto"
	"github.com/noah-isme/capstone-api/internal/models"
	appErrors "github.com/noah-isme/capstone-api/pkg/errors"
)

type recommendationPreferenceReader interface {
	ListPendingCandidates(ctx context.Context) ([]models.PreferenceCandidate, error)
}

type recommendationOfferReader interface {
	ListAvailableCandidates(ctx context.Context) ([]models.OfferCandidate, error)
}

type recommendationExporter interface {
	ExportRecommendation(ctx context.Context, rec *dto.RecommendationResponse, format string) (*dto.ExportRecommendationResponse, error)
}

// RecommendationConfig governs how long generated recommendations stay retrievable.
type RecommendationConfig struct {
	TTL time.Duration
}

// RecommendationService runs the allocation engine against live data and keeps recent results for export.
type RecommendationService struct {
	prefs    recommendationPreferenceReader
	offers   recommendationOfferReader
	engine   *AllocationEngine
	exporter recommendationExporter
	cache    *CacheService
	metrics  *MetricsService
	validate *validator.Validate
	logger   *zap.Logger
	store    *recommendationStore
	ttl      time.Duration
	now      func() time.Time
}

// NewRecommendationService wires recommendation dependencies.
func NewRecommendationService(
	prefs recommendationPreferenceReader,
	offers recommendationOfferReader,
	engine *AllocationEngine,
	exporter recommendationExporter,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg RecommendationConfig,
) *RecommendationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = NewAllocationEngine(AllocationEngineConfig{})
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	return &RecommendationService{
		prefs:    prefs,
		offers:   offers,
		engine:   engine,
		exporter: exporter,
		cache:    cache,
		metrics:  metrics,
		validate: validate,
		logger:   logger,
		store:    newRecommendationStore(cfg.TTL),
		ttl:      cfg.TTL,
		now:      time.Now,
	}
}

// Generate computes a fresh recommendation. Nothing is persisted besides the short-lived result copy.
func (s *RecommendationService) Generate(ctx context.Context, req dto.RecommendationRequest) (*dto.RecommendationResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid recommendation request")
	}
	filter := models.ScopeFilter(req.ScopeFilter)
	if filter == "" {
		filter = models.ScopeFilterNone
	}

	prefs, err := s.prefs.ListPendingCandidates(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load preferences")
	}
	offers, err := s.offers.ListAvailableCandidates(ctx)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load offers")
	}

	outcome := s.engine.Recommend(prefs, offers, filter)
	now := s.now().UTC()
	result := dto.RecommendationResponse{
		ID:          uuid.NewString(),
		ScopeFilter: string(filter),
		Items:       outcome.Items,
		Unallocated: outcome.Unallocated,
		GeneratedAt: now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.store.Save(result, now)
	if err := s.cache.Set(ctx, recommendationCacheKey(result.ID), result, s.ttl); err != nil {
		s.logger.Warn("failed to mirror recommendation", zap.String("recommendation_id", result.ID), zap.Error(err))
	}

	fromPreference := 0
	for _, item := range result.Items {
		if item.Source == dto.RecommendationSourcePreference {
			fromPreference++
		}
	}
	if s.metrics != nil {
		s.metrics.RecordRecommendation(fromPreference, len(result.Items)-fromPreference, len(result.Unallocated))
	}
	s.logger.Info("allocation recommendation generated",
		zap.String("recommendation_id", result.ID),
		zap.String("scope_filter", result.ScopeFilter),
		zap.Int("pairs", len(result.Items)),
		zap.Int("unallocated", len(result.Unallocated)),
	)
	return &result, nil
}

// Get returns a previously generated recommendation while it has not expired.
func (s *RecommendationService) Get(ctx context.Context, id string) (*dto.RecommendationResponse, error) {
	if result, ok := s.store.Get(id, s.now()); ok {
		return &result, nil
	}
	var cached dto.RecommendationResponse
	hit, err := s.cache.Get(ctx, recommendationCacheKey(id), &cached)
	if err == nil && hit && s.now().Before(cached.ExpiresAt) {
		s.store.Save(cached, s.now())
		return &cached, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "recommendation not found or expired")
}

// Export renders a stored recommendation and returns a signed download link.
func (s *RecommendationService) Export(ctx context.Context, id string, req dto.ExportRecommendationRequest) (*dto.ExportRecommendationResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if s.exporter == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are not configured")
	}
	result, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.ExportRecommendation(ctx, result, req.Format)
}

func recommendationCacheKey(id string) string {
	return "allocation:recommendation:" + id
}

type recommendationStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]dto.RecommendationResponse
}

func newRecommendationStore(ttl time.Duration) *recommendationStore {
	return &recommendationStore{ttl: ttl, items: make(map[string]dto.RecommendationResponse)}
}

// Save stores result and drops every entry that has expired by now.
func (s *recommendationStore) Save(result dto.RecommendationResponse, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, item := range s.items {
		if s.expired(item, now) {
			delete(s.items, id)
		}
	}
	s.items[result.ID] = result
}

func (s *recommendationStore) Get(id string, now time.Time) (dto.RecommendationResponse, bool) {
	s.mu.RLock()
	result, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.RecommendationResponse{}, false
	}
	if s.expired(result, now) {
		s.mu.Lock()
		delete(s.items, id)
		s.mu.Unlock()
		return dto.RecommendationResponse{}, false
	}
	return result, true
}

func (s *recommendationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *recommendationStore) expired(result dto.RecommendationResponse, now time.Time) bool {
	return now.Sub(result.GeneratedAt) > s.ttl
}
