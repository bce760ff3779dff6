package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"configurator-service/internal/breakdown"
	"configurator-service/internal/models"
	"configurator-service/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ErrInvalidIdentifier is returned when neither a category id nor a name is given
var ErrInvalidIdentifier = errors.New("category id or name is required")

// MessageConfigurationNotFound is reported when a breakdown targets an unknown category
const MessageConfigurationNotFound = "Configuration not found"

// CatalogService materializes category configurations and evaluates breakdowns
type CatalogService struct {
	store    CatalogStore
	cache    CatalogCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCatalogService creates a catalog service. A nil cache or a non positive
// TTL disables caching.
func NewCatalogService(store CatalogStore, cache CatalogCache, cacheTTL time.Duration) *CatalogService {
	if cacheTTL <= 0 {
		cache = nil
	}
	return &CatalogService{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// GetProductConfiguration returns the configuration of a category, or nil when
// it does not exist
func (s *CatalogService) GetProductConfiguration(ctx context.Context, ident models.CategoryIdentifier) (*models.CategoryConfig, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.GetProductConfiguration",
		attribute.String("category", ident.String()))
	defer span.End()

	if ident.IsZero() {
		return nil, ErrInvalidIdentifier
	}

	if cfg := s.fromCache(ctx, ident); cfg != nil {
		return cfg, nil
	}

	start := time.Now()
	cfg, err := s.store.LoadCategoryConfig(ctx, ident)
	util.CatalogLoadLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to get product configuration: %w", err)
	}
	if cfg == nil {
		return nil, nil
	}

	s.toCache(ctx, cfg)
	return cfg, nil
}

func (s *CatalogService) fromCache(ctx context.Context, ident models.CategoryIdentifier) *models.CategoryConfig {
	if s.cache == nil {
		return nil
	}

	cfg, err := s.cache.GetCategoryConfig(ctx, ident)
	if err != nil {
		util.CatalogCacheRequestsTotal.WithLabelValues("error").Inc()
		s.logger.Warn("Catalog cache read failed", zap.String("category", ident.String()), zap.Error(err))
		return nil
	}
	if cfg == nil {
		util.CatalogCacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil
	}

	util.CatalogCacheRequestsTotal.WithLabelValues("hit").Inc()
	return cfg
}

func (s *CatalogService) toCache(ctx context.Context, cfg *models.CategoryConfig) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetCategoryConfig(ctx, cfg, s.cacheTTL); err != nil {
		s.logger.Warn("Catalog cache write failed", zap.Int64("category_id", cfg.Category.ID), zap.Error(err))
	}
}

// EvaluateBreakdown validates and prices a breakdown against a category
func (s *CatalogService) EvaluateBreakdown(ctx context.Context, ident models.CategoryIdentifier, b models.Breakdown) (breakdown.Result, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.EvaluateBreakdown")
	defer span.End()

	cfg, err := s.GetProductConfiguration(ctx, ident)
	if err != nil {
		return breakdown.Result{}, err
	}
	if cfg == nil {
		util.BreakdownValidationsTotal.WithLabelValues("not_found").Inc()
		return breakdown.Result{IsValid: false, Errors: []string{MessageConfigurationNotFound}}, nil
	}

	result := breakdown.NewValidator(cfg, breakdown.PreprocessOptions{}).Validate(b)
	if result.IsValid {
		util.BreakdownValidationsTotal.WithLabelValues("valid").Inc()
	} else {
		util.BreakdownValidationsTotal.WithLabelValues("invalid").Inc()
	}
	return result, nil
}
