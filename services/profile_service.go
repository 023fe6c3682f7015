package services

import (
	"context"
	"errors"
	"time"

	"github.com/advisorop/advisorop-api/model"
	"github.com/advisorop/advisorop-api/utils/cache"
	"gorm.io/gorm"
)

const (
	profileCacheKey = "ai_config:active"
	profileCacheTTL = 5 * time.Minute
)

// AIConfigService reads the active configuration profile. The profile is
// consulted on every turn, so reads go through a short-lived Redis cache
// when one is available.
type AIConfigService struct {
	db    *gorm.DB
	cache *cache.RedisCache
}

// NewAIConfigService creates a new AI config service. cache may be nil.
func NewAIConfigService(db *gorm.DB, redisCache *cache.RedisCache) *AIConfigService {
	return &AIConfigService{
		db:    db,
		cache: redisCache,
	}
}

// Active returns the current configuration profile. When no profile row is
// active, a built-in default keeps the engine operational.
func (s *AIConfigService) Active(ctx context.Context) (*model.AIConfig, error) {
	if s.cache != nil {
		var cached model.AIConfig
		if err := s.cache.GetJSON(ctx, profileCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	var profile model.AIConfig
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("updated_at DESC").
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.defaultProfile(), nil
		}
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, profileCacheKey, &profile, profileCacheTTL)
	}

	return &profile, nil
}

func (s *AIConfigService) defaultProfile() *model.AIConfig {
	return &model.AIConfig{
		Name:         "default",
		ModelName:    DefaultModelName,
		SystemPrompt: DefaultSystemPrompt,
		MaxTokens:    1000,
		Temperature:  0.7,
		IsActive:     true,
	}
}
