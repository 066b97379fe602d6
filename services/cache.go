package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"backend_shchitok/database"

	"github.com/go-redis/redis/v8"
)

// CacheService предоставляет методы для кэширования данных щитов.
// При недоступном Redis запись в кэш тихо пропускается: система
// продолжает работать напрямую с БД.
type CacheService struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewCacheService создает новый экземпляр CacheService
func NewCacheService(redisClient *redis.Client, logger *log.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// Константы для TTL кэша
const (
	CacheTTLShort  = 5 * time.Minute  // Для часто изменяемых данных (сетка щита)
	CacheTTLMedium = 15 * time.Minute // Для умеренно изменяемых данных (сводки)
	CacheTTLLong   = 1 * time.Hour    // Для планов переноса
	CacheTTLStatic = 24 * time.Hour   // Для статических данных
)

// Get получает значение из кэша
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	if cs.redis == nil {
		return "", fmt.Errorf("Redis не подключен")
	}

	val, err := cs.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("ключ не найден")
	}
	return val, err
}

// Set сохраняет значение в кэш
func (cs *CacheService) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if cs.redis == nil {
		if cs.logger != nil {
			cs.logger.Printf("Redis не подключен, пропускаем кэширование для ключа: %s", key)
		}
		return nil
	}

	return cs.redis.Set(ctx, key, value, ttl).Err()
}

// Del удаляет значение из кэша
func (cs *CacheService) Del(ctx context.Context, key string) error {
	if cs.redis == nil {
		return nil
	}

	return cs.redis.Del(ctx, key).Err()
}

// CachePanelGrid кэширует сетку щита (позиции с занимающими)
func (cs *CacheService) CachePanelGrid(panelID uint, grid interface{}) error {
	if cs.redis == nil {
		return nil
	}
	key := database.GeneratePanelCacheKey(panelID, "grid")
	return database.CacheSetJSON(key, grid, CacheTTLShort)
}

// GetCachedPanelGrid получает сетку щита из кэша
func (cs *CacheService) GetCachedPanelGrid(panelID uint, dest interface{}) error {
	if cs.redis == nil {
		return fmt.Errorf("Redis не подключен")
	}
	key := database.GeneratePanelCacheKey(panelID, "grid")
	return database.CacheGetJSON(key, dest)
}

// CacheFreePositions кэширует свободные позиции щита
func (cs *CacheService) CacheFreePositions(panelID uint, slots []FreeSlot) error {
	if cs.redis == nil {
		return nil
	}
	key := database.GeneratePanelCacheKey(panelID, "free_positions")
	return database.CacheSetJSON(key, slots, CacheTTLShort)
}

// GetCachedFreePositions получает свободные позиции щита из кэша
func (cs *CacheService) GetCachedFreePositions(panelID uint) ([]FreeSlot, error) {
	if cs.redis == nil {
		return nil, fmt.Errorf("Redis не подключен")
	}
	key := database.GeneratePanelCacheKey(panelID, "free_positions")
	var slots []FreeSlot
	if err := database.CacheGetJSON(key, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// InvalidatePanelCache инвалидирует все кэши щита (сетка, свободные позиции)
func (cs *CacheService) InvalidatePanelCache(panelID uint) error {
	if cs.redis == nil {
		return nil
	}
	return database.ClearPanelCache(panelID)
}

// InvalidatePanelCaches инвалидирует кэши нескольких щитов и дашборда.
// Вызывается после применения плана: меняются оба щита и общая сводка.
func (cs *CacheService) InvalidatePanelCaches(panelIDs ...uint) {
	for _, panelID := range panelIDs {
		if err := cs.InvalidatePanelCache(panelID); err != nil && cs.logger != nil {
			cs.logger.Printf("⚠️ Не удалось инвалидировать кэш щита %d: %v", panelID, err)
		}
	}
	if err := cs.InvalidateDashboard(); err != nil && cs.logger != nil {
		cs.logger.Printf("⚠️ Не удалось инвалидировать кэш дашборда: %v", err)
	}
}

// CacheDashboard кэширует сводку дашборда
func (cs *CacheService) CacheDashboard(data interface{}) error {
	if cs.redis == nil {
		return nil
	}
	key := database.GenerateDashboardCacheKey("summary")
	return database.CacheSetJSON(key, data, CacheTTLShort)
}

// GetCachedDashboard получает сводку дашборда из кэша
func (cs *CacheService) GetCachedDashboard(dest interface{}) error {
	if cs.redis == nil {
		return fmt.Errorf("Redis не подключен")
	}
	key := database.GenerateDashboardCacheKey("summary")
	return database.CacheGetJSON(key, dest)
}

// InvalidateDashboard инвалидирует кэш дашборда
func (cs *CacheService) InvalidateDashboard() error {
	if cs.redis == nil {
		return nil
	}
	key := database.GenerateDashboardCacheKey("summary")
	return database.CacheDel(key)
}

// CachePlan сохраняет построенный план переноса: применение партий
// ссылается на план по идентификатору, пока не истек TTL
func (cs *CacheService) CachePlan(plan *RelocationPlan) error {
	if cs.redis == nil {
		return nil
	}
	key := planCacheKey(plan.ID.String())
	return database.CacheSetJSON(key, plan, CacheTTLLong)
}

// GetCachedPlan получает план переноса по идентификатору
func (cs *CacheService) GetCachedPlan(planID string) (*RelocationPlan, error) {
	if cs.redis == nil {
		return nil, fmt.Errorf("Redis не подключен")
	}
	key := planCacheKey(planID)
	var plan RelocationPlan
	if err := database.CacheGetJSON(key, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// InvalidatePlan удаляет план из кэша (после полного применения)
func (cs *CacheService) InvalidatePlan(planID string) error {
	if cs.redis == nil {
		return nil
	}
	return database.CacheDel(planCacheKey(planID))
}

// planCacheKey генерирует ключ кэша для плана переноса
func planCacheKey(planID string) string {
	return fmt.Sprintf("relocation_plan:%s", planID)
}

// GetCacheStats возвращает статистику использования кэша
func (cs *CacheService) GetCacheStats() (map[string]interface{}, error) {
	if cs.redis == nil {
		return map[string]interface{}{
			"status": "disabled",
		}, nil
	}

	info, err := cs.redis.Info(database.Ctx, "memory").Result()
	if err != nil {
		return nil, err
	}

	keyCount, err := cs.redis.DBSize(database.Ctx).Result()
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":    "enabled",
		"key_count": keyCount,
		"memory":    info,
	}, nil
}
