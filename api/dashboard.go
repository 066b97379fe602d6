package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/models"
	"backend_shchitok/services"
)

// DashboardAPI представляет API сводной статистики
type DashboardAPI struct {
	DB    *gorm.DB
	Cache *services.CacheService
}

// NewDashboardAPI создает новый экземпляр DashboardAPI
func NewDashboardAPI(db *gorm.DB, cache *services.CacheService) *DashboardAPI {
	return &DashboardAPI{DB: db, Cache: cache}
}

// DashboardStats - сводная статистика системы
type DashboardStats struct {
	TotalPanels       int64 `json:"total_panels"`
	TotalBreakers     int64 `json:"total_breakers"`
	CriticalBreakers  int64 `json:"critical_breakers"`
	MonitoredBreakers int64 `json:"monitored_breakers"`
	ConfirmedBreakers int64 `json:"confirmed_breakers"`
	TandemBreakers    int64 `json:"tandem_breakers"`
	DoublePole        int64 `json:"double_pole_breakers"`
	TotalCircuits     int64 `json:"total_circuits"`
	TotalRooms        int64 `json:"total_rooms"`

	CircuitsByType map[string]int64 `json:"circuits_by_type"`
	RoomsByLevel   map[string]int64 `json:"rooms_by_level"`

	OpenFindings     int64 `json:"open_findings"`
	CriticalFindings int64 `json:"critical_findings"`

	LastUpdated time.Time `json:"last_updated"`
}

// RecentChange - элемент ленты последних изменений
type RecentChange struct {
	Kind      string    `json:"kind"` // panel | breaker | circuit
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetStats возвращает сводную статистику (с коротким кэшированием)
func (api *DashboardAPI) GetStats(c *gin.Context) {
	var cached DashboardStats
	if err := api.Cache.GetCachedDashboard(&cached); err == nil && !cached.LastUpdated.IsZero() {
		c.JSON(http.StatusOK, gin.H{"status": "success", "data": cached, "cached": true})
		return
	}

	stats := DashboardStats{
		CircuitsByType: make(map[string]int64),
		RoomsByLevel:   make(map[string]int64),
		LastUpdated:    time.Now(),
	}

	api.DB.Model(&models.Panel{}).Count(&stats.TotalPanels)
	api.DB.Model(&models.Breaker{}).Count(&stats.TotalBreakers)
	api.DB.Model(&models.Breaker{}).Where("critical = ?", true).Count(&stats.CriticalBreakers)
	api.DB.Model(&models.Breaker{}).Where("monitor = ?", true).Count(&stats.MonitoredBreakers)
	api.DB.Model(&models.Breaker{}).Where("confirmed = ?", true).Count(&stats.ConfirmedBreakers)
	api.DB.Model(&models.Breaker{}).Where("breaker_type = ?", models.BreakerTypeTandem).Count(&stats.TandemBreakers)
	api.DB.Model(&models.Breaker{}).Where("breaker_type = ?", models.BreakerTypeDoublePole).Count(&stats.DoublePole)
	api.DB.Model(&models.Circuit{}).Count(&stats.TotalCircuits)
	api.DB.Model(&models.Room{}).Count(&stats.TotalRooms)

	var circuitCounts []struct {
		Type  string `json:"type"`
		Count int64  `json:"count"`
	}
	api.DB.Model(&models.Circuit{}).Select("type, COUNT(*) as count").Group("type").Scan(&circuitCounts)
	for _, row := range circuitCounts {
		stats.CircuitsByType[row.Type] = row.Count
	}

	var roomCounts []struct {
		Level string `json:"level"`
		Count int64  `json:"count"`
	}
	api.DB.Model(&models.Room{}).Select("level, COUNT(*) as count").Group("level").Scan(&roomCounts)
	for _, row := range roomCounts {
		stats.RoomsByLevel[row.Level] = row.Count
	}

	api.DB.Model(&models.AuditFinding{}).
		Where("status != ?", models.AuditFindingStatusResolved).
		Count(&stats.OpenFindings)
	api.DB.Model(&models.AuditFinding{}).
		Where("status != ? AND severity = ?", models.AuditFindingStatusResolved, models.AuditSeverityCritical).
		Count(&stats.CriticalFindings)

	api.Cache.CacheDashboard(stats)

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": stats})
}

// GetRecent возвращает ленту последних изменений по сущностям
func (api *DashboardAPI) GetRecent(c *gin.Context) {
	const feedLimit = 10

	changes := make([]RecentChange, 0, 3*feedLimit)

	var panels []models.Panel
	api.DB.Order("updated_at DESC").Limit(feedLimit).Find(&panels)
	for i := range panels {
		changes = append(changes, RecentChange{
			Kind:      "panel",
			ID:        panels[i].ID,
			Title:     panels[i].Name,
			UpdatedAt: panels[i].UpdatedAt,
		})
	}

	var breakers []models.Breaker
	api.DB.Order("updated_at DESC").Limit(feedLimit).Find(&breakers)
	for i := range breakers {
		title := breakers[i].Label
		if title == "" {
			title = "Позиция " + breakers[i].SlotLabel()
		}
		changes = append(changes, RecentChange{
			Kind:      "breaker",
			ID:        breakers[i].ID,
			Title:     title,
			UpdatedAt: breakers[i].UpdatedAt,
		})
	}

	var circuits []models.Circuit
	api.DB.Order("updated_at DESC").Limit(feedLimit).Find(&circuits)
	for i := range circuits {
		changes = append(changes, RecentChange{
			Kind:      "circuit",
			ID:        circuits[i].ID,
			Title:     circuits[i].GetTypeDisplayName(),
			UpdatedAt: circuits[i].UpdatedAt,
		})
	}

	// Смешанная лента: свежие изменения первыми
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].UpdatedAt.After(changes[j].UpdatedAt)
	})
	if len(changes) > feedLimit {
		changes = changes[:feedLimit]
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": changes})
}

// GetCacheStats возвращает статистику кэша Redis (status: disabled без Redis)
func (api *DashboardAPI) GetCacheStats(c *gin.Context) {
	stats, err := api.Cache.GetCacheStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  "Не удалось получить статистику кэша: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": stats})
}
