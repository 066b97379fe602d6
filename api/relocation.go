package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_shchitok/models"
	"backend_shchitok/services"
)

// RelocationAPI представляет API планирования и выполнения переноса
// критических автоматов в целевой щит
type RelocationAPI struct {
	DB            *gorm.DB
	Planner       *services.RelocationPlannerService
	Executor      *services.MoveExecutor
	Cache         *services.CacheService
	Notifications *services.NotificationService
}

// NewRelocationAPI создает новый экземпляр RelocationAPI
func NewRelocationAPI(db *gorm.DB, cache *services.CacheService, notifications *services.NotificationService) *RelocationAPI {
	return &RelocationAPI{
		DB:            db,
		Planner:       services.NewRelocationPlannerService(db),
		Executor:      services.NewMoveExecutor(db),
		Cache:         cache,
		Notifications: notifications,
	}
}

// BuildPlanRequest - запрос построения плана переноса
type BuildPlanRequest struct {
	TargetPanelID uint `json:"target_panel_id" binding:"required"`
}

// ApplyPlanRequest - запрос применения плана: либо план целиком,
// либо идентификатор ранее построенного плана из кэша
type ApplyPlanRequest struct {
	PlanID string                   `json:"plan_id"`
	Plan   *services.RelocationPlan `json:"plan"`
}

// ApplyBatchRequest - запрос применения одной партии плана
type ApplyBatchRequest struct {
	PlanID      string                   `json:"plan_id"`
	Plan        *services.RelocationPlan `json:"plan"`
	BatchNumber int                      `json:"batch_number" binding:"required"`
}

// BuildPlan строит план консолидации критических автоматов исходного
// щита в целевой. Планировщик ничего не изменяет: план применяется
// отдельными запросами, партия за партией.
func (api *RelocationAPI) BuildPlan(c *gin.Context) {
	sourceID, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор щита"})
		return
	}

	var req BuildPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Целевой щит обязателен: " + err.Error()})
		return
	}

	plan, err := api.Planner.BuildPlan(sourceID, req.TargetPanelID)
	if err != nil {
		api.respondPlannerError(c, err)
		return
	}

	// План сохраняется в кэше: запросы применения ссылаются на него по
	// идентификатору, не передавая весь план обратно
	api.Cache.CachePlan(plan)

	if len(plan.Warnings) > 0 {
		sourceName, targetName := api.panelNames(plan.SourcePanelID, plan.TargetPanelID)
		api.Notifications.NotifyPlanWarnings(plan, sourceName, targetName)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": plan})
}

// GetPlan возвращает ранее построенный план из кэша
func (api *RelocationAPI) GetPlan(c *gin.Context) {
	planID := c.Param("plan_id")
	plan, err := api.Cache.GetCachedPlan(planID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "План не найден или устарел; постройте план заново"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "data": plan})
}

// ApplyPlan применяет весь план: партии выполняются строго по порядку.
// При конфликте (фактическое состояние слота разошлось с планом)
// ничего не применяется; требуется повторное планирование.
func (api *RelocationAPI) ApplyPlan(c *gin.Context) {
	var req ApplyPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	plan, ok := api.resolvePlan(c, req.Plan, req.PlanID)
	if !ok {
		return
	}

	if err := api.Executor.ApplyPlan(plan); err != nil {
		api.respondExecutorError(c, err)
		return
	}

	api.Cache.InvalidatePanelCaches(plan.SourcePanelID, plan.TargetPanelID)
	api.Cache.InvalidatePlan(plan.ID.String())

	sourceName, targetName := api.panelNames(plan.SourcePanelID, plan.TargetPanelID)
	api.Notifications.NotifyPlanApplied(plan, sourceName, targetName)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "План переноса применен полностью",
		"data": gin.H{
			"plan_id":         plan.ID,
			"total_moves":     plan.Summary.TotalMoves,
			"total_batches":   plan.Summary.TotalBatches,
			"estimated_cost":  plan.Summary.EstimatedCost,
			"source_panel_id": plan.SourcePanelID,
			"target_panel_id": plan.TargetPanelID,
		},
	})
}

// ApplyBatch применяет одну партию плана. Партии применяются по
// возрастанию номеров: поздние партии предполагают, что ранние уже
// выполнены и их перестановки зафиксированы.
func (api *RelocationAPI) ApplyBatch(c *gin.Context) {
	var req ApplyBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	plan, ok := api.resolvePlan(c, req.Plan, req.PlanID)
	if !ok {
		return
	}

	var batch *services.PlanBatch
	for i := range plan.ProgressiveBatches {
		if plan.ProgressiveBatches[i].Number == req.BatchNumber {
			batch = &plan.ProgressiveBatches[i]
			break
		}
	}
	if batch == nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Партия с таким номером отсутствует в плане"})
		return
	}

	if err := api.Executor.ApplyBatch(batch.Moves); err != nil {
		api.respondExecutorError(c, err)
		return
	}

	api.Cache.InvalidatePanelCaches(plan.SourcePanelID, plan.TargetPanelID)

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": batch.Description,
		"data": gin.H{
			"plan_id":      plan.ID,
			"batch_number": batch.Number,
			"moves":        len(batch.Moves),
		},
	})
}

// resolvePlan выбирает план из запроса: переданный целиком или из кэша
func (api *RelocationAPI) resolvePlan(c *gin.Context, inline *services.RelocationPlan, planID string) (*services.RelocationPlan, bool) {
	if inline != nil {
		return inline, true
	}
	if planID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Укажите план или идентификатор плана"})
		return nil, false
	}

	plan, err := api.Cache.GetCachedPlan(planID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "План не найден или устарел; постройте план заново"})
		return nil, false
	}
	return plan, true
}

// respondPlannerError переводит типизированные ошибки планировщика
// в HTTP-статусы
func (api *RelocationAPI) respondPlannerError(c *gin.Context, err error) {
	var configErr *services.ConfigurationError
	var capacityErr *services.CapacityError

	switch {
	case errors.Is(err, services.ErrNoCriticalBreakers):
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
	case errors.As(err, &configErr):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": configErr.Error()})
	case errors.As(err, &capacityErr):
		c.JSON(http.StatusConflict, gin.H{
			"status":              "error",
			"error":               capacityErr.Error(),
			"required_slots":      capacityErr.RequiredSlots,
			"available_positions": capacityErr.AvailablePositions,
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Щит не найден"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при построении плана: " + err.Error()})
	}
}

// respondExecutorError переводит ошибки исполнителя в HTTP-статусы.
// Конфликт означает устаревший план: повторная попытка без
// повторного планирования бессмысленна.
func (api *RelocationAPI) respondExecutorError(c *gin.Context, err error) {
	var conflictErr *services.ConflictError
	if errors.As(err, &conflictErr) {
		c.JSON(http.StatusConflict, gin.H{
			"status": "error",
			"error":  conflictErr.Error(),
			"hint":   "Состояние щита изменилось после построения плана; постройте план заново",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при применении плана: " + err.Error()})
}

// panelNames возвращает названия щитов для уведомлений
func (api *RelocationAPI) panelNames(sourceID, targetID uint) (string, string) {
	var source, target models.Panel
	api.DB.First(&source, sourceID)
	api.DB.First(&target, targetID)
	return source.Name, target.Name
}
