package services

import (
	"testing"

	"backend_shchitok/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createExecPanel(t *testing.T, db *gorm.DB, name string, size int) models.Panel {
	panel := models.Panel{Name: name, Size: size}
	require.NoError(t, db.Create(&panel).Error)
	return panel
}

func createExecBreaker(t *testing.T, db *gorm.DB, panelID uint, position int, slot models.SlotPosition, breakerType models.BreakerType, critical bool, label string) models.Breaker {
	breaker := models.Breaker{
		PanelID:      panelID,
		Position:     position,
		SlotPosition: slot,
		BreakerType:  breakerType,
		Amperage:     16,
		Critical:     critical,
		Label:        label,
	}
	require.NoError(t, db.Create(&breaker).Error)
	return breaker
}

func reloadBreaker(t *testing.T, db *gorm.DB, id uint) models.Breaker {
	var breaker models.Breaker
	require.NoError(t, db.First(&breaker, id).Error)
	return breaker
}

func TestApplyBatchMovesBreakerAndCircuitsFollow(t *testing.T) {
	db := setupPlannerTestDB()
	source := createExecPanel(t, db, "Основной щит", 24)
	target := createExecPanel(t, db, "Щит критических нагрузок", 12)

	breaker := createExecBreaker(t, db, source.ID, 4, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")
	circuit := models.Circuit{BreakerID: breaker.ID, Type: models.CircuitTypeHeating, Notes: "Газовый котел"}
	require.NoError(t, db.Create(&circuit).Error)

	executor := NewMoveExecutor(db)
	err := executor.ApplyBatch([]PlannedMove{{
		BreakerID: breaker.ID,
		From:      SlotRef{PanelID: source.ID, Position: 4, SlotPosition: models.SlotPositionSingle},
		To:        SlotRef{PanelID: target.ID, Position: 1, SlotPosition: models.SlotPositionSingle},
		Kind:      MoveKindCritical,
	}})
	require.NoError(t, err)

	moved := reloadBreaker(t, db, breaker.ID)
	assert.Equal(t, target.ID, moved.PanelID)
	assert.Equal(t, 1, moved.Position)
	assert.Equal(t, models.SlotPositionSingle, moved.SlotPosition)
	assert.Equal(t, models.BreakerTypeSingle, moved.BreakerType) // тип не переписывается

	// Цепь ссылается на автомат и переезжает вместе с ним без отдельных записей
	var movedCircuit models.Circuit
	require.NoError(t, db.First(&movedCircuit, circuit.ID).Error)
	assert.Equal(t, breaker.ID, movedCircuit.BreakerID)
}

func TestApplyBatchConflictWhenMoverElsewhere(t *testing.T) {
	db := setupPlannerTestDB()
	source := createExecPanel(t, db, "Основной щит", 24)
	target := createExecPanel(t, db, "Щит критических нагрузок", 12)

	breaker := createExecBreaker(t, db, source.ID, 4, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")

	executor := NewMoveExecutor(db)
	err := executor.ApplyBatch([]PlannedMove{{
		BreakerID: breaker.ID,
		From:      SlotRef{PanelID: source.ID, Position: 9, SlotPosition: models.SlotPositionSingle}, // план устарел
		To:        SlotRef{PanelID: target.ID, Position: 1, SlotPosition: models.SlotPositionSingle},
		Kind:      MoveKindCritical,
	}})

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)

	unchanged := reloadBreaker(t, db, breaker.ID)
	assert.Equal(t, 4, unchanged.Position)
	assert.Equal(t, source.ID, unchanged.PanelID)
}

func TestApplyBatchConflictWhenDestinationOccupied(t *testing.T) {
	db := setupPlannerTestDB()
	source := createExecPanel(t, db, "Основной щит", 24)
	target := createExecPanel(t, db, "Щит критических нагрузок", 12)

	breaker := createExecBreaker(t, db, source.ID, 4, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")
	createExecBreaker(t, db, target.ID, 1, models.SlotPositionSingle, models.BreakerTypeSingle, false, "Посторонний")

	executor := NewMoveExecutor(db)
	err := executor.ApplyBatch([]PlannedMove{{
		BreakerID: breaker.ID,
		From:      SlotRef{PanelID: source.ID, Position: 4, SlotPosition: models.SlotPositionSingle},
		To:        SlotRef{PanelID: target.ID, Position: 1, SlotPosition: models.SlotPositionSingle},
		Kind:      MoveKindCritical,
	}})

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)

	unchanged := reloadBreaker(t, db, breaker.ID)
	assert.Equal(t, 4, unchanged.Position)
	assert.Equal(t, source.ID, unchanged.PanelID)
}

func TestApplyBatchSwapWithinPanel(t *testing.T) {
	// Своп внутри партии возможен только благодаря парковке: назначение
	// каждого участника освобождается другим участником той же партии
	db := setupPlannerTestDB()
	panel := createExecPanel(t, db, "Основной щит", 24)

	nonCritical := createExecBreaker(t, db, panel.ID, 5, models.SlotPositionB, models.BreakerTypeTandem, false, "Свет кухня")
	donor := createExecBreaker(t, db, panel.ID, 10, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")

	executor := NewMoveExecutor(db)
	err := executor.ApplyBatch([]PlannedMove{
		{
			BreakerID:           nonCritical.ID,
			From:                SlotRef{PanelID: panel.ID, Position: 5, SlotPosition: models.SlotPositionB},
			To:                  SlotRef{PanelID: panel.ID, Position: 10, SlotPosition: models.SlotPositionSingle},
			Kind:                MoveKindReorganization,
			TemporaryDisconnect: true,
		},
		{
			BreakerID:           donor.ID,
			From:                SlotRef{PanelID: panel.ID, Position: 10, SlotPosition: models.SlotPositionSingle},
			To:                  SlotRef{PanelID: panel.ID, Position: 5, SlotPosition: models.SlotPositionB},
			Kind:                MoveKindReorganization,
			TemporaryDisconnect: true,
		},
	})
	require.NoError(t, err)

	movedOut := reloadBreaker(t, db, nonCritical.ID)
	assert.Equal(t, 10, movedOut.Position)
	assert.Equal(t, models.SlotPositionSingle, movedOut.SlotPosition)

	movedIn := reloadBreaker(t, db, donor.ID)
	assert.Equal(t, 5, movedIn.Position)
	assert.Equal(t, models.SlotPositionB, movedIn.SlotPosition)
	assert.Equal(t, models.BreakerTypeSingle, movedIn.BreakerType) // тип остался одиночным
}

func TestApplyBatchRollsBackOnConflict(t *testing.T) {
	db := setupPlannerTestDB()
	source := createExecPanel(t, db, "Основной щит", 24)
	target := createExecPanel(t, db, "Щит критических нагрузок", 12)

	first := createExecBreaker(t, db, source.ID, 3, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")
	second := createExecBreaker(t, db, source.ID, 5, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Скважина")
	createExecBreaker(t, db, target.ID, 2, models.SlotPositionSingle, models.BreakerTypeSingle, false, "Посторонний")

	executor := NewMoveExecutor(db)
	err := executor.ApplyBatch([]PlannedMove{
		{
			BreakerID: first.ID,
			From:      SlotRef{PanelID: source.ID, Position: 3, SlotPosition: models.SlotPositionSingle},
			To:        SlotRef{PanelID: target.ID, Position: 1, SlotPosition: models.SlotPositionSingle},
			Kind:      MoveKindCritical,
		},
		{
			BreakerID: second.ID,
			From:      SlotRef{PanelID: source.ID, Position: 5, SlotPosition: models.SlotPositionSingle},
			To:        SlotRef{PanelID: target.ID, Position: 2, SlotPosition: models.SlotPositionSingle}, // занято
			Kind:      MoveKindCritical,
		},
	})

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)

	// Партия атомарна: первый ход тоже откатился
	assert.Equal(t, 3, reloadBreaker(t, db, first.ID).Position)
	assert.Equal(t, source.ID, reloadBreaker(t, db, first.ID).PanelID)
	assert.Equal(t, 5, reloadBreaker(t, db, second.ID).Position)
}

func TestApplyBatchConflictOnDoublePoleOverlap(t *testing.T) {
	// Позиция назначения перекрыта второй строкой двухполюсного автомата
	db := setupPlannerTestDB()
	source := createExecPanel(t, db, "Основной щит", 24)
	target := createExecPanel(t, db, "Щит критических нагрузок", 12)

	createExecBreaker(t, db, target.ID, 1, models.SlotPositionSingle, models.BreakerTypeDoublePole, true, "Варочная панель")
	breaker := createExecBreaker(t, db, source.ID, 4, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")

	executor := NewMoveExecutor(db)
	err := executor.ApplyBatch([]PlannedMove{{
		BreakerID: breaker.ID,
		From:      SlotRef{PanelID: source.ID, Position: 4, SlotPosition: models.SlotPositionSingle},
		To:        SlotRef{PanelID: target.ID, Position: 3, SlotPosition: models.SlotPositionSingle},
		Kind:      MoveKindCritical,
	}})

	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
	assert.Contains(t, conflictErr.Details, "двухполюсным")
}

func TestApplyBatchConflictWhenDestinationBeyondPanel(t *testing.T) {
	db := setupPlannerTestDB()
	source := createExecPanel(t, db, "Основной щит", 24)
	target := createExecPanel(t, db, "Щит критических нагрузок", 12)

	breaker := createExecBreaker(t, db, source.ID, 4, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")
	doublePole := createExecBreaker(t, db, source.ID, 8, models.SlotPositionSingle, models.BreakerTypeDoublePole, true, "Варочная панель")

	executor := NewMoveExecutor(db)

	err := executor.ApplyMove(PlannedMove{
		BreakerID: breaker.ID,
		From:      SlotRef{PanelID: source.ID, Position: 4, SlotPosition: models.SlotPositionSingle},
		To:        SlotRef{PanelID: target.ID, Position: 13, SlotPosition: models.SlotPositionSingle},
		Kind:      MoveKindCritical,
	})
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)

	// Вторая строка двухполюсного вышла бы за размер щита
	err = executor.ApplyMove(PlannedMove{
		BreakerID: doublePole.ID,
		From:      SlotRef{PanelID: source.ID, Position: 8, SlotPosition: models.SlotPositionSingle},
		To:        SlotRef{PanelID: target.ID, Position: 11, SlotPosition: models.SlotPositionSingle},
		Kind:      MoveKindCritical,
	})
	require.ErrorAs(t, err, &conflictErr)
}

func TestApplyPlanEndToEnd(t *testing.T) {
	// Полный цикл: план со свопом строится из БД и применяется целиком
	db := setupPlannerTestDB()
	source := createExecPanel(t, db, "Основной щит", 24)
	target := createExecPanel(t, db, "Щит критических нагрузок", 12)

	criticalHalf := createExecBreaker(t, db, source.ID, 5, models.SlotPositionA, models.BreakerTypeTandem, true, "Холодильник")
	nonCriticalHalf := createExecBreaker(t, db, source.ID, 5, models.SlotPositionB, models.BreakerTypeTandem, false, "Свет кухня")
	donor := createExecBreaker(t, db, source.ID, 10, models.SlotPositionSingle, models.BreakerTypeSingle, true, "Котел")

	circuit := models.Circuit{BreakerID: criticalHalf.ID, Type: models.CircuitTypeAppliance, Notes: "Холодильник на кухне"}
	require.NoError(t, db.Create(&circuit).Error)

	planner := NewRelocationPlannerService(db)
	plan, err := planner.BuildPlan(source.ID, target.ID)
	require.NoError(t, err)

	executor := NewMoveExecutor(db)
	require.NoError(t, executor.ApplyPlan(plan))

	// Некритический уехал на бывшую позицию донора
	movedOut := reloadBreaker(t, db, nonCriticalHalf.ID)
	assert.Equal(t, source.ID, movedOut.PanelID)
	assert.Equal(t, 10, movedOut.Position)
	assert.Equal(t, models.SlotPositionSingle, movedOut.SlotPosition)

	// Собранная пара стоит в целевом щите половинами A и B
	movedA := reloadBreaker(t, db, criticalHalf.ID)
	assert.Equal(t, target.ID, movedA.PanelID)
	assert.Equal(t, 1, movedA.Position)
	assert.Equal(t, models.SlotPositionA, movedA.SlotPosition)

	movedB := reloadBreaker(t, db, donor.ID)
	assert.Equal(t, target.ID, movedB.PanelID)
	assert.Equal(t, 1, movedB.Position)
	assert.Equal(t, models.SlotPositionB, movedB.SlotPosition)

	// Цепь осталась привязанной к своему автомату
	var movedCircuit models.Circuit
	require.NoError(t, db.First(&movedCircuit, circuit.ID).Error)
	assert.Equal(t, criticalHalf.ID, movedCircuit.BreakerID)

	// Повторное применение того же плана упирается в устаревшие исходные слоты
	err = executor.ApplyPlan(plan)
	var conflictErr *ConflictError
	require.ErrorAs(t, err, &conflictErr)
}

func TestApplyBatchEmpty(t *testing.T) {
	db := setupPlannerTestDB()
	executor := NewMoveExecutor(db)

	assert.NoError(t, executor.ApplyBatch(nil))
}

func TestMergeBreakers(t *testing.T) {
	db := setupPlannerTestDB()
	panel := createExecPanel(t, db, "Основной щит", 24)

	duplicate := createExecBreaker(t, db, panel.ID, 7, models.SlotPositionSingle, models.BreakerTypeSingle, false, "Розетки (дубль)")
	keeper := createExecBreaker(t, db, panel.ID, 8, models.SlotPositionSingle, models.BreakerTypeSingle, false, "Розетки гостиная")

	circuits := []models.Circuit{
		{BreakerID: duplicate.ID, Type: models.CircuitTypeOutlet, Notes: "Левая стена"},
		{BreakerID: duplicate.ID, Type: models.CircuitTypeOutlet, Notes: "Правая стена"},
		{BreakerID: keeper.ID, Type: models.CircuitTypeOutlet, Notes: "Окно"},
	}
	for i := range circuits {
		require.NoError(t, db.Create(&circuits[i]).Error)
	}

	executor := NewMoveExecutor(db)
	moved, err := executor.MergeBreakers(duplicate.ID, keeper.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	// Все цепи теперь на получателе
	var count int64
	require.NoError(t, db.Model(&models.Circuit{}).Where("breaker_id = ?", keeper.ID).Count(&count).Error)
	assert.Equal(t, int64(3), count)

	// Источник мягко удален: обычный запрос его не видит, архивный видит
	var gone models.Breaker
	err = db.First(&gone, duplicate.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var archived models.Breaker
	require.NoError(t, db.Unscoped().First(&archived, duplicate.ID).Error)
	assert.True(t, archived.DeletedAt.Valid)
}

func TestMergeBreakersValidation(t *testing.T) {
	db := setupPlannerTestDB()
	panel := createExecPanel(t, db, "Основной щит", 24)
	breaker := createExecBreaker(t, db, panel.ID, 7, models.SlotPositionSingle, models.BreakerTypeSingle, false, "Розетки")

	executor := NewMoveExecutor(db)

	_, err := executor.MergeBreakers(breaker.ID, breaker.ID)
	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)

	_, err = executor.MergeBreakers(breaker.ID, 9999)
	require.ErrorAs(t, err, &configErr)
}
