package services

import (
	"errors"
	"fmt"
	"log"

	"backend_shchitok/models"

	"gorm.io/gorm"
)

// MoveExecutor применяет планы переноса к базе данных. Каждая партия
// выполняется одной транзакцией: перед записью исполнитель сверяет
// фактическое состояние слотов с тем, из которого строился план,
// и при расхождении возвращает ConflictError без каких-либо изменений.
type MoveExecutor struct {
	db *gorm.DB
}

// NewMoveExecutor создает новый исполнитель планов переноса
func NewMoveExecutor(db *gorm.DB) *MoveExecutor {
	return &MoveExecutor{db: db}
}

// ApplyPlan применяет весь план одной транзакцией: либо выполняются
// все ходы, либо ни одного. Партии выполняются строго по порядку -
// исходные слоты поздних ходов предполагают, что ранние партии уже
// применены (автомат, собранный свопом, уезжает с новой половины слота).
func (e *MoveExecutor) ApplyPlan(plan *RelocationPlan) error {
	tx := e.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("не удалось открыть транзакцию: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	for _, batch := range plan.ProgressiveBatches {
		if err := applyMovesTx(tx, batch.Moves); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("не удалось зафиксировать план: %w", err)
	}

	log.Printf("✅ План переноса %s применен полностью: ходов %d, партий %d",
		plan.ID, plan.Summary.TotalMoves, plan.Summary.TotalBatches)
	return nil
}

// ApplyMove применяет один ход собственной транзакцией
func (e *MoveExecutor) ApplyMove(move PlannedMove) error {
	return e.ApplyBatch([]PlannedMove{move})
}

// ApplyBatch применяет партию ходов одной транзакцией.
// Порядок работы внутри транзакции:
//  1. каждый участник сверяется со слотом, из которого его ожидает план;
//  2. участники паркуются на временные отрицательные позиции - внутри
//     партии автоматы меняются местами, и без парковки промежуточные
//     состояния нарушали бы уникальность занятых слотов;
//  3. каждое назначение проверяется на свободу с учетом уехавших;
//  4. участники рассаживаются по назначениям.
//
// Цепи ссылаются на автомат по идентификатору и переезжают вместе с ним
// без отдельных записей. Тип автомата исполнитель не переписывает никогда:
// несоответствие типа и слота фиксирует проверка согласованности.
func (e *MoveExecutor) ApplyBatch(moves []PlannedMove) error {
	if len(moves) == 0 {
		return nil
	}

	tx := e.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("не удалось открыть транзакцию: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := applyMovesTx(tx, moves); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("не удалось зафиксировать партию: %w", err)
	}

	log.Printf("✅ Партия применена: ходов %d", len(moves))
	return nil
}

// applyMovesTx выполняет ходы партии внутри открытой транзакции
func applyMovesTx(tx *gorm.DB, moves []PlannedMove) error {
	movers := make([]models.Breaker, len(moves))
	moverIDs := make(map[uint]bool, len(moves))

	// Сверка с исходными слотами
	for i, move := range moves {
		var breaker models.Breaker
		if err := tx.First(&breaker, move.BreakerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &ConflictError{
					Slot:    move.From,
					Details: fmt.Sprintf("автомат %d не найден: план устарел", move.BreakerID),
				}
			}
			return fmt.Errorf("не удалось прочитать автомат %d: %w", move.BreakerID, err)
		}

		actual := slotRefOf(breaker)
		if actual.PanelID != move.From.PanelID ||
			actual.Position != move.From.Position ||
			normalizeSlot(actual.SlotPosition) != normalizeSlot(move.From.SlotPosition) {
			return &ConflictError{
				Slot: move.From,
				Details: fmt.Sprintf("автомат «%s» находится в другом месте (%s): план устарел",
					breaker.Label, actual),
			}
		}

		movers[i] = breaker
		moverIDs[breaker.ID] = true
	}

	// Парковка на временных отрицательных позициях
	for i := range movers {
		if err := tx.Model(&models.Breaker{}).
			Where("id = ?", movers[i].ID).
			Update("position", -(i + 1)).Error; err != nil {
			return fmt.Errorf("не удалось переместить автомат %d: %w", movers[i].ID, err)
		}
	}

	// Проверка назначений: участники уже уехали, занятыми остаются посторонние
	for i, move := range moves {
		if err := verifyDestinationFree(tx, movers[i], move); err != nil {
			return err
		}
	}

	// Посадка по назначениям
	for i, move := range moves {
		updates := map[string]interface{}{
			"panel_id":      move.To.PanelID,
			"position":      move.To.Position,
			"slot_position": normalizeSlot(move.To.SlotPosition),
		}
		if err := tx.Model(&models.Breaker{}).
			Where("id = ?", movers[i].ID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("не удалось установить автомат %d в %s: %w", movers[i].ID, move.To, err)
		}
	}

	return nil
}

// verifyDestinationFree проверяет, что назначение хода свободно.
// Двухполюсный участник дополнительно резервирует позицию p+2,
// а позиция p может быть перекрыта двухполюсным автоматом с p-2.
func verifyDestinationFree(tx *gorm.DB, mover models.Breaker, move PlannedMove) error {
	var panel models.Panel
	if err := tx.First(&panel, move.To.PanelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ConflictError{Slot: move.To, Details: "целевой щит не найден: план устарел"}
		}
		return fmt.Errorf("не удалось прочитать щит %d: %w", move.To.PanelID, err)
	}

	footprint := []int{move.To.Position}
	if mover.BreakerType == models.BreakerTypeDoublePole {
		footprint = append(footprint, move.To.Position+2)
	}

	for _, position := range footprint {
		if position < 1 || position > panel.Size {
			return &ConflictError{
				Slot:    move.To,
				Details: fmt.Sprintf("позиция %d за пределами щита «%s» (размер %d)", position, panel.Name, panel.Size),
			}
		}
	}

	var occupants []models.Breaker
	if err := tx.Where("panel_id = ? AND position IN ?", move.To.PanelID, footprint).
		Find(&occupants).Error; err != nil {
		return fmt.Errorf("не удалось проверить занятость слота %s: %w", move.To, err)
	}

	arriving := normalizeSlot(move.To.SlotPosition)
	for _, occupant := range occupants {
		switch {
		case occupant.Position != move.To.Position:
			// Вторая строка двухполюсного участника: занята кем угодно - конфликт
		case arriving == models.SlotPositionSingle:
			// Единственный занимающий претендует на всю позицию
		case normalizeSlot(occupant.SlotPosition) == models.SlotPositionSingle:
			// Позиция целиком удерживается одиночным занимающим
		case normalizeSlot(occupant.SlotPosition) != arriving:
			// Другая половина спаренного слота: совместимо
			continue
		}
		return &ConflictError{
			Slot: move.To,
			Details: fmt.Sprintf("назначение занято автоматом «%s» (%s): план устарел",
				occupant.Label, slotRefOf(occupant)),
		}
	}

	// Позиция прибытия может быть перекрыта двухполюсным автоматом снизу
	shadow := make([]int, 0, len(footprint))
	for _, position := range footprint {
		if position > 2 {
			shadow = append(shadow, position-2)
		}
	}
	if len(shadow) > 0 {
		var overlapping []models.Breaker
		if err := tx.Where("panel_id = ? AND position IN ? AND breaker_type = ?",
			move.To.PanelID, shadow, models.BreakerTypeDoublePole).
			Find(&overlapping).Error; err != nil {
			return fmt.Errorf("не удалось проверить перекрытие слота %s: %w", move.To, err)
		}
		if len(overlapping) > 0 {
			return &ConflictError{
				Slot: move.To,
				Details: fmt.Sprintf("позиция перекрыта двухполюсным автоматом «%s» из позиции %d",
					overlapping[0].Label, overlapping[0].Position),
			}
		}
	}

	return nil
}

// MergeBreakers сливает две записи одного физического автомата: цепи
// источника переводятся на получателя, запись источника мягко удаляется.
// Позиция, слот и тип получателя не меняются. Возвращает число
// переведенных цепей.
func (e *MoveExecutor) MergeBreakers(sourceID, targetID uint) (int64, error) {
	if sourceID == targetID {
		return 0, &ConfigurationError{Reason: "автомат нельзя слить с самим собой"}
	}

	tx := e.db.Begin()
	if tx.Error != nil {
		return 0, fmt.Errorf("не удалось открыть транзакцию: %w", tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var source, target models.Breaker
	if err := tx.First(&source, sourceID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, &ConfigurationError{Reason: fmt.Sprintf("автомат-источник %d не найден", sourceID)}
		}
		return 0, fmt.Errorf("не удалось прочитать автомат %d: %w", sourceID, err)
	}
	if err := tx.First(&target, targetID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, &ConfigurationError{Reason: fmt.Sprintf("автомат-получатель %d не найден", targetID)}
		}
		return 0, fmt.Errorf("не удалось прочитать автомат %d: %w", targetID, err)
	}

	result := tx.Model(&models.Circuit{}).
		Where("breaker_id = ?", source.ID).
		Update("breaker_id", target.ID)
	if result.Error != nil {
		tx.Rollback()
		return 0, fmt.Errorf("не удалось перевести цепи: %w", result.Error)
	}

	if err := tx.Delete(&source).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("не удалось удалить автомат-источник: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return 0, fmt.Errorf("не удалось зафиксировать слияние: %w", err)
	}

	log.Printf("✅ Автомат «%s» слит в «%s»: переведено цепей %d", source.Label, target.Label, result.RowsAffected)
	return result.RowsAffected, nil
}

// normalizeSlot приводит пустое значение половины слота к single
func normalizeSlot(s models.SlotPosition) models.SlotPosition {
	if s == "" {
		return models.SlotPositionSingle
	}
	return s
}
