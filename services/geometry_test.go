package services

import (
	"testing"

	"backend_shchitok/models"

	"github.com/stretchr/testify/assert"
)

func TestSideOfPosition(t *testing.T) {
	// Нечетные позиции на левой шине, четные на правой
	assert.Equal(t, BusSideLeft, SideOfPosition(1))
	assert.Equal(t, BusSideRight, SideOfPosition(2))
	assert.Equal(t, BusSideLeft, SideOfPosition(7))
	assert.Equal(t, BusSideRight, SideOfPosition(42))
}

func TestSideOfPositionPanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() { SideOfPosition(0) })
	assert.Panics(t, func() { SideOfPosition(-3) })
}

func TestIsSideChange(t *testing.T) {
	assert.True(t, IsSideChange(1, 2))   // левая -> правая
	assert.True(t, IsSideChange(4, 7))   // правая -> левая
	assert.False(t, IsSideChange(1, 3))  // обе левые
	assert.False(t, IsSideChange(2, 10)) // обе правые
}

func TestOccupiedPositionsDerivesDoublePoleFootprint(t *testing.T) {
	breakers := []models.Breaker{
		{Position: 1, BreakerType: models.BreakerTypeSingle, SlotPosition: models.SlotPositionSingle},
		{Position: 3, BreakerType: models.BreakerTypeTandem, SlotPosition: models.SlotPositionA},
		{Position: 3, BreakerType: models.BreakerTypeTandem, SlotPosition: models.SlotPositionB},
		{Position: 2, BreakerType: models.BreakerTypeDoublePole, SlotPosition: models.SlotPositionSingle},
	}

	occupied := OccupiedPositions(breakers)

	// Обе половины спаренного слота занимают одну позицию,
	// двухполюсный занимает свою и вторую строку ниже
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true, 4: true}, occupied)
}

func TestFreePositionsEmptyPanel(t *testing.T) {
	panel := &models.Panel{Size: 12}

	free := FreePositions(panel, nil)

	assert.Len(t, free, 12)
	assert.Equal(t, FreeSlot{Position: 1, Side: BusSideLeft}, free[0])
	assert.Equal(t, FreeSlot{Position: 2, Side: BusSideRight}, free[1])
	assert.Equal(t, FreeSlot{Position: 12, Side: BusSideRight}, free[11])
}

func TestFreePositionsSkipsDerivedOccupancy(t *testing.T) {
	panel := &models.Panel{Size: 12}
	breakers := []models.Breaker{
		{Position: 1, BreakerType: models.BreakerTypeDoublePole, SlotPosition: models.SlotPositionSingle},
		{Position: 2, BreakerType: models.BreakerTypeSingle, SlotPosition: models.SlotPositionSingle},
	}

	free := FreePositions(panel, breakers)

	// Позиция 3 виртуально занята двухполюсным автоматом из позиции 1
	positions := make([]int, 0, len(free))
	for _, slot := range free {
		positions = append(positions, slot.Position)
	}
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10, 11, 12}, positions)
}

func TestFreePositionsFullPanel(t *testing.T) {
	panel := &models.Panel{Size: 12}
	breakers := make([]models.Breaker, 0, 12)
	for position := 1; position <= 12; position++ {
		breakers = append(breakers, models.Breaker{
			Position:     position,
			BreakerType:  models.BreakerTypeSingle,
			SlotPosition: models.SlotPositionSingle,
		})
	}

	free := FreePositions(panel, breakers)

	assert.Empty(t, free)
}

func TestFreePositionsPanicsOnOverflow(t *testing.T) {
	// Автомат за пределами щита означает нарушение предусловия:
	// такие данные должны быть исправлены до любых расчетов
	panel := &models.Panel{Size: 12}
	breakers := []models.Breaker{
		{Position: 13, BreakerType: models.BreakerTypeSingle, SlotPosition: models.SlotPositionSingle},
	}

	assert.Panics(t, func() { FreePositions(panel, breakers) })
}

func TestFreePositionsPanicsOnDoublePoleOverhang(t *testing.T) {
	// Вторая строка двухполюсного автомата выходит за размер щита
	panel := &models.Panel{Size: 12}
	breakers := []models.Breaker{
		{Position: 11, BreakerType: models.BreakerTypeDoublePole, SlotPosition: models.SlotPositionSingle},
	}

	assert.Panics(t, func() { FreePositions(panel, breakers) })
}
