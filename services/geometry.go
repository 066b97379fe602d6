package services

import (
	"fmt"
	"sort"

	"backend_shchitok/models"
)

// BusSide представляет сторону (шину) щита, которую обслуживает позиция
type BusSide string

const (
	BusSideLeft  BusSide = "left"  // Левая шина: нечетные позиции
	BusSideRight BusSide = "right" // Правая шина: четные позиции
)

// FreeSlot представляет свободную позицию щита вместе с ее стороной
type FreeSlot struct {
	Position int     `json:"position"`
	Side     BusSide `json:"side"`
}

// SideOfPosition возвращает сторону щита для позиции: левая шина обслуживает
// нечетные номера, правая - четные. Двухполюсные автоматы остаются на одной
// стороне, потому что перекрывают обе фазы на соседних рядах той же шины.
// Позиция меньше единицы - ошибка вызывающего кода.
func SideOfPosition(position int) BusSide {
	if position < 1 {
		panic(fmt.Sprintf("недопустимая позиция %d: позиции нумеруются с 1", position))
	}
	if position%2 == 1 {
		return BusSideLeft
	}
	return BusSideRight
}

// OccupiedPositions возвращает множество физически занятых позиций.
// Для двухполюсного автомата строка position+2 не существует в БД
// и добавляется здесь как вычисляемая занятость.
func OccupiedPositions(breakers []models.Breaker) map[int]bool {
	occupied := make(map[int]bool, len(breakers))
	for i := range breakers {
		for _, p := range breakers[i].OccupiedPositions() {
			occupied[p] = true
		}
	}
	return occupied
}

// FreePositions возвращает свободные позиции щита по возрастанию.
// Занятая позиция за пределами размера щита - нарушение предусловия
// (данные несогласованы с размером щита), немедленная остановка.
func FreePositions(panel *models.Panel, breakers []models.Breaker) []FreeSlot {
	occupied := OccupiedPositions(breakers)

	for position := range occupied {
		if position > panel.Size {
			panic(fmt.Sprintf("занятая позиция %d выходит за размер щита «%s» (%d позиций)",
				position, panel.Name, panel.Size))
		}
	}

	free := make([]FreeSlot, 0, panel.Size)
	for position := 1; position <= panel.Size; position++ {
		if !occupied[position] {
			free = append(free, FreeSlot{Position: position, Side: SideOfPosition(position)})
		}
	}

	sort.Slice(free, func(i, j int) bool { return free[i].Position < free[j].Position })
	return free
}

// IsSideChange проверяет, меняет ли перенос сторону щита (четность позиции).
// Информационный признак: переход между шинами может потребовать более
// длинной трассы кабеля.
func IsSideChange(fromPosition, toPosition int) bool {
	return SideOfPosition(fromPosition) != SideOfPosition(toPosition)
}
