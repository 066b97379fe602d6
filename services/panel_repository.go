package services

import (
	"fmt"
	"strings"

	"backend_shchitok/models"

	"gorm.io/gorm"
)

// PanelRepository отвечает за чтение состояния щитов для планировщика
// и прочих сервисов. Все выборки упорядочены по (позиция, половина слота),
// чтобы повторное планирование по неизменным данным давало идентичный план.
type PanelRepository struct {
	db *gorm.DB
}

// NewPanelRepository создает новый репозиторий щитов
func NewPanelRepository(db *gorm.DB) *PanelRepository {
	return &PanelRepository{db: db}
}

// PanelSnapshot - снимок щита на момент построения плана.
// Планировщик читает его один раз и дальше работает только в памяти.
type PanelSnapshot struct {
	Panel    models.Panel
	Breakers []models.Breaker
}

// PanelInfo - щит вместе с вычисленной доступностью позиций
type PanelInfo struct {
	models.Panel
	AvailablePositions []FreeSlot `json:"available_positions"`
}

// CriticalBreakerInfo - критический автомат со сводкой по его цепям
type CriticalBreakerInfo struct {
	models.Breaker
	CircuitCount        int    `json:"circuit_count"`
	CircuitDescriptions string `json:"circuit_descriptions"`
}

// GetPanel возвращает щит с вычисленными свободными позициями
func (r *PanelRepository) GetPanel(panelID uint) (*PanelInfo, error) {
	var panel models.Panel
	if err := r.db.First(&panel, panelID).Error; err != nil {
		return nil, err
	}

	breakers, err := r.GetPanelBreakers(panelID)
	if err != nil {
		return nil, err
	}

	return &PanelInfo{
		Panel:              panel,
		AvailablePositions: FreePositions(&panel, breakers),
	}, nil
}

// GetPanelBreakers возвращает все автоматы щита по возрастанию позиции
func (r *PanelRepository) GetPanelBreakers(panelID uint) ([]models.Breaker, error) {
	var breakers []models.Breaker
	err := r.db.Where("panel_id = ?", panelID).
		Order("position ASC, slot_position ASC").
		Find(&breakers).Error
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить автоматы щита %d: %w", panelID, err)
	}
	return breakers, nil
}

// GetCriticalBreakers возвращает критические автоматы щита со сводкой по цепям
func (r *PanelRepository) GetCriticalBreakers(panelID uint) ([]CriticalBreakerInfo, error) {
	var breakers []models.Breaker
	err := r.db.Preload("Circuits").Preload("Circuits.Room").
		Where("panel_id = ? AND critical = ?", panelID, true).
		Order("position ASC, slot_position ASC").
		Find(&breakers).Error
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить критические автоматы щита %d: %w", panelID, err)
	}

	infos := make([]CriticalBreakerInfo, 0, len(breakers))
	for i := range breakers {
		infos = append(infos, CriticalBreakerInfo{
			Breaker:             breakers[i],
			CircuitCount:        len(breakers[i].Circuits),
			CircuitDescriptions: describeCircuits(breakers[i].Circuits),
		})
	}
	return infos, nil
}

// GetAllSlotsAtPosition возвращает всех занимающих позицию (для анализа спаренных слотов)
func (r *PanelRepository) GetAllSlotsAtPosition(panelID uint, position int) ([]models.Breaker, error) {
	var breakers []models.Breaker
	err := r.db.Where("panel_id = ? AND position = ?", panelID, position).
		Order("slot_position ASC").
		Find(&breakers).Error
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить занимающих позицию %d щита %d: %w", position, panelID, err)
	}
	return breakers, nil
}

// GetOccupiedPositions возвращает множество занятых позиций щита,
// включая вычисляемые вторые строки двухполюсных автоматов
func (r *PanelRepository) GetOccupiedPositions(panelID uint) (map[int]bool, error) {
	breakers, err := r.GetPanelBreakers(panelID)
	if err != nil {
		return nil, err
	}
	return OccupiedPositions(breakers), nil
}

// GetSnapshot читает снимок щита для планировщика
func (r *PanelRepository) GetSnapshot(panelID uint) (*PanelSnapshot, error) {
	var panel models.Panel
	if err := r.db.First(&panel, panelID).Error; err != nil {
		return nil, err
	}

	breakers, err := r.GetPanelBreakers(panelID)
	if err != nil {
		return nil, err
	}

	return &PanelSnapshot{Panel: panel, Breakers: breakers}, nil
}

// describeCircuits собирает короткую сводку цепей автомата: "Кухня: Розетки; Гараж: Прибор"
func describeCircuits(circuits []models.Circuit) string {
	if len(circuits) == 0 {
		return ""
	}

	parts := make([]string, 0, len(circuits))
	for i := range circuits {
		desc := circuits[i].GetTypeDisplayName()
		if circuits[i].Room != nil {
			desc = circuits[i].Room.Name + ": " + desc
		}
		parts = append(parts, desc)
	}
	return strings.Join(parts, "; ")
}
