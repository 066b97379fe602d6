package services

import (
	"errors"
	"fmt"
	"time"

	"backend_shchitok/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ставки для оценки трудозатрат электромонтажника
var (
	LaborRatePerMove    = decimal.NewFromInt(900) // Рублей за перенос одного автомата
	SideChangeSurcharge = decimal.NewFromInt(350) // Доплата за переход между шинами (удлинение трассы)
)

// ErrNoCriticalBreakers возвращается, когда в исходном щите нечего переносить
var ErrNoCriticalBreakers = errors.New("в исходном щите нет критических автоматов")

// ConfigurationError означает, что план невозможно построить из-за
// некорректных входных данных (щит не найден, целевой щит совпадает с исходным)
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "план переноса невозможен: " + e.Reason
}

// CapacityError означает нехватку свободных позиций в целевом щите.
// Проверяется до формирования ходов: частичные планы не возвращаются.
type CapacityError struct {
	RequiredSlots      int    // Сколько физических позиций требуется
	AvailablePositions int    // Сколько свободно в целевом щите
	Reason             string // Уточнение для геометрических отказов (двухполюсные)
}

func (e *CapacityError) Error() string {
	msg := fmt.Sprintf("недостаточно места в целевом щите: требуется %d позиций, свободно %d",
		e.RequiredSlots, e.AvailablePositions)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ConflictError возвращается исполнителем, когда фактическое состояние слота
// не совпадает с тем, из которого строился план. План устарел: выполнение
// партии останавливается, требуется повторное планирование.
type ConflictError struct {
	Slot    SlotRef
	Details string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("конфликт при выполнении плана (%s): %s", e.Slot, e.Details)
}

// SlotKey - типизированный составной ключ физического слота щита.
// Используется как ключ карты при группировке половин спаренных слотов.
type SlotKey struct {
	PanelID  uint
	Position int
}

// SlotRef - полный адрес места автомата в щите
type SlotRef struct {
	PanelID      uint                `json:"panel_id"`
	Position     int                 `json:"position"`
	SlotPosition models.SlotPosition `json:"slot_position"`
}

// Key возвращает ключ физического слота (без половины A/B)
func (s SlotRef) Key() SlotKey {
	return SlotKey{PanelID: s.PanelID, Position: s.Position}
}

// String возвращает человекочитаемый адрес слота, например "щит 2, поз. 7A"
func (s SlotRef) String() string {
	if s.SlotPosition == models.SlotPositionSingle || s.SlotPosition == "" {
		return fmt.Sprintf("щит %d, поз. %d", s.PanelID, s.Position)
	}
	return fmt.Sprintf("щит %d, поз. %d%s", s.PanelID, s.Position, s.SlotPosition)
}

// UnitKind представляет вид переносимой единицы
type UnitKind string

const (
	UnitKindSingle      UnitKind = "single_unit"       // Одиночный автомат
	UnitKindTandem      UnitKind = "tandem_unit"       // Спаренный слот (1-2 критических автомата)
	UnitKindDoublePole  UnitKind = "double_pole_unit"  // Двухполюсный автомат (занимает p и p+2)
	UnitKindMixedTandem UnitKind = "mixed_tandem_unit" // Нерешенный смешанный слот: едет только критический
)

// RelocationUnit - минимальная группа автоматов, переезжающая вместе.
// Спаренная пара должна прибыть в целевой щит одной партией, иначе
// она перестанет быть парой.
type RelocationUnit struct {
	Kind     UnitKind
	Breakers []models.Breaker // 1 или 2 автомата, для пар отсортированы A, B

	// Позиция исходного слота: определяет порядок размещения и партий
	SourcePosition int

	// Признаки происхождения единицы
	Reorganized bool // Собрана свопами фазы реорганизации
	Degraded    bool // Остаток смешанного слота, требует ручной проверки
}

// CapacityCost возвращает число физических позиций, которые единица займет
// в целевом щите: спаренный слот вмещает оба автомата в одну позицию,
// двухполюсный резервирует вторую строку на той же стороне.
func (u *RelocationUnit) CapacityCost() int {
	if u.Kind == UnitKindDoublePole {
		return 2
	}
	return 1
}

// MoveKind представляет назначение хода
type MoveKind string

const (
	MoveKindReorganization MoveKind = "reorganization" // Своп внутри исходного щита (фаза 1)
	MoveKindCritical       MoveKind = "critical_move"  // Перенос в целевой щит (фаза 2)
	MoveKindMerge          MoveKind = "merge"          // Слияние двух записей автомата (только исполнитель)
)

// PlannedMove - один физический перенос автомата
type PlannedMove struct {
	BreakerID    uint   `json:"breaker_id"`
	BreakerLabel string `json:"breaker_label"`

	From SlotRef `json:"from"`
	To   SlotRef `json:"to"`

	Kind MoveKind `json:"kind"`

	// При свопе оба автомата физически отключаются до установки любого из них:
	// промежуточное состояние кратковременно обесточивает цепи
	TemporaryDisconnect bool `json:"temporary_disconnect"`

	// Перенос меняет сторону щита (четность позиции); информационный признак
	SideChange bool `json:"side_change"`
}

// PlanBatch - упорядоченная партия ходов, применяемая как один осмысленный шаг
type PlanBatch struct {
	Number      int           `json:"number"`
	Description string        `json:"description"` // Итог партии одним предложением
	Moves       []PlannedMove `json:"moves"`
}

// PlanSummary - сводка плана переноса
type PlanSummary struct {
	TotalMoves          int             `json:"total_moves"`
	ReorganizationMoves int             `json:"reorganization_moves"`
	CriticalMoves       int             `json:"critical_moves"`
	MixedTandems        int             `json:"mixed_tandems"`
	PureUnits           int             `json:"pure_units"`
	SwapsPerformed      int             `json:"swaps_performed"`
	TotalBatches        int             `json:"total_batches"`
	EstimatedCost       decimal.Decimal `json:"estimated_cost"` // Оценка работ в рублях
}

// PlanPhases - ходы плана по фазам
type PlanPhases struct {
	Phase1Swaps         []PlannedMove `json:"phase1_swaps"`
	Phase2CriticalMoves []PlannedMove `json:"phase2_critical_moves"`
}

// RelocationPlan - результат планировщика: сериализуемая структура,
// которую слой отчетов отображает, а исполнитель применяет партиями по порядку
type RelocationPlan struct {
	ID          uuid.UUID `json:"id"`
	GeneratedAt time.Time `json:"generated_at"`

	SourcePanelID uint `json:"source_panel_id"`
	TargetPanelID uint `json:"target_panel_id"`

	Summary            PlanSummary `json:"summary"`
	Phases             PlanPhases  `json:"phases"`
	ProgressiveBatches []PlanBatch `json:"progressive_batches"`

	// Нефатальные предупреждения (нерешенные смешанные слоты)
	Warnings []string `json:"warnings"`
}

// AllMoves возвращает все ходы плана в порядке выполнения:
// сначала свопы реорганизации, затем переносы в целевой щит
func (p *RelocationPlan) AllMoves() []PlannedMove {
	moves := make([]PlannedMove, 0, len(p.Phases.Phase1Swaps)+len(p.Phases.Phase2CriticalMoves))
	moves = append(moves, p.Phases.Phase1Swaps...)
	moves = append(moves, p.Phases.Phase2CriticalMoves...)
	return moves
}

// EstimateLaborCost считает оценку трудозатрат по ставкам за ход
// с доплатой за каждый переход между шинами
func EstimateLaborCost(moves []PlannedMove) decimal.Decimal {
	cost := decimal.Zero
	for _, move := range moves {
		cost = cost.Add(LaborRatePerMove)
		if move.SideChange {
			cost = cost.Add(SideChangeSurcharge)
		}
	}
	return cost
}
