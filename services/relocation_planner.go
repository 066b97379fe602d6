package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"backend_shchitok/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RelocationPlannerService строит планы консолидации критических автоматов
// в целевой щит. Сам планировщик чистый: читает снимки щитов один раз,
// не пишет в БД и не имеет побочных эффектов - применение плана выполняет
// MoveExecutor отдельным шагом.
type RelocationPlannerService struct {
	repo *PanelRepository
}

// NewRelocationPlannerService создает новый сервис планирования переноса
func NewRelocationPlannerService(db *gorm.DB) *RelocationPlannerService {
	return &RelocationPlannerService{repo: NewPanelRepository(db)}
}

// BuildPlan читает снимки исходного и целевого щитов и строит план переноса
func (s *RelocationPlannerService) BuildPlan(sourcePanelID, targetPanelID uint) (*RelocationPlan, error) {
	if sourcePanelID == targetPanelID {
		return nil, &ConfigurationError{Reason: "целевой щит совпадает с исходным"}
	}

	source, err := s.repo.GetSnapshot(sourcePanelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("исходный щит %d не найден", sourcePanelID)}
		}
		return nil, fmt.Errorf("не удалось прочитать исходный щит: %w", err)
	}

	target, err := s.repo.GetSnapshot(targetPanelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("целевой щит %d не найден", targetPanelID)}
		}
		return nil, fmt.Errorf("не удалось прочитать целевой щит: %w", err)
	}

	plan, err := BuildRelocationPlan(*source, *target)
	if err != nil {
		return nil, err
	}

	log.Printf("✅ План переноса построен: щит «%s» → «%s», ходов: %d, партий: %d",
		source.Panel.Name, target.Panel.Name, plan.Summary.TotalMoves, plan.Summary.TotalBatches)
	for _, warning := range plan.Warnings {
		log.Printf("⚠️ %s", warning)
	}

	return plan, nil
}

// planAccumulator - явное состояние, передаваемое между шагами построения плана.
// Каждый шаг принимает значение и возвращает следующее: общего изменяемого
// объекта стратегии нет, шаги проверяются независимо.
type planAccumulator struct {
	source PanelSnapshot
	target PanelSnapshot

	// Шаг 1 - классификация
	units        []RelocationUnit  // Единицы, готовые к переносу
	mixedTandems []mixedTandemSlot // Смешанные спаренные слоты: нужна реорганизация
	donorSingles []models.Breaker  // Одиночные критические - кандидаты на своп
	mixedCount   int

	// Шаг 2 - реорганизация
	consolidationSwaps []PlannedMove // Свопы «одиночный в спаренный»
	crossSwaps         []PlannedMove // Перекрестные свопы пар смешанных слотов
	donorsConsumed     int
	swapsPerformed     int
	warnings           []string

	// Шаг 3 - размещение в целевом щите
	placements    []unitPlacement
	criticalMoves []PlannedMove

	// Шаг 4 - партии
	batches []PlanBatch
}

// mixedTandemSlot - спаренный слот с ровно одним критическим занимающим
type mixedTandemSlot struct {
	Key         SlotKey
	Critical    models.Breaker
	NonCritical models.Breaker
}

// unitPlacement - единица вместе с ходами ее переноса в целевой щит
type unitPlacement struct {
	Unit  RelocationUnit
	Moves []PlannedMove
}

// BuildRelocationPlan - чистое ядро планировщика: снимки на входе, план на выходе.
// Последовательность шагов: классификация, реорганизация смешанных спаренных
// слотов, размещение в целевом щите, нарезка на партии.
func BuildRelocationPlan(source, target PanelSnapshot) (*RelocationPlan, error) {
	acc := planAccumulator{source: source, target: target}

	acc, err := classifyBreakers(acc)
	if err != nil {
		return nil, err
	}

	acc = resolveMixedTandems(acc)

	acc, err = allocateTargetPositions(acc)
	if err != nil {
		return nil, err
	}

	acc = buildBatches(acc)

	return assemblePlan(acc), nil
}

// classifyBreakers разбивает автоматы исходного щита на единицы переноса.
// Половины спаренных слотов группируются типизированным ключом (щит, позиция):
//   - оба занимающих критические (или единственный занимающий критический) -
//     чистый спаренный слот, едет как есть;
//   - ровно один критический - смешанный слот, уходит в очередь реорганизации;
//   - оба некритические - слот не трогаем.
//
// Одиночные и двухполюсные критические автоматы становятся единицами напрямую.
func classifyBreakers(acc planAccumulator) (planAccumulator, error) {
	breakers := sortedBreakers(acc.source.Breakers)

	hasCritical := false
	for i := range breakers {
		if breakers[i].Critical {
			hasCritical = true
			break
		}
	}
	if !hasCritical {
		return acc, ErrNoCriticalBreakers
	}

	// Занимающие по физическим слотам
	occupantsByKey := make(map[SlotKey][]models.Breaker)
	for _, b := range breakers {
		key := SlotKey{PanelID: b.PanelID, Position: b.Position}
		occupantsByKey[key] = append(occupantsByKey[key], b)
	}

	// Позиции, где стоит хотя бы один автомат спаренного типа
	tandemKeys := make([]SlotKey, 0)
	seen := make(map[SlotKey]bool)
	for _, b := range breakers {
		key := SlotKey{PanelID: b.PanelID, Position: b.Position}
		if b.IsTandem() && !seen[key] {
			seen[key] = true
			tandemKeys = append(tandemKeys, key)
		}
	}
	sort.Slice(tandemKeys, func(i, j int) bool { return tandemKeys[i].Position < tandemKeys[j].Position })

	inTandemSlot := make(map[uint]bool)

	for _, key := range tandemKeys {
		occupants := occupantsByKey[key]
		if len(occupants) > 2 {
			return acc, &ConfigurationError{
				Reason: fmt.Sprintf("позиция %d занята %d автоматами: дубликаты слота нужно исправить до планирования",
					key.Position, len(occupants)),
			}
		}

		for _, b := range occupants {
			inTandemSlot[b.ID] = true
		}

		var criticals, nonCriticals []models.Breaker
		for _, b := range occupants {
			if b.Critical {
				criticals = append(criticals, b)
			} else {
				nonCriticals = append(nonCriticals, b)
			}
		}

		switch {
		case len(criticals) == 0:
			// Чисто некритический слот: не участвует в переносе

		case len(occupants) == 1:
			// Единственный занимающий спаренного слота анализируется как одиночный,
			// но остается единицей спаренного слота: прибудет как single
			acc.units = append(acc.units, RelocationUnit{
				Kind:           UnitKindTandem,
				Breakers:       criticals,
				SourcePosition: key.Position,
			})

		case len(criticals) == 2:
			acc.units = append(acc.units, RelocationUnit{
				Kind:           UnitKindTandem,
				Breakers:       criticals,
				SourcePosition: key.Position,
			})

		default:
			// Ровно один критический из двух: смешанный слот
			acc.mixedTandems = append(acc.mixedTandems, mixedTandemSlot{
				Key:         key,
				Critical:    criticals[0],
				NonCritical: nonCriticals[0],
			})
		}
	}

	acc.mixedCount = len(acc.mixedTandems)

	// Критические автоматы вне спаренных слотов
	for _, b := range breakers {
		if inTandemSlot[b.ID] || !b.Critical {
			continue
		}
		switch b.BreakerType {
		case models.BreakerTypeDoublePole:
			acc.units = append(acc.units, RelocationUnit{
				Kind:           UnitKindDoublePole,
				Breakers:       []models.Breaker{b},
				SourcePosition: b.Position,
			})
		default:
			// Одиночные попадают в пул доноров: часть из них потребят свопы,
			// остальные поедут собственными единицами
			acc.donorSingles = append(acc.donorSingles, b)
		}
	}

	return acc, nil
}

// resolveMixedTandems устраняет смешанные спаренные слоты в порядке приоритета:
//  1. своп «одиночный в спаренный» - 2 хода, потребляет свободного донора;
//  2. перекрестный своп двух смешанных слотов - 4 хода, пока не решены ≥2;
//  3. остаток - предупреждение, критический занимающий едет отдельно.
//
// Все ходы свопов помечаются temporary_disconnect: оба автомата физически
// снимаются до установки любого из них.
func resolveMixedTandems(acc planAccumulator) planAccumulator {
	unresolved := make([]mixedTandemSlot, 0, len(acc.mixedTandems))

	for _, mixed := range acc.mixedTandems {
		if acc.donorsConsumed >= len(acc.donorSingles) {
			unresolved = append(unresolved, mixed)
			continue
		}

		donor := acc.donorSingles[acc.donorsConsumed]
		acc.donorsConsumed++

		// Некритический уезжает на позицию донора обычным одиночным,
		// донор занимает его половину спаренного слота
		vacatedHalf := SlotRef{PanelID: mixed.Key.PanelID, Position: mixed.Key.Position, SlotPosition: mixed.NonCritical.SlotPosition}
		donorSlot := SlotRef{PanelID: donor.PanelID, Position: donor.Position, SlotPosition: models.SlotPositionSingle}

		acc.consolidationSwaps = append(acc.consolidationSwaps,
			newPlannedMove(mixed.NonCritical, slotRefOf(mixed.NonCritical), donorSlot, MoveKindReorganization, true),
			newPlannedMove(donor, slotRefOf(donor), vacatedHalf, MoveKindReorganization, true),
		)
		acc.swapsPerformed++

		// Слот стал чисто критическим: исходный занимающий плюс донор
		// на освободившейся половине. Тип донора не переписывается -
		// несоответствие типа и слота фиксирует проверка согласованности.
		donorAfter := donor
		donorAfter.Position = mixed.Key.Position
		donorAfter.SlotPosition = mixed.NonCritical.SlotPosition

		acc.units = append(acc.units, RelocationUnit{
			Kind:           UnitKindTandem,
			Breakers:       sortPairBySlot(mixed.Critical, donorAfter),
			SourcePosition: mixed.Key.Position,
			Reorganized:    true,
		})
	}

	// Перекрестные свопы пар: цикл из четырех ходов, в котором каждый из
	// четырех занимающих переезжает ровно один раз; первый слот собирает
	// обоих критических, второй - обоих некритических
	for len(unresolved) >= 2 {
		t1, t2 := unresolved[0], unresolved[1]
		unresolved = unresolved[2:]

		c1, n1 := t1.Critical, t1.NonCritical
		c2, n2 := t2.Critical, t2.NonCritical

		acc.crossSwaps = append(acc.crossSwaps,
			newPlannedMove(c1, slotRefOf(c1), SlotRef{t1.Key.PanelID, t1.Key.Position, n1.SlotPosition}, MoveKindReorganization, true),
			newPlannedMove(n1, slotRefOf(n1), SlotRef{t2.Key.PanelID, t2.Key.Position, n2.SlotPosition}, MoveKindReorganization, true),
			newPlannedMove(c2, slotRefOf(c2), SlotRef{t1.Key.PanelID, t1.Key.Position, c1.SlotPosition}, MoveKindReorganization, true),
			newPlannedMove(n2, slotRefOf(n2), SlotRef{t2.Key.PanelID, t2.Key.Position, c2.SlotPosition}, MoveKindReorganization, true),
		)
		acc.swapsPerformed += 2

		c1After := c1
		c1After.SlotPosition = n1.SlotPosition
		c2After := c2
		c2After.Position = t1.Key.Position
		c2After.SlotPosition = c1.SlotPosition

		acc.units = append(acc.units, RelocationUnit{
			Kind:           UnitKindTandem,
			Breakers:       sortPairBySlot(c1After, c2After),
			SourcePosition: t1.Key.Position,
			Reorganized:    true,
		})
	}

	// Остаток без пары: критический едет отдельно, некритический остается
	// единственным занимающим спаренного слота - задокументированная
	// несогласованность для ручной проверки
	for _, leftover := range unresolved {
		warning := fmt.Sprintf(
			"Смешанный спаренный слот в позиции %d не удалось реорганизовать: критический автомат «%s» будет перенесен отдельно, некритический «%s» останется единственным занимающим - проверьте слот вручную",
			leftover.Key.Position, leftover.Critical.Label, leftover.NonCritical.Label)
		acc.warnings = append(acc.warnings, warning)

		acc.units = append(acc.units, RelocationUnit{
			Kind:           UnitKindMixedTandem,
			Breakers:       []models.Breaker{leftover.Critical},
			SourcePosition: leftover.Key.Position,
			Degraded:       true,
		})
	}

	// Непотребленные доноры едут собственными одиночными единицами
	for _, donor := range acc.donorSingles[acc.donorsConsumed:] {
		acc.units = append(acc.units, RelocationUnit{
			Kind:           UnitKindSingle,
			Breakers:       []models.Breaker{donor},
			SourcePosition: donor.Position,
		})
	}

	return acc
}

// allocateTargetPositions размещает единицы по свободным позициям целевого
// щита по возрастанию, без предпочтения стороны: в выделенном щите критических
// нагрузок четность позиции смысла не несет. Вместимость проверяется до
// формирования ходов - частичные планы не возвращаются.
func allocateTargetPositions(acc planAccumulator) (planAccumulator, error) {
	free := FreePositions(&acc.target.Panel, acc.target.Breakers)

	units := make([]RelocationUnit, len(acc.units))
	copy(units, acc.units)
	sort.SliceStable(units, func(i, j int) bool { return units[i].SourcePosition < units[j].SourcePosition })
	acc.units = units

	required := 0
	for i := range units {
		required += units[i].CapacityCost()
	}
	if required > len(free) {
		return acc, &CapacityError{RequiredSlots: required, AvailablePositions: len(free)}
	}

	freeSet := make(map[int]bool, len(free))
	freeOrder := make([]int, 0, len(free))
	for _, slot := range free {
		freeSet[slot.Position] = true
		freeOrder = append(freeOrder, slot.Position)
	}
	taken := make(map[int]bool)

	targetID := acc.target.Panel.ID

	for _, unit := range units {
		var moves []PlannedMove

		switch unit.Kind {
		case UnitKindDoublePole:
			// Двухполюсному нужны свободные p и p+2 на одной стороне
			position, ok := lowestDoublePolePosition(freeOrder, freeSet, taken, acc.target.Panel.Size)
			if !ok {
				return acc, &CapacityError{
					RequiredSlots:      required,
					AvailablePositions: len(free),
					Reason:             "для двухполюсного автомата нужны свободные позиции p и p+2 на одной стороне",
				}
			}
			taken[position] = true
			taken[position+2] = true

			b := unit.Breakers[0]
			moves = append(moves, newPlannedMove(b, slotRefOf(b),
				SlotRef{PanelID: targetID, Position: position, SlotPosition: models.SlotPositionSingle},
				MoveKindCritical, false))

		default:
			position, ok := lowestFreePosition(freeOrder, taken)
			if !ok {
				return acc, &CapacityError{RequiredSlots: required, AvailablePositions: len(free)}
			}
			taken[position] = true

			if len(unit.Breakers) == 1 {
				// Единица из одного автомата прибывает единственным занимающим
				b := unit.Breakers[0]
				moves = append(moves, newPlannedMove(b, slotRefOf(b),
					SlotRef{PanelID: targetID, Position: position, SlotPosition: models.SlotPositionSingle},
					MoveKindCritical, false))
			} else {
				// Спаренная пара прибывает в одну позицию половинами A и B
				halves := []models.SlotPosition{models.SlotPositionA, models.SlotPositionB}
				for i, b := range unit.Breakers {
					moves = append(moves, newPlannedMove(b, slotRefOf(b),
						SlotRef{PanelID: targetID, Position: position, SlotPosition: halves[i]},
						MoveKindCritical, false))
				}
			}
		}

		acc.placements = append(acc.placements, unitPlacement{Unit: unit, Moves: moves})
		acc.criticalMoves = append(acc.criticalMoves, moves...)
	}

	return acc, nil
}

// buildBatches нарезает ходы на партии прогрессивной доставки: сначала партии
// реорганизации (они не касаются целевого щита), затем по одной партии на
// каждую перенесенную единицу - спаренная пара обязана прибыть одной партией.
// На границе каждой партии установка находится в согласованном состоянии.
func buildBatches(acc planAccumulator) planAccumulator {
	number := 1

	if len(acc.consolidationSwaps) > 0 {
		acc.batches = append(acc.batches, PlanBatch{
			Number:      number,
			Description: "Одиночные критические автоматы переставлены в смешанные спаренные слоты: слоты стали чисто критическими",
			Moves:       acc.consolidationSwaps,
		})
		number++
	}

	if len(acc.crossSwaps) > 0 {
		acc.batches = append(acc.batches, PlanBatch{
			Number:      number,
			Description: "Смешанные спаренные слоты обменялись занимающими: критические собраны вместе, некритические вместе",
			Moves:       acc.crossSwaps,
		})
		number++
	}

	for _, placement := range acc.placements {
		acc.batches = append(acc.batches, PlanBatch{
			Number:      number,
			Description: describeUnitBatch(placement),
			Moves:       placement.Moves,
		})
		number++
	}

	return acc
}

// describeUnitBatch описывает итог партии одним предложением
func describeUnitBatch(placement unitPlacement) string {
	unit := placement.Unit
	to := placement.Moves[0].To

	switch unit.Kind {
	case UnitKindDoublePole:
		return fmt.Sprintf("Двухполюсный автомат «%s» перенесен из позиции %d в позиции %d и %d целевого щита",
			unit.Breakers[0].Label, unit.SourcePosition, to.Position, to.Position+2)
	case UnitKindTandem:
		if len(unit.Breakers) == 2 {
			return fmt.Sprintf("Спаренная пара из позиции %d перенесена в позицию %d целевого щита (половины A и B)",
				unit.SourcePosition, to.Position)
		}
		return fmt.Sprintf("Единственный занимающий спаренного слота «%s» перенесен из позиции %d в позицию %d целевого щита",
			unit.Breakers[0].Label, unit.SourcePosition, to.Position)
	case UnitKindMixedTandem:
		return fmt.Sprintf("Критический автомат «%s» из нерешенного смешанного слота %d перенесен в позицию %d целевого щита: исходный слот требует ручной проверки",
			unit.Breakers[0].Label, unit.SourcePosition, to.Position)
	default:
		return fmt.Sprintf("Автомат «%s» перенесен из позиции %d в позицию %d целевого щита",
			unit.Breakers[0].Label, unit.SourcePosition, to.Position)
	}
}

// assemblePlan собирает итоговый план: фазы, партии, сводка, оценка работ
func assemblePlan(acc planAccumulator) *RelocationPlan {
	phase1 := make([]PlannedMove, 0, len(acc.consolidationSwaps)+len(acc.crossSwaps))
	phase1 = append(phase1, acc.consolidationSwaps...)
	phase1 = append(phase1, acc.crossSwaps...)

	phase2 := acc.criticalMoves

	allMoves := make([]PlannedMove, 0, len(phase1)+len(phase2))
	allMoves = append(allMoves, phase1...)
	allMoves = append(allMoves, phase2...)

	pureUnits := 0
	for i := range acc.units {
		if !acc.units[i].Reorganized && !acc.units[i].Degraded {
			pureUnits++
		}
	}

	return &RelocationPlan{
		ID:            uuid.New(),
		GeneratedAt:   time.Now(),
		SourcePanelID: acc.source.Panel.ID,
		TargetPanelID: acc.target.Panel.ID,
		Summary: PlanSummary{
			TotalMoves:          len(allMoves),
			ReorganizationMoves: len(phase1),
			CriticalMoves:       len(phase2),
			MixedTandems:        acc.mixedCount,
			PureUnits:           pureUnits,
			SwapsPerformed:      acc.swapsPerformed,
			TotalBatches:        len(acc.batches),
			EstimatedCost:       EstimateLaborCost(allMoves),
		},
		Phases: PlanPhases{
			Phase1Swaps:         phase1,
			Phase2CriticalMoves: phase2,
		},
		ProgressiveBatches: acc.batches,
		Warnings:           acc.warnings,
	}
}

// Вспомогательные функции

func sortedBreakers(breakers []models.Breaker) []models.Breaker {
	sorted := make([]models.Breaker, len(breakers))
	copy(sorted, breakers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].SlotPosition < sorted[j].SlotPosition
	})
	return sorted
}

func slotRefOf(b models.Breaker) SlotRef {
	return SlotRef{PanelID: b.PanelID, Position: b.Position, SlotPosition: b.SlotPosition}
}

func newPlannedMove(b models.Breaker, from, to SlotRef, kind MoveKind, temporaryDisconnect bool) PlannedMove {
	return PlannedMove{
		BreakerID:           b.ID,
		BreakerLabel:        b.Label,
		From:                from,
		To:                  to,
		Kind:                kind,
		TemporaryDisconnect: temporaryDisconnect,
		SideChange:          IsSideChange(from.Position, to.Position),
	}
}

func sortPairBySlot(a, b models.Breaker) []models.Breaker {
	if a.SlotPosition <= b.SlotPosition {
		return []models.Breaker{a, b}
	}
	return []models.Breaker{b, a}
}

func lowestFreePosition(freeOrder []int, taken map[int]bool) (int, bool) {
	for _, position := range freeOrder {
		if !taken[position] {
			return position, true
		}
	}
	return 0, false
}

func lowestDoublePolePosition(freeOrder []int, freeSet map[int]bool, taken map[int]bool, size int) (int, bool) {
	for _, position := range freeOrder {
		if taken[position] {
			continue
		}
		second := position + 2
		if second > size {
			continue
		}
		if freeSet[second] && !taken[second] {
			return position, true
		}
	}
	return 0, false
}
