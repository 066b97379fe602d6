package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"backend_shchitok/models"

	"gorm.io/gorm"
)

// ConsistencyAuditService проверяет данные щитов на несоответствия:
// переполнение позиций, дубликаты слотов, рассинхронизацию типа и слота,
// одинокие половины спаренных слотов, смешанные спаренные слоты и
// висячие ссылки подщитов. Проверка только фиксирует находки -
// данные она не исправляет никогда.
type ConsistencyAuditService struct {
	db            *gorm.DB
	logger        *log.Logger
	notifications *NotificationService
}

// NewConsistencyAuditService создает новый сервис проверки согласованности
func NewConsistencyAuditService(db *gorm.DB, logger *log.Logger, notifications *NotificationService) *ConsistencyAuditService {
	return &ConsistencyAuditService{
		db:            db,
		logger:        logger,
		notifications: notifications,
	}
}

// AuditRunSummary - итог одного прогона проверки
type AuditRunSummary struct {
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	PanelsScanned    int           `json:"panels_scanned"`
	NewFindings      int           `json:"new_findings"`
	ResolvedFindings int           `json:"resolved_findings"`
	OpenFindings     int           `json:"open_findings"`
	CriticalFindings int           `json:"critical_findings"`
}

// AuditFindingFilters - фильтры для выборки находок
type AuditFindingFilters struct {
	PanelID  *uint
	Kind     models.AuditFindingKind
	Severity models.AuditSeverity
	Status   models.AuditFindingStatus
	Limit    int
	Offset   int
}

// RunFullAudit проверяет все щиты и возвращает сводку прогона
func (s *ConsistencyAuditService) RunFullAudit() (*AuditRunSummary, error) {
	startedAt := time.Now()

	var panels []models.Panel
	if err := s.db.Order("id ASC").Find(&panels).Error; err != nil {
		return nil, fmt.Errorf("не удалось загрузить щиты для проверки: %w", err)
	}

	summary := &AuditRunSummary{StartedAt: startedAt}

	for i := range panels {
		created, resolved, err := s.auditPanel(&panels[i])
		if err != nil {
			return nil, err
		}
		summary.PanelsScanned++
		summary.NewFindings += len(created)
		summary.ResolvedFindings += resolved

		critical := filterCritical(created)
		if len(critical) > 0 && s.notifications != nil {
			s.notifications.NotifyAuditFindings(panels[i].Name, critical)
		}
	}

	var open, critical int64
	if err := s.db.Model(&models.AuditFinding{}).
		Where("status = ?", models.AuditFindingStatusOpen).
		Count(&open).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.AuditFinding{}).
		Where("status = ? AND severity = ?", models.AuditFindingStatusOpen, models.AuditSeverityCritical).
		Count(&critical).Error; err != nil {
		return nil, err
	}
	summary.OpenFindings = int(open)
	summary.CriticalFindings = int(critical)

	summary.Duration = time.Since(startedAt)

	if s.logger != nil {
		s.logger.Printf("✅ Проверка согласованности завершена: щитов %d, новых находок %d, закрыто %d, открыто %d",
			summary.PanelsScanned, summary.NewFindings, summary.ResolvedFindings, summary.OpenFindings)
	}

	return summary, nil
}

// RunPanelAudit проверяет один щит и возвращает его открытые находки
func (s *ConsistencyAuditService) RunPanelAudit(panelID uint) ([]models.AuditFinding, error) {
	var panel models.Panel
	if err := s.db.First(&panel, panelID).Error; err != nil {
		return nil, err
	}

	if _, _, err := s.auditPanel(&panel); err != nil {
		return nil, err
	}

	var findings []models.AuditFinding
	err := s.db.Where("panel_id = ? AND status <> ?", panelID, models.AuditFindingStatusResolved).
		Order("position ASC, id ASC").
		Find(&findings).Error
	if err != nil {
		return nil, err
	}
	return findings, nil
}

// auditPanel сканирует щит и сверяет находки с уже существующими:
// повторённые обновляются, новые создаются открытыми, исчезнувшие закрываются
func (s *ConsistencyAuditService) auditPanel(panel *models.Panel) (created []models.AuditFinding, resolved int, err error) {
	var breakers []models.Breaker
	if err := s.db.Where("panel_id = ?", panel.ID).
		Order("position ASC, slot_position ASC").
		Find(&breakers).Error; err != nil {
		return nil, 0, fmt.Errorf("не удалось загрузить автоматы щита %d: %w", panel.ID, err)
	}

	breakerIDs := make([]uint, 0, len(breakers))
	for i := range breakers {
		breakerIDs = append(breakerIDs, breakers[i].ID)
	}

	var circuits []models.Circuit
	if len(breakerIDs) > 0 {
		if err := s.db.Where("breaker_id IN ?", breakerIDs).Find(&circuits).Error; err != nil {
			return nil, 0, fmt.Errorf("не удалось загрузить цепи щита %d: %w", panel.ID, err)
		}
	}

	detected := ScanPanel(panel, breakers, circuits, s.subpanelExists)

	var existing []models.AuditFinding
	if err := s.db.Where("panel_id = ? AND status <> ?", panel.ID, models.AuditFindingStatusResolved).
		Find(&existing).Error; err != nil {
		return nil, 0, err
	}

	existingByKey := make(map[string]*models.AuditFinding, len(existing))
	for i := range existing {
		existingByKey[findingKey(&existing[i])] = &existing[i]
	}

	seen := make(map[string]bool, len(detected))
	for i := range detected {
		key := findingKey(&detected[i])
		seen[key] = true

		if current, ok := existingByKey[key]; ok {
			// Находка повторилась: обновляем описание, статус не трогаем
			updates := map[string]interface{}{
				"message":  detected[i].Message,
				"severity": detected[i].Severity,
			}
			if err := s.db.Model(current).Updates(updates).Error; err != nil {
				return nil, 0, err
			}
			continue
		}

		detected[i].Status = models.AuditFindingStatusOpen
		if err := s.db.Create(&detected[i]).Error; err != nil {
			return nil, 0, err
		}
		created = append(created, detected[i])
	}

	// Находки, не подтвержденные текущим сканом, закрываются
	now := time.Now()
	for i := range existing {
		if seen[findingKey(&existing[i])] {
			continue
		}
		updates := map[string]interface{}{
			"status":      models.AuditFindingStatusResolved,
			"resolved_at": &now,
		}
		if err := s.db.Model(&existing[i]).Updates(updates).Error; err != nil {
			return nil, 0, err
		}
		resolved++
	}

	return created, resolved, nil
}

// subpanelExists проверяет, что щит с данным идентификатором существует
func (s *ConsistencyAuditService) subpanelExists(panelID uint) bool {
	var count int64
	s.db.Model(&models.Panel{}).Where("id = ?", panelID).Count(&count)
	return count > 0
}

// ScanPanel - чистая проверка одного щита: возвращает найденные
// несоответствия без обращения к БД (существование подщитов
// проверяется через переданную функцию)
func ScanPanel(panel *models.Panel, breakers []models.Breaker, circuits []models.Circuit, subpanelExists func(uint) bool) []models.AuditFinding {
	findings := make([]models.AuditFinding, 0)

	add := func(kind models.AuditFindingKind, severity models.AuditSeverity, position int, breakerID *uint, message string) {
		findings = append(findings, models.AuditFinding{
			PanelID:   panel.ID,
			BreakerID: breakerID,
			Position:  position,
			Kind:      kind,
			Severity:  severity,
			Message:   message,
		})
	}

	occupantsByKey := make(map[SlotKey][]models.Breaker)
	for _, b := range breakers {
		key := SlotKey{PanelID: b.PanelID, Position: b.Position}
		occupantsByKey[key] = append(occupantsByKey[key], b)
	}

	for _, b := range breakers {
		breakerID := b.ID

		// Позиция за пределами щита
		if b.Position < 1 || b.Position > panel.Size {
			add(models.AuditFindingPositionOverflow, models.AuditSeverityCritical, b.Position, &breakerID,
				fmt.Sprintf("Автомат «%s» стоит в позиции %d, а в щите всего %d позиций", b.Label, b.Position, panel.Size))
			continue
		}

		// Вторая строка двухполюсного выходит за размер щита
		if b.IsDoublePole() && b.Position+2 > panel.Size {
			add(models.AuditFindingDoublePoleOverhang, models.AuditSeverityCritical, b.Position, &breakerID,
				fmt.Sprintf("Двухполюсный автомат «%s» в позиции %d требует позицию %d, которой в щите нет",
					b.Label, b.Position, b.Position+2))
		}

		// Тип не согласован с положением в слоте: так выглядит, например,
		// одиночный донор, переставленный в половину спаренного слота
		switch {
		case b.IsTandem() && b.SlotPosition == models.SlotPositionSingle:
			add(models.AuditFindingTypeSlotMismatch, models.AuditSeverityWarning, b.Position, &breakerID,
				fmt.Sprintf("Автомат «%s» спаренного типа занимает позицию %d целиком", b.Label, b.Position))
		case !b.IsTandem() && b.SlotPosition != models.SlotPositionSingle:
			add(models.AuditFindingTypeSlotMismatch, models.AuditSeverityWarning, b.Position, &breakerID,
				fmt.Sprintf("Автомат «%s» типа «%s» стоит в половине %s спаренного слота %d",
					b.Label, b.GetTypeDisplayName(), b.SlotPosition, b.Position))
		}
	}

	// Дубликаты слотов и смешанные спаренные слоты - по позициям
	for key, occupants := range occupantsByKey {
		position := key.Position

		// Два автомата в одном и том же слоте
		countBySlot := make(map[models.SlotPosition]int, len(occupants))
		for _, b := range occupants {
			countBySlot[b.SlotPosition]++
		}
		duplicated := make([]string, 0, 3)
		for _, slot := range []models.SlotPosition{models.SlotPositionSingle, models.SlotPositionA, models.SlotPositionB} {
			if countBySlot[slot] > 1 {
				duplicated = append(duplicated, fmt.Sprintf("%d%s (%d шт.)", position, slotSuffix(slot), countBySlot[slot]))
			}
		}
		if len(duplicated) > 0 {
			add(models.AuditFindingDuplicateSlot, models.AuditSeverityCritical, position, nil,
				"Слот занят несколькими автоматами одновременно: "+strings.Join(duplicated, ", "))
		}

		if len(occupants) > 1 {
			// Единственный занимающий по определению занимает позицию целиком
			for _, b := range occupants {
				if b.SlotPosition == models.SlotPositionSingle {
					id := b.ID
					add(models.AuditFindingDuplicateSlot, models.AuditSeverityCritical, position, &id,
						fmt.Sprintf("Автомат «%s» занимает позицию %d целиком, но в ней есть и другие автоматы", b.Label, position))
				}
			}
		}

		// Одинокая половина спаренного слота
		if len(occupants) == 1 && occupants[0].SlotPosition != models.SlotPositionSingle {
			id := occupants[0].ID
			add(models.AuditFindingLonelyTandem, models.AuditSeverityWarning, position, &id,
				fmt.Sprintf("Автомат «%s» стоит в половине %s позиции %d, вторая половина пуста",
					occupants[0].Label, occupants[0].SlotPosition, position))
		}

		// Смешанный спаренный слот: ровно один критический из двух
		if len(occupants) == 2 {
			criticals := 0
			for _, b := range occupants {
				if b.Critical {
					criticals++
				}
			}
			if criticals == 1 {
				add(models.AuditFindingMixedTandem, models.AuditSeverityInfo, position, nil,
					fmt.Sprintf("Спаренный слот %d смешанный: критический и некритический вместе, кандидат на реорганизацию", position))
			}
		}
	}

	// Перекрытия вторыми строками двухполюсных автоматов
	for _, b := range breakers {
		if !b.IsDoublePole() || b.Position+2 > panel.Size {
			continue
		}
		covered := b.Position + 2
		for _, other := range occupantsByKey[SlotKey{PanelID: b.PanelID, Position: covered}] {
			id := other.ID
			add(models.AuditFindingDuplicateSlot, models.AuditSeverityCritical, covered, &id,
				fmt.Sprintf("Позиция %d занята автоматом «%s», но перекрыта двухполюсным «%s» из позиции %d",
					covered, other.Label, b.Label, b.Position))
		}
	}

	// Висячие ссылки подщитов
	for _, c := range circuits {
		if c.Type != models.CircuitTypeSubpanel {
			continue
		}
		breakerID := c.BreakerID
		position := positionOfBreaker(breakers, c.BreakerID)

		if c.SubpanelID == nil {
			add(models.AuditFindingDanglingSubpanel, models.AuditSeverityWarning, position, &breakerID,
				fmt.Sprintf("Цепь %d помечена как питание подщита, но сам подщит не указан", c.ID))
			continue
		}
		if subpanelExists != nil && !subpanelExists(*c.SubpanelID) {
			add(models.AuditFindingDanglingSubpanel, models.AuditSeverityCritical, position, &breakerID,
				fmt.Sprintf("Цепь %d ссылается на несуществующий щит %d", c.ID, *c.SubpanelID))
		}
	}

	return findings
}

// GetFindings возвращает находки проверки с фильтрацией и пагинацией
func (s *ConsistencyAuditService) GetFindings(filters AuditFindingFilters) ([]models.AuditFinding, int64, error) {
	query := s.db.Model(&models.AuditFinding{})

	if filters.PanelID != nil {
		query = query.Where("panel_id = ?", *filters.PanelID)
	}
	if filters.Kind != "" {
		query = query.Where("kind = ?", filters.Kind)
	}
	if filters.Severity != "" {
		query = query.Where("severity = ?", filters.Severity)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Preload("Panel").Preload("Breaker").Order("created_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var findings []models.AuditFinding
	if err := query.Find(&findings).Error; err != nil {
		return nil, 0, err
	}

	return findings, total, nil
}

// AcknowledgeFinding помечает открытую находку как принятую к сведению
func (s *ConsistencyAuditService) AcknowledgeFinding(findingID uint) (*models.AuditFinding, error) {
	var finding models.AuditFinding
	if err := s.db.First(&finding, findingID).Error; err != nil {
		return nil, err
	}

	if finding.Status == models.AuditFindingStatusResolved {
		return nil, fmt.Errorf("находка %d уже закрыта", findingID)
	}

	finding.Status = models.AuditFindingStatusAcknowledged
	if err := s.db.Save(&finding).Error; err != nil {
		return nil, err
	}
	return &finding, nil
}

// GetAuditStats возвращает количество открытых находок по серьезности и видам
func (s *ConsistencyAuditService) GetAuditStats() (map[string]interface{}, error) {
	type countRow struct {
		Key   string
		Count int64
	}

	var bySeverity []countRow
	err := s.db.Model(&models.AuditFinding{}).
		Select("severity as key, COUNT(*) as count").
		Where("status = ?", models.AuditFindingStatusOpen).
		Group("severity").
		Scan(&bySeverity).Error
	if err != nil {
		return nil, err
	}

	var byKind []countRow
	err = s.db.Model(&models.AuditFinding{}).
		Select("kind as key, COUNT(*) as count").
		Where("status = ?", models.AuditFindingStatusOpen).
		Group("kind").
		Scan(&byKind).Error
	if err != nil {
		return nil, err
	}

	severities := make(map[string]int64, len(bySeverity))
	for _, row := range bySeverity {
		severities[row.Key] = row.Count
	}
	kinds := make(map[string]int64, len(byKind))
	for _, row := range byKind {
		kinds[row.Key] = row.Count
	}

	return map[string]interface{}{
		"by_severity": severities,
		"by_kind":     kinds,
	}, nil
}

// findingKey - стабильный ключ находки для сверки между прогонами
func findingKey(f *models.AuditFinding) string {
	breakerID := uint(0)
	if f.BreakerID != nil {
		breakerID = *f.BreakerID
	}
	return fmt.Sprintf("%s|%d|%d", f.Kind, f.Position, breakerID)
}

// filterCritical отбирает критические находки
func filterCritical(findings []models.AuditFinding) []models.AuditFinding {
	critical := make([]models.AuditFinding, 0)
	for i := range findings {
		if findings[i].Severity == models.AuditSeverityCritical {
			critical = append(critical, findings[i])
		}
	}
	return critical
}

// positionOfBreaker находит позицию автомата в загруженном списке
func positionOfBreaker(breakers []models.Breaker, breakerID uint) int {
	for i := range breakers {
		if breakers[i].ID == breakerID {
			return breakers[i].Position
		}
	}
	return 0
}

// slotSuffix возвращает обозначение половины слота для сообщений ("A", "B" или пусто)
func slotSuffix(slot models.SlotPosition) string {
	if slot == models.SlotPositionSingle || slot == "" {
		return ""
	}
	return string(slot)
}
