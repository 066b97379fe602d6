package services

import (
	"fmt"
	"log"
	"strings"

	"backend_shchitok/models"
)

// NotificationService отправляет оповещения о событиях, требующих внимания:
// критические находки проверки согласованности, предупреждения планов
// переноса, итоги применения планов. Отправка всегда best-effort -
// недоступный Telegram не должен ломать основную операцию.
type NotificationService struct {
	telegram *TelegramClient
	logger   *log.Logger
}

// NewNotificationService создает новый экземпляр NotificationService
func NewNotificationService(telegram *TelegramClient, logger *log.Logger) *NotificationService {
	return &NotificationService{
		telegram: telegram,
		logger:   logger,
	}
}

// NotifyAuditFindings оповещает о критических находках проверки щита
func (s *NotificationService) NotifyAuditFindings(panelName string, findings []models.AuditFinding) {
	if len(findings) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🚨 <b>Проверка щита «%s»</b>\n", panelName))
	sb.WriteString(fmt.Sprintf("Найдено критических несоответствий: %d\n\n", len(findings)))
	for i := range findings {
		sb.WriteString(fmt.Sprintf("• поз. %d: %s\n", findings[i].Position, findings[i].Message))
	}

	s.send(sb.String())
}

// NotifyPlanWarnings оповещает о предупреждениях построенного плана
// (нерешенные смешанные спаренные слоты)
func (s *NotificationService) NotifyPlanWarnings(plan *RelocationPlan, sourceName, targetName string) {
	if plan == nil || len(plan.Warnings) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⚠️ <b>План переноса «%s» → «%s»</b>\n", sourceName, targetName))
	sb.WriteString(fmt.Sprintf("Ходов: %d, партий: %d\n\n", plan.Summary.TotalMoves, plan.Summary.TotalBatches))
	for _, warning := range plan.Warnings {
		sb.WriteString("• " + warning + "\n")
	}

	s.send(sb.String())
}

// NotifyPlanApplied оповещает об успешном применении плана переноса
func (s *NotificationService) NotifyPlanApplied(plan *RelocationPlan, sourceName, targetName string) {
	if plan == nil {
		return
	}

	message := fmt.Sprintf(
		"✅ <b>План переноса применен</b>\n«%s» → «%s»\nХодов выполнено: %d (реорганизация: %d, перенос: %d)\nОценка работ: %s ₽",
		sourceName, targetName,
		plan.Summary.TotalMoves, plan.Summary.ReorganizationMoves, plan.Summary.CriticalMoves,
		plan.Summary.EstimatedCost.StringFixed(0))

	s.send(message)
}

// send отправляет сообщение best-effort: ошибки только логируются
func (s *NotificationService) send(message string) {
	if s.telegram == nil {
		if s.logger != nil {
			s.logger.Printf("Telegram не настроен, оповещение пропущено")
		}
		return
	}

	if err := s.telegram.SendMessage(message); err != nil && s.logger != nil {
		s.logger.Printf("⚠️ Не удалось отправить оповещение в Telegram: %v", err)
	}
}
