package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// AuditScheduler запускает полную проверку согласованности щитов по расписанию
type AuditScheduler struct {
	audit    *ConsistencyAuditService
	cron     *cron.Cron
	cronSpec string

	mu          sync.Mutex
	entryID     cron.EntryID
	running     bool
	lastRunAt   *time.Time
	lastSummary *AuditRunSummary
	lastError   string
}

// NewAuditScheduler создает планировщик проверок. Выражение cron с секундами,
// например "0 0 3 * * *" - каждую ночь в 03:00
func NewAuditScheduler(audit *ConsistencyAuditService, cronSpec string) *AuditScheduler {
	return &AuditScheduler{
		audit:    audit,
		cron:     cron.New(cron.WithSeconds()),
		cronSpec: cronSpec,
	}
}

// Start запускает планировщик проверок
func (as *AuditScheduler) Start() error {
	entryID, err := as.cron.AddFunc(as.cronSpec, as.runAudit)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	as.mu.Lock()
	as.entryID = entryID
	as.running = true
	as.mu.Unlock()

	as.cron.Start()
	log.Printf("🕒 Планировщик проверок запущен (cron: %s)", as.cronSpec)
	return nil
}

// Stop останавливает планировщик проверок
func (as *AuditScheduler) Stop() {
	as.cron.Stop()

	as.mu.Lock()
	as.running = false
	as.mu.Unlock()

	log.Println("Планировщик проверок остановлен")
}

// Status возвращает состояние планировщика: расписание, время следующего
// запуска и итоги последней выполненной проверки
func (as *AuditScheduler) Status() map[string]interface{} {
	as.mu.Lock()
	defer as.mu.Unlock()

	status := map[string]interface{}{
		"cron_spec": as.cronSpec,
		"running":   as.running,
	}

	if as.running {
		entry := as.cron.Entry(as.entryID)
		if entry.Valid() {
			status["next_run_at"] = entry.Next
		}
	}
	if as.lastRunAt != nil {
		status["last_run_at"] = *as.lastRunAt
	}
	if as.lastSummary != nil {
		status["last_summary"] = *as.lastSummary
	}
	if as.lastError != "" {
		status["last_error"] = as.lastError
	}

	return status
}

// runAudit выполняет полную проверку и запоминает итоги для статуса
func (as *AuditScheduler) runAudit() {
	log.Println("🔍 Запуск плановой проверки согласованности щитов")

	summary, err := as.audit.RunFullAudit()

	as.mu.Lock()
	defer as.mu.Unlock()

	now := time.Now()
	as.lastRunAt = &now
	if err != nil {
		as.lastError = err.Error()
		as.lastSummary = nil
		log.Printf("❌ Плановая проверка не выполнена: %v", err)
		return
	}
	as.lastError = ""
	as.lastSummary = summary
}
