package main

import (
	"log"
	"time"

	"backend_shchitok/api"
	"backend_shchitok/config"
	"backend_shchitok/database"
	"backend_shchitok/middleware"
	"backend_shchitok/models"
	"backend_shchitok/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// initDB инициализирует подключение к базе данных
func initDB() {
	log.Println("🔧 Инициализация базы данных...")

	// Создаем базу данных, если она не существует
	if err := database.CreateDatabaseIfNotExists(); err != nil {
		log.Fatal("❌ Ошибка при создании базы данных:", err)
	}

	// Подключаемся к базе данных
	if err := database.ConnectDatabase(); err != nil {
		log.Fatal("❌ Ошибка подключения к базе данных:", err)
	}

	// Индексы производительности и уникальности слотов
	if err := database.CreatePerformanceIndexes(database.GetDB()); err != nil {
		log.Printf("⚠️ Не удалось создать индексы: %v", err)
	}

	log.Println("✅ База данных успешно инициализирована")
}

// ensureDefaultAdmin создает администратора при первом запуске,
// чтобы в систему можно было войти
func ensureDefaultAdmin(cfg *config.Config) {
	var count int64
	database.GetDB().Model(&models.User{}).Count(&count)
	if count > 0 {
		return
	}

	password := cfg.Security.DefaultAdminPassword
	if password == "" {
		password = "admin"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("⚠️ Не удалось создать администратора по умолчанию: %v", err)
		return
	}

	admin := models.User{
		Username: "admin",
		Email:    "admin@localhost",
		Password: string(hash),
		Role:     models.UserRoleAdmin,
		IsActive: true,
	}
	if err := database.GetDB().Create(&admin).Error; err != nil {
		log.Printf("⚠️ Не удалось создать администратора по умолчанию: %v", err)
		return
	}
	log.Println("⚠️ Создан пользователь admin с паролем по умолчанию - смените пароль")
}

func main() {
	// Конфигурация из переменных окружения (.env опционален)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}
	cfg.LogConfig()

	// Инициализируем базу данных
	initDB()

	// Redis не обязателен: без него кэширование и rate limiting отключаются
	if err := database.InitRedis(); err != nil {
		log.Printf("⚠️ Redis недоступен, кэширование отключено: %v", err)
	}

	db := database.GetDB()
	logger := log.Default()

	// Сервисы
	cache := services.NewCacheService(database.GetRedis(), logger)

	var telegram *services.TelegramClient
	if cfg.External.TelegramBotToken != "" {
		telegram, err = services.NewTelegramClient(cfg.External.TelegramBotToken, cfg.External.TelegramChatID)
		if err != nil {
			log.Printf("⚠️ Telegram не настроен, уведомления пойдут в журнал: %v", err)
		}
	}
	notifications := services.NewNotificationService(telegram, logger)

	auditService := services.NewConsistencyAuditService(db, logger, notifications)
	reportService := services.NewReportService(db, cfg.Reports.OutputDir)

	var scheduler *services.AuditScheduler
	if cfg.Audit.Enabled {
		scheduler = services.NewAuditScheduler(auditService, cfg.Audit.CronSpec)
		if err := scheduler.Start(); err != nil {
			log.Printf("⚠️ Планировщик проверок не запущен: %v", err)
		}
	}

	ensureDefaultAdmin(cfg)

	// Настраиваем Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	// Проверка живости
	healthHandler := func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "success",
			"message":  "pong",
			"database": "connected",
		})
	}
	r.GET("/health", healthHandler)
	r.GET("/api/health", healthHandler)

	// API-обработчики
	authMw := middleware.NewAuthMiddleware(cfg.JWT)
	authAPI := api.NewAuthAPI(db, authMw)
	panelAPI := api.NewPanelAPI(db, cache)
	breakerAPI := api.NewBreakerAPI(db, cache)
	circuitAPI := api.NewCircuitAPI(db, cache)
	roomAPI := api.NewRoomAPI(db)
	relocationAPI := api.NewRelocationAPI(db, cache, notifications)
	dashboardAPI := api.NewDashboardAPI(db, cache)
	importAPI := api.NewImportAPI(db, cache)
	reportsAPI := api.NewReportsAPI(db, reportService, cache)
	auditAPI := api.NewAuditAPI(auditService, scheduler)
	userAPI := api.NewUserAPI(db)

	// Аутентификация (без токена, с жестким rate limit на вход)
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", middleware.AuthRateLimit(), authAPI.Login)
		auth.GET("/me", authMw.RequireAuth(), authAPI.Me)
	}

	// Основное API: токен обязателен
	apiGroup := r.Group("/api", authMw.RequireAuth(), middleware.APIRateLimit())
	{
		// Щиты
		apiGroup.GET("/panels", panelAPI.GetPanels)
		apiGroup.POST("/panels", panelAPI.CreatePanel)
		apiGroup.GET("/panels/:id", panelAPI.GetPanel)
		apiGroup.PUT("/panels/:id", panelAPI.UpdatePanel)
		apiGroup.DELETE("/panels/:id", panelAPI.DeletePanel)
		apiGroup.GET("/panels/:id/grid", panelAPI.GetPanelGrid)
		apiGroup.GET("/panels/:id/free-positions", panelAPI.GetPanelFreePositions)

		// Автоматы
		apiGroup.GET("/breakers", breakerAPI.GetBreakers)
		apiGroup.POST("/breakers", breakerAPI.CreateBreaker)
		apiGroup.GET("/breakers/:id", breakerAPI.GetBreaker)
		apiGroup.PUT("/breakers/:id", breakerAPI.UpdateBreaker)
		apiGroup.DELETE("/breakers/:id", breakerAPI.DeleteBreaker)
		apiGroup.POST("/breakers/:id/merge/:target_id", breakerAPI.MergeBreakers)

		// Цепи
		apiGroup.GET("/circuits", circuitAPI.GetCircuits)
		apiGroup.POST("/circuits", circuitAPI.CreateCircuit)
		apiGroup.GET("/circuits/:id", circuitAPI.GetCircuit)
		apiGroup.PUT("/circuits/:id", circuitAPI.UpdateCircuit)
		apiGroup.DELETE("/circuits/:id", circuitAPI.DeleteCircuit)

		// Помещения
		apiGroup.GET("/rooms", roomAPI.GetRooms)
		apiGroup.POST("/rooms", roomAPI.CreateRoom)
		apiGroup.GET("/rooms/:id", roomAPI.GetRoom)
		apiGroup.PUT("/rooms/:id", roomAPI.UpdateRoom)
		apiGroup.DELETE("/rooms/:id", roomAPI.DeleteRoom)

		// Планирование и выполнение переноса критических автоматов
		apiGroup.POST("/panels/:id/relocation-plan", relocationAPI.BuildPlan)
		apiGroup.GET("/relocation/plans/:plan_id", relocationAPI.GetPlan)
		apiGroup.POST("/relocation/apply", relocationAPI.ApplyPlan)
		apiGroup.POST("/relocation/apply-batch", relocationAPI.ApplyBatch)

		// Сводная статистика
		apiGroup.GET("/dashboard/stats", dashboardAPI.GetStats)
		apiGroup.GET("/dashboard/recent", dashboardAPI.GetRecent)
		apiGroup.GET("/dashboard/cache", dashboardAPI.GetCacheStats)

		// Импорт унаследованных таблиц
		apiGroup.POST("/import/csv", importAPI.ImportCSV)
		apiGroup.POST("/import/xlsx", importAPI.ImportXLSX)

		// Отчеты
		apiGroup.GET("/reports", reportsAPI.GetReports)
		apiGroup.POST("/reports", reportsAPI.CreateReport)
		apiGroup.GET("/reports/:id", reportsAPI.GetReport)
		apiGroup.GET("/reports/:id/download", reportsAPI.DownloadReport)
		apiGroup.DELETE("/reports/:id", reportsAPI.DeleteReport)

		// Проверка согласованности
		apiGroup.GET("/audit/findings", auditAPI.GetFindings)
		apiGroup.POST("/audit/run", auditAPI.RunAudit)
		apiGroup.POST("/audit/panels/:id/run", auditAPI.RunPanelAudit)
		apiGroup.PUT("/audit/findings/:id/acknowledge", auditAPI.AcknowledgeFinding)
		apiGroup.GET("/audit/stats", auditAPI.GetStats)
		apiGroup.GET("/audit/scheduler", auditAPI.GetSchedulerStatus)

		// Пользователи (только администратор)
		users := apiGroup.Group("/users", authMw.RequireAdmin())
		{
			users.GET("", userAPI.GetUsers)
			users.POST("", userAPI.CreateUser)
			users.PUT("/:id", userAPI.UpdateUser)
		}
	}

	log.Printf("🚀 Сервер запущен на порту %s", cfg.App.Port)
	if err := r.Run(cfg.App.Host + ":" + cfg.App.Port); err != nil {
		log.Fatal("❌ Ошибка запуска сервера:", err)
	}
}
