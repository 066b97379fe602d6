package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"backend_shchitok/middleware"
	"backend_shchitok/models"
)

// AuthAPI представляет API аутентификации
type AuthAPI struct {
	DB   *gorm.DB
	Auth *middleware.AuthMiddleware
}

// NewAuthAPI создает новый экземпляр AuthAPI
func NewAuthAPI(db *gorm.DB, auth *middleware.AuthMiddleware) *AuthAPI {
	return &AuthAPI{DB: db, Auth: auth}
}

// LoginRequest - запрос входа в систему
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=3,max=64"`
}

// logAuthOperation пишет структурированную запись журнала авторизации
func logAuthOperation(operation, username string, userID uint, details map[string]interface{}) {
	logData := map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"operation": operation,
		"username":  username,
		"user_id":   userID,
	}
	for key, value := range details {
		logData[key] = value
	}

	logJSON, _ := json.Marshal(logData)
	log.Printf("AUTH_LOG: %s", string(logJSON))
}

// Login проверяет логин и пароль и выдает подписанный токен
func (api *AuthAPI) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logAuthOperation("login_validation_error", req.Username, 0, map[string]interface{}{
			"error":      err.Error(),
			"status":     "failed",
			"ip_address": c.ClientIP(),
		})
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные логин или пароль"})
		return
	}

	var user models.User
	if err := api.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		logAuthOperation("login_unknown_user", req.Username, 0, map[string]interface{}{
			"status":     "failed",
			"ip_address": c.ClientIP(),
		})
		// Один и тот же ответ для неизвестного логина и неверного пароля
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Неверные логин или пароль"})
		return
	}

	if !user.IsActive {
		logAuthOperation("login_inactive_user", req.Username, user.ID, map[string]interface{}{
			"status":     "failed",
			"ip_address": c.ClientIP(),
		})
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "error": "Учетная запись отключена"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logAuthOperation("login_wrong_password", req.Username, user.ID, map[string]interface{}{
			"status":     "failed",
			"ip_address": c.ClientIP(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Неверные логин или пароль"})
		return
	}

	token, expiresAt, err := api.Auth.IssueToken(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Не удалось выпустить токен"})
		return
	}

	now := time.Now()
	user.LastLogin = &now
	api.DB.Model(&user).Update("last_login", now)

	logAuthOperation("login_success", user.Username, user.ID, map[string]interface{}{
		"status":     "success",
		"ip_address": c.ClientIP(),
		"user_agent": c.GetHeader("User-Agent"),
	})

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"data": gin.H{
			"token":      token,
			"expires_at": expiresAt,
			"user":       user,
		},
	})
}

// Me возвращает данные текущего пользователя по токену
func (api *AuthAPI) Me(c *gin.Context) {
	claims := middleware.GetCurrentUser(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "Требуется аутентификация"})
		return
	}

	var user models.User
	if err := api.DB.First(&user, claims.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Пользователь не найден"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": user})
}
