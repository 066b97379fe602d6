package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"backend_shchitok/models"
)

// UserAPI представляет API управления пользователями (только администратор)
type UserAPI struct {
	DB *gorm.DB
}

// NewUserAPI создает новый экземпляр UserAPI
func NewUserAPI(db *gorm.DB) *UserAPI {
	return &UserAPI{DB: db}
}

// CreateUserRequest - запрос создания пользователя
type CreateUserRequest struct {
	Username  string `json:"username" binding:"required,min=3,max=64"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6,max=64"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// GetUsers возвращает список пользователей
func (api *UserAPI) GetUsers(c *gin.Context) {
	var users []models.User
	query := api.DB.Model(&models.User{})

	if isActive := c.Query("is_active"); isActive == "true" {
		query = query.Where("is_active = ?", true)
	} else if isActive == "false" {
		query = query.Where("is_active = ?", false)
	}

	page, limit, offset := parsePagination(c)

	var total int64
	query.Count(&total)

	if err := query.Order("username ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при получении списка пользователей"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"data":       users,
		"pagination": paginationEnvelope(page, limit, total),
	})
}

// CreateUser создает нового пользователя
func (api *UserAPI) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if req.Role == "" {
		req.Role = models.UserRoleUser
	}
	if req.Role != models.UserRoleUser && req.Role != models.UserRoleAdmin {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Недопустимая роль пользователя"})
		return
	}

	var existing models.User
	if err := api.DB.Where("username = ? OR email = ?", req.Username, req.Email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": "Пользователь с таким логином или почтой уже существует"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Не удалось захешировать пароль"})
		return
	}

	user := models.User{
		Username:  req.Username,
		Email:     req.Email,
		Password:  string(hash),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      req.Role,
		IsActive:  true,
	}

	if err := api.DB.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при создании пользователя: " + err.Error()})
		return
	}

	logAuthOperation("user_created", user.Username, user.ID, map[string]interface{}{
		"role": user.Role,
	})

	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Пользователь успешно создан",
		"data":    user,
	})
}

// UpdateUser обновляет пользователя
func (api *UserAPI) UpdateUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный идентификатор пользователя"})
		return
	}

	var user models.User
	if err := api.DB.First(&user, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "Пользователь не найден"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при поиске пользователя"})
		}
		return
	}

	var updateData struct {
		Email     *string `json:"email"`
		Password  *string `json:"password"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Role      *string `json:"role"`
		IsActive  *bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&updateData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректные данные: " + err.Error()})
		return
	}

	if updateData.Email != nil {
		user.Email = *updateData.Email
	}
	if updateData.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*updateData.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Не удалось захешировать пароль"})
			return
		}
		user.Password = string(hash)
	}
	if updateData.FirstName != nil {
		user.FirstName = *updateData.FirstName
	}
	if updateData.LastName != nil {
		user.LastName = *updateData.LastName
	}
	if updateData.Role != nil {
		if *updateData.Role != models.UserRoleUser && *updateData.Role != models.UserRoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Недопустимая роль пользователя"})
			return
		}
		user.Role = *updateData.Role
	}
	if updateData.IsActive != nil {
		user.IsActive = *updateData.IsActive
	}

	if err := api.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Ошибка при обновлении пользователя"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Пользователь успешно обновлен",
		"data":    user,
	})
}
