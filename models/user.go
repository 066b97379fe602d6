package models

import (
	"time"

	"gorm.io/gorm"
)

// Роли пользователей
const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

// User представляет модель пользователя в системе
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Основные поля
	Username string `json:"username" gorm:"uniqueIndex;not null"`
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Password string `json:"-" gorm:"not null"` // Пароль не возвращается в JSON

	// Дополнительные поля
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role" gorm:"default:'user'"` // user, admin
	IsActive  bool   `json:"is_active" gorm:"default:true"`

	// Последний вход в систему
	LastLogin *time.Time `json:"last_login"`
}

// TableName задает имя таблицы для модели User
func (User) TableName() string {
	return "users"
}

// IsAdmin проверяет, что пользователь имеет права администратора
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// GetFullName возвращает полное имя пользователя
func (u *User) GetFullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Username
	}
	return u.FirstName + " " + u.LastName
}
