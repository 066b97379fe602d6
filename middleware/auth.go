package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backend_shchitok/config"
	"backend_shchitok/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims - содержимое JWT токена
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет аутентификацию пользователя по JWT
type AuthMiddleware struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAuthMiddleware создает новый экземпляр AuthMiddleware
func NewAuthMiddleware(cfg config.JWTConfig) *AuthMiddleware {
	return &AuthMiddleware{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.ExpiresIn,
	}
}

// IssueToken выпускает подписанный токен для пользователя
func (am *AuthMiddleware) IssueToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(am.ttl)

	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    am.issuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(am.secret)
	return signed, expiresAt, err
}

// ParseToken проверяет подпись и срок действия токена
func (am *AuthMiddleware) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// RequireAuth middleware для проверки аутентификации
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Authorization header is required",
			})
			c.Abort()
			return
		}

		claims, err := am.ParseToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"status": "error",
				"error":  "Invalid or expired token: " + err.Error(),
			})
			c.Abort()
			return
		}

		// Сохраняем информацию о пользователе в контексте
		c.Set("user", claims)
		c.Set("user_id", claims.UserID)
		c.Set("user_role", claims.Role)
		c.Set("token", token)

		c.Next()
	}
}

// RequireAdmin middleware для операций, доступных только администраторам.
// Ставится после RequireAuth.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("user_role") != models.UserRoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"status": "error",
				"error":  "Требуются права администратора",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// OptionalAuth middleware для опциональной аутентификации
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token != "" {
			if claims, err := am.ParseToken(token); err == nil {
				c.Set("user", claims)
				c.Set("user_id", claims.UserID)
				c.Set("user_role", claims.Role)
				c.Set("token", token)
			}
		}
		c.Next()
	}
}

// extractToken достает токен из заголовка Authorization
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		authHeader = c.GetHeader("authorization")
	}
	if authHeader == "" {
		return ""
	}

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if strings.HasPrefix(authHeader, "Token ") {
		return strings.TrimPrefix(authHeader, "Token ")
	}
	return authHeader
}

// GetCurrentUser возвращает данные токена текущего пользователя из контекста
func GetCurrentUser(c *gin.Context) *Claims {
	if user, exists := c.Get("user"); exists {
		if claims, ok := user.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// GetCurrentUserID возвращает идентификатор текущего пользователя (0 - аноним)
func GetCurrentUserID(c *gin.Context) uint {
	if userID, exists := c.Get("user_id"); exists {
		if id, ok := userID.(uint); ok {
			return id
		}
	}
	return 0
}

// GetCurrentToken возвращает текущий токен из контекста
func GetCurrentToken(c *gin.Context) string {
	if token, exists := c.Get("token"); exists {
		if tokenStr, ok := token.(string); ok {
			return tokenStr
		}
	}
	return ""
}
