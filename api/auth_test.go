package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"backend_shchitok/config"
	"backend_shchitok/middleware"
	"backend_shchitok/models"
	"backend_shchitok/testutils"
)

func setupAuthTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	authMw := middleware.NewAuthMiddleware(config.JWTConfig{
		Secret:    "test-secret-key",
		ExpiresIn: time.Hour,
		Issuer:    "shchitok-test",
	})
	authAPI := NewAuthAPI(db, authMw)

	auth := router.Group("/api/auth")
	{
		auth.POST("/login", authAPI.Login)
		auth.GET("/me", authMw.RequireAuth(), authAPI.Me)
	}

	return router
}

func createLoginUser(t *testing.T, db *gorm.DB, username, password string, active bool) *models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	user := testutils.CreateTestUser(db, username, string(hash), models.UserRoleUser)
	require.NotNil(t, user)
	if !active {
		require.NoError(t, db.Model(user).Update("is_active", false).Error)
	}
	return user
}

func postLogin(router *gin.Engine, username, password string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLogin(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupAuthTestRouter(db)

	user := createLoginUser(t, db, "electrician", "correct-horse", true)
	createLoginUser(t, db, "retired", "whatever", false)

	t.Run("Successful login", func(t *testing.T) {
		w := postLogin(router, "electrician", "correct-horse")
		assert.Equal(t, http.StatusOK, w.Code)

		var response struct {
			Status string `json:"status"`
			Data   struct {
				Token     string      `json:"token"`
				ExpiresAt time.Time   `json:"expires_at"`
				User      models.User `json:"user"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Data.Token)
		assert.True(t, response.Data.ExpiresAt.After(time.Now()))
		assert.Equal(t, user.ID, response.Data.User.ID)

		// Время последнего входа фиксируется
		var updated models.User
		require.NoError(t, db.First(&updated, user.ID).Error)
		assert.NotNil(t, updated.LastLogin)
	})

	t.Run("Wrong password", func(t *testing.T) {
		w := postLogin(router, "electrician", "wrong")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Unknown user same response", func(t *testing.T) {
		wrongPassword := postLogin(router, "electrician", "wrong")
		unknownUser := postLogin(router, "nobody", "wrong")

		// Неизвестный логин и неверный пароль неразличимы для клиента
		assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
		assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	})

	t.Run("Inactive user", func(t *testing.T) {
		w := postLogin(router, "retired", "whatever")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Validation error", func(t *testing.T) {
		w := postLogin(router, "x", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestMe(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupAuthTestRouter(db)

	createLoginUser(t, db, "electrician", "correct-horse", true)

	w := postLogin(router, "electrician", "correct-horse")
	require.Equal(t, http.StatusOK, w.Code)

	var loginResponse struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &loginResponse))

	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+loginResponse.Data.Token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var meResponse struct {
		Status string      `json:"status"`
		Data   models.User `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meResponse))
	assert.Equal(t, "electrician", meResponse.Data.Username)

	// Без токена доступ закрыт
	req = httptest.NewRequest("GET", "/api/auth/me", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
