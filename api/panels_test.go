package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"backend_shchitok/models"
	"backend_shchitok/services"
	"backend_shchitok/testutils"
)

func setupPanelTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	cache := services.NewCacheService(nil, log.Default())
	panelAPI := NewPanelAPI(db, cache)
	api := router.Group("/api")
	{
		api.GET("/panels", panelAPI.GetPanels)
		api.POST("/panels", panelAPI.CreatePanel)
		api.GET("/panels/:id", panelAPI.GetPanel)
		api.PUT("/panels/:id", panelAPI.UpdatePanel)
		api.DELETE("/panels/:id", panelAPI.DeletePanel)
		api.GET("/panels/:id/grid", panelAPI.GetPanelGrid)
		api.GET("/panels/:id/free-positions", panelAPI.GetPanelFreePositions)
	}

	return router
}

func TestCreatePanel(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupPanelTestRouter(db)

	tests := []struct {
		name           string
		panel          models.Panel
		expectedStatus int
	}{
		{
			name:           "Successful creation",
			panel:          models.Panel{Name: "Главный щит", Size: 30, Location: "Гараж"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "Missing name",
			panel:          models.Panel{Size: 24},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Size below minimum",
			panel:          models.Panel{Name: "Маленький", Size: 6},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Size above maximum",
			panel:          models.Panel{Name: "Огромный", Size: 48},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Duplicate name",
			panel:          models.Panel{Name: "Главный щит", Size: 24},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(tt.panel)
			req := httptest.NewRequest("POST", "/api/panels", bytes.NewBuffer(body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			if tt.expectedStatus == http.StatusCreated {
				assert.Equal(t, "success", response["status"])
			} else {
				assert.Equal(t, "error", response["status"])
			}
		})
	}
}

func TestGetPanel(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupPanelTestRouter(db)

	panel := testutils.CreateTestPanel(db, "Щит гаража", 24)
	require.NotNil(t, panel)
	breaker := testutils.CreateTestBreaker(db, panel.ID, 3, models.BreakerTypeSingle, models.SlotPositionSingle)
	require.NotNil(t, breaker)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/panels/%d", panel.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Status string       `json:"status"`
		Data   models.Panel `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Щит гаража", response.Data.Name)
	assert.Len(t, response.Data.Breakers, 1)

	// Несуществующий щит
	req = httptest.NewRequest("GET", "/api/panels/9999", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Некорректный идентификатор
	req = httptest.NewRequest("GET", "/api/panels/abc", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePanelShrink(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupPanelTestRouter(db)

	panel := testutils.CreateTestPanel(db, "Щит", 30)
	require.NotNil(t, panel)

	// Двухполюсный на позиции 26 занимает и позицию 28
	breaker := testutils.CreateTestBreaker(db, panel.ID, 26, models.BreakerTypeDoublePole, models.SlotPositionSingle)
	require.NotNil(t, breaker)

	// Уменьшение до 27 отрезало бы вторую строку двухполюсного
	body, _ := json.Marshal(map[string]interface{}{"size": 27})
	req := httptest.NewRequest("PUT", fmt.Sprintf("/api/panels/%d", panel.ID), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Уменьшение до 28 допустимо
	body, _ = json.Marshal(map[string]interface{}{"size": 28})
	req = httptest.NewRequest("PUT", fmt.Sprintf("/api/panels/%d", panel.ID), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var updated models.Panel
	require.NoError(t, db.First(&updated, panel.ID).Error)
	assert.Equal(t, 28, updated.Size)
}

func TestDeletePanelCascades(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupPanelTestRouter(db)

	panel := testutils.CreateTestPanel(db, "Щит на снос", 24)
	require.NotNil(t, panel)
	breaker := testutils.CreateTestBreaker(db, panel.ID, 1, models.BreakerTypeSingle, models.SlotPositionSingle)
	require.NotNil(t, breaker)
	circuit := testutils.CreateTestCircuit(db, breaker.ID, nil, models.CircuitTypeLighting)
	require.NotNil(t, circuit)

	req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/panels/%d", panel.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var breakerCount, circuitCount int64
	db.Model(&models.Breaker{}).Where("panel_id = ?", panel.ID).Count(&breakerCount)
	db.Model(&models.Circuit{}).Where("breaker_id = ?", breaker.ID).Count(&circuitCount)
	assert.Zero(t, breakerCount)
	assert.Zero(t, circuitCount)
}

func TestGetPanelGrid(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupPanelTestRouter(db)

	panel := testutils.CreateTestPanel(db, "Щит", 12)
	require.NotNil(t, panel)

	// Спаренный слот A+B на позиции 1, двухполюсный на 2 (занимает 2 и 4)
	require.NotNil(t, testutils.CreateTestBreaker(db, panel.ID, 1, models.BreakerTypeTandem, models.SlotPositionA))
	require.NotNil(t, testutils.CreateTestBreaker(db, panel.ID, 1, models.BreakerTypeTandem, models.SlotPositionB))
	doublePole := testutils.CreateTestBreaker(db, panel.ID, 2, models.BreakerTypeDoublePole, models.SlotPositionSingle)
	require.NotNil(t, doublePole)

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/panels/%d/grid", panel.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Status string         `json:"status"`
		Data   []GridPosition `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Data, 12)

	// Позиция 1: левая шина, две половины спаренного слота
	assert.Equal(t, services.BusSideLeft, response.Data[0].Side)
	assert.Len(t, response.Data[0].Breakers, 2)

	// Позиция 4: пустая, но зарезервирована второй строкой двухполюсного
	assert.Empty(t, response.Data[3].Breakers)
	require.NotNil(t, response.Data[3].ReservedBy)
	assert.Equal(t, doublePole.ID, *response.Data[3].ReservedBy)

	// Позиция 3 свободна
	assert.Empty(t, response.Data[2].Breakers)
	assert.Nil(t, response.Data[2].ReservedBy)
}

func TestGetPanelFreePositions(t *testing.T) {
	db, err := testutils.SetupTestDB()
	require.NoError(t, err)
	defer testutils.CleanupTestDB(db)
	router := setupPanelTestRouter(db)

	panel := testutils.CreateTestPanel(db, "Щит", 12)
	require.NotNil(t, panel)
	require.NotNil(t, testutils.CreateTestBreaker(db, panel.ID, 1, models.BreakerTypeSingle, models.SlotPositionSingle))
	// Двухполюсный на 3 занимает 3 и 5
	require.NotNil(t, testutils.CreateTestBreaker(db, panel.ID, 3, models.BreakerTypeDoublePole, models.SlotPositionSingle))

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/panels/%d/free-positions", panel.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Status string              `json:"status"`
		Data   []services.FreeSlot `json:"data"`
		Free   int                 `json:"free"`
		Size   int                 `json:"size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 12, response.Size)
	assert.Equal(t, 9, response.Free)

	positions := make([]int, 0, len(response.Data))
	for _, slot := range response.Data {
		positions = append(positions, slot.Position)
	}
	assert.Equal(t, []int{2, 4, 6, 7, 8, 9, 10, 11, 12}, positions)

	// Четные позиции - правая шина
	assert.Equal(t, services.BusSideRight, response.Data[0].Side)
}
