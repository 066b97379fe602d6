package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// parseIDParam извлекает числовой идентификатор из параметра маршрута.
// Возвращает 0 и false для нечисловых и нулевых значений.
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// parsePagination извлекает параметры пагинации из query string
func parsePagination(c *gin.Context) (page, limit, offset int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return page, limit, (page - 1) * limit
}

// paginationEnvelope собирает стандартный блок пагинации ответа
func paginationEnvelope(page, limit int, total int64) gin.H {
	return gin.H{
		"page":  page,
		"limit": limit,
		"total": total,
		"pages": (total + int64(limit) - 1) / int64(limit),
	}
}
