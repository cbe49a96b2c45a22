package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const DefaultPageSize = 10

// GetPaginationParams reads page; listings always use pages of DefaultPageSize
func GetPaginationParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}

	return page, DefaultPageSize
}

// UserID returns the authenticated user set by the auth middleware
func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get("user_id")
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}
