package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"site-builder/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestContext(zap.NewNop()))
	router.Use(ErrorHandler(zap.NewNop()))
	return router
}

func TestErrorHandler_APIError(t *testing.T) {
	router := setupRouter()
	router.GET("/missing", func(c *gin.Context) {
		c.Error(errors.NotFound("Project not found", nil))
	})

	req := httptest.NewRequest("GET", "/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "Project not found", response["error"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestErrorHandler_RawErrorIsInternal(t *testing.T) {
	router := setupRouter()
	router.GET("/boom", func(c *gin.Context) {
		c.Error(fmt.Errorf("database exploded"))
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "database exploded")
}

func TestRequestContext_KeepsIncomingRequestID(t *testing.T) {
	router := setupRouter()
	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	req := httptest.NewRequest("GET", "/ok", nil)
	req.Header.Set("X-Request-ID", "abc123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "abc123", w.Body.String())
}

func TestRateLimiter_PerUser(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2, 10)
	router := setupRouter()
	router.POST("/generate", func(c *gin.Context) {
		userID := uint64(1)
		if c.GetHeader("X-User") == "2" {
			userID = 2
		}
		c.Set("user_id", userID)
		c.Next()
	}, limiter.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	send := func(user string) int {
		req := httptest.NewRequest("POST", "/generate", nil)
		req.Header.Set("X-User", user)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusAccepted, send("1"))
	assert.Equal(t, http.StatusAccepted, send("1"))
	assert.Equal(t, http.StatusTooManyRequests, send("1"))
	// another user has its own bucket
	assert.Equal(t, http.StatusAccepted, send("2"))
}

func TestRateLimiter_RetryAfterFollowsRate(t *testing.T) {
	tests := []struct {
		rps  float64
		want string
	}{
		{0.2, "5"},
		{0.3, "4"},
		{1, "1"},
		{10, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			limiter := NewRateLimiter(tt.rps, 1, 10)
			router := setupRouter()
			router.POST("/generate", func(c *gin.Context) {
				c.Set("user_id", uint64(1))
				c.Next()
			}, limiter.Middleware(), func(c *gin.Context) {
				c.Status(http.StatusAccepted)
			})

			send := func() *httptest.ResponseRecorder {
				w := httptest.NewRecorder()
				router.ServeHTTP(w, httptest.NewRequest("POST", "/generate", nil))
				return w
			}

			require.Equal(t, http.StatusAccepted, send().Code)
			w := send()
			require.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Retry-After"))
		})
	}
}

func TestRateLimiter_EvictsLeastRecent(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1, 2)

	assert.True(t, limiter.Allow("a"))
	assert.True(t, limiter.Allow("b"))
	assert.True(t, limiter.Allow("c")) // evicts a
	assert.Len(t, limiter.items, 2)
	assert.True(t, limiter.Allow("a")) // fresh bucket again
}
