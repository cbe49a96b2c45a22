package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"site-builder/internal/config"
	"site-builder/internal/errors"
	"site-builder/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockService is a mock implementation of the Service interface
type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context, user *User) error {
	args := m.Called(user)
	return args.Error(0)
}

func (m *MockService) Login(ctx context.Context, email, password string) (*User, error) {
	args := m.Called(email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockService) GetUserByID(ctx context.Context, id uint64) (*User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*User), args.Error(1)
}

func (m *MockService) IncreaseTokenVersion(ctx context.Context, id uint64) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockService) TokenVersion(ctx context.Context, id uint64) (uint64, error) {
	args := m.Called(id)
	return args.Get(0).(uint64), args.Error(1)
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	config.AppConfig.JWTSecret = "handler-test-secret"
	router := gin.New()
	router.Use(middleware.ErrorHandler(zap.NewNop()))
	return router
}

func postJSON(router *gin.Engine, path string, payload interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest("POST", path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegister_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()
	router.POST("/register", handler.Register)

	mockService.On("Register", mock.MatchedBy(func(user *User) bool {
		return user.Name == "John Doe" &&
			user.Email == "john@example.com" &&
			user.Password == "password123"
	})).Return(nil).Run(func(args mock.Arguments) {
		user := args.Get(0).(*User)
		user.ID = 1
		user.CreatedAt = time.Now()
	})

	w := postJSON(router, "/register", FormRegister{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: "password123",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.NotNil(t, response["user"])
	assert.NotContains(t, w.Body.String(), "password123")
	mockService.AssertExpectations(t)
}

func TestRegister_InvalidInput(t *testing.T) {
	handler := NewHandler(new(MockService), zap.NewNop())
	router := setupRouter()
	router.POST("/register", handler.Register)

	w := postJSON(router, "/register", struct{ Name string }{Name: "John Doe"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	fields := response["fields"].(map[string]interface{})
	assert.Equal(t, "is required", fields["email"])
}

func TestRegister_InvalidEmail(t *testing.T) {
	handler := NewHandler(new(MockService), zap.NewNop())
	router := setupRouter()
	router.POST("/register", handler.Register)

	w := postJSON(router, "/register", FormRegister{
		Name:     "John Doe",
		Email:    "invalid-email",
		Password: "password123",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRegister_ShortPassword(t *testing.T) {
	handler := NewHandler(new(MockService), zap.NewNop())
	router := setupRouter()
	router.POST("/register", handler.Register)

	w := postJSON(router, "/register", FormRegister{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: "123",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRegister_Duplicate(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()
	router.POST("/register", handler.Register)

	mockService.On("Register", mock.Anything).Return(errors.UnprocessableEntity("User already registered", nil))

	w := postJSON(router, "/register", FormRegister{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: "password123",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "User already registered")
}

func TestLogin_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()
	router.POST("/login", handler.Login)

	user := &User{
		ID:       1,
		Name:     "John Doe",
		Email:    "john@example.com",
		IsActive: true,
	}
	mockService.On("Login", "john@example.com", "password123").Return(user, nil)

	w := postJSON(router, "/login", FormLogin{
		Email:    "john@example.com",
		Password: "password123",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.NotEmpty(t, response["access_token"])
	assert.NotNil(t, response["user"])

	var refresh *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			refresh = c
		}
	}
	if assert.NotNil(t, refresh) {
		assert.True(t, refresh.HttpOnly)
	}
	mockService.AssertExpectations(t)
}

func TestLogin_InvalidInput(t *testing.T) {
	handler := NewHandler(new(MockService), zap.NewNop())
	router := setupRouter()
	router.POST("/login", handler.Login)

	w := postJSON(router, "/login", struct{ Email string }{Email: "john@example.com"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestLogin_WrongCredentials(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()
	router.POST("/login", handler.Login)

	mockService.On("Login", "nonexistent@example.com", "password123").
		Return(nil, errors.Unauthorized("User not found", nil))

	w := postJSON(router, "/login", FormLogin{
		Email:    "nonexistent@example.com",
		Password: "password123",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockService.AssertExpectations(t)
}

func TestRefreshToken_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()
	router.POST("/login", handler.Login)
	router.POST("/refresh", handler.RefreshToken)

	user := &User{ID: 7, Email: "a@b.c", IsActive: true, TokenVersion: 2}
	mockService.On("Login", "a@b.c", "secret1").Return(user, nil)
	mockService.On("GetUserByID", uint64(7)).Return(user, nil)

	login := postJSON(router, "/login", FormLogin{Email: "a@b.c", Password: "secret1"})
	assert.Equal(t, http.StatusOK, login.Code)

	req := httptest.NewRequest("POST", "/refresh", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "access_token")
}

func TestRefreshToken_StaleVersion(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()
	router.POST("/login", handler.Login)
	router.POST("/refresh", handler.RefreshToken)

	mockService.On("Login", "a@b.c", "secret1").Return(&User{ID: 7, IsActive: true, TokenVersion: 2}, nil)
	// logged out since the cookie was issued
	mockService.On("GetUserByID", uint64(7)).Return(&User{ID: 7, IsActive: true, TokenVersion: 3}, nil)

	login := postJSON(router, "/login", FormLogin{Email: "a@b.c", Password: "secret1"})

	req := httptest.NewRequest("POST", "/refresh", nil)
	for _, c := range login.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRefreshToken_NoCookie(t *testing.T) {
	handler := NewHandler(new(MockService), zap.NewNop())
	router := setupRouter()
	router.POST("/refresh", handler.RefreshToken)

	w := postJSON(router, "/refresh", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()

	mockService.On("IncreaseTokenVersion", uint64(1)).Return(nil)

	router.POST("/logout", func(c *gin.Context) {
		c.Set("user_id", uint64(1))
		handler.Logout(c)
	})

	req := httptest.NewRequest("POST", "/logout", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockService.AssertExpectations(t)
}

func TestGetProfile_Success(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()

	user := &User{
		ID:        1,
		Name:      "John Doe",
		Email:     "john@example.com",
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	mockService.On("GetUserByID", uint64(1)).Return(user, nil)

	router.GET("/profile", func(c *gin.Context) {
		c.Set("user_id", uint64(1))
		handler.GetProfile(c)
	})

	req := httptest.NewRequest("GET", "/profile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response SafeUser
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "John Doe", response.Name)
	assert.Equal(t, "john@example.com", response.Email)
	mockService.AssertExpectations(t)
}

func TestGetProfile_NoUserID(t *testing.T) {
	handler := NewHandler(new(MockService), zap.NewNop())
	router := setupRouter()
	router.GET("/profile", handler.GetProfile)

	req := httptest.NewRequest("GET", "/profile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetProfile_UserNotFound(t *testing.T) {
	mockService := new(MockService)
	handler := NewHandler(mockService, zap.NewNop())
	router := setupRouter()

	mockService.On("GetUserByID", uint64(999)).Return(nil, errors.NotFound("User not found", nil))

	router.GET("/profile", func(c *gin.Context) {
		c.Set("user_id", uint64(999))
		handler.GetProfile(c)
	})

	req := httptest.NewRequest("GET", "/profile", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockService.AssertExpectations(t)
}

func TestAuthMiddleware_TokenVersion(t *testing.T) {
	mockService := new(MockService)
	router := setupRouter()
	authMiddleware := &middleware.Auth{UserService: mockService}
	router.GET("/me", authMiddleware.AuthMiddleWare(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.GetUint64("user_id")})
	})

	mockService.On("Login", "a@b.c", "secret1").Return(&User{ID: 5, IsActive: true, TokenVersion: 1}, nil)
	handler := NewHandler(mockService, zap.NewNop())
	router.POST("/login", handler.Login)
	login := postJSON(router, "/login", FormLogin{Email: "a@b.c", Password: "secret1"})
	var body map[string]interface{}
	json.Unmarshal(login.Body.Bytes(), &body)
	token := body["access_token"].(string)

	mockService.On("TokenVersion", uint64(5)).Return(uint64(1), nil).Once()
	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// after logout the same token is refused
	mockService.On("TokenVersion", uint64(5)).Return(uint64(2), nil).Once()
	req = httptest.NewRequest("GET", "/me?token="+token, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
