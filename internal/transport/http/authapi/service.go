// Package authapi exposes signup, login and profile endpoints.
package authapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coastwatch-server-go/internal/domain/auth"
	"coastwatch-server-go/internal/platform/logging"
	"coastwatch-server-go/internal/platform/storage"
	httptransport "coastwatch-server-go/internal/transport/http"
)

// Service handles account endpoints.
type Service struct {
	users  *storage.UserRepository
	tokens *auth.TokenManager
	logger *logging.Logger
}

// NewService constructs the auth API service.
func NewService(users *storage.UserRepository, tokens *auth.TokenManager, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default
	}
	return &Service{users: users, tokens: tokens, logger: logger}
}

// Register wires the public and secured routes.
func (s *Service) Register(public, secured *gin.RouterGroup) {
	group := public.Group("/auth")
	group.POST("/signup", s.handleSignup)
	group.POST("/login", s.handleLogin)
	if secured != nil {
		secured.GET("/auth/me", s.handleMe)
	}
	s.logger.InfoTag("AUTH", "auth routes registered")
}

type signupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Phone    string `json:"phone"`
}

type authResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	User        *storage.User `json:"user,omitempty"`
}

func (s *Service) handleSignup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httptransport.RespondDetail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusInternalServerError, "Could not process password")
		return
	}

	user := &storage.User{
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: hash,
		Phone:        req.Phone,
	}
	if err := s.users.Create(c.Request.Context(), user); err != nil {
		if err == storage.ErrDuplicateEmail {
			httptransport.RespondDetail(c, http.StatusBadRequest, "Email already registered")
			return
		}
		httptransport.RespondDetail(c, http.StatusInternalServerError, "Could not create account")
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusInternalServerError, "Could not issue token")
		return
	}

	s.logger.InfoTag("AUTH", "new account %s", user.Email)
	c.JSON(http.StatusOK, authResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

// handleLogin accepts form fields to match OAuth2 password-flow clients.
func (s *Service) handleLogin(c *gin.Context) {
	email := c.PostForm("username")
	password := c.PostForm("password")
	if email == "" || password == "" {
		httptransport.RespondDetail(c, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	user, err := s.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusInternalServerError, "Could not load user")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, password) {
		httptransport.RespondDetail(c, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		httptransport.RespondDetail(c, http.StatusInternalServerError, "Could not issue token")
		return
	}

	c.JSON(http.StatusOK, authResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	})
}

func (s *Service) handleMe(c *gin.Context) {
	user, ok := httptransport.CurrentUser(c)
	if !ok {
		httptransport.RespondDetail(c, http.StatusUnauthorized, "Not authenticated")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        user.ID,
		"email":     user.Email,
		"full_name": user.FullName,
		"role":      user.Role,
		"points":    user.Points,
		"tier":      tierFor(user.Points),
	})
}

// tierFor grades accumulated points into reward tiers.
func tierFor(points int) string {
	switch {
	case points >= 100:
		return "gold"
	case points >= 25:
		return "silver"
	default:
		return "bronze"
	}
}
