package handler

import (
	"errors"
	"net/http"

	"account_service/internal/middleware"
	"account_service/internal/model"
	"account_service/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	service service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(s service.AuthService) *AuthHandler {
	return &AuthHandler{service: s}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req model.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid request: "+err.Error())
		return
	}

	user, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			respondError(c, http.StatusConflict, CodeConflict, service.ErrUserAlreadyExists.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to register user")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"email":      user.Email,
		"name":       user.Name,
		"role":       user.Role,
		"created_at": user.CreatedAt,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid request: "+err.Error())
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			// Unknown email and wrong password produce this same response
			respondError(c, http.StatusUnauthorized, CodeUnauthenticated, service.ErrInvalidCredentials.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to login")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": user.ID,
		"email":   user.Email,
		"role":    user.Role,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	tokenVal, exists := c.Get(middleware.AuthSessionKey)
	token, ok := tokenVal.(string)
	if !exists || !ok {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, "Session not found in context")
		return
	}

	if err := h.service.Logout(c.Request.Context(), token); err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to logout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid request: "+err.Error())
		return
	}

	if err := h.service.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to process reset request")
		return
	}

	// Identical response whether or not the email exists
	c.JSON(http.StatusOK, gin.H{"message": "If the email exists, a reset link has been sent."})
}

func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8,max=128"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid request: "+err.Error())
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, service.ErrInvalidResetToken) {
			respondError(c, http.StatusBadRequest, CodeInvalidInput, service.ErrInvalidResetToken.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to reset password")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}

// RegisterAuthRoutes registers auth routes
func (h *AuthHandler) RegisterAuthRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.POST("/login", h.Login)
	rg.POST("/logout", authMW, h.Logout)
	rg.POST("/users", h.Register)
	rg.POST("/users/reset-password", h.RequestPasswordReset)
	rg.POST("/users/reset-password/confirm", h.ConfirmPasswordReset)
}
