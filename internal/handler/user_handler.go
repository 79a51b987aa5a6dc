package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"account_service/internal/model"
	"account_service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// UserHandler handles profile and account management requests
type UserHandler struct {
	service service.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(s service.UserService) *UserHandler {
	return &UserHandler{service: s}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	userID, err := getAuthUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
		return
	}

	user, err := h.service.GetProfile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, CodeNotFound, service.ErrUserNotFound.Error())
			return
		}
		log.Error().Err(err).Msg("failed to load profile")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID, err := getAuthUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
		return
	}

	var req model.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid request: "+err.Error())
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, http.StatusNotFound, CodeNotFound, service.ErrUserNotFound.Error())
			return
		}
		if errors.Is(err, service.ErrUserAlreadyExists) {
			respondError(c, http.StatusConflict, CodeConflict, service.ErrUserAlreadyExists.Error())
			return
		}
		log.Error().Err(err).Msg("failed to update profile")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to update profile")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) DeleteMe(c *gin.Context) {
	userID, err := getAuthUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
		return
	}

	if err := h.service.DeleteAccount(c.Request.Context(), userID); err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("failed to delete account")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to delete account")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.service.ListUsers(c.Request.Context(), page, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list users")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to list users")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 2 {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Query must be at least 2 characters")
		return
	}

	results, err := h.service.SearchUsers(c.Request.Context(), query)
	if err != nil {
		log.Error().Err(err).Msg("failed to search users")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to search users")
		return
	}
	c.JSON(http.StatusOK, results)
}

// RegisterUserRoutes registers user routes
func (h *UserHandler) RegisterUserRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, adminMW gin.HandlerFunc) {
	userRoutes := rg.Group("/users")
	userRoutes.Use(authMW) // All routes in this group require authentication
	{
		userRoutes.GET("/me", h.GetMe)
		userRoutes.PATCH("/me", h.UpdateMe)
		userRoutes.DELETE("/me", h.DeleteMe)
		userRoutes.GET("/search", h.SearchUsers)
		userRoutes.GET("", adminMW, h.ListUsers) // Admin only
	}
}
