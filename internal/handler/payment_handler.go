package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"account_service/internal/gateway"
	"account_service/internal/model"
	"account_service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// webhookSignatureHeader carries the gateway's hex HMAC over the raw body
const webhookSignatureHeader = "X-Gateway-Signature"

// PaymentHandler handles charge, refund, and reporting requests
type PaymentHandler struct {
	service       service.PaymentService
	webhookSecret []byte
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(s service.PaymentService, webhookSecret []byte) *PaymentHandler {
	return &PaymentHandler{service: s, webhookSecret: webhookSecret}
}

func (h *PaymentHandler) Charge(c *gin.Context) {
	userID, err := getAuthUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
		return
	}

	var req model.ChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid request: "+err.Error())
		return
	}

	payment, err := h.service.Charge(c.Request.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientFunds):
			respondError(c, http.StatusPaymentRequired, CodePaymentDeclined, service.ErrInsufficientFunds.Error())
		case errors.Is(err, service.ErrPaymentDeclined):
			respondError(c, http.StatusPaymentRequired, CodePaymentDeclined, service.ErrPaymentDeclined.Error())
		case errors.Is(err, service.ErrIdempotencyConflict):
			respondError(c, http.StatusConflict, CodeConflict, service.ErrIdempotencyConflict.Error())
		case errors.Is(err, service.ErrGatewayTimeout):
			respondError(c, http.StatusGatewayTimeout, CodeUpstreamTimeout, service.ErrGatewayTimeout.Error())
		case errors.Is(err, service.ErrGatewayUnavailable):
			respondError(c, http.StatusBadGateway, CodeUpstreamFailure, service.ErrGatewayUnavailable.Error())
		default:
			log.Error().Err(err).Int("user_id", userID).Msg("charge failed")
			respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to process charge")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"charge_id": payment.ID, "status": payment.Status})
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	userID, err := getAuthUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
		return
	}
	userRole, err := getAuthUserRole(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, "User role not found")
		return
	}

	var req model.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid request: "+err.Error())
		return
	}

	payment, err := h.service.Refund(c.Request.Context(), req.PaymentID, userID, userRole)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, http.StatusNotFound, CodeNotFound, service.ErrPaymentNotFound.Error())
		case errors.Is(err, service.ErrForbidden):
			respondError(c, http.StatusForbidden, CodeForbidden, service.ErrForbidden.Error())
		case errors.Is(err, service.ErrNotRefundable):
			respondError(c, http.StatusConflict, CodeConflict, service.ErrNotRefundable.Error())
		case errors.Is(err, service.ErrGatewayTimeout):
			respondError(c, http.StatusGatewayTimeout, CodeUpstreamTimeout, service.ErrGatewayTimeout.Error())
		case errors.Is(err, service.ErrGatewayUnavailable):
			respondError(c, http.StatusBadGateway, CodeUpstreamFailure, service.ErrGatewayUnavailable.Error())
		default:
			log.Error().Err(err).Str("payment_id", req.PaymentID).Msg("refund failed")
			respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to process refund")
		}
		return
	}

	refundID := ""
	if payment.GatewayRefundID != nil {
		refundID = *payment.GatewayRefundID
	}
	c.JSON(http.StatusOK, gin.H{"refund_id": refundID, "status": payment.Status})
}

func (h *PaymentHandler) GetMyPayments(c *gin.Context) {
	userID, err := getAuthUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, CodeUnauthenticated, err.Error())
		return
	}

	payments, err := h.service.GetUserPayments(c.Request.Context(), userID)
	if err != nil {
		log.Error().Err(err).Int("user_id", userID).Msg("failed to load payments")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to retrieve payments")
		return
	}
	c.JSON(http.StatusOK, payments)
}

func parseAdminPaymentFilters(c *gin.Context) (model.AdminPaymentFilters, bool) {
	var filters model.AdminPaymentFilters
	if userIDStr := c.Query("user_id"); userIDStr != "" {
		uid, err := strconv.Atoi(userIDStr)
		if err != nil {
			respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid user_id format")
			return filters, false
		}
		filters.UserID = &uid
	}
	if statusParam := c.Query("status"); statusParam != "" {
		filters.Status = &statusParam
	}
	if currencyParam := c.Query("currency"); currencyParam != "" {
		filters.Currency = &currencyParam
	}
	if startDateParam := c.Query("start_date"); startDateParam != "" {
		parsedDate, err := time.Parse("2006-01-02", startDateParam)
		if err != nil {
			respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid date format for 'start_date', use YYYY-MM-DD")
			return filters, false
		}
		filters.StartDate = &parsedDate
	}
	if endDateParam := c.Query("end_date"); endDateParam != "" {
		parsedDate, err := time.Parse("2006-01-02", endDateParam)
		if err != nil {
			respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid date format for 'end_date', use YYYY-MM-DD")
			return filters, false
		}
		// Adjust end date to include the whole day
		endOfDay := time.Date(parsedDate.Year(), parsedDate.Month(), parsedDate.Day(), 23, 59, 59, 999999999, parsedDate.Location())
		filters.EndDate = &endOfDay
	}
	return filters, true
}

// --- Admin Routes ---

func (h *PaymentHandler) GetAllPaymentsAdmin(c *gin.Context) {
	filters, ok := parseAdminPaymentFilters(c)
	if !ok {
		return
	}

	payments, err := h.service.GetAllPaymentsAdmin(c.Request.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("failed to load payments for admin")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to retrieve payments")
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *PaymentHandler) GetStatsAdmin(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))

	totals, err := h.service.DailyTotals(c.Request.Context(), days)
	if err != nil {
		log.Error().Err(err).Msg("failed to load daily totals")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to retrieve statistics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"daily_totals": totals})
}

func (h *PaymentHandler) ExportPaymentsCSVAdmin(c *gin.Context) {
	filters, ok := parseAdminPaymentFilters(c)
	if !ok {
		return
	}

	csvBuffer, err := h.service.ExportPaymentsCSVAdmin(c.Request.Context(), filters)
	if err != nil {
		log.Error().Err(err).Msg("failed to export payments to CSV")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to export payments to CSV")
		return
	}

	fileName := fmt.Sprintf("payments_export_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", "attachment; filename="+fileName)
	c.Data(http.StatusOK, "text/csv", csvBuffer.Bytes())
}

// --- Webhook ---

// Webhook accepts gateway events. The HMAC over the raw body is verified
// before the payload is parsed or trusted.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Failed to read request body")
		return
	}

	signature := c.GetHeader(webhookSignatureHeader)
	if signature == "" || !gateway.VerifySignature(h.webhookSecret, body, signature) {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid webhook signature")
		return
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidInput, "Invalid webhook payload")
		return
	}

	if err := h.service.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		log.Error().Err(err).Str("event_type", event.Type).Msg("failed to apply webhook event")
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to process event")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// RegisterPaymentRoutes registers payment routes
func (h *PaymentHandler) RegisterPaymentRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc, adminMW gin.HandlerFunc) {
	paymentRoutes := rg.Group("/payments")
	paymentRoutes.Use(authMW) // All routes in this group require authentication
	{
		paymentRoutes.POST("/charge", h.Charge)
		paymentRoutes.POST("/refund", h.Refund) // Service layer checks admin-or-owner
		paymentRoutes.GET("", h.GetMyPayments)
	}

	// Admin-specific payment routes
	adminRoutes := rg.Group("/admin")
	adminRoutes.Use(authMW)  // Requires authentication
	adminRoutes.Use(adminMW) // Requires admin role
	{
		adminRoutes.GET("/payments", h.GetAllPaymentsAdmin)
		adminRoutes.GET("/stats", h.GetStatsAdmin)
		adminRoutes.GET("/payments/export/csv", h.ExportPaymentsCSVAdmin)
	}

	// Gateway webhook: authenticated by signature, not by session
	rg.POST("/webhooks/payment-gateway", h.Webhook)
}
