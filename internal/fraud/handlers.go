package fraud

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/fraudguard/internal/logging"
	"github.com/mbd888/fraudguard/internal/pagination"
	"github.com/mbd888/fraudguard/internal/validation"
)

// Handler provides the HTTP surface for the decision engine.
type Handler struct {
	service *Service
}

// NewHandler creates a fraud prevention handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the fraud prevention routes on the given group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.CreateAttempt)
	r.GET("", h.ListAttempts)
	r.GET("/:id", h.GetAttempt)
	r.GET("/transaction/:transactionId", h.GetByTransaction)
	r.GET("/user/:userId", h.ListByUser)
	r.PATCH("/:id", h.UpdateAttempt)
	r.POST("/:id/block", h.BlockTransaction)
}

// CreateRequest is the POST body for a new attempt.
type CreateRequest struct {
	TransactionID  string         `json:"transactionId" binding:"required"`
	UserIP         string         `json:"userIp" binding:"required"`
	DeviceID       string         `json:"deviceId"`
	UserID         string         `json:"userId" binding:"required"`
	AdditionalData map[string]any `json:"additionalData"`
}

// UpdateRequest is the PATCH body. Pointer fields distinguish "absent"
// from zero values so only supplied fields are merged.
type UpdateRequest struct {
	RiskLevel    *string `json:"riskLevel"`
	IsBlocked    *bool   `json:"isBlocked"`
	BlockReason  *string `json:"blockReason"`
	AttemptCount *int    `json:"attemptCount"`
}

// BlockRequest is the POST body for blocking a transaction.
type BlockRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreateAttempt handles POST /api/fraud-preventions
func (h *Handler) CreateAttempt(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("transactionId", req.TransactionID),
		validation.MaxLength("transactionId", req.TransactionID, validation.MaxTransactionIDLen),
		validation.Required("userIp", req.UserIP),
		validation.MaxLength("userIp", req.UserIP, validation.MaxUserIPLen),
		validation.Required("userId", req.UserID),
		validation.MaxLength("userId", req.UserID, validation.MaxUserIDLen),
		validation.MaxLength("deviceId", req.DeviceID, validation.MaxDeviceIDLen),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": errs.Error(),
			"fields":  errs,
		})
		return
	}

	rec, err := h.service.Create(c.Request.Context(), CreateInput{
		TransactionID:  req.TransactionID,
		UserIP:         req.UserIP,
		DeviceID:       req.DeviceID,
		UserID:         req.UserID,
		AdditionalData: req.AdditionalData,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// ListAttempts handles GET /api/fraud-preventions?page=N&limit=M
func (h *Handler) ListAttempts(c *gin.Context) {
	params, err := pagination.Parse(c.Query("page"), c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_pagination",
			"message": err.Error(),
		})
		return
	}

	records, total, err := h.service.List(c.Request.Context(), params.Offset(), params.Limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []*AttemptRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  records,
		"total": total,
		"page":  params.Page,
		"pages": pagination.Pages(total, params.Limit),
	})
}

// GetAttempt handles GET /api/fraud-preventions/:id
func (h *Handler) GetAttempt(c *gin.Context) {
	rec, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetByTransaction handles GET /api/fraud-preventions/transaction/:transactionId
func (h *Handler) GetByTransaction(c *gin.Context) {
	rec, err := h.service.GetByTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListByUser handles GET /api/fraud-preventions/user/:userId
func (h *Handler) ListByUser(c *gin.Context) {
	records, err := h.service.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if records == nil {
		records = []*AttemptRecord{}
	}
	c.JSON(http.StatusOK, records)
}

// UpdateAttempt handles PATCH /api/fraud-preventions/:id
func (h *Handler) UpdateAttempt(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	var upd Update
	if req.RiskLevel != nil {
		level, err := ParseRiskLevel(*req.RiskLevel)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_risk_level",
				"message": "riskLevel must be one of: low, medium, high, critical",
			})
			return
		}
		upd.RiskLevel = &level
	}
	upd.IsBlocked = req.IsBlocked
	upd.BlockReason = req.BlockReason
	upd.AttemptCount = req.AttemptCount

	if upd.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "No updatable fields supplied",
		})
		return
	}

	rec, err := h.service.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// BlockTransaction handles POST /api/fraud-preventions/:id/block
func (h *Handler) BlockTransaction(c *gin.Context) {
	var req BlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}

	rec, err := h.service.Block(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// writeError maps engine errors to HTTP responses. Raw storage error text
// is never echoed to clients.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Fraud prevention record not found",
		})
	case errors.Is(err, ErrInvalidRiskLevel):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_risk_level",
			"message": "riskLevel must be one of: low, medium, high, critical",
		})
	case errors.Is(err, ErrEmptyBlockReason):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason must not be empty",
		})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "conflict",
			"message": "Record was modified concurrently, retry the request",
		})
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		logging.L(c.Request.Context()).Warn("storage timed out", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Storage unavailable, retry later",
		})
	default:
		logging.L(c.Request.Context()).Error("fraud operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}
}
