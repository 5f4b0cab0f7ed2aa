package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/helpers"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/mercadopago"
	"github.com/cuencadelplata/ticketeate-sub002/internal/payments"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

// PaymentHandler is the part of the payment pipeline the webhook drives.
type PaymentHandler interface {
	HandlePayment(ctx context.Context, paymentID string) (*payments.Outcome, error)
}

type WebhookNotification struct {
	ID     mercadopago.ID `json:"id"`
	Type   string         `json:"type"`
	Action string         `json:"action"`
	Data   struct {
		ID mercadopago.ID `json:"id"`
	} `json:"data"`
}

type WebhookHandler struct {
	verifier *helpers.SignatureVerifier
	payments PaymentHandler
}

func NewWebhookHandler(verifier *helpers.SignatureVerifier, payments PaymentHandler) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, payments: payments}
}

// Receive answers 200 for everything except a bad signature so the provider
// does not keep retrying notifications we already logged.
func (h *WebhookHandler) Receive(c *gin.Context) {
	rawBody, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		logger.Warnf("[WEBHOOK_READ_FAILED] err=%v", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "unreadable body"})
		return
	}

	requestID := c.GetHeader(helpers.RequestIDHeader)
	if err := h.verifier.Verify(requestID, c.GetHeader(helpers.SignatureHeader), rawBody); err != nil {
		logger.Warnf("[SIGNATURE_REJECTED] request_id=%s ip=%s err=%v", requestID, c.ClientIP(), err)
		helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid webhook signature.")
		return
	}

	var notification WebhookNotification
	if len(rawBody) > 0 {
		if err := json.Unmarshal(rawBody, &notification); err != nil {
			logger.Warnf("[WEBHOOK_MALFORMED] request_id=%s err=%v", requestID, err)
		}
	}
	if notification.Type == "" {
		notification.Type = c.Query("type")
		if notification.Type == "" {
			notification.Type = c.Query("topic")
		}
	}
	paymentID := notification.Data.ID.String()
	if paymentID == "" {
		paymentID = c.Query("data.id")
	}
	if paymentID == "" {
		paymentID = c.Query("id")
	}

	if !isPaymentNotification(notification.Type, notification.Action) {
		logger.Debugf("[WEBHOOK_IGNORED] request_id=%s type=%s action=%s", requestID, notification.Type, notification.Action)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if paymentID == "" {
		logger.Warnf("[WEBHOOK_MALFORMED] request_id=%s payment notification without id", requestID)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": "missing payment id"})
		return
	}

	logger.Infof("[WEBHOOK_RECEIVED] request_id=%s action=%s payment_id=%s", requestID, notification.Action, paymentID)
	outcome, err := h.payments.HandlePayment(c.Request.Context(), paymentID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"received": true, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"orderId":  outcome.Reference,
		"status":   outcome.Status.Wire(),
	})
}

// Status lets the provider dashboard and operators check the endpoint.
func (h *WebhookHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "active",
		"endpoint":  c.FullPath(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func isPaymentNotification(kind, action string) bool {
	return kind == "payment" || strings.HasPrefix(action, "payment.")
}
