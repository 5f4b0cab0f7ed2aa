package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cuencadelplata/ticketeate-sub002/internal/helpers"
	"github.com/cuencadelplata/ticketeate-sub002/internal/middleware"
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderResponse struct {
	OrderID        string           `json:"orderId"`
	PreferenceID   string           `json:"preferenceId"`
	PaymentID      *string          `json:"paymentId"`
	SellerID       uuid.UUID        `json:"sellerId"`
	Amount         decimal.Decimal  `json:"amount"`
	MarketplaceFee decimal.Decimal  `json:"marketplaceFee"`
	Currency       string           `json:"currency"`
	Status         string           `json:"status"`
	PaidAt         *time.Time       `json:"paidAt"`
	CreatedAt      time.Time        `json:"createdAt"`
	Tickets        []TicketResponse `json:"tickets,omitempty"`
}

type TicketResponse struct {
	ID     uuid.UUID  `json:"id"`
	Code   string     `json:"code"`
	Status string     `json:"status"`
	UsedAt *time.Time `json:"usedAt"`
}

func toOrderResponse(order *models.Order) OrderResponse {
	return OrderResponse{
		OrderID:        order.ExternalReference,
		PreferenceID:   order.PreferenceID,
		PaymentID:      order.PaymentID,
		SellerID:       order.SellerID,
		Amount:         order.Amount,
		MarketplaceFee: order.MarketplaceFeeAmount,
		Currency:       order.Currency,
		Status:         order.Status.Wire(),
		PaidAt:         order.PaidAt,
		CreatedAt:      order.CreatedAt,
	}
}

func toTicketResponse(ticket models.Ticket) TicketResponse {
	return TicketResponse{ID: ticket.ID, Code: ticket.Code, Status: ticket.Status, UsedAt: ticket.UsedAt}
}

var orderStatusFilters = map[string]models.OrderStatus{
	"pending":      models.OrderPending,
	"processing":   models.OrderProcessing,
	"approved":     models.OrderApproved,
	"rejected":     models.OrderRejected,
	"cancelled":    models.OrderCancelled,
	"refunded":     models.OrderRefunded,
	"charged_back": models.OrderChargedBack,
	"unknown":      models.OrderUnknown,
}

// ListOrders lists the authenticated organizer's orders.
func ListOrders(c *gin.Context) {
	sellerID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	gormDB, ok := middleware.GetDB(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	page, limit, err := helpers.ParsePagination(c.DefaultQuery("page", "1"), c.DefaultQuery("limit", "10"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters.")
		return
	}

	var status models.OrderStatus
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" {
		status, ok = orderStatusFilters[raw]
		if !ok {
			helpers.RespondWithError(c, http.StatusBadRequest, "Unknown order status.")
			return
		}
	}

	orders, total, err := repository.NewOrderRepo(gormDB).ListBySeller(c.Request.Context(), sellerID, status, page, limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving orders.")
		return
	}

	data := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		data = append(data, toOrderResponse(&orders[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"orders": data,
		"pagination": gin.H{
			"total":       total,
			"page":        page,
			"limit":       limit,
			"total_pages": helpers.TotalPages(total, limit),
		},
	})
}

// GetOrder shows one order with its tickets to its seller or its buyer.
func GetOrder(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	gormDB, ok := middleware.GetDB(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	ctx := c.Request.Context()

	order, err := repository.NewOrderRepo(gormDB).FindByReference(ctx, c.Param("reference"))
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Order not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving order.")
		return
	}

	meta, _ := order.DecodeMetadata()
	if order.SellerID != userID && meta.BuyerID != userID.String() {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view this order.")
		return
	}

	tickets, err := repository.NewTicketRepo(gormDB).ListByOrder(ctx, order.ID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	resp := toOrderResponse(order)
	for _, ticket := range tickets {
		resp.Tickets = append(resp.Tickets, toTicketResponse(ticket))
	}
	c.JSON(http.StatusOK, resp)
}
