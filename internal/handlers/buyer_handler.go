package handlers

import (
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

type PurchaseResponse struct {
	OrderID     uuid.UUID       `json:"orderId"`
	EventID     uuid.UUID       `json:"eventId"`
	EventTitle  string          `json:"eventTitle"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	EventAt     time.Time       `json:"eventDate"`
	PurchasedAt time.Time       `json:"purchasedAt"`
}

type BuyerTicketResponse struct {
	TicketResponse
	ReservationID uuid.UUID `json:"reservationId"`
	Event         struct {
		ID       uuid.UUID `json:"id"`
		Title    string    `json:"title"`
		Location string    `json:"location"`
		Date     time.Time `json:"date"`
	} `json:"event"`
	Category struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	} `json:"category"`
}

var ticketStatusFilters = map[string]string{
	"valid":     models.TicketValid,
	"used":      models.TicketUsed,
	"cancelled": models.TicketCancelled,
}

func toBuyerTicketResponse(entry repository.BuyerTicket) BuyerTicketResponse {
	resp := BuyerTicketResponse{
		TicketResponse: toTicketResponse(entry.Ticket),
		ReservationID:  entry.Reservation.ID,
	}
	resp.Event.ID = entry.Event.ID
	resp.Event.Title = entry.Event.Title
	resp.Event.Location = entry.Event.Location
	resp.Event.Date = entry.Date.StartsAt
	resp.Category.Name = entry.Category.Name
	resp.Category.Price = entry.Category.Price
	return resp
}

// ListMyOrders is the authenticated buyer's order history: every checkout
// they started plus the purchases that completed.
func ListMyOrders(c *gin.Context) {
	buyerID, ok := middleware.CurrentUserID(c)
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
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" && raw != "all" {
		status, ok = orderStatusFilters[raw]
		if !ok {
			helpers.RespondWithError(c, http.StatusBadRequest, "Unknown order status.")
			return
		}
	}

	buyers := repository.NewBuyerRepo(gormDB)
	orders, total, err := buyers.ListOrders(c.Request.Context(), buyerID, status, page, limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving orders.")
		return
	}
	purchases, err := buyers.ListPurchases(c.Request.Context(), buyerID, page, limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving purchases.")
		return
	}

	orderData := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		orderData = append(orderData, toOrderResponse(&orders[i]))
	}
	purchaseData := make([]PurchaseResponse, 0, len(purchases))
	for _, p := range purchases {
		purchaseData = append(purchaseData, PurchaseResponse{
			OrderID:     p.OrderID,
			EventID:     p.EventID,
			EventTitle:  p.Event.Title,
			Quantity:    p.Quantity,
			TotalAmount: p.TotalAmount,
			Currency:    p.Currency,
			Status:      p.Status,
			EventAt:     p.EventAt,
			PurchasedAt: p.PurchasedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"orders":    orderData,
		"purchases": purchaseData,
		"pagination": gin.H{
			"total":       total,
			"page":        page,
			"limit":       limit,
			"total_pages": helpers.TotalPages(total, limit),
		},
	})
}

// ListMyTickets lists the tickets issued to the authenticated buyer,
// optionally for one event or in one status.
func ListMyTickets(c *gin.Context) {
	buyerID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	gormDB, ok := middleware.GetDB(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}

	page, limit, err := helpers.ParsePagination(c.DefaultQuery("page", "1"), c.DefaultQuery("limit", "50"))
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters.")
		return
	}
	var filter repository.TicketFilter
	if raw := c.Query("eventId"); raw != "" {
		filter.EventID, err = uuid.Parse(raw)
		if err != nil {
			helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
			return
		}
	}
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" && raw != "all" {
		filter.Status, ok = ticketStatusFilters[raw]
		if !ok {
			helpers.RespondWithError(c, http.StatusBadRequest, "Unknown ticket status.")
			return
		}
	}

	tickets, total, err := repository.NewBuyerRepo(gormDB).ListTickets(c.Request.Context(), buyerID, filter, page, limit)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	data := make([]BuyerTicketResponse, 0, len(tickets))
	for _, entry := range tickets {
		data = append(data, toBuyerTicketResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": data,
		"pagination": gin.H{
			"total":       total,
			"page":        page,
			"limit":       limit,
			"total_pages": helpers.TotalPages(total, limit),
		},
	})
}
