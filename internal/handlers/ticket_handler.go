package handlers

import (
	"errors"
	"net/http"

	"github.com/cuencadelplata/ticketeate-sub002/internal/helpers"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/middleware"
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/cuencadelplata/ticketeate-sub002/internal/notifier"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"github.com/gin-gonic/gin"
)

type ValidateTicketRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetTicketQR renders the ticket's QR code for its buyer.
func GetTicketQR(c *gin.Context) {
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

	entry, err := repository.NewTicketRepo(gormDB).FindByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving ticket.")
		return
	}
	if entry.Reservation.BuyerID != userID {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to view this ticket.")
		return
	}

	var order models.Order
	if err := gormDB.WithContext(c.Request.Context()).First(&order, "id = ?", entry.Reservation.OrderID).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving order.")
		return
	}

	png, err := notifier.RenderQR(notifier.TicketQRData(order.ExternalReference, notifier.TicketRef{
		ID:   entry.Ticket.ID.String(),
		Code: entry.Ticket.Code,
	}))
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to render QR code.")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ValidateTicket marks a ticket as used at the door. Only the event's
// organizer may validate and a code is accepted once.
func ValidateTicket(c *gin.Context) {
	var req ValidateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
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

	entry, err := repository.NewTicketRepo(gormDB).MarkUsed(c.Request.Context(), req.Code, sellerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTicketNotFound):
			helpers.RespondWithError(c, http.StatusNotFound, "Ticket not found.")
		case errors.Is(err, repository.ErrForbidden):
			helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to validate this ticket.")
		case errors.Is(err, repository.ErrTicketNotValid):
			helpers.RespondWithError(c, http.StatusConflict, "Ticket was already used or cancelled.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to validate ticket.")
		}
		return
	}

	logger.Infof("[TICKET_USED] code=%s event=%s", entry.Ticket.Code, entry.Event.ID)
	c.JSON(http.StatusOK, gin.H{
		"message": "Ticket validated successfully.",
		"ticket":  toTicketResponse(entry.Ticket),
		"event": gin.H{
			"id":    entry.Event.ID,
			"title": entry.Event.Title,
		},
	})
}
