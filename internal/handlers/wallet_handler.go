package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/cuencadelplata/ticketeate-sub002/internal/helpers"
	"github.com/cuencadelplata/ticketeate-sub002/internal/middleware"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"github.com/cuencadelplata/ticketeate-sub002/internal/wallet"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type WalletRefresher interface {
	Refresh(ctx context.Context, sellerID uuid.UUID) (*wallet.Refreshed, error)
}

type WalletHandler struct {
	wallets WalletRefresher
}

func NewWalletHandler(wallets WalletRefresher) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// Refresh renews the authenticated organizer's MercadoPago token.
func (h *WalletHandler) Refresh(c *gin.Context) {
	sellerID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	res, err := h.wallets.Refresh(c.Request.Context(), sellerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSellerNotLinked):
			helpers.RespondWithError(c, http.StatusBadRequest, "No MercadoPago account is linked.")
		case errors.Is(err, wallet.ErrRefreshFailed):
			helpers.RespondWithCode(c, http.StatusUnauthorized, "REFRESH_FAILED", "Could not renew the MercadoPago token. Please link your account again.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Error refreshing token.")
		}
		return
	}

	if !res.Renewed {
		c.JSON(http.StatusOK, gin.H{
			"message":   "Token still valid",
			"expiresIn": int64(res.ExpiresIn.Seconds()),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Token refreshed",
		"expiresIn": int64(res.ExpiresIn.Seconds()),
		"expiresAt": res.ExpiresAt,
	})
}
