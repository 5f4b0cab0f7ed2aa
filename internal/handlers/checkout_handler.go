package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cuencadelplata/ticketeate-sub002/internal/helpers"
	"github.com/cuencadelplata/ticketeate-sub002/internal/logger"
	"github.com/cuencadelplata/ticketeate-sub002/internal/mercadopago"
	"github.com/cuencadelplata/ticketeate-sub002/internal/middleware"
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/cuencadelplata/ticketeate-sub002/internal/payments"
	"github.com/cuencadelplata/ticketeate-sub002/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PreferenceProvider creates and reads checkout preferences at the provider.
type PreferenceProvider interface {
	CreatePreference(ctx context.Context, sellerToken string, req mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	GetPreference(ctx context.Context, preferenceID string) (*mercadopago.Preference, error)
}

// SellerTokens hands out an organizer's MercadoPago credential. It reports
// repository.ErrSellerNotLinked and repository.ErrSellerTokenExpired.
type SellerTokens interface {
	AccessToken(ctx context.Context, sellerID uuid.UUID) (string, error)
}

type CheckoutItem struct {
	Title     string          `json:"title" binding:"required"`
	Quantity  int             `json:"quantity" binding:"required,min=1"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Currency  string          `json:"currency"`
}

type CheckoutRequest struct {
	ExternalReference string         `json:"externalReference" binding:"required,max=128"`
	SellerID          uuid.UUID      `json:"sellerId" binding:"required"`
	EventID           uuid.UUID      `json:"eventId" binding:"required"`
	DateID            string         `json:"dateId"`
	CategoryID        string         `json:"categoryId"`
	CategoryName      string         `json:"categoryName"`
	BuyerEmail        string         `json:"buyerEmail" binding:"omitempty,email"`
	BuyerName         string         `json:"buyerName"`
	Items             []CheckoutItem `json:"items" binding:"required,min=1,dive"`
}

type ValidateCheckoutRequest struct {
	EventID uuid.UUID `json:"eventId" binding:"required"`
}

type CheckoutOptions struct {
	FeePercent      decimal.Decimal
	Currency        string
	NotificationURL string
	BackURLs        mercadopago.BackURLs
}

type CheckoutHandler struct {
	provider PreferenceProvider
	orders   *repository.OrderRepo
	events   *repository.EventRepo
	sellers  SellerTokens
	opts     CheckoutOptions
}

func NewCheckoutHandler(provider PreferenceProvider, orders *repository.OrderRepo, events *repository.EventRepo, sellers SellerTokens, opts CheckoutOptions) *CheckoutHandler {
	if opts.Currency == "" {
		opts.Currency = "ARS"
	}
	return &CheckoutHandler{provider: provider, orders: orders, events: events, sellers: sellers, opts: opts}
}

// ValidateCheckout checks that an event can be bought right now: it exists,
// its organizer has a usable MercadoPago credential and some category still
// has stock. Nothing is reserved.
func (h *CheckoutHandler) ValidateCheckout(c *gin.Context) {
	var req ValidateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	buyerID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	ctx := c.Request.Context()

	event, err := h.events.FindByID(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}

	if _, err := h.sellers.AccessToken(ctx, event.SellerID); err != nil {
		if h.respondSellerError(c, err) {
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving organizer account.")
		return
	}

	onSale, err := h.events.CountOnSale(ctx, event.ID)
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error checking stock.")
		return
	}
	if onSale == 0 {
		helpers.RespondWithCode(c, http.StatusConflict, "NO_STOCK", "There are no tickets left for this event.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"eventId":   event.ID,
		"buyer":     gin.H{"id": buyerID},
		"organizer": gin.H{"id": event.SellerID},
		"event":     gin.H{"id": event.ID, "title": event.Title},
	})
}

// respondSellerError answers for the credential errors a buyer can act on.
func (h *CheckoutHandler) respondSellerError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, repository.ErrSellerNotLinked):
		helpers.RespondWithCode(c, http.StatusPaymentRequired, "WALLET_NOT_LINKED", "The organizer has not linked a MercadoPago account.")
	case errors.Is(err, repository.ErrSellerTokenExpired):
		helpers.RespondWithCode(c, http.StatusPaymentRequired, "WALLET_EXPIRED", "The organizer's MercadoPago link has expired.")
	default:
		return false
	}
	return true
}

func (h *CheckoutHandler) CreatePreference(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	buyerID, ok := middleware.CurrentUserID(c)
	if !ok {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	ctx := c.Request.Context()

	if existing, err := h.orders.FindByReference(ctx, req.ExternalReference); err == nil {
		h.respondExisting(c, existing, buyerID)
		return
	} else if !errors.Is(err, repository.ErrOrderNotFound) {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving order.")
		return
	}

	items := make([]models.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		currency := strings.ToUpper(strings.TrimSpace(item.Currency))
		if currency == "" {
			currency = h.opts.Currency
		}
		if !item.UnitPrice.IsPositive() || currency != h.opts.Currency {
			helpers.RespondWithError(c, http.StatusBadRequest, "Every item needs a positive unit price in "+h.opts.Currency+".")
			return
		}
		items = append(items, models.CartItem{Title: item.Title, Quantity: item.Quantity, UnitPrice: item.UnitPrice, Currency: currency})
	}

	sellerToken, err := h.sellers.AccessToken(ctx, req.SellerID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSellerNotLinked):
			helpers.RespondWithError(c, http.StatusBadRequest, "The organizer has not linked a MercadoPago account.")
		case errors.Is(err, repository.ErrSellerTokenExpired):
			helpers.RespondWithCode(c, http.StatusPaymentRequired, "WALLET_EXPIRED", "The organizer's MercadoPago link has expired.")
		default:
			helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving organizer account.")
		}
		return
	}

	total := payments.CartTotal(items)
	fee, net := payments.ComputeFee(total, h.opts.FeePercent)
	meta := models.OrderMetadata{
		BuyerID:      buyerID.String(),
		BuyerEmail:   strings.ToLower(strings.TrimSpace(req.BuyerEmail)),
		BuyerName:    strings.TrimSpace(req.BuyerName),
		EventID:      req.EventID.String(),
		DateID:       req.DateID,
		CategoryID:   req.CategoryID,
		CategoryName: req.CategoryName,
		Items:        items,
	}
	meta.Quantity = meta.Units()

	prefReq := mercadopago.PreferenceRequest{
		ExternalReference: req.ExternalReference,
		MarketplaceFee:    fee,
		NotificationURL:   h.opts.NotificationURL,
		Metadata: map[string]interface{}{
			"buyer_id": meta.BuyerID,
			"event_id": meta.EventID,
			"quantity": meta.Quantity,
		},
	}
	for _, item := range items {
		prefReq.Items = append(prefReq.Items, mercadopago.PreferenceItem{
			Title:      item.Title,
			Quantity:   item.Quantity,
			CurrencyID: item.Currency,
			UnitPrice:  item.UnitPrice,
		})
	}
	if meta.BuyerEmail != "" {
		prefReq.Payer = &mercadopago.PreferencePayer{Email: meta.BuyerEmail, Name: meta.BuyerName}
	}
	if h.opts.BackURLs != (mercadopago.BackURLs{}) {
		back := h.opts.BackURLs
		prefReq.BackURLs = &back
		if back.Success != "" {
			prefReq.AutoReturn = "approved"
		}
	}

	pref, err := h.provider.CreatePreference(ctx, sellerToken, prefReq)
	if err != nil {
		logger.Errorf("[PREFERENCE_FAILED] order_ref=%s seller=%s err=%v", req.ExternalReference, req.SellerID, err)
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create payment preference.")
		return
	}

	order := &models.Order{
		ExternalReference:    req.ExternalReference,
		PreferenceID:         pref.ID,
		SellerID:             req.SellerID,
		Amount:               total,
		MarketplaceFeeAmount: fee,
		Currency:             h.opts.Currency,
		Status:               models.OrderPending,
	}
	if err := order.SetMetadata(meta); err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to encode order metadata.")
		return
	}
	if err := h.orders.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			if existing, findErr := h.orders.FindByReference(ctx, req.ExternalReference); findErr == nil {
				h.respondExisting(c, existing, buyerID)
				return
			}
		}
		logger.Errorf("[ORDER_CREATE_FAILED] order_ref=%s err=%v", req.ExternalReference, err)
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create order.")
		return
	}

	logger.Infof("[ORDER_CREATED] order_ref=%s preference_id=%s total=%s fee=%s", order.ExternalReference, pref.ID, total, fee)
	c.JSON(http.StatusCreated, gin.H{
		"orderId":          order.ExternalReference,
		"preferenceId":     pref.ID,
		"initPoint":        pref.InitPoint,
		"sandboxInitPoint": pref.SandboxInitPoint,
		"amount":           total,
		"marketplaceFee":   fee,
		"netAmount":        net,
		"currency":         order.Currency,
		"status":           order.Status.Wire(),
	})
}

// respondExisting replays a checkout that already produced an order for the
// same buyer. The payment links are re-read from the provider when it answers.
// Anyone else reusing the reference gets a conflict and learns nothing about
// the order.
func (h *CheckoutHandler) respondExisting(c *gin.Context, order *models.Order, buyerID uuid.UUID) {
	meta, err := order.DecodeMetadata()
	if err != nil || meta.BuyerID != buyerID.String() {
		logger.Warnf("[CHECKOUT_REFERENCE_CONFLICT] order_ref=%s caller=%s", order.ExternalReference, buyerID)
		helpers.RespondWithError(c, http.StatusConflict, "This external reference is already in use.")
		return
	}

	body := gin.H{
		"orderId":        order.ExternalReference,
		"preferenceId":   order.PreferenceID,
		"amount":         order.Amount,
		"marketplaceFee": order.MarketplaceFeeAmount,
		"netAmount":      order.Amount.Sub(order.MarketplaceFeeAmount),
		"currency":       order.Currency,
		"status":         order.Status.Wire(),
	}
	if order.PreferenceID != "" {
		if pref, err := h.provider.GetPreference(c.Request.Context(), order.PreferenceID); err == nil {
			body["initPoint"] = pref.InitPoint
			body["sandboxInitPoint"] = pref.SandboxInitPoint
		} else {
			logger.Warnf("[PREFERENCE_LOOKUP_FAILED] order_ref=%s preference_id=%s err=%v", order.ExternalReference, order.PreferenceID, err)
		}
	}
	c.JSON(http.StatusOK, body)
}
