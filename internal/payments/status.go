package payments

import (
	"strings"

	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
)

var providerStatuses = map[string]models.OrderStatus{
	"approved":     models.OrderApproved,
	"pending":      models.OrderPending,
	"in_process":   models.OrderProcessing,
	"rejected":     models.OrderRejected,
	"cancelled":    models.OrderCancelled,
	"refunded":     models.OrderRefunded,
	"charged_back": models.OrderChargedBack,
}

// MapProviderStatus translates a provider payment status into an order status.
func MapProviderStatus(status string) models.OrderStatus {
	if s, ok := providerStatuses[strings.ToLower(strings.TrimSpace(status))]; ok {
		return s
	}
	return models.OrderUnknown
}
