package payments

import (
	"github.com/cuencadelplata/ticketeate-sub002/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeFee splits total into the marketplace fee (percent of total, rounded
// to cents) and what the organizer receives.
func ComputeFee(total, percent decimal.Decimal) (fee, net decimal.Decimal) {
	fee = total.Mul(percent).Div(hundred).Round(2)
	net = total.Sub(fee)
	return fee, net
}

func CartTotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}
