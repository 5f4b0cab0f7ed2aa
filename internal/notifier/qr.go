package notifier

import (
	"encoding/json"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

type qrPayload struct {
	Code     string `json:"code"`
	TicketID string `json:"ticketId"`
	Order    string `json:"order"`
}

// TicketQRData is the content encoded in a ticket's scannable code.
func TicketQRData(orderRef string, ticket TicketRef) string {
	raw, _ := json.Marshal(qrPayload{Code: ticket.Code, TicketID: ticket.ID, Order: orderRef})
	return string(raw)
}

// RenderQR encodes data as a PNG image.
func RenderQR(data string) ([]byte, error) {
	return qrcode.Encode(data, qrcode.Medium, qrSize)
}
