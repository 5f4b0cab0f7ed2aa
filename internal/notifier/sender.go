package notifier

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"
)

var ticketMail = template.Must(template.New("tickets").Parse(`<h1>¡Hola {{.BuyerName}}!</h1>
<p>Tu compra para <strong>{{.EventTitle}}</strong> fue confirmada.</p>
<p>Fecha: {{.EventAt.Format "02/01/2006 15:04"}}{{if .EventLocation}} · {{.EventLocation}}{{end}}</p>
{{if .CategoryName}}<p>Sector: {{.CategoryName}}</p>{{end}}
<p>Adjuntamos {{len .Tickets}} entrada(s). Presentá el código QR en el ingreso.</p>
<ul>{{range .Tickets}}<li>{{.Code}}</li>{{end}}</ul>
<p>Referencia de compra: {{.OrderReference}}</p>`))

// TicketSender renders one QR image per ticket and mails them to the buyer.
type TicketSender struct {
	mailer  Mailer
	timeout time.Duration
}

func NewTicketSender(mailer Mailer, timeout time.Duration) *TicketSender {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TicketSender{mailer: mailer, timeout: timeout}
}

func (s *TicketSender) Send(ctx context.Context, job Job) error {
	if job.BuyerEmail == "" {
		return fmt.Errorf("order %s: no buyer email", job.OrderReference)
	}
	if len(job.Tickets) == 0 {
		return fmt.Errorf("order %s: no tickets", job.OrderReference)
	}

	attachments := make([]Attachment, 0, len(job.Tickets))
	for _, t := range job.Tickets {
		png, err := RenderQR(TicketQRData(job.OrderReference, t))
		if err != nil {
			return fmt.Errorf("render qr for ticket %s: %w", t.Code, err)
		}
		attachments = append(attachments, Attachment{
			Filename: "entrada-" + t.Code + ".png",
			Content:  png,
		})
	}

	var body strings.Builder
	if err := ticketMail.Execute(&body, job); err != nil {
		return fmt.Errorf("render mail: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.mailer.Send(ctx, Message{
		To:          job.BuyerEmail,
		Subject:     "Tu entrada para " + job.EventTitle,
		HTML:        body.String(),
		Attachments: attachments,
	})
}
