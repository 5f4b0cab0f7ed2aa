package mercadopago

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ID is a provider identifier that may be encoded as a JSON number or string.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

type Payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (p Payer) Name() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	}
	return p.LastName
}

// Payment is the canonical payment record returned by the provider.
type Payment struct {
	ID                ID              `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	ExternalReference string          `json:"external_reference"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	DateApproved      *time.Time      `json:"date_approved"`
	Payer             Payer           `json:"payer"`
	Order             struct {
		ID ID `json:"id"`
	} `json:"order"`
	AdditionalInfo struct {
		Items json.RawMessage `json:"items"`
	} `json:"additional_info"`
	Metadata map[string]interface{} `json:"metadata"`
}

// MerchantOrderID is empty when the payment is not attached to a merchant order.
func (p *Payment) MerchantOrderID() string {
	return p.Order.ID.String()
}

// RawLineItems returns the provider's item list untouched.
func (p *Payment) RawLineItems() json.RawMessage {
	return p.AdditionalInfo.Items
}

type paymentSearch struct {
	Results []Payment `json:"results"`
}

type PreferenceItem struct {
	ID         string          `json:"id,omitempty"`
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	CurrencyID string          `json:"currency_id"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// amount renders a decimal as a bare JSON number; the provider rejects quoted
// amounts.
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func (item PreferenceItem) MarshalJSON() ([]byte, error) {
	type plain PreferenceItem
	return json.Marshal(struct {
		plain
		UnitPrice json.Number `json:"unit_price"`
	}{plain(item), amount(item.UnitPrice)})
}

type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type PreferencePayer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type PreferenceRequest struct {
	Items             []PreferenceItem       `json:"items"`
	Payer             *PreferencePayer       `json:"payer,omitempty"`
	ExternalReference string                 `json:"external_reference"`
	MarketplaceFee    decimal.Decimal        `json:"marketplace_fee"`
	NotificationURL   string                 `json:"notification_url,omitempty"`
	BackURLs          *BackURLs              `json:"back_urls,omitempty"`
	AutoReturn        string                 `json:"auto_return,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
}

func (req PreferenceRequest) MarshalJSON() ([]byte, error) {
	type plain PreferenceRequest
	return json.Marshal(struct {
		plain
		MarketplaceFee json.Number `json:"marketplace_fee"`
	}{plain(req), amount(req.MarketplaceFee)})
}

type Preference struct {
	ID                string           `json:"id"`
	InitPoint         string           `json:"init_point"`
	SandboxInitPoint  string           `json:"sandbox_init_point"`
	ExternalReference string           `json:"external_reference"`
	MarketplaceFee    decimal.Decimal  `json:"marketplace_fee"`
	Items             []PreferenceItem `json:"items"`
}

// quantity in additional_info.items is sometimes a string.
func parseQuantity(v interface{}) int {
	switch q := v.(type) {
	case float64:
		return int(q)
	case string:
		n, _ := strconv.Atoi(q)
		return n
	}
	return 0
}

// LineItemUnits sums the quantities found in the raw line items.
func (p *Payment) LineItemUnits() int {
	if len(p.AdditionalInfo.Items) == 0 {
		return 0
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(p.AdditionalInfo.Items, &items); err != nil {
		return 0
	}
	units := 0
	for _, item := range items {
		units += parseQuantity(item["quantity"])
	}
	return units
}

type oauthRefreshRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

// OAuthToken is the provider's answer to a token grant.
type OAuthToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       ID     `json:"user_id"`
}

// ExpiresAt is the absolute expiry of a token issued at now.
func (t *OAuthToken) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}
