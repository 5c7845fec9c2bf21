package transform

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExternalID accepts Shopify ids sent as JSON numbers or strings.
type ExternalID string

func (id *ExternalID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*id = ExternalID(strings.TrimSpace(value))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*id = ExternalID(number.String())
	return nil
}

func (id ExternalID) String() string {
	return string(id)
}

// Money is a nullable decimal; null, absent and "" all decode as not set.
type Money struct {
	decimal.NullDecimal
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	m.NullDecimal = decimal.NullDecimal{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return err
	}
	m.NullDecimal = decimal.NullDecimal{Decimal: value, Valid: true}
	return nil
}

// Timestamp decodes RFC3339 source timestamps; null and "" decode as unset.
type Timestamp struct {
	value *time.Time
}

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	ts.value = nil
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return err
	}
	parsed = parsed.UTC()
	ts.value = &parsed
	return nil
}

func (ts Timestamp) Time() *time.Time {
	if ts.value == nil {
		return nil
	}
	value := *ts.value
	return &value
}

type customerPayload struct {
	ID        ExternalID `json:"id"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Phone     string     `json:"phone"`
	CreatedAt Timestamp  `json:"created_at"`
	UpdatedAt Timestamp  `json:"updated_at"`
}

type orderPayload struct {
	ID                ExternalID       `json:"id"`
	OrderNumber       ExternalID       `json:"order_number"`
	Email             string           `json:"email"`
	TotalPrice        Money            `json:"total_price"`
	SubtotalPrice     Money            `json:"subtotal_price"`
	TotalTax          Money            `json:"total_tax"`
	TaxPrice          Money            `json:"tax_price"`
	Currency          string           `json:"currency"`
	FinancialStatus   string           `json:"financial_status"`
	FulfillmentStatus string           `json:"fulfillment_status"`
	Customer          *customerPayload `json:"customer"`
	CreatedAt         Timestamp        `json:"created_at"`
	UpdatedAt         Timestamp        `json:"updated_at"`
}

type variantPayload struct {
	Price Money  `json:"price"`
	SKU   string `json:"sku"`
}

type productPayload struct {
	ID          ExternalID       `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Status      string           `json:"status"`
	Tags        string           `json:"tags"`
	Variants    []variantPayload `json:"variants"`
	CreatedAt   Timestamp        `json:"created_at"`
	UpdatedAt   Timestamp        `json:"updated_at"`
}

// SplitTags splits a comma-separated tag list, trimming and dropping empties.
func SplitTags(tags string) []string {
	parts := strings.Split(tags, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
