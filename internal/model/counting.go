package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Counting modes: where a scanned quantity was found.
const (
	ModeStore     = "loja"
	ModeStockroom = "estoque"
)

// ParseMode normalizes a counting mode. The English names are accepted as
// aliases.
func ParseMode(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ModeStore, "store":
		return ModeStore, nil
	case ModeStockroom, "stockroom":
		return ModeStockroom, nil
	default:
		return "", Invalid("mode must be loja or estoque")
	}
}

// DateLayout is the wire and storage format of expiry dates.
const DateLayout = "2006-01-02"

// ParseExpiryDate validates an optional YYYY-MM-DD date. The empty string
// means no expiry and is returned unchanged.
func ParseExpiryDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", Invalid("expiry date must be a valid YYYY-MM-DD date")
	}
	return d.Format(DateLayout), nil
}

// MaxQuantity bounds every scanned quantity and every accumulated total.
var MaxQuantity = decimal.New(1, 12)

// ErrQuantityTooLarge reports a quantity above MaxQuantity.
var ErrQuantityTooLarge = &ValidationError{Reason: "quantity exceeds the maximum of " + MaxQuantity.String()}

// Session statuses.
const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

// CountingSession is one counting pass of a tenant.
type CountingSession struct {
	ID        int64      `db:"id" json:"id"`
	TenantID  int64      `db:"tenant_id" json:"tenant_id"`
	Status    string     `db:"status" json:"status"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	ClosedAt  *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

// CountedItem accumulates the quantities counted for one (product, expiry)
// pair within a session.
type CountedItem struct {
	ID             int64           `json:"id"`
	SessionID      int64           `json:"session_id"`
	ProductID      int64           `json:"product_id"`
	ExpiryDate     *string         `json:"expiry_date"`
	QuantStore     decimal.Decimal `json:"quant_loja"`
	QuantStockroom decimal.Decimal `json:"quant_estoque"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	// Joined fields.
	ProductCode string `json:"product_code"`
	Description string `json:"description"`
	Barcode     string `json:"barcode"`
}

// CountStats summarizes the open session of a tenant.
type CountStats struct {
	Items          int             `json:"items"`
	QuantStore     decimal.Decimal `json:"quant_loja"`
	QuantStockroom decimal.Decimal `json:"quant_estoque"`
	Total          decimal.Decimal `json:"total"`
}
