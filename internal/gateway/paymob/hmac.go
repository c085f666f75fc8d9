package paymob

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"
)

// Callback is the flattened payment outcome carried by a gateway
// notification.
type Callback struct {
	TransactionID   int64
	OrderID         int64
	MerchantOrderID string
	AmountCents     int64
	Currency        string
	CreatedAt       string
	Pending         bool
	Success         bool
	SourcePan       string
	SourceType      string
	SourceSubType   string
}

// ExternalID is the gateway transaction id as stored on the payment
// record.
func (c Callback) ExternalID() string {
	return strconv.FormatInt(c.TransactionID, 10)
}

// Notification is the webhook body as the gateway sends it. The HMAC
// signature arrives as the `hmac` query parameter.
type Notification struct {
	Type string `json:"type"`
	Obj  struct {
		ID          int64  `json:"id"`
		Pending     bool   `json:"pending"`
		AmountCents int64  `json:"amount_cents"`
		Success     bool   `json:"success"`
		Currency    string `json:"currency"`
		CreatedAt   string `json:"created_at"`
		Order       struct {
			ID              int64  `json:"id"`
			MerchantOrderID string `json:"merchant_order_id"`
		} `json:"order"`
		SourceData struct {
			Pan     string `json:"pan"`
			Type    string `json:"type"`
			SubType string `json:"sub_type"`
		} `json:"source_data"`
	} `json:"obj"`
}

func (n *Notification) Callback() Callback {
	return Callback{
		TransactionID:   n.Obj.ID,
		OrderID:         n.Obj.Order.ID,
		MerchantOrderID: n.Obj.Order.MerchantOrderID,
		AmountCents:     n.Obj.AmountCents,
		Currency:        n.Obj.Currency,
		CreatedAt:       n.Obj.CreatedAt,
		Pending:         n.Obj.Pending,
		Success:         n.Obj.Success,
		SourcePan:       n.Obj.SourceData.Pan,
		SourceType:      n.Obj.SourceData.Type,
		SourceSubType:   n.Obj.SourceData.SubType,
	}
}

// signaturePayload concatenates the notification fields in the fixed
// order the gateway signs them in.
func signaturePayload(cb Callback) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(cb.AmountCents, 10))
	b.WriteString(cb.CreatedAt)
	b.WriteString(cb.Currency)
	b.WriteString(strconv.FormatInt(cb.TransactionID, 10))
	b.WriteString(strconv.FormatInt(cb.OrderID, 10))
	b.WriteString(strconv.FormatBool(cb.Pending))
	b.WriteString(cb.SourcePan)
	b.WriteString(cb.SourceSubType)
	b.WriteString(cb.SourceType)
	b.WriteString(strconv.FormatBool(cb.Success))
	return b.String()
}

// Sign computes the keyed hash over the ordered notification fields.
func (c *Client) Sign(cb Callback) string {
	mac := hmac.New(sha512.New, []byte(c.hmacSecret))
	mac.Write([]byte(signaturePayload(cb)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCallback checks the supplied signature in constant time.
func (c *Client) VerifyCallback(cb Callback, signature string) bool {
	want := c.Sign(cb)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(signature)))
}
