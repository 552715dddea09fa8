package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// STKCallbackEnvelope is the body M-Pesa posts to the callback URL.
type STKCallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string           `json:"MerchantRequestID"`
	CheckoutRequestID string           `json:"CheckoutRequestID"`
	ResultCode        int              `json:"ResultCode"`
	ResultDesc        string           `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetaSet `json:"CallbackMetadata,omitempty"`
}

type CallbackMetaSet struct {
	Item []CallbackMetaItem `json:"Item"`
}

// CallbackMetaItem values arrive as JSON numbers or strings depending on the field.
type CallbackMetaItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// ParseSTKCallback decodes a raw callback body.
func ParseSTKCallback(raw []byte) (*STKCallback, error) {
	var env STKCallbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode stk callback: %w", err)
	}
	cb := env.Body.STKCallback
	if cb.CheckoutRequestID == "" && cb.MerchantRequestID == "" {
		return nil, fmt.Errorf("decode stk callback: missing correlation identifiers")
	}
	return &cb, nil
}

// Succeeded reports whether the gateway considers the charge paid.
func (c *STKCallback) Succeeded() bool { return c.ResultCode == 0 }

func (c *STKCallback) meta(name string) (string, bool) {
	if c.CallbackMetadata == nil {
		return "", false
	}
	for _, it := range c.CallbackMetadata.Item {
		if !strings.EqualFold(it.Name, name) || len(it.Value) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(it.Value, &s); err == nil {
			return s, s != ""
		}
		// Numbers: keep their literal form so 254708374149 does not become 2.54708374149e+11.
		lit := strings.TrimSpace(string(it.Value))
		if lit == "null" {
			return "", false
		}
		return lit, true
	}
	return "", false
}

func (c *STKCallback) ReceiptNumber() string {
	v, _ := c.meta("MpesaReceiptNumber")
	return v
}

func (c *STKCallback) PhoneNumber() string {
	v, _ := c.meta("PhoneNumber")
	return v
}

func (c *STKCallback) TransactionDate() string {
	v, _ := c.meta("TransactionDate")
	return v
}

// Amount returns the paid amount in whole KES, or 0 when absent.
func (c *STKCallback) Amount() int64 {
	v, ok := c.meta("Amount")
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
