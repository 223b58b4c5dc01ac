// Package order defines the synthetic order records submitted to the
// order-intake endpoint and the generator that produces them.
package order

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultInstrument is the instrument traded by every generated order unless overridden.
const DefaultInstrument = "BTC-USD"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type Type string

const (
	TypeLimit  Type = "limit"
	TypeMarket Type = "market"
)

// Order is the JSON body of a POST /orders request.
type Order struct {
	ClientID   string          `json:"clientId"`
	Instrument string          `json:"instrument"`
	Side       Side            `json:"side"`
	Type       Type            `json:"type"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
}

type wireOrder struct {
	ClientID   string      `json:"clientId"`
	Instrument string      `json:"instrument"`
	Side       Side        `json:"side"`
	Type       Type        `json:"type"`
	Price      json.Number `json:"price"`
	Quantity   json.Number `json:"quantity"`
}

// MarshalJSON encodes price and quantity as JSON numbers rather than the
// quoted strings decimal.Decimal produces by default.
func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOrder{
		ClientID:   o.ClientID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Type:       o.Type,
		Price:      json.Number(o.Price.String()),
		Quantity:   json.Number(o.Quantity.String()),
	})
}

// Validate reports whether the order satisfies the invariants every
// submitted order must hold.
func (o Order) Validate() error {
	switch o.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("order: invalid side %q", o.Side)
	}
	switch o.Type {
	case TypeLimit, TypeMarket:
	default:
		return fmt.Errorf("order: invalid type %q", o.Type)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("order: price must be > 0, got %s", o.Price)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("order: quantity must be > 0, got %s", o.Quantity)
	}
	if o.ClientID == "" {
		return fmt.Errorf("order: clientId is required")
	}
	if o.Instrument == "" {
		return fmt.Errorf("order: instrument is required")
	}
	return nil
}
