package model

import (
	"errors"
	"math"
	"time"
)

// Payment types seeded into the payment_types table.
const (
	PaymentCash       = "cash"
	PaymentCreditCard = "credit_card"
)

var (
	ErrReceiptNotFound     = errors.New("receipt not found")
	ErrInsufficientPayment = errors.New("insufficient payment amount")
	ErrUnknownPaymentType  = errors.New("unknown payment type")
	ErrInvalidReceipt      = errors.New("invalid receipt")
)

// Logger is the logging contract of the receipt domain.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Product is a single receipt line.
type Product struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

// Subtotal is price times quantity, unrounded.
func (p Product) Subtotal() float64 {
	return p.Price * p.Quantity
}

// Payment describes how the customer paid.
type Payment struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

// Receipt is a stored purchase with its lines.
type Receipt struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Products  []Product `json:"products"`
	Payment   Payment   `json:"payment"`
	Total     float64   `json:"total"`
	Rest      float64   `json:"rest"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter narrows a receipt listing.
type Filter struct {
	DateFrom    *time.Time
	DateTo      *time.Time
	MinTotal    *float64
	PaymentType string
	Offset      int
	Limit       int
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
