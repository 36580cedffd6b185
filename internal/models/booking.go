package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, both on the wire and inside stored documents.
	decimal.MarshalJSONWithoutQuotes = true
}

type Booking struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	ServiceType   string            `json:"serviceType"`
	Status        string            `json:"status"`
	Date          string            `json:"date"`
	Time          string            `json:"time,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	Price         decimal.Decimal   `json:"price"`
	PaymentStatus string            `json:"paymentStatus"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	PaymentDate   *time.Time        `json:"paymentDate,omitempty"`
	AssignedTo    *string           `json:"assignedTo"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (b *Booking) IsPaid() bool {
	return b.PaymentStatus == PaymentPaid
}

// Detail returns a service-specific field, or "" when absent.
func (b *Booking) Detail(key string) string {
	if b.Details == nil {
		return ""
	}
	return b.Details[key]
}

// BookingFilter narrows a booking listing by equality. Empty fields match all.
type BookingFilter struct {
	UserID      string
	Status      string
	ServiceType string
}

// BookingSummary is the condensed view shown on the voyager receipt.
type BookingSummary struct {
	ID            string          `json:"id"`
	ServiceType   string          `json:"serviceType"`
	Status        string          `json:"status"`
	Date          string          `json:"date"`
	Time          string          `json:"time,omitempty"`
	Price         decimal.Decimal `json:"price"`
	PaymentStatus string          `json:"paymentStatus"`
	AssignedTo    *string         `json:"assignedTo"`
	WorkItemID    string          `json:"workItemId,omitempty"`
	WorkItemState string          `json:"workItemStatus,omitempty"`
}

// PaymentRequest carries the inputs of a mock payment.
type PaymentRequest struct {
	BookingID      string          `json:"-"`
	PaymentMethod  string          `json:"paymentMethod"`
	Amount         decimal.Decimal `json:"amount"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

type PaymentResult struct {
	BookingID  string `json:"bookingId"`
	Message    string `json:"message"`
	WorkItemID string `json:"workItemId,omitempty"`
}
