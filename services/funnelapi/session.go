package funnelapi

import (
	"fmt"
	"time"
)

type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusProcessing SessionStatus = "processing"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusFailed     SessionStatus = "failed"
)

// rank orders statuses so that a session only ever moves forward:
// pending -> processing -> {completed|failed}.
func (s SessionStatus) rank() int {
	switch s {
	case SessionStatusPending:
		return 0
	case SessionStatusProcessing:
		return 1
	case SessionStatusCompleted, SessionStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo tells whether moving to the given status is a forward move.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	if s.rank() >= 2 {
		// completed and failed are terminal
		return false
	}
	return next.rank() > s.rank()
}

// Funnel step labels. The funnel starts at checkout, walks the upsell steps
// in order and ends at complete.
const (
	StepCheckout = "checkout"
	StepComplete = "complete"
)

func UpsellStepName(n int) string {
	return fmt.Sprintf("upsell-%d", n)
}

// Session is the durable record of one checkout attempt. It is the single
// source of truth that all workflows read-modify-write through the session
// store.
type Session struct {
	UID             string
	Status          SessionStatus
	CurrentStep     string
	CreatedAt       time.Time
	LastModified    *time.Time
	Customer        Customer
	Products        []Product
	CouponCode      string
	VaultUID        string
	TransactionUID  string
	UpsellsAccepted []string
	UpsellsDeclined []string
	LastErrorCode   string
	Metadata        []Meta `datastore:",noindex"`
}

// TotalAmountInCents is the initial order total.
func (s Session) TotalAmountInCents() int64 {
	var total int64
	for _, p := range s.Products {
		total += p.UnitPriceInCents * int64(p.Quantity)
	}
	return total
}

func (s Session) Currency() string {
	if len(s.Products) > 0 {
		return s.Products[0].Currency
	}
	return ""
}

// MetaValue returns the last value stored for the given metadata key.
func (s Session) MetaValue(key string) string {
	value := ""
	for _, m := range s.Metadata {
		if m.Key == key {
			value = m.Value
		}
	}
	return value
}

func (s Session) HasDecidedUpsell(productUID string) bool {
	for _, uid := range s.UpsellsAccepted {
		if uid == productUID {
			return true
		}
	}
	for _, uid := range s.UpsellsDeclined {
		if uid == productUID {
			return true
		}
	}
	return false
}

type Customer struct {
	Email       string  `form:"email"`
	FirstName   string  `form:"firstName"`
	LastName    string  `form:"lastName"`
	PhoneNumber string  `form:"phone"`
	Address     Address `form:"address"`
}

func (c Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

type Address struct {
	Street      string `form:"street"`
	HouseNumber string `form:"houseNumber"`
	PostalCode  string `form:"postalCode"`
	City        string `form:"city"`
	State       string `form:"state"`
	Country     string `form:"country"`
}

type Product struct {
	UID              string `form:"uid"`
	Name             string `form:"name"`
	UnitPriceInCents int64  `form:"unitPriceInCents"`
	Currency         string `form:"currency"`
	Quantity         int    `form:"quantity"`
}

// Meta is a key-value pair: the datastore does not support maps, so free-form
// metadata (coupon, tax breakdown, billing info) is stored as a slice.
type Meta struct {
	Key   string
	Value string `datastore:",noindex"`
}
