package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the closed set of parser outcomes. payment and unknown are
// recognized but unhandled: the consumer dead-letters them without retrying.
type EventType string

const (
	EventTransaction  EventType = "transaction"
	EventCreditUpdate EventType = "credit_update"
	EventPayment      EventType = "payment"
	EventUnknown      EventType = "unknown"
)

// ParsedEvent is the tagged union of parser results. Exactly one of the
// data fields is set, matching Type.
type ParsedEvent struct {
	Type         EventType
	Transaction  *ParsedTransaction
	CreditUpdate *ParsedCreditUpdate
}

// ParsedTransaction is an extracted transaction. Deposits carry a positive
// amount, withdrawals a negative one; the parser applies the sign, not the
// raw number in the email.
type ParsedTransaction struct {
	Amount       decimal.Decimal
	Date         time.Time
	Name         string
	MerchantName string
	CardLast4    string
	Pending      bool
}

// ParsedCreditUpdate is an extracted available-credit update
type ParsedCreditUpdate struct {
	AvailableCredit decimal.Decimal
	CardLast4       string
	Date            time.Time
}
