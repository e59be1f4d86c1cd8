package gateway

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// ResultCodeSuccess is the gateway's success code for every call type.
const ResultCodeSuccess = 0

// Result is a gateway outcome parsed at the boundary. Code is the request id the
// transfer was anchored to when the payment was initiated.
type Result struct {
	Kind           enums.TransferKind
	Code           string
	ConversationID string
	ResultCode     int
	ResultDesc     string
	Amount         decimal.Decimal
	Receipt        string
	Phone          string
	TransactionAt  time.Time
	// Pending is only set by status queries for payments still in flight.
	Pending bool
}

func (r Result) Succeeded() bool {
	return !r.Pending && r.ResultCode == ResultCodeSuccess
}

// HasPayment reports whether the result carries the amount and receipt a success needs.
func (r Result) HasPayment() bool {
	return r.Amount.IsPositive() && r.Receipt != ""
}
