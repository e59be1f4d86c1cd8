package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateTransfer     OutboxAggregateType = "transfer"
	AggregateRotationSlot OutboxAggregateType = "rotation_slot"
	AggregateSoftLoan     OutboxAggregateType = "soft_loan"
	AggregateDividendPool OutboxAggregateType = "dividend_pool"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateTransfer,
	AggregateRotationSlot,
	AggregateSoftLoan,
	AggregateDividendPool,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventTransferCompleted    OutboxEventType = "transfer_completed"
	EventTransferFailed       OutboxEventType = "transfer_failed"
	EventRotationDisbursed    OutboxEventType = "rotation_disbursed"
	EventLoanApproved         OutboxEventType = "loan_approved"
	EventLoanRepaid           OutboxEventType = "loan_repaid"
	EventLoanReaged           OutboxEventType = "loan_reaged"
	EventDividendsDistributed OutboxEventType = "dividends_distributed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTransferCompleted,
	EventTransferFailed,
	EventRotationDisbursed,
	EventLoanApproved,
	EventLoanRepaid,
	EventLoanReaged,
	EventDividendsDistributed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
