// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads before publishing.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
	"github.com/angelmondragon/chama-backend/pkg/outbox/payloads"
)

type family int

const (
	settlementFamily family = iota
	creditFamily
)

// EventDescriptor binds an event type to the aggregate it must carry, the
// topic it is published on and the payload it decodes into.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any

	family family
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, f family) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
		family:         f,
	}
}

var descriptors = []EventDescriptor{
	describe[payloads.TransferSettledEvent](enums.EventTransferCompleted, enums.AggregateTransfer, settlementFamily),
	describe[payloads.TransferSettledEvent](enums.EventTransferFailed, enums.AggregateTransfer, settlementFamily),
	describe[payloads.RotationDisbursedEvent](enums.EventRotationDisbursed, enums.AggregateRotationSlot, settlementFamily),
	describe[payloads.LoanEvent](enums.EventLoanApproved, enums.AggregateSoftLoan, creditFamily),
	describe[payloads.LoanEvent](enums.EventLoanRepaid, enums.AggregateSoftLoan, creditFamily),
	describe[payloads.LoanEvent](enums.EventLoanReaged, enums.AggregateSoftLoan, creditFamily),
	describe[payloads.DividendsDistributedEvent](enums.EventDividendsDistributed, enums.AggregateDividendPool, creditFamily),
}

// ResolvedEvent is a validated outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that will never publish; the publisher
// dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry assigns topics. Loan and dividend events go to the credit
// topic when one is configured.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	settlement := strings.TrimSpace(cfg.SettlementTopic)
	if settlement == "" {
		return nil, errors.New("settlement topic is required")
	}
	credit := strings.TrimSpace(cfg.CreditTopic)
	if credit == "" {
		credit = settlement
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		desc.Topic = settlement
		if desc.family == creditFamily {
			desc.Topic = credit
		}
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload. Every
// failure is non-retryable; a malformed row does not heal on retry.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("%s expects aggregate %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("%s row has no aggregate id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if event.ID != uuid.Nil && envelope.EventID != event.ID.String() {
		return nil, nonRetryable("envelope event id %q does not match row %s", envelope.EventID, event.ID)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
