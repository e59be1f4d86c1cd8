package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/pkg/config"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
	"github.com/angelmondragon/chama-backend/pkg/outbox/payloads"
)

func TestResolveDecodesTransferPayload(t *testing.T) {
	reg := newTestEventRegistry(t, config.PubSubConfig{SettlementTopic: "settlement-topic"})
	transferID := uuid.New()
	rowID := uuid.New()
	data := mustMarshal(t, payloads.TransferSettledEvent{
		TransferID:      transferID,
		Kind:            enums.TransferKindDeposit,
		Status:          enums.TransferStatusCompleted,
		Amount:          decimal.NewFromInt(500),
		IdempotencyCode: "NLJ7RT61SV",
	})

	resolved, err := reg.Resolve(models.OutboxEvent{
		ID:            rowID,
		EventType:     enums.EventTransferCompleted,
		AggregateType: enums.AggregateTransfer,
		AggregateID:   transferID,
		Payload:       mustEnvelope(t, rowID.String(), data),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "settlement-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.TransferSettledEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.TransferID != transferID || !payload.Amount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID != rowID.String() {
		t.Fatalf("unexpected envelope id %q", resolved.Envelope.EventID)
	}
}

func TestCreditEventsFollowCreditTopic(t *testing.T) {
	shared := newTestEventRegistry(t, config.PubSubConfig{SettlementTopic: "settlement-topic"})
	split := newTestEventRegistry(t, config.PubSubConfig{SettlementTopic: "settlement-topic", CreditTopic: "credit-topic"})

	want := map[enums.OutboxEventType]string{
		enums.EventTransferCompleted:    "settlement-topic",
		enums.EventTransferFailed:       "settlement-topic",
		enums.EventRotationDisbursed:    "settlement-topic",
		enums.EventLoanApproved:         "credit-topic",
		enums.EventLoanRepaid:           "credit-topic",
		enums.EventLoanReaged:           "credit-topic",
		enums.EventDividendsDistributed: "credit-topic",
	}
	for eventType, topic := range want {
		if got := split.entries[eventType].Topic; got != topic {
			t.Fatalf("%s: expected %s got %q", eventType, topic, got)
		}
		if got := shared.entries[eventType].Topic; got != "settlement-topic" {
			t.Fatalf("%s: expected shared topic, got %q", eventType, got)
		}
	}
	if len(split.entries) != len(want) {
		t.Fatalf("expected %d registered events, got %d", len(want), len(split.entries))
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{CreditTopic: "credit-topic"}); err == nil {
		t.Fatal("expected missing settlement topic error")
	}
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	reg := newTestEventRegistry(t, config.PubSubConfig{SettlementTopic: "settlement-topic"})
	rowID := uuid.New()

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("member_joined"),
			AggregateType: enums.AggregateTransfer,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.NewString(), []byte(`{"reason":"none"}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventLoanRepaid,
			AggregateType: enums.AggregateTransfer,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.NewString(), []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventRotationDisbursed,
			AggregateType: enums.AggregateRotationSlot,
			Payload:       mustEnvelope(t, uuid.NewString(), []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventRotationDisbursed,
			AggregateType: enums.AggregateRotationSlot,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.NewString(), []byte("null")),
		},
		"event id mismatch": {
			ID:            rowID,
			EventType:     enums.EventLoanApproved,
			AggregateType: enums.AggregateSoftLoan,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, uuid.NewString(), []byte(`{}`)),
		},
		"broken envelope": {
			EventType:     enums.EventLoanApproved,
			AggregateType: enums.AggregateSoftLoan,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"data":`),
		},
	}
	for name, event := range cases {
		_, err := reg.Resolve(event)
		var nonRetry NonRetryableError
		if !errors.As(err, &nonRetry) {
			t.Fatalf("%s: expected non-retryable error, got %v", name, err)
		}
	}
}

func newTestEventRegistry(t *testing.T, cfg config.PubSubConfig) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, eventID string, payload []byte) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
