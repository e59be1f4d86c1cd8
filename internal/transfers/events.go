package transfers

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
	"github.com/angelmondragon/chama-backend/pkg/outbox/payloads"
)

// EmitSettled queues transfer_completed or transfer_failed for t in tx.
func EmitSettled(ctx context.Context, events outbox.Emitter, tx *gorm.DB, t *models.Transfer) error {
	eventType := enums.EventTransferCompleted
	if t.Status == enums.TransferStatusFailed {
		eventType = enums.EventTransferFailed
	}
	data := payloads.TransferSettledEvent{
		TransferID:      t.ID,
		Kind:            t.Kind,
		Status:          t.Status,
		Amount:          t.Amount,
		MemberID:        t.MemberID,
		GroupID:         t.GroupID,
		ActivityID:      t.ActivityID,
		IdempotencyCode: t.IdempotencyCode,
	}
	if t.ReceiptCode != nil {
		data.ReceiptCode = *t.ReceiptCode
	}
	if t.FailureReason != nil {
		data.FailureReason = *t.FailureReason
	}
	if t.CompletedAt != nil {
		data.SettledAt = t.CompletedAt.UTC()
	}
	return events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransfer,
		AggregateID:   t.ID,
		Data:          data,
		OccurredAt:    data.SettledAt,
	})
}
