package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/dbtest"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

func deadLetter(t *testing.T, client *db.Client, reason enums.OutboxDLQErrorReason) models.OutboxEvent {
	t.Helper()
	msg := "publish: deadline exceeded"
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventLoanRepaid,
		AggregateType: enums.AggregateSoftLoan,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  10,
		LastError:     &msg,
	}
	repo := NewDLQRepository(client.DB())
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		return repo.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		})
	}))
	return event
}

func TestReplayRequeuesMaxAttemptsEvent(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	event := deadLetter(t, client, enums.OutboxDLQReasonMaxAttempts)

	var replayed *models.OutboxDLQ
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		replayed, err = repo.ReplayTx(tx, event.ID, false)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, replayed.ErrorReason)

	var row models.OutboxEvent
	require.NoError(t, client.DB().First(&row, "id = ?", event.ID).Error)
	assert.Zero(t, row.AttemptCount)
	assert.Nil(t, row.LastError)

	gone, err := repo.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestReplayRefusesNonReplayableUnlessForced(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	event := deadLetter(t, client, enums.OutboxDLQReasonNonRetryable)
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := repo.ReplayTx(tx, event.ID, false)
		return err
	})
	assert.True(t, errors.Is(err, ErrNotReplayable), "got %v", err)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := repo.ReplayTx(tx, event.ID, true)
		return err
	}))
}

func TestReplayUnknownOrPublishedEvent(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewDLQRepository(client.DB())
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := repo.ReplayTx(tx, uuid.New(), true)
		return err
	})
	assert.True(t, errors.Is(err, ErrNotDeadLettered), "got %v", err)

	event := deadLetter(t, client, enums.OutboxDLQReasonMaxAttempts)
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Where("id = ?", event.ID).
		Update("published_at", time.Now().UTC()).Error)
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := repo.ReplayTx(tx, event.ID, false)
		return err
	})
	assert.True(t, errors.Is(err, ErrEventGone), "got %v", err)
}

func TestInsertTruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("a", maxDLQErrorLen-1) + "é"
	got := truncate(long, maxDLQErrorLen)
	assert.Equal(t, maxDLQErrorLen-1, len(got))
	assert.Equal(t, "abc", truncate("abc", maxDLQErrorLen))
}
