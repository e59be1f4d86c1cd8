package outbox

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
)

const maxDLQErrorLen = 1024

var (
	ErrNotDeadLettered = errors.New("event is not dead-lettered")
	ErrNotReplayable   = errors.New("dead-letter reason is not replayable")
	ErrEventGone       = errors.New("outbox row already published or pruned")
)

// DLQRepository stores settlement events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncate(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns the latest DLQ entry for eventID, or nil.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	return r.latest(r.db.WithContext(ctx), eventID)
}

// ReplayTx hands a dead-lettered event back to the publisher with a fresh
// attempt budget and clears its DLQ entries. Only reasons that can succeed
// unchanged are replayed unless force is set.
func (r *DLQRepository) ReplayTx(tx *gorm.DB, eventID uuid.UUID, force bool) (*models.OutboxDLQ, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	entry, err := r.latest(tx, eventID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNotDeadLettered
	}
	if !force && !entry.ErrorReason.Replayable() {
		return nil, fmt.Errorf("%w: %s", ErrNotReplayable, entry.ErrorReason)
	}

	res := tx.Model(&models.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", eventID).
		Updates(map[string]any{"attempt_count": 0, "last_error": nil})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrEventGone
	}
	if err := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *DLQRepository) latest(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := tx.Where("event_id = ?", eventID).Order("failed_at DESC").First(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
