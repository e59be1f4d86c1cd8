package transfers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	"github.com/angelmondragon/chama-backend/pkg/pagination"
)

// Repository persists the pending-transfer ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transfer *models.Transfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	FindByRequestCode(ctx context.Context, code string) (*models.Transfer, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	FindPendingByCodeForUpdate(ctx context.Context, code string, kind enums.TransferKind) (*models.Transfer, error)
	ListPendingByMember(ctx context.Context, memberID uuid.UUID, kind enums.TransferKind) ([]models.Transfer, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Transfer, error)
	ListByMember(ctx context.Context, params ListByMemberParams) ([]models.Transfer, *pagination.Cursor, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, receipt string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	AttachGatewayRef(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error)
	IncrementPollAttempts(ctx context.Context, id uuid.UUID) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transfers repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transfer *models.Transfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	var transfer models.Transfer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) FindByRequestCode(ctx context.Context, code string) (*models.Transfer, error) {
	var transfer models.Transfer
	if err := r.db.WithContext(ctx).Where("request_code = ?", code).First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	var transfer models.Transfer
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

// FindPendingByCodeForUpdate locks the pending row anchored to code. Amount, phone
// and day are checked by the caller against the locked row.
func (r *repository) FindPendingByCodeForUpdate(ctx context.Context, code string, kind enums.TransferKind) (*models.Transfer, error) {
	var transfer models.Transfer
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("idempotency_code = ? AND kind = ? AND status = ?", code, kind, enums.TransferStatusPending).
		First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) ListPendingByMember(ctx context.Context, memberID uuid.UUID, kind enums.TransferKind) ([]models.Transfer, error) {
	var rows []models.Transfer
	err := r.db.WithContext(ctx).
		Where("member_id = ? AND kind = ? AND status = ?", memberID, kind, enums.TransferStatusPending).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// ListStalePending returns initiated gateway transfers still pending at cutoff.
// Transfers without a gateway reference belong to the task queue until it gives up.
func (r *repository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Transfer, error) {
	var rows []models.Transfer
	err := r.db.WithContext(ctx).
		Where("status = ? AND gateway_ref IS NOT NULL AND created_at < ?", enums.TransferStatusPending, cutoff.UTC()).
		Where("kind IN ?", []enums.TransferKind{
			enums.TransferKindDeposit,
			enums.TransferKindWithdrawal,
			enums.TransferKindRegistrationFee,
		}).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListByMemberParams selects one page of a member's transfers, newest first.
type ListByMemberParams struct {
	MemberID uuid.UUID
	Kind     enums.TransferKind
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repository) ListByMember(ctx context.Context, params ListByMemberParams) ([]models.Transfer, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.Transfer{}).Where("member_id = ?", params.MemberID)
	if params.Kind != "" {
		query = query.Where("kind = ?", params.Kind)
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var rows []models.Transfer
	if err := query.Order("created_at DESC, id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	page, next := pagination.Trim(rows, params.Limit, func(t models.Transfer) pagination.Cursor {
		return pagination.Cursor{CreatedAt: t.CreatedAt, ID: t.ID, Scope: string(params.Kind)}
	})
	return page, next, nil
}

// MarkCompleted flips a pending transfer to completed. The receipt replaces the
// idempotency code so a later request id collision cannot match this row again.
func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, receipt string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":       enums.TransferStatusCompleted,
		"completed_at": at.UTC(),
		"updated_at":   at.UTC(),
	}
	if receipt != "" {
		updates["receipt_code"] = receipt
		updates["idempotency_code"] = receipt
	}
	return r.transition(ctx, id, updates)
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	return r.transition(ctx, id, map[string]any{
		"status":         enums.TransferStatusFailed,
		"failure_reason": reason,
		"completed_at":   at.UTC(),
		"updated_at":     at.UTC(),
	})
}

// AttachGatewayRef anchors a pending transfer to the gateway request id its
// callback will carry.
func (r *repository) AttachGatewayRef(ctx context.Context, id uuid.UUID, ref string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ? AND status = ? AND gateway_ref IS NULL", id, enums.TransferStatusPending).
		Updates(map[string]any{
			"gateway_ref":      ref,
			"idempotency_code": ref,
			"updated_at":       at.UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) IncrementPollAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	if err := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ?", id).
		Update("poll_attempts", gorm.Expr("poll_attempts + 1")).Error; err != nil {
		return 0, err
	}
	var attempts int
	err := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ?", id).
		Select("poll_attempts").
		Scan(&attempts).Error
	return attempts, err
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Transfer{}).
		Where("id = ? AND status = ?", id, enums.TransferStatusPending).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// GatewayPhone is the phone the gateway reports for t: the payer for collections,
// the recipient for payouts.
func GatewayPhone(t *models.Transfer) string {
	if t.Kind == enums.TransferKindWithdrawal {
		return t.Destination
	}
	return t.Origin
}
