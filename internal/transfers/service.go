package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/internal/tasks"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
	"github.com/angelmondragon/chama-backend/pkg/logger"
	"github.com/angelmondragon/chama-backend/pkg/outbox"
	"github.com/angelmondragon/chama-backend/pkg/pagination"
)

// Directory resolves the members and groups a transfer touches.
type Directory interface {
	FindMember(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (*models.Member, error)
	FindGroup(ctx context.Context, tx *gorm.DB, groupID uuid.UUID) (*models.Group, error)
	FindGroupMember(ctx context.Context, tx *gorm.DB, groupID, memberID uuid.UUID) (*models.GroupMember, error)
}

type taskEnqueuer interface {
	Enqueue(ctx context.Context, tx *gorm.DB, spec tasks.Spec) (*models.Task, error)
}

// InitiatePayload is the task payload for gateway initiation.
type InitiatePayload struct {
	TransferID uuid.UUID `json:"transfer_id"`
}

// DepositInput requests an STK push into the member's wallet. A repeated Nonce for
// the same member and day returns the transfer created by the first request.
type DepositInput struct {
	MemberID uuid.UUID
	Amount   decimal.Decimal
	Nonce    string
}

type WithdrawalInput struct {
	MemberID uuid.UUID
	Amount   decimal.Decimal
	Nonce    string
}

type RegistrationFeeInput struct {
	GroupID  uuid.UUID
	MemberID uuid.UUID
	Nonce    string
}

// TransferInput moves money between two member wallets.
type TransferInput struct {
	FromMemberID uuid.UUID
	ToMemberID   uuid.UUID
	Amount       decimal.Decimal
	Note         string
}

// LocalInput describes an internal transfer that settles in the caller's unit.
type LocalInput struct {
	Kind       enums.TransferKind
	Amount     decimal.Decimal
	From       ledger.AccountRef
	To         ledger.AccountRef
	MemberID   *uuid.UUID
	GroupID    *uuid.UUID
	ActivityID *uuid.UUID
	Note       string
	// AllowOverdraft skips the pre-check on From; the unit still rejects a
	// negative balance at commit.
	AllowOverdraft bool
}

type ServiceParams struct {
	Store     *ledger.Store
	Repo      Repository
	Queue     taskEnqueuer
	Directory Directory
	Events    outbox.Emitter
	Clock     clock.Clock
	Location  *time.Location
	Logger    *logger.Logger
}

// Service creates pending-transfer rows. Settlement of external rows belongs to
// the reconciler.
type Service struct {
	store     *ledger.Store
	repo      Repository
	queue     taskEnqueuer
	directory Directory
	events    outbox.Emitter
	clock     clock.Clock
	loc       *time.Location
	logg      *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("transfers repository required")
	}
	if p.Queue == nil {
		return nil, fmt.Errorf("task queue required")
	}
	if p.Directory == nil {
		return nil, fmt.Errorf("member directory required")
	}
	if p.Events == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if p.Clock == nil {
		p.Clock = clock.System()
	}
	if p.Location == nil {
		p.Location = clock.EAT()
	}
	return &Service{
		store:     p.Store,
		repo:      p.Repo,
		queue:     p.Queue,
		directory: p.Directory,
		events:    p.Events,
		clock:     p.Clock,
		loc:       p.Location,
		logg:      p.Logger,
	}, nil
}

func (s *Service) RequestDeposit(ctx context.Context, input DepositInput) (*models.Transfer, error) {
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	var out *models.Transfer
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		member, err := s.member(ctx, uow.Tx(), input.MemberID)
		if err != nil {
			return err
		}
		wallet := ledger.Wallet(member.ID)
		if _, err := uow.OpenAccount(ctx, wallet); err != nil {
			return err
		}
		out, err = s.createExternal(ctx, uow, &models.Transfer{
			Kind:        enums.TransferKindDeposit,
			Amount:      input.Amount,
			Origin:      member.Phone,
			Destination: wallet.String(),
			MemberID:    &member.ID,
			Note:        "wallet deposit",
		}, input.Nonce, enums.TaskKindInitiateDeposit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RequestWithdrawal reserves the amount against the wallet's available balance,
// which excludes withdrawals still pending at the gateway.
func (s *Service) RequestWithdrawal(ctx context.Context, input WithdrawalInput) (*models.Transfer, error) {
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	var out *models.Transfer
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		member, err := s.member(ctx, uow.Tx(), input.MemberID)
		if err != nil {
			return err
		}
		wallet := ledger.Wallet(member.ID)
		if err := uow.Lock(ctx, wallet); err != nil {
			return err
		}
		available, err := s.available(ctx, uow, member.ID)
		if err != nil {
			return err
		}
		if available.LessThan(input.Amount) {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").
				WithDetails(map[string]any{
					"available": available.StringFixed(2),
					"requested": input.Amount.StringFixed(2),
				})
		}
		out, err = s.createExternal(ctx, uow, &models.Transfer{
			Kind:        enums.TransferKindWithdrawal,
			Amount:      input.Amount,
			Origin:      wallet.String(),
			Destination: member.Phone,
			MemberID:    &member.ID,
			Note:        "wallet withdrawal",
		}, input.Nonce, enums.TaskKindInitiateWithdrawal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RequestRegistrationFee collects the group's registration fee from the member's phone.
func (s *Service) RequestRegistrationFee(ctx context.Context, input RegistrationFeeInput) (*models.Transfer, error) {
	var out *models.Transfer
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		tx := uow.Tx()
		member, err := s.member(ctx, tx, input.MemberID)
		if err != nil {
			return err
		}
		group, err := s.directory.FindGroup(ctx, tx, input.GroupID)
		if err != nil {
			return notFound(err, "group not found")
		}
		link, err := s.directory.FindGroupMember(ctx, tx, group.ID, member.ID)
		if err != nil {
			return notFound(err, "member is not in this group")
		}
		if link.RegistrationFeePaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "registration fee already paid")
		}
		if !group.RegistrationFee.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "group has no registration fee")
		}
		if _, err := uow.OpenAccount(ctx, ledger.Wallet(member.ID)); err != nil {
			return err
		}
		out, err = s.createExternal(ctx, uow, &models.Transfer{
			Kind:        enums.TransferKindRegistrationFee,
			Amount:      group.RegistrationFee,
			Origin:      member.Phone,
			Destination: ledger.GroupAccount(group.ID).String(),
			MemberID:    &member.ID,
			GroupID:     &group.ID,
			Note:        "registration fee",
		}, input.Nonce, enums.TaskKindInitiateDeposit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transfer moves money between wallets and records a completed transfer row.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (*models.Transfer, error) {
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	if input.FromMemberID == input.ToMemberID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer to the same wallet")
	}
	var out *models.Transfer
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		from, to := ledger.Wallet(input.FromMemberID), ledger.Wallet(input.ToMemberID)
		if err := uow.Lock(ctx, from, to); err != nil {
			return err
		}
		available, err := s.available(ctx, uow, input.FromMemberID)
		if err != nil {
			return err
		}
		if available.LessThan(input.Amount) {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").
				WithDetails(map[string]any{"available": available.StringFixed(2)})
		}
		note := input.Note
		if note == "" {
			note = "member transfer"
		}
		out, err = s.RecordLocal(ctx, uow, LocalInput{
			Kind:     enums.TransferKindTransfer,
			Amount:   input.Amount,
			From:     from,
			To:       to,
			MemberID: &input.FromMemberID,
			Note:     note,
		})
		if err != nil {
			return err
		}
		return EmitSettled(ctx, s.events, uow.Tx(), out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RecordLocal writes a completed transfer row and its move inside uow. A wallet
// source must cover the amount after pending withdrawals unless AllowOverdraft is set.
func (s *Service) RecordLocal(ctx context.Context, uow *ledger.UnitOfWork, input LocalInput) (*models.Transfer, error) {
	return RecordLocal(ctx, uow, s.repo, s.loc, input)
}

// RecordLocal is the package-level form used by engines that do not hold a Service.
func RecordLocal(ctx context.Context, uow *ledger.UnitOfWork, repo Repository, loc *time.Location, input LocalInput) (*models.Transfer, error) {
	if input.Kind.IsExternal() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInternal, "%s settles through the gateway", input.Kind)
	}
	if input.From.Kind == enums.AccountKindWallet && !input.AllowOverdraft {
		if err := uow.Lock(ctx, input.From, input.To); err != nil {
			return nil, err
		}
		free, err := spendable(ctx, uow, repo, input.From.OwnerID)
		if err != nil {
			return nil, err
		}
		if free.LessThan(input.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance").
				WithDetails(map[string]any{
					"available": free.StringFixed(2),
					"requested": input.Amount.StringFixed(2),
				})
		}
	}
	now := uow.Now().UTC()
	code := DeriveCode(input.Kind, input.From.String(), input.To.String(), now.In(loc), uuid.NewString())
	transfer := &models.Transfer{
		RequestCode:     code,
		IdempotencyCode: code,
		Kind:            input.Kind,
		Status:          enums.TransferStatusCompleted,
		Amount:          input.Amount,
		Origin:          input.From.String(),
		Destination:     input.To.String(),
		MemberID:        input.MemberID,
		GroupID:         input.GroupID,
		ActivityID:      input.ActivityID,
		Note:            input.Note,
		CreatedAt:       now,
		CompletedAt:     &now,
	}
	if err := repo.WithTx(uow.Tx()).Create(ctx, transfer); err != nil {
		return nil, fmt.Errorf("record %s transfer: %w", input.Kind, err)
	}
	if _, err := uow.Move(ctx, ledger.MoveInput{
		Amount:         input.Amount,
		From:           input.From,
		To:             input.To,
		Note:           input.Note,
		TransferID:     &transfer.ID,
		AllowOverdraft: input.AllowOverdraft,
	}); err != nil {
		return nil, err
	}
	return transfer, nil
}

// Available is the wallet balance minus withdrawals still pending.
func (s *Service) Available(ctx context.Context, memberID uuid.UUID) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		if err := uow.Lock(ctx, ledger.Wallet(memberID)); err != nil {
			return err
		}
		var err error
		out, err = s.available(ctx, uow, memberID)
		return err
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	transfer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "transfer not found")
	}
	return transfer, nil
}

// HistoryPage is one page of a member's transfers. Cursor is empty on the last page.
type HistoryPage struct {
	Items  []models.Transfer
	Cursor string
}

// History lists the transfers booked against a member's wallet, newest first.
func (s *Service) History(ctx context.Context, memberID uuid.UUID, kind enums.TransferKind, limit int, cursor string) (*HistoryPage, error) {
	if memberID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "member id required")
	}
	if kind != "" && !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transfer kind")
	}
	params := ListByMemberParams{MemberID: memberID, Kind: kind, Limit: limit}
	if cursor != "" {
		parsed, err := pagination.ParseCursor(cursor, string(kind))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		params.Cursor = parsed
	}

	rows, next, err := s.repo.ListByMember(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transfers")
	}
	page := &HistoryPage{Items: rows}
	if next != nil {
		page.Cursor = pagination.EncodeCursor(*next)
	}
	return page, nil
}

func (s *Service) createExternal(ctx context.Context, uow *ledger.UnitOfWork, transfer *models.Transfer, nonce string, task enums.TaskKind) (*models.Transfer, error) {
	repo := s.repo.WithTx(uow.Tx())
	now := uow.Now().UTC()
	if nonce == "" {
		nonce = uuid.NewString()
	}
	code := DeriveCode(transfer.Kind, transfer.Origin, transfer.Destination, now.In(s.loc), nonce)
	existing, err := repo.FindByRequestCode(ctx, code)
	if err == nil {
		return existing, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	transfer.RequestCode = code
	transfer.IdempotencyCode = code
	transfer.Status = enums.TransferStatusPending
	transfer.CreatedAt = now
	if err := repo.Create(ctx, transfer); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transfer already requested")
		}
		return nil, fmt.Errorf("create %s transfer: %w", transfer.Kind, err)
	}
	if _, err := s.queue.Enqueue(ctx, uow.Tx(), tasks.Spec{
		Kind:       task,
		Payload:    InitiatePayload{TransferID: transfer.ID},
		TransferID: &transfer.ID,
	}); err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithIdempotencyCode(ctx, code)
		s.logg.Info(logCtx, fmt.Sprintf("%s transfer requested", transfer.Kind))
	}
	return transfer, nil
}

func (s *Service) available(ctx context.Context, uow *ledger.UnitOfWork, memberID uuid.UUID) (decimal.Decimal, error) {
	return spendable(ctx, uow, s.repo, memberID)
}

// spendable is the locked wallet balance less withdrawals still pending at the
// gateway. Every local wallet debit checks it so a confirmed payout always finds
// its funds.
func spendable(ctx context.Context, uow *ledger.UnitOfWork, repo Repository, memberID uuid.UUID) (decimal.Decimal, error) {
	balance, err := uow.Balance(ledger.Wallet(memberID))
	if err != nil {
		return decimal.Zero, err
	}
	pending, err := repo.WithTx(uow.Tx()).ListPendingByMember(ctx, memberID, enums.TransferKindWithdrawal)
	if err != nil {
		return decimal.Zero, err
	}
	for _, t := range pending {
		balance = balance.Sub(t.Amount)
	}
	return balance, nil
}

func (s *Service) member(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Member, error) {
	member, err := s.directory.FindMember(ctx, tx, id)
	if err != nil {
		return nil, notFound(err, "member not found")
	}
	return member, nil
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount has more than two decimal places")
	}
	return nil
}

func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
