package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

// ExternalLeg keys the gateway side of deposits and withdrawals in Deltas.
const ExternalLeg = "external"

// MoveInput describes a debit of From and a matching credit of To.
type MoveInput struct {
	Amount     decimal.Decimal
	From       AccountRef
	To         AccountRef
	Note       string
	TransferID *uuid.UUID
	// AllowOverdraft skips the source balance pre-check. Registration fee splits and
	// rotation disbursements use it; the unit still fails if the source ends negative.
	AllowOverdraft bool
}

// Move debits one account and credits another, writing a two-leg journal.
// Both accounts are locked on demand in the global order.
func (u *UnitOfWork) Move(ctx context.Context, in MoveInput) (uuid.UUID, error) {
	if err := validateAmount(in.Amount); err != nil {
		return uuid.Nil, err
	}
	if in.From == in.To {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "source and destination accounts must differ")
	}
	if err := u.Lock(ctx, in.From, in.To); err != nil {
		return uuid.Nil, err
	}

	from := u.locked[in.From]
	to := u.locked[in.To]
	if !in.AllowOverdraft && from.Balance.LessThan(in.Amount) {
		return uuid.Nil, insufficientFunds(in.From, from.Balance, in.Amount)
	}

	now := u.clock.Now()
	from.Balance = from.Balance.Sub(in.Amount)
	to.Balance = to.Balance.Add(in.Amount)
	if err := u.accounts.UpdateBalance(ctx, from.ID, from.Balance, now); err != nil {
		return uuid.Nil, fmt.Errorf("debit %s: %w", in.From, err)
	}
	if err := u.accounts.UpdateBalance(ctx, to.ID, to.Balance, now); err != nil {
		return uuid.Nil, fmt.Errorf("credit %s: %w", in.To, err)
	}

	journalID := uuid.New()
	fromBalance, toBalance := from.Balance, to.Balance
	entries := []models.LedgerEntry{
		{
			JournalID:    journalID,
			AccountID:    &from.ID,
			Direction:    enums.EntryDebit,
			Amount:       in.Amount,
			BalanceAfter: &fromBalance,
			TransferID:   in.TransferID,
			Note:         in.Note,
			CreatedAt:    now,
		},
		{
			JournalID:    journalID,
			AccountID:    &to.ID,
			Direction:    enums.EntryCredit,
			Amount:       in.Amount,
			BalanceAfter: &toBalance,
			TransferID:   in.TransferID,
			Note:         in.Note,
			CreatedAt:    now,
		},
	}
	if err := u.accounts.CreateEntries(ctx, entries); err != nil {
		return uuid.Nil, fmt.Errorf("write journal: %w", err)
	}

	u.addDelta(in.From.String(), in.Amount.Neg())
	u.addDelta(in.To.String(), in.Amount)
	u.journals = append(u.journals, journalID)
	return journalID, nil
}

// CreditExternal books money arriving from the gateway into an account.
func (u *UnitOfWork) CreditExternal(ctx context.Context, to AccountRef, amount decimal.Decimal, note string, transferID *uuid.UUID) (uuid.UUID, error) {
	return u.external(ctx, to, amount, enums.EntryCredit, note, transferID)
}

// DebitExternal books money leaving an account through the gateway. The balance is always checked.
func (u *UnitOfWork) DebitExternal(ctx context.Context, from AccountRef, amount decimal.Decimal, note string, transferID *uuid.UUID) (uuid.UUID, error) {
	return u.external(ctx, from, amount, enums.EntryDebit, note, transferID)
}

func (u *UnitOfWork) external(ctx context.Context, ref AccountRef, amount decimal.Decimal, direction enums.EntryDirection, note string, transferID *uuid.UUID) (uuid.UUID, error) {
	if err := validateAmount(amount); err != nil {
		return uuid.Nil, err
	}
	if err := u.Lock(ctx, ref); err != nil {
		return uuid.Nil, err
	}
	account := u.locked[ref]

	counter := enums.EntryDebit
	delta := amount
	if direction == enums.EntryDebit {
		if account.Balance.LessThan(amount) {
			return uuid.Nil, insufficientFunds(ref, account.Balance, amount)
		}
		counter = enums.EntryCredit
		delta = amount.Neg()
	}

	now := u.clock.Now()
	account.Balance = account.Balance.Add(delta)
	if err := u.accounts.UpdateBalance(ctx, account.ID, account.Balance, now); err != nil {
		return uuid.Nil, fmt.Errorf("update %s: %w", ref, err)
	}

	journalID := uuid.New()
	balance := account.Balance
	entries := []models.LedgerEntry{
		{
			JournalID:    journalID,
			AccountID:    &account.ID,
			Direction:    direction,
			Amount:       amount,
			BalanceAfter: &balance,
			TransferID:   transferID,
			Note:         note,
			CreatedAt:    now,
		},
		{
			JournalID:  journalID,
			Direction:  counter,
			Amount:     amount,
			TransferID: transferID,
			Note:       note,
			CreatedAt:  now,
		},
	}
	if err := u.accounts.CreateEntries(ctx, entries); err != nil {
		return uuid.Nil, fmt.Errorf("write journal: %w", err)
	}

	u.addDelta(ref.String(), delta)
	u.addDelta(ExternalLeg, delta.Neg())
	u.journals = append(u.journals, journalID)
	return journalID, nil
}

func (u *UnitOfWork) addDelta(key string, amount decimal.Decimal) {
	u.deltas[key] = u.deltas[key].Add(amount)
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount supports at most two decimal places")
	}
	return nil
}

func insufficientFunds(ref AccountRef, balance, amount decimal.Decimal) error {
	return pkgerrors.Newf(pkgerrors.CodeInsufficientFunds, "insufficient funds in %s account", ref.Kind).
		WithDetails(map[string]any{
			"account":   ref.String(),
			"balance":   balance.StringFixed(2),
			"requested": amount.StringFixed(2),
		})
}
