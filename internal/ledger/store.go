package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Store is the account store. Every balance mutation happens inside Atomic.
type Store struct {
	runner txRunner
	repo   Repository
	clock  clock.Clock
}

// NewStore wires the account store over a transaction runner.
func NewStore(runner txRunner, repo Repository, clk clock.Clock) (*Store, error) {
	if runner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Store{runner: runner, repo: repo, clock: clk}, nil
}

// Atomic runs fn inside one database transaction. Row locks taken through the
// unit of work are held until fn returns. The unit is rejected if any locked
// account ends below zero.
func (s *Store) Atomic(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		uow := &UnitOfWork{
			tx:       tx,
			accounts: s.repo.WithTx(tx),
			clock:    s.clock,
			locked:   map[AccountRef]*models.Account{},
			deltas:   map[string]decimal.Decimal{},
		}
		if err := fn(uow); err != nil {
			return err
		}
		return uow.checkNonNegative()
	})
}

// Balance reads an account balance outside any unit of work.
func (s *Store) Balance(ctx context.Context, ref AccountRef) (decimal.Decimal, error) {
	account, err := s.repo.FindAccount(ctx, ref)
	if err != nil {
		if db.IsNotFound(err) {
			return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeNotFound, "account %s not found", ref)
		}
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// EnsurePlatformAccount opens the singleton platform account if it does not exist yet.
func (s *Store) EnsurePlatformAccount(ctx context.Context) error {
	return s.Atomic(ctx, func(uow *UnitOfWork) error {
		_, err := uow.OpenAccount(ctx, Platform())
		return err
	})
}

// UnitOfWork scopes row locks and the commit or rollback of one settlement.
type UnitOfWork struct {
	tx       *gorm.DB
	accounts Repository
	clock    clock.Clock

	locked   map[AccountRef]*models.Account
	last     *AccountRef
	deltas   map[string]decimal.Decimal
	journals []uuid.UUID
}

// Tx exposes the transaction so domain repositories can join the unit.
func (u *UnitOfWork) Tx() *gorm.DB {
	return u.tx
}

// Now is the clock reading shared by everything written in this unit.
func (u *UnitOfWork) Now() time.Time {
	return u.clock.Now()
}

// OpenAccount creates the account if missing. It does not take a lock.
func (u *UnitOfWork) OpenAccount(ctx context.Context, ref AccountRef) (*models.Account, error) {
	if err := ref.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account reference")
	}
	existing, err := u.accounts.FindAccount(ctx, ref)
	if err == nil {
		return existing, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}
	account := &models.Account{Kind: ref.Kind, OwnerID: ref.OwnerID, Balance: decimal.Zero}
	if err := u.accounts.CreateAccount(ctx, account); err != nil {
		if db.IsUniqueViolation(err, "") {
			return u.accounts.FindAccount(ctx, ref)
		}
		return nil, err
	}
	return account, nil
}

// Lock acquires exclusive row locks on refs. Requests are sorted by kind rank
// (wallet, activity, group, platform) then owner id. Asking for an account that
// sorts before one already held is a lock order violation.
func (u *UnitOfWork) Lock(ctx context.Context, refs ...AccountRef) error {
	pending := make([]AccountRef, 0, len(refs))
	seen := map[AccountRef]struct{}{}
	for _, ref := range refs {
		if err := ref.validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid account reference")
		}
		if _, ok := u.locked[ref]; ok {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		pending = append(pending, ref)
	}
	sort.Slice(pending, func(i, j int) bool {
		return compareRefs(pending[i], pending[j]) < 0
	})

	for _, ref := range pending {
		if u.last != nil && compareRefs(ref, *u.last) < 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "lock order violation").
				WithDetails(map[string]any{"requested": ref.String(), "held": u.last.String()})
		}
		account, err := u.accounts.LockAccount(ctx, ref)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.Newf(pkgerrors.CodeNotFound, "account %s not found", ref)
			}
			return fmt.Errorf("lock account %s: %w", ref, err)
		}
		u.locked[ref] = account
		held := ref
		u.last = &held
	}
	return nil
}

// Balance returns the in-unit balance of a locked account.
func (u *UnitOfWork) Balance(ref AccountRef) (decimal.Decimal, error) {
	account, ok := u.locked[ref]
	if !ok {
		return decimal.Zero, pkgerrors.Newf(pkgerrors.CodeInternal, "account %s is not locked", ref)
	}
	return account.Balance, nil
}

// Deltas returns the net balance change per account in this unit, keyed by
// AccountRef.String(). The external gateway leg is keyed "external".
func (u *UnitOfWork) Deltas() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(u.deltas))
	for k, v := range u.deltas {
		out[k] = v
	}
	return out
}

// Journals lists the journal ids written in this unit.
func (u *UnitOfWork) Journals() []uuid.UUID {
	return append([]uuid.UUID(nil), u.journals...)
}

func (u *UnitOfWork) checkNonNegative() error {
	for ref, account := range u.locked {
		if account.Balance.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeInsufficientFunds, "account %s would end negative", ref).
				WithDetails(map[string]any{"account": ref.String(), "balance": account.Balance.StringFixed(2)})
		}
	}
	return nil
}
