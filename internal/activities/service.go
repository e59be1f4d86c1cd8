package activities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/internal/gateway"
	"github.com/angelmondragon/chama-backend/internal/ledger"
	"github.com/angelmondragon/chama-backend/pkg/clock"
	"github.com/angelmondragon/chama-backend/pkg/db"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/chama-backend/pkg/errors"
)

type RegisterMemberInput struct {
	Phone    string
	FullName string
}

type CreateGroupInput struct {
	Name            string
	RegistrationFee decimal.Decimal
	FounderID       uuid.UUID
}

type CreateActivityInput struct {
	GroupID               uuid.UUID
	ActorID               uuid.UUID
	Name                  string
	Type                  enums.ActivityType
	Interval              enums.ContributionInterval
	IntervalDays          int
	ContributionAmount    decimal.Decimal
	FirstContributionDate time.Time
	LoanInterestRate      decimal.Decimal
	RequiresApproval      bool
	LateFine              decimal.Decimal
	DividendMode          enums.DividendMode
	// DividendDate is the first dividend payout; nil lets the activity run without
	// scheduled distributions.
	DividendDate *time.Time
}

type EnrollInput struct {
	ActivityID uuid.UUID
	MemberID   uuid.UUID
	Shares     int
}

// Service owns the group and activity lifecycle and opens the matching accounts.
type Service struct {
	store *ledger.Store
	repo  *Repository
	loc   *time.Location
}

func NewService(store *ledger.Store, repo *Repository, loc *time.Location) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store required")
	}
	if repo == nil {
		return nil, fmt.Errorf("activities repository required")
	}
	if loc == nil {
		loc = clock.EAT()
	}
	return &Service{store: store, repo: repo, loc: loc}, nil
}

// RegisterMember creates a member and opens their wallet.
func (s *Service) RegisterMember(ctx context.Context, input RegisterMemberInput) (*models.Member, error) {
	phone, err := gateway.NormalizePhone(input.Phone)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid phone number")
	}
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full name is required")
	}

	member := &models.Member{Phone: phone, FullName: name}
	err = s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		if err := s.repo.WithTx(uow.Tx()).CreateMember(ctx, member); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "phone number already registered")
			}
			return err
		}
		_, err := uow.OpenAccount(ctx, ledger.Wallet(member.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// CreateGroup creates the group, opens its account and makes the founder its manager.
func (s *Service) CreateGroup(ctx context.Context, input CreateGroupInput) (*models.Group, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group name is required")
	}
	if input.RegistrationFee.IsNegative() || !input.RegistrationFee.Equal(input.RegistrationFee.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "registration fee must be a non-negative amount")
	}

	group := &models.Group{Name: name, RegistrationFee: input.RegistrationFee}
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		repo := s.repo.WithTx(uow.Tx())
		if _, err := repo.FindMember(ctx, input.FounderID); err != nil {
			return notFound(err, "member not found")
		}
		if err := repo.CreateGroup(ctx, group); err != nil {
			return err
		}
		if err := repo.AddGroupMember(ctx, &models.GroupMember{
			GroupID:             group.ID,
			MemberID:            input.FounderID,
			Role:                enums.MemberRoleManager,
			RegistrationFeePaid: true,
		}); err != nil {
			return err
		}
		_, err := uow.OpenAccount(ctx, ledger.GroupAccount(group.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// JoinGroup adds a member. Groups without a registration fee mark it paid at once.
func (s *Service) JoinGroup(ctx context.Context, groupID, memberID uuid.UUID) (*models.GroupMember, error) {
	var link *models.GroupMember
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		repo := s.repo.WithTx(uow.Tx())
		group, err := repo.FindGroup(ctx, groupID)
		if err != nil {
			return notFound(err, "group not found")
		}
		if _, err := repo.FindMember(ctx, memberID); err != nil {
			return notFound(err, "member not found")
		}
		link = &models.GroupMember{
			GroupID:             group.ID,
			MemberID:            memberID,
			Role:                enums.MemberRoleMember,
			RegistrationFeePaid: !group.RegistrationFee.IsPositive(),
		}
		if err := repo.AddGroupMember(ctx, link); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "member already in group")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// CreateActivity creates the activity with its account and cycle 1 bookkeeping.
// Only group managers may create activities.
func (s *Service) CreateActivity(ctx context.Context, input CreateActivityInput) (*models.Activity, error) {
	if err := validateActivity(input); err != nil {
		return nil, err
	}
	first := clock.StartOfDay(input.FirstContributionDate, s.loc)
	activity := &models.Activity{
		GroupID:               input.GroupID,
		Name:                  strings.TrimSpace(input.Name),
		Type:                  input.Type,
		Interval:              input.Interval,
		IntervalDays:          input.IntervalDays,
		ContributionAmount:    input.ContributionAmount,
		FirstContributionDate: first.UTC(),
		NextContributionDate:  first.UTC(),
		LoanInterestRate:      input.LoanInterestRate,
		RequiresApproval:      input.RequiresApproval,
		LateFine:              input.LateFine,
		DividendMode:          input.DividendMode,
		CycleNumber:           1,
		Active:                true,
	}
	if input.DividendDate != nil {
		d := clock.StartOfDay(*input.DividendDate, s.loc).UTC()
		activity.NextDividendDate = &d
	}

	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		repo := s.repo.WithTx(uow.Tx())
		if err := s.requireManager(ctx, repo, input.GroupID, input.ActorID); err != nil {
			return err
		}
		if err := repo.CreateActivity(ctx, activity); err != nil {
			return err
		}
		if err := repo.OpenCycle(ctx, activity.ID, activity.CycleNumber); err != nil {
			return err
		}
		_, err := uow.OpenAccount(ctx, ledger.ActivityAccount(activity.ID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// Enroll adds a group member to an activity. The registration fee must be paid.
func (s *Service) Enroll(ctx context.Context, input EnrollInput) (*models.ActivityMember, error) {
	if input.Shares <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shares must be at least 1")
	}
	var enrolment *models.ActivityMember
	err := s.store.Atomic(ctx, func(uow *ledger.UnitOfWork) error {
		repo := s.repo.WithTx(uow.Tx())
		activity, err := repo.FindActivity(ctx, input.ActivityID)
		if err != nil {
			return notFound(err, "activity not found")
		}
		link, err := repo.FindGroupMember(ctx, activity.GroupID, input.MemberID)
		if err != nil {
			return notFound(err, "member is not in this group")
		}
		if !link.RegistrationFeePaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "registration fee not paid")
		}
		enrolment = &models.ActivityMember{
			ActivityID: activity.ID,
			MemberID:   input.MemberID,
			Shares:     input.Shares,
			Active:     true,
			CreatedAt:  uow.Now().UTC(),
		}
		if err := repo.AddActivityMember(ctx, enrolment); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "member already enrolled")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrolment, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	activity, err := s.repo.FindActivity(ctx, id)
	if err != nil {
		return nil, notFound(err, "activity not found")
	}
	return activity, nil
}

// RequireManager fails with FORBIDDEN unless memberID manages the activity's group.
func (s *Service) RequireManager(ctx context.Context, activityID, memberID uuid.UUID) error {
	activity, err := s.repo.FindActivity(ctx, activityID)
	if err != nil {
		return notFound(err, "activity not found")
	}
	return s.requireManager(ctx, s.repo, activity.GroupID, memberID)
}

// Location is the civil timezone every schedule is evaluated in.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) requireManager(ctx context.Context, repo *Repository, groupID, memberID uuid.UUID) error {
	link, err := repo.FindGroupMember(ctx, groupID, memberID)
	if err != nil {
		if db.IsNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "not a member of this group")
		}
		return err
	}
	if !link.Role.CanManage() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "manager role required")
	}
	return nil
}

func validateActivity(input CreateActivityInput) error {
	switch {
	case strings.TrimSpace(input.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "activity name is required")
	case !input.Type.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid activity type")
	case !input.Interval.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid contribution interval")
	case input.Interval == enums.IntervalCustom && input.IntervalDays <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "custom interval needs a positive number of days")
	case !input.ContributionAmount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "contribution amount must be positive")
	case input.LoanInterestRate.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "loan interest rate cannot be negative")
	case input.LateFine.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "late fine cannot be negative")
	case !input.DividendMode.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid dividend mode")
	case input.FirstContributionDate.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "first contribution date is required")
	}
	return nil
}

func notFound(err error, msg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
