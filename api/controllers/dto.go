package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/chama-backend/internal/dividends"
	"github.com/angelmondragon/chama-backend/internal/loans"
	"github.com/angelmondragon/chama-backend/internal/rotation"
	"github.com/angelmondragon/chama-backend/pkg/db/models"
	"github.com/angelmondragon/chama-backend/pkg/enums"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type memberResponse struct {
	ID        uuid.UUID `json:"id"`
	Phone     string    `json:"phone"`
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

func memberResponseFromModel(m *models.Member) memberResponse {
	return memberResponse{ID: m.ID, Phone: m.Phone, FullName: m.FullName, CreatedAt: m.CreatedAt}
}

type groupResponse struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	RegistrationFee string    `json:"registration_fee"`
	CreatedAt       time.Time `json:"created_at"`
}

func groupResponseFromModel(g *models.Group) groupResponse {
	return groupResponse{ID: g.ID, Name: g.Name, RegistrationFee: money(g.RegistrationFee), CreatedAt: g.CreatedAt}
}

type groupMemberResponse struct {
	GroupID             uuid.UUID        `json:"group_id"`
	MemberID            uuid.UUID        `json:"member_id"`
	Role                enums.MemberRole `json:"role"`
	RegistrationFeePaid bool             `json:"registration_fee_paid"`
}

func groupMemberResponseFromModel(m *models.GroupMember) groupMemberResponse {
	return groupMemberResponse{
		GroupID:             m.GroupID,
		MemberID:            m.MemberID,
		Role:                m.Role,
		RegistrationFeePaid: m.RegistrationFeePaid,
	}
}

type activityResponse struct {
	ID                    uuid.UUID                  `json:"id"`
	GroupID               uuid.UUID                  `json:"group_id"`
	Name                  string                     `json:"name"`
	Type                  enums.ActivityType         `json:"type"`
	Interval              enums.ContributionInterval `json:"contribution_interval"`
	IntervalDays          int                        `json:"interval_days,omitempty"`
	ContributionAmount    string                     `json:"contribution_amount"`
	FirstContributionDate string                     `json:"first_contribution_date"`
	NextContributionDate  string                     `json:"next_contribution_date"`
	LoanInterestRate      string                     `json:"loan_interest_rate"`
	RequiresApproval      bool                       `json:"requires_approval"`
	LateFine              string                     `json:"late_fine"`
	DividendMode          enums.DividendMode         `json:"dividend_mode"`
	NextDividendDate      *string                    `json:"next_dividend_date,omitempty"`
	CycleNumber           int                        `json:"cycle_number"`
	Active                bool                       `json:"active"`
}

func activityResponseFromModel(a *models.Activity, loc *time.Location) activityResponse {
	resp := activityResponse{
		ID:                    a.ID,
		GroupID:               a.GroupID,
		Name:                  a.Name,
		Type:                  a.Type,
		Interval:              a.Interval,
		IntervalDays:          a.IntervalDays,
		ContributionAmount:    money(a.ContributionAmount),
		FirstContributionDate: civilDate(a.FirstContributionDate, loc),
		NextContributionDate:  civilDate(a.NextContributionDate, loc),
		LoanInterestRate:      a.LoanInterestRate.String(),
		RequiresApproval:      a.RequiresApproval,
		LateFine:              money(a.LateFine),
		DividendMode:          a.DividendMode,
		CycleNumber:           a.CycleNumber,
		Active:                a.Active,
	}
	if a.NextDividendDate != nil {
		d := civilDate(*a.NextDividendDate, loc)
		resp.NextDividendDate = &d
	}
	return resp
}

type enrolmentResponse struct {
	ActivityID uuid.UUID `json:"activity_id"`
	MemberID   uuid.UUID `json:"member_id"`
	Shares     int       `json:"shares"`
	Active     bool      `json:"active"`
}

func enrolmentResponseFromModel(m *models.ActivityMember) enrolmentResponse {
	return enrolmentResponse{ActivityID: m.ActivityID, MemberID: m.MemberID, Shares: m.Shares, Active: m.Active}
}

type transferResponse struct {
	ID            uuid.UUID            `json:"id"`
	RequestCode   string               `json:"request_code"`
	Kind          enums.TransferKind   `json:"kind"`
	Status        enums.TransferStatus `json:"status"`
	Amount        string               `json:"amount"`
	MemberID      *uuid.UUID           `json:"member_id,omitempty"`
	GroupID       *uuid.UUID           `json:"group_id,omitempty"`
	ActivityID    *uuid.UUID           `json:"activity_id,omitempty"`
	ReceiptCode   *string              `json:"receipt_code,omitempty"`
	Note          string               `json:"note,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

func transferResponseFromModel(t *models.Transfer) *transferResponse {
	if t == nil {
		return nil
	}
	return &transferResponse{
		ID:            t.ID,
		RequestCode:   t.RequestCode,
		Kind:          t.Kind,
		Status:        t.Status,
		Amount:        money(t.Amount),
		MemberID:      t.MemberID,
		GroupID:       t.GroupID,
		ActivityID:    t.ActivityID,
		ReceiptCode:   t.ReceiptCode,
		Note:          t.Note,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

type contributionResponse struct {
	ID               uuid.UUID  `json:"id"`
	ActivityID       uuid.UUID  `json:"activity_id"`
	MemberID         uuid.UUID  `json:"member_id"`
	CycleNumber      int        `json:"cycle_number"`
	ContributionDate string     `json:"contribution_date"`
	RecipientID      *uuid.UUID `json:"recipient_id,omitempty"`
	Amount           string     `json:"amount"`
	TransferID       uuid.UUID  `json:"transfer_id"`
}

func contributionResponseFromModel(c *models.Contribution, loc *time.Location) contributionResponse {
	return contributionResponse{
		ID:               c.ID,
		ActivityID:       c.ActivityID,
		MemberID:         c.MemberID,
		CycleNumber:      c.CycleNumber,
		ContributionDate: civilDate(c.ContributionDate, loc),
		RecipientID:      c.RecipientID,
		Amount:           money(c.Amount),
		TransferID:       c.TransferID,
	}
}

type slotResponse struct {
	CycleNumber     int       `json:"cycle_number"`
	OrderInRotation int       `json:"order_in_rotation"`
	RecipientID     uuid.UUID `json:"recipient_id"`
	ReceivingDate   string    `json:"receiving_date"`
	ExpectedAmount  string    `json:"expected_amount"`
	ReceivedAmount  string    `json:"received_amount"`
	Fulfilled       bool      `json:"fulfilled"`
}

func slotResponses(slots []models.RotationSlot, loc *time.Location) []slotResponse {
	out := make([]slotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotResponse{
			CycleNumber:     s.CycleNumber,
			OrderInRotation: s.OrderInRotation,
			RecipientID:     s.RecipientID,
			ReceivingDate:   civilDate(s.ReceivingDate, loc),
			ExpectedAmount:  money(s.ExpectedAmount),
			ReceivedAmount:  money(s.ReceivedAmount),
			Fulfilled:       s.Fulfilled,
		})
	}
	return out
}

type payoutResponse struct {
	Slot           slotResponse      `json:"slot"`
	Amount         string            `json:"amount"`
	Transfer       *transferResponse `json:"transfer,omitempty"`
	CycleCompleted bool              `json:"cycle_completed"`
	NextCycle      int               `json:"next_cycle,omitempty"`
}

func payoutResponseFromResult(p *rotation.Payout, loc *time.Location) payoutResponse {
	return payoutResponse{
		Slot:           slotResponses([]models.RotationSlot{p.Slot}, loc)[0],
		Amount:         money(p.Amount),
		Transfer:       transferResponseFromModel(p.Transfer),
		CycleCompleted: p.CycleCompleted,
		NextCycle:      p.NextCycle,
	}
}

type loanResponse struct {
	ID                    uuid.UUID       `json:"id"`
	ActivityID            uuid.UUID       `json:"activity_id"`
	MemberID              uuid.UUID       `json:"member_id"`
	CycleNumber           int             `json:"cycle_number"`
	PrincipalRequested    string          `json:"principal_requested"`
	StandingBalance       string          `json:"standing_balance"`
	ExpectedInterest      string          `json:"expected_interest"`
	TotalRequired         string          `json:"total_required"`
	TotalRepaid           string          `json:"total_repaid"`
	InterestRate          string          `json:"interest_rate"`
	MissedPayments        int             `json:"missed_payments"`
	State                 enums.LoanState `json:"state"`
	ExpectedRepaymentDate *string         `json:"expected_repayment_date,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

func loanResponseFromModel(l *models.SoftLoan, loc *time.Location) loanResponse {
	resp := loanResponse{
		ID:                 l.ID,
		ActivityID:         l.ActivityID,
		MemberID:           l.MemberID,
		CycleNumber:        l.CycleNumber,
		PrincipalRequested: money(l.PrincipalRequested),
		StandingBalance:    money(l.StandingBalance),
		ExpectedInterest:   money(l.ExpectedInterest),
		TotalRequired:      money(l.TotalRequired),
		TotalRepaid:        money(l.TotalRepaid),
		InterestRate:       l.InterestRate.String(),
		MissedPayments:     l.MissedPayments,
		State:              l.State,
		CreatedAt:          l.CreatedAt,
	}
	if l.ExpectedRepaymentDate != nil {
		d := civilDate(*l.ExpectedRepaymentDate, loc)
		resp.ExpectedRepaymentDate = &d
	}
	return resp
}

type loanTotalsResponse struct {
	CycleNumber     int    `json:"cycle_number"`
	TotalLoansTaken string `json:"total_loans_taken"`
	UnpaidLoans     string `json:"unpaid_loans"`
	UnpaidInterest  string `json:"unpaid_interest"`
	RepaidLoans     string `json:"repaid_loans"`
	RepaidInterest  string `json:"repaid_interest"`
}

func loanTotalsResponseFromModel(m *models.LoanManagement) *loanTotalsResponse {
	if m == nil {
		return nil
	}
	return &loanTotalsResponse{
		CycleNumber:     m.CycleNumber,
		TotalLoansTaken: money(m.TotalLoansTaken),
		UnpaidLoans:     money(m.UnpaidLoans),
		UnpaidInterest:  money(m.UnpaidInterest),
		RepaidLoans:     money(m.RepaidLoans),
		RepaidInterest:  money(m.RepaidInterest),
	}
}

type repaymentResponse struct {
	Loan          loanResponse      `json:"loan"`
	InterestPaid  string            `json:"interest_paid"`
	PrincipalPaid string            `json:"principal_paid"`
	Transfer      *transferResponse `json:"transfer,omitempty"`
}

func repaymentResponseFromResult(r *loans.Repayment, loc *time.Location) repaymentResponse {
	return repaymentResponse{
		Loan:          loanResponseFromModel(r.Loan, loc),
		InterestPaid:  money(r.InterestPaid),
		PrincipalPaid: money(r.PrincipalPaid),
		Transfer:      transferResponseFromModel(r.Transfer),
	}
}

type fineResponse struct {
	ID          uuid.UUID        `json:"id"`
	ActivityID  uuid.UUID        `json:"activity_id"`
	MemberID    uuid.UUID        `json:"member_id"`
	CycleNumber int              `json:"cycle_number"`
	Amount      string           `json:"amount"`
	Reason      string           `json:"reason"`
	IssuedFor   *string          `json:"issued_for,omitempty"`
	Status      enums.FineStatus `json:"status"`
	PaidAt      *time.Time       `json:"paid_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

func fineResponseFromModel(f *models.Fine, loc *time.Location) fineResponse {
	resp := fineResponse{
		ID:          f.ID,
		ActivityID:  f.ActivityID,
		MemberID:    f.MemberID,
		CycleNumber: f.CycleNumber,
		Amount:      money(f.Amount),
		Reason:      f.Reason,
		Status:      f.Status,
		PaidAt:      f.PaidAt,
		CreatedAt:   f.CreatedAt,
	}
	if f.IssuedFor != nil {
		d := civilDate(*f.IssuedFor, loc)
		resp.IssuedFor = &d
	}
	return resp
}

type disbursementResponse struct {
	MemberID        uuid.UUID `json:"member_id"`
	CycleNumber     int       `json:"cycle_number"`
	Shares          int       `json:"shares"`
	DividendAmount  string    `json:"dividend_amount"`
	PrincipalAmount string    `json:"principal_amount"`
	TransferID      uuid.UUID `json:"transfer_id"`
}

func disbursementResponses(rows []models.Disbursement) []disbursementResponse {
	out := make([]disbursementResponse, 0, len(rows))
	for _, d := range rows {
		out = append(out, disbursementResponse{
			MemberID:        d.MemberID,
			CycleNumber:     d.CycleNumber,
			Shares:          d.Shares,
			DividendAmount:  money(d.DividendAmount),
			PrincipalAmount: money(d.PrincipalAmount),
			TransferID:      d.TransferID,
		})
	}
	return out
}

type roundResponse struct {
	CycleNumber      int                    `json:"cycle_number"`
	DividendPerShare string                 `json:"dividend_per_share"`
	TotalDividends   string                 `json:"total_dividends"`
	TotalPrincipal   string                 `json:"total_principal"`
	Disbursements    []disbursementResponse `json:"disbursements"`
	Excluded         []uuid.UUID            `json:"excluded_members"`
	NextCycle        int                    `json:"next_cycle"`
}

func roundResponseFromResult(r *dividends.Round) roundResponse {
	excluded := r.Excluded
	if excluded == nil {
		excluded = []uuid.UUID{}
	}
	return roundResponse{
		CycleNumber:      r.CycleNumber,
		DividendPerShare: money(r.DividendPerShare),
		TotalDividends:   money(r.TotalDividends),
		TotalPrincipal:   money(r.TotalPrincipal),
		Disbursements:    disbursementResponses(r.Disbursements),
		Excluded:         excluded,
		NextCycle:        r.NextCycle,
	}
}

const dateLayout = "2006-01-02"

func civilDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(dateLayout)
}
