package enums

import "fmt"

// LoanState maps to the loan_state_enum enum in Postgres.
type LoanState string

const (
	LoanStateAwaitingApproval LoanState = "awaiting_approval"
	LoanStateApproved         LoanState = "approved"
	LoanStateOverdue          LoanState = "overdue"
	LoanStateCleared          LoanState = "cleared"
	LoanStateRejected         LoanState = "rejected"
)

var validLoanStates = []LoanState{
	LoanStateAwaitingApproval,
	LoanStateApproved,
	LoanStateOverdue,
	LoanStateCleared,
	LoanStateRejected,
}

// String implements fmt.Stringer.
func (s LoanState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LoanState.
func (s LoanState) IsValid() bool {
	for _, candidate := range validLoanStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsActive reports whether the loan still holds money owed to the activity.
func (s LoanState) IsActive() bool {
	return s == LoanStateApproved || s == LoanStateOverdue
}

// ActiveLoanStates lists the states counted as outstanding debt.
func ActiveLoanStates() []LoanState {
	return []LoanState{LoanStateApproved, LoanStateOverdue}
}

// ParseLoanState converts raw input into a LoanState.
func ParseLoanState(value string) (LoanState, error) {
	for _, candidate := range validLoanStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan state %q", value)
}
