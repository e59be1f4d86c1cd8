package enums

import "fmt"

// TransferKind maps to the transfer_kind_enum enum in Postgres.
type TransferKind string

const (
	TransferKindDeposit              TransferKind = "deposit"
	TransferKindWithdrawal           TransferKind = "withdrawal"
	TransferKindRegistrationFee      TransferKind = "registration_fee"
	TransferKindTransfer             TransferKind = "transfer"
	TransferKindLoanDisbursement     TransferKind = "loan_disbursement"
	TransferKindLoanRepayment        TransferKind = "loan_repayment"
	TransferKindContribution         TransferKind = "contribution"
	TransferKindFinePayment          TransferKind = "fine_payment"
	TransferKindRotationDisbursement TransferKind = "rotation_disbursement"
	TransferKindDividendPayout       TransferKind = "dividend_payout"
)

var validTransferKinds = []TransferKind{
	TransferKindDeposit,
	TransferKindWithdrawal,
	TransferKindRegistrationFee,
	TransferKindTransfer,
	TransferKindLoanDisbursement,
	TransferKindLoanRepayment,
	TransferKindContribution,
	TransferKindFinePayment,
	TransferKindRotationDisbursement,
	TransferKindDividendPayout,
}

// String implements fmt.Stringer.
func (k TransferKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known TransferKind.
func (k TransferKind) IsValid() bool {
	for _, candidate := range validTransferKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsExternal reports whether the transfer settles through the mobile-money gateway.
func (k TransferKind) IsExternal() bool {
	switch k {
	case TransferKindDeposit, TransferKindWithdrawal, TransferKindRegistrationFee:
		return true
	default:
		return false
	}
}

// CodePrefix is the leading segment of derived request codes.
func (k TransferKind) CodePrefix() string {
	switch k {
	case TransferKindDeposit:
		return "DEP"
	case TransferKindWithdrawal:
		return "WDR"
	case TransferKindRegistrationFee:
		return "REG"
	case TransferKindLoanDisbursement:
		return "LND"
	case TransferKindLoanRepayment:
		return "LNR"
	case TransferKindContribution:
		return "CTB"
	case TransferKindFinePayment:
		return "FIN"
	case TransferKindRotationDisbursement:
		return "ROT"
	case TransferKindDividendPayout:
		return "DIV"
	default:
		return "TRF"
	}
}

// ParseTransferKind converts raw input into a TransferKind.
func ParseTransferKind(value string) (TransferKind, error) {
	for _, candidate := range validTransferKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer kind %q", value)
}

// TransferStatus maps to the transfer_status_enum enum in Postgres.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

var validTransferStatuses = []TransferStatus{
	TransferStatusPending,
	TransferStatusCompleted,
	TransferStatusFailed,
}

// String implements fmt.Stringer.
func (s TransferStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransferStatus.
func (s TransferStatus) IsValid() bool {
	for _, candidate := range validTransferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransferStatus converts raw input into a TransferStatus.
func ParseTransferStatus(value string) (TransferStatus, error) {
	for _, candidate := range validTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer status %q", value)
}
