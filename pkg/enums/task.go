package enums

import "fmt"

// TaskStatus maps to the task_status_enum enum in Postgres.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

var validTaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusRunning,
	TaskStatusSucceeded,
	TaskStatusFailed,
}

// IsValid reports whether the value is a known TaskStatus.
func (s TaskStatus) IsValid() bool {
	for _, candidate := range validTaskStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// TaskKind identifies the handler a queued task is dispatched to.
type TaskKind string

const (
	TaskKindInitiateDeposit    TaskKind = "gateway.initiate_deposit"
	TaskKindInitiateWithdrawal TaskKind = "gateway.initiate_withdrawal"
)

var validTaskKinds = []TaskKind{
	TaskKindInitiateDeposit,
	TaskKindInitiateWithdrawal,
}

// String implements fmt.Stringer.
func (k TaskKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known TaskKind.
func (k TaskKind) IsValid() bool {
	for _, candidate := range validTaskKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseTaskKind converts raw input into a TaskKind.
func ParseTaskKind(value string) (TaskKind, error) {
	for _, candidate := range validTaskKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task kind %q", value)
}
