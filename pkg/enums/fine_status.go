package enums

// FineStatus maps to the fine_status_enum enum in Postgres.
type FineStatus string

const (
	FineStatusUnpaid FineStatus = "unpaid"
	FineStatusPaid   FineStatus = "paid"
)

func (s FineStatus) IsValid() bool {
	return s == FineStatusUnpaid || s == FineStatusPaid
}
