package enums

import "fmt"

// AccountKind maps to the account_kind_enum enum in Postgres.
type AccountKind string

const (
	AccountKindWallet   AccountKind = "wallet"
	AccountKindActivity AccountKind = "activity"
	AccountKindGroup    AccountKind = "group"
	AccountKindPlatform AccountKind = "platform"
)

var validAccountKinds = []AccountKind{
	AccountKindWallet,
	AccountKindActivity,
	AccountKindGroup,
	AccountKindPlatform,
}

// String implements fmt.Stringer.
func (k AccountKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known AccountKind.
func (k AccountKind) IsValid() bool {
	for _, candidate := range validAccountKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// LockRank is the position of the kind in the global lock acquisition order.
// Wallets are always locked first and the platform account last.
func (k AccountKind) LockRank() int {
	for i, candidate := range validAccountKinds {
		if candidate == k {
			return i + 1
		}
	}
	return 0
}

// ParseAccountKind converts raw input into an AccountKind.
func ParseAccountKind(value string) (AccountKind, error) {
	for _, candidate := range validAccountKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid account kind %q", value)
}

// EntryDirection marks a journal leg.
type EntryDirection string

const (
	EntryDebit  EntryDirection = "debit"
	EntryCredit EntryDirection = "credit"
)

func (d EntryDirection) IsValid() bool {
	return d == EntryDebit || d == EntryCredit
}
