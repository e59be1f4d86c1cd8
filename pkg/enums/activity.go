package enums

import "fmt"

// ActivityType maps to the activity_type_enum enum in Postgres.
type ActivityType string

const (
	ActivityTypeFixedSavings ActivityType = "fixed_savings"
	ActivityTypeMerryGoRound ActivityType = "merry_go_round"
	ActivityTypeTableBanking ActivityType = "table_banking"
)

var validActivityTypes = []ActivityType{
	ActivityTypeFixedSavings,
	ActivityTypeMerryGoRound,
	ActivityTypeTableBanking,
}

// String implements fmt.Stringer.
func (t ActivityType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ActivityType.
func (t ActivityType) IsValid() bool {
	for _, candidate := range validActivityTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseActivityType converts raw input into an ActivityType.
func ParseActivityType(value string) (ActivityType, error) {
	for _, candidate := range validActivityTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid activity type %q", value)
}

// ContributionInterval maps to the contribution_interval_enum enum in Postgres.
type ContributionInterval string

const (
	IntervalDaily   ContributionInterval = "daily"
	IntervalWeekly  ContributionInterval = "weekly"
	IntervalMonthly ContributionInterval = "monthly"
	IntervalCustom  ContributionInterval = "custom"
)

var validContributionIntervals = []ContributionInterval{
	IntervalDaily,
	IntervalWeekly,
	IntervalMonthly,
	IntervalCustom,
}

// String implements fmt.Stringer.
func (i ContributionInterval) String() string {
	return string(i)
}

// IsValid reports whether the value is a known ContributionInterval.
func (i ContributionInterval) IsValid() bool {
	for _, candidate := range validContributionIntervals {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseContributionInterval converts raw input into a ContributionInterval.
func ParseContributionInterval(value string) (ContributionInterval, error) {
	for _, candidate := range validContributionIntervals {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contribution interval %q", value)
}

// DividendMode controls whether principal contributions are returned with dividends.
type DividendMode string

const (
	DividendModeDividendsOnly         DividendMode = "dividends_only"
	DividendModeDividendsAndPrincipal DividendMode = "dividends_and_principal"
)

// IsValid reports whether the value is a known DividendMode.
func (m DividendMode) IsValid() bool {
	return m == DividendModeDividendsOnly || m == DividendModeDividendsAndPrincipal
}

// ParseDividendMode converts raw input into a DividendMode.
func ParseDividendMode(value string) (DividendMode, error) {
	mode := DividendMode(value)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid dividend mode %q", value)
	}
	return mode, nil
}
