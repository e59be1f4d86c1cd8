package models

// All lists every table the engine owns, in dependency order.
func All() []any {
	return []any{
		&Member{},
		&Group{},
		&GroupMember{},
		&Activity{},
		&ActivityMember{},
		&Account{},
		&LedgerEntry{},
		&Transfer{},
		&Task{},
		&Contribution{},
		&RotationSlot{},
		&SoftLoan{},
		&LoanManagement{},
		&DividendPool{},
		&Disbursement{},
		&Fine{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
