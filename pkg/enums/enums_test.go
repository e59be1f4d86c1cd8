package enums

import "testing"

func TestAccountKindLockRankFollowsAcquisitionOrder(t *testing.T) {
	order := []AccountKind{AccountKindWallet, AccountKindActivity, AccountKindGroup, AccountKindPlatform}
	for i := 1; i < len(order); i++ {
		if order[i-1].LockRank() >= order[i].LockRank() {
			t.Fatalf("%s must lock before %s", order[i-1], order[i])
		}
	}
	if AccountKind("bogus").LockRank() != 0 {
		t.Fatalf("unknown kinds should have rank 0")
	}
}

func TestParseTransferKind(t *testing.T) {
	kind, err := ParseTransferKind("registration_fee")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !kind.IsExternal() {
		t.Fatalf("registration fee settles through the gateway")
	}
	if TransferKindLoanRepayment.IsExternal() {
		t.Fatalf("loan repayment is a local transfer")
	}
	if _, err := ParseTransferKind("refund"); err == nil {
		t.Fatalf("expected invalid kind to fail")
	}
}

func TestLoanStateIsActive(t *testing.T) {
	tests := map[LoanState]bool{
		LoanStateAwaitingApproval: false,
		LoanStateApproved:         true,
		LoanStateOverdue:          true,
		LoanStateCleared:          false,
		LoanStateRejected:         false,
	}
	for state, want := range tests {
		if state.IsActive() != want {
			t.Fatalf("state %s: expected active=%v", state, want)
		}
	}
}

func TestMemberRole(t *testing.T) {
	role, err := ParseMemberRole(" Manager ")
	if err != nil || role != MemberRoleManager || !role.CanManage() {
		t.Fatalf("unexpected parse %q %v", role, err)
	}
	if MemberRoleMember.CanManage() {
		t.Fatalf("plain members cannot manage")
	}
	if _, err := ParseMemberRole("treasurer"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestOutboxDLQReasonReplayable(t *testing.T) {
	if !OutboxDLQReasonMaxAttempts.Replayable() {
		t.Fatalf("exhausted retries may be replayed")
	}
	for _, r := range []OutboxDLQErrorReason{OutboxDLQReasonNonRetryable, OutboxDLQReasonUnroutable} {
		if !r.IsValid() || r.Replayable() {
			t.Fatalf("%s should be valid and not replayable", r)
		}
	}
	if OutboxDLQErrorReason("gone").IsValid() {
		t.Fatalf("unknown reason must be invalid")
	}
}
