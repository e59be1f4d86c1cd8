package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/chama-backend/pkg/enums"
)

// AccountRef names an account by kind and owner.
type AccountRef struct {
	Kind    enums.AccountKind
	OwnerID uuid.UUID
}

func Wallet(memberID uuid.UUID) AccountRef {
	return AccountRef{Kind: enums.AccountKindWallet, OwnerID: memberID}
}

func ActivityAccount(activityID uuid.UUID) AccountRef {
	return AccountRef{Kind: enums.AccountKindActivity, OwnerID: activityID}
}

func GroupAccount(groupID uuid.UUID) AccountRef {
	return AccountRef{Kind: enums.AccountKindGroup, OwnerID: groupID}
}

// Platform is the singleton fee account.
func Platform() AccountRef {
	return AccountRef{Kind: enums.AccountKindPlatform, OwnerID: uuid.Nil}
}

func (r AccountRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.OwnerID)
}

func (r AccountRef) validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid account kind %q", r.Kind)
	}
	if r.Kind != enums.AccountKindPlatform && r.OwnerID == uuid.Nil {
		return fmt.Errorf("%s account requires an owner", r.Kind)
	}
	return nil
}

// compareRefs orders refs by lock rank, then owner id.
func compareRefs(a, b AccountRef) int {
	ra, rb := a.Kind.LockRank(), b.Kind.LockRank()
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	return strings.Compare(a.OwnerID.String(), b.OwnerID.String())
}
