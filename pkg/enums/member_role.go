package enums

import (
	"fmt"
	"strings"
)

// MemberRole is a member's standing within one group. Managers create
// activities, approve loans, issue fines and trigger payouts.
type MemberRole string

const (
	MemberRoleManager MemberRole = "manager"
	MemberRoleMember  MemberRole = "member"
)

func (m MemberRole) String() string {
	return string(m)
}

func (m MemberRole) IsValid() bool {
	return m == MemberRoleManager || m == MemberRoleMember
}

// CanManage reports whether the role may run manager-only operations.
func (m MemberRole) CanManage() bool {
	return m == MemberRoleManager
}

// ParseMemberRole accepts either role name in any case.
func ParseMemberRole(value string) (MemberRole, error) {
	role := MemberRole(strings.ToLower(strings.TrimSpace(value)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid member role %q", value)
	}
	return role, nil
}
