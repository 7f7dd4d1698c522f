package models

// ActorRole is the closed set of roles an authenticated caller may hold.
type ActorRole string

const (
	RoleAdmin        ActorRole = "ADMIN"
	RoleStudent      ActorRole = "STUDENT"
	RoleLecturer     ActorRole = "LECTURER"
	RoleDivisionHead ActorRole = "DIVISION_HEAD"
	RoleDean         ActorRole = "DEAN"
)

// Valid reports whether the role belongs to the closed set.
func (r ActorRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleStudent, RoleLecturer, RoleDivisionHead, RoleDean:
		return true
	}
	return false
}

// UserKind distinguishes student accounts from faculty accounts.
type UserKind string

const (
	UserKindStudent UserKind = "student"
	UserKindFaculty UserKind = "faculty"
)

// MemberRole tags a proposal or project membership row. It is shared by the
// proposal and official project domains.
type MemberRole string

const (
	MemberRoleStudent   MemberRole = "STUDENT"
	MemberRoleAdvisor   MemberRole = "ADVISOR"
	MemberRoleCoAdvisor MemberRole = "CO_ADVISOR"
)

// IsFaculty reports whether the role is held by a lecturer rather than a student.
func (r MemberRole) IsFaculty() bool {
	return r == MemberRoleAdvisor || r == MemberRoleCoAdvisor
}
