package models

// Scope locates a lecturer or student inside the organisation.
type Scope struct {
	DivisionID string `db:"division_id" json:"divisionId"`
	FacultyID  string `db:"faculty_id" json:"facultyId"`
}

// ScopeFilter restricts fallback matching in the allocation engine.
type ScopeFilter string

const (
	ScopeFilterNone     ScopeFilter = "NONE"
	ScopeFilterDivision ScopeFilter = "DIVISION"
	ScopeFilterFaculty  ScopeFilter = "FACULTY"
)

// Matches compares two scopes under the filter.
func (f ScopeFilter) Matches(a, b Scope) bool {
	switch f {
	case ScopeFilterDivision:
		return a.DivisionID != "" && a.DivisionID == b.DivisionID
	case ScopeFilterFaculty:
		return a.FacultyID != "" && a.FacultyID == b.FacultyID
	default:
		return true
	}
}
