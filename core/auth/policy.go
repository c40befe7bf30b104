package auth

// Protected actions.
const (
	ActionCurrentSession = "session.current"

	ActionListPendingRegistrations = "registrations.list_pending"
	ActionGetRegistration          = "registrations.get"
	ActionApproveRegistration      = "registrations.approve"
	ActionRejectRegistration       = "registrations.reject"

	ActionViewDashboard  = "dashboard.view"
	ActionViewStudents   = "students.view"
	ActionManageStudents = "students.manage"
	ActionViewResults    = "results.view"
	ActionManageResults  = "results.manage"
)

// Policy maps each protected action to the roles allowed to perform it.
// An action mapped to an empty allow-set is open to any validated session.
type Policy map[string][]Role

// AllowSet returns the allow-set of action and whether the action is known.
func (p Policy) AllowSet(action string) ([]Role, bool) {
	allowed, ok := p[action]
	return allowed, ok
}

// DefaultPolicy is the action policy of the platform.
var DefaultPolicy = Policy{
	ActionCurrentSession: {},
	ActionViewDashboard:  {},

	ActionListPendingRegistrations: {RolePlatformOperator},
	ActionGetRegistration:          {RolePlatformOperator},
	ActionApproveRegistration:      {RolePlatformOperator},
	ActionRejectRegistration:       {RolePlatformOperator},

	ActionViewStudents:   {RoleSystemAdmin, RoleSchoolAdmin, RoleDepartmentHead, RoleTeacher},
	ActionManageStudents: {RoleSystemAdmin, RoleSchoolAdmin},
	ActionViewResults:    {RoleSystemAdmin, RoleSchoolAdmin, RoleDepartmentHead, RoleTeacher, RoleStudent, RoleParent},
	ActionManageResults:  {RoleSchoolAdmin, RoleDepartmentHead, RoleTeacher},
}
