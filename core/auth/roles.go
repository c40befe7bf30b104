package auth

// Role is the closed set of capabilities a Session can carry.
type Role string

const (
	RoleSystemAdmin      Role = "system_admin"
	RoleSchoolAdmin      Role = "school_admin"
	RoleDepartmentHead   Role = "department_head"
	RoleTeacher          Role = "teacher"
	RoleStudent          Role = "student"
	RoleParent           Role = "parent"
	RolePlatformOperator Role = "platform_operator" // reviews school registrations
)

var (
	AllRoles = []Role{
		RoleSystemAdmin,
		RoleSchoolAdmin,
		RoleDepartmentHead,
		RoleTeacher,
		RoleStudent,
		RoleParent,
		RolePlatformOperator,
	}

	SchoolStaffRoles = []Role{RoleSystemAdmin, RoleSchoolAdmin, RoleDepartmentHead, RoleTeacher}
)

func (r Role) Valid() bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// ParseRole returns the Role named s, if any.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Decision is the result of Authorize.
type Decision int

const (
	Denied Decision = iota
	Permitted
)

func (d Decision) String() string {
	if d == Permitted {
		return "permitted"
	}
	return "denied"
}

// Authorize decides whether role may perform an action restricted to allowed.
// An empty allow-set permits any role.
func Authorize(role Role, allowed []Role) Decision {
	if len(allowed) == 0 {
		return Permitted
	}
	for _, r := range allowed {
		if r == role {
			return Permitted
		}
	}
	return Denied
}
