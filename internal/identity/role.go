package identity

// Role is a user's access tier.
type Role string

const (
	RoleStandard Role = "standard"
	RolePremium  Role = "premium"
	RoleAdmin    Role = "admin"
)

// roleRank orders roles by authority. Admin outranks billing-derived
// tiers, which is what keeps a late subscription event from undoing an
// admin promotion.
var roleRank = map[Role]int{
	RoleStandard: 0,
	RolePremium:  1,
	RoleAdmin:    2,
}

// ParseRole returns the role for s, or false if s is not a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	_, ok := roleRank[r]
	return r, ok
}

// Valid reports whether r is one of the closed set of roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r carries at least the authority of other.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}
