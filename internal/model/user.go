package model

// Role is the privilege level granted by the identity provider.
type Role string

const (
	RoleCustomer  Role = "customer"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// User is an account owned by the identity provider. The engine only reads it.
type User struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Blocked bool   `json:"isBlocked"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

// IsModerator reports whether the actor may approve or reject events.
func (a Actor) IsModerator() bool {
	return a.Role == RoleAdmin
}

// CanOrganize reports whether the actor may create events.
func (a Actor) CanOrganize() bool {
	return a.Role == RoleOrganizer || a.Role == RoleAdmin
}

// CanManage reports whether the actor may manage e: its organizer or a
// moderator.
func (a Actor) CanManage(e *Event) bool {
	return a.IsModerator() || e.OwnedBy(a.UserID)
}
