package auth

// Actor is the chat identity performing an operation.
type Actor struct {
	ID    string
	Admin bool
}

// System is the actor used by background jobs.
var System = Actor{ID: "system", Admin: true}

// CanModify reports whether actor may act on a ticket owned by ownerID.
// Administrators may act on any ticket.
func CanModify(actor Actor, ownerID string) bool {
	if actor.Admin {
		return true
	}
	return actor.ID != "" && actor.ID == ownerID
}

// HasRole reports whether roleID is present in memberRoles. An empty roleID
// never matches.
func HasRole(memberRoles []string, roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, r := range memberRoles {
		if r == roleID {
			return true
		}
	}
	return false
}
