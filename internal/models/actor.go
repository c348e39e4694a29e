package models

import "github.com/google/uuid"

type Role string

const (
	RoleAdvertiser   Role = "advertiser"
	RoleChannelOwner Role = "channel_owner"
	RoleSystem       Role = "system"
)

// Actor identifies who requests a transition. Construct via SystemActor or
// UserActor — the system/user distinction is carried by the value itself,
// so a scheduler-driven transition can never be attributed to a user and
// a user transition always carries an id.
type Actor struct {
	role   Role
	userID uuid.UUID
}

func SystemActor() Actor {
	return Actor{role: RoleSystem}
}

func UserActor(userID uuid.UUID, role Role) Actor {
	return Actor{role: role, userID: userID}
}

func (a Actor) Role() Role { return a.role }

func (a Actor) IsSystem() bool { return a.role == RoleSystem }

// UserID returns the acting user's id. ok is false for system actors.
func (a Actor) UserID() (uuid.UUID, bool) {
	if a.role == RoleSystem || a.userID == uuid.Nil {
		return uuid.Nil, false
	}
	return a.userID, true
}

// UserIDPtr is a convenience for persisting into nullable actor columns.
func (a Actor) UserIDPtr() *uuid.UUID {
	if id, ok := a.UserID(); ok {
		return &id
	}
	return nil
}
