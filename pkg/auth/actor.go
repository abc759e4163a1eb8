package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
)

// Actor is the authenticated caller as seen by domain services.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.UserRoleAdmin
}

// Owns reports whether the actor is the given owner.
func (a Actor) Owns(owner uuid.UUID) bool {
	return a.UserID != uuid.Nil && a.UserID == owner
}

// Valid reports whether the actor carries an identity and a known role.
func (a Actor) Valid() bool {
	return a.UserID != uuid.Nil && a.Role.IsValid()
}

// Ref returns a pointer to the user id, handy for nullable actor columns.
func (a Actor) Ref() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}
