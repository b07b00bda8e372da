package auth

import (
	"campus-events/internal/models"
)

// Role is the closed set of platform roles. Authorization decisions are pure
// predicates over (actor, resource) rather than inline string checks.
type Role string

const (
	RoleStudent         Role = "STUDENT"
	RoleOrganizer       Role = "ORGANIZER"
	RoleAdmin           Role = "ADMIN"
	RoleModerator       Role = "MODERATOR"
	RoleFaculty         Role = "FACULTY"
	RoleExternalPartner Role = "EXTERNAL_PARTNER"
)

// Actor is an authenticated caller.
type Actor struct {
	ID   string
	Role Role
}

// ParseRole maps a raw claim value onto the closed role set, defaulting to
// STUDENT for anything unknown.
func ParseRole(raw string) Role {
	switch Role(raw) {
	case RoleOrganizer, RoleAdmin, RoleModerator, RoleFaculty, RoleExternalPartner, RoleStudent:
		return Role(raw)
	default:
		return RoleStudent
	}
}

// strongestRole picks the most privileged role from a token's role claims.
func strongestRole(raws []string) Role {
	precedence := []Role{RoleAdmin, RoleOrganizer, RoleModerator, RoleFaculty, RoleExternalPartner}
	held := make(map[Role]bool, len(raws))
	for _, raw := range raws {
		held[ParseRole(raw)] = true
	}
	for _, r := range precedence {
		if held[r] {
			return r
		}
	}
	return RoleStudent
}

// CanManageCheckIn allows the event's creator and elevated staff to check
// attendees in and out.
func CanManageCheckIn(actor Actor, event *models.Event) bool {
	if actor.ID != "" && actor.ID == event.CreatorID {
		return true
	}
	return actor.Role == RoleOrganizer || actor.Role == RoleAdmin
}

// CanVerifyPayment allows only the event's organizer-of-record, or the
// external partner account holding the event, to decide receipt verifications.
// A generic organizer role is deliberately not enough.
func CanVerifyPayment(actor Actor, event *models.Event) bool {
	if actor.ID == "" {
		return false
	}
	if actor.ID == event.CreatorID {
		return true
	}
	return event.ExternalPartnerID != "" && actor.ID == event.ExternalPartnerID
}

// CanCancelRegistration allows only the registrant to cancel their own spot.
func CanCancelRegistration(actor Actor, registration *models.Registration) bool {
	return actor.ID != "" && actor.ID == registration.UserID
}
