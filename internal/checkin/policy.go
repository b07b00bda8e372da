// Package checkin holds the check-in mode policy: two pure functions that every
// registration and ticket QR decision in the system reduces to.
package checkin

import (
	"campus-events/internal/models"
)

// DetermineMode maps event attributes to who scans whom at the door.
//
// External events always use organizer-side scanning so partner attendance
// analytics work regardless of price. Internal paid events also use it because
// the paid ticket carries the QR. Only internal free events hand the QR to the
// event itself and let students scan it.
func DetermineMode(isPaid, isExternalEvent bool) models.CheckInMode {
	if isExternalEvent {
		return models.OrganizerScans
	}
	if isPaid {
		return models.OrganizerScans
	}
	return models.StudentsScan
}

// ShouldGenerateRegistrationQR reports whether a registration row needs its own
// QR code. Under StudentsScan the event carries the code; under OrganizerScans
// a paid event's ticket carries it. That leaves exactly the external-free-event
// case, where the registration QR exists purely for attendance analytics.
func ShouldGenerateRegistrationQR(mode models.CheckInMode, isPaid bool) bool {
	return mode == models.OrganizerScans && !isPaid
}

// DetectDrift returns the IDs of events whose persisted check-in mode no longer
// matches what DetermineMode yields for their current attributes. The stored
// mode is not recomputed on attribute updates, so drift accumulates until the
// backfill utility repairs it.
func DetectDrift(events []models.Event) []string {
	var drifted []string
	for _, ev := range events {
		if ev.CheckInMode != DetermineMode(ev.IsPaid, ev.IsExternalEvent) {
			drifted = append(drifted, ev.ID)
		}
	}
	return drifted
}
