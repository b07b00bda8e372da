package checkin_test

import (
	"testing"

	"campus-events/internal/checkin"
	"campus-events/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestDetermineMode(t *testing.T) {
	tests := []struct {
		name       string
		isPaid     bool
		isExternal bool
		want       models.CheckInMode
	}{
		{"internal free event", false, false, models.StudentsScan},
		{"internal paid event", true, false, models.OrganizerScans},
		{"external free event", false, true, models.OrganizerScans},
		{"external paid event", true, true, models.OrganizerScans},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkin.DetermineMode(tt.isPaid, tt.isExternal))
		})
	}
}

func TestShouldGenerateRegistrationQR(t *testing.T) {
	tests := []struct {
		name   string
		mode   models.CheckInMode
		isPaid bool
		want   bool
	}{
		{"students scan never needs a registration QR", models.StudentsScan, false, false},
		{"students scan paid still no registration QR", models.StudentsScan, true, false},
		{"organizer scans paid event uses the ticket QR", models.OrganizerScans, true, false},
		{"organizer scans free event needs a registration QR", models.OrganizerScans, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkin.ShouldGenerateRegistrationQR(tt.mode, tt.isPaid))
		})
	}
}

func TestDetectDrift(t *testing.T) {
	events := []models.Event{
		{ID: "ev-1", IsPaid: false, IsExternalEvent: false, CheckInMode: models.StudentsScan},
		// Flipped to paid after creation, but mode never recomputed.
		{ID: "ev-2", IsPaid: true, IsExternalEvent: false, CheckInMode: models.StudentsScan},
		{ID: "ev-3", IsPaid: false, IsExternalEvent: true, CheckInMode: models.OrganizerScans},
	}

	drifted := checkin.DetectDrift(events)
	assert.Equal(t, []string{"ev-2"}, drifted)
}
