package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Helpers(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		holds    bool
	}{
		{StatusPending, false, true},
		{StatusConfirmed, false, true},
		{StatusCompleted, true, true},
		{StatusCancelled, true, false},
		{StatusRejected, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.holds, tt.status.HoldsSlot())
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, s)

	_, err = ParseStatus("Confirmed")
	assert.Error(t, err)
	_, err = ParseStatus("")
	assert.Error(t, err)
}

func TestServiceType_Valid(t *testing.T) {
	for _, st := range ServiceTypes {
		assert.True(t, st.Valid(), st)
	}
	assert.False(t, ServiceType("funeral").Valid())
}

func TestBooking_OwnedBy(t *testing.T) {
	user := "user-1"
	empty := ""

	assert.True(t, (&Booking{UserID: &user}).OwnedBy("user-1"))
	assert.False(t, (&Booking{UserID: &user}).OwnedBy("user-2"))
	assert.False(t, (&Booking{}).OwnedBy("user-1"))
	assert.False(t, (&Booking{UserID: &empty}).OwnedBy(""))
}

func TestBooking_ScheduledStart(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	date, err := ParseDate("2026-10-24")
	require.NoError(t, err)
	b := &Booking{Date: date, StartTime: "18:30"}

	start, err := b.ScheduledStart(ist)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 24, 13, 0, 0, 0, time.UTC), start.UTC())

	start, err = b.ScheduledStart(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 24, 18, 30, 0, 0, time.UTC), start)

	b.StartTime = "6pm"
	_, err = b.ScheduledStart(ist)
	assert.Error(t, err)
}

func TestDay(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	// 20:00 UTC on the 18th is already the 19th in India.
	instant := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), Day(instant.In(ist)))
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), Day(instant))

	b := &Booking{Date: Day(instant.In(ist))}
	assert.Equal(t, "2026-10-19", b.DateString())
}
