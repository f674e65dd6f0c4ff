package scheduling

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("07:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(450), got)
	assert.Equal(t, "07:30", got.String())
	assert.Equal(t, 7*time.Hour+30*time.Minute, got.Duration())

	for _, bad := range []string{"", "7", "24:00", "07:60", "07:30x", "ab:cd"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfDayJSON(t *testing.T) {
	var v struct {
		Start TimeOfDay `json:"start"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"13:05"}`), &v))
	assert.Equal(t, MustTimeOfDay("13:05"), v.Start)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"13:05"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"start":"1pm"}`), &v))
}

func TestCivilDate(t *testing.T) {
	ny := time.FixedZone("EST", -5*60*60)

	// 02:00 UTC on the 3rd is still the 2nd in New York
	instant := time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, date("2026-03-02"), CivilDate(instant, ny))
	assert.Equal(t, date("2026-03-03"), CivilDate(instant, time.UTC))
}

func TestTemplateMatches(t *testing.T) {
	weekly := SessionTemplate{Weekday: Wednesday, RecurrencePattern: RecurrenceWeekly}
	daily := SessionTemplate{Weekday: Wednesday, RecurrencePattern: RecurrenceDaily}

	assert.True(t, weekly.Matches(date("2026-03-04")))
	assert.False(t, weekly.Matches(date("2026-03-05")))
	assert.True(t, daily.Matches(date("2026-03-05")))
}

func TestSessionOverlaps(t *testing.T) {
	base := ScheduledSession{CenterID: 1, Date: date("2026-03-02"), StartTime: MustTimeOfDay("07:00"), EndTime: MustTimeOfDay("11:00")}

	cases := []struct {
		name string
		o    ScheduledSession
		want bool
	}{
		{"inside", ScheduledSession{CenterID: 1, Date: base.Date, StartTime: MustTimeOfDay("08:00"), EndTime: MustTimeOfDay("09:00")}, true},
		{"touching", ScheduledSession{CenterID: 1, Date: base.Date, StartTime: MustTimeOfDay("11:00"), EndTime: MustTimeOfDay("15:00")}, false},
		{"other day", ScheduledSession{CenterID: 1, Date: date("2026-03-03"), StartTime: base.StartTime, EndTime: base.EndTime}, false},
		{"other center", ScheduledSession{CenterID: 2, Date: base.Date, StartTime: base.StartTime, EndTime: base.EndTime}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, base.Overlaps(tc.o))
			assert.Equal(t, tc.want, tc.o.Overlaps(base))
		})
	}
}

func TestAppointmentStatusActive(t *testing.T) {
	assert.True(t, StatusBooked.Active())
	assert.True(t, StatusRescheduled.Active())
	assert.False(t, StatusCanceled.Active())
	assert.False(t, StatusCompleted.Active())
}
