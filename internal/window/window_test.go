package window

import (
	"testing"
	"time"

	"github.com/ChuLiYu/campaign-dispatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-06-04 is a Wednesday (weekday 3)
func at(hour, minute int) time.Time {
	return time.Date(2025, time.June, 4, hour, minute, 0, 0, time.Local)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"9:30", 0, true},
		{"09-30", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidClock, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestIsWithinSendingWindow_NilWindowAlwaysAllowed(t *testing.T) {
	for _, h := range []int{0, 6, 12, 23} {
		assert.True(t, IsWithinSendingWindow(nil, at(h, 0)))
	}
}

func TestIsWithinSendingWindow_MissingBoundsAllowed(t *testing.T) {
	noStart := &types.SendingWindow{EndTime: "18:00"}
	noEnd := &types.SendingWindow{StartTime: "09:00"}
	malformed := &types.SendingWindow{StartTime: "9am", EndTime: "18:00"}

	for _, h := range []int{3, 12, 22} {
		assert.True(t, IsWithinSendingWindow(noStart, at(h, 0)))
		assert.True(t, IsWithinSendingWindow(noEnd, at(h, 0)))
		assert.True(t, IsWithinSendingWindow(malformed, at(h, 0)))
	}
}

func TestIsWithinSendingWindow_TimeOfDay(t *testing.T) {
	w := &types.SendingWindow{StartTime: "09:00", EndTime: "18:00"}

	tests := []struct {
		name    string
		instant time.Time
		want    bool
	}{
		{"before start", at(8, 59), false},
		{"at start", at(9, 0), true},
		{"inside", at(12, 30), true},
		{"last minute", at(17, 59), true},
		{"at end is exclusive", at(18, 0), false},
		{"after end", at(21, 15), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinSendingWindow(w, tt.instant))
		})
	}
}

func TestIsWithinSendingWindow_Days(t *testing.T) {
	weekdays := &types.SendingWindow{StartTime: "09:00", EndTime: "18:00", Days: []int{1, 2, 3, 4, 5}}
	weekend := &types.SendingWindow{StartTime: "09:00", EndTime: "18:00", Days: []int{0, 6}}
	emptyDays := &types.SendingWindow{StartTime: "09:00", EndTime: "18:00", Days: []int{}}

	assert.True(t, IsWithinSendingWindow(weekdays, at(10, 0)))
	assert.False(t, IsWithinSendingWindow(weekend, at(10, 0)), "Wednesday is not in the weekend set")
	assert.False(t, IsWithinSendingWindow(weekend, at(3, 0)), "day check fails regardless of time")
	assert.True(t, IsWithinSendingWindow(emptyDays, at(10, 0)))

	sunday := time.Date(2025, time.June, 1, 10, 0, 0, 0, time.Local)
	assert.True(t, IsWithinSendingWindow(weekend, sunday))
}

func TestIsWithinSendingWindow_UsesInstantLocation(t *testing.T) {
	w := &types.SendingWindow{StartTime: "09:00", EndTime: "10:00"}
	tokyo := time.FixedZone("JST", 9*3600)

	// 00:30 UTC is 09:30 in Tokyo
	instant := time.Date(2025, time.June, 4, 0, 30, 0, 0, time.UTC)
	assert.False(t, IsWithinSendingWindow(w, instant))
	assert.True(t, IsWithinSendingWindow(w, instant.In(tokyo)))
}

func TestIsWithinSendingWindow_InvertedWindowNeverMatches(t *testing.T) {
	w := &types.SendingWindow{StartTime: "22:00", EndTime: "06:00"}
	for _, h := range []int{0, 3, 12, 22, 23} {
		assert.False(t, IsWithinSendingWindow(w, at(h, 0)))
	}
}

func TestNextOpening(t *testing.T) {
	w := &types.SendingWindow{StartTime: "09:00", EndTime: "18:00", Days: []int{3, 4}}

	open, ok := NextOpening(w, at(12, 0))
	require.True(t, ok)
	assert.Equal(t, at(12, 0), open, "already open")

	open, ok = NextOpening(w, at(7, 15))
	require.True(t, ok)
	assert.Equal(t, at(9, 0), open, "later today")

	open, ok = NextOpening(w, at(19, 0))
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, time.June, 5, 9, 0, 0, 0, time.Local), open, "tomorrow (Thursday)")

	_, ok = NextOpening(&types.SendingWindow{StartTime: "22:00", EndTime: "06:00"}, at(12, 0))
	assert.False(t, ok)

	_, ok = NextOpening(&types.SendingWindow{StartTime: "09:00", EndTime: "18:00", Days: []int{9}}, at(12, 0))
	assert.False(t, ok)
}
