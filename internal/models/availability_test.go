package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		minutes int
		wantErr bool
	}{
		{name: "midnight", raw: "00:00", minutes: 0},
		{name: "morning", raw: "09:30", minutes: 570},
		{name: "last minute of the day", raw: "23:59", minutes: 1439},
		{name: "trailing garbage", raw: "12:34xyz", wantErr: true},
		{name: "single digit hour", raw: "9:30", wantErr: true},
		{name: "hour out of range", raw: "24:00", wantErr: true},
		{name: "minute out of range", raw: "12:60", wantErr: true},
		{name: "missing colon", raw: "12345", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			minutes, err := ParseClock(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.minutes, minutes)
		})
	}
}

func TestFormatClockRoundTrip(t *testing.T) {
	for _, minute := range []int{0, 570, 1439} {
		parsed, err := ParseClock(FormatClock(minute))
		require.NoError(t, err)
		assert.Equal(t, minute, parsed)
	}
}
