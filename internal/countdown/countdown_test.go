package countdown_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprintdesk/internal/countdown"
)

func TestUntilBreakdown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	target := now.Add(2*24*time.Hour + 3*time.Hour + 4*time.Minute + 5*time.Second)
	r := countdown.Until(target, now)
	assert.Equal(t, 2, r.Days)
	assert.Equal(t, 3, r.Hours)
	assert.Equal(t, 4, r.Minutes)
	assert.Equal(t, 5, r.Seconds)
	assert.False(t, r.Overdue)
	assert.Equal(t, "2d 03h 04m 05s", r.String())
}

func TestUntilPastTargetIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := countdown.Until(now.Add(-time.Second), now)
	assert.True(t, r.Overdue)
	assert.Equal(t, countdown.Remaining{Overdue: true}, r)
	assert.Equal(t, "overdue", r.String())

	// The exact instant counts as passed too.
	r = countdown.Until(now, now)
	assert.True(t, r.Overdue)
}

func TestNextDailyDeadlineSameDay(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)
	target, err := countdown.NextDailyDeadline("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), target)
}

func TestNextDailyDeadlineRollsToTomorrow(t *testing.T) {
	// At 10:00 a 09:00 deadline re-anchors to tomorrow, never goes negative.
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	target, err := countdown.NextDailyDeadline("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), target)

	r := countdown.Until(target, now)
	assert.False(t, r.Overdue)
	assert.Equal(t, 23*time.Hour, r.Duration())
}

func TestNextDailyDeadlineExactMoment(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	target, err := countdown.NextDailyDeadline("09:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), target)
}

func TestNextDailyDeadlineInvalid(t *testing.T) {
	_, err := countdown.NextDailyDeadline("25:99", time.Now())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	th := countdown.DefaultThresholds()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		target time.Time
		want   countdown.Urgency
	}{
		{"overdue", now.Add(-time.Hour), countdown.Overdue},
		{"urgent", now.Add(time.Hour), countdown.Urgent},
		{"soon", now.Add(12 * time.Hour), countdown.Soon},
		{"upcoming", now.Add(48 * time.Hour), countdown.Upcoming},
		{"relaxed", now.Add(200 * time.Hour), countdown.Relaxed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := countdown.Until(tc.target, now)
			assert.Equal(t, tc.want, countdown.Classify(r, th))
		})
	}
}

func TestTickerDelivers(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tk := countdown.NewTicker(base.Add(time.Hour), func() time.Time { return base })
	defer tk.Stop()
	select {
	case r := <-tk.C:
		assert.Equal(t, time.Hour, r.Duration())
	case <-time.After(3 * time.Second):
		t.Fatal("no tick delivered")
	}
}
