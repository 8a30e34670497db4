package domain

import "testing"

func twoWindowTimeline(t *testing.T) *Timeline {
	t.Helper()
	return MustTimeline(
		[]Window{
			{FirstPeriodIndex: 0, LastPeriodIndex: 1, DurationUs: 5_000_000, IsSeekable: true},
			{FirstPeriodIndex: 2, LastPeriodIndex: 2, DurationUs: 4_000_000, IsSeekable: true},
		},
		[]Period{
			{UID: "p0", WindowIndex: 0, DurationUs: 3_000_000, PositionInWindowUs: 0},
			{UID: "p1", WindowIndex: 0, DurationUs: 2_000_000, PositionInWindowUs: 3_000_000},
			{UID: "p2", WindowIndex: 1, DurationUs: 4_000_000, PositionInWindowUs: 0},
		},
	)
}

func TestNewTimelineValidation(t *testing.T) {
	tests := []struct {
		name    string
		windows []Window
		periods []Period
	}{
		{
			name:    "periods without windows",
			periods: []Period{{UID: "p0"}},
		},
		{
			name:    "empty uid",
			windows: []Window{{FirstPeriodIndex: 0, LastPeriodIndex: 0}},
			periods: []Period{{UID: ""}},
		},
		{
			name:    "duplicate uid",
			windows: []Window{{FirstPeriodIndex: 0, LastPeriodIndex: 1}},
			periods: []Period{{UID: "p0"}, {UID: "p0"}},
		},
		{
			name:    "period owned by wrong window",
			windows: []Window{{FirstPeriodIndex: 0, LastPeriodIndex: 0}, {FirstPeriodIndex: 1, LastPeriodIndex: 1}},
			periods: []Period{{UID: "p0", WindowIndex: 0}, {UID: "p1", WindowIndex: 0}},
		},
		{
			name:    "trailing periods",
			windows: []Window{{FirstPeriodIndex: 0, LastPeriodIndex: 0}},
			periods: []Period{{UID: "p0"}, {UID: "p1"}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewTimeline(tc.windows, tc.periods); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestIndexOfPeriod(t *testing.T) {
	tl := twoWindowTimeline(t)
	if got := tl.IndexOfPeriod("p1"); got != 1 {
		t.Fatalf("IndexOfPeriod(p1) = %d", got)
	}
	if got := tl.IndexOfPeriod("missing"); got != IndexUnset {
		t.Fatalf("IndexOfPeriod(missing) = %d, want IndexUnset", got)
	}
	if got := tl.UIDOfPeriod(2); got != "p2" {
		t.Fatalf("UIDOfPeriod(2) = %q", got)
	}
}

func TestNextPeriodIndex(t *testing.T) {
	tl := twoWindowTimeline(t)
	tests := []struct {
		name   string
		index  int
		repeat RepeatMode
		want   int
	}{
		{"within window", 0, RepeatOff, 1},
		{"across windows", 1, RepeatOff, 2},
		{"end of timeline", 2, RepeatOff, IndexUnset},
		{"repeat all wraps", 2, RepeatAll, 0},
		{"repeat one stays in window", 1, RepeatOne, 0},
		{"repeat one wraps window", 2, RepeatOne, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tl.NextPeriodIndex(tc.index, tc.repeat, false); got != tc.want {
				t.Fatalf("NextPeriodIndex(%d, %v) = %d, want %d", tc.index, tc.repeat, got, tc.want)
			}
		})
	}
}

func TestNextWindowIndexShuffled(t *testing.T) {
	tl := twoWindowTimeline(t)
	shuffled, err := tl.WithShuffleOrder([]int{1, 0})
	if err != nil {
		t.Fatal(err)
	}
	if got := shuffled.FirstWindowIndex(true); got != 1 {
		t.Fatalf("FirstWindowIndex(shuffle) = %d", got)
	}
	if got := shuffled.NextWindowIndex(1, RepeatOff, true); got != 0 {
		t.Fatalf("NextWindowIndex(1) = %d", got)
	}
	if got := shuffled.NextWindowIndex(0, RepeatOff, true); got != IndexUnset {
		t.Fatalf("NextWindowIndex(0) = %d, want IndexUnset", got)
	}
	if got := shuffled.NextWindowIndex(0, RepeatAll, true); got != 1 {
		t.Fatalf("NextWindowIndex(0, all) = %d", got)
	}
	// Without shuffle the natural order applies.
	if got := shuffled.NextWindowIndex(0, RepeatOff, false); got != 1 {
		t.Fatalf("NextWindowIndex(0, no shuffle) = %d", got)
	}
}

func TestPeriodPositionUs(t *testing.T) {
	tl := twoWindowTimeline(t)
	tests := []struct {
		name       string
		window     int
		positionUs int64
		wantUID    string
		wantPosUs  int64
	}{
		{"first period", 0, 1_000_000, "p0", 1_000_000},
		{"second period", 0, 4_500_000, "p1", 1_500_000},
		{"period boundary belongs to successor", 0, 3_000_000, "p1", 0},
		{"default position", 0, TimeUnset, "p0", 0},
		{"second window", 1, 500_000, "p2", 500_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uid, posUs := tl.PeriodPositionUs(tc.window, tc.positionUs)
			if uid != tc.wantUID || posUs != tc.wantPosUs {
				t.Fatalf("PeriodPositionUs = (%q, %d), want (%q, %d)", uid, posUs, tc.wantUID, tc.wantPosUs)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to PlaybackState
		want     bool
	}{
		{StateIdle, StateBuffering, true},
		{StateIdle, StateReady, false},
		{StateBuffering, StateReady, true},
		{StateReady, StateEnded, true},
		{StateEnded, StateBuffering, true},
		{StateEnded, StateReady, false},
	}
	for _, tc := range tests {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%v, %v) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestUsMsConversion(t *testing.T) {
	if got := UsToMs(1_500_000); got != 1500 {
		t.Fatalf("UsToMs = %d", got)
	}
	if got := UsToMs(TimeUnset); got != TimeUnset {
		t.Fatalf("UsToMs(TimeUnset) = %d", got)
	}
	if got := MsToUs(TimeUnset); got != TimeUnset {
		t.Fatalf("MsToUs(TimeUnset) = %d", got)
	}
	if got := MsToUs(2500); got != 2_500_000 {
		t.Fatalf("MsToUs = %d", got)
	}
}
