package domain

import (
	"errors"
	"fmt"
)

// Window is one logical presentation unit (a playlist item), possibly made
// of several consecutive periods.
type Window struct {
	Tag                     any
	FirstPeriodIndex        int
	LastPeriodIndex         int
	DefaultStartPositionUs  int64
	DurationUs              int64 // TimeUnset if unknown
	PositionInFirstPeriodUs int64 // window start offset inside its first period
	IsSeekable              bool
	IsDynamic               bool
}

// Period is a contiguous content span within a window.
type Period struct {
	UID                string
	WindowIndex        int
	DurationUs         int64 // TimeUnset if unknown
	PositionInWindowUs int64
	Ads                AdPlaybackState
}

// Timeline is an immutable, finite sequence of windows and their periods.
// All navigation methods are pure; callers share timelines by reference and
// never mutate them.
type Timeline struct {
	windows  []Window
	periods  []Period
	shuffled []int // window traversal order with shuffle enabled
	uidIndex map[string]int
}

// EmptyTimeline has no windows and no periods.
var EmptyTimeline = &Timeline{uidIndex: map[string]int{}}

// NewTimeline validates the window/period topology and builds the uid index.
func NewTimeline(windows []Window, periods []Period) (*Timeline, error) {
	if (len(windows) == 0) != (len(periods) == 0) {
		return nil, errors.New("timeline: windows and periods must be empty together")
	}
	uidIndex := make(map[string]int, len(periods))
	for i, p := range periods {
		if p.UID == "" {
			return nil, fmt.Errorf("timeline: period %d has empty uid", i)
		}
		if _, dup := uidIndex[p.UID]; dup {
			return nil, fmt.Errorf("timeline: duplicate period uid %q", p.UID)
		}
		uidIndex[p.UID] = i
	}
	next := 0
	for w, win := range windows {
		if win.FirstPeriodIndex != next || win.LastPeriodIndex < win.FirstPeriodIndex {
			return nil, fmt.Errorf("timeline: window %d has non-contiguous periods", w)
		}
		for i := win.FirstPeriodIndex; i <= win.LastPeriodIndex; i++ {
			if i >= len(periods) || periods[i].WindowIndex != w {
				return nil, fmt.Errorf("timeline: period %d not owned by window %d", i, w)
			}
		}
		next = win.LastPeriodIndex + 1
	}
	if next != len(periods) {
		return nil, errors.New("timeline: trailing periods not owned by any window")
	}
	return &Timeline{windows: windows, periods: periods, uidIndex: uidIndex}, nil
}

// MustTimeline is NewTimeline for statically known-good topologies.
func MustTimeline(windows []Window, periods []Period) *Timeline {
	t, err := NewTimeline(windows, periods)
	if err != nil {
		panic(err)
	}
	return t
}

// WithShuffleOrder returns a copy traversing windows in the given order
// when shuffle is enabled. The order must be a permutation of all windows.
func (t *Timeline) WithShuffleOrder(order []int) (*Timeline, error) {
	if len(order) != len(t.windows) {
		return nil, errors.New("timeline: shuffle order length mismatch")
	}
	seen := make([]bool, len(t.windows))
	for _, w := range order {
		if w < 0 || w >= len(t.windows) || seen[w] {
			return nil, errors.New("timeline: shuffle order is not a permutation")
		}
		seen[w] = true
	}
	cp := *t
	cp.shuffled = append([]int(nil), order...)
	return &cp, nil
}

func (t *Timeline) IsEmpty() bool     { return len(t.windows) == 0 }
func (t *Timeline) WindowCount() int  { return len(t.windows) }
func (t *Timeline) PeriodCount() int  { return len(t.periods) }
func (t *Timeline) Window(i int) Window { return t.windows[i] }
func (t *Timeline) Period(i int) Period { return t.periods[i] }

// UIDOfPeriod returns the stable uid of the period at index i.
func (t *Timeline) UIDOfPeriod(i int) string { return t.periods[i].UID }

// IndexOfPeriod returns the index of the period with the given uid, or
// IndexUnset if the timeline does not contain it.
func (t *Timeline) IndexOfPeriod(uid string) int {
	if i, ok := t.uidIndex[uid]; ok {
		return i
	}
	return IndexUnset
}

// PeriodByUID returns the period with the given uid.
func (t *Timeline) PeriodByUID(uid string) (Period, bool) {
	i, ok := t.uidIndex[uid]
	if !ok {
		return Period{}, false
	}
	return t.periods[i], true
}

// orderPosition maps a window index to its position in the traversal order.
func (t *Timeline) orderPosition(windowIndex int, shuffle bool) int {
	if !shuffle || t.shuffled == nil {
		return windowIndex
	}
	for pos, w := range t.shuffled {
		if w == windowIndex {
			return pos
		}
	}
	return windowIndex
}

func (t *Timeline) windowAtOrder(pos int, shuffle bool) int {
	if !shuffle || t.shuffled == nil {
		return pos
	}
	return t.shuffled[pos]
}

// FirstWindowIndex returns the first window in traversal order, or
// IndexUnset if the timeline is empty.
func (t *Timeline) FirstWindowIndex(shuffle bool) int {
	if t.IsEmpty() {
		return IndexUnset
	}
	return t.windowAtOrder(0, shuffle)
}

// LastWindowIndex returns the last window in traversal order, or IndexUnset
// if the timeline is empty.
func (t *Timeline) LastWindowIndex(shuffle bool) int {
	if t.IsEmpty() {
		return IndexUnset
	}
	return t.windowAtOrder(len(t.windows)-1, shuffle)
}

// NextWindowIndex returns the window played after windowIndex under the
// given repeat mode, or IndexUnset when playback runs out.
func (t *Timeline) NextWindowIndex(windowIndex int, repeat RepeatMode, shuffle bool) int {
	switch repeat {
	case RepeatOne:
		return windowIndex
	case RepeatAll:
		if windowIndex == t.LastWindowIndex(shuffle) {
			return t.FirstWindowIndex(shuffle)
		}
		return t.windowAtOrder(t.orderPosition(windowIndex, shuffle)+1, shuffle)
	default:
		if windowIndex == t.LastWindowIndex(shuffle) {
			return IndexUnset
		}
		return t.windowAtOrder(t.orderPosition(windowIndex, shuffle)+1, shuffle)
	}
}

// PreviousWindowIndex is the reverse of NextWindowIndex.
func (t *Timeline) PreviousWindowIndex(windowIndex int, repeat RepeatMode, shuffle bool) int {
	switch repeat {
	case RepeatOne:
		return windowIndex
	case RepeatAll:
		if windowIndex == t.FirstWindowIndex(shuffle) {
			return t.LastWindowIndex(shuffle)
		}
		return t.windowAtOrder(t.orderPosition(windowIndex, shuffle)-1, shuffle)
	default:
		if windowIndex == t.FirstWindowIndex(shuffle) {
			return IndexUnset
		}
		return t.windowAtOrder(t.orderPosition(windowIndex, shuffle)-1, shuffle)
	}
}

// NextPeriodIndex returns the period played after periodIndex, crossing
// window boundaries per repeat mode, or IndexUnset at the end of playback.
func (t *Timeline) NextPeriodIndex(periodIndex int, repeat RepeatMode, shuffle bool) int {
	windowIndex := t.periods[periodIndex].WindowIndex
	if periodIndex < t.windows[windowIndex].LastPeriodIndex {
		return periodIndex + 1
	}
	nextWindow := t.NextWindowIndex(windowIndex, repeat, shuffle)
	if nextWindow == IndexUnset {
		return IndexUnset
	}
	return t.windows[nextWindow].FirstPeriodIndex
}

// IsLastPeriod reports whether periodIndex is the final period of playback
// under the given repeat mode.
func (t *Timeline) IsLastPeriod(periodIndex int, repeat RepeatMode, shuffle bool) bool {
	return t.NextPeriodIndex(periodIndex, repeat, shuffle) == IndexUnset
}

// PeriodPositionUs resolves a window position to a (period uid, period
// position) pair. A TimeUnset window position resolves to the window's
// default start position. The window index must be in range; out-of-range
// indexes panic like any slice access.
func (t *Timeline) PeriodPositionUs(windowIndex int, windowPositionUs int64) (string, int64) {
	window := t.windows[windowIndex]
	if windowPositionUs == TimeUnset {
		windowPositionUs = window.DefaultStartPositionUs
	}
	periodIndex := window.FirstPeriodIndex
	for periodIndex < window.LastPeriodIndex &&
		t.periods[periodIndex+1].PositionInWindowUs <= windowPositionUs {
		periodIndex++
	}
	period := t.periods[periodIndex]
	return period.UID, windowPositionUs - period.PositionInWindowUs
}
