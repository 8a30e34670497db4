package domain

// PlaybackInfo is the immutable snapshot of playback published after every
// engine mutation. Copy-on-write: With... helpers return modified copies.
type PlaybackInfo struct {
	Timeline *Timeline
	Manifest any

	PeriodID        MediaPeriodID // playing period
	LoadingPeriodID MediaPeriodID

	StartPositionUs   int64
	ContentPositionUs int64 // content position behind a playing ad, else TimeUnset

	State     PlaybackState
	IsLoading bool

	TrackGroups     []TrackGroup
	TrackSelection  *TrackSelectorResult

	PositionUs              int64
	BufferedPositionUs      int64
	TotalBufferedDurationUs int64
}

// placeholderUID fills the playing period id before the first timeline
// arrives. A real uid replaces it on the first source refresh.
const placeholderUID = "\x00placeholder"

// NewDefaultPlaybackInfo returns the idle snapshot used at construction and
// after a full reset.
func NewDefaultPlaybackInfo(startPositionUs int64) PlaybackInfo {
	return PlaybackInfo{
		Timeline:           EmptyTimeline,
		PeriodID:           NewContentID(placeholderUID, IndexUnset),
		LoadingPeriodID:    NewContentID(placeholderUID, IndexUnset),
		StartPositionUs:    startPositionUs,
		ContentPositionUs:  TimeUnset,
		State:              StateIdle,
		PositionUs:         startPositionUs,
		BufferedPositionUs: startPositionUs,
	}
}

// IsPlaceholderPeriod reports whether the playing period id is still the
// pre-timeline placeholder.
func (i PlaybackInfo) IsPlaceholderPeriod() bool {
	return i.PeriodID.PeriodUID == placeholderUID
}

func (i PlaybackInfo) WithState(state PlaybackState) PlaybackInfo {
	i.State = state
	return i
}

func (i PlaybackInfo) WithIsLoading(isLoading bool) PlaybackInfo {
	i.IsLoading = isLoading
	return i
}

func (i PlaybackInfo) WithTimeline(timeline *Timeline, manifest any) PlaybackInfo {
	i.Timeline = timeline
	i.Manifest = manifest
	return i
}

func (i PlaybackInfo) WithLoadingPeriodID(id MediaPeriodID) PlaybackInfo {
	i.LoadingPeriodID = id
	return i
}

// WithNewPosition moves the playing period and position, carrying the new
// track state along.
func (i PlaybackInfo) WithNewPosition(
	id MediaPeriodID,
	positionUs, contentPositionUs int64,
	trackGroups []TrackGroup,
	selection *TrackSelectorResult,
) PlaybackInfo {
	i.PeriodID = id
	i.PositionUs = positionUs
	i.ContentPositionUs = contentPositionUs
	i.StartPositionUs = positionUs
	i.TrackGroups = trackGroups
	i.TrackSelection = selection
	return i
}
