package domain

import (
	"fmt"
	"math"
)

// PlaybackState is the externally visible state of the playback engine.
type PlaybackState int

const (
	StateIdle PlaybackState = iota + 1
	StateBuffering
	StateReady
	StateEnded
)

var playbackStateNames = map[PlaybackState]string{
	StateIdle:      "idle",
	StateBuffering: "buffering",
	StateReady:     "ready",
	StateEnded:     "ended",
}

func (s PlaybackState) String() string {
	if name, ok := playbackStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// validStateTransitions is the adjacency list of allowed state changes.
var validStateTransitions = map[PlaybackState][]PlaybackState{
	StateIdle:      {StateBuffering},
	StateBuffering: {StateReady, StateEnded, StateIdle},
	StateReady:     {StateBuffering, StateEnded, StateIdle},
	StateEnded:     {StateBuffering, StateIdle},
}

// CanTransition reports whether a playback state change is valid.
func CanTransition(from, to PlaybackState) bool {
	for _, t := range validStateTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// RepeatMode controls successor selection when a window finishes playing.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatOff:
		return "off"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// DiscontinuityReason tags a position jump that is not explained by
// continuous playback advance.
type DiscontinuityReason int

const (
	DiscontinuityNone DiscontinuityReason = iota
	DiscontinuityPeriodTransition
	DiscontinuitySeek
	DiscontinuitySeekAdjustment
	DiscontinuityAdInsertion
	DiscontinuityInternal
)

func (r DiscontinuityReason) String() string {
	switch r {
	case DiscontinuityNone:
		return "none"
	case DiscontinuityPeriodTransition:
		return "period-transition"
	case DiscontinuitySeek:
		return "seek"
	case DiscontinuitySeekAdjustment:
		return "seek-adjustment"
	case DiscontinuityAdInsertion:
		return "ad-insertion"
	case DiscontinuityInternal:
		return "internal"
	default:
		return fmt.Sprintf("unknown(%d)", int(r))
	}
}

// PlaybackParameters holds the playback speed and pitch in force.
type PlaybackParameters struct {
	Speed float64
	Pitch float64
}

// DefaultPlaybackParameters plays at normal speed and pitch.
var DefaultPlaybackParameters = PlaybackParameters{Speed: 1, Pitch: 1}

// ScaledDurationUs returns the media duration covered by playing for
// durationUs of wall time at the parameters' speed.
func (p PlaybackParameters) ScaledDurationUs(durationUs int64) int64 {
	return int64(float64(durationUs) * p.Speed)
}

// SeekParameters define the tolerance window around a requested seek
// position inside which a cheaper sync point may be chosen.
type SeekParameters struct {
	ToleranceBeforeUs int64
	ToleranceAfterUs  int64
}

// SeekExact admits no adjustment of the requested position.
var SeekExact = SeekParameters{}

// SeekClosestSync allows snapping to the closest sync point in either
// direction.
var SeekClosestSync = SeekParameters{ToleranceBeforeUs: math.MaxInt64, ToleranceAfterUs: math.MaxInt64}
