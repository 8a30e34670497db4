// Package queue owns the ordered set of media periods the engine is
// playing, reading ahead of, and loading, together with the renderer
// timebase offsets that stitch them into one continuous stream.
package queue

import (
	"fmt"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

// MediaPeriodInfo describes one queue entry: what to play and where it sits
// in the timeline.
type MediaPeriodInfo struct {
	ID              domain.MediaPeriodID
	StartPositionUs int64
	// ContentPositionUs is the content position playback resumes at when
	// this entry is an ad; TimeUnset for content entries.
	ContentPositionUs int64
	DurationUs        int64
	// IsLastInTimelinePeriod marks the final chunk (content or ad) of its
	// timeline period; the next queue entry belongs to another period.
	IsLastInTimelinePeriod bool
	// IsFinal marks the last chunk of the whole playback, after which the
	// engine transitions to ended.
	IsFinal bool
}

// Holder is the queue's owner record for one MediaPeriod.
type Holder struct {
	Period           ports.MediaPeriod
	UID              string
	Info             MediaPeriodInfo
	RendererOffsetUs int64
	Prepared         bool
	HasEnabledTracks bool

	// SampleStreams has one entry per renderer; nil when the renderer is
	// disabled for this period.
	SampleStreams []ports.SampleStream

	TrackGroups         []domain.TrackGroup
	TrackSelectorResult *domain.TrackSelectorResult

	next *Holder

	capabilities []ports.RendererCapabilities
	selector     ports.TrackSelector
	source       ports.MediaSource
}

func newHolder(
	capabilities []ports.RendererCapabilities,
	rendererOffsetUs int64,
	selector ports.TrackSelector,
	allocator ports.Allocator,
	source ports.MediaSource,
	info MediaPeriodInfo,
) *Holder {
	h := &Holder{
		UID:              info.ID.PeriodUID,
		Info:             info,
		RendererOffsetUs: rendererOffsetUs,
		SampleStreams:    make([]ports.SampleStream, len(capabilities)),
		capabilities:     capabilities,
		selector:         selector,
		source:           source,
	}
	h.Period = source.CreatePeriod(info.ID, allocator, info.StartPositionUs)
	return h
}

// Next returns the holder queued after h, or nil.
func (h *Holder) Next() *Holder { return h.next }

// ToRendererTime converts a period-relative time to the renderer timebase.
func (h *Holder) ToRendererTime(periodTimeUs int64) int64 {
	return periodTimeUs + h.RendererOffsetUs
}

// ToPeriodTime converts a renderer-timebase time to period-relative time.
func (h *Holder) ToPeriodTime(rendererTimeUs int64) int64 {
	return rendererTimeUs - h.RendererOffsetUs
}

// IsFullyBuffered reports whether the underlying period has loaded to its
// end.
func (h *Holder) IsFullyBuffered() bool {
	return h.Prepared && h.Period.BufferedPositionUs() == domain.TimeEndOfSource
}

// BufferedPositionUs returns the period-relative buffered position, mapping
// end-of-source to the known duration.
func (h *Holder) BufferedPositionUs() int64 {
	if !h.Prepared {
		return h.Info.StartPositionUs
	}
	bufferedUs := h.Period.BufferedPositionUs()
	if bufferedUs == domain.TimeEndOfSource {
		return h.Info.DurationUs
	}
	return bufferedUs
}

// HandlePrepared runs the initial track selection once the period reports
// prepared. The start position may be adjusted by the selection.
func (h *Holder) HandlePrepared(timeline *domain.Timeline) error {
	h.Prepared = true
	h.TrackGroups = h.Period.TrackGroups()
	result, err := h.SelectTracks(timeline)
	if err != nil {
		return err
	}
	adjustedUs := h.ApplyTrackSelection(result, h.Info.StartPositionUs)
	h.Info.StartPositionUs = adjustedUs
	return nil
}

// SelectTracks runs the track selector for this period.
func (h *Holder) SelectTracks(timeline *domain.Timeline) (*domain.TrackSelectorResult, error) {
	result, err := h.selector.SelectTracks(h.capabilities, h.TrackGroups, h.Info.ID, timeline)
	if err != nil {
		return nil, fmt.Errorf("track selection for period %s: %w", h.Info.ID, err)
	}
	return result, nil
}

// ApplyTrackSelection binds the selection's streams to the holder and
// returns the possibly adjusted start position.
func (h *Holder) ApplyTrackSelection(result *domain.TrackSelectorResult, positionUs int64) int64 {
	streams, adjustedUs := h.Period.SelectTracks(result.Selections, positionUs)
	h.SampleStreams = streams
	h.TrackSelectorResult = result
	h.HasEnabledTracks = false
	for _, s := range streams {
		if s != nil {
			h.HasEnabledTracks = true
			break
		}
	}
	h.selector.OnSelectionActivated(result.Info)
	return adjustedUs
}

// Release hands the media period back to its source. Called exactly once,
// on rotation out of the queue or on clear.
func (h *Holder) Release() {
	h.next = nil
	h.source.ReleasePeriod(h.Period)
}
