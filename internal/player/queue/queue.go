package queue

import (
	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

// maxBufferAheadPeriods bounds how many periods may be buffered ahead of
// the playing period.
const maxBufferAheadPeriods = 100

// Queue is the ordered list of media period holders with three cursors:
// playing (front), reading, and loading (tail). The engine is its only
// caller and enforces all preconditions; mutators are infallible on valid
// input.
type Queue struct {
	timeline   *domain.Timeline
	repeatMode domain.RepeatMode
	shuffle    bool

	first   *Holder
	playing *Holder
	reading *Holder
	loading *Holder
	length  int

	oldFrontPeriodUID string
}

func New() *Queue {
	return &Queue{timeline: domain.EmptyTimeline}
}

// SetTimeline updates the timeline used to compute successor periods.
func (q *Queue) SetTimeline(timeline *domain.Timeline) {
	q.timeline = timeline
}

// UpdateRepeatMode changes the repeat mode and trims queued periods that
// are no longer the correct successors. Returns false when the reading
// period was removed and the engine must reseek the current position.
func (q *Queue) UpdateRepeatMode(mode domain.RepeatMode) bool {
	q.repeatMode = mode
	return q.updateForPlaybackModeChange()
}

// UpdateShuffleEnabled is UpdateRepeatMode's twin for shuffle changes.
func (q *Queue) UpdateShuffleEnabled(enabled bool) bool {
	q.shuffle = enabled
	return q.updateForPlaybackModeChange()
}

// ShouldLoadNextMediaPeriod reports whether the queue has room for, and the
// timeline defines, another period to load.
func (q *Queue) ShouldLoadNextMediaPeriod() bool {
	if q.loading == nil {
		return !q.timeline.IsEmpty()
	}
	return !q.loading.Info.IsFinal &&
		q.loading.IsFullyBuffered() &&
		q.loading.Info.DurationUs != domain.TimeUnset &&
		q.length < maxBufferAheadPeriods
}

// NextMediaPeriodInfo computes the info of the period that should be
// enqueued next, or nil if none exists yet.
func (q *Queue) NextMediaPeriodInfo(rendererPositionUs int64, playbackInfo domain.PlaybackInfo) *MediaPeriodInfo {
	if q.loading == nil {
		return q.firstMediaPeriodInfo(playbackInfo)
	}
	return q.followingMediaPeriodInfo(q.loading, rendererPositionUs)
}

// EnqueueNextMediaPeriod appends a new holder at the tail and returns its
// media period. Precondition: ShouldLoadNextMediaPeriod.
func (q *Queue) EnqueueNextMediaPeriod(
	capabilities []ports.RendererCapabilities,
	selector ports.TrackSelector,
	allocator ports.Allocator,
	source ports.MediaSource,
	info MediaPeriodInfo,
) ports.MediaPeriod {
	var rendererOffsetUs int64
	if q.loading != nil {
		// The new period starts where the previous one ends in renderer
		// time, whatever its own start position is (content resuming after
		// an ad re-enters mid-period).
		rendererOffsetUs = q.loading.RendererOffsetUs + q.loading.Info.DurationUs - info.StartPositionUs
	}
	h := newHolder(capabilities, rendererOffsetUs, selector, allocator, source, info)
	if q.loading != nil {
		q.loading.next = h
	} else {
		q.first = h
		q.oldFrontPeriodUID = h.UID
	}
	q.loading = h
	q.length++
	return h.Period
}

// AdvancePlayingPeriod rotates the playing cursor forward, releasing the
// previous front holder. May be called with no playing period yet to adopt
// the front of the queue.
func (q *Queue) AdvancePlayingPeriod() *Holder {
	if q.playing == nil {
		q.playing = q.first
		if q.reading == nil {
			q.reading = q.first
		}
		return q.playing
	}
	old := q.playing
	if q.reading == old {
		q.reading = old.next
	}
	q.playing = old.next
	q.first = old.next
	if q.playing != nil {
		q.oldFrontPeriodUID = q.playing.UID
	}
	q.length--
	if q.length == 0 {
		q.loading = nil
	}
	old.Release()
	return q.playing
}

// AdvanceReadingPeriod rotates the reading cursor to the next holder.
// Precondition: a successor exists.
func (q *Queue) AdvanceReadingPeriod() *Holder {
	q.reading = q.reading.next
	return q.reading
}

// RemoveAfter releases every holder strictly after the given one. Returns
// true when the reading cursor was clipped and sample streams bound to
// renderers must be recreated.
func (q *Queue) RemoveAfter(h *Holder) bool {
	if h == nil {
		return false
	}
	if h.next == nil {
		q.loading = h
		return false
	}
	removedReading := false
	for k := h.next; k != nil; {
		next := k.next
		if k == q.reading {
			removedReading = true
		}
		k.Release()
		q.length--
		k = next
	}
	h.next = nil
	q.loading = h
	if removedReading {
		q.reading = h
	}
	return removedReading
}

// Clear releases every holder. keepFrontPeriodUID retains the front uid so
// the engine can keep masking positions against it.
func (q *Queue) Clear(keepFrontPeriodUID bool) {
	if !keepFrontPeriodUID {
		q.oldFrontPeriodUID = ""
	} else if q.first != nil {
		q.oldFrontPeriodUID = q.first.UID
	}
	for h := q.first; h != nil; {
		next := h.next
		h.Release()
		h = next
	}
	q.first = nil
	q.playing = nil
	q.reading = nil
	q.loading = nil
	q.length = 0
}

// ReevaluateBuffer lets the loading period discard chunks made redundant by
// a selection change.
func (q *Queue) ReevaluateBuffer(rendererPositionUs int64) {
	if q.loading != nil {
		q.loading.Period.ReevaluateBuffer(q.loading.ToPeriodTime(rendererPositionUs))
	}
}

// ResolveMediaPeriodIDForAds maps a content position in a period to the id
// that should actually play there: an ad id when an unplayed ad group fires
// at or before the position, else a content id carrying the next ad group.
func (q *Queue) ResolveMediaPeriodIDForAds(periodUID string, contentPositionUs int64) domain.MediaPeriodID {
	period, ok := q.timeline.PeriodByUID(periodUID)
	if !ok {
		return domain.NewContentID(periodUID, domain.IndexUnset)
	}
	adGroupIndex := period.Ads.AdGroupIndexForPositionUs(contentPositionUs, period.DurationUs)
	if adGroupIndex == domain.IndexUnset {
		nextAdGroupIndex := period.Ads.AdGroupIndexAfterPositionUs(contentPositionUs)
		return domain.NewContentID(periodUID, nextAdGroupIndex)
	}
	adIndexInGroup := period.Ads.Groups[adGroupIndex].FirstAdIndexToPlay()
	return domain.NewAdID(periodUID, adGroupIndex, adIndexInGroup)
}

// UpdateQueuedPeriods recomputes every holder's info against the current
// timeline after a source refresh. Returns false when a period that was
// already read ahead became incompatible and the engine must reseek.
func (q *Queue) UpdateQueuedPeriods(rendererPositionUs, maxRendererReadPositionUs int64) bool {
	var previous *Holder
	for h := q.first; h != nil; h = h.next {
		if q.timeline.IndexOfPeriod(h.UID) == domain.IndexUnset {
			if previous == nil {
				// The front period itself vanished; the engine resolves
				// that case before calling here.
				return false
			}
			removedReading := q.RemoveAfter(previous)
			return !removedReading
		}
		newInfo := q.UpdatedMediaPeriodInfo(h.Info)
		oldInfo := h.Info
		h.Info = newInfo

		if !durationsCompatible(oldInfo.DurationUs, newInfo.DurationUs) {
			// Anything queued after a duration change is stale.
			removedReading := q.RemoveAfter(h)
			maxReadPositionInPeriodUs := h.ToPeriodTime(maxRendererReadPositionUs)
			readPastNewDuration := h == q.reading &&
				newInfo.DurationUs != domain.TimeUnset &&
				maxReadPositionInPeriodUs > newInfo.DurationUs
			return !removedReading && !readPastNewDuration
		}
		previous = h
	}
	return true
}

func durationsCompatible(previousUs, newUs int64) bool {
	return previousUs == domain.TimeUnset || previousUs == newUs
}

// UpdatedMediaPeriodInfo recomputes duration and end flags of an info against
// the current timeline, keeping its id.
func (q *Queue) UpdatedMediaPeriodInfo(info MediaPeriodInfo) MediaPeriodInfo {
	id := info.ID
	period, _ := q.timeline.PeriodByUID(id.PeriodUID)
	if id.IsAd() {
		info.DurationUs = period.Ads.AdDurationUs(id.AdGroupIndex, id.AdIndexInGroup)
		info.IsLastInTimelinePeriod = false
		info.IsFinal = false
		return info
	}
	if id.NextAdGroupIndex != domain.IndexUnset {
		info.DurationUs = period.Ads.Groups[id.NextAdGroupIndex].TimeUs
	} else {
		info.DurationUs = period.DurationUs
	}
	info.IsLastInTimelinePeriod = id.NextAdGroupIndex == domain.IndexUnset
	info.IsFinal = info.IsLastInTimelinePeriod && q.isLastPeriodUID(id.PeriodUID)
	return info
}

func (q *Queue) isLastPeriodUID(uid string) bool {
	index := q.timeline.IndexOfPeriod(uid)
	return index != domain.IndexUnset && q.timeline.IsLastPeriod(index, q.repeatMode, q.shuffle)
}

// Accessors.

func (q *Queue) PlayingPeriod() *Holder { return q.playing }
func (q *Queue) ReadingPeriod() *Holder { return q.reading }
func (q *Queue) LoadingPeriod() *Holder { return q.loading }
func (q *Queue) FrontPeriod() *Holder   { return q.first }
func (q *Queue) Length() int            { return q.length }

func (q *Queue) HasPlayingPeriod() bool { return q.playing != nil }

// IsLoading reports whether the given media period is the one currently
// loading.
func (q *Queue) IsLoading(period ports.MediaPeriod) bool {
	return q.loading != nil && q.loading.Period == period
}

// FrontPeriodUID is the uid used for position masking after a clear.
func (q *Queue) FrontPeriodUID() string { return q.oldFrontPeriodUID }

// Internal info computation.

func (q *Queue) firstMediaPeriodInfo(playbackInfo domain.PlaybackInfo) *MediaPeriodInfo {
	id := playbackInfo.PeriodID
	if q.timeline.IndexOfPeriod(id.PeriodUID) == domain.IndexUnset {
		return nil
	}
	info := q.mediaPeriodInfo(id, playbackInfo.ContentPositionUs, playbackInfo.StartPositionUs)
	return &info
}

func (q *Queue) followingMediaPeriodInfo(loading *Holder, rendererPositionUs int64) *MediaPeriodInfo {
	info := loading.Info
	if info.IsLastInTimelinePeriod {
		periodIndex := q.timeline.IndexOfPeriod(loading.UID)
		if periodIndex == domain.IndexUnset {
			return nil
		}
		nextPeriodIndex := q.timeline.NextPeriodIndex(periodIndex, q.repeatMode, q.shuffle)
		if nextPeriodIndex == domain.IndexUnset {
			return nil
		}
		nextPeriod := q.timeline.Period(nextPeriodIndex)
		var startPositionUs int64
		nextPeriodUID := nextPeriod.UID
		if nextPeriod.WindowIndex != q.timeline.Period(periodIndex).WindowIndex {
			// New window: start at its default position, which may resolve
			// into a later period of that window.
			nextPeriodUID, startPositionUs = q.timeline.PeriodPositionUs(nextPeriod.WindowIndex, domain.TimeUnset)
		}
		id := q.ResolveMediaPeriodIDForAds(nextPeriodUID, startPositionUs)
		next := q.mediaPeriodInfo(id, startPositionUs, startPositionUs)
		return &next
	}

	id := info.ID
	period, _ := q.timeline.PeriodByUID(id.PeriodUID)
	if id.IsAd() {
		adGroup := period.Ads.Groups[id.AdGroupIndex]
		if adGroup.Count == domain.IndexUnset {
			return nil
		}
		nextAdIndexInGroup := adGroup.NextAdIndexToPlay(id.AdIndexInGroup)
		if nextAdIndexInGroup < adGroup.Count {
			next := q.mediaPeriodInfoForAd(id.PeriodUID, id.AdGroupIndex, nextAdIndexInGroup, info.ContentPositionUs)
			return &next
		}
		// The group is done: resume content where it was interrupted.
		startPositionUs := info.ContentPositionUs
		if startPositionUs == domain.TimeUnset {
			startPositionUs = 0
		}
		nextAdGroupIndex := period.Ads.AdGroupIndexAfterPositionUs(startPositionUs)
		next := q.mediaPeriodInfoForContent(id.PeriodUID, startPositionUs, nextAdGroupIndex)
		return &next
	}

	// Content followed by a mid-roll ad group.
	adGroupTimeUs := period.Ads.Groups[id.NextAdGroupIndex].TimeUs
	if adGroupTimeUs == domain.TimeEndOfSource {
		adGroupTimeUs = period.DurationUs
	}
	adIndexInGroup := period.Ads.Groups[id.NextAdGroupIndex].FirstAdIndexToPlay()
	next := q.mediaPeriodInfoForAd(id.PeriodUID, id.NextAdGroupIndex, adIndexInGroup, adGroupTimeUs)
	return &next
}

func (q *Queue) mediaPeriodInfo(id domain.MediaPeriodID, contentPositionUs, startPositionUs int64) MediaPeriodInfo {
	if id.IsAd() {
		return q.mediaPeriodInfoForAd(id.PeriodUID, id.AdGroupIndex, id.AdIndexInGroup, contentPositionUs)
	}
	return q.mediaPeriodInfoForContent(id.PeriodUID, startPositionUs, id.NextAdGroupIndex)
}

func (q *Queue) mediaPeriodInfoForAd(periodUID string, adGroupIndex, adIndexInGroup int, contentPositionUs int64) MediaPeriodInfo {
	period, _ := q.timeline.PeriodByUID(periodUID)
	id := domain.NewAdID(periodUID, adGroupIndex, adIndexInGroup)
	return MediaPeriodInfo{
		ID:                id,
		StartPositionUs:   0,
		ContentPositionUs: contentPositionUs,
		DurationUs:        period.Ads.AdDurationUs(adGroupIndex, adIndexInGroup),
	}
}

func (q *Queue) mediaPeriodInfoForContent(periodUID string, startPositionUs int64, nextAdGroupIndex int) MediaPeriodInfo {
	period, _ := q.timeline.PeriodByUID(periodUID)
	durationUs := period.DurationUs
	if nextAdGroupIndex != domain.IndexUnset {
		durationUs = period.Ads.Groups[nextAdGroupIndex].TimeUs
	}
	isLastInPeriod := nextAdGroupIndex == domain.IndexUnset
	return MediaPeriodInfo{
		ID:                     domain.NewContentID(periodUID, nextAdGroupIndex),
		StartPositionUs:        startPositionUs,
		ContentPositionUs:      domain.TimeUnset,
		DurationUs:             durationUs,
		IsLastInTimelinePeriod: isLastInPeriod,
		IsFinal:                isLastInPeriod && q.isLastPeriodUID(periodUID),
	}
}

func (q *Queue) updateForPlaybackModeChange() bool {
	lastValid := q.first
	if lastValid == nil {
		return true
	}
	for lastValid.next != nil {
		if !lastValid.Info.IsLastInTimelinePeriod {
			// Same timeline period (ad chunks): always a valid successor.
			lastValid = lastValid.next
			continue
		}
		periodIndex := q.timeline.IndexOfPeriod(lastValid.UID)
		nextPeriodIndex := q.timeline.NextPeriodIndex(periodIndex, q.repeatMode, q.shuffle)
		if nextPeriodIndex == domain.IndexUnset ||
			q.timeline.UIDOfPeriod(nextPeriodIndex) != lastValid.next.UID {
			break
		}
		lastValid = lastValid.next
	}
	removedReading := q.RemoveAfter(lastValid)
	lastValid.Info = q.UpdatedMediaPeriodInfo(lastValid.Info)
	return !removedReading
}
