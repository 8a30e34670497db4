package engine

import (
	"fmt"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/metrics"
)

// seekToInternal handles an external seek request.
func (e *Engine) seekToInternal(seek seekRequest) error {
	e.infoUpdate.incrementAcks(1)

	timeline := seek.timeline
	if timeline == nil || timeline.IsEmpty() {
		timeline = e.playbackInfo.Timeline
	}

	if e.playbackInfo.Timeline.IsEmpty() {
		// No timeline to resolve against yet: park the seek for the next
		// source refresh and report an unresolved jump.
		e.pendingInitialSeek = &seek
		e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuitySeekAdjustment)
		return nil
	}

	if seek.windowIndex < 0 || seek.windowIndex >= timeline.WindowCount() {
		return domain.NewUnexpectedError(
			fmt.Errorf("%w: window %d of %d", domain.ErrSeekOutOfRange, seek.windowIndex, timeline.WindowCount()))
	}

	// Seeking at or past the end of a window.
	window := timeline.Window(seek.windowIndex)
	if seek.positionUs != domain.TimeUnset && window.DurationUs != domain.TimeUnset &&
		seek.positionUs >= window.DurationUs {
		if !window.IsDynamic {
			// Finished: report the end position without seeking.
			uid, periodPositionUs := timeline.PeriodPositionUs(seek.windowIndex, window.DurationUs)
			if timeline == e.playbackInfo.Timeline || e.playbackInfo.Timeline.IndexOfPeriod(uid) != domain.IndexUnset {
				id := domain.NewContentID(uid, domain.IndexUnset)
				e.stopRenderers()
				e.playbackInfo = e.playbackInfo.WithNewPosition(
					id, periodPositionUs, domain.TimeUnset,
					e.playbackInfo.TrackGroups, e.playbackInfo.TrackSelection)
				e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuitySeek)
				e.setState(domain.StateEnded)
				return nil
			}
		}
		// Live window: clamp to the live edge when seekable, else keep the
		// default position.
		seek.positionUs = domain.TimeUnset
	}

	uid, periodPositionUs, ok := e.resolveSeekPosition(seek, timeline)
	if !ok {
		e.pendingInitialSeek = &seek
		e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuitySeekAdjustment)
		return nil
	}

	requestedUs := periodPositionUs
	periodID := e.q.ResolveMediaPeriodIDForAds(uid, periodPositionUs)
	contentPositionUs := int64(domain.TimeUnset)
	if periodID.IsAd() {
		contentPositionUs = periodPositionUs
		periodPositionUs = 0
	}

	if periodID == e.playbackInfo.PeriodID &&
		domain.UsToMs(periodPositionUs) == domain.UsToMs(e.playbackInfo.PositionUs) {
		// Millisecond-identical seek to the current position: no-op, still
		// acknowledged.
		return nil
	}

	forceDisableRenderers := e.q.PlayingPeriod() != e.q.ReadingPeriod()
	newPositionUs, err := e.seekToPeriodPosition(periodID, periodPositionUs, forceDisableRenderers)
	if err != nil {
		return err
	}

	e.playbackInfo = e.playbackInfo.WithNewPosition(
		periodID, newPositionUs, contentPositionUs,
		e.playbackInfo.TrackGroups, e.playbackInfo.TrackSelection)
	e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuitySeek)

	if newPositionUs != requestedUs && !periodID.IsAd() {
		// The period snapped the position: report the adjustment on a
		// follow-up update so the SEEK reason stands alone.
		e.looper.Post(func() {
			e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuitySeekAdjustment)
			e.maybeNotifyPlaybackInfoChanged()
		})
	}
	return nil
}

// resolveSeekPosition maps a (timeline, window, position) seek target into
// the engine's current timeline. Reports !ok when the target cannot be
// resolved until the next source refresh.
func (e *Engine) resolveSeekPosition(seek seekRequest, seekTimeline *domain.Timeline) (string, int64, bool) {
	current := e.playbackInfo.Timeline
	uid, periodPositionUs := seekTimeline.PeriodPositionUs(seek.windowIndex, seek.positionUs)
	if seekTimeline == current {
		return uid, periodPositionUs, true
	}
	if current.IndexOfPeriod(uid) != domain.IndexUnset {
		// Same period exists in the current timeline: map by uid.
		return uid, periodPositionUs, true
	}
	if seek.windowIndex < current.WindowCount() {
		// Fall back to the default position of the matching window.
		uid, periodPositionUs = current.PeriodPositionUs(seek.windowIndex, domain.TimeUnset)
		return uid, periodPositionUs, true
	}
	return "", 0, false
}

// seekToCurrentPosition reseeks the playing period after its successors
// were invalidated (repeat/shuffle/timeline change).
func (e *Engine) seekToCurrentPosition(sendDiscontinuity bool) error {
	periodID := e.playbackInfo.PeriodID
	forceDisable := e.q.PlayingPeriod() != e.q.ReadingPeriod()
	newPositionUs, err := e.seekToPeriodPosition(periodID, e.playbackInfo.PositionUs, forceDisable)
	if err != nil {
		return err
	}
	if newPositionUs != e.playbackInfo.PositionUs {
		e.playbackInfo = e.playbackInfo.WithNewPosition(
			periodID, newPositionUs, e.playbackInfo.ContentPositionUs,
			e.playbackInfo.TrackGroups, e.playbackInfo.TrackSelection)
		if sendDiscontinuity {
			e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuityInternal)
		}
	}
	return nil
}

// seekToPeriodPosition moves playback to a period position, retaining any
// prepared holder that already matches the target id and dropping the
// rest of the queue.
func (e *Engine) seekToPeriodPosition(
	id domain.MediaPeriodID,
	periodPositionUs int64,
	forceDisableRenderers bool,
) (int64, error) {
	e.stopRenderers()
	e.rebuffering = false
	if e.playbackInfo.State == domain.StateReady || e.playbackInfo.State == domain.StateEnded {
		e.setState(domain.StateBuffering)
	}

	oldPlaying := e.q.PlayingPeriod()
	newPlaying := oldPlaying
	for newPlaying != nil {
		if newPlaying.Info.ID == id && newPlaying.Prepared {
			break
		}
		newPlaying = e.q.AdvancePlayingPeriod()
	}

	if forceDisableRenderers || oldPlaying != newPlaying {
		for _, r := range e.enabledRenderers {
			e.disableRenderer(r)
		}
		e.enabledRenderers = e.enabledRenderers[:0]
		metrics.RenderersEnabled.Set(0)
	}

	if newPlaying != nil {
		e.q.RemoveAfter(newPlaying)
		periodPositionUs = newPlaying.Period.AdjustedSeekPositionUs(periodPositionUs, e.seekParameters)
		periodPositionUs = newPlaying.Period.SeekToUs(periodPositionUs)
	} else {
		e.q.Clear(true)
		e.playbackInfo.TrackGroups = nil
		e.playbackInfo.TrackSelection = nil
	}

	if err := e.resetRendererPosition(periodPositionUs); err != nil {
		return periodPositionUs, err
	}
	if newPlaying != nil && len(e.enabledRenderers) == 0 {
		if err := e.updatePlayingPeriodRenderers(nil); err != nil {
			return periodPositionUs, err
		}
	}
	e.maybeContinueLoading()
	e.looper.Send(msgDoSomeWork)
	return periodPositionUs, nil
}

// handleSourceInfoRefreshed applies a timeline refresh from the source.
func (e *Engine) handleSourceInfoRefreshed(refresh sourceRefresh) error {
	if refresh.source != e.mediaSource {
		return nil
	}
	oldTimeline := e.playbackInfo.Timeline
	timeline := refresh.timeline
	e.q.SetTimeline(timeline)
	e.playbackInfo = e.playbackInfo.WithTimeline(timeline, refresh.manifest)
	e.resolvePendingMessagePositions()
	e.refreshPending = false

	if timeline.IsEmpty() {
		// Nothing playable yet; stay buffering until a real timeline
		// arrives.
		return nil
	}

	if oldTimeline.IsEmpty() || e.playbackInfo.IsPlaceholderPeriod() {
		return e.resolveInitialPosition(timeline)
	}

	playingUID := e.playbackInfo.PeriodID.PeriodUID
	if timeline.IndexOfPeriod(playingUID) == domain.IndexUnset {
		// The playing period vanished from the timeline: restart from the
		// first window's default position.
		uid, positionUs := timeline.PeriodPositionUs(timeline.FirstWindowIndex(e.shuffleEnabled), domain.TimeUnset)
		id := e.q.ResolveMediaPeriodIDForAds(uid, positionUs)
		newPositionUs, err := e.seekToPeriodPosition(id, positionUs, true)
		if err != nil {
			return err
		}
		e.playbackInfo = e.playbackInfo.WithNewPosition(
			id, newPositionUs, domain.TimeUnset, nil, nil)
		e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuityInternal)
		return nil
	}

	if !e.q.UpdateQueuedPeriods(e.rendererPositionUs, e.maxRendererReadPositionUs()) {
		return e.seekToCurrentPosition(false)
	}
	if loading := e.q.LoadingPeriod(); loading != nil {
		e.playbackInfo = e.playbackInfo.WithLoadingPeriodID(loading.Info.ID)
	}
	return nil
}

// resolveInitialPosition picks where playback starts once the first usable
// timeline arrives: a parked seek, a preserved resume position, or the
// first window's default position.
func (e *Engine) resolveInitialPosition(timeline *domain.Timeline) error {
	if seek := e.pendingInitialSeek; seek != nil {
		e.pendingInitialSeek = nil
		seekTimeline := seek.timeline
		if seekTimeline == nil || seekTimeline.IsEmpty() {
			seekTimeline = timeline
		}
		uid, positionUs, ok := e.resolveSeekPosition(*seek, seekTimeline)
		if !ok {
			uid, positionUs = timeline.PeriodPositionUs(timeline.FirstWindowIndex(e.shuffleEnabled), domain.TimeUnset)
		}
		e.applyResolvedInitialPosition(uid, positionUs, domain.DiscontinuitySeek)
		return nil
	}

	if !e.playbackInfo.IsPlaceholderPeriod() &&
		timeline.IndexOfPeriod(e.playbackInfo.PeriodID.PeriodUID) != domain.IndexUnset {
		// Resuming: the preserved period still exists; keep its position.
		return nil
	}

	uid, positionUs := timeline.PeriodPositionUs(timeline.FirstWindowIndex(e.shuffleEnabled), domain.TimeUnset)
	e.applyResolvedInitialPosition(uid, positionUs, domain.DiscontinuityNone)
	return nil
}

func (e *Engine) applyResolvedInitialPosition(uid string, positionUs int64, reason domain.DiscontinuityReason) {
	id := e.q.ResolveMediaPeriodIDForAds(uid, positionUs)
	startPositionUs := positionUs
	contentPositionUs := int64(domain.TimeUnset)
	if id.IsAd() {
		contentPositionUs = positionUs
		startPositionUs = 0
	}
	e.playbackInfo = e.playbackInfo.WithNewPosition(id, startPositionUs, contentPositionUs, nil, nil)
	if reason != domain.DiscontinuityNone {
		e.infoUpdate.setPositionDiscontinuity(reason)
	}
}

// maxRendererReadPositionUs is how far ahead any renderer has consumed in
// the renderer timebase.
func (e *Engine) maxRendererReadPositionUs() int64 {
	reading := e.q.ReadingPeriod()
	if reading == nil || reading == e.q.PlayingPeriod() {
		return e.rendererPositionUs
	}
	maxUs := e.rendererPositionUs
	for i, r := range e.renderers {
		if reading.SampleStreams[i] == nil || r.Stream() != reading.SampleStreams[i] {
			continue
		}
		if readUs := r.ReadingPositionUs(); readUs > maxUs {
			maxUs = readUs
		}
	}
	return maxUs
}

// Timed messages.

func (e *Engine) sendMessageInternal(m *PlayerMessage) error {
	if m.PositionMs() == domain.TimeUnset || m.WindowIndex() == domain.IndexUnset {
		return e.deliverMessage(m)
	}
	e.pendingMessageSeq++
	pm := &pendingMessage{message: m, seq: e.pendingMessageSeq}
	if !e.playbackInfo.Timeline.IsEmpty() {
		if !e.resolvePendingMessage(pm, e.playbackInfo.Timeline) {
			m.MarkAsProcessed(false)
			metrics.TimedMessagesDropped.Inc()
			return nil
		}
	}
	e.insertPendingMessage(pm)
	return nil
}

func (e *Engine) insertPendingMessage(pm *pendingMessage) {
	i := 0
	for i < len(e.pendingMessages) && e.pendingMessages[i].compare(pm) <= 0 {
		i++
	}
	e.pendingMessages = append(e.pendingMessages, nil)
	copy(e.pendingMessages[i+1:], e.pendingMessages[i:])
	e.pendingMessages[i] = pm
	if i < e.nextPendingMessageIndex {
		e.nextPendingMessageIndex++
	}
}

func (e *Engine) resolvePendingMessage(pm *pendingMessage, timeline *domain.Timeline) bool {
	windowIndex := pm.message.WindowIndex()
	if windowIndex < 0 || windowIndex >= timeline.WindowCount() {
		return false
	}
	uid, periodTimeUs := timeline.PeriodPositionUs(windowIndex, domain.MsToUs(pm.message.PositionMs()))
	pm.resolved = true
	pm.periodUID = uid
	pm.periodIndex = timeline.IndexOfPeriod(uid)
	pm.periodTimeUs = periodTimeUs
	return true
}

// resolvePendingMessagePositions re-resolves every pending message against
// a new timeline, discarding the unresolvable ones.
func (e *Engine) resolvePendingMessagePositions() {
	timeline := e.playbackInfo.Timeline
	if timeline.IsEmpty() {
		return
	}
	kept := e.pendingMessages[:0]
	for _, pm := range e.pendingMessages {
		if !e.resolvePendingMessage(pm, timeline) {
			pm.message.MarkAsProcessed(false)
			metrics.TimedMessagesDropped.Inc()
			continue
		}
		kept = append(kept, pm)
	}
	e.pendingMessages = kept
	e.sortPendingMessages()
}

func (e *Engine) sortPendingMessages() {
	msgs := e.pendingMessages
	for i := 1; i < len(msgs); i++ {
		for j := i; j > 0 && msgs[j].compare(msgs[j-1]) < 0; j-- {
			msgs[j], msgs[j-1] = msgs[j-1], msgs[j]
		}
	}
	if e.nextPendingMessageIndex > len(msgs) {
		e.nextPendingMessageIndex = len(msgs)
	}
}

// maybeTriggerPendingMessages delivers every pending message whose
// resolved coordinate lies in (oldPeriodPositionUs, newPeriodPositionUs]
// of the playing period.
func (e *Engine) maybeTriggerPendingMessages(oldPeriodPositionUs, newPeriodPositionUs int64) error {
	if len(e.pendingMessages) == 0 || e.playbackInfo.IsPlaceholderPeriod() {
		return nil
	}
	currentPeriodIndex := e.playbackInfo.Timeline.IndexOfPeriod(e.playbackInfo.PeriodID.PeriodUID)
	if currentPeriodIndex == domain.IndexUnset {
		return nil
	}

	i := e.nextPendingMessageIndex
	// Correct the cursor backwards past messages scheduled after the old
	// position.
	for i > 0 {
		prev := e.pendingMessages[i-1]
		if !prev.resolved {
			break
		}
		if prev.periodIndex > currentPeriodIndex ||
			(prev.periodIndex == currentPeriodIndex && prev.periodTimeUs > oldPeriodPositionUs) {
			i--
			continue
		}
		break
	}
	// Skip forward past messages at or before the old position.
	for i < len(e.pendingMessages) {
		pm := e.pendingMessages[i]
		if !pm.resolved {
			break
		}
		if pm.periodIndex < currentPeriodIndex ||
			(pm.periodIndex == currentPeriodIndex && pm.periodTimeUs <= oldPeriodPositionUs) {
			i++
			continue
		}
		break
	}
	// Deliver everything inside the advance.
	for i < len(e.pendingMessages) {
		pm := e.pendingMessages[i]
		if !pm.resolved || pm.periodIndex != currentPeriodIndex || pm.periodTimeUs > newPeriodPositionUs {
			break
		}
		if err := e.deliverMessage(pm.message); err != nil {
			return err
		}
		if pm.message.DeleteAfterDelivery() || pm.message.IsCanceled() {
			e.pendingMessages = append(e.pendingMessages[:i], e.pendingMessages[i+1:]...)
		} else {
			i++
		}
	}
	e.nextPendingMessageIndex = i
	return nil
}

// deliverMessage invokes the target on its looper. Same-looper targets run
// inline within the tick; failures on external loopers surface as remote
// errors.
func (e *Engine) deliverMessage(m *PlayerMessage) error {
	if m.IsCanceled() {
		m.MarkAsProcessed(false)
		metrics.TimedMessagesDropped.Inc()
		return nil
	}
	if m.Looper() == e.looper {
		err := m.Target().HandleMessage(m.Type(), m.Payload())
		m.MarkAsProcessed(err == nil)
		if err != nil {
			return domain.NewUnexpectedError(err)
		}
		metrics.TimedMessagesDelivered.Inc()
		return nil
	}
	metrics.TimedMessagesDelivered.Inc()
	m.Looper().Post(func() {
		err := m.Target().HandleMessage(m.Type(), m.Payload())
		m.MarkAsProcessed(err == nil)
		if err != nil {
			e.looper.Post(func() {
				e.notifyError(domain.NewRemoteError(err))
			})
		}
	})
	return nil
}
