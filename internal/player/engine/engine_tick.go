package engine

import (
	"time"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
	"mediaplayer/internal/metrics"
	"mediaplayer/internal/player/clock"
	"mediaplayer/internal/player/queue"
)

// doSomeWorkInternal is one scheduler tick.
func (e *Engine) doSomeWorkInternal() error {
	operationStart := e.clk.ElapsedRealtime()
	metrics.EngineTicksTotal.Inc()

	if err := e.updatePeriods(); err != nil {
		return err
	}

	if e.playbackInfo.State == domain.StateIdle || e.playbackInfo.State == domain.StateEnded {
		// Stopped or finished; wait for the next command.
		return nil
	}

	playing := e.q.PlayingPeriod()
	if playing == nil {
		// Still waiting for the first period to prepare.
		if err := e.maybeThrowSourceInfoRefreshError(); err != nil {
			return err
		}
		e.scheduleNextWork(operationStart, preparingSourceInterval)
		return nil
	}

	if err := e.updatePlaybackPositions(); err != nil {
		return err
	}
	e.discardOldBuffer(playing)

	elapsedRealtimeUs := e.clk.ElapsedRealtime().Microseconds()
	renderersEnded := true
	renderersReadyOrEnded := true
	if playing.Prepared {
		for _, r := range e.enabledRenderers {
			if err := r.Render(e.rendererPositionUs, elapsedRealtimeUs); err != nil {
				return domain.NewRendererError(e.rendererIndex(r), err)
			}
			if r.TrackType() == domain.TrackTypeNone {
				continue
			}
			renderersEnded = renderersEnded && r.IsEnded()
			ready := r.IsReady() || r.IsEnded() || e.rendererWaitingForNextStream(r)
			if !ready {
				if err := r.MaybeThrowStreamError(); err != nil {
					return domain.NewRendererError(e.rendererIndex(r), err)
				}
			}
			renderersReadyOrEnded = renderersReadyOrEnded && ready
		}
	}
	if !renderersReadyOrEnded {
		if err := e.maybeThrowPeriodPrepareError(); err != nil {
			return err
		}
	}

	playingDurationUs := playing.Info.DurationUs
	switch {
	case renderersEnded && playing.Prepared && playing.Info.IsFinal &&
		(playingDurationUs == domain.TimeUnset || playingDurationUs <= e.playbackInfo.PositionUs):
		if playingDurationUs != domain.TimeUnset && e.playbackInfo.PositionUs > playingDurationUs {
			e.playbackInfo.PositionUs = playingDurationUs
		}
		e.setState(domain.StateEnded)
		e.stopRenderers()

	case e.playbackInfo.State == domain.StateBuffering && e.shouldTransitionToReady(renderersReadyOrEnded):
		e.setState(domain.StateReady)
		if e.playWhenReady {
			if err := e.startRenderers(); err != nil {
				return domain.NewRendererError(domain.IndexUnset, err)
			}
		}

	case e.playbackInfo.State == domain.StateReady && !e.stillReady(renderersReadyOrEnded):
		e.rebuffering = e.playWhenReady
		e.setState(domain.StateBuffering)
		e.stopRenderers()
	}

	playingOrBuffering := (e.playWhenReady && e.playbackInfo.State == domain.StateReady) ||
		e.playbackInfo.State == domain.StateBuffering
	switch {
	case playingOrBuffering:
		e.scheduleNextWork(operationStart, renderingInterval)
	case len(e.enabledRenderers) > 0 && e.playbackInfo.State != domain.StateEnded:
		e.scheduleNextWork(operationStart, idleInterval)
	default:
		e.looper.Remove(msgDoSomeWork)
	}

	metrics.EngineTickDuration.Observe((e.clk.ElapsedRealtime() - operationStart).Seconds())
	return nil
}

// scheduleNextWork keeps the tick cadence anchored at the operation start
// so intervals do not drift with processing time.
func (e *Engine) scheduleNextWork(operationStart, interval time.Duration) {
	e.looper.Remove(msgDoSomeWork)
	delay := operationStart + interval - e.clk.ElapsedRealtime()
	if delay < 0 {
		delay = 0
	}
	e.looper.SendMessageDelayed(clock.Message{What: msgDoSomeWork}, delay)
}

func (e *Engine) stillReady(renderersReadyOrEnded bool) bool {
	if len(e.enabledRenderers) == 0 {
		return e.isTimelineReady()
	}
	return renderersReadyOrEnded
}

func (e *Engine) shouldTransitionToReady(renderersReadyOrEnded bool) bool {
	if len(e.enabledRenderers) == 0 {
		return e.isTimelineReady()
	}
	if !renderersReadyOrEnded {
		return false
	}
	if !e.playbackInfo.IsLoading {
		return true
	}
	speed := e.mediaClock.PlaybackParameters().Speed
	return e.loadControl.ShouldStartPlayback(e.totalBufferedDurationUs(), speed, e.rebuffering)
}

// isTimelineReady reports whether the playing period can keep playing into
// whatever comes next without stalling.
func (e *Engine) isTimelineReady() bool {
	playing := e.q.PlayingPeriod()
	if playing == nil {
		return false
	}
	durationUs := playing.Info.DurationUs
	if durationUs == domain.TimeUnset || e.playbackInfo.PositionUs < durationUs {
		return true
	}
	next := playing.Next()
	return next != nil && (next.Prepared || next.Info.ID.IsAd())
}

func (e *Engine) rendererIndex(r ports.Renderer) int {
	for i, candidate := range e.renderers {
		if candidate == r {
			return i
		}
	}
	return domain.IndexUnset
}

// rendererWaitingForNextStream reports whether the renderer drained its
// stream and a prepared successor is about to replace it.
func (e *Engine) rendererWaitingForNextStream(r ports.Renderer) bool {
	reading := e.q.ReadingPeriod()
	return reading != nil && reading.Next() != nil && reading.Next().Prepared && r.HasReadStreamToEnd()
}

// updatePeriods drives the loading, reading and playing cursors.
func (e *Engine) updatePeriods() error {
	if e.mediaSource == nil {
		return nil
	}
	if e.refreshPending {
		return e.maybeThrowSourceInfoRefreshError()
	}
	if err := e.maybeUpdateLoadingPeriod(); err != nil {
		return err
	}
	if err := e.maybeUpdateReadingPeriod(); err != nil {
		return err
	}
	return e.maybeUpdatePlayingPeriod()
}

func (e *Engine) maybeUpdateLoadingPeriod() error {
	if e.q.ShouldLoadNextMediaPeriod() {
		info := e.q.NextMediaPeriodInfo(e.rendererPositionUs, e.playbackInfo)
		if info == nil {
			if err := e.maybeThrowSourceInfoRefreshError(); err != nil {
				return err
			}
		} else {
			period := e.q.EnqueueNextMediaPeriod(
				e.capabilities, e.selector, e.loadControl.Allocator(), e.mediaSource, *info)
			period.Prepare(e, info.StartPositionUs)
			e.setIsLoadingInternal(true)
			e.playbackInfo = e.playbackInfo.WithLoadingPeriodID(info.ID)
		}
	}
	e.maybeContinueLoading()
	return nil
}

func (e *Engine) maybeUpdateReadingPeriod() error {
	reading := e.q.ReadingPeriod()
	if reading == nil {
		return nil
	}

	if reading.Next() == nil {
		// Nothing to read ahead into; drain renderers on the final period.
		if reading.Info.IsFinal {
			for i, r := range e.renderers {
				stream := reading.SampleStreams[i]
				if stream != nil && r.Stream() == stream && r.HasReadStreamToEnd() {
					r.SetCurrentStreamFinal()
				}
			}
		}
		return nil
	}

	if !e.hasReadingPeriodFinishedReading() || !reading.Next().Prepared {
		return nil
	}

	oldResult := reading.TrackSelectorResult
	reading = e.q.AdvanceReadingPeriod()
	newResult := reading.TrackSelectorResult

	initialDiscontinuity := reading.Period.ReadDiscontinuity() != domain.TimeUnset
	for i, r := range e.renderers {
		if !oldResult.IsRendererEnabled(i) {
			continue
		}
		if initialDiscontinuity {
			// The new period starts with a discontinuity: drain and later
			// re-enable at the right position.
			r.SetCurrentStreamFinal()
			continue
		}
		if r.IsCurrentStreamFinal() {
			continue
		}
		isNoSample := e.capabilities[i].TrackType() == domain.TrackTypeNone
		sameConfig := newResult.IsRendererEnabled(i) &&
			*newResult.Configs[i] == *oldResult.Configs[i]
		if newResult.IsRendererEnabled(i) && sameConfig && !isNoSample {
			if err := r.ReplaceStream(
				selectionFormats(newResult.Selections[i]),
				reading.SampleStreams[i],
				reading.RendererOffsetUs,
			); err != nil {
				return domain.NewRendererError(i, err)
			}
		} else {
			r.SetCurrentStreamFinal()
		}
	}
	return nil
}

func (e *Engine) hasReadingPeriodFinishedReading() bool {
	reading := e.q.ReadingPeriod()
	for i, r := range e.renderers {
		stream := reading.SampleStreams[i]
		if r.Stream() != stream {
			return false
		}
		if stream != nil && !r.HasReadStreamToEnd() {
			return false
		}
	}
	return true
}

func (e *Engine) maybeUpdatePlayingPeriod() error {
	for {
		playing := e.q.PlayingPeriod()
		if playing == nil || playing == e.q.ReadingPeriod() {
			return nil
		}
		next := playing.Next()
		if next == nil || !next.Prepared {
			return nil
		}
		startRendererTimeUs := next.RendererOffsetUs + next.Info.StartPositionUs
		if !e.playWhenReady || e.rendererPositionUs < startRendererTimeUs {
			return nil
		}

		reason := domain.DiscontinuityAdInsertion
		if playing.Info.IsLastInTimelinePeriod {
			reason = domain.DiscontinuityPeriodTransition
		}
		oldPlaying := playing
		playing = e.q.AdvancePlayingPeriod()
		e.playbackInfo = e.playbackInfo.WithNewPosition(
			playing.Info.ID,
			playing.Info.StartPositionUs,
			playing.Info.ContentPositionUs,
			playing.TrackGroups,
			playing.TrackSelectorResult,
		)
		e.infoUpdate.setPositionDiscontinuity(reason)
		if err := e.updatePlayingPeriodRenderers(oldPlaying); err != nil {
			return err
		}
		// Publish the transition at the new period's exact start position
		// before the position re-syncs from the playback clock.
		e.maybeNotifyPlaybackInfoChanged()
	}
}

// updatePlayingPeriodRenderers reconciles renderer state with the playing
// period's track selection after a transition or a fresh start.
func (e *Engine) updatePlayingPeriodRenderers(oldPlaying *queue.Holder) error {
	playing := e.q.PlayingPeriod()
	if playing == nil || playing.TrackSelectorResult == nil {
		return nil
	}
	newResult := playing.TrackSelectorResult
	wasEnabled := make([]bool, len(e.renderers))
	for i, r := range e.renderers {
		wasEnabled[i] = r.State() != ports.RendererDisabled
		if !wasEnabled[i] {
			continue
		}
		drainDone := oldPlaying != nil &&
			r.IsCurrentStreamFinal() &&
			r.Stream() == oldPlaying.SampleStreams[i]
		if !newResult.IsRendererEnabled(i) || drainDone {
			e.disableRenderer(r)
		}
	}
	return e.enableRenderers(wasEnabled)
}

func (e *Engine) enableRenderers(wasEnabled []bool) error {
	playing := e.q.PlayingPeriod()
	result := playing.TrackSelectorResult
	e.enabledRenderers = e.enabledRenderers[:0]
	for i, r := range e.renderers {
		if !result.IsRendererEnabled(i) {
			continue
		}
		e.enabledRenderers = append(e.enabledRenderers, r)
		if r.State() != ports.RendererDisabled {
			continue
		}
		var stream ports.SampleStream
		if e.capabilities[i].TrackType() != domain.TrackTypeNone {
			stream = playing.SampleStreams[i]
		}
		joining := !wasEnabled[i] && e.playWhenReady
		if err := r.Enable(
			*result.Configs[i],
			selectionFormats(result.Selections[i]),
			stream,
			e.rendererPositionUs,
			joining,
			playing.RendererOffsetUs,
		); err != nil {
			return domain.NewRendererError(i, err)
		}
		if err := e.mediaClock.OnRendererEnabled(r); err != nil {
			return domain.NewUnexpectedError(err)
		}
		if e.playbackInfo.State == domain.StateReady && e.playWhenReady {
			if err := r.Start(); err != nil {
				return domain.NewRendererError(i, err)
			}
		}
	}
	metrics.RenderersEnabled.Set(float64(len(e.enabledRenderers)))
	return nil
}

// updatePlaybackPositions reads any discontinuity reported by the playing
// period, else derives the period position from the playback clock, firing
// timed messages across the advance.
func (e *Engine) updatePlaybackPositions() error {
	playing := e.q.PlayingPeriod()
	if playing == nil {
		return nil
	}

	discontinuityUs := domain.TimeUnset
	if playing.Prepared {
		discontinuityUs = playing.Period.ReadDiscontinuity()
	}
	if discontinuityUs != domain.TimeUnset {
		if err := e.resetRendererPosition(discontinuityUs); err != nil {
			return err
		}
		if discontinuityUs != e.playbackInfo.PositionUs {
			e.playbackInfo = e.playbackInfo.WithNewPosition(
				e.playbackInfo.PeriodID,
				discontinuityUs,
				e.playbackInfo.ContentPositionUs,
				e.playbackInfo.TrackGroups,
				e.playbackInfo.TrackSelection,
			)
			e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuityInternal)
		}
	} else {
		e.rendererPositionUs = e.mediaClock.SyncAndGetPositionUs()
		periodPositionUs := playing.ToPeriodTime(e.rendererPositionUs)
		if err := e.maybeTriggerPendingMessages(e.playbackInfo.PositionUs, periodPositionUs); err != nil {
			return err
		}
		e.playbackInfo.PositionUs = periodPositionUs
	}

	if loading := e.q.LoadingPeriod(); loading != nil {
		e.playbackInfo.BufferedPositionUs = loading.BufferedPositionUs()
		e.playbackInfo.TotalBufferedDurationUs = e.totalBufferedDurationUs()
	}
	return nil
}

func (e *Engine) totalBufferedDurationUs() int64 {
	loading := e.q.LoadingPeriod()
	if loading == nil {
		return 0
	}
	bufferedUs := loading.ToRendererTime(loading.BufferedPositionUs()) - e.rendererPositionUs
	if bufferedUs < 0 {
		return 0
	}
	return bufferedUs
}

// discardOldBuffer drops samples behind the back-buffer horizon.
func (e *Engine) discardOldBuffer(playing *queue.Holder) {
	if !playing.Prepared {
		return
	}
	backBufferUs := e.loadControl.BackBufferDurationUs()
	if backBufferUs == 0 {
		return
	}
	discardToUs := e.playbackInfo.PositionUs - backBufferUs
	if discardToUs <= 0 {
		return
	}
	playing.Period.DiscardBuffer(discardToUs, e.loadControl.RetainBackBufferFromKeyframe())
}

// resetRendererPosition rebases the renderer timebase at a period position
// of the playing holder.
func (e *Engine) resetRendererPosition(periodPositionUs int64) error {
	playing := e.q.PlayingPeriod()
	if playing == nil {
		e.rendererPositionUs = periodPositionUs
	} else {
		e.rendererPositionUs = playing.ToRendererTime(periodPositionUs)
	}
	e.mediaClock.ResetPosition(e.rendererPositionUs)
	for _, r := range e.enabledRenderers {
		if err := r.ResetPosition(e.rendererPositionUs); err != nil {
			return domain.NewRendererError(e.rendererIndex(r), err)
		}
	}
	return nil
}

func (e *Engine) maybeContinueLoading() {
	loading := e.q.LoadingPeriod()
	if loading == nil {
		e.setIsLoadingInternal(false)
		return
	}
	var nextLoadPositionUs int64
	if loading.Prepared {
		nextLoadPositionUs = loading.Period.NextLoadPositionUs()
	} else {
		nextLoadPositionUs = loading.Info.StartPositionUs
	}
	if nextLoadPositionUs == domain.TimeEndOfSource {
		e.setIsLoadingInternal(false)
		return
	}
	loadingPeriodPositionUs := loading.ToPeriodTime(e.rendererPositionUs)
	bufferedDurationUs := nextLoadPositionUs - loadingPeriodPositionUs
	speed := e.mediaClock.PlaybackParameters().Speed
	continueLoading := e.loadControl.ShouldContinueLoading(bufferedDurationUs, speed)
	e.setIsLoadingInternal(continueLoading)
	if continueLoading {
		loading.Period.ContinueLoading(loadingPeriodPositionUs)
	}
}

// handlePeriodPrepared runs the initial track selection of a freshly
// prepared period and, for the first one, adopts it as playing.
func (e *Engine) handlePeriodPrepared(period ports.MediaPeriod) error {
	loading := e.q.LoadingPeriod()
	if loading == nil || loading.Period != period {
		// Stale callback of a period already released.
		return nil
	}
	if err := loading.HandlePrepared(e.playbackInfo.Timeline); err != nil {
		return domain.NewUnexpectedError(err)
	}
	e.loadControl.OnTracksSelected(e.renderers, loading.TrackGroups, loading.TrackSelectorResult.Selections)

	if !e.q.HasPlayingPeriod() {
		playing := e.q.AdvancePlayingPeriod()
		e.playbackInfo = e.playbackInfo.WithNewPosition(
			playing.Info.ID,
			playing.Info.StartPositionUs,
			playing.Info.ContentPositionUs,
			playing.TrackGroups,
			playing.TrackSelectorResult,
		)
		if err := e.resetRendererPosition(playing.Info.StartPositionUs); err != nil {
			return err
		}
		if err := e.updatePlayingPeriodRenderers(nil); err != nil {
			return err
		}
	}
	e.maybeContinueLoading()
	return nil
}

func (e *Engine) handleContinueLoadingRequested(period ports.MediaPeriod) {
	if !e.q.IsLoading(period) {
		return
	}
	e.maybeContinueLoading()
}

func (e *Engine) maybeThrowSourceInfoRefreshError() error {
	if e.mediaSource == nil {
		return nil
	}
	if err := e.mediaSource.MaybeThrowSourceInfoRefreshError(); err != nil {
		return domain.NewSourceError(err)
	}
	return nil
}

func (e *Engine) maybeThrowPeriodPrepareError() error {
	loading := e.q.LoadingPeriod()
	if loading == nil || loading.Prepared {
		return nil
	}
	if err := loading.Period.MaybeThrowPrepareError(); err != nil {
		return domain.NewSourceError(err)
	}
	return nil
}

// reselectTracksInternal reruns track selection after the selector
// invalidated its previous results.
func (e *Engine) reselectTracksInternal() error {
	playing := e.q.PlayingPeriod()
	if playing == nil {
		return nil
	}
	for h := playing; h != nil; h = h.Next() {
		if !h.Prepared {
			break
		}
		newResult, err := h.SelectTracks(e.playbackInfo.Timeline)
		if err != nil {
			return domain.NewUnexpectedError(err)
		}
		if selectorResultsEquivalent(h.TrackSelectorResult, newResult, len(e.renderers)) {
			continue
		}
		if h != playing {
			// Read-ahead selections changed: drop everything after the
			// playing period and let it reload.
			e.q.RemoveAfter(playing)
			e.q.ReevaluateBuffer(e.rendererPositionUs)
			return nil
		}
		// The playing period's selection changed: rebind streams.
		for _, r := range e.enabledRenderers {
			e.disableRenderer(r)
		}
		e.enabledRenderers = e.enabledRenderers[:0]
		e.q.RemoveAfter(playing)
		adjustedUs := playing.ApplyTrackSelection(newResult, e.playbackInfo.PositionUs)
		e.loadControl.OnTracksSelected(e.renderers, playing.TrackGroups, newResult.Selections)
		if adjustedUs != e.playbackInfo.PositionUs {
			e.playbackInfo.PositionUs = adjustedUs
			e.infoUpdate.setPositionDiscontinuity(domain.DiscontinuityInternal)
		}
		e.playbackInfo.TrackGroups = playing.TrackGroups
		e.playbackInfo.TrackSelection = newResult
		if err := e.resetRendererPosition(e.playbackInfo.PositionUs); err != nil {
			return err
		}
		if err := e.updatePlayingPeriodRenderers(nil); err != nil {
			return err
		}
		e.looper.Send(msgDoSomeWork)
		return nil
	}
	return nil
}

func selectorResultsEquivalent(a, b *domain.TrackSelectorResult, rendererCount int) bool {
	if a == nil || b == nil {
		return a == b
	}
	for i := 0; i < rendererCount; i++ {
		if !a.IsEquivalent(b, i) {
			return false
		}
	}
	return true
}

func selectionFormats(sel *domain.TrackSelection) []domain.Format {
	if sel == nil {
		return nil
	}
	formats := make([]domain.Format, len(sel.Indexes))
	for i, idx := range sel.Indexes {
		formats[i] = sel.Group.Formats[idx]
	}
	return formats
}

