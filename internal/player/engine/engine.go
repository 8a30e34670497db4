// Package engine implements the playback engine: a single-threaded
// cooperative scheduler driving a set of renderers from prepared media
// sources, advancing a queue of media periods through a timeline and
// delivering user-scheduled messages at precise stream positions.
package engine

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
	"mediaplayer/internal/metrics"
	"mediaplayer/internal/player/clock"
	"mediaplayer/internal/player/queue"
)

const (
	renderingInterval       = 10 * time.Millisecond
	idleInterval            = 1000 * time.Millisecond
	preparingSourceInterval = 10 * time.Millisecond
)

// Listener receives the engine's event channel. Calls arrive on the event
// looper passed at construction.
type Listener interface {
	OnPlaybackInfoUpdate(update InfoUpdate)
	OnPlaybackParametersChanged(params domain.PlaybackParameters)
	OnPlaybackError(err *domain.PlaybackError)
}

// Config wires the engine's collaborators.
type Config struct {
	Renderers     []ports.Renderer
	TrackSelector ports.TrackSelector
	LoadControl   ports.LoadControl
	Clock         clock.Clock
	EventLooper   *clock.Looper
	Listener      Listener
	Logger        *slog.Logger
}

// Engine owns all playback state. Every field below the looper is touched
// only on the playback looper goroutine; external callers go through the
// exported methods, which marshal typed messages.
type Engine struct {
	renderers    []ports.Renderer
	capabilities []ports.RendererCapabilities
	selector     ports.TrackSelector
	loadControl  ports.LoadControl
	clk          clock.Clock
	looper       *clock.Looper
	eventLooper  *clock.Looper
	listener     Listener
	logger       *slog.Logger

	mediaClock *clock.CompositeMediaClock
	q          *queue.Queue
	positions  *SharedPositions

	playbackInfo domain.PlaybackInfo
	infoUpdate   infoUpdateAccumulator

	mediaSource      ports.MediaSource
	refreshPending   bool
	enabledRenderers []ports.Renderer

	playWhenReady  bool
	rebuffering    bool
	repeatMode     domain.RepeatMode
	shuffleEnabled bool
	foregroundMode bool
	seekParameters domain.SeekParameters

	rendererPositionUs int64

	pendingMessages         []*pendingMessage
	nextPendingMessageIndex int
	pendingMessageSeq       uint64
	pendingInitialSeek      *seekRequest

	releaseMu sync.Mutex
	released  bool
	releaseCond *sync.Cond
}

// New builds the engine and starts its playback looper.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		renderers:      cfg.Renderers,
		capabilities:   make([]ports.RendererCapabilities, len(cfg.Renderers)),
		selector:       cfg.TrackSelector,
		loadControl:    cfg.LoadControl,
		clk:            cfg.Clock,
		eventLooper:    cfg.EventLooper,
		listener:       cfg.Listener,
		logger:         logger,
		q:              queue.New(),
		positions:      &SharedPositions{},
		playbackInfo:   domain.NewDefaultPlaybackInfo(domain.TimeUnset),
		seekParameters: domain.SeekExact,
	}
	e.releaseCond = sync.NewCond(&e.releaseMu)
	for i, r := range cfg.Renderers {
		r.SetIndex(i)
		e.capabilities[i] = r.Capabilities()
	}
	e.mediaClock = clock.NewCompositeMediaClock(cfg.Clock, func(params domain.PlaybackParameters) {
		e.looper.SendMessage(clock.Message{What: msgPlaybackParametersChangedInternal, Obj: params})
	})
	e.looper = cfg.Clock.NewLooper("playback", logger)
	e.looper.SetHandler(e.handle)
	e.selector.SetInvalidationListener(func() {
		e.looper.Send(msgTrackSelectionInvalidated)
	})
	return e
}

// Looper exposes the playback looper for same-thread checks and as the
// default delivery looper of timed messages.
func (e *Engine) Looper() *clock.Looper { return e.looper }

// Positions is the tick-consistent position triple readable from any
// goroutine.
func (e *Engine) Positions() *SharedPositions { return e.positions }

// External command surface. All methods are safe to call from any
// goroutine; after release they are silently dropped.

func (e *Engine) Prepare(source ports.MediaSource, resetPosition, resetState bool) {
	e.looper.SendMessage(clock.Message{What: msgPrepare, Obj: prepareRequest{source, resetPosition, resetState}})
}

func (e *Engine) SetPlayWhenReady(playWhenReady bool) {
	arg := int64(0)
	if playWhenReady {
		arg = 1
	}
	e.looper.SendMessage(clock.Message{What: msgSetPlayWhenReady, Arg1: arg})
}

func (e *Engine) SetRepeatMode(mode domain.RepeatMode) {
	e.looper.SendMessage(clock.Message{What: msgSetRepeatMode, Arg1: int64(mode)})
}

func (e *Engine) SetShuffleModeEnabled(enabled bool) {
	arg := int64(0)
	if enabled {
		arg = 1
	}
	e.looper.SendMessage(clock.Message{What: msgSetShuffleEnabled, Arg1: arg})
}

func (e *Engine) SeekTo(timeline *domain.Timeline, windowIndex int, positionUs int64) {
	e.looper.SendMessage(clock.Message{What: msgSeekTo, Obj: seekRequest{timeline, windowIndex, positionUs}})
}

func (e *Engine) SetPlaybackParameters(params domain.PlaybackParameters) {
	e.looper.SendMessage(clock.Message{What: msgSetPlaybackParameters, Obj: params})
}

func (e *Engine) SetSeekParameters(params domain.SeekParameters) {
	e.looper.SendMessage(clock.Message{What: msgSetSeekParameters, Obj: params})
}

// SetForegroundMode blocks until the worker has processed the change when
// disabling, so heavyweight renderer resources are released before return.
func (e *Engine) SetForegroundMode(foreground bool) {
	if foreground {
		e.looper.SendMessage(clock.Message{What: msgSetForegroundMode, Obj: foregroundRequest{enabled: true}})
		return
	}
	if e.isReleased() {
		return
	}
	done := newAck()
	e.looper.SendMessage(clock.Message{What: msgSetForegroundMode, Obj: foregroundRequest{enabled: false, done: done}})
	done.wait()
}

func (e *Engine) Stop(reset bool) {
	e.looper.SendMessage(clock.Message{What: msgStop, Obj: stopRequest{reset: reset}})
}

// CreateMessage builds a timed message delivered on the playback looper
// unless the caller picks another one.
func (e *Engine) CreateMessage(target MessageTarget) *PlayerMessage {
	return newPlayerMessage(e.sendPlayerMessage, target, e.looper)
}

func (e *Engine) sendPlayerMessage(m *PlayerMessage) {
	if e.isReleased() {
		e.logger.Warn("message sent after release, dropping")
		m.MarkAsProcessed(false)
		return
	}
	e.looper.SendMessage(clock.Message{What: msgSendMessage, Obj: m})
}

// Release tears the engine down and blocks until the worker has released
// every resource. Idempotent.
func (e *Engine) Release() {
	e.releaseMu.Lock()
	if e.released {
		e.releaseMu.Unlock()
		return
	}
	e.releaseMu.Unlock()
	e.looper.Send(msgRelease)
	e.releaseMu.Lock()
	for !e.released {
		e.releaseCond.Wait()
	}
	e.releaseMu.Unlock()
}

func (e *Engine) isReleased() bool {
	e.releaseMu.Lock()
	defer e.releaseMu.Unlock()
	return e.released
}

// Source and period callbacks: marshalled onto the playback looper, may be
// invoked from any goroutine.

func (e *Engine) OnSourceInfoRefreshed(source ports.MediaSource, timeline *domain.Timeline, manifest any) {
	e.looper.SendMessage(clock.Message{What: msgRefreshSourceInfo, Obj: sourceRefresh{source, timeline, manifest}})
}

func (e *Engine) OnPrepared(period ports.MediaPeriod) {
	e.looper.SendMessage(clock.Message{What: msgPeriodPrepared, Obj: period})
}

func (e *Engine) OnContinueLoadingRequested(period ports.MediaPeriod) {
	e.looper.SendMessage(clock.Message{What: msgSourceContinueLoadingRequested, Obj: period})
}

// handle is the single entry point on the playback looper.
func (e *Engine) handle(msg clock.Message) {
	defer func() {
		if r := recover(); r != nil {
			err := domain.NewUnexpectedError(fmt.Errorf("panic in playback engine: %v", r))
			e.logger.Error("unexpected playback engine failure",
				slog.String("error", err.Error()),
				slog.String("stack", string(debug.Stack())))
			e.stopOnError(true)
			e.notifyError(err)
			e.maybeNotifyPlaybackInfoChanged()
		}
	}()

	var err error
	switch msg.What {
	case msgPrepare:
		e.prepareInternal(msg.Obj.(prepareRequest))
	case msgSetPlayWhenReady:
		err = e.setPlayWhenReadyInternal(msg.Arg1 != 0)
	case msgSetRepeatMode:
		err = e.setRepeatModeInternal(domain.RepeatMode(msg.Arg1))
	case msgSetShuffleEnabled:
		err = e.setShuffleEnabledInternal(msg.Arg1 != 0)
	case msgDoSomeWork:
		err = e.doSomeWorkInternal()
	case msgSeekTo:
		err = e.seekToInternal(msg.Obj.(seekRequest))
	case msgSetPlaybackParameters:
		e.setPlaybackParametersInternal(msg.Obj.(domain.PlaybackParameters))
	case msgSetSeekParameters:
		e.seekParameters = msg.Obj.(domain.SeekParameters)
	case msgSetForegroundMode:
		e.setForegroundModeInternal(msg.Obj.(foregroundRequest))
	case msgStop:
		e.stopInternal(msg.Obj.(stopRequest).reset, true)
	case msgPeriodPrepared:
		err = e.handlePeriodPrepared(msg.Obj.(ports.MediaPeriod))
	case msgRefreshSourceInfo:
		err = e.handleSourceInfoRefreshed(msg.Obj.(sourceRefresh))
	case msgSourceContinueLoadingRequested:
		e.handleContinueLoadingRequested(msg.Obj.(ports.MediaPeriod))
	case msgTrackSelectionInvalidated:
		err = e.reselectTracksInternal()
	case msgPlaybackParametersChangedInternal:
		e.handlePlaybackParametersChanged(msg.Obj.(domain.PlaybackParameters))
	case msgSendMessage:
		err = e.sendMessageInternal(msg.Obj.(*PlayerMessage))
	case msgRelease:
		e.releaseInternal()
		return
	default:
		e.logger.Warn("unknown engine message", slog.Int("what", msg.What))
	}

	if err != nil {
		pe := domain.AsPlaybackError(err)
		e.logger.Error("playback error",
			slog.String("kind", pe.Kind.String()),
			slog.String("error", pe.Error()))
		e.stopOnError(pe.Kind != domain.ErrorKindSource)
		e.notifyError(pe)
	}
	e.maybeNotifyPlaybackInfoChanged()
}

// prepareInternal begins a new playback session.
func (e *Engine) prepareInternal(req prepareRequest) {
	e.infoUpdate.incrementAcks(1)
	e.resetInternal(false, req.resetPosition, req.resetState)
	if e.mediaSource != nil && e.mediaSource != req.source {
		e.mediaSource.ReleaseSource(e)
	}
	e.loadControl.OnPrepared()
	e.mediaSource = req.source
	e.refreshPending = true
	e.setState(domain.StateBuffering)
	req.source.PrepareSource(e)
	e.looper.Send(msgDoSomeWork)
}

func (e *Engine) setPlayWhenReadyInternal(playWhenReady bool) error {
	e.infoUpdate.incrementAcks(1)
	e.rebuffering = false
	e.playWhenReady = playWhenReady
	if !playWhenReady {
		e.stopRenderers()
		e.updatePlaybackPositions()
		return nil
	}
	switch e.playbackInfo.State {
	case domain.StateReady:
		if err := e.startRenderers(); err != nil {
			return err
		}
		e.looper.Send(msgDoSomeWork)
	case domain.StateBuffering:
		e.looper.Send(msgDoSomeWork)
	}
	return nil
}

func (e *Engine) setRepeatModeInternal(mode domain.RepeatMode) error {
	e.infoUpdate.incrementAcks(1)
	e.repeatMode = mode
	if !e.q.UpdateRepeatMode(mode) {
		return e.seekToCurrentPosition(true)
	}
	return nil
}

func (e *Engine) setShuffleEnabledInternal(enabled bool) error {
	e.infoUpdate.incrementAcks(1)
	e.shuffleEnabled = enabled
	if !e.q.UpdateShuffleEnabled(enabled) {
		return e.seekToCurrentPosition(true)
	}
	return nil
}

func (e *Engine) setPlaybackParametersInternal(params domain.PlaybackParameters) {
	e.infoUpdate.incrementAcks(1)
	actual := e.mediaClock.SetPlaybackParameters(params)
	e.handlePlaybackParametersChanged(actual)
}

func (e *Engine) handlePlaybackParametersChanged(params domain.PlaybackParameters) {
	for _, r := range e.enabledRenderers {
		if err := r.SetOperatingRate(params.Speed); err != nil {
			e.logger.Warn("set operating rate failed", slog.String("error", err.Error()))
		}
	}
	listener := e.listener
	e.eventLooper.Post(func() {
		listener.OnPlaybackParametersChanged(params)
	})
}

func (e *Engine) setForegroundModeInternal(req foregroundRequest) {
	if !req.enabled {
		for _, r := range e.renderers {
			if r.State() == ports.RendererDisabled {
				r.Reset()
			}
		}
	}
	e.foregroundMode = req.enabled
	if req.done != nil {
		req.done.signal()
	}
}

// stopInternal stops playback and returns the engine to idle.
func (e *Engine) stopInternal(reset, acknowledge bool) {
	if acknowledge {
		e.infoUpdate.incrementAcks(1)
	}
	e.resetInternal(false, reset, reset)
	e.loadControl.OnStopped()
	e.setState(domain.StateIdle)
}

// stopOnError is the error path variant of stop; resetRenderers releases
// codec-level resources after renderer and unexpected failures.
func (e *Engine) stopOnError(resetRenderers bool) {
	e.resetInternal(resetRenderers, false, false)
	e.loadControl.OnStopped()
	e.setState(domain.StateIdle)
}

func (e *Engine) releaseInternal() {
	e.resetInternal(true, true, true)
	e.loadControl.OnReleased()
	e.setState(domain.StateIdle)
	e.looper.Quit()
	e.releaseMu.Lock()
	e.released = true
	e.releaseCond.Broadcast()
	e.releaseMu.Unlock()
}

// resetInternal unwinds playback state. Teardown failures are logged and
// swallowed; there is no second chance.
func (e *Engine) resetInternal(resetRenderers, resetPosition, resetState bool) {
	e.looper.Remove(msgDoSomeWork)
	e.rebuffering = false
	e.mediaClock.Stop()
	e.rendererPositionUs = 0
	for _, r := range e.enabledRenderers {
		e.disableRenderer(r)
	}
	if resetRenderers {
		for _, r := range e.renderers {
			r.Reset()
		}
	}
	e.enabledRenderers = nil
	metrics.RenderersEnabled.Set(0)

	if resetPosition {
		e.pendingInitialSeek = nil
	}
	if resetState {
		for _, pm := range e.pendingMessages {
			pm.message.MarkAsProcessed(false)
			metrics.TimedMessagesDropped.Inc()
		}
		e.pendingMessages = nil
		e.nextPendingMessageIndex = 0
	}

	e.q.Clear(!resetPosition)
	e.setIsLoadingInternal(false)

	info := e.playbackInfo
	if resetState {
		info.Timeline = domain.EmptyTimeline
		info.Manifest = nil
		e.q.SetTimeline(domain.EmptyTimeline)
	}
	if resetPosition {
		reset := domain.NewDefaultPlaybackInfo(domain.TimeUnset)
		info.PeriodID = reset.PeriodID
		info.LoadingPeriodID = reset.LoadingPeriodID
		info.StartPositionUs = domain.TimeUnset
		info.ContentPositionUs = domain.TimeUnset
		info.PositionUs = 0
		info.BufferedPositionUs = 0
		info.TotalBufferedDurationUs = 0
	} else {
		info.StartPositionUs = info.PositionUs
	}
	info.TrackGroups = nil
	info.TrackSelection = nil
	e.playbackInfo = info

	if resetState && e.mediaSource != nil {
		e.mediaSource.ReleaseSource(e)
		e.mediaSource = nil
		e.refreshPending = false
	}
}

func (e *Engine) setState(state domain.PlaybackState) {
	if e.playbackInfo.State == state {
		return
	}
	if !domain.CanTransition(e.playbackInfo.State, state) {
		e.logger.Warn("irregular playback state change",
			slog.String("from", e.playbackInfo.State.String()),
			slog.String("to", state.String()))
	}
	e.logger.Debug("playback state change",
		slog.String("from", e.playbackInfo.State.String()),
		slog.String("to", state.String()))
	e.playbackInfo = e.playbackInfo.WithState(state)
	metrics.PlaybackState.Set(float64(state))
}

func (e *Engine) setIsLoadingInternal(isLoading bool) {
	if e.playbackInfo.IsLoading != isLoading {
		e.playbackInfo = e.playbackInfo.WithIsLoading(isLoading)
	}
}

func (e *Engine) notifyError(err *domain.PlaybackError) {
	metrics.PlaybackErrorsTotal.WithLabelValues(err.Kind.String()).Inc()
	listener := e.listener
	e.eventLooper.Post(func() {
		listener.OnPlaybackError(err)
	})
}

// maybeNotifyPlaybackInfoChanged publishes the position triple and, when
// anything accumulated, one ordered info update to the event looper.
func (e *Engine) maybeNotifyPlaybackInfoChanged() {
	e.positions.publish(
		e.playbackInfo.PositionUs,
		e.playbackInfo.BufferedPositionUs,
		e.playbackInfo.TotalBufferedDurationUs,
	)
	if !e.infoUpdate.hasPendingUpdate(e.playbackInfo) {
		return
	}
	update := e.infoUpdate.take(e.playbackInfo)
	if update.PositionDiscontinuity {
		metrics.DiscontinuitiesTotal.WithLabelValues(update.DiscontinuityReason.String()).Inc()
	}
	listener := e.listener
	e.eventLooper.Post(func() {
		listener.OnPlaybackInfoUpdate(update)
	})
}

// startRenderers starts every enabled renderer and the playback clock.
func (e *Engine) startRenderers() error {
	e.rebuffering = false
	e.mediaClock.Start()
	for _, r := range e.enabledRenderers {
		if err := r.Start(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) stopRenderers() {
	e.mediaClock.Stop()
	for _, r := range e.enabledRenderers {
		if r.State() == ports.RendererStarted {
			if err := r.Stop(); err != nil {
				e.logger.Warn("renderer stop failed", slog.String("error", err.Error()))
			}
		}
	}
}

// disableRenderer returns a renderer to DISABLED, detaching it from the
// playback clock. Failures are logged and swallowed.
func (e *Engine) disableRenderer(r ports.Renderer) {
	e.mediaClock.OnRendererDisabled(r)
	if r.State() == ports.RendererStarted {
		if err := r.Stop(); err != nil {
			e.logger.Warn("renderer stop failed", slog.String("error", err.Error()))
		}
	}
	if err := r.Disable(); err != nil {
		e.logger.Warn("renderer disable failed", slog.String("error", err.Error()))
	}
}
