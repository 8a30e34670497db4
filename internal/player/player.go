// Package player exposes the external surface of the playback engine: a
// Player facade whose commands are marshalled onto the engine's worker and
// whose events arrive on a dedicated event looper.
package player

import (
	"log/slog"
	"sync"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
	"mediaplayer/internal/player/clock"
	"mediaplayer/internal/player/engine"
)

// Listener receives player events. All callbacks run on the player's event
// looper, in emission order.
type Listener interface {
	OnPlaybackStateChanged(state domain.PlaybackState)
	OnTimelineChanged(timeline *domain.Timeline, manifest any)
	OnPositionDiscontinuity(reason domain.DiscontinuityReason)
	OnPlaybackParametersChanged(params domain.PlaybackParameters)
	OnIsLoadingChanged(isLoading bool)
	OnPlayerError(err *domain.PlaybackError)
}

// ListenerFuncs adapts optional callbacks to the Listener interface.
type ListenerFuncs struct {
	PlaybackStateChanged      func(state domain.PlaybackState)
	TimelineChanged           func(timeline *domain.Timeline, manifest any)
	PositionDiscontinuity     func(reason domain.DiscontinuityReason)
	PlaybackParametersChanged func(params domain.PlaybackParameters)
	IsLoadingChanged          func(isLoading bool)
	PlayerError               func(err *domain.PlaybackError)
}

func (l *ListenerFuncs) OnPlaybackStateChanged(state domain.PlaybackState) {
	if l.PlaybackStateChanged != nil {
		l.PlaybackStateChanged(state)
	}
}

func (l *ListenerFuncs) OnTimelineChanged(timeline *domain.Timeline, manifest any) {
	if l.TimelineChanged != nil {
		l.TimelineChanged(timeline, manifest)
	}
}

func (l *ListenerFuncs) OnPositionDiscontinuity(reason domain.DiscontinuityReason) {
	if l.PositionDiscontinuity != nil {
		l.PositionDiscontinuity(reason)
	}
}

func (l *ListenerFuncs) OnPlaybackParametersChanged(params domain.PlaybackParameters) {
	if l.PlaybackParametersChanged != nil {
		l.PlaybackParametersChanged(params)
	}
}

func (l *ListenerFuncs) OnIsLoadingChanged(isLoading bool) {
	if l.IsLoadingChanged != nil {
		l.IsLoadingChanged(isLoading)
	}
}

func (l *ListenerFuncs) OnPlayerError(err *domain.PlaybackError) {
	if l.PlayerError != nil {
		l.PlayerError(err)
	}
}

// Config assembles a Player.
type Config struct {
	Renderers     []ports.Renderer
	TrackSelector ports.TrackSelector
	LoadControl   ports.LoadControl
	Clock         clock.Clock
	Logger        *slog.Logger
}

// Player is the external handle on one playback engine instance.
type Player struct {
	engine      *engine.Engine
	clk         clock.Clock
	eventLooper *clock.Looper
	logger      *slog.Logger

	mu          sync.Mutex
	listeners   []Listener
	info        domain.PlaybackInfo
	pendingAcks int
	lastError   *domain.PlaybackError

	playWhenReady  bool
	repeatMode     domain.RepeatMode
	shuffleEnabled bool
}

// New builds a Player and starts its engine.
func New(cfg Config) *Player {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Player{
		clk:    cfg.Clock,
		logger: logger,
		info:   domain.NewDefaultPlaybackInfo(domain.TimeUnset),
	}
	p.eventLooper = cfg.Clock.NewLooper("player-events", logger)
	p.engine = engine.New(engine.Config{
		Renderers:     cfg.Renderers,
		TrackSelector: cfg.TrackSelector,
		LoadControl:   cfg.LoadControl,
		Clock:         cfg.Clock,
		EventLooper:   p.eventLooper,
		Listener:      p,
		Logger:        logger,
	})
	return p
}

// AddListener registers a listener for subsequent events.
func (p *Player) AddListener(l Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

// RemoveListener unregisters a previously added listener.
func (p *Player) RemoveListener(l Listener) {
	p.mu.Lock()
	for i, existing := range p.listeners {
		if existing == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// EventLooper is where listener callbacks run; targets of timed messages
// may choose it for delivery.
func (p *Player) EventLooper() *clock.Looper { return p.eventLooper }

// Commands.

// Prepare starts a new playback session, resetting position and state.
func (p *Player) Prepare(source ports.MediaSource) {
	p.PrepareWith(source, true, true)
}

// PrepareWith controls whether position and state survive the re-prepare.
func (p *Player) PrepareWith(source ports.MediaSource, resetPosition, resetState bool) {
	p.beginOperation(nil)
	p.engine.Prepare(source, resetPosition, resetState)
}

func (p *Player) SetPlayWhenReady(playWhenReady bool) {
	p.mu.Lock()
	p.playWhenReady = playWhenReady
	p.mu.Unlock()
	p.beginOperation(nil)
	p.engine.SetPlayWhenReady(playWhenReady)
}

func (p *Player) SetRepeatMode(mode domain.RepeatMode) {
	p.mu.Lock()
	p.repeatMode = mode
	p.mu.Unlock()
	p.beginOperation(nil)
	p.engine.SetRepeatMode(mode)
}

func (p *Player) SetShuffleModeEnabled(enabled bool) {
	p.mu.Lock()
	p.shuffleEnabled = enabled
	p.mu.Unlock()
	p.beginOperation(nil)
	p.engine.SetShuffleModeEnabled(enabled)
}

// SeekTo seeks within a window of the current timeline.
func (p *Player) SeekTo(windowIndex int, positionMs int64) {
	p.mu.Lock()
	timeline := p.info.Timeline
	p.mu.Unlock()
	p.SeekToInTimeline(timeline, windowIndex, domain.MsToUs(positionMs))
}

// SeekToDefaultPosition seeks to a window's default start position.
func (p *Player) SeekToDefaultPosition(windowIndex int) {
	p.mu.Lock()
	timeline := p.info.Timeline
	p.mu.Unlock()
	p.SeekToInTimeline(timeline, windowIndex, domain.TimeUnset)
}

// SeekToInTimeline seeks against an explicit timeline, mapped into the
// engine's current one by period uid.
func (p *Player) SeekToInTimeline(timeline *domain.Timeline, windowIndex int, positionUs int64) {
	p.beginOperation(func(info *domain.PlaybackInfo) {
		if positionUs != domain.TimeUnset {
			info.PositionUs = positionUs
			info.StartPositionUs = positionUs
		}
	})
	p.engine.SeekTo(timeline, windowIndex, positionUs)
}

func (p *Player) SetPlaybackParameters(params domain.PlaybackParameters) {
	p.beginOperation(nil)
	p.engine.SetPlaybackParameters(params)
}

func (p *Player) SetSeekParameters(params domain.SeekParameters) {
	p.engine.SetSeekParameters(params)
}

func (p *Player) SetForegroundMode(foreground bool) {
	p.engine.SetForegroundMode(foreground)
}

func (p *Player) Stop(reset bool) {
	p.beginOperation(nil)
	p.engine.Stop(reset)
}

// Release tears down the engine and both loopers. Blocks until done.
func (p *Player) Release() {
	p.engine.Release()
	p.eventLooper.Quit()
}

// CreateMessage builds a timed message against this player's engine.
func (p *Player) CreateMessage(target engine.MessageTarget) *engine.PlayerMessage {
	return p.engine.CreateMessage(target)
}

// Queries. While operations are in flight the masked (requested) values are
// reported so callers observe their commands immediately.

func (p *Player) State() domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.State
}

func (p *Player) PlayWhenReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playWhenReady
}

func (p *Player) RepeatMode() domain.RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repeatMode
}

func (p *Player) ShuffleModeEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shuffleEnabled
}

func (p *Player) IsLoading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.IsLoading
}

func (p *Player) CurrentTimeline() *domain.Timeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.Timeline
}

// CurrentWindowIndex is the window of the playing period, 0 before the
// first timeline arrives.
func (p *Player) CurrentWindowIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentWindowIndexLocked()
}

func (p *Player) currentWindowIndexLocked() int {
	index := p.info.Timeline.IndexOfPeriod(p.info.PeriodID.PeriodUID)
	if index == domain.IndexUnset {
		return 0
	}
	return p.info.Timeline.Period(index).WindowIndex
}

// CurrentPositionUs is the playing position. While commands are pending
// the masked position is reported; otherwise the engine's tick-consistent
// published position.
func (p *Player) CurrentPositionUs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingAcks > 0 {
		return p.info.PositionUs
	}
	return p.engine.Positions().PositionUs()
}

func (p *Player) CurrentPositionMs() int64 {
	return domain.UsToMs(p.CurrentPositionUs())
}

func (p *Player) BufferedPositionUs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingAcks > 0 {
		return p.info.BufferedPositionUs
	}
	return p.engine.Positions().BufferedPositionUs()
}

func (p *Player) TotalBufferedDurationUs() int64 {
	return p.engine.Positions().TotalBufferedDurationUs()
}

func (p *Player) LastError() *domain.PlaybackError {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastError
}

// PlaybackInfo returns the most recent snapshot delivered by the engine.
func (p *Player) PlaybackInfo() domain.PlaybackInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info
}

// beginOperation counts an in-flight command and applies its masked effect
// to the local snapshot.
func (p *Player) beginOperation(mask func(*domain.PlaybackInfo)) {
	p.mu.Lock()
	p.pendingAcks++
	if mask != nil {
		mask(&p.info)
	}
	p.mu.Unlock()
}

// Engine listener: called on the event looper.

func (p *Player) OnPlaybackInfoUpdate(update engine.InfoUpdate) {
	p.mu.Lock()
	old := p.info
	p.info = update.Info
	p.pendingAcks -= update.OperationAcks
	if p.pendingAcks < 0 {
		p.pendingAcks = 0
	}
	if p.pendingAcks > 0 {
		// Keep masking position until every in-flight command is acked.
		p.info.PositionUs = old.PositionUs
		p.info.StartPositionUs = old.StartPositionUs
	}
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()

	if update.Info.Timeline != old.Timeline {
		for _, l := range listeners {
			l.OnTimelineChanged(update.Info.Timeline, update.Info.Manifest)
		}
	}
	if update.PositionDiscontinuity {
		for _, l := range listeners {
			l.OnPositionDiscontinuity(update.DiscontinuityReason)
		}
	}
	if update.Info.IsLoading != old.IsLoading {
		for _, l := range listeners {
			l.OnIsLoadingChanged(update.Info.IsLoading)
		}
	}
	if update.Info.State != old.State {
		for _, l := range listeners {
			l.OnPlaybackStateChanged(update.Info.State)
		}
	}
}

func (p *Player) OnPlaybackParametersChanged(params domain.PlaybackParameters) {
	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnPlaybackParametersChanged(params)
	}
}

func (p *Player) OnPlaybackError(err *domain.PlaybackError) {
	p.mu.Lock()
	p.lastError = err
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()
	for _, l := range listeners {
		l.OnPlayerError(err)
	}
}
