package clock

import (
	"errors"
	"time"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

// StandaloneMediaClock extrapolates a playback position from the wall
// clock, honoring playback speed.
type StandaloneMediaClock struct {
	clock       Clock
	started     bool
	baseUs      int64
	baseElapsed time.Duration
	params      domain.PlaybackParameters
}

func NewStandaloneMediaClock(c Clock) *StandaloneMediaClock {
	return &StandaloneMediaClock{clock: c, params: domain.DefaultPlaybackParameters}
}

func (c *StandaloneMediaClock) Start() {
	if !c.started {
		c.baseElapsed = c.clock.ElapsedRealtime()
		c.started = true
	}
}

func (c *StandaloneMediaClock) Stop() {
	if c.started {
		c.baseUs = c.PositionUs()
		c.started = false
	}
}

// ResetPosition rebases the clock at the given position.
func (c *StandaloneMediaClock) ResetPosition(positionUs int64) {
	c.baseUs = positionUs
	c.baseElapsed = c.clock.ElapsedRealtime()
}

func (c *StandaloneMediaClock) PositionUs() int64 {
	if !c.started {
		return c.baseUs
	}
	elapsedUs := (c.clock.ElapsedRealtime() - c.baseElapsed).Microseconds()
	if c.params.Speed == 1 {
		return c.baseUs + elapsedUs
	}
	return c.baseUs + c.params.ScaledDurationUs(elapsedUs)
}

func (c *StandaloneMediaClock) SetPlaybackParameters(params domain.PlaybackParameters) domain.PlaybackParameters {
	// Rebase so position stays continuous across the speed change.
	c.ResetPosition(c.PositionUs())
	c.params = params
	return params
}

func (c *StandaloneMediaClock) PlaybackParameters() domain.PlaybackParameters {
	return c.params
}

// ErrMultipleRendererClocks is returned when a second enabled renderer
// claims to master the playback position.
var ErrMultipleRendererClocks = errors.New("multiple renderer media clocks enabled")

// CompositeMediaClock is the engine's playback clock. It delegates to an
// enabled renderer's media clock when one exists and falls back to a
// standalone clock otherwise, keeping the position continuous across the
// handoff.
type CompositeMediaClock struct {
	standalone          *StandaloneMediaClock
	rendererClock       ports.MediaClock
	rendererClockSource ports.Renderer
	onParamsChanged     func(domain.PlaybackParameters)
}

func NewCompositeMediaClock(c Clock, onParamsChanged func(domain.PlaybackParameters)) *CompositeMediaClock {
	return &CompositeMediaClock{
		standalone:      NewStandaloneMediaClock(c),
		onParamsChanged: onParamsChanged,
	}
}

// OnRendererEnabled adopts the renderer's clock if it exposes one.
func (c *CompositeMediaClock) OnRendererEnabled(r ports.Renderer) error {
	rc := r.MediaClock()
	if rc == nil {
		return nil
	}
	if c.rendererClock != nil && c.rendererClockSource != r {
		return ErrMultipleRendererClocks
	}
	c.rendererClock = rc
	c.rendererClockSource = r
	rc.SetPlaybackParameters(c.standalone.PlaybackParameters())
	return nil
}

// OnRendererDisabled resumes the standalone clock from the last observed
// renderer position.
func (c *CompositeMediaClock) OnRendererDisabled(r ports.Renderer) {
	if r != c.rendererClockSource {
		return
	}
	c.standalone.ResetPosition(c.rendererClock.PositionUs())
	c.rendererClock = nil
	c.rendererClockSource = nil
}

// SyncAndGetPositionUs reads the authoritative position, keeping the
// standalone clock in step and surfacing renderer-driven parameter changes.
func (c *CompositeMediaClock) SyncAndGetPositionUs() int64 {
	if c.rendererClock == nil {
		return c.standalone.PositionUs()
	}
	positionUs := c.rendererClock.PositionUs()
	c.standalone.ResetPosition(positionUs)
	if params := c.rendererClock.PlaybackParameters(); params != c.standalone.PlaybackParameters() {
		c.standalone.SetPlaybackParameters(params)
		if c.onParamsChanged != nil {
			c.onParamsChanged(params)
		}
	}
	return positionUs
}

func (c *CompositeMediaClock) PositionUs() int64 {
	if c.rendererClock != nil {
		return c.rendererClock.PositionUs()
	}
	return c.standalone.PositionUs()
}

func (c *CompositeMediaClock) Start() { c.standalone.Start() }
func (c *CompositeMediaClock) Stop()  { c.standalone.Stop() }

func (c *CompositeMediaClock) ResetPosition(positionUs int64) {
	c.standalone.ResetPosition(positionUs)
}

func (c *CompositeMediaClock) SetPlaybackParameters(params domain.PlaybackParameters) domain.PlaybackParameters {
	if c.rendererClock != nil {
		params = c.rendererClock.SetPlaybackParameters(params)
	}
	return c.standalone.SetPlaybackParameters(params)
}

func (c *CompositeMediaClock) PlaybackParameters() domain.PlaybackParameters {
	if c.rendererClock != nil {
		return c.rendererClock.PlaybackParameters()
	}
	return c.standalone.PlaybackParameters()
}
