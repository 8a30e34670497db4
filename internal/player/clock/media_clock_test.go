package clock

import (
	"testing"
	"time"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

// clockRenderer is the minimal renderer stub the composite clock needs: it
// only ever asks for the media clock.
type clockRenderer struct {
	clock ports.MediaClock
}

func (r *clockRenderer) TrackType() domain.TrackType                { return domain.TrackTypeAudio }
func (r *clockRenderer) State() ports.RendererState                 { return ports.RendererEnabled }
func (r *clockRenderer) Capabilities() ports.RendererCapabilities   { return nil }
func (r *clockRenderer) SetIndex(int)                               {}
func (r *clockRenderer) Enable(domain.RendererConfiguration, []domain.Format, ports.SampleStream, int64, bool, int64) error {
	return nil
}
func (r *clockRenderer) Start() error                               { return nil }
func (r *clockRenderer) Stop() error                                { return nil }
func (r *clockRenderer) Disable() error                             { return nil }
func (r *clockRenderer) Reset()                                     {}
func (r *clockRenderer) ReplaceStream([]domain.Format, ports.SampleStream, int64) error { return nil }
func (r *clockRenderer) Render(int64, int64) error                  { return nil }
func (r *clockRenderer) IsReady() bool                              { return true }
func (r *clockRenderer) IsEnded() bool                              { return false }
func (r *clockRenderer) HasReadStreamToEnd() bool                   { return false }
func (r *clockRenderer) Stream() ports.SampleStream                 { return nil }
func (r *clockRenderer) SetCurrentStreamFinal()                     {}
func (r *clockRenderer) IsCurrentStreamFinal() bool                 { return false }
func (r *clockRenderer) MaybeThrowStreamError() error               { return nil }
func (r *clockRenderer) ResetPosition(int64) error                  { return nil }
func (r *clockRenderer) ReadingPositionUs() int64                   { return 0 }
func (r *clockRenderer) SetOperatingRate(float64) error             { return nil }
func (r *clockRenderer) MediaClock() ports.MediaClock               { return r.clock }

func TestStandaloneClockStopped(t *testing.T) {
	clk := NewFakeClock()
	mc := NewStandaloneMediaClock(clk)
	mc.ResetPosition(5_000_000)
	clk.Advance(time.Second)
	if got := mc.PositionUs(); got != 5_000_000 {
		t.Fatalf("stopped clock advanced: %d", got)
	}
}

func TestStandaloneClockAdvances(t *testing.T) {
	clk := NewFakeClock()
	mc := NewStandaloneMediaClock(clk)
	mc.ResetPosition(0)
	mc.Start()
	clk.Advance(1500 * time.Millisecond)
	if got := mc.PositionUs(); got != 1_500_000 {
		t.Fatalf("position = %d, want 1500000", got)
	}
	mc.Stop()
	clk.Advance(time.Second)
	if got := mc.PositionUs(); got != 1_500_000 {
		t.Fatalf("position moved while stopped: %d", got)
	}
}

func TestStandaloneClockSpeed(t *testing.T) {
	clk := NewFakeClock()
	mc := NewStandaloneMediaClock(clk)
	mc.Start()
	mc.SetPlaybackParameters(domain.PlaybackParameters{Speed: 2, Pitch: 1})
	clk.Advance(time.Second)
	if got := mc.PositionUs(); got != 2_000_000 {
		t.Fatalf("double speed position = %d", got)
	}
	// Changing speed rebases; position stays continuous.
	mc.SetPlaybackParameters(domain.PlaybackParameters{Speed: 0.5, Pitch: 1})
	clk.Advance(time.Second)
	if got := mc.PositionUs(); got != 2_500_000 {
		t.Fatalf("half speed position = %d", got)
	}
}

// stubRendererClock implements ports.MediaClock with a settable position.
type stubRendererClock struct {
	positionUs int64
	params     domain.PlaybackParameters
}

func (c *stubRendererClock) PositionUs() int64 { return c.positionUs }

func (c *stubRendererClock) SetPlaybackParameters(p domain.PlaybackParameters) domain.PlaybackParameters {
	c.params = p
	return p
}

func (c *stubRendererClock) PlaybackParameters() domain.PlaybackParameters { return c.params }

func TestCompositeClockFallsBackOnRendererDisable(t *testing.T) {
	clk := NewFakeClock()
	composite := NewCompositeMediaClock(clk, nil)
	rendererClock := &stubRendererClock{params: domain.DefaultPlaybackParameters}
	r := &clockRenderer{clock: rendererClock}

	if err := composite.OnRendererEnabled(r); err != nil {
		t.Fatal(err)
	}
	rendererClock.positionUs = 7_000_000
	if got := composite.SyncAndGetPositionUs(); got != 7_000_000 {
		t.Fatalf("delegated position = %d", got)
	}

	composite.OnRendererDisabled(r)
	composite.Start()
	clk.Advance(time.Second)
	if got := composite.SyncAndGetPositionUs(); got != 8_000_000 {
		t.Fatalf("standalone resume position = %d, want 8000000", got)
	}
}

func TestCompositeClockSurfacesRendererParams(t *testing.T) {
	clk := NewFakeClock()
	var notified *domain.PlaybackParameters
	composite := NewCompositeMediaClock(clk, func(p domain.PlaybackParameters) { notified = &p })
	rendererClock := &stubRendererClock{params: domain.DefaultPlaybackParameters}
	r := &clockRenderer{clock: rendererClock}
	if err := composite.OnRendererEnabled(r); err != nil {
		t.Fatal(err)
	}

	rendererClock.params = domain.PlaybackParameters{Speed: 1.5, Pitch: 1}
	composite.SyncAndGetPositionUs()
	if notified == nil || notified.Speed != 1.5 {
		t.Fatalf("renderer parameter change not surfaced: %+v", notified)
	}
}

func TestCompositeClockRejectsSecondRendererClock(t *testing.T) {
	clk := NewFakeClock()
	composite := NewCompositeMediaClock(clk, nil)
	a := &clockRenderer{clock: &stubRendererClock{params: domain.DefaultPlaybackParameters}}
	b := &clockRenderer{clock: &stubRendererClock{params: domain.DefaultPlaybackParameters}}
	if err := composite.OnRendererEnabled(a); err != nil {
		t.Fatal(err)
	}
	if err := composite.OnRendererEnabled(b); err == nil {
		t.Fatal("second renderer clock accepted")
	}
}
