package fake

import (
	"fmt"
	"sync"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

// Renderer consumes fake streams instantly: as soon as a stream is bound it
// counts as read to the end, and it reports ended once the stream is final
// and the position has reached the end of the stream's duration.
type Renderer struct {
	trackType domain.TrackType

	mu          sync.Mutex
	index       int
	state       ports.RendererState
	stream      ports.SampleStream
	formats     []domain.Format
	offsetUs    int64
	positionUs  int64
	streamFinal bool
	rate        float64

	resets        int
	enables       int
	renderCalls   int
	streamErr     error
}

func NewRenderer(trackType domain.TrackType) *Renderer {
	return &Renderer{trackType: trackType, rate: 1}
}

// Resets counts Reset calls; used to assert foreground-mode behavior.
func (r *Renderer) Resets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

// Enables counts Enable calls.
func (r *Renderer) Enables() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enables
}

// RenderCalls counts Render invocations.
func (r *Renderer) RenderCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.renderCalls
}

// FailStream makes the next readiness check surface a stream error.
func (r *Renderer) FailStream(err error) {
	r.mu.Lock()
	r.streamErr = err
	r.mu.Unlock()
}

// ports.Renderer.

func (r *Renderer) TrackType() domain.TrackType { return r.trackType }

func (r *Renderer) State() ports.RendererState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Renderer) Capabilities() ports.RendererCapabilities { return r }

// SupportsFormat implements ports.RendererCapabilities.
func (r *Renderer) SupportsFormat(format domain.Format) bool {
	return format.Type == r.trackType
}

func (r *Renderer) SetIndex(index int) {
	r.mu.Lock()
	r.index = index
	r.mu.Unlock()
}

func (r *Renderer) Enable(
	config domain.RendererConfiguration,
	formats []domain.Format,
	stream ports.SampleStream,
	positionUs int64,
	joining bool,
	offsetUs int64,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ports.RendererDisabled {
		return fmt.Errorf("%w: enable in %s", domain.ErrInvalidTransition, r.state)
	}
	r.state = ports.RendererEnabled
	r.stream = stream
	r.formats = formats
	r.offsetUs = offsetUs
	r.positionUs = positionUs
	r.streamFinal = false
	r.enables++
	return nil
}

func (r *Renderer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ports.RendererEnabled {
		return fmt.Errorf("%w: start in %s", domain.ErrInvalidTransition, r.state)
	}
	r.state = ports.RendererStarted
	return nil
}

func (r *Renderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ports.RendererStarted {
		return fmt.Errorf("%w: stop in %s", domain.ErrInvalidTransition, r.state)
	}
	r.state = ports.RendererEnabled
	return nil
}

func (r *Renderer) Disable() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ports.RendererEnabled {
		return fmt.Errorf("%w: disable in %s", domain.ErrInvalidTransition, r.state)
	}
	r.state = ports.RendererDisabled
	r.stream = nil
	r.streamFinal = false
	return nil
}

func (r *Renderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = ports.RendererDisabled
	r.stream = nil
	r.streamFinal = false
	r.resets++
}

func (r *Renderer) ReplaceStream(formats []domain.Format, stream ports.SampleStream, offsetUs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == ports.RendererDisabled {
		return fmt.Errorf("%w: replace stream in %s", domain.ErrInvalidTransition, r.state)
	}
	r.stream = stream
	r.formats = formats
	r.offsetUs = offsetUs
	r.streamFinal = false
	return nil
}

func (r *Renderer) Render(positionUs, elapsedRealtimeUs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positionUs = positionUs
	r.renderCalls++
	return nil
}

func (r *Renderer) IsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil && r.streamErr == nil
}

func (r *Renderer) IsEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.streamFinal {
		return false
	}
	endUs := r.streamEndLocked()
	if endUs == domain.TimeUnset {
		return true
	}
	return r.positionUs >= endUs
}

func (r *Renderer) HasReadStreamToEnd() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

func (r *Renderer) Stream() ports.SampleStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream
}

func (r *Renderer) SetCurrentStreamFinal() {
	r.mu.Lock()
	r.streamFinal = true
	r.mu.Unlock()
}

func (r *Renderer) IsCurrentStreamFinal() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamFinal
}

func (r *Renderer) MaybeThrowStreamError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.streamErr
}

func (r *Renderer) ResetPosition(positionUs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positionUs = positionUs
	return nil
}

func (r *Renderer) ReadingPositionUs() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return r.positionUs
	}
	if endUs := r.streamEndLocked(); endUs != domain.TimeUnset {
		return endUs
	}
	return r.positionUs
}

func (r *Renderer) SetOperatingRate(rate float64) error {
	r.mu.Lock()
	r.rate = rate
	r.mu.Unlock()
	return nil
}

func (r *Renderer) MediaClock() ports.MediaClock { return nil }

// streamEndLocked is the stream end in renderer time, TimeUnset when the
// stream duration is unknown.
func (r *Renderer) streamEndLocked() int64 {
	s, ok := r.stream.(*Stream)
	if !ok || s.DurationUs() == domain.TimeUnset {
		return domain.TimeUnset
	}
	return r.offsetUs + s.DurationUs()
}
