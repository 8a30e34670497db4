package ports

import (
	"fmt"

	"mediaplayer/internal/domain"
)

// RendererState is the lifecycle state of a renderer.
type RendererState int

const (
	RendererDisabled RendererState = iota
	RendererEnabled
	RendererStarted
)

func (s RendererState) String() string {
	switch s {
	case RendererDisabled:
		return "disabled"
	case RendererEnabled:
		return "enabled"
	case RendererStarted:
		return "started"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RendererCapabilities describes what formats a renderer can handle.
type RendererCapabilities interface {
	TrackType() domain.TrackType
	SupportsFormat(format domain.Format) bool
}

// MediaClock is exposed by renderers that master the playback position
// (typically audio). While such a renderer is enabled the engine's playback
// clock follows it.
type MediaClock interface {
	PositionUs() int64
	SetPlaybackParameters(params domain.PlaybackParameters) domain.PlaybackParameters
	PlaybackParameters() domain.PlaybackParameters
}

// Renderer consumes samples from one stream at a time and renders them
// against the shared renderer timebase.
//
// Lifecycle: DISABLED --Enable--> ENABLED --Start--> STARTED, Stop back to
// ENABLED, Disable back to DISABLED, Reset from any state releasing
// codec-level resources.
type Renderer interface {
	TrackType() domain.TrackType
	State() RendererState
	Capabilities() RendererCapabilities
	SetIndex(index int)

	Enable(
		config domain.RendererConfiguration,
		formats []domain.Format,
		stream SampleStream,
		positionUs int64,
		joining bool,
		offsetUs int64,
	) error
	Start() error
	Stop() error
	Disable() error
	Reset()

	// ReplaceStream is legal in ENABLED or STARTED once the renderer has
	// read its current stream to the end and the new stream's configuration
	// equals the current one.
	ReplaceStream(formats []domain.Format, stream SampleStream, offsetUs int64) error

	Render(positionUs, elapsedRealtimeUs int64) error
	IsReady() bool
	IsEnded() bool
	HasReadStreamToEnd() bool
	Stream() SampleStream
	SetCurrentStreamFinal()
	IsCurrentStreamFinal() bool
	MaybeThrowStreamError() error
	ResetPosition(positionUs int64) error
	ReadingPositionUs() int64
	SetOperatingRate(rate float64) error

	// MediaClock returns the renderer's own clock, or nil.
	MediaClock() MediaClock
}
