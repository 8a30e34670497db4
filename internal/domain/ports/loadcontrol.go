package ports

import "mediaplayer/internal/domain"

// LoadControl owns the buffering policy: when to keep loading, when enough
// is buffered to start playback, and how much back-buffer to retain.
type LoadControl interface {
	OnPrepared()
	OnTracksSelected(renderers []Renderer, groups []domain.TrackGroup, selections []*domain.TrackSelection)
	OnStopped()
	OnReleased()

	Allocator() Allocator
	BackBufferDurationUs() int64
	RetainBackBufferFromKeyframe() bool

	ShouldContinueLoading(bufferedDurationUs int64, speed float64) bool
	ShouldStartPlayback(bufferedDurationUs int64, speed float64, rebuffering bool) bool
}
