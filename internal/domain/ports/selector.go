package ports

import "mediaplayer/internal/domain"

// TrackSelector chooses which tracks each renderer plays. Policy internals
// (adaptation, language preferences) are outside the core.
type TrackSelector interface {
	// SetInvalidationListener registers the callback fired when previous
	// selections become invalid and must be redone.
	SetInvalidationListener(onInvalidated func())
	SelectTracks(
		capabilities []RendererCapabilities,
		groups []domain.TrackGroup,
		periodID domain.MediaPeriodID,
		timeline *domain.Timeline,
	) (*domain.TrackSelectorResult, error)
	OnSelectionActivated(info any)
}
