package ports

import "mediaplayer/internal/domain"

// MediaSourceCaller receives timeline refreshes from a prepared source.
// Callbacks may arrive on any goroutine; the engine marshals them onto its
// own looper.
type MediaSourceCaller interface {
	OnSourceInfoRefreshed(source MediaSource, timeline *domain.Timeline, manifest any)
}

// MediaSource provides the timeline and creates media periods. The core
// never performs I/O itself; the source owns loading and reports progress
// through the MediaPeriod it creates.
type MediaSource interface {
	PrepareSource(caller MediaSourceCaller)
	// MaybeThrowSourceInfoRefreshError surfaces an error that prevented the
	// last timeline refresh, if any.
	MaybeThrowSourceInfoRefreshError() error
	CreatePeriod(id domain.MediaPeriodID, allocator Allocator, startPositionUs int64) MediaPeriod
	ReleasePeriod(period MediaPeriod)
	ReleaseSource(caller MediaSourceCaller)
}

// MediaPeriodCallback receives prepare completion and loading progress for
// one media period.
type MediaPeriodCallback interface {
	OnPrepared(period MediaPeriod)
	OnContinueLoadingRequested(period MediaPeriod)
}

// MediaPeriod produces samples for one period. It is exclusively owned by
// the engine's queue between CreatePeriod and ReleasePeriod.
type MediaPeriod interface {
	Prepare(callback MediaPeriodCallback, positionUs int64)
	MaybeThrowPrepareError() error
	TrackGroups() []domain.TrackGroup
	// SelectTracks applies a new set of per-renderer selections and returns
	// the sample streams to bind, one per selection entry (nil for disabled
	// entries), plus the possibly adjusted start position.
	SelectTracks(selections []*domain.TrackSelection, positionUs int64) ([]SampleStream, int64)
	DiscardBuffer(positionUs int64, toKeyframe bool)
	// ReadDiscontinuity returns a new start position after an internal
	// discontinuity, or TimeUnset.
	ReadDiscontinuity() int64
	BufferedPositionUs() int64
	NextLoadPositionUs() int64
	ContinueLoading(positionUs int64) bool
	ReevaluateBuffer(positionUs int64)
	SeekToUs(positionUs int64) int64
	AdjustedSeekPositionUs(positionUs int64, params domain.SeekParameters) int64
}

// SampleStream is a renderer's view of one selected track of a period.
type SampleStream interface {
	IsReady() bool
	MaybeThrowError() error
}

// Allocator is the shared buffer pool handed to media periods. Locking is
// the allocator's responsibility.
type Allocator interface {
	TotalBytesAllocated() int64
	Trim()
}
