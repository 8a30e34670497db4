package player

import (
	"sync"
	"time"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

// DefaultLoadControl buffers between a low and high watermark and gates
// playback start on a smaller threshold, larger after a rebuffer.
type DefaultLoadControl struct {
	MinBufferUs                   int64
	MaxBufferUs                   int64
	BufferForPlaybackUs           int64
	BufferForPlaybackAfterRebufferUs int64
	BackBufferUs                  int64
	RetainKeyframe                bool

	allocator *DefaultAllocator
	buffering bool
}

func NewDefaultLoadControl() *DefaultLoadControl {
	return &DefaultLoadControl{
		MinBufferUs:                      (15 * time.Second).Microseconds(),
		MaxBufferUs:                      (50 * time.Second).Microseconds(),
		BufferForPlaybackUs:              (2500 * time.Millisecond).Microseconds(),
		BufferForPlaybackAfterRebufferUs: (5 * time.Second).Microseconds(),
		allocator:                        &DefaultAllocator{},
	}
}

func (c *DefaultLoadControl) OnPrepared() { c.buffering = false }

func (c *DefaultLoadControl) OnTracksSelected(renderers []ports.Renderer, groups []domain.TrackGroup, selections []*domain.TrackSelection) {
}

func (c *DefaultLoadControl) OnStopped()  { c.buffering = false; c.allocator.Trim() }
func (c *DefaultLoadControl) OnReleased() { c.buffering = false; c.allocator.Trim() }

func (c *DefaultLoadControl) Allocator() ports.Allocator { return c.allocator }

func (c *DefaultLoadControl) BackBufferDurationUs() int64    { return c.BackBufferUs }
func (c *DefaultLoadControl) RetainBackBufferFromKeyframe() bool { return c.RetainKeyframe }

func (c *DefaultLoadControl) ShouldContinueLoading(bufferedDurationUs int64, speed float64) bool {
	minBufferUs := scaleBySpeed(c.MinBufferUs, speed)
	maxBufferUs := scaleBySpeed(c.MaxBufferUs, speed)
	switch {
	case bufferedDurationUs < minBufferUs:
		c.buffering = true
	case bufferedDurationUs >= maxBufferUs:
		c.buffering = false
	}
	return c.buffering
}

func (c *DefaultLoadControl) ShouldStartPlayback(bufferedDurationUs int64, speed float64, rebuffering bool) bool {
	targetUs := c.BufferForPlaybackUs
	if rebuffering {
		targetUs = c.BufferForPlaybackAfterRebufferUs
	}
	return bufferedDurationUs >= scaleBySpeed(targetUs, speed)
}

func scaleBySpeed(durationUs int64, speed float64) int64 {
	if speed == 1 {
		return durationUs
	}
	return int64(float64(durationUs) * speed)
}

// DefaultAllocator is a byte-count bookkeeping allocator. Media periods in
// this module buffer in memory; the allocator only tracks totals.
type DefaultAllocator struct {
	mu    sync.Mutex
	total int64
}

func (a *DefaultAllocator) Allocate(n int64) {
	a.mu.Lock()
	a.total += n
	a.mu.Unlock()
}

func (a *DefaultAllocator) ReleaseBytes(n int64) {
	a.mu.Lock()
	a.total -= n
	if a.total < 0 {
		a.total = 0
	}
	a.mu.Unlock()
}

func (a *DefaultAllocator) TotalBytesAllocated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

func (a *DefaultAllocator) Trim() {
	a.mu.Lock()
	a.total = 0
	a.mu.Unlock()
}

// DefaultTrackSelector picks, per renderer, the first track group of the
// renderer's type whose first supported format it finds. Adaptation policy
// belongs to real selectors; this one is deliberately static.
type DefaultTrackSelector struct {
	mu            sync.Mutex
	onInvalidated func()
}

func NewDefaultTrackSelector() *DefaultTrackSelector { return &DefaultTrackSelector{} }

func (s *DefaultTrackSelector) SetInvalidationListener(onInvalidated func()) {
	s.mu.Lock()
	s.onInvalidated = onInvalidated
	s.mu.Unlock()
}

// Invalidate asks the engine to redo track selection.
func (s *DefaultTrackSelector) Invalidate() {
	s.mu.Lock()
	fn := s.onInvalidated
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *DefaultTrackSelector) SelectTracks(
	capabilities []ports.RendererCapabilities,
	groups []domain.TrackGroup,
	periodID domain.MediaPeriodID,
	timeline *domain.Timeline,
) (*domain.TrackSelectorResult, error) {
	result := &domain.TrackSelectorResult{
		Configs:    make([]*domain.RendererConfiguration, len(capabilities)),
		Selections: make([]*domain.TrackSelection, len(capabilities)),
	}
	used := make([]bool, len(groups))
	for i, caps := range capabilities {
		if caps.TrackType() == domain.TrackTypeNone {
			// No-sample renderers are always enabled, with no selection.
			result.Configs[i] = &domain.RendererConfiguration{}
			continue
		}
		for g, group := range groups {
			if used[g] || group.Type() != caps.TrackType() {
				continue
			}
			for f, format := range group.Formats {
				if caps.SupportsFormat(format) {
					result.Configs[i] = &domain.RendererConfiguration{}
					result.Selections[i] = &domain.TrackSelection{Group: group, Indexes: []int{f}}
					used[g] = true
					break
				}
			}
			if result.Selections[i] != nil {
				break
			}
		}
	}
	return result, nil
}

func (s *DefaultTrackSelector) OnSelectionActivated(info any) {}
