// Package fake provides deterministic in-memory media sources and
// renderers. The demo server plays them and the engine tests drive them
// over the virtual clock; they buffer instantly and render nothing.
package fake

import (
	"sync"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

// Source serves a programmable timeline and creates fully buffered periods.
type Source struct {
	mu          sync.Mutex
	timeline    *domain.Timeline
	manifest    any
	trackGroups []domain.TrackGroup
	caller      ports.MediaSourceCaller
	refreshErr  error

	createdPeriods  []*Period
	releasedPeriods int
	deferPrepare    bool
}

// NewSource builds a source over the given timeline. Without explicit track
// groups every period carries one video track.
func NewSource(timeline *domain.Timeline, groups ...domain.TrackGroup) *Source {
	if len(groups) == 0 {
		groups = []domain.TrackGroup{
			{Formats: []domain.Format{{ID: "video-1", Type: domain.TrackTypeVideo, Bitrate: 1_000_000}}},
		}
	}
	return &Source{timeline: timeline, trackGroups: groups}
}

// SetRefreshError makes the next MaybeThrowSourceInfoRefreshError fail.
func (s *Source) SetRefreshError(err error) {
	s.mu.Lock()
	s.refreshErr = err
	s.mu.Unlock()
}

// SetDeferPrepare holds period prepare callbacks until FinishPrepares.
func (s *Source) SetDeferPrepare(deferPrepare bool) {
	s.mu.Lock()
	s.deferPrepare = deferPrepare
	s.mu.Unlock()
}

// FinishPrepares completes every held period prepare.
func (s *Source) FinishPrepares() {
	s.mu.Lock()
	periods := append([]*Period(nil), s.createdPeriods...)
	s.mu.Unlock()
	for _, p := range periods {
		p.finishPrepare()
	}
}

// SetTimeline installs a new timeline and pushes a refresh to the prepared
// caller.
func (s *Source) SetTimeline(timeline *domain.Timeline, manifest any) {
	s.mu.Lock()
	s.timeline = timeline
	s.manifest = manifest
	caller := s.caller
	s.mu.Unlock()
	if caller != nil {
		caller.OnSourceInfoRefreshed(s, timeline, manifest)
	}
}

// CreatedPeriodCount reports how many periods the engine created.
func (s *Source) CreatedPeriodCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.createdPeriods)
}

// ReleasedPeriodCount reports how many periods were released back.
func (s *Source) ReleasedPeriodCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releasedPeriods
}

// ports.MediaSource.

func (s *Source) PrepareSource(caller ports.MediaSourceCaller) {
	s.mu.Lock()
	s.caller = caller
	timeline := s.timeline
	manifest := s.manifest
	s.mu.Unlock()
	caller.OnSourceInfoRefreshed(s, timeline, manifest)
}

func (s *Source) MaybeThrowSourceInfoRefreshError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshErr
}

func (s *Source) CreatePeriod(id domain.MediaPeriodID, allocator ports.Allocator, startPositionUs int64) ports.MediaPeriod {
	s.mu.Lock()
	defer s.mu.Unlock()
	durationUs := int64(domain.TimeUnset)
	if period, ok := s.timeline.PeriodByUID(id.PeriodUID); ok {
		switch {
		case id.IsAd():
			durationUs = period.Ads.AdDurationUs(id.AdGroupIndex, id.AdIndexInGroup)
		case id.NextAdGroupIndex != domain.IndexUnset:
			durationUs = period.Ads.Groups[id.NextAdGroupIndex].TimeUs
		default:
			durationUs = period.DurationUs
		}
	}
	p := &Period{
		source:        s,
		id:            id,
		durationUs:    durationUs,
		trackGroups:   s.trackGroups,
		deferPrepare:  s.deferPrepare,
		discontinuity: domain.TimeUnset,
	}
	s.createdPeriods = append(s.createdPeriods, p)
	return p
}

func (s *Source) ReleasePeriod(period ports.MediaPeriod) {
	s.mu.Lock()
	s.releasedPeriods++
	s.mu.Unlock()
	if p, ok := period.(*Period); ok {
		p.release()
	}
}

func (s *Source) ReleaseSource(caller ports.MediaSourceCaller) {
	s.mu.Lock()
	if s.caller == caller {
		s.caller = nil
	}
	s.mu.Unlock()
}

// Period is a fully buffered in-memory media period.
type Period struct {
	source      *Source
	id          domain.MediaPeriodID
	durationUs  int64
	trackGroups []domain.TrackGroup

	mu            sync.Mutex
	prepared      bool
	released      bool
	deferPrepare  bool
	callback      ports.MediaPeriodCallback
	prepareErr    error
	discontinuity int64
	lastSeekUs    int64
}

// ID returns the media period id the engine created this period for.
func (p *Period) ID() domain.MediaPeriodID { return p.id }

// SetPrepareError makes MaybeThrowPrepareError fail until prepare finishes.
func (p *Period) SetPrepareError(err error) {
	p.mu.Lock()
	p.prepareErr = err
	p.mu.Unlock()
}

// SetDiscontinuity reports a one-shot discontinuity at the given position
// on the next ReadDiscontinuity call.
func (p *Period) SetDiscontinuity(positionUs int64) {
	p.mu.Lock()
	p.discontinuity = positionUs
	p.mu.Unlock()
}

func (p *Period) finishPrepare() {
	p.mu.Lock()
	if p.prepared || p.released || p.callback == nil {
		p.mu.Unlock()
		return
	}
	p.prepared = true
	cb := p.callback
	p.mu.Unlock()
	cb.OnPrepared(p)
}

func (p *Period) release() {
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
}

// ports.MediaPeriod.

func (p *Period) Prepare(callback ports.MediaPeriodCallback, positionUs int64) {
	p.mu.Lock()
	p.callback = callback
	deferPrepare := p.deferPrepare
	p.mu.Unlock()
	if !deferPrepare {
		p.finishPrepare()
	}
}

func (p *Period) MaybeThrowPrepareError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.prepared {
		return nil
	}
	return p.prepareErr
}

func (p *Period) TrackGroups() []domain.TrackGroup { return p.trackGroups }

func (p *Period) SelectTracks(selections []*domain.TrackSelection, positionUs int64) ([]ports.SampleStream, int64) {
	streams := make([]ports.SampleStream, len(selections))
	for i, sel := range selections {
		if sel == nil {
			continue
		}
		streams[i] = &Stream{period: p, format: sel.SelectedFormat()}
	}
	return streams, positionUs
}

func (p *Period) DiscardBuffer(positionUs int64, toKeyframe bool) {}

func (p *Period) ReadDiscontinuity() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.discontinuity
	p.discontinuity = domain.TimeUnset
	return d
}

// BufferedPositionUs reports end-of-source: fake periods buffer instantly.
func (p *Period) BufferedPositionUs() int64 { return domain.TimeEndOfSource }

func (p *Period) NextLoadPositionUs() int64 { return domain.TimeEndOfSource }

func (p *Period) ContinueLoading(positionUs int64) bool { return false }

func (p *Period) ReevaluateBuffer(positionUs int64) {}

func (p *Period) SeekToUs(positionUs int64) int64 {
	p.mu.Lock()
	p.lastSeekUs = positionUs
	p.mu.Unlock()
	return positionUs
}

func (p *Period) AdjustedSeekPositionUs(positionUs int64, params domain.SeekParameters) int64 {
	return positionUs
}

// Stream is a sample stream over a fake period; always ready.
type Stream struct {
	period *Period
	format domain.Format
}

func (s *Stream) IsReady() bool          { return true }
func (s *Stream) MaybeThrowError() error { return nil }

// DurationUs exposes the owning period's duration to the fake renderer.
func (s *Stream) DurationUs() int64 { return s.period.durationUs }

// Format is the selected format this stream carries.
func (s *Stream) Format() domain.Format { return s.format }
