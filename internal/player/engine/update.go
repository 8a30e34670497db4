package engine

import (
	"sync/atomic"

	"mediaplayer/internal/domain"
)

// InfoUpdate is one batched PLAYBACK_INFO_CHANGED emission: the new
// snapshot plus everything accumulated since the last one.
type InfoUpdate struct {
	Info                  domain.PlaybackInfo
	OperationAcks         int
	PositionDiscontinuity bool
	DiscontinuityReason   domain.DiscontinuityReason
}

// infoUpdateAccumulator collects operation acks and at most one
// discontinuity between emissions. Non-internal reasons beat internal; two
// non-internal reasons never coexist within one tick.
type infoUpdateAccumulator struct {
	lastInfo              domain.PlaybackInfo
	operationAcks         int
	positionDiscontinuity bool
	discontinuityReason   domain.DiscontinuityReason
}

func (a *infoUpdateAccumulator) incrementAcks(n int) {
	a.operationAcks += n
}

func (a *infoUpdateAccumulator) setPositionDiscontinuity(reason domain.DiscontinuityReason) {
	if a.positionDiscontinuity && a.discontinuityReason != domain.DiscontinuityInternal {
		// Keep the first non-internal reason.
		return
	}
	a.positionDiscontinuity = true
	a.discontinuityReason = reason
}

func (a *infoUpdateAccumulator) hasPendingUpdate(current domain.PlaybackInfo) bool {
	return a.operationAcks > 0 ||
		a.positionDiscontinuity ||
		!infosEquivalent(a.lastInfo, current)
}

func (a *infoUpdateAccumulator) take(current domain.PlaybackInfo) InfoUpdate {
	update := InfoUpdate{
		Info:                  current,
		OperationAcks:         a.operationAcks,
		PositionDiscontinuity: a.positionDiscontinuity,
		DiscontinuityReason:   a.discontinuityReason,
	}
	a.lastInfo = current
	a.operationAcks = 0
	a.positionDiscontinuity = false
	a.discontinuityReason = domain.DiscontinuityNone
	return update
}

// infosEquivalent ignores the continuously advancing position fields;
// position-only changes are published through the shared position triple,
// not as info updates.
func infosEquivalent(a, b domain.PlaybackInfo) bool {
	return a.Timeline == b.Timeline &&
		a.PeriodID == b.PeriodID &&
		a.LoadingPeriodID == b.LoadingPeriodID &&
		a.State == b.State &&
		a.IsLoading == b.IsLoading &&
		a.TrackSelection == b.TrackSelection
}

// SharedPositions is the tick-consistent position triple readable from any
// goroutine. The engine publishes it at the end of every message it
// handles.
type SharedPositions struct {
	position      atomic.Int64
	buffered      atomic.Int64
	totalBuffered atomic.Int64
}

func (p *SharedPositions) publish(positionUs, bufferedUs, totalBufferedUs int64) {
	p.position.Store(positionUs)
	p.buffered.Store(bufferedUs)
	p.totalBuffered.Store(totalBufferedUs)
}

func (p *SharedPositions) PositionUs() int64           { return p.position.Load() }
func (p *SharedPositions) BufferedPositionUs() int64   { return p.buffered.Load() }
func (p *SharedPositions) TotalBufferedDurationUs() int64 { return p.totalBuffered.Load() }
