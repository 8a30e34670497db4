package player_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
	"mediaplayer/internal/media/fake"
	"mediaplayer/internal/player"
	"mediaplayer/internal/player/clock"
)

const tick = 10 * time.Millisecond

type discontinuityRecord struct {
	reason     domain.DiscontinuityReason
	periodID   domain.MediaPeriodID
	positionUs int64
}

type harness struct {
	t        *testing.T
	clk      *clock.FakeClock
	p        *player.Player
	renderer *fake.Renderer

	mu              sync.Mutex
	states          []domain.PlaybackState
	discontinuities []discontinuityRecord
	errors          []*domain.PlaybackError
	parameters      []domain.PlaybackParameters
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clk:      clock.NewFakeClock(),
		renderer: fake.NewRenderer(domain.TrackTypeVideo),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.p = player.New(player.Config{
		Renderers:     []ports.Renderer{h.renderer},
		TrackSelector: player.NewDefaultTrackSelector(),
		LoadControl:   player.NewDefaultLoadControl(),
		Clock:         h.clk,
		Logger:        logger,
	})
	h.p.AddListener(&player.ListenerFuncs{
		PlaybackStateChanged: func(state domain.PlaybackState) {
			h.mu.Lock()
			h.states = append(h.states, state)
			h.mu.Unlock()
		},
		PositionDiscontinuity: func(reason domain.DiscontinuityReason) {
			info := h.p.PlaybackInfo()
			h.mu.Lock()
			h.discontinuities = append(h.discontinuities, discontinuityRecord{
				reason:     reason,
				periodID:   info.PeriodID,
				positionUs: info.PositionUs,
			})
			h.mu.Unlock()
		},
		PlaybackParametersChanged: func(params domain.PlaybackParameters) {
			h.mu.Lock()
			h.parameters = append(h.parameters, params)
			h.mu.Unlock()
		},
		PlayerError: func(err *domain.PlaybackError) {
			h.mu.Lock()
			h.errors = append(h.errors, err)
			h.mu.Unlock()
		},
	})
	t.Cleanup(h.p.Release)
	return h
}

// advanceUntil steps the virtual clock in scheduler-interval increments
// until the condition holds.
func (h *harness) advanceUntil(cond func() bool, maxSteps int) {
	h.t.Helper()
	for i := 0; i < maxSteps; i++ {
		if cond() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		err := h.clk.BlockUntilTimers(ctx, 1)
		cancel()
		if err != nil {
			// No scheduled work; the condition may have been reached
			// asynchronously.
			if cond() {
				return
			}
			continue
		}
		h.clk.Advance(tick)
	}
	require.True(h.t, cond(), "condition not reached after %d steps", maxSteps)
}

func (h *harness) advanceSteps(steps int) {
	h.t.Helper()
	for i := 0; i < steps; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := h.clk.BlockUntilTimers(ctx, 1)
		cancel()
		require.NoError(h.t, err)
		h.clk.Advance(tick)
	}
}

func (h *harness) waitForState(state domain.PlaybackState, maxSteps int) {
	h.t.Helper()
	h.advanceUntil(func() bool { return h.p.State() == state }, maxSteps)
}

func (h *harness) recordedStates() []domain.PlaybackState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.PlaybackState(nil), h.states...)
}

func (h *harness) recordedDiscontinuities() []discontinuityRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]discontinuityRecord(nil), h.discontinuities...)
}

func (h *harness) recordedErrors() []*domain.PlaybackError {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*domain.PlaybackError(nil), h.errors...)
}

func singleWindowTimeline(durationUs int64) *domain.Timeline {
	return domain.MustTimeline(
		[]domain.Window{{
			FirstPeriodIndex: 0, LastPeriodIndex: 0,
			DurationUs: durationUs, IsSeekable: true,
		}},
		[]domain.Period{{UID: "period-0", DurationUs: durationUs}},
	)
}

func TestSimplePlayThrough(t *testing.T) {
	h := newHarness(t)
	source := fake.NewSource(singleWindowTimeline(10_000_000))

	h.p.Prepare(source)
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateReady, 50)
	h.waitForState(domain.StateEnded, 1200)

	require.Equal(t, int64(10_000_000), h.p.CurrentPositionUs())
	states := h.recordedStates()
	require.Equal(t, []domain.PlaybackState{
		domain.StateBuffering, domain.StateReady, domain.StateEnded,
	}, states)
	assert.Empty(t, h.recordedErrors())
	assert.Empty(t, h.recordedDiscontinuities())
}

func TestSeekAndWait(t *testing.T) {
	h := newHarness(t)
	source := fake.NewSource(singleWindowTimeline(10_000_000))
	h.p.Prepare(source)
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateReady, 50)
	h.advanceSteps(200) // ~2000 ms

	h.p.SeekTo(0, 5000)
	h.advanceUntil(func() bool {
		return len(h.recordedDiscontinuities()) > 0
	}, 50)

	recs := h.recordedDiscontinuities()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.DiscontinuitySeek, recs[0].reason)
	assert.Equal(t, int64(5_000_000), recs[0].positionUs)

	// Playback resumes and continues from the seek point to the end.
	h.waitForState(domain.StateEnded, 600)
	assert.Equal(t, int64(10_000_000), h.p.CurrentPositionUs())
}

func TestSeekIsMillisecondIdempotent(t *testing.T) {
	h := newHarness(t)
	source := fake.NewSource(singleWindowTimeline(10_000_000))
	h.p.Prepare(source)
	h.p.SetPlayWhenReady(false)
	h.advanceUntil(func() bool { return h.p.State() == domain.StateReady }, 50)

	h.p.SeekTo(0, 5000)
	h.advanceUntil(func() bool { return len(h.recordedDiscontinuities()) == 1 }, 50)
	h.p.SeekTo(0, 5000)
	h.advanceSteps(5)

	recs := h.recordedDiscontinuities()
	require.Len(t, recs, 1, "second identical seek must not produce a discontinuity")
	assert.Equal(t, domain.DiscontinuitySeek, recs[0].reason)
}

func TestPeriodTransition(t *testing.T) {
	h := newHarness(t)
	timeline := domain.MustTimeline(
		[]domain.Window{{FirstPeriodIndex: 0, LastPeriodIndex: 1, DurationUs: 5_000_000, IsSeekable: true}},
		[]domain.Period{
			{UID: "p0", DurationUs: 3_000_000},
			{UID: "p1", DurationUs: 2_000_000, PositionInWindowUs: 3_000_000},
		},
	)
	h.p.Prepare(fake.NewSource(timeline))
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateEnded, 700)

	var transitions []discontinuityRecord
	for _, rec := range h.recordedDiscontinuities() {
		if rec.reason == domain.DiscontinuityPeriodTransition {
			transitions = append(transitions, rec)
		}
	}
	require.Len(t, transitions, 1)
	assert.Equal(t, "p1", transitions[0].periodID.PeriodUID)
	assert.Equal(t, int64(2_000_000), h.p.CurrentPositionUs())
}

func TestAdInsertion(t *testing.T) {
	h := newHarness(t)
	timeline := domain.MustTimeline(
		[]domain.Window{{FirstPeriodIndex: 0, LastPeriodIndex: 0, DurationUs: 10_000_000, IsSeekable: true}},
		[]domain.Period{{
			UID:        "p0",
			DurationUs: 10_000_000,
			Ads: domain.AdPlaybackState{
				Groups: []domain.AdGroup{{
					TimeUs:      4_000_000,
					Count:       1,
					States:      []domain.AdState{domain.AdStateAvailable},
					DurationsUs: []int64{1_500_000},
				}},
			},
		}},
	)
	h.p.Prepare(fake.NewSource(timeline))
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateEnded, 1400)

	var adRecs []discontinuityRecord
	for _, rec := range h.recordedDiscontinuities() {
		if rec.reason == domain.DiscontinuityAdInsertion {
			adRecs = append(adRecs, rec)
		}
	}
	require.Len(t, adRecs, 2, "one transition into the ad, one back out")

	into := adRecs[0]
	require.True(t, into.periodID.IsAd())
	assert.Equal(t, 0, into.periodID.AdGroupIndex)
	assert.Equal(t, int64(0), into.positionUs)

	outOf := adRecs[1]
	require.False(t, outOf.periodID.IsAd())
	// Ads do not advance content time: content resumes at the break point.
	assert.Equal(t, int64(4_000_000), outOf.positionUs)
}

type recordingTarget struct {
	mu        sync.Mutex
	delivered []any
}

func (r *recordingTarget) HandleMessage(messageType int, payload any) error {
	r.mu.Lock()
	r.delivered = append(r.delivered, payload)
	r.mu.Unlock()
	return nil
}

func (r *recordingTarget) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delivered)
}

func TestTimedMessageDelivery(t *testing.T) {
	h := newHarness(t)
	h.p.Prepare(fake.NewSource(singleWindowTimeline(10_000_000)))
	target := &recordingTarget{}
	msg := h.p.CreateMessage(target).
		SetPayload("cue").
		SetPosition(0, 3500).
		SetDeleteAfterDelivery(true).
		Send()

	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateEnded, 1200)

	require.Equal(t, 1, target.count(), "timed message must be delivered exactly once")
	require.True(t, msg.BlockUntilDelivered())
	target.mu.Lock()
	assert.Equal(t, "cue", target.delivered[0])
	target.mu.Unlock()
}

func TestCanceledMessageNeverDelivered(t *testing.T) {
	h := newHarness(t)
	h.p.Prepare(fake.NewSource(singleWindowTimeline(5_000_000)))
	target := &recordingTarget{}
	msg := h.p.CreateMessage(target).
		SetPosition(0, 2000).
		Send()
	msg.Cancel()

	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateEnded, 700)

	require.Zero(t, target.count())
	require.False(t, msg.BlockUntilDelivered())
}

func TestRepeatAllNeverEnds(t *testing.T) {
	h := newHarness(t)
	timeline := domain.MustTimeline(
		[]domain.Window{
			{FirstPeriodIndex: 0, LastPeriodIndex: 0, DurationUs: 1_000_000, IsSeekable: true},
			{FirstPeriodIndex: 1, LastPeriodIndex: 1, DurationUs: 1_000_000, IsSeekable: true},
		},
		[]domain.Period{
			{UID: "w0p0", WindowIndex: 0, DurationUs: 1_000_000},
			{UID: "w1p0", WindowIndex: 1, DurationUs: 1_000_000, PositionInWindowUs: 0},
		},
	)
	h.p.Prepare(fake.NewSource(timeline))
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateEnded, 400)

	h.p.SetRepeatMode(domain.RepeatAll)
	h.p.SeekTo(0, 0)
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateReady, 100)

	// Two full timeline durations later the player is still going.
	h.advanceSteps(450)
	assert.Equal(t, domain.StateReady, h.p.State())

	var transitions int
	for _, rec := range h.recordedDiscontinuities() {
		if rec.reason == domain.DiscontinuityPeriodTransition {
			transitions++
		}
	}
	assert.GreaterOrEqual(t, transitions, 4, "expected repeated window transitions")
}

func TestStopAndResumeKeepsPosition(t *testing.T) {
	h := newHarness(t)
	source := fake.NewSource(singleWindowTimeline(10_000_000))
	h.p.Prepare(source)
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateReady, 50)
	h.advanceSteps(200) // ~2000 ms

	positionBefore := h.p.CurrentPositionUs()
	require.GreaterOrEqual(t, positionBefore, int64(1_900_000))

	h.p.Stop(false)
	h.advanceUntil(func() bool { return h.p.State() == domain.StateIdle }, 20)

	h.p.PrepareWith(source, false, false)
	h.waitForState(domain.StateReady, 50)
	require.GreaterOrEqual(t, h.p.CurrentPositionUs(), positionBefore)
}

func TestEmptyTimelineStaysBuffering(t *testing.T) {
	h := newHarness(t)
	source := fake.NewSource(domain.EmptyTimeline)
	h.p.Prepare(source)
	h.p.SetPlayWhenReady(true)
	h.advanceSteps(20)
	assert.Equal(t, domain.StateBuffering, h.p.State())

	// A refresh that is still empty keeps buffering.
	source.SetTimeline(domain.EmptyTimeline, nil)
	h.advanceSteps(5)
	assert.Equal(t, domain.StateBuffering, h.p.State())

	h.p.Stop(false)
	h.advanceUntil(func() bool { return h.p.State() == domain.StateIdle }, 20)
}

func TestSeekPastEndOfWindowEnds(t *testing.T) {
	h := newHarness(t)
	h.p.Prepare(fake.NewSource(singleWindowTimeline(10_000_000)))
	h.p.SetPlayWhenReady(false)
	h.advanceUntil(func() bool { return h.p.State() == domain.StateReady }, 50)

	h.p.SeekTo(0, 20_000)
	h.advanceUntil(func() bool { return h.p.State() == domain.StateEnded }, 20)
	assert.Equal(t, int64(10_000_000), h.p.CurrentPositionUs())
}

func TestSourceErrorStopsToIdle(t *testing.T) {
	h := newHarness(t)
	source := fake.NewSource(singleWindowTimeline(10_000_000))
	source.SetDeferPrepare(true)
	h.p.Prepare(source)
	h.p.SetPlayWhenReady(true)
	h.advanceSteps(2)

	source.SetRefreshError(assert.AnError)
	h.advanceUntil(func() bool { return len(h.recordedErrors()) > 0 }, 50)

	errs := h.recordedErrors()
	require.NotEmpty(t, errs)
	assert.Equal(t, domain.ErrorKindSource, errs[0].Kind)
	h.advanceUntil(func() bool { return h.p.State() == domain.StateIdle }, 20)
}

func TestForegroundModeResetsIdleRenderers(t *testing.T) {
	h := newHarness(t)
	h.p.Prepare(fake.NewSource(singleWindowTimeline(10_000_000)))
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateReady, 50)

	h.p.Stop(true)
	h.advanceUntil(func() bool { return h.p.State() == domain.StateIdle }, 20)

	before := h.renderer.Resets()
	h.p.SetForegroundMode(false)
	assert.Greater(t, h.renderer.Resets(), before, "disabled renderer must be reset when leaving foreground mode")
}

func TestMessageAfterReleaseIsDropped(t *testing.T) {
	h := newHarness(t)
	h.p.Prepare(fake.NewSource(singleWindowTimeline(10_000_000)))
	h.p.Release()
	h.p.Release() // idempotent

	target := &recordingTarget{}
	msg := h.p.CreateMessage(target).SetPosition(0, 1000).Send()
	require.False(t, msg.BlockUntilDelivered())
	require.Zero(t, target.count())
}

func TestPlaybackParametersPropagate(t *testing.T) {
	h := newHarness(t)
	h.p.Prepare(fake.NewSource(singleWindowTimeline(10_000_000)))
	h.p.SetPlayWhenReady(true)
	h.waitForState(domain.StateReady, 50)

	h.p.SetPlaybackParameters(domain.PlaybackParameters{Speed: 2, Pitch: 1})
	h.advanceUntil(func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.parameters) > 0
	}, 20)

	h.mu.Lock()
	require.Equal(t, 2.0, h.parameters[0].Speed)
	h.mu.Unlock()

	// Double speed: ~1 s of wall clock covers ~2 s of media.
	start := h.p.CurrentPositionUs()
	h.advanceSteps(100)
	require.GreaterOrEqual(t, h.p.CurrentPositionUs()-start, int64(1_900_000))
}
