package engine

import (
	"testing"

	"mediaplayer/internal/domain"
)

func TestAccumulatorDiscontinuityPrecedence(t *testing.T) {
	var acc infoUpdateAccumulator

	acc.setPositionDiscontinuity(domain.DiscontinuityInternal)
	acc.setPositionDiscontinuity(domain.DiscontinuitySeek)
	if acc.discontinuityReason != domain.DiscontinuitySeek {
		t.Fatalf("non-internal reason must beat internal, got %v", acc.discontinuityReason)
	}

	// A later internal reason never downgrades a non-internal one.
	acc.setPositionDiscontinuity(domain.DiscontinuityInternal)
	if acc.discontinuityReason != domain.DiscontinuitySeek {
		t.Fatalf("internal overwrote %v", acc.discontinuityReason)
	}

	// A second non-internal reason is dropped; two never coexist.
	acc.setPositionDiscontinuity(domain.DiscontinuityPeriodTransition)
	if acc.discontinuityReason != domain.DiscontinuitySeek {
		t.Fatalf("second non-internal reason overwrote the first: %v", acc.discontinuityReason)
	}
}

func TestAccumulatorTakeResets(t *testing.T) {
	var acc infoUpdateAccumulator
	info := domain.NewDefaultPlaybackInfo(0)
	acc.incrementAcks(2)
	acc.setPositionDiscontinuity(domain.DiscontinuitySeek)

	update := acc.take(info)
	if update.OperationAcks != 2 || !update.PositionDiscontinuity || update.DiscontinuityReason != domain.DiscontinuitySeek {
		t.Fatalf("take = %+v", update)
	}
	if acc.hasPendingUpdate(info) {
		t.Fatal("accumulator not reset")
	}
}

func TestAccumulatorIgnoresPositionOnlyChanges(t *testing.T) {
	var acc infoUpdateAccumulator
	info := domain.NewDefaultPlaybackInfo(0)
	acc.take(info)

	moved := info
	moved.PositionUs = 123456
	moved.BufferedPositionUs = 234567
	if acc.hasPendingUpdate(moved) {
		t.Fatal("pure position advance must not publish an info update")
	}

	stateChange := moved.WithState(domain.StateBuffering)
	if !acc.hasPendingUpdate(stateChange) {
		t.Fatal("state change must publish")
	}
}

func TestPendingMessageOrdering(t *testing.T) {
	resolved := func(seq uint64, periodIndex int, timeUs int64) *pendingMessage {
		return &pendingMessage{seq: seq, resolved: true, periodIndex: periodIndex, periodTimeUs: timeUs}
	}
	unresolved := &pendingMessage{seq: 1}

	tests := []struct {
		name string
		a, b *pendingMessage
		want int
	}{
		{"unresolved sorts last", resolved(5, 0, 0), unresolved, -1},
		{"period index first", resolved(1, 1, 0), resolved(2, 0, 100), 1},
		{"time within period", resolved(1, 0, 200), resolved(2, 0, 100), 1},
		{"submission order breaks ties", resolved(1, 0, 100), resolved(2, 0, 100), -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.compare(tc.b)
			if (got < 0) != (tc.want < 0) || (got > 0) != (tc.want > 0) {
				t.Fatalf("compare = %d, want sign of %d", got, tc.want)
			}
		})
	}
}

func TestSharedPositionsPublish(t *testing.T) {
	var p SharedPositions
	p.publish(1, 2, 3)
	if p.PositionUs() != 1 || p.BufferedPositionUs() != 2 || p.TotalBufferedDurationUs() != 3 {
		t.Fatal("triple not published")
	}
}
