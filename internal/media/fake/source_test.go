package fake

import (
	"testing"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
)

type captureCaller struct {
	refreshes int
	timeline  *domain.Timeline
}

func (c *captureCaller) OnSourceInfoRefreshed(source ports.MediaSource, timeline *domain.Timeline, manifest any) {
	c.refreshes++
	c.timeline = timeline
}

func testTimeline() *domain.Timeline {
	return domain.MustTimeline(
		[]domain.Window{{FirstPeriodIndex: 0, LastPeriodIndex: 0, DurationUs: 5_000_000, IsSeekable: true}},
		[]domain.Period{{UID: "p0", DurationUs: 5_000_000}},
	)
}

func TestPrepareSourceRefreshesImmediately(t *testing.T) {
	src := NewSource(testTimeline())
	caller := &captureCaller{}
	src.PrepareSource(caller)
	if caller.refreshes != 1 || caller.timeline.PeriodCount() != 1 {
		t.Fatalf("refreshes=%d", caller.refreshes)
	}

	src.SetTimeline(testTimeline(), "manifest")
	if caller.refreshes != 2 {
		t.Fatalf("SetTimeline did not push a refresh: %d", caller.refreshes)
	}

	src.ReleaseSource(caller)
	src.SetTimeline(testTimeline(), nil)
	if caller.refreshes != 2 {
		t.Fatal("refresh after release")
	}
}

func TestPeriodDurationFollowsID(t *testing.T) {
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
	src := NewSource(timeline)

	content := src.CreatePeriod(domain.NewContentID("p0", 0), nil, 0).(*Period)
	if content.durationUs != 4_000_000 {
		t.Fatalf("content-before-ad duration = %d", content.durationUs)
	}
	ad := src.CreatePeriod(domain.NewAdID("p0", 0, 0), nil, 0).(*Period)
	if ad.durationUs != 1_500_000 {
		t.Fatalf("ad duration = %d", ad.durationUs)
	}
	tail := src.CreatePeriod(domain.NewContentID("p0", domain.IndexUnset), nil, 4_000_000).(*Period)
	if tail.durationUs != 10_000_000 {
		t.Fatalf("tail duration = %d", tail.durationUs)
	}
}

func TestDeferredPrepare(t *testing.T) {
	src := NewSource(testTimeline())
	src.SetDeferPrepare(true)
	p := src.CreatePeriod(domain.NewContentID("p0", domain.IndexUnset), nil, 0).(*Period)

	var prepared []ports.MediaPeriod
	cb := callbackFunc(func(mp ports.MediaPeriod) { prepared = append(prepared, mp) })
	p.Prepare(cb, 0)
	if len(prepared) != 0 {
		t.Fatal("prepare completed despite defer")
	}
	src.FinishPrepares()
	if len(prepared) != 1 || prepared[0] != ports.MediaPeriod(p) {
		t.Fatalf("prepared = %v", prepared)
	}
}

type callbackFunc func(ports.MediaPeriod)

func (f callbackFunc) OnPrepared(p ports.MediaPeriod)                 { f(p) }
func (f callbackFunc) OnContinueLoadingRequested(p ports.MediaPeriod) {}

func TestRendererLifecycle(t *testing.T) {
	r := NewRenderer(domain.TrackTypeVideo)
	src := NewSource(testTimeline())
	period := src.CreatePeriod(domain.NewContentID("p0", domain.IndexUnset), nil, 0).(*Period)
	streams, _ := period.SelectTracks([]*domain.TrackSelection{{
		Group:   domain.TrackGroup{Formats: []domain.Format{{ID: "v", Type: domain.TrackTypeVideo}}},
		Indexes: []int{0},
	}}, 0)

	if err := r.Enable(domain.RendererConfiguration{}, nil, streams[0], 0, false, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Enable(domain.RendererConfiguration{}, nil, streams[0], 0, false, 0); err == nil {
		t.Fatal("double enable allowed")
	}
	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	if err := r.Disable(); err == nil {
		t.Fatal("disable from started allowed")
	}
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := r.Disable(); err != nil {
		t.Fatal(err)
	}

	// Ended only once the stream is final and the position reached its end.
	if err := r.Enable(domain.RendererConfiguration{}, nil, streams[0], 0, false, 0); err != nil {
		t.Fatal(err)
	}
	r.SetCurrentStreamFinal()
	_ = r.Render(4_999_999, 0)
	if r.IsEnded() {
		t.Fatal("ended before duration")
	}
	_ = r.Render(5_000_000, 0)
	if !r.IsEnded() {
		t.Fatal("not ended at duration")
	}
}
