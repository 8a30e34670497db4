package apihttp

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
	"mediaplayer/internal/media/fake"
	"mediaplayer/internal/player"
	"mediaplayer/internal/player/clock"
	"mediaplayer/internal/session"
)

func testTimeline() *domain.Timeline {
	return domain.MustTimeline(
		[]domain.Window{{FirstPeriodIndex: 0, LastPeriodIndex: 0, DurationUs: 30_000_000, IsSeekable: true}},
		[]domain.Period{{UID: "demo", DurationUs: 30_000_000}},
	)
}

func newTestServer(t *testing.T) (*Server, *player.Player) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := player.New(player.Config{
		Renderers:     []ports.Renderer{fake.NewRenderer(domain.TrackTypeVideo)},
		TrackSelector: player.NewDefaultTrackSelector(),
		LoadControl:   player.NewDefaultLoadControl(),
		Clock:         clock.NewSystemClock(),
		Logger:        logger,
	})
	t.Cleanup(p.Release)
	settings := session.NewManager(p, nil)
	s := NewServer(Options{
		Logger:        logger,
		Player:        p,
		Settings:      settings,
		SourceFactory: func() ports.MediaSource { return fake.NewSource(testTimeline()) },
	})
	t.Cleanup(s.Close)
	return s, p
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStateEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/player/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "idle" {
		t.Fatalf("state = %q", resp.State)
	}
	if resp.Speed != 1 {
		t.Fatalf("speed = %v", resp.Speed)
	}
}

func TestPrepareAndPlay(t *testing.T) {
	s, p := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/player/prepare", "{}")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("prepare status = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPost, "/api/v1/player/play", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("play status = %d", rec.Code)
	}
	if !p.PlayWhenReady() {
		t.Fatal("playWhenReady not set")
	}
}

func TestSeekValidatesWindow(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/v1/player/seek", `{"windowIndex": 3, "positionMs": 1000}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSettingsPatch(t *testing.T) {
	s, p := newTestServer(t)
	rec := doRequest(t, s, http.MethodPatch, "/api/v1/player/settings",
		`{"repeatMode": "all", "shuffleEnabled": true, "speed": 1.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if p.RepeatMode() != domain.RepeatAll || !p.ShuffleModeEnabled() {
		t.Fatal("settings not applied to player")
	}

	rec = doRequest(t, s, http.MethodPatch, "/api/v1/player/settings", `{"repeatMode": "bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid repeat mode accepted: %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodPatch, "/api/v1/player/settings", `{"speed": -1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid speed accepted: %d", rec.Code)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/nonsense", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
