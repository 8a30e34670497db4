// Package apihttp exposes the player control surface: REST commands, a
// WebSocket event stream of playback updates, metrics and health.
package apihttp

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
	"mediaplayer/internal/player"
	"mediaplayer/internal/session"
)

// Options configures the server.
type Options struct {
	Logger             *slog.Logger
	Player             *player.Player
	Settings           *session.Manager
	SourceFactory      func() ports.MediaSource
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Server serves the control API for one player instance.
type Server struct {
	logger        *slog.Logger
	player        *player.Player
	settings      *session.Manager
	sourceFactory func() ports.MediaSource
	hub           *wsHub
	handler       http.Handler
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:        logger,
		player:        opts.Player,
		settings:      opts.Settings,
		sourceFactory: opts.SourceFactory,
		hub:           newWSHub(logger),
	}
	go s.hub.run()
	s.player.AddListener(s.eventListener())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/player/state", s.handleState)
	mux.HandleFunc("POST /api/v1/player/prepare", s.handlePrepare)
	mux.HandleFunc("POST /api/v1/player/play", s.handlePlay)
	mux.HandleFunc("POST /api/v1/player/pause", s.handlePause)
	mux.HandleFunc("POST /api/v1/player/seek", s.handleSeek)
	mux.HandleFunc("POST /api/v1/player/stop", s.handleStop)
	mux.HandleFunc("PATCH /api/v1/player/settings", s.handleSettings)
	mux.HandleFunc("GET /ws", s.hub.handleWS)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	perSecond := opts.RateLimitPerSecond
	if perSecond <= 0 {
		perSecond = 50
	}
	burst := opts.RateLimitBurst
	if burst <= 0 {
		burst = 100
	}

	var handler http.Handler = mux
	handler = rateLimitMiddleware(perSecond, burst)(handler)
	handler = metricsMiddleware(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = corsMiddleware(opts.CORSAllowedOrigins)(handler)
	handler = recoveryMiddleware(logger)(handler)
	s.handler = handler
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the event hub.
func (s *Server) Close() {
	s.hub.Close()
}

// eventListener bridges player events onto the WebSocket hub.
func (s *Server) eventListener() player.Listener {
	return &player.ListenerFuncs{
		PlaybackStateChanged: func(state domain.PlaybackState) {
			s.hub.Broadcast("state", map[string]any{"state": state.String()})
		},
		PositionDiscontinuity: func(reason domain.DiscontinuityReason) {
			s.hub.Broadcast("discontinuity", map[string]any{
				"reason":     reason.String(),
				"positionMs": s.player.CurrentPositionMs(),
			})
		},
		TimelineChanged: func(timeline *domain.Timeline, manifest any) {
			s.hub.Broadcast("timeline", map[string]any{
				"windows": timeline.WindowCount(),
				"periods": timeline.PeriodCount(),
			})
		},
		PlaybackParametersChanged: func(params domain.PlaybackParameters) {
			s.hub.Broadcast("parameters", map[string]any{"speed": params.Speed, "pitch": params.Pitch})
		},
		IsLoadingChanged: func(isLoading bool) {
			s.hub.Broadcast("loading", map[string]any{"isLoading": isLoading})
		},
		PlayerError: func(err *domain.PlaybackError) {
			s.hub.Broadcast("error", map[string]any{
				"kind":  err.Kind.String(),
				"error": err.Error(),
			})
		},
	}
}

type stateResponse struct {
	State          string  `json:"state"`
	PositionMs     int64   `json:"positionMs"`
	BufferedMs     int64   `json:"bufferedMs"`
	WindowIndex    int     `json:"windowIndex"`
	IsLoading      bool    `json:"isLoading"`
	PlayWhenReady  bool    `json:"playWhenReady"`
	RepeatMode     string  `json:"repeatMode"`
	ShuffleEnabled bool    `json:"shuffleEnabled"`
	Speed          float64 `json:"speed"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	settings := s.settings.Settings()
	speed := settings.Speed
	if speed <= 0 {
		speed = 1
	}
	writeJSON(w, http.StatusOK, stateResponse{
		State:          s.player.State().String(),
		PositionMs:     s.player.CurrentPositionMs(),
		BufferedMs:     domain.UsToMs(s.player.BufferedPositionUs()),
		WindowIndex:    s.player.CurrentWindowIndex(),
		IsLoading:      s.player.IsLoading(),
		PlayWhenReady:  s.player.PlayWhenReady(),
		RepeatMode:     s.player.RepeatMode().String(),
		ShuffleEnabled: s.player.ShuffleModeEnabled(),
		Speed:          speed,
	})
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ResetPosition *bool `json:"resetPosition"`
		ResetState    *bool `json:"resetState"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resetPosition := req.ResetPosition == nil || *req.ResetPosition
	resetState := req.ResetState == nil || *req.ResetState
	s.player.PrepareWith(s.sourceFactory(), resetPosition, resetState)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "preparing"})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.player.SetPlayWhenReady(true)
	writeJSON(w, http.StatusOK, map[string]bool{"playWhenReady": true})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.player.SetPlayWhenReady(false)
	if err := s.settings.SavePosition(); err != nil {
		s.logger.Warn("save position failed", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"playWhenReady": false})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WindowIndex int   `json:"windowIndex"`
		PositionMs  int64 `json:"positionMs"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	timeline := s.player.CurrentTimeline()
	if req.WindowIndex < 0 || req.WindowIndex >= timeline.WindowCount() {
		writeError(w, http.StatusBadRequest, domain.ErrSeekOutOfRange)
		return
	}
	s.player.SeekTo(req.WindowIndex, req.PositionMs)
	writeJSON(w, http.StatusOK, map[string]any{
		"windowIndex": req.WindowIndex,
		"positionMs":  req.PositionMs,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reset bool `json:"reset"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.settings.SavePosition(); err != nil {
		s.logger.Warn("save position failed", slog.String("error", err.Error()))
	}
	s.player.Stop(req.Reset)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RepeatMode     *string  `json:"repeatMode"`
		ShuffleEnabled *bool    `json:"shuffleEnabled"`
		Speed          *float64 `json:"speed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.RepeatMode != nil {
		mode, ok := parseRepeatMode(*req.RepeatMode)
		if !ok {
			http.Error(w, "invalid repeat mode", http.StatusBadRequest)
			return
		}
		if err := s.settings.SetRepeatMode(mode); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if req.ShuffleEnabled != nil {
		if err := s.settings.SetShuffleEnabled(*req.ShuffleEnabled); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if req.Speed != nil {
		if *req.Speed <= 0 || *req.Speed > 8 {
			http.Error(w, "speed out of range", http.StatusBadRequest)
			return
		}
		if err := s.settings.SetSpeed(*req.Speed); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.handleState(w, r)
}

func parseRepeatMode(raw string) (domain.RepeatMode, bool) {
	switch raw {
	case "off":
		return domain.RepeatOff, true
	case "one":
		return domain.RepeatOne, true
	case "all":
		return domain.RepeatAll, true
	default:
		return domain.RepeatOff, false
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
