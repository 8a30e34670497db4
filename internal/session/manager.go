// Package session applies persisted player settings to a live player and
// writes changes through to a settings store.
package session

import (
	"context"
	"sync"
	"time"

	"mediaplayer/internal/domain"
)

// Settings is the persisted player configuration.
type Settings struct {
	RepeatMode     int
	ShuffleEnabled bool
	Speed          float64
	LastPositionMs int64
	LastWindow     int
}

// SettingsPlayer is the slice of the player surface the manager drives.
type SettingsPlayer interface {
	SetRepeatMode(mode domain.RepeatMode)
	SetShuffleModeEnabled(enabled bool)
	SetPlaybackParameters(params domain.PlaybackParameters)
	CurrentWindowIndex() int
	CurrentPositionMs() int64
}

// SettingsStore persists settings; a nil store degrades to in-memory only.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, bool, error)
	Set(ctx context.Context, s Settings) error
}

// Manager keeps player and store in sync.
type Manager struct {
	player  SettingsPlayer
	store   SettingsStore
	timeout time.Duration

	mu       sync.RWMutex
	settings Settings
}

func NewManager(player SettingsPlayer, store SettingsStore) *Manager {
	return &Manager{
		player:  player,
		store:   store,
		timeout: 5 * time.Second,
		settings: Settings{
			Speed: 1,
		},
	}
}

// Load pulls persisted settings and applies them to the player.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	s, ok, err := m.store.Get(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if s.Speed <= 0 {
		s.Speed = 1
	}
	m.mu.Lock()
	m.settings = s
	m.mu.Unlock()
	m.player.SetRepeatMode(domain.RepeatMode(s.RepeatMode))
	m.player.SetShuffleModeEnabled(s.ShuffleEnabled)
	m.player.SetPlaybackParameters(domain.PlaybackParameters{Speed: s.Speed, Pitch: 1})
	return nil
}

// Settings returns the current in-memory settings.
func (m *Manager) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings
}

func (m *Manager) SetRepeatMode(mode domain.RepeatMode) error {
	m.player.SetRepeatMode(mode)
	return m.update(func(s *Settings) { s.RepeatMode = int(mode) })
}

func (m *Manager) SetShuffleEnabled(enabled bool) error {
	m.player.SetShuffleModeEnabled(enabled)
	return m.update(func(s *Settings) { s.ShuffleEnabled = enabled })
}

func (m *Manager) SetSpeed(speed float64) error {
	m.player.SetPlaybackParameters(domain.PlaybackParameters{Speed: speed, Pitch: 1})
	return m.update(func(s *Settings) { s.Speed = speed })
}

// SavePosition records the current playback coordinate for resume.
func (m *Manager) SavePosition() error {
	window := m.player.CurrentWindowIndex()
	positionMs := m.player.CurrentPositionMs()
	return m.update(func(s *Settings) {
		s.LastWindow = window
		s.LastPositionMs = positionMs
	})
}

func (m *Manager) update(apply func(*Settings)) error {
	m.mu.Lock()
	apply(&m.settings)
	snapshot := m.settings
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.store.Set(ctx, snapshot)
}
