package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mediaplayer/internal/domain"
)

type stubPlayer struct {
	mu         sync.Mutex
	repeat     domain.RepeatMode
	shuffle    bool
	params     domain.PlaybackParameters
	window     int
	positionMs int64
}

func (p *stubPlayer) SetRepeatMode(mode domain.RepeatMode) {
	p.mu.Lock()
	p.repeat = mode
	p.mu.Unlock()
}

func (p *stubPlayer) SetShuffleModeEnabled(enabled bool) {
	p.mu.Lock()
	p.shuffle = enabled
	p.mu.Unlock()
}

func (p *stubPlayer) SetPlaybackParameters(params domain.PlaybackParameters) {
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
}

func (p *stubPlayer) CurrentWindowIndex() int { return p.window }

func (p *stubPlayer) CurrentPositionMs() int64 { return p.positionMs }

type memoryStore struct {
	mu       sync.Mutex
	settings Settings
	saved    bool
	failNext error
}

func (s *memoryStore) Get(ctx context.Context) (Settings, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, s.saved, nil
}

func (s *memoryStore) Set(ctx context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.settings = settings
	s.saved = true
	return nil
}

func TestLoadAppliesPersistedSettings(t *testing.T) {
	p := &stubPlayer{}
	store := &memoryStore{
		settings: Settings{RepeatMode: int(domain.RepeatAll), ShuffleEnabled: true, Speed: 1.5},
		saved:    true,
	}
	m := NewManager(p, store)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.repeat != domain.RepeatAll || !p.shuffle {
		t.Fatalf("settings not applied: repeat=%v shuffle=%v", p.repeat, p.shuffle)
	}
	if p.params.Speed != 1.5 {
		t.Fatalf("speed = %v", p.params.Speed)
	}
}

func TestLoadDefaultsSpeedWhenZero(t *testing.T) {
	p := &stubPlayer{}
	store := &memoryStore{settings: Settings{}, saved: true}
	m := NewManager(p, store)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.params.Speed != 1 {
		t.Fatalf("zero persisted speed must default to 1, got %v", p.params.Speed)
	}
}

func TestSetWritesThrough(t *testing.T) {
	p := &stubPlayer{}
	store := &memoryStore{}
	m := NewManager(p, store)

	if err := m.SetRepeatMode(domain.RepeatOne); err != nil {
		t.Fatal(err)
	}
	if err := m.SetSpeed(2); err != nil {
		t.Fatal(err)
	}
	if store.settings.RepeatMode != int(domain.RepeatOne) || store.settings.Speed != 2 {
		t.Fatalf("write-through missed: %+v", store.settings)
	}
	if p.repeat != domain.RepeatOne || p.params.Speed != 2 {
		t.Fatal("player not updated")
	}
}

func TestSavePosition(t *testing.T) {
	p := &stubPlayer{window: 1, positionMs: 4200}
	store := &memoryStore{}
	m := NewManager(p, store)
	if err := m.SavePosition(); err != nil {
		t.Fatal(err)
	}
	if store.settings.LastWindow != 1 || store.settings.LastPositionMs != 4200 {
		t.Fatalf("position not saved: %+v", store.settings)
	}
}

func TestStoreErrorPropagatesButKeepsMemory(t *testing.T) {
	p := &stubPlayer{}
	store := &memoryStore{failNext: errors.New("write failed")}
	m := NewManager(p, store)
	if err := m.SetShuffleEnabled(true); err == nil {
		t.Fatal("expected store error")
	}
	if !m.Settings().ShuffleEnabled {
		t.Fatal("in-memory settings must still update")
	}
	if !p.shuffle {
		t.Fatal("player must still update")
	}
}

func TestNilStoreIsInMemoryOnly(t *testing.T) {
	p := &stubPlayer{}
	m := NewManager(p, nil)
	if err := m.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.SetSpeed(1.25); err != nil {
		t.Fatal(err)
	}
	if m.Settings().Speed != 1.25 {
		t.Fatal("in-memory settings lost")
	}
}
