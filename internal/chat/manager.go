package chat

import (
	"context"
	"errors"
	"sync"

	"sparkchat/internal/music"
)

// ErrTurnInFlight is returned when a turn is already running for the same
// user and personality. The client should wait for the first reply.
var ErrTurnInFlight = errors.New("a message is already being processed for this chat")

// ErrMusicInFlight limits each user to one generation at a time.
var ErrMusicInFlight = errors.New("a music generation is already running for this user")

type turnKey struct {
	userID        int64
	personalityID string
}

// Manager serializes work per user: one chat turn per (user, personality)
// and one music generation per user. Concurrent duplicates are rejected,
// not queued.
type Manager struct {
	chat  *Orchestrator
	music *music.Orchestrator

	mu        sync.Mutex
	turnBusy  map[turnKey]bool
	musicBusy map[int64]bool
}

func NewManager(chatOrc *Orchestrator, musicOrc *music.Orchestrator) *Manager {
	return &Manager{
		chat:      chatOrc,
		music:     musicOrc,
		turnBusy:  make(map[turnKey]bool),
		musicBusy: make(map[int64]bool),
	}
}

// RunTurn executes one chat turn, rejecting overlap on the same chat.
func (m *Manager) RunTurn(ctx context.Context, input TurnInput) (*TurnResult, error) {
	key := turnKey{userID: input.UserID, personalityID: input.PersonalityID}

	m.mu.Lock()
	if m.turnBusy[key] {
		m.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	m.turnBusy[key] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.turnBusy, key)
		m.mu.Unlock()
	}()

	return m.chat.HandleTurn(ctx, input)
}

// RunMusic executes one music generation, rejecting overlap for the user.
func (m *Manager) RunMusic(ctx context.Context, userID int64, prompt string, useRaw bool) (*music.Result, error) {
	m.mu.Lock()
	if m.musicBusy[userID] {
		m.mu.Unlock()
		return nil, ErrMusicInFlight
	}
	m.musicBusy[userID] = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.musicBusy, userID)
		m.mu.Unlock()
	}()

	return m.music.Generate(ctx, userID, prompt, useRaw)
}
