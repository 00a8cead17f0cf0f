package repository

import (
	"context"
	"sync"
	"time"

	"github.com/chav-jf/speedy-green-flash/internal/models"
)

// MemoryStore keeps relay telemetry in process when no database is
// configured. It satisfies the same contract as Store.
type MemoryStore struct {
	mu       sync.RWMutex
	now      func() time.Time
	nextID   uint
	events   []models.ReactionEvent
	sessions []models.PairingSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) RoomOpened(_ context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	m.closeLocked(room, now)
	m.nextID++
	m.sessions = append(m.sessions, models.PairingSession{ID: m.nextID, RoomCode: room, StartedAt: now, CreatedAt: now, UpdatedAt: now})
	return nil
}

func (m *MemoryStore) RoomClosed(_ context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(room, m.now().UTC())
	return nil
}

func (m *MemoryStore) closeLocked(room string, now time.Time) {
	for i := range m.sessions {
		s := &m.sessions[i]
		if s.RoomCode == room && s.EndedAt == nil {
			ended := now
			s.EndedAt = &ended
			s.UpdatedAt = now
		}
	}
}

func (m *MemoryStore) openLocked(room string) *models.PairingSession {
	for i := len(m.sessions) - 1; i >= 0; i-- {
		if m.sessions[i].RoomCode == room && m.sessions[i].EndedAt == nil {
			return &m.sessions[i]
		}
	}
	return nil
}

func (m *MemoryStore) RecordReaction(_ context.Context, room string, reactionTimeMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := models.ReactionEvent{RoomCode: room, Kind: models.EventReaction, ReactionTimeMs: &reactionTimeMs}
	if s := m.openLocked(room); s != nil {
		s.ReactionTimes = append(s.ReactionTimes, reactionTimeMs)
		id := s.ID
		ev.SessionID = &id
	}
	m.appendLocked(ev)
	return nil
}

func (m *MemoryStore) RecordEarlyClick(_ context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := models.ReactionEvent{RoomCode: room, Kind: models.EventEarlyClick}
	if s := m.openLocked(room); s != nil {
		s.FalseStarts++
		id := s.ID
		ev.SessionID = &id
	}
	m.appendLocked(ev)
	return nil
}

func (m *MemoryStore) appendLocked(ev models.ReactionEvent) {
	m.nextID++
	ev.ID = m.nextID
	ev.CreatedAt = m.now().UTC()
	m.events = append(m.events, ev)
}

// Events returns the room's events newest first.
func (m *MemoryStore) Events(_ context.Context, room string, limit int) ([]models.ReactionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ReactionEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].RoomCode != room {
			continue
		}
		out = append(out, m.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Timeline(_ context.Context, room string) ([]TimelineDataPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []TimelineDataPoint
	for _, ev := range m.events {
		if ev.RoomCode == room && ev.Kind == models.EventReaction && ev.ReactionTimeMs != nil {
			out = append(out, TimelineDataPoint{Date: ev.CreatedAt, Value: float64(*ev.ReactionTimeMs)})
		}
	}
	return out, nil
}

// Sessions returns the room's pairing sessions newest first.
func (m *MemoryStore) Sessions(room string) []models.PairingSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.PairingSession
	for i := len(m.sessions) - 1; i >= 0; i-- {
		if m.sessions[i].RoomCode == room {
			out = append(out, m.sessions[i])
		}
	}
	return out
}

// DeleteOlderThan mirrors the postgres retention sweep.
func (m *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (events, sessions int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keptEvents := m.events[:0]
	for _, ev := range m.events {
		if ev.CreatedAt.Before(cutoff) {
			events++
			continue
		}
		keptEvents = append(keptEvents, ev)
	}
	m.events = keptEvents

	keptSessions := m.sessions[:0]
	for _, s := range m.sessions {
		if s.EndedAt != nil && s.CreatedAt.Before(cutoff) {
			sessions++
			continue
		}
		keptSessions = append(keptSessions, s)
	}
	m.sessions = keptSessions
	return events, sessions, nil
}
