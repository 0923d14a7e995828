// Package session keeps the in-memory record of agent runs. A manager holds
// every session it created plus a pointer to the one currently running;
// statistics are derived from the recorded results on demand, never stored.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goelayush89/robin-ai-sub000/api/schemas"
)

// Stats summarizes one session's recorded results. Meta markers (loop
// bookkeeping like the max-iterations sentinel) are excluded from the
// action counts.
type Stats struct {
	SessionID     string                `json:"session_id"`
	Status        schemas.SessionStatus `json:"status"`
	TotalActions  int                   `json:"total_actions"`
	Succeeded     int                   `json:"succeeded"`
	Failed        int                   `json:"failed"`
	SuccessRate   float64               `json:"success_rate"`
	TotalDuration time.Duration         `json:"total_duration"`
	Elapsed       time.Duration         `json:"elapsed"`
}

// Manager owns the session records for one agent. All methods are safe for
// concurrent use; returned sessions are deep copies so callers can never
// mutate the manager's records.
type Manager struct {
	logger *zap.Logger

	mu        sync.RWMutex
	sessions  map[string]*schemas.Session
	currentID string
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("session_manager"),
		sessions: make(map[string]*schemas.Session),
	}
}

// Create opens a new running session and makes it current. Exactly one
// session may be running at a time.
func (m *Manager) Create(instruction string) (*schemas.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentID != "" {
		if cur, ok := m.sessions[m.currentID]; ok && !cur.Status.IsTerminal() {
			return nil, fmt.Errorf("session %s is still %s", cur.ID, cur.Status)
		}
	}

	s := &schemas.Session{
		ID:          uuid.New().String(),
		Instruction: instruction,
		StartTime:   time.Now().UTC(),
		Status:      schemas.SessionRunning,
		Results:     []schemas.ActionResult{},
	}
	m.sessions[s.ID] = s
	m.currentID = s.ID

	m.logger.Info("Session created.", zap.String("session_id", s.ID))
	return copySession(s), nil
}

// Get returns a copy of the session, or an error if it was never created.
func (m *Manager) Get(id string) (*schemas.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return copySession(s), nil
}

// Current returns the session most recently created, if any.
func (m *Manager) Current() (*schemas.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[m.currentID]
	if !ok {
		return nil, false
	}
	return copySession(s), true
}

// Update moves a session to a new status. The end time is stamped exactly
// once, on the first transition into a terminal status; later updates of a
// terminal session are rejected.
func (m *Manager) Update(id string, status schemas.SessionStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("session %s already ended as %s", id, s.Status)
	}

	s.Status = status
	if errMsg != "" {
		s.Error = errMsg
	}
	if status.IsTerminal() {
		now := time.Now().UTC()
		s.EndTime = &now
	}

	m.logger.Debug("Session updated.",
		zap.String("session_id", id), zap.String("status", string(status)))
	return nil
}

// AppendResult records one action result against a session. Results may be
// appended only while the session is running.
func (m *Manager) AppendResult(id string, result schemas.ActionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("unknown session %q", id)
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("session %s already ended as %s", id, s.Status)
	}
	s.Results = append(s.Results, result)
	return nil
}

// Stats derives the session summary from its recorded results.
func (m *Manager) Stats(id string) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}

	st := &Stats{SessionID: s.ID, Status: s.Status}
	for _, r := range s.Results {
		if r.IsMeta() {
			continue
		}
		st.TotalActions++
		if r.Success {
			st.Succeeded++
		} else {
			st.Failed++
		}
		st.TotalDuration += r.Duration
	}
	if st.TotalActions > 0 {
		st.SuccessRate = float64(st.Succeeded) / float64(st.TotalActions)
	}
	if s.EndTime != nil {
		st.Elapsed = s.EndTime.Sub(s.StartTime)
	} else {
		st.Elapsed = time.Since(s.StartTime)
	}
	return st, nil
}

// List returns copies of every session, newest first.
func (m *Manager) List() []*schemas.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*schemas.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, copySession(s))
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StartTime.After(out[i].StartTime) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// ClearOld removes terminal sessions older than maxAge. Running sessions
// are never removed, whatever their age. Returns the number removed.
func (m *Manager) ClearOld(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, s := range m.sessions {
		if !s.Status.IsTerminal() {
			continue
		}
		if s.EndTime != nil && s.EndTime.Before(cutoff) {
			delete(m.sessions, id)
			if m.currentID == id {
				m.currentID = ""
			}
			removed++
		}
	}
	if removed > 0 {
		m.logger.Info("Cleared old sessions.", zap.Int("removed", removed))
	}
	return removed
}

func copySession(s *schemas.Session) *schemas.Session {
	out := *s
	out.Results = make([]schemas.ActionResult, len(s.Results))
	copy(out.Results, s.Results)
	if s.EndTime != nil {
		t := *s.EndTime
		out.EndTime = &t
	}
	return &out
}
