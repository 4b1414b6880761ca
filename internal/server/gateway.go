package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/cedarridge/idm-trainer/internal/content"
	"github.com/cedarridge/idm-trainer/internal/curriculum"
	"github.com/cedarridge/idm-trainer/internal/engine"
	"github.com/cedarridge/idm-trainer/internal/progress"
	"github.com/cedarridge/idm-trainer/internal/variant"
)

// Signal is one inbound client message on the session channel.
type Signal struct {
	Type string `json:"type"`

	// accept_ticket
	ScenarioID string `json:"scenarioId,omitempty"`
	Guided     *bool  `json:"guided,omitempty"`

	// action
	Action *engine.Action `json:"action,omitempty"`

	// nav_goal / action_goal
	NavID    string `json:"navId,omitempty"`
	ActionID string `json:"actionId,omitempty"`

	// dismiss_notification
	NotificationID string `json:"notificationId,omitempty"`

	// set_idm_setup
	Value *bool `json:"value,omitempty"`
}

// Event is one outbound message: the full snapshot after a transition,
// plus the resolved display dataset for the active scenario.
type Event struct {
	Type     string           `json:"type"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
	Dataset  map[string]any   `json:"dataset,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// SessionManager hosts one engine per user, shared across that user's
// connections and torn down when the last connection closes.
type SessionManager struct {
	library  *content.Library
	graph    *curriculum.Graph
	resolver *variant.Resolver
	stateDir string
	remote   func(userID string) *progress.RemoteClient

	mu       sync.Mutex
	sessions map[string]*userSession
}

type userSession struct {
	engine *engine.Engine
	refs   int
}

// SessionConfig holds SessionManager dependencies. Remote may be nil when
// the persistence API runs in the same process and local files suffice.
type SessionConfig struct {
	Library  *content.Library
	Graph    *curriculum.Graph
	Resolver *variant.Resolver
	StateDir string
	Remote   func(userID string) *progress.RemoteClient
}

// NewSessionManager creates the manager.
func NewSessionManager(cfg SessionConfig) *SessionManager {
	return &SessionManager{
		library:  cfg.Library,
		graph:    cfg.Graph,
		resolver: cfg.Resolver,
		stateDir: cfg.StateDir,
		remote:   cfg.Remote,
		sessions: make(map[string]*userSession),
	}
}

// acquire returns the user's engine, creating and hydrating it on first use.
func (m *SessionManager) acquire(ctx context.Context, userID string) *engine.Engine {
	m.mu.Lock()
	if sess, ok := m.sessions[userID]; ok {
		sess.refs++
		m.mu.Unlock()
		return sess.engine
	}
	m.mu.Unlock()

	var remote *progress.RemoteClient
	if m.remote != nil {
		remote = m.remote(userID)
	}
	local := progress.NewLocalStore(m.userStateDir(userID))
	manager := progress.NewManager(local, remote, progress.DefaultDebounceDelay)

	eng := engine.New(engine.Config{
		Library:  m.library,
		Graph:    m.graph,
		Progress: manager,
	})
	eng.Hydrate(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another connection may have raced us here; prefer the winner.
	if sess, ok := m.sessions[userID]; ok {
		sess.refs++
		go eng.Close()
		return sess.engine
	}
	m.sessions[userID] = &userSession{engine: eng, refs: 1}
	return eng
}

func (m *SessionManager) release(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[userID]
	if !ok {
		return
	}
	sess.refs--
	if sess.refs <= 0 {
		delete(m.sessions, userID)
		go sess.engine.Close()
	}
}

// Close tears down every hosted engine, flushing pending writes.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*userSession)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.engine.Close()
	}
}

func (m *SessionManager) userStateDir(userID string) string {
	return filepath.Join(m.stateDir, userID)
}

// Register mounts the websocket route.
func (m *SessionManager) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", m.handleWS)
}

func (m *SessionManager) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		userID = r.URL.Query().Get("user")
	}
	if userID == "" {
		http.Error(w, `{"error":"missing user identity"}`, http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")

	eng := m.acquire(r.Context(), userID)
	defer m.release(userID)

	slog.Info("session connected", "user_id", userID)

	ctx := r.Context()
	m.sendState(ctx, conn, eng)

	for {
		var sig Signal
		if err := wsjson.Read(ctx, conn, &sig); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway ||
				errors.Is(err, context.Canceled) {
				conn.Close(websocket.StatusNormalClosure, "")
			} else {
				slog.Warn("session read failed", "user_id", userID, "error", err)
			}
			return
		}

		if err := m.dispatch(eng, sig); err != nil {
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			wsjson.Write(writeCtx, conn, Event{Type: "error", Error: err.Error()})
			cancel()
			continue
		}
		m.sendState(ctx, conn, eng)
	}
}

func (m *SessionManager) dispatch(eng *engine.Engine, sig Signal) error {
	switch sig.Type {
	case "accept_ticket":
		guided := true
		if sig.Guided != nil {
			guided = *sig.Guided
		}
		eng.AcceptTicket(sig.ScenarioID, guided)
	case "action":
		if sig.Action == nil {
			return errors.New("action signal needs an action payload")
		}
		eng.HandleAction(*sig.Action)
	case "nav_goal":
		eng.CheckNavigationGoal(sig.NavID)
	case "action_goal":
		eng.CheckActionGoal(sig.ActionID)
	case "skip_ticket":
		eng.SkipTicket()
	case "replay_scenario":
		eng.ReplayScenario(sig.ScenarioID)
	case "return_to_inbox":
		eng.ReturnToInbox()
	case "toggle_coach_marks":
		eng.ToggleCoachMarks()
	case "toggle_hint":
		eng.ToggleHint()
	case "set_idm_setup":
		if sig.Value != nil {
			eng.SetIdmSetupComplete(*sig.Value)
		}
	case "dismiss_notification":
		eng.DismissNotification(sig.NotificationID)
	case "reset_progress":
		eng.ResetAllProgress()
	default:
		return errors.New("unknown signal type: " + sig.Type)
	}
	return nil
}

func (m *SessionManager) sendState(ctx context.Context, conn *websocket.Conn, eng *engine.Engine) {
	snap := eng.Snapshot()

	var dataset map[string]any
	if m.resolver != nil {
		dataset = m.resolver.Resolve(snap.ActiveScenarioID)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, Event{Type: "state", Snapshot: snap, Dataset: dataset}); err != nil {
		slog.Warn("session write failed", "error", err)
	}
}
