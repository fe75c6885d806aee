package ws

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is the slice of a websocket connection the registry needs.
// *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// session wraps one registered connection. Its mutex serializes writers on
// that connection only, so one slow peer never blocks the others.
type session struct {
	mu   sync.Mutex
	conn Conn
}

// Manager keeps one active session per token. A new session for a token
// replaces the previous one.
type Manager struct {
	mu    sync.Mutex
	conns map[string]*session
	log   *slog.Logger
}

func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		conns: make(map[string]*session),
		log:   log,
	}
}

func (m *Manager) Register(token string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.conns[token]; ok {
		old.conn.Close()
	}
	m.conns[token] = &session{conn: conn}
}

func (m *Manager) Unregister(token string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.conns[token]; ok && sess.conn == conn {
		delete(m.conns, token)
	}
	conn.Close()
}

// SendMessage writes the payload to the token's session. A token without an
// active session drops the message, which is not an error. The registry
// lock is only held for the lookup; the network write runs under the
// per-session lock.
func (m *Manager) SendMessage(token string, payload any) error {
	m.mu.Lock()
	sess, ok := m.conns[token]
	m.mu.Unlock()
	if !ok {
		return nil
	}

	sess.mu.Lock()
	err := sess.conn.WriteJSON(payload)
	sess.mu.Unlock()
	if err == nil {
		return nil
	}

	m.mu.Lock()
	if m.conns[token] == sess {
		delete(m.conns, token)
	}
	m.mu.Unlock()
	sess.conn.Close()
	return err
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and keeps the session registered until the
// peer goes away. The read loop only drains control frames.
func (m *Manager) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Error("websocket upgrade failed", "error", err)
		return
	}
	m.Register(token, conn)
	defer m.Unregister(token, conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
