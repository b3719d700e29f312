package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/balanz"
	"github.com/evbalanz/balanzd/internal/model"
	"github.com/evbalanz/balanzd/internal/modelerr"
)

// RawCaller issues an arbitrary OCPP action to a connected charger and
// decodes its confirmation into out. *ocpp.Server implements this; kept as
// an interface here so adminapi never imports ocpp directly.
type RawCaller interface {
	Call(ctx context.Context, chargerID, action string, payload, out any) error
}

// Server hosts the /api WebSocket endpoint.
type Server struct {
	store    *model.Store
	driver   balanz.ProfileDriver
	caller   RawCaller
	logger   *zap.Logger
	upgrader websocket.Upgrader

	usersMu sync.Mutex
	users   map[string]*User // by TokenSHA

	sessionsMu     sync.Mutex
	recentSessions []*model.Session
	maxRecent      int
}

func New(store *model.Store, driver balanz.ProfileDriver, caller RawCaller, logger *zap.Logger) *Server {
	return &Server{
		store:     store,
		driver:    driver,
		caller:    caller,
		logger:    logger.Named("adminapi"),
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		users:     make(map[string]*User),
		maxRecent: 500,
	}
}

// SetUsers replaces the known user table (by token sha).
func (s *Server) SetUsers(users []*User) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	s.users = make(map[string]*User, len(users))
	for _, u := range users {
		s.users[u.TokenSHA] = u
	}
}

// RecordSession appends a just-completed session to the in-memory recent
// list the GetSessions command serves, independent of the CSV log.
func (s *Server) RecordSession(session *model.Session) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.recentSessions = append(s.recentSessions, session)
	if len(s.recentSessions) > s.maxRecent {
		s.recentSessions = s.recentSessions[len(s.recentSessions)-s.maxRecent:]
	}
}

// Handler returns the http.HandlerFunc to mount at "/api".
func (s *Server) Handler() http.HandlerFunc {
	return s.handleConnection
}

func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("admin api upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := &adminSession{server: s, conn: conn, logger: s.logger}
	sess.run(r.Context())
}

type adminSession struct {
	server *Server
	conn   *websocket.Conn
	logger *zap.Logger

	mu          sync.Mutex
	loggedIn    bool
	currentUser *User
}

func (a *adminSession) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			return
		}
		a.handleFrame(ctx, raw)
	}
}

func (a *adminSession) handleFrame(ctx context.Context, raw []byte) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) < 3 {
		a.writeError("", "ProtocolError", "malformed frame")
		return
	}
	var msgType int
	var uniqueID, command string
	_ = json.Unmarshal(parts[0], &msgType)
	_ = json.Unmarshal(parts[1], &uniqueID)
	if msgType != 2 || len(parts) != 4 {
		a.writeError(uniqueID, "ProtocolError", "expected a 4-element CALL frame")
		return
	}
	_ = json.Unmarshal(parts[2], &command)

	result, err := a.dispatch(ctx, command, parts[3])
	if err != nil {
		code := "InternalError"
		if kind := modelerr.KindOf(err); kind != modelerr.Unknown {
			code = kind.String()
		}
		a.writeError(uniqueID, code, err.Error())
		return
	}
	a.writeResult(uniqueID, result)
}

func (a *adminSession) writeResult(uniqueID string, payload any) {
	frame, err := json.Marshal([]any{3, uniqueID, payload})
	if err != nil {
		return
	}
	_ = a.conn.WriteMessage(websocket.TextMessage, frame)
}

func (a *adminSession) writeError(uniqueID, code, desc string) {
	frame, err := json.Marshal([]any{4, uniqueID, code, desc, map[string]any{}})
	if err != nil {
		return
	}
	_ = a.conn.WriteMessage(websocket.TextMessage, frame)
}

func (a *adminSession) role() Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentUser == nil {
		return -1 // below RoleStatus: unauthenticated, only Login permitted
	}
	return a.currentUser.Role
}
